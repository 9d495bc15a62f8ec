package syncstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// SyncStateDao maps to the 'sync_state' table.
type SyncStateDao struct {
	bun.BaseModel `bun:"table:sync_state,alias:ss"`
	Network       string    `bun:",pk,type:varchar(50)"`
	LastBlock     int64     `bun:",notnull"`
	UpdatedAt     time.Time `bun:",notnull,nullzero,default:current_timestamp"`
}

type pgStore struct {
	db *bun.DB
}

// NewStore creates a postgres implementation of the cursor store
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) GetLastBlock(ctx context.Context, network string) (uint64, bool, error) {
	dao := new(SyncStateDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("network = ?", network).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get sync state for %s: %w", network, err)
	}
	return uint64(dao.LastBlock), true, nil
}

// Advance is a compare-and-set on the watermark the pass started from.
func (s *pgStore) Advance(ctx context.Context, network string, from, to uint64) (bool, error) {
	if to <= from {
		return false, ErrNotForward
	}
	res, err := s.db.NewInsert().
		Model(&SyncStateDao{Network: network, LastBlock: int64(to), UpdatedAt: time.Now().UTC()}).
		On("CONFLICT (network) DO UPDATE").
		Set("last_block = EXCLUDED.last_block").
		Set("updated_at = EXCLUDED.updated_at").
		Where("?TableAlias.last_block = ?", int64(from)).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to advance sync state for %s: %w", network, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read sync state update for %s: %w", network, err)
	}
	return n > 0, nil
}

func (s *pgStore) Reset(ctx context.Context, network string, block uint64) error {
	_, err := s.db.NewInsert().
		Model(&SyncStateDao{Network: network, LastBlock: int64(block), UpdatedAt: time.Now().UTC()}).
		On("CONFLICT (network) DO UPDATE").
		Set("last_block = EXCLUDED.last_block").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to reset sync state for %s: %w", network, err)
	}
	return nil
}

func (s *pgStore) List(ctx context.Context) ([]Cursor, error) {
	var daos []SyncStateDao
	if err := s.db.NewSelect().Model(&daos).Order("network").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list sync state: %w", err)
	}
	out := make([]Cursor, len(daos))
	for i, d := range daos {
		out[i] = Cursor{Network: d.Network, LastBlock: uint64(d.LastBlock), UpdatedAt: d.UpdatedAt}
	}
	return out, nil
}
