package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	tokenExpr   = argExpr(TokenFields, NativeToken)
	amountExpr  = argExpr(AmountFields, "")
	donorExpr   = argExpr(DonorFields, "")
	creatorExpr = argExpr(CreatorFields, "")
)

// argExpr renders the field priority list as a jsonb COALESCE.
func argExpr(fields []string, fallback string) string {
	parts := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("NULLIF(e.args->>'%s', '')", f))
	}
	if fallback != "" {
		parts = append(parts, fmt.Sprintf("'%s'", fallback))
	}
	return "COALESCE(" + strings.Join(parts, ", ") + ")"
}

type pgStore struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewStore creates a postgres implementation of the ledger
func NewStore(db *bun.DB, logger *zap.Logger) *pgStore {
	return &pgStore{db: db, logger: logger.Named("ledger")}
}

// rowRejected reports whether postgres refused the row itself (data
// exception or integrity violation). Such a row fails again on every retry.
func rowRejected(err error) bool {
	var pgErr pgdriver.Error
	if !errors.As(err, &pgErr) {
		return false
	}
	code := pgErr.Field('C')
	return strings.HasPrefix(code, "22") || strings.HasPrefix(code, "23")
}

func (s *pgStore) SaveEvents(ctx context.Context, events []*Event) (SaveResult, error) {
	var (
		res       SaveResult
		transient error
	)
	if len(events) == 0 {
		return res, nil
	}

	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		inserted, registered, err := s.saveEvent(ctx, ev)
		if err != nil {
			res.Failed++
			if rowRejected(err) {
				s.logger.Warn("event rejected by the database, skipping",
					zap.String("event_id", ev.ID),
					zap.String("event", ev.EventName),
					zap.Uint64("block", ev.BlockNumber),
					zap.Error(err))
				continue
			}
			transient = multierr.Append(transient, err)
			s.logger.Warn("failed to save event",
				zap.String("event_id", ev.ID),
				zap.String("event", ev.EventName),
				zap.Error(err))
			continue
		}
		if inserted {
			res.Inserted++
		} else {
			res.Duplicates++
		}
		if registered {
			res.Registrations++
		}
	}

	if transient != nil {
		return res, fmt.Errorf("%w: %v", ErrNotCommitted, transient)
	}
	return res, nil
}

func (s *pgStore) saveEvent(ctx context.Context, ev *Event) (inserted, registered bool, err error) {
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewInsert().
			Model(toEventDao(ev)).
			On("CONFLICT (id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read insert result: %w", err)
		}
		inserted = n > 0

		if ev.EventName != EventCampaignCreated || ev.CampaignID == "" {
			return nil
		}
		creator, ok := CreatorFromArgs(ev.Args)
		if !ok {
			s.logger.Warn("campaign created without a creator argument",
				zap.String("event_id", ev.ID),
				zap.String("campaign_id", ev.CampaignID))
			return nil
		}

		// Rewrites only when the creator changed so a replay leaves the row untouched.
		res, err = tx.NewInsert().
			Model(&CampaignDao{CampaignID: ev.CampaignID, Creator: strings.ToLower(creator)}).
			On("CONFLICT (campaign_id) DO UPDATE").
			Set("creator = EXCLUDED.creator").
			Set("updated_at = EXCLUDED.updated_at").
			Where("?TableAlias.creator IS DISTINCT FROM EXCLUDED.creator").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert campaign registration: %w", err)
		}
		n, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read upsert result: %w", err)
		}
		registered = n > 0
		return nil
	})
	return inserted, registered, err
}

func (s *pgStore) CountRegistrations(ctx context.Context) (int, error) {
	n, err := s.db.NewSelect().Model((*CampaignDao)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count campaign registrations: %w", err)
	}
	return n, nil
}

func (s *pgStore) EventsForCampaign(ctx context.Context, campaignID string, opts ...QueryOption) ([]*Event, error) {
	o := applyOptions(opts)

	var daos []EventDao
	q := s.db.NewSelect().
		Model(&daos).
		Where("e.campaign_id = ?", NormalizeCampaignID(campaignID))
	if o.Network != nil {
		q = q.Where("e.network = ?", *o.Network)
	}
	if o.Limit > 0 {
		q = q.Limit(o.Limit)
	}
	if err := q.OrderExpr("e.block_timestamp DESC, e.block_number DESC, e.log_index DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list campaign events: %w", err)
	}
	return fromEventDaos(daos), nil
}

func (s *pgStore) EventsForCampaigns(ctx context.Context, campaignIDs []string, limit int) ([]*Event, error) {
	ids := normalizeIDs(campaignIDs)
	if len(ids) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var daos []EventDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("e.campaign_id IN (?)", bun.In(ids)).
		OrderExpr("e.block_timestamp DESC, e.block_number DESC, e.log_index DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list events for campaigns: %w", err)
	}
	return fromEventDaos(daos), nil
}

type totalRow struct {
	Network string          `bun:"network"`
	Token   string          `bun:"token"`
	Amount  decimal.Decimal `bun:"amount"`
	Count   int             `bun:"count"`
}

func (s *pgStore) FundsLockedTotals(ctx context.Context, campaignIDs []string) ([]Total, error) {
	ids := normalizeIDs(campaignIDs)
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []totalRow
	err := s.db.NewSelect().
		Model((*EventDao)(nil)).
		ColumnExpr("e.network AS network").
		ColumnExpr("lower("+tokenExpr+") AS token").
		ColumnExpr("SUM(("+amountExpr+")::numeric) AS amount").
		ColumnExpr("COUNT(*) AS count").
		Where("e.event_name = ?", EventFundsLocked).
		Where("e.campaign_id IN (?)", bun.In(ids)).
		Where(amountExpr + " ~ '^[0-9]+$'").
		GroupExpr("e.network, lower(" + tokenExpr + ")").
		OrderExpr("network, token").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to sum funds locked: %w", err)
	}

	totals := make([]Total, len(rows))
	for i, r := range rows {
		totals[i] = Total{Network: r.Network, Token: r.Token, Amount: r.Amount, Count: r.Count}
	}
	return totals, nil
}

func (s *pgStore) DistinctDonors(ctx context.Context, campaignIDs []string) (int, error) {
	ids := normalizeIDs(campaignIDs)
	if len(ids) == 0 {
		return 0, nil
	}

	var n int
	err := s.db.NewSelect().
		Model((*EventDao)(nil)).
		ColumnExpr("COUNT(DISTINCT lower("+donorExpr+"))").
		Where("e.event_name = ?", EventFundsLocked).
		Where("e.campaign_id IN (?)", bun.In(ids)).
		Scan(ctx, &n)
	if err != nil {
		return 0, fmt.Errorf("failed to count distinct donors: %w", err)
	}
	return n, nil
}

func (s *pgStore) CampaignsByCreator(ctx context.Context, creator string) ([]string, error) {
	var ids []string
	err := s.db.NewSelect().
		Model((*CampaignDao)(nil)).
		Column("campaign_id").
		Where("lower(creator) = ?", strings.ToLower(creator)).
		Order("campaign_id").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns by creator: %w", err)
	}
	return ids, nil
}

func (s *pgStore) CampaignsByCreatorFromEvents(ctx context.Context, creator string) ([]string, error) {
	var ids []string
	err := s.db.NewSelect().
		Model((*EventDao)(nil)).
		ColumnExpr("DISTINCT e.campaign_id").
		Where("e.event_name = ?", EventCampaignCreated).
		Where("e.campaign_id IS NOT NULL").
		Where("lower("+creatorExpr+") = ?", strings.ToLower(creator)).
		OrderExpr("e.campaign_id").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("failed to scan campaign events by creator: %w", err)
	}
	return ids, nil
}

func fromEventDaos(daos []EventDao) []*Event {
	events := make([]*Event, len(daos))
	for i := range daos {
		events[i] = fromEventDao(&daos[i])
	}
	return events
}
