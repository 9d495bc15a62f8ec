// Package syncstate persists the per-network sync watermark.
package syncstate

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Cursor is the watermark of one network. LastBlock is the first block the
// next pass scans.
type Cursor struct {
	Network   string
	LastBlock uint64
	UpdatedAt time.Time
}

// ErrNotForward is returned by Advance when to does not move past from.
var ErrNotForward = errors.New("cursor advance must move forward")

// Store reads and writes cursors.
type Store interface {
	// GetLastBlock returns the watermark and false when the network has no row yet.
	GetLastBlock(ctx context.Context, network string) (uint64, bool, error)
	// Advance moves the watermark from from to to, and reports false without
	// writing when the stored watermark is no longer from. A missing row is
	// created. A pass that read its window before a Reset therefore cannot
	// commit over the rewind, even from another process.
	Advance(ctx context.Context, network string, from, to uint64) (bool, error)
	// Reset sets the watermark unconditionally.
	Reset(ctx context.Context, network string, block uint64) error
	List(ctx context.Context) ([]Cursor, error)
}

// MemoryStore keeps cursors in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	cursors map[string]Cursor
}

// NewMemoryStore returns an empty cursor store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cursors: make(map[string]Cursor)}
}

func (m *MemoryStore) GetLastBlock(_ context.Context, network string) (uint64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cursors[network]
	return c.LastBlock, ok, nil
}

func (m *MemoryStore) Advance(_ context.Context, network string, from, to uint64) (bool, error) {
	if to <= from {
		return false, ErrNotForward
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.cursors[network]; ok && c.LastBlock != from {
		return false, nil
	}
	m.cursors[network] = Cursor{Network: network, LastBlock: to, UpdatedAt: time.Now()}
	return true, nil
}

func (m *MemoryStore) Reset(_ context.Context, network string, block uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[network] = Cursor{Network: network, LastBlock: block, UpdatedAt: time.Now()}
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]Cursor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Cursor, 0, len(m.cursors))
	for _, c := range m.cursors {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Network < out[j].Network })
	return out, nil
}
