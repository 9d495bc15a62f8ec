package normalizer

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/raulk/clock"
	"go.uber.org/zap"
)

// BlockTimestamper resolves the timestamp of a block.
type BlockTimestamper interface {
	BlockTimestamp(ctx context.Context, number uint64) (time.Time, error)
}

// TimestampCache resolves each distinct block at most once. Build one per
// sync pass. A failed lookup falls back to the current time, which is then
// reused for the rest of the pass.
type TimestampCache struct {
	source BlockTimestamper
	cache  *lru.Cache
	clock  clock.Clock
	logger *zap.Logger

	lookups   int
	fallbacks int
}

// NewTimestampCache bounds the cache to size blocks.
func NewTimestampCache(source BlockTimestamper, size int, clk clock.Clock, logger *zap.Logger) (*TimestampCache, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create timestamp cache: %w", err)
	}
	if clk == nil {
		clk = clock.New()
	}
	return &TimestampCache{source: source, cache: cache, clock: clk, logger: logger}, nil
}

// Lookup returns the block timestamp, or now when the source fails.
func (c *TimestampCache) Lookup(ctx context.Context, block uint64) time.Time {
	if v, ok := c.cache.Get(block); ok {
		return v.(time.Time)
	}

	c.lookups++
	ts, err := c.source.BlockTimestamp(ctx, block)
	if err != nil {
		c.fallbacks++
		ts = c.clock.Now().UTC()
		c.logger.Debug("block timestamp lookup failed, using current time",
			zap.Uint64("block", block),
			zap.Error(err))
	}
	c.cache.Add(block, ts)
	return ts
}

// Resolver binds Lookup to ctx for Normalize.
func (c *TimestampCache) Resolver(ctx context.Context) BlockTime {
	return func(block uint64) time.Time {
		return c.Lookup(ctx, block)
	}
}

// Stats returns the number of source lookups and how many of them fell back.
func (c *TimestampCache) Stats() (lookups, fallbacks int) {
	return c.lookups, c.fallbacks
}
