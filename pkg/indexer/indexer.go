// Package indexer drives the periodic sync of contract events from every
// configured EVM network into the ledger.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/raulk/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/chainsafe/crowdfund-indexer/internal/metrics"
	"github.com/chainsafe/crowdfund-indexer/pkg/ledger"
	"github.com/chainsafe/crowdfund-indexer/pkg/normalizer"
	"github.com/chainsafe/crowdfund-indexer/pkg/syncstate"
)

var (
	// ErrPassInFlight is returned when a network is already being synced.
	ErrPassInFlight = errors.New("sync pass already in flight")
	// ErrUnknownNetwork is returned for a network that is not configured.
	ErrUnknownNetwork = errors.New("unknown network")
)

const defaultTimestampCacheSize = 1024

// LogSource is the chain access of one network.
type LogSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (time.Time, error)
	FetchLogs(ctx context.Context, address common.Address, from, to uint64) ([]types.Log, error)
}

// Contract is a monitored contract and the interface its logs decode with.
type Contract struct {
	Address common.Address
	ABI     *abi.ABI
}

// Network is everything needed to sync one chain.
type Network struct {
	Name       string
	Source     LogSource
	Normalizer *normalizer.Normalizer
	Contracts  []Contract
	BatchSize  uint64
	StartBlock uint64
}

// Config holds the scheduler settings.
type Config struct {
	Interval             time.Duration
	TimestampCacheSize   int
	ResetOnEmptyRegistry bool
}

type networkState struct {
	Network
	busy   *semaphore.Weighted
	logger *zap.Logger
}

// Indexer syncs every network on a fixed interval. Passes of different
// networks run concurrently; a network is never synced by two passes at once.
type Indexer struct {
	cfg      Config
	networks []*networkState
	ledger   ledger.Writer
	cursors  syncstate.Store
	clock    clock.Clock
	logger   *zap.Logger

	mu       sync.RWMutex
	status   map[string]PassResult
	lastPass time.Time

	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option customizes an Indexer.
type Option func(*Indexer)

// WithClock replaces the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(ix *Indexer) {
		ix.clock = c
	}
}

// New creates an indexer over networks.
func New(cfg Config, networks []Network, w ledger.Writer, cursors syncstate.Store, logger *zap.Logger, opts ...Option) *Indexer {
	if cfg.TimestampCacheSize <= 0 {
		cfg.TimestampCacheSize = defaultTimestampCacheSize
	}
	ix := &Indexer{
		cfg:     cfg,
		ledger:  w,
		cursors: cursors,
		clock:   clock.New(),
		logger:  logger.Named("indexer"),
		status:  make(map[string]PassResult, len(networks)),
	}
	for _, n := range networks {
		ix.networks = append(ix.networks, &networkState{
			Network: n,
			busy:    semaphore.NewWeighted(1),
			logger:  ix.logger.With(zap.String("network", n.Name)),
		})
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Bootstrap seeds missing cursors with each network's start block. When
// ResetOnEmptyRegistry is set and no campaign is registered, every cursor is
// rewound to its start block.
func (ix *Indexer) Bootstrap(ctx context.Context) error {
	if ix.cfg.ResetOnEmptyRegistry {
		n, err := ix.ledger.CountRegistrations(ctx)
		if err != nil {
			return fmt.Errorf("failed to count campaign registrations: %w", err)
		}
		if n == 0 {
			for _, ns := range ix.networks {
				ns.logger.Warn("campaign registry is empty, rewinding cursor to start block",
					zap.Uint64("start_block", ns.StartBlock))
				if err := ix.cursors.Reset(ctx, ns.Name, ns.StartBlock); err != nil {
					return fmt.Errorf("failed to reset cursor for %s: %w", ns.Name, err)
				}
			}
			return nil
		}
	}

	for _, ns := range ix.networks {
		last, ok, err := ix.cursors.GetLastBlock(ctx, ns.Name)
		if err != nil {
			return fmt.Errorf("failed to read cursor for %s: %w", ns.Name, err)
		}
		if ok {
			ns.logger.Info("resuming from stored cursor", zap.Uint64("last_block", last))
			metrics.SyncCursor.WithLabelValues(ns.Name).Set(float64(last))
			continue
		}
		if err := ix.cursors.Reset(ctx, ns.Name, ns.StartBlock); err != nil {
			return fmt.Errorf("failed to seed cursor for %s: %w", ns.Name, err)
		}
		ns.logger.Info("seeded cursor with start block", zap.Uint64("start_block", ns.StartBlock))
		metrics.SyncCursor.WithLabelValues(ns.Name).Set(float64(ns.StartBlock))
	}
	return nil
}

// Rebuild rewinds the cursor of network to its start block so the next
// pass re-scans its whole history. Already stored events are kept and the
// replay is absorbed by the idempotent insert.
func (ix *Indexer) Rebuild(ctx context.Context, network string) error {
	ns, err := ix.network(network)
	if err != nil {
		return err
	}

	// Passes of other processes are fenced by the compare-and-set advance.
	if err := ns.busy.Acquire(ctx, 1); err != nil {
		return err
	}
	defer ns.busy.Release(1)

	if err := ix.cursors.Reset(ctx, ns.Name, ns.StartBlock); err != nil {
		return fmt.Errorf("failed to reset cursor for %s: %w", ns.Name, err)
	}
	metrics.SyncCursor.WithLabelValues(ns.Name).Set(float64(ns.StartBlock))
	ns.logger.Warn("cursor rewound for rebuild", zap.Uint64("start_block", ns.StartBlock))
	return nil
}

// RunSyncPass syncs every network once, concurrently, and waits for all of
// them. Networks already in flight are skipped. The returned error combines
// the per-network failures; none of them stops the other networks.
func (ix *Indexer) RunSyncPass(ctx context.Context) error {
	passID := uuid.NewString()

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs error
	)
	for _, ns := range ix.networks {
		ns := ns
		g.Go(func() error {
			_, err := ix.syncGuarded(ctx, ns, passID)
			if err != nil && !errors.Is(err, ErrPassInFlight) {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", ns.Name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	ix.mu.Lock()
	ix.lastPass = ix.clock.Now()
	ix.mu.Unlock()
	return errs
}

// SyncNetwork runs one pass for a single network.
func (ix *Indexer) SyncNetwork(ctx context.Context, network string) (PassResult, error) {
	ns, err := ix.network(network)
	if err != nil {
		return PassResult{}, err
	}
	return ix.syncGuarded(ctx, ns, uuid.NewString())
}

func (ix *Indexer) syncGuarded(ctx context.Context, ns *networkState, passID string) (PassResult, error) {
	if !ns.busy.TryAcquire(1) {
		metrics.PassesSkipped.WithLabelValues(ns.Name).Inc()
		ns.logger.Debug("previous pass still running, skipping")
		return PassResult{Network: ns.Name}, ErrPassInFlight
	}
	defer ns.busy.Release(1)

	start := ix.clock.Now()
	res, err := ix.syncNetwork(ctx, ns, ns.logger.With(zap.String("pass_id", passID)))
	res.Network = ns.Name
	res.Duration = ix.clock.Now().Sub(start)
	res.FinishedAt = ix.clock.Now()

	metrics.SyncPassDuration.WithLabelValues(ns.Name).Observe(res.Duration.Seconds())
	if err != nil {
		res.Err = err.Error()
		metrics.SyncPasses.WithLabelValues(ns.Name, "failed").Inc()
		ns.logger.Warn("sync pass failed, cursor unchanged", zap.Error(err))
	} else {
		metrics.SyncPasses.WithLabelValues(ns.Name, "ok").Inc()
	}
	ix.record(res)
	return res, err
}

// syncNetwork is one fetch, normalize, persist, advance cycle. The cursor
// moves only after the ledger accepted the batch and every contract was
// fetched, so an interrupted or partial pass replays the same range. Rows the
// ledger rejects are counted as failed and do not hold the cursor.
func (ix *Indexer) syncNetwork(ctx context.Context, ns *networkState, logger *zap.Logger) (PassResult, error) {
	var res PassResult

	head, err := ns.Source.BlockNumber(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to read chain head: %w", err)
	}
	res.Head = head
	metrics.ChainHead.WithLabelValues(ns.Name).Set(float64(head))

	last, ok, err := ix.cursors.GetLastBlock(ctx, ns.Name)
	if err != nil {
		return res, fmt.Errorf("failed to read cursor: %w", err)
	}
	if !ok {
		last = ns.StartBlock
	}
	res.From = last

	if last >= head {
		res.UpToDate = true
		logger.Debug("nothing new to scan", zap.Uint64("cursor", last), zap.Uint64("head", head))
		return res, nil
	}

	to := BatchEnd(last, ns.BatchSize, head)
	res.To = to

	stamps, err := normalizer.NewTimestampCache(ns.Source, ix.cfg.TimestampCacheSize, ix.clock, logger)
	if err != nil {
		return res, err
	}

	blockTime := stamps.Resolver(ctx)

	var events []*ledger.Event
	for _, c := range ns.Contracts {
		logs, err := ns.Source.FetchLogs(ctx, c.Address, last, to)
		if err != nil {
			res.FetchErrors++
			logger.Warn("failed to fetch contract logs, continuing with next contract",
				zap.String("contract", c.Address.Hex()),
				zap.Uint64("from", last),
				zap.Uint64("to", to),
				zap.Error(err))
			continue
		}
		res.Logs += len(logs)

		for _, lg := range logs {
			ev, err := ns.Normalizer.Normalize(lg, c.ABI, blockTime)
			if err != nil {
				res.Skipped++
				metrics.EventsSkipped.WithLabelValues(ns.Name).Inc()
				logger.Debug("skipping log",
					zap.String("contract", c.Address.Hex()),
					zap.String("tx_hash", lg.TxHash.Hex()),
					zap.Uint("log_index", lg.Index),
					zap.Error(err))
				continue
			}
			events = append(events, ev)
		}
	}

	saved, err := ix.ledger.SaveEvents(ctx, events)
	res.Saved = saved
	metrics.EventsIngested.WithLabelValues(ns.Name, "inserted").Add(float64(saved.Inserted))
	metrics.EventsIngested.WithLabelValues(ns.Name, "duplicate").Add(float64(saved.Duplicates))
	metrics.EventsIngested.WithLabelValues(ns.Name, "failed").Add(float64(saved.Failed))
	if err != nil {
		return res, fmt.Errorf("failed to save events: %w", err)
	}

	if res.FetchErrors > 0 {
		logger.Warn("holding cursor until every contract fetch succeeds",
			zap.Int("failed_contracts", res.FetchErrors),
			zap.Uint64("cursor", last))
		return res, nil
	}

	advanced, err := ix.cursors.Advance(ctx, ns.Name, last, to+1)
	if err != nil {
		return res, fmt.Errorf("failed to advance cursor: %w", err)
	}
	if !advanced {
		logger.Warn("cursor moved during the pass, keeping the stored cursor",
			zap.Uint64("from", last),
			zap.Uint64("to", to))
		return res, nil
	}
	res.Advanced = true
	metrics.SyncCursor.WithLabelValues(ns.Name).Set(float64(to + 1))
	metrics.BlocksProcessed.WithLabelValues(ns.Name).Add(float64(to - last + 1))

	logger.Info("sync pass committed",
		zap.Uint64("from", last),
		zap.Uint64("to", to),
		zap.Uint64("head", head),
		zap.Int("logs", res.Logs),
		zap.Int("inserted", saved.Inserted),
		zap.Int("duplicates", saved.Duplicates),
		zap.Int("skipped", res.Skipped))
	return res, nil
}

// BatchEnd returns min(from+batch, head).
func BatchEnd(from, batch, head uint64) uint64 {
	if batch == 0 || from+batch > head || from+batch < from {
		return head
	}
	return from + batch
}

func (ix *Indexer) network(name string) (*networkState, error) {
	for _, ns := range ix.networks {
		if ns.Name == name {
			return ns, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, name)
}
