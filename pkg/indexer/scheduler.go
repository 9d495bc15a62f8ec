package indexer

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/crowdfund-indexer/pkg/ledger"
)

// PassResult summarizes one network pass.
type PassResult struct {
	Network     string            `json:"network"`
	Head        uint64            `json:"head"`
	From        uint64            `json:"from"`
	To          uint64            `json:"to"`
	UpToDate    bool              `json:"up_to_date"`
	Logs        int               `json:"logs"`
	Skipped     int               `json:"skipped"`
	FetchErrors int               `json:"fetch_errors"`
	Saved       ledger.SaveResult `json:"saved"`
	Advanced    bool              `json:"advanced"`
	Duration    time.Duration     `json:"duration"`
	FinishedAt  time.Time         `json:"finished_at"`
	Err         string            `json:"error,omitempty"`
}

// Start runs a pass immediately and then on every interval tick until Stop
// is called or ctx ends. Ticks that find a network still in flight skip it.
func (ix *Indexer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	ix.cancel = cancel

	interval := ix.cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	ix.wg.Add(1)
	go func() {
		defer ix.wg.Done()

		ticker := ix.clock.Ticker(interval)
		defer ticker.Stop()

		ix.logger.Info("started periodic sync",
			zap.Duration("interval", interval),
			zap.Int("networks", len(ix.networks)))

		ix.dispatch(ctx)
		for {
			select {
			case <-ticker.C:
				ix.dispatch(ctx)
			case <-ctx.Done():
				ix.logger.Info("stopping periodic sync")
				return
			}
		}
	}()
}

// dispatch starts a pass without waiting for it, so a slow network does not
// delay the ticks of the others.
func (ix *Indexer) dispatch(ctx context.Context) {
	ix.wg.Add(1)
	go func() {
		defer ix.wg.Done()
		if err := ix.RunSyncPass(ctx); err != nil && ctx.Err() == nil {
			ix.logger.Debug("sync pass finished with network failures", zap.Error(err))
		}
	}()
}

// Stop cancels running passes and waits for them to return.
func (ix *Indexer) Stop() {
	ix.stopOnce.Do(func() {
		if ix.cancel != nil {
			ix.cancel()
		}
	})
	ix.wg.Wait()
}

func (ix *Indexer) record(res PassResult) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.status[res.Network] = res
}

// Status returns the last pass result of every network that ran.
func (ix *Indexer) Status() []PassResult {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]PassResult, 0, len(ix.status))
	for _, r := range ix.status {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Network < out[j].Network })
	return out
}

// Ready reports whether at least one full pass over all networks finished.
func (ix *Indexer) Ready() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return !ix.lastPass.IsZero()
}

// Networks returns the configured network names.
func (ix *Indexer) Networks() []string {
	names := make([]string, len(ix.networks))
	for i, ns := range ix.networks {
		names[i] = ns.Name
	}
	return names
}
