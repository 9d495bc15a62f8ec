package bitcoin

import (
	"context"
	"strings"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AnonymousBacker is reported when a contribution's first input has no
// resolvable address.
const AnonymousBacker = "anonymous"

const defaultBatchWorkers = 4

// SatsToBTC converts satoshis to an exact BTC decimal.
func SatsToBTC(sats int64) decimal.Decimal {
	return decimal.New(sats, -8)
}

// Backer is one transaction that paid into a campaign address.
type Backer struct {
	Address    string          `json:"address"`
	TxID       string          `json:"txid"`
	AmountSats int64           `json:"amount_sats"`
	Amount     decimal.Decimal `json:"amount_btc"`
	Confirmed  bool            `json:"confirmed"`
	BlockTime  *time.Time      `json:"block_time,omitempty"`
}

// AddressStats aggregates what an address received.
type AddressStats struct {
	Address string `json:"address"`

	ConfirmedReceivedSats int64 `json:"confirmed_received_sats"`
	UnconfirmedSats       int64 `json:"unconfirmed_sats"`
	TotalReceivedSats     int64 `json:"total_received_sats"`
	BalanceSats           int64 `json:"balance_sats"`

	ConfirmedReceived decimal.Decimal `json:"confirmed_received_btc"`
	Unconfirmed       decimal.Decimal `json:"unconfirmed_btc"`
	TotalReceived     decimal.Decimal `json:"total_received_btc"`
	Balance           decimal.Decimal `json:"balance_btc"`

	HasPending bool     `json:"has_pending"`
	TxCount    int64    `json:"tx_count"`
	Backers    []Backer `json:"backers,omitempty"`
}

// BatchEntry is one campaign of a BatchStats call. Exactly one of Stats and
// Error is set.
type BatchEntry struct {
	InternalID string        `json:"internal_id"`
	Address    string        `json:"address,omitempty"`
	Stats      *AddressStats `json:"stats,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Monitor reads campaign address balances through an Explorer.
type Monitor struct {
	deriver  *Deriver
	explorer Explorer
	workers  int
	logger   *zap.Logger
}

// NewMonitor creates a monitor. workers bounds BatchStats concurrency.
func NewMonitor(deriver *Deriver, explorer Explorer, workers int, logger *zap.Logger) *Monitor {
	if workers <= 0 {
		workers = defaultBatchWorkers
	}
	return &Monitor{
		deriver:  deriver,
		explorer: explorer,
		workers:  workers,
		logger:   logger.Named("btc-monitor"),
	}
}

// Deriver returns the address deriver the monitor uses.
func (m *Monitor) Deriver() *Deriver {
	return m.deriver
}

// Summary returns the totals of address without its backers.
func (m *Monitor) Summary(ctx context.Context, address string) (*AddressStats, error) {
	info, err := m.explorer.Address(ctx, address)
	if err != nil {
		return nil, err
	}
	return summarize(address, info), nil
}

// Stats returns the totals of address together with its backers.
func (m *Monitor) Stats(ctx context.Context, address string) (*AddressStats, error) {
	stats, err := m.Summary(ctx, address)
	if err != nil {
		return nil, err
	}
	txs, err := m.explorer.AddressTxs(ctx, address)
	if err != nil {
		return nil, err
	}
	stats.Backers = Backers(address, txs)
	return stats, nil
}

// CampaignStats derives the campaign address and returns its full stats.
func (m *Monitor) CampaignStats(ctx context.Context, internalID string) (*AddressStats, error) {
	address, err := m.deriver.DeriveAddress(internalID)
	if err != nil {
		return nil, err
	}
	return m.Stats(ctx, address)
}

// BatchStats returns summaries for many campaigns. A failing campaign gets an
// Error entry and does not fail the others. Output order follows ids.
func (m *Monitor) BatchStats(ctx context.Context, ids []string) []BatchEntry {
	entries := make([]BatchEntry, len(ids))
	if len(ids) == 0 {
		return entries
	}

	wp := workerpool.New(m.workers)
	for i, id := range ids {
		i, id := i, id
		wp.Submit(func() {
			entries[i] = m.batchEntry(ctx, id)
		})
	}
	wp.StopWait()
	return entries
}

func (m *Monitor) batchEntry(ctx context.Context, id string) BatchEntry {
	entry := BatchEntry{InternalID: id}

	address, err := m.deriver.DeriveAddress(id)
	if err != nil {
		entry.Error = err.Error()
		return entry
	}
	entry.Address = address

	stats, err := m.Summary(ctx, address)
	if err != nil {
		m.logger.Warn("failed to fetch campaign address stats",
			zap.String("internal_id", id),
			zap.String("address", address),
			zap.Error(err))
		entry.Error = err.Error()
		return entry
	}
	entry.Stats = stats
	return entry
}

func summarize(address string, info *AddressInfo) *AddressStats {
	chain, mempool := info.ChainStats, info.MempoolStats

	unconfirmed := mempool.FundedTxoSum - mempool.SpentTxoSum
	total := chain.FundedTxoSum + mempool.FundedTxoSum
	balance := chain.FundedTxoSum - chain.SpentTxoSum + unconfirmed

	return &AddressStats{
		Address:               address,
		ConfirmedReceivedSats: chain.FundedTxoSum,
		UnconfirmedSats:       unconfirmed,
		TotalReceivedSats:     total,
		BalanceSats:           balance,
		ConfirmedReceived:     SatsToBTC(chain.FundedTxoSum),
		Unconfirmed:           SatsToBTC(unconfirmed),
		TotalReceived:         SatsToBTC(total),
		Balance:               SatsToBTC(balance),
		HasPending:            mempool.TxCount > 0 || mempool.FundedTxoSum > 0,
		TxCount:               chain.TxCount + mempool.TxCount,
	}
}

// Backers attributes every transaction that paid address to the address of
// its first input. Transactions that paid nothing to address are dropped.
func Backers(address string, txs []Tx) []Backer {
	backers := make([]Backer, 0, len(txs))
	for _, tx := range txs {
		var received int64
		for _, out := range tx.Vout {
			if out.ScriptPubKeyAddress == address {
				received += out.Value
			}
		}
		if received <= 0 {
			continue
		}

		from := AnonymousBacker
		if len(tx.Vin) > 0 && tx.Vin[0].Prevout != nil {
			if a := strings.TrimSpace(tx.Vin[0].Prevout.ScriptPubKeyAddress); a != "" {
				from = a
			}
		}

		b := Backer{
			Address:    from,
			TxID:       tx.TxID,
			AmountSats: received,
			Amount:     SatsToBTC(received),
			Confirmed:  tx.Status.Confirmed,
		}
		if tx.Status.Confirmed && tx.Status.BlockTime > 0 {
			t := time.Unix(tx.Status.BlockTime, 0).UTC()
			b.BlockTime = &t
		}
		backers = append(backers, b)
	}
	return backers
}
