// Package normalizer turns raw contract logs into ledger events.
package normalizer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/chainsafe/crowdfund-indexer/pkg/ledger"
)

// ErrNotDecodable marks logs that do not match any event of the contract
// interface, or whose topics or data are malformed. Callers skip them.
var ErrNotDecodable = errors.New("log is not decodable")

// ExplorerLinker renders a transaction link for the network explorer.
type ExplorerLinker func(txHash string) string

// BlockTime resolves the timestamp of a block.
type BlockTime func(block uint64) time.Time

// Normalizer converts logs of one network.
type Normalizer struct {
	network  string
	explorer ExplorerLinker
	logger   *zap.Logger
}

// New creates a normalizer for network. explorer may be nil.
func New(network string, explorer ExplorerLinker, logger *zap.Logger) *Normalizer {
	if explorer == nil {
		explorer = func(string) string { return "" }
	}
	return &Normalizer{
		network:  network,
		explorer: explorer,
		logger:   logger.With(zap.String("network", network)),
	}
}

// Normalize decodes lg against contract and builds the ledger event.
// blockTime is only called for logs that decode.
func (n *Normalizer) Normalize(lg types.Log, contract *abi.ABI, blockTime BlockTime) (*ledger.Event, error) {
	if lg.Removed {
		return nil, fmt.Errorf("%w: log was removed by a reorg", ErrNotDecodable)
	}
	if len(lg.Topics) == 0 {
		return nil, fmt.Errorf("%w: no topics", ErrNotDecodable)
	}

	ev, err := contract.EventByID(lg.Topics[0])
	if err != nil {
		return nil, fmt.Errorf("%w: unknown signature %s", ErrNotDecodable, lg.Topics[0].Hex())
	}

	raw, err := decodeArgs(ev, lg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotDecodable, ev.Name, err)
	}

	args := make(map[string]any, len(raw))
	for k, v := range raw {
		args[k] = JSONSafe(v)
	}

	txHash := strings.ToLower(lg.TxHash.Hex())
	event := &ledger.Event{
		ID:              ledger.EventID(n.network, txHash, lg.Index),
		Network:         n.network,
		BlockNumber:     lg.BlockNumber,
		TransactionHash: txHash,
		LogIndex:        lg.Index,
		EventName:       ev.Name,
		Args:            args,
		ExplorerURL:     n.explorer(txHash),
		CampaignID:      ledger.CampaignIDFromArgs(args),
		BlockTimestamp:  blockTime(lg.BlockNumber).UTC(),
	}

	if event.EventName == ledger.EventCampaignCreated && ledger.IsAddressShaped(event.CampaignID) {
		n.logger.Warn("campaign id has the shape of an address, expected a 32-byte id",
			zap.String("campaign_id", event.CampaignID),
			zap.String("event_id", event.ID),
			zap.Uint64("block", event.BlockNumber))
	}
	return event, nil
}

func decodeArgs(ev *abi.Event, lg types.Log) (map[string]any, error) {
	out := make(map[string]any, len(ev.Inputs))

	if err := ev.Inputs.UnpackIntoMap(out, lg.Data); err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}

	var indexed abi.Arguments
	for _, in := range ev.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	if len(lg.Topics)-1 != len(indexed) {
		return nil, fmt.Errorf("expected %d indexed topics, got %d", len(indexed), len(lg.Topics)-1)
	}
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(out, indexed, lg.Topics[1:]); err != nil {
			return nil, fmt.Errorf("topics: %w", err)
		}
	}
	return out, nil
}
