package indexer

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/chainsafe/crowdfund-indexer/pkg/ethereum/contracts"
	"github.com/chainsafe/crowdfund-indexer/pkg/ledger"
	"github.com/chainsafe/crowdfund-indexer/pkg/normalizer"
	"github.com/chainsafe/crowdfund-indexer/pkg/syncstate"
)

var errNotImplemented = errors.New("not implemented")

type mockSource struct {
	BlockNumberFunc    func(ctx context.Context) (uint64, error)
	BlockTimestampFunc func(ctx context.Context, number uint64) (time.Time, error)
	FetchLogsFunc      func(ctx context.Context, address common.Address, from, to uint64) ([]types.Log, error)
}

func (m *mockSource) BlockNumber(ctx context.Context) (uint64, error) {
	if m.BlockNumberFunc != nil {
		return m.BlockNumberFunc(ctx)
	}
	return 0, errNotImplemented
}

func (m *mockSource) BlockTimestamp(ctx context.Context, number uint64) (time.Time, error) {
	if m.BlockTimestampFunc != nil {
		return m.BlockTimestampFunc(ctx, number)
	}
	return time.Unix(int64(1700000000+number*12), 0).UTC(), nil
}

func (m *mockSource) FetchLogs(ctx context.Context, address common.Address, from, to uint64) ([]types.Log, error) {
	if m.FetchLogsFunc != nil {
		return m.FetchLogsFunc(ctx, address, from, to)
	}
	return nil, nil
}

// mockWriter delegates to an in-memory ledger unless SaveEventsFunc is set.
type mockWriter struct {
	*ledger.MemoryStore
	SaveEventsFunc func(ctx context.Context, events []*ledger.Event) (ledger.SaveResult, error)
}

func newMockWriter() *mockWriter {
	return &mockWriter{MemoryStore: ledger.NewMemoryStore()}
}

func (m *mockWriter) SaveEvents(ctx context.Context, events []*ledger.Event) (ledger.SaveResult, error) {
	if m.SaveEventsFunc != nil {
		return m.SaveEventsFunc(ctx, events)
	}
	return m.MemoryStore.SaveEvents(ctx, events)
}

// mockCursors delegates to an in-memory cursor store unless AdvanceFunc is set.
type mockCursors struct {
	*syncstate.MemoryStore
	AdvanceFunc func(ctx context.Context, network string, from, to uint64) (bool, error)
}

func newMockCursors() *mockCursors {
	return &mockCursors{MemoryStore: syncstate.NewMemoryStore()}
}

func (m *mockCursors) Advance(ctx context.Context, network string, from, to uint64) (bool, error) {
	if m.AdvanceFunc != nil {
		return m.AdvanceFunc(ctx, network, from, to)
	}
	return m.MemoryStore.Advance(ctx, network, from, to)
}

var (
	contractA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	contractB = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	campaign  = common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000000aa")
	donor     = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func crowdfundingABI(t *testing.T) *abi.ABI {
	t.Helper()
	parsed, err := contracts.ABI(contracts.KindCrowdfunding)
	if err != nil {
		t.Fatalf("failed to load abi: %v", err)
	}
	return parsed
}

// fundsLockedLog builds a FundsLocked log emitted by contract at block.
func fundsLockedLog(t *testing.T, contract common.Address, block uint64, index uint, amount int64) types.Log {
	t.Helper()
	ev := crowdfundingABI(t).Events[ledger.EventFundsLocked]
	data, err := ev.Inputs.NonIndexed().Pack(common.Address{}, big.NewInt(amount))
	if err != nil {
		t.Fatalf("failed to pack log data: %v", err)
	}
	return types.Log{
		Address:     contract,
		Topics:      []common.Hash{ev.ID, campaign, common.BytesToHash(donor.Bytes())},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block*1000 + uint64(index))),
		Index:       index,
	}
}

func testNetwork(t *testing.T, name string, src LogSource, addrs ...common.Address) Network {
	t.Helper()
	parsed := crowdfundingABI(t)
	n := Network{
		Name:       name,
		Source:     src,
		Normalizer: normalizer.New(name, nil, zap.NewNop()),
		BatchSize:  1000,
		StartBlock: 100,
	}
	for _, a := range addrs {
		n.Contracts = append(n.Contracts, Contract{Address: a, ABI: parsed})
	}
	return n
}
