package ethereum

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var errNotImplemented = errors.New("not implemented")

type mockBackend struct {
	BlockNumberFunc    func(ctx context.Context) (uint64, error)
	HeaderByNumberFunc func(ctx context.Context, number *big.Int) (*types.Header, error)
	FilterLogsFunc     func(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	CallContractFunc   func(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	closed             int
}

func (m *mockBackend) BlockNumber(ctx context.Context) (uint64, error) {
	if m.BlockNumberFunc != nil {
		return m.BlockNumberFunc(ctx)
	}
	return 0, errNotImplemented
}

func (m *mockBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if m.HeaderByNumberFunc != nil {
		return m.HeaderByNumberFunc(ctx, number)
	}
	return nil, errNotImplemented
}

func (m *mockBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if m.FilterLogsFunc != nil {
		return m.FilterLogsFunc(ctx, q)
	}
	return nil, errNotImplemented
}

func (m *mockBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if m.CallContractFunc != nil {
		return m.CallContractFunc(ctx, msg, blockNumber)
	}
	return nil, errNotImplemented
}

func (m *mockBackend) Close() {
	m.closed++
}

type mockCaller struct {
	CallContractFunc func(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

func (m *mockCaller) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return m.CallContractFunc(ctx, msg)
}

type mockNonceGas struct {
	nonce    uint64
	gasPrice *big.Int
	err      error
}

func (m *mockNonceGas) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return m.nonce, m.err
}

func (m *mockNonceGas) SuggestGasPrice(context.Context) (*big.Int, error) {
	return m.gasPrice, m.err
}
