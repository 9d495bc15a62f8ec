package ethereum

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/crowdfund-indexer/pkg/ethereum/contracts"
)

const testCampaignID = "0x00000000000000000000000000000000000000000000000000000000000000aa"

func TestCampaignIDBytes(t *testing.T) {
	id, err := CampaignIDBytes(testCampaignID)
	require.NoError(t, err)
	assert.Equal(t, byte(0xaa), id[31])

	_, err = CampaignIDBytes("0x00000000000000000000000000000000000000aa")
	assert.Error(t, err, "address-shaped ids are not 32 bytes")
}

func TestPledgedReader(t *testing.T) {
	parsed, err := contracts.CrowdfundingMetaData.GetAbi()
	require.NoError(t, err)
	contract := common.HexToAddress("0x0000000000000000000000000000000000000001")

	want, _ := new(big.Int).SetString("5000000000000000000", 10)
	caller := &mockCaller{
		CallContractFunc: func(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
			if *msg.To != contract {
				return nil, errors.New("wrong contract")
			}
			if !assert.Equal(t, parsed.Methods[contracts.MethodPledged].ID, msg.Data[:4]) {
				return nil, errors.New("wrong selector")
			}
			return parsed.Methods[contracts.MethodPledged].Outputs.Pack(want)
		},
	}

	r, err := NewPledgedReader(caller, contract)
	require.NoError(t, err)

	got, err := r.Pledged(context.Background(), testCampaignID)
	require.NoError(t, err)
	assert.Equal(t, 0, want.Cmp(got), "got %s", got)

	_, err = r.Pledged(context.Background(), "0x01")
	assert.Error(t, err)
}

func TestPledgedReader_CallError(t *testing.T) {
	r, err := NewPledgedReader(&mockCaller{
		CallContractFunc: func(context.Context, ethereum.CallMsg) ([]byte, error) {
			return nil, errors.New("execution reverted")
		},
	}, common.Address{})
	require.NoError(t, err)

	_, err = r.Pledged(context.Background(), testCampaignID)
	assert.ErrorContains(t, err, "execution reverted")
}

const testKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func TestSigner_Transactor(t *testing.T) {
	s, err := NewSigner("0x"+testKey, 11155111, 300000, "2000000000", zap.NewNop())
	require.NoError(t, err)

	key, err := crypto.HexToECDSA(testKey)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), s.Address())

	opts, err := s.Transactor(context.Background(), &mockNonceGas{nonce: 7, gasPrice: big.NewInt(5000000000)})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), opts.Nonce.Uint64())
	assert.Equal(t, uint64(300000), opts.GasLimit)
	assert.Equal(t, int64(2000000000), opts.GasPrice.Int64(), "gas price is capped")

	opts, err = s.Transactor(context.Background(), &mockNonceGas{nonce: 8, gasPrice: big.NewInt(1000)})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), opts.GasPrice.Int64())
}

func TestSigner_Errors(t *testing.T) {
	_, err := NewSigner("nothex", 1, 1, "", zap.NewNop())
	assert.Error(t, err)

	_, err = NewSigner(testKey, 1, 1, "lots", zap.NewNop())
	assert.Error(t, err)

	s, err := NewSigner(testKey, 1, 1, "", zap.NewNop())
	require.NoError(t, err)
	_, err = s.Transactor(context.Background(), &mockNonceGas{err: errors.New("nonce unavailable")})
	assert.ErrorContains(t, err, "nonce unavailable")
}
