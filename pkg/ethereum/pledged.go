package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsafe/crowdfund-indexer/pkg/ethereum/contracts"
)

// ContractCaller is the read side of Client.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

// PledgedReader reads the on-chain pledged total of a campaign.
type PledgedReader struct {
	caller   ContractCaller
	contract common.Address
	abi      *abi.ABI
}

// NewPledgedReader binds the reader to one crowdfunding contract.
func NewPledgedReader(caller ContractCaller, contract common.Address) (*PledgedReader, error) {
	parsed, err := contracts.CrowdfundingMetaData.GetAbi()
	if err != nil {
		return nil, fmt.Errorf("failed to parse crowdfunding abi: %w", err)
	}
	return &PledgedReader{caller: caller, contract: contract, abi: parsed}, nil
}

// Pledged returns pledged(id) in the chain's smallest unit.
func (r *PledgedReader) Pledged(ctx context.Context, campaignID string) (*big.Int, error) {
	id, err := CampaignIDBytes(campaignID)
	if err != nil {
		return nil, err
	}
	input, err := r.abi.Pack(contracts.MethodPledged, id)
	if err != nil {
		return nil, fmt.Errorf("failed to pack pledged call: %w", err)
	}

	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.contract, Data: input})
	if err != nil {
		return nil, fmt.Errorf("failed to call pledged: %w", err)
	}
	values, err := r.abi.Unpack(contracts.MethodPledged, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack pledged: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("pledged returned %d values", len(values))
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("pledged returned %T", values[0])
	}
	return amount, nil
}

// CampaignIDBytes parses a 0x-prefixed 32-byte campaign id.
func CampaignIDBytes(campaignID string) ([32]byte, error) {
	var id [32]byte
	raw := common.FromHex(campaignID)
	if len(raw) != len(id) {
		return id, fmt.Errorf("campaign id %q is not 32 bytes", campaignID)
	}
	copy(id[:], raw)
	return id, nil
}
