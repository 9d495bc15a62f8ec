// Package contracts holds the interfaces of the crowdfunding contracts.
package contracts

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
)

// Contract interface kinds, matching the abi key of a monitored contract.
const (
	KindCrowdfunding = "crowdfunding"
	KindFactory      = "factory"
)

// CrowdfundingMetaData describes the escrow contract that emits campaign and
// funding events and records external contributions.
var CrowdfundingMetaData = &bind.MetaData{
	ABI: `[
	{"anonymous":false,"type":"event","name":"CampaignCreated","inputs":[
		{"indexed":true,"internalType":"bytes32","name":"id","type":"bytes32"},
		{"indexed":true,"internalType":"address","name":"creator","type":"address"},
		{"indexed":false,"internalType":"uint256","name":"goal","type":"uint256"},
		{"indexed":false,"internalType":"uint64","name":"deadline","type":"uint64"},
		{"indexed":false,"internalType":"string","name":"metadataURI","type":"string"}]},
	{"anonymous":false,"type":"event","name":"FundsLocked","inputs":[
		{"indexed":true,"internalType":"bytes32","name":"id","type":"bytes32"},
		{"indexed":true,"internalType":"address","name":"donor","type":"address"},
		{"indexed":false,"internalType":"address","name":"token","type":"address"},
		{"indexed":false,"internalType":"uint256","name":"amount","type":"uint256"}]},
	{"anonymous":false,"type":"event","name":"FundsReleased","inputs":[
		{"indexed":true,"internalType":"bytes32","name":"id","type":"bytes32"},
		{"indexed":true,"internalType":"address","name":"recipient","type":"address"},
		{"indexed":false,"internalType":"address","name":"token","type":"address"},
		{"indexed":false,"internalType":"uint256","name":"amount","type":"uint256"}]},
	{"anonymous":false,"type":"event","name":"MilestoneReleased","inputs":[
		{"indexed":true,"internalType":"bytes32","name":"id","type":"bytes32"},
		{"indexed":false,"internalType":"uint8","name":"milestoneIndex","type":"uint8"},
		{"indexed":false,"internalType":"uint256","name":"amount","type":"uint256"},
		{"indexed":false,"internalType":"address","name":"recipient","type":"address"}]},
	{"anonymous":false,"type":"event","name":"ExternalContributionRecorded","inputs":[
		{"indexed":true,"internalType":"bytes32","name":"campaignId","type":"bytes32"},
		{"indexed":false,"internalType":"struct Crowdfunding.ExternalRef","name":"ref","type":"tuple","components":[
			{"internalType":"bytes32","name":"hash","type":"bytes32"},
			{"internalType":"string","name":"source","type":"string"}]},
		{"indexed":false,"internalType":"uint256","name":"amount","type":"uint256"}]},
	{"type":"function","name":"pledged","stateMutability":"view","inputs":[
		{"internalType":"bytes32","name":"id","type":"bytes32"}],"outputs":[
		{"internalType":"uint256","name":"","type":"uint256"}]},
	{"type":"function","name":"recordExternalContribution","stateMutability":"nonpayable","inputs":[
		{"internalType":"bytes32","name":"campaignId","type":"bytes32"},
		{"internalType":"bytes32","name":"externalTxId","type":"bytes32"},
		{"internalType":"uint256","name":"amount","type":"uint256"}],"outputs":[]}
]`,
}

// FactoryMetaData describes the legacy factory, which identified campaigns by
// their deployed contract address.
var FactoryMetaData = &bind.MetaData{
	ABI: `[
	{"anonymous":false,"type":"event","name":"CampaignCreated","inputs":[
		{"indexed":true,"internalType":"address","name":"campaignId","type":"address"},
		{"indexed":true,"internalType":"address","name":"owner","type":"address"},
		{"indexed":false,"internalType":"uint256","name":"goal","type":"uint256"}]},
	{"anonymous":false,"type":"event","name":"FundsLocked","inputs":[
		{"indexed":true,"internalType":"address","name":"campaignId","type":"address"},
		{"indexed":true,"internalType":"address","name":"backer","type":"address"},
		{"indexed":false,"internalType":"uint256","name":"value","type":"uint256"}]}
]`,
}

// Method names used by the indexer and the oracle.
const (
	MethodPledged                    = "pledged"
	MethodRecordExternalContribution = "recordExternalContribution"
)

// ABI returns the parsed interface for a contract kind.
func ABI(kind string) (*abi.ABI, error) {
	switch kind {
	case KindCrowdfunding, "":
		return CrowdfundingMetaData.GetAbi()
	case KindFactory:
		return FactoryMetaData.GetAbi()
	default:
		return nil, fmt.Errorf("unknown contract interface %q", kind)
	}
}
