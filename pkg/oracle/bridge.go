// Package oracle records Bitcoin contributions on the EVM crowdfunding
// contract so on-chain milestone logic can count them.
package oracle

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chainsafe/crowdfund-indexer/internal/metrics"
	"github.com/chainsafe/crowdfund-indexer/pkg/ethereum"
	"github.com/chainsafe/crowdfund-indexer/pkg/ethereum/contracts"
)

var (
	ErrUnconfirmed           = errors.New("contribution is not confirmed")
	ErrRegistryNotConfigured = errors.New("oracle registry address is not configured")
	ErrInvalidContribution   = errors.New("invalid contribution")
)

// satoshiScale lifts 8-decimal satoshis to the 18-decimal EVM native unit.
var satoshiScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18-8), nil)

// Contribution is a Bitcoin payment into a campaign address.
type Contribution struct {
	CampaignID  string
	BitcoinTxID string
	Satoshis    int64
	Confirmed   bool
}

// Bridge submits contributions to the EVM side and returns the tx hash.
type Bridge interface {
	RecordContribution(ctx context.Context, c Contribution) (string, error)
}

// ScaleSatoshis converts satoshis to the EVM chain's native decimal scale.
func ScaleSatoshis(sats int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(sats), satoshiScale)
}

// EVMBridge calls recordExternalContribution on the registry contract.
//
// Contributions are not verified against the Bitcoin chain here. Callers
// decide what is confirmed, and every submission is logged as unverified.
type EVMBridge struct {
	backend  bind.ContractBackend
	contract *bind.BoundContract
	registry common.Address
	signer   *ethereum.Signer
	logger   *zap.Logger
}

// NewEVMBridge binds the registry contract at registry.
func NewEVMBridge(backend bind.ContractBackend, registry string, signer *ethereum.Signer, logger *zap.Logger) (*EVMBridge, error) {
	if !common.IsHexAddress(registry) {
		return nil, ErrRegistryNotConfigured
	}
	parsed, err := contracts.CrowdfundingMetaData.GetAbi()
	if err != nil {
		return nil, fmt.Errorf("failed to parse crowdfunding abi: %w", err)
	}
	addr := common.HexToAddress(registry)
	return &EVMBridge{
		backend:  backend,
		contract: bind.NewBoundContract(addr, *parsed, backend, backend, backend),
		registry: addr,
		signer:   signer,
		logger:   logger.Named("oracle"),
	}, nil
}

// RecordContribution submits c and returns the transaction hash. It does not
// wait for the transaction to be mined.
func (b *EVMBridge) RecordContribution(ctx context.Context, c Contribution) (string, error) {
	if !c.Confirmed {
		return "", ErrUnconfirmed
	}
	campaignID, btcTxID, err := validate(c)
	if err != nil {
		return "", err
	}
	amount := ScaleSatoshis(c.Satoshis)

	logger := b.logger.With(
		zap.String("submission_id", uuid.NewString()),
		zap.String("campaign_id", c.CampaignID),
		zap.String("btc_txid", c.BitcoinTxID),
		zap.Int64("satoshis", c.Satoshis),
		zap.String("amount_wei", amount.String()),
		zap.String("registry", b.registry.Hex()),
		zap.Bool("verified", false))
	logger.Info("submitting external contribution")

	opts, err := b.signer.Transactor(ctx, b.backend)
	if err != nil {
		metrics.OracleSubmissions.WithLabelValues("error").Inc()
		logger.Error("failed to prepare contribution transaction", zap.Error(err))
		return "", err
	}

	tx, err := b.contract.Transact(opts, contracts.MethodRecordExternalContribution, campaignID, btcTxID, amount)
	if err != nil {
		metrics.OracleSubmissions.WithLabelValues("error").Inc()
		logger.Error("failed to submit contribution", zap.Error(err))
		return "", fmt.Errorf("failed to submit contribution: %w", err)
	}

	metrics.OracleSubmissions.WithLabelValues("submitted").Inc()
	logger.Info("contribution submitted", zap.String("tx_hash", tx.Hash().Hex()))
	return tx.Hash().Hex(), nil
}

func validate(c Contribution) (campaignID, btcTxID [32]byte, err error) {
	if c.Satoshis <= 0 {
		return campaignID, btcTxID, fmt.Errorf("%w: amount must be positive", ErrInvalidContribution)
	}
	campaignID, err = ethereum.CampaignIDBytes(c.CampaignID)
	if err != nil {
		return campaignID, btcTxID, fmt.Errorf("%w: %v", ErrInvalidContribution, err)
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(c.BitcoinTxID, "0x"))
	if err != nil || len(raw) != len(btcTxID) {
		return campaignID, btcTxID, fmt.Errorf("%w: bitcoin txid %q is not 32 bytes of hex", ErrInvalidContribution, c.BitcoinTxID)
	}
	copy(btcTxID[:], raw)
	return campaignID, btcTxID, nil
}
