package indexer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chainsafe/crowdfund-indexer/pkg/config"
	"github.com/chainsafe/crowdfund-indexer/pkg/ethereum"
	"github.com/chainsafe/crowdfund-indexer/pkg/oracle"
)

// NewOracleBridge dials the oracle network and binds the registry contract.
// The returned func closes the connection.
func NewOracleBridge(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*oracle.EVMBridge, func(), error) {
	oc := cfg.Oracle
	if !oc.Enabled {
		return nil, nil, fmt.Errorf("%w: oracle.enabled is false", config.ErrInvalid)
	}
	if oc.RegistryAddress == "" {
		return nil, nil, oracle.ErrRegistryNotConfigured
	}
	nc, ok := cfg.Network(oc.Network)
	if !ok {
		return nil, nil, fmt.Errorf("%w: oracle network %q is not configured", config.ErrInvalid, oc.Network)
	}

	signer, err := ethereum.NewSigner(oc.PrivateKey, nc.ChainID, oc.GasLimit, oc.MaxGasPrice, logger)
	if err != nil {
		return nil, nil, err
	}
	client, err := ethereum.DialHealthy(ctx, nc.RPCURLs, nc.ChainID)
	if err != nil {
		return nil, nil, fmt.Errorf("dial oracle network %s: %w", nc.Name, err)
	}

	bridge, err := oracle.NewEVMBridge(client, oc.RegistryAddress, signer, logger)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	logger.Info("oracle bridge ready",
		zap.String("network", nc.Name),
		zap.String("registry", oc.RegistryAddress),
		zap.String("signer", signer.Address().Hex()))
	return bridge, client.Close, nil
}
