package ethereum

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// NonceGasBackend is what a Signer needs from the chain to build a transactor.
type NonceGasBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Signer holds the key used for contract writes on one network.
type Signer struct {
	key         *ecdsa.PrivateKey
	address     common.Address
	chainID     *big.Int
	gasLimit    uint64
	maxGasPrice *big.Int
	logger      *zap.Logger
}

// NewSigner loads a hex private key. maxGasPrice is an optional wei cap.
func NewSigner(hexKey string, chainID int64, gasLimit uint64, maxGasPrice string, logger *zap.Logger) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to load private key: %w", err)
	}

	s := &Signer{
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		chainID:  big.NewInt(chainID),
		gasLimit: gasLimit,
		logger:   logger,
	}
	if maxGasPrice != "" {
		limit, ok := new(big.Int).SetString(maxGasPrice, 10)
		if !ok {
			return nil, fmt.Errorf("invalid max gas price %q", maxGasPrice)
		}
		s.maxGasPrice = limit
	}
	return s, nil
}

// Address returns the account that signs transactions.
func (s *Signer) Address() common.Address {
	return s.address
}

// Transactor returns signing options with a fresh nonce. The suggested gas
// price is capped at the configured maximum.
func (s *Signer) Transactor(ctx context.Context, backend NonceGasBackend) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(s.key, s.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	auth.Context = ctx

	nonce, err := backend.PendingNonceAt(ctx, s.address)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	auth.Nonce = new(big.Int).SetUint64(nonce)
	auth.GasLimit = s.gasLimit

	if s.maxGasPrice != nil {
		gasPrice, err := backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to suggest gas price: %w", err)
		}
		if gasPrice.Cmp(s.maxGasPrice) > 0 {
			s.logger.Warn("suggested gas price exceeds maximum",
				zap.String("suggested", gasPrice.String()),
				zap.String("max", s.maxGasPrice.String()))
			gasPrice = s.maxGasPrice
		}
		auth.GasPrice = gasPrice
	}
	return auth, nil
}

// DialHealthy returns a full ethclient for the first url whose chain id
// answers and matches. Used by the write path, which cannot fail over
// mid-transaction.
func DialHealthy(ctx context.Context, urls []string, chainID int64) (*ethclient.Client, error) {
	if len(urls) == 0 {
		return nil, ErrNoEndpoints
	}
	var errs error
	for _, u := range urls {
		c, err := ethclient.DialContext(ctx, u)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", redact(u), err))
			continue
		}
		id, err := c.ChainID(ctx)
		if err != nil {
			c.Close()
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", redact(u), err))
			continue
		}
		if chainID != 0 && id.Int64() != chainID {
			c.Close()
			errs = multierr.Append(errs, fmt.Errorf("%s: chain id %s, want %d", redact(u), id, chainID))
			continue
		}
		return c, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrAllEndpointsFailed, errs)
}
