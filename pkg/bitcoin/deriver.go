// Package bitcoin maps campaigns onto derived Bitcoin addresses and reads
// what those addresses received from a public block explorer.
package bitcoin

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// Configuration errors. None of them has a fallback: deriving from the
// wrong key or network would send funds to addresses nobody watches.
var (
	ErrMissingExtendedKey = errors.New("no extended public key configured")
	ErrNetworkMismatch    = errors.New("extended key network does not match the configured bitcoin network")
	ErrPrivateExtendedKey = errors.New("extended key must be a public key")
	ErrUnknownNetwork     = errors.New("unknown bitcoin network")
	ErrEmptyInternalID    = errors.New("campaign internal id is empty")
)

// DerivationBranch is the first, fixed level under the platform key.
const DerivationBranch uint32 = 0

// NetParams returns the chain parameters of "mainnet" or "testnet".
func NetParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, network)
	}
}

// Deriver derives one P2WPKH address per campaign from the platform xpub.
// It holds no mutable state and is safe for concurrent use.
type Deriver struct {
	branch *hdkeychain.ExtendedKey
	params *chaincfg.Params
}

// NewDeriver parses xpub and checks it belongs to network.
func NewDeriver(xpub, network string) (*Deriver, error) {
	xpub = strings.TrimSpace(xpub)
	if xpub == "" {
		return nil, ErrMissingExtendedKey
	}
	params, err := NetParams(network)
	if err != nil {
		return nil, err
	}

	key, err := hdkeychain.NewKeyFromString(xpub)
	if err != nil {
		return nil, fmt.Errorf("failed to parse extended key: %w", err)
	}
	if key.IsPrivate() {
		return nil, ErrPrivateExtendedKey
	}
	if !key.IsForNet(params) {
		return nil, fmt.Errorf("%w: configured %s", ErrNetworkMismatch, params.Name)
	}

	branch, err := key.Derive(DerivationBranch)
	if err != nil {
		return nil, fmt.Errorf("failed to derive branch %d: %w", DerivationBranch, err)
	}
	return &Deriver{branch: branch, params: params}, nil
}

// IndexFor maps an internal id to a non-hardened child index: the first four
// bytes of its SHA-256, big endian, modulo 2^31.
func IndexFor(internalID string) uint32 {
	sum := sha256.Sum256([]byte(internalID))
	return binary.BigEndian.Uint32(sum[:4]) % hdkeychain.HardenedKeyStart
}

// DeriveAddress returns the bech32 address of m/0/IndexFor(internalID).
func (d *Deriver) DeriveAddress(internalID string) (string, error) {
	if internalID == "" {
		return "", ErrEmptyInternalID
	}

	child, err := d.branch.Derive(IndexFor(internalID))
	if err != nil {
		return "", fmt.Errorf("failed to derive child key: %w", err)
	}
	pub, err := child.ECPubKey()
	if err != nil {
		return "", fmt.Errorf("failed to read child public key: %w", err)
	}
	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), d.params)
	if err != nil {
		return "", fmt.Errorf("failed to encode address: %w", err)
	}
	return addr.EncodeAddress(), nil
}

// Network returns the chain parameter name, e.g. "mainnet" or "testnet3".
func (d *Deriver) Network() string {
	return d.params.Name
}
