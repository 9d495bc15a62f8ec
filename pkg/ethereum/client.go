package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/chainsafe/crowdfund-indexer/internal/metrics"
)

var (
	// ErrNoEndpoints is returned when a network has no rpc url configured.
	ErrNoEndpoints = errors.New("no rpc endpoints configured")
	// ErrAllEndpointsFailed wraps the per-endpoint errors of a call that
	// failed on every candidate.
	ErrAllEndpointsFailed = errors.New("all rpc endpoints failed")
)

const defaultAttemptTimeout = 8 * time.Second

// Backend is the part of ethclient.Client used for reads.
type Backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

// Dialer opens a Backend for an rpc url.
type Dialer func(ctx context.Context, rawURL string) (Backend, error)

func dialEthclient(ctx context.Context, rawURL string) (Backend, error) {
	return ethclient.DialContext(ctx, rawURL)
}

type endpoint struct {
	url   string
	label string

	mu      sync.Mutex
	backend Backend
}

func (e *endpoint) get(ctx context.Context, dial Dialer) (Backend, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.backend != nil {
		return e.backend, nil
	}
	b, err := dial(ctx, e.url)
	if err != nil {
		return nil, err
	}
	e.backend = b
	return b, nil
}

// Client reads one EVM network through an ordered list of rpc endpoints.
// Every call tries the endpoints in order, each bounded by its own timeout,
// and fails only when all of them did.
type Client struct {
	network   string
	endpoints []*endpoint
	timeout   time.Duration
	dial      Dialer
	logger    *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithDialer replaces the ethclient dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		c.dial = d
	}
}

// WithAttemptTimeout bounds every single rpc attempt.
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient creates a failover client for one network. Connections are
// opened lazily on first use.
func NewClient(network string, urls []string, logger *zap.Logger, opts ...Option) (*Client, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w for network %s", ErrNoEndpoints, network)
	}
	c := &Client{
		network: network,
		timeout: defaultAttemptTimeout,
		dial:    dialEthclient,
		logger:  logger.With(zap.String("network", network)),
	}
	for _, u := range urls {
		c.endpoints = append(c.endpoints, &endpoint{url: u, label: redact(u)})
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Network returns the network name of the client.
func (c *Client) Network() string {
	return c.network
}

// Close releases every opened connection.
func (c *Client) Close() {
	for _, ep := range c.endpoints {
		ep.mu.Lock()
		if ep.backend != nil {
			ep.backend.Close()
			ep.backend = nil
		}
		ep.mu.Unlock()
	}
}

// BlockNumber returns the current chain head.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var head uint64
	err := c.do(ctx, "eth_blockNumber", func(ctx context.Context, b Backend) error {
		n, err := b.BlockNumber(ctx)
		if err != nil {
			return err
		}
		head = n
		return nil
	})
	return head, err
}

// BlockTimestamp returns the timestamp of block number.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (time.Time, error) {
	var ts time.Time
	err := c.do(ctx, "eth_getBlockByNumber", func(ctx context.Context, b Backend) error {
		h, err := b.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		if err != nil {
			return err
		}
		ts = time.Unix(int64(h.Time), 0).UTC()
		return nil
	})
	return ts, err
}

// FetchLogs returns the logs emitted by address in [from, to], both inclusive.
// An empty result is not an error.
func (c *Client) FetchLogs(ctx context.Context, address common.Address, from, to uint64) ([]types.Log, error) {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{address},
	}
	var logs []types.Log
	err := c.do(ctx, "eth_getLogs", func(ctx context.Context, b Backend) error {
		out, err := b.FilterLogs(ctx, q)
		if err != nil {
			return err
		}
		logs = out
		return nil
	})
	return logs, err
}

// CallContract executes a read-only call against the latest block.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	var out []byte
	err := c.do(ctx, "eth_call", func(ctx context.Context, b Backend) error {
		res, err := b.CallContract(ctx, msg, nil)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

func (c *Client) do(ctx context.Context, method string, fn func(context.Context, Backend) error) error {
	var errs error
	for i, ep := range c.endpoints {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.attempt(ctx, ep, fn)
		if err == nil {
			if i > 0 {
				c.logger.Debug("rpc call served by fallback endpoint",
					zap.String("method", method),
					zap.String("endpoint", ep.label))
			}
			return nil
		}

		metrics.RPCErrors.WithLabelValues(c.network, method).Inc()
		c.logger.Debug("rpc attempt failed",
			zap.String("method", method),
			zap.String("endpoint", ep.label),
			zap.Error(err))
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", ep.label, err))
	}
	return fmt.Errorf("%w: %s on %s: %v", ErrAllEndpointsFailed, method, c.network, errs)
}

func (c *Client) attempt(ctx context.Context, ep *endpoint, fn func(context.Context, Backend) error) error {
	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	b, err := ep.get(actx, c.dial)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	return fn(actx, b)
}

// redact keeps scheme and host so api keys in paths or queries stay out of logs.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "endpoint"
	}
	return u.Scheme + "://" + u.Host
}
