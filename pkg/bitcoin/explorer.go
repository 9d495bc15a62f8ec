package bitcoin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/chainsafe/crowdfund-indexer/internal/metrics"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultRetryInterval  = 300 * time.Millisecond
	maxResponseBytes      = 8 << 20
)

// TxoStats are the funded and spent output totals of one address, in satoshis.
type TxoStats struct {
	FundedTxoCount int64 `json:"funded_txo_count"`
	FundedTxoSum   int64 `json:"funded_txo_sum"`
	SpentTxoCount  int64 `json:"spent_txo_count"`
	SpentTxoSum    int64 `json:"spent_txo_sum"`
	TxCount        int64 `json:"tx_count"`
}

// AddressInfo is the response of GET /address/{address}.
type AddressInfo struct {
	Address      string   `json:"address"`
	ChainStats   TxoStats `json:"chain_stats"`
	MempoolStats TxoStats `json:"mempool_stats"`
}

// Output is a transaction output.
type Output struct {
	ScriptPubKeyAddress string `json:"scriptpubkey_address"`
	Value               int64  `json:"value"`
}

// Input is a transaction input with its resolved previous output.
type Input struct {
	TxID    string  `json:"txid"`
	Vout    uint32  `json:"vout"`
	Prevout *Output `json:"prevout"`
}

// TxStatus tells whether and where a transaction was mined.
type TxStatus struct {
	Confirmed   bool  `json:"confirmed"`
	BlockHeight int64 `json:"block_height"`
	BlockTime   int64 `json:"block_time"`
}

// Tx is one entry of GET /address/{address}/txs.
type Tx struct {
	TxID   string   `json:"txid"`
	Vin    []Input  `json:"vin"`
	Vout   []Output `json:"vout"`
	Status TxStatus `json:"status"`
}

// StatusError is a non-2xx explorer response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("explorer returned status %d: %s", e.Code, e.Body)
}

// Explorer is the block explorer API the monitor reads.
type Explorer interface {
	Address(ctx context.Context, address string) (*AddressInfo, error)
	AddressTxs(ctx context.Context, address string) ([]Tx, error)
}

// EsploraClient talks to an Esplora compatible HTTP API.
type EsploraClient struct {
	baseURL       string
	httpClient    *http.Client
	maxRetries    uint64
	retryInterval time.Duration
	logger        *zap.Logger
}

// EsploraOption customizes an EsploraClient.
type EsploraOption func(*EsploraClient)

// WithHTTPClient replaces the http client.
func WithHTTPClient(c *http.Client) EsploraOption {
	return func(e *EsploraClient) {
		e.httpClient = c
	}
}

// WithRetry sets the retry budget of every request. Only transport errors,
// 429 and 5xx are retried.
func WithRetry(maxRetries uint64, interval time.Duration) EsploraOption {
	return func(e *EsploraClient) {
		e.maxRetries = maxRetries
		if interval > 0 {
			e.retryInterval = interval
		}
	}
}

// NewEsploraClient creates a client for baseURL, e.g. https://blockstream.info/api.
func NewEsploraClient(baseURL string, timeout time.Duration, logger *zap.Logger, opts ...EsploraOption) *EsploraClient {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	c := &EsploraClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{Timeout: timeout},
		maxRetries:    2,
		retryInterval: defaultRetryInterval,
		logger:        logger.Named("esplora"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Address fetches confirmed and mempool output totals.
func (c *EsploraClient) Address(ctx context.Context, address string) (*AddressInfo, error) {
	var info AddressInfo
	if err := c.getJSON(ctx, "address", "/address/"+url.PathEscape(address), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// AddressTxs fetches the transaction history of address, mempool first.
func (c *EsploraClient) AddressTxs(ctx context.Context, address string) ([]Tx, error) {
	var txs []Tx
	if err := c.getJSON(ctx, "address_txs", "/address/"+url.PathEscape(address)+"/txs", &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

func (c *EsploraClient) getJSON(ctx context.Context, endpoint, path string, out any) error {
	target := c.baseURL + path

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request %s: %w", path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			statusErr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}

		if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode %s: %w", path, err))
		}
		return nil
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.retryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, c.maxRetries), ctx)

	notify := func(err error, wait time.Duration) {
		c.logger.Debug("explorer request failed, retrying",
			zap.String("path", path),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		metrics.ExplorerRequests.WithLabelValues(endpoint, statusLabel(err)).Inc()
		return err
	}
	metrics.ExplorerRequests.WithLabelValues(endpoint, "ok").Inc()
	return nil
}

func statusLabel(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return strconv.Itoa(se.Code)
	}
	return "error"
}
