package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
indexer:
  networks:
    - name: sepolia
      rpc_urls: ["https://rpc.example.org"]
      contracts:
        - address: "0x00000000000000000000000000000000000000aa"
`

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Indexer.Interval)
	assert.Equal(t, 8*time.Second, cfg.Indexer.RPCTimeout)
	assert.False(t, cfg.Indexer.ResetOnEmptyRegistry)
	assert.Equal(t, 1024, cfg.Indexer.TimestampCacheSize)

	require.Len(t, cfg.Indexer.Networks, 1)
	n := cfg.Indexer.Networks[0]
	assert.Equal(t, uint64(1000), n.BatchSize)
	require.Len(t, n.Contracts, 1)
	assert.Equal(t, ABICrowdfunding, n.Contracts[0].ABI)

	assert.Equal(t, BitcoinTestnet, cfg.Bitcoin.Network)
	assert.Equal(t, uint64(2), cfg.Bitcoin.MaxRetries)
	assert.Equal(t, 4, cfg.Bitcoin.BatchWorkers)
	assert.Equal(t, uint64(300000), cfg.Oracle.GasLimit)
	assert.Equal(t, 30*time.Second, cfg.Shutdown.Timeout)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{
			name: "no networks",
			raw:  "indexer: {}\n",
		},
		{
			name: "bad contract address",
			raw: `
indexer:
  networks:
    - name: sepolia
      rpc_urls: ["https://rpc.example.org"]
      contracts:
        - address: "not-an-address"
`,
		},
		{
			name: "duplicate network names",
			raw: `
indexer:
  networks:
    - name: sepolia
      rpc_urls: ["https://a.example.org"]
    - name: sepolia
      rpc_urls: ["https://b.example.org"]
`,
		},
		{
			name: "unknown abi kind",
			raw: `
indexer:
  networks:
    - name: sepolia
      rpc_urls: ["https://rpc.example.org"]
      contracts:
        - address: "0x00000000000000000000000000000000000000aa"
          abi: erc20
`,
		},
		{
			name: "oracle enabled without registry",
			raw: minimalConfig + `
oracle:
  enabled: true
  network: sepolia
  private_key: "0x01"
`,
		},
		{
			name: "oracle on unknown network",
			raw: minimalConfig + `
oracle:
  enabled: true
  network: mainnet
  registry_address: "0x00000000000000000000000000000000000000bb"
  private_key: "0x01"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid), "expected ErrInvalid, got %v", err)
		})
	}
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv(EnvDatabasePassword, "s3cret")
	t.Setenv(EnvBitcoinXPub, "tpubexample")

	cfg, err := Parse([]byte(minimalConfig))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, "tpubexample", cfg.Bitcoin.XPub)
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"sepolia", "base-sepolia"}, cfg.NetworkNames())

	n, ok := cfg.Network("base-sepolia")
	require.True(t, ok)
	assert.Len(t, n.Contracts, 2)
	assert.Equal(t, ABIFactory, n.Contracts[1].ABI)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestNetworkConfig_ExplorerLink(t *testing.T) {
	tx := "0xabc"

	assert.Equal(t, "", NetworkConfig{}.ExplorerLink(tx))
	assert.Equal(t, "https://scan.example/tx/0xabc",
		NetworkConfig{ExplorerTxURL: "https://scan.example/tx/{tx}"}.ExplorerLink(tx))
	assert.Equal(t, "https://scan.example/tx/0xabc",
		NetworkConfig{ExplorerTxURL: "https://scan.example/tx/"}.ExplorerLink(tx))
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger, err := NewLogger(LoggingConfig{Level: "debug", Format: format, OutputPath: "stderr"})
		require.NoError(t, err)
		require.NotNil(t, logger)
	}

	_, err := NewLogger(LoggingConfig{Level: "loud", Format: "json", OutputPath: "stderr"})
	assert.Error(t, err)
}
