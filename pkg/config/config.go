package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure returned by Load and Validate.
var ErrInvalid = errors.New("invalid configuration")

// Supported contract interface kinds.
const (
	ABICrowdfunding = "crowdfunding"
	ABIFactory      = "factory"
)

// Supported Bitcoin networks.
const (
	BitcoinMainnet = "mainnet"
	BitcoinTestnet = "testnet"
)

// Environment variables that override secrets from the config file.
const (
	EnvDatabasePassword = "DATABASE_PASSWORD"
	EnvBitcoinXPub      = "BITCOIN_XPUB"
	EnvOraclePrivateKey = "ORACLE_PRIVATE_KEY"
)

// Config represents the indexer configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Indexer    IndexerConfig    `yaml:"indexer"`
	Bitcoin    BitcoinConfig    `yaml:"bitcoin"`
	Oracle     OracleConfig     `yaml:"oracle"`
	Shutdown   ShutdownConfig   `yaml:"shutdown"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host" default:"0.0.0.0"`
	Port int    `yaml:"port" default:"8080" validate:"gt=0,lt=65536"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host" default:"localhost" validate:"required"`
	Port     int    `yaml:"port" default:"5432" validate:"gt=0"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database" default:"crowdfund_indexer" validate:"required"`
	SSLMode  string `yaml:"ssl_mode" default:"disable"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" default:"info"`
	Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
	OutputPath string `yaml:"output_path" default:"stdout"`
}

// MonitoringConfig contains metrics settings
type MonitoringConfig struct {
	Enabled bool `yaml:"enabled" default:"true"`
}

// IndexerConfig drives the EVM sync loop.
type IndexerConfig struct {
	Interval   time.Duration `yaml:"interval" default:"10s" validate:"gt=0"`
	RPCTimeout time.Duration `yaml:"rpc_timeout" default:"8s" validate:"gt=0"`
	// ResetOnEmptyRegistry rewinds every cursor to its start block at boot when
	// the campaigns table holds no rows. Prefer the rebuild command.
	ResetOnEmptyRegistry bool            `yaml:"reset_on_empty_registry"`
	TimestampCacheSize   int             `yaml:"timestamp_cache_size" default:"1024" validate:"gt=0"`
	Networks             []NetworkConfig `yaml:"networks" validate:"required,min=1,unique=Name,dive"`
}

// NetworkConfig describes one EVM chain to index.
type NetworkConfig struct {
	Name    string   `yaml:"name" validate:"required,lowercase"`
	RPCURLs []string `yaml:"rpc_urls" validate:"required,min=1,dive,url"`
	ChainID int64    `yaml:"chain_id" validate:"gte=0"`
	// ExplorerTxURL is a template; "{tx}" is replaced with the transaction hash.
	ExplorerTxURL string           `yaml:"explorer_tx_url"`
	BatchSize     uint64           `yaml:"batch_size" default:"1000" validate:"gt=0"`
	StartBlock    uint64           `yaml:"start_block"`
	Contracts     []ContractConfig `yaml:"contracts" validate:"dive"`
}

// ContractConfig is a monitored contract and the interface used to decode it.
type ContractConfig struct {
	Address string `yaml:"address" validate:"required,eth_addr"`
	ABI     string `yaml:"abi" default:"crowdfunding" validate:"oneof=crowdfunding factory"`
}

// BitcoinConfig configures address derivation and the explorer client.
type BitcoinConfig struct {
	Network        string        `yaml:"network" default:"testnet" validate:"oneof=mainnet testnet"`
	XPub           string        `yaml:"xpub"`
	ExplorerURL    string        `yaml:"explorer_url" default:"https://blockstream.info/testnet/api" validate:"url"`
	RequestTimeout time.Duration `yaml:"request_timeout" default:"10s" validate:"gt=0"`
	MaxRetries     uint64        `yaml:"max_retries" default:"2"`
	BatchWorkers   int           `yaml:"batch_workers" default:"4" validate:"gt=0"`
}

// OracleConfig configures the external contribution write path.
type OracleConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Network         string `yaml:"network"`
	RegistryAddress string `yaml:"registry_address" validate:"omitempty,eth_addr"`
	PrivateKey      string `yaml:"private_key"`
	GasLimit        uint64 `yaml:"gas_limit" default:"300000"`
	MaxGasPrice     string `yaml:"max_gas_price"`
}

// ShutdownConfig contains graceful shutdown settings
type ShutdownConfig struct {
	Timeout time.Duration `yaml:"timeout" default:"30s"`
}

// Load reads the YAML file at path, applies environment overrides and
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(raw)
}

// Parse builds a Config from raw YAML.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnv(&cfg)

	if err := ApplyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero-valued fields from the struct tags, including
// every entry of the network list.
func ApplyDefaults(cfg *Config) error {
	if err := defaults.Set(cfg); err != nil {
		return fmt.Errorf("failed to apply config defaults: %w", err)
	}
	for i := range cfg.Indexer.Networks {
		n := &cfg.Indexer.Networks[i]
		if err := defaults.Set(n); err != nil {
			return fmt.Errorf("failed to apply defaults for network %q: %w", n.Name, err)
		}
		for j := range n.Contracts {
			if err := defaults.Set(&n.Contracts[j]); err != nil {
				return fmt.Errorf("failed to apply defaults for contract %s: %w", n.Contracts[j].Address, err)
			}
		}
	}
	return nil
}

// Validate checks struct constraints plus the cross-field rules.
func Validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if cfg.Oracle.Enabled {
		if cfg.Oracle.RegistryAddress == "" {
			return fmt.Errorf("%w: oracle.registry_address is required when the oracle is enabled", ErrInvalid)
		}
		if cfg.Oracle.PrivateKey == "" {
			return fmt.Errorf("%w: oracle.private_key is required when the oracle is enabled", ErrInvalid)
		}
		if _, ok := cfg.Network(cfg.Oracle.Network); !ok {
			return fmt.Errorf("%w: oracle.network %q is not a configured network", ErrInvalid, cfg.Oracle.Network)
		}
	}
	return nil
}

// Network returns the configuration of the named network.
func (c *Config) Network(name string) (NetworkConfig, bool) {
	for _, n := range c.Indexer.Networks {
		if n.Name == name {
			return n, true
		}
	}
	return NetworkConfig{}, false
}

// NetworkNames returns the configured network names in file order.
func (c *Config) NetworkNames() []string {
	names := make([]string, 0, len(c.Indexer.Networks))
	for _, n := range c.Indexer.Networks {
		names = append(names, n.Name)
	}
	return names
}

// ExplorerLink renders the explorer template for a transaction hash.
func (n NetworkConfig) ExplorerLink(txHash string) string {
	if n.ExplorerTxURL == "" {
		return ""
	}
	if strings.Contains(n.ExplorerTxURL, "{tx}") {
		return strings.ReplaceAll(n.ExplorerTxURL, "{tx}", txHash)
	}
	return strings.TrimRight(n.ExplorerTxURL, "/") + "/" + txHash
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvDatabasePassword); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv(EnvBitcoinXPub); v != "" {
		cfg.Bitcoin.XPub = v
	}
	if v := os.Getenv(EnvOraclePrivateKey); v != "" {
		cfg.Oracle.PrivateKey = v
	}
}
