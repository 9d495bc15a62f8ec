// Package indexer implements app.Runner for the crowdfund indexer process
// and the wiring shared by its subcommands.
package indexer

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/chainsafe/crowdfund-indexer/pkg/app/httpserver"
	"github.com/chainsafe/crowdfund-indexer/pkg/bitcoin"
	"github.com/chainsafe/crowdfund-indexer/pkg/config"
	"github.com/chainsafe/crowdfund-indexer/pkg/ethereum"
	"github.com/chainsafe/crowdfund-indexer/pkg/ethereum/contracts"
	"github.com/chainsafe/crowdfund-indexer/pkg/indexer"
	"github.com/chainsafe/crowdfund-indexer/pkg/ledger"
	"github.com/chainsafe/crowdfund-indexer/pkg/normalizer"
	"github.com/chainsafe/crowdfund-indexer/pkg/pgutil"
	"github.com/chainsafe/crowdfund-indexer/pkg/stats"
	"github.com/chainsafe/crowdfund-indexer/pkg/syncstate"
)

// Server runs the sync loop and the read API in one process.
type Server struct {
	cfg *config.Config
}

// NewServer initializes a new indexer Server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Run starts the indexer and the HTTP server. It blocks until an OS shutdown
// signal is received or the HTTP server fails.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("nil config")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting crowdfund indexer", zap.Strings("networks", cfg.NetworkNames()))

	db, err := pgutil.ConnectDB(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("connect indexer db: %w", err)
	}
	defer func() { _ = db.Close() }()
	logger.Info("Database connection established")

	c, err := Build(cfg, db, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Indexer.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap sync cursors: %w", err)
	}
	c.Indexer.Start(ctx)
	defer c.Indexer.Stop()

	handler := NewHandler(c.Indexer, c.Cursors, c.Ledger, c.Projector, c.Monitor, logger)
	srv := httpserver.New(cfg.Server, NewRouter(handler, cfg.Monitoring.Enabled))

	return httpserver.ServeAndWait(ctx, logger, srv, cfg.Shutdown.Timeout)
}

// Components is the wired object graph of the indexer process.
type Components struct {
	Ledger    ledger.Store
	Cursors   syncstate.Store
	Indexer   *indexer.Indexer
	Projector *stats.Projector
	// Monitor is nil when no xpub is configured.
	Monitor *bitcoin.Monitor

	clients []*ethereum.Client
}

// Close releases the chain connections.
func (c *Components) Close() {
	for _, cl := range c.clients {
		cl.Close()
	}
}

// Build wires stores, chain clients, the indexer and the stats projector on
// top of db.
func Build(cfg *config.Config, db *bun.DB, logger *zap.Logger) (*Components, error) {
	c := &Components{
		Ledger:  ledger.NewStore(db, logger),
		Cursors: syncstate.NewStore(db),
	}

	networks, pledged, err := c.buildNetworks(cfg, logger)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.Indexer = indexer.New(indexer.Config{
		Interval:             cfg.Indexer.Interval,
		TimestampCacheSize:   cfg.Indexer.TimestampCacheSize,
		ResetOnEmptyRegistry: cfg.Indexer.ResetOnEmptyRegistry,
	}, networks, c.Ledger, c.Cursors, logger)

	c.Monitor, err = NewMonitor(cfg.Bitcoin, logger)
	if err != nil {
		c.Close()
		return nil, err
	}

	var btc stats.BitcoinStats
	if c.Monitor != nil {
		btc = c.Monitor
	}
	c.Projector = stats.New(c.Ledger, btc, pledged, logger)
	return c, nil
}

func (c *Components) buildNetworks(cfg *config.Config, logger *zap.Logger) ([]indexer.Network, map[string]stats.PledgedSource, error) {
	networks := make([]indexer.Network, 0, len(cfg.Indexer.Networks))
	pledged := make(map[string]stats.PledgedSource)

	for _, nc := range cfg.Indexer.Networks {
		client, err := ethereum.NewClient(nc.Name, nc.RPCURLs, logger,
			ethereum.WithAttemptTimeout(cfg.Indexer.RPCTimeout))
		if err != nil {
			return nil, nil, fmt.Errorf("initialize %s client: %w", nc.Name, err)
		}
		c.clients = append(c.clients, client)

		n := indexer.Network{
			Name:       nc.Name,
			Source:     client,
			Normalizer: normalizer.New(nc.Name, nc.ExplorerLink, logger),
			BatchSize:  nc.BatchSize,
			StartBlock: nc.StartBlock,
		}
		for _, cc := range nc.Contracts {
			parsed, err := contracts.ABI(cc.ABI)
			if err != nil {
				return nil, nil, fmt.Errorf("%s contract %s: %w", nc.Name, cc.Address, err)
			}
			addr := common.HexToAddress(cc.Address)
			n.Contracts = append(n.Contracts, indexer.Contract{Address: addr, ABI: parsed})

			// the first crowdfunding contract answers pledged() for the network
			if _, ok := pledged[nc.Name]; !ok && cc.ABI == contracts.KindCrowdfunding {
				reader, err := ethereum.NewPledgedReader(client, addr)
				if err != nil {
					return nil, nil, err
				}
				pledged[nc.Name] = reader
			}
		}
		networks = append(networks, n)
	}
	return networks, pledged, nil
}

// NewMonitor builds the Bitcoin monitor, or returns nil when no xpub is set.
func NewMonitor(cfg config.BitcoinConfig, logger *zap.Logger) (*bitcoin.Monitor, error) {
	if cfg.XPub == "" {
		logger.Info("no bitcoin xpub configured, bitcoin endpoints disabled")
		return nil, nil
	}
	deriver, err := bitcoin.NewDeriver(cfg.XPub, cfg.Network)
	if err != nil {
		return nil, fmt.Errorf("initialize bitcoin deriver: %w", err)
	}
	explorer := bitcoin.NewEsploraClient(cfg.ExplorerURL, cfg.RequestTimeout, logger,
		bitcoin.WithRetry(cfg.MaxRetries, 0))
	return bitcoin.NewMonitor(deriver, explorer, cfg.BatchWorkers, logger), nil
}
