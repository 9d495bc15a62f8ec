package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"github.com/uptrace/bun/migrate"

	appindexer "github.com/chainsafe/crowdfund-indexer/pkg/app/indexer"
	"github.com/chainsafe/crowdfund-indexer/pkg/bitcoin"
	"github.com/chainsafe/crowdfund-indexer/pkg/config"
	"github.com/chainsafe/crowdfund-indexer/pkg/migrations/indexerdb"
	"github.com/chainsafe/crowdfund-indexer/pkg/oracle"
	mghelper "github.com/chainsafe/crowdfund-indexer/pkg/pgutil/migrations"
)

func main() {
	app := &cli.App{
		Name:  "crowdfund-indexer",
		Usage: "Index crowdfunding events from EVM chains and track Bitcoin campaign addresses",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				EnvVars: []string{"INDEXER_CONFIG"},
				Value:   "config.yaml",
				Usage:   "Load configuration from `FILE`",
			},
		},
		Commands: []*cli.Command{
			runCmd,
			migrateCmd,
			rebuildCmd,
			deriveAddressCmd,
			recordContributionCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "Start the periodic sync and the HTTP API",
	Action: func(cctx *cli.Context) error {
		cfg, err := config.Load(cctx.String("config"))
		if err != nil {
			return err
		}
		return appindexer.NewServer(cfg).Run()
	},
}

var migrateCmd = &cli.Command{
	Name:      "migrate",
	Usage:     "Manage the database schema",
	ArgsUsage: "init|up|down|status",
	Action: func(cctx *cli.Context) error {
		command := cctx.Args().First()
		if command == "" {
			command = mghelper.CommandStatus
		}

		return withDB(cctx, func(ctx context.Context, env *commandEnv) error {
			migrator := migrate.NewMigrator(env.db, indexerdb.Migrations)
			return mghelper.Run(ctx, migrator, env.logger, command)
		})
	},
}

var rebuildCmd = &cli.Command{
	Name:  "rebuild",
	Usage: "Rewind the sync cursor of a network to its start block",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "network",
			Usage:    "Network `NAME` to rebuild",
			Required: true,
		},
	},
	Action: func(cctx *cli.Context) error {
		return withDB(cctx, func(ctx context.Context, env *commandEnv) error {
			c, err := appindexer.Build(env.cfg, env.db, env.logger)
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Indexer.Rebuild(ctx, cctx.String("network"))
		})
	},
}

var deriveAddressCmd = &cli.Command{
	Name:      "derive-address",
	Usage:     "Print the Bitcoin address of a campaign",
	ArgsUsage: "INTERNAL_ID",
	Action: func(cctx *cli.Context) error {
		cfg, err := config.Load(cctx.String("config"))
		if err != nil {
			return err
		}
		deriver, err := bitcoin.NewDeriver(cfg.Bitcoin.XPub, cfg.Bitcoin.Network)
		if err != nil {
			return err
		}
		id := cctx.Args().First()
		addr, err := deriver.DeriveAddress(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cctx.App.Writer, "%s m/%d/%d %s\n", id, bitcoin.DerivationBranch, bitcoin.IndexFor(id), addr)
		return nil
	},
}

var recordContributionCmd = &cli.Command{
	Name:  "record-contribution",
	Usage: "Record a Bitcoin contribution on the EVM registry contract",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "campaign", Usage: "32-byte campaign `ID`", Required: true},
		&cli.StringFlag{Name: "txid", Usage: "Bitcoin transaction `ID`", Required: true},
		&cli.Int64Flag{Name: "sats", Usage: "Contributed `SATOSHIS`", Required: true},
		&cli.BoolFlag{Name: "confirmed", Usage: "The transaction has been confirmed on the Bitcoin chain"},
	},
	Action: func(cctx *cli.Context) error {
		cfg, err := config.Load(cctx.String("config"))
		if err != nil {
			return err
		}
		logger, err := config.NewLogger(cfg.Logging)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		bridge, closeFn, err := appindexer.NewOracleBridge(cctx.Context, cfg, logger)
		if err != nil {
			return err
		}
		defer closeFn()

		txHash, err := bridge.RecordContribution(cctx.Context, oracle.Contribution{
			CampaignID:  cctx.String("campaign"),
			BitcoinTxID: cctx.String("txid"),
			Satoshis:    cctx.Int64("sats"),
			Confirmed:   cctx.Bool("confirmed"),
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cctx.App.Writer, txHash)
		return nil
	},
}
