package main

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/chainsafe/crowdfund-indexer/pkg/config"
	"github.com/chainsafe/crowdfund-indexer/pkg/pgutil"
)

type commandEnv struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *bun.DB
}

// withDB loads the config, opens the database and runs fn.
func withDB(cctx *cli.Context, fn func(ctx context.Context, env *commandEnv) error) error {
	cfg, err := config.Load(cctx.String("config"))
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := cctx.Context
	db, err := pgutil.ConnectDB(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("connect indexer db: %w", err)
	}
	defer func() { _ = db.Close() }()

	return fn(ctx, &commandEnv{cfg: cfg, logger: logger, db: db})
}
