package indexerdb

import (
	"context"
	"log"

	mghelper "github.com/chainsafe/crowdfund-indexer/pkg/pgutil/migrations"
	"github.com/chainsafe/crowdfund-indexer/pkg/syncstate"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating sync_state table...")
		return mghelper.CreateSchema(ctx, db, &syncstate.SyncStateDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping sync_state table...")
		return mghelper.DropTables(ctx, db, &syncstate.SyncStateDao{})
	})
}
