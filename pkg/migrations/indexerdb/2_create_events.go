package indexerdb

import (
	"context"
	"log"

	"github.com/chainsafe/crowdfund-indexer/pkg/ledger"
	mghelper "github.com/chainsafe/crowdfund-indexer/pkg/pgutil/migrations"

	"github.com/uptrace/bun"
)

var eventIndexColumns = []string{"campaign_id", "event_name", "network", "block_timestamp"}

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating events table...")
		if err := mghelper.CreateSchema(ctx, db, &ledger.EventDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &ledger.EventDao{}, eventIndexColumns...)
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping events table...")
		if err := mghelper.DropModelIndexes(ctx, db, &ledger.EventDao{}, eventIndexColumns...); err != nil {
			return err
		}
		return mghelper.DropTables(ctx, db, &ledger.EventDao{})
	})
}
