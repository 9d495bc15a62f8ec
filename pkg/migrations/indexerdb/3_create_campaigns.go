package indexerdb

import (
	"context"
	"log"

	"github.com/chainsafe/crowdfund-indexer/pkg/ledger"
	mghelper "github.com/chainsafe/crowdfund-indexer/pkg/pgutil/migrations"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating campaigns table...")
		if err := mghelper.CreateSchema(ctx, db, &ledger.CampaignDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &ledger.CampaignDao{}, "creator")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping campaigns table...")
		return mghelper.DropTables(ctx, db, &ledger.CampaignDao{})
	})
}
