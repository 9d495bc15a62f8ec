package ledger

import (
	"time"

	"github.com/uptrace/bun"
)

// EventDao maps to the 'events' table.
type EventDao struct {
	bun.BaseModel   `bun:"table:events,alias:e"`
	ID              string         `bun:",pk,type:varchar(200)"`
	Network         string         `bun:",notnull,type:varchar(50)"`
	BlockNumber     int64          `bun:",notnull"`
	TransactionHash string         `bun:",notnull,type:varchar(66)"`
	LogIndex        int64          `bun:",notnull"`
	EventName       string         `bun:",notnull,type:varchar(100)"`
	Args            map[string]any `bun:"args,type:jsonb,notnull"`
	ExplorerURL     string         `bun:",nullzero,type:text"`
	CampaignID      *string        `bun:",type:varchar(66)"`
	BlockTimestamp  time.Time      `bun:",notnull"`
	CreatedAt       time.Time      `bun:",notnull,nullzero,default:current_timestamp"`
}

// CampaignDao maps to the 'campaigns' registration table.
type CampaignDao struct {
	bun.BaseModel `bun:"table:campaigns"`
	CampaignID    string    `bun:",pk,type:varchar(66)"`
	Creator       string    `bun:",notnull,type:varchar(66)"`
	UpdatedAt     time.Time `bun:",notnull,nullzero,default:current_timestamp"`
}

func toEventDao(e *Event) *EventDao {
	dao := &EventDao{
		ID:              e.ID,
		Network:         e.Network,
		BlockNumber:     int64(e.BlockNumber),
		TransactionHash: e.TransactionHash,
		LogIndex:        int64(e.LogIndex),
		EventName:       e.EventName,
		Args:            e.Args,
		ExplorerURL:     e.ExplorerURL,
		BlockTimestamp:  e.BlockTimestamp.UTC(),
	}
	if dao.Args == nil {
		dao.Args = map[string]any{}
	}
	if e.CampaignID != "" {
		id := e.CampaignID
		dao.CampaignID = &id
	}
	return dao
}

func fromEventDao(dao *EventDao) *Event {
	e := &Event{
		ID:              dao.ID,
		Network:         dao.Network,
		BlockNumber:     uint64(dao.BlockNumber),
		TransactionHash: dao.TransactionHash,
		LogIndex:        uint(dao.LogIndex),
		EventName:       dao.EventName,
		Args:            dao.Args,
		ExplorerURL:     dao.ExplorerURL,
		BlockTimestamp:  dao.BlockTimestamp.UTC(),
	}
	if dao.CampaignID != nil {
		e.CampaignID = *dao.CampaignID
	}
	return e
}
