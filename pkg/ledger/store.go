package ledger

import (
	"context"
	"errors"
)

// DefaultListLimit caps multi-campaign event listings.
const DefaultListLimit = 50

// ErrNotCommitted is returned by SaveEvents when an event failed for a reason
// other than the row itself, such as a lost connection. Callers must retry the
// batch. Rows the database refuses are counted as failed and skipped.
var ErrNotCommitted = errors.New("batch not fully committed")

// Writer is the ingestion side of the ledger.
type Writer interface {
	// SaveEvents inserts events keyed by ID, skipping ones already present,
	// and upserts campaign registrations for CampaignCreated events. A row the
	// database rejects is logged and skipped, so it never blocks a batch.
	SaveEvents(ctx context.Context, events []*Event) (SaveResult, error)
	CountRegistrations(ctx context.Context) (int, error)
}

// Reader holds the read projections served to the API layer.
type Reader interface {
	EventsForCampaign(ctx context.Context, campaignID string, opts ...QueryOption) ([]*Event, error)
	EventsForCampaigns(ctx context.Context, campaignIDs []string, limit int) ([]*Event, error)
	FundsLockedTotals(ctx context.Context, campaignIDs []string) ([]Total, error)
	DistinctDonors(ctx context.Context, campaignIDs []string) (int, error)
	CampaignsByCreator(ctx context.Context, creator string) ([]string, error)
	// CampaignsByCreatorFromEvents scans CampaignCreated events instead of the
	// registration table.
	CampaignsByCreatorFromEvents(ctx context.Context, creator string) ([]string, error)
}

// Store is the full ledger.
type Store interface {
	Writer
	Reader
}

// QueryOptions filters single-campaign event listings.
type QueryOptions struct {
	Network *string
	Limit   int
}

// QueryOption is a functional option for event listings
type QueryOption func(*QueryOptions)

// WithNetwork restricts results to one network.
func WithNetwork(network string) QueryOption {
	return func(o *QueryOptions) {
		o.Network = &network
	}
}

// WithLimit caps the number of returned events.
func WithLimit(limit int) QueryOption {
	return func(o *QueryOptions) {
		o.Limit = limit
	}
}

func applyOptions(opts []QueryOption) QueryOptions {
	var o QueryOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = NormalizeCampaignID(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
