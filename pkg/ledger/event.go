// Package ledger is the append-only store of normalized on-chain events and
// the campaign registration table derived from them.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Known event names.
const (
	EventCampaignCreated   = "CampaignCreated"
	EventFundsLocked       = "FundsLocked"
	EventFundsReleased     = "FundsReleased"
	EventMilestoneReleased = "MilestoneReleased"
)

// NativeToken labels amounts that carry no token argument.
const NativeToken = "native"

// Event is one normalized contract log. Events are never mutated once saved.
type Event struct {
	ID              string `json:"id"`
	Network         string `json:"network"`
	BlockNumber     uint64 `json:"block_number"`
	TransactionHash string `json:"transaction_hash"`
	LogIndex        uint   `json:"log_index"`
	EventName       string `json:"event_name"`
	// Args maps ABI argument names to JSON-safe values. Integers are decimal strings.
	Args        map[string]any `json:"args"`
	ExplorerURL string         `json:"explorer_url,omitempty"`
	// CampaignID is lowercase hex, empty when the log carries no campaign id.
	CampaignID     string    `json:"campaign_id,omitempty"`
	BlockTimestamp time.Time `json:"block_timestamp"`
}

// EventID builds the idempotency key of a log.
func EventID(network, txHash string, logIndex uint) string {
	return fmt.Sprintf("%s-%s-%d", network, strings.ToLower(txHash), logIndex)
}

// Payload returns the typed view of the event arguments.
func (e *Event) Payload() Payload {
	return DecodePayload(e.EventName, e.Args)
}

// Registration maps a campaign id to the address that created it.
type Registration struct {
	CampaignID string
	Creator    string
	UpdatedAt  time.Time
}

// Total is the FundsLocked sum of one (network, token) bucket.
type Total struct {
	Network string
	Token   string
	// Amount is the sum in the token's smallest unit.
	Amount decimal.Decimal
	Count  int
}

// SaveResult reports what a SaveEvents call did.
type SaveResult struct {
	Inserted      int
	Duplicates    int
	Registrations int
	Failed        int
}
