// Package stats answers "how much has this campaign or creator raised" by
// merging ledger sums, on-chain pledged reads and Bitcoin address balances.
package stats

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/chainsafe/crowdfund-indexer/pkg/bitcoin"
	"github.com/chainsafe/crowdfund-indexer/pkg/ledger"
)

// Currencies a campaign can be denominated in.
const (
	CurrencyBTC = "BTC"
	CurrencyEVM = "EVM"
)

// Sources a campaign total was computed from.
const (
	SourceBitcoin  = "bitcoin"
	SourceLedger   = "ledger"
	SourceContract = "contract"
	SourceNone     = "none"
)

// BitcoinNetwork and BitcoinToken label the bucket of a BTC campaign.
const (
	BitcoinNetwork = "bitcoin"
	BitcoinToken   = "BTC"
)

var errNoBitcoinMonitor = errors.New("bitcoin monitor is not configured")

// BitcoinStats is the part of bitcoin.Monitor the projector reads.
type BitcoinStats interface {
	CampaignStats(ctx context.Context, internalID string) (*bitcoin.AddressStats, error)
}

// PledgedSource reads a campaign's on-chain pledged amount.
type PledgedSource interface {
	Pledged(ctx context.Context, campaignID string) (*big.Int, error)
}

// Campaign identifies a campaign for CampaignTotals. InternalID is the
// platform id used for Bitcoin address derivation and defaults to ID.
type Campaign struct {
	ID         string
	InternalID string
	Currency   string
}

// Bucket is the raised amount of one (network, token) pair. Amounts are in
// the token's smallest unit, except Bitcoin buckets which are in BTC.
type Bucket struct {
	Network string          `json:"network"`
	Token   string          `json:"token"`
	Amount  decimal.Decimal `json:"amount"`
	Count   int             `json:"count"`
}

// CampaignTotals is the raised amount of one campaign. Error is set when a
// source failed; the other fields then hold whatever could be computed.
type CampaignTotals struct {
	CampaignID string   `json:"campaign_id"`
	Currency   string   `json:"currency"`
	Source     string   `json:"source"`
	Buckets    []Bucket `json:"buckets"`
	Backers    int      `json:"backers"`
	HasPending bool     `json:"has_pending"`
	Error      string   `json:"error,omitempty"`
}

// CreatorTotals is the raised amount across all campaigns of one creator.
type CreatorTotals struct {
	Creator   string   `json:"creator"`
	Campaigns []string `json:"campaigns"`
	Buckets   []Bucket `json:"buckets"`
	Backers   int      `json:"backers"`
	Error     string   `json:"error,omitempty"`
}

// Projector computes totals at query time. Nothing is cached.
type Projector struct {
	ledger  ledger.Reader
	btc     BitcoinStats
	pledged map[string]PledgedSource
	logger  *zap.Logger
}

// New creates a projector. btc may be nil when Bitcoin is not configured.
// pledged maps a network name to its contract reader.
func New(reader ledger.Reader, btc BitcoinStats, pledged map[string]PledgedSource, logger *zap.Logger) *Projector {
	return &Projector{
		ledger:  reader,
		btc:     btc,
		pledged: pledged,
		logger:  logger.Named("stats"),
	}
}

// CampaignTotals never returns an error; failures end up in the Error field.
func (p *Projector) CampaignTotals(ctx context.Context, c Campaign) CampaignTotals {
	id := ledger.NormalizeCampaignID(c.ID)
	out := CampaignTotals{
		CampaignID: id,
		Currency:   normalizeCurrency(c.Currency),
		Source:     SourceNone,
		Buckets:    []Bucket{},
	}

	if out.Currency == CurrencyBTC {
		p.bitcoinTotals(ctx, c, &out)
		return out
	}

	var errs error
	totals, err := p.ledger.FundsLockedTotals(ctx, []string{id})
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	if len(totals) > 0 {
		out.Source = SourceLedger
		out.Buckets = toBuckets(totals)
		donors, err := p.ledger.DistinctDonors(ctx, []string{id})
		if err != nil {
			errs = multierr.Append(errs, err)
		}
		out.Backers = donors
	} else {
		buckets, err := p.pledgedTotals(ctx, id)
		if err != nil {
			errs = multierr.Append(errs, err)
		}
		if len(buckets) > 0 {
			out.Source = SourceContract
			out.Buckets = buckets
		}
	}

	if errs != nil {
		p.logger.Warn("campaign totals are partial",
			zap.String("campaign_id", id),
			zap.Error(errs))
		out.Error = errs.Error()
	}
	return out
}

func (p *Projector) bitcoinTotals(ctx context.Context, c Campaign, out *CampaignTotals) {
	if p.btc == nil {
		out.Error = errNoBitcoinMonitor.Error()
		return
	}
	internalID := c.InternalID
	if internalID == "" {
		internalID = c.ID
	}

	st, err := p.btc.CampaignStats(ctx, internalID)
	if err != nil {
		p.logger.Warn("failed to read bitcoin campaign stats",
			zap.String("internal_id", internalID),
			zap.Error(err))
		out.Error = err.Error()
		return
	}

	out.Source = SourceBitcoin
	out.Buckets = []Bucket{{
		Network: BitcoinNetwork,
		Token:   BitcoinToken,
		Amount:  st.TotalReceived,
		Count:   len(st.Backers),
	}}
	out.Backers = distinctBackers(st.Backers)
	out.HasPending = st.HasPending
}

// pledgedTotals asks every configured network for pledged(id) and keeps the
// non-zero answers.
func (p *Projector) pledgedTotals(ctx context.Context, id string) ([]Bucket, error) {
	networks := make([]string, 0, len(p.pledged))
	for name := range p.pledged {
		networks = append(networks, name)
	}
	sort.Strings(networks)

	var (
		buckets []Bucket
		errs    error
	)
	for _, name := range networks {
		amount, err := p.pledged[name].Pledged(ctx, id)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if amount == nil || amount.Sign() == 0 {
			continue
		}
		buckets = append(buckets, Bucket{
			Network: name,
			Token:   ledger.NativeToken,
			Amount:  decimal.NewFromBigInt(amount, 0),
		})
	}
	return buckets, errs
}

// CreatorTotals never returns an error; failures end up in the Error field.
func (p *Projector) CreatorTotals(ctx context.Context, creator string) CreatorTotals {
	creator = strings.ToLower(strings.TrimSpace(creator))
	out := CreatorTotals{Creator: creator, Campaigns: []string{}, Buckets: []Bucket{}}

	var errs error
	ids, err := p.ledger.CampaignsByCreator(ctx, creator)
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	if len(ids) == 0 {
		// registrations may be cold right after a rebuild
		ids, err = p.ledger.CampaignsByCreatorFromEvents(ctx, creator)
		if err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if len(ids) > 0 {
		out.Campaigns = ids

		totals, err := p.ledger.FundsLockedTotals(ctx, ids)
		if err != nil {
			errs = multierr.Append(errs, err)
		}
		out.Buckets = toBuckets(totals)

		donors, err := p.ledger.DistinctDonors(ctx, ids)
		if err != nil {
			errs = multierr.Append(errs, err)
		}
		out.Backers = donors
	}

	if errs != nil {
		p.logger.Warn("creator totals are partial",
			zap.String("creator", creator),
			zap.Error(errs))
		out.Error = errs.Error()
	}
	return out
}

func toBuckets(totals []ledger.Total) []Bucket {
	buckets := make([]Bucket, 0, len(totals))
	for _, t := range totals {
		buckets = append(buckets, Bucket{
			Network: t.Network,
			Token:   t.Token,
			Amount:  t.Amount,
			Count:   t.Count,
		})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Network != buckets[j].Network {
			return buckets[i].Network < buckets[j].Network
		}
		return buckets[i].Token < buckets[j].Token
	})
	return buckets
}

func distinctBackers(backers []bitcoin.Backer) int {
	seen := make(map[string]struct{}, len(backers))
	for _, b := range backers {
		seen[b.Address] = struct{}{}
	}
	return len(seen)
}

func normalizeCurrency(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == CurrencyBTC || c == "BITCOIN" {
		return CurrencyBTC
	}
	return CurrencyEVM
}
