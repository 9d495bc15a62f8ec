package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process ledger with the same semantics as the
// postgres store. It backs dry runs and tests.
type MemoryStore struct {
	mu            sync.RWMutex
	events        map[string]*Event
	registrations map[string]Registration
	now           func() time.Time
}

// NewMemoryStore returns an empty in-process ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:        make(map[string]*Event),
		registrations: make(map[string]Registration),
		now:           time.Now,
	}
}

func (m *MemoryStore) SaveEvents(ctx context.Context, events []*Event) (SaveResult, error) {
	var res SaveResult
	if len(events) == 0 {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ev := range events {
		if _, ok := m.events[ev.ID]; ok {
			res.Duplicates++
		} else {
			m.events[ev.ID] = cloneEvent(ev)
			res.Inserted++
		}

		if ev.EventName != EventCampaignCreated || ev.CampaignID == "" {
			continue
		}
		creator, ok := CreatorFromArgs(ev.Args)
		if !ok {
			continue
		}
		creator = strings.ToLower(creator)
		if cur, ok := m.registrations[ev.CampaignID]; ok && cur.Creator == creator {
			continue
		}
		m.registrations[ev.CampaignID] = Registration{CampaignID: ev.CampaignID, Creator: creator, UpdatedAt: m.now()}
		res.Registrations++
	}
	return res, nil
}

func (m *MemoryStore) CountRegistrations(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.registrations), nil
}

// Registrations returns a copy of the registration table.
func (m *MemoryStore) Registrations() map[string]Registration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Registration, len(m.registrations))
	for k, v := range m.registrations {
		out[k] = v
	}
	return out
}

// Events returns every stored event ordered by ID.
func (m *MemoryStore) Events() []*Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Event, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, cloneEvent(ev))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryStore) EventsForCampaign(_ context.Context, campaignID string, opts ...QueryOption) ([]*Event, error) {
	o := applyOptions(opts)
	id := NormalizeCampaignID(campaignID)

	out := m.filter(func(ev *Event) bool {
		if ev.CampaignID != id {
			return false
		}
		return o.Network == nil || ev.Network == *o.Network
	})
	if o.Limit > 0 && len(out) > o.Limit {
		out = out[:o.Limit]
	}
	return out, nil
}

func (m *MemoryStore) EventsForCampaigns(_ context.Context, campaignIDs []string, limit int) ([]*Event, error) {
	ids := idSet(campaignIDs)
	if len(ids) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	out := m.filter(func(ev *Event) bool {
		_, ok := ids[ev.CampaignID]
		return ok
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) FundsLockedTotals(_ context.Context, campaignIDs []string) ([]Total, error) {
	ids := idSet(campaignIDs)
	if len(ids) == 0 {
		return nil, nil
	}

	type key struct{ network, token string }
	buckets := make(map[key]*Total)
	for _, ev := range m.fundsLocked(ids) {
		p := ev.Payload().(FundsLocked)
		amount, err := decimal.NewFromString(p.Amount)
		if err != nil || amount.IsNegative() || !amount.IsInteger() {
			continue
		}
		k := key{ev.Network, strings.ToLower(p.Token)}
		b, ok := buckets[k]
		if !ok {
			b = &Total{Network: k.network, Token: k.token, Amount: decimal.Zero}
			buckets[k] = b
		}
		b.Amount = b.Amount.Add(amount)
		b.Count++
	}

	totals := make([]Total, 0, len(buckets))
	for _, b := range buckets {
		totals = append(totals, *b)
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Network != totals[j].Network {
			return totals[i].Network < totals[j].Network
		}
		return totals[i].Token < totals[j].Token
	})
	return totals, nil
}

func (m *MemoryStore) DistinctDonors(_ context.Context, campaignIDs []string) (int, error) {
	ids := idSet(campaignIDs)
	if len(ids) == 0 {
		return 0, nil
	}
	donors := make(map[string]struct{})
	for _, ev := range m.fundsLocked(ids) {
		if d := ev.Payload().(FundsLocked).Donor; d != "" {
			donors[DonorKey(d)] = struct{}{}
		}
	}
	return len(donors), nil
}

func (m *MemoryStore) CampaignsByCreator(_ context.Context, creator string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	creator = strings.ToLower(creator)
	var ids []string
	for id, r := range m.registrations {
		if r.Creator == creator {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryStore) CampaignsByCreatorFromEvents(_ context.Context, creator string) ([]string, error) {
	creator = strings.ToLower(creator)
	seen := make(map[string]struct{})
	for _, ev := range m.filter(func(ev *Event) bool { return ev.EventName == EventCampaignCreated && ev.CampaignID != "" }) {
		if c, ok := CreatorFromArgs(ev.Args); ok && strings.ToLower(c) == creator {
			seen[ev.CampaignID] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryStore) fundsLocked(ids map[string]struct{}) []*Event {
	return m.filter(func(ev *Event) bool {
		_, ok := ids[ev.CampaignID]
		return ok && ev.EventName == EventFundsLocked
	})
}

// filter returns matching events newest first.
func (m *MemoryStore) filter(match func(*Event) bool) []*Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Event
	for _, ev := range m.events {
		if match(ev) {
			out = append(out, cloneEvent(ev))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.BlockTimestamp.Equal(b.BlockTimestamp) {
			return a.BlockTimestamp.After(b.BlockTimestamp)
		}
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber > b.BlockNumber
		}
		return a.LogIndex > b.LogIndex
	})
	return out
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range normalizeIDs(ids) {
		set[id] = struct{}{}
	}
	return set
}

func cloneEvent(ev *Event) *Event {
	c := *ev
	c.Args = make(map[string]any, len(ev.Args))
	for k, v := range ev.Args {
		c.Args[k] = v
	}
	return &c
}
