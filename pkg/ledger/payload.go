package ledger

import "strings"

// Payload is the typed view of an event's arguments. The concrete type is
// selected by event name; fields a variant does not model stay in Extra.
type Payload interface {
	Name() string
	Residual() map[string]any
}

// CampaignCreated registers a campaign and its creator.
type CampaignCreated struct {
	CampaignID string
	Creator    string
	Extra      map[string]any
}

// FundsLocked is a donation escrowed by the contract.
type FundsLocked struct {
	CampaignID string
	Token      string
	Amount     string
	Donor      string
	Extra      map[string]any
}

// FundsReleased is escrow paid out to a recipient.
type FundsReleased struct {
	CampaignID string
	Token      string
	Amount     string
	Recipient  string
	Extra      map[string]any
}

// MilestoneReleased is a partial release tied to a milestone.
type MilestoneReleased struct {
	CampaignID     string
	MilestoneIndex string
	Amount         string
	Recipient      string
	Extra          map[string]any
}

// Unknown carries events this package does not model.
type Unknown struct {
	EventName string
	Extra     map[string]any
}

func (CampaignCreated) Name() string   { return EventCampaignCreated }
func (FundsLocked) Name() string       { return EventFundsLocked }
func (FundsReleased) Name() string     { return EventFundsReleased }
func (MilestoneReleased) Name() string { return EventMilestoneReleased }
func (u Unknown) Name() string         { return u.EventName }

func (p CampaignCreated) Residual() map[string]any   { return p.Extra }
func (p FundsLocked) Residual() map[string]any       { return p.Extra }
func (p FundsReleased) Residual() map[string]any     { return p.Extra }
func (p MilestoneReleased) Residual() map[string]any { return p.Extra }
func (u Unknown) Residual() map[string]any           { return u.Extra }

// DecodePayload maps an argument bag onto the variant for name.
func DecodePayload(name string, args map[string]any) Payload {
	r := newReader(args)
	switch name {
	case EventCampaignCreated:
		return CampaignCreated{
			CampaignID: NormalizeCampaignID(r.take(CampaignIDFields)),
			Creator:    r.take(CreatorFields),
			Extra:      r.rest(),
		}
	case EventFundsLocked:
		p := FundsLocked{
			CampaignID: NormalizeCampaignID(r.take(CampaignIDFields)),
			Token:      r.take(TokenFields),
			Amount:     r.take(AmountFields),
			Donor:      r.take(DonorFields),
		}
		if p.Token == "" {
			p.Token = NativeToken
		}
		p.Extra = r.rest()
		return p
	case EventFundsReleased:
		p := FundsReleased{
			CampaignID: NormalizeCampaignID(r.take(CampaignIDFields)),
			Token:      r.take(TokenFields),
			Amount:     r.take(AmountFields),
			Recipient:  r.take(RecipientFields),
		}
		if p.Token == "" {
			p.Token = NativeToken
		}
		p.Extra = r.rest()
		return p
	case EventMilestoneReleased:
		return MilestoneReleased{
			CampaignID:     NormalizeCampaignID(r.take(CampaignIDFields)),
			MilestoneIndex: r.take(MilestoneFields),
			Amount:         r.take(AmountFields),
			Recipient:      r.take(RecipientFields),
			Extra:          r.rest(),
		}
	default:
		return Unknown{EventName: name, Extra: r.rest()}
	}
}

type argReader struct {
	args map[string]any
	used map[string]struct{}
}

func newReader(args map[string]any) *argReader {
	return &argReader{args: args, used: make(map[string]struct{})}
}

func (r *argReader) take(fields []string) string {
	v, f, ok := FirstArg(r.args, fields)
	if !ok {
		return ""
	}
	r.used[f] = struct{}{}
	return v
}

func (r *argReader) rest() map[string]any {
	out := make(map[string]any)
	for k, v := range r.args {
		if _, ok := r.used[k]; ok {
			continue
		}
		out[k] = v
	}
	return out
}

// DonorKey is the comparison form of a donor address.
func DonorKey(donor string) string {
	return strings.ToLower(donor)
}
