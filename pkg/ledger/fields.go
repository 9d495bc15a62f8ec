package ledger

import (
	"fmt"
	"strings"
)

// Ordered argument names tried for each concept. Contract versions name the
// same value differently; the first non-empty match wins.
var (
	CampaignIDFields = []string{"id", "campaignId"}
	CreatorFields    = []string{"creator", "owner", "admin"}
	DonorFields      = []string{"donor", "backer", "contributor", "from"}
	TokenFields      = []string{"token", "asset"}
	AmountFields     = []string{"amount", "value"}
	RecipientFields  = []string{"recipient", "to", "creator"}
	MilestoneFields  = []string{"milestoneIndex", "milestone", "index"}
)

const (
	addressHexLen = 42
	hashHexLen    = 66
)

// FirstArg returns the first non-empty argument among fields, rendered as a
// string, and the name of the field it came from.
func FirstArg(args map[string]any, fields []string) (value, field string, ok bool) {
	for _, f := range fields {
		v, present := args[f]
		if !present || v == nil {
			continue
		}
		s := argString(v)
		if s == "" {
			continue
		}
		return s, f, true
	}
	return "", "", false
}

// CampaignIDFromArgs applies CampaignIDFields and lowercases the result.
func CampaignIDFromArgs(args map[string]any) string {
	v, _, _ := FirstArg(args, CampaignIDFields)
	return NormalizeCampaignID(v)
}

// CreatorFromArgs applies CreatorFields.
func CreatorFromArgs(args map[string]any) (string, bool) {
	v, _, ok := FirstArg(args, CreatorFields)
	return v, ok
}

// NormalizeCampaignID trims and lowercases a campaign id.
func NormalizeCampaignID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// IsAddressShaped reports whether id has the length of a 20-byte hex address
// rather than a 32-byte id.
func IsAddressShaped(id string) bool {
	return len(id) == addressHexLen && strings.HasPrefix(id, "0x")
}

// IsHashShaped reports whether id is a 0x-prefixed 32-byte hex string.
func IsHashShaped(id string) bool {
	return len(id) == hashHexLen && strings.HasPrefix(id, "0x")
}

func argString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case float64:
		// JSON round trips of small integers
		return fmt.Sprintf("%.0f", t)
	default:
		return fmt.Sprint(t)
	}
}
