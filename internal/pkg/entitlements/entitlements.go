package entitlements

import "strings"

type Tier string

const (
	TierNone     Tier = "none"
	TierStandard Tier = "standard"
	TierPlus     Tier = "plus"
	TierPremium  Tier = "premium"
)

// Normalize maps arbitrary tier strings onto the known set, defaulting to none.
func Normalize(tier string) Tier {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case string(TierStandard):
		return TierStandard
	case string(TierPlus):
		return TierPlus
	case string(TierPremium):
		return TierPremium
	default:
		return TierNone
	}
}

// Rank orders tiers so the best of several subscriptions wins.
func Rank(tier Tier) int {
	switch tier {
	case TierPremium:
		return 3
	case TierPlus:
		return 2
	case TierStandard:
		return 1
	default:
		return 0
	}
}

// TeamMaxMembers returns the team capacity a tier grants. Standard is a
// single-seat plan and carries no team allowance.
func TeamMaxMembers(tier Tier) int {
	switch tier {
	case TierPremium:
		return 10
	case TierPlus:
		return 5
	default:
		return 0
	}
}

// TeamEnabled reports whether the tier includes a team subscription.
func TeamEnabled(tier Tier) bool {
	return TeamMaxMembers(tier) > 0
}

// Entitled reports whether the tier grants paid-tier access.
func Entitled(tier Tier) bool {
	return Rank(tier) > 0
}
