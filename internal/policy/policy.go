// Package policy maps subscription tiers to recording duration limits.
package policy

import (
	"strings"
	"time"
)

// Tier is a subscription tier reported by the backend.
type Tier string

const (
	TierFree     Tier = "free"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

const (
	freeMaxDuration     = 5 * time.Minute
	standardMaxDuration = 15 * time.Minute
	premiumMaxDuration  = 30 * time.Minute
)

// MaxDuration returns the recording length limit for a tier. Unknown tiers
// fall back to the most restrictive limit.
func MaxDuration(tier Tier) time.Duration {
	switch normalize(tier) {
	case TierFree:
		return freeMaxDuration
	case TierStandard:
		return standardMaxDuration
	case TierPremium:
		return premiumMaxDuration
	default:
		return freeMaxDuration
	}
}

// normalize folds case and surrounding whitespace out of tier values.
func normalize(tier Tier) Tier {
	return Tier(strings.ToLower(strings.TrimSpace(string(tier))))
}
