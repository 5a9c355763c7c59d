package revenue

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TIER RESOLVER
// =============================================================================

// Resolution is the tier selected for an amount.
type Resolution struct {
	Tier Tier

	// Achieved is amount >= Tier.MinAmount. It is false only on fallback.
	Achieved bool
}

// ResolveTier selects the tier that applies to amount.
//
// Inactive tiers are ignored. The remaining tiers are sorted descending by
// MinAmount with a stable sort, so tiers sharing a MinAmount keep their
// input (insertion) order. The first tier whose MinAmount <= amount wins,
// which makes the earliest-inserted tier win a tie.
//
// If the amount is below every threshold the last tier of that order is
// returned (smallest MinAmount; latest-inserted among equal minimums) and
// Achieved is false. ErrNoTierConfigured is returned when no tier is active.
func ResolveTier(amount decimal.Decimal, tiers []Tier) (Resolution, error) {
	sorted := SortTiers(tiers)
	if len(sorted) == 0 {
		return Resolution{}, ErrNoTierConfigured
	}

	for _, t := range sorted {
		if amount.GreaterThanOrEqual(t.MinAmount) {
			return Resolution{Tier: t, Achieved: true}, nil
		}
	}

	fallback := sorted[len(sorted)-1]
	return Resolution{Tier: fallback, Achieved: amount.GreaterThanOrEqual(fallback.MinAmount)}, nil
}

// SortTiers returns the active tiers ordered descending by MinAmount.
// The input slice is not modified.
func SortTiers(tiers []Tier) []Tier {
	active := make([]Tier, 0, len(tiers))
	for _, t := range tiers {
		if t.IsActive {
			active = append(active, t)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].MinAmount.GreaterThan(active[j].MinAmount)
	})
	return active
}

// ValidateTier checks a tier before it is stored.
func ValidateTier(t Tier) error {
	if t.MinAmount.IsNegative() {
		return &AmountError{Field: "min_amount", Value: t.MinAmount.String()}
	}
	if t.CommissionRate.IsNegative() || t.CommissionRate.GreaterThan(hundred) {
		return &AmountError{Field: "commission_rate", Value: t.CommissionRate.String()}
	}
	if t.LicenseFee.IsNegative() {
		return &AmountError{Field: "license_fee", Value: t.LicenseFee.String()}
	}
	return nil
}
