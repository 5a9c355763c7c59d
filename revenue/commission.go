package revenue

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// COMMISSION CALCULATOR
// =============================================================================

// Commission is the outcome of a threshold calculation. Values are exact
// and unrounded.
type Commission struct {
	Tier       Tier
	Commission decimal.Decimal
	LicenseFee decimal.Decimal
	Achieved   bool
}

// Calculator computes commissions against a fixed tier table. The table is
// sorted once at construction.
type Calculator struct {
	tiers []Tier
}

// NewCalculator creates a calculator over the active tiers.
// Returns ErrNoTierConfigured when no tier is active.
func NewCalculator(tiers []Tier) (*Calculator, error) {
	sorted := SortTiers(tiers)
	if len(sorted) == 0 {
		return nil, ErrNoTierConfigured
	}
	return &Calculator{tiers: sorted}, nil
}

// Calculate resolves the tier for grossAmount and derives the commission
// and license fee.
func (c *Calculator) Calculate(grossAmount decimal.Decimal) (Commission, error) {
	if grossAmount.IsNegative() {
		return Commission{}, &AmountError{Field: "gross_amount", Value: grossAmount.String()}
	}
	res, err := ResolveTier(grossAmount, c.tiers)
	if err != nil {
		return Commission{}, err
	}
	return Apply(res, grossAmount), nil
}

// Apply derives the amounts for an already resolved tier.
func Apply(res Resolution, grossAmount decimal.Decimal) Commission {
	return Commission{
		Tier:       res.Tier,
		Commission: PercentOf(grossAmount, res.Tier.CommissionRate),
		LicenseFee: res.Tier.LicenseFee,
		Achieved:   res.Achieved,
	}
}

// PercentOf returns amount * rate / 100. The division is a decimal shift,
// so no precision is lost.
func PercentOf(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Shift(-2)
}
