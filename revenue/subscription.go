package revenue

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// =============================================================================
// SUBSCRIPTION FEE RESOLVER
// =============================================================================

// FeeSchedule is the effective fee of each active association and their sum.
type FeeSchedule struct {
	Fees  []ProductFee
	Total decimal.Decimal
}

// ResolveFees computes the fees a client owes for its active associations.
//
// Associations with an end date are excluded entirely, whatever the end
// date is relative to the billed period. For each remaining association
// the fee is the custom fee when one is set, otherwise the product's
// standard fee. Associations whose product is not in products (unknown or
// inactive) are skipped. Fees keep the association order.
func ResolveFees(associations []ClientProductAssociation, products []Product) FeeSchedule {
	catalog := lo.SliceToMap(
		lo.Filter(products, func(p Product, _ int) bool { return p.IsActive }),
		func(p Product) (ProductID, Product) { return p.ID, p },
	)

	schedule := FeeSchedule{Fees: []ProductFee{}, Total: decimal.Zero}
	for _, a := range associations {
		if !a.IsActive() {
			continue
		}
		product, ok := catalog[a.ProductID]
		if !ok {
			continue
		}
		fee := product.StandardFee
		if a.CustomFee.Valid {
			fee = a.CustomFee.Decimal
		}
		schedule.Fees = append(schedule.Fees, ProductFee{ProductID: a.ProductID, Amount: fee})
		schedule.Total = schedule.Total.Add(fee)
	}
	return schedule
}

// EffectiveFee returns the fee a client pays for one product, or false if
// the client holds no active association with it.
func EffectiveFee(client Client, product Product) (decimal.Decimal, bool) {
	a, ok := lo.Find(client.Associations, func(a ClientProductAssociation) bool {
		return a.IsActive() && a.ProductID == product.ID
	})
	if !ok {
		return decimal.Zero, false
	}
	if a.CustomFee.Valid {
		return a.CustomFee.Decimal, true
	}
	return product.StandardFee, true
}
