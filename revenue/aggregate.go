package revenue

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PERIOD AGGREGATOR
// =============================================================================

// Filter selects the events an aggregation covers. A zero Line matches
// every line; NoClient matches every client unless ExactClient is set, in
// which case only events without a client match.
type Filter struct {
	Line        Line
	ClientID    ClientID
	ExactClient bool
	Window      Window
}

// Match reports whether e belongs to the filter.
func (f Filter) Match(e RevenueEvent) bool {
	if f.Line != "" && e.Line != f.Line {
		return false
	}
	if (f.ClientID != NoClient || f.ExactClient) && e.ClientID != f.ClientID {
		return false
	}
	if f.Window != nil && !f.Window.Contains(e.Date) {
		return false
	}
	return true
}

// Totals are decimal sums over a set of events.
type Totals struct {
	Gross         decimal.Decimal
	Commission    decimal.Decimal
	LicenseFee    decimal.Decimal
	EventCount    int
	AchievedCount int

	// ProductFees sums fee breakdowns per product, ordered by product ID.
	ProductFees []ProductFee
}

// AmountDue is commission plus license fees.
func (t Totals) AmountDue() decimal.Decimal { return t.Commission.Add(t.LicenseFee) }

// Aggregate sums the events matching f. Decimal addition is exact, so the
// result does not depend on event order.
func Aggregate(events []RevenueEvent, f Filter) Totals {
	totals := Totals{
		Gross:       decimal.Zero,
		Commission:  decimal.Zero,
		LicenseFee:  decimal.Zero,
		ProductFees: []ProductFee{},
	}
	byProduct := make(map[ProductID]decimal.Decimal)

	for _, e := range events {
		if !f.Match(e) {
			continue
		}
		totals.Gross = totals.Gross.Add(e.GrossAmount)
		totals.Commission = totals.Commission.Add(e.Commission)
		totals.LicenseFee = totals.LicenseFee.Add(e.LicenseFee)
		totals.EventCount++
		if e.Achieved {
			totals.AchievedCount++
		}
		for _, fee := range e.Fees {
			sum, ok := byProduct[fee.ProductID]
			if !ok {
				sum = decimal.Zero
			}
			byProduct[fee.ProductID] = sum.Add(fee.Amount)
		}
	}

	for id, amount := range byProduct {
		totals.ProductFees = append(totals.ProductFees, ProductFee{ProductID: id, Amount: amount})
	}
	sort.Slice(totals.ProductFees, func(i, j int) bool {
		return totals.ProductFees[i].ProductID < totals.ProductFees[j].ProductID
	})
	return totals
}

// ClientStats summarises a client's recorded revenue.
type ClientStats struct {
	ClientID       ClientID
	TotalRevenue   decimal.Decimal
	TotalDue       decimal.Decimal
	ActiveProducts int
	RevenueCount   int
}

// SummarizeClient computes stats for one client from its events.
// TotalRevenue is the summed gross amount of the client's events.
func SummarizeClient(client Client, events []RevenueEvent) ClientStats {
	totals := Aggregate(events, Filter{ClientID: client.ID, ExactClient: true})
	return ClientStats{
		ClientID:       client.ID,
		TotalRevenue:   totals.Gross,
		TotalDue:       totals.AmountDue(),
		ActiveProducts: len(client.ActiveAssociations()),
		RevenueCount:   totals.EventCount,
	}
}
