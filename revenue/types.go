/*
Package revenue provides the revenue-sharing and invoice aggregation engine.

PURPOSE:
  This package contains the types and algorithms that turn bookings into
  revenue-sharing obligations and roll them up into period invoices. Four
  revenue lines share one engine: threshold-tier commissions (Prosper),
  per-client commission rates (Connect), per-client product license fees
  (Grow) and monthly product subscriptions (Digitize).

KEY CONCEPTS IN THIS FILE (types.go):
  - Line: The revenue line a record belongs to
  - Tier: A commission bracket keyed by a minimum gross amount
  - Product / Client / ClientProductAssociation: Subscription configuration
  - RevenueEvent: An immutable record of computed obligations
  - PeriodInvoice: Period totals keyed by (line, client, month, year)

DESIGN PRINCIPLES:
  1. Precision: Money is decimal.Decimal end to end, never float64
  2. Immutability: Revenue events are computed once and never recomputed
  3. History: Fee changes close an association and open a new one
  4. Monotone status: A PAID invoice never goes back to DRAFT

USAGE:
  engine := revenue.NewEngine(store)
  event, err := engine.Record(ctx, revenue.ProsperRecording{
      GrossAmount: decimal.RequireFromString("12000"),
      Date:        time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
  })

SEE ALSO:
  - tier.go: Tier resolution
  - commission.go: Commission and license fee calculation
  - subscription.go: Subscription fee resolution
  - aggregate.go: Period aggregation
  - invoice.go: Invoice merge rules
  - engine.go: Orchestration over a Store
*/
package revenue

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LINES
// =============================================================================

// Line identifies a revenue line. It is the discriminant for recordings,
// products, clients and invoices.
type Line string

const (
	LineProsper  Line = "prosper"  // Threshold-tier commission + flat license fee
	LineConnect  Line = "connect"  // Per-client commission rate on gross bookings
	LineGrow     Line = "grow"     // Gross bookings + per-product license fees
	LineDigitize Line = "digitize" // Monthly product subscriptions
)

// Lines lists every known line in a stable order.
var Lines = []Line{LineProsper, LineConnect, LineGrow, LineDigitize}

// Valid reports whether l is a known line.
func (l Line) Valid() bool {
	switch l {
	case LineProsper, LineConnect, LineGrow, LineDigitize:
		return true
	}
	return false
}

// PerClient reports whether invoices of this line are keyed by client.
func (l Line) PerClient() bool { return l != LineProsper }

// ProductBased reports whether the line bills through product associations.
func (l Line) ProductBased() bool { return l == LineGrow || l == LineDigitize }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TierID string
type ProductID string
type ClientID string
type AssociationID string
type EventID string
type InvoiceID string

// NoClient is the ClientID of records that are not per-client.
const NoClient ClientID = ""

// =============================================================================
// TIER TABLE
// =============================================================================

// Tier is a commission bracket. CommissionRate is a percentage (8 = 8%).
// LicenseFee is a flat amount, not scaled by the gross amount.
type Tier struct {
	ID             TierID
	MinAmount      decimal.Decimal
	CommissionRate decimal.Decimal
	LicenseFee     decimal.Decimal
	IsActive       bool
	CreatedAt      time.Time
}

// =============================================================================
// PRODUCTS, CLIENTS, ASSOCIATIONS
// =============================================================================

type Product struct {
	ID          ProductID
	Line        Line
	Name        string
	StandardFee decimal.Decimal
	Description string
	IsActive    bool
	CreatedAt   time.Time
}

type ClientStatus string

const (
	ClientActive   ClientStatus = "ACTIVE"
	ClientInactive ClientStatus = "INACTIVE"
)

func (s ClientStatus) Valid() bool { return s == ClientActive || s == ClientInactive }

// Client is a billed party. CommissionRate is only meaningful for the
// connect line.
type Client struct {
	ID             ClientID
	Line           Line
	Name           string
	StartDate      time.Time
	Status         ClientStatus
	CommissionRate decimal.Decimal
	Associations   []ClientProductAssociation
	CreatedAt      time.Time
}

// ActiveAssociations returns the associations without an end date.
func (c Client) ActiveAssociations() []ClientProductAssociation {
	var active []ClientProductAssociation
	for _, a := range c.Associations {
		if a.IsActive() {
			active = append(active, a)
		}
	}
	return active
}

// ClientProductAssociation links a client to a product. A set CustomFee
// overrides the product's standard fee, including a custom fee of zero.
type ClientProductAssociation struct {
	ID        AssociationID
	ClientID  ClientID
	ProductID ProductID
	CustomFee decimal.NullDecimal
	StartDate time.Time
	EndDate   *time.Time
}

// IsActive reports whether the association is open. The end date is not
// compared against any billing period.
func (a ClientProductAssociation) IsActive() bool { return a.EndDate == nil }

// =============================================================================
// REVENUE EVENTS
// =============================================================================

// ProductFee is one product's share of a product-based revenue event.
type ProductFee struct {
	ProductID ProductID
	Amount    decimal.Decimal
}

// RevenueEvent is the immutable result of a recording. Commission,
// LicenseFee and Achieved are computed at creation and never recomputed,
// even if tiers or fees change later.
type RevenueEvent struct {
	ID          EventID
	Line        Line
	ClientID    ClientID
	Date        time.Time
	GrossAmount decimal.Decimal
	Commission  decimal.Decimal
	LicenseFee  decimal.Decimal
	TierID      TierID
	Achieved    bool
	Fees        []ProductFee
	CreatedAt   time.Time
}

// =============================================================================
// INVOICES
// =============================================================================

type InvoiceStatus string

const (
	StatusDraft   InvoiceStatus = "DRAFT"
	StatusSent    InvoiceStatus = "SENT"
	StatusPaid    InvoiceStatus = "PAID"
	StatusOverdue InvoiceStatus = "OVERDUE"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusPaid, StatusOverdue:
		return true
	}
	return false
}

// InvoiceKey is the uniqueness key of a period invoice.
type InvoiceKey struct {
	Line     Line
	ClientID ClientID
	Period   Period
}

func (k InvoiceKey) String() string {
	if k.ClientID == NoClient {
		return string(k.Line) + "/" + k.Period.String()
	}
	return string(k.Line) + "/" + string(k.ClientID) + "/" + k.Period.String()
}

type PeriodInvoice struct {
	ID              InvoiceID
	Number          string
	Line            Line
	ClientID        ClientID
	Period          Period
	TotalGross      decimal.Decimal
	TotalCommission decimal.Decimal
	TotalLicenseFee decimal.Decimal
	EventCount      int
	AchievedCount   int
	Status          InvoiceStatus
	GeneratedAt     time.Time
	UpdatedAt       time.Time
	PaidAt          *time.Time
}

func (inv PeriodInvoice) Key() InvoiceKey {
	return InvoiceKey{Line: inv.Line, ClientID: inv.ClientID, Period: inv.Period}
}

// AmountDue is what the invoice bills: commission plus license fees.
func (inv PeriodInvoice) AmountDue() decimal.Decimal {
	return inv.TotalCommission.Add(inv.TotalLicenseFee)
}

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

var hundred = decimal.NewFromInt(100)

// ParseAmount parses a decimal string. Empty input is an error.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &AmountError{Value: s, Err: err}
	}
	return d, nil
}

// MustParseDecimal parses s or returns zero. Only for values already
// validated on write (stored columns).
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// RoundMinor rounds to a currency's minor unit. Apply at output time only.
func RoundMinor(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Round(places)
}
