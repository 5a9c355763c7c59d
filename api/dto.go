/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the revenue domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  Every amount travels as a decimal string, in and out. Responses carry the
  exact stored values unless the caller asks for ?round=N, in which case
  amounts are rounded to N places at output time only.

DATES:
  Calendar dates are "2006-01-02"; timestamps are RFC3339.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/catalog.go: CatalogJSON type accepted by POST /api/catalog
*/
package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/warp/revenue-engine/revenue"
)

const dateLayout = "2006-01-02"

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateTierRequest is the request to add a commission tier.
type CreateTierRequest struct {
	ID             string `json:"id,omitempty"`
	MinAmount      string `json:"min_amount"`
	CommissionRate string `json:"commission_rate"`
	LicenseFee     string `json:"license_fee"`
}

// CreateProductRequest is the request to add a catalog product.
type CreateProductRequest struct {
	ID          string `json:"id,omitempty"`
	Line        string `json:"line"`
	Name        string `json:"name"`
	StandardFee string `json:"standard_fee"`
	Description string `json:"description,omitempty"`
}

// CreateClientRequest is the request to add a client, optionally
// subscribed to products of its line.
type CreateClientRequest struct {
	ID             string   `json:"id,omitempty"`
	Line           string   `json:"line"`
	Name           string   `json:"name"`
	StartDate      string   `json:"start_date,omitempty"`
	CommissionRate string   `json:"commission_rate,omitempty"` // connect only
	ProductIDs     []string `json:"product_ids,omitempty"`
}

// StatusRequest changes a client or invoice status.
type StatusRequest struct {
	Status string `json:"status"`
}

// UpdateFeeRequest sets a client's custom fee for a product.
type UpdateFeeRequest struct {
	Fee           string `json:"fee"`
	EffectiveDate string `json:"effective_date,omitempty"`
}

// CloseAssociationRequest ends a client's product subscription.
type CloseAssociationRequest struct {
	EndDate string `json:"end_date,omitempty"`
}

// RecordRevenueRequest records revenue for one line. Which fields are read
// depends on Line:
//
//	prosper:  amount, date
//	connect:  client_id, amount, date
//	grow:     client_id, amount, date
//	digitize: client_id, month, year
type RecordRevenueRequest struct {
	Line     string `json:"line"`
	ClientID string `json:"client_id,omitempty"`
	Amount   string `json:"amount,omitempty"`
	Date     string `json:"date,omitempty"`
	Month    string `json:"month,omitempty"`
	Year     string `json:"year,omitempty"`
}

// GenerateInvoiceRequest generates or regenerates one period invoice.
type GenerateInvoiceRequest struct {
	Line     string `json:"line"`
	ClientID string `json:"client_id,omitempty"`
	Month    string `json:"month"`
	Year     string `json:"year"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// TierDTO represents a commission tier in API responses.
type TierDTO struct {
	ID             string `json:"id"`
	MinAmount      string `json:"min_amount"`
	CommissionRate string `json:"commission_rate"`
	LicenseFee     string `json:"license_fee"`
	IsActive       bool   `json:"is_active"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// QuoteDTO is a commission preview.
type QuoteDTO struct {
	GrossAmount string `json:"gross_amount"`
	TierID      string `json:"tier_id"`
	Commission  string `json:"commission"`
	LicenseFee  string `json:"license_fee"`
	AmountDue   string `json:"amount_due"`
	Achieved    bool   `json:"achieved"`
}

type ProductDTO struct {
	ID          string `json:"id"`
	Line        string `json:"line"`
	Name        string `json:"name"`
	StandardFee string `json:"standard_fee"`
	Description string `json:"description,omitempty"`
	IsActive    bool   `json:"is_active"`
}

// AssociationDTO is one client/product subscription. CustomFee is null
// when the standard fee applies.
type AssociationDTO struct {
	ID        string  `json:"id"`
	ProductID string  `json:"product_id"`
	CustomFee *string `json:"custom_fee"`
	StartDate string  `json:"start_date"`
	EndDate   *string `json:"end_date,omitempty"`
	Active    bool    `json:"active"`
}

type ClientDTO struct {
	ID             string           `json:"id"`
	Line           string           `json:"line"`
	Name           string           `json:"name"`
	StartDate      string           `json:"start_date"`
	Status         string           `json:"status"`
	CommissionRate string           `json:"commission_rate,omitempty"`
	Products       []AssociationDTO `json:"products"`
}

type ClientStatsDTO struct {
	ClientID       string `json:"client_id"`
	TotalRevenue   string `json:"total_revenue"`
	TotalDue       string `json:"total_due"`
	ActiveProducts int    `json:"active_products"`
	RevenueCount   int    `json:"revenue_count"`
}

type ProductFeeDTO struct {
	ProductID string `json:"product_id"`
	Amount    string `json:"amount"`
}

// RevenueEventDTO represents a recorded revenue event.
type RevenueEventDTO struct {
	ID          string          `json:"id"`
	Line        string          `json:"line"`
	ClientID    string          `json:"client_id,omitempty"`
	Date        string          `json:"date"`
	GrossAmount string          `json:"gross_amount"`
	Commission  string          `json:"commission"`
	LicenseFee  string          `json:"license_fee"`
	TierID      string          `json:"tier_id,omitempty"`
	Achieved    bool            `json:"achieved"`
	Fees        []ProductFeeDTO `json:"fees"`
	CreatedAt   string          `json:"created_at"`
}

// TotalsDTO is an aggregation over revenue events.
type TotalsDTO struct {
	Gross         string          `json:"gross"`
	Commission    string          `json:"commission"`
	LicenseFee    string          `json:"license_fee"`
	AmountDue     string          `json:"amount_due"`
	EventCount    int             `json:"event_count"`
	AchievedCount int             `json:"achieved_count"`
	ProductFees   []ProductFeeDTO `json:"product_fees"`
}

// StatsDTO is the response of GET /api/revenue/stats.
type StatsDTO struct {
	Line     string           `json:"line"`
	ClientID string           `json:"client_id,omitempty"`
	Month    string           `json:"month,omitempty"`
	Year     string           `json:"year,omitempty"`
	From     string           `json:"from,omitempty"`
	To       string           `json:"to,omitempty"`
	Totals   *TotalsDTO       `json:"totals,omitempty"`
	History  []MonthlyStatDTO `json:"history,omitempty"`
}

type MonthlyStatDTO struct {
	Month  string    `json:"month"`
	Year   string    `json:"year"`
	Totals TotalsDTO `json:"totals"`
}

// InvoiceDTO represents a period invoice.
type InvoiceDTO struct {
	ID              string  `json:"id"`
	Number          string  `json:"number"`
	Line            string  `json:"line"`
	ClientID        string  `json:"client_id,omitempty"`
	Month           string  `json:"month"`
	Year            string  `json:"year"`
	TotalGross      string  `json:"total_gross"`
	TotalCommission string  `json:"total_commission"`
	TotalLicenseFee string  `json:"total_license_fee"`
	AmountDue       string  `json:"amount_due"`
	EventCount      int     `json:"event_count"`
	AchievedCount   int     `json:"achieved_count"`
	Status          string  `json:"status"`
	GeneratedAt     string  `json:"generated_at"`
	UpdatedAt       string  `json:"updated_at"`
	PaidAt          *string `json:"paid_at,omitempty"`
}

// ImportCatalogResponse lists what POST /api/catalog stored.
type ImportCatalogResponse struct {
	Tiers    []TierDTO    `json:"tiers"`
	Products []ProductDTO `json:"products"`
}

// ErrorResponse is the JSON body of every error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// AMOUNT FORMATTING
// =============================================================================

// amountFormat renders amounts exactly, or rounded when places >= 0.
type amountFormat struct {
	places int32
}

var exact = amountFormat{places: -1}

// parseRound reads the optional ?round=N query parameter.
func parseRound(raw string) (amountFormat, error) {
	if raw == "" {
		return exact, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > 10 {
		return exact, fmt.Errorf("%w: round must be an integer 0..10, got %q", revenue.ErrInvalidInput, raw)
	}
	return amountFormat{places: int32(n)}, nil
}

func (f amountFormat) str(d decimal.Decimal) string {
	if f.places < 0 {
		return d.String()
	}
	return revenue.RoundMinor(d, f.places).StringFixed(f.places)
}

// =============================================================================
// DOMAIN -> DTO
// =============================================================================

func toTierDTO(t revenue.Tier) TierDTO {
	dto := TierDTO{
		ID:             string(t.ID),
		MinAmount:      t.MinAmount.String(),
		CommissionRate: t.CommissionRate.String(),
		LicenseFee:     t.LicenseFee.String(),
		IsActive:       t.IsActive,
	}
	if !t.CreatedAt.IsZero() {
		dto.CreatedAt = t.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func toQuoteDTO(gross decimal.Decimal, c revenue.Commission, f amountFormat) QuoteDTO {
	return QuoteDTO{
		GrossAmount: f.str(gross),
		TierID:      string(c.Tier.ID),
		Commission:  f.str(c.Commission),
		LicenseFee:  f.str(c.LicenseFee),
		AmountDue:   f.str(c.Commission.Add(c.LicenseFee)),
		Achieved:    c.Achieved,
	}
}

func toProductDTO(p revenue.Product) ProductDTO {
	return ProductDTO{
		ID:          string(p.ID),
		Line:        string(p.Line),
		Name:        p.Name,
		StandardFee: p.StandardFee.String(),
		Description: p.Description,
		IsActive:    p.IsActive,
	}
}

func toAssociationDTO(a revenue.ClientProductAssociation) AssociationDTO {
	dto := AssociationDTO{
		ID:        string(a.ID),
		ProductID: string(a.ProductID),
		StartDate: a.StartDate.Format(dateLayout),
		Active:    a.IsActive(),
	}
	if a.CustomFee.Valid {
		dto.CustomFee = lo.ToPtr(a.CustomFee.Decimal.String())
	}
	if a.EndDate != nil {
		dto.EndDate = lo.ToPtr(a.EndDate.Format(dateLayout))
	}
	return dto
}

func toClientDTO(c revenue.Client) ClientDTO {
	dto := ClientDTO{
		ID:        string(c.ID),
		Line:      string(c.Line),
		Name:      c.Name,
		StartDate: c.StartDate.Format(dateLayout),
		Status:    string(c.Status),
		Products:  lo.Map(c.Associations, func(a revenue.ClientProductAssociation, _ int) AssociationDTO { return toAssociationDTO(a) }),
	}
	if c.Line == revenue.LineConnect {
		dto.CommissionRate = c.CommissionRate.String()
	}
	return dto
}

func toClientStatsDTO(s revenue.ClientStats, f amountFormat) ClientStatsDTO {
	return ClientStatsDTO{
		ClientID:       string(s.ClientID),
		TotalRevenue:   f.str(s.TotalRevenue),
		TotalDue:       f.str(s.TotalDue),
		ActiveProducts: s.ActiveProducts,
		RevenueCount:   s.RevenueCount,
	}
}

func toFeeDTOs(fees []revenue.ProductFee, f amountFormat) []ProductFeeDTO {
	return lo.Map(fees, func(pf revenue.ProductFee, _ int) ProductFeeDTO {
		return ProductFeeDTO{ProductID: string(pf.ProductID), Amount: f.str(pf.Amount)}
	})
}

func toEventDTO(e revenue.RevenueEvent, f amountFormat) RevenueEventDTO {
	return RevenueEventDTO{
		ID:          string(e.ID),
		Line:        string(e.Line),
		ClientID:    string(e.ClientID),
		Date:        e.Date.Format(dateLayout),
		GrossAmount: f.str(e.GrossAmount),
		Commission:  f.str(e.Commission),
		LicenseFee:  f.str(e.LicenseFee),
		TierID:      string(e.TierID),
		Achieved:    e.Achieved,
		Fees:        toFeeDTOs(e.Fees, f),
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
}

func toTotalsDTO(t revenue.Totals, f amountFormat) TotalsDTO {
	return TotalsDTO{
		Gross:         f.str(t.Gross),
		Commission:    f.str(t.Commission),
		LicenseFee:    f.str(t.LicenseFee),
		AmountDue:     f.str(t.AmountDue()),
		EventCount:    t.EventCount,
		AchievedCount: t.AchievedCount,
		ProductFees:   toFeeDTOs(t.ProductFees, f),
	}
}

func toInvoiceDTO(inv revenue.PeriodInvoice, f amountFormat) InvoiceDTO {
	dto := InvoiceDTO{
		ID:              string(inv.ID),
		Number:          inv.Number,
		Line:            string(inv.Line),
		ClientID:        string(inv.ClientID),
		Month:           inv.Period.Month,
		Year:            inv.Period.Year,
		TotalGross:      f.str(inv.TotalGross),
		TotalCommission: f.str(inv.TotalCommission),
		TotalLicenseFee: f.str(inv.TotalLicenseFee),
		AmountDue:       f.str(inv.AmountDue()),
		EventCount:      inv.EventCount,
		AchievedCount:   inv.AchievedCount,
		Status:          string(inv.Status),
		GeneratedAt:     inv.GeneratedAt.Format(time.RFC3339),
		UpdatedAt:       inv.UpdatedAt.Format(time.RFC3339),
	}
	if inv.PaidAt != nil {
		dto.PaidAt = lo.ToPtr(inv.PaidAt.Format(time.RFC3339))
	}
	return dto
}

// =============================================================================
// DTO -> DOMAIN
// =============================================================================

// parseLine normalises a line name. Empty input is allowed when optional.
func parseLine(raw string, optional bool) (revenue.Line, error) {
	line := revenue.Line(strings.ToLower(strings.TrimSpace(raw)))
	if line == "" && optional {
		return "", nil
	}
	if !line.Valid() {
		return "", fmt.Errorf("%w: %q", revenue.ErrInvalidLine, raw)
	}
	return line, nil
}

// parseDate parses an optional calendar date; empty yields the zero time.
func parseDate(field, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD, got %q", revenue.ErrInvalidInput, field, raw)
	}
	return t, nil
}

// parseRequiredAmount parses a decimal string field that must be present.
func parseRequiredAmount(field, raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, &revenue.AmountError{Field: field, Value: raw}
	}
	d, err := revenue.ParseAmount(raw)
	if err != nil {
		return decimal.Zero, &revenue.AmountError{Field: field, Value: raw, Err: err}
	}
	return d, nil
}

func (req CreateTierRequest) toTier() (revenue.Tier, error) {
	minAmount, err := parseRequiredAmount("min_amount", req.MinAmount)
	if err != nil {
		return revenue.Tier{}, err
	}
	rate, err := parseRequiredAmount("commission_rate", req.CommissionRate)
	if err != nil {
		return revenue.Tier{}, err
	}
	fee, err := parseRequiredAmount("license_fee", req.LicenseFee)
	if err != nil {
		return revenue.Tier{}, err
	}
	return revenue.Tier{
		ID:             revenue.TierID(req.ID),
		MinAmount:      minAmount,
		CommissionRate: rate,
		LicenseFee:     fee,
	}, nil
}

func (req CreateProductRequest) toProduct() (revenue.Product, error) {
	line, err := parseLine(req.Line, false)
	if err != nil {
		return revenue.Product{}, err
	}
	fee, err := parseRequiredAmount("standard_fee", req.StandardFee)
	if err != nil {
		return revenue.Product{}, err
	}
	return revenue.Product{
		ID:          revenue.ProductID(req.ID),
		Line:        line,
		Name:        req.Name,
		StandardFee: fee,
		Description: req.Description,
	}, nil
}

func (req CreateClientRequest) toClient() (revenue.Client, []revenue.ProductID, error) {
	line, err := parseLine(req.Line, false)
	if err != nil {
		return revenue.Client{}, nil, err
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		return revenue.Client{}, nil, err
	}
	rate := decimal.Zero
	if req.CommissionRate != "" {
		if rate, err = parseRequiredAmount("commission_rate", req.CommissionRate); err != nil {
			return revenue.Client{}, nil, err
		}
	}
	client := revenue.Client{
		ID:             revenue.ClientID(req.ID),
		Line:           line,
		Name:           req.Name,
		StartDate:      start,
		CommissionRate: rate,
	}
	products := lo.Map(req.ProductIDs, func(id string, _ int) revenue.ProductID { return revenue.ProductID(id) })
	return client, products, nil
}

// toRecording builds the Recording variant for the request's line.
func (req RecordRevenueRequest) toRecording() (revenue.Recording, error) {
	line, err := parseLine(req.Line, false)
	if err != nil {
		return nil, err
	}

	if line == revenue.LineDigitize {
		period, err := revenue.ParsePeriod(req.Month, req.Year)
		if err != nil {
			return nil, err
		}
		return revenue.DigitizeRecording{ClientID: revenue.ClientID(req.ClientID), Period: period}, nil
	}

	amount, err := parseRequiredAmount("amount", req.Amount)
	if err != nil {
		return nil, err
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		return nil, err
	}

	switch line {
	case revenue.LineProsper:
		if req.ClientID != "" {
			return nil, fmt.Errorf("%w: prosper revenue has no client", revenue.ErrLineMismatch)
		}
		return revenue.ProsperRecording{GrossAmount: amount, Date: date}, nil
	case revenue.LineConnect:
		return revenue.ConnectRecording{ClientID: revenue.ClientID(req.ClientID), GrossBookings: amount, Date: date}, nil
	default:
		return revenue.GrowRecording{ClientID: revenue.ClientID(req.ClientID), GrossBookings: amount, Date: date}, nil
	}
}

func (req GenerateInvoiceRequest) toInvoiceRequest() (revenue.InvoiceRequest, error) {
	line, err := parseLine(req.Line, false)
	if err != nil {
		return revenue.InvoiceRequest{}, err
	}
	period, err := revenue.ParsePeriod(req.Month, req.Year)
	if err != nil {
		return revenue.InvoiceRequest{}, err
	}
	return revenue.InvoiceRequest{Line: line, ClientID: revenue.ClientID(req.ClientID), Period: period}, nil
}
