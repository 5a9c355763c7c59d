/*
Package factory provides JSON to Go catalog conversion.

PURPOSE:
  Converts JSON catalog definitions into revenue.Tier and revenue.Product
  values. Operators configure commission brackets and the product catalog
  without code changes; the factory validates and creates the Go structs.

JSON SCHEMA:
  {
    "tiers": [
      {"id": "base", "min_amount": "0",     "commission_rate": "5", "license_fee": "50"},
      {"id": "gold", "min_amount": "10000", "commission_rate": "8", "license_fee": "20"}
    ],
    "products": [
      {"id": "seo", "line": "digitize", "name": "SEO", "standard_fee": "100"}
    ]
  }

  Amounts are decimal strings. JSON numbers are rejected so that values
  never pass through float64.

KEY FEATURES:
  - Validates every amount (non-negative, rates within 0..100)
  - Rejects products of lines without a catalog (prosper, connect)
  - Rejects duplicate IDs inside one catalog
  - Import writes through a CatalogSink (the revenue engine)

USAGE:
  f := factory.NewCatalogFactory()
  catalog, err := f.ParseCatalog(jsonString)
  result, err := f.Import(ctx, engine, catalog)

SEE ALSO:
  - revenue/types.go: Tier and Product definitions
  - api/handlers.go: POST /api/catalog
*/
package factory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/revenue-engine/revenue"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// CatalogJSON is the JSON representation of a catalog.
type CatalogJSON struct {
	Tiers    []TierJSON    `json:"tiers,omitempty"`
	Products []ProductJSON `json:"products,omitempty"`
}

// TierJSON represents one commission bracket.
type TierJSON struct {
	ID             string `json:"id,omitempty"` // Generated when empty
	MinAmount      string `json:"min_amount"`
	CommissionRate string `json:"commission_rate"` // Percent, 0..100
	LicenseFee     string `json:"license_fee"`
}

// ProductJSON represents one catalog product.
type ProductJSON struct {
	ID          string `json:"id,omitempty"`
	Line        string `json:"line"` // grow, digitize
	Name        string `json:"name"`
	StandardFee string `json:"standard_fee"`
	Description string `json:"description,omitempty"`
}

// Catalog is a validated catalog ready for import.
type Catalog struct {
	Tiers    []revenue.Tier
	Products []revenue.Product
}

// CatalogSink receives imported records. *revenue.Engine implements it.
type CatalogSink interface {
	AddTier(ctx context.Context, t revenue.Tier) (revenue.Tier, error)
	AddProduct(ctx context.Context, p revenue.Product) (revenue.Product, error)
}

// ImportResult lists what was stored.
type ImportResult struct {
	Tiers    []revenue.Tier
	Products []revenue.Product
}

// =============================================================================
// CATALOG FACTORY
// =============================================================================

// CatalogFactory converts JSON catalogs to Go structs.
type CatalogFactory struct{}

// NewCatalogFactory creates a new catalog factory.
func NewCatalogFactory() *CatalogFactory {
	return &CatalogFactory{}
}

// ParseCatalog parses a JSON string into a Catalog.
func (f *CatalogFactory) ParseCatalog(jsonStr string) (*Catalog, error) {
	var cj CatalogJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return nil, fmt.Errorf("failed to parse catalog JSON: %w", err)
	}
	return f.FromJSON(cj)
}

// FromJSON validates a CatalogJSON and converts it.
func (f *CatalogFactory) FromJSON(cj CatalogJSON) (*Catalog, error) {
	catalog := &Catalog{
		Tiers:    make([]revenue.Tier, 0, len(cj.Tiers)),
		Products: make([]revenue.Product, 0, len(cj.Products)),
	}

	seen := make(map[string]bool)
	for i, tj := range cj.Tiers {
		tier, err := parseTier(tj)
		if err != nil {
			return nil, fmt.Errorf("tier %d: %w", i, err)
		}
		if tj.ID != "" {
			if seen["tier:"+tj.ID] {
				return nil, fmt.Errorf("tier %d: %w: id %q", i, revenue.ErrDuplicate, tj.ID)
			}
			seen["tier:"+tj.ID] = true
		}
		catalog.Tiers = append(catalog.Tiers, tier)
	}

	for i, pj := range cj.Products {
		product, err := parseProduct(pj)
		if err != nil {
			return nil, fmt.Errorf("product %d: %w", i, err)
		}
		if pj.ID != "" {
			if seen["product:"+pj.ID] {
				return nil, fmt.Errorf("product %d: %w: id %q", i, revenue.ErrDuplicate, pj.ID)
			}
			seen["product:"+pj.ID] = true
		}
		catalog.Products = append(catalog.Products, product)
	}

	return catalog, nil
}

// ToJSON converts tiers and products back to their JSON representation.
func (f *CatalogFactory) ToJSON(tiers []revenue.Tier, products []revenue.Product) CatalogJSON {
	cj := CatalogJSON{}
	for _, t := range tiers {
		cj.Tiers = append(cj.Tiers, TierJSON{
			ID:             string(t.ID),
			MinAmount:      t.MinAmount.String(),
			CommissionRate: t.CommissionRate.String(),
			LicenseFee:     t.LicenseFee.String(),
		})
	}
	for _, p := range products {
		cj.Products = append(cj.Products, ProductJSON{
			ID:          string(p.ID),
			Line:        string(p.Line),
			Name:        p.Name,
			StandardFee: p.StandardFee.String(),
			Description: p.Description,
		})
	}
	return cj
}

// Import stores every tier, then every product. It stops at the first
// failure; records stored before it are kept and reported in the result.
func (f *CatalogFactory) Import(ctx context.Context, sink CatalogSink, catalog *Catalog) (ImportResult, error) {
	result := ImportResult{Tiers: []revenue.Tier{}, Products: []revenue.Product{}}

	for _, t := range catalog.Tiers {
		stored, err := sink.AddTier(ctx, t)
		if err != nil {
			return result, fmt.Errorf("import tier %s: %w", t.ID, err)
		}
		result.Tiers = append(result.Tiers, stored)
	}
	for _, p := range catalog.Products {
		stored, err := sink.AddProduct(ctx, p)
		if err != nil {
			return result, fmt.Errorf("import product %s: %w", p.Name, err)
		}
		result.Products = append(result.Products, stored)
	}
	return result, nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseTier(tj TierJSON) (revenue.Tier, error) {
	minAmount, err := parseAmount("min_amount", tj.MinAmount)
	if err != nil {
		return revenue.Tier{}, err
	}
	rate, err := parseAmount("commission_rate", tj.CommissionRate)
	if err != nil {
		return revenue.Tier{}, err
	}
	fee, err := parseAmount("license_fee", tj.LicenseFee)
	if err != nil {
		return revenue.Tier{}, err
	}

	tier := revenue.Tier{
		ID:             revenue.TierID(tj.ID),
		MinAmount:      minAmount,
		CommissionRate: rate,
		LicenseFee:     fee,
		IsActive:       true,
	}
	if err := revenue.ValidateTier(tier); err != nil {
		return revenue.Tier{}, err
	}
	return tier, nil
}

func parseProduct(pj ProductJSON) (revenue.Product, error) {
	line := revenue.Line(strings.ToLower(strings.TrimSpace(pj.Line)))
	if !line.ProductBased() {
		return revenue.Product{}, fmt.Errorf("%w: %q has no product catalog", revenue.ErrInvalidLine, pj.Line)
	}
	if strings.TrimSpace(pj.Name) == "" {
		return revenue.Product{}, fmt.Errorf("%w: product name required", revenue.ErrInvalidInput)
	}
	fee, err := parseAmount("standard_fee", pj.StandardFee)
	if err != nil {
		return revenue.Product{}, err
	}
	if fee.IsNegative() {
		return revenue.Product{}, &revenue.AmountError{Field: "standard_fee", Value: pj.StandardFee}
	}

	return revenue.Product{
		ID:          revenue.ProductID(pj.ID),
		Line:        line,
		Name:        pj.Name,
		StandardFee: fee,
		Description: pj.Description,
		IsActive:    true,
	}, nil
}

// parseAmount parses a decimal string and tags failures with the field name.
func parseAmount(field, s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, &revenue.AmountError{Field: field, Value: s}
	}
	d, err := revenue.ParseAmount(s)
	if err != nil {
		var amountErr *revenue.AmountError
		if errors.As(err, &amountErr) {
			amountErr.Field = field
		}
		return decimal.Zero, err
	}
	return d, nil
}
