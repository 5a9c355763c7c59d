/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Tier quotes and prosper recording
- Client subscriptions, digitize recording and the invoice lifecycle
- Request validation and error status mapping
- Catalog import and the /metrics endpoint
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/revenue-engine/factory"
	"github.com/warp/revenue-engine/metrics"
	"github.com/warp/revenue-engine/revenue"
	"github.com/warp/revenue-engine/revenue/store"
)

var fixedNow = time.Date(2024, time.February, 2, 9, 30, 0, 0, time.UTC)

func newTestEngine(opts ...revenue.Option) *revenue.Engine {
	seq := 0
	base := []revenue.Option{
		revenue.WithClock(func() time.Time { return fixedNow }),
		revenue.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("id-%03d", seq)
		}),
	}
	return revenue.NewEngine(store.NewTxMemory(), append(base, opts...)...)
}

func newTestRouter(engine *revenue.Engine, m *metrics.Metrics) *chi.Mux {
	return NewRouter(NewHandler(engine, nil), RouterOptions{
		AllowedOrigins: []string{"http://localhost:5173"},
		Metrics:        m,
	})
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func seedTierRequests(t *testing.T, r http.Handler) {
	t.Helper()
	for _, tier := range []CreateTierRequest{
		{ID: "base", MinAmount: "0", CommissionRate: "5", LicenseFee: "50"},
		{ID: "gold", MinAmount: "10000", CommissionRate: "8", LicenseFee: "20"},
	} {
		rec := do(t, r, http.MethodPost, "/api/tiers", tier)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
}

// =============================================================================
// TIERS AND PROSPER
// =============================================================================

func TestQuoteAndRecordProsper(t *testing.T) {
	// GIVEN: the two standard tiers
	// WHEN: quoting and then recording a 12000 prosper amount
	// THEN: the gold tier applies, quotes round on request, events stay exact

	r := newTestRouter(newTestEngine(), nil)
	seedTierRequests(t, r)

	tiers := decodeAs[[]TierDTO](t, do(t, r, http.MethodGet, "/api/tiers", nil))
	require.Len(t, tiers, 2)
	assert.Equal(t, "base", tiers[0].ID)

	rec := do(t, r, http.MethodGet, "/api/tiers/quote?amount=12000&round=2", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	quote := decodeAs[QuoteDTO](t, rec)
	assert.Equal(t, "gold", quote.TierID)
	assert.Equal(t, "960.00", quote.Commission)
	assert.Equal(t, "20.00", quote.LicenseFee)
	assert.Equal(t, "980.00", quote.AmountDue)
	assert.True(t, quote.Achieved)

	rec = do(t, r, http.MethodPost, "/api/revenue", RecordRevenueRequest{Line: "prosper", Amount: "12000", Date: "2024-01-15"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	event := decodeAs[RevenueEventDTO](t, rec)
	assert.Equal(t, "960", event.Commission)
	assert.Equal(t, "2024-01-15", event.Date)
	assert.Equal(t, "gold", event.TierID)
	assert.Empty(t, event.ClientID)

	events := decodeAs[[]RevenueEventDTO](t, do(t, r, http.MethodGet, "/api/revenue?line=prosper&month=01&year=2024", nil))
	assert.Len(t, events, 1)
	events = decodeAs[[]RevenueEventDTO](t, do(t, r, http.MethodGet, "/api/revenue?line=prosper&month=02&year=2024", nil))
	assert.Empty(t, events)
}

func TestQuote_NoTiers_Conflict(t *testing.T) {
	r := newTestRouter(newTestEngine(), nil)

	rec := do(t, r, http.MethodGet, "/api/tiers/quote?amount=100", nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decodeAs[ErrorResponse](t, rec).Details, "no active tier")
}

func TestRevenueStats_PeriodAndHistory(t *testing.T) {
	r := newTestRouter(newTestEngine(), nil)
	seedTierRequests(t, r)

	for _, body := range []RecordRevenueRequest{
		{Line: "prosper", Amount: "500", Date: "2024-01-10"},
		{Line: "prosper", Amount: "12000", Date: "2024-01-20"},
		{Line: "prosper", Amount: "100", Date: "2023-12-31"},
	} {
		require.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/api/revenue", body).Code)
	}

	stats := decodeAs[StatsDTO](t, do(t, r, http.MethodGet, "/api/revenue/stats?line=prosper&month=01&year=2024", nil))
	require.NotNil(t, stats.Totals)
	assert.Equal(t, "12500", stats.Totals.Gross)
	assert.Equal(t, "985", stats.Totals.Commission) // 25 + 960
	assert.Equal(t, 2, stats.Totals.EventCount)
	assert.Equal(t, 2, stats.Totals.AchievedCount)

	history := decodeAs[StatsDTO](t, do(t, r, http.MethodGet, "/api/revenue/stats?line=prosper", nil))
	require.Len(t, history.History, 2)
	assert.Equal(t, "01", history.History[0].Month, "newest first")
	assert.Equal(t, "2023", history.History[1].Year)
}

// =============================================================================
// CLIENTS, DIGITIZE, INVOICES
// =============================================================================

func TestDigitizeInvoiceLifecycle(t *testing.T) {
	// GIVEN: a digitize client subscribed to two products, one with a custom fee
	// WHEN: recording January and generating its invoice
	// THEN: the invoice bills the resolved fees and follows status rules

	r := newTestRouter(newTestEngine(), nil)

	for _, p := range []CreateProductRequest{
		{ID: "seo", Line: "digitize", Name: "SEO", StandardFee: "100"},
		{ID: "ads", Line: "digitize", Name: "Ads", StandardFee: "90"},
	} {
		require.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/api/products", p).Code)
	}
	products := decodeAs[[]ProductDTO](t, do(t, r, http.MethodGet, "/api/products?line=digitize", nil))
	assert.Len(t, products, 2)

	rec := do(t, r, http.MethodPost, "/api/clients", CreateClientRequest{
		ID: "acme", Line: "digitize", Name: "Acme", StartDate: "2024-01-01", ProductIDs: []string{"seo", "ads"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	client := decodeAs[ClientDTO](t, rec)
	assert.Equal(t, "ACTIVE", client.Status)
	require.Len(t, client.Products, 2)
	assert.Nil(t, client.Products[0].CustomFee)

	rec = do(t, r, http.MethodPost, "/api/clients/acme/products/ads/fee", UpdateFeeRequest{Fee: "75"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assoc := decodeAs[AssociationDTO](t, rec)
	require.NotNil(t, assoc.CustomFee)
	assert.Equal(t, "75", *assoc.CustomFee)

	rec = do(t, r, http.MethodPost, "/api/revenue", RecordRevenueRequest{Line: "digitize", ClientID: "acme", Month: "01", Year: "2024"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	event := decodeAs[RevenueEventDTO](t, rec)
	assert.Equal(t, "175", event.GrossAmount)
	assert.Equal(t, []ProductFeeDTO{{ProductID: "seo", Amount: "100"}, {ProductID: "ads", Amount: "75"}}, event.Fees)

	rec = do(t, r, http.MethodPost, "/api/invoices/generate", GenerateInvoiceRequest{Line: "digitize", ClientID: "acme", Month: "01", Year: "2024"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	inv := decodeAs[InvoiceDTO](t, rec)
	assert.Equal(t, "DIG-000001", inv.Number)
	assert.Equal(t, "DRAFT", inv.Status)
	assert.Equal(t, "175", inv.AmountDue)

	rec = do(t, r, http.MethodPost, "/api/invoices/"+inv.ID+"/status", StatusRequest{Status: "PAID"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotNil(t, decodeAs[InvoiceDTO](t, rec).PaidAt)

	rec = do(t, r, http.MethodPost, "/api/invoices/"+inv.ID+"/status", StatusRequest{Status: "SENT"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	got := decodeAs[InvoiceDTO](t, do(t, r, http.MethodGet, "/api/invoices/"+inv.ID+"?round=2", nil))
	assert.Equal(t, "175.00", got.AmountDue)
	assert.Equal(t, "PAID", got.Status)

	listed := decodeAs[[]InvoiceDTO](t, do(t, r, http.MethodGet, "/api/invoices?line=digitize&status=PAID", nil))
	assert.Len(t, listed, 1)

	stats := decodeAs[ClientStatsDTO](t, do(t, r, http.MethodGet, "/api/clients/acme/stats", nil))
	assert.Equal(t, "175", stats.TotalRevenue)
	assert.Equal(t, 2, stats.ActiveProducts)
	assert.Equal(t, 1, stats.RevenueCount)

	full := decodeAs[ClientDTO](t, do(t, r, http.MethodGet, "/api/clients/acme", nil))
	assert.Len(t, full.Products, 3, "fee change keeps the closed association")
}

func TestClientStatusAndClose(t *testing.T) {
	r := newTestRouter(newTestEngine(), nil)
	require.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/api/products",
		CreateProductRequest{ID: "ads", Line: "grow", Name: "Ads", StandardFee: "49"}).Code)
	require.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/api/clients",
		CreateClientRequest{ID: "g1", Line: "grow", Name: "Grower", ProductIDs: []string{"ads"}}).Code)

	rec := do(t, r, http.MethodPost, "/api/clients/g1/status", StatusRequest{Status: "INACTIVE"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "INACTIVE", decodeAs[ClientDTO](t, rec).Status)

	rec = do(t, r, http.MethodPost, "/api/clients/g1/status", StatusRequest{Status: "ASLEEP"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodPost, "/api/clients/g1/products/ads/close", CloseAssociationRequest{EndDate: "2024-01-31"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, r, http.MethodPost, "/api/clients/g1/products/ads/close", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "nothing left to close")

	clients := decodeAs[[]ClientDTO](t, do(t, r, http.MethodGet, "/api/clients?line=grow", nil))
	require.Len(t, clients, 1)
	require.NotNil(t, clients[0].Products[0].EndDate)
	assert.Equal(t, "2024-01-31", *clients[0].Products[0].EndDate)
}

func TestConnectClient_CommissionRate(t *testing.T) {
	r := newTestRouter(newTestEngine(), nil)

	rec := do(t, r, http.MethodPost, "/api/clients", CreateClientRequest{ID: "c1", Line: "connect", Name: "Partner", CommissionRate: "12.5"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "12.5", decodeAs[ClientDTO](t, rec).CommissionRate)

	rec = do(t, r, http.MethodPost, "/api/revenue", RecordRevenueRequest{Line: "connect", ClientID: "c1", Amount: "2000", Date: "2024-01-05"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "250", decodeAs[RevenueEventDTO](t, rec).Commission)

	rec = do(t, r, http.MethodPost, "/api/invoices/generate", GenerateInvoiceRequest{Line: "connect", ClientID: "c1", Month: "01", Year: "2024"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "CON-000001", decodeAs[InvoiceDTO](t, rec).Number)
}

// =============================================================================
// VALIDATION AND ERROR MAPPING
// =============================================================================

func TestRequestValidation(t *testing.T) {
	r := newTestRouter(newTestEngine(), nil)
	seedTierRequests(t, r)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"malformed body", http.MethodPost, "/api/revenue", `{"line":`, http.StatusBadRequest},
		{"unknown line", http.MethodPost, "/api/revenue", RecordRevenueRequest{Line: "retail", Amount: "1"}, http.StatusBadRequest},
		{"missing amount", http.MethodPost, "/api/revenue", RecordRevenueRequest{Line: "prosper"}, http.StatusBadRequest},
		{"numeric nonsense", http.MethodPost, "/api/revenue", RecordRevenueRequest{Line: "prosper", Amount: "1e"}, http.StatusBadRequest},
		{"bad date", http.MethodPost, "/api/revenue", RecordRevenueRequest{Line: "prosper", Amount: "1", Date: "15/01/2024"}, http.StatusBadRequest},
		{"prosper with client", http.MethodPost, "/api/revenue", RecordRevenueRequest{Line: "prosper", ClientID: "x", Amount: "1"}, http.StatusBadRequest},
		{"negative amount", http.MethodPost, "/api/revenue", RecordRevenueRequest{Line: "prosper", Amount: "-5"}, http.StatusBadRequest},
		{"unknown client", http.MethodPost, "/api/revenue", RecordRevenueRequest{Line: "connect", ClientID: "ghost", Amount: "1"}, http.StatusNotFound},
		{"bad period", http.MethodPost, "/api/revenue", RecordRevenueRequest{Line: "digitize", ClientID: "x", Month: "13", Year: "2024"}, http.StatusBadRequest},
		{"invoice for missing client", http.MethodPost, "/api/invoices/generate", GenerateInvoiceRequest{Line: "grow", ClientID: "ghost", Month: "01", Year: "2024"}, http.StatusNotFound},
		{"prosper invoice with client", http.MethodPost, "/api/invoices/generate", GenerateInvoiceRequest{Line: "prosper", ClientID: "x", Month: "01", Year: "2024"}, http.StatusBadRequest},
		{"products need a line", http.MethodGet, "/api/products", nil, http.StatusBadRequest},
		{"prosper has no products", http.MethodPost, "/api/products", CreateProductRequest{Line: "prosper", Name: "x", StandardFee: "1"}, http.StatusBadRequest},
		{"duplicate tier", http.MethodPost, "/api/tiers", CreateTierRequest{ID: "base", MinAmount: "1", CommissionRate: "1", LicenseFee: "0"}, http.StatusConflict},
		{"rate over 100", http.MethodPost, "/api/tiers", CreateTierRequest{MinAmount: "1", CommissionRate: "101", LicenseFee: "0"}, http.StatusBadRequest},
		{"bad round", http.MethodGet, "/api/invoices?round=two", nil, http.StatusBadRequest},
		{"missing invoice", http.MethodGet, "/api/invoices/nope", nil, http.StatusNotFound},
		{"missing client", http.MethodGet, "/api/clients/nope", nil, http.StatusNotFound},
		{"client with unknown product", http.MethodPost, "/api/clients", CreateClientRequest{Line: "grow", Name: "x", ProductIDs: []string{"nope"}}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decodeAs[ErrorResponse](t, rec).Error)
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{revenue.ErrClientNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", revenue.ErrInvoiceNotFound), http.StatusNotFound},
		{&revenue.AmountError{Field: "x"}, http.StatusBadRequest},
		{revenue.ErrInvalidPeriod, http.StatusBadRequest},
		{revenue.ErrNoTierConfigured, http.StatusConflict},
		{&revenue.StatusTransitionError{From: revenue.StatusPaid, To: revenue.StatusSent}, http.StatusConflict},
		{&revenue.TransactionError{Op: "generate invoice", Err: errors.New("disk")}, http.StatusInternalServerError},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestParseRound(t *testing.T) {
	f, err := parseRound("")
	require.NoError(t, err)
	assert.Equal(t, "1.005", f.str(revenue.MustParseDecimal("1.005")))

	f, err = parseRound("2")
	require.NoError(t, err)
	assert.Equal(t, "1.01", f.str(revenue.MustParseDecimal("1.005")))

	for _, bad := range []string{"-1", "11", "x"} {
		_, err := parseRound(bad)
		assert.ErrorIs(t, err, revenue.ErrInvalidInput, bad)
	}
}

// =============================================================================
// CATALOG, HEALTH, METRICS
// =============================================================================

const testCatalog = `{
  "tiers": [
    {"id": "base", "min_amount": "0", "commission_rate": "5", "license_fee": "50"}
  ],
  "products": [
    {"id": "seo", "line": "grow", "name": "SEO", "standard_fee": "100"}
  ]
}`

func TestImportCatalog(t *testing.T) {
	r := newTestRouter(newTestEngine(), nil)

	rec := do(t, r, http.MethodPost, "/api/catalog", testCatalog)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeAs[ImportCatalogResponse](t, rec)
	assert.Len(t, resp.Tiers, 1)
	assert.Len(t, resp.Products, 1)

	rec = do(t, r, http.MethodPost, "/api/catalog", testCatalog)
	assert.Equal(t, http.StatusConflict, rec.Code, "ids already stored")

	rec = do(t, r, http.MethodPost, "/api/catalog", `{"tiers":[{"min_amount":0}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	products := decodeAs[[]ProductDTO](t, do(t, r, http.MethodGet, "/api/products?line=grow", nil))
	assert.Len(t, products, 1)
}

func TestHealthAndMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	r := newTestRouter(newTestEngine(revenue.WithObserver(m)), m)
	seedTierRequests(t, r)

	rec := do(t, r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/api/revenue",
		RecordRevenueRequest{Line: "prosper", Amount: "10", Date: "2024-01-02"}).Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodPost, "/api/revenue",
		RecordRevenueRequest{Line: "grow", ClientID: "ghost", Amount: "1"}).Code)

	rec = do(t, r, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `revenue_events_recorded_total{line="prosper"} 1`)
	assert.Contains(t, body, `revenue_operation_errors_total{operation="record grow revenue"} 1`)
	assert.Contains(t, body, `route="/api/revenue`)
}

func TestRevenueStats_DayRange(t *testing.T) {
	// GIVEN: prosper revenue on Jan 5, Jan 20 and Feb 1
	// WHEN: asking for Jan 5 to Jan 20
	// THEN: both bounds are included and February is not

	r := newTestRouter(newTestEngine(), nil)
	seedTierRequests(t, r)
	for _, rec := range []RecordRevenueRequest{
		{Line: "prosper", Amount: "1000", Date: "2024-01-05"},
		{Line: "prosper", Amount: "2000", Date: "2024-01-20"},
		{Line: "prosper", Amount: "3000", Date: "2024-02-01"},
	} {
		require.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/api/revenue", rec).Code)
	}

	rec := do(t, r, http.MethodGet, "/api/revenue/stats?line=prosper&from=2024-01-05&to=2024-01-20", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stats := decodeAs[StatsDTO](t, rec)
	require.NotNil(t, stats.Totals)
	assert.Equal(t, "2024-01-05", stats.From)
	assert.Equal(t, "2024-01-20", stats.To)
	assert.Equal(t, "3000", stats.Totals.Gross)
	assert.Equal(t, "150", stats.Totals.Commission)
	assert.Equal(t, 2, stats.Totals.EventCount)

	for _, query := range []string{
		"line=prosper&from=2024-01-20&to=2024-01-05",
		"line=prosper&from=2024-01-05",
		"line=prosper&from=jan&to=2024-01-20",
	} {
		assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/revenue/stats?"+query, nil).Code, query)
	}
}

func TestGenerateInvoice_SignedMonthRejected(t *testing.T) {
	r := newTestRouter(newTestEngine(), nil)
	seedTierRequests(t, r)

	rec := do(t, r, http.MethodPost, "/api/invoices/generate", GenerateInvoiceRequest{Line: "prosper", Month: "+1", Year: "2024"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	invoices := decodeAs[[]InvoiceDTO](t, do(t, r, http.MethodGet, "/api/invoices", nil))
	assert.Empty(t, invoices)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealth_PingsStore(t *testing.T) {
	h := NewHandler(newTestEngine(), nil)
	r := NewRouter(h, RouterOptions{})

	h.Pinger = stubPinger{}
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/healthz", nil).Code)

	h.Pinger = stubPinger{err: errors.New("database is locked")}
	rec := do(t, r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeAs[map[string]string](t, rec)
	assert.Equal(t, "unavailable", body["status"])
	assert.Equal(t, "database is locked", body["error"])
}

func TestExportCatalog_ReimportsIntoFreshEngine(t *testing.T) {
	// GIVEN: tiers and a product created over the API
	// WHEN: exporting the catalog and importing it elsewhere
	// THEN: the second engine ends up with the same catalog

	r := newTestRouter(newTestEngine(), nil)
	seedTierRequests(t, r)
	require.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/api/products",
		CreateProductRequest{ID: "seo", Line: "digitize", Name: "SEO", StandardFee: "100"}).Code)

	rec := do(t, r, http.MethodGet, "/api/catalog", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	exported := decodeAs[factory.CatalogJSON](t, rec)
	require.Len(t, exported.Tiers, 2)
	assert.Equal(t, "gold", exported.Tiers[1].ID)
	assert.Equal(t, "10000", exported.Tiers[1].MinAmount)
	require.Len(t, exported.Products, 1)
	assert.Equal(t, "100", exported.Products[0].StandardFee)

	other := newTestRouter(newTestEngine(), nil)
	require.Equal(t, http.StatusCreated, do(t, other, http.MethodPost, "/api/catalog", rec.Body.String()).Code)
	assert.Len(t, decodeAs[[]TierDTO](t, do(t, other, http.MethodGet, "/api/tiers", nil)), 2)
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(newTestEngine(), nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/tiers", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
