/*
handlers.go - HTTP API handlers for the revenue engine

PURPOSE:
  Exposes the revenue engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to revenue.Engine.

ENDPOINTS:
  Tiers:
    GET    /api/tiers                      List active tiers
    POST   /api/tiers                      Add tier
    GET    /api/tiers/quote?amount=        Preview a prosper commission

  Products:
    GET    /api/products?line=             List active products of a line
    POST   /api/products                   Add product

  Clients:
    GET    /api/clients?line=              List clients
    POST   /api/clients                    Add client with products
    GET    /api/clients/{id}               Client with associations
    GET    /api/clients/{id}/stats         Client revenue stats
    POST   /api/clients/{id}/status        ACTIVE / INACTIVE
    POST   /api/clients/{id}/products/{productID}/fee    Custom fee
    POST   /api/clients/{id}/products/{productID}/close  End subscription

  Revenue:
    GET    /api/revenue?line=&client_id=&month=&year=    List events
    POST   /api/revenue                    Record revenue
    GET    /api/revenue/stats?line=&month=&year=         Totals or history
    GET    /api/revenue/stats?line=&client_id=&from=&to= Day-range totals

  Invoices:
    POST   /api/invoices/generate          Generate or regenerate
    GET    /api/invoices?line=&client_id=&status=        List
    GET    /api/invoices/{id}              Get
    POST   /api/invoices/{id}/status       Status transition

  Catalog:
    GET    /api/catalog                    Export active tiers and products
    POST   /api/catalog                    Import tiers and products

  Amount-returning GET endpoints accept ?round=N.

ERROR HANDLING:
  Errors are returned as JSON {error, details} with:
  - 400: Invalid amount, period, line, or input
  - 404: Client, product, invoice or association not found
  - 409: Invalid status transition, no tier configured, duplicate
  - 500: Storage and transaction failures

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/lo"
	"github.com/warp/revenue-engine/factory"
	"github.com/warp/revenue-engine/revenue"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger checks that the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers. A nil Pinger makes
// /healthz report ok without checking the store.
type Handler struct {
	Engine         *revenue.Engine
	CatalogFactory *factory.CatalogFactory
	Pinger         Pinger
	Log            *zap.Logger
}

const healthTimeout = 2 * time.Second

// NewHandler creates a new handler over engine.
func NewHandler(engine *revenue.Engine, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Engine:         engine,
		CatalogFactory: factory.NewCatalogFactory(),
		Log:            log,
	}
}

// =============================================================================
// TIER HANDLERS
// =============================================================================

// ListTiers returns the active tiers.
func (h *Handler) ListTiers(w http.ResponseWriter, r *http.Request) {
	tiers := h.Engine.Tiers(r.Context())
	writeJSON(w, http.StatusOK, lo.Map(tiers, func(t revenue.Tier, _ int) TierDTO { return toTierDTO(t) }))
}

// CreateTier adds a commission tier.
func (h *Handler) CreateTier(w http.ResponseWriter, r *http.Request) {
	var req CreateTierRequest
	if !h.decode(w, r, &req) {
		return
	}
	tier, err := req.toTier()
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	stored, err := h.Engine.AddTier(r.Context(), tier)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTierDTO(stored))
}

// QuoteTier previews the commission for ?amount= without recording.
func (h *Handler) QuoteTier(w http.ResponseWriter, r *http.Request) {
	format, ok := h.format(w, r)
	if !ok {
		return
	}
	amount, err := parseRequiredAmount("amount", r.URL.Query().Get("amount"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	quote, err := h.Engine.Quote(r.Context(), amount)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteDTO(amount, quote, format))
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// ListProducts returns the active products of ?line=.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	line, err := parseLine(r.URL.Query().Get("line"), false)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	products := h.Engine.Products(r.Context(), line)
	writeJSON(w, http.StatusOK, lo.Map(products, func(p revenue.Product, _ int) ProductDTO { return toProductDTO(p) }))
}

// CreateProduct adds a catalog product.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if !h.decode(w, r, &req) {
		return
	}
	product, err := req.toProduct()
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	stored, err := h.Engine.AddProduct(r.Context(), product)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(stored))
}

// =============================================================================
// CLIENT HANDLERS
// =============================================================================

// ListClients returns the clients of ?line= (all lines when omitted).
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	line, err := parseLine(r.URL.Query().Get("line"), true)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	clients := h.Engine.Clients(r.Context(), line)
	writeJSON(w, http.StatusOK, lo.Map(clients, func(c revenue.Client, _ int) ClientDTO { return toClientDTO(c) }))
}

// CreateClient adds a client and its product associations.
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if !h.decode(w, r, &req) {
		return
	}
	client, products, err := req.toClient()
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	stored, err := h.Engine.AddClient(r.Context(), client, products)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toClientDTO(stored))
}

// GetClient returns one client with its associations.
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	client, err := h.Engine.Client(r.Context(), revenue.ClientID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(client))
}

// GetClientStats returns a client's revenue totals.
func (h *Handler) GetClientStats(w http.ResponseWriter, r *http.Request) {
	format, ok := h.format(w, r)
	if !ok {
		return
	}
	stats, err := h.Engine.ClientStats(r.Context(), revenue.ClientID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientStatsDTO(stats, format))
}

// SetClientStatus marks a client ACTIVE or INACTIVE.
func (h *Handler) SetClientStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := revenue.ClientID(chi.URLParam(r, "id"))
	if err := h.Engine.SetClientStatus(r.Context(), id, revenue.ClientStatus(req.Status)); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	h.GetClient(w, r)
}

// UpdateProductFee sets a custom fee on a client's product subscription.
func (h *Handler) UpdateProductFee(w http.ResponseWriter, r *http.Request) {
	var req UpdateFeeRequest
	if !h.decode(w, r, &req) {
		return
	}
	fee, err := parseRequiredAmount("fee", req.Fee)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	effective, err := parseDate("effective_date", req.EffectiveDate)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	assoc, err := h.Engine.UpdateProductFee(r.Context(),
		revenue.ClientID(chi.URLParam(r, "id")),
		revenue.ProductID(chi.URLParam(r, "productID")),
		fee, effective)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssociationDTO(assoc))
}

// CloseAssociation ends a client's product subscription.
func (h *Handler) CloseAssociation(w http.ResponseWriter, r *http.Request) {
	var req CloseAssociationRequest
	if !h.decode(w, r, &req) {
		return
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	err = h.Engine.CloseAssociation(r.Context(),
		revenue.ClientID(chi.URLParam(r, "id")),
		revenue.ProductID(chi.URLParam(r, "productID")),
		end)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// REVENUE HANDLERS
// =============================================================================

// ListRevenue returns revenue events, optionally narrowed to one period.
func (h *Handler) ListRevenue(w http.ResponseWriter, r *http.Request) {
	format, ok := h.format(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	line, err := parseLine(q.Get("line"), true)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	query := revenue.EventQuery{Line: line, ClientID: revenue.ClientID(q.Get("client_id"))}
	if q.Get("month") != "" || q.Get("year") != "" {
		period, err := revenue.ParsePeriod(q.Get("month"), q.Get("year"))
		if err != nil {
			h.writeEngineError(w, r, err)
			return
		}
		from := period.Start()
		until := from.AddDate(0, 1, 0)
		query.From, query.Until = &from, &until
	}

	events := h.Engine.Events(r.Context(), query)
	writeJSON(w, http.StatusOK, lo.Map(events, func(e revenue.RevenueEvent, _ int) RevenueEventDTO { return toEventDTO(e, format) }))
}

// RecordRevenue records revenue for the line named in the body.
func (h *Handler) RecordRevenue(w http.ResponseWriter, r *http.Request) {
	var req RecordRevenueRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := req.toRecording()
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	event, err := h.Engine.Record(r.Context(), rec)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventDTO(event, exact))
}

// RevenueStats returns the totals of a from/to day range when either bound
// is given, one period's totals when month and year are given, otherwise
// the line's per-period history.
func (h *Handler) RevenueStats(w http.ResponseWriter, r *http.Request) {
	format, ok := h.format(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	line, err := parseLine(q.Get("line"), false)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	if q.Get("from") != "" || q.Get("to") != "" {
		h.rangeStats(w, r, line, format)
		return
	}

	if q.Get("month") == "" && q.Get("year") == "" {
		history := h.Engine.History(r.Context(), line)
		writeJSON(w, http.StatusOK, StatsDTO{
			Line: string(line),
			History: lo.Map(history, func(s revenue.MonthlyStat, _ int) MonthlyStatDTO {
				return MonthlyStatDTO{Month: s.Period.Month, Year: s.Period.Year, Totals: toTotalsDTO(s.Totals, format)}
			}),
		})
		return
	}

	period, err := revenue.ParsePeriod(q.Get("month"), q.Get("year"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	totals := toTotalsDTO(h.Engine.MonthlyStats(r.Context(), line, period), format)
	writeJSON(w, http.StatusOK, StatsDTO{Line: string(line), Month: period.Month, Year: period.Year, Totals: &totals})
}

func (h *Handler) rangeStats(w http.ResponseWriter, r *http.Request, line revenue.Line, format amountFormat) {
	q := r.URL.Query()
	from, err := parseDate("from", q.Get("from"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	to, err := parseDate("to", q.Get("to"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	if from.IsZero() || to.IsZero() {
		h.writeEngineError(w, r, fmt.Errorf("%w: from and to are both required", revenue.ErrInvalidInput))
		return
	}

	clientID := revenue.ClientID(q.Get("client_id"))
	totals, err := h.Engine.RangeStats(r.Context(), line, clientID, revenue.DateRange{From: from, To: to})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	dto := toTotalsDTO(totals, format)
	writeJSON(w, http.StatusOK, StatsDTO{
		Line:     string(line),
		ClientID: string(clientID),
		From:     from.Format(dateLayout),
		To:       to.Format(dateLayout),
		Totals:   &dto,
	})
}

// =============================================================================
// INVOICE HANDLERS
// =============================================================================

// GenerateInvoice generates or regenerates a period invoice.
func (h *Handler) GenerateInvoice(w http.ResponseWriter, r *http.Request) {
	var req GenerateInvoiceRequest
	if !h.decode(w, r, &req) {
		return
	}
	invReq, err := req.toInvoiceRequest()
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	inv, err := h.Engine.GenerateInvoice(r.Context(), invReq)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv, exact))
}

// ListInvoices returns invoices filtered by line, client and status.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	format, ok := h.format(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	line, err := parseLine(q.Get("line"), true)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	invoices := h.Engine.Invoices(r.Context(), revenue.InvoiceQuery{
		Line:     line,
		ClientID: revenue.ClientID(q.Get("client_id")),
		Status:   revenue.InvoiceStatus(q.Get("status")),
	})
	writeJSON(w, http.StatusOK, lo.Map(invoices, func(inv revenue.PeriodInvoice, _ int) InvoiceDTO { return toInvoiceDTO(inv, format) }))
}

// GetInvoice returns one invoice.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	format, ok := h.format(w, r)
	if !ok {
		return
	}
	inv, err := h.Engine.Invoice(r.Context(), revenue.InvoiceID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv, format))
}

// SetInvoiceStatus applies a status transition.
func (h *Handler) SetInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	inv, err := h.Engine.SetInvoiceStatus(r.Context(), revenue.InvoiceID(chi.URLParam(r, "id")), revenue.InvoiceStatus(req.Status))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv, exact))
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// ImportCatalog parses a catalog JSON body and stores its tiers and products.
func (h *Handler) ImportCatalog(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}
	catalog, err := h.CatalogFactory.ParseCatalog(string(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid catalog", err)
		return
	}
	result, err := h.CatalogFactory.Import(r.Context(), h.Engine, catalog)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ImportCatalogResponse{
		Tiers:    lo.Map(result.Tiers, func(t revenue.Tier, _ int) TierDTO { return toTierDTO(t) }),
		Products: lo.Map(result.Products, func(p revenue.Product, _ int) ProductDTO { return toProductDTO(p) }),
	})
}

// ExportCatalog returns the active tiers and products in the import format.
func (h *Handler) ExportCatalog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	writeJSON(w, http.StatusOK, h.CatalogFactory.ToJSON(h.Engine.Tiers(ctx), h.Engine.Products(ctx, "")))
}

// Health reports liveness, and 503 when the store does not answer a ping.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC().Format(time.RFC3339)
	if h.Pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := h.Pinger.Ping(ctx); err != nil {
			h.Log.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error(), "time": now})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": now})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads a JSON body into v, writing a 400 on failure. An empty body
// leaves v at its zero value.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// format reads ?round=, writing a 400 on failure.
func (h *Handler) format(w http.ResponseWriter, r *http.Request) (amountFormat, bool) {
	f, err := parseRound(r.URL.Query().Get("round"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return exact, false
	}
	return f, true
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case revenue.IsNotFound(err):
		return http.StatusNotFound
	case revenue.IsClientError(err):
		return http.StatusBadRequest
	case revenue.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
	writeError(w, status, http.StatusText(status), err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
