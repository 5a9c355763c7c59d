/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     zap request log (logging.Middleware)
  3. Metrics:    Prometheus request timing, when enabled
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the dashboard

ROUTE GROUPS:
  /api/tiers/*      Commission tiers and quotes
  /api/products/*   Product catalog
  /api/clients/*    Clients and product subscriptions
  /api/revenue/*    Revenue recording and stats
  /api/invoices/*   Period invoices
  /api/catalog      Catalog export and import
  /metrics          Prometheus exposition
  /healthz          Liveness and store ping

SECURITY NOTE:
  No authentication middleware. Deploy behind an authenticating proxy.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/warp/revenue-engine/logging"
	"github.com/warp/revenue-engine/metrics"
)

// RouterOptions configures NewRouter. A nil Metrics disables /metrics.
type RouterOptions struct {
	AllowedOrigins []string
	Metrics        *metrics.Metrics
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(logging.Middleware(h.Log))
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)
	if opts.Metrics != nil {
		r.Method("GET", "/metrics", opts.Metrics.Handler())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/tiers", func(r chi.Router) {
			r.Get("/", h.ListTiers)
			r.Post("/", h.CreateTier)
			r.Get("/quote", h.QuoteTier)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)
		})

		r.Route("/clients", func(r chi.Router) {
			r.Get("/", h.ListClients)
			r.Post("/", h.CreateClient)
			r.Get("/{id}", h.GetClient)
			r.Get("/{id}/stats", h.GetClientStats)
			r.Post("/{id}/status", h.SetClientStatus)
			r.Post("/{id}/products/{productID}/fee", h.UpdateProductFee)
			r.Post("/{id}/products/{productID}/close", h.CloseAssociation)
		})

		r.Route("/revenue", func(r chi.Router) {
			r.Get("/", h.ListRevenue)
			r.Post("/", h.RecordRevenue)
			r.Get("/stats", h.RevenueStats)
		})

		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", h.ListInvoices)
			r.Post("/generate", h.GenerateInvoice)
			r.Get("/{id}", h.GetInvoice)
			r.Post("/{id}/status", h.SetInvoiceStatus)
		})

		r.Get("/catalog", h.ExportCatalog)
		r.Post("/catalog", h.ImportCatalog)
	})

	return r
}
