package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/revenue-engine/revenue"
)

func TestObserver_Counts(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.EventRecorded(revenue.LineProsper)
	m.EventRecorded(revenue.LineProsper)
	m.EventRecorded(revenue.LineGrow)
	m.InvoiceGenerated(revenue.LineDigitize, true)
	m.InvoiceGenerated(revenue.LineDigitize, false)
	m.InvoiceGenerated(revenue.LineDigitize, false)
	m.OperationFailed("generate invoice")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsRecorded.WithLabelValues("prosper")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsRecorded.WithLabelValues("grow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InvoicesGenerated.WithLabelValues("digitize", "created")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.InvoicesGenerated.WithLabelValues("digitize", "regenerated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationErrors.WithLabelValues("generate invoice")))
}

func TestNew_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	// GIVEN: a chi route with a path parameter
	// WHEN: two different ids are requested
	// THEN: both land in one series labelled with the pattern

	reg := prometheus.NewRegistry()
	m := New(reg)
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/clients/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/clients/a", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/clients/b", nil))

	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestDuration))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `revenue_http_request_duration_seconds_count{method="GET",route="/api/clients/{id}",status="204"} 2`)
}
