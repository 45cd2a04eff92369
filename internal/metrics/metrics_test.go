package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowCounters(t *testing.T) {
	m := New()

	m.CountSubmission(OutcomeSuccess)
	m.CountCertification(OutcomeSuccess)
	m.CountCertification("duplicate_batch")
	m.CountCertification("duplicate_batch")
	m.CountRejection(OutcomeSuccess)
	m.CountClaim("settlement_unknown")
	m.ObserveSettlement(OutcomeSuccess, 150*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.submissions.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.certifications.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.certifications.WithLabelValues("duplicate_batch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejections.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.claims.WithLabelValues("settlement_unknown")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.settlement))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.CountSubmission(OutcomeSuccess)
	m.CountCertification(OutcomeSuccess)
	m.CountRejection(OutcomeSuccess)
	m.CountClaim(OutcomeSuccess)
	m.ObserveSettlement(OutcomeSuccess, time.Second)

	h := m.Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestInstrumentUsesRoutePattern(t *testing.T) {
	m := New()

	r := chi.NewRouter()
	r.Use(m.Instrument)
	r.Get("/v1/requests/{requestId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	for _, id := range []string{"1", "2", "3"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/requests/"+id, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("404", http.MethodGet, "/v1/requests/{requestId}")))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `hydrocred_http_requests_total{code="404",method="GET",route="/v1/requests/{requestId}"} 3`))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
