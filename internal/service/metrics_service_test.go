package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsServiceRecordsAuthEvents(t *testing.T) {
	m := NewMetricsService()
	m.RecordAuthEvent(eventLogin, OutcomeSuccess, "")
	m.RecordAuthEvent(eventLogin, OutcomeFailure, "INVALID_CREDENTIALS")
	m.RecordAuthEvent(eventLogin, OutcomeFailure, "INVALID_CREDENTIALS")

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	assert.Contains(t, body, `auth_events_total{event="login",outcome="success",reason=""} 1`)
	assert.Contains(t, body, `auth_events_total{event="login",outcome="failure",reason="INVALID_CREDENTIALS"} 2`)
}

func TestMetricsServiceHandlerExposesRegistry(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/health", http.StatusOK, 5*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.IncAuditDropped()

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "http_requests_total")
	assert.Contains(t, body, "cache_hits_total 1")
	assert.Contains(t, body, "audit_events_dropped_total 1")
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	assert.NotPanics(t, func() {
		m.RecordAuthEvent(eventLogin, OutcomeSuccess, "")
		m.ObserveHTTPRequest(http.MethodGet, "/", 200, time.Millisecond)
		m.IncRateLimited("/auth/authenticate")
	})

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
