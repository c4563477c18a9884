package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/tasktrack-api/internal/service"
)

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

func TestHealthAndReady(t *testing.T) {
	up := NewMetricsHandler(service.NewMetricsService(), fakePinger{})
	down := NewMetricsHandler(nil, fakePinger{err: errors.New("connection refused")})

	r := gin.New()
	r.GET("/health", down.Health)
	r.GET("/ready", up.Ready)
	r.GET("/ready-down", down.Ready)
	r.GET("/metrics", up.Prometheus)
	r.GET("/metrics-off", down.Prometheus)

	assert.Equal(t, http.StatusOK, performRequest(r, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, performRequest(r, http.MethodGet, "/ready", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, performRequest(r, http.MethodGet, "/ready-down", nil).Code)

	w := performRequest(r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "goroutines_total")
	assert.Equal(t, http.StatusServiceUnavailable, performRequest(r, http.MethodGet, "/metrics-off", nil).Code)
}
