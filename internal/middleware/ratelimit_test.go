package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	paths []string
}

func (r *countingRecorder) IncRateLimited(path string) {
	r.paths = append(r.paths, path)
}

func TestRateLimitRejectsAfterBurst(t *testing.T) {
	limiter := NewIPRateLimiter(RateLimitConfig{Requests: 2, Window: time.Minute, Burst: 2})
	rec := &countingRecorder{}

	r := gin.New()
	r.POST("/auth/authenticate", RateLimit(limiter, rec, nil), func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/authenticate", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, send("10.0.0.1").Code)

	w := send("10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	retry, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retry, 1)
	assert.Equal(t, []string{"/auth/authenticate"}, rec.paths)

	assert.Equal(t, http.StatusOK, send("10.0.0.2").Code, "limits are per client")
}

func TestRateLimiterRefills(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewIPRateLimiter(RateLimitConfig{Requests: 1, Window: time.Second, Burst: 1})
	limiter.now = func() time.Time { return now }

	ok, _ := limiter.Reserve("a")
	assert.True(t, ok)
	ok, delay := limiter.Reserve("a")
	assert.False(t, ok)
	assert.Greater(t, delay, time.Duration(0))

	now = now.Add(time.Second)
	ok, _ = limiter.Reserve("a")
	assert.True(t, ok)
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewIPRateLimiter(RateLimitConfig{Requests: 5})
	limiter.now = func() time.Time { return now }

	limiter.Reserve("a")
	now = now.Add(time.Hour)
	limiter.Reserve("b")

	_, exists := limiter.entries["a"]
	assert.False(t, exists)
	assert.Len(t, limiter.entries, 1)
}

func TestRateLimitDisabled(t *testing.T) {
	assert.Nil(t, NewIPRateLimiter(RateLimitConfig{}))

	r := gin.New()
	r.GET("/", RateLimit(nil, nil, nil), func(c *gin.Context) { c.Status(http.StatusOK) })
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/", "").Code)
	}
}
