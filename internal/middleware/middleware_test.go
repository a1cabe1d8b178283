package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, TenantID(c))
	})
	return r
}

func do(r http.Handler, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestInternalAuth(t *testing.T) {
	r := newRouter(InternalAuthMiddleware("secret"))

	assert.Equal(t, http.StatusUnauthorized, do(r, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, map[string]string{"X-Internal-API-Key": "nope"}).Code)
	assert.Equal(t, http.StatusOK, do(r, map[string]string{"X-Internal-API-Key": "secret"}).Code)

	misconfigured := newRouter(InternalAuthMiddleware(""))
	assert.Equal(t, http.StatusInternalServerError, do(misconfigured, map[string]string{"X-Internal-API-Key": ""}).Code)
}

func TestTenantMiddleware(t *testing.T) {
	r := newRouter(TenantMiddleware())

	assert.Equal(t, http.StatusBadRequest, do(r, nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, map[string]string{TenantHeader: "bad tenant!"}).Code)

	w := do(r, map[string]string{TenantHeader: "tenant-1"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tenant-1", w.Body.String())
}

func TestRateLimitPerTenant(t *testing.T) {
	limiter := NewKeyedRateLimiter(RateLimiterConfig{RequestsPerSecond: 0.001, BurstSize: 1, IdleTTL: time.Minute})
	r := newRouter(TenantMiddleware(), RateLimitMiddleware(limiter))

	a := map[string]string{TenantHeader: "a"}
	assert.Equal(t, http.StatusOK, do(r, a).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, a).Code)
	assert.Equal(t, http.StatusOK, do(r, map[string]string{TenantHeader: "b"}).Code)

	assert.Equal(t, 0, limiter.Cleanup(time.Now()))
	assert.Equal(t, 2, limiter.Cleanup(time.Now().Add(2*time.Minute)))
}

func TestRequestLoggerSetsID(t *testing.T) {
	r := newRouter(RequestLogger(zerolog.Nop()))

	w := do(r, nil)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w = do(r, map[string]string{RequestIDHeader: "abc"})
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
}
