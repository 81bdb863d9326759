package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"

	"github.com/medinet/federation-api/internal/middleware"
)

func newRateLimitedRouter(limit rate.Limit, burst int) *gin.Engine {
	gin.SetMode(gin.TestMode)

	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{Rate: limit, Burst: burst})

	r := gin.New()
	r.Use(limiter.RateLimit())
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

func getFrom(r *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitRejectsAfterBurst(t *testing.T) {
	r := newRateLimitedRouter(1, 2)

	assert.Equal(t, http.StatusOK, getFrom(r, "10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusOK, getFrom(r, "10.0.0.1:1234").Code)

	w := getFrom(r, "10.0.0.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate limit exceeded")
}

func TestRateLimitIsPerClient(t *testing.T) {
	r := newRateLimitedRouter(1, 1)

	// One caller draining its budget must not throttle another.
	assert.Equal(t, http.StatusOK, getFrom(r, "10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusTooManyRequests, getFrom(r, "10.0.0.1:1234").Code)

	assert.Equal(t, http.StatusOK, getFrom(r, "10.0.0.2:1234").Code)
}
