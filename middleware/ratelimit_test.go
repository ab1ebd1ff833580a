package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func newRateLimitRouter(r rate.Limit, b int) *gin.Engine {
	eng := gin.New()
	eng.Use(RateLimit(r, b))
	eng.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return eng
}

func hit(r http.Handler, ip, user string) int {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", ip)
	if user != "" {
		req.Header.Set("X-User", user)
	}
	return serve(r, req).Code
}

func TestRateLimit_Burst(t *testing.T) {
	r := newRateLimitRouter(0.001, 3) // near-zero refill so we exhaust quickly
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(r, "10.0.1.1", ""), "request %d should be allowed", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, hit(r, "10.0.1.1", ""))
}

func TestRateLimit_PerIP(t *testing.T) {
	r := newRateLimitRouter(0.001, 1)

	assert.Equal(t, http.StatusOK, hit(r, "10.1.1.1", ""))
	assert.Equal(t, http.StatusOK, hit(r, "10.1.1.2", ""))
	assert.Equal(t, http.StatusTooManyRequests, hit(r, "10.1.1.1", ""))
}

func TestRateLimitBy_CustomKey(t *testing.T) {
	eng := gin.New()
	eng.Use(RateLimitBy(0.001, 1, func(c *gin.Context) string { return c.GetHeader("X-User") }))
	eng.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	// Same IP, different users: separate buckets.
	assert.Equal(t, http.StatusOK, hit(eng, "10.2.2.2", "alice"))
	assert.Equal(t, http.StatusOK, hit(eng, "10.2.2.2", "bob"))
	assert.Equal(t, http.StatusTooManyRequests, hit(eng, "10.3.3.3", "alice"))

	// No key: falls back to the IP bucket.
	assert.Equal(t, http.StatusOK, hit(eng, "10.4.4.4", ""))
	assert.Equal(t, http.StatusTooManyRequests, hit(eng, "10.4.4.4", ""))
}
