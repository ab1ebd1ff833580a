package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newPanicRouter(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(TraceID(), Recovery(log))
	r.POST("/api/guilds/:id/join", func(c *gin.Context) {
		c.Set(UserIDKey, "u-7")
		panic("member count overflow")
	})
	r.GET("/api/ranking/guilds", func(c *gin.Context) { panic("boom") })
	r.GET("/abort", func(c *gin.Context) { panic(http.ErrAbortHandler) })
	return r
}

func TestRecovery_GuildRoute(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	r := newPanicRouter(zap.New(core))

	req := httptest.NewRequest(http.MethodPost, "/api/guilds/g-42/join", nil)
	req.Header.Set(TraceIDHeader, "trace-abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "internal", body["code"])
	assert.Equal(t, "internal error", body["error"])
	assert.Equal(t, "trace-abc", body["trace_id"])

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "g-42", fields["guild_id"])
	assert.Equal(t, "u-7", fields["user_id"])
	assert.Equal(t, "/api/guilds/:id/join", fields["route"])
	assert.Equal(t, "member count overflow", fields["panic"])
}

func TestRecovery_NonGuildRouteHasNoGuildID(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	r := newPanicRouter(zap.New(core))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ranking/guilds", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, 1, logs.Len())
	assert.NotContains(t, logs.All()[0].ContextMap(), "guild_id")
}

func TestRecovery_ReraisesAbortHandler(t *testing.T) {
	r := newPanicRouter(zap.NewNop())
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/abort", nil))
	})
}
