package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recovery turns a handler panic into a 500 in the API's error shape
// ({"error","code"} plus the trace ID) and logs it with the route and the
// guild it touched. http.ErrAbortHandler is re-raised for net/http.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if r == http.ErrAbortHandler {
				panic(r)
			}
			traceID := GetTraceID(c)
			fields := []zap.Field{
				zap.Any("panic", r),
				zap.String("method", c.Request.Method),
				zap.String("route", c.FullPath()),
				zap.String("trace_id", traceID),
				zap.Stack("stack"),
			}
			if uid := GetUserID(c); uid != "" {
				fields = append(fields, zap.String("user_id", uid))
			}
			if gid := guildIDOf(c); gid != "" {
				fields = append(fields, zap.String("guild_id", gid))
			}
			log.Error("handler panic", fields...)

			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":    "internal error",
				"code":     "internal",
				"trace_id": traceID,
			})
		}()
		c.Next()
	}
}

// guildIDOf returns the :id path parameter on guild routes.
func guildIDOf(c *gin.Context) string {
	if !strings.Contains(c.FullPath(), "/guilds/:id") {
		return ""
	}
	return c.Param("id")
}
