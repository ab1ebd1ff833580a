package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/guildhall/server/cache"
	"github.com/kasuganosora/guildhall/server/config"
)

const (
	UserIDKey = "user_id"
	RankKey   = "rank"
	TokenKey  = "token"
)

// SessionKey is the cache key under which a live token is registered.
func SessionKey(token string) string { return "session:" + token }

// Auth validates the Bearer JWT token and checks the session cache.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		authenticate(ctx, sec, c, strings.TrimPrefix(header, "Bearer "))
	}
}

// QueryAuth is Auth for clients that cannot set headers, such as
// EventSource. The token is read from the "token" query parameter.
func QueryAuth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenStr := ctx.Query("token")
		if tokenStr == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		authenticate(ctx, sec, c, tokenStr)
	}
}

func authenticate(ctx *gin.Context, sec config.SecurityConfig, c cache.Cache, tokenStr string) {
	claims, err := ParseToken(tokenStr, sec.JWTSecret)
	if err != nil {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	cacheCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()
	owner, err := c.Get(cacheCtx, SessionKey(tokenStr))
	if err != nil || owner != claims.UserID {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		return
	}

	ctx.Set(UserIDKey, claims.UserID)
	ctx.Set(RankKey, claims.Rank)
	ctx.Set(TokenKey, tokenStr)
	ctx.Next()
}

// GetUserID retrieves the authenticated user ID from the Gin context.
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// GetRank retrieves the authenticated user's rank from the Gin context.
func GetRank(c *gin.Context) string {
	return c.GetString(RankKey)
}

// GetToken retrieves the raw bearer token of the current request.
func GetToken(c *gin.Context) string {
	return c.GetString(TokenKey)
}
