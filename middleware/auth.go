package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/waifuarena/cache"
	"github.com/kasuganosora/waifuarena/config"
	"github.com/kasuganosora/waifuarena/identity"
)

const (
	CallerKey = "caller"
	TokenKey  = "token"
)

// SessionKey is the cache key that keeps a token alive until logout or expiry.
func SessionKey(token string) string { return "session:" + token }

// BearerToken extracts the token from the Authorization header, falling back
// to the token query parameter for EventSource clients.
func BearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}

// Auth validates the Bearer JWT token and checks the session cache.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenStr := BearerToken(ctx)
		if tokenStr == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := ParseToken(tokenStr, sec.JWTSecret)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		caller, _ := claims.Caller()

		// Check session still valid in cache.
		cacheCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		exists, err := c.Exists(cacheCtx, SessionKey(tokenStr))
		if err != nil || !exists {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return
		}

		ctx.Set(CallerKey, caller)
		ctx.Set(TokenKey, tokenStr)
		ctx.Next()
	}
}

// GetCaller retrieves the authenticated caller from the Gin context.
func GetCaller(c *gin.Context) (identity.Address, bool) {
	if v, exists := c.Get(CallerKey); exists {
		addr, ok := v.(identity.Address)
		return addr, ok
	}
	return identity.Zero, false
}

// GetToken returns the session token accepted by Auth.
func GetToken(c *gin.Context) string {
	return c.GetString(TokenKey)
}
