package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/waifuarena/cache"
)

const NonceHeader = "X-Nonce"

// maxNonceLen bounds the cache key size.
const maxNonceLen = 128

// Nonce rejects replays of mutating requests. Each caller must send a fresh
// X-Nonce per request; a nonce is remembered for ttl. Must run after Auth.
func Nonce(c cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		caller, ok := GetCaller(ctx)
		if !ok {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		nonce := ctx.GetHeader(NonceHeader)
		if nonce == "" || len(nonce) > maxNonceLen {
			ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing or invalid " + NonceHeader})
			return
		}

		cacheCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		fresh, err := c.SetNX(cacheCtx, "nonce:"+caller.Hex()+":"+nonce, GetTraceID(ctx), ttl)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "nonce store unavailable"})
			return
		}
		if !fresh {
			ctx.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "nonce already used"})
			return
		}
		ctx.Next()
	}
}
