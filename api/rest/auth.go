package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/waifuarena/cache"
	mw "github.com/kasuganosora/waifuarena/middleware"
)

// AuthHandler handles session REST endpoints. Sessions are minted by
// AdminHandler.IssueToken; callers authenticate upstream.
type AuthHandler struct {
	cache cache.Cache
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(c cache.Cache) *AuthHandler {
	return &AuthHandler{cache: c}
}

// Session handles GET /api/auth/session.
func (h *AuthHandler) Session(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": caller})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	token := mw.GetToken(c)
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.cache.Del(ctx, mw.SessionKey(token)); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}
