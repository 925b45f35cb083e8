package rest

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/waifuarena/cache"
	"github.com/kasuganosora/waifuarena/config"
	"github.com/kasuganosora/waifuarena/identity"
	"github.com/kasuganosora/waifuarena/ledger"
	mw "github.com/kasuganosora/waifuarena/middleware"
	"github.com/kasuganosora/waifuarena/scheduler"
	"go.uber.org/zap"
)

// AdminHandler handles operator-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	ledger *ledger.Service
	cache  cache.Cache
	sec    config.SecurityConfig
	sched  *scheduler.Scheduler
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	l *ledger.Service,
	c cache.Cache,
	sec config.SecurityConfig,
	sched *scheduler.Scheduler,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{ledger: l, cache: c, sec: sec, sched: sched, logger: logger}
}

type issueTokenRequest struct {
	Address    string `json:"address" binding:"required"`
	TTLSeconds int64  `json:"ttl_s"` // 0 uses security.jwt_ttl_h
}

// IssueToken mints a session for an address authenticated upstream.
// POST /api/admin/tokens
func (h *AdminHandler) IssueToken(c *gin.Context) {
	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	addr, err := identity.ParseAddress(req.Address)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	ttl := h.sec.JWTTTLH
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	token, err := mw.GenerateToken(addr, h.sec.JWTSecret, ttl)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.cache.Set(ctx, mw.SessionKey(token), addr.Hex(), ttl); err != nil {
		h.logger.Error("store session", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
		return
	}

	h.logger.Info("session issued", zap.String("caller", addr.Hex()), zap.Duration("ttl", ttl))
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"address":    addr,
		"expires_at": time.Now().Add(ttl).Unix(),
	})
}

// Verify replays the journal and reports whether persisted state matches.
// POST /api/admin/verify
func (h *AdminHandler) Verify(c *gin.Context) {
	report, err := h.ledger.Verify(c.Request.Context())
	if err != nil {
		h.logger.Error("admin verify", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verify failed"})
		return
	}
	status := http.StatusOK
	if !report.OK() {
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"ok": report.OK(), "report": report})
}

// ListSchedulerTasks returns names of all registered ticker tasks.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.ListTickers()})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// If adminKey is empty all admin endpoints are disabled (503) so the
// server cannot be accidentally deployed without protection.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(adminKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
