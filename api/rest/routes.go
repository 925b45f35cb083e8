package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/waifuarena/audit"
	"github.com/kasuganosora/waifuarena/cache"
	"github.com/kasuganosora/waifuarena/config"
	"github.com/kasuganosora/waifuarena/ledger"
	mw "github.com/kasuganosora/waifuarena/middleware"
	"github.com/kasuganosora/waifuarena/scheduler"
	"go.uber.org/zap"
)

// Deps are the services the REST API is built on. Audit may be nil.
type Deps struct {
	Ledger    *ledger.Service
	Audit     *audit.Service
	Cache     cache.Cache
	Security  config.SecurityConfig
	AdminKey  string
	Scheduler *scheduler.Scheduler
	Logger    *zap.Logger
	// RateLimit, when set, runs after authentication so signed-in callers get
	// their own bucket. Anonymous requests fall back to the client IP.
	RateLimit gin.HandlerFunc
}

// Register mounts the /api routes on r.
func Register(r gin.IRouter, d Deps) {
	waifuH := NewWaifuHandler(d.Ledger, d.Audit, d.Logger)
	authH := NewAuthHandler(d.Cache)
	adminH := NewAdminHandler(d.Ledger, d.Cache, d.Security, d.Scheduler, d.Logger)

	auth := mw.Auth(d.Security, d.Cache)
	nonce := mw.Nonce(d.Cache, d.Security.NonceTTL)
	limit := d.RateLimit
	if limit == nil {
		limit = func(c *gin.Context) { c.Next() }
	}

	api := r.Group("/api")
	{
		api.GET("/owner", limit, waifuH.Owner)
		api.GET("/treasury", limit, waifuH.Treasury)
		api.GET("/quote", limit, waifuH.Quote)

		waifusG := api.Group("/waifus")
		waifusG.GET("", limit, waifuH.List)
		waifusG.GET("/count", limit, waifuH.Count)
		waifusG.GET("/:id", limit, waifuH.Get)
		waifusG.POST("", auth, limit, nonce, waifuH.Create)
		waifusG.POST("/:id/train", auth, limit, nonce, waifuH.Train)

		api.POST("/withdraw", auth, limit, nonce, waifuH.Withdraw)

		authG := api.Group("/auth")
		authG.Use(auth, limit)
		authG.GET("/session", authH.Session)
		authG.POST("/logout", authH.Logout)

		adminG := api.Group("/admin")
		adminG.Use(limit, AdminAuth(d.AdminKey))
		adminG.POST("/tokens", adminH.IssueToken)
		adminG.POST("/verify", adminH.Verify)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
	}
}
