package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/waifuarena/api/rest"
	"github.com/kasuganosora/waifuarena/api/sse"
	apiws "github.com/kasuganosora/waifuarena/api/ws"
	"github.com/kasuganosora/waifuarena/audit"
	"github.com/kasuganosora/waifuarena/cache"
	"github.com/kasuganosora/waifuarena/config"
	dbadapter "github.com/kasuganosora/waifuarena/db"
	"github.com/kasuganosora/waifuarena/identity"
	"github.com/kasuganosora/waifuarena/ledger"
	"github.com/kasuganosora/waifuarena/logging"
	"github.com/kasuganosora/waifuarena/metrics"
	mw "github.com/kasuganosora/waifuarena/middleware"
	"github.com/kasuganosora/waifuarena/model"
	"github.com/kasuganosora/waifuarena/scheduler"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := pflag.StringP("config", "c", "config/config.yaml", "path to the YAML config file")
	pflag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	logger, err := logging.New(cfg.Server, cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		logger.Fatal("db", zap.Error(err))
	}
	if err := model.AutoMigrate(db); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		logger.Fatal("cache", zap.Error(err))
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		logger.Fatal("pubsub", zap.Error(err))
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Metrics ----
	m, err := metrics.New()
	if err != nil {
		logger.Fatal("metrics", zap.Error(err))
	}

	// ---- Ledger ----
	var administrator identity.Address
	if cfg.Arena.Administrator != "" {
		administrator, err = identity.ParseAddress(cfg.Arena.Administrator)
		if err != nil {
			logger.Fatal("arena.administrator", zap.Error(err))
		}
	} else {
		logger.Warn("arena.administrator is not set; withdrawals are disabled")
	}
	ledgerSvc, err := ledger.New(db, administrator, pubsub, m, logger)
	if err != nil {
		logger.Fatal("ledger", zap.Error(err))
	}
	logger.Info("Ledger ready", zap.Stringer("administrator", administrator))

	// ---- Audit ----
	auditSvc := audit.New(db, logger)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	if cfg.Arena.VerifyInterval > 0 {
		verify := scheduler.VerifyLedger(ledgerSvc, m, logger)
		sched.AddDelay("ledger_verify_startup", time.Second, verify)
		sched.AddTicker(scheduler.VerifyTaskName, cfg.Arena.VerifyInterval, verify)
	}

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	limit := mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst)

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", mw.IPWhitelist(cfg.Security.MetricsAllowedIPs), gin.WrapH(m.Handler()))

	// ---- REST API routes ----
	apirest.Register(r, apirest.Deps{
		Ledger:    ledgerSvc,
		Audit:     auditSvc,
		Cache:     c,
		Security:  cfg.Security,
		AdminKey:  cfg.Server.AdminKey,
		Scheduler: sched,
		Logger:    logger,
		RateLimit: limit,
	})

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, c, cfg.Security, logger)
	r.GET("/sse", limit, sseH.ServeSSE)

	// ---- WebSocket ----
	wsRouter := apiws.NewRouter(logger)
	apiws.NewArenaHandlers(ledgerSvc, auditSvc, logger).RegisterHandlers(wsRouter)
	wsH := apiws.NewHandler(c, cfg.Security, wsRouter, logger)
	r.GET("/ws", limit, wsH.ServeWS)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	sched.Stop()
	auditSvc.Stop(ctx)
}
