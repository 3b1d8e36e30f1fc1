package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradepay-platform/internal/audit"
	"tradepay-platform/internal/auth"
	"tradepay-platform/internal/config"
	"tradepay-platform/internal/httpapi"
	"tradepay-platform/internal/ledger"
	"tradepay-platform/internal/metrics"
	"tradepay-platform/internal/notify"
	"tradepay-platform/internal/rates"
	"tradepay-platform/internal/rbac"
	"tradepay-platform/internal/referral"
	"tradepay-platform/internal/reporting"
	"tradepay-platform/internal/review"
	"tradepay-platform/pkg/logger"
	"tradepay-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Stores
	ledgerStore := ledger.NewPostgresStore(db)
	referralStore := referral.NewPostgresStore(db)
	reviewStore := review.NewPostgresStore(db)
	assignments := rbac.NewPostgresAssignmentRepo(db)

	// Services
	notifier := notify.NewLoggerNotifier(log)
	ledgerSvc := ledger.NewService(ledgerStore, notifier, log)
	referralSvc := referral.NewService(referralStore)
	rateSvc := rates.NewService(rates.NewPostgresRepo(db))
	reviewSvc := review.NewService(reviewStore, rateSvc, rbac.NewCategoryAuthorizer(assignments), notifier, log)
	reportSvc := reporting.NewService(reporting.StoreRepo{Ledger: ledgerStore, Reviews: reviewStore})
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	m := metrics.New()

	handlers := httpapi.Handlers{
		Auth:      authManager,
		Ledger:    ledgerSvc,
		Reviews:   reviewSvc,
		Referrals: referralSvc,
		Reports:   reportSvc,
		Audit:     auditSvc,
		Metrics:   m,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		handlers: handlers,
		authMW:   auth.RequireAccessToken(authManager),
		redis:    rdb,
		ledger:   ledgerSvc,
		metrics:  m,
		log:      log,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
