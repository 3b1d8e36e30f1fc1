package main

import (
	"log/slog"
	"time"

	"tradepay-platform/internal/httpapi"
	"tradepay-platform/internal/ledger"
	"tradepay-platform/internal/metrics"
	"tradepay-platform/internal/rbac"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Redis-backed middleware knobs. Env-tunable settings live in config;
// these are operational defaults that have not needed tuning.
const (
	idempotencyTTL    = 24 * time.Hour
	withdrawalCapSize = 1
	withdrawalCapTTL  = 2 * time.Minute
)

type routeDeps struct {
	handlers httpapi.Handlers
	authMW   gin.HandlerFunc
	redis    *redis.Client
	ledger   *ledger.Service
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, deps routeDeps) {
	h := deps.handlers

	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(deps.metrics.Handler()))

	r.POST("/v1/auth/login", h.Login)

	idempotent := httpapi.Idempotency(deps.redis, idempotencyTTL, deps.log)
	balanceGate := httpapi.RequireSufficientBalance(deps.ledger)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(deps.authMW)
	{
		v1.GET("/me", h.Me)

		// WALLET routes
		wallet := v1.Group("/wallet")
		{
			wallet.GET("/balance", h.GetBalance)
			wallet.GET("/entries", h.ListEntries)
			wallet.POST("/transfer", idempotent, balanceGate, h.Transfer)

			// At most one in-flight withdrawal request per user.
			withdrawalCap := httpapi.WithdrawalCap(deps.redis, withdrawalCapSize, withdrawalCapTTL)
			wallet.POST("/withdrawals", idempotent, balanceGate, withdrawalCap, h.RequestWithdrawal)
		}

		// TRADE routes (submission and owner views)
		trades := v1.Group("/trades")
		{
			trades.POST("", idempotent, h.SubmitTrade)
			trades.GET("", h.ListMyTrades)
			trades.GET("/:trade_id", h.GetTrade)
			trades.POST("/:trade_id/transferred", h.MarkTradeTransferred)
		}

		v1.GET("/referrals/mine", h.MyReferrals)

		// REPORT routes
		reports := v1.Group("/reports")
		{
			reports.GET("/statement", h.StatementReport)
			reports.GET("/trades", h.TradeReport)
		}

		// ADMIN routes. RequireAnyRole lets super_admin through on its own;
		// category scoping for trade decisions happens in the review service.
		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
		{
			admin.POST("/users/:user_id/credit", idempotent, h.AdminCredit)

			entries := admin.Group("/entries")
			{
				entries.POST("/:entry_id/approve", h.ApproveEntry)
				entries.POST("/:entry_id/close", h.CloseEntry)
				entries.POST("/:entry_id/cancel", h.CancelEntry)
				entries.POST("/:entry_id/decline", h.DeclineEntry)
				entries.DELETE("/:entry_id", h.SoftDeleteEntry)
				entries.POST("/:entry_id/restore", h.RestoreEntry)
			}

			adminTrades := admin.Group("/trades")
			{
				adminTrades.GET("/queue", h.ReviewQueue)
				adminTrades.POST("/:trade_id/approve", h.ApproveTrade)
				adminTrades.POST("/:trade_id/decline", h.DeclineTrade)
			}

			// Credits are keyed by the referred user: one row per referral.
			admin.POST("/referrals/:referred_id/settle", idempotent, h.SettleReferral)
		}
	}
}
