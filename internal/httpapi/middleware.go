package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tradepay-platform/internal/actor"
	"tradepay-platform/internal/auth"
	"tradepay-platform/internal/ledger"
	"tradepay-platform/internal/money"
	"tradepay-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "idempotency:v1:"
	inProgressMarker     = "__in_progress__"
)

type storedResponse struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

type bodyCapture struct {
	gin.ResponseWriter
	buf strings.Builder
}

func (w *bodyCapture) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency enforces idempotent semantics for unsafe methods by
// persisting responses in Redis keyed by the Idempotency-Key header.
// Retries of a completed request replay the stored response; retries of an
// in-flight request are rejected with 409.
func Idempotency(cache *redis.Client, ttl time.Duration, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		key := c.GetHeader(idempotencyKeyHeader)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing Idempotency-Key header"})
			return
		}
		cacheKey := idempotencyPrefix + key

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		cached, err := cache.Get(ctx, cacheKey).Result()
		if err == nil {
			if cached == inProgressMarker {
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "duplicate request currently processing"})
				return
			}
			var stored storedResponse
			if err := json.Unmarshal([]byte(cached), &stored); err != nil {
				log.Warn("stored idempotent response unreadable", "key", key, "err", err)
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "duplicate request"})
				return
			}
			c.Data(stored.Status, "application/json", []byte(stored.Body))
			c.Abort()
			return
		}
		if err != redis.Nil {
			log.Error("idempotency lookup failed", "key", key, "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "idempotency store failure"})
			return
		}

		if err := cache.SetNX(ctx, cacheKey, inProgressMarker, ttl).Err(); err != nil {
			log.Error("idempotency reservation failed", "key", key, "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "idempotency reservation failure"})
			return
		}

		capture := &bodyCapture{ResponseWriter: c.Writer}
		c.Writer = capture

		c.Next()

		persistCtx, persistCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer persistCancel()

		status := c.Writer.Status()
		if status >= http.StatusInternalServerError {
			// Do not pin server failures; let the client retry.
			cache.Del(persistCtx, cacheKey)
			return
		}

		payload, err := json.Marshal(storedResponse{Status: status, Body: capture.buf.String()})
		if err != nil {
			log.Error("idempotent response encode failed", "key", key, "err", err)
			cache.Del(persistCtx, cacheKey)
			return
		}
		if err := cache.Set(persistCtx, cacheKey, payload, ttl).Err(); err != nil {
			log.Error("idempotent response persist failed", "key", key, "err", err)
			cache.Del(persistCtx, cacheKey)
		}
	}
}

// WithdrawalCap limits how many withdrawal requests a user may have in
// flight at once. The slot is released when the handler returns; the TTL
// covers crashed processes.
func WithdrawalCap(rdb *redis.Client, limit int, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := auth.UserID(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
			return
		}

		key := "withdrawal-cap:" + userID
		ok, err := utils.AcquireConcurrencyCap(c.Request.Context(), rdb, key, limit, ttl)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "cap check failed"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many concurrent withdrawal requests"})
			return
		}
		defer func() {
			_ = utils.ReleaseConcurrencyCap(context.Background(), rdb, key)
		}()

		c.Next()
	}
}

// BalanceService is the minimal ledger surface needed by middleware.
type BalanceService interface {
	GetBalance(ctx context.Context, owner actor.Ref) (ledger.Wallet, error)
}

// RequireSufficientBalance blocks the request early when the caller's
// balance cannot cover the estimated amount from the
// X-Estimated-Amount header. The real check still happens inside the
// service transaction; this only spares obviously doomed requests.
func RequireSufficientBalance(svc BalanceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := auth.UserID(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
			return
		}

		est := strings.TrimSpace(c.GetHeader("X-Estimated-Amount"))
		if est == "" {
			c.Next()
			return
		}
		amount, err := money.FromString(est)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "estimated amount invalid"})
			return
		}

		w, err := svc.GetBalance(c.Request.Context(), actor.User(userID))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "balance lookup failed"})
			return
		}
		if w.Balance.LessThan(amount) {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": "insufficient balance"})
			return
		}
		c.Next()
	}
}
