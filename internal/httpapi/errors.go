package httpapi

import (
	"errors"
	"net/http"

	"tradepay-platform/internal/ledger"
	"tradepay-platform/internal/money"
	"tradepay-platform/internal/rates"
	"tradepay-platform/internal/referral"
	"tradepay-platform/internal/review"

	"github.com/gin-gonic/gin"
)

// respondError translates core typed errors into HTTP statuses. The core
// never decides status codes itself; this is the only place the mapping
// lives.
func respondError(c *gin.Context, err error) {
	var ledgerState *ledger.InvalidStateError
	var reviewState *review.InvalidStateError

	switch {
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, review.ErrNotFound),
		errors.Is(err, referral.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})

	case errors.Is(err, money.ErrInsufficientFunds):
		// 402 Payment Required is semantically appropriate.
		c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": "insufficient balance"})

	case errors.As(err, &ledgerState), errors.As(err, &reviewState),
		errors.Is(err, referral.ErrAlreadyLinked),
		errors.Is(err, referral.ErrAlreadyPaid):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})

	case errors.Is(err, review.ErrForbidden):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})

	case errors.Is(err, ledger.ErrInvalidArgument),
		errors.Is(err, review.ErrInvalidArgument),
		errors.Is(err, review.ErrChildTrade),
		errors.Is(err, referral.ErrInvalidArgument),
		errors.Is(err, rates.ErrInvalidReq),
		errors.Is(err, rates.ErrRateNotFound),
		errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, money.ErrNegativeAmount):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
