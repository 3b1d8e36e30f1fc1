package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"tradepay-platform/internal/actor"
	"tradepay-platform/internal/audit"
	"tradepay-platform/internal/auth"
	"tradepay-platform/internal/ledger"
	"tradepay-platform/internal/metrics"
	"tradepay-platform/internal/money"
	"tradepay-platform/internal/referral"
	"tradepay-platform/internal/reporting"
	"tradepay-platform/internal/review"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth      *auth.Manager
	Ledger    *ledger.Service
	Reviews   *review.Service
	Referrals *referral.Service
	Reports   *reporting.Service
	Audit     *audit.Service
	Metrics   *metrics.Metrics
}

/* ===================== AUTH ===================== */

type loginRequest struct {
	UserID    string `json:"user_id"`
	ActorKind string `json:"actor_kind"`
	Role      string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.ActorKind == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, actor_kind, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.ActorKind, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

func (h Handlers) Me(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	kind, _ := auth.ActorKind(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"user_id": uid, "actor_kind": kind, "role": role})
}

/* ===================== WALLET ===================== */

func (h Handlers) GetBalance(c *gin.Context) {
	owner, ok := callerRef(c)
	if !ok {
		return
	}
	w, err := h.Ledger.GetBalance(c.Request.Context(), owner)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h Handlers) ListEntries(c *gin.Context) {
	owner, ok := callerRef(c)
	if !ok {
		return
	}
	from, to, err := timeRange(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid time range"})
		return
	}
	entries, err := h.Ledger.Entries(c.Request.Context(), owner, from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

type transferRequest struct {
	ToUserID   string      `json:"to_user_id"`
	Amount     money.Money `json:"amount"`
	Comment    string      `json:"comment,omitempty"`
	ReceiptRef string      `json:"receipt_ref,omitempty"`
}

func (h Handlers) Transfer(c *gin.Context) {
	owner, ok := callerRef(c)
	if !ok {
		return
	}
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	out, err := h.Ledger.Transfer(c.Request.Context(), owner, owner, actor.User(req.ToUserID), req.Amount, req.Comment, req.ReceiptRef)
	if err != nil {
		respondError(c, err)
		return
	}
	h.countPosting(ledger.TypeDebit, ledger.ServiceTransfer)
	h.countPosting(ledger.TypeCredit, ledger.ServiceTransfer)
	c.JSON(http.StatusOK, out)
}

type withdrawalRequest struct {
	Amount  money.Money `json:"amount"`
	BankRef string      `json:"bank_ref"`
	Comment string      `json:"comment,omitempty"`
}

func (h Handlers) RequestWithdrawal(c *gin.Context) {
	owner, ok := callerRef(c)
	if !ok {
		return
	}
	var req withdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	entry, err := h.Ledger.RequestWithdrawal(c.Request.Context(), owner, req.Amount, req.BankRef, req.Comment)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

/* ===================== ADMIN: LEDGER ENTRIES ===================== */

type creditRequest struct {
	Amount  money.Money `json:"amount"`
	Comment string      `json:"comment,omitempty"`
}

// AdminCredit funds a user's wallet (confirmed bank deposit, manual
// adjustment). RBAC: admin or super_admin.
func (h Handlers) AdminCredit(c *gin.Context) {
	admin, ok := adminRef(c)
	if !ok {
		return
	}
	userID := c.Param("user_id")
	var req creditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	entry, w, err := h.Ledger.Credit(c.Request.Context(), admin, actor.User(userID), req.Amount, ledger.ServiceWalletFunding, req.Comment)
	if err != nil {
		respondError(c, err)
		return
	}
	h.countPosting(entry.Type, entry.Service)
	h.auditEntry(c, admin.ID, entry.ID, "manual credit")
	c.JSON(http.StatusOK, gin.H{"entry": entry, "wallet": w})
}

func (h Handlers) ApproveEntry(c *gin.Context) {
	admin, ok := adminRef(c)
	if !ok {
		return
	}
	entry, w, err := h.Ledger.Approve(c.Request.Context(), admin, c.Param("entry_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.countEntryDecision("approved")
	h.countPosting(entry.Type, entry.Service)
	h.auditEntry(c, admin.ID, entry.ID, "approved")
	c.JSON(http.StatusOK, gin.H{"entry": entry, "wallet": w})
}

func (h Handlers) CloseEntry(c *gin.Context) {
	h.entryTransition(c, "closed", h.Ledger.Close)
}

func (h Handlers) CancelEntry(c *gin.Context) {
	h.entryTransition(c, "cancelled", h.Ledger.Cancel)
}

type declineEntryRequest struct {
	Note string `json:"note"`
}

func (h Handlers) DeclineEntry(c *gin.Context) {
	admin, ok := adminRef(c)
	if !ok {
		return
	}
	var req declineEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	entry, err := h.Ledger.Decline(c.Request.Context(), admin, c.Param("entry_id"), req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	h.countEntryDecision("declined")
	h.auditEntry(c, admin.ID, entry.ID, "declined")
	c.JSON(http.StatusOK, entry)
}

func (h Handlers) SoftDeleteEntry(c *gin.Context) {
	admin, ok := adminRef(c)
	if !ok {
		return
	}
	entry, err := h.Ledger.SoftDelete(c.Request.Context(), admin, c.Param("entry_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.auditEntry(c, admin.ID, entry.ID, "soft deleted")
	c.JSON(http.StatusOK, entry)
}

func (h Handlers) RestoreEntry(c *gin.Context) {
	admin, ok := adminRef(c)
	if !ok {
		return
	}
	entry, err := h.Ledger.Restore(c.Request.Context(), admin, c.Param("entry_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.auditEntry(c, admin.ID, entry.ID, "restored")
	c.JSON(http.StatusOK, entry)
}

func (h Handlers) entryTransition(c *gin.Context, outcome string, op func(ctx context.Context, causer actor.Ref, entryID string) (ledger.Entry, error)) {
	admin, ok := adminRef(c)
	if !ok {
		return
	}
	entry, err := op(c.Request.Context(), admin, c.Param("entry_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.countEntryDecision(outcome)
	h.auditEntry(c, admin.ID, entry.ID, outcome)
	c.JSON(http.StatusOK, entry)
}

/* ===================== TRADES ===================== */

type submitTradeRequest struct {
	Kind     string        `json:"kind"`
	Category string        `json:"category"`
	Amounts  []money.Money `json:"amounts"`
}

func (h Handlers) SubmitTrade(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}
	var req submitTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	tr, err := h.Reviews.Submit(c.Request.Context(), userID, review.SubmitRequest{
		Kind:     review.Kind(req.Kind),
		Category: req.Category,
		Amounts:  req.Amounts,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tr)
}

func (h Handlers) MarkTradeTransferred(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}
	tr, err := h.Reviews.MarkTransferred(c.Request.Context(), userID, c.Param("trade_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tr)
}

func (h Handlers) GetTrade(c *gin.Context) {
	view, err := h.Reviews.GetTrade(c.Request.Context(), c.Param("trade_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h Handlers) ListMyTrades(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}
	from, to, err := timeRange(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid time range"})
		return
	}
	trades, err := h.Reviews.TradesByOwner(c.Request.Context(), userID, from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

/* ===================== ADMIN: REVIEW GATE ===================== */

func (h Handlers) ReviewQueue(c *gin.Context) {
	adminID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}
	queue, err := h.Reviews.ReviewQueue(c.Request.Context(), adminID, review.Kind(c.Query("kind")), c.Query("category"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": queue})
}

type approveTradeRequest struct {
	Complete     bool         `json:"complete"`
	ReviewAmount *money.Money `json:"review_amount,omitempty"`
	Note         string       `json:"note,omitempty"`
	ProofRef     string       `json:"proof_ref,omitempty"`
}

func (h Handlers) ApproveTrade(c *gin.Context) {
	adminID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}
	var req approveTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	tr, err := h.Reviews.Approve(c.Request.Context(), adminID, c.Param("trade_id"), review.Decision{
		Complete:     req.Complete,
		ReviewAmount: req.ReviewAmount,
		Note:         req.Note,
		ProofRef:     req.ProofRef,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	outcome := "approved"
	if tr.Status == review.StatusPartiallyApproved {
		outcome = "partially_approved"
	}
	h.countTradeDecision(outcome)
	h.auditTrade(c, adminID, tr.ID, outcome)
	c.JSON(http.StatusOK, tr)
}

type declineTradeRequest struct {
	Note     string `json:"note"`
	ProofRef string `json:"proof_ref,omitempty"`
}

func (h Handlers) DeclineTrade(c *gin.Context) {
	adminID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}
	var req declineTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	tr, err := h.Reviews.Decline(c.Request.Context(), adminID, c.Param("trade_id"), req.Note, req.ProofRef)
	if err != nil {
		respondError(c, err)
		return
	}
	h.countTradeDecision("declined")
	h.auditTrade(c, adminID, tr.ID, "declined")
	c.JSON(http.StatusOK, tr)
}

/* ===================== REFERRALS ===================== */

func (h Handlers) MyReferrals(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}
	credits, err := h.Referrals.ByReferrer(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"credits": credits})
}

// SettleReferral freezes a referral credit and pays the accumulated
// amount into the referrer's wallet as a referral-bonus ledger credit.
func (h Handlers) SettleReferral(c *gin.Context) {
	admin, ok := adminRef(c)
	if !ok {
		return
	}
	credit, err := h.Referrals.MarkPaid(c.Request.Context(), c.Param("referred_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	var entry ledger.Entry
	if !credit.CumulativeAmount.IsZero() {
		comment := fmt.Sprintf("referral bonus for referring %s", credit.ReferredID)
		entry, _, err = h.Ledger.Credit(c.Request.Context(), admin, actor.User(credit.ReferrerID), credit.CumulativeAmount, ledger.ServiceReferralBonus, comment)
		if err != nil {
			respondError(c, err)
			return
		}
		h.countPosting(entry.Type, entry.Service)
	}

	if h.Metrics != nil {
		h.Metrics.ReferralPayouts.Inc()
	}
	if h.Audit != nil {
		role, _ := auth.Role(c.Request.Context())
		_ = h.Audit.LogReferralPaid(c.Request.Context(), admin.ID, role, c.ClientIP(), credit.ID, "")
	}
	c.JSON(http.StatusOK, gin.H{"credit": credit, "entry": entry})
}

/* ===================== REPORTS ===================== */

func (h Handlers) StatementReport(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}
	from, to, err := timeRange(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid time range"})
		return
	}
	out, err := h.Reports.StatementSummary(c.Request.Context(), reporting.StatementSummaryRequest{
		OwnerID: userID,
		Range:   reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) TradeReport(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}
	from, to, err := timeRange(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid time range"})
		return
	}
	out, err := h.Reports.TradeSummary(c.Request.Context(), reporting.TradeSummaryRequest{
		OwnerID: userID,
		Range:   reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

/* ===================== HELPERS ===================== */

func callerRef(c *gin.Context) (actor.Ref, bool) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return actor.Ref{}, false
	}
	return actor.User(userID), true
}

func adminRef(c *gin.Context) (actor.Ref, bool) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return actor.Ref{}, false
	}
	return actor.Admin(userID), true
}

// timeRange parses from/to query params (RFC 3339), defaulting to the
// trailing 30 days.
func timeRange(c *gin.Context) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30)
	to := now.Add(time.Minute)

	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = t
	}
	return from, to, nil
}

func (h Handlers) countPosting(typ ledger.EntryType, svc ledger.ServiceClass) {
	if h.Metrics != nil {
		h.Metrics.LedgerPostings.WithLabelValues(string(typ), string(svc)).Inc()
	}
}

func (h Handlers) countEntryDecision(outcome string) {
	if h.Metrics != nil {
		h.Metrics.EntryDecisions.WithLabelValues(outcome).Inc()
	}
}

func (h Handlers) countTradeDecision(outcome string) {
	if h.Metrics != nil {
		h.Metrics.TradeDecisions.WithLabelValues(outcome).Inc()
	}
}

func (h Handlers) auditEntry(c *gin.Context, adminID, entryID, action string) {
	if h.Audit == nil {
		return
	}
	role, _ := auth.Role(c.Request.Context())
	_ = h.Audit.LogEntryDecision(c.Request.Context(), adminID, role, c.ClientIP(), entryID, action, "")
}

func (h Handlers) auditTrade(c *gin.Context, adminID, tradeID, action string) {
	if h.Audit == nil {
		return
	}
	role, _ := auth.Role(c.Request.Context())
	_ = h.Audit.LogTradeDecision(c.Request.Context(), adminID, role, c.ClientIP(), tradeID, action, "")
}
