package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tradepay-platform/internal/actor"
	"tradepay-platform/internal/auth"
	"tradepay-platform/internal/config"
	"tradepay-platform/internal/ledger"
	"tradepay-platform/internal/money"
	"tradepay-platform/internal/rates"
	"tradepay-platform/internal/rbac"
	"tradepay-platform/internal/referral"
	"tradepay-platform/internal/review"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type env struct {
	router      *gin.Engine
	authManager *auth.Manager
	ledgerStore *ledger.MemoryStore
	ledgerSvc   *ledger.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}

	ledgerStore := ledger.NewMemoryStore()
	referralStore := referral.NewMemoryStore()
	reviewStore := review.NewMemoryStore(ledgerStore, referralStore)

	ledgerSvc := ledger.NewService(ledgerStore, nil, nil)

	quoter := rates.NewService(&rates.MemoryRepo{Rates: []rates.Rate{{
		ID: "r1", Kind: "giftcard", Category: "amazon-us",
		PerUnit:       decimal.NewFromInt(400),
		EffectiveFrom: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Status:        rates.RateStatusActive,
	}}})

	assignments := rbac.NewMemoryAssignmentRepo()
	assignments.Assign(rbac.Assignment{AdminID: "a1", Kind: "giftcard", Category: "amazon-us"})
	reviewSvc := review.NewService(reviewStore, quoter, rbac.NewCategoryAuthorizer(assignments), nil, nil)

	h := Handlers{
		Auth:      m,
		Ledger:    ledgerSvc,
		Reviews:   reviewSvc,
		Referrals: referral.NewService(referralStore),
	}

	r := gin.New()
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(m))
	{
		v1.GET("/wallet/balance", h.GetBalance)
		v1.POST("/wallet/transfer", h.Transfer)
		v1.POST("/wallet/withdrawals", h.RequestWithdrawal)
		v1.POST("/trades", h.SubmitTrade)

		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
		{
			admin.POST("/entries/:entry_id/decline", h.DeclineEntry)
			admin.POST("/trades/:trade_id/approve", h.ApproveTrade)
		}
	}

	return &env{router: r, authManager: m, ledgerStore: ledgerStore, ledgerSvc: ledgerSvc}
}

func (e *env) token(t *testing.T, userID, kind, role string) string {
	t.Helper()
	pair, err := e.authManager.IssuePair(time.Now(), userID, kind, role)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return pair.AccessToken
}

func (e *env) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) fund(t *testing.T, userID, amount string) {
	t.Helper()
	_, _, err := e.ledgerSvc.Credit(context.Background(), actor.Admin("seed"), actor.User(userID), money.MustFromString(amount), ledger.ServiceWalletFunding, "seed")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestAPI_RejectsMissingToken(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodGet, "/v1/wallet/balance", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAPI_BalanceAndTransfer(t *testing.T) {
	e := newEnv(t)
	e.fund(t, "u1", "10000")
	tok := e.token(t, "u1", "user", rbac.RoleUser)

	w := e.do(t, http.MethodPost, "/v1/wallet/transfer", tok, `{"to_user_id":"u2","amount":"5000"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = e.do(t, http.MethodGet, "/v1/wallet/balance", tok, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got ledger.Wallet
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Balance.Equal(money.MustFromString("5000")) {
		t.Fatalf("expected balance 5000, got %s", got.Balance)
	}
}

func TestAPI_InsufficientFundsMapsTo402(t *testing.T) {
	e := newEnv(t)
	e.fund(t, "u1", "100")
	tok := e.token(t, "u1", "user", rbac.RoleUser)

	w := e.do(t, http.MethodPost, "/v1/wallet/transfer", tok, `{"to_user_id":"u2","amount":"500"}`)
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAPI_AdminRoutesRequireAdminRole(t *testing.T) {
	e := newEnv(t)
	userTok := e.token(t, "u1", "user", rbac.RoleUser)

	w := e.do(t, http.MethodPost, "/v1/admin/entries/e1/decline", userTok, `{"note":"x"}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestAPI_DeclineTwiceMapsTo409(t *testing.T) {
	e := newEnv(t)
	e.fund(t, "u1", "10000")

	entry, err := e.ledgerSvc.RequestWithdrawal(context.Background(), actor.User("u1"), money.MustFromString("5000"), "GTB-0123", "")
	if err != nil {
		t.Fatalf("withdrawal: %v", err)
	}

	adminTok := e.token(t, "a1", "admin", rbac.RoleAdmin)
	w := e.do(t, http.MethodPost, "/v1/admin/entries/"+entry.ID+"/decline", adminTok, `{"note":"insufficient proof"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = e.do(t, http.MethodPost, "/v1/admin/entries/"+entry.ID+"/decline", adminTok, `{"note":"again"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("second decline must map to 409, got %d", w.Code)
	}
}

func TestAPI_TradeApprovalFlow(t *testing.T) {
	e := newEnv(t)
	userTok := e.token(t, "u1", "user", rbac.RoleUser)

	w := e.do(t, http.MethodPost, "/v1/trades", userTok, `{"kind":"giftcard","category":"amazon-us","amounts":["50"]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var tr review.Trade
	if err := json.Unmarshal(w.Body.Bytes(), &tr); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// Unassigned admin is refused without state change.
	otherTok := e.token(t, "a2", "admin", rbac.RoleAdmin)
	w = e.do(t, http.MethodPost, "/v1/admin/trades/"+tr.ID+"/approve", otherTok, `{"complete":true}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}

	adminTok := e.token(t, "a1", "admin", rbac.RoleAdmin)
	w = e.do(t, http.MethodPost, "/v1/admin/trades/"+tr.ID+"/approve", adminTok, `{"complete":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	bal, err := e.ledgerSvc.GetBalance(context.Background(), actor.User("u1"))
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !bal.Balance.Equal(money.MustFromString("20000")) {
		t.Fatalf("expected proceeds 20000 credited, got %s", bal.Balance)
	}
}
