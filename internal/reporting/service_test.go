package reporting

import (
	"context"
	"testing"
	"time"

	"tradepay-platform/internal/actor"
	"tradepay-platform/internal/ledger"
	"tradepay-platform/internal/money"
	"tradepay-platform/internal/referral"
	"tradepay-platform/internal/review"

	"github.com/shopspring/decimal"
)

func seedEntry(t *testing.T, store *ledger.MemoryStore, e ledger.Entry) {
	t.Helper()
	err := store.Atomically(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		return tx.InsertEntry(ctx, e)
	})
	if err != nil {
		t.Fatalf("seed entry: %v", err)
	}
}

func TestStatementSummary_AggregatesCompletedMovements(t *testing.T) {
	ledgerStore := ledger.NewMemoryStore()
	reviewStore := review.NewMemoryStore(ledgerStore, referral.NewMemoryStore())
	svc := NewService(StoreRepo{Ledger: ledgerStore, Reviews: reviewStore})

	now := time.Unix(1700000000, 0).UTC()
	owner := actor.User("u1")

	seedEntry(t, ledgerStore, ledger.Entry{
		ID: "e1", Owner: owner, Causer: actor.Admin("a1"),
		Amount: money.MustFromString("10000"), Service: ledger.ServiceWalletFunding,
		Type: ledger.TypeCredit, Status: ledger.StatusCompleted, CreatedAt: now,
	})
	seedEntry(t, ledgerStore, ledger.Entry{
		ID: "e2", Owner: owner, Causer: owner,
		Amount: money.MustFromString("4000"), Service: ledger.ServiceWithdrawal,
		Type: ledger.TypeDebit, Status: ledger.StatusCompleted, CreatedAt: now,
	})
	seedEntry(t, ledgerStore, ledger.Entry{
		ID: "e3", Owner: owner, Causer: owner,
		Amount: money.MustFromString("999"), Service: ledger.ServiceWithdrawal,
		Type: ledger.TypeDebit, Status: ledger.StatusPending, CreatedAt: now,
	})

	out, err := svc.StatementSummary(context.Background(), StatementSummaryRequest{
		OwnerID: "u1",
		Range:   TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalEntries != 3 || out.CompletedEntries != 2 || out.PendingEntries != 1 {
		t.Fatalf("unexpected counts: %+v", out)
	}
	if !out.TotalCredit.Equal(money.MustFromString("10000")) {
		t.Fatalf("expected credit 10000, got %s", out.TotalCredit)
	}
	if !out.TotalDebit.Equal(money.MustFromString("4000")) {
		t.Fatalf("expected debit 4000, got %s", out.TotalDebit)
	}
	if !out.NetDelta.Equal(decimal.NewFromInt(6000)) {
		t.Fatalf("expected net 6000, got %s", out.NetDelta)
	}
}

func TestTradeSummary_SkipsChildrenAndCountsStatuses(t *testing.T) {
	ledgerStore := ledger.NewMemoryStore()
	reviewStore := review.NewMemoryStore(ledgerStore, referral.NewMemoryStore())
	svc := NewService(StoreRepo{Ledger: ledgerStore, Reviews: reviewStore})

	now := time.Unix(1700000000, 0).UTC()
	seed := func(tr review.Trade) {
		err := reviewStore.Atomically(context.Background(), func(ctx context.Context, tx review.Tx) error {
			return tx.InsertTrade(ctx, tr)
		})
		if err != nil {
			t.Fatalf("seed trade: %v", err)
		}
	}

	seed(review.Trade{
		ID: "t1", Kind: review.KindGiftcard, Category: "amazon-us", OwnerID: "u1",
		Amount: money.MustFromString("50"), PayableAmount: money.MustFromString("20000"),
		CreditedAmount: money.MustFromString("20000"), Status: review.StatusApproved, CreatedAt: now,
	})
	seed(review.Trade{
		ID: "t2", Kind: review.KindGiftcard, Category: "amazon-us", OwnerID: "u1", ParentID: "t1",
		Amount: money.MustFromString("50"), PayableAmount: money.MustFromString("20000"),
		CreditedAmount: money.Zero, Status: review.StatusApproved, CreatedAt: now,
	})
	seed(review.Trade{
		ID: "t3", Kind: review.KindAsset, Category: "BTC", OwnerID: "u1",
		Amount: money.MustFromString("0.0002"), PayableAmount: money.MustFromString("19000"),
		CreditedAmount: money.Zero, Status: review.StatusDeclined, CreatedAt: now,
	})

	out, err := svc.TradeSummary(context.Background(), TradeSummaryRequest{
		OwnerID: "u1",
		Range:   TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalTrades != 2 || out.ApprovedTrades != 1 || out.DeclinedTrades != 1 {
		t.Fatalf("children must not be counted: %+v", out)
	}
	if !out.TotalPayable.Equal(money.MustFromString("39000")) {
		t.Fatalf("expected payable 39000, got %s", out.TotalPayable)
	}
	if !out.TotalCredited.Equal(money.MustFromString("20000")) {
		t.Fatalf("expected credited 20000, got %s", out.TotalCredited)
	}
}

func TestReporting_RejectsInvalidRanges(t *testing.T) {
	svc := NewService(StoreRepo{})

	_, err := svc.StatementSummary(context.Background(), StatementSummaryRequest{OwnerID: "u1"})
	if err != ErrInvalidRequest {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	_, err = svc.TradeSummary(context.Background(), TradeSummaryRequest{OwnerID: ""})
	if err != ErrInvalidRequest {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
