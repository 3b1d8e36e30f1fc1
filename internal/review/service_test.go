package review

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tradepay-platform/internal/actor"
	"tradepay-platform/internal/ledger"
	"tradepay-platform/internal/money"
	"tradepay-platform/internal/rates"
	"tradepay-platform/internal/referral"

	"github.com/shopspring/decimal"
)

// stubAuthorizer scopes admins to assigned categories, with a superadmin
// set that bypasses scoping.
type stubAuthorizer struct {
	assignments map[string][]string
	supers      map[string]bool
}

func (a *stubAuthorizer) CanReview(ctx context.Context, adminID string, kind Kind, category string) (bool, error) {
	if a.supers[adminID] {
		return true, nil
	}
	for _, c := range a.assignments[adminID] {
		if c == category {
			return true, nil
		}
	}
	return false, nil
}

type fixture struct {
	svc       *Service
	store     *MemoryStore
	ledger    *ledger.MemoryStore
	referrals *referral.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ledgerStore := ledger.NewMemoryStore()
	referralStore := referral.NewMemoryStore()
	store := NewMemoryStore(ledgerStore, referralStore)

	quoter := rates.NewService(&rates.MemoryRepo{Rates: testRates()})

	authz := &stubAuthorizer{
		assignments: map[string][]string{"a1": {"amazon-us", "BTC"}},
		supers:      map[string]bool{"root": true},
	}

	svc := NewService(store, quoter, authz, nil, nil)
	svc.clock = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	return &fixture{svc: svc, store: store, ledger: ledgerStore, referrals: referralStore}
}

func testRates() []rates.Rate {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return []rates.Rate{
		{
			ID: "r1", Kind: "giftcard", Category: "amazon-us",
			PerUnit:       decimal.NewFromInt(400),
			EffectiveFrom: from,
			Status:        rates.RateStatusActive,
		},
		{
			ID: "r2", Kind: "asset", Category: "BTC",
			PerUnit:       decimal.NewFromInt(95_000_000),
			EffectiveFrom: from,
			Status:        rates.RateStatusActive,
		},
	}
}

func submitGiftcard(t *testing.T, f *fixture, ownerID string, amounts ...string) Trade {
	t.Helper()
	req := SubmitRequest{Kind: KindGiftcard, Category: "amazon-us"}
	for _, a := range amounts {
		req.Amounts = append(req.Amounts, money.MustFromString(a))
	}
	tr, err := f.svc.Submit(context.Background(), ownerID, req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return tr
}

func linkReferral(t *testing.T, f *fixture, referrerID, referredID, accrued string) {
	t.Helper()
	refSvc := referral.NewService(f.referrals)
	c, err := refSvc.Link(context.Background(), referrerID, referredID)
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if accrued == "" {
		return
	}
	err = f.referrals.Atomically(context.Background(), func(ctx context.Context, tx referral.Tx) error {
		_, _, err := referral.AccumulateTx(ctx, tx, c.ReferredID, money.MustFromString(accrued), time.Now())
		return err
	})
	if err != nil {
		t.Fatalf("seed accrual: %v", err)
	}
}

func TestSubmit_ComputesPayableFromRate(t *testing.T) {
	f := newFixture(t)

	tr := submitGiftcard(t, f, "u1", "50")

	if tr.Status != StatusPending {
		t.Fatalf("expected PENDING, got %s", tr.Status)
	}
	if !tr.PayableAmount.Equal(money.MustFromString("20000")) {
		t.Fatalf("expected payable 20000, got %s", tr.PayableAmount)
	}
	if !tr.Rate.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("expected rate 400, got %s", tr.Rate)
	}
}

func TestSubmit_MultiCardAggregatesIntoParent(t *testing.T) {
	f := newFixture(t)

	parent := submitGiftcard(t, f, "u1", "50", "25")

	if !parent.PayableAmount.Equal(money.MustFromString("30000")) {
		t.Fatalf("expected aggregated payable 30000, got %s", parent.PayableAmount)
	}

	view, err := f.svc.GetTrade(context.Background(), parent.ID)
	if err != nil {
		t.Fatalf("get trade: %v", err)
	}
	if len(view.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(view.Children))
	}
	if view.DisplayStatus != "multiple" {
		t.Fatalf("parents with children must display 'multiple', got %q", view.DisplayStatus)
	}
	for _, c := range view.Children {
		if c.ParentID != parent.ID {
			t.Fatalf("child not linked to parent: %+v", c)
		}
	}
}

func TestSubmit_UnknownCategoryFails(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Submit(context.Background(), "u1", SubmitRequest{
		Kind: KindGiftcard, Category: "steam-uk",
		Amounts: []money.Money{money.MustFromString("50")},
	})
	if !errors.Is(err, rates.ErrRateNotFound) {
		t.Fatalf("expected ErrRateNotFound, got %v", err)
	}
	if _, err := f.store.Trade(context.Background(), "any"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("nothing may be persisted on a failed submit")
	}
}

func TestMarkTransferred_AssetOnly(t *testing.T) {
	f := newFixture(t)

	asset, err := f.svc.Submit(context.Background(), "u1", SubmitRequest{
		Kind: KindAsset, Category: "BTC",
		Amounts: []money.Money{money.MustFromString("0.0002")},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := f.svc.MarkTransferred(context.Background(), "u2", asset.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("only the owner may mark transferred, got %v", err)
	}

	got, err := f.svc.MarkTransferred(context.Background(), "u1", asset.ID)
	if err != nil {
		t.Fatalf("mark transferred: %v", err)
	}
	if got.Status != StatusTransferred {
		t.Fatalf("expected TRANSFERRED, got %s", got.Status)
	}

	card := submitGiftcard(t, f, "u1", "50")
	if _, err := f.svc.MarkTransferred(context.Background(), "u1", card.ID); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("giftcard trades cannot be marked transferred, got %v", err)
	}
}

func TestApprove_CreditsWalletAndAccumulatesReferral(t *testing.T) {
	f := newFixture(t)
	linkReferral(t, f, "ref1", "u1", "3000")

	tr := submitGiftcard(t, f, "u1", "50")

	got, err := f.svc.Approve(context.Background(), "a1", tr.ID, Decision{Complete: true, Note: "card verified"})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got.Status != StatusApproved {
		t.Fatalf("expected APPROVED, got %s", got.Status)
	}
	if got.ReviewedBy != "a1" || got.ReviewedAt == nil {
		t.Fatalf("reviewed_by/reviewed_at must be set together: %+v", got)
	}
	if !got.CreditedAmount.Equal(money.MustFromString("20000")) {
		t.Fatalf("expected credited 20000, got %s", got.CreditedAmount)
	}

	w, err := f.ledger.Wallet(context.Background(), actor.User("u1"))
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if !w.Balance.Equal(money.MustFromString("20000")) {
		t.Fatalf("expected wallet 20000, got %s", w.Balance)
	}

	entries, err := f.ledger.EntriesByOwner(context.Background(), actor.User("u1"), time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one proceeds entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Service != ledger.ServiceGiftcardProceeds || e.Type != ledger.TypeCredit || e.Status != ledger.StatusCompleted {
		t.Fatalf("unexpected proceeds entry: %+v", e)
	}
	if e.Causer != actor.Admin("a1") {
		t.Fatalf("proceeds entry must record the reviewer as causer, got %+v", e.Causer)
	}

	c, err := f.referrals.ByReferred(context.Background(), "u1")
	if err != nil {
		t.Fatalf("referral: %v", err)
	}
	if !c.CumulativeAmount.Equal(money.MustFromString("23000")) {
		t.Fatalf("expected referral total 23000, got %s", c.CumulativeAmount)
	}
}

func TestApprove_PartialThenComplete(t *testing.T) {
	f := newFixture(t)
	tr := submitGiftcard(t, f, "u1", "50")

	part := money.MustFromString("5000")
	got, err := f.svc.Approve(context.Background(), "a1", tr.ID, Decision{ReviewAmount: &part})
	if err != nil {
		t.Fatalf("partial approve: %v", err)
	}
	if got.Status != StatusPartiallyApproved {
		t.Fatalf("expected PARTIALLYAPPROVED, got %s", got.Status)
	}
	if !got.CreditedAmount.Equal(part) {
		t.Fatalf("expected credited 5000, got %s", got.CreditedAmount)
	}

	got, err = f.svc.Approve(context.Background(), "a1", tr.ID, Decision{Complete: true})
	if err != nil {
		t.Fatalf("complete approve: %v", err)
	}
	if got.Status != StatusApproved {
		t.Fatalf("expected APPROVED, got %s", got.Status)
	}
	if !got.CreditedAmount.Equal(money.MustFromString("20000")) {
		t.Fatalf("expected credited 20000 total, got %s", got.CreditedAmount)
	}

	w, _ := f.ledger.Wallet(context.Background(), actor.User("u1"))
	if !w.Balance.Equal(money.MustFromString("20000")) {
		t.Fatalf("expected wallet 20000 across both credits, got %s", w.Balance)
	}
}

func TestApprove_ReviewAmountBeyondRemainderRejected(t *testing.T) {
	f := newFixture(t)
	tr := submitGiftcard(t, f, "u1", "50")

	over := money.MustFromString("20000.01")
	_, err := f.svc.Approve(context.Background(), "a1", tr.ID, Decision{Complete: true, ReviewAmount: &over})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}

	w, _ := f.ledger.Wallet(context.Background(), actor.User("u1"))
	if !w.Balance.IsZero() {
		t.Fatalf("nothing may be credited on a rejected decision, got %s", w.Balance)
	}
}

func TestApprove_UnassignedAdminForbidden(t *testing.T) {
	f := newFixture(t)
	tr := submitGiftcard(t, f, "u1", "50")

	_, err := f.svc.Approve(context.Background(), "a2", tr.ID, Decision{Complete: true})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	stored, _ := f.store.Trade(context.Background(), tr.ID)
	if stored.Status != StatusPending {
		t.Fatalf("forbidden decision must not change state, got %s", stored.Status)
	}
	w, _ := f.ledger.Wallet(context.Background(), actor.User("u1"))
	if !w.Balance.IsZero() {
		t.Fatalf("forbidden decision must not credit, got %s", w.Balance)
	}
}

func TestApprove_SuperadminBypassesScoping(t *testing.T) {
	f := newFixture(t)
	tr := submitGiftcard(t, f, "u1", "50")

	got, err := f.svc.Approve(context.Background(), "root", tr.ID, Decision{Complete: true})
	if err != nil {
		t.Fatalf("superadmin approve: %v", err)
	}
	if got.Status != StatusApproved {
		t.Fatalf("expected APPROVED, got %s", got.Status)
	}
}

func TestApprove_TerminalTradeFailsWithInvalidState(t *testing.T) {
	f := newFixture(t)
	tr := submitGiftcard(t, f, "u1", "50")

	if _, err := f.svc.Decline(context.Background(), "a1", tr.ID, "bad card image", ""); err != nil {
		t.Fatalf("decline: %v", err)
	}

	_, err := f.svc.Approve(context.Background(), "a1", tr.ID, Decision{Complete: true})
	var ise *InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
	if ise.Status != StatusDeclined {
		t.Fatalf("error must carry current status, got %s", ise.Status)
	}

	w, _ := f.ledger.Wallet(context.Background(), actor.User("u1"))
	if !w.Balance.IsZero() {
		t.Fatalf("declined trade must never credit, got %s", w.Balance)
	}
}

func TestDecline_StoresNoteAndProofWithoutLedgerEffect(t *testing.T) {
	f := newFixture(t)
	tr := submitGiftcard(t, f, "u1", "50")

	got, err := f.svc.Decline(context.Background(), "a1", tr.ID, "insufficient proof", "proof-77")
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if got.Status != StatusDeclined || got.ReviewNote != "insufficient proof" || got.ProofRef != "proof-77" {
		t.Fatalf("unexpected declined trade: %+v", got)
	}
	if got.ReviewedBy != "a1" || got.ReviewedAt == nil {
		t.Fatalf("reviewed_by/reviewed_at must be set together: %+v", got)
	}

	w, _ := f.ledger.Wallet(context.Background(), actor.User("u1"))
	if !w.Balance.IsZero() {
		t.Fatalf("decline must have no ledger effect, got %s", w.Balance)
	}
}

func TestDecline_AfterPartialApprovalRejected(t *testing.T) {
	f := newFixture(t)
	tr := submitGiftcard(t, f, "u1", "50")

	part := money.MustFromString("5000")
	if _, err := f.svc.Approve(context.Background(), "a1", tr.ID, Decision{ReviewAmount: &part}); err != nil {
		t.Fatalf("partial approve: %v", err)
	}

	_, err := f.svc.Decline(context.Background(), "a1", tr.ID, "changed my mind", "")
	var ise *InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("partially credited trades cannot be declined, got %v", err)
	}
}

func TestApprove_PaidReferralNotAccumulated(t *testing.T) {
	f := newFixture(t)
	linkReferral(t, f, "ref1", "u1", "3000")

	refSvc := referral.NewService(f.referrals)
	if _, err := refSvc.MarkPaid(context.Background(), "u1"); err != nil {
		t.Fatalf("mark paid: %v", err)
	}

	tr := submitGiftcard(t, f, "u1", "50")
	if _, err := f.svc.Approve(context.Background(), "a1", tr.ID, Decision{Complete: true}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	c, _ := f.referrals.ByReferred(context.Background(), "u1")
	if !c.CumulativeAmount.Equal(money.MustFromString("3000")) {
		t.Fatalf("paid referral must be frozen, got %s", c.CumulativeAmount)
	}

	w, _ := f.ledger.Wallet(context.Background(), actor.User("u1"))
	if !w.Balance.Equal(money.MustFromString("20000")) {
		t.Fatalf("the wallet credit itself must still land, got %s", w.Balance)
	}
}

func TestConcurrentApprovals_OnlyOneSucceeds(t *testing.T) {
	f := newFixture(t)
	linkReferral(t, f, "ref1", "u1", "")

	tr := submitGiftcard(t, f, "u1", "50")

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Approve(context.Background(), "a1", tr.ID, Decision{Complete: true})
		}(i)
	}
	wg.Wait()

	var ok, stateErrs int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		var ise *InvalidStateError
		if errors.As(err, &ise) {
			stateErrs++
		}
	}
	if ok != 1 {
		t.Fatalf("exactly one approval may succeed, got %d", ok)
	}
	if stateErrs != n-1 {
		t.Fatalf("losers must fail with InvalidStateError, got %d of %d", stateErrs, n-1)
	}

	w, _ := f.ledger.Wallet(context.Background(), actor.User("u1"))
	if !w.Balance.Equal(money.MustFromString("20000")) {
		t.Fatalf("the credit must be applied exactly once, got %s", w.Balance)
	}
	c, _ := f.referrals.ByReferred(context.Background(), "u1")
	if !c.CumulativeAmount.Equal(money.MustFromString("20000")) {
		t.Fatalf("referral accrual must count the trade exactly once, got %s", c.CumulativeAmount)
	}
}

func TestComposite_ChildDecisionsRejected(t *testing.T) {
	f := newFixture(t)

	parent := submitGiftcard(t, f, "u1", "50", "25")
	if _, err := f.svc.Approve(context.Background(), "a1", parent.ID, Decision{Complete: true}); err != nil {
		t.Fatalf("approve parent: %v", err)
	}

	w, _ := f.ledger.Wallet(context.Background(), actor.User("u1"))
	if !w.Balance.Equal(money.MustFromString("30000")) {
		t.Fatalf("expected wallet 30000 after parent approval, got %s", w.Balance)
	}

	view, err := f.svc.GetTrade(context.Background(), parent.ID)
	if err != nil {
		t.Fatalf("get trade: %v", err)
	}
	child := view.Children[0]

	if _, err := f.svc.Approve(context.Background(), "a1", child.ID, Decision{Complete: true}); !errors.Is(err, ErrChildTrade) {
		t.Fatalf("approving a child must fail with ErrChildTrade, got %v", err)
	}
	if _, err := f.svc.Decline(context.Background(), "a1", child.ID, "no", ""); !errors.Is(err, ErrChildTrade) {
		t.Fatalf("declining a child must fail with ErrChildTrade, got %v", err)
	}
	if _, err := f.svc.MarkTransferred(context.Background(), "u1", child.ID); !errors.Is(err, ErrChildTrade) {
		t.Fatalf("marking a child transferred must fail with ErrChildTrade, got %v", err)
	}

	// The group's payable is credited exactly once, through the parent.
	w, _ = f.ledger.Wallet(context.Background(), actor.User("u1"))
	if !w.Balance.Equal(money.MustFromString("30000")) {
		t.Fatalf("child decision must not move money, got %s", w.Balance)
	}
}

func TestComposite_QueueListsOnlyParents(t *testing.T) {
	f := newFixture(t)
	submitGiftcard(t, f, "u1", "50", "25")
	submitGiftcard(t, f, "u2", "10")

	queue, err := f.svc.ReviewQueue(context.Background(), "a1", KindGiftcard, "amazon-us")
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if len(queue) != 2 {
		t.Fatalf("expected the parent and the standalone trade only, got %d", len(queue))
	}
	for _, tr := range queue {
		if tr.ParentID != "" {
			t.Fatalf("children must not appear in the queue: %+v", tr)
		}
	}
}

func TestComposite_ParentDecisionSettlesChildren(t *testing.T) {
	f := newFixture(t)

	approved := submitGiftcard(t, f, "u1", "50", "25")
	if _, err := f.svc.Approve(context.Background(), "a1", approved.ID, Decision{Complete: true}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	view, err := f.svc.GetTrade(context.Background(), approved.ID)
	if err != nil {
		t.Fatalf("get trade: %v", err)
	}
	for _, c := range view.Children {
		if c.Status != StatusApproved {
			t.Fatalf("children must follow the parent's approval, got %s", c.Status)
		}
		if c.ReviewedBy != "a1" || c.ReviewedAt == nil {
			t.Fatalf("settled child must carry the reviewer: %+v", c)
		}
	}

	declined := submitGiftcard(t, f, "u2", "50", "25")
	if _, err := f.svc.Decline(context.Background(), "a1", declined.ID, "bad batch", ""); err != nil {
		t.Fatalf("decline: %v", err)
	}
	view, err = f.svc.GetTrade(context.Background(), declined.ID)
	if err != nil {
		t.Fatalf("get trade: %v", err)
	}
	for _, c := range view.Children {
		if c.Status != StatusDeclined {
			t.Fatalf("children must follow the parent's decline, got %s", c.Status)
		}
	}
}

func TestComposite_PartialApprovalLeavesChildrenOpen(t *testing.T) {
	f := newFixture(t)

	parent := submitGiftcard(t, f, "u1", "50", "25")
	part := money.MustFromString("10000")
	if _, err := f.svc.Approve(context.Background(), "a1", parent.ID, Decision{ReviewAmount: &part}); err != nil {
		t.Fatalf("partial approve: %v", err)
	}

	view, err := f.svc.GetTrade(context.Background(), parent.ID)
	if err != nil {
		t.Fatalf("get trade: %v", err)
	}
	for _, c := range view.Children {
		if c.Status != StatusPending {
			t.Fatalf("children must stay open until the parent goes terminal, got %s", c.Status)
		}
	}

	if _, err := f.svc.Approve(context.Background(), "a1", parent.ID, Decision{Complete: true}); err != nil {
		t.Fatalf("complete approve: %v", err)
	}
	view, _ = f.svc.GetTrade(context.Background(), parent.ID)
	for _, c := range view.Children {
		if c.Status != StatusApproved {
			t.Fatalf("complete approval must settle the children, got %s", c.Status)
		}
	}
}

func TestSubmit_RejectsAmountsFinerThanStorageScale(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Submit(context.Background(), "u1", SubmitRequest{
		Kind: KindAsset, Category: "BTC",
		Amounts: []money.Money{money.MustFromString("0.000000001")},
	})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("sub-satoshi quantity must be rejected, got %v", err)
	}

	_, err = f.svc.Submit(context.Background(), "u1", SubmitRequest{
		Kind: KindGiftcard, Category: "amazon-us",
		Amounts: []money.Money{money.MustFromString("50.005")},
	})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("sub-kobo face value must be rejected, got %v", err)
	}

	if _, err := f.svc.Submit(context.Background(), "u1", SubmitRequest{
		Kind: KindAsset, Category: "BTC",
		Amounts: []money.Money{money.MustFromString("0.00000001")},
	}); err != nil {
		t.Fatalf("amounts at the storage scale must pass: %v", err)
	}
}

func TestReviewQueue_ScopedToAssignedCategories(t *testing.T) {
	f := newFixture(t)
	submitGiftcard(t, f, "u1", "50")
	submitGiftcard(t, f, "u2", "25")

	queue, err := f.svc.ReviewQueue(context.Background(), "a1", KindGiftcard, "amazon-us")
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if len(queue) != 2 {
		t.Fatalf("expected 2 undecided trades, got %d", len(queue))
	}

	if _, err := f.svc.ReviewQueue(context.Background(), "a2", KindGiftcard, "amazon-us"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("unassigned admin must be refused, got %v", err)
	}
}
