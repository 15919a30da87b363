package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/centpay/wallet-service/internal/domain"
	"github.com/centpay/wallet-service/internal/store"
	"github.com/centpay/wallet-service/pkg/paystackclient"
)

type reconcileRepoStub struct {
	store.Repository

	entry *domain.Transaction

	reconcileCalled   bool
	creditCount       int
	settleCalled      bool
	settleParams      store.SettleParams
	settleOutcome     store.ReconcileOutcome
	markFailedCalled  bool
	markFailedReason  string
	statusAfterSettle domain.TransactionStatus
}

func (s *reconcileRepoStub) FindTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	if s.entry == nil || s.entry.Reference == nil || *s.entry.Reference != reference {
		return nil, store.ErrUnknownReference
	}
	return s.entry, nil
}

// ReconcileDepositAtomic mirrors the store's lock-and-recheck transition
// rules against the stub's in-memory entry, so repeated deliveries exercise
// the same state machine the real repository enforces.
func (s *reconcileRepoStub) ReconcileDepositAtomic(ctx context.Context, reference string, verifiedAmount decimal.Decimal, metadata json.RawMessage) (store.ReconcileOutcome, error) {
	s.reconcileCalled = true
	if s.entry.Status == domain.StatusSuccess {
		return store.OutcomeAlreadyProcessed, nil
	}
	if !s.entry.Status.CanTransitionTo(domain.StatusSuccess) {
		return store.OutcomeRecorded, nil
	}
	s.entry.Status = domain.StatusSuccess
	s.entry.Amount = verifiedAmount
	s.creditCount++
	return store.OutcomeCredited, nil
}

func (s *reconcileRepoStub) SettleWithdrawalAtomic(ctx context.Context, p store.SettleParams) (store.ReconcileOutcome, error) {
	s.settleCalled = true
	s.settleParams = p
	if s.statusAfterSettle != "" {
		s.entry.Status = s.statusAfterSettle
	}
	return s.settleOutcome, nil
}

func (s *reconcileRepoStub) MarkTransactionFailed(ctx context.Context, reference string, reason string) error {
	s.markFailedCalled = true
	s.markFailedReason = reason
	if s.entry.Status == domain.StatusPending {
		s.entry.Status = domain.StatusFailed
	}
	return nil
}

func newReconcileService(repo store.Repository) *Service {
	return NewService(repo, nil, nil, Limits{}, "", "ledger.events")
}

func pendingDeposit(reference string) *domain.Transaction {
	return &domain.Transaction{
		ID:        uuid.New(),
		OwnerID:   uuid.New(),
		Reference: ptrString(reference),
		Kind:      domain.KindDeposit,
		Status:    domain.StatusPending,
		Amount:    decimal.NewFromInt(100),
	}
}

func TestReconcile_CreditsPendingDepositOnce(t *testing.T) {
	repo := &reconcileRepoStub{entry: pendingDeposit("dep_abc")}
	svc := newReconcileService(repo)

	result, err := svc.Reconcile(context.Background(), VerifiedEvent{
		Reference: "dep_abc",
		Status:    "success",
		Amount:    decimal.NewFromFloat(100.00),
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !repo.reconcileCalled {
		t.Fatal("expected ReconcileDepositAtomic to be called")
	}
	if result.Outcome != store.OutcomeCredited {
		t.Fatalf("expected outcome credited, got %s", result.Outcome)
	}
	if result.Entry.Status != domain.StatusSuccess {
		t.Fatalf("expected entry status success, got %s", result.Entry.Status)
	}
}

func TestReconcile_DuplicateSuccessIsNoOp(t *testing.T) {
	entry := pendingDeposit("dep_dup")
	entry.Status = domain.StatusSuccess
	repo := &reconcileRepoStub{entry: entry}
	svc := newReconcileService(repo)

	result, err := svc.Reconcile(context.Background(), VerifiedEvent{
		Reference: "dep_dup",
		Status:    "success",
		Amount:    decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if result.Outcome != store.OutcomeAlreadyProcessed {
		t.Fatalf("expected outcome already_processed, got %s", result.Outcome)
	}
}

func TestReconcile_SecondDeliveryCreditsExactlyOnce(t *testing.T) {
	repo := &reconcileRepoStub{entry: pendingDeposit("dep_replay")}
	svc := newReconcileService(repo)

	event := VerifiedEvent{
		Reference: "dep_replay",
		Status:    "success",
		Amount:    decimal.NewFromFloat(100.00),
	}

	first, err := svc.Reconcile(context.Background(), event)
	if err != nil {
		t.Fatalf("expected nil error on first delivery, got %v", err)
	}
	if first.Outcome != store.OutcomeCredited {
		t.Fatalf("expected first delivery credited, got %s", first.Outcome)
	}

	second, err := svc.Reconcile(context.Background(), event)
	if err != nil {
		t.Fatalf("expected nil error on replayed delivery, got %v", err)
	}
	if second.Outcome != store.OutcomeAlreadyProcessed {
		t.Fatalf("expected replay outcome already_processed, got %s", second.Outcome)
	}
	if repo.creditCount != 1 {
		t.Fatalf("expected exactly one credit across both deliveries, got %d", repo.creditCount)
	}
}

func TestReconcile_FailedStatusMarksDepositFailed(t *testing.T) {
	repo := &reconcileRepoStub{entry: pendingDeposit("dep_fail")}
	svc := newReconcileService(repo)

	result, err := svc.Reconcile(context.Background(), VerifiedEvent{
		Reference: "dep_fail",
		Status:    "failed",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !repo.markFailedCalled {
		t.Fatal("expected MarkTransactionFailed to be called")
	}
	if repo.reconcileCalled {
		t.Fatal("a failed notification must never reach the credit path")
	}
	if result.Outcome != store.OutcomeRecorded {
		t.Fatalf("expected outcome recorded, got %s", result.Outcome)
	}
}

func TestReconcile_PendingStatusLeavesEntryUntouched(t *testing.T) {
	repo := &reconcileRepoStub{entry: pendingDeposit("dep_wait")}
	svc := newReconcileService(repo)

	result, err := svc.Reconcile(context.Background(), VerifiedEvent{
		Reference: "dep_wait",
		Status:    "pending",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if repo.reconcileCalled || repo.markFailedCalled {
		t.Fatal("a pending notification must not touch the entry")
	}
	if result.Entry.Status != domain.StatusPending {
		t.Fatalf("expected entry to stay pending, got %s", result.Entry.Status)
	}
}

func TestReconcile_UnknownReference(t *testing.T) {
	repo := &reconcileRepoStub{}
	svc := newReconcileService(repo)

	_, err := svc.Reconcile(context.Background(), VerifiedEvent{
		Reference: "dep_missing",
		Status:    "success",
		Amount:    decimal.NewFromInt(50),
	})
	if !errors.Is(err, store.ErrUnknownReference) {
		t.Fatalf("expected ErrUnknownReference, got %v", err)
	}
}

func TestReconcile_WithdrawalReversalRefunds(t *testing.T) {
	entry := &domain.Transaction{
		ID:        uuid.New(),
		OwnerID:   uuid.New(),
		Reference: ptrString("wd_rev"),
		Kind:      domain.KindWithdrawal,
		Status:    domain.StatusSuccess,
		Amount:    decimal.NewFromInt(75),
	}
	repo := &reconcileRepoStub{
		entry:             entry,
		settleOutcome:     store.OutcomeReversed,
		statusAfterSettle: domain.StatusReversed,
	}
	svc := newReconcileService(repo)

	result, err := svc.Reconcile(context.Background(), VerifiedEvent{
		Reference: "wd_rev",
		Status:    "reversed",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !repo.settleCalled {
		t.Fatal("expected SettleWithdrawalAtomic to be called")
	}
	if repo.settleParams.NewStatus != domain.StatusReversed {
		t.Fatalf("expected requested status reversed, got %s", repo.settleParams.NewStatus)
	}
	if result.Outcome != store.OutcomeReversed {
		t.Fatalf("expected outcome reversed, got %s", result.Outcome)
	}
}

func TestReconcile_WithdrawalFailureRequestsRefundStatus(t *testing.T) {
	entry := &domain.Transaction{
		ID:        uuid.New(),
		OwnerID:   uuid.New(),
		Reference: ptrString("wd_fail"),
		Kind:      domain.KindWithdrawal,
		Status:    domain.StatusPending,
		Amount:    decimal.NewFromInt(40),
	}
	repo := &reconcileRepoStub{
		entry:             entry,
		settleOutcome:     store.OutcomeRecorded,
		statusAfterSettle: domain.StatusFailed,
	}
	svc := newReconcileService(repo)

	result, err := svc.Reconcile(context.Background(), VerifiedEvent{
		Reference: "wd_fail",
		Status:    "failed",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if repo.settleParams.NewStatus != domain.StatusFailed {
		t.Fatalf("expected requested status failed, got %s", repo.settleParams.NewStatus)
	}
	if result.Entry.Status != domain.StatusFailed {
		t.Fatalf("expected entry status failed, got %s", result.Entry.Status)
	}
}

func TestVerifyDeposit_CreditsOnProcessorSuccess(t *testing.T) {
	entry := pendingDeposit("dep_poll")
	repo := &reconcileRepoStub{entry: entry}
	gateway := &gatewayStub{verifyResp: &paystackclient.VerifyResponse{}}
	gateway.verifyResp.Status = true
	gateway.verifyResp.Data.Reference = "dep_poll"
	gateway.verifyResp.Data.Status = "success"
	gateway.verifyResp.Data.Amount = 10000
	svc := NewService(repo, gateway, nil, Limits{}, "", "ledger.events")

	result, err := svc.VerifyDeposit(context.Background(), entry.OwnerID, "dep_poll")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !gateway.verifyCalled {
		t.Fatal("expected the gateway verify endpoint to be called")
	}
	if result.Outcome != store.OutcomeCredited {
		t.Fatalf("expected outcome credited, got %s", result.Outcome)
	}
	if !result.Entry.Amount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected the verified amount 100.00 on the entry, got %s", result.Entry.Amount)
	}
}

func TestVerifyDeposit_RejectsForeignReference(t *testing.T) {
	entry := pendingDeposit("dep_other")
	repo := &reconcileRepoStub{entry: entry}
	gateway := &gatewayStub{}
	svc := NewService(repo, gateway, nil, Limits{}, "", "ledger.events")

	_, err := svc.VerifyDeposit(context.Background(), uuid.New(), "dep_other")
	if !errors.Is(err, store.ErrUnknownReference) {
		t.Fatalf("expected ErrUnknownReference for another owner's reference, got %v", err)
	}
	if gateway.verifyCalled {
		t.Fatal("another owner's reference must never reach the gateway")
	}
}

func ptrString(value string) *string {
	return &value
}
