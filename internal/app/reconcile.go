/**
 * @description
 * This file contains the reconciliation logic that settles pending deposits
 * and withdrawals against the payment processor's authoritative view. Both
 * delivery paths converge here:
 *
 * 1. Webhook push: the processor POSTs a signed event; the API layer
 *    authenticates the signature, extracts the reference and verified status,
 *    and calls Reconcile.
 * 2. Manual poll: a client asks the service to re-verify a reference; the
 *    service calls the processor's verify endpoint and feeds the result into
 *    the same Reconcile function.
 *
 * Idempotency lives in the repository: the ledger entry is locked and its
 * status re-checked inside the database transaction, so a duplicate
 * notification is a no-op no matter which path delivered it first.
 *
 * @dependencies
 * - internal/domain, internal/store: Domain models and the atomic repository operations.
 * - github.com/shopspring/decimal: Verified amounts.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/centpay/wallet-service/internal/domain"
	"github.com/centpay/wallet-service/internal/store"
)

// VerifiedEvent is the processor's authoritative view of one transaction,
// normalized from either a webhook payload or a verify-endpoint response.
type VerifiedEvent struct {
	Reference string
	Status    string // success, failed, abandoned, reversed, pending
	Amount    decimal.Decimal
	Metadata  json.RawMessage
}

// ReconcileResult reports what the reconciliation did to the ledger.
type ReconcileResult struct {
	Outcome store.ReconcileOutcome
	Entry   *domain.Transaction
}

// Reconcile settles the ledger entry addressed by the event's reference. It
// dispatches on the entry's kind: deposits are credited on success, pending
// withdrawals are finalized or refunded. An unknown reference returns
// store.ErrUnknownReference; the caller decides whether that is an error
// (poll) or an acknowledged no-op (webhook).
func (s *Service) Reconcile(ctx context.Context, event VerifiedEvent) (*ReconcileResult, error) {
	if strings.TrimSpace(event.Reference) == "" {
		return nil, store.ErrUnknownReference
	}

	entry, err := s.repo.FindTransactionByReference(ctx, event.Reference)
	if err != nil {
		return nil, err
	}

	switch entry.Kind {
	case domain.KindDeposit:
		return s.reconcileDeposit(ctx, entry, event)
	case domain.KindWithdrawal:
		return s.reconcileWithdrawal(ctx, entry, event)
	default:
		// Transfers are internal and never carry a processor reference.
		log.Printf("level=warn component=reconciler msg=\"reference resolved to a non-reconcilable entry\" reference=%s kind=%s", event.Reference, entry.Kind)
		return &ReconcileResult{Outcome: store.OutcomeRecorded, Entry: entry}, nil
	}
}

func (s *Service) reconcileDeposit(ctx context.Context, entry *domain.Transaction, event VerifiedEvent) (*ReconcileResult, error) {
	switch normalizeStatus(event.Status) {
	case "success":
		outcome, err := s.repo.ReconcileDepositAtomic(ctx, event.Reference, event.Amount, event.Metadata)
		if err != nil {
			return nil, err
		}
		updated, err := s.repo.FindTransactionByReference(ctx, event.Reference)
		if err != nil {
			return nil, err
		}
		if outcome == store.OutcomeCredited {
			log.Printf("level=info component=reconciler flow=deposit msg=\"deposit credited\" reference=%s amount=%s", event.Reference, event.Amount.StringFixed(2))
			s.publishLedgerEvent(ctx, "deposit.credited", updated)
		} else {
			log.Printf("level=info component=reconciler flow=deposit msg=\"duplicate notification ignored\" reference=%s outcome=%s", event.Reference, outcome)
		}
		return &ReconcileResult{Outcome: outcome, Entry: updated}, nil

	case "failed", "abandoned":
		if err := s.repo.MarkTransactionFailed(ctx, event.Reference, "processor reported "+event.Status); err != nil {
			if errors.Is(err, store.ErrUnknownReference) {
				return nil, err
			}
			return nil, fmt.Errorf("failed to mark deposit failed: %w", err)
		}
		updated, err := s.repo.FindTransactionByReference(ctx, event.Reference)
		if err != nil {
			return nil, err
		}
		return &ReconcileResult{Outcome: store.OutcomeRecorded, Entry: updated}, nil

	default:
		// Pending and processing statuses leave the entry untouched; the poll
		// path will keep re-verifying until the processor reaches a terminal
		// state.
		return &ReconcileResult{Outcome: store.OutcomeRecorded, Entry: entry}, nil
	}
}

func (s *Service) reconcileWithdrawal(ctx context.Context, entry *domain.Transaction, event VerifiedEvent) (*ReconcileResult, error) {
	var newStatus domain.TransactionStatus
	switch normalizeStatus(event.Status) {
	case "success":
		newStatus = domain.StatusSuccess
	case "failed", "abandoned":
		newStatus = domain.StatusFailed
	case "reversed":
		newStatus = domain.StatusReversed
	default:
		return &ReconcileResult{Outcome: store.OutcomeRecorded, Entry: entry}, nil
	}

	outcome, err := s.repo.SettleWithdrawalAtomic(ctx, store.SettleParams{
		Reference: event.Reference,
		NewStatus: newStatus,
		Reason:    "processor reported " + event.Status,
		Metadata:  event.Metadata,
	})
	if err != nil {
		return nil, err
	}
	updated, err := s.repo.FindTransactionByReference(ctx, event.Reference)
	if err != nil {
		return nil, err
	}

	switch outcome {
	case store.OutcomeReversed:
		log.Printf("level=info component=reconciler flow=withdrawal msg=\"withdrawal refunded\" reference=%s status=%s", event.Reference, newStatus)
		s.publishLedgerEvent(ctx, "withdrawal.reversed", updated)
	case store.OutcomeRecorded:
		// Recorded covers both a real settlement and a skipped non-transitionable
		// notification; only the former changes the entry's status.
		if updated.Status == newStatus {
			log.Printf("level=info component=reconciler flow=withdrawal msg=\"withdrawal settled\" reference=%s status=%s", event.Reference, newStatus)
			s.publishLedgerEvent(ctx, "withdrawal.settled", updated)
		}
	case store.OutcomeAlreadyProcessed:
		log.Printf("level=info component=reconciler flow=withdrawal msg=\"duplicate notification ignored\" reference=%s", event.Reference)
	}
	return &ReconcileResult{Outcome: outcome, Entry: updated}, nil
}

// VerifyDeposit is the manual status-poll path. It asks the processor for the
// authoritative status of a reference and feeds the answer into the same
// reconciliation function the webhook uses.
func (s *Service) VerifyDeposit(ctx context.Context, ownerID uuid.UUID, reference string) (*ReconcileResult, error) {
	if err := s.consumeRateLimit(ctx, "verify", ownerID.String(), s.limits.VerifyPollRatePerMinute); err != nil {
		return nil, err
	}

	// The reference must resolve locally before we spend a gateway call on it.
	entry, err := s.repo.FindTransactionByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	// Another owner's reference is treated as unknown so the endpoint leaks
	// nothing about references it does not own.
	if entry.OwnerID != ownerID {
		return nil, store.ErrUnknownReference
	}

	verified, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("gateway verification failed: %w", err)
	}

	return s.Reconcile(ctx, VerifiedEvent{
		Reference: reference,
		Status:    verified.Data.Status,
		Amount:    fromMinorUnits(verified.Data.Amount),
		Metadata:  verified.Data.Metadata,
	})
}

func normalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}
