package store

import "github.com/centpay/wallet-service/internal/domain"

// depositSettleDecision decides what a verified success notification does to a
// deposit entry in the given status. proceed is true only when the wallet must
// be credited and the entry moved to success; otherwise the returned outcome
// is final and nothing is mutated.
func depositSettleDecision(status domain.TransactionStatus) (outcome ReconcileOutcome, proceed bool) {
	if status == domain.StatusSuccess {
		return OutcomeAlreadyProcessed, false
	}
	if !status.CanTransitionTo(domain.StatusSuccess) {
		// failed/reversed entries never move back; skip without crediting.
		return OutcomeRecorded, false
	}
	return OutcomeCredited, true
}

// withdrawalSettleDecision decides what a verified processor outcome does to a
// withdrawal entry: the outcome to report, whether the debited amount must be
// returned to the wallet, and whether the transition may be applied at all.
func withdrawalSettleDecision(status, next domain.TransactionStatus) (outcome ReconcileOutcome, refund, proceed bool) {
	if status == next {
		return OutcomeAlreadyProcessed, false, false
	}
	if !status.CanTransitionTo(next) {
		return OutcomeRecorded, false, false
	}
	refund = next == domain.StatusFailed || next == domain.StatusReversed
	if next == domain.StatusReversed {
		return OutcomeReversed, refund, true
	}
	return OutcomeRecorded, refund, true
}
