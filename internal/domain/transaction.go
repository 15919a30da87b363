/**
 * @description
 * This file defines the ledger entry domain model and the DTOs used by the
 * wallet-service's API layer. A Transaction is the immutable record of one
 * financial event (deposit, transfer or withdrawal) scoped to a single wallet
 * owner; transfers produce two entries, one per owner, sharing the same
 * logical event.
 *
 * @notes
 * - Amounts are fixed-point decimals with 2 fractional digits. The payment
 *   processor speaks minor units (kobo); conversion happens exactly once, at
 *   the reconciliation boundary.
 * - The external reference is the idempotency key for deposit and withdrawal
 *   reconciliation and carries a unique constraint when present.
 * - Metadata is an opaque audit payload (gateway responses, balances
 *   before/after). It is never consulted to compute balances.
 */

package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionKind enumerates the supported ledger entry kinds.
type TransactionKind string

const (
	KindDeposit    TransactionKind = "deposit"
	KindTransfer   TransactionKind = "transfer"
	KindWithdrawal TransactionKind = "withdrawal"
)

// TransactionStatus enumerates the ledger entry lifecycle states.
// Valid transitions: pending -> success, pending -> failed, success -> reversed.
type TransactionStatus string

const (
	StatusPending  TransactionStatus = "pending"
	StatusSuccess  TransactionStatus = "success"
	StatusFailed   TransactionStatus = "failed"
	StatusReversed TransactionStatus = "reversed"
)

// IsTerminal reports whether no further forward transition is allowed from s,
// other than the single success -> reversed path.
func (s TransactionStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusReversed
}

// CanTransitionTo reports whether the state machine permits moving from s to next.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusSuccess || next == StatusFailed
	case StatusSuccess:
		return next == StatusReversed
	default:
		return false
	}
}

// Transaction represents one ledger entry.
// This struct maps directly to the `transactions` table in the database.
type Transaction struct {
	ID                    uuid.UUID         `json:"id"`
	OwnerID               uuid.UUID         `json:"owner_id"`
	Reference             *string           `json:"reference,omitempty"`
	Kind                  TransactionKind   `json:"kind"`
	Status                TransactionStatus `json:"status"`
	Amount                decimal.Decimal   `json:"amount"`
	SenderWalletNumber    *string           `json:"sender_wallet_number,omitempty"`
	RecipientWalletNumber *string           `json:"recipient_wallet_number,omitempty"`
	Description           string            `json:"description"`
	Metadata              json.RawMessage   `json:"metadata,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// TransferRequest is the DTO for incoming wallet-to-wallet transfer API requests.
type TransferRequest struct {
	RecipientWalletNumber string          `json:"recipient_wallet_number"`
	Amount                decimal.Decimal `json:"amount"`
	Description           string          `json:"description"`
}

// DepositRequest is the DTO for initiating a deposit through the payment processor.
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Email  string          `json:"email"`
}

// DepositInitiation is returned after a hosted payment session has been created.
type DepositInitiation struct {
	Reference        string          `json:"reference"`
	AuthorizationURL string          `json:"authorization_url"`
	Amount           decimal.Decimal `json:"amount"`
}

// WithdrawalRequest is the DTO for initiating a withdrawal to an external rail.
type WithdrawalRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// LedgerPageOptions controls filtering and pagination of an owner's ledger history.
type LedgerPageOptions struct {
	Kind   string
	Status string
	Limit  int
	Offset int
}

// LedgerEvent is the message payload published to RabbitMQ after a committed
// money movement, consumed by downstream services (notifications, analytics).
type LedgerEvent struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	OwnerID       uuid.UUID       `json:"owner_id"`
	Kind          string          `json:"kind"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Reference     *string         `json:"reference,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}
