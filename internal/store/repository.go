/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for
 * all data access operations required by the wallet-service. By defining an
 * interface, we decouple the business logic from the PostgreSQL implementation
 * and make the service layer testable with stubs.
 *
 * The multi-step money movements (transfer, deposit reconciliation, withdrawal
 * settlement) are deliberately exposed as single atomic methods rather than as
 * separately callable debit/credit primitives: every balance mutation must
 * happen inside one locked database transaction, and the repository is the only
 * component allowed to open one.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid, github.com/shopspring/decimal: Identifiers and money.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/centpay/wallet-service/internal/domain"
)

// ReconcileOutcome describes what a reconciliation attempt did.
type ReconcileOutcome string

const (
	// OutcomeCredited means the ledger entry moved to success and the wallet
	// was credited exactly once.
	OutcomeCredited ReconcileOutcome = "credited"
	// OutcomeAlreadyProcessed means the entry was already in success; nothing
	// was changed. This is the idempotent no-op, not an error.
	OutcomeAlreadyProcessed ReconcileOutcome = "already_processed"
	// OutcomeRecorded means a status was recorded without touching any wallet
	// (failure recorded, or a no-op skip on an entry in a terminal state).
	OutcomeRecorded ReconcileOutcome = "recorded"
	// OutcomeReversed means a success entry moved to reversed and the wallet
	// was re-credited by the original amount.
	OutcomeReversed ReconcileOutcome = "reversed"
)

// TransferParams carries everything TransferAtomic needs. Wallets are resolved
// by the caller before any lock is taken; balances are re-read under lock.
type TransferParams struct {
	SenderWalletID    uuid.UUID
	RecipientWalletID uuid.UUID
	Amount            decimal.Decimal
	Description       string
}

// TransferResult holds the two ledger entries written by a committed transfer:
// one scoped to the sender, one to the recipient.
type TransferResult struct {
	DebitEntry  *domain.Transaction
	CreditEntry *domain.Transaction
}

// SettleParams carries a verified processor-side outcome for a pending or
// settled withdrawal identified by its external reference.
type SettleParams struct {
	Reference string
	NewStatus domain.TransactionStatus
	Reason    string
	Metadata  json.RawMessage
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Wallet methods
	CreateWallet(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error)
	FindWalletByOwnerID(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error)
	FindWalletByNumber(ctx context.Context, number string) (*domain.Wallet, error)

	// Ledger methods
	CreatePendingTransaction(ctx context.Context, tx *domain.Transaction) error
	FindTransactionByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	FindTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	ListTransactionsByOwner(ctx context.Context, ownerID uuid.UUID, opts domain.LedgerPageOptions) ([]domain.Transaction, error)
	MarkTransactionFailed(ctx context.Context, reference string, reason string) error

	// Atomic money movements
	TransferAtomic(ctx context.Context, p TransferParams) (*TransferResult, error)
	WithdrawAtomic(ctx context.Context, ownerID uuid.UUID, reference string, amount decimal.Decimal, description string) (*domain.Transaction, error)
	ReconcileDepositAtomic(ctx context.Context, reference string, verifiedAmount decimal.Decimal, metadata json.RawMessage) (ReconcileOutcome, error)
	SettleWithdrawalAtomic(ctx context.Context, p SettleParams) (ReconcileOutcome, error)
}
