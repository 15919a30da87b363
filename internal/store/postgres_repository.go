/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all SQL needed to operate on the wallets and
 * transactions tables, including the row-locked atomic money movements that
 * the Transfer and Reconciliation engines depend on.
 *
 * Locking discipline:
 * - Every balance mutation happens inside a single pgx transaction.
 * - Wallet rows are locked with SELECT ... FOR UPDATE and balances are
 *   re-read under the lock; pre-lock reads are only used for validation.
 * - When two wallets are involved, rows are locked in ascending wallet-id
 *   order so that two transfers moving funds in opposite directions between
 *   the same pair cannot deadlock.
 *
 * @dependencies
 * - context, encoding/json, errors, fmt, strings: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/shopspring/decimal: Fixed-point money arithmetic.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/centpay/wallet-service/internal/domain"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrWalletAlreadyExists = errors.New("wallet already exists for owner")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrUnknownReference    = errors.New("unknown external reference")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrDuplicateReference  = errors.New("duplicate external reference")
)

const walletNumberAttempts = 5

const uniqueViolationCode = "23505"

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// round2 normalizes an amount to the ledger's 2-decimal representation at the
// point of mutation. Round is half-away-from-zero.
func round2(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// CreateWallet creates a zero-balance wallet for an owner, assigning a freshly
// generated wallet number. It retries number generation on collision and fails
// with ErrWalletAlreadyExists if the owner already has a wallet.
func (r *PostgresRepository) CreateWallet(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	query := `
		INSERT INTO wallets (id, owner_id, wallet_number, balance, currency)
		VALUES ($1, $2, $3, 0, 'NGN')
		RETURNING id, owner_id, wallet_number, balance, currency, created_at, updated_at
	`

	for attempt := 0; attempt < walletNumberAttempts; attempt++ {
		number, err := generateWalletNumber()
		if err != nil {
			return nil, err
		}

		var w domain.Wallet
		err = r.db.QueryRow(ctx, query, uuid.New(), ownerID, number).Scan(
			&w.ID, &w.OwnerID, &w.WalletNumber, &w.Balance, &w.Currency, &w.CreatedAt, &w.UpdatedAt,
		)
		if err == nil {
			return &w, nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			if strings.Contains(pgErr.ConstraintName, "owner") {
				return nil, ErrWalletAlreadyExists
			}
			// Wallet number collision; draw again.
			continue
		}
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	return nil, errors.New("failed to assign a unique wallet number")
}

// FindWalletByOwnerID retrieves a wallet by its owner.
func (r *PostgresRepository) FindWalletByOwnerID(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	return r.findWallet(ctx, `WHERE owner_id = $1`, ownerID)
}

// FindWalletByNumber retrieves a wallet by its public wallet number.
func (r *PostgresRepository) FindWalletByNumber(ctx context.Context, number string) (*domain.Wallet, error) {
	return r.findWallet(ctx, `WHERE wallet_number = $1`, strings.TrimSpace(number))
}

func (r *PostgresRepository) findWallet(ctx context.Context, where string, arg any) (*domain.Wallet, error) {
	var w domain.Wallet
	query := `SELECT id, owner_id, wallet_number, balance, currency, created_at, updated_at FROM wallets ` + where
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&w.ID, &w.OwnerID, &w.WalletNumber, &w.Balance, &w.Currency, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &w, nil
}

// lockWallet re-reads a wallet row under an exclusive row lock. Must be called
// inside an open transaction.
func lockWallet(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) (*domain.Wallet, error) {
	var w domain.Wallet
	query := `
		SELECT id, owner_id, wallet_number, balance, currency, created_at, updated_at
		FROM wallets
		WHERE id = $1
		FOR UPDATE
	`
	err := tx.QueryRow(ctx, query, walletID).Scan(
		&w.ID, &w.OwnerID, &w.WalletNumber, &w.Balance, &w.Currency, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &w, nil
}

// debitWallet subtracts amount from a locked wallet row. The caller must hold
// the row lock. Fails with ErrInsufficientFunds before writing anything if the
// balance would go negative.
func debitWallet(ctx context.Context, tx pgx.Tx, w *domain.Wallet, amount decimal.Decimal) error {
	amount = round2(amount)
	if w.Balance.Sub(amount).IsNegative() {
		return ErrInsufficientFunds
	}
	_, err := tx.Exec(ctx, `UPDATE wallets SET balance = balance - $1, updated_at = NOW() WHERE id = $2`, amount, w.ID)
	if err != nil {
		return fmt.Errorf("failed to debit wallet %s: %w", w.ID, err)
	}
	w.Balance = w.Balance.Sub(amount)
	return nil
}

// creditWallet adds amount to a locked wallet row. The caller must hold the row lock.
func creditWallet(ctx context.Context, tx pgx.Tx, w *domain.Wallet, amount decimal.Decimal) error {
	amount = round2(amount)
	_, err := tx.Exec(ctx, `UPDATE wallets SET balance = balance + $1, updated_at = NOW() WHERE id = $2`, amount, w.ID)
	if err != nil {
		return fmt.Errorf("failed to credit wallet %s: %w", w.ID, err)
	}
	w.Balance = w.Balance.Add(amount)
	return nil
}

const insertTransactionQuery = `
	INSERT INTO transactions (
		id, owner_id, reference, kind, status, amount,
		sender_wallet_number, recipient_wallet_number, description, metadata
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	RETURNING created_at, updated_at
`

// CreatePendingTransaction inserts a new ledger entry in the pending state.
// The reference's unique constraint rejects duplicate deposit attempts.
func (r *PostgresRepository) CreatePendingTransaction(ctx context.Context, t *domain.Transaction) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.Status = domain.StatusPending
	t.Amount = round2(t.Amount)

	err := r.db.QueryRow(ctx, insertTransactionQuery,
		t.ID, t.OwnerID, t.Reference, t.Kind, t.Status, t.Amount,
		t.SenderWalletNumber, t.RecipientWalletNumber, t.Description, t.Metadata,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return ErrDuplicateReference
		}
		return fmt.Errorf("failed to create transaction record: %w", err)
	}
	return nil
}

const selectTransactionColumns = `
	SELECT id, owner_id, reference, kind, status, amount,
	       sender_wallet_number, recipient_wallet_number, description, metadata,
	       created_at, updated_at
	FROM transactions
`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	err := row.Scan(
		&t.ID, &t.OwnerID, &t.Reference, &t.Kind, &t.Status, &t.Amount,
		&t.SenderWalletNumber, &t.RecipientWalletNumber, &t.Description, &t.Metadata,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindTransactionByID retrieves a single ledger entry.
func (r *PostgresRepository) FindTransactionByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRow(ctx, selectTransactionColumns+` WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return t, nil
}

// FindTransactionByReference retrieves a ledger entry by its external reference.
func (r *PostgresRepository) FindTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRow(ctx, selectTransactionColumns+` WHERE reference = $1`, reference))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUnknownReference
		}
		return nil, err
	}
	return t, nil
}

// ListTransactionsByOwner returns one page of an owner's ledger history,
// newest first, optionally filtered by kind and status.
func (r *PostgresRepository) ListTransactionsByOwner(ctx context.Context, ownerID uuid.UUID, opts domain.LedgerPageOptions) ([]domain.Transaction, error) {
	query := selectTransactionColumns + ` WHERE owner_id = $1`
	args := []any{ownerID}

	if kind := strings.TrimSpace(opts.Kind); kind != "" {
		args = append(args, kind)
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if status := strings.TrimSpace(opts.Status); status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *t)
	}
	return entries, rows.Err()
}

// MarkTransactionFailed records a failure outcome for a pending entry without
// touching any wallet. Entries already in a terminal state are left untouched.
func (r *PostgresRepository) MarkTransactionFailed(ctx context.Context, reference string, reason string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE transactions
		SET status = 'failed',
		    metadata = COALESCE(metadata, '{}'::jsonb) || jsonb_build_object('failure_reason', $2::text),
		    updated_at = NOW()
		WHERE reference = $1 AND status = 'pending'
	`, reference, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either the reference is unknown or the entry already settled; an
		// already-settled entry makes this a no-op, an unknown one is an error.
		if _, findErr := r.FindTransactionByReference(ctx, reference); findErr != nil {
			return findErr
		}
	}
	return nil
}

// TransferAtomic moves funds between two wallets and writes both ledger entries
// in one database transaction. On any failure the transaction is rolled back in
// full; the caller observes total success or total failure, never a partial state.
func (r *PostgresRepository) TransferAtomic(ctx context.Context, p TransferParams) (*TransferResult, error) {
	amount := round2(p.Amount)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock both wallet rows in ascending wallet-id order regardless of
	// transfer direction, then re-read balances under lock.
	firstID, secondID := p.SenderWalletID, p.RecipientWalletID
	if secondID.String() < firstID.String() {
		firstID, secondID = secondID, firstID
	}

	first, err := lockWallet(ctx, tx, firstID)
	if err != nil {
		return nil, err
	}
	second, err := lockWallet(ctx, tx, secondID)
	if err != nil {
		return nil, err
	}

	sender, recipient := first, second
	if sender.ID != p.SenderWalletID {
		sender, recipient = second, first
	}

	senderBefore := sender.Balance
	recipientBefore := recipient.Balance

	if err := debitWallet(ctx, tx, sender, amount); err != nil {
		return nil, err
	}
	if err := creditWallet(ctx, tx, recipient, amount); err != nil {
		return nil, err
	}

	metadata, err := json.Marshal(map[string]any{
		"sender_balance_before":    senderBefore,
		"sender_balance_after":     sender.Balance,
		"recipient_balance_before": recipientBefore,
		"recipient_balance_after":  recipient.Balance,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transfer metadata: %w", err)
	}

	debitEntry := &domain.Transaction{
		ID:                    uuid.New(),
		OwnerID:               sender.OwnerID,
		Kind:                  domain.KindTransfer,
		Status:                domain.StatusSuccess,
		Amount:                amount,
		SenderWalletNumber:    &sender.WalletNumber,
		RecipientWalletNumber: &recipient.WalletNumber,
		Description:           p.Description,
		Metadata:              metadata,
	}
	creditEntry := &domain.Transaction{
		ID:                    uuid.New(),
		OwnerID:               recipient.OwnerID,
		Kind:                  domain.KindTransfer,
		Status:                domain.StatusSuccess,
		Amount:                amount,
		SenderWalletNumber:    &sender.WalletNumber,
		RecipientWalletNumber: &recipient.WalletNumber,
		Description:           p.Description,
		Metadata:              metadata,
	}

	for _, entry := range []*domain.Transaction{debitEntry, creditEntry} {
		err = tx.QueryRow(ctx, insertTransactionQuery,
			entry.ID, entry.OwnerID, entry.Reference, entry.Kind, entry.Status, entry.Amount,
			entry.SenderWalletNumber, entry.RecipientWalletNumber, entry.Description, entry.Metadata,
		).Scan(&entry.CreatedAt, &entry.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to write transfer ledger entry: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transfer: %w", err)
	}
	return &TransferResult{DebitEntry: debitEntry, CreditEntry: creditEntry}, nil
}

// WithdrawAtomic debits the owner's wallet and writes a pending withdrawal
// entry in one database transaction, locking the funds until the processor
// confirms or rejects the payout.
func (r *PostgresRepository) WithdrawAtomic(ctx context.Context, ownerID uuid.UUID, reference string, amount decimal.Decimal, description string) (*domain.Transaction, error) {
	amount = round2(amount)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var walletID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM wallets WHERE owner_id = $1`, ownerID).Scan(&walletID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}

	wallet, err := lockWallet(ctx, tx, walletID)
	if err != nil {
		return nil, err
	}

	balanceBefore := wallet.Balance
	if err := debitWallet(ctx, tx, wallet, amount); err != nil {
		return nil, err
	}

	metadata, err := json.Marshal(map[string]any{
		"balance_before": balanceBefore,
		"balance_after":  wallet.Balance,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal withdrawal metadata: %w", err)
	}

	entry := &domain.Transaction{
		ID:                 uuid.New(),
		OwnerID:            ownerID,
		Reference:          &reference,
		Kind:               domain.KindWithdrawal,
		Status:             domain.StatusPending,
		Amount:             amount,
		SenderWalletNumber: &wallet.WalletNumber,
		Description:        description,
		Metadata:           metadata,
	}
	err = tx.QueryRow(ctx, insertTransactionQuery,
		entry.ID, entry.OwnerID, entry.Reference, entry.Kind, entry.Status, entry.Amount,
		entry.SenderWalletNumber, entry.RecipientWalletNumber, entry.Description, entry.Metadata,
	).Scan(&entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return nil, ErrDuplicateReference
		}
		return nil, fmt.Errorf("failed to write withdrawal ledger entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit withdrawal: %w", err)
	}
	return entry, nil
}

// ReconcileDepositAtomic applies a verified success outcome to a pending
// deposit exactly once. The ledger row is locked by reference and its status
// re-checked under the lock, which serializes concurrent reconciliation
// attempts for the same reference: the loser of the race observes success and
// returns OutcomeAlreadyProcessed without crediting anything.
func (r *PostgresRepository) ReconcileDepositAtomic(ctx context.Context, reference string, verifiedAmount decimal.Decimal, metadata json.RawMessage) (ReconcileOutcome, error) {
	verifiedAmount = round2(verifiedAmount)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		entryID uuid.UUID
		ownerID uuid.UUID
		kind    domain.TransactionKind
		status  domain.TransactionStatus
	)
	err = tx.QueryRow(ctx, `
		SELECT id, owner_id, kind, status
		FROM transactions
		WHERE reference = $1
		FOR UPDATE
	`, reference).Scan(&entryID, &ownerID, &kind, &status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", ErrUnknownReference
		}
		return "", err
	}

	if kind != domain.KindDeposit {
		return "", fmt.Errorf("reference %s is not a deposit entry", reference)
	}
	outcome, proceed := depositSettleDecision(status)
	if !proceed {
		return outcome, nil
	}

	var walletID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM wallets WHERE owner_id = $1`, ownerID).Scan(&walletID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", ErrWalletNotFound
		}
		return "", err
	}
	wallet, err := lockWallet(ctx, tx, walletID)
	if err != nil {
		return "", err
	}

	balanceBefore := wallet.Balance
	if err := creditWallet(ctx, tx, wallet, verifiedAmount); err != nil {
		return "", err
	}

	audit, err := json.Marshal(map[string]any{
		"balance_before":  balanceBefore,
		"balance_after":   wallet.Balance,
		"verified_amount": verifiedAmount,
		"gateway":         json.RawMessage(normalizeMetadata(metadata)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal reconciliation metadata: %w", err)
	}

	// The ledger amount is overwritten with the verified amount so the
	// balance/ledger invariant holds even if the pending row was created from
	// client input.
	_, err = tx.Exec(ctx, `
		UPDATE transactions
		SET status = 'success', amount = $2,
		    metadata = COALESCE(metadata, '{}'::jsonb) || $3::jsonb,
		    updated_at = NOW()
		WHERE id = $1
	`, entryID, verifiedAmount, audit)
	if err != nil {
		return "", fmt.Errorf("failed to settle deposit entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit reconciliation: %w", err)
	}
	return OutcomeCredited, nil
}

// SettleWithdrawalAtomic applies a verified processor outcome to a withdrawal
// under the same lock-and-recheck discipline as deposit reconciliation.
// pending -> success records the payout; pending -> failed and
// success -> reversed return the debited amount to the wallet. Any other
// transition is detected and skipped as an idempotent no-op.
func (r *PostgresRepository) SettleWithdrawalAtomic(ctx context.Context, p SettleParams) (ReconcileOutcome, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		entryID uuid.UUID
		ownerID uuid.UUID
		kind    domain.TransactionKind
		status  domain.TransactionStatus
		amount  decimal.Decimal
	)
	err = tx.QueryRow(ctx, `
		SELECT id, owner_id, kind, status, amount
		FROM transactions
		WHERE reference = $1
		FOR UPDATE
	`, p.Reference).Scan(&entryID, &ownerID, &kind, &status, &amount)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", ErrUnknownReference
		}
		return "", err
	}

	if kind != domain.KindWithdrawal {
		return "", fmt.Errorf("reference %s is not a withdrawal entry", p.Reference)
	}
	outcome, refund, proceed := withdrawalSettleDecision(status, p.NewStatus)
	if !proceed {
		return outcome, nil
	}
	if refund {
		var walletID uuid.UUID
		err = tx.QueryRow(ctx, `SELECT id FROM wallets WHERE owner_id = $1`, ownerID).Scan(&walletID)
		if err != nil {
			if err == pgx.ErrNoRows {
				return "", ErrWalletNotFound
			}
			return "", err
		}
		wallet, err := lockWallet(ctx, tx, walletID)
		if err != nil {
			return "", err
		}
		if err := creditWallet(ctx, tx, wallet, amount); err != nil {
			return "", err
		}
	}

	audit, err := json.Marshal(map[string]any{
		"settlement_reason": p.Reason,
		"gateway":           json.RawMessage(normalizeMetadata(p.Metadata)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal settlement metadata: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE transactions
		SET status = $2,
		    metadata = COALESCE(metadata, '{}'::jsonb) || $3::jsonb,
		    updated_at = NOW()
		WHERE id = $1
	`, entryID, p.NewStatus, audit)
	if err != nil {
		return "", fmt.Errorf("failed to settle withdrawal entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit withdrawal settlement: %w", err)
	}
	return outcome, nil
}

// normalizeMetadata guards against embedding invalid or empty JSON in an audit blob.
func normalizeMetadata(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || !json.Valid(raw) {
		return json.RawMessage(`null`)
	}
	return raw
}
