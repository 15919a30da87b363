/**
 * @description
 * This file contains the core business logic for the wallet-service. The
 * `Service` struct orchestrates all money movement operations, coordinating
 * between the database repository, the Paystack gateway client, and the
 * message broker.
 *
 * Key features:
 * - Wallet-to-wallet transfers under the repository's row-locked atomic unit
 *   of work.
 * - Deposit initiation against the payment processor's hosted session API.
 * - Withdrawal initiation with immediate fund locking.
 * - Publishes ledger events to RabbitMQ for asynchronous processing by other
 *   services; publishing never affects a committed financial operation.
 *
 * Validation happens before any lock is taken; gateway calls happen outside
 * any held lock.
 *
 * @dependencies
 * - context, errors, fmt, log: Standard Go libraries.
 * - github.com/google/uuid, github.com/shopspring/decimal: Identifiers and money.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/paystackclient, pkg/rabbitmq: For external service communication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/centpay/wallet-service/internal/domain"
	"github.com/centpay/wallet-service/internal/store"
	"github.com/centpay/wallet-service/pkg/paystackclient"
	"github.com/centpay/wallet-service/pkg/rabbitmq"
)

var (
	ErrInvalidAmount = errors.New("amount must be positive and within the configured bounds")
	ErrInvalidTarget = errors.New("recipient wallet is invalid")
	ErrRateLimited   = errors.New("rate limit exceeded")
)

// RateLimitedError reports an exhausted rate-limit window together with the
// seconds remaining until it resets, so the transport layer can emit a
// Retry-After header. It matches ErrRateLimited under errors.Is.
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded; retry after %ds", e.RetryAfterSeconds)
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// Gateway is the slice of the payment processor's API the core consumes.
type Gateway interface {
	InitializeTransaction(ctx context.Context, req paystackclient.InitializeRequest) (*paystackclient.InitializeResponse, error)
	VerifyTransaction(ctx context.Context, reference string) (*paystackclient.VerifyResponse, error)
	VerifySignature(payload []byte, signatureHeader string) bool
}

// RateLimiter is the distributed fixed-window limiter applied to the
// transfer and status-poll endpoints.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Limits carries the configured operation bounds.
type Limits struct {
	MinTransfer             decimal.Decimal
	MaxTransfer             decimal.Decimal
	TransferRatePerMinute   int
	VerifyPollRatePerMinute int
}

// Service provides the core business logic for wallets and the ledger.
type Service struct {
	repo          store.Repository
	gateway       Gateway
	eventProducer rabbitmq.Publisher
	limiter       RateLimiter
	limits        Limits
	callbackURL   string
	eventExchange string
}

// NewService creates a new wallet service instance.
func NewService(repo store.Repository, gateway Gateway, producer rabbitmq.Publisher, limits Limits, callbackURL, eventExchange string) *Service {
	return &Service{
		repo:          repo,
		gateway:       gateway,
		eventProducer: producer,
		limits:        limits,
		callbackURL:   callbackURL,
		eventExchange: eventExchange,
	}
}

// SetRateLimiter attaches an optional distributed rate limiter.
func (s *Service) SetRateLimiter(limiter RateLimiter) {
	s.limiter = limiter
}

// CreateWallet provisions a zero-balance wallet for an owner at onboarding.
func (s *Service) CreateWallet(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	return s.repo.CreateWallet(ctx, ownerID)
}

// GetBalance returns the owner's wallet with its current balance.
func (s *Service) GetBalance(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	return s.repo.FindWalletByOwnerID(ctx, ownerID)
}

// GetLedgerPage returns one page of the owner's transaction history.
func (s *Service) GetLedgerPage(ctx context.Context, ownerID uuid.UUID, opts domain.LedgerPageOptions) ([]domain.Transaction, error) {
	return s.repo.ListTransactionsByOwner(ctx, ownerID, opts)
}

// Transfer moves funds from the sender's wallet to the wallet addressed by the
// recipient wallet number. Validation happens before any lock; the balance
// check and both mutations happen under the repository's locked unit of work.
func (s *Service) Transfer(ctx context.Context, senderOwnerID uuid.UUID, req domain.TransferRequest) (*domain.Transaction, error) {
	if err := s.validateTransferAmount(req.Amount); err != nil {
		return nil, err
	}
	if !isWellFormedWalletNumber(req.RecipientWalletNumber) {
		return nil, ErrInvalidTarget
	}
	if err := s.consumeRateLimit(ctx, "transfer", senderOwnerID.String(), s.limits.TransferRatePerMinute); err != nil {
		return nil, err
	}

	senderWallet, err := s.repo.FindWalletByOwnerID(ctx, senderOwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to find sender wallet: %w", err)
	}

	recipientWallet, err := s.repo.FindWalletByNumber(ctx, req.RecipientWalletNumber)
	if err != nil {
		if errors.Is(err, store.ErrWalletNotFound) {
			return nil, ErrInvalidTarget
		}
		return nil, fmt.Errorf("failed to find recipient wallet: %w", err)
	}
	if recipientWallet.OwnerID == senderOwnerID {
		return nil, ErrInvalidTarget
	}

	result, err := s.repo.TransferAtomic(ctx, store.TransferParams{
		SenderWalletID:    senderWallet.ID,
		RecipientWalletID: recipientWallet.ID,
		Amount:            req.Amount,
		Description:       req.Description,
	})
	if err != nil {
		return nil, err
	}

	s.publishLedgerEvent(ctx, "transfer.completed", result.DebitEntry)
	s.publishLedgerEvent(ctx, "transfer.received", result.CreditEntry)

	return result.DebitEntry, nil
}

// InitiateDeposit creates a pending deposit ledger entry and a hosted payment
// session for it. The gateway call happens after the entry exists and outside
// any lock; if the gateway rejects the initialization the entry is marked
// failed and the error is surfaced to the caller.
func (s *Service) InitiateDeposit(ctx context.Context, ownerID uuid.UUID, req domain.DepositRequest) (*domain.DepositInitiation, error) {
	amount := req.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	wallet, err := s.repo.FindWalletByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to find wallet: %w", err)
	}

	reference := newReference("dep")
	entry := &domain.Transaction{
		OwnerID:     ownerID,
		Reference:   &reference,
		Kind:        domain.KindDeposit,
		Amount:      amount,
		Description: fmt.Sprintf("Deposit to wallet %s", wallet.WalletNumber),
	}
	if err := s.repo.CreatePendingTransaction(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to create deposit record: %w", err)
	}

	initResp, err := s.gateway.InitializeTransaction(ctx, paystackclient.InitializeRequest{
		Email:       req.Email,
		Amount:      toMinorUnits(amount),
		Reference:   reference,
		CallbackURL: s.callbackURL,
	})
	if err != nil {
		if markErr := s.repo.MarkTransactionFailed(ctx, reference, "gateway initialization failed"); markErr != nil {
			log.Printf("level=error component=service flow=deposit msg=\"failed to mark entry failed after gateway error\" reference=%s err=%v", reference, markErr)
		}
		return nil, fmt.Errorf("gateway initialization failed: %w", err)
	}

	return &domain.DepositInitiation{
		Reference:        reference,
		AuthorizationURL: initResp.Data.AuthorizationURL,
		Amount:           amount,
	}, nil
}

// InitiateWithdrawal locks the requested funds by debiting the wallet and
// writing a pending withdrawal entry in one unit of work. The payout rail
// settles asynchronously; a processor-side success, failure or reversal later
// arrives through ReconcileWithdrawal.
func (s *Service) InitiateWithdrawal(ctx context.Context, ownerID uuid.UUID, req domain.WithdrawalRequest) (*domain.Transaction, error) {
	if err := s.validateTransferAmount(req.Amount); err != nil {
		return nil, err
	}

	reference := newReference("wd")
	entry, err := s.repo.WithdrawAtomic(ctx, ownerID, reference, req.Amount, req.Description)
	if err != nil {
		return nil, err
	}

	s.publishLedgerEvent(ctx, "withdrawal.initiated", entry)
	return entry, nil
}

func (s *Service) validateTransferAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !s.limits.MinTransfer.IsZero() && amount.LessThan(s.limits.MinTransfer) {
		return ErrInvalidAmount
	}
	if !s.limits.MaxTransfer.IsZero() && amount.GreaterThan(s.limits.MaxTransfer) {
		return ErrInvalidAmount
	}
	return nil
}

func (s *Service) consumeRateLimit(ctx context.Context, scope, subject string, limit int) error {
	if s.limiter == nil || limit <= 0 {
		return nil
	}
	count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, scope, subject, limit, time.Minute)
	if err != nil {
		// A limiter outage never blocks the money path.
		log.Printf("level=warn component=service msg=\"rate limiter unavailable; allowing request\" scope=%s err=%v", scope, err)
		return nil
	}
	if count > limit {
		return &RateLimitedError{RetryAfterSeconds: retryAfter}
	}
	return nil
}

func (s *Service) publishLedgerEvent(ctx context.Context, routingKey string, entry *domain.Transaction) {
	if s.eventProducer == nil || entry == nil {
		return
	}
	event := domain.LedgerEvent{
		TransactionID: entry.ID,
		OwnerID:       entry.OwnerID,
		Kind:          string(entry.Kind),
		Status:        string(entry.Status),
		Amount:        entry.Amount,
		Reference:     entry.Reference,
		Timestamp:     time.Now().UTC(),
	}
	if err := s.eventProducer.Publish(ctx, s.eventExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=service msg=\"ledger event publish failed\" routing_key=%s transaction_id=%s err=%v", routingKey, entry.ID, err)
	}
}

// newReference generates a unique external reference for a deposit or
// withdrawal attempt.
func newReference(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// toMinorUnits converts a 2-decimal ledger amount to the processor's minor
// unit representation.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(2).Mul(decimal.NewFromInt(100)).IntPart()
}

// fromMinorUnits converts a processor minor-unit amount to the ledger's
// 2-decimal representation.
func fromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

func isWellFormedWalletNumber(number string) bool {
	number = strings.TrimSpace(number)
	if len(number) != domain.WalletNumberLength {
		return false
	}
	for _, c := range number {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
