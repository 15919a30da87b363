package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/centpay/wallet-service/internal/domain"
	"github.com/centpay/wallet-service/internal/store"
)

type transferRepoStub struct {
	store.Repository

	senderWallet    *domain.Wallet
	recipientWallet *domain.Wallet

	transferCalled bool
	transferParams store.TransferParams
}

func (s *transferRepoStub) FindWalletByOwnerID(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	if s.senderWallet == nil {
		return nil, store.ErrWalletNotFound
	}
	return s.senderWallet, nil
}

func (s *transferRepoStub) FindWalletByNumber(ctx context.Context, number string) (*domain.Wallet, error) {
	if s.recipientWallet == nil || s.recipientWallet.WalletNumber != number {
		return nil, store.ErrWalletNotFound
	}
	return s.recipientWallet, nil
}

func (s *transferRepoStub) TransferAtomic(ctx context.Context, p store.TransferParams) (*store.TransferResult, error) {
	s.transferCalled = true
	s.transferParams = p
	if p.Amount.GreaterThan(s.senderWallet.Balance) {
		return nil, store.ErrInsufficientFunds
	}
	s.senderWallet.Balance = s.senderWallet.Balance.Sub(p.Amount)
	s.recipientWallet.Balance = s.recipientWallet.Balance.Add(p.Amount)
	debit := &domain.Transaction{
		ID:      uuid.New(),
		OwnerID: s.senderWallet.OwnerID,
		Kind:    domain.KindTransfer,
		Status:  domain.StatusSuccess,
		Amount:  p.Amount,
	}
	credit := &domain.Transaction{
		ID:      uuid.New(),
		OwnerID: s.recipientWallet.OwnerID,
		Kind:    domain.KindTransfer,
		Status:  domain.StatusSuccess,
		Amount:  p.Amount,
	}
	return &store.TransferResult{DebitEntry: debit, CreditEntry: credit}, nil
}

func newTransferService(repo store.Repository) *Service {
	limits := Limits{
		MinTransfer: decimal.NewFromInt(1),
		MaxTransfer: decimal.NewFromInt(1000000),
	}
	return NewService(repo, nil, nil, limits, "", "ledger.events")
}

func TestTransfer_Succeeds(t *testing.T) {
	senderOwner := uuid.New()
	recipientOwner := uuid.New()
	repo := &transferRepoStub{
		senderWallet: &domain.Wallet{
			ID:           uuid.New(),
			OwnerID:      senderOwner,
			WalletNumber: "1234567890",
			Balance:      decimal.NewFromInt(500),
		},
		recipientWallet: &domain.Wallet{
			ID:           uuid.New(),
			OwnerID:      recipientOwner,
			WalletNumber: "9876543210",
			Balance:      decimal.NewFromInt(100),
		},
	}
	svc := newTransferService(repo)

	entry, err := svc.Transfer(context.Background(), senderOwner, domain.TransferRequest{
		RecipientWalletNumber: "9876543210",
		Amount:                decimal.NewFromFloat(150.25),
		Description:           "rent split",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !repo.transferCalled {
		t.Fatal("expected TransferAtomic to be called")
	}
	if entry.OwnerID != senderOwner {
		t.Fatalf("expected the sender-scoped entry, got owner %s", entry.OwnerID)
	}
	if !repo.transferParams.Amount.Equal(decimal.NewFromFloat(150.25)) {
		t.Fatalf("expected amount 150.25, got %s", repo.transferParams.Amount)
	}
	// Conservation: the pair's total is unchanged by the transfer.
	total := repo.senderWallet.Balance.Add(repo.recipientWallet.Balance)
	if !total.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("expected combined balance 600, got %s", total)
	}
}

func TestTransfer_InsufficientFundsLeavesWalletsUnchanged(t *testing.T) {
	senderOwner := uuid.New()
	repo := &transferRepoStub{
		senderWallet: &domain.Wallet{
			ID:           uuid.New(),
			OwnerID:      senderOwner,
			WalletNumber: "1234567890",
			Balance:      decimal.NewFromInt(100),
		},
		recipientWallet: &domain.Wallet{
			ID:           uuid.New(),
			OwnerID:      uuid.New(),
			WalletNumber: "9876543210",
			Balance:      decimal.NewFromInt(40),
		},
	}
	svc := newTransferService(repo)

	_, err := svc.Transfer(context.Background(), senderOwner, domain.TransferRequest{
		RecipientWalletNumber: "9876543210",
		Amount:                decimal.NewFromInt(101),
	})
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if !repo.senderWallet.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected sender balance unchanged at 100, got %s", repo.senderWallet.Balance)
	}
	if !repo.recipientWallet.Balance.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("expected recipient balance unchanged at 40, got %s", repo.recipientWallet.Balance)
	}
}

func TestTransfer_RejectsSelfTransfer(t *testing.T) {
	owner := uuid.New()
	wallet := &domain.Wallet{
		ID:           uuid.New(),
		OwnerID:      owner,
		WalletNumber: "1234567890",
		Balance:      decimal.NewFromInt(500),
	}
	repo := &transferRepoStub{senderWallet: wallet, recipientWallet: wallet}
	svc := newTransferService(repo)

	_, err := svc.Transfer(context.Background(), owner, domain.TransferRequest{
		RecipientWalletNumber: "1234567890",
		Amount:                decimal.NewFromInt(10),
	})
	if !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
	if repo.transferCalled {
		t.Fatal("self transfer must be rejected before any atomic work")
	}
}

func TestTransfer_RejectsUnknownRecipient(t *testing.T) {
	owner := uuid.New()
	repo := &transferRepoStub{
		senderWallet: &domain.Wallet{
			ID:           uuid.New(),
			OwnerID:      owner,
			WalletNumber: "1234567890",
			Balance:      decimal.NewFromInt(500),
		},
	}
	svc := newTransferService(repo)

	_, err := svc.Transfer(context.Background(), owner, domain.TransferRequest{
		RecipientWalletNumber: "5555555555",
		Amount:                decimal.NewFromInt(10),
	})
	if !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
}

func TestTransfer_RejectsMalformedWalletNumber(t *testing.T) {
	tests := []struct {
		name   string
		number string
	}{
		{name: "too short", number: "12345"},
		{name: "too long", number: "123456789012"},
		{name: "non numeric", number: "12345abcde"},
		{name: "empty", number: ""},
	}

	owner := uuid.New()
	repo := &transferRepoStub{
		senderWallet: &domain.Wallet{ID: uuid.New(), OwnerID: owner, WalletNumber: "1234567890"},
	}
	svc := newTransferService(repo)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Transfer(context.Background(), owner, domain.TransferRequest{
				RecipientWalletNumber: tt.number,
				Amount:                decimal.NewFromInt(10),
			})
			if !errors.Is(err, ErrInvalidTarget) {
				t.Fatalf("expected ErrInvalidTarget, got %v", err)
			}
		})
	}
}

func TestTransfer_RejectsAmountOutOfBounds(t *testing.T) {
	tests := []struct {
		name   string
		amount decimal.Decimal
	}{
		{name: "zero", amount: decimal.Zero},
		{name: "negative", amount: decimal.NewFromInt(-5)},
		{name: "below minimum", amount: decimal.NewFromFloat(0.50)},
		{name: "above maximum", amount: decimal.NewFromInt(2000000)},
	}

	owner := uuid.New()
	repo := &transferRepoStub{
		senderWallet: &domain.Wallet{ID: uuid.New(), OwnerID: owner, WalletNumber: "1234567890"},
		recipientWallet: &domain.Wallet{
			ID: uuid.New(), OwnerID: uuid.New(), WalletNumber: "9876543210",
		},
	}
	svc := newTransferService(repo)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Transfer(context.Background(), owner, domain.TransferRequest{
				RecipientWalletNumber: "9876543210",
				Amount:                tt.amount,
			})
			if !errors.Is(err, ErrInvalidAmount) {
				t.Fatalf("expected ErrInvalidAmount, got %v", err)
			}
			if repo.transferCalled {
				t.Fatal("invalid amounts must be rejected before any atomic work")
			}
		})
	}
}

func TestIsWellFormedWalletNumber(t *testing.T) {
	tests := []struct {
		name   string
		number string
		want   bool
	}{
		{name: "valid ten digits", number: "1234567890", want: true},
		{name: "surrounding whitespace trimmed", number: " 1234567890 ", want: true},
		{name: "nine digits", number: "123456789", want: false},
		{name: "letters", number: "123456789x", want: false},
		{name: "empty", number: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isWellFormedWalletNumber(tt.number); got != tt.want {
				t.Fatalf("expected %t, got %t", tt.want, got)
			}
		})
	}
}
