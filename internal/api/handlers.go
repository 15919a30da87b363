/**
 * @description
 * This file contains the HTTP handlers for the wallet-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/centpay/wallet-service/internal/app"
	"github.com/centpay/wallet-service/internal/domain"
	"github.com/centpay/wallet-service/internal/store"
)

// WalletHandlers holds the application service that handlers will use.
type WalletHandlers struct {
	service *app.Service
}

// NewWalletHandlers creates a new instance of WalletHandlers.
func NewWalletHandlers(service *app.Service) *WalletHandlers {
	return &WalletHandlers{service: service}
}

// transferResponse is sent back to the client after a transfer has committed.
// The entry returned is the sender-scoped debit entry.
type transferResponse struct {
	TransactionID         string  `json:"transaction_id"`
	Status                string  `json:"status"`
	Amount                string  `json:"amount"`
	RecipientWalletNumber *string `json:"recipient_wallet_number,omitempty"`
	Description           string  `json:"description,omitempty"`
}

type reconcileResponse struct {
	Reference string `json:"reference"`
	Outcome   string `json:"outcome"`
	Status    string `json:"status"`
	Amount    string `json:"amount"`
}

// CreateWalletHandler provisions a wallet for the authenticated owner.
func (h *WalletHandlers) CreateWalletHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.authenticatedOwnerID(w, r)
	if !ok {
		return
	}

	wallet, err := h.service.CreateWallet(r.Context(), ownerID)
	if err != nil {
		if errors.Is(err, store.ErrWalletAlreadyExists) {
			h.writeError(w, http.StatusConflict, "A wallet already exists for this account")
			return
		}
		log.Printf("level=error component=api endpoint=create_wallet msg=\"wallet creation failed\" owner_id=%s err=%v", ownerID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to create wallet")
		return
	}

	log.Printf("level=info component=api endpoint=create_wallet outcome=created owner_id=%s wallet_number=%s", ownerID, wallet.WalletNumber)
	h.writeJSON(w, http.StatusCreated, wallet)
}

// GetBalanceHandler returns the authenticated owner's wallet and balance.
func (h *WalletHandlers) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.authenticatedOwnerID(w, r)
	if !ok {
		return
	}

	wallet, err := h.service.GetBalance(r.Context(), ownerID)
	if err != nil {
		if errors.Is(err, store.ErrWalletNotFound) {
			h.writeError(w, http.StatusNotFound, "Wallet not found")
			return
		}
		log.Printf("level=error component=api endpoint=balance msg=\"balance lookup failed\" owner_id=%s err=%v", ownerID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to fetch balance")
		return
	}

	h.writeJSON(w, http.StatusOK, domain.BalanceResponse{
		WalletNumber: wallet.WalletNumber,
		Balance:      wallet.Balance,
		Currency:     wallet.Currency,
	})
}

// TransferHandler handles wallet-to-wallet transfer requests.
func (h *WalletHandlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.authenticatedOwnerID(w, r)
	if !ok {
		return
	}

	var req domain.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=transfer outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	entry, err := h.service.Transfer(r.Context(), ownerID, req)
	if err != nil {
		h.writeTransferError(w, ownerID, err)
		return
	}

	log.Printf("level=info component=api endpoint=transfer outcome=committed owner_id=%s transaction_id=%s amount=%s", ownerID, entry.ID, entry.Amount.StringFixed(2))
	h.writeJSON(w, http.StatusCreated, transferResponse{
		TransactionID:         entry.ID.String(),
		Status:                string(entry.Status),
		Amount:                entry.Amount.StringFixed(2),
		RecipientWalletNumber: entry.RecipientWalletNumber,
		Description:           entry.Description,
	})
}

func (h *WalletHandlers) writeTransferError(w http.ResponseWriter, ownerID uuid.UUID, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidAmount):
		h.writeError(w, http.StatusBadRequest, "Transfer amount is invalid")
	case errors.Is(err, app.ErrInvalidTarget):
		h.writeError(w, http.StatusBadRequest, "Recipient wallet is invalid")
	case errors.Is(err, app.ErrRateLimited):
		setRetryAfter(w, err)
		h.writeError(w, http.StatusTooManyRequests, "Too many transfer attempts. Please wait and try again.")
	case errors.Is(err, store.ErrInsufficientFunds):
		h.writeError(w, http.StatusUnprocessableEntity, "Insufficient funds")
	case errors.Is(err, store.ErrWalletNotFound):
		h.writeError(w, http.StatusNotFound, "Wallet not found")
	default:
		log.Printf("level=error component=api endpoint=transfer msg=\"transfer failed\" owner_id=%s err=%v", ownerID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to complete transfer")
	}
}

// InitiateDepositHandler creates a pending deposit and a hosted payment session.
func (h *WalletHandlers) InitiateDepositHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.authenticatedOwnerID(w, r)
	if !ok {
		return
	}

	var req domain.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=deposit outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	initiation, err := h.service.InitiateDeposit(r.Context(), ownerID, req)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidAmount):
			h.writeError(w, http.StatusBadRequest, "Deposit amount is invalid")
		case errors.Is(err, store.ErrWalletNotFound):
			h.writeError(w, http.StatusNotFound, "Wallet not found")
		default:
			log.Printf("level=error component=api endpoint=deposit msg=\"deposit initiation failed\" owner_id=%s err=%v", ownerID, err)
			h.writeError(w, http.StatusBadGateway, "Unable to initiate deposit")
		}
		return
	}

	log.Printf("level=info component=api endpoint=deposit outcome=initiated owner_id=%s reference=%s", ownerID, initiation.Reference)
	h.writeJSON(w, http.StatusCreated, initiation)
}

// VerifyDepositHandler is the manual status-poll endpoint. It re-verifies the
// reference with the payment processor and reconciles the result.
func (h *WalletHandlers) VerifyDepositHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.authenticatedOwnerID(w, r)
	if !ok {
		return
	}

	reference := chi.URLParam(r, "reference")
	result, err := h.service.VerifyDeposit(r.Context(), ownerID, reference)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrUnknownReference):
			h.writeError(w, http.StatusNotFound, "Unknown transaction reference")
		case errors.Is(err, app.ErrRateLimited):
			setRetryAfter(w, err)
			h.writeError(w, http.StatusTooManyRequests, "Too many verification attempts. Please wait and try again.")
		default:
			log.Printf("level=error component=api endpoint=verify msg=\"verification failed\" owner_id=%s reference=%s err=%v", ownerID, reference, err)
			h.writeError(w, http.StatusBadGateway, "Unable to verify transaction")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, reconcileResponse{
		Reference: reference,
		Outcome:   string(result.Outcome),
		Status:    string(result.Entry.Status),
		Amount:    result.Entry.Amount.StringFixed(2),
	})
}

// InitiateWithdrawalHandler debits the wallet and records a pending withdrawal.
func (h *WalletHandlers) InitiateWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.authenticatedOwnerID(w, r)
	if !ok {
		return
	}

	var req domain.WithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=withdrawal outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	entry, err := h.service.InitiateWithdrawal(r.Context(), ownerID, req)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidAmount):
			h.writeError(w, http.StatusBadRequest, "Withdrawal amount is invalid")
		case errors.Is(err, store.ErrInsufficientFunds):
			h.writeError(w, http.StatusUnprocessableEntity, "Insufficient funds")
		case errors.Is(err, store.ErrWalletNotFound):
			h.writeError(w, http.StatusNotFound, "Wallet not found")
		default:
			log.Printf("level=error component=api endpoint=withdrawal msg=\"withdrawal initiation failed\" owner_id=%s err=%v", ownerID, err)
			h.writeError(w, http.StatusInternalServerError, "Unable to initiate withdrawal")
		}
		return
	}

	log.Printf("level=info component=api endpoint=withdrawal outcome=initiated owner_id=%s transaction_id=%s", ownerID, entry.ID)
	h.writeJSON(w, http.StatusCreated, entry)
}

// ListTransactionsHandler returns one page of the owner's ledger history,
// newest first, with optional kind and status filters.
func (h *WalletHandlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.authenticatedOwnerID(w, r)
	if !ok {
		return
	}

	opts := domain.LedgerPageOptions{
		Kind:   r.URL.Query().Get("kind"),
		Status: r.URL.Query().Get("status"),
		Limit:  parseQueryInt(r, "limit", 20),
		Offset: parseQueryInt(r, "offset", 0),
	}

	entries, err := h.service.GetLedgerPage(r.Context(), ownerID, opts)
	if err != nil {
		log.Printf("level=error component=api endpoint=transactions msg=\"ledger page failed\" owner_id=%s err=%v", ownerID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to fetch transactions")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": entries,
		"limit":        opts.Limit,
		"offset":       opts.Offset,
	})
}

// authenticatedOwnerID resolves the authenticated owner's UUID from the
// request context populated by the auth middleware.
func (h *WalletHandlers) authenticatedOwnerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	ownerIDStr, ok := GetOwnerID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get owner ID from context")
		return uuid.Nil, false
	}
	ownerID, err := uuid.Parse(ownerIDStr)
	if err != nil {
		log.Printf("level=warn component=api outcome=reject reason=invalid_owner_id owner_id=%s", ownerIDStr)
		h.writeError(w, http.StatusBadRequest, "Invalid owner ID format")
		return uuid.Nil, false
	}
	return ownerID, true
}

// setRetryAfter copies the limiter's window-reset hint onto the response.
func setRetryAfter(w http.ResponseWriter, err error) {
	var rateErr *app.RateLimitedError
	if errors.As(err, &rateErr) && rateErr.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(rateErr.RetryAfterSeconds))
	}
}

func parseQueryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

// writeJSON is a helper for writing JSON responses.
func (h *WalletHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *WalletHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
