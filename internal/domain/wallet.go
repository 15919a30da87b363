/**
 * @description
 * This file defines the wallet domain model for the wallet-service. A wallet is
 * the per-owner balance record that every ledger entry ultimately settles
 * against.
 *
 * @notes
 * - Balances are stored as fixed-point decimals with 2 fractional digits
 *   (NUMERIC(20,2) in PostgreSQL) via shopspring/decimal, which avoids
 *   floating-point inaccuracies with financial data.
 * - The wallet number is the public routing identifier used by counterparties
 *   to address transfers; it is a fixed-length numeric string and globally
 *   unique. The balance is never settable from external input.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletNumberLength is the fixed length of the public wallet number.
const WalletNumberLength = 10

// Wallet represents a user's internal money balance.
// This struct maps directly to the `wallets` table in the database.
type Wallet struct {
	ID           uuid.UUID       `json:"id"`
	OwnerID      uuid.UUID       `json:"owner_id"`
	WalletNumber string          `json:"wallet_number"`
	Balance      decimal.Decimal `json:"balance"`
	Currency     string          `json:"currency"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// BalanceResponse is the API view of a wallet balance.
type BalanceResponse struct {
	WalletNumber string          `json:"wallet_number"`
	Balance      decimal.Decimal `json:"balance"`
	Currency     string          `json:"currency"`
}
