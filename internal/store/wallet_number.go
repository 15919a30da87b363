package store

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/centpay/wallet-service/internal/domain"
)

// generateWalletNumber draws a fixed-length numeric wallet number using a
// secure random source. The first digit is never zero so the number keeps its
// full length in any downstream representation. Uniqueness is enforced by the
// database; CreateWallet retries on collision.
func generateWalletNumber() (string, error) {
	digits := make([]byte, domain.WalletNumberLength)
	for i := range digits {
		max := big.NewInt(10)
		if i == 0 {
			max = big.NewInt(9)
		}
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to draw wallet number digit: %w", err)
		}
		d := n.Int64()
		if i == 0 {
			d++
		}
		digits[i] = byte('0' + d)
	}
	return string(digits), nil
}
