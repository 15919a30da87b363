package store

import (
	"testing"

	"github.com/centpay/wallet-service/internal/domain"
)

func TestGenerateWalletNumber(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		number, err := generateWalletNumber()
		if err != nil {
			t.Fatalf("generateWalletNumber returned error: %v", err)
		}
		if len(number) != domain.WalletNumberLength {
			t.Fatalf("expected length %d, got %d (%q)", domain.WalletNumberLength, len(number), number)
		}
		if number[0] == '0' {
			t.Fatalf("wallet number must not start with zero: %q", number)
		}
		for _, c := range number {
			if c < '0' || c > '9' {
				t.Fatalf("wallet number must be numeric: %q", number)
			}
		}
		seen[number] = true
	}

	// 100 draws from a 9x10^9 space colliding down to a handful of values
	// would indicate a broken random source.
	if len(seen) < 95 {
		t.Fatalf("expected distinct wallet numbers, got %d unique of 100", len(seen))
	}
}
