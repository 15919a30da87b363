package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "SERVER_PORT")
	unsetEnvWithCleanup(t, "PORT")
	unsetEnvWithCleanup(t, "TRANSFER_MIN")
	unsetEnvWithCleanup(t, "TRANSFER_MAX")
	unsetEnvWithCleanup(t, "WEBHOOK_STRICT_SIGNATURE")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.TransferMin != "1.00" {
		t.Fatalf("expected default TRANSFER_MIN 1.00, got %q", cfg.TransferMin)
	}
	if cfg.LedgerEventExchange != "wallet_service.ledger_events" {
		t.Fatalf("expected default exchange, got %q", cfg.LedgerEventExchange)
	}
	if !cfg.WebhookStrictSignature {
		t.Fatal("expected strict webhook signature verification by default")
	}
}

func TestLoadConfig_PortAliasTakesPrecedence(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "8080")
	setEnvWithCleanup(t, "PORT", "9191")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9191" {
		t.Fatalf("expected PORT to override SERVER_PORT, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_InvalidTransferBoundsFallBack(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "TRANSFER_MIN", "not-a-number")
	setEnvWithCleanup(t, "TRANSFER_MAX", "-50")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.TransferMin != "1.00" {
		t.Fatalf("expected invalid TRANSFER_MIN to fall back, got %q", cfg.TransferMin)
	}
	if cfg.TransferMax != "1000000.00" {
		t.Fatalf("expected invalid TRANSFER_MAX to fall back, got %q", cfg.TransferMax)
	}
}

func TestAllowedOriginList(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{name: "empty", raw: "", want: 0},
		{name: "single", raw: "https://app.centpay.io", want: 1},
		{name: "multiple with whitespace", raw: "https://app.centpay.io, https://admin.centpay.io ,", want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{AllowedOrigins: tt.raw}
			if got := len(cfg.AllowedOriginList()); got != tt.want {
				t.Fatalf("expected %d origins, got %d", tt.want, got)
			}
		})
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
