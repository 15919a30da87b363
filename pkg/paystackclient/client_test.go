package paystackclient

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestInitializeTransaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/transaction/initialize" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test_key" {
			t.Fatalf("unexpected authorization header: %q", got)
		}

		var req InitializeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Amount != 10050 {
			t.Fatalf("expected amount 10050, got %d", req.Amount)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":true,"message":"Authorization URL created","data":{"authorization_url":"https://checkout.paystack.com/abc123","access_code":"abc123","reference":"dep_ref_1"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test_key")
	resp, err := client.InitializeTransaction(context.Background(), InitializeRequest{
		Email:     "payer@example.com",
		Amount:    10050,
		Reference: "dep_ref_1",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if resp.Data.AuthorizationURL != "https://checkout.paystack.com/abc123" {
		t.Fatalf("unexpected authorization url: %q", resp.Data.AuthorizationURL)
	}
	if resp.Data.Reference != "dep_ref_1" {
		t.Fatalf("unexpected reference: %q", resp.Data.Reference)
	}
}

func TestVerifyTransaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/transaction/verify/dep_ref_1" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":true,"message":"Verification successful","data":{"reference":"dep_ref_1","status":"success","amount":10050,"channel":"card"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test_key")
	resp, err := client.VerifyTransaction(context.Background(), "dep_ref_1")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if resp.Data.Status != "success" {
		t.Fatalf("expected verified status success, got %q", resp.Data.Status)
	}
	if resp.Data.Amount != 10050 {
		t.Fatalf("expected amount 10050, got %d", resp.Data.Amount)
	}
}

func TestVerifyTransaction_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"status":false,"message":"Transaction reference not found"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test_key")
	_, err := client.VerifyTransaction(context.Background(), "dep_missing")
	if err == nil {
		t.Fatal("expected an error for a 404 response")
	}

	var apiErr *ErrorResponse
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *ErrorResponse, got %T", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", apiErr.StatusCode)
	}
	if apiErr.Message != "Transaction reference not found" {
		t.Fatalf("unexpected message: %q", apiErr.Message)
	}
}

func TestVerifySignature(t *testing.T) {
	client := NewClient("https://api.paystack.co", "sk_test_key")
	payload := []byte(`{"event":"charge.success"}`)

	mac := hmac.New(sha512.New, []byte("sk_test_key"))
	mac.Write(payload)
	valid := hex.EncodeToString(mac.Sum(nil))

	tests := []struct {
		name      string
		signature string
		want      bool
	}{
		{name: "valid signature", signature: valid, want: true},
		{name: "empty header", signature: "", want: false},
		{name: "non hex header", signature: "not-hex!", want: false},
		{name: "wrong signature", signature: hex.EncodeToString(make([]byte, 64)), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := client.VerifySignature(payload, tt.signature); got != tt.want {
				t.Fatalf("expected %t, got %t", tt.want, got)
			}
		})
	}
}
