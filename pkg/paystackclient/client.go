/**
 * @description
 * This package provides a client for interacting with the Paystack API. It
 * encapsulates the logic for making authenticated HTTP requests to Paystack's
 * endpoints, handling request body construction, and parsing responses.
 *
 * The wallet-service uses three capabilities: initializing a hosted payment
 * session for a deposit, re-verifying a transaction by reference (the manual
 * status-poll path), and authenticating inbound webhook payloads via their
 * HMAC signature.
 *
 * Amounts cross this boundary in minor units (kobo); conversion to the
 * ledger's decimal representation happens in the service layer.
 *
 * @dependencies
 * - bytes, context, crypto/hmac, crypto/sha512, encoding/json, net/http: Standard Go libraries.
 */
package paystackclient

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Client is a client for the Paystack API.
type Client struct {
	BaseURL    string
	SecretKey  string
	HTTPClient *http.Client
}

// NewClient creates a new Paystack API client.
func NewClient(baseURL, secretKey string) *Client {
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		SecretKey: secretKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// InitializeRequest is the payload for creating a hosted payment session.
type InitializeRequest struct {
	Email       string `json:"email"`
	Amount      int64  `json:"amount"` // minor units
	Reference   string `json:"reference"`
	CallbackURL string `json:"callback_url,omitempty"`
}

// InitializeResponse is the expected response from the initialize endpoint.
type InitializeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

// VerifyResponse is the expected response from the verify endpoint.
type VerifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Reference string          `json:"reference"`
		Status    string          `json:"status"` // success, failed, abandoned, pending
		Amount    int64           `json:"amount"` // minor units
		PaidAt    string          `json:"paid_at"`
		Channel   string          `json:"channel"`
		Metadata  json.RawMessage `json:"metadata"`
	} `json:"data"`
}

// ErrorResponse represents a non-2xx reply from the Paystack API.
type ErrorResponse struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("paystack api error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("paystack api error (status %d)", e.StatusCode)
}

// InitializeTransaction creates a hosted payment session for a deposit and
// returns the authorization URL the payer is redirected to. The reference is
// generated by the caller and must be unique per deposit attempt.
func (c *Client) InitializeTransaction(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal initialize request: %w", err)
	}

	var out InitializeResponse
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", bytes.NewBuffer(body), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyTransaction re-checks a transaction's authoritative status by
// reference. This is the manual status-poll path; its result feeds the same
// reconciliation function as the webhook push.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*VerifyResponse, error) {
	var out VerifyResponse
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+reference, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifySignature authenticates a raw webhook payload against its
// x-paystack-signature header, an HMAC-SHA512 hex digest of the body keyed by
// the account secret.
func (c *Client) VerifySignature(payload []byte, signatureHeader string) bool {
	header := strings.TrimSpace(signatureHeader)
	if header == "" {
		return false
	}

	mac := hmac.New(sha512.New, []byte(c.SecretKey))
	mac.Write(payload)
	expected := mac.Sum(nil)

	provided, err := hex.DecodeString(header)
	if err != nil {
		return false
	}
	return hmac.Equal(provided, expected)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute %s request: %w", path, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errResp := &ErrorResponse{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, errResp); err != nil {
			log.Printf("level=warn component=paystack_client path=%s status=%d msg=\"non-2xx response (unparsable error body)\"", path, resp.StatusCode)
		}
		return errResp
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
