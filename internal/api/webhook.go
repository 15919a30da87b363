/**
 * @description
 * This file contains the webhook endpoint that receives push notifications
 * from the payment processor. The raw body is read once, authenticated against
 * its HMAC signature header, then parsed and fed into the reconciliation
 * engine.
 *
 * The endpoint acknowledges with 200 in almost every case, including unknown
 * references and reconciliation errors: the processor retries on non-2xx, and
 * reconciliation is idempotent, so re-delivery is safe but rarely useful.
 * Signature failures are the exception when strict mode is enabled.
 *
 * @dependencies
 * - encoding/json, io, log, net/http: Standard Go libraries.
 * - internal/app, internal/store: Reconciliation engine and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/centpay/wallet-service/internal/app"
	"github.com/centpay/wallet-service/internal/store"
)

const signatureHeader = "x-paystack-signature"

// WebhookHandlers holds the dependencies for processing processor webhooks.
type WebhookHandlers struct {
	service         *app.Service
	gateway         app.Gateway
	strictSignature bool
}

// NewWebhookHandlers creates a new instance of WebhookHandlers. When strict is
// true an invalid signature is rejected with 401; otherwise it is logged and
// the event is dropped with a 200 acknowledgement.
func NewWebhookHandlers(service *app.Service, gateway app.Gateway, strict bool) *WebhookHandlers {
	return &WebhookHandlers{service: service, gateway: gateway, strictSignature: strict}
}

// webhookEvent is the envelope the processor POSTs. The event name determines
// the flow; the data block carries the reference and the verified amount in
// minor units.
type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string          `json:"reference"`
		Status    string          `json:"status"`
		Amount    int64           `json:"amount"`
		Metadata  json.RawMessage `json:"metadata"`
	} `json:"data"`
}

// PaystackWebhookHandler authenticates and processes one webhook delivery.
func (h *WebhookHandlers) PaystackWebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		log.Printf("level=warn component=webhook outcome=reject reason=body_read_failed err=%v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !h.gateway.VerifySignature(body, r.Header.Get(signatureHeader)) {
		log.Printf("level=warn component=webhook outcome=reject reason=invalid_signature strict=%t", h.strictSignature)
		if h.strictSignature {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		// Drop silently but acknowledge so the processor stops retrying a
		// delivery we will never accept.
		w.WriteHeader(http.StatusOK)
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=warn component=webhook outcome=reject reason=invalid_json err=%v", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	verified := app.VerifiedEvent{
		Reference: event.Data.Reference,
		Status:    statusFromEvent(event),
		Amount:    minorUnitsToDecimal(event.Data.Amount),
		Metadata:  event.Data.Metadata,
	}

	result, err := h.service.Reconcile(r.Context(), verified)
	if err != nil {
		if errors.Is(err, store.ErrUnknownReference) {
			// References minted by other systems on the same processor account
			// legitimately arrive here. Acknowledge and move on.
			log.Printf("level=info component=webhook outcome=skipped reason=unknown_reference event=%s reference=%s", event.Event, event.Data.Reference)
			w.WriteHeader(http.StatusOK)
			return
		}
		// Acknowledge even on internal failure so the processor's retry
		// mechanism does not amplify load; the poll path can still settle
		// the reference later.
		log.Printf("level=error component=webhook msg=\"reconciliation failed\" event=%s reference=%s err=%v", event.Event, event.Data.Reference, err)
		w.WriteHeader(http.StatusOK)
		return
	}

	log.Printf("level=info component=webhook outcome=%s event=%s reference=%s", result.Outcome, event.Event, event.Data.Reference)
	w.WriteHeader(http.StatusOK)
}

// minorUnitsToDecimal converts a processor minor-unit amount to the ledger's
// 2-decimal representation.
func minorUnitsToDecimal(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// statusFromEvent maps the processor's event name to a verified status when
// the data block does not carry one.
func statusFromEvent(event webhookEvent) string {
	if event.Data.Status != "" {
		return event.Data.Status
	}
	switch event.Event {
	case "charge.success", "transfer.success":
		return "success"
	case "charge.failed", "transfer.failed":
		return "failed"
	case "transfer.reversed":
		return "reversed"
	default:
		return ""
	}
}
