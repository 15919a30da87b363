/**
 * @description
 * This file sets up the HTTP router for the wallet-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * The webhook endpoint sits outside the authenticated group: it is
 * authenticated by its HMAC signature, not by a bearer token.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// WalletRoutes creates and returns a new router for the wallet service.
func WalletRoutes(h *WalletHandlers, wh *WebhookHandlers, jwtSecret string, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Processor webhooks authenticate by HMAC signature, not bearer token.
	r.Post("/webhooks/paystack", wh.PaystackWebhookHandler)

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		r.Post("/wallets", h.CreateWalletHandler)
		r.Get("/wallets/balance", h.GetBalanceHandler)

		r.Post("/transfers", h.TransferHandler)

		r.Post("/deposits", h.InitiateDepositHandler)
		r.Get("/deposits/{reference}/verify", h.VerifyDepositHandler)

		r.Post("/withdrawals", h.InitiateWithdrawalHandler)

		r.Get("/transactions", h.ListTransactionsHandler)
	})

	return r
}
