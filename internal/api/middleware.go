/**
 * @description
 * This file contains custom middleware for the HTTP router. Middlewares are used
 * to process requests before they reach the final handler, perfect for tasks like
 * authentication, logging, or adding context to a request.
 *
 * @dependencies
 * - context, net/http, strings: Standard Go libraries.
 * - github.com/golang-jwt/jwt/v5: JWT parsing and validation.
 */

package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// OwnerIDContextKey is a custom type for the context key to avoid collisions.
type OwnerIDContextKey string

const ownerIDKey OwnerIDContextKey = "ownerID"

// AuthMiddleware creates a middleware that validates HS256 bearer tokens
// issued by the identity service. The `sub` claim carries the owner's UUID.
func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}

			// The owner UUID lives in the 'sub' claim.
			ownerID, err := claims.GetSubject()
			if err != nil || ownerID == "" {
				http.Error(w, "Owner ID not found in token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ownerIDKey, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetOwnerID retrieves the authenticated owner's ID from the request context.
// Handlers should use this function to get the authenticated owner's ID.
func GetOwnerID(ctx context.Context) (string, bool) {
	ownerID, ok := ctx.Value(ownerIDKey).(string)
	return ownerID, ok
}
