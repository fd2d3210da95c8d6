// Package middleware provides HTTP middleware for the chat API.
package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jharjadi/pro-rag/chat-api-go/internal/service"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const (
	// ContextKeyUserID is the context key for the authenticated user ID.
	ContextKeyUserID contextKey = "user_id"
	// ContextKeyRole is the context key for the authenticated user role.
	ContextKeyRole contextKey = "role"
)

// DevUserHeader names the caller in auth-disabled mode.
const DevUserHeader = "X-User-ID"

// UserIDFromContext extracts the user_id from the request context.
// Returns empty string if not present.
func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ContextKeyUserID).(string)
	return v
}

// RoleFromContext extracts the role from the request context.
func RoleFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ContextKeyRole).(string)
	return v
}

// WithUser returns ctx carrying userID and role.
func WithUser(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyUserID, userID)
	return context.WithValue(ctx, ContextKeyRole, role)
}

// AuthMiddleware validates JWT tokens and injects claims into the request context.
//
// When authEnabled=true:
//   - Requires a valid JWT in the Authorization header (Bearer <token>)
//   - Extracts user_id and role from JWT claims into context
//
// When authEnabled=false (dev mode):
//   - Takes user_id from the X-User-ID header, defaulting to "dev-user"
//   - Sets role="admin"
func AuthMiddleware(authSvc *service.AuthService, authEnabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authEnabled {
				userID := strings.TrimSpace(r.Header.Get(DevUserHeader))
				if userID == "" {
					userID = "dev-user"
				}
				next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID, "admin")))
				return
			}

			tokenStr, msg := bearerToken(r)
			if msg != "" {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", msg)
				return
			}

			claims, err := authSvc.VerifyToken(tokenStr)
			if err != nil {
				slog.Debug("JWT verification failed", "error", err)
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims.UserID, claims.Role)))
		})
	}
}

// bearerToken extracts the token from the Authorization header. Browsers
// cannot set headers on websocket upgrades, so the access_token query
// parameter is accepted for those requests.
func bearerToken(r *http.Request) (token, problem string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if isWebsocketUpgrade(r) {
			if t := r.URL.Query().Get("access_token"); t != "" {
				return t, ""
			}
		}
		return "", "missing Authorization header"
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid Authorization header format (expected: Bearer <token>)"
	}

	token = strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty bearer token"
	}
	return token, ""
}

func isWebsocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// RequireRole returns middleware that checks the user has one of the allowed roles.
// Must be used after AuthMiddleware.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			if !allowed[role] {
				writeAuthError(w, http.StatusForbidden, "forbidden", "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeAuthError mirrors handler.writeError; the handler package imports
// this one, so it cannot be reused here.
func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}
