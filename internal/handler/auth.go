package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5"

	"github.com/jharjadi/pro-rag/chat-api-go/internal/service"
)

// UserStore looks up login rows. *pgxpool.Pool satisfies it.
type UserStore interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	users   UserStore
	authSvc *service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(users UserStore, authSvc *service.AuthService) *AuthHandler {
	return &AuthHandler{
		users:   users,
		authSvc: authSvc,
	}
}

// loginRequest is the POST /v1/auth/login request body.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse is the POST /v1/auth/login response body.
type loginResponse struct {
	Token     string `json:"token"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	Email     string `json:"email"`
	ExpiresIn int64  `json:"expires_in"`
}

// Login handles POST /v1/auth/login.
// Validates credentials against the users table and returns a signed JWT.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "email and password are required")
		return
	}

	var userID, role, passwordHash string
	var isActive bool
	err := h.users.QueryRow(ctx,
		`SELECT user_id, role, COALESCE(password_hash, ''), is_active
		 FROM users
		 WHERE email = $1
		 LIMIT 1`,
		req.Email,
	).Scan(&userID, &role, &passwordHash, &isActive)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Don't reveal whether the email exists
			slog.Debug("login failed: user not found", "email", req.Email)
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
			return
		}
		slog.Error("login: database error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "authentication failed")
		return
	}

	if !isActive {
		slog.Debug("login failed: user deactivated", "email", req.Email, "user_id", userID)
		writeError(w, http.StatusUnauthorized, "unauthorized", "account is deactivated")
		return
	}

	if passwordHash == "" {
		slog.Debug("login failed: no password hash set", "email", req.Email, "user_id", userID)
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
		return
	}

	if err := h.authSvc.CheckPassword(passwordHash, req.Password); err != nil {
		slog.Debug("login failed: wrong password", "email", req.Email, "user_id", userID)
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
		return
	}

	token, err := h.authSvc.SignToken(userID, req.Email, role)
	if err != nil {
		slog.Error("login: failed to sign token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "authentication failed")
		return
	}

	slog.Info("user logged in",
		"event", "user_login",
		"user_id", userID,
		"role", role,
		"email", req.Email,
	)

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		UserID:    userID,
		Role:      role,
		Email:     req.Email,
		ExpiresIn: int64(h.authSvc.ExpiresIn().Seconds()),
	})
}
