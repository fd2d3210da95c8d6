package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jharjadi/pro-rag/chat-api-go/internal/service"
)

func TestLoginResponse_Fields(t *testing.T) {
	resp := loginResponse{
		Token:     "jwt-token-here",
		UserID:    "user-123",
		Role:      "admin",
		Email:     "admin@test.local",
		ExpiresIn: 86400,
	}

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	for _, field := range []string{"token", "user_id", "role", "email", "expires_in"} {
		assert.Contains(t, decoded, field)
	}
}

// ── Login handler validation tests (no DB needed) ────────

func TestLogin_InvalidJSON(t *testing.T) {
	authSvc := service.NewAuthService("test-secret", 24)
	h := NewAuthHandler(nil, authSvc) // nil store, never reached

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewBufferString("not json"))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	h.Login(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "bad_request", decodeError(t, rr).Error)
}

func TestLogin_MissingCredentials(t *testing.T) {
	authSvc := service.NewAuthService("test-secret", 24)
	h := NewAuthHandler(nil, authSvc)

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"missing email", "", "secret"},
		{"missing password", "admin@test.local", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", loginRequestBody(t, tt.email, tt.password))
			rr := httptest.NewRecorder()
			h.Login(rr, req)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, "email and password are required", decodeError(t, rr).Message)
		})
	}
}

// ── AuthService integration with handler ─────────────────

func TestAuthHandler_PasswordHashVerification(t *testing.T) {
	authSvc := service.NewAuthService("test-secret", 24)

	password := "admin-password-123"
	hash, err := authSvc.HashPassword(password)
	require.NoError(t, err)

	assert.NoError(t, authSvc.CheckPassword(hash, password), "correct password")
	assert.Error(t, authSvc.CheckPassword(hash, "wrong"), "wrong password")
	assert.Error(t, authSvc.CheckPassword("", password), "empty hash")
}

func TestAuthHandler_TokenRoundTrip(t *testing.T) {
	authSvc := service.NewAuthService("test-jwt-secret-32bytes-minimum!", 24)

	token, err := authSvc.SignToken("user-id", "admin@test.local", "admin")
	require.NoError(t, err)

	claims, err := authSvc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-id", claims.UserID)
	assert.Equal(t, "admin@test.local", claims.Email)
	assert.Equal(t, "admin", claims.Role)
}

// ── Login against a stub user store ──────────────────────

type stubRow struct {
	values []any
	err    error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *bool:
			*p = r.values[i].(bool)
		}
	}
	return nil
}

type stubUsers struct {
	row   stubRow
	email string
}

func (s *stubUsers) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	s.email, _ = args[0].(string)
	return s.row
}

func loginRequestBody(t *testing.T, email, password string) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	require.NoError(t, err)
	return bytes.NewReader(body)
}

func TestLogin_Success(t *testing.T) {
	authSvc := service.NewAuthService("test-jwt-secret-32bytes-minimum!", 24)
	hash, err := authSvc.HashPassword("s3cret")
	require.NoError(t, err)

	users := &stubUsers{row: stubRow{values: []any{"user-1", "admin", hash, true}}}
	h := NewAuthHandler(users, authSvc)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", loginRequestBody(t, "admin@test.local", "s3cret"))
	rr := httptest.NewRecorder()
	h.Login(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "admin@test.local", users.email, "queried email")

	resp := decodeBody[loginResponse](t, rr)
	assert.Equal(t, "user-1", resp.UserID)
	assert.Equal(t, "admin", resp.Role)
	assert.Equal(t, int64(24*3600), resp.ExpiresIn)

	claims, err := authSvc.VerifyToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
}

func TestLogin_Rejections(t *testing.T) {
	authSvc := service.NewAuthService("test-secret", 24)
	hash, err := authSvc.HashPassword("s3cret")
	require.NoError(t, err)

	tests := []struct {
		name     string
		row      stubRow
		password string
		status   int
		message  string
	}{
		{"unknown email", stubRow{err: pgx.ErrNoRows}, "s3cret", http.StatusUnauthorized, "invalid email or password"},
		{"wrong password", stubRow{values: []any{"u", "user", hash, true}}, "nope", http.StatusUnauthorized, "invalid email or password"},
		{"deactivated", stubRow{values: []any{"u", "user", hash, false}}, "s3cret", http.StatusUnauthorized, "account is deactivated"},
		{"no password set", stubRow{values: []any{"u", "user", "", true}}, "s3cret", http.StatusUnauthorized, "invalid email or password"},
		{"database error", stubRow{err: errors.New("connection reset")}, "s3cret", http.StatusInternalServerError, "authentication failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAuthHandler(&stubUsers{row: tt.row}, authSvc)
			req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", loginRequestBody(t, "a@test.local", tt.password))
			rr := httptest.NewRecorder()
			h.Login(rr, req)

			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.message, decodeError(t, rr).Message)
		})
	}
}
