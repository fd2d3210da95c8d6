package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jharjadi/pro-rag/chat-api-go/internal/service"
)

const testSecret = "test-jwt-secret-32bytes-minimum!"

// mustNotRun fails the test if the wrapped handler is reached.
func mustNotRun(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Fail(t, "handler should not be called")
	})
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body
}

func TestAuthMiddleware_AuthDisabled_DefaultsToDevUser(t *testing.T) {
	mw := AuthMiddleware(service.NewAuthService("test-secret", 24), false)

	var gotUserID, gotRole string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = UserIDFromContext(r.Context())
		gotRole = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "dev-user", gotUserID)
	assert.Equal(t, "admin", gotRole)
}

func TestAuthMiddleware_AuthDisabled_UserHeader(t *testing.T) {
	mw := AuthMiddleware(service.NewAuthService("test-secret", 24), false)

	var gotUserID string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	req.Header.Set(DevUserHeader, "alice")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "alice", gotUserID)
}

func TestAuthMiddleware_AuthEnabled_ValidToken(t *testing.T) {
	authSvc := service.NewAuthService(testSecret, 24)
	mw := AuthMiddleware(authSvc, true)

	tokenStr, err := authSvc.SignToken("user-abc", "abc@example.com", "admin")
	require.NoError(t, err)

	var gotUserID, gotRole string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = UserIDFromContext(r.Context())
		gotRole = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "user-abc", gotUserID)
	assert.Equal(t, "admin", gotRole)
}

func TestAuthMiddleware_AuthEnabled_Rejections(t *testing.T) {
	mw := AuthMiddleware(service.NewAuthService("test-secret", 24), true)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"basic scheme", "Basic dXNlcjpwYXNz"},
		{"invalid token", "Bearer invalid-jwt-token"},
		{"empty bearer", "Bearer "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			mw(mustNotRun(t)).ServeHTTP(rr, req)

			assert.Equal(t, http.StatusUnauthorized, rr.Code)
		})
	}
}

func TestAuthMiddleware_AuthEnabled_MissingHeaderMessage(t *testing.T) {
	mw := AuthMiddleware(service.NewAuthService("test-secret", 24), true)

	rr := httptest.NewRecorder()
	mw(mustNotRun(t)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "missing Authorization header", decodeBody(t, rr)["message"])
}

func TestRequireRole(t *testing.T) {
	authSvc := service.NewAuthService(testSecret, 24)
	authMW := AuthMiddleware(authSvc, true)

	tests := []struct {
		name    string
		allowed []string
		role    string
		status  int
	}{
		{"admin allowed", []string{"admin"}, "admin", http.StatusOK},
		{"user denied", []string{"admin"}, "user", http.StatusForbidden},
		{"one of several", []string{"admin", "user"}, "user", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokenStr, err := authSvc.SignToken("user-1", "", tt.role)
			require.NoError(t, err)

			called := false
			handler := authMW(RequireRole(tt.allowed...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			})))

			req := httptest.NewRequest(http.MethodPost, "/v1/admin/sweep", nil)
			req.Header.Set("Authorization", "Bearer "+tokenStr)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			assert.Equal(t, tt.status == http.StatusOK, called)
			if tt.status == http.StatusForbidden {
				assert.Equal(t, "forbidden", decodeBody(t, rr)["error"])
			}
		})
	}
}

func TestContextHelpers_EmptyContext(t *testing.T) {
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()

	assert.Empty(t, UserIDFromContext(ctx))
	assert.Empty(t, RoleFromContext(ctx))
}

func TestAuthMiddleware_WebsocketQueryToken(t *testing.T) {
	authSvc := service.NewAuthService(testSecret, 24)
	mw := AuthMiddleware(authSvc, true)

	tokenStr, err := authSvc.SignToken("user-ws", "", "user")
	require.NoError(t, err)

	var gotUserID string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/s1/ws?access_token="+tokenStr, nil)
	req.Header.Set("Upgrade", "websocket")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "user-ws", gotUserID)

	// the query parameter is ignored for plain requests
	req = httptest.NewRequest(http.MethodGet, "/v1/sessions/s1?access_token="+tokenStr, nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
