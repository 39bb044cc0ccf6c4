package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/SAFERMOON/SAFERWINNING/internal/logging"
)

func generateTestKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key: %v", err)
	}
	return privateKey, &privateKey.PublicKey
}

func signToken(t *testing.T, privateKey *rsa.PrivateKey, claims *Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(privateKey)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return token
}

func participantClaims(userID string, ttl time.Duration) *Claims {
	return &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func okHandler(captured *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			*captured = GetUserID(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_Handler(t *testing.T) {
	privateKey, publicKey := generateTestKeys(t)
	otherKey, _ := generateTestKeys(t)
	logger := logging.NewNop()

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
		wantUser   string
	}{
		{"skip path", "/health", "", http.StatusOK, ""},
		{"missing header", "/deposits", "", http.StatusUnauthorized, ""},
		{"no bearer prefix", "/deposits", "token123", http.StatusUnauthorized, ""},
		{"wrong prefix", "/deposits", "Basic token123", http.StatusUnauthorized, ""},
		{"empty token", "/deposits", "Bearer ", http.StatusUnauthorized, ""},
		{"garbage token", "/deposits", "Bearer invalid.token.here", http.StatusUnauthorized, ""},
		{"valid token", "/deposits", "Bearer " + signToken(t, privateKey, participantClaims("alice", time.Hour)), http.StatusOK, "alice"},
		{"expired token", "/deposits", "Bearer " + signToken(t, privateKey, participantClaims("alice", -time.Hour)), http.StatusUnauthorized, ""},
		{"wrong signing key", "/deposits", "Bearer " + signToken(t, otherKey, participantClaims("alice", time.Hour)), http.StatusUnauthorized, ""},
		{"missing user id", "/deposits", "Bearer " + signToken(t, privateKey, participantClaims("", time.Hour)), http.StatusUnauthorized, ""},
	}

	m := NewAuthMiddleware(publicKey, logger, []string{"/health"})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var user string
			handler := m.Handler(okHandler(&user))

			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("Status code = %d, want %d", rec.Code, tt.wantStatus)
			}
			if user != tt.wantUser {
				t.Errorf("User ID = %q, want %q", user, tt.wantUser)
			}
		})
	}
}

func TestAuthMiddleware_RejectsHMACTokens(t *testing.T) {
	_, publicKey := generateTestKeys(t)
	m := NewAuthMiddleware(publicKey, nil, nil)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, participantClaims("alice", time.Hour)).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.validateToken(token); err == nil {
		t.Fatal("validateToken() accepted an HS256 token")
	}
}

func TestAuthMiddleware_RoleAndTrace(t *testing.T) {
	privateKey, publicKey := generateTestKeys(t)
	m := NewAuthMiddleware(publicKey, nil, nil)

	claims := participantClaims("owner", time.Hour)
	claims.Role = "admin"

	var role, trace string
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role = GetUserRole(r.Context())
		trace = logging.GetTraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/draws", nil)
	req = req.WithContext(logging.WithTraceID(req.Context(), "trace-456"))
	req.Header.Set("Authorization", "Bearer "+signToken(t, privateKey, claims))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if role != "admin" {
		t.Errorf("role = %q, want admin", role)
	}
	if trace != "trace-456" {
		t.Errorf("trace = %q, want trace-456", trace)
	}
}

func TestAuthMiddleware_HeaderFallback(t *testing.T) {
	m := NewAuthMiddleware(nil, nil, nil)

	var user string
	handler := m.Handler(okHandler(&user))

	req := httptest.NewRequest(http.MethodPost, "/deposits", nil)
	req.Header.Set(UserIDHeader, "bob")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || user != "bob" {
		t.Errorf("status %d user %q", rec.Code, user)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/deposits", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Status code = %d, want 401", rec.Code)
	}
}

func TestRequireUserID(t *testing.T) {
	handler := RequireUserID(okHandler(nil))

	tests := []struct {
		name       string
		ctx        context.Context
		wantStatus int
	}{
		{"with user ID", logging.WithUserID(context.Background(), "alice"), http.StatusOK},
		{"without user ID", context.Background(), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(tt.ctx)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("Status code = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
