// Package middleware provides the HTTP middleware chain of the contest API.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/SAFERMOON/SAFERWINNING/internal/errors"
	"github.com/SAFERMOON/SAFERWINNING/internal/httputil"
	"github.com/SAFERMOON/SAFERWINNING/internal/logging"
)

// UserIDHeader identifies the caller when no verification key is configured.
const UserIDHeader = "X-User-ID"

// Claims represents JWT claims. UserID is the participant id.
type Claims struct {
	UserID     string `json:"user_id"`
	NeoAddress string `json:"neo_address,omitempty"`
	Role       string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware resolves the calling participant from an RS256 bearer
// token. Without a public key it trusts the X-User-ID header, which is
// only suitable for local development.
type AuthMiddleware struct {
	publicKey interface{}
	logger    *logging.Logger
	skipPaths map[string]bool
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(publicKey interface{}, logger *logging.Logger, skipPaths []string) *AuthMiddleware {
	skip := make(map[string]bool)
	for _, path := range skipPaths {
		skip[path] = true
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &AuthMiddleware{
		publicKey: publicKey,
		logger:    logger,
		skipPaths: skip,
	}
}

// Handler returns the middleware handler
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		if m.publicKey == nil {
			userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
			if userID == "" {
				m.respondError(w, r, errors.Unauthorized("missing "+UserIDHeader+" header"))
				return
			}
			next.ServeHTTP(w, r.WithContext(logging.WithUserID(r.Context(), userID)))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.respondError(w, r, errors.Unauthorized("missing Authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			m.respondError(w, r, errors.Unauthorized("invalid Authorization header format"))
			return
		}

		claims, err := m.validateToken(parts[1])
		if err != nil {
			m.respondError(w, r, err)
			return
		}

		ctx := logging.WithUserID(r.Context(), claims.UserID)
		if claims.Role != "" {
			ctx = logging.WithRole(ctx, claims.Role)
		}

		m.logger.WithContext(ctx).Debug("authentication successful")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errors.InvalidToken(nil).WithDetails("method", token.Header["alg"])
		}
		return m.publicKey, nil
	})
	if err != nil {
		return nil, errors.InvalidToken(err)
	}
	if !token.Valid {
		return nil, errors.InvalidToken(nil)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.UserID == "" {
		return nil, errors.InvalidToken(nil).WithDetails("reason", "missing user_id claim")
	}
	return claims, nil
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteError(w, r, err)

	m.logger.WithContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
	}).Warn("authentication failed")
}

// GetUserID extracts the participant id from context.
func GetUserID(ctx context.Context) string {
	return logging.GetUserID(ctx)
}

// GetUserRole extracts user role from context
func GetUserRole(ctx context.Context) string {
	return logging.GetRole(ctx)
}

// RequireUserID rejects requests that reached it without an identity.
func RequireUserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserID(r.Context()) == "" {
			httputil.Unauthorized(w, r, "")
			return
		}
		next.ServeHTTP(w, r)
	})
}
