package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dsavault/clubchat/internal/crypto"
	"github.com/dsavault/clubchat/internal/models"
)

type contextKey string

const UserContextKey contextKey = "user"

// Authenticator resolves the caller from a bearer identity token.
type Authenticator struct {
	tokens *crypto.TokenIssuer
	logger zerolog.Logger
}

// NewAuthenticator creates an authenticator verifying tokens with issuer.
func NewAuthenticator(tokens *crypto.TokenIssuer, logger zerolog.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, logger: logger}
}

// RequireAuth rejects requests without a valid identity token and puts the
// caller's profile in the request context.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			jsonError(w, http.StatusUnauthorized, "sign in required")
			return
		}

		claims, err := a.tokens.Parse(raw)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, crypto.ErrExpiredToken) {
				msg = "token expired"
			}
			a.logger.Debug().
				Err(err).
				Str("ip", RealIP(r)).
				Str("path", r.URL.Path).
				Msg("token rejected")
			jsonError(w, http.StatusUnauthorized, msg)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims.User())))
	})
}

// bearerToken reads the Authorization header. Browsers cannot set headers
// on a WebSocket handshake, so upgrades may pass access_token instead.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	if websocket.IsWebSocketUpgrade(r) {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// WithUser returns ctx carrying user as the authenticated caller.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

// GetUserFromContext retrieves the authenticated user from the request context.
func GetUserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}
