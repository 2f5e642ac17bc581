package crypto

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dsavault/clubchat/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid identity token")
	ErrExpiredToken = errors.New("identity token expired")
	ErrWeakSecret   = errors.New("signing secret must be at least 32 bytes")
)

// MinSecretLen is the shortest HS256 secret accepted.
const MinSecretLen = 32

// Claims is the identity carried by a session token. The subject is the
// user id.
type Claims struct {
	Email   string  `json:"email,omitempty"`
	Name    string  `json:"name,omitempty"`
	Picture *string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// User returns the profile described by the claims.
func (c *Claims) User() *models.User {
	return &models.User{
		ID:          c.Subject,
		DisplayName: strings.TrimSpace(c.Name),
		Email:       c.Email,
		PhotoURL:    c.Picture,
	}
}

// TokenIssuer signs and verifies HS256 identity tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
}

// NewTokenIssuer creates an issuer for secret.
func NewTokenIssuer(secret, issuer string) (*TokenIssuer, error) {
	if len(secret) < MinSecretLen {
		return nil, ErrWeakSecret
	}
	return &TokenIssuer{secret: []byte(secret), issuer: issuer}, nil
}

// Issue mints a token for user valid for ttl.
func (t *TokenIssuer) Issue(user models.User, ttl time.Duration) (string, error) {
	if user.ID == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	now := time.Now()
	claims := Claims{
		Email:   user.Email,
		Name:    user.DisplayName,
		Picture: user.PhotoURL,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        NewTraceID(),
			Issuer:    t.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse verifies a token and returns its claims.
func (t *TokenIssuer) Parse(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}

	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
