package crypto

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsavault/clubchat/internal/models"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestIssueAndParse(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret, "clubchat")
	require.NoError(t, err)

	photo := "https://img.example/u1.png"
	raw, err := issuer.Issue(models.User{ID: "u1", DisplayName: " Uma ", Email: "uma@dsa.dev", PhotoURL: &photo}, time.Hour)
	require.NoError(t, err)

	claims, err := issuer.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "clubchat", claims.Issuer)

	u := claims.User()
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "Uma", u.DisplayName)
	assert.Equal(t, "uma@dsa.dev", u.Email)
	require.NotNil(t, u.PhotoURL)
	assert.Equal(t, photo, *u.PhotoURL)
}

func TestParseRejects(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret, "clubchat")
	require.NoError(t, err)
	other, err := NewTokenIssuer(strings.Repeat("x", 40), "clubchat")
	require.NoError(t, err)
	foreign, err := NewTokenIssuer(testSecret, "someone-else")
	require.NoError(t, err)

	user := models.User{ID: "u1", Email: "uma@dsa.dev"}

	expired, err := issuer.Issue(user, -time.Minute)
	require.NoError(t, err)
	_, err = issuer.Parse(expired)
	assert.ErrorIs(t, err, ErrExpiredToken)

	wrongKey, err := other.Issue(user, time.Hour)
	require.NoError(t, err)
	_, err = issuer.Parse(wrongKey)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer, err := foreign.Issue(user, time.Hour)
	require.NoError(t, err)
	_, err = issuer.Parse(wrongIssuer)
	assert.ErrorIs(t, err, ErrInvalidToken)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: "clubchat"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = issuer.Parse(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.Parse("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssueRequiresSubject(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret, "")
	require.NoError(t, err)
	_, err = issuer.Issue(models.User{Email: "x@y.z"}, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestWeakSecret(t *testing.T) {
	_, err := NewTokenIssuer("short", "clubchat")
	assert.ErrorIs(t, err, ErrWeakSecret)
}

func TestTraceIDsAreTimeOrdered(t *testing.T) {
	a := NewTraceID()
	b := NewTraceID()
	assert.Len(t, a, 36)
	assert.Equal(t, byte('7'), a[14], "version nibble")
	assert.Less(t, a, b)
}

func TestIssuedTokensCarryDistinctIDs(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret, "clubchat")
	require.NoError(t, err)
	u := models.User{ID: "u1"}

	first, err := issuer.Issue(u, time.Hour)
	require.NoError(t, err)
	second, err := issuer.Issue(u, time.Hour)
	require.NoError(t, err)

	a, err := issuer.Parse(first)
	require.NoError(t, err)
	b, err := issuer.Parse(second)
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}
