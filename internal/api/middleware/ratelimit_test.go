package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsavault/clubchat/internal/models"
)

func newLimiter(t *testing.T, cfg RateLimiterConfig) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })

	rl := NewRateLimiter(client, zerolog.Nop(), cfg).WithLimits([]RateLimit{
		{"POST /rooms/", 2, time.Minute, userOrIPKey},
	})
	return rl, s
}

func post(rl *RateLimiter, user string, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/rooms/dsa/messages", nil)
	req.RemoteAddr = ip + ":1234"
	if user != "" {
		req = req.WithContext(WithUser(req.Context(), &models.User{ID: user}))
	}
	rec := httptest.NewRecorder()
	rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})).ServeHTTP(rec, req)
	return rec
}

func TestRateLimitPerUser(t *testing.T) {
	rl, _ := newLimiter(t, RateLimiterConfig{})

	assert.Equal(t, http.StatusCreated, post(rl, "u1", "10.0.0.1").Code)
	rec := post(rl, "u1", "10.0.0.2")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = post(rl, "u1", "10.0.0.3")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusCreated, post(rl, "u2", "10.0.0.1").Code, "limits are per user")
}

func TestRateLimitSkipsUnmatchedAndWhitelisted(t *testing.T) {
	rl, _ := newLimiter(t, RateLimiterConfig{Whitelist: []string{"192.168.0.0/16", "10.9.9.9", "bad/cidr"}})

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusCreated, post(rl, "u1", "192.168.1.7").Code)
		assert.Equal(t, http.StatusCreated, post(rl, "u1", "10.9.9.9").Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/rooms", nil)
	rec := httptest.NewRecorder()
	rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestAutoBlock(t *testing.T) {
	rl, s := newLimiter(t, RateLimiterConfig{AutoBlockEnabled: true})

	for i := 0; i < 12; i++ {
		post(rl, "", "10.1.1.1")
	}
	assert.True(t, s.Exists("blocked:ip:10.1.1.1"))
	assert.Equal(t, http.StatusForbidden, post(rl, "u5", "10.1.1.1").Code)

	rl.blocker.Unblock(context.Background(), "ip:10.1.1.1")
	require.False(t, s.Exists("blocked:ip:10.1.1.1"))
}

func TestAutoBlockFollowsUserAcrossAddresses(t *testing.T) {
	rl, s := newLimiter(t, RateLimiterConfig{AutoBlockEnabled: true})

	for i := 0; i < 12; i++ {
		post(rl, "u7", "10.2.2.2")
	}
	assert.True(t, s.Exists("blocked:user:u7"))
	assert.False(t, s.Exists("blocked:ip:10.2.2.2"))

	assert.Equal(t, http.StatusForbidden, post(rl, "u7", "10.3.3.3").Code)
	assert.Equal(t, http.StatusCreated, post(rl, "u8", "10.2.2.2").Code)
}

func TestRejectedRequestsDoNotExtendWindow(t *testing.T) {
	rl, s := newLimiter(t, RateLimiterConfig{})

	post(rl, "u1", "10.0.0.1")
	post(rl, "u1", "10.0.0.1")
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusTooManyRequests, post(rl, "u1", "10.0.0.1").Code)
	}

	members, err := s.ZMembers("ratelimit:user:u1")
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "1.2.3.4:5678"
	assert.Equal(t, "1.2.3.4", RealIP(req))

	req.Header.Set("X-Forwarded-For", "5.6.7.8, 10.0.0.1")
	assert.Equal(t, "5.6.7.8", RealIP(req))

	req.Header.Set("Fly-Client-IP", "9.9.9.9")
	assert.Equal(t, "9.9.9.9", RealIP(req))
}
