package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nexusstore/internal/httpserver/respond"
)

func TestMemoryLimiter(t *testing.T) {
	l := NewMemory(3, time.Minute)
	now := time.Unix(1700000000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 2-i, d.Remaining)
		assert.Equal(t, time.Minute, d.Reset)
	}
	d, _ := l.Allow(ctx, "1.2.3.4")
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	// other clients have their own budget
	d, _ = l.Allow(ctx, "5.6.7.8")
	assert.True(t, d.Allowed)

	// no refill inside the window
	now = now.Add(59 * time.Second)
	d, _ = l.Allow(ctx, "1.2.3.4")
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Second, d.Reset)

	now = now.Add(time.Second)
	d, _ = l.Allow(ctx, "1.2.3.4")
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Remaining)
}

func TestMemoryLimiterHoldsBudgetOverWindow(t *testing.T) {
	const budget = 100
	l := NewMemory(budget, 15*time.Minute)
	start := time.Unix(1700000000, 0)
	now := start
	l.now = func() time.Time { return now }

	// one request per second for exactly one window
	allowed := 0
	for now.Sub(start) < 15*time.Minute {
		d, err := l.Allow(context.Background(), "1.2.3.4")
		require.NoError(t, err)
		if d.Allowed {
			allowed++
		}
		now = now.Add(time.Second)
	}
	assert.Equal(t, budget, allowed)

	// a sliding view starting mid-window never sees more than the budget
	l = NewMemory(budget, 15*time.Minute)
	var grants []time.Time
	for now = start; now.Sub(start) < 45*time.Minute; now = now.Add(time.Second) {
		if d, _ := l.Allow(context.Background(), "k"); d.Allowed {
			grants = append(grants, now)
		}
	}
	for i, g := range grants {
		if i+budget < len(grants) {
			assert.GreaterOrEqual(t, grants[i+budget].Sub(g), 15*time.Minute)
		}
	}
}

func TestMemoryPrune(t *testing.T) {
	l := NewMemory(1, time.Minute)
	now := time.Unix(1700000000, 0)
	l.now = func() time.Time { return now }
	_, _ = l.Allow(context.Background(), "a")
	now = now.Add(30 * time.Second)
	_, _ = l.Allow(context.Background(), "b")
	now = now.Add(30 * time.Second)
	l.Prune()
	assert.NotContains(t, l.windows, "a")
	assert.Contains(t, l.windows, "b")
}

type stubLimiter struct {
	d   Decision
	err error
}

func (s stubLimiter) Allow(context.Context, string) (Decision, error) { return s.d, s.err }

func serve(t *testing.T, l Limiter, skip func(*http.Request) bool, path string) *httptest.ResponseRecorder {
	t.Helper()
	lg := zap.NewNop().Sugar()
	h := Middleware(l, respond.New(lg, false), lg, skip)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestMiddleware(t *testing.T) {
	rec := serve(t, stubLimiter{d: Decision{Allowed: true, Limit: 100, Remaining: 99, Reset: 90 * time.Second}}, nil, "/api/apps")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "100", rec.Header().Get("RateLimit-Limit"))
	assert.Equal(t, "99", rec.Header().Get("RateLimit-Remaining"))
	assert.Equal(t, "90", rec.Header().Get("RateLimit-Reset"))

	rec = serve(t, stubLimiter{d: Decision{Allowed: false, Limit: 100}}, nil, "/api/apps")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "too many requests")

	rec = serve(t, stubLimiter{err: errors.New("redis down")}, nil, "/api/apps")
	assert.Equal(t, http.StatusOK, rec.Code)

	skip := func(r *http.Request) bool { return r.URL.Path == "/api/checkout/webhook" }
	rec = serve(t, stubLimiter{d: Decision{Allowed: false}}, skip, "/api/checkout/webhook")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("RateLimit-Limit"))
}

func TestClientKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", ClientKey(r))
	r.RemoteAddr = "10.0.0.2"
	assert.Equal(t, "10.0.0.2", ClientKey(r))
}

func TestRedisLimiter(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := Connect(ctx, url)
	require.NoError(t, err)
	defer client.Close()

	l := NewRedis(client, 2, time.Minute)
	key := "test-" + time.Now().Format(time.RFC3339Nano)
	defer client.Del(ctx, l.prefix+key)

	d, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
	_, _ = l.Allow(ctx, key)
	d, err = l.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.Reset, time.Duration(0))
}
