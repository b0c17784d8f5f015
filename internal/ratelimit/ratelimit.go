// Package ratelimit bounds requests per client over a fixed window.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"nexusstore/internal/apperr"
	"nexusstore/internal/httpserver/respond"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Redis counts hits per key in a fixed window shared by every process
// pointing at the same server.
type Redis struct {
	client *redis.Client
	max    int
	window time.Duration
	prefix string
}

func NewRedis(client *redis.Client, max int, window time.Duration) *Redis {
	return &Redis{client: client, max: max, window: window, prefix: "ratelimit:"}
}

// Connect parses url and checks the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func (l *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	k := l.prefix + key
	n, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return Decision{}, err
	}
	if n == 1 {
		if err := l.client.PExpire(ctx, k, l.window).Err(); err != nil {
			return Decision{}, err
		}
	}
	ttl, err := l.client.PTTL(ctx, k).Result()
	if err != nil {
		return Decision{}, err
	}
	if ttl < 0 {
		// key lost its expiry, restart the window
		_ = l.client.PExpire(ctx, k, l.window).Err()
		ttl = l.window
	}
	return decide(int(n), l.max, ttl), nil
}

func decide(hits, max int, reset time.Duration) Decision {
	remaining := max - hits
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: hits <= max, Limit: max, Remaining: remaining, Reset: reset}
}

// Memory is the single-process fallback. It counts hits per key in a fixed
// window started by the first hit, the same way Redis does.
type Memory struct {
	mu      sync.Mutex
	windows map[string]*window
	max     int
	window  time.Duration
	now     func() time.Time
}

type window struct {
	start time.Time
	hits  int
}

func NewMemory(max int, w time.Duration) *Memory {
	return &Memory{windows: make(map[string]*window), max: max, window: w, now: time.Now}
}

func (l *Memory) Allow(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.window {
		w = &window{start: now}
		l.windows[key] = w
	}
	w.hits++
	return decide(w.hits, l.max, w.start.Add(l.window).Sub(now)), nil
}

// Prune drops keys whose window has ended.
func (l *Memory) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for k, w := range l.windows {
		if now.Sub(w.start) >= l.window {
			delete(l.windows, k)
		}
	}
}

// StartPruning runs Prune every interval until ctx is done.
func (l *Memory) StartPruning(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Prune()
			}
		}
	}()
}

// ClientKey identifies the caller by IP. RealIP has already rewritten
// RemoteAddr when a proxy header was present.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests over budget with 429. Limiter failures let
// the request through. Requests for which skip returns true are not counted.
// Rejections are logged at most once per second.
func Middleware(l Limiter, resp *respond.Responder, lg *zap.SugaredLogger, skip func(*http.Request) bool) func(http.Handler) http.Handler {
	rejected := &rate.Sometimes{Interval: time.Second}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip != nil && skip(r) {
				next.ServeHTTP(w, r)
				return
			}
			key := ClientKey(r)
			d, err := l.Allow(r.Context(), key)
			if err != nil {
				lg.Warnw("rate limiter unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			h.Set("RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("RateLimit-Reset", strconv.Itoa(int(math.Ceil(d.Reset.Seconds()))))
			if !d.Allowed {
				rejected.Do(func() {
					lg.Warnw("rate limit exceeded", "key", key, "path", r.URL.Path, "method", r.Method)
				})
				resp.Error(w, r, apperr.TooManyRequests("too many requests, please try again later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
