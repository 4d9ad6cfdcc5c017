package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
)

const (
	defaultCouponAttemptsPerWindow = 10
	defaultCouponAttemptWindow     = time.Minute
)

// windowLimiter admits at most limit calls per key in each fixed window.
type windowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	entries map[string]windowEntry
}

type windowEntry struct {
	count int
	reset time.Time
}

func newWindowLimiter(limit int, window time.Duration, clock func() time.Time) *windowLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &windowLimiter{
		limit:   limit,
		window:  window,
		clock:   clock,
		entries: make(map[string]windowEntry),
	}
}

// Allow records one call for key and reports whether it is admitted, plus the time the
// current window resets.
func (l *windowLimiter) Allow(key string) (bool, time.Time) {
	if l == nil {
		return true, time.Time{}
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok || !now.Before(entry.reset) {
		entry = windowEntry{count: 1, reset: now.Add(l.window)}
		l.entries[key] = entry
		l.pruneLocked(now)
		return true, entry.reset
	}
	if entry.count >= l.limit {
		return false, entry.reset
	}
	entry.count++
	l.entries[key] = entry
	return true, entry.reset
}

func (l *windowLimiter) pruneLocked(now time.Time) {
	for key, entry := range l.entries {
		if !now.Before(entry.reset) {
			delete(l.entries, key)
		}
	}
}

// perUserLimit rejects requests with 429 once the authenticated user exceeds the limiter.
func perUserLimit(limiter *windowLimiter, clock func() time.Time) func(http.Handler) http.Handler {
	if clock == nil {
		clock = time.Now
	}
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ""
			if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity != nil {
				key = identity.UID
			}
			allowed, reset := limiter.Allow(key)
			if !allowed {
				retry := int(reset.Sub(clock()).Seconds()) + 1
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many attempts; retry later", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
