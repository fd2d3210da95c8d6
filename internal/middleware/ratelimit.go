package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// UserLimiter hands out one token bucket per user.
type UserLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*userBucket
}

type userBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewUserLimiter allows perMinute requests per user with a burst of the same
// size. perMinute <= 0 returns nil, which allows everything.
func NewUserLimiter(perMinute int) *UserLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &UserLimiter{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		limiters: make(map[string]*userBucket),
	}
}

// Allow reports whether userID may make another request now.
func (l *UserLimiter) Allow(userID string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	b, ok := l.limiters[userID]
	if !ok {
		b = &userBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[userID] = b
	}
	b.lastSeen = time.Now()
	l.mu.Unlock()

	return b.limiter.Allow()
}

// Forget drops buckets unused for longer than idle.
func (l *UserLimiter) Forget(idle time.Duration) int {
	if l == nil {
		return 0
	}
	cutoff := time.Now().Add(-idle)

	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for id, b := range l.limiters {
		if b.lastSeen.Before(cutoff) {
			delete(l.limiters, id)
			n++
		}
	}
	return n
}

// RateLimit rejects requests over the caller's per-minute allowance with 429.
// Must be used after AuthMiddleware.
func RateLimit(l *UserLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(UserIDFromContext(r.Context())) {
				w.Header().Set("Retry-After", strconv.Itoa(l.retryAfterSeconds()))
				writeAuthError(w, http.StatusTooManyRequests, "rate_limited", "too many questions, slow down")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *UserLimiter) retryAfterSeconds() int {
	secs := int(time.Duration(float64(time.Second) / float64(l.limit)).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}
