package api

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// Throttle applies a per-IP token bucket at the HTTP layer. This is
// burst protection for the whole API surface; the durable per-wallet and
// per-IP claim windows are enforced separately in the drip flow.
type Throttle struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex

	limit     rate.Limit
	burstSize int
}

// NewThrottle creates a throttle allowing rps requests per second per IP.
func NewThrottle(rps int) *Throttle {
	return &Throttle{
		limiters:  make(map[string]*rate.Limiter),
		limit:     rate.Limit(rps),
		burstSize: 10,
	}
}

// getLimiter returns the limiter for one client IP.
func (t *Throttle) getLimiter(ip string) *rate.Limiter {
	t.mu.RLock()
	limiter, exists := t.limiters[ip]
	t.mu.RUnlock()

	if exists {
		return limiter
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Double-check in case another goroutine created it
	if limiter, exists := t.limiters[ip]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(t.limit, t.burstSize)
	t.limiters[ip] = limiter

	return limiter
}

// ThrottleMiddleware creates a middleware that enforces the per-IP budget.
func ThrottleMiddleware(t *Throttle) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !t.getLimiter(clientIP(r)).Allow() {
				respondError(w, http.StatusTooManyRequests, "THROTTLED", "Too many requests. Please slow down.", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
