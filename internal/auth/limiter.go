package auth

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	pruneThreshold = 1024
	idleAfter      = 10 * time.Minute
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter throttles login attempts per client address.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*client
	every   rate.Limit
	burst   int
	now     func() time.Time
}

// NewLimiter allows perMinute attempts per client, refilled evenly.
func NewLimiter(perMinute int) *Limiter {
	if perMinute <= 0 {
		perMinute = 5
	}
	return &Limiter{
		clients: make(map[string]*client),
		every:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
		now:     time.Now,
	}
}

// Allow reports whether key may attempt a login now.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.clients) >= pruneThreshold {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) > idleAfter {
				delete(l.clients, k)
			}
		}
	}

	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.every, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// Limit wraps next so throttled clients get 429 before it runs.
func (l *Limiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientKey(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Too many login attempts"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type peerKey struct{}

// Peer records the connection's address before proxy headers can rewrite
// RemoteAddr. Install it ahead of middleware.RealIP.
func Peer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), peerKey{}, r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientKey is the peer host recorded by Peer, falling back to RemoteAddr.
// Forwarded headers are caller-controlled and never pick the bucket.
func clientKey(r *http.Request) string {
	addr, ok := r.Context().Value(peerKey{}).(string)
	if !ok {
		addr = r.RemoteAddr
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
