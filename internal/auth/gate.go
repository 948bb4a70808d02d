// Package auth gates admin-only routes behind a signed session cookie.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName is the cookie carrying the admin session token.
const CookieName = "admin_session"

const (
	subject    = "admin"
	defaultTTL = 24 * time.Hour
)

// Config configures a Gate.
type Config struct {
	AdminCode  string
	SigningKey []byte // generated per process when empty
	TTL        time.Duration
	Secure     bool // mark the cookie Secure
	Now        func() time.Time
}

// Gate issues and verifies admin session tokens. A token is an HS256 JWT
// with subject "admin" and an expiry; anything else is anonymous.
type Gate struct {
	codeDigest [sha256.Size]byte
	hasCode    bool
	key        []byte
	ttl        time.Duration
	secure     bool
	now        func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time // token id -> expiry
}

// NewGate constructs a Gate.
func NewGate(cfg Config) (*Gate, error) {
	key := cfg.SigningKey
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Gate{
		codeDigest: sha256.Sum256([]byte(cfg.AdminCode)),
		hasCode:    cfg.AdminCode != "",
		key:        key,
		ttl:        ttl,
		secure:     cfg.Secure,
		now:        now,
		revoked:    make(map[string]time.Time),
	}, nil
}

// Authorize reports whether code equals the configured admin code. The
// comparison runs over fixed-size digests so its timing does not depend on
// where the inputs differ or on their lengths.
func (g *Gate) Authorize(code string) bool {
	if !g.hasCode || code == "" {
		return false
	}
	digest := sha256.Sum256([]byte(code))
	return subtle.ConstantTimeCompare(digest[:], g.codeDigest[:]) == 1
}

// Grant issues a fresh session cookie.
func (g *Gate) Grant() (*http.Cookie, error) {
	now := g.now()
	exp := now.Add(g.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ID:        randomID(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.key)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(g.ttl / time.Second),
		Expires:  exp,
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteStrictMode,
	}, nil
}

// Clear returns a cookie directive that removes the session cookie.
func (g *Gate) Clear() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// IsAuthenticated reports whether r carries a valid, unrevoked session token.
func (g *Gate) IsAuthenticated(r *http.Request) bool {
	claims, err := g.verify(r)
	if err != nil {
		return false
	}
	g.mu.Lock()
	_, revoked := g.revoked[claims.ID]
	g.mu.Unlock()
	return !revoked
}

// Revoke invalidates the session token carried by r until it would have
// expired anyway. Revocations are kept in memory only.
func (g *Gate) Revoke(r *http.Request) {
	claims, err := g.verify(r)
	if err != nil || claims.ExpiresAt == nil {
		return
	}
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, exp := range g.revoked {
		if now.After(exp) {
			delete(g.revoked, id)
		}
	}
	g.revoked[claims.ID] = claims.ExpiresAt.Time
}

// Require rejects requests without a valid session before next runs.
func (g *Gate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.IsAuthenticated(r) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

var errNoSession = errors.New("no session cookie")

func (g *Gate) verify(r *http.Request) (*jwt.RegisteredClaims, error) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return nil, errNoSession
	}
	var claims jwt.RegisteredClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(g.now),
		jwt.WithExpirationRequired(),
		jwt.WithSubject(subject),
	)
	if _, err := parser.ParseWithClaims(c.Value, &claims, func(*jwt.Token) (any, error) {
		return g.key, nil
	}); err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, errors.New("session token without id")
	}
	return &claims, nil
}

func randomID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
