package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// ipLimiter keeps one token bucket per client IP. Entries idle longer than
// the TTL are dropped on the next sweep.
type ipLimiter struct {
	mu      sync.Mutex
	buckets map[string]*ipBucket
	limit   rate.Limit
	burst   int
}

type ipBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const ipBucketTTL = 10 * time.Minute

func newIPLimiter(perSecond float64, burst int) *ipLimiter {
	return &ipLimiter{
		buckets: make(map[string]*ipBucket),
		limit:   rate.Limit(perSecond),
		burst:   burst,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[ip]
	if !ok {
		if len(l.buckets) > 1024 {
			l.sweepLocked()
		}
		b = &ipBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	return b.limiter.Allow()
}

func (l *ipLimiter) sweepLocked() {
	cutoff := time.Now().Add(-ipBucketTTL)
	for ip, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, ip)
		}
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// rateLimit rejects requests over the per-IP budget with a 429.
func (l *ipLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientIP(r)) {
			WriteTooManyRequests(w, 1)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerAuth validates HS256 bearer tokens signed with the shared API
// secret. An empty secret disables authentication (local single-operator
// mode); a configured secret fails closed on any malformed token.
func bearerAuth(secret string, next http.Handler) http.Handler {
	if secret == "" {
		return next
	}
	keyFunc := func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			WriteUnauthorized(w, "Missing Authorization header")
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			WriteUnauthorized(w, "Invalid Authorization header format (expected 'Bearer <token>')")
			return
		}
		token, err := jwt.Parse(parts[1], keyFunc)
		if err != nil || !token.Valid {
			WriteUnauthorized(w, "Invalid or expired token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IdempotencyStore reserves idempotency keys. Reserve returns false when the
// key was already used.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key string) (bool, error)
}

// idempotencyTTL bounds how long a used key blocks replays.
const idempotencyTTL = 24 * time.Hour

// RedisIdempotency reserves keys with SET NX in Redis, so replays are
// detected across kernel instances.
type RedisIdempotency struct {
	Client *redis.Client
}

// NewRedisIdempotency connects to the given Redis address.
func NewRedisIdempotency(addr string) *RedisIdempotency {
	return &RedisIdempotency{Client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (s *RedisIdempotency) Reserve(ctx context.Context, key string) (bool, error) {
	return s.Client.SetNX(ctx, "axp:idem:"+key, "1", idempotencyTTL).Result()
}

// MemoryIdempotency is the single-instance fallback when Redis is not
// configured.
type MemoryIdempotency struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func NewMemoryIdempotency() *MemoryIdempotency {
	return &MemoryIdempotency{seen: make(map[string]time.Time)}
}

func (s *MemoryIdempotency) Reserve(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-idempotencyTTL)
	for k, at := range s.seen {
		if at.Before(cutoff) {
			delete(s.seen, k)
		}
	}
	if _, ok := s.seen[key]; ok {
		return false, nil
	}
	s.seen[key] = time.Now()
	return true, nil
}
