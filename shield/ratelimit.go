package shield

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig is the rule for one endpoint.
type RateLimitConfig struct {
	MaxRequests   int
	WindowSeconds int
	Enabled       bool
}

type bucket struct {
	count   int
	resetAt time.Time
}

// RateLimiter is a fixed-window, per-IP, per-endpoint limiter whose rules
// live in the rate_limits table. Endpoints without a rule are unlimited.
type RateLimiter struct {
	db      *sql.DB
	exclude []string // path prefixes that bypass the limiter
	trusted []netip.Prefix

	mu      sync.Mutex
	rules   map[string]RateLimitConfig
	buckets map[string]*bucket
	now     func() time.Time
}

// NewRateLimiter loads the rules from db. Call StartReloader to pick up rule
// changes and expire idle buckets.
func NewRateLimiter(db *sql.DB, excludePrefixes ...string) *RateLimiter {
	rl := &RateLimiter{
		db:      db,
		exclude: excludePrefixes,
		rules:   make(map[string]RateLimitConfig),
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
	rl.Reload()
	return rl
}

// TrustProxies makes the limiter key requests arriving from one of the
// given networks on the client named in X-Forwarded-For. Without trusted
// proxies the header is ignored.
func (rl *RateLimiter) TrustProxies(prefixes ...netip.Prefix) {
	rl.mu.Lock()
	rl.trusted = prefixes
	rl.mu.Unlock()
}

// StartReloader reloads rules every minute and drops expired buckets every
// five minutes until done is closed.
func (rl *RateLimiter) StartReloader(done <-chan struct{}) {
	reloadTick := time.NewTicker(time.Minute)
	gcTick := time.NewTicker(5 * time.Minute)
	go func() {
		defer reloadTick.Stop()
		defer gcTick.Stop()
		for {
			select {
			case <-done:
				return
			case <-reloadTick.C:
				rl.Reload()
			case <-gcTick.C:
				rl.gc()
			}
		}
	}()
}

// Reload re-reads the rules table. On error the previous rules stay active.
func (rl *RateLimiter) Reload() {
	rows, err := rl.db.Query(`SELECT endpoint, max_requests, window_seconds, enabled FROM rate_limits`)
	if err != nil {
		slog.Warn("ratelimit: failed to reload rules", "error", err)
		return
	}
	defer rows.Close()

	rules := make(map[string]RateLimitConfig)
	for rows.Next() {
		var endpoint string
		var cfg RateLimitConfig
		var enabled int
		if err := rows.Scan(&endpoint, &cfg.MaxRequests, &cfg.WindowSeconds, &enabled); err != nil {
			continue
		}
		cfg.Enabled = enabled == 1
		rules[endpoint] = cfg
	}

	rl.mu.Lock()
	rl.rules = rules
	rl.mu.Unlock()
	slog.Debug("ratelimit: rules reloaded", "count", len(rules))
}

func (rl *RateLimiter) gc() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for k, b := range rl.buckets {
		if now.After(b.resetAt) {
			delete(rl.buckets, k)
		}
	}
}

// allow reports whether the request may proceed and, if not, how many
// seconds remain in the window.
func (rl *RateLimiter) allow(ip, endpoint string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cfg, ok := rl.rules[endpoint]
	if !ok || !cfg.Enabled {
		return true, 0
	}

	now := rl.now()
	key := ip + " " + endpoint
	b, ok := rl.buckets[key]
	if !ok || now.After(b.resetAt) {
		rl.buckets[key] = &bucket{count: 1, resetAt: now.Add(time.Duration(cfg.WindowSeconds) * time.Second)}
		return true, 0
	}
	b.count++
	if b.count <= cfg.MaxRequests {
		return true, 0
	}
	return false, int(b.resetAt.Sub(now).Seconds()) + 1
}

// Middleware answers 429 with a JSON body once a client exceeds its rule.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range rl.exclude {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		endpoint := r.Method + " " + r.URL.Path
		rl.mu.Lock()
		trusted := rl.trusted
		rl.mu.Unlock()
		ip := ClientIP(r, trusted)
		ok, retry := rl.allow(ip, endpoint)
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		GetLogger(r.Context()).Warn("ratelimit: request blocked", "ip", ip, "endpoint", endpoint)
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
	})
}

// ExtractIP returns the RemoteAddr host.
func ExtractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ClientIP returns the client address of r. X-Forwarded-For is only
// consulted when the peer is a trusted proxy; hops are read right to left
// and the first one outside the trusted networks wins.
func ClientIP(r *http.Request, trusted []netip.Prefix) string {
	remote := ExtractIP(r)
	addr, err := netip.ParseAddr(remote)
	if err != nil || !isTrusted(addr, trusted) {
		return remote
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			return remote
		}
		if !isTrusted(hop, trusted) {
			return hop.String()
		}
	}
	return remote
}

func isTrusted(addr netip.Addr, trusted []netip.Prefix) bool {
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ParseTrustedProxies parses CIDR prefixes or bare addresses.
func ParseTrustedProxies(list []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, s := range list {
		s = strings.TrimSpace(s)
		if p, err := netip.ParsePrefix(s); err == nil {
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: not an address or CIDR prefix", s)
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
