// Package throttle limits how often a single client can hit an endpoint.
package throttle

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/andrebq/postbox/internal/httpjson"
	"github.com/andrebq/postbox/internal/logutil"
	"golang.org/x/time/rate"
)

type (
	Limiter struct {
		sync.Mutex
		limit   rate.Limit
		burst   int
		clients map[string]*client
		now     func() time.Time
		trusted []netip.Prefix
	}

	client struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}
)

const (
	// maxClients triggers a sweep of idle clients.
	maxClients = 10000
	idleAfter  = 10 * time.Minute
)

// New allows perMinute requests per client with bursts of up to burst.
// A zero or negative perMinute disables throttling.
func New(perMinute int, burst int) *Limiter {
	l := &Limiter{
		limit:   rate.Inf,
		burst:   burst,
		clients: make(map[string]*client),
		now:     time.Now,
	}
	if perMinute > 0 {
		l.limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	if l.burst <= 0 {
		l.burst = 1
	}
	return l
}

func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// TrustProxies makes ClientKey look past peers inside any of the given
// networks, using the X-Forwarded-For header they append. Plain
// addresses are accepted as single host networks.
func (l *Limiter) TrustProxies(networks []string) (*Limiter, error) {
	trusted := make([]netip.Prefix, 0, len(networks))
	for _, n := range networks {
		n = strings.TrimSpace(n)
		if !strings.Contains(n, "/") {
			addr, err := netip.ParseAddr(n)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q, cause %w", n, err)
			}
			trusted = append(trusted, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(n)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q, cause %w", n, err)
		}
		trusted = append(trusted, prefix.Masked())
	}
	l.trusted = trusted
	return l, nil
}

func (l *Limiter) Allow(key string) bool {
	if l.limit == rate.Inf {
		return true
	}
	l.Lock()
	defer l.Unlock()
	now := l.now()
	c, ok := l.clients[key]
	if !ok {
		if len(l.clients) >= maxClients {
			l.sweep(now)
		}
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

func (l *Limiter) sweep(now time.Time) {
	for k, c := range l.clients {
		if now.Sub(c.lastSeen) > idleAfter {
			delete(l.clients, k)
		}
	}
}

// Middleware answers 429 once a client exceeds its budget.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := l.ClientKey(r)
		if !l.Allow(key) {
			log := logutil.GetOrDefault(r.Context())
			log.Warn().Str("client", key).Str("path", r.URL.Path).Msg("Request throttled")
			w.Header().Set("Retry-After", "60")
			httpjson.Error(w, http.StatusTooManyRequests, "Too many attempts, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientKey is the host part of the remote address. When that host is a
// trusted proxy, the right-most X-Forwarded-For hop that is not trusted
// is used instead.
func (l *Limiter) ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !l.isTrusted(host) {
		return host
	}
	var hops []string
	for _, v := range r.Header.Values("X-Forwarded-For") {
		for _, hop := range strings.Split(v, ",") {
			if hop = strings.TrimSpace(hop); hop != "" {
				hops = append(hops, hop)
			}
		}
	}
	for i := len(hops) - 1; i >= 0; i-- {
		if !l.isTrusted(hops[i]) {
			return hops[i]
		}
	}
	if len(hops) > 0 {
		return hops[0]
	}
	return host
}

func (l *Limiter) isTrusted(host string) bool {
	if len(l.trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range l.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
