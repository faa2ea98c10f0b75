package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/JonMunkholm/sheetsmith/internal/core"
)

// ClientIP resolves the caller's address and stores it in the request
// context for the rate limiter, the access log and session bookkeeping.
//
// X-Real-IP, then the first X-Forwarded-For entry, are honored only when the
// connection comes from one of the trusted proxy prefixes. Entries may be
// CIDRs or bare addresses. Header values that do not parse as an address
// are ignored.
func ClientIP(trusted []string) func(http.Handler) http.Handler {
	proxies := parsePrefixes(trusted)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveIP(r, proxies)
			next.ServeHTTP(w, r.WithContext(core.ContextWithClientIP(r.Context(), ip)))
		})
	}
}

func resolveIP(r *http.Request, proxies []netip.Prefix) string {
	peer, ok := parseAddr(r.RemoteAddr)
	if !ok {
		return r.RemoteAddr
	}
	if !containedIn(peer, proxies) {
		return peer.String()
	}

	if v := r.Header.Get("X-Real-IP"); v != "" {
		if a, ok := parseAddr(v); ok {
			return a.String()
		}
		return peer.String()
	}
	if v := r.Header.Get("X-Forwarded-For"); v != "" {
		first, _, _ := strings.Cut(v, ",")
		if a, ok := parseAddr(first); ok {
			return a.String()
		}
	}
	return peer.String()
}

// parseAddr accepts "host:port" or a bare address.
func parseAddr(s string) (netip.Addr, bool) {
	s = strings.TrimSpace(s)
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return a.Unmap(), true
}

func parsePrefixes(list []string) []netip.Prefix {
	var out []netip.Prefix
	for _, s := range list {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if p, err := netip.ParsePrefix(s); err == nil {
			out = append(out, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(s); err == nil {
			a = a.Unmap()
			out = append(out, netip.PrefixFrom(a, a.BitLen()))
			continue
		}
		slog.Warn("ignoring invalid trusted proxy", "value", s)
	}
	return out
}

func containedIn(a netip.Addr, prefixes []netip.Prefix) bool {
	for _, p := range prefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}
