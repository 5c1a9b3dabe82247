package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type clientKey struct{}

// TrustProxies resolves the caller's address once per request. The socket
// peer is the client unless it matches one of proxies; only then is
// X-Forwarded-For consulted, taking the rightmost hop that is not itself a
// trusted proxy. An empty proxies list ignores the header entirely.
func TrustProxies(proxies []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := resolveClient(r, proxies)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientKey{}, client)))
		})
	}
}

// ClientIP returns the address TrustProxies resolved for r, or the host part
// of RemoteAddr when the request did not pass through it.
func ClientIP(r *http.Request) string {
	if c, ok := r.Context().Value(clientKey{}).(string); ok && c != "" {
		return c
	}
	return remoteHost(r)
}

func resolveClient(r *http.Request, proxies []string) string {
	peer := remoteHost(r)
	if len(proxies) == 0 || !Allowed(peer, proxies) {
		return peer
	}
	xff := r.Header.Values("X-Forwarded-For")
	if len(xff) == 0 {
		return peer
	}
	hops := strings.Split(strings.Join(xff, ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !Allowed(hop, proxies) {
			return hop
		}
		peer = hop
	}
	// every hop is a trusted proxy
	return peer
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
