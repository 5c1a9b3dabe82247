package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Allowed reports whether client starts with one of the prefixes.
func Allowed(client string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(client, p) {
			return true
		}
	}
	return false
}

// AllowClients only admits requests whose client address matches one of
// prefixes. Refused requests get 403 and a log line.
// If no prefixes are configured, it allows all requests (dev).
func AllowClients(prefixes []string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(prefixes) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := ClientIP(r)
			if Allowed(client, prefixes) {
				next.ServeHTTP(w, r)
				return
			}
			logger.Info("connection_refused",
				zap.String("client", client),
				zap.String("path", r.URL.Path),
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"forbidden"}`))
		})
	}
}
