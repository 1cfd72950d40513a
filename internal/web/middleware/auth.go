package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/csvbatch/internal/config"
)

// APIKeyHeader carries the API key on ordinary requests.
const APIKeyHeader = "X-API-Key"

// APIKeyQueryParam carries the API key for EventSource clients, which cannot
// set request headers.
const APIKeyQueryParam = "api_key"

// APIKeyAuth rejects requests without a configured API key. With
// RequireAPIKey unset every request passes; with it set and no keys
// configured every request is rejected.
func APIKeyAuth(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAPIKey {
				next.ServeHTTP(w, r)
				return
			}

			key := requestAPIKey(r)
			if key == "" {
				reject(w, r, http.StatusUnauthorized, "missing API key", "AUTH001")
				return
			}
			if !matchesAny(key, cfg.APIKeys) {
				reject(w, r, http.StatusForbidden, "invalid API key", "AUTH002")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		return key
	}
	if r.Header.Get("Accept") == "text/event-stream" {
		return strings.TrimSpace(r.URL.Query().Get(APIKeyQueryParam))
	}
	return ""
}

func reject(w http.ResponseWriter, r *http.Request, status int, msg, code string) {
	slog.Warn("auth: request rejected",
		"reason", msg,
		"path", r.URL.Path,
		"method", r.Method,
		"remote_addr", r.RemoteAddr,
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + msg + `","message":"` + msg + `","code":"` + code + `"}`))
}

// matchesAny compares key against every configured key in constant time.
func matchesAny(key string, keys []string) bool {
	var ok int
	for _, k := range keys {
		ok |= subtle.ConstantTimeCompare([]byte(key), []byte(k))
	}
	return ok == 1
}
