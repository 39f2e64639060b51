package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rhuss/toolloop/pkg/debug"
	"github.com/rhuss/toolloop/pkg/observability"
	"github.com/rhuss/toolloop/pkg/storage"
)

// DefaultBypassEndpoints lists endpoints that skip authentication.
var DefaultBypassEndpoints = []string{"/healthz", "/metrics"}

// Middleware authenticates every request not on the bypass list, applies
// the optional rate limiter and stores the identity and tenant on the
// request context. Rejections use the OpenAI error envelope so clients
// of the chat backend see the same shape a real server returns.
func Middleware(chain *Chain, limiter RateLimiter, bypassEndpoints []string) func(http.Handler) http.Handler {
	bypass := make(map[string]bool, len(bypassEndpoints))
	for _, ep := range bypassEndpoints {
		bypass[ep] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			res := chain.Authenticate(r.Context(), r)
			if res.Decision != Yes || res.Identity == nil {
				slog.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"decision", res.Decision,
					"error", res.Err,
				)
				observability.AuthRejectedTotal.WithLabelValues("unauthenticated").Inc()
				writeError(w, http.StatusUnauthorized, "invalid_request_error", ErrUnauthenticated.Error())
				return
			}
			if res.Identity.Subject == "" {
				slog.Error("authenticator returned identity with empty subject")
				writeError(w, http.StatusInternalServerError, "server_error", "internal authentication error")
				return
			}

			if limiter != nil {
				if err := limiter.Allow(r.Context(), res.Identity); err != nil {
					slog.Warn("rate limit exceeded", "subject", res.Identity.Subject, "tier", res.Identity.Tier)
					observability.AuthRejectedTotal.WithLabelValues("rate_limited").Inc()
					w.Header().Set("Retry-After", "1")
					writeError(w, http.StatusTooManyRequests, "rate_limit_error", err.Error())
					return
				}
			}

			debug.Log("auth", "authenticated", "subject", res.Identity.Subject, "path", r.URL.Path)

			ctx := r.Context()
			if tenant := res.Identity.TenantID(); tenant != "" {
				ctx = storage.SetTenant(ctx, tenant)
			}
			ctx = contextWithIdentity(ctx, res.Identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeError(w http.ResponseWriter, status int, typ, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"type": typ, "message": msg},
	})
}
