package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/notewellhq/notewell-backend/api/responses"
	"github.com/notewellhq/notewell-backend/pkg/config"
	pkgerrors "github.com/notewellhq/notewell-backend/pkg/errors"
	"github.com/notewellhq/notewell-backend/pkg/logger"
)

// RateLimiter is the counter slice the limiter needs, satisfied by the redis
// client.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimit applies a fixed-window per-client-IP limit across the API. The
// limiter failing open keeps Redis off the request critical path.
func RateLimit(cfg config.AuthRateLimitConfig, limiter RateLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Disabled || limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			scope := "ip:" + clientIP(r)
			allowed, count, err := limiter.FixedWindowAllow(r.Context(), scope, int64(cfg.IPLimit), cfg.Window)
			if err != nil {
				if logg != nil {
					logg.Warn(logg.WithField(r.Context(), "rate_limit_scope", scope), "rate limiter unavailable, allowing request")
				}
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				ctx := r.Context()
				if logg != nil {
					ctx = logg.WithFields(ctx, map[string]any{
						"rate_limit_scope": scope,
						"rate_limit_count": count,
					})
				}
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many requests"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
