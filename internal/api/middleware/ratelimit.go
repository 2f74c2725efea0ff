package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"stigwatch/internal/config"
	"stigwatch/pkg/logger"
)

// RateLimitStore counts requests per client and window
type RateLimitStore interface {
	CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, time.Time, error)
}

type rateWindow struct {
	name   string
	limit  int
	window time.Duration
}

// RateLimiter returns middleware that enforces the per-minute and per-hour
// request limits of cfg. A store error lets the request through.
func RateLimiter(store RateLimitStore, cfg config.RateLimitConfig, log *logger.Logger) func(next http.Handler) http.Handler {
	var windows []rateWindow
	if cfg.RequestsPerMinute > 0 {
		windows = append(windows, rateWindow{"m", cfg.RequestsPerMinute, time.Minute})
	}
	if cfg.RequestsPerHour > 0 {
		windows = append(windows, rateWindow{"h", cfg.RequestsPerHour, time.Hour})
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			clientID := getClientID(r)

			for i, win := range windows {
				allowed, remaining, resetTime, err := store.CheckRateLimit(
					r.Context(),
					win.name+":"+clientID,
					int64(win.limit),
					win.window,
				)
				if err != nil {
					log.Warn().Err(err).Str("client", clientID).Msg("rate limit check failed")
					break
				}

				// Headers describe the tightest window
				if i == 0 {
					w.Header().Set("X-RateLimit-Limit", strconv.Itoa(win.limit))
					w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
					w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))
				}

				if !allowed {
					retry := int64(time.Until(resetTime).Seconds())
					if retry < 1 {
						retry = 1
					}
					w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusTooManyRequests)
					_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getClientID returns a unique identifier for the client. RealIP has
// already folded forwarding headers into RemoteAddr.
func getClientID(r *http.Request) string {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return "ip:" + ip
}
