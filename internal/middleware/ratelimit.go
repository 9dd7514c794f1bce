package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"jewelshot/internal/ratelimit"
)

// RateLimit is an advisory per-caller limiter kept in process memory. It
// smooths bursts in front of the handlers; the enforced ceilings live in the
// submission gateway. A limiter error lets the request through.
func RateLimit(limiter *ratelimit.Limiter, limit int, per time.Duration, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			subject := "ip:" + clientIPForRateLimit(r)
			if userID := UserIDFromContext(r.Context()); userID != "" {
				subject = ratelimit.UserSubject(userID)
			}
			decision, err := limiter.CheckAndRecord(r.Context(), subject, limit, per)
			if err != nil {
				logger.Warn().Err(err).Str("subject", subject).Msg("http: advisory rate limiter failed")
				next.ServeHTTP(w, r)
				return
			}
			if !decision.Allowed {
				secs := int((decision.RetryAfter + time.Second - 1) / time.Second)
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIPForRateLimit(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip == "" {
				continue
			}
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if net.ParseIP(host) != nil {
			return host
		}
	} else if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}

	return r.RemoteAddr
}
