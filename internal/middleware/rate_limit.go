package middleware

import (
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/consensus/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
}

// DefaultLoginRateLimit returns the limit applied to POST /auth/login
func DefaultLoginRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
	}
}

// RateLimitByIP limits requests per client address. The address comes from
// ips so that X-Forwarded-For is honoured only behind trusted proxies.
func RateLimitByIP(config RateLimitConfig, ips *pkghttp.IPResolver) func(next http.Handler) http.Handler {
	if config.RequestsPerMinute <= 0 {
		config = DefaultLoginRateLimit()
	}

	return httprate.Limit(
		config.RequestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return ips.ClientIP(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "too many requests, please try again later")
		}),
	)
}
