package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"roomkey/shared"
	"roomkey/shared/constant"
	"roomkey/transport/http/response"

	"github.com/rs/zerolog/log"
)

const cacheKeyRateLimit = "limiter"

// RateLimit counts requests per client IP in fixed windows. A cache outage lets traffic through.
func (a *appMiddleware) RateLimit() func(http.Handler) http.Handler {
	limit := a.config.App.RateLimiter

	return func(next http.Handler) http.Handler {
		if !limit.Enable || limit.MaxRequests <= 0 || limit.WindowSeconds <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now().Unix()
			window := int64(limit.WindowSeconds)
			bucket := now / window

			key := shared.BuildCacheKey(cacheKeyRateLimit, clientIP(r), strconv.FormatInt(bucket, 10))

			count, err := a.cache.Increment(r.Context(), key, limit.WindowSeconds)
			if err != nil {
				log.Warn().Err(err).Msg("rate limiter unavailable, request allowed")
				next.ServeHTTP(w, r)

				return
			}

			header := w.Header()
			header.Set(constant.RequestHeaderRateLimit, strconv.Itoa(limit.MaxRequests))
			header.Set(constant.RequestHeaderRateLimitRemaining, strconv.FormatInt(max(0, int64(limit.MaxRequests)-count), 10))
			header.Set(constant.RequestHeaderRateLimitWindow, strconv.Itoa(limit.WindowSeconds))

			if count > int64(limit.MaxRequests) {
				header.Set(constant.RequestHeaderRetryAfter, strconv.FormatInt((bucket+1)*window-now, 10))
				response.WithRequestLimitExceeded(w)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port from RemoteAddr, which RealIP has already resolved from proxy headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

func userAgent(r *http.Request) string {
	if ua := r.UserAgent(); ua != "" {
		return ua
	}

	return "unknown"
}
