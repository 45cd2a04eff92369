package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/karlseguin/ccache"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/hydrocred/hydrocred/internal/api"
	"github.com/hydrocred/hydrocred/internal/logger"
)

const (
	// clients idle for longer than this get a fresh bucket
	limiterIdleTTL  = 10 * time.Minute
	maxTrackedPeers = 10000
)

// RequestSizeLimit caps request bodies at maxBytes.
//
// Requests declaring a larger Content-Length are refused up front with 413. Other bodies are wrapped in
// http.MaxBytesReader so the JSON decoder fails once the limit is crossed. Every response carries
// X-Max-Request-Size.
func RequestSizeLimit(maxBytes int64) func(http.Handler) http.Handler {
	limit := strconv.FormatInt(maxBytes, 10)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Max-Request-Size", limit)

			if r.ContentLength > maxBytes {
				api.RespondWithErrorResponse(w, r, api.NewRequestTooLargeError(
					fmt.Sprintf("request body of %d bytes exceeds the %d byte limit", r.ContentLength, maxBytes),
				))
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders sets headers for a JSON API that is never framed or cached.
// HSTS is only sent from staging and prod, which are served over TLS.
func SecurityHeaders(environment string) func(http.Handler) http.Handler {
	hsts := environment == "prod" || environment == "staging"
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Referrer-Policy", "no-referrer")
			// certifications carry signatures; intermediaries must not keep copies
			h.Set("Cache-Control", "no-store")
			if hsts {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit gives each client IP its own token bucket of requestsPerSecond with the given burst.
// requestsPerSecond <= 0 disables rate limiting.
func RateLimit(requestsPerSecond int32, burst int32) func(http.Handler) http.Handler {
	if requestsPerSecond <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	peers := ccache.New(ccache.Configure().MaxSize(maxTrackedPeers))
	limiterFor := func(client string) *rate.Limiter {
		item, _ := peers.Fetch(client, limiterIdleTTL, func() (interface{}, error) {
			return rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)), nil
		})
		item.Extend(limiterIdleTTL)
		return item.Value().(*rate.Limiter)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientIP(r)
			if limiterFor(client).Allow() {
				next.ServeHTTP(w, r)
				return
			}

			logger.ContextRequestLogger(r.Context()).Warn("rate limit exceeded",
				slog.String("component", "RateLimit"),
				slog.String("client", client),
			)
			logger.ContextWithLogAttrs(r.Context(), slog.String("client", client))

			api.RespondWithErrorResponse(w, r, api.NewRateLimitError("Too many requests. Please try again later."))
		})
	}
}

// clientIP is the host part of RemoteAddr, which chi's RealIP middleware has already resolved.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// CORS allows browser clients from allowedOrigins to call the API. With no origins configured cross-origin requests
// are not answered with CORS headers.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"Location", "X-Max-Request-Size"},
		MaxAge:         300,
	})
	return c.Handler
}
