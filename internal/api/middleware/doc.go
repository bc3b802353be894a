// Package middleware provides the HTTP middleware of the inspector API.
//
// Middleware stack includes:
//   - RequestID: reuses or assigns an X-Request-ID
//   - Logger: one structured zap line per request
//   - CORS: cross-origin access for browser front ends
//   - RateLimit: per-IP token bucket rate limiting with idle client cleanup
//   - GlobalRateLimit: one token bucket for every caller
//
// Example Usage:
//
//	router.Use(middleware.RequestID(), middleware.Logger(logger))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
