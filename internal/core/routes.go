package core

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"stormsurge/internal/types"
)

// defaultRedactedHeaders lists header names whose values are masked in
// request logs. Webhook signatures are derived from the shared secret, so
// they are treated as credentials.
var defaultRedactedHeaders = []string{
	"Authorization",
	"X-LD-Signature",
	"X-Statsig-Signature",
}

// MountRoutes registers the global middleware chain, the domain route
// registrars, and the health endpoint.
func (s *Server) MountRoutes() {
	s.registerGlobalMiddleware()

	for _, registrar := range s.RouteRegistrars {
		registrar(s.router)
	}

	s.router.Get("/health", s.HandleHealth)
}

// registerGlobalMiddleware applies middleware in strict order:
//  1. Recoverer       - catches panics; outermost to catch all failures.
//  2. RequestID       - generates/propagates correlation ID for tracing.
//  3. SecurityHeaders - ensures all responses include security headers.
//  4. RequestLogger   - structured logging (redacted signature headers).
//  5. CORS            - browser security headers for the dashboard origin.
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(NewCORSMiddleware(s.corsAllowedOrigins()))
}

// corsAllowedOrigins returns the CORS allowed origins from configuration.
func (s *Server) corsAllowedOrigins() []string {
	if s.Config != nil && len(s.Config.Server.CorsAllowedOrigins) > 0 {
		return s.Config.Server.CorsAllowedOrigins
	}
	return []string{"*"}
}

// RequestIDMiddleware generates or propagates a unique request ID for
// correlation across logs and upstream Spot API calls. If the incoming
// request carries an X-Request-Id header, that value is reused; otherwise a
// new random ID is generated.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := types.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// generateRequestID produces a random 32-character hex correlation ID.
func generateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// Should never happen; a non-empty ID is still needed for correlation.
		return "fallback-" + hex.EncodeToString([]byte(time.Now().String()))
	}
	return hex.EncodeToString(b)
}
