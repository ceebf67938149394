package proxy

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/TnZzZHlp/ai-forward/internal/config"
	"github.com/TnZzZHlp/ai-forward/internal/ipban"
)

// MaxBodySize is the request body limit for the completion endpoints.
const MaxBodySize = 10 << 20 // 10 MB

const clientIPKey contextKey = "client_ip"
const metaKey contextKey = "request_meta"

// requestMeta carries per-request fields filled in by the handler and read
// by the logging middleware after the response completes. All access happens
// on the request goroutine.
type requestMeta struct {
	CacheSource string
	Model       string
	Provider    string
}

func withMeta(ctx context.Context) (context.Context, *requestMeta) {
	meta := &requestMeta{}
	return context.WithValue(ctx, metaKey, meta), meta
}

func metaFrom(ctx context.Context) *requestMeta {
	if m, ok := ctx.Value(metaKey).(*requestMeta); ok {
		return m
	}
	return nil
}

// ClientIP derives the client identifier for a request.
// A public peer address wins outright; otherwise X-Real-IP, then the first
// X-Forwarded-For entry, then the peer address.
func ClientIP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}

	if addr, err := netip.ParseAddr(peer); err == nil && isPublic(addr) {
		return peer
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	return peer
}

func isPublic(addr netip.Addr) bool {
	return !(addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsUnspecified())
}

// GetClientIP returns the derived client identifier from the context, or "".
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey).(string); ok {
		return ip
	}
	return ""
}

// RequestIDMiddleware attaches a request ID and request-scoped logger, and
// derives the client identifier once for the rest of the chain.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			ctx := AddRequestID(r.Context(), requestID)
			if requestID == "" {
				requestID = GetRequestID(ctx)
			}
			w.Header().Set("X-Request-ID", requestID)

			ctx = context.WithValue(ctx, clientIPKey, ClientIP(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AuthMiddleware enforces the shared bearer token with ban tracking.
// Banned clients are rejected before the token is consulted. A failed check
// records a failure; success clears the failure record.
func AuthMiddleware(runtime config.RuntimeConfig, bans *ipban.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := GetClientIP(r.Context())

			if bans.IsBanned(clientIP) {
				zerolog.Ctx(r.Context()).Warn().
					Str("ip", clientIP).
					Msg("blocked banned client")
				WriteTypedError(w, http.StatusForbidden, "ip_banned", msgIPBanned)
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				failures := bans.RecordFailure(clientIP)
				zerolog.Ctx(r.Context()).Warn().
					Str("ip", clientIP).
					Uint32("failures", failures).
					Msg("missing authorization header")
				WriteError(w, http.StatusUnauthorized, msgMissingAuth)
				return
			}

			token, _ := strings.CutPrefix(header, "Bearer ")
			expected := sha256.Sum256([]byte(runtime.Get().Auth))
			provided := sha256.Sum256([]byte(token))
			if subtle.ConstantTimeCompare(provided[:], expected[:]) != 1 {
				failures := bans.RecordFailure(clientIP)
				zerolog.Ctx(r.Context()).Warn().
					Str("ip", clientIP).
					Uint32("failures", failures).
					Msg("invalid authorization token")
				WriteError(w, http.StatusUnauthorized, msgInvalidAuth)
				return
			}

			bans.ResetFailures(clientIP)
			next.ServeHTTP(w, r)
		})
	}
}

// MaxBodyBytesMiddleware limits request body size via http.MaxBytesReader.
func MaxBodyBytesMiddleware(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware emits one completion line per request carrying the client
// IP, status, cache source, resolved model, provider, and duration.
func LoggingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx, meta := withMeta(r.Context())
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r.WithContext(ctx))

			logCtx := zerolog.Ctx(ctx).With().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("ip", GetClientIP(ctx)).
				Int("status", wrapped.statusCode).
				Str("duration", formatDuration(time.Since(start)))
			if meta.CacheSource != "" {
				logCtx = logCtx.Str("cache", meta.CacheSource)
			}
			if meta.Model != "" {
				logCtx = logCtx.Str("model", meta.Model)
			}
			if meta.Provider != "" {
				logCtx = logCtx.Str("provider", meta.Provider)
			}

			logger := logCtx.Logger()
			switch {
			case wrapped.statusCode >= 500:
				logger.Error().Msgf("%s %s", r.Method, r.URL.Path)
			case wrapped.statusCode >= 400:
				logger.Warn().Msgf("%s %s", r.Method, r.URL.Path)
			default:
				logger.Info().Msgf("%s %s", r.Method, r.URL.Path)
			}
		})
	}
}

// formatDuration picks dynamic units so fast requests read in µs and long
// streams in seconds.
func formatDuration(duration time.Duration) string {
	if duration <= 0 {
		return "0s"
	}
	duration = duration.Round(time.Microsecond)
	switch {
	case duration < time.Millisecond:
		return fmt.Sprintf("%dµs", duration.Microseconds())
	case duration < time.Second:
		return fmt.Sprintf("%.2fms", float64(duration)/float64(time.Millisecond))
	case duration < time.Minute:
		return fmt.Sprintf("%.2fs", duration.Seconds())
	default:
		return duration.Truncate(time.Second).String()
	}
}

// responseWriter captures the status code for completion logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
