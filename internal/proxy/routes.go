package proxy

import (
	"net/http"

	"github.com/TnZzZHlp/ai-forward/internal/config"
	"github.com/TnZzZHlp/ai-forward/internal/ipban"
)

// SetupRoutes assembles the gateway's routing table.
//
// Protected (bearer + ban check):
//   - POST /v1/chat/completions
//   - POST /v1/chat/no_think_completions
//   - POST /v1/embeddings
//   - GET  /v1/models
//
// Open management endpoints:
//   - GET      /stats
//   - GET/POST /reset
//   - GET      /health
//   - GET      /version
//
// Middleware order: request ID first so all later logs carry it, then the
// completion log line, then body limiting and auth on the protected group.
func SetupRoutes(
	runtime *config.Runtime,
	bans *ipban.Manager,
	handler *Handler,
	admin *Admin,
) http.Handler {
	mux := http.NewServeMux()

	auth := AuthMiddleware(runtime, bans)
	limit := MaxBodyBytesMiddleware(MaxBodySize)

	protect := func(h http.HandlerFunc) http.Handler {
		return limit(auth(h))
	}

	mux.Handle("POST /v1/chat/completions", protect(handler.Chat))
	mux.Handle("POST /v1/chat/no_think_completions", protect(handler.NoThink))
	mux.Handle("POST /v1/embeddings", protect(handler.Embeddings))
	mux.Handle("GET /v1/models", auth(http.HandlerFunc(admin.Models)))

	mux.HandleFunc("GET /stats", admin.Stats)
	mux.HandleFunc("GET /reset", admin.Reset)
	mux.HandleFunc("POST /reset", admin.Reset)
	mux.HandleFunc("GET /health", admin.Health)
	mux.HandleFunc("GET /version", admin.Version)

	var root http.Handler = mux
	root = LoggingMiddleware()(root)
	root = RequestIDMiddleware()(root)
	return root
}
