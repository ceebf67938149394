package proxy

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Server wraps http.Server with gateway-appropriate timeouts.
type Server struct {
	httpServer *http.Server
	addr       string
}

// NewServer creates a Server. There is no write timeout: streamed
// completions may run for many minutes. ReadHeaderTimeout still guards
// against slow clients.
//
// With enableHTTP2, HTTP/2 cleartext (h2c) is served on the same listener.
func NewServer(addr string, handler http.Handler, enableHTTP2 bool) *Server {
	finalHandler := handler
	if enableHTTP2 {
		h2s := &http2.Server{}
		finalHandler = h2c.NewHandler(handler, h2s)
	}

	return &Server{
		addr: addr,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           finalHandler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// ListenAndServe starts the server (blocks).
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting new connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
