// Package proxy implements the HTTP gateway for ai-forward.
package proxy

import (
	"context"
	"os"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/TnZzZHlp/ai-forward/internal/config"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// SetupLogger configures the global zerolog logger from config.
// Console formatting is used when writing to a TTY or when pretty is forced;
// otherwise output is JSON. A file path in Output appends to that file.
func SetupLogger(cfg config.LogConfig) (zerolog.Logger, error) {
	var out *os.File
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Logger{}, err
		}
		out = f
	}

	var logger zerolog.Logger
	if cfg.Pretty || isatty.IsTerminal(out.Fd()) {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(out).With().Timestamp().Logger()
	}

	logger = logger.Level(cfg.ParseLevel())
	log.Logger = logger
	return logger, nil
}

// AddRequestID stores a request ID in the context, generating one when empty,
// and attaches a logger carrying it.
func AddRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logger := log.Logger.With().Str("req_id", shortID(requestID)).Logger()
	ctx = logger.WithContext(ctx)
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID returns the request ID from the context, or "".
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
