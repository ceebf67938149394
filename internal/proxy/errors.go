package proxy

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Client-facing authentication messages. These are part of the wire contract
// and must not be reworded.
const (
	msgMissingAuth  = "缺少 Authorization"
	msgInvalidAuth  = "无效的 Authorization"
	msgMissingModel = "缺少 model 字段"

	msgIPBanned = "Your IP has been permanently banned due to multiple failed authentication attempts"
)

// ErrorDetail is the typed error body used for ban and service errors.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// WriteError writes the flat {"error": message} body used by the completion
// endpoints.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// WriteTypedError writes the {"error": {"message", "type"}} body.
func WriteTypedError(w http.ResponseWriter, statusCode int, errorType, message string) {
	writeJSON(w, statusCode, map[string]ErrorDetail{
		"error": {Message: message, Type: errorType},
	})
}

// WriteProviderError surfaces an upstream failure as {"error", "provider"}.
func WriteProviderError(w http.ResponseWriter, message, provider string) {
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error":    message,
		"provider": provider,
	})
}

// IsBodyTooLargeError checks if an error is from http.MaxBytesReader.
func IsBodyTooLargeError(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}

// WriteBodyTooLargeError writes a 413 Request Entity Too Large response.
func WriteBodyTooLargeError(w http.ResponseWriter) {
	WriteError(w, http.StatusRequestEntityTooLarge,
		"request body exceeds the maximum allowed size")
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
