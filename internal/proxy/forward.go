package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/sjson"

	"github.com/TnZzZHlp/ai-forward/internal/router"
)

// NewHTTPClient builds the shared upstream client: 10s connect timeout and
// no overall deadline, since streamed completions may run for minutes.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		},
	}
}

// UpstreamError reports a failed upstream call with the provider attached,
// matching the {"error", "provider"} body surfaced to clients.
type UpstreamError struct {
	Message  string
	Provider string
	Status   int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Message)
}

// Forwarder dispatches completion requests to the selected upstream.
type Forwarder struct {
	client *http.Client
}

// NewForwarder creates a Forwarder around the shared client.
func NewForwarder(client *http.Client) *Forwarder {
	return &Forwarder{client: client}
}

// Forward rewrites the payload's model field and POSTs it to the selection's
// provider. Non-2xx responses and transport failures return *UpstreamError;
// on success the caller owns the response body.
func (f *Forwarder) Forward(ctx context.Context, sel router.Selection, body []byte) (*http.Response, error) {
	payload, err := sjson.SetBytes(body, "model", sel.Model)
	if err != nil {
		return nil, &UpstreamError{Message: err.Error(), Provider: sel.Provider.Name}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		sel.Provider.CompletionsURL(), bytes.NewReader(payload))
	if err != nil {
		return nil, &UpstreamError{Message: err.Error(), Provider: sel.Provider.Name}
	}
	req.Header.Set("Authorization", "Bearer "+sel.Key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Message: err.Error(), Provider: sel.Provider.Name}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

		logger := zerolog.Ctx(ctx)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			// The key is rejected upstream; the operator must rotate it.
			logger.Error().
				Str("provider", sel.Provider.Name).
				Str("key", shortID(sel.Key)).
				Int("status", resp.StatusCode).
				Msg("provider rejected key as invalid")
		}
		logger.Error().
			Str("provider", sel.Provider.Name).
			Int("status", resp.StatusCode).
			Str("body", string(text)).
			Msg("upstream request failed")

		return nil, &UpstreamError{
			Message:  string(text),
			Provider: sel.Provider.Name,
			Status:   resp.StatusCode,
		}
	}

	return resp, nil
}
