package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/TnZzZHlp/ai-forward/internal/cache"
	"github.com/TnZzZHlp/ai-forward/internal/config"
	"github.com/TnZzZHlp/ai-forward/internal/router"
)

// Mode selects how a forwarded response is shaped.
type Mode int

const (
	// ModeChat relays completions verbatim.
	ModeChat Mode = iota
	// ModeNoThink strips the <think> preface from thinking models.
	ModeNoThink
	// ModeEmbeddings forwards with model rewrite only; no cache.
	ModeEmbeddings
)

// Handler orchestrates a single completion request: cache lookup, provider
// selection, upstream dispatch, stream shaping, and the async cache write.
type Handler struct {
	runtime   config.RuntimeConfig
	selector  *router.Selector
	exchanges *cache.Layered
	forwarder *Forwarder
}

// NewHandler wires the request pipeline.
func NewHandler(runtime config.RuntimeConfig, selector *router.Selector, exchanges *cache.Layered, forwarder *Forwarder) *Handler {
	return &Handler{
		runtime:   runtime,
		selector:  selector,
		exchanges: exchanges,
		forwarder: forwarder,
	}
}

// Chat handles POST /v1/chat/completions.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, ModeChat)
}

// NoThink handles POST /v1/chat/no_think_completions.
func (h *Handler) NoThink(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, ModeNoThink)
}

// Embeddings handles POST /v1/embeddings.
func (h *Handler) Embeddings(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, ModeEmbeddings)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, mode Mode) {
	logger := zerolog.Ctx(r.Context())

	body, err := io.ReadAll(r.Body)
	if err != nil {
		if IsBodyTooLargeError(err) {
			WriteBodyTooLargeError(w)
			return
		}
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !gjson.ValidBytes(body) {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	model := gjson.GetBytes(body, "model").String()
	if model == "" {
		WriteError(w, http.StatusBadRequest, msgMissingModel)
		return
	}

	streaming := gjson.GetBytes(body, "stream").Bool()
	meta := metaFrom(r.Context())

	var messages string
	if mode != ModeEmbeddings {
		if m := gjson.GetBytes(body, "messages"); m.Exists() {
			messages = m.Raw
		}
	}

	if messages != "" {
		if cached, source, lerr := h.exchanges.Lookup(r.Context(), messages); lerr == nil {
			if meta != nil {
				meta.CacheSource = source
			}
			if streaming {
				if werr := writeCachedStream(w, cached); werr != nil {
					logger.Debug().Err(werr).Msg("cache replay interrupted")
				}
			} else {
				writeCachedJSON(w, cached)
			}
			return
		} else if !errors.Is(lerr, cache.ErrNotFound) {
			logger.Error().Err(lerr).Msg("cache lookup failed")
		}
	}

	sel, err := h.selector.Select(h.runtime.Get(), model)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if meta != nil {
		meta.Model = sel.Model
		meta.Provider = sel.Provider.Name
	}

	resp, err := h.forwarder.Forward(r.Context(), sel, body)
	if err != nil {
		var upstream *UpstreamError
		if errors.As(err, &upstream) {
			WriteProviderError(w, upstream.Message, upstream.Provider)
			return
		}
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer resp.Body.Close()

	if mode == ModeEmbeddings {
		h.copyThrough(w, resp)
		return
	}

	if streaming {
		SetSSEHeaders(w.Header())
		w.WriteHeader(http.StatusOK)

		var text string
		var relayErr error
		if mode == ModeNoThink && sel.Think {
			text, relayErr = relayThinkStrip(w, resp.Body)
		} else {
			text, relayErr = relayPassthrough(w, resp.Body)
		}
		if relayErr != nil {
			// Client gone or upstream broke mid-stream; the partial
			// exchange is never cached.
			logger.Debug().Err(relayErr).Msg("stream ended early")
			return
		}
		h.recordExchange(messages, text)
		return
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if mode == ModeNoThink && sel.Think {
		respBody = StripThinking(respBody)
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(respBody); err != nil {
		logger.Debug().Err(err).Msg("client write failed")
		return
	}

	h.recordExchange(messages, gjson.GetBytes(respBody, msgContentPath).String())
}

// recordExchange writes the completed exchange to the cache without blocking
// the response.
func (h *Handler) recordExchange(messages, text string) {
	if messages == "" || text == "" {
		return
	}
	go h.exchanges.Record(context.Background(), messages, text)
}

// copyThrough relays the upstream response without shaping or caching.
func (h *Handler) copyThrough(w http.ResponseWriter, resp *http.Response) {
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = contentTypeJSON
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}
