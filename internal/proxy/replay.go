package proxy

import (
	"encoding/json"
	"net/http"
)

// Cached exchanges are replayed in the same shapes an upstream would use:
// one complete message for non-streaming requests, a single delta event plus
// the terminal [DONE] frame for streaming requests.

type replayMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type replayCompletion struct {
	Choices []struct {
		Message replayMessage `json:"message"`
	} `json:"choices"`
}

type replayChunk struct {
	Choices []struct {
		Delta replayMessage `json:"delta"`
	} `json:"choices"`
}

// writeCachedJSON replays a cached completion as a non-streaming body.
func writeCachedJSON(w http.ResponseWriter, cached string) {
	body := replayCompletion{
		Choices: []struct {
			Message replayMessage `json:"message"`
		}{
			{Message: replayMessage{Role: "assistant", Content: cached}},
		},
	}
	writeJSON(w, http.StatusOK, body)
}

// writeCachedStream replays a cached completion as an SSE stream.
func writeCachedStream(w http.ResponseWriter, cached string) error {
	SetSSEHeaders(w.Header())
	w.WriteHeader(http.StatusOK)

	chunk := replayChunk{
		Choices: []struct {
			Delta replayMessage `json:"delta"`
		}{
			{Delta: replayMessage{Role: "assistant", Content: cached}},
		},
	}
	payload, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	if err := writeSSEData(w, payload); err != nil {
		return err
	}
	return writeSSEData(w, []byte(doneMarker))
}
