package proxy

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	contentTypeSSE  = "text/event-stream"
	contentTypeJSON = "application/json"

	doneMarker = "[DONE]"

	thinkCloseMarker = "</think>\n\n"
	thinkOpenPrefix  = "<th"

	deltaContentPath = "choices.0.delta.content"
	msgContentPath   = "choices.0.message.content"
)

// SetSSEHeaders sets the response headers for a server-sent event stream.
func SetSSEHeaders(h http.Header) {
	h.Set("Content-Type", contentTypeSSE)
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("X-Accel-Buffering", "no")
	h.Set("Connection", "keep-alive")
}

// writeSSEData writes one "data: <payload>\n\n" frame and flushes.
func writeSSEData(w http.ResponseWriter, payload []byte) error {
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// sseDataPayload extracts the payload of a "data:" line, without line endings.
func sseDataPayload(line []byte) (string, bool) {
	line = bytes.TrimRight(line, "\r\n")
	value, found := bytes.CutPrefix(line, []byte("data:"))
	if !found {
		return "", false
	}
	return string(bytes.TrimPrefix(value, []byte(" "))), true
}

// relayPassthrough copies the upstream SSE stream to the client verbatim
// while accumulating the assistant text from delta.content fragments.
// A data payload that fails to parse as JSON ends accumulation but the
// stream keeps relaying.
func relayPassthrough(w http.ResponseWriter, upstream io.Reader) (string, error) {
	flusher, _ := w.(http.Flusher)
	reader := bufio.NewReader(upstream)

	var text strings.Builder
	collecting := true

	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			if _, werr := w.Write(line); werr != nil {
				return text.String(), werr
			}
			if flusher != nil {
				flusher.Flush()
			}

			if collecting {
				if payload, ok := sseDataPayload(line); ok && payload != doneMarker {
					if !gjson.Valid(payload) {
						collecting = false
					} else if content := gjson.Get(payload, deltaContentPath); content.Exists() {
						text.WriteString(content.String())
					}
				}
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return text.String(), nil
			}
			return text.String(), err
		}
	}
}

// relayThinkStrip relays the upstream SSE stream while suppressing the
// model's <think>...</think> preface. While the preface is still open the
// client receives empty-content deltas; once the closing marker (or proof
// there is no preface) arrives, content flows through unchanged.
// Returns the stripped assistant text for caching.
func relayThinkStrip(w http.ResponseWriter, upstream io.Reader) (string, error) {
	reader := bufio.NewReader(upstream)

	var text strings.Builder
	var buffer strings.Builder
	stillThinking := true
	collecting := true

	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			if werr := forwardThinkLine(w, line, &buffer, &text, &stillThinking, &collecting); werr != nil {
				return text.String(), werr
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return text.String(), nil
			}
			return text.String(), err
		}
	}
}

func forwardThinkLine(
	w http.ResponseWriter,
	line []byte,
	buffer, text *strings.Builder,
	stillThinking, collecting *bool,
) error {
	payload, ok := sseDataPayload(line)
	if !ok {
		// Comments, event/id fields, and blank separators. Data frames are
		// re-emitted with their own separators, so drop the originals.
		trimmed := bytes.TrimRight(line, "\r\n")
		if len(trimmed) == 0 {
			return nil
		}
		_, err := w.Write(line)
		return err
	}

	if payload == doneMarker {
		return writeSSEData(w, []byte(doneMarker))
	}

	if !gjson.Valid(payload) {
		*collecting = false
		return writeSSEData(w, []byte(payload))
	}

	content := gjson.Get(payload, deltaContentPath)
	if !content.Exists() {
		return writeSSEData(w, []byte(payload))
	}

	if !*stillThinking {
		if *collecting {
			text.WriteString(content.String())
		}
		return writeSSEData(w, []byte(payload))
	}

	buffer.WriteString(content.String())
	buffered := buffer.String()

	emit := ""
	if idx := strings.Index(buffered, thinkCloseMarker); idx >= 0 {
		*stillThinking = false
		emit = buffered[idx+len(thinkCloseMarker):]
	} else if len(buffered) > 3 && !strings.HasPrefix(buffered, thinkOpenPrefix) {
		// No thinking preface after all; release everything buffered.
		*stillThinking = false
		emit = buffered
	}

	if *collecting {
		text.WriteString(emit)
	}

	modified, err := sjson.Set(payload, deltaContentPath, emit)
	if err != nil {
		return writeSSEData(w, []byte(payload))
	}
	return writeSSEData(w, []byte(modified))
}

// StripThinking removes the <think> preface from a non-streaming completion
// body: the message content is split on the closing marker and the last
// segment kept. Bodies without the expected shape pass through unchanged.
func StripThinking(body []byte) []byte {
	content := gjson.GetBytes(body, msgContentPath)
	if !content.Exists() {
		return body
	}

	parts := strings.Split(content.String(), thinkCloseMarker)
	stripped := parts[len(parts)-1]

	modified, err := sjson.SetBytes(body, msgContentPath, stripped)
	if err != nil {
		return body
	}
	return modified
}
