package proxy

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// chunkEvents renders content fragments as an upstream SSE stream.
func chunkEvents(fragments ...string) string {
	var sb strings.Builder
	for _, f := range fragments {
		payload, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{
				{"delta": map[string]any{"content": f}},
			},
		})
		fmt.Fprintf(&sb, "data: %s\n\n", payload)
	}
	sb.WriteString("data: [DONE]\n\n")
	return sb.String()
}

// decodeContents extracts every delta.content from a client-side SSE body.
func decodeContents(t *testing.T, body string) []string {
	t.Helper()

	var contents []string
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		payload, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok || payload == doneMarker {
			continue
		}
		require.True(t, gjson.Valid(payload), "payload %q", payload)
		contents = append(contents, gjson.Get(payload, deltaContentPath).String())
	}
	return contents
}

func TestRelayPassthrough_AccumulatesText(t *testing.T) {
	t.Parallel()

	upstream := chunkEvents("Hel", "lo ", "world")
	rec := httptest.NewRecorder()

	text, err := relayPassthrough(rec, strings.NewReader(upstream))
	require.NoError(t, err)

	assert.Equal(t, "Hello world", text)
	// Passthrough relays the upstream bytes verbatim.
	assert.Equal(t, upstream, rec.Body.String())
}

func TestRelayPassthrough_ParseFailureEndsAccumulation(t *testing.T) {
	t.Parallel()

	upstream := chunkEvents("Hello") +
		"data: not json\n\n" +
		chunkEvents(" ignored")
	rec := httptest.NewRecorder()

	text, err := relayPassthrough(rec, strings.NewReader(upstream))
	require.NoError(t, err)

	// Relay continues but the cache text stops at the malformed event.
	assert.Equal(t, "Hello", text)
	assert.Contains(t, rec.Body.String(), "data: not json")
	assert.Contains(t, rec.Body.String(), "ignored")
}

func TestRelayThinkStrip_SuppressesPreface(t *testing.T) {
	t.Parallel()

	// Preface split across event boundaries.
	upstream := chunkEvents("<think>pla", "n</think>\n\nanswer-1 ", "answer-2")
	rec := httptest.NewRecorder()

	text, err := relayThinkStrip(rec, strings.NewReader(upstream))
	require.NoError(t, err)

	assert.Equal(t, "answer-1 answer-2", text)
	assert.Equal(t, []string{"", "answer-1 ", "answer-2"}, decodeContents(t, rec.Body.String()))
	assert.Contains(t, rec.Body.String(), "data: [DONE]")
}

func TestRelayThinkStrip_NoPreface(t *testing.T) {
	t.Parallel()

	upstream := chunkEvents("ans", "wer here", " done")
	rec := httptest.NewRecorder()

	text, err := relayThinkStrip(rec, strings.NewReader(upstream))
	require.NoError(t, err)

	// "ans" is too short to rule out a preface, so it is withheld; once the
	// buffer proves there is no <think> tag everything is released.
	assert.Equal(t, "answer here done", text)
	assert.Equal(t, []string{"", "answer here", " done"}, decodeContents(t, rec.Body.String()))
}

func TestRelayThinkStrip_UnclosedPrefaceStaysBuffered(t *testing.T) {
	t.Parallel()

	upstream := chunkEvents("<think>still", " going", " and going")
	rec := httptest.NewRecorder()

	text, err := relayThinkStrip(rec, strings.NewReader(upstream))
	require.NoError(t, err)

	// The closing marker never arrives: every delta is empty.
	assert.Equal(t, "", text)
	assert.Equal(t, []string{"", "", ""}, decodeContents(t, rec.Body.String()))
}

func TestRelayThinkStrip_EventWithoutContentPassesThrough(t *testing.T) {
	t.Parallel()

	upstream := "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n" +
		chunkEvents("<think>x</think>\n\nok")
	rec := httptest.NewRecorder()

	text, err := relayThinkStrip(rec, strings.NewReader(upstream))
	require.NoError(t, err)

	assert.Equal(t, "ok", text)
	assert.Contains(t, rec.Body.String(), `"role":"assistant"`)
}

func TestStripThinking_NonStreaming(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"with preface", "<think>plan</think>\n\nanswer", "answer"},
		{"no preface", "plain answer", "plain answer"},
		{"multiple markers", "<think>a</think>\n\nmid</think>\n\nlast", "last"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			body, _ := json.Marshal(map[string]any{
				"choices": []map[string]any{
					{"message": map[string]any{"role": "assistant", "content": tt.content}},
				},
			})
			stripped := StripThinking(body)
			assert.Equal(t, tt.want, gjson.GetBytes(stripped, msgContentPath).String())
		})
	}
}

func TestStripThinking_UnexpectedShape(t *testing.T) {
	t.Parallel()

	body := []byte(`{"object":"error"}`)
	assert.Equal(t, body, StripThinking(body))
}

func TestRelayThinkStrip_ArbitraryChunking(t *testing.T) {
	t.Parallel()

	const full = "<think>some plan here</think>\n\nthe final answer"
	const want = "the final answer"

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	properties.Property("stripped text is chunking-independent", prop.ForAll(
		func(cuts []int) bool {
			fragments := splitAt(full, cuts)
			rec := httptest.NewRecorder()
			text, err := relayThinkStrip(rec, strings.NewReader(chunkEvents(fragments...)))
			return err == nil && text == want
		},
		gen.SliceOf(gen.IntRange(1, len(full)-1)),
	))
	properties.TestingRun(t)
}

// splitAt cuts s at the given (possibly duplicated, unordered) positions.
func splitAt(s string, cuts []int) []string {
	marks := make(map[int]struct{}, len(cuts))
	for _, c := range cuts {
		if c > 0 && c < len(s) {
			marks[c] = struct{}{}
		}
	}

	var fragments []string
	start := 0
	for i := 1; i < len(s); i++ {
		if _, ok := marks[i]; ok {
			fragments = append(fragments, s[start:i])
			start = i
		}
	}
	return append(fragments, s[start:])
}
