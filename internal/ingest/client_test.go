package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cortexportrait/internal/viseme"
)

type call struct {
	method string
	id     string
	args   []any
}

type recorder struct {
	mu    sync.Mutex
	calls []call
}

func (r *recorder) add(method, id string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{method, id, args})
}

func (r *recorder) snapshot() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]call(nil), r.calls...)
}

func (r *recorder) methods() []string {
	var out []string
	for _, c := range r.snapshot() {
		out = append(out, c.method)
	}
	return out
}

func (r *recorder) ApplyLabel(id, label string) bool { r.add("ApplyLabel", id, label); return true }
func (r *recorder) SetThinking(id string) bool       { r.add("SetThinking", id); return true }
func (r *recorder) SetAffinity(id string, a float64) bool {
	r.add("SetAffinity", id, a)
	return true
}
func (r *recorder) ApplyDialogue(id, text string) bool { r.add("ApplyDialogue", id, text); return true }
func (r *recorder) PushPhonemes(id string, a viseme.Alphabet, s []string) {
	r.add("PushPhonemes", id, a, s)
}
func (r *recorder) PushVisemes(id string, codes []viseme.Code) { r.add("PushVisemes", id, codes) }
func (r *recorder) PushAzureVisemes(id string, ids []int)      { r.add("PushAzureVisemes", id, ids) }
func (r *recorder) PushOpenness(id string, v float64)          { r.add("PushOpenness", id, v) }
func (r *recorder) Speak(id, text string)                      { r.add("Speak", id, text) }

func TestReader_Next(t *testing.T) {
	stream := ": keep-alive\n" +
		"event: emotion\n" +
		"id: 7\n" +
		"retry: 1500\n" +
		"data: {\"primary\":\n" +
		"data: \"joy\"}\n" +
		"\n" +
		"\n" +
		"data: plain\r\n" +
		"\r\n" +
		"event: tail\n" +
		"data:no-space"

	r := NewReader(strings.NewReader(stream))

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "emotion", ev.Type)
	assert.Equal(t, "7", ev.ID)
	assert.Equal(t, 1500, ev.Retry)
	assert.Equal(t, "{\"primary\":\n\"joy\"}", ev.Data)

	ev, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "message", ev.Type)
	assert.Equal(t, "plain", ev.Data)

	ev, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "tail", ev.Type)
	assert.Equal(t, "no-space", ev.Data)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestClient_HandleEvents(t *testing.T) {
	rec := &recorder{}
	c := NewClient(Config{URL: "http://unused", Character: "hero"}, rec, zerolog.Nop())

	c.Handle(&Event{Type: "emotion", Data: `{"primary":"joy"}`})
	c.Handle(&Event{Type: "phoneme", Data: `{"phoneme":"AA1","character":"sidekick"}`})
	c.Handle(&Event{Type: "visemes", Data: `{"visemes":["Large","oshape"],"azure":[21]}`})
	c.Handle(&Event{Type: "openness", Data: `{"value":0.4}`})
	c.Handle(&Event{Type: "affinity", Data: `{"value":-20}`})
	c.Handle(&Event{Type: "dialogue", Data: `{"text":"thank you"}`})
	c.Handle(&Event{Type: "speak", Data: `{"text":"hello"}`})
	c.Handle(&Event{Type: "emotion", Data: `not json`})
	c.Handle(&Event{Type: "gaze", Data: `{}`})

	calls := rec.snapshot()
	require.Len(t, calls, 8)

	assert.Equal(t, call{"ApplyLabel", "hero", []any{"joy"}}, calls[0])
	assert.Equal(t, call{"PushPhonemes", "sidekick", []any{viseme.AlphabetARPABET, []string{"AA1"}}}, calls[1])
	assert.Equal(t, call{"PushAzureVisemes", "hero", []any{[]int{21}}}, calls[2])
	assert.Equal(t, call{"PushVisemes", "hero", []any{[]viseme.Code{viseme.Large, viseme.OShape}}}, calls[3])
	assert.Equal(t, "PushOpenness", calls[4].method)
	assert.Equal(t, call{"SetAffinity", "hero", []any{-20.0}}, calls[5])
	assert.Equal(t, "ApplyDialogue", calls[6].method)
	assert.Equal(t, "Speak", calls[7].method)
}

func TestClient_ApplyStateDeduplicatesEmotion(t *testing.T) {
	rec := &recorder{}
	c := NewClient(Config{URL: "http://unused"}, rec, zerolog.Nop())
	aff := 70.0

	c.ApplyState(&State{Emotion: Emotion{Primary: "happy"}, Affinity: &aff})
	c.ApplyState(&State{Emotion: Emotion{Primary: "Happy"}})
	c.ApplyState(&State{IsThinking: true})
	c.ApplyState(&State{IsThinking: true})
	c.ApplyState(&State{Emotion: Emotion{Primary: "happy"}, IsSpeaking: true, Intensity: 0.6})

	assert.Equal(t, []string{
		"SetAffinity",
		"ApplyLabel",
		"SetThinking",
		"ApplyLabel",
		"PushOpenness",
	}, rec.methods())
	for _, cl := range rec.snapshot() {
		assert.Equal(t, "default", cl.id)
	}
}

func TestClient_StreamsAndReconnects(t *testing.T) {
	var (
		mu          sync.Mutex
		connections int
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/avatar/state", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		connections++
		n := connections
		mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "retry: 10\n\n")
		fmt.Fprintf(w, "event: affinity\ndata: {\"value\":%d}\n\n", n)
		w.(http.Flusher).Flush()
	})
	mux.HandleFunc("/api/v1/avatar/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/v1/avatar/current", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"character":"hero","emotion":{"primary":"sad"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rec := &recorder{}
	c := NewClient(Config{URL: srv.URL + "/", MinBackoff: 10 * time.Millisecond}, rec, zerolog.Nop())

	ctx := context.Background()
	require.NoError(t, c.Health(ctx))
	s, err := c.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sad", s.Emotion.Primary)

	require.NoError(t, c.Connect(ctx))
	assert.Error(t, c.Connect(ctx))

	// a closed stream reconnects after the server's retry hint
	require.Eventually(t, func() bool {
		n := 0
		for _, cl := range rec.snapshot() {
			if cl.method == "SetAffinity" {
				n++
			}
		}
		return n >= 2
	}, 2*time.Second, 10*time.Millisecond)

	c.Disconnect()
	assert.False(t, c.IsConnected())
	assert.Equal(t, call{"ApplyLabel", "hero", []any{"sad"}}, rec.snapshot()[0])
}

func TestClient_BadUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL}, &recorder{}, zerolog.Nop())
	assert.Error(t, c.Health(context.Background()))

	_, err := c.stream(context.Background())
	assert.ErrorContains(t, err, "unexpected status")

	assert.Error(t, NewClient(Config{}, &recorder{}, zerolog.Nop()).Connect(context.Background()))
}

type sink struct {
	mu      sync.Mutex
	chunks  []string
	stopped []string
}

func (s *sink) FeedBase64(id, data string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data == "!" {
		return 0, fmt.Errorf("bad chunk")
	}
	s.chunks = append(s.chunks, id+":"+data)
	return 0.5, nil
}

func (s *sink) Stop(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = append(s.stopped, id)
}

func TestClient_RoutesAudio(t *testing.T) {
	c := NewClient(Config{URL: "http://unused", Character: "hero"}, &recorder{}, zerolog.Nop())

	// no sink: dropped silently
	c.Handle(&Event{Type: "audio", Data: `{"data":"AAAA"}`})

	s := &sink{}
	c.SetAudioSink(s)
	c.Handle(&Event{Type: "audio", Data: `{"data":"AAAA"}`})
	c.Handle(&Event{Type: "audio", Data: `{"data":"!"}`})
	c.Handle(&Event{Type: "audio", Data: `{"character":"sidekick","data":"BBBB","end":true}`})

	assert.Equal(t, []string{"hero:AAAA", "sidekick:BBBB"}, s.chunks)
	assert.Equal(t, []string{"sidekick"}, s.stopped)
}
