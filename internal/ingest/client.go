// Package ingest follows an upstream character-state stream over SSE and
// applies it to the portrait engine.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexportrait/internal/viseme"
)

// Target receives decoded inputs. portrait.Director satisfies it.
type Target interface {
	ApplyLabel(id, label string) bool
	SetThinking(id string) bool
	SetAffinity(id string, affinity float64) bool
	ApplyDialogue(id, text string) bool
	PushPhonemes(id string, alphabet viseme.Alphabet, symbols []string)
	PushVisemes(id string, codes []viseme.Code)
	PushAzureVisemes(id string, ids []int)
	PushOpenness(id string, value float64)
	Speak(id, text string)
}

// AudioSink receives streamed speech audio. audio.Playback satisfies it.
type AudioSink interface {
	FeedBase64(id, audioBase64 string) (float64, error)
	Stop(id string)
}

// Config locates the upstream stream.
type Config struct {
	Enabled      bool          `mapstructure:"enabled"`
	URL          string        `mapstructure:"url"`
	StreamPath   string        `mapstructure:"stream_path"`
	SnapshotPath string        `mapstructure:"snapshot_path"`
	HealthPath   string        `mapstructure:"health_path"`
	Character    string        `mapstructure:"character"` // used when an event names none
	Alphabet     string        `mapstructure:"alphabet"`
	MinBackoff   time.Duration `mapstructure:"min_backoff"`
	MaxBackoff   time.Duration `mapstructure:"max_backoff"`
}

func DefaultConfig() Config {
	return Config{
		URL:          "http://127.0.0.1:8080",
		StreamPath:   "/api/v1/avatar/state",
		SnapshotPath: "/api/v1/avatar/current",
		HealthPath:   "/api/v1/avatar/health",
		Character:    "default",
		Alphabet:     string(viseme.AlphabetARPABET),
		MinBackoff:   3 * time.Second,
		MaxBackoff:   60 * time.Second,
	}
}

// Emotion is the upstream emotional state. Primary is a free-text label.
type Emotion struct {
	Character string  `json:"character,omitempty"`
	Primary   string  `json:"primary"`
	Valence   float64 `json:"valence"`
	Arousal   float64 `json:"arousal"`
}

// State is a full upstream snapshot.
type State struct {
	Character  string    `json:"character,omitempty"`
	Phoneme    string    `json:"phoneme"`
	Alphabet   string    `json:"alphabet,omitempty"`
	Emotion    Emotion   `json:"emotion"`
	Intensity  float64   `json:"intensity"`
	IsSpeaking bool      `json:"is_speaking"`
	IsThinking bool      `json:"is_thinking"`
	Affinity   *float64  `json:"affinity,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	SessionID  string    `json:"session_id,omitempty"`
}

type phonemeEvent struct {
	Character string   `json:"character,omitempty"`
	Phoneme   string   `json:"phoneme"`
	Phonemes  []string `json:"phonemes,omitempty"`
	Alphabet  string   `json:"alphabet,omitempty"`
}

type visemeEvent struct {
	Character string   `json:"character,omitempty"`
	Visemes   []string `json:"visemes,omitempty"`
	Azure     []int    `json:"azure,omitempty"`
}

type valueEvent struct {
	Character string  `json:"character,omitempty"`
	Value     float64 `json:"value"`
}

type audioEvent struct {
	Character string `json:"character,omitempty"`
	Data      string `json:"data"` // base64 PCM
	End       bool   `json:"end,omitempty"`
}

type textEvent struct {
	Character string `json:"character,omitempty"`
	Text      string `json:"text"`
}

// Client keeps an SSE connection to the upstream and reconnects with
// backoff.
type Client struct {
	cfg    Config
	target Target
	audio  AudioSink
	logger zerolog.Logger
	client *http.Client

	mu        sync.RWMutex
	connected bool
	cancel    context.CancelFunc
	done      chan struct{}
	// last applied emotion label per character; states repeat it every push
	emotions map[string]string
}

func NewClient(cfg Config, target Target, logger zerolog.Logger) *Client {
	d := DefaultConfig()
	if cfg.StreamPath == "" {
		cfg.StreamPath = d.StreamPath
	}
	if cfg.SnapshotPath == "" {
		cfg.SnapshotPath = d.SnapshotPath
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = d.HealthPath
	}
	if cfg.Character == "" {
		cfg.Character = d.Character
	}
	if cfg.Alphabet == "" {
		cfg.Alphabet = d.Alphabet
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = d.MinBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = max(d.MaxBackoff, cfg.MinBackoff)
	}
	cfg.URL = strings.TrimSuffix(cfg.URL, "/")

	return &Client{
		cfg:      cfg,
		target:   target,
		logger:   logger.With().Str("component", "ingest").Logger(),
		client:   &http.Client{Timeout: 0}, // streams stay open
		emotions: make(map[string]string),
	}
}

// SetAudioSink routes "audio" events. Without a sink they are dropped.
func (c *Client) SetAudioSink(sink AudioSink) {
	c.mu.Lock()
	c.audio = sink
	c.mu.Unlock()
}

func (c *Client) audioSink() AudioSink {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.audio
}

// Connect starts following the stream in the background.
func (c *Client) Connect(ctx context.Context) error {
	if c.cfg.URL == "" {
		return errors.New("ingest: no upstream url")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return errors.New("ingest: already connected")
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		c.connectLoop(ctx)
	}(c.done)
	return nil
}

// Disconnect stops the stream and waits for the loop to exit.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.setConnected(false)
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *Client) connectLoop(ctx context.Context) {
	backoff := c.cfg.MinBackoff
	failures := 0

	for {
		retry, err := c.stream(ctx)
		if ctx.Err() != nil {
			return
		}
		c.setConnected(false)

		if err == nil {
			// clean end of stream; reconnect promptly
			backoff = c.cfg.MinBackoff
			failures = 0
		} else {
			failures++
			switch {
			case failures < 3:
				c.logger.Warn().Err(err).Msg("Upstream stream failed, reconnecting")
			case failures == 3:
				c.logger.Warn().Err(err).Int("failures", failures).
					Msg("Upstream stream not available, will retry less frequently")
				backoff = c.cfg.MaxBackoff
			default:
				c.logger.Debug().Int("failures", failures).Msg("Upstream stream still unavailable")
			}
		}
		if retry > 0 {
			backoff = retry
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if err != nil && backoff < c.cfg.MaxBackoff {
			backoff = min(backoff*2, c.cfg.MaxBackoff)
		}
	}
}

// stream reads one connection until it ends. It returns the last retry
// hint the server sent.
func (c *Client) stream(ctx context.Context) (time.Duration, error) {
	url := c.cfg.URL + c.cfg.StreamPath
	c.logger.Info().Str("url", url).Msg("Connecting to upstream state stream")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		return 0, fmt.Errorf("unexpected content-type: %s (expected text/event-stream)", ct)
	}

	c.setConnected(true)
	c.logger.Info().Msg("Connected to upstream state stream")

	var retry time.Duration
	r := NewReader(resp.Body)
	for {
		ev, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return retry, nil
			}
			return retry, err
		}
		if ev.Retry > 0 {
			retry = time.Duration(ev.Retry) * time.Millisecond
		}
		c.Handle(ev)
	}
}

func (c *Client) character(id string) string {
	if id == "" {
		return c.cfg.Character
	}
	return id
}

func (c *Client) alphabet(a string) viseme.Alphabet {
	if a == "" {
		a = c.cfg.Alphabet
	}
	return viseme.Alphabet(strings.ToLower(a))
}

// Handle applies one event. Malformed payloads are logged and skipped.
func (c *Client) Handle(ev *Event) {
	decode := func(v any) bool {
		if err := json.Unmarshal([]byte(ev.Data), v); err != nil {
			c.logger.Warn().Err(err).Str("type", ev.Type).Msg("Failed to parse upstream event")
			return false
		}
		return true
	}

	switch ev.Type {
	case "state":
		var s State
		if decode(&s) {
			c.ApplyState(&s)
		}

	case "emotion":
		var e Emotion
		if decode(&e) {
			c.applyEmotion(c.character(e.Character), e.Primary, false)
		}

	case "phoneme":
		var p phonemeEvent
		if decode(&p) {
			symbols := p.Phonemes
			if p.Phoneme != "" {
				symbols = append([]string{p.Phoneme}, symbols...)
			}
			if len(symbols) > 0 {
				c.target.PushPhonemes(c.character(p.Character), c.alphabet(p.Alphabet), symbols)
			}
		}

	case "visemes":
		var v visemeEvent
		if decode(&v) {
			id := c.character(v.Character)
			if len(v.Azure) > 0 {
				c.target.PushAzureVisemes(id, v.Azure)
			}
			if len(v.Visemes) > 0 {
				codes := make([]viseme.Code, len(v.Visemes))
				for i, name := range v.Visemes {
					codes[i] = viseme.Parse(name)
				}
				c.target.PushVisemes(id, codes)
			}
		}

	case "openness":
		var v valueEvent
		if decode(&v) {
			c.target.PushOpenness(c.character(v.Character), v.Value)
		}

	case "affinity":
		var v valueEvent
		if decode(&v) {
			c.target.SetAffinity(c.character(v.Character), v.Value)
		}

	case "dialogue":
		var t textEvent
		if decode(&t) {
			c.target.ApplyDialogue(c.character(t.Character), t.Text)
		}

	case "speak":
		var t textEvent
		if decode(&t) {
			c.target.Speak(c.character(t.Character), t.Text)
		}

	case "audio":
		var a audioEvent
		if !decode(&a) {
			return
		}
		sink := c.audioSink()
		if sink == nil {
			return
		}
		id := c.character(a.Character)
		if a.Data != "" {
			if _, err := sink.FeedBase64(id, a.Data); err != nil {
				c.logger.Debug().Err(err).Str("character", id).Msg("Dropped audio chunk")
			}
		}
		if a.End {
			sink.Stop(id)
		}

	default:
		c.logger.Debug().Str("type", ev.Type).Msg("Unknown upstream event type")
	}
}

// ApplyState applies a full snapshot.
func (c *Client) ApplyState(s *State) {
	id := c.character(s.Character)

	if s.Affinity != nil {
		c.target.SetAffinity(id, *s.Affinity)
	}
	if s.IsThinking && !s.IsSpeaking {
		c.applyEmotion(id, "", true)
	} else {
		c.applyEmotion(id, s.Emotion.Primary, false)
	}
	if s.Phoneme != "" {
		c.target.PushPhonemes(id, c.alphabet(s.Alphabet), []string{s.Phoneme})
	} else if s.IsSpeaking && s.Intensity > 0 {
		c.target.PushOpenness(id, s.Intensity)
	}
}

func (c *Client) applyEmotion(id, label string, thinking bool) {
	key := strings.ToLower(strings.TrimSpace(label))
	if thinking {
		key = "\x00thinking"
	}

	c.mu.Lock()
	prev, seen := c.emotions[id]
	c.emotions[id] = key
	c.mu.Unlock()
	if seen && prev == key {
		return
	}

	switch {
	case thinking:
		c.target.SetThinking(id)
	case key != "":
		c.target.ApplyLabel(id, label)
	}
}

// Health checks the upstream health endpoint.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.get(ctx, c.cfg.HealthPath)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// Snapshot fetches the current upstream state and applies it.
func (c *Client) Snapshot(ctx context.Context) (*State, error) {
	resp, err := c.get(ctx, c.cfg.SnapshotPath)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var s State
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	c.ApplyState(&s)
	return &s, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return resp, nil
}
