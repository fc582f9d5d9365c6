// Package feed streams portrait frames and engine events to out-of-process
// compositors over websockets.
package feed

import (
	"time"

	"github.com/normanking/cortexportrait/internal/ambient"
	"github.com/normanking/cortexportrait/internal/bus"
	"github.com/normanking/cortexportrait/internal/logging"
	"github.com/normanking/cortexportrait/internal/portrait"
)

// MessageType tags every message on the wire.
type MessageType string

const (
	TypeFrame MessageType = "frame"
	TypeEvent MessageType = "event"
	TypeLog   MessageType = "log"
)

// Message is the JSON envelope sent to clients.
type Message struct {
	Type  MessageType `json:"type"`
	Frame *Frame      `json:"frame,omitempty"`
	Event *Event      `json:"event,omitempty"`
	Log   *Log        `json:"log,omitempty"`
}

type Layer struct {
	Texture string  `json:"texture"`
	Weight  float64 `json:"weight"`
}

type Channel struct {
	Channel string  `json:"channel"`
	Source  string  `json:"source"`
	Texture string  `json:"texture"`
	UseBase bool    `json:"use_base"`
	Layers  []Layer `json:"layers"`
}

type Breath struct {
	OffsetY     float32 `json:"offset_y"`
	Scale       float32 `json:"scale"`
	HeadOffsetY float32 `json:"head_offset_y"`
}

// Frame is the wire form of portrait.Frame.
type Frame struct {
	ID          string    `json:"id"`
	Session     string    `json:"session"`
	CharacterID string    `json:"character"`
	Tick        int64     `json:"tick"`
	Time        time.Time `json:"time"`
	Expression  string    `json:"expression"`
	Variant     int       `json:"variant"`
	CacheKey    string    `json:"cache_key"`
	Transition  float64   `json:"transition"`
	Speaking    bool      `json:"speaking"`
	Viseme      string    `json:"viseme"`
	Openness    float64   `json:"openness"`
	Blink       string    `json:"blink"`
	Contentment bool      `json:"contentment"`
	Breath      Breath    `json:"breath"`
	Channels    []Channel `json:"channels"`
}

type Event struct {
	Type        string         `json:"type"`
	CharacterID string         `json:"character,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// Log is a diagnostic log line from the engine.
type Log struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Component string `json:"component,omitempty"`
	Message   string `json:"message"`
	Data      string `json:"data,omitempty"`
}

// FromFrame converts a frame for the wire.
func FromFrame(f portrait.Frame) *Frame {
	out := &Frame{
		ID:          f.ID.String(),
		Session:     f.Session.String(),
		CharacterID: f.CharacterID,
		Tick:        f.Tick,
		Time:        f.Time,
		Expression:  f.Expression.String(),
		Variant:     f.Variant,
		CacheKey:    f.CacheKey.String(),
		Transition:  f.Transition,
		Speaking:    f.Speaking,
		Viseme:      f.Viseme.String(),
		Openness:    f.Openness,
		Blink:       f.Blink.String(),
		Contentment: f.Contentment,
		Breath: Breath{
			OffsetY:     f.Breath.Offset.Y(),
			Scale:       f.Breath.Scale,
			HeadOffsetY: f.Breath.HeadOffset.Y(),
		},
		Channels: make([]Channel, 0, len(f.Channels)),
	}
	for _, c := range f.Channels {
		out.Channels = append(out.Channels, Channel{
			Channel: c.Channel.String(),
			Source:  string(c.Source),
			Texture: c.Texture,
			UseBase: c.UseBase(),
			Layers:  fromLayers(c.Layers),
		})
	}
	return out
}

func fromLayers(layers []ambient.Layer) []Layer {
	out := make([]Layer, len(layers))
	for i, l := range layers {
		out[i] = Layer{Texture: l.Texture, Weight: l.Weight}
	}
	return out
}

// FromEvent converts a bus event for the wire.
func FromEvent(e bus.Event) *Event {
	return &Event{Type: string(e.Type), CharacterID: e.CharacterID, Data: e.Data}
}

func FromLogEntry(e logging.LogEntry) *Log {
	return &Log{
		Timestamp: e.Timestamp,
		Level:     e.Level,
		Component: e.Component,
		Message:   e.Message,
		Data:      e.Data,
	}
}
