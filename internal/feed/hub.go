package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/cortexportrait/internal/bus"
	"github.com/normanking/cortexportrait/internal/logging"
	"github.com/normanking/cortexportrait/internal/portrait"
)

// Config tunes the hub.
type Config struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		SendBuffer:   64,
		WriteTimeout: 5 * time.Second,
		PingInterval: 30 * time.Second,
	}
}

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	character string // empty subscribes to every character
	closed    int32
	once      sync.Once
}

func (c *client) wants(characterID string) bool {
	return c.character == "" || characterID == "" || c.character == characterID
}

// Hub fans frames and events out to websocket clients. Slow clients drop
// messages instead of stalling the update loop.
type Hub struct {
	cfg      Config
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	dropped atomic.Int64
}

func NewHub(cfg Config, logger zerolog.Logger) *Hub {
	d := DefaultConfig()
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = d.SendBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = d.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = d.PingInterval
	}
	return &Hub{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// compositors connect from localhost tools and browser sources
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request. The optional "character" query parameter
// limits the stream to one character.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		conn:      conn,
		send:      make(chan []byte, h.cfg.SendBuffer),
		character: r.URL.Query().Get("character"),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Info().Str("remote", r.RemoteAddr).Str("character", c.character).Int("clients", n).Msg("feed client connected")

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) remove(c *client) {
	c.once.Do(func() {
		atomic.StoreInt32(&c.closed, 1)
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		close(c.send)
		c.conn.Close()
		h.logger.Debug().Str("character", c.character).Msg("feed client disconnected")
	})
}

// readPump discards client messages and notices disconnects.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * h.cfg.PingInterval))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * h.cfg.PingInterval))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		h.remove(c)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) deliver(characterID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("encode feed message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if atomic.LoadInt32(&c.closed) == 1 || !c.wants(characterID) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.dropped.Add(1)
		}
	}
}

// Broadcast sends frames to every interested client.
func (h *Hub) Broadcast(frames []portrait.Frame) {
	if h.Clients() == 0 {
		return
	}
	for _, f := range frames {
		h.deliver(f.CharacterID, Message{Type: TypeFrame, Frame: FromFrame(f)})
	}
}

// PublishEvent forwards a bus event to clients.
func (h *Hub) PublishEvent(e bus.Event) {
	h.deliver(e.CharacterID, Message{Type: TypeEvent, Event: FromEvent(e)})
}

// PublishLog forwards a log entry to every client.
func (h *Hub) PublishLog(e logging.LogEntry) {
	if h.Clients() == 0 {
		return
	}
	h.deliver("", Message{Type: TypeLog, Log: FromLogEntry(e)})
}

// Attach forwards the given bus event types to clients.
func (h *Hub) Attach(b *bus.EventBus, types ...bus.EventType) {
	b.SubscribeMultiple(types, h.PublishEvent)
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped counts messages discarded for full client buffers.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.remove(c)
	}
}

// ListenAndServe serves the hub at path on addr until ctx is done.
func (h *Hub) ListenAndServe(ctx context.Context, addr, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		h.logger.Info().Str("addr", addr).Str("path", path).Msg("frame feed listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("feed server: %w", err)
	case <-ctx.Done():
		h.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
