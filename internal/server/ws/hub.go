// Package ws fans accepted scan reports out to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

// Channels are the bus channels the hub relays.
func Channels() []string {
	return []string{domain.ScanCrossExchange.Channel(), domain.ScanTriangular.Channel()}
}

// Format is the frame encoding a client receives.
type Format int

const (
	// FormatBinary sends proto-encoded structpb.Struct binary frames.
	FormatBinary Format = iota
	// FormatJSON sends JSON text frames.
	FormatJSON
)

// Frames is one envelope encoded in both formats.
type Frames struct {
	Channel string
	JSON    []byte
	Binary  []byte
}

func (f Frames) encoded(format Format) (int, []byte) {
	if format == FormatJSON {
		return websocket.TextMessage, f.JSON
	}
	return websocket.BinaryMessage, f.Binary
}

// Encode wraps payload in a {"type","channel","payload"} envelope and
// encodes it once per format. payload must be JSON.
func Encode(msgType, channel string, payload []byte) (Frames, error) {
	var body any
	if err := json.Unmarshal(payload, &body); err != nil {
		return Frames{}, fmt.Errorf("ws: decode payload: %w", err)
	}
	env := map[string]any{"type": msgType, "channel": channel, "payload": body}

	js, err := json.Marshal(env)
	if err != nil {
		return Frames{}, fmt.Errorf("ws: encode json: %w", err)
	}
	st, err := structpb.NewStruct(env)
	if err != nil {
		return Frames{}, fmt.Errorf("ws: build struct: %w", err)
	}
	bin, err := proto.Marshal(st)
	if err != nil {
		return Frames{}, fmt.Errorf("ws: encode proto: %w", err)
	}
	return Frames{Channel: channel, JSON: js, Binary: bin}, nil
}

// Config is the metadata sent to clients in the hub_status greeting.
type Config struct {
	Mode      string
	Version   string
	StartedAt time.Time
}

// Hub relays scan reports from a domain.SignalBus to connected clients.
type Hub struct {
	bus    domain.SignalBus
	cfg    Config
	logger *slog.Logger

	upgrader   websocket.Upgrader
	register   chan *client
	unregister chan *client
	broadcast  chan Frames
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*client]bool
}

// NewHub creates a Hub. allowedOrigins restricts the WebSocket handshake;
// an empty list accepts every origin.
func NewHub(bus domain.SignalBus, cfg Config, allowedOrigins []string, logger *slog.Logger) *Hub {
	if cfg.Mode == "" {
		cfg.Mode = "unknown"
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	return &Hub{
		bus:    bus,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "ws_hub")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Frames, 64),
		done:       make(chan struct{}),
		clients:    make(map[*client]bool),
	}
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// Run subscribes to the report channels and serves clients until ctx is
// cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for _, ch := range Channels() {
		msgs, err := h.bus.Subscribe(ctx, ch)
		if err != nil {
			return fmt.Errorf("ws: subscribe %s: %w", ch, err)
		}
		go h.relay(ctx, ch, msgs)
	}
	h.logger.Info("hub started", slog.Any("channels", Channels()))

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			c.greet(h.status(n))
			h.logger.Info("client connected", slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.Int("total_clients", n))

		case f := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.isSubscribed(f.Channel) {
					continue
				}
				kind, data := f.encoded(c.format)
				select {
				case c.send <- outbound{kind: kind, data: data}:
				default:
					h.logger.Warn("dropping frame for slow client", slog.String("channel", f.Channel))
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) relay(ctx context.Context, channel string, msgs <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-msgs:
			if !ok {
				h.logger.Warn("subscription closed", slog.String("channel", channel))
				return
			}
			frames, err := Encode("scan_report", channel, payload)
			if err != nil {
				h.logger.Warn("drop undecodable report", slog.String("channel", channel), slog.String("error", err.Error()))
				continue
			}
			select {
			case h.broadcast <- frames:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (h *Hub) status(clients int) Frames {
	payload, _ := json.Marshal(map[string]any{
		"mode":           h.cfg.Mode,
		"version":        h.cfg.Version,
		"uptime_seconds": max(0, int64(time.Since(h.cfg.StartedAt).Seconds())),
		"clients":        clients,
		"channels":       Channels(),
	})
	frames, err := Encode("hub_status", "", payload)
	if err != nil {
		h.logger.Warn("encode hub status", slog.String("error", err.Error()))
	}
	return frames
}

// HandleWS upgrades the request and registers the client. ?format=json
// selects JSON text frames; the default is binary.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	format := FormatBinary
	if strings.EqualFold(r.URL.Query().Get("format"), "json") {
		format = FormatJSON
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(h, conn, format)
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
