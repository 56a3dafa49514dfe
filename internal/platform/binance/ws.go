package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// DefaultStreamURL is the public spot websocket endpoint.
const DefaultStreamURL = "wss://stream.binance.com:9443"

const (
	writeWait = 10 * time.Second
	// Binance pings every few minutes and drops silent clients after ten.
	readWait = 10 * time.Minute
)

// BookHandler receives every bookTicker update.
type BookHandler func(domain.RawInstrument)

// StreamClient reads the combined bookTicker stream for a set of symbols.
type StreamClient struct {
	baseURL string
	symbols []string
}

// NewStreamClient creates a stream client. Symbols are lower-cased as the
// stream names require.
func NewStreamClient(baseURL string, symbols []string) *StreamClient {
	if baseURL == "" {
		baseURL = DefaultStreamURL
	}
	lower := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			lower = append(lower, s)
		}
	}
	return &StreamClient{baseURL: strings.TrimRight(baseURL, "/"), symbols: lower}
}

// URL returns the combined-stream URL.
func (c *StreamClient) URL() string {
	streams := make([]string, len(c.symbols))
	for i, s := range c.symbols {
		streams[i] = s + "@bookTicker"
	}
	return c.baseURL + "/stream?streams=" + strings.Join(streams, "/")
}

// streamEnvelope wraps every combined-stream payload.
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// bookUpdate is the bookTicker payload.
type bookUpdate struct {
	UpdateID int64           `json:"u"`
	Symbol   string          `json:"s"`
	Bid      decimal.Decimal `json:"b"`
	BidQty   decimal.Decimal `json:"B"`
	Ask      decimal.Decimal `json:"a"`
	AskQty   decimal.Decimal `json:"A"`
}

// ParseMessage decodes one combined-stream frame.
func ParseMessage(data []byte) (domain.RawInstrument, error) {
	var env streamEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return domain.RawInstrument{}, fmt.Errorf("binance/ws: decode envelope: %w", err)
	}
	if !strings.HasSuffix(env.Stream, "@bookTicker") {
		return domain.RawInstrument{}, fmt.Errorf("binance/ws: unexpected stream %q", env.Stream)
	}
	var u bookUpdate
	if err := json.Unmarshal(env.Data, &u); err != nil {
		return domain.RawInstrument{}, fmt.Errorf("binance/ws: decode book update: %w", err)
	}
	return domain.RawInstrument{Symbol: u.Symbol, Bid: u.Bid, Ask: u.Ask}, nil
}

// Stream connects and calls onBook for each update until ctx is cancelled or
// the connection drops. It always returns a non-nil error.
func (c *StreamClient) Stream(ctx context.Context, onBook BookHandler) error {
	if len(c.symbols) == 0 {
		return fmt.Errorf("binance/ws: no symbols to subscribe")
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.URL(), nil)
	if err != nil {
		return fmt.Errorf("binance/ws: connect: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = conn.Close()
	})
	defer stop()

	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("binance/ws: %w: %v", domain.ErrWSDisconnect, err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))

		in, err := ParseMessage(msg)
		if err != nil {
			continue
		}
		onBook(in)
	}
}
