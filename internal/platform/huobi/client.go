// Package huobi is a client for Huobi (HTX) spot market data.
package huobi

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/platform"
)

// DefaultBaseURL is the public REST endpoint.
const DefaultBaseURL = "https://api.huobi.pro"

// Client is the Huobi REST market-data client.
type Client struct {
	rest *platform.RESTClient
}

// NewClient creates a client for baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{rest: platform.NewRESTClient(baseURL, timeout)}
}

// Exchange returns "huobi".
func (c *Client) Exchange() string { return "huobi" }

type tickersResponse struct {
	Status  string   `json:"status"`
	ErrMsg  string   `json:"err-msg"`
	Data    []ticker `json:"data"`
	Updated int64    `json:"ts"`
}

// ticker carries prices as JSON numbers.
type ticker struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

// FetchBook returns the best bid and ask of every symbol. Symbols are
// lower-case concatenations such as "btcusdt".
func (c *Client) FetchBook(ctx context.Context) ([]domain.RawInstrument, error) {
	var resp tickersResponse
	if err := c.rest.GetJSON(ctx, "/market/tickers", nil, &resp); err != nil {
		return nil, fmt.Errorf("huobi: tickers: %w", err)
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("huobi: tickers: %w: status %q: %s", domain.ErrUpstream, resp.Status, resp.ErrMsg)
	}
	out := make([]domain.RawInstrument, 0, len(resp.Data))
	for _, t := range resp.Data {
		bid, okBid := platform.DecimalFromFloat(t.Bid)
		ask, okAsk := platform.DecimalFromFloat(t.Ask)
		if !okBid || !okAsk {
			continue
		}
		out = append(out, domain.RawInstrument{Symbol: t.Symbol, Bid: bid, Ask: ask})
	}
	return out, nil
}
