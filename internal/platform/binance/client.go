// Package binance is a client for Binance spot market data: the REST book
// ticker and the websocket bookTicker stream.
package binance

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/platform"
)

// DefaultBaseURL is the public spot REST endpoint.
const DefaultBaseURL = "https://api.binance.com"

// Client is the Binance REST market-data client.
type Client struct {
	rest *platform.RESTClient
}

// NewClient creates a client for baseURL, e.g. DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{rest: platform.NewRESTClient(baseURL, timeout)}
}

// Exchange returns "binance".
func (c *Client) Exchange() string { return "binance" }

// bookTicker is one entry of GET /api/v3/ticker/bookTicker. Prices arrive
// as strings.
type bookTicker struct {
	Symbol   string          `json:"symbol"`
	BidPrice decimal.Decimal `json:"bidPrice"`
	BidQty   decimal.Decimal `json:"bidQty"`
	AskPrice decimal.Decimal `json:"askPrice"`
	AskQty   decimal.Decimal `json:"askQty"`
}

func (t bookTicker) instrument() domain.RawInstrument {
	return domain.RawInstrument{Symbol: t.Symbol, Bid: t.BidPrice, Ask: t.AskPrice}
}

// FetchBook returns the best bid and ask of every listed symbol.
func (c *Client) FetchBook(ctx context.Context) ([]domain.RawInstrument, error) {
	var tickers []bookTicker
	if err := c.rest.GetJSON(ctx, "/api/v3/ticker/bookTicker", nil, &tickers); err != nil {
		return nil, fmt.Errorf("binance: book ticker: %w", err)
	}
	out := make([]domain.RawInstrument, 0, len(tickers))
	for _, t := range tickers {
		out = append(out, t.instrument())
	}
	return out, nil
}
