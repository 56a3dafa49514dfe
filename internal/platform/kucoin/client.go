// Package kucoin is a client for KuCoin spot market data.
package kucoin

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/platform"
)

// DefaultBaseURL is the public REST endpoint.
const DefaultBaseURL = "https://api.kucoin.com"

const codeOK = "200000"

// Client is the KuCoin REST market-data client.
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

// Exchange returns "kucoin".
func (c *Client) Exchange() string { return "kucoin" }

type allTickersResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Time   int64    `json:"time"`
		Ticker []ticker `json:"ticker"`
	} `json:"data"`
}

// ticker uses "buy" for the best bid and "sell" for the best ask. Both may
// be null for halted symbols, which decodes as zero.
type ticker struct {
	Symbol string          `json:"symbol"`
	Buy    decimal.Decimal `json:"buy"`
	Sell   decimal.Decimal `json:"sell"`
}

// FetchBook returns the best bid and ask of every symbol, e.g. "BTC-USDT".
func (c *Client) FetchBook(ctx context.Context) ([]domain.RawInstrument, error) {
	var resp allTickersResponse
	if err := c.rest.GetJSON(ctx, "/api/v1/market/allTickers", nil, &resp); err != nil {
		return nil, fmt.Errorf("kucoin: all tickers: %w", err)
	}
	if resp.Code != codeOK {
		return nil, fmt.Errorf("kucoin: all tickers: %w: code %s: %s", domain.ErrUpstream, resp.Code, resp.Msg)
	}
	out := make([]domain.RawInstrument, 0, len(resp.Data.Ticker))
	for _, t := range resp.Data.Ticker {
		out = append(out, domain.RawInstrument{Symbol: t.Symbol, Bid: t.Buy, Ask: t.Sell})
	}
	return out, nil
}
