// Package coingecko is a client for the CoinGecko market-data API.
package coingecko

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/platform"
)

// DefaultBaseURL is the public v3 API root.
const DefaultBaseURL = "https://api.coingecko.com/api/v3"

// Client is the CoinGecko REST client.
type Client struct {
	rest *platform.RESTClient
}

// NewClient creates a client. apiKey is sent as the demo-plan header when
// set.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	rest := platform.NewRESTClient(baseURL, timeout)
	if apiKey != "" {
		rest.SetHeader("x-cg-demo-api-key", apiKey)
	}
	return &Client{rest: rest}
}

// MarketsQuery selects a page of /coins/markets.
type MarketsQuery struct {
	VsCurrency string
	PerPage    int
	Page       int
}

func (q MarketsQuery) values() url.Values {
	v := url.Values{}
	vs := q.VsCurrency
	if vs == "" {
		vs = "usd"
	}
	perPage := q.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := q.Page
	if page <= 0 {
		page = 1
	}
	v.Set("vs_currency", vs)
	v.Set("order", "market_cap_desc")
	v.Set("per_page", strconv.Itoa(perPage))
	v.Set("page", strconv.Itoa(page))
	v.Set("sparkline", "false")
	return v
}

// Markets returns coins ordered by market capitalisation.
func (c *Client) Markets(ctx context.Context, q MarketsQuery) ([]domain.Coin, error) {
	var coins []domain.Coin
	if err := c.rest.GetJSON(ctx, "/coins/markets", q.values(), &coins); err != nil {
		return nil, fmt.Errorf("coingecko: markets: %w", err)
	}
	return coins, nil
}
