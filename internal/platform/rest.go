// Package platform holds the shared HTTP plumbing of the exchange and
// market-data clients in its sub-packages.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// DefaultTimeout applies when a client is created with a zero timeout.
const DefaultTimeout = 30 * time.Second

// maxBodySize caps how much of a response is read. Full-market ticker
// dumps are a few MiB.
const maxBodySize = 32 << 20

// RESTClient performs JSON GET requests against one base URL.
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
	headers    http.Header
}

// NewRESTClient creates a client. A zero timeout selects DefaultTimeout.
func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RESTClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		headers:    make(http.Header),
	}
}

// SetHeader adds a header sent with every request.
func (c *RESTClient) SetHeader(key, value string) {
	c.headers.Set(key, value)
}

// GetJSON issues GET baseURL+path?params and decodes the body into out.
func (c *RESTClient) GetJSON(ctx context.Context, path string, params url.Values, out any) error {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: http request: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", domain.ErrUpstream, err)
	}
	if err := CheckHTTPStatus(resp.StatusCode, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// CheckHTTPStatus maps non-2xx responses to domain errors.
func CheckHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	if len(bodyStr) > 256 {
		bodyStr = bodyStr[:256]
	}
	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case statusCode == http.StatusTooManyRequests || statusCode == 418:
		return fmt.Errorf("%w: %w: HTTP %d: %s", domain.ErrUpstream, domain.ErrRateLimited, statusCode, bodyStr)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrUpstream, statusCode, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}

// DecimalFromFloat converts f, reporting false for NaN and infinities.
func DecimalFromFloat(f float64) (decimal.Decimal, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Decimal{}, false
	}
	return decimal.NewFromFloat(f), true
}
