// Package marketdata serves market quotes from the venue's HTTP API, with
// an optional Redis cache layered in front.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/finchat-labs/finflow/capability"
)

// DefaultHTTPTimeout bounds one quote request when the caller's context
// carries no tighter deadline.
const DefaultHTTPTimeout = 5 * time.Second

// Client fetches quotes from GET {base}/quote/{symbol}.
//
// Status classes map onto the capability error contract: 404 means the
// symbol is not listed, 429 and 5xx are transient faults, any other 4xx is
// permanent.
type Client struct {
	base string
	http *http.Client
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient swaps the underlying HTTP client, e.g. to share a
// transport or tighten timeouts.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// NewClient creates a quote client for the API at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("marketdata: base URL cannot be empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("marketdata: bad base URL: %w", err)
	}

	c := &Client{
		base: baseURL,
		http: &http.Client{Timeout: DefaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// quoteDoc is the wire format of the quote API.
type quoteDoc struct {
	Price     float64 `json:"price"`
	ChangePct float64 `json:"change_pct"`
	Volume    int64   `json:"volume"`
	PER       float64 `json:"per"`
	PBR       float64 `json:"pbr"`
	ROE       float64 `json:"roe"`
	MarketCap float64 `json:"market_cap"`
	Sector    string  `json:"sector"`
}

// Quote implements capability.MarketData.
func (c *Client) Quote(ctx context.Context, symbol string) (capability.Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/quote/"+url.PathEscape(symbol), nil)
	if err != nil {
		return capability.Quote{}, capability.PermanentFault("marketdata: bad quote request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return capability.Quote{}, capability.TransientFault("marketdata: quote request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusNotFound:
		return capability.Quote{}, fmt.Errorf("quote %s: %w", symbol, capability.ErrSymbolUnlisted)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return capability.Quote{}, capability.TransientFault(
			fmt.Sprintf("marketdata: quote API returned %d", resp.StatusCode), nil)
	default:
		return capability.Quote{}, capability.PermanentFault(
			fmt.Sprintf("marketdata: quote API returned %d", resp.StatusCode), nil)
	}

	var doc quoteDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return capability.Quote{}, capability.TransientFault("marketdata: quote decode failed", err)
	}
	return capability.Quote{
		Price:     doc.Price,
		ChangePct: doc.ChangePct,
		Volume:    doc.Volume,
		PER:       doc.PER,
		PBR:       doc.PBR,
		ROE:       doc.ROE,
		MarketCap: doc.MarketCap,
		Sector:    doc.Sector,
	}, nil
}

var _ capability.MarketData = (*Client)(nil)
