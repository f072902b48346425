package alphavantage

import (
	"errors"
	"net/http"

	"github.com/BlissPhinehas/trading-dashboard/internal/provider/ratelimit"
)

// DefaultBaseURL is the Alpha Vantage query endpoint.
const DefaultBaseURL = "https://www.alphavantage.co/query"

// ErrMissingAPIKey is returned by NewClient when no key is given.
var ErrMissingAPIKey = errors.New("alphavantage: api key is required")

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=alphavantage_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a client for the Alpha Vantage GLOBAL_QUOTE function, which
// answers one symbol per request.
type Client struct {
	name       string
	key        string
	baseURL    string
	httpClient HTTPClient
	header     http.Header
	// limiter paces consecutive requests within one Fetch. The free tier
	// allows a handful of calls per minute.
	limiter ratelimit.Limiter
}

// ClientOption is a configuration option for the Alpha Vantage client.
type ClientOption func(*Client)

// WithBaseURL sets the query endpoint.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) ClientOption {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithLimiter paces the per-symbol requests of a multi-symbol Fetch.
func WithLimiter(l ratelimit.Limiter) ClientOption {
	return func(c *Client) {
		c.limiter = l
	}
}

func WithName(name string) ClientOption {
	return func(c *Client) {
		c.name = name
	}
}

// NewClient creates a new Alpha Vantage client.
func NewClient(key string, options ...ClientOption) (*Client, error) {
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	var client = &Client{
		name:       "AlphaVantage",
		key:        key,
		baseURL:    DefaultBaseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
	}
	for _, option := range options {
		option(client)
	}
	return client, nil
}

func (c *Client) Name() string { return c.name }

// MaxSymbolsPerRequest is 1: GLOBAL_QUOTE takes a single symbol.
func (c *Client) MaxSymbolsPerRequest() int { return 1 }
