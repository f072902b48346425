package yahoo

import (
	"net/http"
	"net/url"
)

// DefaultBaseURL is the Yahoo Finance v7 quote endpoint.
const DefaultBaseURL = "https://query1.finance.yahoo.com/v7/finance/quote"

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=yahoo_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a client for the Yahoo Finance quote API. A single request
// serves any number of symbols.
type Client struct {
	// name is reported by Name and stamped on quotes as their Source.
	name string
	// baseURL is the full quote endpoint.
	baseURL string
	// httpClient is the HTTP client.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
	// query contains additional query parameters to be sent with each request.
	query url.Values
}

// ClientOption is a configuration option for the Yahoo client.
type ClientOption func(*Client)

// WithBaseURL sets the quote endpoint.
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

// WithQuery sets additional query parameters to be sent with each request.
func WithQuery(query url.Values) ClientOption {
	return func(c *Client) {
		for key, values := range query {
			for _, value := range values {
				c.query.Add(key, value)
			}
		}
	}
}

// WithName overrides the provider name.
func WithName(name string) ClientOption {
	return func(c *Client) {
		c.name = name
	}
}

// NewClient creates a new Yahoo client. key is optional; gateways that front
// the quote API expect it in the X-API-KEY header.
func NewClient(key string, options ...ClientOption) *Client {
	var client = &Client{
		name:       "Yahoo",
		baseURL:    DefaultBaseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
		query:      url.Values{},
	}
	if key != "" {
		client.header.Set("X-API-KEY", key)
	}
	for _, option := range options {
		option(client)
	}
	return client
}

func (c *Client) Name() string { return c.name }

// MaxSymbolsPerRequest is 0: every symbol goes in one combined request.
func (c *Client) MaxSymbolsPerRequest() int { return 0 }
