package alphavantage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/BlissPhinehas/trading-dashboard/internal/provider"
)

const maxBodyBytes = 1 << 20

// globalQuoteResponse mirrors the GLOBAL_QUOTE payload. Every number arrives
// as a string.
type globalQuoteResponse struct {
	GlobalQuote  map[string]string `json:"Global Quote"`
	ErrorMessage string            `json:"Error Message"`
	Note         string            `json:"Note"`
	Information  string            `json:"Information"`
}

// Fetch requests each symbol in turn. A failure scoped to one symbol is
// joined into the returned error and the loop continues. A failure of the
// provider itself (rate limit, transport, status) stops the loop and is
// reported against every symbol not yet fetched.
func (c *Client) Fetch(ctx context.Context, symbols []string) ([]provider.Quote, error) {
	quotes := make([]provider.Quote, 0, len(symbols))
	var errs []error
	for i, symbol := range symbols {
		if i > 0 && c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		q, err := c.fetchOne(ctx, symbol)
		if err == nil {
			quotes = append(quotes, q)
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var symErr *provider.SymbolError
		if errors.As(err, &symErr) {
			errs = append(errs, err)
			continue
		}
		if len(quotes) == 0 && len(errs) == 0 {
			return nil, err
		}
		for _, rest := range symbols[i:] {
			errs = append(errs, &provider.SymbolError{Symbol: rest, Err: err})
		}
		break
	}
	return quotes, errors.Join(errs...)
}

func (c *Client) fetchOne(ctx context.Context, symbol string) (provider.Quote, error) {
	query := url.Values{}
	query.Set("function", "GLOBAL_QUOTE")
	query.Set("symbol", symbol)
	query.Set("apikey", c.key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s?%s", c.baseURL, query.Encode()), http.NoBody)
	if err != nil {
		return provider.Quote{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return provider.Quote{}, fmt.Errorf("%w: performing request: %w", provider.ErrUnavailable, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusTooManyRequests:
		return provider.Quote{}, &provider.APIError{Provider: c.name, Message: "too many requests", RateLimited: true}
	case res.StatusCode != http.StatusOK:
		return provider.Quote{}, fmt.Errorf("%w: unexpected status code: %d", provider.ErrUnavailable, res.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return provider.Quote{}, fmt.Errorf("%w: reading response: %w", provider.ErrUnavailable, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return provider.Quote{}, provider.ErrEmptyResponse
	}

	var payload globalQuoteResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return provider.Quote{}, fmt.Errorf("%w: decoding global quote: %w", provider.ErrMalformedResponse, err)
	}
	switch {
	case payload.ErrorMessage != "":
		return provider.Quote{}, &provider.APIError{Provider: c.name, Message: payload.ErrorMessage}
	case payload.Note != "":
		return provider.Quote{}, &provider.APIError{Provider: c.name, Message: payload.Note, RateLimited: true}
	case payload.Information != "":
		return provider.Quote{}, &provider.APIError{Provider: c.name, Message: payload.Information, RateLimited: true}
	}
	if len(payload.GlobalQuote) == 0 {
		return provider.Quote{}, &provider.SymbolError{Symbol: symbol, Err: fmt.Errorf("%w: empty Global Quote", provider.ErrMalformedResponse)}
	}

	q, err := c.parseGlobalQuote(payload.GlobalQuote)
	if err != nil {
		return provider.Quote{}, &provider.SymbolError{Symbol: symbol, Err: err}
	}
	return q, nil
}

// parseGlobalQuote converts
//
//	{
//	  "01. symbol": "IBM",
//	  "05. price": "175.4300",
//	  "06. volume": "3012345",
//	  "09. change": "1.2100",
//	  "10. change percent": "0.6947%"
//	}
func (c *Client) parseGlobalQuote(fields map[string]string) (provider.Quote, error) {
	symbol := provider.NormalizeSymbol(fields["01. symbol"])
	if symbol == "" {
		return provider.Quote{}, fmt.Errorf("%w: missing 01. symbol", provider.ErrMalformedResponse)
	}

	price, err := parseDecimal(fields, "05. price")
	if err != nil {
		return provider.Quote{}, err
	}
	change, err := parseDecimal(fields, "09. change")
	if err != nil {
		return provider.Quote{}, err
	}
	fields["10. change percent"] = strings.TrimSuffix(strings.TrimSpace(fields["10. change percent"]), "%")
	pct, err := parseDecimal(fields, "10. change percent")
	if err != nil {
		return provider.Quote{}, err
	}
	volume, err := parseDecimal(fields, "06. volume")
	if err != nil {
		return provider.Quote{}, err
	}

	return provider.Quote{
		Symbol:        symbol,
		Price:         price.InexactFloat64(),
		Change:        change.InexactFloat64(),
		ChangePercent: pct.InexactFloat64(),
		Volume:        volume.IntPart(),
		Source:        c.name,
		Provenance:    provider.ProvenanceLive,
		ReceivedAt:    time.Now().UTC(),
	}, nil
}

func parseDecimal(fields map[string]string, key string) (decimal.Decimal, error) {
	raw, ok := fields[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: missing %s", provider.ErrMalformedResponse, key)
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: parsing %s: %w", provider.ErrMalformedResponse, key, err)
	}
	return d, nil
}
