package yahoo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/BlissPhinehas/trading-dashboard/internal/provider"
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 4 << 20

// envelope is the top level of a quote response. Any of the three error
// fields being non-null marks the whole response as failed.
type envelope struct {
	QuoteResponse *struct {
		Result []map[string]any `json:"result"`
		Error  json.RawMessage  `json:"error"`
	} `json:"quoteResponse"`
	Finance *struct {
		Error json.RawMessage `json:"error"`
	} `json:"finance"`
	Error json.RawMessage `json:"error"`
}

// Fetch retrieves quotes for symbols in one request. Results that lack a
// required field are skipped and reported as *provider.SymbolError in the
// returned joined error, alongside the quotes that did parse.
func (c *Client) Fetch(ctx context.Context, symbols []string) ([]provider.Quote, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	query := maps.Clone(c.query)
	query.Set("symbols", strings.Join(symbols, ","))

	url := fmt.Sprintf("%s?%s", c.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: performing request: %w", provider.ErrUnavailable, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", provider.ErrUnavailable, err)
	}

	switch {
	case res.StatusCode == http.StatusOK:
		break

	case res.StatusCode == http.StatusTooManyRequests:
		return nil, &provider.APIError{Provider: c.name, Message: "too many requests", RateLimited: true}

	case res.StatusCode == http.StatusUnauthorized, res.StatusCode == http.StatusForbidden:
		msg := fmt.Sprintf("unauthorized (status %d)", res.StatusCode)
		if e := c.responseError(body); e != nil {
			msg = e.Message
		}
		return nil, &provider.APIError{Provider: c.name, Message: msg}

	default:
		return nil, fmt.Errorf("%w: unexpected status code: %d", provider.ErrUnavailable, res.StatusCode)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, provider.ErrEmptyResponse
	}
	if e := c.responseError(body); e != nil {
		return nil, e
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: decoding quote response: %w", provider.ErrMalformedResponse, err)
	}
	if env.QuoteResponse == nil {
		return nil, fmt.Errorf("%w: missing quoteResponse", provider.ErrMalformedResponse)
	}

	now := time.Now().UTC()
	quotes := make([]provider.Quote, 0, len(env.QuoteResponse.Result))
	seen := make(map[string]struct{}, len(env.QuoteResponse.Result))
	var errs []error
	for i, raw := range env.QuoteResponse.Result {
		// {
		//   "symbol": "AAPL",
		//   "regularMarketPrice": 175.43,
		//   "regularMarketChange": 1.21,
		//   "regularMarketChangePercent": 0.694,
		//   "regularMarketVolume": 51234567,
		//   "marketCap": 2745000000000,
		//   "regularMarketTime": 1709913600
		// }
		q, err := c.parseResult(raw, now)
		if err != nil {
			sym := q.Symbol
			if sym == "" {
				sym = fmt.Sprintf("result[%d]", i)
			}
			errs = append(errs, &provider.SymbolError{Symbol: sym, Err: err})
			seen[sym] = struct{}{}
			continue
		}
		seen[q.Symbol] = struct{}{}
		quotes = append(quotes, q)
	}
	for _, s := range symbols {
		if _, ok := seen[provider.NormalizeSymbol(s)]; !ok {
			errs = append(errs, &provider.SymbolError{Symbol: s, Err: fmt.Errorf("%w: no data returned", provider.ErrMalformedResponse)})
		}
	}
	return quotes, errors.Join(errs...)
}

// parseResult converts one result object. On error the returned quote still
// carries the symbol when it could be read.
func (c *Client) parseResult(raw map[string]any, now time.Time) (provider.Quote, error) {
	var q provider.Quote
	symbol, err := parseNullableValue[string](raw, "symbol")
	if err != nil || symbol == nil || strings.TrimSpace(*symbol) == "" {
		return q, fmt.Errorf("%w: missing symbol", provider.ErrMalformedResponse)
	}
	q.Symbol = provider.NormalizeSymbol(*symbol)

	required := map[string]*float64{
		"regularMarketPrice":         &q.Price,
		"regularMarketChange":        &q.Change,
		"regularMarketChangePercent": &q.ChangePercent,
	}
	for key, dst := range required {
		v, err := parseNullableValue[float64](raw, key)
		if err != nil {
			return q, fmt.Errorf("%w: decoding %s: %w", provider.ErrMalformedResponse, key, err)
		}
		if v == nil {
			return q, fmt.Errorf("%w: missing %s", provider.ErrMalformedResponse, key)
		}
		*dst = *v
	}

	volume, err := parseNullableValue[float64](raw, "regularMarketVolume")
	if err != nil {
		return q, fmt.Errorf("%w: decoding regularMarketVolume: %w", provider.ErrMalformedResponse, err)
	}
	if volume == nil {
		return q, fmt.Errorf("%w: missing regularMarketVolume", provider.ErrMalformedResponse)
	}
	q.Volume = int64(*volume)

	if mc, err := parseNullableValue[float64](raw, "marketCap"); err == nil && mc != nil {
		v := int64(*mc)
		q.MarketCap = &v
	}

	q.ReceivedAt = now
	if ts, err := parseNullableValue[float64](raw, "regularMarketTime"); err == nil && ts != nil {
		q.ReceivedAt = parseEpochMaybeMillis(int64(*ts), now)
	}
	q.Source = c.name
	q.Provenance = provider.ProvenanceLive
	return q, nil
}

// responseError returns the explicit error marker of body, if any.
func (c *Client) responseError(body []byte) *provider.APIError {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil
	}
	raw := env.Error
	if isNull(raw) && env.Finance != nil {
		raw = env.Finance.Error
	}
	if isNull(raw) && env.QuoteResponse != nil {
		raw = env.QuoteResponse.Error
	}
	if isNull(raw) {
		return nil
	}
	msg := errorMessage(raw)
	lower := strings.ToLower(msg)
	limited := strings.Contains(lower, "too many requests") || strings.Contains(lower, "rate limit")
	return &provider.APIError{Provider: c.name, Message: msg, RateLimited: limited}
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// errorMessage flattens the error shapes Yahoo uses: a plain string or
// {"code": "...", "description": "..."}.
func errorMessage(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && (obj.Code != "" || obj.Description != "") {
		if obj.Description == "" {
			return obj.Code
		}
		if obj.Code == "" {
			return obj.Description
		}
		return obj.Code + ": " + obj.Description
	}
	return string(raw)
}

// parseNullableValue is a helper function to parse a nullable value.
func parseNullableValue[T any](data map[string]any, key string) (*T, error) {
	v, ok := data[key]
	if !ok || v == nil {
		return nil, nil
	}
	if v, ok := v.(T); ok {
		return &v, nil
	}
	return nil, fmt.Errorf("unexpected type: %T", v)
}

func parseEpochMaybeMillis(v int64, fallback time.Time) time.Time {
	if v <= 0 {
		return fallback
	}
	if v > 1_000_000_000_000 { // ms
		return time.UnixMilli(v).UTC()
	}
	return time.Unix(v, 0).UTC()
}
