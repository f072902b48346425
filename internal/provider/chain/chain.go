// Package chain fails over across quote providers in order.
package chain

import (
	"context"
	"errors"
	"strings"

	"github.com/BlissPhinehas/trading-dashboard/internal/provider"
)

// Chain asks each provider in turn for the symbols the previous ones could
// not serve.
type Chain struct {
	providers []provider.Provider
}

// New returns a chain over providers. Nil entries are skipped.
func New(providers ...provider.Provider) *Chain {
	c := &Chain{}
	for _, p := range providers {
		if p != nil {
			c.providers = append(c.providers, p)
		}
	}
	return c
}

// Name joins the member names, e.g. "Yahoo>AlphaVantage".
func (c *Chain) Name() string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, ">")
}

// MaxSymbolsPerRequest is the first provider's limit.
func (c *Chain) MaxSymbolsPerRequest() int {
	if len(c.providers) == 0 {
		return 0
	}
	return provider.MaxSymbolsPerRequest(c.providers[0])
}

// Fetch merges the answers of all providers. The returned error only
// describes symbols no provider could serve: per-symbol failures keep their
// last provider's cause, whole-batch failures are attributed to each
// remaining symbol.
func (c *Chain) Fetch(ctx context.Context, symbols []string) ([]provider.Quote, error) {
	if len(c.providers) == 0 {
		return nil, provider.ErrUnavailable
	}

	remaining := symbols
	var (
		quotes  []provider.Quote
		lastErr = map[string]error{}
	)
	for _, p := range c.providers {
		if len(remaining) == 0 {
			break
		}
		got, err := p.Fetch(ctx, remaining)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		served := make(map[string]struct{}, len(got))
		for _, q := range got {
			served[q.Symbol] = struct{}{}
		}
		quotes = append(quotes, got...)

		symErrs := provider.SymbolErrors(err)
		next := remaining[:0:0]
		for _, s := range remaining {
			if _, ok := served[s]; ok {
				delete(lastErr, s)
				continue
			}
			switch {
			case symErrs[s] != nil:
				lastErr[s] = symErrs[s]
			case err != nil:
				lastErr[s] = err
			default:
				lastErr[s] = provider.ErrMalformedResponse
			}
			next = append(next, s)
		}
		remaining = next
	}

	var errs []error
	for _, s := range remaining {
		errs = append(errs, &provider.SymbolError{Symbol: s, Err: lastErr[s]})
	}
	if len(quotes) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return quotes, errors.Join(errs...)
}
