package provider

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Provenance tells consumers where a Quote came from.
type Provenance string

const (
	ProvenanceLive     Provenance = "live"
	ProvenanceCached   Provenance = "cached"
	ProvenanceStale    Provenance = "stale"
	ProvenanceFallback Provenance = "fallback"
)

// Quote is the normalized shape returned by all providers.
// A new Quote replaces an old one; nothing mutates a Quote after construction.
type Quote struct {
	Symbol        string     `json:"symbol"`
	Price         float64    `json:"price"`
	Change        float64    `json:"change"`
	ChangePercent float64    `json:"changePercent"`
	Volume        int64      `json:"volume"`
	MarketCap     *int64     `json:"marketCap,omitempty"`
	Source        string     `json:"source"`
	Provenance    Provenance `json:"provenance"`
	ReceivedAt    time.Time  `json:"receivedAt"`
}

// WithProvenance returns a copy of q tagged with p.
func (q Quote) WithProvenance(p Provenance) Quote {
	q.Provenance = p
	return q
}

// Provider fetches quotes for one or more normalized symbols. A batch may
// return partial quotes together with a joined error of skipped symbols.
//
//go:generate mockgen -package=market_test -destination=../market/mock_provider_test.go -source=provider.go Provider
type Provider interface {
	Name() string
	Fetch(ctx context.Context, symbols []string) ([]Quote, error)
}

// Batcher is implemented by providers that limit how many symbols fit in one request.
// Zero means every symbol can go in a single combined request.
type Batcher interface {
	MaxSymbolsPerRequest() int
}

// MaxSymbolsPerRequest reports p's batch limit, 0 when p does not declare one.
func MaxSymbolsPerRequest(p Provider) int {
	if b, ok := p.(Batcher); ok {
		return b.MaxSymbolsPerRequest()
	}
	return 0
}

// FetchOne fetches a single symbol and picks its quote out of the response.
func FetchOne(ctx context.Context, p Provider, symbol string) (Quote, error) {
	symbol = NormalizeSymbol(symbol)
	quotes, err := p.Fetch(ctx, []string{symbol})
	var found *Quote
	for i := range quotes {
		if quotes[i].Symbol == symbol {
			found = &quotes[i]
		}
	}
	if found != nil {
		return *found, nil
	}
	if err != nil {
		return Quote{}, err
	}
	return Quote{}, &SymbolError{Symbol: symbol, Err: fmt.Errorf("%w: no quote in response", ErrMalformedResponse)}
}

// NormalizeSymbol returns the canonical uppercase form of a ticker.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ValidSymbol reports whether s looks like a ticker the providers understand.
func ValidSymbol(s string) bool {
	if len(s) == 0 || len(s) > 15 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '-', r == '^', r == '=':
		default:
			return false
		}
	}
	return true
}

// NormalizeSymbols uppercases, drops empties and removes duplicates, preserving order.
func NormalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = NormalizeSymbol(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
