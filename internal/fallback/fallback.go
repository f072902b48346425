// Package fallback generates synthetic quotes for symbols that have neither a
// live answer nor a cached one. The numbers are plausible, never real.
package fallback

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/BlissPhinehas/trading-dashboard/internal/provider"
)

// Source is the Source field of every generated quote.
const Source = "fallback"

// DefaultBasePrice is used for symbols missing from the base price table.
const DefaultBasePrice = 100.0

var defaultBasePrices = map[string]float64{
	"AAPL":  175.0,
	"GOOGL": 2700.0,
	"MSFT":  330.0,
	"TSLA":  250.0,
	"NVDA":  450.0,
	"AMZN":  140.0,
	"META":  300.0,
	"NFLX":  440.0,
}

// Generator is safe for concurrent use.
type Generator struct {
	basePrices  map[string]float64
	defaultBase float64
	maxSwing    float64
	minVolume   int64
	volumeRange int64
	now         func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(*Generator)

// WithBasePrices replaces the base price table. Non-positive prices are
// dropped; those symbols use DefaultBasePrice.
func WithBasePrices(prices map[string]float64) Option {
	return func(g *Generator) {
		g.basePrices = make(map[string]float64, len(prices))
		for k, v := range prices {
			if v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
				continue
			}
			g.basePrices[provider.NormalizeSymbol(k)] = v
		}
	}
}

// WithMaxSwing bounds the absolute price change around the base price.
func WithMaxSwing(swing float64) Option {
	return func(g *Generator) { g.maxSwing = swing }
}

// WithVolumeRange sets generated volumes to [lo, lo+span).
func WithVolumeRange(lo, span int64) Option {
	return func(g *Generator) { g.minVolume, g.volumeRange = lo, span }
}

func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// New returns a generator drawing from src. Two generators built from
// identically seeded sources produce identical quotes.
func New(src rand.Source, opts ...Option) *Generator {
	g := &Generator{
		basePrices:  defaultBasePrices,
		defaultBase: DefaultBasePrice,
		maxSwing:    1.0,
		minVolume:   5_000_000,
		volumeRange: 10_000_000,
		now:         time.Now,
		rng:         rand.New(src),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.volumeRange <= 0 {
		g.volumeRange = 1
	}
	return g
}

// NewSeeded is New with a PCG source seeded from seed.
func NewSeeded(seed uint64, opts ...Option) *Generator {
	return New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15), opts...)
}

// BasePrice returns the base price used for symbol.
func (g *Generator) BasePrice(symbol string) float64 {
	if p, ok := g.basePrices[provider.NormalizeSymbol(symbol)]; ok {
		return p
	}
	return g.defaultBase
}

// Generate returns a synthetic quote for symbol with
// change = price - base and changePercent = change / base * 100.
func (g *Generator) Generate(symbol string) provider.Quote {
	symbol = provider.NormalizeSymbol(symbol)
	base := g.BasePrice(symbol)

	g.mu.Lock()
	change := (g.rng.Float64() - 0.5) * 2 * g.maxSwing
	volume := g.minVolume + g.rng.Int64N(g.volumeRange)
	g.mu.Unlock()

	return provider.Quote{
		Symbol:        symbol,
		Price:         base + change,
		Change:        change,
		ChangePercent: change / base * 100,
		Volume:        volume,
		Source:        Source,
		Provenance:    provider.ProvenanceFallback,
		ReceivedAt:    g.now().UTC(),
	}
}
