// Package market answers quote requests for the dashboard. Every answer is
// resolved live, from cache, from an expired cache entry or from the fallback
// generator, in that order of preference, and carries that provenance.
package market

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/BlissPhinehas/trading-dashboard/internal/aggregate"
	"github.com/BlissPhinehas/trading-dashboard/internal/fallback"
	"github.com/BlissPhinehas/trading-dashboard/internal/provider"
	"github.com/BlissPhinehas/trading-dashboard/internal/provider/cache"
	"github.com/BlissPhinehas/trading-dashboard/internal/provider/ratelimit"
)

const (
	DefaultFetchTimeout         = 10 * time.Second
	DefaultMaxConcurrentFetches = 4
)

var (
	ErrNoProvider = errors.New("market: provider is required")
	ErrNoTracked  = errors.New("market: at least one tracked symbol is required")
)

type Options struct {
	// Tracked is the ordered symbol set served by GetAllQuotes.
	Tracked []string
	// Limiter is waited on immediately before every provider call.
	Limiter ratelimit.Limiter
	// FetchTimeout bounds one provider call, including its rate limit wait.
	// The chunks of one request are fetched in turn, each under its own timeout.
	FetchTimeout time.Duration
	// MaxConcurrentFetches bounds provider calls in flight across all callers.
	MaxConcurrentFetches int
}

// Service is safe for concurrent use. The store is its only mutable state.
type Service struct {
	provider provider.Provider
	store    *cache.Store
	gen      *fallback.Generator
	log      logrus.FieldLogger

	tracked []string
	limiter ratelimit.Limiter
	timeout time.Duration
	slots   *semaphore.Weighted
	flight  singleflight.Group

	// ctx bounds every shared fetch and is canceled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	calls map[string]*call
}

// call is the context shared by everyone waiting on one in-flight chunk.
// It is canceled once the last waiter leaves.
type call struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func NewService(p provider.Provider, store *cache.Store, gen *fallback.Generator, log logrus.FieldLogger, opts Options) (*Service, error) {
	if p == nil {
		return nil, ErrNoProvider
	}
	tracked := provider.NormalizeSymbols(opts.Tracked)
	if len(tracked) == 0 {
		return nil, ErrNoTracked
	}
	if store == nil {
		store = cache.New(5 * time.Minute)
	}
	if gen == nil {
		gen = fallback.NewSeeded(uint64(time.Now().UnixNano()))
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.FixedDelay{}
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.MaxConcurrentFetches <= 0 {
		opts.MaxConcurrentFetches = DefaultMaxConcurrentFetches
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		ctx:      ctx,
		cancel:   cancel,
		calls:    map[string]*call{},
		provider: p,
		store:    store,
		gen:      gen,
		log:      log.WithField("provider", p.Name()),
		tracked:  tracked,
		limiter:  opts.Limiter,
		timeout:  opts.FetchTimeout,
		slots:    semaphore.NewWeighted(int64(opts.MaxConcurrentFetches)),
	}, nil
}

// Close abandons every fetch in flight. Callers waiting on one degrade as if
// the provider had failed; later calls never reach the provider.
func (s *Service) Close() {
	s.cancel()
}

func (s *Service) ProviderName() string { return s.provider.Name() }

func (s *Service) CacheTTL() time.Duration { return s.store.TTL() }

// TrackedSymbols returns a copy of the tracked set in order.
func (s *Service) TrackedSymbols() []string {
	return append([]string(nil), s.tracked...)
}

// HasRecentData reports whether at least one cached quote is still fresh.
// It has no effect on fetch decisions.
func (s *Service) HasRecentData() bool {
	return s.store.HasAnyFresh()
}

// GetQuote returns symbol from a fresh cache entry or fetches it. Provider
// failures degrade to the expired cache entry, then to a fallback quote.
// The only error returned is ctx's, in which case nothing is cached.
func (s *Service) GetQuote(ctx context.Context, symbol string) (provider.Quote, error) {
	symbol = provider.NormalizeSymbol(symbol)
	if e, ok := s.store.Get(symbol); ok && !e.Expired(s.store.Now()) {
		s.log.WithField("symbol", symbol).Debug("cache hit")
		return e.Quote.WithProvenance(provider.ProvenanceCached), nil
	}
	live, failed, err := s.fetchLive(ctx, []string{symbol})
	if err != nil {
		return provider.Quote{}, err
	}
	if q, ok := live[symbol]; ok {
		return q, nil
	}
	return s.degrade(symbol, failed[symbol]), nil
}

// GetAllQuotes returns one quote per tracked symbol in tracked order. When
// every tracked symbol is fresh in the cache no provider call is made;
// otherwise only the missing or expired symbols are fetched.
func (s *Service) GetAllQuotes(ctx context.Context) ([]provider.Quote, error) {
	now := s.store.Now()
	var missing []string
	for _, sym := range s.tracked {
		if e, ok := s.store.Get(sym); !ok || e.Expired(now) {
			missing = append(missing, sym)
		}
	}
	if len(missing) == 0 {
		s.log.WithField("symbols", len(s.tracked)).Debug("serving all quotes from cache")
		return s.GetCachedQuotes(), nil
	}
	live, failed, err := s.fetchLive(ctx, missing)
	if err != nil {
		return nil, err
	}

	out := make([]provider.Quote, 0, len(s.tracked))
	now = s.store.Now()
	for _, sym := range s.tracked {
		if q, ok := live[sym]; ok {
			out = append(out, q)
			continue
		}
		if e, ok := s.store.Get(sym); ok && !e.Expired(now) {
			out = append(out, e.Quote.WithProvenance(provider.ProvenanceCached))
			continue
		}
		out = append(out, s.degrade(sym, failed[sym]))
	}
	return out, nil
}

// GetCachedQuotes never performs network I/O: each tracked symbol comes from
// the cache, fresh or expired, or from the fallback generator.
func (s *Service) GetCachedQuotes() []provider.Quote {
	out := make([]provider.Quote, 0, len(s.tracked))
	for _, sym := range s.tracked {
		out = append(out, s.GetCachedQuote(sym))
	}
	return out
}

// GetCachedQuote is GetCachedQuotes for a single symbol, tracked or not.
func (s *Service) GetCachedQuote(symbol string) provider.Quote {
	symbol = provider.NormalizeSymbol(symbol)
	e, ok := s.store.Get(symbol)
	switch {
	case !ok:
		return s.gen.Generate(symbol)
	case e.Expired(s.store.Now()):
		return e.Quote.WithProvenance(provider.ProvenanceStale)
	default:
		return e.Quote.WithProvenance(provider.ProvenanceCached)
	}
}

// degrade resolves a symbol whose live fetch failed.
func (s *Service) degrade(symbol string, cause error) provider.Quote {
	log := s.log.WithFields(logrus.Fields{"symbol": symbol, "kind": provider.Classify(cause)})
	if cause != nil {
		log = log.WithError(cause)
	}
	if e, ok := s.store.Get(symbol); ok {
		log.WithField("age", s.store.Now().Sub(e.StoredAt).Round(time.Second)).Warn("serving stale quote")
		return e.Quote.WithProvenance(provider.ProvenanceStale)
	}
	log.Warn("serving fallback quote")
	return s.gen.Generate(symbol)
}

type chunkResult struct {
	quotes []provider.Quote
	err    error
}

// fetchLive fetches symbols from the provider and caches the answers. It
// returns the live quotes and, for every symbol left unanswered, its cause.
// The error is ctx's; when it is set nothing has been written to the cache.
//
// Chunks of one call are fetched one after another, so the limiter spaces
// consecutive provider calls. Identical chunks requested concurrently share
// one provider call.
func (s *Service) fetchLive(ctx context.Context, symbols []string) (map[string]provider.Quote, map[string]error, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	live := make(map[string]provider.Quote, len(symbols))
	failed := make(map[string]error)
	for _, c := range chunk(symbols, provider.MaxSymbolsPerRequest(s.provider)) {
		res, err := s.fetchShared(ctx, c)
		if err != nil {
			s.log.WithField("symbols", len(symbols)).Info("fetch abandoned by caller")
			return nil, nil, err
		}
		s.index(c, res, live, failed)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	for _, q := range live {
		s.store.Put(q)
	}
	return live, failed, nil
}

// fetchShared joins or starts the shared fetch of symbols and waits for it
// or for ctx. The shared fetch runs until its last waiter leaves or Close.
func (s *Service) fetchShared(ctx context.Context, symbols []string) (chunkResult, error) {
	key := strings.Join(symbols, ",")
	c := s.join(key)
	defer s.leave(key, c)

	ch := s.flight.DoChan(key, func() (any, error) {
		quotes, err := s.fetchChunk(c.ctx, symbols)
		return chunkResult{quotes: quotes, err: err}, nil
	})
	select {
	case <-ctx.Done():
		return chunkResult{}, ctx.Err()
	case r := <-ch:
		return r.Val.(chunkResult), nil
	}
}

func (s *Service) join(key string) *call {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[key]
	if !ok {
		ctx, cancel := context.WithCancel(s.ctx)
		c = &call{ctx: ctx, cancel: cancel}
		s.calls[key] = c
	}
	c.waiters++
	return c
}

// leave drops one waiter. The last one cancels the shared fetch and makes the
// next caller of key start a new one instead of joining the abandoned call.
func (s *Service) leave(key string, c *call) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.waiters--
	if c.waiters > 0 {
		return
	}
	c.cancel()
	delete(s.calls, key)
	s.flight.Forget(key)
}

func (s *Service) fetchChunk(ctx context.Context, symbols []string) ([]provider.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: waiting for a fetch slot: %w", provider.ErrUnavailable, err)
	}
	defer s.slots.Release(1)

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %w", provider.ErrUnavailable, err)
	}

	start := time.Now()
	quotes, err := s.provider.Fetch(ctx, symbols)
	if err != nil && ctx.Err() != nil && len(quotes) == 0 {
		err = fmt.Errorf("%w: %w", provider.ErrUnavailable, err)
	}
	log := s.log.WithFields(logrus.Fields{
		"symbols":  len(symbols),
		"quotes":   len(quotes),
		"duration": time.Since(start).Round(time.Millisecond),
	})
	switch {
	case err != nil && len(quotes) == 0:
		log.WithError(err).WithField("kind", provider.Classify(err)).Warn("fetch failed")
	case err != nil:
		log.WithError(err).Info("fetched quotes with skipped symbols")
	default:
		log.Info("fetched quotes")
	}
	return quotes, err
}

// index records one chunk's answer. Symbols that were not requested in the
// chunk are ignored and a symbol repeated in one response resolves to its
// last entry, whatever its timestamp.
func (s *Service) index(requested []string, res chunkResult, live map[string]provider.Quote, failed map[string]error) {
	want := make(map[string]struct{}, len(requested))
	for _, sym := range requested {
		want[sym] = struct{}{}
	}
	for _, q := range aggregate.Latest(res.quotes) {
		if _, ok := want[q.Symbol]; !ok {
			s.log.WithField("symbol", q.Symbol).Debug("ignoring unrequested symbol in response")
			continue
		}
		live[q.Symbol] = q.WithProvenance(provider.ProvenanceLive)
	}

	symErrs := provider.SymbolErrors(res.err)
	for _, sym := range requested {
		if _, ok := live[sym]; ok {
			continue
		}
		switch {
		case symErrs[sym] != nil:
			failed[sym] = symErrs[sym]
		case res.err != nil:
			failed[sym] = res.err
		default:
			failed[sym] = fmt.Errorf("%w: no quote returned", provider.ErrMalformedResponse)
		}
	}
}

// chunk splits symbols into groups of at most size; size 0 keeps them together.
func chunk(symbols []string, size int) [][]string {
	if size <= 0 || size >= len(symbols) {
		return [][]string{symbols}
	}
	var out [][]string
	for size < len(symbols) {
		symbols, out = symbols[size:], append(out, symbols[:size:size])
	}
	return append(out, symbols)
}
