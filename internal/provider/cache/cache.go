package cache

import (
	"sync"
	"time"

	"github.com/BlissPhinehas/trading-dashboard/internal/provider"
)

// Entry is the most recent quote stored for a symbol.
type Entry struct {
	Quote    provider.Quote
	StoredAt time.Time
	TTL      time.Duration
}

// Expired reports whether more than TTL has elapsed since the entry was stored.
// An entry exactly TTL old is still fresh.
func (e Entry) Expired(now time.Time) bool {
	return now.Sub(e.StoredAt) > e.TTL
}

// Store keeps one entry per symbol. Entries are never evicted: an expired
// entry stays readable as last-resort data until a newer quote replaces it.
type Store struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.RWMutex
	items map[string]Entry // key: symbol
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(ttl time.Duration, opts ...Option) *Store {
	s := &Store{ttl: ttl, now: time.Now, items: make(map[string]Entry)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) TTL() time.Duration { return s.ttl }

func (s *Store) Now() time.Time { return s.now() }

// Get returns the entry for symbol regardless of freshness.
func (s *Store) Get(symbol string) (Entry, bool) {
	s.mu.RLock()
	e, ok := s.items[symbol]
	s.mu.RUnlock()
	return e, ok
}

// Put overwrites the entry for q.Symbol with one stamped at the current time.
func (s *Store) Put(q provider.Quote) {
	e := Entry{Quote: q, StoredAt: s.now(), TTL: s.ttl}
	s.mu.Lock()
	s.items[q.Symbol] = e
	s.mu.Unlock()
}

// HasAnyFresh reports whether at least one entry is not expired.
func (s *Store) HasAnyFresh() bool {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.items {
		if !e.Expired(now) {
			return true
		}
	}
	return false
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
