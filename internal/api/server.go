// Package api exposes the market service over HTTP and a websocket stream.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/BlissPhinehas/trading-dashboard/internal/market"
	"github.com/BlissPhinehas/trading-dashboard/internal/provider"
)

const serviceName = "Trading Dashboard API"

// Service is the part of market.Service the handlers use.
type Service interface {
	GetQuote(ctx context.Context, symbol string) (provider.Quote, error)
	GetAllQuotes(ctx context.Context) ([]provider.Quote, error)
	GetCachedQuotes() []provider.Quote
	GetCachedQuote(symbol string) provider.Quote
	HasRecentData() bool
	RefreshAll(ctx context.Context) market.RefreshReport
	TrackedSymbols() []string
	ProviderName() string
	CacheTTL() time.Duration
}

type Options struct {
	// RequestTimeout bounds endpoints that may reach the provider.
	RequestTimeout time.Duration
	// AllowedOrigin is sent as Access-Control-Allow-Origin and checked on
	// websocket upgrades. "*" allows any origin.
	AllowedOrigin   string
	StreamInterval  time.Duration
	RefreshSchedule string
	Version         string
}

type Server struct {
	svc  Service
	log  logrus.FieldLogger
	opts Options

	upgrader websocket.Upgrader

	// ctx outlives requests; background refreshes and streams run on it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	refreshID   string
	lastRefresh *refreshStatus
}

type refreshStatus struct {
	ID string `json:"refreshId"`
	market.RefreshReport
}

func New(svc Service, log logrus.FieldLogger, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.StreamInterval <= 0 {
		opts.StreamInterval = 30 * time.Second
	}
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		svc:    svc,
		log:    log,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/stocks/market-data", s.handleMarketData)
	mux.HandleFunc("GET /api/stocks/live", s.handleLive)
	mux.HandleFunc("GET /api/stocks/info", s.handleInfo)
	mux.HandleFunc("GET /api/stocks/stream", s.handleStream)
	mux.HandleFunc("POST /api/stocks/refresh", s.handleRefresh)
	mux.HandleFunc("GET /api/stocks/{symbol}", s.handleSymbol)

	return withRequestID(withAccessLog(s.log, withCORS(s.opts.AllowedOrigin, withJSONHeaders(withGzip(recoverPanic(s.log, limitBody(mux)))))))
}

// Close cancels background refreshes and open streams and waits for them.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || s.opts.AllowedOrigin == "*" || origin == s.opts.AllowedOrigin
}
