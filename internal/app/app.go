// Package app wires configuration into a ready quote service.
package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BlissPhinehas/trading-dashboard/internal/config"
	"github.com/BlissPhinehas/trading-dashboard/internal/fallback"
	"github.com/BlissPhinehas/trading-dashboard/internal/httpx"
	"github.com/BlissPhinehas/trading-dashboard/internal/market"
	"github.com/BlissPhinehas/trading-dashboard/internal/provider"
	"github.com/BlissPhinehas/trading-dashboard/internal/provider/alphavantage"
	"github.com/BlissPhinehas/trading-dashboard/internal/provider/cache"
	"github.com/BlissPhinehas/trading-dashboard/internal/provider/chain"
	"github.com/BlissPhinehas/trading-dashboard/internal/provider/ratelimit"
	"github.com/BlissPhinehas/trading-dashboard/internal/provider/yahoo"
)

// Build validates cfg and assembles the market service. Configuration
// errors are returned here so binaries fail at startup, never per request.
func Build(cfg config.Config, log logrus.FieldLogger) (*market.Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	p, err := Provider(cfg, log)
	if err != nil {
		return nil, err
	}

	limiter, err := cfg.Limiter()
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	seed := cfg.Market.FallbackSeed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	svc, err := market.NewService(
		p,
		cache.New(cfg.CacheTTL()),
		fallback.NewSeeded(seed),
		log,
		market.Options{
			Tracked:              cfg.Market.TrackedSymbols,
			Limiter:              limiter,
			FetchTimeout:         cfg.FetchTimeout(),
			MaxConcurrentFetches: cfg.Market.MaxConcurrentFetches,
		},
	)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"provider":  p.Name(),
		"symbols":   len(svc.TrackedSymbols()),
		"cache_ttl": cfg.CacheTTL(),
		"limiter":   cfg.Market.RateLimitMode,
	}).Info("market service ready")
	return svc, nil
}

// Provider builds the configured primary provider, chained with the
// secondary when one is set. cfg is assumed valid.
func Provider(cfg config.Config, log logrus.FieldLogger) (provider.Provider, error) {
	primary, err := NewProvider(cfg.Provider, cfg.RequestDelay(), log)
	if err != nil {
		return nil, fmt.Errorf("provider: %w", err)
	}
	if cfg.Secondary.Name == "" {
		return primary, nil
	}
	secondary, err := NewProvider(cfg.Secondary, cfg.RequestDelay(), log)
	if err != nil {
		return nil, fmt.Errorf("secondary provider: %w", err)
	}
	return chain.New(primary, secondary), nil
}

// NewProvider builds the client named by pc. delay paces the per-symbol
// requests of providers that cannot combine symbols.
func NewProvider(pc config.Provider, delay time.Duration, log logrus.FieldLogger) (provider.Provider, error) {
	hc := httpx.New(time.Duration(pc.TimeoutSec) * time.Second)
	hc.Log = log

	switch strings.ToLower(pc.Name) {
	case config.ProviderYahoo:
		return yahoo.NewClient(pc.APIKey,
			yahoo.WithBaseURL(pc.BaseURL),
			yahoo.WithHTTPClient(hc),
		), nil
	case config.ProviderAlphaVantage:
		return alphavantage.NewClient(pc.APIKey,
			alphavantage.WithBaseURL(pc.BaseURL),
			alphavantage.WithHTTPClient(hc),
			alphavantage.WithLimiter(&ratelimit.MinInterval{Interval: delay}),
		)
	default:
		return nil, fmt.Errorf("unknown provider %q", pc.Name)
	}
}
