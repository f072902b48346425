package app_test

import (
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/BlissPhinehas/trading-dashboard/internal/app"
	"github.com/BlissPhinehas/trading-dashboard/internal/config"
	"github.com/BlissPhinehas/trading-dashboard/internal/provider"
)

func TestBuild_Defaults(t *testing.T) {
	t.Parallel()

	// Arrange: default configuration
	log, hook := logtest.NewNullLogger()

	// Act: build
	svc, err := app.Build(config.Default(), log)

	// Assert: service over the Yahoo client, nothing fetched yet
	require.NoError(t, err)
	require.Equal(t, "Yahoo", svc.ProviderName())
	require.Equal(t, config.Default().Market.TrackedSymbols, svc.TrackedSymbols())
	require.False(t, svc.HasRecentData())
	require.Equal(t, "market service ready", hook.LastEntry().Message)
}

func TestBuild_Chain(t *testing.T) {
	t.Parallel()

	// Arrange: Alpha Vantage as secondary
	cfg := config.Default()
	cfg.Secondary.Name = config.ProviderAlphaVantage
	cfg.Secondary.APIKey = "demo"
	log, _ := logtest.NewNullLogger()

	// Act: build
	svc, err := app.Build(cfg, log)

	// Assert: both providers are in the chain
	require.NoError(t, err)
	require.Equal(t, "Yahoo>AlphaVantage", svc.ProviderName())
}

func TestBuild_InvalidConfiguration(t *testing.T) {
	t.Parallel()

	// Arrange: Alpha Vantage without a key
	cfg := config.Default()
	cfg.Provider.Name = config.ProviderAlphaVantage
	log, _ := logtest.NewNullLogger()

	// Act: build
	svc, err := app.Build(cfg, log)

	// Assert: a startup error
	require.ErrorContains(t, err, "invalid configuration")
	require.Nil(t, svc)
}

func TestNewProvider(t *testing.T) {
	t.Parallel()

	log, _ := logtest.NewNullLogger()

	// Act + Assert: Alpha Vantage serves one symbol per request
	p, err := app.NewProvider(config.Provider{Name: "AlphaVantage", APIKey: "k", BaseURL: "http://localhost", TimeoutSec: 1}, 0, log)
	require.NoError(t, err)
	require.Equal(t, 1, provider.MaxSymbolsPerRequest(p))

	// Act + Assert: unknown names fail
	_, err = app.NewProvider(config.Provider{Name: "nope"}, 0, log)
	require.Error(t, err)
}

func TestProvider(t *testing.T) {
	t.Parallel()

	log, _ := logtest.NewNullLogger()

	// Act + Assert: the primary alone
	p, err := app.Provider(config.Default(), log)
	require.NoError(t, err)
	require.Equal(t, "Yahoo", p.Name())

	// Act + Assert: chained with a secondary
	cfg := config.Default()
	cfg.Secondary.Name = config.ProviderAlphaVantage
	cfg.Secondary.APIKey = "demo"
	p, err = app.Provider(cfg, log)
	require.NoError(t, err)
	require.Equal(t, "Yahoo>AlphaVantage", p.Name())
}
