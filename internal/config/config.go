package config

import (
    "encoding/json"
    "errors"
    "fmt"
    "net/url"
    "os"
    "path/filepath"
    "strconv"
    "strings"
    "time"

    "github.com/joho/godotenv"
    "gopkg.in/yaml.v3"

    "github.com/BlissPhinehas/trading-dashboard/internal/provider/ratelimit"
)

// Provider names accepted in Provider.Name.
const (
    ProviderYahoo        = "yahoo"
    ProviderAlphaVantage = "alphavantage"
)

type Server struct {
    Port              string `json:"port" yaml:"port"`
    RequestTimeoutSec int    `json:"request_timeout_sec" yaml:"request_timeout_sec"`
    WriteTimeoutSec   int    `json:"write_timeout_sec" yaml:"write_timeout_sec"`
    AllowedOrigin     string `json:"allowed_origin" yaml:"allowed_origin"`
    StreamIntervalSec int    `json:"stream_interval_sec" yaml:"stream_interval_sec"`
}

// Provider describes one upstream quote API. An empty Name disables it,
// which is only allowed for the secondary provider.
type Provider struct {
    Name       string `json:"name" yaml:"name"`
    BaseURL    string `json:"base_url" yaml:"base_url"`
    APIKey     string `json:"api_key" yaml:"api_key"`
    TimeoutSec int    `json:"timeout_sec" yaml:"timeout_sec"`
}

type Market struct {
    TrackedSymbols       []string `json:"tracked_symbols" yaml:"tracked_symbols"`
    CacheTTLSec          int      `json:"cache_ttl_sec" yaml:"cache_ttl_sec"`
    RequestDelayMs       int      `json:"request_delay_ms" yaml:"request_delay_ms"`
    RateLimitMode        string   `json:"rate_limit_mode" yaml:"rate_limit_mode"`
    MaxRequestsPerMinute int      `json:"max_requests_per_minute" yaml:"max_requests_per_minute"`
    Burst                int      `json:"burst" yaml:"burst"`
    FetchTimeoutSec      int      `json:"fetch_timeout_sec" yaml:"fetch_timeout_sec"`
    MaxConcurrentFetches int      `json:"max_concurrent_fetches" yaml:"max_concurrent_fetches"`
    // FallbackSeed seeds the fallback generator; 0 picks a time-based seed.
    FallbackSeed uint64 `json:"fallback_seed" yaml:"fallback_seed"`
}

type Scheduler struct {
    Enabled    bool   `json:"enabled" yaml:"enabled"`
    Spec       string `json:"spec" yaml:"spec"`
    RunOnStart bool   `json:"run_on_start" yaml:"run_on_start"`
}

type Log struct {
    Level  string `json:"level" yaml:"level"`
    Format string `json:"format" yaml:"format"`
}

type Config struct {
    Server    Server    `json:"server" yaml:"server"`
    Provider  Provider  `json:"provider" yaml:"provider"`
    Secondary Provider  `json:"secondary" yaml:"secondary"`
    Market    Market    `json:"market" yaml:"market"`
    Scheduler Scheduler `json:"scheduler" yaml:"scheduler"`
    Log       Log       `json:"log" yaml:"log"`
}

func Default() Config {
    return Config{
        Server: Server{
            Port:              "8080",
            RequestTimeoutSec: 15,
            WriteTimeoutSec:   60,
            AllowedOrigin:     "http://localhost:3000",
            StreamIntervalSec: 30,
        },
        Provider: Provider{
            Name:       ProviderYahoo,
            BaseURL:    "https://query1.finance.yahoo.com/v7/finance/quote",
            TimeoutSec: 10,
        },
        Secondary: Provider{
            BaseURL:    "https://www.alphavantage.co/query",
            TimeoutSec: 10,
        },
        Market: Market{
            TrackedSymbols:       []string{"AAPL", "GOOGL", "MSFT", "TSLA", "NVDA", "AMZN", "META", "NFLX"},
            CacheTTLSec:          600,
            RequestDelayMs:       3000,
            RateLimitMode:        ratelimit.ModeDelay,
            MaxRequestsPerMinute: 5,
            Burst:                1,
            FetchTimeoutSec:      10,
            MaxConcurrentFetches: 5,
        },
        Scheduler: Scheduler{
            Enabled:    true,
            Spec:       "@every 10m",
            RunOnStart: true,
        },
        Log: Log{Level: "info", Format: "text"},
    }
}

// Load builds the configuration from defaults, then the config file, then
// .env, then the environment. If path is empty, config.json, config.yaml and
// config.yml are tried in that order; a missing file is not an error.
func Load(path string) (Config, error) {
    cfg := Default()
    if path == "" {
        for _, candidate := range []string{"config.json", "config.yaml", "config.yml"} {
            if _, err := os.Stat(candidate); err == nil {
                path = candidate
                break
            }
        }
    }
    if path != "" {
        b, err := os.ReadFile(path)
        if err != nil && !errors.Is(err, os.ErrNotExist) {
            return cfg, fmt.Errorf("read config: %w", err)
        }
        if err == nil {
            if err := decode(path, b, &cfg); err != nil {
                return cfg, fmt.Errorf("parse config: %w", err)
            }
        }
    }
    // .env never overrides variables already set in the environment.
    if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
        return cfg, fmt.Errorf("load .env: %w", err)
    }
    if err := applyEnv(&cfg); err != nil {
        return cfg, err
    }
    return cfg, nil
}

func decode(path string, b []byte, cfg *Config) error {
    switch strings.ToLower(filepath.Ext(path)) {
    case ".yaml", ".yml":
        return yaml.Unmarshal(b, cfg)
    default:
        return json.Unmarshal(b, cfg)
    }
}

func applyEnv(cfg *Config) error {
    var errs []error
    str := func(key string, dst *string) {
        if v := os.Getenv(key); v != "" {
            *dst = v
        }
    }
    num := func(key string, dst *int) {
        if v := os.Getenv(key); v != "" {
            x, err := strconv.Atoi(strings.TrimSpace(v))
            if err != nil {
                errs = append(errs, fmt.Errorf("%s: %w", key, err))
                return
            }
            *dst = x
        }
    }
    flag := func(key string, dst *bool) {
        if v := os.Getenv(key); v != "" {
            switch strings.ToLower(strings.TrimSpace(v)) {
            case "1", "true", "yes", "y":
                *dst = true
            case "0", "false", "no", "n":
                *dst = false
            default:
                errs = append(errs, fmt.Errorf("%s: invalid boolean %q", key, v))
            }
        }
    }

    str("PORT", &cfg.Server.Port)
    num("REQUEST_TIMEOUT_SEC", &cfg.Server.RequestTimeoutSec)
    num("WRITE_TIMEOUT_SEC", &cfg.Server.WriteTimeoutSec)
    str("ALLOWED_ORIGIN", &cfg.Server.AllowedOrigin)
    num("STREAM_INTERVAL_SEC", &cfg.Server.StreamIntervalSec)

    str("PROVIDER", &cfg.Provider.Name)
    str("PROVIDER_BASE_URL", &cfg.Provider.BaseURL)
    str("PROVIDER_API_KEY", &cfg.Provider.APIKey)
    num("PROVIDER_TIMEOUT_SEC", &cfg.Provider.TimeoutSec)

    str("SECONDARY_PROVIDER", &cfg.Secondary.Name)
    str("SECONDARY_BASE_URL", &cfg.Secondary.BaseURL)
    str("SECONDARY_API_KEY", &cfg.Secondary.APIKey)
    num("SECONDARY_TIMEOUT_SEC", &cfg.Secondary.TimeoutSec)

    if v := os.Getenv("TRACKED_SYMBOLS"); v != "" {
        cfg.Market.TrackedSymbols = splitCSV(v)
    }
    num("CACHE_TTL_SEC", &cfg.Market.CacheTTLSec)
    num("REQUEST_DELAY_MS", &cfg.Market.RequestDelayMs)
    str("RATE_LIMIT_MODE", &cfg.Market.RateLimitMode)
    num("MAX_RPM", &cfg.Market.MaxRequestsPerMinute)
    num("BURST", &cfg.Market.Burst)
    num("FETCH_TIMEOUT_SEC", &cfg.Market.FetchTimeoutSec)
    num("MAX_CONCURRENT_FETCHES", &cfg.Market.MaxConcurrentFetches)
    if v := os.Getenv("FALLBACK_SEED"); v != "" {
        x, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
        if err != nil {
            errs = append(errs, fmt.Errorf("FALLBACK_SEED: %w", err))
        } else {
            cfg.Market.FallbackSeed = x
        }
    }

    flag("REFRESH_ENABLED", &cfg.Scheduler.Enabled)
    str("REFRESH_SCHEDULE", &cfg.Scheduler.Spec)
    flag("REFRESH_ON_START", &cfg.Scheduler.RunOnStart)

    str("LOG_LEVEL", &cfg.Log.Level)
    str("LOG_FORMAT", &cfg.Log.Format)

    if err := errors.Join(errs...); err != nil {
        return fmt.Errorf("environment: %w", err)
    }
    return nil
}

// Validate reports every configuration error at once.
func (c Config) Validate() error {
    var errs []error
    if c.Server.Port == "" {
        errs = append(errs, errors.New("server.port is required"))
    }
    if c.Server.RequestTimeoutSec <= 0 {
        errs = append(errs, errors.New("server.request_timeout_sec must be positive"))
    }
    if err := c.Provider.validate("provider"); err != nil {
        errs = append(errs, err)
    }
    if c.Secondary.Name != "" {
        if err := c.Secondary.validate("secondary"); err != nil {
            errs = append(errs, err)
        }
    }
    if len(c.Market.TrackedSymbols) == 0 {
        errs = append(errs, errors.New("market.tracked_symbols must not be empty"))
    }
    if c.Market.CacheTTLSec <= 0 {
        errs = append(errs, errors.New("market.cache_ttl_sec must be positive"))
    }
    if c.Market.FetchTimeoutSec <= 0 {
        errs = append(errs, errors.New("market.fetch_timeout_sec must be positive"))
    }
    if c.Market.RequestDelayMs < 0 {
        errs = append(errs, errors.New("market.request_delay_ms must not be negative"))
    }
    if _, err := c.Limiter(); err != nil {
        errs = append(errs, fmt.Errorf("market.rate_limit_mode: %w", err))
    }
    if c.Scheduler.Enabled && strings.TrimSpace(c.Scheduler.Spec) == "" {
        errs = append(errs, errors.New("scheduler.spec is required when the scheduler is enabled"))
    }
    return errors.Join(errs...)
}

func (p Provider) validate(field string) error {
    switch strings.ToLower(p.Name) {
    case ProviderYahoo:
    case ProviderAlphaVantage:
        if p.APIKey == "" {
            return fmt.Errorf("%s.api_key is required for %s", field, ProviderAlphaVantage)
        }
    default:
        return fmt.Errorf("%s.name: unknown provider %q", field, p.Name)
    }
    if p.BaseURL == "" {
        return fmt.Errorf("%s.base_url is required", field)
    }
    if u, err := url.Parse(p.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
        return fmt.Errorf("%s.base_url %q is not an absolute URL", field, p.BaseURL)
    }
    if p.TimeoutSec <= 0 {
        return fmt.Errorf("%s.timeout_sec must be positive", field)
    }
    return nil
}

// Limiter builds the rate limiter described by Market.
func (c Config) Limiter() (ratelimit.Limiter, error) {
    return ratelimit.New(c.Market.RateLimitMode, c.RequestDelay(), c.Market.MaxRequestsPerMinute, c.Market.Burst)
}

func (c Config) CacheTTL() time.Duration {
    return time.Duration(c.Market.CacheTTLSec) * time.Second
}

func (c Config) RequestDelay() time.Duration {
    return time.Duration(c.Market.RequestDelayMs) * time.Millisecond
}

func (c Config) FetchTimeout() time.Duration {
    return time.Duration(c.Market.FetchTimeoutSec) * time.Second
}

func (c Config) RequestTimeout() time.Duration {
    return time.Duration(c.Server.RequestTimeoutSec) * time.Second
}

func splitCSV(s string) []string {
    parts := strings.Split(s, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts {
        p = strings.TrimSpace(p)
        if p != "" {
            out = append(out, p)
        }
    }
    return out
}
