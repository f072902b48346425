package main

import (
    "context"
    "encoding/json"
    "flag"
    "fmt"
    "os"
    "os/signal"
    "strings"
    "syscall"
    "time"

    "github.com/sirupsen/logrus"

    "github.com/BlissPhinehas/trading-dashboard/internal/app"
    "github.com/BlissPhinehas/trading-dashboard/internal/config"
    "github.com/BlissPhinehas/trading-dashboard/internal/logging"
    "github.com/BlissPhinehas/trading-dashboard/internal/provider"
)

type quotesResponse struct {
    Quotes []provider.Quote `json:"quotes"`
    // Errors is only set with -raw: the provider failure per symbol.
    Errors map[string]string `json:"errors,omitempty"`
}

func main() {
    var symbolsCSV string
    var raw bool
    var timeout int
    var configPath string

    flag.StringVar(&symbolsCSV, "symbols", os.Getenv("SYMBOLS"), "comma-separated tickers (default: tracked symbols from config)")
    flag.BoolVar(&raw, "raw", false, "query the provider once per symbol with no cache or fallback; print failures instead of substitutes")
    flag.IntVar(&timeout, "timeout", 30, "overall timeout seconds")
    flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.json or config.yaml (optional)")
    flag.Parse()

    cfg, err := config.Load(configPath)
    log := logging.NewWithWriter(os.Stderr, cfg.Log.Level, cfg.Log.Format)
    if err != nil {
        log.WithError(err).Fatal("config")
    }
    if strings.TrimSpace(symbolsCSV) != "" {
        cfg.Market.TrackedSymbols = strings.Split(symbolsCSV, ",")
    }

    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()
    ctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
    defer cancel()

    var out quotesResponse
    if raw {
        out, err = fetchRaw(ctx, cfg, log)
    } else {
        out, err = fetchService(ctx, cfg, log)
    }
    if err != nil {
        log.WithError(err).Fatal("startup")
    }

    enc := json.NewEncoder(os.Stdout)
    enc.SetEscapeHTML(false)
    enc.SetIndent("", "  ")
    if err := enc.Encode(out); err != nil {
        log.WithError(err).Fatal("encode")
    }
}

func fetchService(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (quotesResponse, error) {
    svc, err := app.Build(cfg, log)
    if err != nil {
        return quotesResponse{}, err
    }
    defer svc.Close()

    quotes, err := svc.GetAllQuotes(ctx)
    if err != nil {
        log.WithError(err).Warn("fetch interrupted, printing fallback data")
        quotes = svc.GetCachedQuotes()
    }
    return quotesResponse{Quotes: quotes}, nil
}

// fetchRaw asks the provider for each symbol in turn, paced by the
// configured limiter.
func fetchRaw(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (quotesResponse, error) {
    if err := cfg.Validate(); err != nil {
        return quotesResponse{}, fmt.Errorf("invalid configuration: %w", err)
    }
    p, err := app.Provider(cfg, log)
    if err != nil {
        return quotesResponse{}, err
    }
    limiter, err := cfg.Limiter()
    if err != nil {
        return quotesResponse{}, err
    }

    out := quotesResponse{Errors: map[string]string{}}
    for _, sym := range provider.NormalizeSymbols(cfg.Market.TrackedSymbols) {
        if err := limiter.Wait(ctx); err != nil {
            out.Errors[sym] = err.Error()
            continue
        }
        q, err := provider.FetchOne(ctx, p, sym)
        if err != nil {
            log.WithError(err).WithField("symbol", sym).Warn("fetch failed")
            out.Errors[sym] = err.Error()
            continue
        }
        out.Quotes = append(out.Quotes, q)
    }
    return out, nil
}
