package main

import (
    "context"
    "errors"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/BlissPhinehas/trading-dashboard/internal/api"
    "github.com/BlissPhinehas/trading-dashboard/internal/app"
    "github.com/BlissPhinehas/trading-dashboard/internal/config"
    "github.com/BlissPhinehas/trading-dashboard/internal/logging"
    "github.com/BlissPhinehas/trading-dashboard/internal/scheduler"
)

const version = "1.0.0"

func main() {
    // Config
    cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
    log := logging.New(cfg.Log.Level, cfg.Log.Format)
    if err != nil {
        log.WithError(err).Fatal("config")
    }

    svc, err := app.Build(cfg, log)
    if err != nil {
        log.WithError(err).Fatal("startup")
    }

    var sched *scheduler.Scheduler
    if cfg.Scheduler.Enabled {
        sched, err = scheduler.New(svc, cfg.Scheduler.Spec, log, scheduler.WithRunOnStart(cfg.Scheduler.RunOnStart))
        if err != nil {
            log.WithError(err).Fatal("scheduler")
        }
        sched.Start()
    }

    apiServer := api.New(svc, log, api.Options{
        RequestTimeout:  cfg.RequestTimeout(),
        AllowedOrigin:   cfg.Server.AllowedOrigin,
        StreamInterval:  time.Duration(cfg.Server.StreamIntervalSec) * time.Second,
        RefreshSchedule: cfg.Scheduler.Spec,
        Version:         version,
    })

    srv := &http.Server{
        Addr:              ":" + cfg.Server.Port,
        Handler:           apiServer.Handler(),
        ReadHeaderTimeout: 5 * time.Second,
        ReadTimeout:       15 * time.Second,
        WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
        IdleTimeout:       60 * time.Second,
    }

    go func() {
        log.WithField("port", cfg.Server.Port).Info("server listening")
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            log.WithError(err).Fatal("server")
        }
    }()

    // graceful shutdown
    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()
    <-ctx.Done()
    log.Info("shutting down")

    shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    if sched != nil {
        if err := sched.Stop(shutdownCtx); err != nil {
            log.WithError(err).Warn("scheduler stop")
        }
    }
    if err := apiServer.Close(shutdownCtx); err != nil {
        log.WithError(err).Warn("background work did not finish")
    }
    svc.Close()
    if err := srv.Shutdown(shutdownCtx); err != nil {
        log.WithError(err).Warn("server shutdown")
    }
}
