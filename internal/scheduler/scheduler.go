// Package scheduler refreshes the tracked quotes on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/BlissPhinehas/trading-dashboard/internal/market"
)

// DefaultSpec refreshes every ten minutes.
const DefaultSpec = "@every 10m"

type Refresher interface {
	RefreshAll(ctx context.Context) market.RefreshReport
}

// Scheduler owns the periodic refresh. Runs never overlap: a tick that
// arrives while a refresh is still going is skipped.
type Scheduler struct {
	cron       *cron.Cron
	refresher  Refresher
	log        logrus.FieldLogger
	runOnStart bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	busy   sync.Mutex
}

type Option func(*Scheduler)

// WithRunOnStart triggers one refresh as soon as Start is called.
func WithRunOnStart(on bool) Option {
	return func(s *Scheduler) { s.runOnStart = on }
}

func New(r Refresher, spec string, log logrus.FieldLogger, opts ...Option) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	logger := cron.PrintfLogger(log)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:      cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		refresher: r,
		log:       log.WithField("component", "scheduler"),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		cancel()
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	if s.runOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.run()
		}()
	}
	s.log.Info("scheduler started")
}

// Stop cancels a refresh in progress and waits for it to return or for ctx
// to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run() {
	if !s.busy.TryLock() {
		s.log.Debug("refresh already running, skipping")
		return
	}
	defer s.busy.Unlock()
	if s.ctx.Err() != nil {
		return
	}
	report := s.refresher.RefreshAll(s.ctx)
	s.log.WithFields(logrus.Fields{
		"updated": len(report.Updated),
		"failed":  len(report.Failed),
	}).Info("scheduled refresh finished")
}
