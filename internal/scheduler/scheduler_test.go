package scheduler_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/BlissPhinehas/trading-dashboard/internal/market"
	"github.com/BlissPhinehas/trading-dashboard/internal/scheduler"
)

type fakeRefresher struct {
	calls atomic.Int32
	block bool
}

func (f *fakeRefresher) RefreshAll(ctx context.Context) market.RefreshReport {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return market.RefreshReport{Failed: map[string]string{"AAPL": "canceled"}}
	}
	return market.RefreshReport{Updated: []string{"AAPL"}}
}

func TestNew_InvalidSpec(t *testing.T) {
	t.Parallel()

	log, _ := logtest.NewNullLogger()

	// Act: build with a broken spec
	s, err := scheduler.New(&fakeRefresher{}, "every now and then", log)

	// Assert: a configuration error
	require.Error(t, err)
	require.Nil(t, s)
}

func TestScheduler_RunOnStart(t *testing.T) {
	t.Parallel()

	// Arrange: a schedule that will not fire during the test
	log, _ := logtest.NewNullLogger()
	r := &fakeRefresher{}
	s, err := scheduler.New(r, "@every 1h", log, scheduler.WithRunOnStart(true))
	require.NoError(t, err)

	// Act: start
	s.Start()

	// Assert: one immediate refresh
	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, s.Stop(t.Context()))
}

func TestScheduler_Tick(t *testing.T) {
	t.Parallel()

	// Arrange: the shortest schedule cron supports
	log, _ := logtest.NewNullLogger()
	r := &fakeRefresher{}
	s, err := scheduler.New(r, "@every 1s", log)
	require.NoError(t, err)

	// Act: start and wait for a tick
	s.Start()

	// Assert: the refresh runs on schedule
	require.Eventually(t, func() bool { return r.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	require.NoError(t, s.Stop(t.Context()))
}

func TestScheduler_StopCancelsRefresh(t *testing.T) {
	t.Parallel()

	// Arrange: a refresh that only returns once canceled
	log, _ := logtest.NewNullLogger()
	r := &fakeRefresher{block: true}
	s, err := scheduler.New(r, "@every 1h", log, scheduler.WithRunOnStart(true))
	require.NoError(t, err)
	s.Start()
	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 10*time.Millisecond)

	// Act: stop with a deadline
	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()
	err = s.Stop(ctx)

	// Assert: the blocked refresh was released in time
	require.NoError(t, err)
}
