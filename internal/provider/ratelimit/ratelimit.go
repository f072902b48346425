package ratelimit

import (
    "context"
    "fmt"
    "strings"
    "sync"
    "time"
)

// Limiter paces outbound provider calls. Wait blocks until the caller may
// issue its request or ctx is done.
type Limiter interface {
    Wait(ctx context.Context) error
}

// Modes accepted by New.
const (
    ModeNone        = "none"
    ModeDelay       = "delay"
    ModeInterval    = "interval"
    ModeTokenBucket = "token_bucket"
)

// New builds a limiter for mode. delay is used by ModeDelay and ModeInterval,
// perMinute and burst by ModeTokenBucket.
func New(mode string, delay time.Duration, perMinute, burst int) (Limiter, error) {
    switch strings.ToLower(strings.TrimSpace(mode)) {
    case ModeNone, "":
        return FixedDelay{}, nil
    case ModeDelay:
        return FixedDelay{Delay: delay}, nil
    case ModeInterval:
        return &MinInterval{Interval: delay}, nil
    case ModeTokenBucket:
        if perMinute <= 0 {
            return nil, fmt.Errorf("token bucket needs a positive requests-per-minute, got %d", perMinute)
        }
        return NewTokenBucket(float64(perMinute)/60.0, burst), nil
    default:
        return nil, fmt.Errorf("unknown rate limit mode %q", mode)
    }
}

// FixedDelay waits Delay before every call. Concurrent callers each wait
// independently; there is no shared lock.
type FixedDelay struct {
    Delay time.Duration
}

func (f FixedDelay) Wait(ctx context.Context) error {
    return sleep(ctx, f.Delay)
}

// MinInterval enforces a minimum time between call starts. Each caller
// reserves the next free slot under the lock, so concurrent callers queue up
// Interval apart instead of all firing once the first interval elapses.
type MinInterval struct {
    Interval time.Duration

    mu   sync.Mutex
    next time.Time
}

func (m *MinInterval) Wait(ctx context.Context) error {
    if m.Interval <= 0 {
        return ctx.Err()
    }
    m.mu.Lock()
    now := time.Now()
    slot := m.next
    if slot.Before(now) {
        slot = now
    }
    m.next = slot.Add(m.Interval)
    m.mu.Unlock()

    if err := sleep(ctx, time.Until(slot)); err != nil {
        // give the slot back if nobody reserved after us
        m.mu.Lock()
        if m.next.Equal(slot.Add(m.Interval)) {
            m.next = slot
        }
        m.mu.Unlock()
        return err
    }
    return nil
}

// sleep waits d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
    if d <= 0 {
        return ctx.Err()
    }
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return ctx.Err()
    case <-t.C:
        return nil
    }
}
