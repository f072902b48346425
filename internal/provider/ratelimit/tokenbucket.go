package ratelimit

import (
    "context"
    "sync"
    "time"
)

// TokenBucket allows bursts of up to capacity calls and refills at rate tokens per second.
type TokenBucket struct {
    rate     float64
    capacity float64

    mu     sync.Mutex
    tokens float64
    last   time.Time
}

func NewTokenBucket(tokensPerSecond float64, burst int) *TokenBucket {
    if tokensPerSecond <= 0 { tokensPerSecond = 0.0000001 }
    if burst <= 0 { burst = 1 }
    return &TokenBucket{
        rate:     tokensPerSecond,
        capacity: float64(burst),
        tokens:   float64(burst),
        last:     time.Now(),
    }
}

// take refills the bucket and consumes a token when one is available.
// Otherwise it returns how long until the next token.
func (tb *TokenBucket) take() (time.Duration, bool) {
    tb.mu.Lock()
    defer tb.mu.Unlock()
    now := time.Now()
    if elapsed := now.Sub(tb.last).Seconds(); elapsed > 0 {
        tb.tokens += elapsed * tb.rate
        if tb.tokens > tb.capacity {
            tb.tokens = tb.capacity
        }
        tb.last = now
    }
    if tb.tokens >= 1 {
        tb.tokens--
        return 0, true
    }
    wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
    if wait <= 0 { wait = time.Millisecond }
    return wait, false
}

// Wait blocks until a token is available or ctx is done.
func (tb *TokenBucket) Wait(ctx context.Context) error {
    for {
        if err := ctx.Err(); err != nil {
            return err
        }
        wait, ok := tb.take()
        if ok {
            return nil
        }
        if err := sleep(ctx, wait); err != nil {
            return err
        }
    }
}
