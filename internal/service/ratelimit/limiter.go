package ratelimit

import (
    "context"
    "sync"
    "time"
)

type bucket struct {
    tokens     float64
    capacity   float64
    refillRate float64 // tokens per second
    last       time.Time
}

type Limiter struct {
    mu  sync.Mutex
    m   map[string]*bucket
    now func() time.Time
}

func New() *Limiter { return &Limiter{m: make(map[string]*bucket), now: time.Now} }

// PerMinute converts a request quota into a refill rate.
func PerMinute(n int) float64 { return float64(n) / 60 }

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
    _, ok := l.reserve(key, capacity, refillPerSec)
    return ok
}

// Wait blocks until a token for key is available or ctx is done.
// A non-positive refill rate disables limiting.
func (l *Limiter) Wait(ctx context.Context, key string, capacity, refillPerSec float64) error {
    if refillPerSec <= 0 {
        return ctx.Err()
    }
    for {
        delay, ok := l.reserve(key, capacity, refillPerSec)
        if ok {
            return nil
        }
        t := time.NewTimer(delay)
        select {
        case <-ctx.Done():
            t.Stop()
            return ctx.Err()
        case <-t.C:
        }
    }
}

// reserve consumes a token if one is available, otherwise it reports how long
// until the next token.
func (l *Limiter) reserve(key string, capacity, refillPerSec float64) (time.Duration, bool) {
    now := l.now()
    l.mu.Lock()
    defer l.mu.Unlock()

    b, ok := l.m[key]
    if !ok {
        b = &bucket{tokens: capacity, capacity: capacity, refillRate: refillPerSec, last: now}
        l.m[key] = b
    }
    // refill
    elapsed := now.Sub(b.last).Seconds()
    if elapsed > 0 {
        b.tokens += elapsed * b.refillRate
        if b.tokens > b.capacity { b.tokens = b.capacity }
        b.last = now
    }
    if b.tokens >= 1 {
        b.tokens -= 1
        return 0, true
    }
    if b.refillRate <= 0 {
        return time.Second, false
    }
    missing := 1 - b.tokens
    return time.Duration(missing / b.refillRate * float64(time.Second)), false
}
