package cache

import (
	"context"
	"time"
)

// LayeredCache keeps an in-process L1 in front of an optional shared L2.
// With no L2 it behaves as a plain memory cache; locks then only exclude
// goroutines of this process.
type LayeredCache struct {
	l1 *MemoryCache
	l2 Service
}

func NewLayeredCache(l2 Service, opts ...MemoryOption) *LayeredCache {
	return &LayeredCache{l1: NewMemoryCache(opts...), l2: l2}
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if lc.l2 != nil {
		if err := lc.l2.Set(ctx, key, value, expiration); err != nil {
			return err
		}
	}
	return lc.l1.Set(ctx, key, value, expiration)
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.l1.Get(ctx, key, dest); err == nil {
		return nil
	}
	if lc.l2 == nil {
		return ErrCacheMiss
	}

	var raw []byte
	if err := lc.l2.Get(ctx, key, &raw); err != nil {
		return err
	}
	// TTL of the L2 entry is unknown here; the L1 default applies.
	_ = lc.l1.Set(ctx, key, raw, 0)
	return decode(raw, dest)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.l1.Delete(ctx, keys...)
	if lc.l2 != nil {
		return lc.l2.Delete(ctx, keys...)
	}
	return nil
}

func (lc *LayeredCache) Exists(ctx context.Context, key string) (bool, error) {
	if ok, _ := lc.l1.Exists(ctx, key); ok {
		return true, nil
	}
	if lc.l2 != nil {
		return lc.l2.Exists(ctx, key)
	}
	return false, nil
}

func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if lc.l2 != nil {
		return lc.l2.TryLock(ctx, key, ttl)
	}
	return lc.l1.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key string) error {
	if lc.l2 != nil {
		return lc.l2.Unlock(ctx, key)
	}
	return lc.l1.Unlock(ctx, key)
}

func (lc *LayeredCache) Close() error {
	_ = lc.l1.Close()
	if lc.l2 != nil {
		return lc.l2.Close()
	}
	return nil
}
