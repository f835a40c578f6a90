// Package cache provides a TTL in-memory cache used to deduplicate analysis
// pipeline runs on identical data snapshots.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrNotFound = errors.New("cache entry not found")

type entry struct {
	expiresAt time.Time
	v         any
}

func (e *entry) isExpired() bool {
	return time.Since(e.expiresAt) > 0
}

type Memory struct {
	m          *sync.Map
	defaultTTL time.Duration
}

// NewMemory returns a memory cache whose janitor runs until ctx is done.
func NewMemory(ctx context.Context, defaultTTL time.Duration) *Memory {
	cache := &Memory{
		m:          new(sync.Map),
		defaultTTL: defaultTTL,
	}

	go cache.expirer(ctx)

	return cache
}

func (m *Memory) Set(ctx context.Context, k string, v any, ttl ...time.Duration) error {
	entryTTL := m.defaultTTL
	if len(ttl) > 0 {
		entryTTL = ttl[0]
	}

	m.m.Store(k, &entry{
		expiresAt: time.Now().Add(entryTTL),
		v:         v,
	})

	slog.Debug("new cache entry", "key", k)
	return nil
}

// GetOrSet returns the cached value for key or computes, stores and returns
// it through valueFunc.
func (m *Memory) GetOrSet(ctx context.Context, key string, valueFunc func(ctx context.Context) (any, error), ttl ...time.Duration) (v any, err error) {
	v, err = m.Get(ctx, key)
	if err != nil {
		if err == ErrNotFound {
			v, err = valueFunc(ctx)
			if err != nil {
				return nil, err
			}

			err = m.Set(ctx, key, v, ttl...)
			if err != nil {
				return nil, err
			}

			return v, nil
		}
		return nil, err
	}

	return v, nil
}

func (m *Memory) Get(ctx context.Context, k string) (v any, err error) {
	v, found := m.m.Load(k)
	if !found {
		return nil, ErrNotFound
	}

	cached, ok := v.(*entry)
	if !ok {
		return nil, errors.New("loaded value is not a cache entry")
	}

	if cached.isExpired() {
		slog.Debug("cache expired", "key", k)
		m.m.Delete(k)
		return nil, ErrNotFound
	}

	return cached.v, nil
}

func (m *Memory) expirer(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.m.Range(func(k, v any) bool {
			cached, ok := v.(*entry)
			if !ok {
				return true
			}

			if cached.isExpired() {
				slog.Debug("cache expired", "key", k)
				m.m.Delete(k)
			}

			return true
		})
	}
}
