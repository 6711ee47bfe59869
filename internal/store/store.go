// Package store is a content-addressed artifact store for chunk, match and
// prediction artifacts. Each key is written at most once per process;
// concurrent requests for the same key share one computation.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ppiankov/shockeval/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Store wraps a Cache with JSON encoding and single-writer computation
type Store struct {
	cache Cache
	ttl   time.Duration
	group singleflight.Group
	log   *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a store over cache. A nil cache disables persistence.
func New(cache Cache, ttl time.Duration, log *zap.Logger) *Store {
	if cache == nil {
		cache = NopCache{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{cache: cache, ttl: ttl, log: log}
}

// FromConfig builds a layered store, or a pass-through store when caching is disabled
func FromConfig(cfg model.CacheConfig, log *zap.Logger) *Store {
	if !cfg.Enabled {
		return New(nil, 0, log)
	}
	return New(NewLayeredCache(cfg.MemoryTTL, cfg.Dir, cfg.DiskTTL), cfg.DiskTTL, log)
}

// Stats returns cache hits and misses since creation
func (s *Store) Stats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}

// Load returns the artifact at key, computing and storing it on a miss.
// Failed computations are not stored.
func Load[T any](ctx context.Context, s *Store, key string, compute func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	data, err, _ := s.group.Do(key, func() (interface{}, error) {
		if cached, ok := s.cache.Get(key); ok {
			s.hits.Add(1)
			return cached, nil
		}
		s.misses.Add(1)

		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode artifact %s: %w", key, err)
		}
		if err := s.cache.Set(key, encoded, s.ttl); err != nil {
			// The artifact is still usable for this run
			s.log.Warn("failed to persist artifact", zap.String("key", key), zap.Error(err))
		}
		return encoded, nil
	})
	if err != nil {
		return zero, err
	}

	var out T
	if err := json.Unmarshal(data.([]byte), &out); err != nil {
		return zero, fmt.Errorf("decode artifact %s: %w", key, err)
	}
	return out, nil
}

// Put stores v at key, overwriting any previous artifact
func (s *Store) Put(key string, v interface{}) error {
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode artifact %s: %w", key, err)
	}
	return s.cache.Set(key, encoded, s.ttl)
}

// Get decodes the artifact at key into v
func (s *Store) Get(key string, v interface{}) (bool, error) {
	data, ok := s.cache.Get(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode artifact %s: %w", key, err)
	}
	return true, nil
}
