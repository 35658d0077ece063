// Package cache provides a small byte-oriented cache used to memoise
// expensive catalog aggregates.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Fetch when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Cache stores opaque values under string keys.
type Cache interface {
	// Get returns the value and whether it was found.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores data; a zero ttl means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Fetch is Get with a miss reported as ErrCacheMiss.
func Fetch(ctx context.Context, c Cache, key string) ([]byte, error) {
	data, ok, err := c.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCacheMiss
	}
	return data, nil
}
