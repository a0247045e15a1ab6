// Package kv caches scheduler accounting reports. Valkey/Redis backs shared
// caches; MemoryStore serves single runs and tests.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned for missing and expired keys.
var ErrNotFound = errors.New("kv: key not found")

// Store is a byte-valued cache with per-key TTL. A zero TTL never expires.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns ErrNotFound for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete is a no-op for a missing key.
	Delete(ctx context.Context, key string) error
	// SetNX writes only if the key is absent and reports whether it wrote.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Close() error
}
