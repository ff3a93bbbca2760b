package store

import (
	"context"
	"errors"
)

var ErrKeyNotFound = errors.New("key not found")

// Store is a flat string key-value tier. Writes are last-write-wins at key
// granularity; no multi-key transaction is ever required by callers, every
// session operation is expressed as independent per-key writes.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, keys ...string) error
}
