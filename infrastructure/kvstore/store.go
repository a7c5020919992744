package kvstore

import (
	"context"
	"errors"
)

const (
	BackendValkey = "valkey"
	BackendREST   = "rest"
	BackendMemory = "memory"
)

var ErrClosed = errors.New("kv store closed")

// Store is the string/hash key-value surface the session layer persists
// credentials through. Keys are used verbatim; namespacing is the caller's job.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, keys ...string) error
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	// Keys lists keys matching a glob pattern ("wa-session:*").
	Keys(ctx context.Context, pattern string) ([]string, error)
	Ping(ctx context.Context) error
	Backend() string
	Close() error
}
