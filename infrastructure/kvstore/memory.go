package kvstore

import (
	"context"
	"path/filepath"
	"sort"
	"sync"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps everything in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu    sync.Mutex
	items *cache.Cache
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: cache.New(cache.NoExpiration, 0)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s.items.Get(key)
	if !ok {
		return "", false, nil
	}
	str, ok := v.(string)
	return str, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.items.Set(key, value, cache.NoExpiration)
	return nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		s.items.Delete(k)
	}
	return nil
}

func (s *MemoryStore) HGet(_ context.Context, key, field string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.hash(key)
	v, ok := h[field]
	return v, ok, nil
}

func (s *MemoryStore) HSet(_ context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.hash(key)
	next := make(map[string]string, len(h)+len(fields))
	for f, v := range h {
		next[f] = v
	}
	for f, v := range fields {
		next[f] = v
	}
	s.items.Set(key, next, cache.NoExpiration)
	return nil
}

func (s *MemoryStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.hash(key)
	out := make(map[string]string, len(h))
	for f, v := range h {
		out[f] = v
	}
	return out, nil
}

// hash must be called with mu held.
func (s *MemoryStore) hash(key string) map[string]string {
	v, ok := s.items.Get(key)
	if !ok {
		return nil
	}
	h, _ := v.(map[string]string)
	return h
}

func (s *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	var keys []string
	for k := range s.items.Items() {
		if ok, err := filepath.Match(pattern, k); err == nil && ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) Backend() string {
	return BackendMemory
}

func (s *MemoryStore) Close() error {
	s.items.Flush()
	return nil
}
