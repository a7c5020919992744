package kvstore

import (
	"context"
	"fmt"

	"github.com/AzielCF/az-wacrm/infrastructure/valkey"
)

const scanBatch = 200

// ValkeyStore talks the native protocol to a Valkey/Redis server.
type ValkeyStore struct {
	client *valkey.Client
}

func NewValkeyStore(client *valkey.Client) *ValkeyStore {
	return &ValkeyStore{client: client}
}

// Client exposes the connection for pub/sub users such as the websocket hub.
func (s *ValkeyStore) Client() *valkey.Client {
	return s.client
}

func (s *ValkeyStore) Get(ctx context.Context, key string) (string, bool, error) {
	inner := s.client.Inner()
	val, err := inner.Do(ctx, inner.B().Get().Key(key).Build()).ToString()
	if valkey.IsNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("valkey GET %s: %w", key, err)
	}
	return val, true, nil
}

func (s *ValkeyStore) Set(ctx context.Context, key, value string) error {
	inner := s.client.Inner()
	if err := inner.Do(ctx, inner.B().Set().Key(key).Value(value).Build()).Error(); err != nil {
		return fmt.Errorf("valkey SET %s: %w", key, err)
	}
	return nil
}

func (s *ValkeyStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	inner := s.client.Inner()
	if err := inner.Do(ctx, inner.B().Del().Key(keys...).Build()).Error(); err != nil {
		return fmt.Errorf("valkey DEL: %w", err)
	}
	return nil
}

func (s *ValkeyStore) HGet(ctx context.Context, key, field string) (string, bool, error) {
	inner := s.client.Inner()
	val, err := inner.Do(ctx, inner.B().Hget().Key(key).Field(field).Build()).ToString()
	if valkey.IsNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("valkey HGET %s %s: %w", key, field, err)
	}
	return val, true, nil
}

func (s *ValkeyStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	inner := s.client.Inner()
	cmd := inner.B().Hset().Key(key).FieldValue()
	for f, v := range fields {
		cmd = cmd.FieldValue(f, v)
	}
	if err := inner.Do(ctx, cmd.Build()).Error(); err != nil {
		return fmt.Errorf("valkey HSET %s: %w", key, err)
	}
	return nil
}

func (s *ValkeyStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	inner := s.client.Inner()
	m, err := inner.Do(ctx, inner.B().Hgetall().Key(key).Build()).AsStrMap()
	if err != nil && !valkey.IsNil(err) {
		return nil, fmt.Errorf("valkey HGETALL %s: %w", key, err)
	}
	if m == nil {
		m = map[string]string{}
	}
	return m, nil
}

func (s *ValkeyStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	inner := s.client.Inner()
	var (
		cursor uint64
		keys   []string
	)
	for {
		entry, err := inner.Do(ctx, inner.B().Scan().Cursor(cursor).Match(pattern).Count(scanBatch).Build()).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("valkey SCAN %s: %w", pattern, err)
		}
		keys = append(keys, entry.Elements...)
		cursor = entry.Cursor
		if cursor == 0 {
			return keys, nil
		}
	}
}

func (s *ValkeyStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *ValkeyStore) Backend() string {
	return BackendValkey
}

func (s *ValkeyStore) Close() error {
	s.client.Close()
	return nil
}
