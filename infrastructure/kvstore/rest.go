package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/AzielCF/az-wacrm/infrastructure/httpclient"
)

// RESTStore speaks the managed KV REST protocol: each command is POSTed as a
// JSON array and answered with {"result": ...} or {"error": "..."}.
type RESTStore struct {
	http *httpclient.Client
}

func NewRESTStore(url, token string) *RESTStore {
	return &RESTStore{
		http: httpclient.New(httpclient.Config{
			BaseURL:     url,
			BearerToken: token,
			MaxRetries:  httpclient.DefaultMaxRetries,
		}),
	}
}

// NewRESTStoreWithClient is used by tests to inject a client without real sleeps.
func NewRESTStoreWithClient(client *httpclient.Client) *RESTStore {
	return &RESTStore{http: client}
}

type restReply struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func (s *RESTStore) command(ctx context.Context, args ...string) (json.RawMessage, error) {
	res, err := s.http.Post(ctx, "/", args)
	if err != nil {
		return nil, err
	}

	var reply restReply
	if len(res.Bytes()) > 0 {
		if decodeErr := res.Decode(&reply); decodeErr != nil && res.Success {
			return nil, fmt.Errorf("kv %s: decode reply: %w", args[0], decodeErr)
		}
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("kv %s: %s", args[0], reply.Error)
	}
	if !res.Success {
		return nil, fmt.Errorf("kv %s: %w", args[0], res.Err)
	}
	return reply.Result, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func (s *RESTStore) Get(ctx context.Context, key string) (string, bool, error) {
	raw, err := s.command(ctx, "GET", key)
	if err != nil {
		return "", false, err
	}
	if isNull(raw) {
		return "", false, nil
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false, fmt.Errorf("kv GET %s: %w", key, err)
	}
	return v, true, nil
}

func (s *RESTStore) Set(ctx context.Context, key, value string) error {
	_, err := s.command(ctx, "SET", key, value)
	return err
}

func (s *RESTStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.command(ctx, append([]string{"DEL"}, keys...)...)
	return err
}

func (s *RESTStore) HGet(ctx context.Context, key, field string) (string, bool, error) {
	raw, err := s.command(ctx, "HGET", key, field)
	if err != nil {
		return "", false, err
	}
	if isNull(raw) {
		return "", false, nil
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false, fmt.Errorf("kv HGET %s: %w", key, err)
	}
	return v, true, nil
}

func (s *RESTStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	args := []string{"HSET", key}
	for f, v := range fields {
		args = append(args, f, v)
	}
	_, err := s.command(ctx, args...)
	return err
}

func (s *RESTStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	raw, err := s.command(ctx, "HGETALL", key)
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	if isNull(raw) {
		return out, nil
	}
	var flat []string
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("kv HGETALL %s: %w", key, err)
	}
	for i := 0; i+1 < len(flat); i += 2 {
		out[flat[i]] = flat[i+1]
	}
	return out, nil
}

func (s *RESTStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor = "0"
		keys   []string
	)
	for {
		raw, err := s.command(ctx, "SCAN", cursor, "MATCH", pattern, "COUNT", strconv.Itoa(scanBatch))
		if err != nil {
			return nil, err
		}
		var page []json.RawMessage
		if err := json.Unmarshal(raw, &page); err != nil || len(page) != 2 {
			return nil, errors.New("kv SCAN: unexpected reply shape")
		}
		next, err := scanCursor(page[0])
		if err != nil {
			return nil, err
		}
		var batch []string
		if err := json.Unmarshal(page[1], &batch); err != nil {
			return nil, fmt.Errorf("kv SCAN: %w", err)
		}
		keys = append(keys, batch...)
		if next == "0" {
			return keys, nil
		}
		cursor = next
	}
}

// scanCursor accepts the cursor as a JSON string or number.
func scanCursor(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("kv SCAN cursor: %w", err)
	}
	return n.String(), nil
}

func (s *RESTStore) Ping(ctx context.Context) error {
	_, err := s.command(ctx, "PING")
	return err
}

func (s *RESTStore) Backend() string {
	return BackendREST
}

func (s *RESTStore) Close() error {
	return nil
}
