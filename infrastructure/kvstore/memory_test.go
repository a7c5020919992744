package kvstore

import (
	"context"
	"testing"

	"github.com/AzielCF/az-wacrm/core/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_StringsAndHashes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, found, err := s.Get(ctx, "wa:creds")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Set(ctx, "wa:creds", `{"me":"x"}`))
	require.NoError(t, s.Set(ctx, "wa:pre-key-1", "a"))
	require.NoError(t, s.Set(ctx, "other:key", "b"))

	v, found, err := s.Get(ctx, "wa:creds")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"me":"x"}`, v)

	keys, err := s.Keys(ctx, "wa:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"wa:creds", "wa:pre-key-1"}, keys)

	require.NoError(t, s.HSet(ctx, "wa:meta", map[string]string{"jid": "55@s", "platform": "android"}))
	require.NoError(t, s.HSet(ctx, "wa:meta", map[string]string{"platform": "ios"}))
	meta, err := s.HGetAll(ctx, "wa:meta")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"jid": "55@s", "platform": "ios"}, meta)

	field, found, err := s.HGet(ctx, "wa:meta", "jid")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "55@s", field)

	require.NoError(t, s.Del(ctx, "wa:creds", "wa:meta"))
	keys, err = s.Keys(ctx, "wa:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"wa:pre-key-1"}, keys)
	assert.Equal(t, BackendMemory, s.Backend())
}

func TestOpen_FallsBackToMemory(t *testing.T) {
	store, degraded := Open(context.Background(), config.KVConfig{})
	assert.True(t, degraded)
	assert.Equal(t, BackendMemory, store.Backend())
}
