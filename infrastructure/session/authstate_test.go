package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AzielCF/az-wacrm/infrastructure/kvstore"
)

func TestAuthState_CredsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	auth := NewAuthState(store, "wa-session:")

	creds, err := auth.LoadCreds(ctx)
	require.NoError(t, err)
	assert.Nil(t, creds)

	in := &Creds{
		NoiseKey:       KeyPair{Private: Buffer{1, 2}, Public: Buffer{3, 4}},
		RegistrationID: 1234,
		AdvSecretKey:   Buffer{0xff},
		Me:             &Me{ID: "5511988887777@s.whatsapp.net", Name: "Maria"},
		Registered:     true,
	}
	require.NoError(t, auth.SaveCreds(ctx, in))

	raw, found, err := store.Get(ctx, "wa-session:creds")
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, raw, `"private":{"type":"Buffer","data":[1,2]}`)

	out, err := auth.LoadCreds(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestAuthState_KeysUseCategoryIDLayout(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	auth := NewAuthState(store, "wa-session")

	err := auth.Keys().Set(ctx, map[string]map[string]any{
		"pre-key": {
			"1": map[string]any{"public": []byte{7}, "private": []byte{8}},
			"2": map[string]any{"public": []byte{9}, "private": []byte{10}},
		},
	})
	require.NoError(t, err)

	_, found, err := store.Get(ctx, "wa-session:pre-key-1")
	require.NoError(t, err)
	assert.True(t, found)

	got, err := auth.Keys().Get(ctx, "pre-key", []string{"1", "3"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, map[string]any{"public": []byte{7}, "private": []byte{8}}, got["1"])

	require.NoError(t, auth.Keys().Set(ctx, map[string]map[string]any{"pre-key": {"1": nil}}))
	got, err = auth.Keys().Get(ctx, "pre-key", []string{"1", "2"})
	require.NoError(t, err)
	assert.NotContains(t, got, "1")
	assert.Contains(t, got, "2")
}

func TestAuthState_ClearRemovesOnlyOwnPrefix(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	auth := NewAuthState(store, "wa-session")

	require.NoError(t, auth.SaveCreds(ctx, &Creds{RegistrationID: 1}))
	require.NoError(t, auth.MarkPaired(ctx, "5511@s.whatsapp.net", "Maria", "android", time.Unix(0, 0)))
	require.NoError(t, store.Set(ctx, "other:creds", "x"))

	meta, err := auth.Meta(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Maria", meta["push_name"])
	assert.Equal(t, "1970-01-01T00:00:00Z", meta["paired_at"])

	n, err := auth.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	creds, err := auth.LoadCreds(ctx)
	require.NoError(t, err)
	assert.Nil(t, creds)

	_, found, err := store.Get(ctx, "other:creds")
	require.NoError(t, err)
	assert.True(t, found)
}
