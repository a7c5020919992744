package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/AzielCF/az-wacrm/infrastructure/kvstore"
)

const (
	credsKey = "creds"
	metaKey  = "meta"
)

type KeyPair struct {
	Private Buffer `json:"private"`
	Public  Buffer `json:"public"`
}

type SignedKeyPair struct {
	KeyPair   KeyPair `json:"keyPair"`
	Signature Buffer  `json:"signature"`
	KeyID     uint32  `json:"keyId"`
}

type Me struct {
	ID   string `json:"id"`
	LID  string `json:"lid,omitempty"`
	Name string `json:"name,omitempty"`
}

// Creds is the device identity that survives restarts. Everything binary goes
// through Buffer; Account is the protobuf-encoded signed device identity.
type Creds struct {
	NoiseKey       KeyPair       `json:"noiseKey"`
	IdentityKey    KeyPair       `json:"signedIdentityKey"`
	SignedPreKey   SignedKeyPair `json:"signedPreKey"`
	RegistrationID uint32        `json:"registrationId"`
	AdvSecretKey   Buffer        `json:"advSecretKey"`
	Me             *Me           `json:"me,omitempty"`
	Platform       string        `json:"platform,omitempty"`
	Registered     bool          `json:"registered"`
	Account        Buffer        `json:"account,omitempty"`
}

// AuthState persists credentials and signal key material through a kvstore.
// Layout: <prefix>:creds, <prefix>:<category>-<id>, <prefix>:meta (hash).
type AuthState struct {
	store  kvstore.Store
	prefix string
}

func NewAuthState(store kvstore.Store, prefix string) *AuthState {
	prefix = strings.TrimSuffix(prefix, ":")
	if prefix == "" {
		prefix = "wa-session"
	}
	return &AuthState{store: store, prefix: prefix}
}

func (a *AuthState) Prefix() string { return a.prefix }

func (a *AuthState) Backend() string { return a.store.Backend() }

func (a *AuthState) key(name string) string {
	return a.prefix + ":" + name
}

func (a *AuthState) itemKey(category, id string) string {
	return a.key(category + "-" + id)
}

// LoadCreds returns nil without error when nothing has been paired yet.
func (a *AuthState) LoadCreds(ctx context.Context) (*Creds, error) {
	raw, found, err := a.store.Get(ctx, a.key(credsKey))
	if err != nil {
		return nil, fmt.Errorf("load creds: %w", err)
	}
	if !found || raw == "" {
		return nil, nil
	}
	var creds Creds
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return nil, fmt.Errorf("decode creds: %w", err)
	}
	return &creds, nil
}

func (a *AuthState) SaveCreds(ctx context.Context, creds *Creds) error {
	if creds == nil {
		return nil
	}
	raw, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encode creds: %w", err)
	}
	if err := a.store.Set(ctx, a.key(credsKey), string(raw)); err != nil {
		return fmt.Errorf("save creds: %w", err)
	}
	return nil
}

// WriteMeta merges fields into the session metadata hash.
func (a *AuthState) WriteMeta(ctx context.Context, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return a.store.HSet(ctx, a.key(metaKey), fields)
}

func (a *AuthState) Meta(ctx context.Context) (map[string]string, error) {
	return a.store.HGetAll(ctx, a.key(metaKey))
}

// MarkPaired records the paired identity in the metadata hash.
func (a *AuthState) MarkPaired(ctx context.Context, jid, pushName, platform string, at time.Time) error {
	return a.WriteMeta(ctx, map[string]string{
		"jid":       jid,
		"push_name": pushName,
		"platform":  platform,
		"paired_at": at.UTC().Format(time.RFC3339),
	})
}

// Keys is the signal key surface: pre-keys, sessions, sender keys, app
// state sync keys. Values are opaque trees encoded with MarshalValue.
func (a *AuthState) Keys() *KeyStore {
	return &KeyStore{auth: a}
}

type KeyStore struct {
	auth *AuthState
}

// Get returns the ids that exist; missing ids are simply absent from the map.
func (k *KeyStore) Get(ctx context.Context, category string, ids []string) (map[string]any, error) {
	out := make(map[string]any, len(ids))
	for _, id := range ids {
		raw, found, err := k.auth.store.Get(ctx, k.auth.itemKey(category, id))
		if err != nil {
			return nil, fmt.Errorf("get %s-%s: %w", category, id, err)
		}
		if !found {
			continue
		}
		v, err := UnmarshalValue([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decode %s-%s: %w", category, id, err)
		}
		out[id] = v
	}
	return out, nil
}

// Set writes data[category][id]. A nil value deletes the key.
func (k *KeyStore) Set(ctx context.Context, data map[string]map[string]any) error {
	var deletes []string
	for category, items := range data {
		for id, v := range items {
			key := k.auth.itemKey(category, id)
			if v == nil {
				deletes = append(deletes, key)
				continue
			}
			raw, err := MarshalValue(v)
			if err != nil {
				return fmt.Errorf("encode %s-%s: %w", category, id, err)
			}
			if err := k.auth.store.Set(ctx, key, string(raw)); err != nil {
				return fmt.Errorf("set %s-%s: %w", category, id, err)
			}
		}
	}
	if len(deletes) > 0 {
		if err := k.auth.store.Del(ctx, deletes...); err != nil {
			return fmt.Errorf("delete keys: %w", err)
		}
	}
	return nil
}

// IDs lists the ids stored under category.
func (k *KeyStore) IDs(ctx context.Context, category string) ([]string, error) {
	prefix := k.auth.itemKey(category, "")
	keys, err := k.auth.store.Keys(ctx, prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("list %s keys: %w", category, err)
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, prefix))
	}
	return ids, nil
}

// List returns every key under the prefix, without the prefix.
func (a *AuthState) List(ctx context.Context) ([]string, error) {
	keys, err := a.store.Keys(ctx, a.prefix+":*")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, a.prefix+":"))
	}
	return out, nil
}

// Clear wipes creds, keys and metadata. Used on logout.
func (a *AuthState) Clear(ctx context.Context) (int, error) {
	keys, err := a.store.Keys(ctx, a.prefix+":*")
	if err != nil {
		return 0, fmt.Errorf("list session keys: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := a.store.Del(ctx, keys...); err != nil {
		return 0, fmt.Errorf("delete session keys: %w", err)
	}
	return len(keys), nil
}
