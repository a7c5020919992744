package whatsapp

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/util/keys"

	"github.com/AzielCF/az-wacrm/infrastructure/session"
)

const (
	categoryIdentity   = "identity-key"
	categorySession    = "session"
	categoryPreKey     = "pre-key"
	categorySenderKey  = "sender-key"
	categoryAppSyncKey = "app-state-sync-key"
)

// signalStore keeps the signal key material in the session AuthState, next
// to the creds, so a restart on the same kvstore resumes the same sessions.
// Contacts, app state and the other device tables stay in the sqlstore.
type signalStore struct {
	keys *session.KeyStore

	// preKeyMu serializes pre-key id allocation.
	preKeyMu sync.Mutex
}

var (
	_ store.IdentityStore        = (*signalStore)(nil)
	_ store.SessionStore         = (*signalStore)(nil)
	_ store.PreKeyStore          = (*signalStore)(nil)
	_ store.SenderKeyStore       = (*signalStore)(nil)
	_ store.AppStateSyncKeyStore = (*signalStore)(nil)
)

func newSignalStore(auth *session.AuthState) *signalStore {
	return &signalStore{keys: auth.Keys()}
}

// attach points the device's signal stores at the kvstore.
func (s *signalStore) attach(device *store.Device) {
	device.Identities = s
	device.Sessions = s
	device.PreKeys = s
	device.SenderKeys = s
	device.AppStateKeys = s
}

func (s *signalStore) get(ctx context.Context, category, id string) (any, bool, error) {
	items, err := s.keys.Get(ctx, category, []string{id})
	if err != nil {
		return nil, false, err
	}
	v, ok := items[id]
	return v, ok, nil
}

func (s *signalStore) getBytes(ctx context.Context, category, id string) ([]byte, error) {
	v, ok, err := s.get(ctx, category, id)
	if err != nil || !ok {
		return nil, err
	}
	b, _ := v.([]byte)
	return b, nil
}

func (s *signalStore) put(ctx context.Context, category string, items map[string]any) error {
	return s.keys.Set(ctx, map[string]map[string]any{category: items})
}

func (s *signalStore) remove(ctx context.Context, category string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	items := make(map[string]any, len(ids))
	for _, id := range ids {
		items[id] = nil
	}
	return s.put(ctx, category, items)
}

// removeAddresses drops every entry of category belonging to the given
// signal address name, whatever the device number.
func (s *signalStore) removeAddresses(ctx context.Context, category, name string) error {
	ids, err := s.keys.IDs(ctx, category)
	if err != nil {
		return err
	}
	var matched []string
	for _, id := range ids {
		if strings.HasPrefix(id, name+":") {
			matched = append(matched, id)
		}
	}
	return s.remove(ctx, category, matched...)
}

func (s *signalStore) PutIdentity(ctx context.Context, address string, key [32]byte) error {
	return s.put(ctx, categoryIdentity, map[string]any{address: key[:]})
}

func (s *signalStore) DeleteAllIdentities(ctx context.Context, phone string) error {
	return s.removeAddresses(ctx, categoryIdentity, phone)
}

func (s *signalStore) DeleteIdentity(ctx context.Context, address string) error {
	return s.remove(ctx, categoryIdentity, address)
}

// IsTrustedIdentity trusts the first key seen for an address.
func (s *signalStore) IsTrustedIdentity(ctx context.Context, address string, key [32]byte) (bool, error) {
	known, err := s.getBytes(ctx, categoryIdentity, address)
	if err != nil {
		return false, err
	}
	return known == nil || bytes.Equal(known, key[:]), nil
}

func (s *signalStore) GetSession(ctx context.Context, address string) ([]byte, error) {
	return s.getBytes(ctx, categorySession, address)
}

func (s *signalStore) HasSession(ctx context.Context, address string) (bool, error) {
	_, ok, err := s.get(ctx, categorySession, address)
	return ok, err
}

func (s *signalStore) GetManySessions(ctx context.Context, addresses []string) (map[string][]byte, error) {
	items, err := s.keys.Get(ctx, categorySession, addresses)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(addresses))
	for _, addr := range addresses {
		b, _ := items[addr].([]byte)
		out[addr] = b
	}
	return out, nil
}

func (s *signalStore) PutSession(ctx context.Context, address string, session []byte) error {
	return s.put(ctx, categorySession, map[string]any{address: session})
}

func (s *signalStore) PutManySessions(ctx context.Context, sessions map[string][]byte) error {
	items := make(map[string]any, len(sessions))
	for addr, b := range sessions {
		items[addr] = b
	}
	return s.put(ctx, categorySession, items)
}

func (s *signalStore) DeleteAllSessions(ctx context.Context, phone string) error {
	return s.removeAddresses(ctx, categorySession, phone)
}

func (s *signalStore) DeleteSession(ctx context.Context, address string) error {
	return s.remove(ctx, categorySession, address)
}

// MigratePNToLID moves sessions and identities from the phone-number address
// to the LID address, keeping the device numbers.
func (s *signalStore) MigratePNToLID(ctx context.Context, pn, lid types.JID) error {
	from := pn.SignalAddress().Name()
	to := lid.SignalAddress().Name()
	for _, category := range []string{categorySession, categoryIdentity} {
		ids, err := s.keys.IDs(ctx, category)
		if err != nil {
			return err
		}
		var moved []string
		for _, id := range ids {
			if strings.HasPrefix(id, from+":") {
				moved = append(moved, id)
			}
		}
		if len(moved) == 0 {
			continue
		}
		items, err := s.keys.Get(ctx, category, moved)
		if err != nil {
			return err
		}
		renamed := make(map[string]any, len(items)*2)
		for id, v := range items {
			renamed[to+strings.TrimPrefix(id, from)] = v
			renamed[id] = nil
		}
		if err := s.put(ctx, category, renamed); err != nil {
			return fmt.Errorf("migrate %s to lid: %w", category, err)
		}
	}
	return nil
}

func (s *signalStore) preKeyIDs(ctx context.Context) ([]uint32, error) {
	raw, err := s.keys.IDs(ctx, categoryPreKey)
	if err != nil {
		return nil, err
	}
	ids := make([]uint32, 0, len(raw))
	for _, r := range raw {
		if id, err := strconv.ParseUint(r, 10, 32); err == nil {
			ids = append(ids, uint32(id))
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *signalStore) loadPreKeys(ctx context.Context, ids []uint32) ([]*keys.PreKey, []bool, error) {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = strconv.FormatUint(uint64(id), 10)
	}
	items, err := s.keys.Get(ctx, categoryPreKey, names)
	if err != nil {
		return nil, nil, err
	}
	var (
		out      []*keys.PreKey
		uploaded []bool
	)
	for i, id := range ids {
		record, _ := items[names[i]].(map[string]any)
		priv, _ := record["private"].([]byte)
		if len(priv) != 32 {
			continue
		}
		out = append(out, &keys.PreKey{KeyPair: *keys.NewKeyPairFromPrivateKey([32]byte(priv)), KeyID: id})
		done, _ := record["uploaded"].(bool)
		uploaded = append(uploaded, done)
	}
	return out, uploaded, nil
}

func (s *signalStore) putPreKeys(ctx context.Context, preKeys []*keys.PreKey, uploaded bool) error {
	items := make(map[string]any, len(preKeys))
	for _, pk := range preKeys {
		items[strconv.FormatUint(uint64(pk.KeyID), 10)] = map[string]any{
			"private":  pk.Priv[:],
			"uploaded": uploaded,
		}
	}
	return s.put(ctx, categoryPreKey, items)
}

func (s *signalStore) generatePreKeys(ctx context.Context, count int, uploaded bool) ([]*keys.PreKey, error) {
	ids, err := s.preKeyIDs(ctx)
	if err != nil {
		return nil, err
	}
	next := uint32(1)
	if len(ids) > 0 {
		next = ids[len(ids)-1] + 1
	}
	generated := make([]*keys.PreKey, count)
	for i := range generated {
		generated[i] = keys.NewPreKey(next + uint32(i))
	}
	if err := s.putPreKeys(ctx, generated, uploaded); err != nil {
		return nil, fmt.Errorf("save pre-keys: %w", err)
	}
	return generated, nil
}

// GetOrGenPreKeys returns up to count keys not yet uploaded, generating the
// missing ones.
func (s *signalStore) GetOrGenPreKeys(ctx context.Context, count uint32) ([]*keys.PreKey, error) {
	s.preKeyMu.Lock()
	defer s.preKeyMu.Unlock()

	ids, err := s.preKeyIDs(ctx)
	if err != nil {
		return nil, err
	}
	all, uploaded, err := s.loadPreKeys(ctx, ids)
	if err != nil {
		return nil, err
	}
	var pending []*keys.PreKey
	for i, pk := range all {
		if !uploaded[i] && len(pending) < int(count) {
			pending = append(pending, pk)
		}
	}
	if missing := int(count) - len(pending); missing > 0 {
		generated, err := s.generatePreKeys(ctx, missing, false)
		if err != nil {
			return nil, err
		}
		pending = append(pending, generated...)
	}
	return pending, nil
}

func (s *signalStore) GenOnePreKey(ctx context.Context) (*keys.PreKey, error) {
	s.preKeyMu.Lock()
	defer s.preKeyMu.Unlock()

	generated, err := s.generatePreKeys(ctx, 1, true)
	if err != nil {
		return nil, err
	}
	return generated[0], nil
}

func (s *signalStore) GetPreKey(ctx context.Context, id uint32) (*keys.PreKey, error) {
	found, _, err := s.loadPreKeys(ctx, []uint32{id})
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return found[0], nil
}

func (s *signalStore) RemovePreKey(ctx context.Context, id uint32) error {
	return s.remove(ctx, categoryPreKey, strconv.FormatUint(uint64(id), 10))
}

func (s *signalStore) MarkPreKeysAsUploaded(ctx context.Context, upToID uint32) error {
	s.preKeyMu.Lock()
	defer s.preKeyMu.Unlock()

	ids, err := s.preKeyIDs(ctx)
	if err != nil {
		return err
	}
	var below []uint32
	for _, id := range ids {
		if id <= upToID {
			below = append(below, id)
		}
	}
	found, _, err := s.loadPreKeys(ctx, below)
	if err != nil {
		return err
	}
	return s.putPreKeys(ctx, found, true)
}

func (s *signalStore) UploadedPreKeyCount(ctx context.Context) (int, error) {
	ids, err := s.preKeyIDs(ctx)
	if err != nil {
		return 0, err
	}
	_, uploaded, err := s.loadPreKeys(ctx, ids)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, done := range uploaded {
		if done {
			n++
		}
	}
	return n, nil
}

func senderKeyID(group, user string) string {
	return group + "::" + user
}

func (s *signalStore) PutSenderKey(ctx context.Context, group, user string, session []byte) error {
	return s.put(ctx, categorySenderKey, map[string]any{senderKeyID(group, user): session})
}

func (s *signalStore) GetSenderKey(ctx context.Context, group, user string) ([]byte, error) {
	return s.getBytes(ctx, categorySenderKey, senderKeyID(group, user))
}

func (s *signalStore) PutAppStateSyncKey(ctx context.Context, id []byte, key store.AppStateSyncKey) error {
	return s.put(ctx, categoryAppSyncKey, map[string]any{hex.EncodeToString(id): map[string]any{
		"data":        key.Data,
		"fingerprint": key.Fingerprint,
		"timestamp":   strconv.FormatInt(key.Timestamp, 10),
	}})
}

func appStateSyncKey(v any) *store.AppStateSyncKey {
	record, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	key := &store.AppStateSyncKey{}
	key.Data, _ = record["data"].([]byte)
	key.Fingerprint, _ = record["fingerprint"].([]byte)
	if ts, ok := record["timestamp"].(string); ok {
		key.Timestamp, _ = strconv.ParseInt(ts, 10, 64)
	}
	return key
}

func (s *signalStore) GetAppStateSyncKey(ctx context.Context, id []byte) (*store.AppStateSyncKey, error) {
	v, ok, err := s.get(ctx, categoryAppSyncKey, hex.EncodeToString(id))
	if err != nil || !ok {
		return nil, err
	}
	return appStateSyncKey(v), nil
}

// GetLatestAppStateSyncKeyID returns the id of the key with the newest
// timestamp, or nil when none is stored.
func (s *signalStore) GetLatestAppStateSyncKeyID(ctx context.Context) ([]byte, error) {
	ids, err := s.keys.IDs(ctx, categoryAppSyncKey)
	if err != nil {
		return nil, err
	}
	items, err := s.keys.Get(ctx, categoryAppSyncKey, ids)
	if err != nil {
		return nil, err
	}
	var (
		latest   string
		latestTS int64
	)
	for id, v := range items {
		key := appStateSyncKey(v)
		if key == nil {
			continue
		}
		if latest == "" || key.Timestamp > latestTS || (key.Timestamp == latestTS && id > latest) {
			latest, latestTS = id, key.Timestamp
		}
	}
	if latest == "" {
		return nil, nil
	}
	return hex.DecodeString(latest)
}

func (s *signalStore) GetAllAppStateSyncKeys(ctx context.Context) ([]*store.AppStateSyncKey, error) {
	ids, err := s.keys.IDs(ctx, categoryAppSyncKey)
	if err != nil {
		return nil, err
	}
	items, err := s.keys.Get(ctx, categoryAppSyncKey, ids)
	if err != nil {
		return nil, err
	}
	out := make([]*store.AppStateSyncKey, 0, len(items))
	for _, id := range ids {
		if key := appStateSyncKey(items[id]); key != nil {
			out = append(out, key)
		}
	}
	return out, nil
}
