package whatsapp

import (
	"fmt"

	"go.mau.fi/whatsmeow/proto/waAdv"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/util/keys"
	"google.golang.org/protobuf/proto"

	"github.com/AzielCF/az-wacrm/infrastructure/session"
)

func credsFromDevice(device *store.Device) (*session.Creds, error) {
	creds := &session.Creds{
		RegistrationID: device.RegistrationID,
		AdvSecretKey:   session.Buffer(device.AdvSecretKey),
		Platform:       device.Platform,
		Registered:     device.ID != nil,
	}
	if device.NoiseKey != nil {
		creds.NoiseKey = session.KeyPair{Private: device.NoiseKey.Priv[:], Public: device.NoiseKey.Pub[:]}
	}
	if device.IdentityKey != nil {
		creds.IdentityKey = session.KeyPair{Private: device.IdentityKey.Priv[:], Public: device.IdentityKey.Pub[:]}
	}
	if pk := device.SignedPreKey; pk != nil {
		creds.SignedPreKey = session.SignedKeyPair{
			KeyPair: session.KeyPair{Private: pk.Priv[:], Public: pk.Pub[:]},
			KeyID:   pk.KeyID,
		}
		if pk.Signature != nil {
			creds.SignedPreKey.Signature = pk.Signature[:]
		}
	}
	if device.ID != nil {
		creds.Me = &session.Me{ID: device.ID.String(), Name: device.PushName}
		if !device.LID.IsEmpty() {
			creds.Me.LID = device.LID.String()
		}
	}
	if device.Account != nil {
		account, err := proto.Marshal(device.Account)
		if err != nil {
			return nil, fmt.Errorf("encode device account: %w", err)
		}
		creds.Account = account
	}
	return creds, nil
}

func keyPair(name string, kp session.KeyPair) (*keys.KeyPair, error) {
	if len(kp.Private) != 32 {
		return nil, fmt.Errorf("%s: private key has %d bytes", name, len(kp.Private))
	}
	return keys.NewKeyPairFromPrivateKey([32]byte(kp.Private)), nil
}

// applyCreds rebuilds the device identity from stored creds. Creds that
// never completed pairing are ignored and the device pairs again.
func applyCreds(device *store.Device, creds *session.Creds) error {
	if creds == nil || !creds.Registered || creds.Me == nil {
		return nil
	}
	noise, err := keyPair("noise key", creds.NoiseKey)
	if err != nil {
		return err
	}
	identity, err := keyPair("identity key", creds.IdentityKey)
	if err != nil {
		return err
	}
	signed, err := keyPair("signed pre-key", creds.SignedPreKey.KeyPair)
	if err != nil {
		return err
	}
	preKey := &keys.PreKey{KeyPair: *signed, KeyID: creds.SignedPreKey.KeyID}
	if sig := creds.SignedPreKey.Signature; len(sig) == 64 {
		preKey.Signature = (*[64]byte)(sig)
	}

	id, err := types.ParseJID(creds.Me.ID)
	if err != nil {
		return fmt.Errorf("parse device jid %q: %w", creds.Me.ID, err)
	}
	var lid types.JID
	if creds.Me.LID != "" {
		if lid, err = types.ParseJID(creds.Me.LID); err != nil {
			return fmt.Errorf("parse device lid %q: %w", creds.Me.LID, err)
		}
	}
	var account *waAdv.ADVSignedDeviceIdentity
	if len(creds.Account) > 0 {
		account = &waAdv.ADVSignedDeviceIdentity{}
		if err := proto.Unmarshal(creds.Account, account); err != nil {
			return fmt.Errorf("decode device account: %w", err)
		}
	}

	device.NoiseKey = noise
	device.IdentityKey = identity
	device.SignedPreKey = preKey
	device.RegistrationID = creds.RegistrationID
	device.AdvSecretKey = creds.AdvSecretKey
	device.Platform = creds.Platform
	device.ID = &id
	device.LID = lid
	device.PushName = creds.Me.Name
	device.Account = account
	return nil
}
