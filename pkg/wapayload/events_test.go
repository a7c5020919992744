package wapayload

import (
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainMessage "github.com/AzielCF/az-wacrm/domains/message"
)

func decodeAny(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestParseQRUpdate(t *testing.T) {
	qr := ParseQRUpdate(decodeAny(t, `{"qrcode":{"instance":"crm","pairingCode":"WZYEH1YY","code":"2@abc","base64":"data:image/png;base64,AAA"}}`))
	assert.Equal(t, "2@abc", qr.Code)
	assert.Equal(t, "WZYEH1YY", qr.PairingCode)
	assert.Equal(t, "data:image/png;base64,AAA", qr.QR())

	assert.Equal(t, "2@raw", ParseQRUpdate("2@raw").QR())
}

func TestParseConnectionUpdate(t *testing.T) {
	c := ParseConnectionUpdate(decodeAny(t, `{"instance":"crm","state":"OPEN","statusReason":200,"wuid":"5511900001111@s.whatsapp.net","profileName":"Loja ABC"}`))
	assert.Equal(t, "open", c.State)
	assert.Equal(t, 200, c.StatusReason)
	assert.Equal(t, "Loja ABC", c.ProfileName)
	assert.Equal(t, "5511900001111@s.whatsapp.net", c.Number)

	c = ParseConnectionUpdate(decodeAny(t, `{"connection":"close","statusReason":401}`))
	assert.Equal(t, "close", c.State)
	assert.Equal(t, 401, c.StatusReason)
}

func TestParseStatusUpdates_BothShapes(t *testing.T) {
	updates := ParseStatusUpdates(decodeAny(t, `[
		{"keyId":"OUT1","remoteJid":"5511988887777@s.whatsapp.net","fromMe":true,"status":"DELIVERY_ACK"},
		{"key":{"id":"OUT2","remoteJid":"5511988887777@s.whatsapp.net","fromMe":true},"update":{"status":4}},
		{"status":"READ"}
	]`))
	require.Len(t, updates, 2)
	assert.Equal(t, "OUT1", updates[0].ExternalID)
	assert.True(t, updates[0].FromMe)
	assert.Equal(t, domainMessage.StatusDelivered, updates[0].Status)
	assert.Equal(t, "OUT2", updates[1].ExternalID)
	assert.Equal(t, domainMessage.StatusRead, updates[1].Status)
}

func TestParseStatusUpdates_Reactions(t *testing.T) {
	updates := ParseStatusUpdates(decodeAny(t, `[
		{"key":{"id":"OUT1","fromMe":true},"update":{"reactions":[{"text":"😂"},{"text":"👍"}]}},
		{"key":{"id":"REACT","fromMe":false},"message":{"reactionMessage":{"key":{"id":"OUT2","remoteJid":"5511988887777@s.whatsapp.net","fromMe":true},"text":"❤️"}}},
		{"keyId":"IN1","fromMe":false,"reaction":{"text":""}},
		{"keyId":"OUT3","fromMe":true,"status":"READ"}
	]`))
	require.Len(t, updates, 4)

	require.NotNil(t, updates[0].Reaction)
	assert.Equal(t, "👍", *updates[0].Reaction, "the latest reaction wins")
	assert.Equal(t, domainMessage.StatusUnknown, updates[0].Status)

	assert.Equal(t, "OUT2", updates[1].ExternalID, "reactionMessage points at the reacted message")
	assert.True(t, updates[1].FromMe)
	assert.Equal(t, "5511988887777@s.whatsapp.net", updates[1].RemoteJID)
	assert.Equal(t, "❤️", *updates[1].Reaction)

	require.NotNil(t, updates[2].Reaction)
	assert.Empty(t, *updates[2].Reaction)

	assert.Nil(t, updates[3].Reaction)
	assert.Equal(t, domainMessage.StatusRead, updates[3].Status)
}

func TestItems_SkipsAndLogsMalformedEntries(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	items := Items(decodeAny(t, `[{"id":"A"}, "garbage", 42, {"id":"B"}]`))
	require.Len(t, items, 2)
	assert.Equal(t, "A", items[0]["id"])
	assert.Equal(t, "B", items[1]["id"])

	require.Len(t, hook.AllEntries(), 2)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, 2, hook.LastEntry().Data["index"])
}

func TestParseContacts(t *testing.T) {
	contacts := ParseContacts(decodeAny(t, `[{"remoteJid":"5511988887777@s.whatsapp.net","pushName":"Maria"},{"pushName":"nobody"}]`))
	require.Len(t, contacts, 1)
	assert.Equal(t, ContactInfo{JID: "5511988887777@s.whatsapp.net", Name: "Maria"}, contacts[0])
}

func TestParseDeletes(t *testing.T) {
	refs := ParseDeletes(decodeAny(t, `{"id":"D1","remoteJid":"5511988887777@s.whatsapp.net","fromMe":false}`))
	require.Len(t, refs, 1)
	assert.Equal(t, "D1", refs[0].ExternalID)

	refs = ParseDeletes(decodeAny(t, `{"keys":[{"key":{"id":"D2","fromMe":true}}]}`))
	require.Len(t, refs, 1)
	assert.Equal(t, "D2", refs[0].ExternalID)
	assert.True(t, refs[0].FromMe)
}
