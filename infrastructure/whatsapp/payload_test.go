package whatsapp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	domainMessage "github.com/AzielCF/az-wacrm/domains/message"
	"github.com/AzielCF/az-wacrm/pkg/wapayload"
)

func inbound(msg *waE2E.Message) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:   types.NewJID("5511988887777", types.DefaultUserServer),
				Sender: types.NewJID("5511988887777", types.DefaultUserServer),
			},
			ID:        "ABC123",
			PushName:  "Maria",
			Timestamp: time.Unix(1767225600, 0),
		},
		Message: msg,
	}
}

func TestMessageToPayload_TextParsesAsNestedDialect(t *testing.T) {
	payload := MessageToPayload(inbound(&waE2E.Message{Conversation: proto.String("Oi, tudo bem?")}))
	require.NotNil(t, payload)

	msg, err := wapayload.Parse(payload, wapayload.Options{})
	require.NoError(t, err)
	assert.Equal(t, wapayload.DialectNested, msg.Dialect)
	assert.Equal(t, "ABC123", msg.ExternalID)
	assert.Equal(t, "5511988887777@s.whatsapp.net", msg.ChatJID)
	assert.Equal(t, "Maria", msg.PushName)
	assert.True(t, msg.IsFromLead())
	assert.Equal(t, domainMessage.TypeText, msg.Type)
	require.NotNil(t, msg.TextContent)
	assert.Equal(t, "Oi, tudo bem?", *msg.TextContent)
	assert.Equal(t, time.Unix(1767225600, 0).UTC(), msg.Timestamp)
}

func TestMessageToPayload_ImageCaption(t *testing.T) {
	payload := MessageToPayload(inbound(&waE2E.Message{ImageMessage: &waE2E.ImageMessage{
		Caption:  proto.String("catalogo"),
		Mimetype: proto.String("image/jpeg"),
		URL:      proto.String("https://mmg.whatsapp.net/v/t62/abc"),
	}}))
	require.NotNil(t, payload)

	msg, err := wapayload.Parse(payload, wapayload.Options{})
	require.NoError(t, err)
	assert.Equal(t, domainMessage.TypeImage, msg.Type)
	assert.Equal(t, "image/jpeg", msg.MimeType)
	assert.Equal(t, "https://mmg.whatsapp.net/v/t62/abc", msg.MediaURL)
	require.NotNil(t, msg.TextContent)
	assert.Equal(t, "catalogo", *msg.TextContent)
}

func TestMessageToPayload_NilMessage(t *testing.T) {
	assert.Nil(t, MessageToPayload(&events.Message{}))
	assert.Nil(t, MessageToPayload(nil))
}

func TestReceiptToPayload(t *testing.T) {
	receipt := &events.Receipt{
		MessageSource: types.MessageSource{Chat: types.NewJID("5511988887777", types.DefaultUserServer)},
		MessageIDs:    []types.MessageID{"OUT1", "OUT2"},
		Timestamp:     time.Unix(1767225600, 0),
		Type:          types.ReceiptTypeRead,
	}

	updates := wapayload.ParseStatusUpdates(ReceiptToPayload(receipt))
	require.Len(t, updates, 2)
	assert.Equal(t, "OUT1", updates[0].ExternalID)
	assert.True(t, updates[0].FromMe)
	assert.Equal(t, domainMessage.StatusRead, updates[0].Status)

	receipt.Type = types.ReceiptTypeDelivered
	updates = wapayload.ParseStatusUpdates(ReceiptToPayload(receipt))
	require.Len(t, updates, 2)
	assert.Equal(t, domainMessage.StatusDelivered, updates[1].Status)

	receipt.Type = types.ReceiptTypeRetry
	assert.Empty(t, ReceiptToPayload(receipt))

	receipt.Type = types.ReceiptTypeRead
	receipt.IsFromMe = true
	assert.Empty(t, ReceiptToPayload(receipt), "our own read receipts are not status changes")
}
