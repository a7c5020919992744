package whatsapp

import (
	"encoding/json"

	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/encoding/protojson"
)

// MessageToPayload renders a whatsmeow message in the nested gateway dialect
// ({key, pushName, message, messageTimestamp}) so the webhook processor
// handles both variants the same way. protojson keeps the lowerCamelCase
// field names the dialect uses (conversation, extendedTextMessage, ...).
func MessageToPayload(evt *events.Message) map[string]any {
	if evt == nil || evt.Message == nil {
		return nil
	}
	raw, err := protojson.Marshal(evt.Message)
	if err != nil {
		logrus.Warnf("[SESSION] could not encode message %s: %v", evt.Info.ID, err)
		return nil
	}
	var content map[string]any
	if err := json.Unmarshal(raw, &content); err != nil {
		logrus.Warnf("[SESSION] could not decode message %s: %v", evt.Info.ID, err)
		return nil
	}

	key := map[string]any{
		"remoteJid": evt.Info.Chat.String(),
		"fromMe":    evt.Info.IsFromMe,
		"id":        evt.Info.ID,
	}
	if evt.Info.IsGroup {
		key["participant"] = evt.Info.Sender.String()
	}

	return map[string]any{
		"key":              key,
		"pushName":         evt.Info.PushName,
		"message":          content,
		"messageTimestamp": evt.Info.Timestamp.Unix(),
	}
}

// ReceiptToPayload turns delivery/read receipts for messages we sent into
// messages.update items. Receipts sent by our own devices are ignored.
func ReceiptToPayload(evt *events.Receipt) []any {
	if evt == nil || evt.IsFromMe {
		return nil
	}
	var status string
	switch evt.Type {
	case types.ReceiptTypeDelivered:
		status = "DELIVERY_ACK"
	case types.ReceiptTypeRead:
		status = "READ"
	case types.ReceiptTypePlayed:
		status = "PLAYED"
	default:
		return nil
	}

	items := make([]any, 0, len(evt.MessageIDs))
	for _, id := range evt.MessageIDs {
		items = append(items, map[string]any{
			"keyId":     id,
			"remoteJid": evt.Chat.String(),
			"fromMe":    true,
			"status":    status,
			"dateTime":  evt.Timestamp.Unix(),
		})
	}
	return items
}
