package webhook

import (
	"context"
	"strings"
)

// Normalized event names. Gateways send MESSAGES_UPSERT, messages.upsert or
// messages_upsert for the same thing; NormalizeEventType folds them here.
const (
	EventQRCodeUpdated    = "qrcode.updated"
	EventConnectionUpdate = "connection.update"
	EventMessagesUpsert   = "messages.upsert"
	EventMessagesUpdate   = "messages.update"
	EventMessagesDelete   = "messages.delete"
	EventSendMessage      = "send.message"
	EventContactsUpsert   = "contacts.upsert"
	EventContactsUpdate   = "contacts.update"
	EventChatsUpsert      = "chats.upsert"
)

// Event is the envelope the gateway posts to the webhook endpoint.
type Event struct {
	Event       string `json:"event"`
	Instance    string `json:"instance"`
	Data        any    `json:"data"`
	Destination string `json:"destination,omitempty"`
	DateTime    string `json:"date_time,omitempty"`
	Sender      string `json:"sender,omitempty"`
	ServerURL   string `json:"server_url,omitempty"`
	APIKey      string `json:"apikey,omitempty"`
}

func NormalizeEventType(event string) string {
	e := strings.ToLower(strings.TrimSpace(event))
	return strings.ReplaceAll(e, "_", ".")
}

type IWebhookUsecase interface {
	// ProcessEvent never fails the caller for a bad item; the error is only for
	// envelope problems (unknown instance, missing event name).
	ProcessEvent(ctx context.Context, event Event) error
}
