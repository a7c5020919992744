package gateway

import (
	"context"

	domainConnection "github.com/AzielCF/az-wacrm/domains/connection"
)

// Gateway connection states as reported by the hosted API.
const (
	StateOpen       = "open"
	StateConnecting = "connecting"
	StateClose      = "close"
)

type InstanceState struct {
	Instance string `json:"instance"`
	Exists   bool   `json:"exists"`
	State    string `json:"state"`
}

func (s InstanceState) Connected() bool {
	return s.Exists && s.State == StateOpen
}

// Status maps the gateway state onto the stored connection status.
func (s InstanceState) Status() domainConnection.Status {
	if !s.Exists {
		return domainConnection.StatusDisconnected
	}
	switch s.State {
	case StateOpen:
		return domainConnection.StatusConnected
	case StateConnecting:
		return domainConnection.StatusConnecting
	default:
		return domainConnection.StatusDisconnected
	}
}

type QRCode struct {
	AlreadyConnected bool   `json:"already_connected"`
	Base64           string `json:"base64,omitempty"`
	Code             string `json:"code,omitempty"`
	PairingCode      string `json:"pairing_code,omitempty"`
}

type MediaType string

const (
	MediaImage    MediaType = "image"
	MediaVideo    MediaType = "video"
	MediaAudio    MediaType = "audio"
	MediaDocument MediaType = "document"
)

type SendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type SendMediaRequest struct {
	Number    string    `json:"number"`
	MediaType MediaType `json:"mediatype"`
	MimeType  string    `json:"mimetype,omitempty"`
	Caption   string    `json:"caption,omitempty"`
	Media     string    `json:"media"`
	FileName  string    `json:"fileName,omitempty"`
}

// OutgoingMessage carries either a text or a media payload; Media wins when set.
type OutgoingMessage struct {
	Number string
	Text   string
	Media  *SendMediaRequest
}

type SendResult struct {
	MessageID string `json:"message_id"`
	RemoteJID string `json:"remote_jid"`
	Status    string `json:"status"`
}

// IMessageSender is the part of the gateway the send use case needs; the
// self-hosted socket bridge implements it too.
type IMessageSender interface {
	SendWhatsAppMessage(ctx context.Context, instance string, message OutgoingMessage) (SendResult, error)
}

type IGatewayService interface {
	CheckInstanceStatus(ctx context.Context, instance string) (InstanceState, error)
	FetchQRCode(ctx context.Context, instance string) (QRCode, error)
	CreateInstance(ctx context.Context, instance string) (QRCode, error)
	ReconnectInstance(ctx context.Context, instance string) (QRCode, error)
	LogoutInstance(ctx context.Context, instance string) error
	FetchProfile(ctx context.Context, instance string) (*domainConnection.Profile, error)
	SetupWebhook(ctx context.Context, instance string) error
	SendTextMessage(ctx context.Context, instance string, request SendTextRequest) (SendResult, error)
	SendMediaMessage(ctx context.Context, instance string, request SendMediaRequest) (SendResult, error)
	SendWhatsAppMessage(ctx context.Context, instance string, message OutgoingMessage) (SendResult, error)
}
