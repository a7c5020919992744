package message

import (
	"context"
	"strings"
	"time"
)

type Type string

const (
	TypeText     Type = "text"
	TypeImage    Type = "image"
	TypeVideo    Type = "video"
	TypeAudio    Type = "audio"
	TypeDocument Type = "document"
	TypeSticker  Type = "sticker"
	TypeReaction Type = "reaction"
	TypeLocation Type = "location"
	TypeContact  Type = "contact"
	TypeUnknown  Type = "unknown"
)

func (t Type) IsMedia() bool {
	switch t {
	case TypeImage, TypeVideo, TypeAudio, TypeDocument, TypeSticker:
		return true
	}
	return false
}

type Status string

const (
	StatusReceived  Status = "received"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusDeleted   Status = "deleted"
	StatusUnknown   Status = "unknown"
)

// ParseStatus maps the gateway spellings (ack names, numeric acks, lower case
// names) onto Status.
func ParseStatus(raw any) Status {
	switch v := raw.(type) {
	case float64:
		return parseAck(int(v))
	case int:
		return parseAck(v)
	case int64:
		return parseAck(int(v))
	case string:
		switch strings.ToUpper(strings.TrimSpace(v)) {
		case "PENDING", "SERVER_ACK", "SENT", "1", "2":
			return StatusSent
		case "DELIVERY_ACK", "DELIVERED", "3":
			return StatusDelivered
		case "READ", "PLAYED", "READ_SELF", "4", "5":
			return StatusRead
		case "DELETED", "REVOKED":
			return StatusDeleted
		case "RECEIVED":
			return StatusReceived
		}
	}
	return StatusUnknown
}

func parseAck(ack int) Status {
	switch {
	case ack <= 0:
		return StatusUnknown
	case ack <= 2:
		return StatusSent
	case ack == 3:
		return StatusDelivered
	default:
		return StatusRead
	}
}

// Message is one persisted WhatsApp message. ExternalID is unique per direction.
type Message struct {
	ID           string     `json:"id"`
	ExternalID   string     `json:"external_id"`
	LeadID       string     `json:"lead_id"`
	TenantID     string     `json:"tenant_id"`
	InstanceName string     `json:"instance_name"`
	IsFromLead   bool       `json:"is_from_lead"`
	SenderID     string     `json:"sender_id"`
	TextContent  *string    `json:"text_content,omitempty"`
	Type         Type       `json:"type"`
	MediaURL     string     `json:"media_url,omitempty"`
	MimeType     string     `json:"mime_type,omitempty"`
	FileName     string     `json:"file_name,omitempty"`
	Status       Status     `json:"status"`
	MessageAt    time.Time  `json:"message_at"`
	StatusAt     *time.Time `json:"status_at,omitempty"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	ReactionToID string     `json:"reaction_to_id,omitempty"`
	Reaction     string     `json:"reaction,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type IMessageRepository interface {
	Exists(ctx context.Context, externalID string, isFromLead bool) (bool, error)
	// Create inserts msg and reports false when a row with the same external id
	// and direction already exists.
	Create(ctx context.Context, msg *Message) (bool, error)
	// UpdateStatus touches only status and status_at of the row matched by id and direction.
	// Deleted rows are never touched.
	UpdateStatus(ctx context.Context, externalID string, isFromLead bool, status Status, at time.Time) (bool, error)
	SetReaction(ctx context.Context, externalID string, isFromLead bool, reaction string, at time.Time) (bool, error)
	// SoftDelete redacts the content and marks the row matched by id and direction deleted.
	SoftDelete(ctx context.Context, externalID string, isFromLead bool, at time.Time) (int64, error)
	GetByExternalID(ctx context.Context, externalID string, isFromLead bool) (Message, error)
}

// Outbound API.

type SendMessageRequest struct {
	Phone     string `json:"phone" form:"phone"`
	Text      string `json:"text" form:"text"`
	MediaURL  string `json:"media_url" form:"media_url"`
	MediaType string `json:"media_type" form:"media_type"`
	MimeType  string `json:"mime_type" form:"mime_type"`
	Caption   string `json:"caption" form:"caption"`
	FileName  string `json:"file_name" form:"file_name"`
}

type GenericResponse struct {
	MessageID string `json:"message_id"`
	LeadID    string `json:"lead_id"`
	Status    string `json:"status"`
}

type ISendUsecase interface {
	Send(ctx context.Context, actingUser string, request SendMessageRequest) (GenericResponse, error)
}
