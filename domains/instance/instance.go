package instance

import (
	"context"

	domainConnection "github.com/AzielCF/az-wacrm/domains/connection"
)

type Action string

const (
	ActionConnect    Action = "connect"
	ActionReconnect  Action = "reconnect"
	ActionDisconnect Action = "disconnect"
)

type ActionRequest struct {
	Action Action `json:"action" form:"action"`
}

// StatusResponse is the shape the CRM UI renders for the WhatsApp card.
type StatusResponse struct {
	Success     *bool                     `json:"success,omitempty"`
	Status      domainConnection.Status   `json:"status"`
	Message     string                    `json:"message"`
	QRCode      string                    `json:"qrCode,omitempty"`
	PairingCode string                    `json:"pairingCode,omitempty"`
	Profile     *domainConnection.Profile `json:"profile,omitempty"`
}

type IInstanceUsecase interface {
	GetStatus(ctx context.Context, actingUser string) (StatusResponse, error)
	PerformAction(ctx context.Context, actingUser string, request ActionRequest) (StatusResponse, error)
}
