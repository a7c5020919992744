package session

import (
	"context"
	"time"

	domainConnection "github.com/AzielCF/az-wacrm/domains/connection"
)

type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateQRReady      State = "qr_ready"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateError        State = "error"
)

// ConnectionStatus is the persisted status for the state; idle has never
// touched the socket and reads as disconnected.
func (s State) ConnectionStatus() domainConnection.Status {
	switch s {
	case StateConnecting:
		return domainConnection.StatusConnecting
	case StateQRReady:
		return domainConnection.StatusQRReady
	case StateConnected:
		return domainConnection.StatusConnected
	case StateError:
		return domainConnection.StatusError
	default:
		return domainConnection.StatusDisconnected
	}
}

type Snapshot struct {
	Instance  string                    `json:"instance"`
	State     State                     `json:"state"`
	QRCode    string                    `json:"qr_code,omitempty"`
	Profile   *domainConnection.Profile `json:"profile,omitempty"`
	Attempts  int                       `json:"attempts"`
	LastError string                    `json:"last_error,omitempty"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

// Transition is emitted after every state change.
type Transition struct {
	From     State
	To       State
	Snapshot Snapshot
}

type IConnectionManager interface {
	Start(ctx context.Context) error
	// Restart is the manual reconnect: it resets the attempt budget.
	Restart(ctx context.Context) error
	Logout(ctx context.Context) error
	Stop(ctx context.Context) error
	Snapshot() Snapshot
}
