package connection

import (
	"context"
	"time"
)

type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusQRReady      Status = "qr_ready"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// HoldsQR reports whether a QR code may be kept while in this status.
func (s Status) HoldsQR() bool {
	return s == StatusConnecting || s == StatusQRReady
}

type Profile struct {
	Name   string `json:"name,omitempty"`
	Number string `json:"number,omitempty"`
}

// Connection is the persisted view of one named WhatsApp instance.
type Connection struct {
	InstanceName    string     `json:"instance_name"`
	TenantID        string     `json:"tenant_id"`
	OwnerUserID     string     `json:"owner_user_id,omitempty"`
	Status          Status     `json:"status"`
	QRCode          *string    `json:"qr_code,omitempty"`
	PairingCode     *string    `json:"pairing_code,omitempty"`
	Profile         *Profile   `json:"profile,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	LastEventAt     *time.Time `json:"last_event_at,omitempty"`
	LastConnectedAt *time.Time `json:"last_connected_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Update is a partial change to a Connection. Nil fields are left untouched;
// ClearQR/ClearError/ClearProfile force the column to null.
type Update struct {
	Status       *Status
	QRCode       *string
	PairingCode  *string
	ClearQR      bool
	Profile      *Profile
	ClearProfile bool
	ErrorMessage *string
	ClearError   bool
	TenantID     *string
	OwnerUserID  *string
	EventAt      *time.Time
}

// Apply folds u into c. Entering connected drops the QR and error and stamps
// LastConnectedAt; any status that cannot hold a QR drops it.
func Apply(c Connection, u Update, now time.Time) Connection {
	if u.TenantID != nil && *u.TenantID != "" {
		c.TenantID = *u.TenantID
	}
	if u.OwnerUserID != nil && *u.OwnerUserID != "" {
		c.OwnerUserID = *u.OwnerUserID
	}
	if u.Status != nil {
		c.Status = *u.Status
	}
	if u.ClearQR {
		c.QRCode = nil
		c.PairingCode = nil
	}
	if u.QRCode != nil {
		qr := *u.QRCode
		c.QRCode = &qr
	}
	if u.PairingCode != nil {
		pc := *u.PairingCode
		c.PairingCode = &pc
	}
	if u.ClearProfile {
		c.Profile = nil
	}
	if u.Profile != nil {
		p := *u.Profile
		c.Profile = &p
	}
	if u.ClearError {
		c.ErrorMessage = nil
	}
	if u.ErrorMessage != nil {
		msg := *u.ErrorMessage
		c.ErrorMessage = &msg
	}

	if c.Status == StatusConnected {
		c.QRCode = nil
		c.PairingCode = nil
		c.ErrorMessage = nil
		if u.Status != nil {
			t := now
			c.LastConnectedAt = &t
		}
	} else if !c.Status.HoldsQR() {
		c.QRCode = nil
		c.PairingCode = nil
	}

	eventAt := now
	if u.EventAt != nil {
		eventAt = *u.EventAt
	}
	c.LastEventAt = &eventAt
	c.UpdatedAt = now
	return c
}

type IConnectionRepository interface {
	// Get returns pkgError.NotFoundError when the instance has no row yet.
	Get(ctx context.Context, instanceName string) (Connection, error)
	// Upsert applies the update to the row keyed by instance name, creating it if needed.
	Upsert(ctx context.Context, instanceName string, update Update) (Connection, error)
}

// Helpers for building updates inline.

func StatusPtr(s Status) *Status { return &s }

func StringPtr(s string) *string { return &s }
