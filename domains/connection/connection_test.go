package connection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_QRReadyKeepsQR(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := Apply(Connection{InstanceName: "crm"}, Update{
		Status: StatusPtr(StatusQRReady),
		QRCode: StringPtr("2@abc"),
	}, now)

	require.NotNil(t, c.QRCode)
	assert.Equal(t, "2@abc", *c.QRCode)
	assert.Nil(t, c.LastConnectedAt)
	assert.Equal(t, now, *c.LastEventAt)
}

func TestApply_ConnectedClearsQRAndError(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := Connection{
		InstanceName: "crm",
		Status:       StatusQRReady,
		QRCode:       StringPtr("2@abc"),
		ErrorMessage: StringPtr("previous failure"),
	}

	c = Apply(c, Update{
		Status:  StatusPtr(StatusConnected),
		QRCode:  StringPtr("late qr"),
		Profile: &Profile{Name: "Maria", Number: "5511988887777"},
	}, now)

	assert.Nil(t, c.QRCode)
	assert.Nil(t, c.ErrorMessage)
	require.NotNil(t, c.LastConnectedAt)
	assert.Equal(t, now, *c.LastConnectedAt)
	assert.Equal(t, "Maria", c.Profile.Name)
}

func TestApply_LastConnectedOnlyStampedOnTransition(t *testing.T) {
	first := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	later := first.Add(time.Hour)

	c := Apply(Connection{}, Update{Status: StatusPtr(StatusConnected)}, first)
	c = Apply(c, Update{Profile: &Profile{Name: "Maria"}}, later)

	assert.Equal(t, first, *c.LastConnectedAt)
	assert.Equal(t, later, c.UpdatedAt)
}

func TestApply_DisconnectedDropsQR(t *testing.T) {
	c := Connection{Status: StatusConnecting, QRCode: StringPtr("2@abc")}
	c = Apply(c, Update{Status: StatusPtr(StatusDisconnected), ErrorMessage: StringPtr("closed")}, time.Now())

	assert.Nil(t, c.QRCode)
	assert.Equal(t, "closed", *c.ErrorMessage)
}

func TestApply_OwnerIsNotOverwrittenByEmpty(t *testing.T) {
	c := Apply(Connection{OwnerUserID: "u1"}, Update{OwnerUserID: StringPtr("")}, time.Now())
	assert.Equal(t, "u1", c.OwnerUserID)
}
