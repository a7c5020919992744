package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AzielCF/az-wacrm/core/config"
	"github.com/AzielCF/az-wacrm/core/database"
	domainConnection "github.com/AzielCF/az-wacrm/domains/connection"
	domainLead "github.com/AzielCF/az-wacrm/domains/lead"
	domainMessage "github.com/AzielCF/az-wacrm/domains/message"
	pkgError "github.com/AzielCF/az-wacrm/pkg/error"
)

func newTestRepos(t *testing.T) *Repositories {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Driver: "sqlite",
		Name:   filepath.Join(t.TempDir(), "crm.db"),
	}, false)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	repos := New(db)
	require.NoError(t, repos.Migrate(context.Background()))
	return repos
}

func TestConnectionRepository_UpsertLifecycle(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	_, err := repos.Connections.Get(ctx, "crm")
	var notFound pkgError.NotFoundError
	require.True(t, errors.As(err, &notFound))

	c, err := repos.Connections.Upsert(ctx, "crm", domainConnection.Update{
		Status: domainConnection.StatusPtr(domainConnection.StatusQRReady),
		QRCode: domainConnection.StringPtr("2@abc"),
	})
	require.NoError(t, err)
	assert.Equal(t, "2@abc", *c.QRCode)

	c, err = repos.Connections.Get(ctx, "crm")
	require.NoError(t, err)
	assert.Equal(t, domainConnection.StatusQRReady, c.Status)
	require.NotNil(t, c.QRCode)
	assert.Nil(t, c.LastConnectedAt)

	_, err = repos.Connections.Upsert(ctx, "crm", domainConnection.Update{
		Status:  domainConnection.StatusPtr(domainConnection.StatusConnected),
		Profile: &domainConnection.Profile{Name: "Loja ABC", Number: "5511900001111"},
	})
	require.NoError(t, err)

	c, err = repos.Connections.Get(ctx, "crm")
	require.NoError(t, err)
	assert.Equal(t, domainConnection.StatusConnected, c.Status)
	assert.Nil(t, c.QRCode)
	assert.Nil(t, c.ErrorMessage)
	require.NotNil(t, c.LastConnectedAt)
	require.NotNil(t, c.Profile)
	assert.Equal(t, "Loja ABC", c.Profile.Name)

	// A second upsert for the same name updates the one row.
	_, err = repos.Connections.Upsert(ctx, "crm", domainConnection.Update{OwnerUserID: domainConnection.StringPtr("u1")})
	require.NoError(t, err)
	var count int64
	require.NoError(t, repos.Connections.db.Model(&connectionModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestLeadRepository_FindCreateRename(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	_, err := repos.Leads.FindByPhone(ctx, "t1", "5511988887777")
	var notFound pkgError.NotFoundError
	require.True(t, errors.As(err, &notFound))

	lead := &domainLead.Lead{TenantID: "t1", Phone: "5511988887777", Name: domainLead.AutoName("5511988887777"), Source: domainLead.SourceWhatsApp}
	require.NoError(t, repos.Leads.Create(ctx, lead))
	assert.NotEmpty(t, lead.ID)

	got, err := repos.Leads.FindByPhone(ctx, "t1", "5511988887777")
	require.NoError(t, err)
	assert.Equal(t, lead.ID, got.ID)

	_, err = repos.Leads.FindByPhone(ctx, "t2", "5511988887777")
	assert.Error(t, err, "lookups are tenant scoped")

	require.NoError(t, repos.Leads.UpdateName(ctx, lead.ID, " Maria "))
	got, err = repos.Leads.FindByPhone(ctx, "t1", "5511988887777")
	require.NoError(t, err)
	assert.Equal(t, "Maria", got.Name)
}

func TestLookupMissesAreQuiet(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)
	hook := logtest.NewGlobal()
	defer hook.Reset()

	for _, phone := range []string{"5511988887777", "11988887777", "+5511988887777"} {
		_, err := repos.Leads.FindByPhone(ctx, "t1", phone)
		var notFound pkgError.NotFoundError
		require.True(t, errors.As(err, &notFound))
	}
	_, err := repos.Users.FirstForTenant(ctx, "t1")
	require.Error(t, err)

	assert.Empty(t, hook.AllEntries(), "a miss is not a database error")
}

func TestUserRepository_FirstForTenantPrefersAdmin(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repos.Users.Create(ctx, &domainLead.User{ID: "agent", TenantID: "t1", Role: "agent", CreatedAt: base}))
	require.NoError(t, repos.Users.Create(ctx, &domainLead.User{ID: "admin", TenantID: "t1", Role: "admin", CreatedAt: base.Add(time.Hour)}))

	u, err := repos.Users.FirstForTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "admin", u.ID)

	_, err = repos.Users.FirstForTenant(ctx, "empty")
	assert.Error(t, err)
}

func newMessage(id string, fromLead bool) *domainMessage.Message {
	text := "Oi, tudo bem?"
	return &domainMessage.Message{
		ExternalID:   id,
		LeadID:       "lead-1",
		TenantID:     "t1",
		InstanceName: "crm",
		IsFromLead:   fromLead,
		SenderID:     "5511988887777",
		TextContent:  &text,
		Type:         domainMessage.TypeText,
		Status:       domainMessage.StatusReceived,
		MessageAt:    time.Unix(1700000000, 0).UTC(),
	}
}

func TestMessageRepository_CreateIsIdempotentPerDirection(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	inserted, err := repos.Messages.Create(ctx, newMessage("ABC123", true))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repos.Messages.Create(ctx, newMessage("ABC123", true))
	require.NoError(t, err)
	assert.False(t, inserted)

	inserted, err = repos.Messages.Create(ctx, newMessage("ABC123", false))
	require.NoError(t, err)
	assert.True(t, inserted, "same id in the other direction is a different message")

	exists, err := repos.Messages.Exists(ctx, "ABC123", true)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMessageRepository_UpdateStatusMatchesDirection(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)
	_, err := repos.Messages.Create(ctx, newMessage("X1", true))
	require.NoError(t, err)
	_, err = repos.Messages.Create(ctx, newMessage("X1", false))
	require.NoError(t, err)

	at := time.Unix(1700000100, 0).UTC()
	ok, err := repos.Messages.UpdateStatus(ctx, "X1", false, domainMessage.StatusRead, at)
	require.NoError(t, err)
	assert.True(t, ok)

	out, err := repos.Messages.GetByExternalID(ctx, "X1", false)
	require.NoError(t, err)
	assert.Equal(t, domainMessage.StatusRead, out.Status)
	require.NotNil(t, out.StatusAt)
	assert.True(t, at.Equal(*out.StatusAt))
	assert.Equal(t, "Oi, tudo bem?", *out.TextContent)

	in, err := repos.Messages.GetByExternalID(ctx, "X1", true)
	require.NoError(t, err)
	assert.Equal(t, domainMessage.StatusReceived, in.Status)

	ok, err = repos.Messages.UpdateStatus(ctx, "missing", false, domainMessage.StatusRead, at)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMessageRepository_SoftDeleteRedacts(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)
	msg := newMessage("D1", true)
	msg.MediaURL = "https://cdn.example.com/a.jpg"
	_, err := repos.Messages.Create(ctx, msg)
	require.NoError(t, err)

	n, err := repos.Messages.SoftDelete(ctx, "D1", false, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "outbound row with this id does not exist")

	n, err = repos.Messages.SoftDelete(ctx, "D1", true, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	out, err := repos.Messages.GetByExternalID(ctx, "D1", true)
	require.NoError(t, err)
	assert.Equal(t, domainMessage.StatusDeleted, out.Status)
	assert.Nil(t, out.TextContent)
	assert.Empty(t, out.MediaURL)
	assert.NotNil(t, out.DeletedAt)

	n, err = repos.Messages.SoftDelete(ctx, "D1", true, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "already deleted")
}

func TestMessageRepository_SoftDeleteMatchesDirection(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)
	_, err := repos.Messages.Create(ctx, newMessage("X1", true))
	require.NoError(t, err)
	_, err = repos.Messages.Create(ctx, newMessage("X1", false))
	require.NoError(t, err)

	n, err := repos.Messages.SoftDelete(ctx, "X1", false, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	in, err := repos.Messages.GetByExternalID(ctx, "X1", true)
	require.NoError(t, err)
	assert.Equal(t, domainMessage.StatusReceived, in.Status)
	require.NotNil(t, in.TextContent)
	assert.Nil(t, in.DeletedAt)
}

func TestMessageRepository_StatusAfterDeleteIsIgnored(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)
	_, err := repos.Messages.Create(ctx, newMessage("Y1", false))
	require.NoError(t, err)

	_, err = repos.Messages.SoftDelete(ctx, "Y1", false, time.Now())
	require.NoError(t, err)

	ok, err := repos.Messages.UpdateStatus(ctx, "Y1", false, domainMessage.StatusRead, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	out, err := repos.Messages.GetByExternalID(ctx, "Y1", false)
	require.NoError(t, err)
	assert.Equal(t, domainMessage.StatusDeleted, out.Status)
	assert.NotNil(t, out.DeletedAt)
}

func TestMessageRepository_SetReaction(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)
	_, err := repos.Messages.Create(ctx, newMessage("R1", false))
	require.NoError(t, err)

	ok, err := repos.Messages.SetReaction(ctx, "R1", false, "👍", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repos.Messages.SetReaction(ctx, "R1", true, "❤️", time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "no inbound row with this id")

	out, err := repos.Messages.GetByExternalID(ctx, "R1", false)
	require.NoError(t, err)
	assert.Equal(t, "👍", out.Reaction)
	assert.Equal(t, domainMessage.StatusReceived, out.Status)

	ok, err = repos.Messages.SetReaction(ctx, "R1", false, "", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	out, err = repos.Messages.GetByExternalID(ctx, "R1", false)
	require.NoError(t, err)
	assert.Empty(t, out.Reaction)
}
