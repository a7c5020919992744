package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	domainConnection "github.com/AzielCF/az-wacrm/domains/connection"
	domainLead "github.com/AzielCF/az-wacrm/domains/lead"
	pkgError "github.com/AzielCF/az-wacrm/pkg/error"
	"github.com/AzielCF/az-wacrm/pkg/utils"
)

var ErrGroupContact = errors.New("group chats do not map to a lead")

type ContactConfig struct {
	TenantID       string
	CountryCode    string
	DefaultOwnerID string
	CacheTTL       time.Duration
}

// ContactResolver maps WhatsApp identifiers to leads, creating them on first
// contact. Lookups are cached so a batch reuses a lead it just created.
type ContactResolver struct {
	cfg   ContactConfig
	leads domainLead.ILeadRepository
	users domainLead.IUserRepository
	conns domainConnection.IConnectionRepository
	cache *cache.Cache
}

func NewContactResolver(cfg ContactConfig, leads domainLead.ILeadRepository, users domainLead.IUserRepository, conns domainConnection.IConnectionRepository) *ContactResolver {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	return &ContactResolver{
		cfg:   cfg,
		leads: leads,
		users: users,
		conns: conns,
		cache: cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
	}
}

func (r *ContactResolver) cacheKey(phone string) string {
	return r.cfg.TenantID + "|" + phone
}

// Find tries every phone variant. It returns pkgError.NotFoundError when none match.
func (r *ContactResolver) Find(ctx context.Context, jid string) (domainLead.Lead, error) {
	if utils.IsGroupJID(jid) {
		return domainLead.Lead{}, ErrGroupContact
	}
	variants := utils.PhoneVariants(jid, r.cfg.CountryCode)
	if len(variants) == 0 {
		return domainLead.Lead{}, &pkgError.MalformedPayloadError{Reason: fmt.Sprintf("no phone in %q", jid)}
	}

	for _, v := range variants {
		if cached, ok := r.cache.Get(r.cacheKey(v)); ok {
			return cached.(domainLead.Lead), nil
		}
	}
	for _, v := range variants {
		lead, err := r.leads.FindByPhone(ctx, r.cfg.TenantID, v)
		if err == nil {
			r.remember(lead, variants)
			return lead, nil
		}
		var notFound pkgError.NotFoundError
		if !errors.As(err, &notFound) {
			return domainLead.Lead{}, err
		}
	}
	return domainLead.Lead{}, pkgError.NotFoundError("lead not found")
}

// Resolve returns the lead for jid, creating it when no variant matches.
func (r *ContactResolver) Resolve(ctx context.Context, instance, jid, pushName string) (domainLead.Lead, bool, error) {
	lead, err := r.Find(ctx, jid)
	if err == nil {
		return lead, false, nil
	}
	var notFound pkgError.NotFoundError
	if !errors.As(err, &notFound) {
		return domainLead.Lead{}, false, err
	}

	phone := utils.OnlyDigits(utils.JIDUser(jid))
	owner, err := r.leadOwner(ctx, instance)
	if err != nil {
		return domainLead.Lead{}, false, err
	}

	name := strings.TrimSpace(pushName)
	if name == "" {
		name = domainLead.AutoName(phone)
	}
	lead = domainLead.Lead{
		TenantID:    r.cfg.TenantID,
		OwnerUserID: owner,
		Name:        name,
		Phone:       phone,
		Source:      domainLead.SourceWhatsApp,
	}
	if err := r.leads.Create(ctx, &lead); err != nil {
		return domainLead.Lead{}, false, err
	}
	r.remember(lead, utils.PhoneVariants(jid, r.cfg.CountryCode))

	logrus.WithFields(logrus.Fields{"lead_id": lead.ID, "phone": phone, "owner": owner}).Info("[WEBHOOK] created lead from WhatsApp contact")
	return lead, true, nil
}

func (r *ContactResolver) Rename(ctx context.Context, lead domainLead.Lead, name string) error {
	if err := r.leads.UpdateName(ctx, lead.ID, name); err != nil {
		return err
	}
	lead.Name = strings.TrimSpace(name)
	r.remember(lead, utils.PhoneVariants(lead.Phone, r.cfg.CountryCode))
	return nil
}

func (r *ContactResolver) remember(lead domainLead.Lead, variants []string) {
	for _, v := range variants {
		r.cache.SetDefault(r.cacheKey(v), lead)
	}
}

// leadOwner picks the owner for a lead created by the integration: the
// instance owner, else the configured default, else the tenant's first user.
func (r *ContactResolver) leadOwner(ctx context.Context, instance string) (string, error) {
	if r.conns != nil {
		if conn, err := r.conns.Get(ctx, instance); err == nil && conn.OwnerUserID != "" {
			return conn.OwnerUserID, nil
		}
	}
	return fallbackLeadOwner(ctx, r.cfg, r.users)
}

// fallbackLeadOwner is the policy for leads whose instance has no owner yet.
// It always logs, since the lead lands on someone who did not connect WhatsApp.
func fallbackLeadOwner(ctx context.Context, cfg ContactConfig, users domainLead.IUserRepository) (string, error) {
	if cfg.DefaultOwnerID != "" {
		logrus.WithField("owner", cfg.DefaultOwnerID).Warn("[WEBHOOK] instance has no owner, assigning lead to CRM_DEFAULT_OWNER_ID")
		return cfg.DefaultOwnerID, nil
	}
	if users == nil {
		return "", pkgError.NotFoundError("no user available to own the lead")
	}
	user, err := users.FirstForTenant(ctx, cfg.TenantID)
	if err != nil {
		return "", fmt.Errorf("no owner for new lead: %w", err)
	}
	logrus.WithFields(logrus.Fields{"owner": user.ID, "tenant": cfg.TenantID}).Warn("[WEBHOOK] instance has no owner, assigning lead to the tenant's first user")
	return user.ID, nil
}
