package lead

import (
	"context"
	"strings"
	"time"
)

const SourceWhatsApp = "whatsapp"

type Lead struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	OwnerUserID string    `json:"owner_user_id,omitempty"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// User is the slice of a CRM user the integration needs for lead ownership.
type User struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// AutoName is the placeholder used when a lead is created without a push name.
func AutoName(phone string) string {
	return "WhatsApp " + phone
}

// LooksAutoGenerated reports whether name is a placeholder rather than a name
// someone typed: empty, the bare phone, digits only, or the AutoName form.
func LooksAutoGenerated(name, phone string) bool {
	n := strings.TrimSpace(name)
	if n == "" || n == phone || n == "+"+phone || n == AutoName(phone) {
		return true
	}
	if strings.HasPrefix(n, "WhatsApp ") {
		return true
	}
	for _, r := range n {
		if (r < '0' || r > '9') && r != '+' && r != ' ' && r != '-' {
			return false
		}
	}
	return true
}

type ILeadRepository interface {
	// FindByPhone returns pkgError.NotFoundError when no lead of the tenant has this exact phone.
	FindByPhone(ctx context.Context, tenantID, phone string) (Lead, error)
	Create(ctx context.Context, lead *Lead) error
	UpdateName(ctx context.Context, id, name string) error
}

type IUserRepository interface {
	GetByID(ctx context.Context, id string) (User, error)
	// FirstForTenant returns the oldest admin of the tenant, or the oldest user when there is no admin.
	FirstForTenant(ctx context.Context, tenantID string) (User, error)
}
