package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	domainLead "github.com/AzielCF/az-wacrm/domains/lead"
	pkgError "github.com/AzielCF/az-wacrm/pkg/error"
)

type leadModel struct {
	ID          string    `gorm:"primaryKey;size:36"`
	TenantID    string    `gorm:"index:idx_leads_tenant_phone,priority:1;size:64;not null"`
	Phone       string    `gorm:"index:idx_leads_tenant_phone,priority:2;size:32;not null"`
	OwnerUserID string    `gorm:"index;size:64"`
	Name        string    `gorm:"size:255"`
	Source      string    `gorm:"size:32"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (leadModel) TableName() string {
	return "leads"
}

type userModel struct {
	ID        string    `gorm:"primaryKey;size:64"`
	TenantID  string    `gorm:"index;size:64;not null"`
	Name      string    `gorm:"size:255"`
	Role      string    `gorm:"size:32"`
	CreatedAt time.Time `gorm:"not null"`
}

func (userModel) TableName() string {
	return "users"
}

type LeadGormRepository struct {
	db *gorm.DB
}

var _ domainLead.ILeadRepository = (*LeadGormRepository)(nil)

func NewLeadGormRepository(db *gorm.DB) *LeadGormRepository {
	return &LeadGormRepository{db: db}
}

func (r *LeadGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&leadModel{}, &userModel{})
}

func (r *LeadGormRepository) FindByPhone(ctx context.Context, tenantID, phone string) (domainLead.Lead, error) {
	var m leadModel
	res := r.db.WithContext(ctx).
		Where("tenant_id = ? AND phone = ?", tenantID, phone).
		Order("created_at ASC").
		Limit(1).
		Find(&m)
	if res.Error != nil {
		return domainLead.Lead{}, &pkgError.PersistenceError{Op: "find lead", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return domainLead.Lead{}, pkgError.NotFoundError("lead not found")
	}
	return fromLeadModel(m), nil
}

func (r *LeadGormRepository) Create(ctx context.Context, lead *domainLead.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	lead.UpdatedAt = now

	m := toLeadModel(*lead)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return &pkgError.PersistenceError{Op: "create lead", Err: err}
	}
	return nil
}

func (r *LeadGormRepository) UpdateName(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	res := r.db.WithContext(ctx).Model(&leadModel{}).Where("id = ?", id).
		Updates(map[string]any{"name": name, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return &pkgError.PersistenceError{Op: "update lead name", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return pkgError.NotFoundError("lead not found")
	}
	return nil
}

func toLeadModel(l domainLead.Lead) leadModel {
	return leadModel{
		ID:          l.ID,
		TenantID:    l.TenantID,
		Phone:       l.Phone,
		OwnerUserID: l.OwnerUserID,
		Name:        l.Name,
		Source:      l.Source,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
}

func fromLeadModel(m leadModel) domainLead.Lead {
	return domainLead.Lead{
		ID:          m.ID,
		TenantID:    m.TenantID,
		OwnerUserID: m.OwnerUserID,
		Name:        m.Name,
		Phone:       m.Phone,
		Source:      m.Source,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// UserGormRepository reads the CRM users table. Users are managed by the CRM
// itself; Create exists for seeding.
type UserGormRepository struct {
	db *gorm.DB
}

var _ domainLead.IUserRepository = (*UserGormRepository)(nil)

func NewUserGormRepository(db *gorm.DB) *UserGormRepository {
	return &UserGormRepository{db: db}
}

func (r *UserGormRepository) GetByID(ctx context.Context, id string) (domainLead.User, error) {
	var m userModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domainLead.User{}, pkgError.NotFoundError("user not found")
		}
		return domainLead.User{}, &pkgError.PersistenceError{Op: "get user", Err: err}
	}
	return fromUserModel(m), nil
}

func (r *UserGormRepository) FirstForTenant(ctx context.Context, tenantID string) (domainLead.User, error) {
	var m userModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order(clauseAdminFirst).
		Order("created_at ASC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domainLead.User{}, pkgError.NotFoundError("tenant has no users")
		}
		return domainLead.User{}, &pkgError.PersistenceError{Op: "first tenant user", Err: err}
	}
	return fromUserModel(m), nil
}

const clauseAdminFirst = "CASE WHEN role = 'admin' THEN 0 ELSE 1 END"

func (r *UserGormRepository) Create(ctx context.Context, user *domainLead.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	m := userModel{ID: user.ID, TenantID: user.TenantID, Name: user.Name, Role: user.Role, CreatedAt: user.CreatedAt}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return &pkgError.PersistenceError{Op: "create user", Err: err}
	}
	return nil
}

func fromUserModel(m userModel) domainLead.User {
	return domainLead.User{ID: m.ID, TenantID: m.TenantID, Name: m.Name, Role: m.Role, CreatedAt: m.CreatedAt}
}
