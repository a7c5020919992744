package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domainConnection "github.com/AzielCF/az-wacrm/domains/connection"
	pkgError "github.com/AzielCF/az-wacrm/pkg/error"
)

type connectionModel struct {
	InstanceName    string  `gorm:"primaryKey;size:128"`
	TenantID        string  `gorm:"index;size:64"`
	OwnerUserID     string  `gorm:"size:64"`
	Status          string  `gorm:"size:32;not null"`
	QRCode          *string `gorm:"type:text"`
	PairingCode     *string `gorm:"size:32"`
	ProfileName     *string `gorm:"size:255"`
	ProfileNumber   *string `gorm:"size:32"`
	ErrorMessage    *string `gorm:"type:text"`
	LastEventAt     *time.Time
	LastConnectedAt *time.Time
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (connectionModel) TableName() string {
	return "whatsapp_connections"
}

type ConnectionGormRepository struct {
	db  *gorm.DB
	now func() time.Time
}

var _ domainConnection.IConnectionRepository = (*ConnectionGormRepository)(nil)

func NewConnectionGormRepository(db *gorm.DB) *ConnectionGormRepository {
	return &ConnectionGormRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *ConnectionGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&connectionModel{})
}

func (r *ConnectionGormRepository) Get(ctx context.Context, instanceName string) (domainConnection.Connection, error) {
	var m connectionModel
	if err := r.db.WithContext(ctx).First(&m, "instance_name = ?", instanceName).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domainConnection.Connection{}, pkgError.NotFoundError("connection " + instanceName + " not found")
		}
		return domainConnection.Connection{}, &pkgError.PersistenceError{Op: "get connection", Err: err}
	}
	return fromConnectionModel(m), nil
}

// Upsert reads the row, folds the update in with domainConnection.Apply and
// writes it back inside one transaction.
func (r *ConnectionGormRepository) Upsert(ctx context.Context, instanceName string, update domainConnection.Update) (domainConnection.Connection, error) {
	var out domainConnection.Connection
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m connectionModel
		current := domainConnection.Connection{InstanceName: instanceName, Status: domainConnection.StatusDisconnected}
		createdAt := r.now()

		err := tx.First(&m, "instance_name = ?", instanceName).Error
		switch {
		case err == nil:
			current = fromConnectionModel(m)
			createdAt = m.CreatedAt
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		out = domainConnection.Apply(current, update, r.now())
		next := toConnectionModel(out)
		next.CreatedAt = createdAt

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "instance_name"}},
			UpdateAll: true,
		}).Create(&next).Error
	})
	if err != nil {
		return domainConnection.Connection{}, &pkgError.PersistenceError{Op: "upsert connection", Err: err}
	}
	return out, nil
}

func toConnectionModel(c domainConnection.Connection) connectionModel {
	m := connectionModel{
		InstanceName:    c.InstanceName,
		TenantID:        c.TenantID,
		OwnerUserID:     c.OwnerUserID,
		Status:          string(c.Status),
		QRCode:          c.QRCode,
		PairingCode:     c.PairingCode,
		ErrorMessage:    c.ErrorMessage,
		LastEventAt:     c.LastEventAt,
		LastConnectedAt: c.LastConnectedAt,
		UpdatedAt:       c.UpdatedAt,
	}
	if c.Profile != nil {
		m.ProfileName = &c.Profile.Name
		m.ProfileNumber = &c.Profile.Number
	}
	return m
}

func fromConnectionModel(m connectionModel) domainConnection.Connection {
	c := domainConnection.Connection{
		InstanceName:    m.InstanceName,
		TenantID:        m.TenantID,
		OwnerUserID:     m.OwnerUserID,
		Status:          domainConnection.Status(m.Status),
		QRCode:          m.QRCode,
		PairingCode:     m.PairingCode,
		ErrorMessage:    m.ErrorMessage,
		LastEventAt:     m.LastEventAt,
		LastConnectedAt: m.LastConnectedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if m.ProfileName != nil || m.ProfileNumber != nil {
		c.Profile = &domainConnection.Profile{}
		if m.ProfileName != nil {
			c.Profile.Name = *m.ProfileName
		}
		if m.ProfileNumber != nil {
			c.Profile.Number = *m.ProfileNumber
		}
	}
	return c
}
