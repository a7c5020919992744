package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domainMessage "github.com/AzielCF/az-wacrm/domains/message"
	pkgError "github.com/AzielCF/az-wacrm/pkg/error"
)

type messageModel struct {
	ID           string    `gorm:"primaryKey;size:36"`
	ExternalID   string    `gorm:"uniqueIndex:idx_messages_external_direction,priority:1;size:128;not null"`
	IsFromLead   bool      `gorm:"uniqueIndex:idx_messages_external_direction,priority:2;not null"`
	LeadID       string    `gorm:"index;size:36"`
	TenantID     string    `gorm:"index;size:64"`
	InstanceName string    `gorm:"index;size:128"`
	SenderID     string    `gorm:"size:128"`
	TextContent  *string   `gorm:"type:text"`
	Type         string    `gorm:"size:16;not null"`
	MediaURL     string    `gorm:"type:text"`
	MimeType     string    `gorm:"size:128"`
	FileName     string    `gorm:"size:255"`
	Status       string    `gorm:"size:16;not null"`
	ReactionToID string    `gorm:"size:128"`
	Reaction     string    `gorm:"size:32"`
	MessageAt    time.Time `gorm:"index;not null"`
	StatusAt     *time.Time
	DeletedAt    *time.Time
	CreatedAt    time.Time `gorm:"not null"`
}

func (messageModel) TableName() string {
	return "whatsapp_messages"
}

type MessageGormRepository struct {
	db *gorm.DB
}

var _ domainMessage.IMessageRepository = (*MessageGormRepository)(nil)

func NewMessageGormRepository(db *gorm.DB) *MessageGormRepository {
	return &MessageGormRepository{db: db}
}

func (r *MessageGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&messageModel{})
}

func (r *MessageGormRepository) Exists(ctx context.Context, externalID string, isFromLead bool) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&messageModel{}).
		Where("external_id = ? AND is_from_lead = ?", externalID, isFromLead).
		Count(&count).Error
	if err != nil {
		return false, &pkgError.PersistenceError{Op: "check message", Err: err}
	}
	return count > 0, nil
}

// Create relies on the (external_id, is_from_lead) unique index, so a
// concurrent duplicate delivery is a silent no-op.
func (r *MessageGormRepository) Create(ctx context.Context, msg *domainMessage.Message) (bool, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	m := toMessageModel(*msg)
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}, {Name: "is_from_lead"}},
		DoNothing: true,
	}).Create(&m)
	if res.Error != nil {
		return false, &pkgError.PersistenceError{Op: "create message", Err: res.Error}
	}
	return res.RowsAffected > 0, nil
}

// UpdateStatus leaves deleted rows alone; receipts may arrive after the delete.
func (r *MessageGormRepository) UpdateStatus(ctx context.Context, externalID string, isFromLead bool, status domainMessage.Status, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&messageModel{}).
		Where("external_id = ? AND is_from_lead = ? AND deleted_at IS NULL", externalID, isFromLead).
		Updates(map[string]any{"status": string(status), "status_at": at.UTC()})
	if res.Error != nil {
		return false, &pkgError.PersistenceError{Op: "update message status", Err: res.Error}
	}
	return res.RowsAffected > 0, nil
}

func (r *MessageGormRepository) SetReaction(ctx context.Context, externalID string, isFromLead bool, reaction string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&messageModel{}).
		Where("external_id = ? AND is_from_lead = ? AND deleted_at IS NULL", externalID, isFromLead).
		Updates(map[string]any{"reaction": reaction, "status_at": at.UTC()})
	if res.Error != nil {
		return false, &pkgError.PersistenceError{Op: "set message reaction", Err: res.Error}
	}
	return res.RowsAffected > 0, nil
}

func (r *MessageGormRepository) SoftDelete(ctx context.Context, externalID string, isFromLead bool, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&messageModel{}).
		Where("external_id = ? AND is_from_lead = ? AND deleted_at IS NULL", externalID, isFromLead).
		Updates(map[string]any{
			"status":       string(domainMessage.StatusDeleted),
			"status_at":    at.UTC(),
			"deleted_at":   at.UTC(),
			"text_content": gorm.Expr("NULL"),
			"media_url":    "",
			"file_name":    "",
			"reaction":     "",
		})
	if res.Error != nil {
		return 0, &pkgError.PersistenceError{Op: "delete message", Err: res.Error}
	}
	return res.RowsAffected, nil
}

func (r *MessageGormRepository) GetByExternalID(ctx context.Context, externalID string, isFromLead bool) (domainMessage.Message, error) {
	var m messageModel
	err := r.db.WithContext(ctx).
		First(&m, "external_id = ? AND is_from_lead = ?", externalID, isFromLead).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domainMessage.Message{}, pkgError.NotFoundError("message not found")
		}
		return domainMessage.Message{}, &pkgError.PersistenceError{Op: "get message", Err: err}
	}
	return fromMessageModel(m), nil
}

func toMessageModel(msg domainMessage.Message) messageModel {
	return messageModel{
		ID:           msg.ID,
		ExternalID:   msg.ExternalID,
		IsFromLead:   msg.IsFromLead,
		LeadID:       msg.LeadID,
		TenantID:     msg.TenantID,
		InstanceName: msg.InstanceName,
		SenderID:     msg.SenderID,
		TextContent:  msg.TextContent,
		Type:         string(msg.Type),
		MediaURL:     msg.MediaURL,
		MimeType:     msg.MimeType,
		FileName:     msg.FileName,
		Status:       string(msg.Status),
		ReactionToID: msg.ReactionToID,
		Reaction:     msg.Reaction,
		MessageAt:    msg.MessageAt.UTC(),
		StatusAt:     msg.StatusAt,
		DeletedAt:    msg.DeletedAt,
		CreatedAt:    msg.CreatedAt,
	}
}

func fromMessageModel(m messageModel) domainMessage.Message {
	return domainMessage.Message{
		ID:           m.ID,
		ExternalID:   m.ExternalID,
		LeadID:       m.LeadID,
		TenantID:     m.TenantID,
		InstanceName: m.InstanceName,
		IsFromLead:   m.IsFromLead,
		SenderID:     m.SenderID,
		TextContent:  m.TextContent,
		Type:         domainMessage.Type(m.Type),
		MediaURL:     m.MediaURL,
		MimeType:     m.MimeType,
		FileName:     m.FileName,
		Status:       domainMessage.Status(m.Status),
		MessageAt:    m.MessageAt,
		StatusAt:     m.StatusAt,
		DeletedAt:    m.DeletedAt,
		ReactionToID: m.ReactionToID,
		Reaction:     m.Reaction,
		CreatedAt:    m.CreatedAt,
	}
}
