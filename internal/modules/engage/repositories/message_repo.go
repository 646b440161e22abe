package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/models"
)

// StatusChange is applied by MessageRepo.UpdateStatus. Nil timestamps are
// left untouched.
type StatusChange struct {
	Status       models.MessageStatus
	SentAt       *time.Time
	DeliveredAt  *time.Time
	ReadAt       *time.Time
	FailedAt     *time.Time
	ErrorMessage string
}

func (c StatusChange) columns() map[string]interface{} {
	cols := map[string]interface{}{"status": c.Status}
	if c.SentAt != nil {
		cols["sent_at"] = *c.SentAt
	}
	if c.DeliveredAt != nil {
		cols["delivered_at"] = *c.DeliveredAt
	}
	if c.ReadAt != nil {
		cols["read_at"] = *c.ReadAt
	}
	if c.FailedAt != nil {
		cols["failed_at"] = *c.FailedAt
	}
	if c.ErrorMessage != "" {
		cols["error_message"] = c.ErrorMessage
	}
	return cols
}

type MessageRepo interface {
	// Create returns ErrDuplicate when (tenant, external id) exists.
	Create(ctx context.Context, m *models.Message) error
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Message, error)
	FindByExternalID(ctx context.Context, tenantID uuid.UUID, externalID string) (*models.Message, error)
	// UpdateStatus is a compare-and-set on the current status.
	UpdateStatus(ctx context.Context, id uuid.UUID, from models.MessageStatus, change StatusChange) (bool, error)
	SetMedia(ctx context.Context, id uuid.UUID, path, mime string, size int64) error
	// ListRecent returns up to limit messages, oldest first.
	ListRecent(ctx context.Context, tenantID, conversationID uuid.UUID, limit int) ([]models.Message, error)
	// CountUnread counts messages after since not sent by userID.
	CountUnread(ctx context.Context, conversationID uuid.UUID, since time.Time, userID uuid.UUID) (int64, error)
}

type messageRepo struct {
	db *gorm.DB
}

func NewMessageRepo(db *gorm.DB) MessageRepo {
	return &messageRepo{db: db}
}

func (r *messageRepo) Create(ctx context.Context, m *models.Message) error {
	return translate("messages.Create", r.db.WithContext(ctx).Create(m).Error)
}

func (r *messageRepo) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Message, error) {
	var m models.Message
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&m).Error
	if err != nil {
		return nil, translate("messages.FindByID", err)
	}
	return &m, nil
}

func (r *messageRepo) FindByExternalID(ctx context.Context, tenantID uuid.UUID, externalID string) (*models.Message, error) {
	var m models.Message
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND external_id = ?", tenantID, externalID).
		First(&m).Error
	if err != nil {
		return nil, translate("messages.FindByExternalID", err)
	}
	return &m, nil
}

func (r *messageRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from models.MessageStatus, change StatusChange) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND status = ?", id, from).
		Updates(change.columns())
	if res.Error != nil {
		return false, translate("messages.UpdateStatus", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *messageRepo) SetMedia(ctx context.Context, id uuid.UUID, path, mime string, size int64) error {
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"media_path": path,
			"media_mime": mime,
			"media_size": size,
		}).Error
	return translate("messages.SetMedia", err)
}

func (r *messageRepo) ListRecent(ctx context.Context, tenantID, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 20
	}

	var msgs []models.Message
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND conversation_id = ?", tenantID, conversationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, translate("messages.ListRecent", err)
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *messageRepo) CountUnread(ctx context.Context, conversationID uuid.UUID, since time.Time, userID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND created_at > ? AND sender_user_id IS DISTINCT FROM ?", conversationID, since, userID).
		Count(&n).Error
	if err != nil {
		return 0, translate("messages.CountUnread", err)
	}
	return n, nil
}
