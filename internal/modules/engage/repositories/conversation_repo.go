package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/models"
)

type ConversationRepo interface {
	FindOpen(ctx context.Context, tenantID, customerID uuid.UUID, channel string) (*models.Conversation, error)
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Conversation, error)
	// CreateOpen inserts conv unless a non-closed conversation already
	// exists for its key, in which case it returns ErrDuplicate.
	CreateOpen(ctx context.Context, conv *models.Conversation) error
	// UpdateStatus moves id from -> to. It reports false when the row was
	// not in status from.
	UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, from, to models.ConversationStatus, at time.Time) (bool, error)
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error

	UpsertParticipant(ctx context.Context, p *models.Participant) error
	DeactivateParticipant(ctx context.Context, conversationID, userID uuid.UUID, at time.Time) (bool, error)
	IsActiveParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
	ActiveParticipants(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error)
}

type conversationRepo struct {
	db *gorm.DB
}

func NewConversationRepo(db *gorm.DB) ConversationRepo {
	return &conversationRepo{db: db}
}

func (r *conversationRepo) FindOpen(ctx context.Context, tenantID, customerID uuid.UUID, channel string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND customer_id = ? AND channel = ? AND status <> ?",
			tenantID, customerID, channel, models.ConversationClosed).
		First(&conv).Error
	if err != nil {
		return nil, translate("conversations.FindOpen", err)
	}
	return &conv, nil
}

func (r *conversationRepo) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&conv).Error
	if err != nil {
		return nil, translate("conversations.FindByID", err)
	}
	return &conv, nil
}

// CreateOpen serializes creators of the same key on a transaction-scoped
// advisory lock. The partial unique index on open conversations backs it up.
func (r *conversationRepo) CreateOpen(ctx context.Context, conv *models.Conversation) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		key := models.OpenKey(conv.TenantID, conv.CustomerID, conv.Channel)
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error; err != nil {
			return err
		}

		var open int64
		err := tx.Model(&models.Conversation{}).
			Where("tenant_id = ? AND customer_id = ? AND channel = ? AND status <> ?",
				conv.TenantID, conv.CustomerID, conv.Channel, models.ConversationClosed).
			Count(&open).Error
		if err != nil {
			return err
		}
		if open > 0 {
			return ErrDuplicate
		}
		return tx.Create(conv).Error
	})
	return translate("conversations.CreateOpen", err)
}

func (r *conversationRepo) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, from, to models.ConversationStatus, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": at,
	}
	if to == models.ConversationClosed {
		updates["closed_at"] = at
	}

	res := r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, id, from).
		Updates(updates)
	if res.Error != nil {
		return false, translate("conversations.UpdateStatus", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *conversationRepo) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ? AND (last_message_at IS NULL OR last_message_at < ?)", id, at).
		Update("last_message_at", at).Error
	return translate("conversations.Touch", err)
}

func (r *conversationRepo) UpsertParticipant(ctx context.Context, p *models.Participant) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"active", "joined_at", "left_at"}),
		}).
		Create(p).Error
	return translate("conversations.UpsertParticipant", err)
}

func (r *conversationRepo) DeactivateParticipant(ctx context.Context, conversationID, userID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Participant{}).
		Where("conversation_id = ? AND user_id = ? AND active", conversationID, userID).
		Updates(map[string]interface{}{"active": false, "left_at": at})
	if res.Error != nil {
		return false, translate("conversations.DeactivateParticipant", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *conversationRepo) IsActiveParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Participant{}).
		Where("conversation_id = ? AND user_id = ? AND active", conversationID, userID).
		Count(&n).Error
	if err != nil {
		return false, translate("conversations.IsActiveParticipant", err)
	}
	return n > 0, nil
}

func (r *conversationRepo) ActiveParticipants(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.Participant{}).
		Where("conversation_id = ? AND active", conversationID).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, translate("conversations.ActiveParticipants", err)
	}
	return ids, nil
}
