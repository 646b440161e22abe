package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/models"
)

type UnreadRepo interface {
	Get(ctx context.Context, userID, conversationID uuid.UUID) (*models.UnreadCount, error)
	// Reset upserts the row with count 0 and last_read_at = uc.LastReadAt.
	Reset(ctx context.Context, uc *models.UnreadCount) error
	// Increment adds one to the existing rows of userIDs.
	Increment(ctx context.Context, conversationID uuid.UUID, userIDs []uuid.UUID) error
	// MarkRead zeroes an existing row. It reports false when there is none.
	MarkRead(ctx context.Context, userID, conversationID uuid.UUID, at time.Time) (bool, error)
	// SetCount stores count only if the row still holds the observed count
	// and last_read_at. It reports false when the row moved on.
	SetCount(ctx context.Context, observed *models.UnreadCount, count int64) (bool, error)
	Delete(ctx context.Context, userID, conversationID uuid.UUID) error
	// List pages through all rows in key order, for the reconciliation sweep.
	List(ctx context.Context, limit, offset int) ([]models.UnreadCount, error)
}

type unreadRepo struct {
	db *gorm.DB
}

func NewUnreadRepo(db *gorm.DB) UnreadRepo {
	return &unreadRepo{db: db}
}

func (r *unreadRepo) Get(ctx context.Context, userID, conversationID uuid.UUID) (*models.UnreadCount, error) {
	var uc models.UnreadCount
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND conversation_id = ?", userID, conversationID).
		First(&uc).Error
	if err != nil {
		return nil, translate("unread.Get", err)
	}
	return &uc, nil
}

func (r *unreadRepo) Reset(ctx context.Context, uc *models.UnreadCount) error {
	uc.Count = 0
	uc.UpdatedAt = time.Now().UTC()
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "conversation_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"count", "last_read_at", "updated_at"}),
		}).
		Create(uc).Error
	return translate("unread.Reset", err)
}

func (r *unreadRepo) Increment(ctx context.Context, conversationID uuid.UUID, userIDs []uuid.UUID) error {
	if len(userIDs) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Exec(`
		UPDATE engage_unread_counts
		SET count = count + 1, updated_at = NOW()
		WHERE conversation_id = ? AND user_id = ANY(?::uuid[])
	`, conversationID, pq.Array(uuidStrings(userIDs))).Error
	return translate("unread.Increment", err)
}

func (r *unreadRepo) MarkRead(ctx context.Context, userID, conversationID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.UnreadCount{}).
		Where("user_id = ? AND conversation_id = ?", userID, conversationID).
		Updates(map[string]interface{}{
			"count":        0,
			"last_read_at": at,
			"updated_at":   at,
		})
	if res.Error != nil {
		return false, translate("unread.MarkRead", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *unreadRepo) SetCount(ctx context.Context, observed *models.UnreadCount, count int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.UnreadCount{}).
		Where("user_id = ? AND conversation_id = ? AND count = ? AND last_read_at = ?",
			observed.UserID, observed.ConversationID, observed.Count, observed.LastReadAt).
		Updates(map[string]interface{}{
			"count":      count,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, translate("unread.SetCount", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *unreadRepo) Delete(ctx context.Context, userID, conversationID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND conversation_id = ?", userID, conversationID).
		Delete(&models.UnreadCount{}).Error
	return translate("unread.Delete", err)
}

func (r *unreadRepo) List(ctx context.Context, limit, offset int) ([]models.UnreadCount, error) {
	var rows []models.UnreadCount
	err := r.db.WithContext(ctx).
		Order("user_id, conversation_id").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, translate("unread.List", err)
	}
	return rows, nil
}
