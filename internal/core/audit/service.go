// Package audit keeps the append-only trail of operator actions on
// conversations and campaign contacts.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/utils"
)

// Logger records audit entries. Services depend on this instead of *Service.
type Logger interface {
	LogChange(ctx context.Context, entry Entry) error
}

// Service is the gorm-backed audit trail.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// LogChange appends one entry. Values that fail to serialize are dropped
// from the row, the entry itself is still written.
func (s *Service) LogChange(ctx context.Context, entry Entry) error {
	row, err := entry.toRow()
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// History lists the entries of one entity, newest first.
func (s *Service) History(ctx context.Context, tenantID uuid.UUID, entity string, entityID uuid.UUID, limit int) ([]AuditLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	var logs []AuditLog
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND entity = ? AND entity_id = ?", tenantID, entity, entityID.String()).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load %s history: %w", entity, err)
	}
	return logs, nil
}

// Purge deletes entries older than the retention window.
func (s *Service) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	if retention < 24*time.Hour {
		return 0, fmt.Errorf("audit retention must be at least one day, got %s", retention)
	}
	res := s.db.WithContext(ctx).Where("created_at < ?", time.Now().Add(-retention)).Delete(&AuditLog{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge audit entries: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (e Entry) toRow() (*AuditLog, error) {
	if e.Action == "" || e.Entity == "" {
		return nil, errors.New("audit entry needs an action and an entity")
	}
	return &AuditLog{
		TenantID:    e.TenantID,
		ActorUserID: e.ActorUserID,
		Action:      e.Action,
		Entity:      e.Entity,
		EntityID:    e.EntityID,
		OldValue:    jsonOrNil(e.OldValue),
		NewValue:    jsonOrNil(e.NewValue),
		Description: e.Description,
	}, nil
}

func jsonOrNil(v interface{}) datatypes.JSON {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		utils.LogWarn("audit value not serializable", map[string]interface{}{"error": err.Error()})
		return nil
	}
	return datatypes.JSON(b)
}

// Nop discards entries.
type Nop struct{}

func (Nop) LogChange(context.Context, Entry) error { return nil }
