package models

import (
	"time"

	"github.com/google/uuid"
)

// UnreadCount is a cache of unread messages per (user, conversation). It can
// always be rebuilt from engage_messages.
type UnreadCount struct {
	UserID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	ConversationID uuid.UUID `gorm:"type:uuid;primaryKey" json:"conversation_id"`
	TenantID       uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Count          int64     `gorm:"not null;default:0" json:"count"`
	LastReadAt     time.Time `gorm:"not null" json:"last_read_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName specifies the table name
func (UnreadCount) TableName() string {
	return "engage_unread_counts"
}
