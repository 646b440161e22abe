package audit

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Actions recorded by the engagement core
const (
	ActionStatusChange = "status_change"
	ActionExclude      = "exclude"
	ActionReinclude    = "reinclude"
	ActionRetry        = "retry"
	ActionRetryAll     = "retry_all_failed"
)

// Entities
const (
	EntityConversation    = "conversation"
	EntityCampaignContact = "campaign_contact"
	EntityCampaign        = "campaign"
)

// AuditLog is one row of the trail. ActorUserID is nil for system actions.
type AuditLog struct {
	ID          uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID    uuid.UUID      `json:"tenant_id" gorm:"type:uuid;not null"`
	ActorUserID *uuid.UUID     `json:"actor_user_id,omitempty" gorm:"type:uuid"`
	Action      string         `json:"action" gorm:"type:text;not null"`
	Entity      string         `json:"entity" gorm:"type:text;not null"`
	EntityID    string         `json:"entity_id" gorm:"type:text"`
	OldValue    datatypes.JSON `json:"old_value,omitempty" gorm:"type:jsonb" swaggertype:"object"`
	NewValue    datatypes.JSON `json:"new_value,omitempty" gorm:"type:jsonb" swaggertype:"object"`
	Description string         `json:"description,omitempty" gorm:"type:text"`
	CreatedAt   time.Time      `json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

// Entry is the input for LogChange.
type Entry struct {
	TenantID    uuid.UUID
	ActorUserID *uuid.UUID
	Action      string
	Entity      string
	EntityID    string
	OldValue    interface{}
	NewValue    interface{}
	Description string
}
