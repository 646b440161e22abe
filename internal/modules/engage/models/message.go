package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SenderType string

const (
	SenderCustomer SenderType = "customer"
	SenderUser     SenderType = "user"
	SenderSystem   SenderType = "system"
	SenderAI       SenderType = "ai"
)

type MessageStatus string

const (
	MessageReceived  MessageStatus = "received"
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
	MessageFailed    MessageStatus = "failed"
)

// Rank orders the forward statuses. Failed sits outside the order.
func (s MessageStatus) Rank() int {
	switch s {
	case MessageReceived:
		return 0
	case MessageSent:
		return 1
	case MessageDelivered:
		return 2
	case MessageRead:
		return 3
	default:
		return -1
	}
}

// Message belongs to exactly one conversation. ExternalID is the provider
// message id and the dedup key within a tenant.
type Message struct {
	ID             uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TenantID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"tenant_id"`
	ConversationID uuid.UUID      `gorm:"type:uuid;not null;index" json:"conversation_id"`
	SenderType     SenderType     `gorm:"type:text;not null" json:"sender_type"`
	SenderUserID   *uuid.UUID     `gorm:"type:uuid" json:"sender_user_id,omitempty"`
	Content        string         `gorm:"type:text" json:"content"`
	ExternalID     *string        `gorm:"type:text" json:"external_id,omitempty"`
	Provider       string         `gorm:"type:text" json:"provider,omitempty"`
	Status         MessageStatus  `gorm:"type:text;not null" json:"status"`
	MediaURL       string         `gorm:"type:text" json:"-"`
	MediaPath      string         `gorm:"type:text" json:"media_path,omitempty"`
	MediaMime      string         `gorm:"type:text" json:"media_mime,omitempty"`
	MediaSize      int64          `json:"media_size,omitempty"`
	Metadata       datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	ErrorMessage   string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	SentAt         *time.Time     `json:"sent_at,omitempty"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
	ReadAt         *time.Time     `json:"read_at,omitempty"`
	FailedAt       *time.Time     `json:"failed_at,omitempty"`
}

// TableName specifies the table name
func (Message) TableName() string {
	return "engage_messages"
}

// BeforeCreate sets UUID and creation time before creating
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return nil
}
