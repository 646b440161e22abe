package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ConversationStatus string

const (
	ConversationInbox   ConversationStatus = "inbox"
	ConversationWaiting ConversationStatus = "waiting"
	ConversationActive  ConversationStatus = "active"
	ConversationClosed  ConversationStatus = "closed"
)

// Valid reports whether s is a known status.
func (s ConversationStatus) Valid() bool {
	switch s {
	case ConversationInbox, ConversationWaiting, ConversationActive, ConversationClosed:
		return true
	}
	return false
}

// ChannelWhatsApp is the only channel wired to a provider today.
const ChannelWhatsApp = "whatsapp"

// Conversation is a thread with one customer on one channel. At most one
// conversation per (tenant, customer, channel) is not closed.
type Conversation struct {
	ID               uuid.UUID          `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TenantID         uuid.UUID          `gorm:"type:uuid;not null;index" json:"tenant_id"`
	CustomerID       uuid.UUID          `gorm:"type:uuid;not null;index" json:"customer_id"`
	Channel          string             `gorm:"type:text;not null" json:"channel"`
	Status           ConversationStatus `gorm:"type:text;not null;default:'inbox'" json:"status"`
	ExternalThreadID string             `gorm:"type:text" json:"external_thread_id,omitempty"`
	LastMessageAt    *time.Time         `json:"last_message_at,omitempty"`
	ClosedAt         *time.Time         `json:"closed_at,omitempty"`
	CreatedAt        time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name
func (Conversation) TableName() string {
	return "engage_conversations"
}

// BeforeCreate sets UUID before creating
func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// OpenKey is the serialization key for conversation creation.
func OpenKey(tenantID, customerID uuid.UUID, channel string) string {
	return tenantID.String() + ":" + customerID.String() + ":" + channel
}

// Participant is a staff user attached to a conversation
type Participant struct {
	ConversationID uuid.UUID  `gorm:"type:uuid;primaryKey" json:"conversation_id"`
	UserID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"user_id"`
	TenantID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Active         bool       `gorm:"not null;default:true" json:"active"`
	JoinedAt       time.Time  `gorm:"not null" json:"joined_at"`
	LeftAt         *time.Time `json:"left_at,omitempty"`
}

// TableName specifies the table name
func (Participant) TableName() string {
	return "engage_conversation_participants"
}
