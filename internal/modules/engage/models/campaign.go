package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignSending   CampaignStatus = "sending"
	CampaignCompleted CampaignStatus = "completed"
)

// Campaign is an outbound broadcast. Content is already rendered.
type Campaign struct {
	ID        uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TenantID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Name      string         `gorm:"type:text;not null" json:"name"`
	Channel   string         `gorm:"type:text;not null" json:"channel"`
	Content   string         `gorm:"type:text;not null" json:"content"`
	Status    CampaignStatus `gorm:"type:text;not null;default:'draft'" json:"status"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name
func (Campaign) TableName() string {
	return "engage_campaigns"
}

// BeforeCreate sets UUID before creating
func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

type ContactStatus string

const (
	ContactPending   ContactStatus = "pending"
	ContactSent      ContactStatus = "sent"
	ContactDelivered ContactStatus = "delivered"
	ContactRead      ContactStatus = "read"
	ContactResponded ContactStatus = "responded"
	ContactFailed    ContactStatus = "failed"
	ContactExcluded  ContactStatus = "excluded"
)

// ActiveContactStatuses are the non-terminal states. Responded, Failed and
// Excluded only move on operator action.
var ActiveContactStatuses = []ContactStatus{ContactPending, ContactSent, ContactDelivered, ContactRead}

// Active reports whether s is non-terminal.
func (s ContactStatus) Active() bool {
	for _, a := range ActiveContactStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s ContactStatus) Valid() bool {
	switch s {
	case ContactResponded, ContactFailed, ContactExcluded:
		return true
	}
	return s.Active()
}

// CampaignContact tracks one customer through one campaign
type CampaignContact struct {
	ID                uuid.UUID     `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TenantID          uuid.UUID     `gorm:"type:uuid;not null;index" json:"tenant_id"`
	CampaignID        uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_engage_campaign_contacts_pair" json:"campaign_id"`
	CustomerID        uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_engage_campaign_contacts_pair" json:"customer_id"`
	Status            ContactStatus `gorm:"type:text;not null;default:'pending'" json:"status"`
	ExternalMessageID *string       `gorm:"type:text" json:"external_message_id,omitempty"`
	ErrorMessage      string        `gorm:"type:text" json:"error_message,omitempty"`
	ExclusionReason   string        `gorm:"type:text" json:"exclusion_reason,omitempty"`
	RetryCount        int           `gorm:"not null;default:0" json:"retry_count"`
	QueuedAt          *time.Time    `json:"queued_at,omitempty"`
	SentAt            *time.Time    `json:"sent_at,omitempty"`
	DeliveredAt       *time.Time    `json:"delivered_at,omitempty"`
	ReadAt            *time.Time    `json:"read_at,omitempty"`
	RespondedAt       *time.Time    `json:"responded_at,omitempty"`
	FailedAt          *time.Time    `json:"failed_at,omitempty"`
	ExcludedAt        *time.Time    `json:"excluded_at,omitempty"`
	ReincludedAt      *time.Time    `json:"reincluded_at,omitempty"`
	LastRetryAt       *time.Time    `json:"last_retry_at,omitempty"`
	CreatedAt         time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name
func (CampaignContact) TableName() string {
	return "engage_campaign_contacts"
}

// BeforeCreate sets UUID before creating
func (c *CampaignContact) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// CampaignStats counts contacts per status
type CampaignStats struct {
	CampaignID uuid.UUID               `json:"campaign_id"`
	Total      int64                   `json:"total"`
	ByStatus   map[ContactStatus]int64 `json:"by_status"`
}
