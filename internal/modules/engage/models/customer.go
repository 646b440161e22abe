package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Customer is a donor known to a tenant, keyed by E.164 phone
type Customer struct {
	ID             uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TenantID       uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_engage_customers_tenant_phone" json:"tenant_id"`
	Phone          string     `gorm:"type:text;not null;uniqueIndex:idx_engage_customers_tenant_phone" json:"phone"`
	DisplayName    string     `gorm:"type:text" json:"display_name"`
	Blocked        bool       `gorm:"default:false" json:"blocked"`
	BloodType      string     `gorm:"type:text" json:"blood_type,omitempty"`
	LastDonationAt *time.Time `json:"last_donation_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name
func (Customer) TableName() string {
	return "engage_customers"
}

// BeforeCreate sets UUID before creating
func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
