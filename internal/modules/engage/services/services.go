// Package services implements the donor engagement core: identity
// resolution, conversation routing, webhook ingestion, delivery status
// tracking, the campaign contact state machine and unread counters.
package services

import (
	"time"

	"github.com/google/uuid"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/models"
)

// maxCASAttempts bounds re-read loops around compare-and-set updates and
// insert-or-fetch races.
const maxCASAttempts = 3

// Job types handled by the worker.
const (
	JobSendContact = "campaign.send_contact"
	JobFetchMedia  = "media.fetch"
)

func utcNow() time.Time {
	return time.Now().UTC()
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func stringPtr(s string) *string {
	return &s
}

// MessageCreatedPayload is published for every persisted message.
type MessageCreatedPayload struct {
	MessageID      uuid.UUID         `json:"message_id"`
	ConversationID uuid.UUID         `json:"conversation_id"`
	CustomerID     uuid.UUID         `json:"customer_id"`
	SenderType     models.SenderType `json:"sender_type"`
	SenderUserID   *uuid.UUID        `json:"sender_user_id,omitempty"`
	Content        string            `json:"content"`
	HasMedia       bool              `json:"has_media"`
	CreatedAt      time.Time         `json:"created_at"`
}

// MessageStatusPayload is published when a delivery status is applied.
type MessageStatusPayload struct {
	MessageID      uuid.UUID            `json:"message_id"`
	ConversationID uuid.UUID            `json:"conversation_id"`
	ExternalID     string               `json:"external_id"`
	From           models.MessageStatus `json:"from"`
	To             models.MessageStatus `json:"to"`
}

// ConversationStatusPayload is published on every conversation status change.
type ConversationStatusPayload struct {
	ConversationID uuid.UUID                 `json:"conversation_id"`
	From           models.ConversationStatus `json:"from"`
	To             models.ConversationStatus `json:"to"`
	ActorUserID    *uuid.UUID                `json:"actor_user_id,omitempty"`
}

// ContactChangedPayload is published on every campaign contact transition.
type ContactChangedPayload struct {
	ContactID  uuid.UUID            `json:"contact_id"`
	CampaignID uuid.UUID            `json:"campaign_id"`
	CustomerID uuid.UUID            `json:"customer_id"`
	From       models.ContactStatus `json:"from"`
	To         models.ContactStatus `json:"to"`
}

type sendContactPayload struct {
	ContactID uuid.UUID `json:"contact_id"`
}

type fetchMediaPayload struct {
	MessageID uuid.UUID `json:"message_id"`
	Provider  string    `json:"provider"`
	URL       string    `json:"url,omitempty"`
	MediaID   string    `json:"media_id,omitempty"`
	Mime      string    `json:"mime,omitempty"`
	FileName  string    `json:"file_name,omitempty"`
}
