package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/events"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/metrics"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/whatsapp"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/models"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/repositories"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/apperrors"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/utils"
)

// StatusResult is the outcome of one status callback. Matched is false when
// no message carries the provider id; Applied is false for stale or
// duplicate callbacks. Status is the message status after the call.
type StatusResult struct {
	Matched bool                 `json:"matched"`
	Applied bool                 `json:"applied"`
	Status  models.MessageStatus `json:"status,omitempty"`
}

// StatusSummary is what the status webhook answers.
type StatusSummary struct {
	Received int `json:"received"`
	Matched  int `json:"matched"`
	Applied  int `json:"applied"`
}

// DeliveryStatusService applies provider status callbacks to messages.
type DeliveryStatusService struct {
	tenants   TenantResolver
	secrets   WebhookSecrets
	messages  repositories.MessageRepo
	campaigns *CampaignService
	bus       events.Publisher
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewDeliveryStatusService(
	tenants TenantResolver,
	secrets WebhookSecrets,
	messages repositories.MessageRepo,
	campaigns *CampaignService,
	bus events.Publisher,
	m *metrics.Metrics,
) *DeliveryStatusService {
	return &DeliveryStatusService{
		tenants:   tenants,
		secrets:   secrets,
		messages:  messages,
		campaigns: campaigns,
		bus:       bus,
		metrics:   m,
		now:       utcNow,
	}
}

// HandleWebhook authenticates, parses and applies a status callback body.
// Callbacks for unknown messages or instances are counted, not rejected.
func (s *DeliveryStatusService) HandleWebhook(ctx context.Context, provider whatsapp.Provider, header whatsapp.HeaderFunc, body []byte) (StatusSummary, error) {
	var summary StatusSummary

	parser, err := authenticate(provider, s.secrets, header, body)
	if err != nil {
		s.metrics.StatusUpdate(string(provider), "rejected")
		return summary, err
	}
	updates, err := parser.ParseStatus(body)
	if err != nil {
		s.metrics.StatusUpdate(string(provider), "malformed")
		return summary, err
	}

	for _, u := range updates {
		summary.Received++
		tenantID, err := resolveTenant(ctx, s.tenants, provider, u.InstanceID)
		if errors.Is(err, apperrors.Malformed) {
			utils.LogWarn("status callback for unknown instance", map[string]interface{}{
				"provider":    string(provider),
				"instance_id": u.InstanceID,
			})
			s.metrics.StatusUpdate(string(provider), "unknown_instance")
			continue
		}
		if err != nil {
			return summary, err
		}

		res, err := s.apply(ctx, tenantID, u)
		if err != nil {
			return summary, err
		}
		switch {
		case res.Applied:
			summary.Matched++
			summary.Applied++
			s.metrics.StatusUpdate(string(provider), "applied")
		case res.Matched:
			summary.Matched++
			s.metrics.StatusUpdate(string(provider), "stale")
		default:
			s.metrics.StatusUpdate(string(provider), "unmatched")
		}
	}
	return summary, nil
}

// ApplyStatus applies newStatus to the message with providerMessageID.
// Status only moves forward (sent < delivered < read); failed is accepted
// from any other status and is final.
func (s *DeliveryStatusService) ApplyStatus(ctx context.Context, tenantID uuid.UUID, providerMessageID string, newStatus models.MessageStatus) (StatusResult, error) {
	return s.apply(ctx, tenantID, whatsapp.StatusUpdate{
		ExternalID: providerMessageID,
		Status:     whatsapp.Status(newStatus),
	})
}

func (s *DeliveryStatusService) apply(ctx context.Context, tenantID uuid.UUID, u whatsapp.StatusUpdate) (StatusResult, error) {
	target := models.MessageStatus(u.Status)

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		m, err := s.messages.FindByExternalID(ctx, tenantID, u.ExternalID)
		if errors.Is(err, apperrors.NotFound) {
			return s.applyToContact(ctx, tenantID, u, target)
		}
		if err != nil {
			return StatusResult{}, err
		}

		if !advances(m.Status, target) {
			return StatusResult{Matched: true, Status: m.Status}, nil
		}

		at := u.Timestamp
		if at.IsZero() {
			at = s.now()
		}
		ok, err := s.messages.UpdateStatus(ctx, m.ID, m.Status, stampStatus(m, target, at, u.Error))
		if err != nil {
			return StatusResult{}, err
		}
		if !ok {
			continue
		}

		s.bus.Publish(ctx, events.New(events.MessageStatusChanged, tenantID.String(), MessageStatusPayload{
			MessageID:      m.ID,
			ConversationID: m.ConversationID,
			ExternalID:     u.ExternalID,
			From:           m.Status,
			To:             target,
		}))
		if _, err := s.campaigns.ApplyDeliveryStatus(ctx, tenantID, u.ExternalID, target, u.Error); err != nil {
			utils.LogError("campaign status correlation failed", err, map[string]interface{}{
				"tenant_id":   tenantID.String(),
				"external_id": u.ExternalID,
			})
		}
		return StatusResult{Matched: true, Applied: true, Status: target}, nil
	}
	return StatusResult{Matched: true}, apperrors.New(apperrors.Transient, "delivery.ApplyStatus", "status kept changing")
}

// applyToContact correlates a status whose message row is missing, which
// happens while a send job is still writing it, straight onto the contact.
func (s *DeliveryStatusService) applyToContact(ctx context.Context, tenantID uuid.UUID, u whatsapp.StatusUpdate, target models.MessageStatus) (StatusResult, error) {
	applied, err := s.campaigns.ApplyDeliveryStatus(ctx, tenantID, u.ExternalID, target, u.Error)
	if err != nil {
		return StatusResult{}, err
	}
	if !applied {
		return StatusResult{}, nil
	}
	return StatusResult{Matched: true, Applied: true, Status: target}, nil
}

// advances reports whether moving from cur to next is a forward step.
func advances(cur, next models.MessageStatus) bool {
	if cur == models.MessageFailed {
		return false
	}
	if next == models.MessageFailed {
		return true
	}
	return next.Rank() > cur.Rank()
}

// stampStatus sets the timestamp of the new status and back-fills the ones
// that were skipped, so a read message always has delivered_at.
func stampStatus(m *models.Message, target models.MessageStatus, at time.Time, errMsg string) repositories.StatusChange {
	change := repositories.StatusChange{Status: target}
	switch target {
	case models.MessageFailed:
		change.FailedAt = &at
		change.ErrorMessage = errMsg
		if change.ErrorMessage == "" {
			change.ErrorMessage = "provider reported failure"
		}
		return change
	case models.MessageRead:
		change.ReadAt = &at
		fallthrough
	case models.MessageDelivered:
		if m.DeliveredAt == nil {
			change.DeliveredAt = &at
		}
		fallthrough
	case models.MessageSent:
		if m.SentAt == nil && m.SenderType != models.SenderCustomer {
			change.SentAt = &at
		}
	}
	return change
}
