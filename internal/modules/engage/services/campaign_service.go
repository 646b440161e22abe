package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/audit"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/events"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/metrics"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/models"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/repositories"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/apperrors"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/utils"
)

// CampaignService drives the campaign contact state machine.
//
//	pending -> sent -> delivered -> read -> responded
//	pending|sent -> failed -> (retry) pending
//	pending|sent|delivered|read -> excluded -> (reinclude) pending
//	pending|sent|delivered|read -> responded
//
// Every transition is a compare-and-set on the observed status. Requesting
// the status a contact already has is a no-op.
type CampaignService struct {
	campaigns repositories.CampaignRepo
	identity  *IdentityService
	audit     audit.Logger
	bus       events.Publisher
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewCampaignService(campaigns repositories.CampaignRepo, identity *IdentityService, auditLog audit.Logger, bus events.Publisher, m *metrics.Metrics) *CampaignService {
	return &CampaignService{
		campaigns: campaigns,
		identity:  identity,
		audit:     auditLog,
		bus:       bus,
		metrics:   m,
		now:       utcNow,
	}
}

// CreateCampaignRequest is the body of POST /campaigns
type CreateCampaignRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Content string `json:"content" validate:"required,max=4096"`
	Channel string `json:"channel" validate:"omitempty,oneof=whatsapp"`
}

// EnrollRequest is the body of POST /campaigns/:id/contacts
type EnrollRequest struct {
	Phones []string `json:"phones" validate:"required,min=1,max=5000,dive,required"`
}

// EnrollResult reports what EnrollCustomers did with each phone.
type EnrollResult struct {
	Enrolled int      `json:"enrolled"`
	Existing int      `json:"existing"`
	Invalid  []string `json:"invalid,omitempty"`
}

func (s *CampaignService) CreateCampaign(ctx context.Context, tenantID uuid.UUID, req CreateCampaignRequest) (*models.Campaign, error) {
	channel := req.Channel
	if channel == "" {
		channel = models.ChannelWhatsApp
	}
	c := &models.Campaign{
		ID:       uuid.New(),
		TenantID: tenantID,
		Name:     strings.TrimSpace(req.Name),
		Channel:  channel,
		Content:  req.Content,
		Status:   models.CampaignDraft,
	}
	if err := s.campaigns.CreateCampaign(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CampaignService) GetCampaign(ctx context.Context, tenantID, id uuid.UUID) (*models.Campaign, error) {
	return s.campaigns.FindCampaign(ctx, tenantID, id)
}

// EnrollCustomers adds customers to a campaign by phone. Already enrolled
// customers are counted, not duplicated; unparseable phones are reported.
func (s *CampaignService) EnrollCustomers(ctx context.Context, tenantID, campaignID uuid.UUID, phones []string) (*EnrollResult, error) {
	if _, err := s.campaigns.FindCampaign(ctx, tenantID, campaignID); err != nil {
		return nil, err
	}

	res := &EnrollResult{}
	for _, p := range phones {
		customer, err := s.identity.ResolveCustomer(ctx, tenantID, p, "")
		if errors.Is(err, apperrors.InvalidIdentifier) {
			res.Invalid = append(res.Invalid, p)
			continue
		}
		if err != nil {
			return res, err
		}

		created, err := s.campaigns.EnrollContact(ctx, &models.CampaignContact{
			ID:         uuid.New(),
			TenantID:   tenantID,
			CampaignID: campaignID,
			CustomerID: customer.ID,
			Status:     models.ContactPending,
		})
		if err != nil {
			return res, err
		}
		if created {
			res.Enrolled++
		} else {
			res.Existing++
		}
	}
	return res, nil
}

func (s *CampaignService) ListContacts(ctx context.Context, tenantID, campaignID uuid.UUID, filter repositories.ContactFilter) ([]models.CampaignContact, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperrors.New(apperrors.Malformed, "campaigns.ListContacts", fmt.Sprintf("unknown status %q", filter.Status))
	}
	if _, err := s.campaigns.FindCampaign(ctx, tenantID, campaignID); err != nil {
		return nil, err
	}
	return s.campaigns.ListContacts(ctx, tenantID, campaignID, filter)
}

func (s *CampaignService) Stats(ctx context.Context, tenantID, campaignID uuid.UUID) (*models.CampaignStats, error) {
	if _, err := s.campaigns.FindCampaign(ctx, tenantID, campaignID); err != nil {
		return nil, err
	}
	counts, err := s.campaigns.CountByStatus(ctx, tenantID, campaignID)
	if err != nil {
		return nil, err
	}

	stats := &models.CampaignStats{CampaignID: campaignID, ByStatus: counts}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

// transition describes one edge of the state machine.
type transition struct {
	op     string
	target models.ContactStatus
	from   []models.ContactStatus
	change func(cc *models.CampaignContact, now time.Time) repositories.ContactChange
}

func (t transition) allows(status models.ContactStatus) bool {
	for _, f := range t.from {
		if f == status {
			return true
		}
	}
	return false
}

// apply runs t against a contact. It returns the contact as stored after
// the call and whether this call changed it.
func (s *CampaignService) apply(ctx context.Context, tenantID, contactID uuid.UUID, t transition) (*models.CampaignContact, bool, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		cc, err := s.campaigns.FindContact(ctx, tenantID, contactID)
		if err != nil {
			return nil, false, err
		}
		if cc.Status == t.target {
			return cc, false, nil
		}
		if !t.allows(cc.Status) {
			return cc, false, apperrors.New(apperrors.PreconditionFailed, t.op,
				fmt.Sprintf("contact is %s, cannot move to %s", cc.Status, t.target))
		}

		from := cc.Status
		ok, err := s.campaigns.TransitionContact(ctx, tenantID, contactID, []models.ContactStatus{from}, t.change(cc, s.now()))
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}

		updated, err := s.campaigns.FindContact(ctx, tenantID, contactID)
		if err != nil {
			return nil, true, err
		}
		s.changed(ctx, updated, from)
		return updated, true, nil
	}
	return nil, false, apperrors.New(apperrors.Transient, t.op, "contact status kept changing")
}

func (s *CampaignService) changed(ctx context.Context, cc *models.CampaignContact, from models.ContactStatus) {
	s.metrics.ContactTransition(string(cc.Status))
	s.bus.Publish(ctx, events.New(events.CampaignContactChanged, cc.TenantID.String(), ContactChangedPayload{
		ContactID:  cc.ID,
		CampaignID: cc.CampaignID,
		CustomerID: cc.CustomerID,
		From:       from,
		To:         cc.Status,
	}))
}

func (s *CampaignService) auditAction(ctx context.Context, cc *models.CampaignContact, action string, actor *uuid.UUID, from models.ContactStatus, detail string) {
	err := s.audit.LogChange(ctx, audit.Entry{
		TenantID:    cc.TenantID,
		ActorUserID: actor,
		Action:      action,
		Entity:      audit.EntityCampaignContact,
		EntityID:    cc.ID.String(),
		OldValue:    map[string]interface{}{"status": from},
		NewValue:    map[string]interface{}{"status": cc.Status},
		Description: detail,
	})
	if err != nil {
		utils.LogError("failed to audit campaign contact", err, map[string]interface{}{"contact_id": cc.ID.String()})
	}
}

// MarkSent records a successful dispatch.
func (s *CampaignService) MarkSent(ctx context.Context, tenantID, contactID uuid.UUID, externalID string) (*models.CampaignContact, error) {
	cc, _, err := s.apply(ctx, tenantID, contactID, transition{
		op:     "campaigns.MarkSent",
		target: models.ContactSent,
		from:   []models.ContactStatus{models.ContactPending},
		change: func(_ *models.CampaignContact, now time.Time) repositories.ContactChange {
			return repositories.ContactChange{
				Status:            models.ContactSent,
				ExternalMessageID: stringPtr(externalID),
				ErrorMessage:      stringPtr(""),
				SentAt:            &now,
				ClearQueued:       true,
			}
		},
	})
	return cc, err
}

// MarkFailed records a dispatch error.
func (s *CampaignService) MarkFailed(ctx context.Context, tenantID, contactID uuid.UUID, reason string) (*models.CampaignContact, error) {
	cc, _, err := s.apply(ctx, tenantID, contactID, transition{
		op:     "campaigns.MarkFailed",
		target: models.ContactFailed,
		from:   []models.ContactStatus{models.ContactPending, models.ContactSent},
		change: func(_ *models.CampaignContact, now time.Time) repositories.ContactChange {
			return repositories.ContactChange{
				Status:       models.ContactFailed,
				ErrorMessage: stringPtr(reason),
				FailedAt:     &now,
				ClearQueued:  true,
			}
		},
	})
	return cc, err
}

// ApplyDeliveryStatus mirrors a message status onto the contact that sent
// it. It reports whether a contact changed; unknown ids are ignored.
func (s *CampaignService) ApplyDeliveryStatus(ctx context.Context, tenantID uuid.UUID, externalID string, status models.MessageStatus, errMsg string) (bool, error) {
	cc, err := s.campaigns.FindContactByExternalID(ctx, tenantID, externalID)
	if errors.Is(err, apperrors.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var t transition
	switch status {
	case models.MessageDelivered:
		t = transition{
			op:     "campaigns.Delivered",
			target: models.ContactDelivered,
			from:   []models.ContactStatus{models.ContactSent},
			change: func(_ *models.CampaignContact, now time.Time) repositories.ContactChange {
				return repositories.ContactChange{Status: models.ContactDelivered, DeliveredAt: &now}
			},
		}
	case models.MessageRead:
		t = transition{
			op:     "campaigns.Read",
			target: models.ContactRead,
			from:   []models.ContactStatus{models.ContactSent, models.ContactDelivered},
			change: func(cur *models.CampaignContact, now time.Time) repositories.ContactChange {
				ch := repositories.ContactChange{Status: models.ContactRead, ReadAt: &now}
				if cur.DeliveredAt == nil {
					ch.DeliveredAt = &now
				}
				return ch
			},
		}
	case models.MessageFailed:
		if errMsg == "" {
			errMsg = "provider reported failure"
		}
		t = transition{
			op:     "campaigns.DeliveryFailed",
			target: models.ContactFailed,
			from:   []models.ContactStatus{models.ContactSent, models.ContactDelivered},
			change: func(_ *models.CampaignContact, now time.Time) repositories.ContactChange {
				return repositories.ContactChange{Status: models.ContactFailed, ErrorMessage: stringPtr(errMsg), FailedAt: &now}
			},
		}
	default:
		return false, nil
	}

	_, changed, err := s.apply(ctx, tenantID, cc.ID, t)
	if errors.Is(err, apperrors.PreconditionFailed) {
		// late or out-of-order callback, e.g. delivered after responded
		return false, nil
	}
	return changed, err
}

// MarkResponded correlates an inbound message to the customer's most
// recently sent active contact. It returns nil when there is none.
func (s *CampaignService) MarkResponded(ctx context.Context, tenantID, customerID uuid.UUID) (*models.CampaignContact, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		cc, err := s.campaigns.FindLatestActiveContact(ctx, tenantID, customerID)
		if errors.Is(err, apperrors.NotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		updated, changed, err := s.apply(ctx, tenantID, cc.ID, transition{
			op:     "campaigns.MarkResponded",
			target: models.ContactResponded,
			from:   models.ActiveContactStatuses,
			change: func(_ *models.CampaignContact, now time.Time) repositories.ContactChange {
				return repositories.ContactChange{Status: models.ContactResponded, RespondedAt: &now, ClearQueued: true}
			},
		})
		if errors.Is(err, apperrors.PreconditionFailed) {
			// excluded or failed between lookup and update; pick again
			continue
		}
		if err != nil {
			return nil, err
		}
		if !changed {
			// a concurrent inbound message got there first
			return nil, nil
		}
		return updated, nil
	}
	return nil, nil
}

// Exclude takes an active contact out of the campaign. reason is required.
func (s *CampaignService) Exclude(ctx context.Context, tenantID, contactID uuid.UUID, reason string, actor *uuid.UUID) (*models.CampaignContact, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.New(apperrors.Malformed, "campaigns.Exclude", "reason is required")
	}

	var from models.ContactStatus
	cc, changed, err := s.apply(ctx, tenantID, contactID, transition{
		op:     "campaigns.Exclude",
		target: models.ContactExcluded,
		from:   models.ActiveContactStatuses,
		change: func(cur *models.CampaignContact, now time.Time) repositories.ContactChange {
			from = cur.Status
			return repositories.ContactChange{
				Status:          models.ContactExcluded,
				ExclusionReason: stringPtr(reason),
				ExcludedAt:      &now,
				ClearQueued:     true,
			}
		},
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.auditAction(ctx, cc, audit.ActionExclude, actor, from, reason)
	}
	return cc, nil
}

// Reinclude returns an excluded contact to pending. Timestamps are kept as
// history; the exclusion reason and last error are cleared.
func (s *CampaignService) Reinclude(ctx context.Context, tenantID, contactID uuid.UUID, actor *uuid.UUID) (*models.CampaignContact, error) {
	cc, changed, err := s.apply(ctx, tenantID, contactID, transition{
		op:     "campaigns.Reinclude",
		target: models.ContactPending,
		from:   []models.ContactStatus{models.ContactExcluded},
		change: func(_ *models.CampaignContact, now time.Time) repositories.ContactChange {
			return repositories.ContactChange{
				Status:          models.ContactPending,
				ExclusionReason: stringPtr(""),
				ErrorMessage:    stringPtr(""),
				ReincludedAt:    &now,
				ClearQueued:     true,
			}
		},
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.auditAction(ctx, cc, audit.ActionReinclude, actor, models.ContactExcluded, "")
	}
	return cc, nil
}

// Retry returns a failed contact to pending.
func (s *CampaignService) Retry(ctx context.Context, tenantID, contactID uuid.UUID, actor *uuid.UUID) (*models.CampaignContact, error) {
	cc, changed, err := s.retry(ctx, tenantID, contactID)
	if err != nil {
		return nil, err
	}
	if changed {
		s.auditAction(ctx, cc, audit.ActionRetry, actor, models.ContactFailed, "")
	}
	return cc, nil
}

func (s *CampaignService) retry(ctx context.Context, tenantID, contactID uuid.UUID) (*models.CampaignContact, bool, error) {
	return s.apply(ctx, tenantID, contactID, transition{
		op:     "campaigns.Retry",
		target: models.ContactPending,
		from:   []models.ContactStatus{models.ContactFailed},
		change: func(_ *models.CampaignContact, now time.Time) repositories.ContactChange {
			return repositories.ContactChange{
				Status:         models.ContactPending,
				ErrorMessage:   stringPtr(""),
				LastRetryAt:    &now,
				IncrementRetry: true,
				ClearQueued:    true,
			}
		},
	})
}

// RetryAllFailed retries every failed contact of a campaign independently
// and returns how many moved to pending. A contact that cannot be retried
// does not stop the batch.
func (s *CampaignService) RetryAllFailed(ctx context.Context, tenantID, campaignID uuid.UUID, actor *uuid.UUID) (int, error) {
	if _, err := s.campaigns.FindCampaign(ctx, tenantID, campaignID); err != nil {
		return 0, err
	}

	failed, err := s.campaigns.ListContacts(ctx, tenantID, campaignID, repositories.ContactFilter{Status: models.ContactFailed})
	if err != nil {
		return 0, err
	}

	retried := 0
	for _, cc := range failed {
		_, changed, err := s.retry(ctx, tenantID, cc.ID)
		if err != nil {
			utils.LogWarn("retry of failed contact skipped", map[string]interface{}{
				"campaign_id": campaignID.String(),
				"contact_id":  cc.ID.String(),
				"error":       err.Error(),
			})
			continue
		}
		if changed {
			retried++
		}
	}

	if err := s.audit.LogChange(ctx, audit.Entry{
		TenantID:    tenantID,
		ActorUserID: actor,
		Action:      audit.ActionRetryAll,
		Entity:      audit.EntityCampaign,
		EntityID:    campaignID.String(),
		NewValue:    map[string]interface{}{"retried": retried, "failed": len(failed)},
	}); err != nil {
		utils.LogError("failed to audit retry-all", err, map[string]interface{}{"campaign_id": campaignID.String()})
	}
	return retried, nil
}
