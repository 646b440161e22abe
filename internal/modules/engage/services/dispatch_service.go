package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/events"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/jobs"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/whatsapp"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/models"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/repositories"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/apperrors"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/utils"
)

// DispatchDeps wires DispatchService.
type DispatchDeps struct {
	Campaigns    repositories.CampaignRepo
	CampaignSvc  *CampaignService
	Customers    repositories.CustomerRepo
	Router       *ConversationRouter
	Messages     repositories.MessageRepo
	Sender       whatsapp.Sender
	Jobs         jobs.Enqueuer
	Bus          events.Publisher
	SendTimeout  time.Duration
	RequeueAfter time.Duration // a claimed contact still pending after this is claimed again
}

// DispatchService sends pending campaign contacts through the outbound
// send service, one job per contact.
type DispatchService struct {
	DispatchDeps
	now func() time.Time
}

func NewDispatchService(deps DispatchDeps) *DispatchService {
	if deps.SendTimeout <= 0 {
		deps.SendTimeout = 10 * time.Second
	}
	if deps.RequeueAfter <= 0 {
		deps.RequeueAfter = 15 * time.Minute
	}
	return &DispatchService{DispatchDeps: deps, now: utcNow}
}

// DispatchCampaign claims the campaign's pending contacts and enqueues a
// send job for each. Contacts queued recently are not claimed twice.
func (s *DispatchService) DispatchCampaign(ctx context.Context, tenantID, campaignID uuid.UUID) (int, error) {
	campaign, err := s.Campaigns.FindCampaign(ctx, tenantID, campaignID)
	if err != nil {
		return 0, err
	}
	if campaign.Status != models.CampaignSending {
		if err := s.Campaigns.SetCampaignStatus(ctx, tenantID, campaignID, models.CampaignSending); err != nil {
			return 0, err
		}
	}

	ids, err := s.Campaigns.ClaimPending(ctx, tenantID, campaignID, s.now().Add(-s.RequeueAfter), 0)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, id := range ids {
		_, err := s.Jobs.Enqueue(ctx, tenantID, JobSendContact, sendContactPayload{ContactID: id},
			jobs.EnqueueOptions{DedupKey: JobSendContact + ":" + id.String(), MaxAttempts: 3})
		if errors.Is(err, jobs.ErrAlreadyQueued) {
			continue
		}
		if err != nil {
			utils.LogError("failed to enqueue campaign send", err, map[string]interface{}{"contact_id": id.String()})
			continue
		}
		enqueued++
	}

	utils.LogInfo("campaign dispatched", map[string]interface{}{
		"tenant_id":   tenantID.String(),
		"campaign_id": campaignID.String(),
		"enqueued":    enqueued,
	})
	return enqueued, nil
}

// HandleSendContact is the campaign.send_contact job handler. Provider
// errors fail the contact, not the job: the operator decides on a retry.
func (s *DispatchService) HandleSendContact(ctx context.Context, job *jobs.Job) error {
	var payload sendContactPayload
	if err := job.Decode(&payload); err != nil {
		return err
	}
	tenantID := job.TenantID

	cc, err := s.Campaigns.FindContact(ctx, tenantID, payload.ContactID)
	if errors.Is(err, apperrors.NotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	resume := cc.Status == models.ContactSent && cc.ExternalMessageID != nil
	if cc.Status != models.ContactPending && !resume {
		return nil
	}

	campaign, err := s.Campaigns.FindCampaign(ctx, tenantID, cc.CampaignID)
	if err != nil {
		return err
	}
	customer, err := s.Customers.FindByID(ctx, tenantID, cc.CustomerID)
	if err != nil {
		return err
	}
	if resume {
		return s.resumeOutbound(ctx, tenantID, customer, campaign, *cc.ExternalMessageID)
	}
	if customer.Blocked {
		_, err := s.CampaignSvc.MarkFailed(ctx, tenantID, cc.ID, "customer is blocked")
		return ignorePrecondition(err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.SendTimeout)
	res, sendErr := s.Sender.Send(sendCtx, tenantID.String(), customer.Phone, campaign.Content)
	cancel()
	if sendErr == nil && (res == nil || !res.Success) {
		sendErr = errors.New("provider did not accept the message")
	}
	if sendErr != nil {
		utils.LogWarn("campaign send failed", map[string]interface{}{
			"contact_id": cc.ID.String(),
			"provider":   s.Sender.GetProviderName(),
			"error":      sendErr.Error(),
		})
		_, err := s.CampaignSvc.MarkFailed(ctx, tenantID, cc.ID, sendErr.Error())
		return ignorePrecondition(err)
	}

	// Link the contact to the provider id before the message row exists so
	// early status callbacks find it.
	if _, err := s.CampaignSvc.MarkSent(ctx, tenantID, cc.ID, res.ProviderMessageID); err != nil {
		if ignorePrecondition(err) != nil {
			return err
		}
	}

	return s.recordOutbound(ctx, tenantID, customer, campaign, res.ProviderMessageID)
}

// resumeOutbound writes the outbound message of a contact that was marked
// sent by an earlier attempt which failed before the message row landed.
func (s *DispatchService) resumeOutbound(ctx context.Context, tenantID uuid.UUID, customer *models.Customer, campaign *models.Campaign, externalID string) error {
	_, err := s.Messages.FindByExternalID(ctx, tenantID, externalID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, apperrors.NotFound) {
		return err
	}
	utils.LogInfo("recording outbound message of sent contact", map[string]interface{}{
		"tenant_id":   tenantID.String(),
		"external_id": externalID,
	})
	return s.recordOutbound(ctx, tenantID, customer, campaign, externalID)
}

func (s *DispatchService) recordOutbound(ctx context.Context, tenantID uuid.UUID, customer *models.Customer, campaign *models.Campaign, externalID string) error {
	conv, err := s.Router.RouteInbound(ctx, tenantID, customer.ID, campaign.Channel, "")
	if err != nil {
		return err
	}

	at := s.now()
	m := &models.Message{
		ID:             uuid.New(),
		TenantID:       tenantID,
		ConversationID: conv.ID,
		SenderType:     models.SenderSystem,
		Content:        campaign.Content,
		Provider:       s.Sender.GetProviderName(),
		Status:         models.MessageSent,
		CreatedAt:      at,
		SentAt:         &at,
	}
	if externalID != "" {
		m.ExternalID = stringPtr(externalID)
	}
	if err := s.Messages.Create(ctx, m); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil
		}
		return err
	}

	s.Router.Touch(ctx, conv.ID, at)
	s.Bus.Publish(ctx, events.New(events.MessageCreated, tenantID.String(), MessageCreatedPayload{
		MessageID:      m.ID,
		ConversationID: conv.ID,
		CustomerID:     customer.ID,
		SenderType:     m.SenderType,
		Content:        m.Content,
		CreatedAt:      at,
	}))
	return nil
}

// SweepSending re-dispatches contacts left pending in sending campaigns and
// completes campaigns with nothing left to send.
func (s *DispatchService) SweepSending(ctx context.Context) error {
	campaigns, err := s.Campaigns.ListCampaignsByStatus(ctx, models.CampaignSending)
	if err != nil {
		return err
	}

	for _, c := range campaigns {
		n, err := s.DispatchCampaign(ctx, c.TenantID, c.ID)
		if err != nil {
			utils.LogError("campaign sweep failed", err, map[string]interface{}{"campaign_id": c.ID.String()})
			continue
		}
		if n > 0 {
			continue
		}
		counts, err := s.Campaigns.CountByStatus(ctx, c.TenantID, c.ID)
		if err != nil {
			continue
		}
		if counts[models.ContactPending] == 0 {
			if err := s.Campaigns.SetCampaignStatus(ctx, c.TenantID, c.ID, models.CampaignCompleted); err != nil {
				utils.LogError("failed to complete campaign", err, map[string]interface{}{"campaign_id": c.ID.String()})
			}
		}
	}
	return nil
}

// ignorePrecondition drops state machine refusals: the contact moved on
// (excluded, responded) while the job was running.
func ignorePrecondition(err error) error {
	if errors.Is(err, apperrors.PreconditionFailed) {
		return nil
	}
	return err
}
