package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/events"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/jobs"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/metrics"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/whatsapp"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/models"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/repositories"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/apperrors"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/utils"
)

const (
	IngestSuccess = "success"
	IngestIgnored = "ignored"
)

// IngestResult is the outcome of one inbound message.
type IngestResult struct {
	Status    string    `json:"status"`
	MessageID uuid.UUID `json:"messageId,omitempty"`
	Duplicate bool      `json:"duplicate,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// IngestionDeps wires IngestionService.
type IngestionDeps struct {
	Tenants   TenantResolver
	Secrets   WebhookSecrets
	Identity  *IdentityService
	Router    *ConversationRouter
	Messages  repositories.MessageRepo
	Campaigns *CampaignService
	Jobs      jobs.Enqueuer
	Bus       events.Publisher
	Metrics   *metrics.Metrics
}

// IngestionService turns inbound webhooks into deduplicated messages.
type IngestionService struct {
	IngestionDeps
	now func() time.Time
}

func NewIngestionService(deps IngestionDeps) *IngestionService {
	return &IngestionService{IngestionDeps: deps, now: utcNow}
}

// HandleWebhook authenticates and parses a webhook body, then ingests every
// message it carries. The first storage failure aborts the call so the
// provider redelivers; messages already stored dedup on the retry.
func (s *IngestionService) HandleWebhook(ctx context.Context, provider whatsapp.Provider, header whatsapp.HeaderFunc, body []byte) ([]IngestResult, error) {
	parser, err := authenticate(provider, s.Secrets, header, body)
	if err != nil {
		s.Metrics.InboundMessage(string(provider), "rejected")
		utils.LogWarn("webhook rejected", map[string]interface{}{"provider": string(provider), "error": err.Error()})
		return nil, err
	}

	msgs, err := parser.ParseInbound(body)
	if err != nil {
		s.Metrics.InboundMessage(string(provider), "malformed")
		utils.LogWarn("malformed webhook payload", map[string]interface{}{"provider": string(provider), "error": err.Error()})
		return nil, err
	}
	if len(msgs) == 0 {
		s.Metrics.InboundMessage(string(provider), "ignored")
		return []IngestResult{{Status: IngestIgnored, Reason: "no message in payload"}}, nil
	}

	results := make([]IngestResult, 0, len(msgs))
	for _, msg := range msgs {
		res, err := s.Ingest(ctx, msg)
		if err != nil {
			s.Metrics.InboundMessage(string(provider), string(apperrors.KindOf(err)))
			return results, err
		}
		result := "stored"
		switch {
		case res.Status == IngestIgnored:
			result = "ignored"
		case res.Duplicate:
			result = "duplicate"
		}
		s.Metrics.InboundMessage(string(provider), result)
		results = append(results, res)
	}
	return results, nil
}

// Ingest stores one parsed inbound message. It is idempotent on the
// provider message id.
func (s *IngestionService) Ingest(ctx context.Context, msg whatsapp.InboundMessage) (IngestResult, error) {
	const op = "ingest.Ingest"

	if msg.FromMe {
		return IngestResult{Status: IngestIgnored, Reason: "self echo"}, nil
	}
	if msg.IsGroup {
		return IngestResult{Status: IngestIgnored, Reason: "group chat"}, nil
	}

	tenantID, err := resolveTenant(ctx, s.Tenants, msg.Provider, msg.InstanceID)
	if err != nil {
		return IngestResult{}, err
	}

	if msg.ExternalID != "" {
		existing, err := s.Messages.FindByExternalID(ctx, tenantID, msg.ExternalID)
		if err == nil {
			return IngestResult{Status: IngestSuccess, MessageID: existing.ID, Duplicate: true}, nil
		}
		if !errors.Is(err, apperrors.NotFound) {
			return IngestResult{}, err
		}
	}

	customer, err := s.Identity.ResolveCustomer(ctx, tenantID, msg.SenderPhone, msg.SenderName)
	if err != nil {
		return IngestResult{}, err
	}
	conv, err := s.Router.RouteInbound(ctx, tenantID, customer.ID, models.ChannelWhatsApp, msg.ChatID)
	if err != nil {
		return IngestResult{}, err
	}

	m := &models.Message{
		ID:             uuid.New(),
		TenantID:       tenantID,
		ConversationID: conv.ID,
		SenderType:     models.SenderCustomer,
		Content:        msg.Content,
		Provider:       string(msg.Provider),
		Status:         models.MessageReceived,
		MediaURL:       msg.MediaURL,
		MediaMime:      msg.MediaMime,
		Metadata:       inboundMetadata(msg),
		CreatedAt:      s.now(),
	}
	if msg.ExternalID != "" {
		m.ExternalID = stringPtr(msg.ExternalID)
	}

	if err := s.Messages.Create(ctx, m); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) && msg.ExternalID != "" {
			existing, ferr := s.Messages.FindByExternalID(ctx, tenantID, msg.ExternalID)
			if ferr != nil {
				return IngestResult{}, ferr
			}
			return IngestResult{Status: IngestSuccess, MessageID: existing.ID, Duplicate: true}, nil
		}
		return IngestResult{}, apperrors.Wrap(apperrors.KindOf(err), op, err)
	}

	// Everything below is best-effort: the message is durable.
	s.Router.Touch(ctx, conv.ID, m.CreatedAt)

	if msg.HasMedia() {
		s.enqueueMediaFetch(ctx, tenantID, m.ID, msg)
	}

	if !customer.Blocked {
		if _, err := s.Campaigns.MarkResponded(ctx, tenantID, customer.ID); err != nil {
			utils.LogError("campaign correlation failed", err, map[string]interface{}{
				"tenant_id":   tenantID.String(),
				"customer_id": customer.ID.String(),
				"message_id":  m.ID.String(),
			})
		}
	}

	s.Bus.Publish(ctx, events.New(events.MessageCreated, tenantID.String(), MessageCreatedPayload{
		MessageID:      m.ID,
		ConversationID: conv.ID,
		CustomerID:     customer.ID,
		SenderType:     m.SenderType,
		Content:        m.Content,
		HasMedia:       msg.HasMedia(),
		CreatedAt:      m.CreatedAt,
	}))

	utils.LogInfo("inbound message stored", map[string]interface{}{
		"tenant_id":       tenantID.String(),
		"conversation_id": conv.ID.String(),
		"message_id":      m.ID.String(),
		"provider":        string(msg.Provider),
	})
	return IngestResult{Status: IngestSuccess, MessageID: m.ID}, nil
}

func (s *IngestionService) enqueueMediaFetch(ctx context.Context, tenantID, messageID uuid.UUID, msg whatsapp.InboundMessage) {
	if s.Jobs == nil {
		return
	}
	_, err := s.Jobs.Enqueue(ctx, tenantID, JobFetchMedia, fetchMediaPayload{
		MessageID: messageID,
		Provider:  string(msg.Provider),
		URL:       msg.MediaURL,
		MediaID:   msg.MediaID,
		Mime:      msg.MediaMime,
		FileName:  msg.MediaName,
	}, jobs.EnqueueOptions{DedupKey: JobFetchMedia + ":" + messageID.String()})
	if err != nil && !errors.Is(err, jobs.ErrAlreadyQueued) {
		utils.LogError("failed to enqueue media fetch", err, map[string]interface{}{"message_id": messageID.String()})
	}
}

func inboundMetadata(msg whatsapp.InboundMessage) datatypes.JSON {
	meta := make(map[string]interface{}, len(msg.Metadata)+3)
	for k, v := range msg.Metadata {
		meta[k] = v
	}
	meta["instance_id"] = msg.InstanceID
	if msg.SenderName != "" {
		meta["sender_name"] = msg.SenderName
	}
	if !msg.Timestamp.IsZero() {
		meta["provider_timestamp"] = msg.Timestamp.UTC().Format(time.RFC3339)
	}

	raw, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
