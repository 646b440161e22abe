package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/audit"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/events"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/models"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/repositories"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/apperrors"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/utils"
)

// ConversationRouter owns conversation lifecycle and participants.
type ConversationRouter struct {
	conversations repositories.ConversationRepo
	unread        repositories.UnreadRepo
	audit         audit.Logger
	bus           events.Publisher
	now           func() time.Time
}

func NewConversationRouter(conversations repositories.ConversationRepo, unread repositories.UnreadRepo, auditLog audit.Logger, bus events.Publisher) *ConversationRouter {
	return &ConversationRouter{
		conversations: conversations,
		unread:        unread,
		audit:         auditLog,
		bus:           bus,
		now:           utcNow,
	}
}

// RouteInbound returns the open conversation for the key, opening one in
// Inbox when there is none. Creation is serialized per key by the
// repository; a losing creator refetches the winner's conversation.
func (r *ConversationRouter) RouteInbound(ctx context.Context, tenantID, customerID uuid.UUID, channel, externalThreadID string) (*models.Conversation, error) {
	const op = "router.RouteInbound"

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		conv, err := r.conversations.FindOpen(ctx, tenantID, customerID, channel)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, apperrors.NotFound) {
			return nil, err
		}

		conv = &models.Conversation{
			ID:               uuid.New(),
			TenantID:         tenantID,
			CustomerID:       customerID,
			Channel:          channel,
			Status:           models.ConversationInbox,
			ExternalThreadID: externalThreadID,
		}
		err = r.conversations.CreateOpen(ctx, conv)
		if err == nil {
			utils.LogInfo("conversation opened", map[string]interface{}{
				"tenant_id":       tenantID.String(),
				"conversation_id": conv.ID.String(),
				"customer_id":     customerID.String(),
			})
			return conv, nil
		}
		if !errors.Is(err, repositories.ErrDuplicate) {
			return nil, err
		}
	}
	return nil, apperrors.New(apperrors.Transient, op, "open conversation kept conflicting")
}

// Get loads a conversation of the tenant.
func (r *ConversationRouter) Get(ctx context.Context, tenantID, id uuid.UUID) (*models.Conversation, error) {
	return r.conversations.FindByID(ctx, tenantID, id)
}

// ChangeStatus moves a conversation to status. Closed is final; asking for
// the current status is a no-op.
func (r *ConversationRouter) ChangeStatus(ctx context.Context, tenantID, id uuid.UUID, status models.ConversationStatus, actor *uuid.UUID) (*models.Conversation, error) {
	const op = "router.ChangeStatus"

	if !status.Valid() {
		return nil, apperrors.New(apperrors.Malformed, op, fmt.Sprintf("unknown status %q", status))
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		conv, err := r.conversations.FindByID(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		if conv.Status == status {
			return conv, nil
		}
		if conv.Status == models.ConversationClosed {
			return nil, apperrors.New(apperrors.PreconditionFailed, op, "conversation is closed")
		}

		at := r.now()
		ok, err := r.conversations.UpdateStatus(ctx, tenantID, id, conv.Status, status, at)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		from := conv.Status
		conv.Status = status
		conv.UpdatedAt = at
		if status == models.ConversationClosed {
			conv.ClosedAt = timePtr(at)
		}

		if err := r.audit.LogChange(ctx, audit.Entry{
			TenantID:    tenantID,
			ActorUserID: actor,
			Action:      audit.ActionStatusChange,
			Entity:      audit.EntityConversation,
			EntityID:    id.String(),
			OldValue:    map[string]interface{}{"status": from},
			NewValue:    map[string]interface{}{"status": status},
		}); err != nil {
			utils.LogError("failed to audit conversation status", err, map[string]interface{}{"conversation_id": id.String()})
		}
		r.bus.Publish(ctx, events.New(events.ConversationStatusChanged, tenantID.String(), ConversationStatusPayload{
			ConversationID: id,
			From:           from,
			To:             status,
			ActorUserID:    actor,
		}))
		return conv, nil
	}
	return nil, apperrors.New(apperrors.Transient, op, "status kept changing")
}

// AddParticipant attaches a user. Joining starts the user's unread count at
// zero from now; re-adding an active participant changes nothing.
func (r *ConversationRouter) AddParticipant(ctx context.Context, tenantID, conversationID, userID uuid.UUID) error {
	if _, err := r.conversations.FindByID(ctx, tenantID, conversationID); err != nil {
		return err
	}

	active, err := r.conversations.IsActiveParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if active {
		return nil
	}

	at := r.now()
	if err := r.conversations.UpsertParticipant(ctx, &models.Participant{
		ConversationID: conversationID,
		UserID:         userID,
		TenantID:       tenantID,
		Active:         true,
		JoinedAt:       at,
	}); err != nil {
		return err
	}
	return r.unread.Reset(ctx, &models.UnreadCount{
		UserID:         userID,
		ConversationID: conversationID,
		TenantID:       tenantID,
		LastReadAt:     at,
	})
}

// RemoveParticipant detaches a user and drops their unread count.
func (r *ConversationRouter) RemoveParticipant(ctx context.Context, tenantID, conversationID, userID uuid.UUID) error {
	if _, err := r.conversations.FindByID(ctx, tenantID, conversationID); err != nil {
		return err
	}

	ok, err := r.conversations.DeactivateParticipant(ctx, conversationID, userID, r.now())
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.New(apperrors.NotFound, "router.RemoveParticipant", "user is not a participant")
	}
	return r.unread.Delete(ctx, userID, conversationID)
}

// Touch records message activity. Failures are logged only.
func (r *ConversationRouter) Touch(ctx context.Context, conversationID uuid.UUID, at time.Time) {
	if err := r.conversations.Touch(ctx, conversationID, at); err != nil {
		utils.LogWarn("failed to touch conversation", map[string]interface{}{
			"conversation_id": conversationID.String(),
			"error":           err.Error(),
		})
	}
}
