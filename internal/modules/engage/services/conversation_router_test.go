package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/audit"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/events"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/models"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/apperrors"
)

func TestRouteInboundConcurrentCallersShareOneConversation(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()
	customerID := uuid.New()

	const callers = 20
	ids := make([]uuid.UUID, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, err := h.router.RouteInbound(ctx, h.tenantID, customerID, models.ChannelWhatsApp, "")
			if assert.NoError(t, err) {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, h.countConversations())
}

func TestRouteInboundOpensInInbox(t *testing.T) {
	h := newHarness(nil)
	conv, err := h.router.RouteInbound(context.Background(), h.tenantID, uuid.New(), models.ChannelWhatsApp, "5511999990000")
	require.NoError(t, err)
	assert.Equal(t, models.ConversationInbox, conv.Status)
	assert.Equal(t, "5511999990000", conv.ExternalThreadID)
}

func TestClosedConversationIsFinal(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()
	customerID := uuid.New()

	conv, err := h.router.RouteInbound(ctx, h.tenantID, customerID, models.ChannelWhatsApp, "")
	require.NoError(t, err)

	closed, err := h.router.ChangeStatus(ctx, h.tenantID, conv.ID, models.ConversationClosed, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)

	_, err = h.router.ChangeStatus(ctx, h.tenantID, conv.ID, models.ConversationActive, nil)
	assert.ErrorIs(t, err, apperrors.PreconditionFailed)

	// closing again is a no-op, not an error
	again, err := h.router.ChangeStatus(ctx, h.tenantID, conv.ID, models.ConversationClosed, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationClosed, again.Status)

	next, err := h.router.RouteInbound(ctx, h.tenantID, customerID, models.ChannelWhatsApp, "")
	require.NoError(t, err)
	assert.NotEqual(t, conv.ID, next.ID)
	assert.Equal(t, models.ConversationInbox, next.Status)
}

func TestChangeStatusAuditsAndPublishes(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()
	actor := uuid.New()

	conv, err := h.router.RouteInbound(ctx, h.tenantID, uuid.New(), models.ChannelWhatsApp, "")
	require.NoError(t, err)

	_, err = h.router.ChangeStatus(ctx, h.tenantID, conv.ID, models.ConversationActive, &actor)
	require.NoError(t, err)
	_, err = h.router.ChangeStatus(ctx, h.tenantID, conv.ID, models.ConversationActive, &actor)
	require.NoError(t, err)

	assert.Equal(t, []string{audit.ActionStatusChange}, h.audit.actions())
	published := h.events.ofType(events.ConversationStatusChanged)
	require.Len(t, published, 1)
	payload := published[0].Payload.(ConversationStatusPayload)
	assert.Equal(t, models.ConversationInbox, payload.From)
	assert.Equal(t, models.ConversationActive, payload.To)
	assert.Equal(t, &actor, payload.ActorUserID)
}

func TestChangeStatusValidation(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()

	_, err := h.router.ChangeStatus(ctx, h.tenantID, uuid.New(), models.ConversationStatus("archived"), nil)
	assert.ErrorIs(t, err, apperrors.Malformed)

	_, err = h.router.ChangeStatus(ctx, h.tenantID, uuid.New(), models.ConversationActive, nil)
	assert.ErrorIs(t, err, apperrors.NotFound)

	conv, err := h.router.RouteInbound(ctx, h.tenantID, uuid.New(), models.ChannelWhatsApp, "")
	require.NoError(t, err)
	_, err = h.router.ChangeStatus(ctx, uuid.New(), conv.ID, models.ConversationActive, nil)
	assert.ErrorIs(t, err, apperrors.NotFound)
}

func TestParticipants(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()
	agent := uuid.New()

	conv, err := h.router.RouteInbound(ctx, h.tenantID, uuid.New(), models.ChannelWhatsApp, "")
	require.NoError(t, err)

	require.NoError(t, h.router.AddParticipant(ctx, h.tenantID, conv.ID, agent))
	uc, err := h.unread.Get(ctx, h.tenantID, conv.ID, agent)
	require.NoError(t, err)
	assert.Zero(t, uc.Count)
	joinedAt := uc.LastReadAt

	// re-adding keeps the existing row
	require.NoError(t, h.router.AddParticipant(ctx, h.tenantID, conv.ID, agent))
	uc, err = h.unread.Get(ctx, h.tenantID, conv.ID, agent)
	require.NoError(t, err)
	assert.Equal(t, joinedAt, uc.LastReadAt)

	require.NoError(t, h.router.RemoveParticipant(ctx, h.tenantID, conv.ID, agent))
	_, err = h.unread.Get(ctx, h.tenantID, conv.ID, agent)
	assert.ErrorIs(t, err, apperrors.NotFound)

	err = h.router.RemoveParticipant(ctx, h.tenantID, conv.ID, agent)
	assert.ErrorIs(t, err, apperrors.NotFound)

	err = h.router.AddParticipant(ctx, h.tenantID, uuid.New(), agent)
	assert.ErrorIs(t, err, apperrors.NotFound)
}
