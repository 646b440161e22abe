package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/llm"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/whatsapp"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/models"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/apperrors"
)

type fakeDrafter struct {
	reply   string
	err     error
	prompt  string
	history []llm.Turn
}

func (f *fakeDrafter) GenerateResponse(_ context.Context, systemPrompt string, history []llm.Turn) (string, error) {
	f.prompt, f.history = systemPrompt, history
	return f.reply, f.err
}

func (h *harness) draftService(d Drafter) *DraftService {
	return NewDraftService(fakeConversations{h.db}, fakeCustomers{h.db}, fakeMessages{h.db}, d)
}

func TestDraftUsesConversationHistory(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()
	drafter := &fakeDrafter{reply: "Olá Ana! Podemos agendar sua doação para sábado."}

	res, err := h.ingest.HandleWebhook(ctx, whatsapp.ProviderZAPI, noHeaders, zapiInbound("d-1", "5511999990000", "Quero doar sangue", nil))
	require.NoError(t, err)
	convID := h.message(res[0].MessageID).ConversationID

	draft, err := h.draftService(drafter).Draft(ctx, h.tenantID, convID)
	require.NoError(t, err)
	assert.Equal(t, drafter.reply, draft.Draft)
	assert.Equal(t, convID, draft.ConversationID)
	assert.Equal(t, []llm.Turn{{Role: llm.RoleCustomer, Content: "Quero doar sangue"}}, drafter.history)
	assert.Contains(t, drafter.prompt, "Ana")
}

func TestDraftPreconditions(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()

	conv, err := h.router.RouteInbound(ctx, h.tenantID, uuid.New(), models.ChannelWhatsApp, "")
	require.NoError(t, err)
	customer := models.Customer{ID: conv.CustomerID, TenantID: h.tenantID, Phone: "+5511999990000", DisplayName: "+5511999990000"}
	require.NoError(t, fakeCustomers{h.db}.Create(ctx, &customer))

	_, err = h.draftService(&fakeDrafter{}).Draft(ctx, h.tenantID, conv.ID)
	assert.ErrorIs(t, err, apperrors.PreconditionFailed, "nothing to answer")

	h.post(t, conv, nil)
	_, err = h.draftService(&fakeDrafter{err: llm.ErrDisabled}).Draft(ctx, h.tenantID, conv.ID)
	assert.ErrorIs(t, err, apperrors.PreconditionFailed)

	_, err = h.draftService(&fakeDrafter{err: errors.New("rate limited")}).Draft(ctx, h.tenantID, conv.ID)
	assert.ErrorIs(t, err, apperrors.Transient)

	agent := uuid.New()
	h.post(t, conv, &agent)
	_, err = h.draftService(&fakeDrafter{reply: "x"}).Draft(ctx, h.tenantID, conv.ID)
	assert.ErrorIs(t, err, apperrors.PreconditionFailed, "agent already answered")

	_, err = h.draftService(&fakeDrafter{}).Draft(ctx, h.tenantID, uuid.New())
	assert.ErrorIs(t, err, apperrors.NotFound)
}
