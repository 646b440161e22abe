package services

import (
	"context"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/events"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/models"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/apperrors"
)

// post stores a message in conv and publishes it the way the ingestion and
// dispatch paths do. A nil sender is the customer.
func (h *harness) post(t *testing.T, conv *models.Conversation, sender *uuid.UUID) {
	t.Helper()
	m := &models.Message{
		ID:             uuid.New(),
		TenantID:       h.tenantID,
		ConversationID: conv.ID,
		SenderType:     models.SenderCustomer,
		SenderUserID:   sender,
		Content:        "msg",
		Status:         models.MessageReceived,
		CreatedAt:      h.clock.Now(),
	}
	if sender != nil {
		m.SenderType = models.SenderUser
		m.Status = models.MessageSent
	}
	require.NoError(t, fakeMessages{h.db}.Create(context.Background(), m))
	h.bus.Publish(context.Background(), events.New(events.MessageCreated, h.tenantID.String(), MessageCreatedPayload{
		MessageID:      m.ID,
		ConversationID: conv.ID,
		CustomerID:     conv.CustomerID,
		SenderType:     m.SenderType,
		SenderUserID:   sender,
		CreatedAt:      m.CreatedAt,
	}))
}

func TestUnreadIncrementsOtherParticipants(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()

	conv, err := h.router.RouteInbound(ctx, h.tenantID, uuid.New(), models.ChannelWhatsApp, "")
	require.NoError(t, err)
	require.NoError(t, h.router.AddParticipant(ctx, h.tenantID, conv.ID, alice))
	require.NoError(t, h.router.AddParticipant(ctx, h.tenantID, conv.ID, bob))

	h.post(t, conv, nil)
	h.post(t, conv, &alice)

	count := func(user uuid.UUID) int64 {
		uc, err := h.unread.Get(ctx, h.tenantID, conv.ID, user)
		require.NoError(t, err)
		return uc.Count
	}
	assert.Equal(t, int64(1), count(alice))
	assert.Equal(t, int64(2), count(bob))

	_, err = h.unread.Get(ctx, h.tenantID, conv.ID, carol)
	assert.ErrorIs(t, err, apperrors.NotFound)

	require.NoError(t, h.unread.MarkAsRead(ctx, h.tenantID, conv.ID, bob))
	assert.Zero(t, count(bob))
	assert.Equal(t, int64(1), count(alice), "marking read does not touch other users")

	err = h.unread.MarkAsRead(ctx, h.tenantID, conv.ID, carol)
	assert.ErrorIs(t, err, apperrors.NotFound)
}

func TestUnreadIncrementalMatchesRecalculation(t *testing.T) {
	for seed := int64(1); seed <= 25; seed++ {
		rnd := rand.New(rand.NewSource(seed))
		h := newHarness(nil)
		ctx := context.Background()

		conv, err := h.router.RouteInbound(ctx, h.tenantID, uuid.New(), models.ChannelWhatsApp, "")
		require.NoError(t, err)

		users := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
		joined := map[uuid.UUID]bool{}

		for step := 0; step < 60; step++ {
			user := users[rnd.Intn(len(users))]
			switch op := rnd.Intn(10); {
			case op == 0:
				require.NoError(t, h.router.AddParticipant(ctx, h.tenantID, conv.ID, user))
				joined[user] = true
			case op < 6:
				h.post(t, conv, nil)
			case op < 8:
				h.post(t, conv, &user)
			default:
				err := h.unread.MarkAsRead(ctx, h.tenantID, conv.ID, user)
				if joined[user] {
					require.NoError(t, err)
				} else {
					require.ErrorIs(t, err, apperrors.NotFound)
				}
			}
		}

		for user := range joined {
			uc, err := h.unread.Get(ctx, h.tenantID, conv.ID, user)
			require.NoError(t, err)
			incremental := uc.Count

			rebuilt, err := h.unread.Recalculate(ctx, h.tenantID, user, conv.ID)
			require.NoError(t, err)
			assert.Equal(t, incremental, rebuilt, "seed %d user %s", seed, user)
		}
	}
}

func TestRecalculateAllRepairsDrift(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	conv, err := h.router.RouteInbound(ctx, h.tenantID, uuid.New(), models.ChannelWhatsApp, "")
	require.NoError(t, err)
	require.NoError(t, h.router.AddParticipant(ctx, h.tenantID, conv.ID, alice))
	require.NoError(t, h.router.AddParticipant(ctx, h.tenantID, conv.ID, bob))
	h.post(t, conv, nil)
	h.post(t, conv, nil)

	h.db.mu.Lock()
	key := [2]uuid.UUID{alice, conv.ID}
	drifted := h.db.unread[key]
	drifted.Count = 40
	h.db.unread[key] = drifted
	h.db.mu.Unlock()

	corrected, err := h.unread.RecalculateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, corrected)

	uc, err := h.unread.Get(ctx, h.tenantID, conv.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(2), uc.Count)

	corrected, err = h.unread.RecalculateAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, corrected)
}

func TestRecalculateAllKeepsReadDuringSweep(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()
	alice := uuid.New()

	conv, err := h.router.RouteInbound(ctx, h.tenantID, uuid.New(), models.ChannelWhatsApp, "")
	require.NoError(t, err)
	require.NoError(t, h.router.AddParticipant(ctx, h.tenantID, conv.ID, alice))
	h.post(t, conv, nil)
	h.post(t, conv, nil)

	h.db.mu.Lock()
	key := [2]uuid.UUID{alice, conv.ID}
	drifted := h.db.unread[key]
	drifted.Count = 5
	h.db.unread[key] = drifted
	h.db.mu.Unlock()

	// alice reads the conversation while the sweep is counting her messages
	h.db.beforeCountUnread = func() {
		require.NoError(t, h.unread.MarkAsRead(ctx, h.tenantID, conv.ID, alice))
	}
	corrected, err := h.unread.RecalculateAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, corrected)

	uc, err := h.unread.Get(ctx, h.tenantID, conv.ID, alice)
	require.NoError(t, err)
	assert.Zero(t, uc.Count)

	rebuilt, err := h.unread.Recalculate(ctx, h.tenantID, alice, conv.ID)
	require.NoError(t, err)
	assert.Zero(t, rebuilt)
}

func TestRecalculateRetriesWhenCountMoves(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()
	alice := uuid.New()

	conv, err := h.router.RouteInbound(ctx, h.tenantID, uuid.New(), models.ChannelWhatsApp, "")
	require.NoError(t, err)
	require.NoError(t, h.router.AddParticipant(ctx, h.tenantID, conv.ID, alice))
	h.post(t, conv, nil)

	h.db.mu.Lock()
	key := [2]uuid.UUID{alice, conv.ID}
	drifted := h.db.unread[key]
	drifted.Count = 9
	h.db.unread[key] = drifted
	h.db.mu.Unlock()

	// a new message arrives during the first count
	h.db.beforeCountUnread = func() { h.post(t, conv, nil) }
	n, err := h.unread.Recalculate(ctx, h.tenantID, alice, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	uc, err := h.unread.Get(ctx, h.tenantID, conv.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(2), uc.Count)
}

func TestUnreadIgnoresForeignPayloads(t *testing.T) {
	h := newHarness(nil)
	assert.NoError(t, h.unread.HandleMessageCreated(context.Background(), events.New(events.MessageCreated, "t", map[string]string{"x": "y"})))
}
