package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/audit"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/models"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/repositories"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/apperrors"
)

func failedWith(reason string) func(*models.CampaignContact) {
	return func(cc *models.CampaignContact) {
		cc.ErrorMessage = reason
		now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
		cc.FailedAt = &now
	}
}

func TestRetryAllFailedRequeuesFailedContacts(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()
	actor := uuid.New()
	campaign, cc := h.seedContact(uuid.New(), models.ContactFailed, failedWith("timeout"))

	n, err := h.campaigns.RetryAllFailed(ctx, h.tenantID, campaign.ID, &actor)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := h.contact(cc.ID)
	assert.Equal(t, models.ContactPending, got.Status)
	assert.Empty(t, got.ErrorMessage)
	assert.Equal(t, 1, got.RetryCount)
	assert.NotNil(t, got.LastRetryAt)
	assert.NotNil(t, got.FailedAt, "history timestamps are kept")
	assert.Contains(t, h.audit.actions(), audit.ActionRetryAll)

	n, err = h.campaigns.RetryAllFailed(ctx, h.tenantID, campaign.ID, &actor)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRetryAllFailedOnlyTouchesFailed(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()
	campaign, failed := h.seedContact(uuid.New(), models.ContactFailed, failedWith("timeout"))

	delivered := models.CampaignContact{
		ID:         uuid.New(),
		TenantID:   h.tenantID,
		CampaignID: campaign.ID,
		CustomerID: uuid.New(),
		Status:     models.ContactDelivered,
		CreatedAt:  h.clock.Now(),
	}
	h.db.mu.Lock()
	h.db.contacts[delivered.ID] = delivered
	h.db.mu.Unlock()

	n, err := h.campaigns.RetryAllFailed(ctx, h.tenantID, campaign.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.ContactPending, h.contact(failed.ID).Status)
	assert.Equal(t, models.ContactDelivered, h.contact(delivered.ID).Status)

	_, err = h.campaigns.RetryAllFailed(ctx, h.tenantID, uuid.New(), nil)
	assert.ErrorIs(t, err, apperrors.NotFound)
}

func TestRetryIsIdempotentUnderConcurrency(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()
	_, cc := h.seedContact(uuid.New(), models.ContactFailed, failedWith("timeout"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := h.campaigns.Retry(ctx, h.tenantID, cc.ID, nil)
			if assert.NoError(t, err) {
				assert.Equal(t, models.ContactPending, got.Status)
			}
		}()
	}
	wg.Wait()

	got := h.contact(cc.ID)
	assert.Equal(t, models.ContactPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, []string{audit.ActionRetry}, h.audit.actions())
}

func TestRetryPreconditions(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()
	_, pending := h.seedContact(uuid.New(), models.ContactPending, nil)
	_, delivered := h.seedContact(uuid.New(), models.ContactDelivered, nil)

	got, err := h.campaigns.Retry(ctx, h.tenantID, pending.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ContactPending, got.Status)
	assert.Zero(t, h.contact(pending.ID).RetryCount)

	_, err = h.campaigns.Retry(ctx, h.tenantID, delivered.ID, nil)
	assert.ErrorIs(t, err, apperrors.PreconditionFailed)

	_, err = h.campaigns.Reinclude(ctx, h.tenantID, delivered.ID, nil)
	assert.ErrorIs(t, err, apperrors.PreconditionFailed)

	_, err = h.campaigns.Retry(ctx, h.tenantID, uuid.New(), nil)
	assert.ErrorIs(t, err, apperrors.NotFound)
}

func TestExcludeAndReinclude(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()
	actor := uuid.New()
	_, cc := h.seedContact(uuid.New(), models.ContactSent, func(cc *models.CampaignContact) {
		cc.ErrorMessage = "earlier glitch"
	})

	_, err := h.campaigns.Exclude(ctx, h.tenantID, cc.ID, "   ", &actor)
	assert.ErrorIs(t, err, apperrors.Malformed)

	got, err := h.campaigns.Exclude(ctx, h.tenantID, cc.ID, "donated last week", &actor)
	require.NoError(t, err)
	assert.Equal(t, models.ContactExcluded, got.Status)
	assert.Equal(t, "donated last week", got.ExclusionReason)
	require.NotNil(t, got.ExcludedAt)

	// excluding twice is a no-op
	_, err = h.campaigns.Exclude(ctx, h.tenantID, cc.ID, "again", &actor)
	require.NoError(t, err)
	assert.Equal(t, "donated last week", h.contact(cc.ID).ExclusionReason)

	got, err = h.campaigns.Reinclude(ctx, h.tenantID, cc.ID, &actor)
	require.NoError(t, err)
	assert.Equal(t, models.ContactPending, got.Status)
	assert.Empty(t, got.ExclusionReason)
	assert.Empty(t, got.ErrorMessage)
	assert.NotNil(t, got.ExcludedAt, "history timestamps are kept")
	assert.NotNil(t, got.ReincludedAt)

	assert.Equal(t, []string{audit.ActionExclude, audit.ActionReinclude}, h.audit.actions())
}

func TestExcludeRefusesTerminalContacts(t *testing.T) {
	h := newHarness(nil)
	for _, status := range []models.ContactStatus{models.ContactResponded, models.ContactFailed} {
		_, cc := h.seedContact(uuid.New(), status, nil)
		_, err := h.campaigns.Exclude(context.Background(), h.tenantID, cc.ID, "opted out", nil)
		assert.ErrorIs(t, err, apperrors.PreconditionFailed, status)
	}
}

func TestMarkSentAndFailed(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()
	_, cc := h.seedContact(uuid.New(), models.ContactPending, nil)

	got, err := h.campaigns.MarkSent(ctx, h.tenantID, cc.ID, "wamid.1")
	require.NoError(t, err)
	assert.Equal(t, models.ContactSent, got.Status)
	require.NotNil(t, got.ExternalMessageID)
	assert.Equal(t, "wamid.1", *got.ExternalMessageID)

	got, err = h.campaigns.MarkFailed(ctx, h.tenantID, cc.ID, "number not on whatsapp")
	require.NoError(t, err)
	assert.Equal(t, models.ContactFailed, got.Status)
	assert.Equal(t, "number not on whatsapp", got.ErrorMessage)

	_, err = h.campaigns.MarkSent(ctx, h.tenantID, cc.ID, "wamid.2")
	assert.ErrorIs(t, err, apperrors.PreconditionFailed)
}

func TestMarkRespondedPicksMostRecentlySent(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()
	customerID := uuid.New()

	older := h.clock.Now()
	newer := h.clock.Now()
	_, first := h.seedContact(customerID, models.ContactDelivered, func(cc *models.CampaignContact) { cc.SentAt = &older })
	_, second := h.seedContact(customerID, models.ContactSent, func(cc *models.CampaignContact) { cc.SentAt = &newer })
	_, excluded := h.seedContact(customerID, models.ContactExcluded, nil)

	got, err := h.campaigns.MarkResponded(ctx, h.tenantID, customerID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.ID, got.ID)

	assert.Equal(t, models.ContactDelivered, h.contact(first.ID).Status)
	assert.Equal(t, models.ContactExcluded, h.contact(excluded.ID).Status)

	got, err = h.campaigns.MarkResponded(ctx, h.tenantID, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMarkRespondedConcurrentInboundWinsOnce(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()
	customerID := uuid.New()
	_, cc := h.seedContact(customerID, models.ContactSent, nil)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := h.campaigns.MarkResponded(ctx, h.tenantID, customerID)
			if assert.NoError(t, err) && got != nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, models.ContactResponded, h.contact(cc.ID).Status)
}

func TestEnrollListAndStats(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()

	campaign, err := h.campaigns.CreateCampaign(ctx, h.tenantID, CreateCampaignRequest{Name: " June drive ", Content: "Doe sangue!"})
	require.NoError(t, err)
	assert.Equal(t, "June drive", campaign.Name)
	assert.Equal(t, models.ChannelWhatsApp, campaign.Channel)
	assert.Equal(t, models.CampaignDraft, campaign.Status)

	res, err := h.campaigns.EnrollCustomers(ctx, h.tenantID, campaign.ID, []string{
		"+5511999990000", "5511999990000", "+5511988887777", "bogus",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Enrolled)
	assert.Equal(t, 1, res.Existing)
	assert.Equal(t, []string{"bogus"}, res.Invalid)

	contacts, err := h.campaigns.ListContacts(ctx, h.tenantID, campaign.ID, repositories.ContactFilter{Status: models.ContactPending})
	require.NoError(t, err)
	assert.Len(t, contacts, 2)

	_, err = h.campaigns.ListContacts(ctx, h.tenantID, campaign.ID, repositories.ContactFilter{Status: "lost"})
	assert.ErrorIs(t, err, apperrors.Malformed)

	_, err = h.campaigns.MarkSent(ctx, h.tenantID, contacts[0].ID, "wamid.s")
	require.NoError(t, err)

	stats, err := h.campaigns.Stats(ctx, h.tenantID, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.ByStatus[models.ContactPending])
	assert.Equal(t, int64(1), stats.ByStatus[models.ContactSent])

	_, err = h.campaigns.EnrollCustomers(ctx, h.tenantID, uuid.New(), []string{"+5511999990000"})
	assert.ErrorIs(t, err, apperrors.NotFound)
}
