package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/models"
)

// ContactChange is applied by CampaignRepo.TransitionContact. Nil fields are
// left untouched; a pointer to "" clears a text column.
type ContactChange struct {
	Status            models.ContactStatus
	ExternalMessageID *string
	ErrorMessage      *string
	ExclusionReason   *string
	SentAt            *time.Time
	DeliveredAt       *time.Time
	ReadAt            *time.Time
	RespondedAt       *time.Time
	FailedAt          *time.Time
	ExcludedAt        *time.Time
	ReincludedAt      *time.Time
	LastRetryAt       *time.Time
	IncrementRetry    bool
	ClearQueued       bool
}

func (c ContactChange) columns() map[string]interface{} {
	cols := map[string]interface{}{"status": c.Status}
	setString := func(name string, v *string) {
		if v != nil {
			cols[name] = *v
		}
	}
	setTime := func(name string, v *time.Time) {
		if v != nil {
			cols[name] = *v
		}
	}

	setString("external_message_id", c.ExternalMessageID)
	setString("error_message", c.ErrorMessage)
	setString("exclusion_reason", c.ExclusionReason)
	setTime("sent_at", c.SentAt)
	setTime("delivered_at", c.DeliveredAt)
	setTime("read_at", c.ReadAt)
	setTime("responded_at", c.RespondedAt)
	setTime("failed_at", c.FailedAt)
	setTime("excluded_at", c.ExcludedAt)
	setTime("reincluded_at", c.ReincludedAt)
	setTime("last_retry_at", c.LastRetryAt)
	if c.IncrementRetry {
		cols["retry_count"] = gorm.Expr("retry_count + 1")
	}
	if c.ClearQueued {
		cols["queued_at"] = nil
	}
	return cols
}

// ContactFilter narrows ListContacts. Zero values mean no filter.
type ContactFilter struct {
	Status models.ContactStatus
	Limit  int
	Offset int
}

type CampaignRepo interface {
	CreateCampaign(ctx context.Context, c *models.Campaign) error
	FindCampaign(ctx context.Context, tenantID, id uuid.UUID) (*models.Campaign, error)
	SetCampaignStatus(ctx context.Context, tenantID, id uuid.UUID, status models.CampaignStatus) error
	ListCampaignsByStatus(ctx context.Context, status models.CampaignStatus) ([]models.Campaign, error)

	// EnrollContact inserts cc unless (campaign, customer) exists. It
	// reports whether a row was created.
	EnrollContact(ctx context.Context, cc *models.CampaignContact) (bool, error)
	FindContact(ctx context.Context, tenantID, id uuid.UUID) (*models.CampaignContact, error)
	FindContactByExternalID(ctx context.Context, tenantID uuid.UUID, externalID string) (*models.CampaignContact, error)
	// FindLatestActiveContact picks the non-terminal contact of a customer
	// that was sent to most recently.
	FindLatestActiveContact(ctx context.Context, tenantID, customerID uuid.UUID) (*models.CampaignContact, error)
	ListContacts(ctx context.Context, tenantID, campaignID uuid.UUID, filter ContactFilter) ([]models.CampaignContact, error)
	// TransitionContact is a compare-and-set: it applies change only when
	// the contact's status is one of from.
	TransitionContact(ctx context.Context, tenantID, id uuid.UUID, from []models.ContactStatus, change ContactChange) (bool, error)
	// ClaimPending stamps queued_at on up to limit pending contacts that are
	// not queued, or were queued before staleBefore, and returns their ids.
	ClaimPending(ctx context.Context, tenantID, campaignID uuid.UUID, staleBefore time.Time, limit int) ([]uuid.UUID, error)
	CountByStatus(ctx context.Context, tenantID, campaignID uuid.UUID) (map[models.ContactStatus]int64, error)
}

type campaignRepo struct {
	db *gorm.DB
}

func NewCampaignRepo(db *gorm.DB) CampaignRepo {
	return &campaignRepo{db: db}
}

func (r *campaignRepo) CreateCampaign(ctx context.Context, c *models.Campaign) error {
	return translate("campaigns.Create", r.db.WithContext(ctx).Create(c).Error)
}

func (r *campaignRepo) FindCampaign(ctx context.Context, tenantID, id uuid.UUID) (*models.Campaign, error) {
	var c models.Campaign
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&c).Error
	if err != nil {
		return nil, translate("campaigns.Find", err)
	}
	return &c, nil
}

func (r *campaignRepo) SetCampaignStatus(ctx context.Context, tenantID, id uuid.UUID, status models.CampaignStatus) error {
	err := r.db.WithContext(ctx).Model(&models.Campaign{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Update("status", status).Error
	return translate("campaigns.SetStatus", err)
}

func (r *campaignRepo) ListCampaignsByStatus(ctx context.Context, status models.CampaignStatus) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at").
		Find(&campaigns).Error
	if err != nil {
		return nil, translate("campaigns.ListByStatus", err)
	}
	return campaigns, nil
}

func (r *campaignRepo) EnrollContact(ctx context.Context, cc *models.CampaignContact) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "campaign_id"}, {Name: "customer_id"}},
			DoNothing: true,
		}).
		Create(cc)
	if res.Error != nil {
		return false, translate("campaigns.EnrollContact", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *campaignRepo) FindContact(ctx context.Context, tenantID, id uuid.UUID) (*models.CampaignContact, error) {
	var cc models.CampaignContact
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&cc).Error
	if err != nil {
		return nil, translate("campaigns.FindContact", err)
	}
	return &cc, nil
}

func (r *campaignRepo) FindContactByExternalID(ctx context.Context, tenantID uuid.UUID, externalID string) (*models.CampaignContact, error) {
	var cc models.CampaignContact
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND external_message_id = ?", tenantID, externalID).
		First(&cc).Error
	if err != nil {
		return nil, translate("campaigns.FindContactByExternalID", err)
	}
	return &cc, nil
}

func (r *campaignRepo) FindLatestActiveContact(ctx context.Context, tenantID, customerID uuid.UUID) (*models.CampaignContact, error) {
	var cc models.CampaignContact
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND customer_id = ? AND status IN ?", tenantID, customerID, models.ActiveContactStatuses).
		Order("sent_at DESC NULLS LAST").
		Order("created_at DESC").
		First(&cc).Error
	if err != nil {
		return nil, translate("campaigns.FindLatestActiveContact", err)
	}
	return &cc, nil
}

func (r *campaignRepo) ListContacts(ctx context.Context, tenantID, campaignID uuid.UUID, filter ContactFilter) ([]models.CampaignContact, error) {
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND campaign_id = ?", tenantID, campaignID)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var contacts []models.CampaignContact
	if err := query.Order("created_at").Find(&contacts).Error; err != nil {
		return nil, translate("campaigns.ListContacts", err)
	}
	return contacts, nil
}

func (r *campaignRepo) TransitionContact(ctx context.Context, tenantID, id uuid.UUID, from []models.ContactStatus, change ContactChange) (bool, error) {
	cols := change.columns()
	cols["updated_at"] = time.Now().UTC()

	res := r.db.WithContext(ctx).Model(&models.CampaignContact{}).
		Where("tenant_id = ? AND id = ? AND status IN ?", tenantID, id, from).
		Updates(cols)
	if res.Error != nil {
		return false, translate("campaigns.TransitionContact", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *campaignRepo) ClaimPending(ctx context.Context, tenantID, campaignID uuid.UUID, staleBefore time.Time, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := r.db.WithContext(ctx).Raw(`
		UPDATE engage_campaign_contacts
		SET queued_at = NOW(), updated_at = NOW()
		WHERE id IN (
			SELECT id FROM engage_campaign_contacts
			WHERE tenant_id = ? AND campaign_id = ? AND status = ?
			  AND (queued_at IS NULL OR queued_at < ?)
			ORDER BY created_at
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id
	`, tenantID, campaignID, models.ContactPending, staleBefore, limit).Rows()
	if err != nil {
		return nil, translate("campaigns.ClaimPending", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, translate("campaigns.ClaimPending", err)
		}
		ids = append(ids, id)
	}
	return ids, translate("campaigns.ClaimPending", rows.Err())
}

func (r *campaignRepo) CountByStatus(ctx context.Context, tenantID, campaignID uuid.UUID) (map[models.ContactStatus]int64, error) {
	var results []struct {
		Status models.ContactStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&models.CampaignContact{}).
		Select("status, COUNT(*) as count").
		Where("tenant_id = ? AND campaign_id = ?", tenantID, campaignID).
		Group("status").
		Find(&results).Error
	if err != nil {
		return nil, translate("campaigns.CountByStatus", err)
	}

	counts := make(map[models.ContactStatus]int64, len(results))
	for _, res := range results {
		counts[res.Status] = res.Count
	}
	return counts, nil
}
