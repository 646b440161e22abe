package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/export"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/models"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/repositories"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/services"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/apperrors"
)

// Campaigns is the operator side of the campaign-contact state machine.
type Campaigns interface {
	CreateCampaign(ctx context.Context, tenantID uuid.UUID, req services.CreateCampaignRequest) (*models.Campaign, error)
	EnrollCustomers(ctx context.Context, tenantID, campaignID uuid.UUID, phones []string) (*services.EnrollResult, error)
	ListContacts(ctx context.Context, tenantID, campaignID uuid.UUID, filter repositories.ContactFilter) ([]models.CampaignContact, error)
	Stats(ctx context.Context, tenantID, campaignID uuid.UUID) (*models.CampaignStats, error)
	Retry(ctx context.Context, tenantID, contactID uuid.UUID, actor *uuid.UUID) (*models.CampaignContact, error)
	RetryAllFailed(ctx context.Context, tenantID, campaignID uuid.UUID, actor *uuid.UUID) (int, error)
	Exclude(ctx context.Context, tenantID, contactID uuid.UUID, reason string, actor *uuid.UUID) (*models.CampaignContact, error)
	Reinclude(ctx context.Context, tenantID, contactID uuid.UUID, actor *uuid.UUID) (*models.CampaignContact, error)
}

// Reporter renders a campaign's contacts as a downloadable file.
type Reporter interface {
	CampaignReport(ctx context.Context, tenantID, campaignID uuid.UUID, format export.Format) (*services.ReportFile, error)
}

// Dispatcher queues a campaign's pending contacts for sending.
type Dispatcher interface {
	DispatchCampaign(ctx context.Context, tenantID, campaignID uuid.UUID) (int, error)
}

type CampaignHandler struct {
	campaigns  Campaigns
	dispatcher Dispatcher
	reporter   Reporter
}

func NewCampaignHandler(campaigns Campaigns, dispatcher Dispatcher, reporter Reporter) *CampaignHandler {
	return &CampaignHandler{campaigns: campaigns, dispatcher: dispatcher, reporter: reporter}
}

// ExcludeRequest is the body of POST /campaign-contacts/:id/exclude
type ExcludeRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// CountResponse reports how many contacts an operation touched.
type CountResponse struct {
	Count int `json:"count"`
}

// CreateCampaign godoc
// @Summary Create campaign
// @Tags Campaigns
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param data body services.CreateCampaignRequest true "Campaign"
// @Success 201 {object} models.Campaign
// @Failure 400 {object} ErrorResponse
// @Router /campaigns [post]
func (h *CampaignHandler) CreateCampaign(c *fiber.Ctx) error {
	tenant, err := tenantID(c)
	if err != nil {
		return respondError(c, err)
	}
	var req services.CreateCampaignRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	campaign, err := h.campaigns.CreateCampaign(c.UserContext(), tenant, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(campaign)
}

// Enroll godoc
// @Summary Enroll customers
// @Description Resolves each phone to a customer and adds a pending contact. Invalid phones are reported, not fatal.
// @Tags Campaigns
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param id path string true "Campaign ID"
// @Param data body services.EnrollRequest true "Phones"
// @Success 200 {object} services.EnrollResult
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /campaigns/{id}/contacts [post]
func (h *CampaignHandler) Enroll(c *fiber.Ctx) error {
	tenant, id, err := tenantAndID(c)
	if err != nil {
		return respondError(c, err)
	}
	var req services.EnrollRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	res, err := h.campaigns.EnrollCustomers(c.UserContext(), tenant, id, req.Phones)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// ListContacts godoc
// @Summary List campaign contacts
// @Tags Campaigns
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param id path string true "Campaign ID"
// @Param status query string false "Contact status"
// @Param limit query int false "Page size" default(50)
// @Param offset query int false "Offset" default(0)
// @Success 200 {array} models.CampaignContact
// @Failure 400 {object} ErrorResponse
// @Router /campaigns/{id}/contacts [get]
func (h *CampaignHandler) ListContacts(c *fiber.Ctx) error {
	tenant, id, err := tenantAndID(c)
	if err != nil {
		return respondError(c, err)
	}

	filter := repositories.ContactFilter{
		Status: models.ContactStatus(c.Query("status")),
		Limit:  c.QueryInt("limit", 50),
		Offset: c.QueryInt("offset", 0),
	}
	if filter.Limit <= 0 || filter.Limit > 500 || filter.Offset < 0 {
		return respondError(c, malformed("campaigns.ListContacts", "limit must be 1..500 and offset >= 0"))
	}

	contacts, err := h.campaigns.ListContacts(c.UserContext(), tenant, id, filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(contacts)
}

// Stats godoc
// @Summary Campaign stats
// @Tags Campaigns
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param id path string true "Campaign ID"
// @Success 200 {object} models.CampaignStats
// @Failure 404 {object} ErrorResponse
// @Router /campaigns/{id}/stats [get]
func (h *CampaignHandler) Stats(c *fiber.Ctx) error {
	tenant, id, err := tenantAndID(c)
	if err != nil {
		return respondError(c, err)
	}
	stats, err := h.campaigns.Stats(c.UserContext(), tenant, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stats)
}

// Report godoc
// @Summary Download campaign report
// @Description Every contact with its status and lifecycle timestamps, as xlsx, pdf or csv.
// @Tags Campaigns
// @Produce octet-stream
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param id path string true "Campaign ID"
// @Param format query string false "xlsx, pdf or csv" default(xlsx)
// @Success 200 {file} binary
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /campaigns/{id}/report [get]
func (h *CampaignHandler) Report(c *fiber.Ctx) error {
	tenant, id, err := tenantAndID(c)
	if err != nil {
		return respondError(c, err)
	}
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		return respondError(c, apperrors.Wrap(apperrors.Malformed, "campaigns.Report", err))
	}

	report, err := h.reporter.CampaignReport(c.UserContext(), tenant, id, format)
	if err != nil {
		return respondError(c, err)
	}
	c.Attachment(report.Name)
	c.Set(fiber.HeaderContentType, report.ContentType)
	return c.Send(report.Data)
}

// Dispatch godoc
// @Summary Dispatch campaign
// @Description Queues a send job for every pending contact not already queued.
// @Tags Campaigns
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param id path string true "Campaign ID"
// @Success 202 {object} CountResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /campaigns/{id}/dispatch [post]
func (h *CampaignHandler) Dispatch(c *fiber.Ctx) error {
	tenant, id, err := tenantAndID(c)
	if err != nil {
		return respondError(c, err)
	}
	n, err := h.dispatcher.DispatchCampaign(c.UserContext(), tenant, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(CountResponse{Count: n})
}

// RetryAllFailed godoc
// @Summary Retry failed contacts
// @Description Moves every failed contact of the campaign back to pending.
// @Tags Campaigns
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param id path string true "Campaign ID"
// @Success 200 {object} CountResponse
// @Failure 404 {object} ErrorResponse
// @Router /campaigns/{id}/contacts/retry-failed [post]
func (h *CampaignHandler) RetryAllFailed(c *fiber.Ctx) error {
	tenant, id, err := tenantAndID(c)
	if err != nil {
		return respondError(c, err)
	}
	n, err := h.campaigns.RetryAllFailed(c.UserContext(), tenant, id, actorID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(CountResponse{Count: n})
}

// RetryContact godoc
// @Summary Retry a failed contact
// @Tags Campaign Contacts
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param X-User-ID header string false "Acting user"
// @Param id path string true "Contact ID"
// @Success 200 {object} models.CampaignContact
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /campaign-contacts/{id}/retry [post]
func (h *CampaignHandler) RetryContact(c *fiber.Ctx) error {
	tenant, id, err := tenantAndID(c)
	if err != nil {
		return respondError(c, err)
	}
	cc, err := h.campaigns.Retry(c.UserContext(), tenant, id, actorID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(cc)
}

// ExcludeContact godoc
// @Summary Exclude a contact
// @Description Takes an active contact out of the campaign. Sent contacts stop being correlated.
// @Tags Campaign Contacts
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param X-User-ID header string false "Acting user"
// @Param id path string true "Contact ID"
// @Param data body ExcludeRequest false "Reason"
// @Success 200 {object} models.CampaignContact
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /campaign-contacts/{id}/exclude [post]
func (h *CampaignHandler) ExcludeContact(c *fiber.Ctx) error {
	tenant, id, err := tenantAndID(c)
	if err != nil {
		return respondError(c, err)
	}
	var req ExcludeRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return respondError(c, err)
		}
	}

	cc, err := h.campaigns.Exclude(c.UserContext(), tenant, id, req.Reason, actorID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(cc)
}

// ReincludeContact godoc
// @Summary Reinclude a contact
// @Tags Campaign Contacts
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param X-User-ID header string false "Acting user"
// @Param id path string true "Contact ID"
// @Success 200 {object} models.CampaignContact
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /campaign-contacts/{id}/reinclude [post]
func (h *CampaignHandler) ReincludeContact(c *fiber.Ctx) error {
	tenant, id, err := tenantAndID(c)
	if err != nil {
		return respondError(c, err)
	}
	cc, err := h.campaigns.Reinclude(c.UserContext(), tenant, id, actorID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(cc)
}

func tenantAndID(c *fiber.Ctx) (uuid.UUID, uuid.UUID, error) {
	tenant, err := tenantID(c)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return tenant, id, nil
}
