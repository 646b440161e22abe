package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/export"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/models"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/repositories"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/apperrors"
)

const reportPageSize = 500

// Renderer turns a table into a file.
type Renderer interface {
	Render(t *export.Table, format export.Format) (*export.File, error)
}

// ReportFile is a rendered campaign report ready to download.
type ReportFile struct {
	*export.File
	Name string
}

// ReportService renders a campaign's contacts with their lifecycle
// timestamps for offline follow-up by the donation center.
type ReportService struct {
	campaigns repositories.CampaignRepo
	customers repositories.CustomerRepo
	renderer  Renderer
	now       func() time.Time
}

func NewReportService(campaigns repositories.CampaignRepo, customers repositories.CustomerRepo, renderer Renderer) *ReportService {
	return &ReportService{campaigns: campaigns, customers: customers, renderer: renderer, now: utcNow}
}

var reportHeaders = []string{
	"Phone", "Name", "Status", "Sent", "Delivered", "Read", "Responded", "Failed", "Retries", "Note",
}

func (s *ReportService) CampaignReport(ctx context.Context, tenantID, campaignID uuid.UUID, format export.Format) (*ReportFile, error) {
	const op = "reports.CampaignReport"

	campaign, err := s.campaigns.FindCampaign(ctx, tenantID, campaignID)
	if err != nil {
		return nil, err
	}

	table := &export.Table{
		Title:       campaign.Name,
		GeneratedAt: s.now(),
		Headers:     reportHeaders,
		Style:       export.Style{Landscape: true},
	}
	counts := map[models.ContactStatus]int{}
	names := map[uuid.UUID]*models.Customer{}

	for offset := 0; ; offset += reportPageSize {
		page, err := s.campaigns.ListContacts(ctx, tenantID, campaignID, repositories.ContactFilter{Limit: reportPageSize, Offset: offset})
		if err != nil {
			return nil, err
		}
		for _, cc := range page {
			customer, ok := names[cc.CustomerID]
			if !ok {
				customer, err = s.customers.FindByID(ctx, tenantID, cc.CustomerID)
				if err != nil {
					return nil, apperrors.Wrap(apperrors.KindOf(err), op, err)
				}
				names[cc.CustomerID] = customer
			}
			counts[cc.Status]++
			table.Rows = append(table.Rows, contactRow(customer, cc))
		}
		if len(page) < reportPageSize {
			break
		}
	}
	table.Subtitle = summarize(len(table.Rows), counts)

	file, err := s.renderer.Render(table, format)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Transient, op, err)
	}
	return &ReportFile{File: file, Name: reportFileName(campaign.Name, s.now()) + file.Extension}, nil
}

func contactRow(c *models.Customer, cc models.CampaignContact) []string {
	note := cc.ErrorMessage
	if cc.Status == models.ContactExcluded {
		note = cc.ExclusionReason
	}
	return []string{
		c.Phone,
		c.DisplayName,
		string(cc.Status),
		stamp(cc.SentAt),
		stamp(cc.DeliveredAt),
		stamp(cc.ReadAt),
		stamp(cc.RespondedAt),
		stamp(cc.FailedAt),
		fmt.Sprint(cc.RetryCount),
		note,
	}
}

func stamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}

var reportStatusOrder = []models.ContactStatus{
	models.ContactPending, models.ContactSent, models.ContactDelivered, models.ContactRead,
	models.ContactResponded, models.ContactFailed, models.ContactExcluded,
}

func summarize(total int, counts map[models.ContactStatus]int) string {
	parts := []string{fmt.Sprintf("%d contacts", total)}
	for _, st := range reportStatusOrder {
		if n := counts[st]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, st))
		}
	}
	return strings.Join(parts, ", ")
}

var fileNameUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

func reportFileName(name string, at time.Time) string {
	slug := strings.Trim(fileNameUnsafe.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if slug == "" {
		slug = "campaign"
	}
	return slug + "-" + at.Format("20060102")
}
