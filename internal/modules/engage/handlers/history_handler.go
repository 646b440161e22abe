package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/audit"
)

// AuditTrail reads operator history for one entity.
type AuditTrail interface {
	History(ctx context.Context, tenantID uuid.UUID, entity string, entityID uuid.UUID, limit int) ([]audit.AuditLog, error)
}

type HistoryHandler struct {
	trail AuditTrail
}

func NewHistoryHandler(trail AuditTrail) *HistoryHandler {
	return &HistoryHandler{trail: trail}
}

// ConversationHistory godoc
// @Summary Conversation history
// @Description Status changes of a conversation, newest first.
// @Tags Conversations
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param id path string true "Conversation ID"
// @Param limit query int false "Max entries (default 200)"
// @Success 200 {array} audit.AuditLog
// @Failure 400 {object} ErrorResponse
// @Router /conversations/{id}/history [get]
func (h *HistoryHandler) ConversationHistory(c *fiber.Ctx) error {
	return h.history(c, audit.EntityConversation)
}

// ContactHistory godoc
// @Summary Campaign contact history
// @Description Operator actions (exclude, reinclude, retry) on a campaign contact, newest first.
// @Tags Campaigns
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param id path string true "Campaign contact ID"
// @Param limit query int false "Max entries (default 200)"
// @Success 200 {array} audit.AuditLog
// @Failure 400 {object} ErrorResponse
// @Router /campaign-contacts/{id}/history [get]
func (h *HistoryHandler) ContactHistory(c *fiber.Ctx) error {
	return h.history(c, audit.EntityCampaignContact)
}

func (h *HistoryHandler) history(c *fiber.Ctx, entity string) error {
	tenant, id, err := tenantAndID(c)
	if err != nil {
		return respondError(c, err)
	}
	logs, err := h.trail.History(c.UserContext(), tenant, entity, id, c.QueryInt("limit", 200))
	if err != nil {
		return respondError(c, err)
	}
	if logs == nil {
		logs = []audit.AuditLog{}
	}
	return c.JSON(logs)
}
