package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/models"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/services"
)

// Router is the conversation side of the engage core.
type Router interface {
	ChangeStatus(ctx context.Context, tenantID, id uuid.UUID, status models.ConversationStatus, actor *uuid.UUID) (*models.Conversation, error)
	AddParticipant(ctx context.Context, tenantID, conversationID, userID uuid.UUID) error
	RemoveParticipant(ctx context.Context, tenantID, conversationID, userID uuid.UUID) error
}

// UnreadCounter reads and resets per-user unread counts.
type UnreadCounter interface {
	Get(ctx context.Context, tenantID, conversationID, userID uuid.UUID) (*models.UnreadCount, error)
	MarkAsRead(ctx context.Context, tenantID, conversationID, userID uuid.UUID) error
	Recalculate(ctx context.Context, tenantID, userID, conversationID uuid.UUID) (int64, error)
}

// ReplyDrafter suggests an agent reply.
type ReplyDrafter interface {
	Draft(ctx context.Context, tenantID, conversationID uuid.UUID) (*services.DraftResponse, error)
}

type ConversationHandler struct {
	router  Router
	unread  UnreadCounter
	drafter ReplyDrafter
}

func NewConversationHandler(router Router, unread UnreadCounter, drafter ReplyDrafter) *ConversationHandler {
	return &ConversationHandler{router: router, unread: unread, drafter: drafter}
}

// ChangeStatusRequest is the body of PATCH /conversations/:id/status
type ChangeStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=inbox waiting active closed"`
}

// UserRequest names the user of a read or recalculate call.
type UserRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

// UnreadResponse is a user's unread count for one conversation.
type UnreadResponse struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	Count          int64     `json:"count"`
}

// ChangeStatus godoc
// @Summary Change conversation status
// @Description Moves a conversation between inbox, waiting, active and closed. Closed is final.
// @Tags Conversations
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param X-User-ID header string false "Acting user"
// @Param id path string true "Conversation ID"
// @Param data body ChangeStatusRequest true "New status"
// @Success 200 {object} models.Conversation
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /conversations/{id}/status [patch]
func (h *ConversationHandler) ChangeStatus(c *fiber.Ctx) error {
	tenant, err := tenantID(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req ChangeStatusRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	conv, err := h.router.ChangeStatus(c.UserContext(), tenant, id, models.ConversationStatus(req.Status), actorID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(conv)
}

// AddParticipant godoc
// @Summary Add conversation participant
// @Tags Conversations
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param id path string true "Conversation ID"
// @Param userId path string true "User ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /conversations/{id}/participants/{userId} [post]
func (h *ConversationHandler) AddParticipant(c *fiber.Ctx) error {
	tenant, id, user, err := h.participantParams(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := h.router.AddParticipant(c.UserContext(), tenant, id, user); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RemoveParticipant godoc
// @Summary Remove conversation participant
// @Tags Conversations
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param id path string true "Conversation ID"
// @Param userId path string true "User ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /conversations/{id}/participants/{userId} [delete]
func (h *ConversationHandler) RemoveParticipant(c *fiber.Ctx) error {
	tenant, id, user, err := h.participantParams(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := h.router.RemoveParticipant(c.UserContext(), tenant, id, user); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ConversationHandler) participantParams(c *fiber.Ctx) (tenant, conv, user uuid.UUID, err error) {
	if tenant, err = tenantID(c); err != nil {
		return
	}
	if conv, err = paramUUID(c, "id"); err != nil {
		return
	}
	user, err = paramUUID(c, "userId")
	return
}

// MarkAsRead godoc
// @Summary Mark conversation read
// @Description Zeroes the user's unread count. Other users are not affected.
// @Tags Conversations
// @Accept json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param id path string true "Conversation ID"
// @Param data body UserRequest true "Reader"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /conversations/{id}/read [post]
func (h *ConversationHandler) MarkAsRead(c *fiber.Ctx) error {
	tenant, id, user, err := h.userParams(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := h.unread.MarkAsRead(c.UserContext(), tenant, id, user); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetUnread godoc
// @Summary Get unread count
// @Tags Conversations
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param id path string true "Conversation ID"
// @Param user_id query string true "User ID"
// @Success 200 {object} UnreadResponse
// @Failure 404 {object} ErrorResponse
// @Router /conversations/{id}/unread [get]
func (h *ConversationHandler) GetUnread(c *fiber.Ctx) error {
	tenant, err := tenantID(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	user, err := uuid.Parse(c.Query("user_id"))
	if err != nil {
		return respondError(c, malformed("conversations.GetUnread", "user_id is not a uuid"))
	}

	uc, err := h.unread.Get(c.UserContext(), tenant, id, user)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(UnreadResponse{ConversationID: id, UserID: user, Count: uc.Count})
}

// Recalculate godoc
// @Summary Rebuild unread count
// @Description Recounts the user's unread messages from history and stores the result.
// @Tags Conversations
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param id path string true "Conversation ID"
// @Param data body UserRequest true "User"
// @Success 200 {object} UnreadResponse
// @Failure 404 {object} ErrorResponse
// @Router /conversations/{id}/unread/recalculate [post]
func (h *ConversationHandler) Recalculate(c *fiber.Ctx) error {
	tenant, id, user, err := h.userParams(c)
	if err != nil {
		return respondError(c, err)
	}
	n, err := h.unread.Recalculate(c.UserContext(), tenant, user, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(UnreadResponse{ConversationID: id, UserID: user, Count: n})
}

func (h *ConversationHandler) userParams(c *fiber.Ctx) (tenant, conv, user uuid.UUID, err error) {
	if tenant, err = tenantID(c); err != nil {
		return
	}
	if conv, err = paramUUID(c, "id"); err != nil {
		return
	}
	var req UserRequest
	if err = parseBody(c, &req); err != nil {
		return
	}
	user, err = uuid.Parse(req.UserID)
	return
}

// Draft godoc
// @Summary Draft a reply
// @Description Asks the language model for a suggested reply to the last customer message. Nothing is sent.
// @Tags Conversations
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param id path string true "Conversation ID"
// @Success 200 {object} services.DraftResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /conversations/{id}/draft [post]
func (h *ConversationHandler) Draft(c *fiber.Ctx) error {
	tenant, err := tenantID(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	draft, err := h.drafter.Draft(c.UserContext(), tenant, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(draft)
}
