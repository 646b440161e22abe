package handlers

import (
	"context"
	"io"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/models"
)

// MediaOpener streams stored message media.
type MediaOpener interface {
	Open(ctx context.Context, tenantID, messageID uuid.UUID) (io.ReadCloser, *models.Message, error)
}

type MediaHandler struct {
	media MediaOpener
}

func NewMediaHandler(media MediaOpener) *MediaHandler {
	return &MediaHandler{media: media}
}

// GetMedia godoc
// @Summary Download message media
// @Description Streams the stored attachment of an inbound message.
// @Tags Messages
// @Produce octet-stream
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param id path string true "Message ID"
// @Success 200 {file} binary
// @Failure 404 {object} ErrorResponse
// @Router /messages/{id}/media [get]
func (h *MediaHandler) GetMedia(c *fiber.Ctx) error {
	tenant, id, err := tenantAndID(c)
	if err != nil {
		return respondError(c, err)
	}

	rc, msg, err := h.media.Open(c.UserContext(), tenant, id)
	if err != nil {
		return respondError(c, err)
	}

	contentType := msg.MediaMime
	if contentType == "" {
		contentType = fiber.MIMEOctetStream
	}
	c.Set(fiber.HeaderContentType, contentType)

	size := -1
	if msg.MediaSize > 0 {
		size = int(msg.MediaSize)
		c.Set(fiber.HeaderContentLength, strconv.FormatInt(msg.MediaSize, 10))
	}
	// fasthttp closes rc once the body is written
	return c.SendStream(rc, size)
}
