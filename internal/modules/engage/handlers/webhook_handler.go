package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/whatsapp"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/services"
)

// Ingester stores inbound webhook messages.
type Ingester interface {
	HandleWebhook(ctx context.Context, provider whatsapp.Provider, header whatsapp.HeaderFunc, body []byte) ([]services.IngestResult, error)
}

// StatusTracker applies delivery status callbacks.
type StatusTracker interface {
	HandleWebhook(ctx context.Context, provider whatsapp.Provider, header whatsapp.HeaderFunc, body []byte) (services.StatusSummary, error)
}

type WebhookHandler struct {
	ingester Ingester
	statuses StatusTracker
	timeout  time.Duration
}

func NewWebhookHandler(ingester Ingester, statuses StatusTracker, timeout time.Duration) *WebhookHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookHandler{ingester: ingester, statuses: statuses, timeout: timeout}
}

// ReceiveMessage godoc
// @Summary Inbound message webhook
// @Description Receives provider message callbacks. Redeliveries return the stored message id.
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param provider path string true "zapi, waha or cloudapi"
// @Success 200 {object} services.IngestResult
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /webhooks/{provider}/messages [post]
func (h *WebhookHandler) ReceiveMessage(c *fiber.Ctx) error {
	provider, err := whatsapp.ParseProvider(c.Params("provider"))
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	results, err := h.ingester.HandleWebhook(ctx, provider, headerFunc(c), c.Body())
	if err != nil {
		return respondError(c, err)
	}
	if len(results) == 1 {
		return c.JSON(results[0])
	}
	return c.JSON(fiber.Map{
		"status":  services.IngestSuccess,
		"results": results,
	})
}

// ReceiveStatus godoc
// @Summary Delivery status webhook
// @Description Receives provider status callbacks. Unknown message ids are counted, not rejected.
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param provider path string true "zapi, waha or cloudapi"
// @Success 200 {object} services.StatusSummary
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /webhooks/{provider}/status [post]
func (h *WebhookHandler) ReceiveStatus(c *fiber.Ctx) error {
	provider, err := whatsapp.ParseProvider(c.Params("provider"))
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	summary, err := h.statuses.HandleWebhook(ctx, provider, headerFunc(c), c.Body())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(summary)
}
