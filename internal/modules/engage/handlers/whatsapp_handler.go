package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/phone"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/tenant"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/whatsapp"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/apperrors"
)

// PhoneDirectory maps provider instances to tenants and numbers.
type PhoneDirectory interface {
	DisplayPhone(ctx context.Context, tenantID uuid.UUID) (string, error)
	Register(ctx context.Context, inst tenant.Instance) error
}

type WhatsAppHandler struct {
	phones PhoneDirectory
	region string
}

func NewWhatsAppHandler(phones PhoneDirectory, defaultRegion string) *WhatsAppHandler {
	return &WhatsAppHandler{phones: phones, region: defaultRegion}
}

// RegisterInstanceRequest is the body of POST /whatsapp/instances
type RegisterInstanceRequest struct {
	Provider     string `json:"provider" validate:"required"`
	InstanceID   string `json:"instance_id" validate:"required,max=200"`
	DisplayPhone string `json:"display_phone" validate:"omitempty,max=32"`
}

// RegisterInstance godoc
// @Summary Connect a WhatsApp number
// @Description Links a provider instance to the calling tenant so its webhooks are routed there. Re-registering moves the instance.
// @Tags WhatsApp
// @Accept json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param data body RegisterInstanceRequest true "Instance"
// @Success 204
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /whatsapp/instances [post]
func (h *WhatsAppHandler) RegisterInstance(c *fiber.Ctx) error {
	id, err := tenantID(c)
	if err != nil {
		return respondError(c, err)
	}
	var req RegisterInstanceRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	provider, err := whatsapp.ParseProvider(req.Provider)
	if err != nil {
		return respondError(c, err)
	}

	display := ""
	if req.DisplayPhone != "" {
		display, err = phone.Normalize(req.DisplayPhone, h.region)
		if err != nil {
			return respondError(c, err)
		}
	}

	err = h.phones.Register(c.UserContext(), tenant.Instance{
		TenantID:     id,
		Provider:     string(provider),
		InstanceID:   req.InstanceID,
		DisplayPhone: display,
	})
	if err != nil {
		return respondError(c, apperrors.Wrap(apperrors.Transient, "whatsapp.RegisterInstance", err))
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ClickToChatResponse carries a wa.me link for the tenant's number.
type ClickToChatResponse struct {
	Phone string `json:"phone"`
	URL   string `json:"url"`
}

// GetLink godoc
// @Summary Get click-to-chat link
// @Tags WhatsApp
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param text query string false "Prefilled message"
// @Success 200 {object} ClickToChatResponse
// @Failure 404 {object} ErrorResponse
// @Router /whatsapp/link [get]
func (h *WhatsAppHandler) GetLink(c *fiber.Ctx) error {
	phone, err := h.phone(c)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(ClickToChatResponse{Phone: phone, URL: whatsapp.ClickToChatURL(phone, c.Query("text"))})
}

// GetQRCode godoc
// @Summary Get click-to-chat QR code
// @Description PNG QR code that opens a chat with the tenant's number, for posters and donation drives.
// @Tags WhatsApp
// @Produce png
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param text query string false "Prefilled message"
// @Param size query int false "Image size in pixels" default(256)
// @Success 200 {file} binary
// @Failure 404 {object} ErrorResponse
// @Router /whatsapp/qr [get]
func (h *WhatsAppHandler) GetQRCode(c *fiber.Ctx) error {
	phone, err := h.phone(c)
	if err != nil {
		return respondError(c, err)
	}
	size := c.QueryInt("size", 256)
	if size < 64 || size > 1024 {
		return respondError(c, malformed("whatsapp.GetQRCode", "size must be 64..1024"))
	}

	png, err := whatsapp.ClickToChatQR(phone, c.Query("text"), size)
	if err != nil {
		return respondError(c, apperrors.Wrap(apperrors.Transient, "whatsapp.GetQRCode", err))
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(png)
}

func (h *WhatsAppHandler) phone(c *fiber.Ctx) (string, error) {
	id, err := tenantID(c)
	if err != nil {
		return "", err
	}
	phone, err := h.phones.DisplayPhone(c.UserContext(), id)
	if errors.Is(err, tenant.ErrUnknownInstance) {
		return "", apperrors.Wrap(apperrors.NotFound, "whatsapp.phone", err)
	}
	if err != nil {
		return "", apperrors.Wrap(apperrors.Transient, "whatsapp.phone", err)
	}
	return phone, nil
}
