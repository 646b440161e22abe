package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/models"
)

// Identities resolves phones to tenant customers.
type Identities interface {
	ResolveCustomer(ctx context.Context, tenantID uuid.UUID, rawPhone, displayNameHint string) (*models.Customer, error)
	GetCustomer(ctx context.Context, tenantID, id uuid.UUID) (*models.Customer, error)
}

type CustomerHandler struct {
	identities Identities
}

func NewCustomerHandler(identities Identities) *CustomerHandler {
	return &CustomerHandler{identities: identities}
}

// ResolveCustomerRequest is the body of POST /customers
type ResolveCustomerRequest struct {
	Phone       string `json:"phone" validate:"required,max=32"`
	DisplayName string `json:"display_name" validate:"max=200"`
}

// ResolveCustomer godoc
// @Summary Resolve customer
// @Description Normalizes the phone to E.164 and returns the tenant's customer for it, creating one on first sight.
// @Tags Customers
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param data body ResolveCustomerRequest true "Phone"
// @Success 200 {object} models.Customer
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /customers [post]
func (h *CustomerHandler) ResolveCustomer(c *fiber.Ctx) error {
	tenant, err := tenantID(c)
	if err != nil {
		return respondError(c, err)
	}
	var req ResolveCustomerRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	customer, err := h.identities.ResolveCustomer(c.UserContext(), tenant, req.Phone, req.DisplayName)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(customer)
}

// GetCustomer godoc
// @Summary Get customer
// @Tags Customers
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param id path string true "Customer ID"
// @Success 200 {object} models.Customer
// @Failure 404 {object} ErrorResponse
// @Router /customers/{id} [get]
func (h *CustomerHandler) GetCustomer(c *fiber.Ctx) error {
	tenant, id, err := tenantAndID(c)
	if err != nil {
		return respondError(c, err)
	}
	customer, err := h.identities.GetCustomer(c.UserContext(), tenant, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(customer)
}
