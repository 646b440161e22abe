// Package handlers exposes the engage services over fiber.
package handlers

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/apperrors"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/utils"
)

const (
	headerTenantID = "X-Tenant-ID"
	headerUserID   = "X-User-ID"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

var validate = validator.New()

// respondError maps err to its HTTP status. Server-side failures are logged
// and their detail is not echoed back.
func respondError(c *fiber.Ctx, err error) error {
	status := apperrors.HTTPStatus(err)
	kind := apperrors.KindOf(err)
	msg := err.Error()
	if status >= fiber.StatusInternalServerError {
		utils.LogError("request failed", err, map[string]interface{}{
			"method": c.Method(),
			"path":   c.Path(),
		})
		msg = "internal error"
	}
	return c.Status(status).JSON(ErrorResponse{Error: msg, Kind: string(kind)})
}

func malformed(op, msg string) error {
	return apperrors.New(apperrors.Malformed, op, msg)
}

// tenantID reads the operator's tenant from X-Tenant-ID.
func tenantID(c *fiber.Ctx) (uuid.UUID, error) {
	raw := strings.TrimSpace(c.Get(headerTenantID))
	if raw == "" {
		return uuid.Nil, malformed("handlers.tenantID", "X-Tenant-ID header is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, malformed("handlers.tenantID", "X-Tenant-ID is not a uuid")
	}
	return id, nil
}

// actorID reads the acting user from X-User-ID. It is optional.
func actorID(c *fiber.Ctx) *uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(c.Get(headerUserID)))
	if err != nil {
		return nil
	}
	return &id
}

func paramUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, malformed("handlers.param", name+" is not a uuid")
	}
	return id, nil
}

// parseBody decodes and validates a JSON body into dst.
func parseBody(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return malformed("handlers.parseBody", "invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return malformed("handlers.parseBody", strings.ToLower(fe.Field())+" failed "+fe.Tag()+" validation")
		}
		return malformed("handlers.parseBody", err.Error())
	}
	return nil
}

// headerFunc adapts fiber's variadic Get to whatsapp.HeaderFunc.
func headerFunc(c *fiber.Ctx) func(string) string {
	return func(key string) string {
		return c.Get(key)
	}
}
