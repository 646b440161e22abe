package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/phone"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/models"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/repositories"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/apperrors"
)

// IdentityService maps sender phone numbers to tenant customers.
type IdentityService struct {
	customers     repositories.CustomerRepo
	defaultRegion string
}

func NewIdentityService(customers repositories.CustomerRepo, defaultRegion string) *IdentityService {
	return &IdentityService{customers: customers, defaultRegion: defaultRegion}
}

// ResolveCustomer returns the customer for (tenantID, phone), creating it on
// first sight. Concurrent first sightings converge on one row: the loser of
// the insert race refetches the winner's row.
func (s *IdentityService) ResolveCustomer(ctx context.Context, tenantID uuid.UUID, rawPhone, displayNameHint string) (*models.Customer, error) {
	const op = "identity.ResolveCustomer"

	e164, err := phone.Normalize(rawPhone, s.defaultRegion)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.InvalidIdentifier, op, err)
	}
	hint := strings.TrimSpace(displayNameHint)

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		c, err := s.customers.FindByPhone(ctx, tenantID, e164)
		if err == nil {
			s.backfillName(ctx, c, hint)
			return c, nil
		}
		if !errors.Is(err, apperrors.NotFound) {
			return nil, err
		}

		name := hint
		if name == "" {
			name = e164
		}
		c = &models.Customer{
			ID:          uuid.New(),
			TenantID:    tenantID,
			Phone:       e164,
			DisplayName: name,
		}
		err = s.customers.Create(ctx, c)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, repositories.ErrDuplicate) {
			return nil, err
		}
	}
	return nil, apperrors.New(apperrors.Transient, op, "customer insert kept conflicting")
}

// GetCustomer loads a customer by id.
func (s *IdentityService) GetCustomer(ctx context.Context, tenantID, id uuid.UUID) (*models.Customer, error) {
	return s.customers.FindByID(ctx, tenantID, id)
}

// backfillName replaces a placeholder name (empty or the phone itself) with
// the provider's display name. Real names are never overwritten.
func (s *IdentityService) backfillName(ctx context.Context, c *models.Customer, hint string) {
	if hint == "" || (c.DisplayName != "" && c.DisplayName != c.Phone) {
		return
	}
	if err := s.customers.UpdateDisplayName(ctx, c.TenantID, c.ID, hint); err != nil {
		return
	}
	c.DisplayName = hint
}
