package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/apperrors"
)

func TestResolveCustomerNormalizesPhoneForms(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()

	first, err := h.identity.ResolveCustomer(ctx, h.tenantID, "5511999990000", "")
	require.NoError(t, err)
	assert.Equal(t, "+5511999990000", first.Phone)
	assert.Equal(t, "+5511999990000", first.DisplayName)

	for _, raw := range []string{"+55 (11) 99999-0000", "5511999990000@c.us", "(11) 99999-0000"} {
		c, err := h.identity.ResolveCustomer(ctx, h.tenantID, raw, "")
		require.NoError(t, err, raw)
		assert.Equal(t, first.ID, c.ID, raw)
	}
	assert.Equal(t, 1, h.countCustomers())
}

func TestResolveCustomerIsScopedByTenant(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()

	a, err := h.identity.ResolveCustomer(ctx, h.tenantID, "+5511999990000", "")
	require.NoError(t, err)
	b, err := h.identity.ResolveCustomer(ctx, uuid.New(), "+5511999990000", "")
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, h.countCustomers())
}

func TestResolveCustomerConcurrentFirstSighting(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()

	const callers = 16
	ids := make([]uuid.UUID, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := h.identity.ResolveCustomer(ctx, h.tenantID, "5511988887777", "Bruno")
			errs[i] = err
			if c != nil {
				ids[i] = c.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, h.countCustomers())
}

func TestResolveCustomerRejectsInvalidPhone(t *testing.T) {
	h := newHarness(nil)

	for _, raw := range []string{"", "abc", "123"} {
		_, err := h.identity.ResolveCustomer(context.Background(), h.tenantID, raw, "")
		assert.ErrorIs(t, err, apperrors.InvalidIdentifier, raw)
	}
	assert.Equal(t, 0, h.countCustomers())
}

func TestResolveCustomerBackfillsPlaceholderName(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()

	c, err := h.identity.ResolveCustomer(ctx, h.tenantID, "+5511999990000", "")
	require.NoError(t, err)
	assert.Equal(t, c.Phone, c.DisplayName)

	c, err = h.identity.ResolveCustomer(ctx, h.tenantID, "+5511999990000", "  Ana  ")
	require.NoError(t, err)
	assert.Equal(t, "Ana", c.DisplayName)

	c, err = h.identity.ResolveCustomer(ctx, h.tenantID, "+5511999990000", "Someone Else")
	require.NoError(t, err)
	assert.Equal(t, "Ana", c.DisplayName)

	stored, err := h.identity.GetCustomer(ctx, h.tenantID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", stored.DisplayName)
	assert.False(t, stored.Blocked)
}

func TestGetCustomerUnknown(t *testing.T) {
	h := newHarness(nil)
	_, err := h.identity.GetCustomer(context.Background(), h.tenantID, uuid.New())
	assert.ErrorIs(t, err, apperrors.NotFound)
}
