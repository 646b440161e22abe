// Package tenant maps provider instances to the tenant that owns them.
package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrUnknownInstance is returned when no tenant owns the instance.
var ErrUnknownInstance = errors.New("unknown provider instance")

// Instance is a WhatsApp number connected through a provider.
type Instance struct {
	TenantID     uuid.UUID
	Provider     string
	InstanceID   string
	DisplayPhone string
}

// Resolver looks up engage_provider_instances. Hits are cached for the
// lifetime of the process; instances are re-registered, never moved.
type Resolver struct {
	db *sql.DB

	mu    sync.RWMutex
	cache map[string]*Instance
}

func NewResolver(db *sql.DB) *Resolver {
	return &Resolver{db: db, cache: make(map[string]*Instance)}
}

func cacheKey(provider, instanceID string) string {
	return provider + "/" + instanceID
}

// ResolveInstance returns the tenant owning (provider, instanceID).
func (r *Resolver) ResolveInstance(ctx context.Context, provider, instanceID string) (uuid.UUID, error) {
	key := cacheKey(provider, instanceID)
	r.mu.RLock()
	inst, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return inst.TenantID, nil
	}

	inst = &Instance{Provider: provider, InstanceID: instanceID}
	query := `
		SELECT tenant_id, COALESCE(display_phone, '')
		FROM engage_provider_instances
		WHERE provider = $1 AND instance_id = $2
	`
	err := r.db.QueryRowContext(ctx, query, provider, instanceID).Scan(&inst.TenantID, &inst.DisplayPhone)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrUnknownInstance, key)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to resolve instance: %w", err)
	}

	r.mu.Lock()
	r.cache[key] = inst
	r.mu.Unlock()
	return inst.TenantID, nil
}

// DisplayPhone returns the first connected number of a tenant, used for
// click-to-chat links.
func (r *Resolver) DisplayPhone(ctx context.Context, tenantID uuid.UUID) (string, error) {
	var phone string
	query := `
		SELECT display_phone
		FROM engage_provider_instances
		WHERE tenant_id = $1 AND display_phone <> ''
		ORDER BY created_at
		LIMIT 1
	`
	err := r.db.QueryRowContext(ctx, query, tenantID).Scan(&phone)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: tenant %s has no number", ErrUnknownInstance, tenantID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to load display phone: %w", err)
	}
	return phone, nil
}

// Register links an instance to a tenant, replacing any previous owner.
func (r *Resolver) Register(ctx context.Context, inst Instance) error {
	query := `
		INSERT INTO engage_provider_instances (tenant_id, provider, instance_id, display_phone)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, instance_id)
		DO UPDATE SET tenant_id = EXCLUDED.tenant_id, display_phone = EXCLUDED.display_phone
	`
	if _, err := r.db.ExecContext(ctx, query, inst.TenantID, inst.Provider, inst.InstanceID, inst.DisplayPhone); err != nil {
		return fmt.Errorf("failed to register instance: %w", err)
	}

	r.mu.Lock()
	delete(r.cache, cacheKey(inst.Provider, inst.InstanceID))
	r.mu.Unlock()
	return nil
}
