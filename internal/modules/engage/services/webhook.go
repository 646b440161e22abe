package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/tenant"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/whatsapp"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/apperrors"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/config"
)

// TenantResolver maps a provider instance to its tenant.
type TenantResolver interface {
	ResolveInstance(ctx context.Context, provider, instanceID string) (uuid.UUID, error)
}

// WebhookSecrets holds the per-provider shared secret. A missing entry
// disables signature verification for that provider.
type WebhookSecrets map[whatsapp.Provider]string

func SecretsFromConfig(cfg *config.Config) WebhookSecrets {
	return WebhookSecrets{
		whatsapp.ProviderZAPI:     cfg.ZAPIClientToken,
		whatsapp.ProviderWAHA:     cfg.WAHAWebhookSecret,
		whatsapp.ProviderCloudAPI: cfg.CloudAPIAppSecret,
	}
}

// authenticate picks the provider's parser and verifies the request.
func authenticate(provider whatsapp.Provider, secrets WebhookSecrets, header whatsapp.HeaderFunc, body []byte) (whatsapp.InboundParser, error) {
	parser, err := whatsapp.NewParser(provider)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Malformed, "webhook.authenticate", err)
	}
	if err := parser.Verify(header, body, secrets[provider]); err != nil {
		return nil, err
	}
	return parser, nil
}

// resolveTenant classifies an unknown instance as Malformed: the provider
// is misconfigured and retrying will not help.
func resolveTenant(ctx context.Context, tenants TenantResolver, provider whatsapp.Provider, instanceID string) (uuid.UUID, error) {
	tenantID, err := tenants.ResolveInstance(ctx, string(provider), instanceID)
	if errors.Is(err, tenant.ErrUnknownInstance) {
		return uuid.Nil, apperrors.Wrap(apperrors.Malformed, "webhook.resolveTenant", err)
	}
	if err != nil {
		return uuid.Nil, apperrors.Wrap(apperrors.Transient, "webhook.resolveTenant", err)
	}
	return tenantID, nil
}
