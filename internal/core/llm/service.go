package llm

import (
	"context"
	"errors"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/config"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/utils"
)

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = errors.New("reply drafting is not configured")

// Service wraps an LLMProvider for dependency injection.
type Service struct {
	provider LLMProvider
}

// NewService builds the service from config. A missing key yields a
// service that answers every call with ErrDisabled.
func NewService(cfg *config.Config) (*Service, error) {
	pc := LoadProviderConfig(cfg)
	if pc.APIKey == "" {
		utils.LogWarn("LLM provider not configured, drafting disabled", nil)
		return &Service{}, nil
	}

	provider, err := NewProvider(pc)
	if err != nil {
		return nil, err
	}

	utils.LogInfo("LLM provider ready", map[string]interface{}{
		"provider": provider.GetProviderName(),
		"model":    pc.Model,
	})
	return &Service{provider: provider}, nil
}

// NewServiceWithProvider creates service with custom provider (for testing)
func NewServiceWithProvider(provider LLMProvider) *Service {
	return &Service{provider: provider}
}

// GenerateResponse generates AI response
func (s *Service) GenerateResponse(ctx context.Context, systemPrompt string, history []Turn) (string, error) {
	if s.provider == nil {
		return "", ErrDisabled
	}
	return s.provider.GenerateResponse(ctx, systemPrompt, history)
}

// GetProviderName returns current provider name
func (s *Service) GetProviderName() string {
	if s.provider == nil {
		return "disabled"
	}
	return s.provider.GetProviderName()
}
