// Package llm wraps the chat-completion backend used to draft agent replies.
package llm

import (
	"context"
	"fmt"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/config"
)

// Role marks who authored a turn of the conversation history.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
)

// Turn is one message of conversation history handed to the model.
type Turn struct {
	Role    Role
	Content string
}

// LLMProvider generates a completion for a system prompt and a history.
type LLMProvider interface {
	GenerateResponse(ctx context.Context, systemPrompt string, history []Turn) (string, error)
	GetProviderName() string
}

// ProviderType names an OpenAI-compatible backend.
type ProviderType string

const (
	ProviderOpenAI   ProviderType = "openai"
	ProviderGroq     ProviderType = "groq"
	ProviderDeepSeek ProviderType = "deepseek"
)

var baseURLs = map[ProviderType]string{
	ProviderGroq:     "https://api.groq.com/openai/v1",
	ProviderDeepSeek: "https://api.deepseek.com/v1",
}

var defaultModels = map[ProviderType]string{
	ProviderOpenAI:   "gpt-4o-mini",
	ProviderGroq:     "llama-3.1-8b-instant",
	ProviderDeepSeek: "deepseek-chat",
}

// ProviderConfig configures NewProvider.
type ProviderConfig struct {
	Type        ProviderType
	APIKey      string
	BaseURL     string // overrides the backend's default endpoint
	Model       string
	Temperature float32
	MaxTokens   int
}

// LoadProviderConfig reads the drafter settings from the app config.
func LoadProviderConfig(cfg *config.Config) *ProviderConfig {
	pc := &ProviderConfig{
		Type:        ProviderType(cfg.LLMProvider),
		APIKey:      cfg.OpenAIKey,
		BaseURL:     cfg.LLMBaseURL,
		Model:       cfg.OpenAIModel,
		Temperature: 0.4,
		MaxTokens:   300,
	}
	if pc.Type == "" {
		pc.Type = ProviderOpenAI
	}
	return pc
}

// NewProvider builds the provider described by cfg.
func NewProvider(cfg *ProviderConfig) (LLMProvider, error) {
	if _, ok := defaultModels[cfg.Type]; !ok {
		return nil, fmt.Errorf("unknown LLM provider type: %s", cfg.Type)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required for %s", cfg.Type)
	}

	resolved := *cfg
	if resolved.BaseURL == "" {
		resolved.BaseURL = baseURLs[cfg.Type]
	}
	if resolved.Model == "" {
		resolved.Model = defaultModels[cfg.Type]
	}
	return newOpenAIProvider(resolved), nil
}
