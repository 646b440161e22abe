package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/config"
)

// Sender is the outbound send service used by campaign dispatch and operator
// replies. It only moves text; the caller correlates the returned provider
// message id into Message and CampaignContact rows.
type Sender interface {
	// Send delivers content to phone (E.164) on behalf of tenantID.
	Send(ctx context.Context, tenantID, phone, content string) (*SendResult, error)

	// GetProviderName names the provider in logs and /health.
	GetProviderName() string
}

// SendResult is what the provider acknowledged.
type SendResult struct {
	Success           bool
	ProviderMessageID string
}

// ProviderConfig selects and configures the outbound provider.
type ProviderConfig struct {
	Type Provider

	// Z-API specific
	ZAPIBaseURL     string
	ZAPIInstanceID  string
	ZAPIToken       string
	ZAPIClientToken string

	// WAHA specific
	WAHABaseURL   string
	WAHAAPIKey    string
	WAHASessionID string

	// Cloud API specific
	CloudAPIPhoneID string
	CloudAPIToken   string
	CloudAPIVersion string
	CloudAPIBaseURL string

	Timeout time.Duration
}

// NewSender builds the Sender for cfg.Type.
func NewSender(cfg *ProviderConfig) (Sender, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	if cfg.Timeout == 0 {
		client.Timeout = 10 * time.Second
	}

	switch cfg.Type {
	case ProviderZAPI:
		if cfg.ZAPIInstanceID == "" || cfg.ZAPIToken == "" {
			return nil, fmt.Errorf("ZAPI_INSTANCE_ID and ZAPI_TOKEN are required")
		}
		return NewZAPISender(cfg.ZAPIBaseURL, cfg.ZAPIInstanceID, cfg.ZAPIToken, cfg.ZAPIClientToken, client), nil

	case ProviderWAHA:
		if cfg.WAHABaseURL == "" {
			return nil, fmt.Errorf("WAHA_BASE_URL is required")
		}
		return NewWAHASender(cfg.WAHABaseURL, cfg.WAHAAPIKey, cfg.WAHASessionID, client), nil

	case ProviderCloudAPI:
		return NewCloudAPISender(CloudAPIConfig{
			PhoneID:     cfg.CloudAPIPhoneID,
			AccessToken: cfg.CloudAPIToken,
			APIVersion:  cfg.CloudAPIVersion,
			BaseURL:     cfg.CloudAPIBaseURL,
		}, client)

	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}

// LoadProviderConfig builds the sender configuration from the service config.
func LoadProviderConfig(cfg *config.Config) (*ProviderConfig, error) {
	p, err := ParseProvider(cfg.WhatsAppProvider)
	if err != nil {
		return nil, err
	}
	return &ProviderConfig{
		Type: p,

		ZAPIBaseURL:     cfg.ZAPIBaseURL,
		ZAPIInstanceID:  cfg.ZAPIInstanceID,
		ZAPIToken:       cfg.ZAPIToken,
		ZAPIClientToken: cfg.ZAPIClientToken,

		WAHABaseURL:   cfg.WAHABaseURL,
		WAHAAPIKey:    cfg.WAHAAPIKey,
		WAHASessionID: cfg.WAHASessionID,

		CloudAPIPhoneID: cfg.CloudAPIPhoneID,
		CloudAPIToken:   cfg.CloudAPIToken,
		CloudAPIVersion: cfg.CloudAPIVersion,

		Timeout: cfg.WhatsAppSendTimeout,
	}, nil
}

// postJSON sends payload and decodes a 2xx response into out.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload, out interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
