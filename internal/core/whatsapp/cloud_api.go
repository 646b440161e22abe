// internal/core/whatsapp/cloud_api.go
package whatsapp

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/phone"
)

const cloudAPIDefaultBaseURL = "https://graph.facebook.com"

// cloudAPIWebhook is the envelope Meta posts for both messages and statuses.
// Documentation: https://developers.facebook.com/docs/whatsapp/cloud-api/webhooks
type cloudAPIWebhook struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string        `json:"field"`
			Value cloudAPIValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type cloudAPIValue struct {
	Metadata struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
		WaID string `json:"wa_id"`
	} `json:"contacts"`
	Messages []CloudAPIMessage `json:"messages"`
	Statuses []struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		Timestamp   string `json:"timestamp"`
		RecipientID string `json:"recipient_id"`
		Errors      []struct {
			Code  int    `json:"code"`
			Title string `json:"title"`
		} `json:"errors"`
	} `json:"statuses"`
}

// CloudAPIMessage represents incoming message from webhook
type CloudAPIMessage struct {
	From      string                `json:"from"`
	ID        string                `json:"id"`
	Timestamp string                `json:"timestamp"`
	Type      string                `json:"type"` // text, image, document, etc.
	Text      *CloudAPITextMessage  `json:"text,omitempty"`
	Image     *CloudAPIMediaMessage `json:"image,omitempty"`
	Audio     *CloudAPIMediaMessage `json:"audio,omitempty"`
	Video     *CloudAPIMediaMessage `json:"video,omitempty"`
	Document  *CloudAPIMediaMessage `json:"document,omitempty"`
}

type CloudAPITextMessage struct {
	Body string `json:"body"`
}

type CloudAPIMediaMessage struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type cloudAPIParser struct{}

func (cloudAPIParser) Provider() Provider { return ProviderCloudAPI }

func (cloudAPIParser) Verify(header HeaderFunc, body []byte, secret string) error {
	return verifyHMAC(ProviderCloudAPI, sha256.New, body, header(headerCloudAPISignature), "sha256=", secret)
}

func decodeCloudAPI(body []byte) (*cloudAPIWebhook, error) {
	var hook cloudAPIWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, malformed(ProviderCloudAPI, "invalid json: %v", err)
	}
	if hook.Object != "whatsapp_business_account" {
		return nil, malformed(ProviderCloudAPI, "unexpected object %q", hook.Object)
	}
	return &hook, nil
}

func (cloudAPIParser) ParseInbound(body []byte) ([]InboundMessage, error) {
	hook, err := decodeCloudAPI(body)
	if err != nil {
		return nil, err
	}

	var out []InboundMessage
	for _, entry := range hook.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			v := change.Value
			names := make(map[string]string, len(v.Contacts))
			for _, c := range v.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range v.Messages {
				if m.ID == "" || m.From == "" || v.Metadata.PhoneNumberID == "" {
					return nil, malformed(ProviderCloudAPI, "message id, from and metadata.phone_number_id are required")
				}
				msg := InboundMessage{
					Provider:    ProviderCloudAPI,
					InstanceID:  v.Metadata.PhoneNumberID,
					ExternalID:  m.ID,
					SenderPhone: phone.International(m.From),
					SenderName:  names[m.From],
					ChatID:      m.From,
					Timestamp:   unixTime(parseUnix(m.Timestamp)),
					Metadata: map[string]interface{}{
						"type":         m.Type,
						"wabaId":       entry.ID,
						"displayPhone": v.Metadata.DisplayPhoneNumber,
					},
				}
				if m.Text != nil {
					msg.Content = m.Text.Body
				}
				for _, media := range []*CloudAPIMediaMessage{m.Image, m.Audio, m.Video, m.Document} {
					if media == nil || media.ID == "" {
						continue
					}
					msg.MediaID = media.ID
					msg.MediaMime = media.MimeType
					msg.MediaName = media.Filename
					if msg.Content == "" {
						msg.Content = media.Caption
					}
					break
				}
				out = append(out, msg)
			}
		}
	}
	return out, nil
}

func (cloudAPIParser) ParseStatus(body []byte) ([]StatusUpdate, error) {
	hook, err := decodeCloudAPI(body)
	if err != nil {
		return nil, err
	}

	var out []StatusUpdate
	for _, entry := range hook.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			v := change.Value
			for _, s := range v.Statuses {
				if s.ID == "" || s.Status == "" {
					return nil, malformed(ProviderCloudAPI, "status id and status are required")
				}
				u := StatusUpdate{
					Provider:   ProviderCloudAPI,
					InstanceID: v.Metadata.PhoneNumberID,
					ExternalID: s.ID,
					Status:     MapStatus(ProviderCloudAPI, s.Status),
					RawStatus:  s.Status,
					Timestamp:  unixTime(parseUnix(s.Timestamp)),
				}
				if len(s.Errors) > 0 {
					u.Error = fmt.Sprintf("%d: %s", s.Errors[0].Code, s.Errors[0].Title)
				}
				out = append(out, u)
			}
		}
	}
	return out, nil
}

func parseUnix(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

// CloudAPIConfig holds configuration for WhatsApp Cloud API
type CloudAPIConfig struct {
	PhoneID     string // WhatsApp Business Phone Number ID
	AccessToken string // Meta Business Access Token
	APIVersion  string // API version (default: v18.0)
	BaseURL     string // Graph API host, overridden in tests
}

// CloudAPISender implements sending over the official WhatsApp Cloud API.
type CloudAPISender struct {
	baseURL     string
	phoneID     string
	accessToken string
	client      *http.Client
}

// NewCloudAPISender creates a new WhatsApp Cloud API sender
func NewCloudAPISender(cfg CloudAPIConfig, client *http.Client) (*CloudAPISender, error) {
	if cfg.PhoneID == "" {
		return nil, fmt.Errorf("phone_id is required")
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("access_token is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v18.0"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = cloudAPIDefaultBaseURL
	}

	return &CloudAPISender{
		baseURL:     fmt.Sprintf("%s/%s/%s", strings.TrimRight(cfg.BaseURL, "/"), cfg.APIVersion, cfg.PhoneID),
		phoneID:     cfg.PhoneID,
		accessToken: cfg.AccessToken,
		client:      client,
	}, nil
}

func (p *CloudAPISender) GetProviderName() string {
	return "WhatsApp Cloud API (Official)"
}

// Send sends a text message via Cloud API
func (p *CloudAPISender) Send(ctx context.Context, tenantID, to, content string) (*SendResult, error) {
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                phone.Digits(to),
		"type":              "text",
		"text": map[string]interface{}{
			"preview_url": false,
			"body":        content,
		},
	}

	var result struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	headers := map[string]string{"Authorization": "Bearer " + p.accessToken}
	if err := postJSON(ctx, p.client, p.baseURL+"/messages", headers, payload, &result); err != nil {
		return nil, fmt.Errorf("cloud api send for tenant %s: %w", tenantID, err)
	}
	if len(result.Messages) == 0 || result.Messages[0].ID == "" {
		return nil, fmt.Errorf("cloud api send for tenant %s: response has no message id", tenantID)
	}
	return &SendResult{Success: true, ProviderMessageID: result.Messages[0].ID}, nil
}
