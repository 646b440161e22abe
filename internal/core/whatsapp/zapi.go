// internal/core/whatsapp/zapi.go
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/phone"
)

// zapiCallback covers both ReceivedCallback and MessageStatusCallback.
// Z-API spells the timestamp field "momment" and sends it in milliseconds.
type zapiCallback struct {
	Type       string   `json:"type"`
	InstanceID string   `json:"instanceId"`
	MessageID  string   `json:"messageId"`
	IDs        []string `json:"ids"`
	Phone      string   `json:"phone"`
	FromMe     bool     `json:"fromMe"`
	Momment    int64    `json:"momment"`
	Status     string   `json:"status"`
	IsGroup    bool     `json:"isGroup"`
	ChatName   string   `json:"chatName"`
	SenderName string   `json:"senderName"`
	Text       *struct {
		Message string `json:"message"`
	} `json:"text"`
	Image    *zapiMedia `json:"image"`
	Audio    *zapiMedia `json:"audio"`
	Video    *zapiMedia `json:"video"`
	Document *zapiMedia `json:"document"`
}

type zapiMedia struct {
	ImageURL    string `json:"imageUrl"`
	AudioURL    string `json:"audioUrl"`
	VideoURL    string `json:"videoUrl"`
	DocumentURL string `json:"documentUrl"`
	MimeType    string `json:"mimeType"`
	Caption     string `json:"caption"`
	FileName    string `json:"fileName"`
}

func (m *zapiMedia) url() string {
	for _, u := range []string{m.ImageURL, m.AudioURL, m.VideoURL, m.DocumentURL} {
		if u != "" {
			return u
		}
	}
	return ""
}

const (
	zapiReceived = "ReceivedCallback"
	zapiStatus   = "MessageStatusCallback"
)

type zapiParser struct{}

func (zapiParser) Provider() Provider { return ProviderZAPI }

func (zapiParser) Verify(header HeaderFunc, _ []byte, secret string) error {
	return verifyToken(ProviderZAPI, header(headerZAPIClientToken), secret)
}

func (zapiParser) ParseInbound(body []byte) ([]InboundMessage, error) {
	var cb zapiCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, malformed(ProviderZAPI, "invalid json: %v", err)
	}
	if cb.Type != "" && cb.Type != zapiReceived {
		return nil, nil
	}
	if cb.InstanceID == "" || cb.MessageID == "" || cb.Phone == "" {
		return nil, malformed(ProviderZAPI, "instanceId, messageId and phone are required")
	}

	msg := InboundMessage{
		Provider:    ProviderZAPI,
		InstanceID:  cb.InstanceID,
		ExternalID:  cb.MessageID,
		SenderPhone: phone.International(cb.Phone),
		SenderName:  cb.SenderName,
		ChatID:      cb.Phone,
		FromMe:      cb.FromMe,
		IsGroup:     cb.IsGroup || strings.HasSuffix(cb.Phone, "-group"),
		Metadata: map[string]interface{}{
			"type":     cb.Type,
			"chatName": cb.ChatName,
			"status":   cb.Status,
		},
	}
	if cb.Momment > 0 {
		msg.Timestamp = time.UnixMilli(cb.Momment).UTC()
	}
	if cb.Text != nil {
		msg.Content = cb.Text.Message
	}
	for _, m := range []*zapiMedia{cb.Image, cb.Audio, cb.Video, cb.Document} {
		if m == nil || m.url() == "" {
			continue
		}
		msg.MediaURL = m.url()
		msg.MediaMime = m.MimeType
		msg.MediaName = m.FileName
		if msg.Content == "" {
			msg.Content = m.Caption
		}
		break
	}
	return []InboundMessage{msg}, nil
}

func (zapiParser) ParseStatus(body []byte) ([]StatusUpdate, error) {
	var cb zapiCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, malformed(ProviderZAPI, "invalid json: %v", err)
	}
	if cb.Type != "" && cb.Type != zapiStatus {
		return nil, nil
	}
	ids := cb.IDs
	if len(ids) == 0 && cb.MessageID != "" {
		ids = []string{cb.MessageID}
	}
	if cb.InstanceID == "" || len(ids) == 0 || cb.Status == "" {
		return nil, malformed(ProviderZAPI, "instanceId, ids and status are required")
	}
	if zapiSkippedStatuses[strings.ToUpper(cb.Status)] {
		return nil, nil
	}

	var ts time.Time
	if cb.Momment > 0 {
		ts = time.UnixMilli(cb.Momment).UTC()
	}
	updates := make([]StatusUpdate, 0, len(ids))
	for _, id := range ids {
		updates = append(updates, StatusUpdate{
			Provider:   ProviderZAPI,
			InstanceID: cb.InstanceID,
			ExternalID: id,
			Status:     MapStatus(ProviderZAPI, cb.Status),
			RawStatus:  cb.Status,
			Timestamp:  ts,
		})
	}
	return updates, nil
}

// ZAPISender sends through the Z-API REST gateway.
type ZAPISender struct {
	baseURL     string
	instanceID  string
	token       string
	clientToken string
	client      *http.Client
}

func NewZAPISender(baseURL, instanceID, token, clientToken string, client *http.Client) *ZAPISender {
	return &ZAPISender{
		baseURL:     strings.TrimRight(baseURL, "/"),
		instanceID:  instanceID,
		token:       token,
		clientToken: clientToken,
		client:      client,
	}
}

func (z *ZAPISender) GetProviderName() string {
	return "Z-API"
}

func (z *ZAPISender) Send(ctx context.Context, tenantID, to, content string) (*SendResult, error) {
	endpoint := fmt.Sprintf("%s/instances/%s/token/%s/send-text", z.baseURL, z.instanceID, z.token)
	payload := map[string]string{
		"phone":   phone.Digits(to),
		"message": content,
	}

	var result struct {
		ZaapID    string `json:"zaapId"`
		MessageID string `json:"messageId"`
		ID        string `json:"id"`
	}
	headers := map[string]string{headerZAPIClientToken: z.clientToken}
	if err := postJSON(ctx, z.client, endpoint, headers, payload, &result); err != nil {
		return nil, fmt.Errorf("z-api send for tenant %s: %w", tenantID, err)
	}

	id := result.MessageID
	if id == "" {
		id = result.ID
	}
	if id == "" {
		return nil, fmt.Errorf("z-api send for tenant %s: response has no message id", tenantID)
	}
	return &SendResult{Success: true, ProviderMessageID: id}, nil
}
