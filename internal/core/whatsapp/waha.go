// internal/core/whatsapp/waha.go
package whatsapp

import (
	"context"
	"crypto/sha512"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/phone"
)

// wahaEvent represents an incoming WAHA webhook event
type wahaEvent struct {
	Event   string      `json:"event"`
	Session string      `json:"session"`
	Payload wahaMessage `json:"payload"`
}

type wahaMessage struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	From      string `json:"from"` // Format: 628xxx@c.us
	FromMe    bool   `json:"fromMe"`
	To        string `json:"to"`
	Body      string `json:"body"`
	HasMedia  bool   `json:"hasMedia"`
	Media     *struct {
		URL      string `json:"url"`
		Mimetype string `json:"mimetype"`
		Filename string `json:"filename"`
	} `json:"media"`
	Ack     *int   `json:"ack"`
	AckName string `json:"ackName"`
	Data    struct {
		NotifyName string `json:"notifyName"`
	} `json:"_data"`
}

type wahaParser struct{}

func (wahaParser) Provider() Provider { return ProviderWAHA }

func (wahaParser) Verify(header HeaderFunc, body []byte, secret string) error {
	return verifyHMAC(ProviderWAHA, sha512.New, body, header(headerWAHAHmac), "", secret)
}

// ParseInbound accepts "message" and "message.any". Everything else
// (session.status, presence.update, message.reaction, ...) carries nothing to
// ingest.
func (wahaParser) ParseInbound(body []byte) ([]InboundMessage, error) {
	var evt wahaEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, malformed(ProviderWAHA, "invalid json: %v", err)
	}
	if evt.Event != "message" && evt.Event != "message.any" {
		return nil, nil
	}
	p := evt.Payload
	if evt.Session == "" || p.ID == "" || p.From == "" {
		return nil, malformed(ProviderWAHA, "session, payload.id and payload.from are required")
	}

	msg := InboundMessage{
		Provider:    ProviderWAHA,
		InstanceID:  evt.Session,
		ExternalID:  p.ID,
		SenderPhone: p.From,
		SenderName:  p.Data.NotifyName,
		ChatID:      p.From,
		Content:     p.Body,
		Timestamp:   unixTime(p.Timestamp),
		FromMe:      p.FromMe,
		IsGroup:     strings.HasSuffix(p.From, "@g.us"),
		Metadata: map[string]interface{}{
			"event":    evt.Event,
			"to":       p.To,
			"hasMedia": p.HasMedia,
		},
	}
	if p.HasMedia && p.Media != nil && p.Media.URL != "" {
		msg.MediaURL = p.Media.URL
		msg.MediaMime = p.Media.Mimetype
		msg.MediaName = p.Media.Filename
	}
	return []InboundMessage{msg}, nil
}

func (wahaParser) ParseStatus(body []byte) ([]StatusUpdate, error) {
	var evt wahaEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, malformed(ProviderWAHA, "invalid json: %v", err)
	}
	if evt.Event != "message.ack" {
		return nil, nil
	}
	p := evt.Payload
	if evt.Session == "" || p.ID == "" {
		return nil, malformed(ProviderWAHA, "session and payload.id are required")
	}

	raw := p.AckName
	if raw == "" && p.Ack != nil {
		raw = strconv.Itoa(*p.Ack)
	}
	if raw == "" {
		return nil, malformed(ProviderWAHA, "payload.ack is required")
	}
	return []StatusUpdate{{
		Provider:   ProviderWAHA,
		InstanceID: evt.Session,
		ExternalID: p.ID,
		Status:     MapStatus(ProviderWAHA, raw),
		RawStatus:  raw,
		Timestamp:  unixTime(p.Timestamp),
	}}, nil
}

// WAHASender sends through a self-hosted WAHA instance.
type WAHASender struct {
	baseURL   string
	apiKey    string
	sessionID string
	client    *http.Client
}

func NewWAHASender(baseURL, apiKey, sessionID string, client *http.Client) *WAHASender {
	if sessionID == "" {
		sessionID = "default"
	}
	return &WAHASender{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		sessionID: sessionID,
		client:    client,
	}
}

func (w *WAHASender) GetProviderName() string {
	return "WAHA"
}

func (w *WAHASender) Send(ctx context.Context, tenantID, to, content string) (*SendResult, error) {
	endpoint := fmt.Sprintf("%s/api/sendText", w.baseURL)

	// Format: 628123456789@c.us
	payload := map[string]string{
		"session": w.sessionID,
		"chatId":  phone.Digits(to) + "@c.us",
		"text":    content,
	}

	// WAHA engines disagree on the id shape: a plain string or an object
	// carrying _serialized.
	var result struct {
		ID json.RawMessage `json:"id"`
	}
	headers := map[string]string{"X-Api-Key": w.apiKey}
	if err := postJSON(ctx, w.client, endpoint, headers, payload, &result); err != nil {
		return nil, fmt.Errorf("waha send for tenant %s: %w", tenantID, err)
	}

	id := wahaMessageID(result.ID)
	if id == "" {
		return nil, fmt.Errorf("waha send for tenant %s: response has no message id", tenantID)
	}
	return &SendResult{Success: true, ProviderMessageID: id}, nil
}

func wahaMessageID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Serialized string `json:"_serialized"`
		ID         string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Serialized != "" {
			return obj.Serialized
		}
		return obj.ID
	}
	return ""
}
