// internal/core/whatsapp/parser.go
package whatsapp

import (
	"fmt"
	"strings"
	"time"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/apperrors"
)

// Provider identifies a WhatsApp gateway. The value is the route segment used
// by /webhooks/:provider/...
type Provider string

const (
	ProviderZAPI     Provider = "zapi"
	ProviderWAHA     Provider = "waha"
	ProviderCloudAPI Provider = "cloudapi"
)

// ParseProvider accepts the canonical names plus the spellings used in older
// webhook configurations.
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "zapi", "z-api":
		return ProviderZAPI, nil
	case "waha":
		return ProviderWAHA, nil
	case "cloudapi", "cloud_api", "cloud-api", "meta":
		return ProviderCloudAPI, nil
	default:
		return "", apperrors.New(apperrors.Malformed, "whatsapp.ParseProvider", "unknown provider "+s)
	}
}

// InboundMessage is the provider-independent shape of one inbound webhook
// message.
type InboundMessage struct {
	Provider    Provider
	InstanceID  string
	ExternalID  string
	SenderPhone string
	SenderName  string
	ChatID      string
	Content     string
	MediaURL    string
	MediaID     string
	MediaMime   string
	MediaName   string
	Timestamp   time.Time
	FromMe      bool
	IsGroup     bool
	Metadata    map[string]interface{}
}

// HasMedia reports whether the message references a media object that still
// has to be fetched from the provider.
func (m InboundMessage) HasMedia() bool {
	return m.MediaURL != "" || m.MediaID != ""
}

// StatusUpdate is one delivery/read callback for a previously sent message.
type StatusUpdate struct {
	Provider   Provider
	InstanceID string
	ExternalID string
	Status     Status
	RawStatus  string
	Timestamp  time.Time
	Error      string
}

// HeaderFunc looks up a request header, e.g. http.Header.Get.
type HeaderFunc func(key string) string

// InboundParser adapts one provider's webhook format.
//
// ParseInbound and ParseStatus return an empty slice with a nil error when
// the payload is well formed but carries nothing to ingest (presence events,
// session events, callbacks of the other kind).
type InboundParser interface {
	Provider() Provider
	Verify(header HeaderFunc, body []byte, secret string) error
	ParseInbound(body []byte) ([]InboundMessage, error)
	ParseStatus(body []byte) ([]StatusUpdate, error)
}

// NewParser returns the parser for p.
func NewParser(p Provider) (InboundParser, error) {
	switch p {
	case ProviderZAPI:
		return zapiParser{}, nil
	case ProviderWAHA:
		return wahaParser{}, nil
	case ProviderCloudAPI:
		return cloudAPIParser{}, nil
	default:
		return nil, fmt.Errorf("unknown provider type: %s", p)
	}
}

func malformed(p Provider, format string, args ...interface{}) error {
	return apperrors.New(apperrors.Malformed, string(p)+".parse", fmt.Sprintf(format, args...))
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
