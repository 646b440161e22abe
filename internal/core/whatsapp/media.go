// internal/core/whatsapp/media.go
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MediaRef points at a media object held by a provider. Z-API and WAHA hand
// out a URL; Cloud API hands out a media id that must be resolved first.
type MediaRef struct {
	Provider Provider
	URL      string
	ID       string
}

// MediaFetcher downloads inbound media so it can be copied into the blob store.
type MediaFetcher struct {
	client       *http.Client
	wahaAPIKey   string
	cloudToken   string
	cloudBaseURL string
}

func NewMediaFetcher(cfg *ProviderConfig, client *http.Client) *MediaFetcher {
	version := cfg.CloudAPIVersion
	if version == "" {
		version = "v18.0"
	}
	base := cfg.CloudAPIBaseURL
	if base == "" {
		base = cloudAPIDefaultBaseURL
	}
	return &MediaFetcher{
		client:       client,
		wahaAPIKey:   cfg.WAHAAPIKey,
		cloudToken:   cfg.CloudAPIToken,
		cloudBaseURL: strings.TrimRight(base, "/") + "/" + version,
	}
}

// Fetch opens the media stream. The caller closes the returned body.
func (f *MediaFetcher) Fetch(ctx context.Context, ref MediaRef) (io.ReadCloser, string, error) {
	switch ref.Provider {
	case ProviderCloudAPI:
		if ref.ID == "" {
			return nil, "", fmt.Errorf("cloud api media needs an id")
		}
		mediaURL, err := f.cloudMediaURL(ctx, ref.ID)
		if err != nil {
			return nil, "", err
		}
		return f.get(ctx, mediaURL, map[string]string{"Authorization": "Bearer " + f.cloudToken})
	case ProviderWAHA:
		return f.get(ctx, ref.URL, map[string]string{"X-Api-Key": f.wahaAPIKey})
	default:
		return f.get(ctx, ref.URL, nil)
	}
}

// cloudMediaURL retrieves the short-lived download URL for a media id.
func (f *MediaFetcher) cloudMediaURL(ctx context.Context, mediaID string) (string, error) {
	body, _, err := f.get(ctx, f.cloudBaseURL+"/"+mediaID, map[string]string{"Authorization": "Bearer " + f.cloudToken})
	if err != nil {
		return "", fmt.Errorf("failed to get media info: %w", err)
	}
	defer body.Close()

	var result struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.URL == "" {
		return "", fmt.Errorf("media %s has no url", mediaID)
	}
	return result.URL, nil
}

func (f *MediaFetcher) get(ctx context.Context, url string, headers map[string]string) (io.ReadCloser, string, error) {
	if url == "" {
		return nil, "", fmt.Errorf("media url is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create download request: %w", err)
	}
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download media: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", fmt.Errorf("failed to download media: status %d", resp.StatusCode)
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}
