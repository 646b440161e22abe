// Package upload is the blob store for inbound media. Callers only keep the
// returned path, mime type and size; content is never inspected.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/config"
)

// ErrNotFound is returned by Retrieve for unknown paths.
var ErrNotFound = errors.New("blob not found")

// ErrTooLarge is returned by Store when the content exceeds MaxSize.
var ErrTooLarge = errors.New("file size exceeds maximum allowed size")

// StoreResult represents the result of a stored blob
type StoreResult struct {
	Path        string `json:"path"`         // Provider-specific key, what callers persist
	FileName    string `json:"file_name"`    // Original filename
	Size        int64  `json:"size"`         // File size in bytes
	ContentType string `json:"content_type"` // MIME type
}

// StoreOptions represents store configuration options
type StoreOptions struct {
	Folder      string // Folder/directory to store into
	ContentType string // Declared MIME type, detected from the extension when empty
	MaxSize     int64  // Max file size in bytes
}

// Provider defines the interface for blob store providers
type Provider interface {
	// Store writes r and returns the path to persist
	Store(ctx context.Context, r io.Reader, filename string, options *StoreOptions) (*StoreResult, error)

	// Retrieve opens a stored blob. The caller closes it.
	Retrieve(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete deletes a blob by path
	Delete(ctx context.Context, path string) error

	// GetProviderName returns the provider name
	GetProviderName() string
}

// DefaultStoreOptions returns default store options
func DefaultStoreOptions() *StoreOptions {
	return &StoreOptions{
		Folder:  "media",
		MaxSize: 16 * 1024 * 1024, // WhatsApp media limit
	}
}

// MergeOptions merges custom options with defaults
func MergeOptions(custom *StoreOptions) *StoreOptions {
	defaults := DefaultStoreOptions()
	if custom == nil {
		return defaults
	}
	if custom.Folder != "" {
		defaults.Folder = custom.Folder
	}
	if custom.ContentType != "" {
		defaults.ContentType = custom.ContentType
	}
	if custom.MaxSize > 0 {
		defaults.MaxSize = custom.MaxSize
	}
	return defaults
}

// NewProviderFromConfig builds the provider named by UPLOAD_PROVIDER.
func NewProviderFromConfig(cfg *config.Config) (Provider, error) {
	switch cfg.UploadProvider {
	case "", "local":
		return NewLocalProvider(cfg.UploadPath)
	case "s3":
		if cfg.AWSBucket == "" {
			return nil, fmt.Errorf("AWS_S3_BUCKET is required for the s3 provider")
		}
		return NewS3Provider(cfg.AWSAccessKeyID, cfg.AWSSecretKey, cfg.AWSRegion, cfg.AWSBucket)
	default:
		return nil, fmt.Errorf("unknown upload provider: %s", cfg.UploadProvider)
	}
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// objectKey generates a unique key: <folder>/<name>_<unix>_<id><ext>
func objectKey(folder, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	name := unsafeChars.ReplaceAllString(strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)), "_")
	if name == "" || name == "_" {
		name = "file"
	}
	uniqueID := uuid.New().String()[:8]
	return fmt.Sprintf("%s/%s_%d_%s%s", strings.Trim(folder, "/"), name, time.Now().Unix(), uniqueID, ext)
}

// detectContentType detects the content type based on file extension
func detectContentType(filename string) string {
	contentTypes := map[string]string{
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".png":  "image/png",
		".gif":  "image/gif",
		".webp": "image/webp",
		".mp4":  "video/mp4",
		".3gp":  "video/3gpp",
		".ogg":  "audio/ogg",
		".opus": "audio/ogg",
		".mp3":  "audio/mpeg",
		".m4a":  "audio/mp4",
		".pdf":  "application/pdf",
		".doc":  "application/msword",
		".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	}
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// ExtensionFor maps a MIME type back to a file extension for media that
// arrives without a filename.
func ExtensionFor(mime string) string {
	switch strings.ToLower(strings.TrimSpace(strings.SplitN(mime, ";", 2)[0])) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "audio/ogg":
		return ".ogg"
	case "audio/mpeg":
		return ".mp3"
	case "video/mp4":
		return ".mp4"
	case "application/pdf":
		return ".pdf"
	default:
		return ".bin"
	}
}
