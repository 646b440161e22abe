package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalProvider implements the blob store on the local filesystem
type LocalProvider struct {
	basePath string // Base directory for blobs
}

// NewLocalProvider creates a new local file storage provider
func NewLocalProvider(basePath string) (*LocalProvider, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &LocalProvider{basePath: basePath}, nil
}

// Store writes the blob under basePath
func (p *LocalProvider) Store(_ context.Context, file io.Reader, filename string, options *StoreOptions) (*StoreResult, error) {
	options = MergeOptions(options)

	key := objectKey(options.Folder, filename)
	filePath := filepath.Join(p.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}

	out, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	// read one byte past the limit to detect oversize content
	size, err := io.Copy(out, io.LimitReader(file, options.MaxSize+1))
	if err != nil {
		os.Remove(filePath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if size > options.MaxSize {
		os.Remove(filePath)
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, options.MaxSize)
	}

	contentType := options.ContentType
	if contentType == "" {
		contentType = detectContentType(filename)
	}
	return &StoreResult{
		Path:        key,
		FileName:    filename,
		Size:        size,
		ContentType: contentType,
	}, nil
}

// Retrieve opens a stored blob
func (p *LocalProvider) Retrieve(_ context.Context, path string) (io.ReadCloser, error) {
	full, err := p.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// Delete deletes a blob from local filesystem
func (p *LocalProvider) Delete(_ context.Context, path string) error {
	full, err := p.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// GetProviderName returns the provider name
func (p *LocalProvider) GetProviderName() string {
	return "Local Storage"
}

// resolve keeps paths inside basePath.
func (p *LocalProvider) resolve(path string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(path))
	full := filepath.Join(p.basePath, clean)
	base := filepath.Clean(p.basePath)
	if full != base && !strings.HasPrefix(full, base+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return full, nil
}
