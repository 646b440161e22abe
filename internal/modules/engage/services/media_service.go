package services

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/jobs"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/upload"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/whatsapp"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/models"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/repositories"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/apperrors"
)

// MediaFetcher downloads provider-held media.
type MediaFetcher interface {
	Fetch(ctx context.Context, ref whatsapp.MediaRef) (io.ReadCloser, string, error)
}

// MediaService copies inbound media into the blob store. Only the path,
// mime type and size are kept on the message.
type MediaService struct {
	messages repositories.MessageRepo
	fetcher  MediaFetcher
	store    upload.Provider
}

func NewMediaService(messages repositories.MessageRepo, fetcher MediaFetcher, store upload.Provider) *MediaService {
	return &MediaService{messages: messages, fetcher: fetcher, store: store}
}

// HandleFetchMedia is the media.fetch job handler. A message that already
// has a stored blob is skipped.
func (s *MediaService) HandleFetchMedia(ctx context.Context, job *jobs.Job) error {
	var payload fetchMediaPayload
	if err := job.Decode(&payload); err != nil {
		return err
	}

	m, err := s.messages.FindByID(ctx, job.TenantID, payload.MessageID)
	if errors.Is(err, apperrors.NotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if m.MediaPath != "" {
		return nil
	}

	body, contentType, err := s.fetcher.Fetch(ctx, whatsapp.MediaRef{
		Provider: whatsapp.Provider(payload.Provider),
		URL:      payload.URL,
		ID:       payload.MediaID,
	})
	if err != nil {
		return err
	}
	defer body.Close()

	mime := payload.Mime
	if mime == "" {
		mime = contentType
	}
	name := payload.FileName
	if name == "" {
		name = "media" + upload.ExtensionFor(mime)
	}

	res, err := s.store.Store(ctx, body, name, &upload.StoreOptions{
		Folder:      "media/" + job.TenantID.String(),
		ContentType: mime,
	})
	if err != nil {
		return err
	}
	return s.messages.SetMedia(ctx, m.ID, res.Path, res.ContentType, res.Size)
}

// Open streams a message's stored media. The caller closes the reader.
func (s *MediaService) Open(ctx context.Context, tenantID, messageID uuid.UUID) (io.ReadCloser, *models.Message, error) {
	const op = "media.Open"

	m, err := s.messages.FindByID(ctx, tenantID, messageID)
	if err != nil {
		return nil, nil, err
	}
	if m.MediaPath == "" {
		return nil, nil, apperrors.New(apperrors.NotFound, op, "message has no stored media")
	}

	rc, err := s.store.Retrieve(ctx, m.MediaPath)
	if errors.Is(err, upload.ErrNotFound) {
		return nil, nil, apperrors.Wrap(apperrors.NotFound, op, err)
	}
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.Transient, op, err)
	}
	return rc, m, nil
}
