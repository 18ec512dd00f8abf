package repository

import (
	"context"
	"io"
	"time"

	"campus_chat_service/internal/chat/domain"
	"campus_chat_service/pkg/database"

	"github.com/google/uuid"
)

const attachmentPrefix = "attachments/"

// AttachmentRepository file storage for message attachments
type AttachmentRepository interface {
	Upload(ctx context.Context, name, contentType string, r io.Reader, size int64) (*domain.FileRef, error)
	URL(ctx context.Context, id string) (string, error)
}

type attachmentRepository struct {
	client *database.MinIOClient
	expiry time.Duration
}

// NewMinIOAttachmentRepository create minio attachment store
func NewMinIOAttachmentRepository(client *database.MinIOClient, expiry time.Duration) AttachmentRepository {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &attachmentRepository{client: client, expiry: expiry}
}

// Upload store the stream and hand back an opaque reference
func (r *attachmentRepository) Upload(ctx context.Context, name, contentType string, reader io.Reader, size int64) (*domain.FileRef, error) {
	ref := &domain.FileRef{
		ID:          uuid.New().String(),
		Name:        name,
		ContentType: contentType,
	}
	if err := r.client.PutStream(ctx, attachmentPrefix+ref.ID, reader, size, contentType, name); err != nil {
		return nil, domain.NewTransientError("upload attachment", err)
	}
	return ref, nil
}

// URL presigned download url of attachment id
func (r *attachmentRepository) URL(ctx context.Context, id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", domain.NewValidationError("invalid attachment id")
	}
	exists, err := r.client.Exists(ctx, attachmentPrefix+id)
	if err != nil {
		return "", domain.NewTransientError("stat attachment", err)
	}
	if !exists {
		return "", domain.NewNotFoundError("attachment %s not found", id)
	}
	u, err := r.client.PresignGetURL(ctx, attachmentPrefix+id, r.expiry)
	if err != nil {
		return "", domain.NewTransientError("presign attachment", err)
	}
	return u, nil
}
