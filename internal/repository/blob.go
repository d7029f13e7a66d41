package repository

import (
	"context"
	"errors"
	"time"

	"meshi/internal/models"
	"meshi/internal/observability"

	"gorm.io/gorm"
)

// BlobRepository stores blob metadata and resumable upload sessions.
type BlobRepository interface {
	Create(ctx context.Context, blob *models.Blob) error
	GetByPath(ctx context.Context, path string) (*models.Blob, error)
	CreateUpload(ctx context.Context, session *models.UploadSession) error
	GetUpload(ctx context.Context, id string) (*models.UploadSession, error)
	AdvanceUpload(ctx context.Context, id string, offset, n int64) (*models.UploadSession, error)
	CompleteUpload(ctx context.Context, id string, blob *models.Blob) error
}

type blobRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewBlobRepository creates a new BlobRepository
func NewBlobRepository(db *gorm.DB) BlobRepository {
	return &blobRepository{db: db, log: observability.NewRepoLogger("blobs")}
}

func (r *blobRepository) Create(ctx context.Context, blob *models.Blob) error {
	if err := r.db.WithContext(ctx).Create(blob).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("A file already exists at " + blob.Path)
		}
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.log.LogCreate(ctx, map[string]interface{}{"path": blob.Path, "size": blob.SizeBytes})
	return nil
}

func (r *blobRepository) GetByPath(ctx context.Context, path string) (*models.Blob, error) {
	var blob models.Blob
	if err := r.db.WithContext(ctx).Where("path = ?", path).First(&blob).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Blob", path)
		}
		return nil, models.NewInternalError(err)
	}
	return &blob, nil
}

func (r *blobRepository) CreateUpload(ctx context.Context, session *models.UploadSession) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		r.log.LogError(ctx, err, "create_upload")
		return models.NewInternalError(err)
	}
	return nil
}

func (r *blobRepository) GetUpload(ctx context.Context, id string) (*models.UploadSession, error) {
	var session models.UploadSession
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Upload", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &session, nil
}

// AdvanceUpload records n more bytes received at offset. The update only applies
// while the session is open and offset equals the bytes received so far, so a
// stale or duplicate chunk yields a conflict.
func (r *blobRepository) AdvanceUpload(ctx context.Context, id string, offset, n int64) (*models.UploadSession, error) {
	result := r.db.WithContext(ctx).
		Model(&models.UploadSession{}).
		Where("id = ? AND status = ? AND received_bytes = ?", id, models.UploadStatusOpen, offset).
		Updates(map[string]interface{}{
			"received_bytes": gorm.Expr("received_bytes + ?", n),
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return nil, models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetUpload(ctx, id); err != nil {
			return nil, err
		}
		return nil, models.NewConflictError("upload offset does not match received bytes")
	}
	return r.GetUpload(ctx, id)
}

// CompleteUpload closes the session and records blob in one transaction.
func (r *blobRepository) CompleteUpload(ctx context.Context, id string, blob *models.Blob) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		result := tx.Model(&models.UploadSession{}).
			Where("id = ? AND status = ?", id, models.UploadStatusOpen).
			Updates(map[string]interface{}{
				"status":       models.UploadStatusComplete,
				"completed_at": &now,
				"updated_at":   now,
			})
		if result.Error != nil {
			return models.NewInternalError(result.Error)
		}
		if result.RowsAffected == 0 {
			return models.NewConflictError("upload is not open")
		}
		if err := tx.Create(blob).Error; err != nil {
			if isUniqueConstraintError(err) {
				return models.NewConflictError("A file already exists at " + blob.Path)
			}
			return models.NewInternalError(err)
		}
		return nil
	})
	if err != nil {
		r.log.LogError(ctx, err, "complete_upload")
		return err
	}
	r.log.LogCreate(ctx, map[string]interface{}{"path": blob.Path, "size": blob.SizeBytes, "upload_id": id})
	return nil
}
