package repository

import (
	"context"
	"testing"

	"meshi/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobRepository_ResumableUploadLifecycle(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewBlobRepository(db)
	ctx := context.Background()

	session := &models.UploadSession{
		ID:          "6f1c1f5e-5d55-4a39-9f0f-1f8b8f0f0a01",
		UserID:      1,
		Path:        "images/AbCdEfGh12345678_ramen.jpg",
		ContentType: "image/jpeg",
		TotalBytes:  10,
		Status:      models.UploadStatusOpen,
	}
	require.NoError(t, repo.CreateUpload(ctx, session))

	got, err := repo.AdvanceUpload(ctx, session.ID, 0, 6)
	require.NoError(t, err)
	assert.Equal(t, int64(6), got.ReceivedBytes)

	_, err = repo.AdvanceUpload(ctx, session.ID, 0, 6)
	assert.Equal(t, 409, models.StatusFor(err), "replayed chunk must conflict")

	got, err = repo.AdvanceUpload(ctx, session.ID, 6, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.ReceivedBytes)

	blob := &models.Blob{Path: session.Path, ContentType: "image/jpeg", SizeBytes: 10, UserID: 1}
	require.NoError(t, repo.CompleteUpload(ctx, session.ID, blob))

	done, err := repo.GetUpload(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UploadStatusComplete, done.Status)
	assert.NotNil(t, done.CompletedAt)

	stored, err := repo.GetByPath(ctx, session.Path)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stored.SizeBytes)

	err = repo.CompleteUpload(ctx, session.ID, &models.Blob{Path: "images/0000000000000000_x.jpg"})
	assert.Equal(t, 409, models.StatusFor(err))

	_, err = repo.AdvanceUpload(ctx, session.ID, 10, 1)
	assert.Equal(t, 409, models.StatusFor(err))
}

func TestBlobRepository_NotFoundAndDuplicates(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewBlobRepository(db)
	ctx := context.Background()

	_, err := repo.GetUpload(ctx, "missing")
	assert.Equal(t, 404, models.StatusFor(err))

	_, err = repo.AdvanceUpload(ctx, "missing", 0, 1)
	assert.Equal(t, 404, models.StatusFor(err))

	_, err = repo.GetByPath(ctx, "avatars/AbCdEfGh12345678_me.png")
	assert.Equal(t, 404, models.StatusFor(err))

	blob := &models.Blob{Path: "avatars/AbCdEfGh12345678_me.png", SizeBytes: 3}
	require.NoError(t, repo.Create(ctx, blob))
	err = repo.Create(ctx, &models.Blob{Path: blob.Path})
	assert.Equal(t, 409, models.StatusFor(err))
}
