// Package testutil provides shared test doubles and fixtures for backend tests.
package testutil

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"sync"
	"time"

	"meshi/internal/models"
	"meshi/internal/repository"
)

var _ repository.BlobRepository = (*BlobRepoStub)(nil)

// BlobRepoStub is an in-memory blob repository implementation for tests.
type BlobRepoStub struct {
	mu      sync.Mutex
	blobs   map[string]*models.Blob
	uploads map[string]*models.UploadSession
	nextID  uint
}

// NewBlobRepoStub creates an in-memory blob repository stub for tests.
func NewBlobRepoStub() *BlobRepoStub {
	return &BlobRepoStub{
		blobs:   make(map[string]*models.Blob),
		uploads: make(map[string]*models.UploadSession),
		nextID:  1,
	}
}

// Create stores blob metadata in-memory.
func (s *BlobRepoStub) Create(_ context.Context, blob *models.Blob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(blob)
}

func (s *BlobRepoStub) createLocked(blob *models.Blob) error {
	if _, exists := s.blobs[blob.Path]; exists {
		return models.NewConflictError("A file already exists at " + blob.Path)
	}
	blob.ID = s.nextID
	s.nextID++
	blob.CreatedAt = time.Now()
	cp := *blob
	s.blobs[blob.Path] = &cp
	return nil
}

// GetByPath returns stored blob metadata by path.
func (s *BlobRepoStub) GetByPath(_ context.Context, path string) (*models.Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, ok := s.blobs[path]
	if !ok {
		return nil, models.NewNotFoundError("Blob", path)
	}
	cp := *blob
	return &cp, nil
}

// CreateUpload stores a new upload session.
func (s *BlobRepoStub) CreateUpload(_ context.Context, session *models.UploadSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.uploads[session.ID] = &cp
	return nil
}

// GetUpload returns an upload session by id.
func (s *BlobRepoStub) GetUpload(_ context.Context, id string) (*models.UploadSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.uploads[id]
	if !ok {
		return nil, models.NewNotFoundError("Upload", id)
	}
	cp := *session
	return &cp, nil
}

// AdvanceUpload mirrors the offset check of the gorm implementation.
func (s *BlobRepoStub) AdvanceUpload(_ context.Context, id string, offset, n int64) (*models.UploadSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.uploads[id]
	if !ok {
		return nil, models.NewNotFoundError("Upload", id)
	}
	if session.Status != models.UploadStatusOpen || session.ReceivedBytes != offset {
		return nil, models.NewConflictError("upload offset does not match received bytes")
	}
	session.ReceivedBytes += n
	session.UpdatedAt = time.Now()
	cp := *session
	return &cp, nil
}

// CompleteUpload closes the session and stores blob.
func (s *BlobRepoStub) CompleteUpload(_ context.Context, id string, blob *models.Blob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.uploads[id]
	if !ok || session.Status != models.UploadStatusOpen {
		return models.NewConflictError("upload is not open")
	}
	if err := s.createLocked(blob); err != nil {
		return err
	}
	now := time.Now()
	session.Status = models.UploadStatusComplete
	session.CompletedAt = &now
	return nil
}

// TinyPNG returns an in-memory PNG byte slice with the requested dimensions.
func TinyPNG(t interface {
	Helper()
	Fatalf(string, ...any)
}, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
