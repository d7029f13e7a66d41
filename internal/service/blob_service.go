package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"meshi/internal/config"
	"meshi/internal/models"
	"meshi/internal/observability"
	"meshi/internal/repository"
	"meshi/internal/validation"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	DefaultBlobDir             = "/tmp/meshi/blobs"
	DefaultBlobMaxUploadSizeMB = 10
	partialUploadDir           = ".uploads"
)

type UploadBlobInput struct {
	UserID      uint
	Path        string
	ContentType string
	Content     []byte
}

type StartUploadInput struct {
	UserID      uint
	Path        string
	ContentType string
	TotalBytes  int64
}

type AppendChunkInput struct {
	UserID   uint
	UploadID string
	Offset   int64
	Data     []byte
}

// BlobService stores image files on local disk under <dir>/<folder>/<name>
// and serves them from PublicBaseURL + "/storage/". Stored files are never removed.
type BlobService struct {
	repo               repository.BlobRepository
	dir                string
	publicBaseURL      string
	maxUploadSizeBytes int64
}

func NewBlobService(repo repository.BlobRepository, cfg *config.Config) *BlobService {
	dir := DefaultBlobDir
	maxUploadSizeMB := DefaultBlobMaxUploadSizeMB
	baseURL := ""

	if cfg != nil {
		if cfg.BlobDir != "" {
			dir = cfg.BlobDir
		}
		if cfg.MaxUploadSizeMB > 0 {
			maxUploadSizeMB = cfg.MaxUploadSizeMB
		}
		baseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	}

	return &BlobService{
		repo:               repo,
		dir:                dir,
		publicBaseURL:      baseURL,
		maxUploadSizeBytes: int64(maxUploadSizeMB) * 1024 * 1024,
	}
}

// MaxUploadBytes is the largest accepted file.
func (s *BlobService) MaxUploadBytes() int64 {
	return s.maxUploadSizeBytes
}

// Upload stores a whole file in one request.
func (s *BlobService) Upload(ctx context.Context, in UploadBlobInput) (*models.Blob, error) {
	if in.UserID == 0 {
		return nil, models.NewValidationError("Invalid user")
	}
	folder, err := validation.ValidateBlobPath(in.Path)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if len(in.Content) == 0 {
		return nil, models.NewValidationError("No file uploaded")
	}
	if int64(len(in.Content)) > s.maxUploadSizeBytes {
		return nil, s.tooLarge()
	}

	meta, err := inspectImage(in.Content, in.ContentType)
	if err != nil {
		return nil, err
	}

	abs := s.absPath(in.Path)
	if _, statErr := os.Stat(abs); statErr == nil {
		return nil, models.NewConflictError("A file already exists at " + in.Path)
	}
	if err := writeBytesToFile(abs, in.Content); err != nil {
		return nil, models.NewInternalError(err)
	}

	blob := &models.Blob{
		Path:        in.Path,
		ContentType: meta.contentType,
		SizeBytes:   int64(len(in.Content)),
		Width:       meta.width,
		Height:      meta.height,
		UserID:      in.UserID,
	}
	if err := s.repo.Create(ctx, blob); err != nil {
		_ = os.Remove(abs)
		return nil, err
	}

	observability.BlobBytesStored.WithLabelValues(folder).Add(float64(blob.SizeBytes))
	return blob, nil
}

// StartUpload opens a resumable upload session for a file of TotalBytes.
func (s *BlobService) StartUpload(ctx context.Context, in StartUploadInput) (*models.UploadSession, error) {
	if in.UserID == 0 {
		return nil, models.NewValidationError("Invalid user")
	}
	if _, err := validation.ValidateBlobPath(in.Path); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if in.TotalBytes <= 0 {
		return nil, models.NewValidationError("size must be positive")
	}
	if in.TotalBytes > s.maxUploadSizeBytes {
		return nil, s.tooLarge()
	}
	contentType := normalizeContentType(in.ContentType)
	if contentType != "" && !isAllowedImageMIME(contentType) {
		return nil, models.NewValidationError("Invalid image type")
	}
	if _, err := os.Stat(s.absPath(in.Path)); err == nil {
		return nil, models.NewConflictError("A file already exists at " + in.Path)
	}

	session := &models.UploadSession{
		ID:          uuid.NewString(),
		UserID:      in.UserID,
		Path:        in.Path,
		ContentType: contentType,
		TotalBytes:  in.TotalBytes,
		Status:      models.UploadStatusOpen,
	}
	if err := writeBytesToFile(s.partialPath(session.ID), nil); err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := s.repo.CreateUpload(ctx, session); err != nil {
		_ = os.Remove(s.partialPath(session.ID))
		return nil, err
	}
	return session, nil
}

// GetUpload returns the caller's upload session.
func (s *BlobService) GetUpload(ctx context.Context, userID uint, uploadID string) (*models.UploadSession, error) {
	session, err := s.repo.GetUpload(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, models.NewForbiddenError("This upload belongs to another user")
	}
	return session, nil
}

// AppendChunk writes Data at Offset. Offset must equal the bytes received so
// far; a client that lost track can read the session to resume.
func (s *BlobService) AppendChunk(ctx context.Context, in AppendChunkInput) (*models.UploadSession, error) {
	session, err := s.GetUpload(ctx, in.UserID, in.UploadID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.UploadStatusOpen {
		return nil, models.NewConflictError("upload is already complete")
	}
	if len(in.Data) == 0 {
		return nil, models.NewValidationError("empty chunk")
	}
	if in.Offset != session.ReceivedBytes {
		return nil, models.NewConflictError(fmt.Sprintf("expected offset %d", session.ReceivedBytes))
	}
	if in.Offset+int64(len(in.Data)) > session.TotalBytes {
		return nil, models.NewValidationError("chunk exceeds declared size")
	}

	if err := writeAt(s.partialPath(session.ID), in.Offset, in.Data); err != nil {
		return nil, models.NewInternalError(err)
	}
	return s.repo.AdvanceUpload(ctx, session.ID, in.Offset, int64(len(in.Data)))
}

// CompleteUpload validates the assembled file and moves it to its final path.
func (s *BlobService) CompleteUpload(ctx context.Context, userID uint, uploadID string) (*models.Blob, error) {
	session, err := s.GetUpload(ctx, userID, uploadID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.UploadStatusOpen {
		return nil, models.NewConflictError("upload is already complete")
	}
	if session.ReceivedBytes != session.TotalBytes {
		return nil, models.NewValidationError(fmt.Sprintf("upload incomplete: %d of %d bytes", session.ReceivedBytes, session.TotalBytes))
	}

	partial := s.partialPath(session.ID)
	content, err := os.ReadFile(partial)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	meta, err := inspectImage(content, session.ContentType)
	if err != nil {
		return nil, err
	}

	abs := s.absPath(session.Path)
	if _, statErr := os.Stat(abs); statErr == nil {
		return nil, models.NewConflictError("A file already exists at " + session.Path)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := os.Rename(partial, abs); err != nil {
		return nil, models.NewInternalError(err)
	}

	blob := &models.Blob{
		Path:        session.Path,
		ContentType: meta.contentType,
		SizeBytes:   int64(len(content)),
		Width:       meta.width,
		Height:      meta.height,
		UserID:      userID,
	}
	if err := s.repo.CompleteUpload(ctx, session.ID, blob); err != nil {
		_ = os.Rename(abs, partial)
		return nil, err
	}

	folder, _ := validation.ValidateBlobPath(session.Path)
	observability.BlobBytesStored.WithLabelValues(folder).Add(float64(blob.SizeBytes))
	return blob, nil
}

// URL returns the public download URL for a stored path. Filename characters
// such as '#', '?', '%' and spaces are percent-escaped.
func (s *BlobService) URL(path string) (string, error) {
	if _, err := validation.ValidateBlobPath(path); err != nil {
		return "", models.NewValidationError(err.Error())
	}
	return s.publicBaseURL + (&url.URL{Path: "/storage/" + path}).EscapedPath(), nil
}

// ResolveForServing maps a public path to the file on disk and its content type.
func (s *BlobService) ResolveForServing(ctx context.Context, path string) (string, string, error) {
	if _, err := validation.ValidateBlobPath(path); err != nil {
		return "", "", models.NewNotFoundError("Blob", path)
	}
	blob, err := s.repo.GetByPath(ctx, path)
	if err != nil {
		return "", "", err
	}
	abs := s.absPath(path)
	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", "", models.NewNotFoundError("Blob", path)
		}
		return "", "", models.NewInternalError(err)
	}
	return abs, blob.ContentType, nil
}

func (s *BlobService) absPath(path string) string {
	return filepath.Join(s.dir, filepath.FromSlash(path))
}

func (s *BlobService) partialPath(uploadID string) string {
	return filepath.Join(s.dir, partialUploadDir, uploadID+".part")
}

func (s *BlobService) tooLarge() error {
	return models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", s.maxUploadSizeBytes/(1024*1024)))
}

type imageMeta struct {
	contentType string
	width       int
	height      int
}

// inspectImage sniffs and decodes the header of content. A declared image
// content type must agree with what the bytes contain.
func inspectImage(content []byte, declared string) (*imageMeta, error) {
	detectedType := http.DetectContentType(content)
	if !isAllowedImageMIME(detectedType) {
		return nil, models.NewValidationError("Invalid image type")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		return nil, models.NewValidationError("Invalid image file")
	}
	sourceMimeType := decodedFormatToMime(format)
	if sourceMimeType == "" {
		return nil, models.NewValidationError("Unsupported image format")
	}
	if provided := normalizeContentType(declared); strings.HasPrefix(provided, "image/") && !isMatchingContentType(provided, sourceMimeType) {
		return nil, models.NewValidationError("Image content type mismatch")
	}

	return &imageMeta{contentType: sourceMimeType, width: cfg.Width, height: cfg.Height}, nil
}

func isAllowedImageMIME(contentType string) bool {
	switch normalizeContentType(contentType) {
	case "image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

func normalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func isMatchingContentType(provided, detected string) bool {
	p := normalizeContentType(provided)
	d := normalizeContentType(detected)
	if p == d {
		return true
	}
	return (p == "image/jpg" && d == "image/jpeg") || (p == "image/jpeg" && d == "image/jpg")
}

func decodedFormatToMime(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return ""
	}
}

func writeBytesToFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func writeAt(path string, offset int64, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.WriteAt(data, offset); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
