package server

import (
	"io"
	"net/url"
	"strings"

	"meshi/internal/models"
	"meshi/internal/service"

	"github.com/gofiber/fiber/v2"
)

// BlobResponse is the API response after a file is stored.
type BlobResponse struct {
	Path        string `json:"path"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

// UploadStatusResponse describes a resumable upload session.
type UploadStatusResponse struct {
	UploadID string `json:"upload_id"`
	Path     string `json:"path"`
	Received int64  `json:"received"`
	Total    int64  `json:"total"`
	Status   string `json:"status"`
}

// UploadBlob handles POST /api/blobs
// @Summary Upload a whole file
// @Description Multipart form with "file" and the target "path" (avatars/<prefix>_<name> or images/<prefix>_<name>)
// @Tags blobs
// @Security BearerAuth
// @Accept multipart/form-data
// @Produce json
// @Success 201 {object} BlobResponse
// @Failure 400 {object} object{error=string}
// @Failure 409 {object} object{error=string}
// @Router /blobs [post]
func (s *Server) UploadBlob(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	file, err := c.FormFile("file")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("No file uploaded"))
	}

	src, err := file.Open()
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Unable to read uploaded file"))
	}
	defer func() { _ = src.Close() }()

	content, err := io.ReadAll(io.LimitReader(src, s.blobService.MaxUploadBytes()+1))
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Unable to read uploaded file"))
	}

	blob, err := s.blobService.Upload(c.UserContext(), service.UploadBlobInput{
		UserID:      userID,
		Path:        strings.TrimSpace(c.FormValue("path")),
		ContentType: file.Header.Get("Content-Type"),
		Content:     content,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(s.toBlobResponse(blob))
}

// StartUpload handles POST /api/blobs/uploads
// @Summary Open a resumable upload
// @Tags blobs
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body object{path=string,content_type=string,size=int} true "Upload target"
// @Success 201 {object} UploadStatusResponse
// @Failure 400 {object} object{error=string}
// @Failure 409 {object} object{error=string}
// @Router /blobs/uploads [post]
func (s *Server) StartUpload(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var req struct {
		Path        string `json:"path"`
		ContentType string `json:"content_type"`
		Size        int64  `json:"size"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	session, err := s.blobService.StartUpload(c.UserContext(), service.StartUploadInput{
		UserID:      userID,
		Path:        strings.TrimSpace(req.Path),
		ContentType: req.ContentType,
		TotalBytes:  req.Size,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(toUploadStatus(session))
}

// GetUpload handles GET /api/blobs/uploads/:id
// @Summary Resumable upload progress
// @Tags blobs
// @Security BearerAuth
// @Param id path string true "Upload ID"
// @Produce json
// @Success 200 {object} UploadStatusResponse
// @Router /blobs/uploads/{id} [get]
func (s *Server) GetUpload(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	session, err := s.blobService.GetUpload(c.UserContext(), userID, c.Params("id"))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(toUploadStatus(session))
}

// AppendUploadChunk handles PUT /api/blobs/uploads/:id?offset=N
// @Summary Append a chunk
// @Description The raw request body is written at offset, which must equal the bytes received so far
// @Tags blobs
// @Security BearerAuth
// @Accept application/octet-stream
// @Param id path string true "Upload ID"
// @Param offset query int true "Byte offset"
// @Produce json
// @Success 200 {object} UploadStatusResponse
// @Failure 409 {object} object{error=string}
// @Router /blobs/uploads/{id} [put]
func (s *Server) AppendUploadChunk(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	offset := c.QueryInt("offset", -1)
	if offset < 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("offset query parameter is required"))
	}

	session, err := s.blobService.AppendChunk(c.UserContext(), service.AppendChunkInput{
		UserID:   userID,
		UploadID: c.Params("id"),
		Offset:   int64(offset),
		Data:     c.Body(),
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(toUploadStatus(session))
}

// CompleteUpload handles POST /api/blobs/uploads/:id/complete
// @Summary Finish a resumable upload
// @Tags blobs
// @Security BearerAuth
// @Param id path string true "Upload ID"
// @Produce json
// @Success 200 {object} BlobResponse
// @Failure 400 {object} object{error=string}
// @Failure 409 {object} object{error=string}
// @Router /blobs/uploads/{id}/complete [post]
func (s *Server) CompleteUpload(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	blob, err := s.blobService.CompleteUpload(c.UserContext(), userID, c.Params("id"))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(s.toBlobResponse(blob))
}

// GetBlobURL handles GET /api/blobs/url?path=
// @Summary Public download URL for a stored path
// @Tags blobs
// @Security BearerAuth
// @Param path query string true "Blob path"
// @Produce json
// @Success 200 {object} object{url=string}
// @Router /blobs/url [get]
func (s *Server) GetBlobURL(c *fiber.Ctx) error {
	path := c.Query("path")
	if _, _, err := s.blobService.ResolveForServing(c.UserContext(), path); err != nil {
		return respondServiceError(c, err)
	}
	u, err := s.blobService.URL(path)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"url": u})
}

// ServeBlob handles GET /storage/*
func (s *Server) ServeBlob(c *fiber.Ctx) error {
	path, err := url.PathUnescape(c.Params("*"))
	if err != nil {
		return models.RespondWithError(c, fiber.StatusNotFound, models.NewNotFoundError("Blob", c.Params("*")))
	}

	abs, contentType, err := s.blobService.ResolveForServing(c.UserContext(), path)
	if err != nil {
		return respondServiceError(c, err)
	}

	if err := c.SendFile(abs); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderCacheControl, "public, max-age=31536000, immutable")
	return nil
}

func (s *Server) toBlobResponse(blob *models.Blob) BlobResponse {
	u, _ := s.blobService.URL(blob.Path)
	return BlobResponse{
		Path:        blob.Path,
		URL:         u,
		ContentType: blob.ContentType,
		SizeBytes:   blob.SizeBytes,
	}
}

func toUploadStatus(session *models.UploadSession) UploadStatusResponse {
	return UploadStatusResponse{
		UploadID: session.ID,
		Path:     session.Path,
		Received: session.ReceivedBytes,
		Total:    session.TotalBytes,
		Status:   session.Status,
	}
}
