package remote

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"meshi/internal/client"
)

// ChunkSize is the resumable upload chunk size.
const ChunkSize = 256 << 10

type blobResponse struct {
	Path        string `json:"path"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

type uploadStatus struct {
	UploadID string `json:"upload_id"`
	Path     string `json:"path"`
	Received int64  `json:"received"`
	Total    int64  `json:"total"`
	Status   string `json:"status"`
}

// Blobs implements client.BlobStore over /api/blobs.
type Blobs struct {
	t *transport
}

func newBlobs(t *transport) *Blobs {
	return &Blobs{t: t}
}

// Upload stores file at path in a single multipart request.
func (b *Blobs) Upload(ctx context.Context, path string, file client.File) error {
	res, err := b.t.r(ctx).
		SetFileReader("file", file.Name, bytes.NewReader(file.Data)).
		SetFormData(map[string]string{"path": path}).
		SetResult(&blobResponse{}).
		Post("/blobs")
	return check(res, err)
}

// UploadResumable opens an upload session and sends file in ChunkSize pieces.
// A chunk the server rejects with a conflict is retried from the offset the
// server reports.
func (b *Blobs) UploadResumable(ctx context.Context, path string, file client.File, observe client.UploadObserver) error {
	total := int64(len(file.Data))
	res, err := b.t.r(ctx).
		SetBody(map[string]any{"path": path, "content_type": file.ContentType, "size": total}).
		SetResult(&uploadStatus{}).
		Post("/blobs/uploads")
	if err := check(res, err); err != nil {
		return err
	}
	status := res.Result().(*uploadStatus)
	notify(observe, 0, total)

	offset := status.Received
	for offset < total {
		end := min(offset+ChunkSize, total)
		next, err := b.putChunk(ctx, status.UploadID, offset, file.Data[offset:end])
		if err != nil {
			// Resync once with the server's view before giving up.
			current, statErr := b.status(ctx, status.UploadID)
			if statErr != nil || current.Received == offset {
				return err
			}
			offset = current.Received
			continue
		}
		offset = next.Received
		notify(observe, offset, total)
	}

	res, err = b.t.r(ctx).
		SetPathParam("id", status.UploadID).
		SetResult(&blobResponse{}).
		Post("/blobs/uploads/{id}/complete")
	return check(res, err)
}

func notify(observe client.UploadObserver, sent, total int64) {
	if observe != nil {
		observe(sent, total)
	}
}

func (b *Blobs) putChunk(ctx context.Context, uploadID string, offset int64, chunk []byte) (*uploadStatus, error) {
	res, err := b.t.r(ctx).
		SetPathParam("id", uploadID).
		SetQueryParam("offset", strconv.FormatInt(offset, 10)).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(chunk).
		SetResult(&uploadStatus{}).
		Put("/blobs/uploads/{id}")
	if err := check(res, err); err != nil {
		return nil, err
	}
	return res.Result().(*uploadStatus), nil
}

func (b *Blobs) status(ctx context.Context, uploadID string) (*uploadStatus, error) {
	res, err := b.t.r(ctx).
		SetPathParam("id", uploadID).
		SetResult(&uploadStatus{}).
		Get("/blobs/uploads/{id}")
	if err := check(res, err); err != nil {
		return nil, err
	}
	return res.Result().(*uploadStatus), nil
}

// URL returns the public download URL of a stored path.
func (b *Blobs) URL(ctx context.Context, path string) (string, error) {
	type urlResponse struct {
		URL string `json:"url"`
	}
	res, err := b.t.r(ctx).
		SetQueryParam("path", path).
		SetResult(&urlResponse{}).
		Get("/blobs/url")
	if err := check(res, err); err != nil {
		return "", err
	}
	u := res.Result().(*urlResponse).URL
	if u == "" {
		return "", fmt.Errorf("no url for %s", path)
	}
	return u, nil
}
