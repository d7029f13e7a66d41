package models

import "time"

// Blob folders.
const (
	BlobFolderAvatars = "avatars"
	BlobFolderImages  = "images"
)

// Upload session states.
const (
	UploadStatusOpen     = "open"
	UploadStatusComplete = "complete"
)

// Blob records a stored file. Blobs are never deleted.
type Blob struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Path        string    `gorm:"uniqueIndex;not null" json:"path"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	UserID      uint      `gorm:"index" json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// UploadSession tracks a resumable upload until it is completed.
type UploadSession struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	UserID        uint       `gorm:"not null;index" json:"user_id"`
	Path          string     `gorm:"not null" json:"path"`
	ContentType   string     `json:"content_type"`
	TotalBytes    int64      `json:"total_bytes"`
	ReceivedBytes int64      `json:"received_bytes"`
	Status        string     `gorm:"not null;default:open" json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}
