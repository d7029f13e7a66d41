// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"gorm.io/gorm"
)

// Auth providers recorded on a user.
const (
	ProviderPassword = "password"
	ProviderGoogle   = "google"
)

// User is an authenticated identity. DisplayName and AvatarURL are the
// fields copied onto every post and comment the user writes.
type User struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Email           string         `gorm:"uniqueIndex;not null" json:"email"`
	Password        string         `json:"-"`
	DisplayName     string         `gorm:"index" json:"display_name"`
	AvatarURL       string         `json:"avatar_url"`
	Provider        string         `gorm:"not null;default:password" json:"provider"`
	ProviderSubject string         `gorm:"index" json:"-"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}
