package models

import (
	"time"

	"gorm.io/gorm"
)

// Post is one entry of the shared feed. Avatar and Username are captured
// from the author's identity when the post is written.
type Post struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"not null;index" json:"user_id"`
	Avatar    string         `json:"avatar"`
	Username  string         `gorm:"not null" json:"username"`
	Text      string         `gorm:"type:text" json:"text"`
	Image     string         `json:"image"`
	CreatedAt time.Time      `gorm:"index" json:"timestamp"`
	UpdatedAt time.Time      `json:"-"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
