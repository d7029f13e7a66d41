package models

import "time"

// Comment belongs to exactly one post. Comments outlive their post: deleting
// a post leaves its comments in place.
type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"not null;index" json:"post_id"`
	UserID    uint      `gorm:"not null" json:"user_id"`
	Avatar    string    `json:"avatar"`
	Username  string    `gorm:"not null" json:"username"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time `gorm:"index" json:"timestamp"`
}
