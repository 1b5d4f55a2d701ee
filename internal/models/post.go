package models

import (
	"time"

	"gorm.io/gorm"
)

type Post struct {
	BaseModel

	Title       string     `gorm:"size:255;not null" json:"title"`
	Slug        string     `gorm:"size:191;not null;index" json:"slug"`
	Description string     `gorm:"type:text" json:"description"`
	Content     string     `gorm:"type:text;not null" json:"content"`
	ImageURL    string     `json:"image_url"`
	AuthorID    *string    `gorm:"type:uuid;index" json:"author_id"`
	Author      *User      `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	IsPinned    bool       `gorm:"default:false" json:"is_pinned"`
	PublishedAt *time.Time `gorm:"index" json:"published_at"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// IsPublished reports whether the post is visible at the given instant.
func (p *Post) IsPublished(now time.Time) bool {
	return p.PublishedAt != nil && !p.PublishedAt.After(now)
}
