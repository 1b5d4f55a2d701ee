package models

import "gorm.io/gorm"

type Page struct {
	BaseModel

	Title       string `gorm:"size:255;not null" json:"title"`
	Slug        string `gorm:"size:191;not null;index" json:"slug"`
	Description string `gorm:"type:text" json:"description"`
	Content     string `gorm:"type:text;not null" json:"content"`
	IsEnabled   bool   `gorm:"default:true" json:"is_enabled"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
