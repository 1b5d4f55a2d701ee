package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ActionLog records an administrative action such as enabling a plugin.
type ActionLog struct {
	ID         string         `gorm:"primaryKey;type:uuid" json:"id"`
	UserID     *string        `gorm:"type:uuid;index" json:"user_id"`
	User       *User          `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Action     string         `gorm:"not null;index" json:"action"`
	EntityType string         `gorm:"size:64;index" json:"entity_type"`
	EntityID   string         `gorm:"size:191" json:"entity_id"`
	IPAddress  string         `json:"ip_address"`
	Data       datatypes.JSON `json:"data"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}

func (a *ActionLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = NewID()
	}
	return nil
}
