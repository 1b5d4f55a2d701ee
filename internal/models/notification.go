package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification levels understood by the admin panel bell.
const (
	NotificationInfo    = "info"
	NotificationSuccess = "success"
	NotificationWarning = "warning"
	NotificationDanger  = "danger"
)

// Notification is an admin panel message addressed to one user. It stays
// unread while ReadAt is nil.
type Notification struct {
	BaseModel

	UserID string         `gorm:"type:uuid;not null;index:idx_notifications_inbox,priority:1" json:"user_id"`
	Type   string         `gorm:"type:varchar(64);not null" json:"type"`
	Level  string         `gorm:"type:varchar(16);not null;default:'info'" json:"level"`
	Title  string         `gorm:"type:varchar(255);not null" json:"title"`
	Body   string         `gorm:"type:text" json:"body"`
	Link   string         `gorm:"type:varchar(255)" json:"link"`
	Data   datatypes.JSON `json:"data"`
	ReadAt *time.Time     `gorm:"index:idx_notifications_inbox,priority:2" json:"read_at"`
}

// Read reports whether the recipient has acknowledged the notification.
func (n Notification) Read() bool {
	return n.ReadAt != nil
}
