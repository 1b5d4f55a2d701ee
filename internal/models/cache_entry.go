package models

import "time"

// CacheEntry is a row of the SQL cache used when redis is not configured.
// The key length stays under MySQL's utf8mb4 index limit.
type CacheEntry struct {
	Key       string    `gorm:"primaryKey;size:191"`
	Value     []byte
	ExpiresAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (CacheEntry) TableName() string {
	return "cache"
}

// Expired reports whether the entry's TTL elapsed before now. Entries stored
// without a TTL never expire.
func (e CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}
