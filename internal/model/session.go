package model

import "time"

// SessionEntry is one key of the session/token store. Value holds opaque JSON.
type SessionEntry struct {
	Key       string     `gorm:"primaryKey;column:session_key"`
	Value     string     `gorm:"type:text"`
	ExpiresAt *time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the entry outlived its TTL at now.
func (e SessionEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}
