package model

import "time"

// SyncRun is the audit record of one orchestrator pass.
type SyncRun struct {
	ID               uint `gorm:"primaryKey"`
	Trigger          string
	CollectionFilter string
	Processed        int
	Created          int
	Truncated        bool
	Note             string
	Details          string `gorm:"type:text"` // JSON list of per-rule outcomes
	StartedAt        time.Time
	FinishedAt       time.Time
	CreatedAt        time.Time
}
