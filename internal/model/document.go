package model

import "time"

const (
	DocumentKindPage     = "page"
	DocumentKindDatabase = "database"
)

// Document is a page or database of the local document store. Properties
// (pages) or Schema (databases) are stored as JSON.
type Document struct {
	ID         string `gorm:"primaryKey"`
	Kind       string `gorm:"index"`
	ParentType string
	ParentID   string `gorm:"index"`
	Title      string `gorm:"index"`
	Archived   bool   `gorm:"default:false"`
	Properties string `gorm:"type:text"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
