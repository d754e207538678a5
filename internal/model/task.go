package model

import "time"

// TaskSnapshot is the normalized view of a task page used by one sync pass.
type TaskSnapshot struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	DueDate       string    `json:"due,omitempty"` // raw ISO value, granularity preserved
	Done          bool      `json:"done"`
	Archived      bool      `json:"archived"`
	CollectionRef string    `json:"collectionRef,omitempty"`
	CreatedAt     time.Time `json:"created"`
}
