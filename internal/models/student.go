package models

import "time"

// Student mirrors the LMS user record for students allowed to write logbook
// entries. Rows are provisioned ahead of time; submission does not create them.
type Student struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ExternalID string    `gorm:"size:64;uniqueIndex;not null" json:"external_id"`
	Name       string    `gorm:"size:255" json:"name"`
	Email      string    `gorm:"size:255;index" json:"email"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
