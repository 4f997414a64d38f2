package models

import "time"

// Notification is an insert-only row targeted at a single recipient. Writers
// treat delivery as best effort; only the recipient flips the read flag.
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:64;index;not null" json:"user_id"`
	Type      string    `gorm:"size:64" json:"type"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Read      bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
