package models

import (
	"strings"
	"time"
)

// Course is a local cache row for an LMS course. It is upserted the first
// time an entry references a course unknown to the local store.
type Course struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ExternalID string    `gorm:"size:64;uniqueIndex;not null" json:"external_id"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CasePrefix derives the course portion of generated case numbers: the course
// name uppercased with runs of non-alphanumeric characters collapsed to dashes.
func (c Course) CasePrefix() string {
	upper := strings.ToUpper(strings.TrimSpace(c.Name))
	var b strings.Builder
	lastDash := true
	for _, r := range upper {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
