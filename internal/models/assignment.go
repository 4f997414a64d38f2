package models

import "time"

// Assignment is a local cache row for an LMS assignment within a course.
type Assignment struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ExternalID     string    `gorm:"size:64;uniqueIndex;not null" json:"external_id"`
	CourseID       uint      `gorm:"index;not null" json:"course_id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	PointsPossible float64   `json:"points_possible"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Course         Course    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"course"`
}
