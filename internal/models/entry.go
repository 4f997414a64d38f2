package models

import (
	"time"

	"gorm.io/datatypes"
)

// LogbookEntry is a single logbook submission tied to one student, course and
// assignment. The unique index keeps at most one live entry per triple; a
// conflicting insert surfaces as a duplicate-key error instead of a silent
// double row.
type LogbookEntry struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	CaseNumber        string         `gorm:"size:80;index" json:"case_number"`
	StudentID         uint           `gorm:"not null;uniqueIndex:idx_logbook_entries_live" json:"student_id"`
	CourseID          uint           `gorm:"not null;uniqueIndex:idx_logbook_entries_live" json:"course_id"`
	AssignmentID      uint           `gorm:"not null;uniqueIndex:idx_logbook_entries_live" json:"assignment_id"`
	Status            string         `gorm:"size:32;not null" json:"status"`
	AllowResubmit     bool           `gorm:"not null;default:false" json:"allow_resubmit"`
	Grade             *float64       `json:"grade"`
	Feedback          string         `gorm:"type:text" json:"feedback"`
	TeacherMediaLink  string         `gorm:"size:512" json:"teacher_media_link"`
	MediaLinks        datatypes.JSON `gorm:"type:json" json:"media_links"`
	WorkCompletedDate time.Time      `gorm:"not null" json:"work_completed_date"`
	EntryDate         time.Time      `gorm:"not null" json:"entry_date"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	Student           Student        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"student"`
	Course            Course         `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"course"`
	Assignment        Assignment     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assignment"`
}

const (
	// EntryStatusSubmitted indicates the entry awaits grading.
	EntryStatusSubmitted = "submitted"
	// EntryStatusGraded indicates a teacher recorded a grade locally.
	EntryStatusGraded = "graded"
	// EntryStatusSynced indicates the grade also reached the LMS.
	EntryStatusSynced = "synced"
)

// IsGraded reports whether a grade has been recorded, synced or not.
func (e LogbookEntry) IsGraded() bool {
	return e.Status == EntryStatusGraded || e.Status == EntryStatusSynced
}

// Locked reports whether the entry blocks further submissions for its
// student/assignment pair. Only an explicit teacher action unlocks it.
func (e LogbookEntry) Locked() bool {
	return e.IsGraded() && !e.AllowResubmit
}
