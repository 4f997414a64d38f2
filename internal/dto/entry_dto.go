package dto

import (
	"encoding/json"
	"time"

	"github.com/studielog/logbook-api/internal/models"
)

// EntryCreateRequest describes a student submitting a logbook entry. The
// student reference comes from the auth context, never from the body.
type EntryCreateRequest struct {
	StudentRef        string   `json:"-" validate:"required"`
	CourseRef         string   `json:"course_ref" validate:"required"`
	AssignmentRef     string   `json:"assignment_ref" validate:"required"`
	WorkCompletedDate string   `json:"work_completed_date" validate:"required"`
	MediaLinks        []string `json:"media_links" validate:"omitempty,dive,required"`
}

// EntryCreateResponse returns the assigned case number alongside the entry.
type EntryCreateResponse struct {
	CaseNumber string        `json:"case_number"`
	Entry      EntryResponse `json:"entry"`
}

// EntryGradeRequest is the teacher grading payload.
type EntryGradeRequest struct {
	Grade            float64 `json:"grade" validate:"gte=0,lte=100"`
	Feedback         string  `json:"feedback" validate:"omitempty,max=4000"`
	TeacherMediaLink *string `json:"teacher_media_link" validate:"omitempty,url"`
}

// EntryGradeResponse reports the grading outcome, including whether the
// inline LMS push succeeded or is still pending.
type EntryGradeResponse struct {
	Entry       EntryResponse `json:"entry"`
	Synced      bool          `json:"synced"`
	SyncMessage string        `json:"sync_message"`
}

// EntryFilter describes query string filters for listing entries.
type EntryFilter struct {
	StudentID    *uint   `query:"student_id"`
	CourseID     *uint   `query:"course_id"`
	AssignmentID *uint   `query:"assignment_id"`
	Status       *string `query:"status" validate:"omitempty,oneof=submitted graded synced"`
}

// EntryResponse is returned to API clients when viewing logbook entries.
type EntryResponse struct {
	ID                uint           `json:"id"`
	CaseNumber        string         `json:"case_number"`
	StudentID         uint           `json:"student_id"`
	CourseID          uint           `json:"course_id"`
	AssignmentID      uint           `json:"assignment_id"`
	Status            string         `json:"status"`
	AllowResubmit     bool           `json:"allow_resubmit"`
	Grade             *float64       `json:"grade"`
	Feedback          string         `json:"feedback"`
	TeacherMediaLink  string         `json:"teacher_media_link"`
	MediaLinks        []string       `json:"media_links"`
	WorkCompletedDate time.Time      `json:"work_completed_date"`
	EntryDate         time.Time      `json:"entry_date"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	Student           StudentLite    `json:"student"`
	Course            CourseLite     `json:"course"`
	Assignment        AssignmentLite `json:"assignment"`
}

// StudentLite summarizes a student without exposing full profile data.
type StudentLite struct {
	ID         uint   `json:"id"`
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
}

// CourseLite summarizes a course in entry responses.
type CourseLite struct {
	ID         uint   `json:"id"`
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
}

// AssignmentLite summarizes an assignment in entry responses.
type AssignmentLite struct {
	ID         uint   `json:"id"`
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
}

// NewEntryResponse converts a LogbookEntry model into a DTO.
func NewEntryResponse(model models.LogbookEntry) EntryResponse {
	response := EntryResponse{
		ID:                model.ID,
		CaseNumber:        model.CaseNumber,
		StudentID:         model.StudentID,
		CourseID:          model.CourseID,
		AssignmentID:      model.AssignmentID,
		Status:            model.Status,
		AllowResubmit:     model.AllowResubmit,
		Grade:             model.Grade,
		Feedback:          model.Feedback,
		TeacherMediaLink:  model.TeacherMediaLink,
		MediaLinks:        decodeMediaLinks(model.MediaLinks),
		WorkCompletedDate: model.WorkCompletedDate,
		EntryDate:         model.EntryDate,
		CreatedAt:         model.CreatedAt,
		UpdatedAt:         model.UpdatedAt,
	}

	if model.Student.ID != 0 {
		response.Student = StudentLite{
			ID:         model.Student.ID,
			ExternalID: model.Student.ExternalID,
			Name:       model.Student.Name,
			Email:      model.Student.Email,
		}
	}

	if model.Course.ID != 0 {
		response.Course = CourseLite{
			ID:         model.Course.ID,
			ExternalID: model.Course.ExternalID,
			Name:       model.Course.Name,
		}
	}

	if model.Assignment.ID != 0 {
		response.Assignment = AssignmentLite{
			ID:         model.Assignment.ID,
			ExternalID: model.Assignment.ExternalID,
			Name:       model.Assignment.Name,
		}
	}

	return response
}

// NewEntryResponseSlice converts entry models into DTOs.
func NewEntryResponseSlice(entries []models.LogbookEntry) []EntryResponse {
	responses := make([]EntryResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, NewEntryResponse(entry))
	}

	return responses
}

func decodeMediaLinks(raw []byte) []string {
	if len(raw) == 0 {
		return []string{}
	}

	var links []string
	if err := json.Unmarshal(raw, &links); err != nil {
		return []string{}
	}

	return links
}
