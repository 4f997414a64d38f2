package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/studielog/logbook-api/internal/models"
)

// EntryFilter allows narrowing logbook entry queries.
type EntryFilter struct {
	StudentID    *uint
	CourseID     *uint
	AssignmentID *uint
	Status       *string
}

// EntryRepository defines data operations for logbook entries.
type EntryRepository interface {
	List(ctx context.Context, filter EntryFilter) ([]models.LogbookEntry, error)
	GetByID(ctx context.Context, id uint) (models.LogbookEntry, error)
	LatestByStudentAndAssignment(ctx context.Context, studentID, assignmentID uint) (models.LogbookEntry, error)
	FindLive(ctx context.Context, studentID, courseID, assignmentID uint) (models.LogbookEntry, error)
	Submit(ctx context.Context, entry *models.LogbookEntry, casePrefix string, replaceID *uint) error
	Update(ctx context.Context, entry *models.LogbookEntry) error
	ListPendingSync(ctx context.Context) ([]models.LogbookEntry, error)
	MarkSynced(ctx context.Context, ids []uint) error
}

type entryRepository struct {
	db *gorm.DB
}

// NewEntryRepository instantiates the repository.
func NewEntryRepository(db *gorm.DB) EntryRepository {
	return &entryRepository{db: db}
}

func (r *entryRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.LogbookEntry{}).
		Preload("Student").
		Preload("Course").
		Preload("Assignment")
}

func (r *entryRepository) List(ctx context.Context, filter EntryFilter) ([]models.LogbookEntry, error) {
	query := r.baseQuery(ctx)

	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}

	if filter.CourseID != nil {
		query = query.Where("course_id = ?", *filter.CourseID)
	}

	if filter.AssignmentID != nil {
		query = query.Where("assignment_id = ?", *filter.AssignmentID)
	}

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var entries []models.LogbookEntry
	if err := query.Order("created_at DESC").Find(&entries).Error; err != nil {
		return nil, err
	}

	return entries, nil
}

func (r *entryRepository) GetByID(ctx context.Context, id uint) (models.LogbookEntry, error) {
	var entry models.LogbookEntry
	if err := r.baseQuery(ctx).First(&entry, id).Error; err != nil {
		return models.LogbookEntry{}, err
	}

	return entry, nil
}

func (r *entryRepository) LatestByStudentAndAssignment(ctx context.Context, studentID, assignmentID uint) (models.LogbookEntry, error) {
	var entry models.LogbookEntry
	if err := r.baseQuery(ctx).
		Where("student_id = ?", studentID).
		Where("assignment_id = ?", assignmentID).
		Order("created_at DESC").
		First(&entry).Error; err != nil {
		return models.LogbookEntry{}, err
	}

	return entry, nil
}

func (r *entryRepository) FindLive(ctx context.Context, studentID, courseID, assignmentID uint) (models.LogbookEntry, error) {
	var entry models.LogbookEntry
	if err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Where("course_id = ?", courseID).
		Where("assignment_id = ?", assignmentID).
		First(&entry).Error; err != nil {
		return models.LogbookEntry{}, err
	}

	return entry, nil
}

// Submit inserts a new entry in one transaction: the replaced row (an
// accepted resubmission) is hard-deleted first, then the case number is
// derived from the pre-insert count of entries for the course. The unique
// index on (student, course, assignment) turns a concurrent duplicate into
// gorm.ErrDuplicatedKey for the caller to map.
func (r *entryRepository) Submit(ctx context.Context, entry *models.LogbookEntry, casePrefix string, replaceID *uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if replaceID != nil {
			if err := tx.Delete(&models.LogbookEntry{}, *replaceID).Error; err != nil {
				return err
			}
		}

		var count int64
		if err := tx.Model(&models.LogbookEntry{}).
			Where("course_id = ?", entry.CourseID).
			Count(&count).Error; err != nil {
			return err
		}

		entry.CaseNumber = fmt.Sprintf("%s-%d", casePrefix, count+1)

		return tx.Create(entry).Error
	})
}

func (r *entryRepository) Update(ctx context.Context, entry *models.LogbookEntry) error {
	return r.db.WithContext(ctx).Save(entry).Error
}

// ListPendingSync returns all graded-but-unsynced entries with the
// associations the sync job needs to build LMS payloads.
func (r *entryRepository) ListPendingSync(ctx context.Context) ([]models.LogbookEntry, error) {
	var entries []models.LogbookEntry
	if err := r.baseQuery(ctx).
		Where("status = ?", models.EntryStatusGraded).
		Order("assignment_id, created_at").
		Find(&entries).Error; err != nil {
		return nil, err
	}

	return entries, nil
}

func (r *entryRepository) MarkSynced(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).
		Model(&models.LogbookEntry{}).
		Where("id IN ?", ids).
		Update("status", models.EntryStatusSynced).Error
}
