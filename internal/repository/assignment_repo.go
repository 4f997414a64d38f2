package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/studielog/logbook-api/internal/models"
)

// AssignmentRepository defines data operations for assignment cache rows.
type AssignmentRepository interface {
	GetByID(ctx context.Context, id uint) (models.Assignment, error)
	GetByExternalID(ctx context.Context, externalID string) (models.Assignment, error)
	Upsert(ctx context.Context, assignment *models.Assignment) error
}

type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository instantiates the repository.
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) GetByID(ctx context.Context, id uint) (models.Assignment, error) {
	var assignment models.Assignment
	if err := r.db.WithContext(ctx).Preload("Course").First(&assignment, id).Error; err != nil {
		return models.Assignment{}, err
	}

	return assignment, nil
}

func (r *assignmentRepository) GetByExternalID(ctx context.Context, externalID string) (models.Assignment, error) {
	var assignment models.Assignment
	if err := r.db.WithContext(ctx).Preload("Course").Where("external_id = ?", externalID).First(&assignment).Error; err != nil {
		return models.Assignment{}, err
	}

	return assignment, nil
}

// Upsert inserts the assignment or refreshes cached metadata when the
// external id already exists.
func (r *assignmentRepository) Upsert(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"course_id", "name", "points_possible", "updated_at"}),
		}).
		Create(assignment).Error
}
