package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/studielog/logbook-api/internal/models"
)

// CourseRepository defines data operations for course cache rows.
type CourseRepository interface {
	GetByID(ctx context.Context, id uint) (models.Course, error)
	GetByExternalID(ctx context.Context, externalID string) (models.Course, error)
	Upsert(ctx context.Context, course *models.Course) error
}

type courseRepository struct {
	db *gorm.DB
}

// NewCourseRepository instantiates the repository.
func NewCourseRepository(db *gorm.DB) CourseRepository {
	return &courseRepository{db: db}
}

func (r *courseRepository) GetByID(ctx context.Context, id uint) (models.Course, error) {
	var course models.Course
	if err := r.db.WithContext(ctx).First(&course, id).Error; err != nil {
		return models.Course{}, err
	}

	return course, nil
}

func (r *courseRepository) GetByExternalID(ctx context.Context, externalID string) (models.Course, error) {
	var course models.Course
	if err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&course).Error; err != nil {
		return models.Course{}, err
	}

	return course, nil
}

// Upsert inserts the course or refreshes the cached name when the external
// id already exists.
func (r *courseRepository) Upsert(ctx context.Context, course *models.Course) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at"}),
		}).
		Create(course).Error
}
