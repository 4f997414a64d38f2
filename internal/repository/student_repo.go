package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/studielog/logbook-api/internal/models"
)

// StudentRepository defines data operations for student cache rows.
type StudentRepository interface {
	GetByID(ctx context.Context, id uint) (models.Student, error)
	GetByExternalID(ctx context.Context, externalID string) (models.Student, error)
	Create(ctx context.Context, student *models.Student) error
}

type studentRepository struct {
	db *gorm.DB
}

// NewStudentRepository instantiates the repository.
func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &studentRepository{db: db}
}

func (r *studentRepository) GetByID(ctx context.Context, id uint) (models.Student, error) {
	var student models.Student
	if err := r.db.WithContext(ctx).First(&student, id).Error; err != nil {
		return models.Student{}, err
	}

	return student, nil
}

func (r *studentRepository) GetByExternalID(ctx context.Context, externalID string) (models.Student, error) {
	var student models.Student
	if err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&student).Error; err != nil {
		return models.Student{}, err
	}

	return student, nil
}

func (r *studentRepository) Create(ctx context.Context, student *models.Student) error {
	return r.db.WithContext(ctx).Create(student).Error
}
