package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/studielog/logbook-api/internal/models"
	"github.com/studielog/logbook-api/internal/repository"
	"github.com/studielog/logbook-api/pkg/lms"
)

// ErrUpstreamUnavailable indicates the LMS gateway failed while resolving a
// reference; the raw cause is logged server-side only.
var ErrUpstreamUnavailable = errors.New("learning management system unavailable")

// ErrAssignmentNotFound indicates the assignment reference does not exist
// locally or in the LMS.
var ErrAssignmentNotFound = errors.New("assignment not found")

// CourseCatalog fetches course and assignment metadata from the external LMS.
type CourseCatalog interface {
	FetchCourse(ctx context.Context, externalID string) (lms.Course, error)
	FetchAssignmentsForCourse(ctx context.Context, courseExternalID string) ([]lms.Assignment, error)
}

// CatalogResolver resolves course and assignment references cache-aside: the
// local row wins, a miss falls back to the LMS and upserts a cache row.
type CatalogResolver interface {
	ResolveCourse(ctx context.Context, externalID string) (models.Course, error)
	ResolveAssignment(ctx context.Context, course models.Course, externalID string) (models.Assignment, error)
}

type catalogResolver struct {
	courses     repository.CourseRepository
	assignments repository.AssignmentRepository
	catalog     CourseCatalog
	logger      zerolog.Logger
}

// NewCatalogResolver constructs a CatalogResolver instance.
func NewCatalogResolver(courses repository.CourseRepository, assignments repository.AssignmentRepository, catalog CourseCatalog, logger zerolog.Logger) CatalogResolver {
	return &catalogResolver{
		courses:     courses,
		assignments: assignments,
		catalog:     catalog,
		logger:      logger.With().Str("component", "catalog_resolver").Logger(),
	}
}

func (r *catalogResolver) ResolveCourse(ctx context.Context, externalID string) (models.Course, error) {
	course, err := r.courses.GetByExternalID(ctx, externalID)
	if err == nil {
		return course, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Course{}, err
	}

	remote, err := r.catalog.FetchCourse(ctx, externalID)
	if err != nil {
		r.logger.Warn().Err(err).Str("course_ref", externalID).Msg("course fetch from lms failed")
		return models.Course{}, ErrUpstreamUnavailable
	}

	cached := models.Course{ExternalID: remote.ID, Name: remote.Name}
	if err := r.courses.Upsert(ctx, &cached); err != nil {
		return models.Course{}, err
	}

	r.logger.Info().Str("course_ref", externalID).Msg("course cached from lms")

	return r.courses.GetByExternalID(ctx, externalID)
}

func (r *catalogResolver) ResolveAssignment(ctx context.Context, course models.Course, externalID string) (models.Assignment, error) {
	assignment, err := r.assignments.GetByExternalID(ctx, externalID)
	if err == nil {
		return assignment, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Assignment{}, err
	}

	remote, err := r.catalog.FetchAssignmentsForCourse(ctx, course.ExternalID)
	if err != nil {
		r.logger.Warn().Err(err).Str("course_ref", course.ExternalID).Msg("assignment fetch from lms failed")
		return models.Assignment{}, ErrUpstreamUnavailable
	}

	for _, item := range remote {
		cached := models.Assignment{
			ExternalID:     item.ID,
			CourseID:       course.ID,
			Name:           item.Name,
			PointsPossible: item.PointsPossible,
		}
		if err := r.assignments.Upsert(ctx, &cached); err != nil {
			return models.Assignment{}, err
		}
	}

	assignment, err = r.assignments.GetByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, ErrAssignmentNotFound
		}
		return models.Assignment{}, err
	}

	return assignment, nil
}
