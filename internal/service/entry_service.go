package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/studielog/logbook-api/internal/dto"
	"github.com/studielog/logbook-api/internal/models"
	"github.com/studielog/logbook-api/internal/observability"
	"github.com/studielog/logbook-api/internal/repository"
)

// ErrStudentNotFound indicates the student reference resolves to nothing.
var ErrStudentNotFound = errors.New("student not found")

// ErrEntryNotFound indicates a logbook entry could not be found.
var ErrEntryNotFound = errors.New("logbook entry not found")

// ErrEntryLocked indicates the prior entry is graded and resubmission has
// not been allowed by a teacher.
var ErrEntryLocked = errors.New("entry already graded and locked for resubmission")

// ErrDuplicatePending indicates an ungraded entry already exists for the
// student and assignment.
var ErrDuplicatePending = errors.New("an ungraded entry already exists for this assignment")

// ErrInvalidPayload indicates a request field failed semantic validation.
var ErrInvalidPayload = errors.New("invalid payload")

// GradingActor identifies the teacher or admin performing a grading action.
type GradingActor struct {
	ID   uint
	Role string
}

// Notifier delivers best-effort notifications. Implementations must never
// fail the calling workflow: errors are swallowed and logged internally.
type Notifier interface {
	Notify(ctx context.Context, userID, kind, message string)
}

// EntrySyncer pushes a single graded entry to the LMS and marks it synced.
type EntrySyncer interface {
	SyncEntry(ctx context.Context, entry models.LogbookEntry) error
}

// EntryService orchestrates the logbook entry lifecycle: submission and
// resubmission gating, grading, and the inline grade push.
type EntryService interface {
	Submit(ctx context.Context, payload dto.EntryCreateRequest) (dto.EntryCreateResponse, error)
	List(ctx context.Context, filter dto.EntryFilter) ([]dto.EntryResponse, error)
	Get(ctx context.Context, id uint) (dto.EntryResponse, error)
	AllowResubmission(ctx context.Context, entryID uint) (dto.EntryResponse, error)
	Grade(ctx context.Context, entryID uint, payload dto.EntryGradeRequest, actor GradingActor) (dto.EntryGradeResponse, error)
}

type entryService struct {
	entries   repository.EntryRepository
	students  repository.StudentRepository
	resolver  CatalogResolver
	notifier  Notifier
	syncer    EntrySyncer
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	now       func() time.Time
}

// NewEntryService constructs an EntryService instance.
func NewEntryService(entries repository.EntryRepository, students repository.StudentRepository, resolver CatalogResolver, notifier Notifier, syncer EntrySyncer, validate *validator.Validate, logger zerolog.Logger) EntryService {
	return &entryService{
		entries:   entries,
		students:  students,
		resolver:  resolver,
		notifier:  notifier,
		syncer:    syncer,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "entry_service").Logger(),
		now:       time.Now,
	}
}

func (s *entryService) Submit(ctx context.Context, payload dto.EntryCreateRequest) (dto.EntryCreateResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.EntryCreateResponse{}, err
	}

	workDate, err := time.Parse(time.RFC3339, payload.WorkCompletedDate)
	if err != nil {
		return dto.EntryCreateResponse{}, fmt.Errorf("%w: work_completed_date must be RFC3339", ErrInvalidPayload)
	}

	student, err := s.students.GetByExternalID(ctx, payload.StudentRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EntryCreateResponse{}, ErrStudentNotFound
		}
		return dto.EntryCreateResponse{}, err
	}

	course, err := s.resolver.ResolveCourse(ctx, payload.CourseRef)
	if err != nil {
		return dto.EntryCreateResponse{}, err
	}

	assignment, err := s.resolver.ResolveAssignment(ctx, course, payload.AssignmentRef)
	if err != nil {
		return dto.EntryCreateResponse{}, err
	}

	latest, err := s.entries.LatestByStudentAndAssignment(ctx, student.ID, assignment.ID)
	if err == nil {
		if latest.Locked() {
			return dto.EntryCreateResponse{}, ErrEntryLocked
		}
		if latest.Status == models.EntryStatusSubmitted {
			return dto.EntryCreateResponse{}, ErrDuplicatePending
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.EntryCreateResponse{}, err
	}

	var replaceID *uint
	live, err := s.entries.FindLive(ctx, student.ID, course.ID, assignment.ID)
	if err == nil {
		if !live.AllowResubmit {
			return dto.EntryCreateResponse{}, ErrDuplicatePending
		}
		// Accepted resubmission: the prior row is dropped, no history kept.
		id := live.ID
		replaceID = &id
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.EntryCreateResponse{}, err
	}

	mediaLinks, err := json.Marshal(payload.MediaLinks)
	if err != nil {
		return dto.EntryCreateResponse{}, fmt.Errorf("failed to encode media links: %w", err)
	}

	entry := models.LogbookEntry{
		StudentID:         student.ID,
		CourseID:          course.ID,
		AssignmentID:      assignment.ID,
		Status:            models.EntryStatusSubmitted,
		MediaLinks:        mediaLinks,
		WorkCompletedDate: workDate,
		EntryDate:         s.now(),
	}

	if err := s.entries.Submit(ctx, &entry, course.CasePrefix(), replaceID); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return dto.EntryCreateResponse{}, ErrDuplicatePending
		}
		return dto.EntryCreateResponse{}, err
	}

	created, err := s.entries.GetByID(ctx, entry.ID)
	if err != nil {
		return dto.EntryCreateResponse{}, err
	}

	observability.EntriesCreated().Inc()
	s.logger.Info().
		Uint("entry_id", created.ID).
		Str("case_number", created.CaseNumber).
		Bool("resubmission", replaceID != nil).
		Msg("logbook entry submitted")

	return dto.EntryCreateResponse{CaseNumber: created.CaseNumber, Entry: dto.NewEntryResponse(created)}, nil
}

func (s *entryService) List(ctx context.Context, filter dto.EntryFilter) ([]dto.EntryResponse, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, err
	}

	repoFilter := repository.EntryFilter{
		StudentID:    filter.StudentID,
		CourseID:     filter.CourseID,
		AssignmentID: filter.AssignmentID,
		Status:       filter.Status,
	}

	entries, err := s.entries.List(ctx, repoFilter)
	if err != nil {
		return nil, err
	}

	return dto.NewEntryResponseSlice(entries), nil
}

func (s *entryService) Get(ctx context.Context, id uint) (dto.EntryResponse, error) {
	entry, err := s.entries.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EntryResponse{}, ErrEntryNotFound
		}
		return dto.EntryResponse{}, err
	}

	return dto.NewEntryResponse(entry), nil
}

// AllowResubmission flips the resubmit flag; the entry status is untouched.
func (s *entryService) AllowResubmission(ctx context.Context, entryID uint) (dto.EntryResponse, error) {
	entry, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EntryResponse{}, ErrEntryNotFound
		}
		return dto.EntryResponse{}, err
	}

	entry.AllowResubmit = true
	if err := s.entries.Update(ctx, &entry); err != nil {
		return dto.EntryResponse{}, err
	}

	s.notifier.Notify(ctx, entry.Student.ExternalID, "resubmission",
		fmt.Sprintf("Resubmission enabled for %s", entry.CaseNumber))

	s.logger.Info().Uint("entry_id", entry.ID).Msg("resubmission allowed")

	return dto.NewEntryResponse(entry), nil
}

// Grade records grade, feedback and teacher media in a single write, emits a
// best-effort notification, then attempts the inline LMS push. An LMS failure
// degrades to partial success: the grade is already committed locally and the
// response reports the sync as pending.
func (s *entryService) Grade(ctx context.Context, entryID uint, payload dto.EntryGradeRequest, actor GradingActor) (dto.EntryGradeResponse, error) {
	tracer := otel.Tracer("github.com/studielog/logbook-api/internal/service/entry")
	ctx, span := tracer.Start(ctx, "entry.grade")
	span.SetAttributes(
		attribute.Int64("entry.id", int64(entryID)),
		attribute.Int64("entry.actor_id", int64(actor.ID)),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.EntryGradeResponse{}, err
	}

	entry, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "entry_not_found")
			return dto.EntryGradeResponse{}, ErrEntryNotFound
		}
		span.RecordError(err)
		return dto.EntryGradeResponse{}, err
	}

	grade := payload.Grade
	entry.Grade = &grade
	entry.Feedback = strings.TrimSpace(s.sanitizer.Sanitize(payload.Feedback))
	if payload.TeacherMediaLink != nil {
		entry.TeacherMediaLink = *payload.TeacherMediaLink
	}
	entry.Status = models.EntryStatusGraded

	if err := s.entries.Update(ctx, &entry); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "entry_update_failed")
		return dto.EntryGradeResponse{}, err
	}

	s.notifier.Notify(ctx, entry.Student.ExternalID, "graded",
		fmt.Sprintf("Your logbook entry %s was graded: %.0f", entry.CaseNumber, grade))

	span.SetAttributes(attribute.Float64("entry.grade", grade))

	if err := s.syncer.SyncEntry(ctx, entry); err != nil {
		// Partial success: the grade is persisted, the push retries on the
		// next sync run.
		s.logger.Warn().Err(err).Uint("entry_id", entry.ID).Msg("inline grade sync failed")
		span.RecordError(err)
		return dto.EntryGradeResponse{
			Entry:       dto.NewEntryResponse(entry),
			Synced:      false,
			SyncMessage: "grade saved locally, sync to LMS pending",
		}, nil
	}

	synced, err := s.entries.GetByID(ctx, entry.ID)
	if err != nil {
		return dto.EntryGradeResponse{}, err
	}

	s.logger.Info().Uint("entry_id", entry.ID).Float64("grade", grade).Msg("entry graded and synced")

	return dto.EntryGradeResponse{
		Entry:       dto.NewEntryResponse(synced),
		Synced:      true,
		SyncMessage: "grade saved and pushed to LMS",
	}, nil
}
