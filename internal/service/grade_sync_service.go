package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/studielog/logbook-api/internal/dto"
	"github.com/studielog/logbook-api/internal/models"
	"github.com/studielog/logbook-api/internal/observability"
	"github.com/studielog/logbook-api/internal/repository"
	"github.com/studielog/logbook-api/pkg/lms"
)

// GradePusher submits one batch of grades per assignment to the LMS.
type GradePusher interface {
	PushGrades(ctx context.Context, assignmentExternalID string, grades []lms.GradeSubmission) error
}

// GradeSyncService pushes graded-but-unsynced entries to the LMS. Delivery is
// at-least-once: a crash between the LMS accepting a batch and the local
// status update re-pushes the same grades on the next run, which the LMS
// absorbs as a last-write-wins overwrite.
type GradeSyncService interface {
	SyncPendingGrades(ctx context.Context) (dto.SyncSummaryResponse, error)
	SyncEntry(ctx context.Context, entry models.LogbookEntry) error
	Start(ctx context.Context, interval time.Duration)
}

type gradeSyncService struct {
	entries repository.EntryRepository
	pusher  GradePusher
	logger  zerolog.Logger
	now     func() time.Time
}

// NewGradeSyncService constructs a GradeSyncService instance.
func NewGradeSyncService(entries repository.EntryRepository, pusher GradePusher, logger zerolog.Logger) GradeSyncService {
	return &gradeSyncService{
		entries: entries,
		pusher:  pusher,
		logger:  logger.With().Str("component", "grade_sync_service").Logger(),
		now:     time.Now,
	}
}

// SyncPendingGrades batches pending entries by assignment and submits one LMS
// call per group. A failing group is skipped and its entries stay graded;
// remaining groups still run.
func (s *gradeSyncService) SyncPendingGrades(ctx context.Context) (dto.SyncSummaryResponse, error) {
	tracer := otel.Tracer("github.com/studielog/logbook-api/internal/service/grade_sync")
	ctx, span := tracer.Start(ctx, "grade_sync.run")
	defer span.End()

	summary := dto.SyncSummaryResponse{StartedAt: s.now()}

	pending, err := s.entries.ListPendingSync(ctx)
	if err != nil {
		span.RecordError(err)
		return summary, err
	}

	summary.Pending = len(pending)

	groups := make(map[uint][]models.LogbookEntry)
	for _, entry := range pending {
		groups[entry.AssignmentID] = append(groups[entry.AssignmentID], entry)
	}

	assignmentIDs := make([]uint, 0, len(groups))
	for id := range groups {
		assignmentIDs = append(assignmentIDs, id)
	}
	sort.Slice(assignmentIDs, func(i, j int) bool { return assignmentIDs[i] < assignmentIDs[j] })

	for _, assignmentID := range assignmentIDs {
		batch := groups[assignmentID]
		summary.Groups = append(summary.Groups, s.syncGroup(ctx, assignmentID, batch, &summary))
	}

	summary.FinishedAt = s.now()
	span.SetAttributes(
		attribute.Int("grade_sync.pending", summary.Pending),
		attribute.Int("grade_sync.synced", summary.EntriesSynced),
		attribute.Int("grade_sync.failed_groups", summary.GroupsFailed),
	)

	s.logger.Info().
		Int("pending", summary.Pending).
		Int("synced", summary.EntriesSynced).
		Int("failed_groups", summary.GroupsFailed).
		Msg("grade sync run finished")

	return summary, nil
}

func (s *gradeSyncService) syncGroup(ctx context.Context, assignmentID uint, batch []models.LogbookEntry, summary *dto.SyncSummaryResponse) dto.SyncGroupResult {
	assignment := batch[0].Assignment
	result := dto.SyncGroupResult{
		AssignmentID: assignmentID,
		ExternalID:   assignment.ExternalID,
		Entries:      len(batch),
	}

	grades := make([]lms.GradeSubmission, 0, len(batch))
	ids := make([]uint, 0, len(batch))
	for _, entry := range batch {
		if entry.Grade == nil {
			continue
		}
		grades = append(grades, lms.GradeSubmission{
			UserID: entry.Student.ExternalID,
			Grade:  *entry.Grade,
		})
		ids = append(ids, entry.ID)
	}

	if err := s.pusher.PushGrades(ctx, assignment.ExternalID, grades); err != nil {
		s.logger.Error().Err(err).
			Uint("assignment_id", assignmentID).
			Int("entries", len(batch)).
			Msg("grade push rejected, group skipped")
		result.Error = "lms push failed"
		summary.GroupsFailed++
		observability.GradeSyncBatches().WithLabelValues("failed").Inc()
		return result
	}

	if err := s.entries.MarkSynced(ctx, ids); err != nil {
		// The LMS accepted the batch; these entries stay graded and will be
		// re-pushed next run.
		s.logger.Error().Err(err).Uint("assignment_id", assignmentID).Msg("failed to mark group synced")
		result.Error = "status update failed"
		summary.GroupsFailed++
		observability.GradeSyncBatches().WithLabelValues("failed").Inc()
		return result
	}

	result.Synced = true
	summary.EntriesSynced += len(ids)
	observability.GradeSyncBatches().WithLabelValues("success").Inc()
	observability.GradeSyncEntries().Add(float64(len(ids)))

	return result
}

// SyncEntry pushes a single graded entry and marks it synced. Used for the
// inline push right after grading.
func (s *gradeSyncService) SyncEntry(ctx context.Context, entry models.LogbookEntry) error {
	if entry.Grade == nil {
		return errors.New("entry has no grade to sync")
	}

	if entry.Assignment.ExternalID == "" || entry.Student.ExternalID == "" {
		loaded, err := s.entries.GetByID(ctx, entry.ID)
		if err != nil {
			return err
		}
		entry = loaded
	}

	grades := []lms.GradeSubmission{{UserID: entry.Student.ExternalID, Grade: *entry.Grade}}
	if err := s.pusher.PushGrades(ctx, entry.Assignment.ExternalID, grades); err != nil {
		return fmt.Errorf("grade push failed: %w", err)
	}

	return s.entries.MarkSynced(ctx, []uint{entry.ID})
}

// Start launches the periodic sync runner. Runs execute sequentially in a
// single goroutine, so ticks never overlap within one process; concurrent
// runs across replicas remain safe because the LMS write is last-write-wins.
func (s *gradeSyncService) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.logger.Info().Msg("periodic grade sync disabled")
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.SyncPendingGrades(ctx); err != nil {
					s.logger.Error().Err(err).Msg("scheduled grade sync failed")
				}
			}
		}
	}()
}
