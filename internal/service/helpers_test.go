package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/studielog/logbook-api/internal/models"
	"github.com/studielog/logbook-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// fakeEntryRepo mimics the entry repository semantics in memory, including
// the live-entry uniqueness guarantee and case number assignment.
type fakeEntryRepo struct {
	mu          sync.Mutex
	entries     map[uint]models.LogbookEntry
	students    map[uint]models.Student
	courses     map[uint]models.Course
	assignments map[uint]models.Assignment
	nextID      uint

	updateErr     error
	markSyncedErr error
}

func newFakeEntryRepo() *fakeEntryRepo {
	return &fakeEntryRepo{
		entries:     map[uint]models.LogbookEntry{},
		students:    map[uint]models.Student{},
		courses:     map[uint]models.Course{},
		assignments: map[uint]models.Assignment{},
	}
}

func (f *fakeEntryRepo) seedCatalog(student models.Student, course models.Course, assignment models.Assignment) {
	f.students[student.ID] = student
	f.courses[course.ID] = course
	f.assignments[assignment.ID] = assignment
}

func (f *fakeEntryRepo) hydrate(entry models.LogbookEntry) models.LogbookEntry {
	entry.Student = f.students[entry.StudentID]
	entry.Course = f.courses[entry.CourseID]
	entry.Assignment = f.assignments[entry.AssignmentID]
	return entry
}

func (f *fakeEntryRepo) List(ctx context.Context, filter repository.EntryFilter) ([]models.LogbookEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.LogbookEntry
	for _, entry := range f.entries {
		if filter.StudentID != nil && entry.StudentID != *filter.StudentID {
			continue
		}
		if filter.CourseID != nil && entry.CourseID != *filter.CourseID {
			continue
		}
		if filter.AssignmentID != nil && entry.AssignmentID != *filter.AssignmentID {
			continue
		}
		if filter.Status != nil && entry.Status != *filter.Status {
			continue
		}
		out = append(out, f.hydrate(entry))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeEntryRepo) GetByID(ctx context.Context, id uint) (models.LogbookEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.entries[id]
	if !ok {
		return models.LogbookEntry{}, gorm.ErrRecordNotFound
	}
	return f.hydrate(entry), nil
}

func (f *fakeEntryRepo) LatestByStudentAndAssignment(ctx context.Context, studentID, assignmentID uint) (models.LogbookEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var latest models.LogbookEntry
	found := false
	for _, entry := range f.entries {
		if entry.StudentID != studentID || entry.AssignmentID != assignmentID {
			continue
		}
		if !found || entry.ID > latest.ID {
			latest = entry
			found = true
		}
	}
	if !found {
		return models.LogbookEntry{}, gorm.ErrRecordNotFound
	}
	return f.hydrate(latest), nil
}

func (f *fakeEntryRepo) FindLive(ctx context.Context, studentID, courseID, assignmentID uint) (models.LogbookEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, entry := range f.entries {
		if entry.StudentID == studentID && entry.CourseID == courseID && entry.AssignmentID == assignmentID {
			return f.hydrate(entry), nil
		}
	}
	return models.LogbookEntry{}, gorm.ErrRecordNotFound
}

func (f *fakeEntryRepo) Submit(ctx context.Context, entry *models.LogbookEntry, casePrefix string, replaceID *uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if replaceID != nil {
		delete(f.entries, *replaceID)
	}

	count := 0
	for _, existing := range f.entries {
		if existing.CourseID == entry.CourseID {
			count++
		}
		if existing.StudentID == entry.StudentID && existing.CourseID == entry.CourseID && existing.AssignmentID == entry.AssignmentID {
			return gorm.ErrDuplicatedKey
		}
	}

	f.nextID++
	entry.ID = f.nextID
	entry.CaseNumber = fmt.Sprintf("%s-%d", casePrefix, count+1)
	entry.CreatedAt = time.Now()
	f.entries[entry.ID] = *entry
	return nil
}

func (f *fakeEntryRepo) Update(ctx context.Context, entry *models.LogbookEntry) error {
	if f.updateErr != nil {
		return f.updateErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	stored := *entry
	stored.Student = models.Student{}
	stored.Course = models.Course{}
	stored.Assignment = models.Assignment{}
	f.entries[entry.ID] = stored
	return nil
}

func (f *fakeEntryRepo) ListPendingSync(ctx context.Context) ([]models.LogbookEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.LogbookEntry
	for _, entry := range f.entries {
		if entry.Status == models.EntryStatusGraded {
			out = append(out, f.hydrate(entry))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AssignmentID != out[j].AssignmentID {
			return out[i].AssignmentID < out[j].AssignmentID
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f *fakeEntryRepo) MarkSynced(ctx context.Context, ids []uint) error {
	if f.markSyncedErr != nil {
		return f.markSyncedErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, id := range ids {
		entry, ok := f.entries[id]
		if !ok {
			continue
		}
		entry.Status = models.EntryStatusSynced
		f.entries[id] = entry
	}
	return nil
}

type fakeStudentRepo struct {
	students map[string]models.Student
}

func (f *fakeStudentRepo) GetByID(ctx context.Context, id uint) (models.Student, error) {
	for _, student := range f.students {
		if student.ID == id {
			return student, nil
		}
	}
	return models.Student{}, gorm.ErrRecordNotFound
}

func (f *fakeStudentRepo) GetByExternalID(ctx context.Context, externalID string) (models.Student, error) {
	student, ok := f.students[externalID]
	if !ok {
		return models.Student{}, gorm.ErrRecordNotFound
	}
	return student, nil
}

func (f *fakeStudentRepo) Create(ctx context.Context, student *models.Student) error {
	f.students[student.ExternalID] = *student
	return nil
}

type fakeResolver struct {
	course     models.Course
	assignment models.Assignment
	courseErr  error
	assignErr  error
}

func (f *fakeResolver) ResolveCourse(ctx context.Context, externalID string) (models.Course, error) {
	if f.courseErr != nil {
		return models.Course{}, f.courseErr
	}
	return f.course, nil
}

func (f *fakeResolver) ResolveAssignment(ctx context.Context, course models.Course, externalID string) (models.Assignment, error) {
	if f.assignErr != nil {
		return models.Assignment{}, f.assignErr
	}
	return f.assignment, nil
}

type notifyCall struct {
	UserID  string
	Kind    string
	Message string
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (f *fakeNotifier) Notify(ctx context.Context, userID, kind, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, notifyCall{UserID: userID, Kind: kind, Message: message})
}

type fakeSyncer struct {
	err    error
	repo   *fakeEntryRepo
	synced []uint
}

func (f *fakeSyncer) SyncEntry(ctx context.Context, entry models.LogbookEntry) error {
	if f.err != nil {
		return f.err
	}
	f.synced = append(f.synced, entry.ID)
	if f.repo != nil {
		return f.repo.MarkSynced(ctx, []uint{entry.ID})
	}
	return nil
}
