package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/studielog/logbook-api/internal/config"
	"github.com/studielog/logbook-api/internal/handler"
	"github.com/studielog/logbook-api/internal/models"
	"github.com/studielog/logbook-api/internal/repository"
	"github.com/studielog/logbook-api/internal/router"
	"github.com/studielog/logbook-api/internal/service"
	"github.com/studielog/logbook-api/pkg/lms"
)

type testCatalog struct {
	courses     map[string]lms.Course
	assignments map[string][]lms.Assignment
	err         error
}

func (c *testCatalog) FetchCourse(ctx context.Context, externalID string) (lms.Course, error) {
	if c.err != nil {
		return lms.Course{}, c.err
	}
	course, ok := c.courses[externalID]
	if !ok {
		return lms.Course{}, errors.New("course missing upstream")
	}
	return course, nil
}

func (c *testCatalog) FetchAssignmentsForCourse(ctx context.Context, courseExternalID string) ([]lms.Assignment, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.assignments[courseExternalID], nil
}

type testPusher struct {
	err   error
	calls int
}

func (p *testPusher) PushGrades(ctx context.Context, assignmentExternalID string, grades []lms.GradeSubmission) error {
	p.calls++
	return p.err
}

type testEnv struct {
	app     *fiber.App
	db      *gorm.DB
	catalog *testCatalog
	pusher  *testPusher
}

func authStub() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if ref := c.Get("X-User-Ref"); ref != "" {
			c.Locals("user_ref", ref)
			if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
				c.Locals("user_id", uint(id))
			}
		}
		if role := c.Get("X-User-Role"); role != "" {
			c.Locals("user_role", role)
		}
		return c.Next()
	}
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Student{},
		&models.Course{},
		&models.Assignment{},
		&models.LogbookEntry{},
		&models.Notification{},
	))

	require.NoError(t, db.Create(&models.Student{ExternalID: "stu-100", Name: "Noor Driessen", Email: "noor@example.edu"}).Error)

	catalog := &testCatalog{
		courses: map[string]lms.Course{
			"crs-10": {ID: "crs-10", Name: "Anatomy 101"},
		},
		assignments: map[string][]lms.Assignment{
			"crs-10": {
				{ID: "asg-1", CourseID: "crs-10", Name: "Week 1", PointsPossible: 100},
			},
		},
	}
	pusher := &testPusher{}

	logger := zerolog.Nop()
	validate := validator.New()

	entryRepo := repository.NewEntryRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	notificationService := service.NewNotificationService(notificationRepo, nil, "logbook", nil, validate, logger)
	resolver := service.NewCatalogResolver(courseRepo, assignmentRepo, catalog, logger)
	gradeSyncService := service.NewGradeSyncService(entryRepo, pusher, logger)
	entryService := service.NewEntryService(entryRepo, studentRepo, resolver, notificationService, gradeSyncService, validate, logger)

	app := fiber.New()
	router.Register(app, router.Dependencies{
		Config:              config.Config{AppName: "Logbook API", AppEnv: "test"},
		EntryHandler:        handler.NewEntryHandler(entryService, validate, logger),
		GradingHandler:      handler.NewGradingHandler(entryService, validate, logger),
		SyncHandler:         handler.NewSyncHandler(gradeSyncService, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger),
		JWTMiddleware:       authStub(),
	})

	return &testEnv{app: app, db: db, catalog: catalog, pusher: pusher}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func (e *testEnv) request(t *testing.T, method, path, userRef, role string, body interface{}) (*http.Response, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userRef != "" {
		req.Header.Set("X-User-Ref", userRef)
	}
	if role != "" {
		req.Header.Set("X-User-Role", role)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env))

	return resp, env
}

func submitBody() map[string]interface{} {
	return map[string]interface{}{
		"course_ref":          "crs-10",
		"assignment_ref":      "asg-1",
		"work_completed_date": time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC).Format(time.RFC3339),
		"media_links":         []string{"https://media.example.edu/clip.mp4"},
	}
}

type createdEntry struct {
	CaseNumber string `json:"case_number"`
	Entry      struct {
		ID     uint   `json:"id"`
		Status string `json:"status"`
	} `json:"entry"`
}

func TestEntryLifecycleOverHTTP(t *testing.T) {
	env := setupTestEnv(t)

	// Submit.
	resp, env1 := env.request(t, http.MethodPost, "/api/v1/entries", "stu-100", "student", submitBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.True(t, env1.Success)

	var created createdEntry
	require.NoError(t, json.Unmarshal(env1.Data, &created))
	require.Equal(t, "ANATOMY-101-1", created.CaseNumber)
	require.Equal(t, models.EntryStatusSubmitted, created.Entry.Status)

	// Second submission for the same assignment conflicts.
	resp, _ = env.request(t, http.MethodPost, "/api/v1/entries", "stu-100", "student", submitBody())
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	// Students cannot grade.
	gradeBody := map[string]interface{}{"grade": 85.0, "feedback": "Well documented."}
	gradePath := fmt.Sprintf("/api/v1/entries/%d/grade", created.Entry.ID)
	resp, _ = env.request(t, http.MethodPost, gradePath, "stu-100", "student", gradeBody)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Teacher grades; the inline push succeeds so the entry ends up synced.
	resp, gradeEnv := env.request(t, http.MethodPost, gradePath, "7", "teacher", gradeBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var graded struct {
		Entry struct {
			Status string   `json:"status"`
			Grade  *float64 `json:"grade"`
		} `json:"entry"`
		Synced bool `json:"synced"`
	}
	require.NoError(t, json.Unmarshal(gradeEnv.Data, &graded))
	require.True(t, graded.Synced)
	require.Equal(t, models.EntryStatusSynced, graded.Entry.Status)
	require.NotNil(t, graded.Entry.Grade)
	require.Equal(t, 1, env.pusher.calls)

	// Graded entries lock further submissions.
	resp, _ = env.request(t, http.MethodPost, "/api/v1/entries", "stu-100", "student", submitBody())
	require.Equal(t, http.StatusLocked, resp.StatusCode)

	// Teacher allows resubmission.
	allowPath := fmt.Sprintf("/api/v1/entries/%d/allow-resubmit", created.Entry.ID)
	resp, _ = env.request(t, http.MethodPost, allowPath, "7", "teacher", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The resubmission replaces the old entry; the grade is gone.
	resp, env2 := env.request(t, http.MethodPost, "/api/v1/entries", "stu-100", "student", submitBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var resubmitted createdEntry
	require.NoError(t, json.Unmarshal(env2.Data, &resubmitted))
	require.Equal(t, models.EntryStatusSubmitted, resubmitted.Entry.Status)

	// Exactly one live row remains and it is the ungraded resubmission.
	resp, listEnv := env.request(t, http.MethodGet, "/api/v1/entries", "stu-100", "student", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entries []struct {
		Status string   `json:"status"`
		Grade  *float64 `json:"grade"`
	}
	require.NoError(t, json.Unmarshal(listEnv.Data, &entries))
	require.Len(t, entries, 1)
	require.Equal(t, models.EntryStatusSubmitted, entries[0].Status)
	require.Nil(t, entries[0].Grade)

	// The student was notified about grading and resubmission.
	resp, notifEnv := env.request(t, http.MethodGet, "/api/v1/notifications", "stu-100", "student", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var notifications []struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(notifEnv.Data, &notifications))
	require.Len(t, notifications, 2)
}

func TestSubmitWithoutSubjectIsUnauthorized(t *testing.T) {
	env := setupTestEnv(t)

	resp, _ := env.request(t, http.MethodPost, "/api/v1/entries", "", "", submitBody())
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSubmitUnknownStudentReturnsNotFound(t *testing.T) {
	env := setupTestEnv(t)

	resp, env1 := env.request(t, http.MethodPost, "/api/v1/entries", "stu-404", "student", submitBody())
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.False(t, env1.Success)
}

func TestSubmitUpstreamDownReturnsBadGateway(t *testing.T) {
	env := setupTestEnv(t)
	env.catalog.err = errors.New("connection refused")

	resp, env1 := env.request(t, http.MethodPost, "/api/v1/entries", "stu-100", "student", submitBody())
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Contains(t, env1.Message, "unavailable")
}

func TestGradeSyncFailureReportsPending(t *testing.T) {
	env := setupTestEnv(t)
	env.pusher.err = errors.New("lms rejected the batch")

	resp, env1 := env.request(t, http.MethodPost, "/api/v1/entries", "stu-100", "student", submitBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created createdEntry
	require.NoError(t, json.Unmarshal(env1.Data, &created))

	gradePath := fmt.Sprintf("/api/v1/entries/%d/grade", created.Entry.ID)
	resp, gradeEnv := env.request(t, http.MethodPost, gradePath, "7", "teacher", map[string]interface{}{"grade": 60.0})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var graded struct {
		Entry struct {
			Status string `json:"status"`
		} `json:"entry"`
		Synced      bool   `json:"synced"`
		SyncMessage string `json:"sync_message"`
	}
	require.NoError(t, json.Unmarshal(gradeEnv.Data, &graded))
	require.False(t, graded.Synced)
	require.Equal(t, models.EntryStatusGraded, graded.Entry.Status)
	require.Contains(t, graded.SyncMessage, "pending")

	// The manual sync run picks the entry up once the LMS recovers.
	env.pusher.err = nil
	resp, syncEnv := env.request(t, http.MethodPost, "/api/v1/sync/grades", "7", "teacher", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary struct {
		Pending       int `json:"pending"`
		EntriesSynced int `json:"entries_synced"`
		GroupsFailed  int `json:"groups_failed"`
	}
	require.NoError(t, json.Unmarshal(syncEnv.Data, &summary))
	require.Equal(t, 1, summary.Pending)
	require.Equal(t, 1, summary.EntriesSynced)
	require.Zero(t, summary.GroupsFailed)
}

func TestGradeValidationFailure(t *testing.T) {
	env := setupTestEnv(t)

	resp, env1 := env.request(t, http.MethodPost, "/api/v1/entries", "stu-100", "student", submitBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created createdEntry
	require.NoError(t, json.Unmarshal(env1.Data, &created))

	gradePath := fmt.Sprintf("/api/v1/entries/%d/grade", created.Entry.ID)
	resp, _ = env.request(t, http.MethodPost, gradePath, "7", "teacher", map[string]interface{}{"grade": 150.0})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMarkNotificationRead(t *testing.T) {
	env := setupTestEnv(t)

	resp, env1 := env.request(t, http.MethodPost, "/api/v1/entries", "stu-100", "student", submitBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created createdEntry
	require.NoError(t, json.Unmarshal(env1.Data, &created))

	gradePath := fmt.Sprintf("/api/v1/entries/%d/grade", created.Entry.ID)
	resp, _ = env.request(t, http.MethodPost, gradePath, "7", "teacher", map[string]interface{}{"grade": 90.0})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, notifEnv := env.request(t, http.MethodGet, "/api/v1/notifications", "stu-100", "student", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var notifications []struct {
		ID   uint `json:"id"`
		Read bool `json:"read"`
	}
	require.NoError(t, json.Unmarshal(notifEnv.Data, &notifications))
	require.Len(t, notifications, 1)
	require.False(t, notifications[0].Read)

	readPath := fmt.Sprintf("/api/v1/notifications/%d/read", notifications[0].ID)
	resp, readEnv := env.request(t, http.MethodPatch, readPath, "stu-100", "student", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var marked struct {
		Read bool `json:"read"`
	}
	require.NoError(t, json.Unmarshal(readEnv.Data, &marked))
	require.True(t, marked.Read)

	// Another user cannot flip someone else's notification.
	resp, _ = env.request(t, http.MethodPatch, readPath, "stu-999", "student", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
