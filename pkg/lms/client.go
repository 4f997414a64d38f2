package lms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultTimeout = 10 * time.Second

// gradeWorkflowState is the fixed workflow marker attached to every pushed
// grade; the LMS treats the write as last-write-wins per (assignment, user).
const gradeWorkflowState = "graded"

// Config contains the credentials required to talk to the LMS.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client calls the external learning management system over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     zerolog.Logger
}

// Course is the LMS representation of a course.
type Course struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Assignment is the LMS representation of an assignment within a course.
type Assignment struct {
	ID             string  `json:"id"`
	CourseID       string  `json:"course_id"`
	Name           string  `json:"name"`
	PointsPossible float64 `json:"points_possible"`
}

// GradeSubmission is one record in a batch grade push.
type GradeSubmission struct {
	UserID        string  `json:"user_id"`
	Grade         float64 `json:"grade"`
	WorkflowState string  `json:"workflow_state"`
}

type apiError struct {
	Message string `json:"message"`
}

// New constructs an LMS client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" || cfg.Token == "" {
		return nil, fmt.Errorf("lms base url and api token must be provided")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.Token,
		logger:     logger.With().Str("component", "lms_client").Logger(),
	}, nil
}

// FetchCourse retrieves a single course by its LMS identifier.
func (c *Client) FetchCourse(ctx context.Context, externalID string) (Course, error) {
	var course Course
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/courses/%s", externalID), nil, &course); err != nil {
		return Course{}, err
	}

	return course, nil
}

// FetchAssignmentsForCourse retrieves all assignments of a course.
func (c *Client) FetchAssignmentsForCourse(ctx context.Context, courseExternalID string) ([]Assignment, error) {
	var assignments []Assignment
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/courses/%s/assignments", courseExternalID), nil, &assignments); err != nil {
		return nil, err
	}

	return assignments, nil
}

// PushGrades submits one batch of grades for an assignment. The LMS applies
// each record last-write-wins, so re-pushing an already accepted batch is
// harmless.
func (c *Client) PushGrades(ctx context.Context, assignmentExternalID string, grades []GradeSubmission) error {
	if len(grades) == 0 {
		return nil
	}

	for i := range grades {
		if grades[i].WorkflowState == "" {
			grades[i].WorkflowState = gradeWorkflowState
		}
	}

	payload := map[string]interface{}{"grades": grades}

	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/assignments/%s/grades", assignmentExternalID), payload, nil); err != nil {
		return err
	}

	c.logger.Debug().
		Str("assignment_id", assignmentExternalID).
		Int("grades", len(grades)).
		Msg("grade batch accepted by lms")

	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode lms request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build lms request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("lms request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("lms responded %s: %s", resp.Status, errorMessage(resp.Body))
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode lms response: %w", err)
	}

	return nil
}

func errorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 2048))
	if err != nil || len(raw) == 0 {
		return "no error detail"
	}

	var parsed apiError
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}

	return strings.TrimSpace(string(raw))
}
