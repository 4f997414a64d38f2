package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/studielog/logbook-api/internal/dto"
	"github.com/studielog/logbook-api/internal/service"
	"github.com/studielog/logbook-api/internal/utils"
)

// EntryHandler manages logbook entry endpoints for students.
type EntryHandler struct {
	service   service.EntryService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewEntryHandler builds an entry handler instance.
func NewEntryHandler(service service.EntryService, validator *validator.Validate, logger zerolog.Logger) *EntryHandler {
	return &EntryHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "entry_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *EntryHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Post("", h.create)
	router.Get("/:id", h.get)
}

func (h *EntryHandler) list(c *fiber.Ctx) error {
	filter := dto.EntryFilter{}
	if studentID, err := parseQueryUint(c, "student_id"); err == nil && studentID != nil {
		filter.StudentID = studentID
	}
	if courseID, err := parseQueryUint(c, "course_id"); err == nil && courseID != nil {
		filter.CourseID = courseID
	}
	if assignmentID, err := parseQueryUint(c, "assignment_id"); err == nil && assignmentID != nil {
		filter.AssignmentID = assignmentID
	}
	if status := c.Query("status"); status != "" {
		filter.Status = &status
	}

	entries, err := h.service.List(c.Context(), filter)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "entries retrieved", entries)
}

func (h *EntryHandler) create(c *fiber.Ctx) error {
	var payload dto.EntryCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	payload.StudentRef = userRefFromContext(c)
	if payload.StudentRef == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "missing subject")
	}

	entry, err := h.service.Submit(c.Context(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "entry submitted", entry)
}

func (h *EntryHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	entry, err := h.service.Get(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "entry retrieved", entry)
}

func (h *EntryHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrStudentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "student not found")
	case errors.Is(err, service.ErrAssignmentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "assignment not found")
	case errors.Is(err, service.ErrEntryNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "entry not found")
	case errors.Is(err, service.ErrEntryLocked):
		return utils.SendError(c, fiber.StatusLocked, "entry is graded and locked; ask your teacher to allow resubmission")
	case errors.Is(err, service.ErrDuplicatePending):
		return utils.SendError(c, fiber.StatusConflict, "an entry for this assignment is already awaiting grading")
	case errors.Is(err, service.ErrUpstreamUnavailable):
		return utils.SendError(c, fiber.StatusBadGateway, "learning management system unavailable, try again later")
	case errors.Is(err, service.ErrInvalidPayload):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
