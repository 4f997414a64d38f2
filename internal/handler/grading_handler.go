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

// GradingHandler manages teacher-facing grading endpoints.
type GradingHandler struct {
	service   service.EntryService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewGradingHandler builds a grading handler instance.
func NewGradingHandler(service service.EntryService, validator *validator.Validate, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group. Guards run
// before each grading route, keeping sibling student routes unaffected.
func (h *GradingHandler) Register(router fiber.Router, guards ...fiber.Handler) {
	router.Post("/:id/grade", guarded(guards, h.grade)...)
	router.Post("/:id/allow-resubmit", guarded(guards, h.allowResubmit)...)
}

func guarded(guards []fiber.Handler, handler fiber.Handler) []fiber.Handler {
	chain := make([]fiber.Handler, 0, len(guards)+1)
	chain = append(chain, guards...)
	return append(chain, handler)
}

func (h *GradingHandler) grade(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.EntryGradeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.Grade(c.Context(), id, payload, gradingActorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	message := "entry graded and synced"
	if !result.Synced {
		message = "entry graded, lms sync pending"
	}

	return utils.SendSuccess(c, message, result)
}

func (h *GradingHandler) allowResubmit(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	entry, err := h.service.AllowResubmission(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "resubmission enabled", entry)
}

func (h *GradingHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrEntryNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "entry not found")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
