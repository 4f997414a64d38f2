package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/studielog/logbook-api/internal/service"
	"github.com/studielog/logbook-api/internal/utils"
)

// NotificationHandler manages recipient-facing notification endpoints.
type NotificationHandler struct {
	service service.NotificationService
	logger  zerolog.Logger
}

// NewNotificationHandler builds a notification handler instance.
func NewNotificationHandler(service service.NotificationService, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		logger:  logger.With().Str("component", "notification_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *NotificationHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Patch("/:id/read", h.markRead)
}

func (h *NotificationHandler) list(c *fiber.Ctx) error {
	userRef := userRefFromContext(c)
	if userRef == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "missing subject")
	}

	limit := parseQueryInt(c, "limit")
	offset := parseQueryInt(c, "offset")

	notifications, err := h.service.List(c.Context(), userRef, limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list notifications")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}

	return utils.SendSuccess(c, "notifications retrieved", notifications)
}

func (h *NotificationHandler) markRead(c *fiber.Ctx) error {
	userRef := userRefFromContext(c)
	if userRef == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "missing subject")
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	notification, err := h.service.MarkRead(c.Context(), id, userRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "notification not found")
		}
		h.logger.Error().Err(err).Msg("failed to mark notification read")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}

	return utils.SendSuccess(c, "notification marked read", notification)
}
