package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/studielog/logbook-api/internal/service"
	"github.com/studielog/logbook-api/internal/utils"
)

// SyncHandler exposes the manual grade sync trigger.
type SyncHandler struct {
	service service.GradeSyncService
	logger  zerolog.Logger
}

// NewSyncHandler builds a sync handler instance.
func NewSyncHandler(service service.GradeSyncService, logger zerolog.Logger) *SyncHandler {
	return &SyncHandler{
		service: service,
		logger:  logger.With().Str("component", "sync_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *SyncHandler) Register(router fiber.Router) {
	router.Post("/grades", h.run)
}

func (h *SyncHandler) run(c *fiber.Ctx) error {
	summary, err := h.service.SyncPendingGrades(c.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("grade sync run failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "grade sync failed")
	}

	return utils.SendSuccess(c, "grade sync completed", summary)
}
