package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/studielog/logbook-api/internal/dto"
	"github.com/studielog/logbook-api/internal/models"
	"github.com/studielog/logbook-api/internal/observability"
	"github.com/studielog/logbook-api/internal/repository"
)

// NotificationService persists notifications and fans them out best-effort
// over redis and NATS. Delivery and ordering are not guaranteed; callers of
// Notify never observe a failure.
type NotificationService interface {
	Notify(ctx context.Context, userID, kind, message string)
	Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
	List(ctx context.Context, userID string, limit, offset int) ([]dto.NotificationResponse, error)
	MarkRead(ctx context.Context, id uint, userID string) (dto.NotificationResponse, error)
}

type notificationService struct {
	repo         repository.NotificationRepository
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	validator    *validator.Validate
	sanitizer    *bluemonday.Policy
	logger       zerolog.Logger
	nodeID       string
}

type notificationEvent struct {
	Source       string                   `json:"source"`
	Notification dto.NotificationResponse `json:"notification"`
	SentAt       time.Time                `json:"sent_at"`
}

// NewNotificationService constructs a notification service. The redis client
// and NATS connection are optional; a nil value disables that fan-out path.
func NewNotificationService(repo repository.NotificationRepository, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, validate *validator.Validate, logger zerolog.Logger) NotificationService {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":notifications"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".notifications"
	}

	return &notificationService{
		repo:         repo,
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		validator:    validate,
		sanitizer:    bluemonday.StrictPolicy(),
		logger:       logger.With().Str("component", "notification_service").Logger(),
		nodeID:       uuid.NewString(),
	}
}

// Notify is the fire-and-forget entry point used by lifecycle operations.
// Failures are logged and swallowed so grading and resubmission never block
// on notification delivery.
func (s *notificationService) Notify(ctx context.Context, userID, kind, message string) {
	payload := dto.NotificationCreateRequest{UserID: userID, Type: kind, Message: message}
	if _, err := s.Publish(ctx, payload); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("notification dropped")
	}
}

func (s *notificationService) Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.NotificationResponse{}, err
	}

	cleanMessage := strings.TrimSpace(s.sanitizer.Sanitize(payload.Message))
	if cleanMessage == "" {
		return dto.NotificationResponse{}, errors.New("notification message empty after sanitization")
	}

	kind := payload.Type
	if kind == "" {
		kind = "generic"
	}

	model := models.Notification{
		UserID:  payload.UserID,
		Type:    kind,
		Message: cleanMessage,
	}

	if err := s.repo.Create(ctx, &model); err != nil {
		return dto.NotificationResponse{}, err
	}

	response := dto.NewNotificationResponse(model)
	if err := s.fanOut(ctx, response); err != nil {
		s.logger.Warn().Err(err).Msg("notification fan-out failed")
	}

	observability.NotificationsPublished().WithLabelValues(response.Type).Inc()

	return response, nil
}

func (s *notificationService) List(ctx context.Context, userID string, limit, offset int) ([]dto.NotificationResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user id is required")
	}

	notifications, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}

	return dto.NewNotificationResponseSlice(notifications), nil
}

func (s *notificationService) MarkRead(ctx context.Context, id uint, userID string) (dto.NotificationResponse, error) {
	notification, err := s.repo.MarkRead(ctx, id, userID)
	if err != nil {
		return dto.NotificationResponse{}, err
	}

	return dto.NewNotificationResponse(notification), nil
}

func (s *notificationService) fanOut(ctx context.Context, notification dto.NotificationResponse) error {
	if (s.redis == nil || s.redisChannel == "") && (s.nats == nil || s.natsSubject == "") {
		return nil
	}

	event := notificationEvent{
		Source:       s.nodeID,
		Notification: notification,
		SentAt:       time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisChannel != "" {
		if err := s.redis.Publish(ctx, s.redisChannel, payload).Err(); err != nil {
			return err
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}
