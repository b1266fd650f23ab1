package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edutrack/edutrack-api/internal/models"
	"github.com/edutrack/edutrack-api/internal/realtime"
	appErrors "github.com/edutrack/edutrack-api/pkg/errors"
	"github.com/edutrack/edutrack-api/pkg/jobs"
)

type notificationRepository interface {
	CreateBatch(ctx context.Context, notifications []models.Notification) error
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id, userID string) (bool, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

type realtimePublisher interface {
	NotifyUser(userID string, event realtime.Event)
}

// NotificationService is the single write path for notifications. Workflow
// services hand it a batch of recipient rows; it persists them in one insert
// and pushes the realtime delivery onto a background queue. A dead websocket
// never blocks or fails the originating request.
type NotificationService struct {
	repo      notificationRepository
	hub       realtimePublisher
	cache     *CacheService
	metrics   *MetricsService
	logger    *zap.Logger
	queue     *jobs.Queue
	unreadTTL time.Duration
}

// NotificationConfig sizes the fan-out worker pool.
type NotificationConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	UnreadTTL  time.Duration
}

// NewNotificationService constructs the service and its fan-out queue. Call
// Start before dispatching and Stop on shutdown.
func NewNotificationService(repo notificationRepository, hub realtimePublisher, cache *CacheService, metrics *MetricsService, logger *zap.Logger, cfg NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UnreadTTL <= 0 {
		cfg.UnreadTTL = time.Minute
	}
	s := &NotificationService{
		repo:      repo,
		hub:       hub,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
		unreadTTL: cfg.UnreadTTL,
	}
	s.queue = jobs.NewQueue("notification-fanout", s.handleFanout, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Dispatch persists the batch and schedules realtime delivery.
func (s *NotificationService) Dispatch(ctx context.Context, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	if err := s.repo.CreateBatch(ctx, notifications); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist notifications")
	}
	if s.metrics != nil {
		s.metrics.ObserveNotificationBatch(len(notifications))
	}
	for _, n := range notifications {
		s.invalidateUnread(ctx, n.UserID)
	}

	if s.queue != nil {
		if err := s.queue.Enqueue(jobs.Job{
			ID:      uuid.NewString(),
			Type:    "notification_fanout",
			Payload: notifications,
		}); err != nil {
			s.logger.Warn("failed to enqueue notification fan-out", zap.Error(err))
		}
	}
	return nil
}

// List returns a user's notifications with pagination metadata.
func (s *NotificationService) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, error) {
	notifications, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return notifications, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// UnreadCount returns the unread notification count, cached per user.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	key := unreadCountKey(userID)
	var cached int
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	if err := s.cache.Set(ctx, key, count, s.unreadTTL); err != nil {
		s.logger.Warn("failed to cache unread count", zap.Error(err))
	}
	return count, nil
}

// MarkRead marks a single notification read. Only the addressed user may do
// this; anyone else gets a not-found.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	updated, err := s.repo.MarkRead(ctx, id, userID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	if !updated {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	s.invalidateUnread(ctx, userID)
	return nil
}

// MarkAllRead marks every unread notification for the user.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	affected, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	s.invalidateUnread(ctx, userID)
	return affected, nil
}

// Start brings up the fan-out workers.
func (s *NotificationService) Start(ctx context.Context) {
	if s.queue != nil {
		s.queue.Start(ctx)
	}
}

// Stop drains the fan-out workers.
func (s *NotificationService) Stop() {
	if s.queue != nil {
		s.queue.Stop()
	}
}

func (s *NotificationService) invalidateUnread(ctx context.Context, userID string) {
	if err := s.cache.Invalidate(ctx, unreadCountKey(userID)); err != nil {
		s.logger.Warn("failed to invalidate unread count", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *NotificationService) handleFanout(ctx context.Context, job jobs.Job) error {
	notifications, ok := job.Payload.([]models.Notification)
	if !ok {
		return fmt.Errorf("unexpected fan-out payload %T", job.Payload)
	}
	if s.hub == nil {
		return nil
	}
	for _, n := range notifications {
		s.hub.NotifyUser(n.UserID, realtime.Event{Type: "notification", Payload: n})
	}
	return nil
}

func unreadCountKey(userID string) string {
	return "notifications:unread:" + userID
}
