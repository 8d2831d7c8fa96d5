package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/bfm-api/internal/models"
	appErrors "github.com/noah-isme/bfm-api/pkg/errors"
	"github.com/noah-isme/bfm-api/pkg/jobs"
)

type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
}

// NotificationService persists notifications and dispatches delivery through
// a background queue. Delivery is fire-and-forget: a failed enqueue or
// insert never propagates to the operation that triggered it.
type NotificationService struct {
	repo   notificationStore
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationService constructs the service. The queue may be nil, in
// which case notifications are persisted synchronously.
func NewNotificationService(repo notificationStore, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{repo: repo, logger: logger}
	return s
}

// StartQueue builds and starts the delivery queue.
func (s *NotificationService) StartQueue(ctx context.Context, workers int) {
	s.queue = jobs.NewQueue("notifications", s.deliver, jobs.QueueConfig{
		Workers: workers,
		Logger:  s.logger,
	})
	s.queue.Start(ctx)
}

// StopQueue drains the delivery queue.
func (s *NotificationService) StopQueue() {
	if s.queue != nil {
		s.queue.Stop()
	}
}

// Notify persists and dispatches one notification. Implements the approval
// engine's Notifier contract.
func (s *NotificationService) Notify(ctx context.Context, userID string, kind models.NotificationType, title, message, entityRef string, priority models.NotificationPriority) {
	n := &models.Notification{
		UserID:    userID,
		Type:      kind,
		Title:     title,
		Message:   message,
		EntityRef: entityRef,
		Priority:  priority,
	}
	if s.queue == nil {
		if err := s.repo.Create(ctx, n); err != nil {
			s.logger.Warn("failed to persist notification", zap.String("user_id", userID), zap.Error(err))
		}
		return
	}
	if err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: string(kind), Payload: n}); err != nil {
		s.logger.Warn("failed to enqueue notification", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(*models.Notification)
	if !ok {
		s.logger.Error("notification job carried unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	deliveryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.repo.Create(deliveryCtx, n)
}

// ListForUser returns a user's notifications, optionally unread only.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	notifications, err := s.repo.ListByUser(ctx, userID, unreadOnly, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return notifications, nil
}

// MarkRead flags one notification as read. The user scope prevents marking
// another user's notifications.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	return nil
}
