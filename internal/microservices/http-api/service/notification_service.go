package service

import (
	"context"
	"errors"

	"gitlab-insight/internal/microservices/http-api/models"
	"gitlab-insight/internal/microservices/http-api/repository"
	"gitlab-insight/internal/shared"
)

var ErrNotificationNotFound = errors.New("notification not found or already read")

const unreadLimit = 100

type NotificationService interface {
	GetUnread(ctx context.Context, userID string) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, userID string, notificationID int64) error
	MarkAllAsRead(ctx context.Context, userID string) (int64, error)
	Record(ctx context.Context, userIDs []string, n shared.Notification) error
}

type notificationService struct {
	repo repository.NotificationRepository
}

func NewNotificationService(repo repository.NotificationRepository) NotificationService {
	return &notificationService{repo: repo}
}

func (s *notificationService) GetUnread(ctx context.Context, userID string) ([]models.Notification, error) {
	return s.repo.GetUnreadByUser(ctx, userID, unreadLimit)
}

func (s *notificationService) MarkAsRead(ctx context.Context, userID string, notificationID int64) error {
	err := s.repo.MarkAsRead(ctx, userID, notificationID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotificationNotFound
	}
	return err
}

func (s *notificationService) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	return s.repo.MarkAllAsRead(ctx, userID)
}

// Record stores one inbox entry per recipient
func (s *notificationService) Record(ctx context.Context, userIDs []string, n shared.Notification) error {
	priority := n.Priority
	if priority == "" {
		priority = shared.PriorityMedium
	}

	rows := make([]models.Notification, 0, len(userIDs))
	seen := make(map[string]bool, len(userIDs))
	for _, userID := range userIDs {
		if userID == "" || seen[userID] {
			continue
		}
		seen[userID] = true
		rows = append(rows, models.Notification{
			UserID:   userID,
			Category: n.Category,
			Priority: priority,
			Message:  n.Message,
		})
	}
	return s.repo.CreateBatch(ctx, rows)
}
