package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/amity-app/amity-server/internal/apperror"
	"github.com/amity-app/amity-server/internal/model"
	"github.com/amity-app/amity-server/internal/repository"
)

// NotificationService manages per-user notification feeds.
//
// The ledger is append-only with one state transition: unread → read.
// There is no dedup on append and no way back to unread. Consumers poll;
// no push machinery lives here.
type NotificationService struct {
	notifications repository.NotificationRepository
	logger        *slog.Logger
}

func NewNotificationService(notifications repository.NotificationRepository, logger *slog.Logger) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		logger:        logger,
	}
}

// Append inserts a new entry into userID's feed. RelatedID is an untyped
// back-reference for client navigation — never dereferenced here.
func (s *NotificationService) Append(ctx context.Context, userID string, typ model.NotificationType, title, message, relatedID string) (*model.Notification, error) {
	if userID == "" {
		return nil, apperror.ValidationFailed("userId", "user ID is required")
	}
	switch typ {
	case model.NotifyMatch, model.NotifyMissedCall, model.NotifySystem:
	default:
		return nil, apperror.ValidationFailed("type", "unknown notification type")
	}
	if strings.TrimSpace(title) == "" {
		return nil, apperror.ValidationFailed("title", "title is required")
	}

	n := &model.Notification{
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Message:   message,
		RelatedID: relatedID,
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		return nil, storeErr(err)
	}
	return n, nil
}

// ListForUser returns the user's feed, newest first.
func (s *NotificationService) ListForUser(ctx context.Context, userID string) ([]model.Notification, error) {
	if userID == "" {
		return nil, apperror.ValidationFailed("userId", "user ID is required")
	}
	list, err := s.notifications.ListForUser(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	return list, nil
}

// MarkRead flips the entry to read and returns it. Only the owner may
// mark; re-marking an already-read entry is a harmless no-op.
func (s *NotificationService) MarkRead(ctx context.Context, notificationID, userID string) (*model.Notification, error) {
	if notificationID == "" {
		return nil, apperror.ValidationFailed("id", "notification ID is required")
	}
	n, err := s.notifications.GetByID(ctx, notificationID)
	if err != nil {
		return nil, storeErr(err)
	}
	if n.UserID != userID {
		return nil, apperror.Forbidden("notification belongs to another user")
	}
	if !n.IsRead {
		if err := s.notifications.MarkRead(ctx, notificationID); err != nil {
			return nil, storeErr(err)
		}
		n.IsRead = true
	}
	return n, nil
}
