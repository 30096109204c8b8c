package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/xid"

	"github.com/amity-app/amity-server/internal/apperror"
	"github.com/amity-app/amity-server/internal/model"
	"github.com/amity-app/amity-server/internal/repository"
)

// NotificationDB is the notifications view over the shared pool.
type NotificationDB struct {
	conn *sql.DB
}

var _ repository.NotificationRepository = (*NotificationDB)(nil)

// Create appends a notification. The ledger is append-only and does no
// dedup — two identical events produce two rows.
func (db *NotificationDB) Create(ctx context.Context, n *model.Notification) error {
	n.ID = xid.New().String()
	n.CreatedAt = now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, type, title, message, related_id, is_read, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID,
		n.UserID,
		n.Type,
		n.Title,
		n.Message,
		n.RelatedID,
		n.IsRead,
		n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting notification: %w", err)
	}
	return nil
}

// GetByID retrieves a single notification.
func (db *NotificationDB) GetByID(ctx context.Context, id string) (*model.Notification, error) {
	var n model.Notification
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, type, title, message, related_id, is_read, created_at
		 FROM notifications WHERE id = ?`,
		id,
	).Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.RelatedID, &n.IsRead, &n.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("notification", id)
		}
		return nil, fmt.Errorf("sqlite: getting notification %s: %w", id, err)
	}
	return &n, nil
}

// ListForUser returns the user's notifications, newest first.
func (db *NotificationDB) ListForUser(ctx context.Context, userID string) ([]model.Notification, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, type, title, message, related_id, is_read, created_at
		 FROM notifications WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing notifications for %s: %w", userID, err)
	}
	defer rows.Close()

	var list []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.RelatedID, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning notification row: %w", err)
		}
		list = append(list, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating notifications: %w", err)
	}
	return list, nil
}

// MarkRead flips is_read to true. Idempotent; there is no way back to
// unread.
func (db *NotificationDB) MarkRead(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: marking notification %s read: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("notification", id)
	}
	return nil
}
