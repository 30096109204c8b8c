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

// MessageDB is the messages view over the shared pool.
type MessageDB struct {
	conn *sql.DB
}

var _ repository.MessageRepository = (*MessageDB)(nil)

const messageColumns = `id, conversation_id, sender_id, content, kind, is_read, pinned, created_at`

func scanMessage(row interface{ Scan(...any) error }) (*model.Message, error) {
	var m model.Message
	err := row.Scan(
		&m.ID,
		&m.ConversationID,
		&m.SenderID,
		&m.Content,
		&m.Kind,
		&m.IsRead,
		&m.Pinned,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Create inserts a message. xid IDs are time-prefixed, so IDs sort in
// creation order — handy, though pagination cursors use created_at, not
// the ID.
func (db *MessageDB) Create(ctx context.Context, msg *model.Message) error {
	msg.ID = xid.New().String()
	msg.CreatedAt = now()
	if msg.Kind == "" {
		msg.Kind = model.KindText
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, content, kind, is_read, pinned, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID,
		msg.ConversationID,
		msg.SenderID,
		msg.Content,
		msg.Kind,
		msg.IsRead,
		msg.Pinned,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting message: %w", err)
	}
	return nil
}

// GetByID retrieves a single message.
func (db *MessageDB) GetByID(ctx context.Context, id string) (*model.Message, error) {
	m, err := scanMessage(db.conn.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("message", id)
		}
		return nil, fmt.Errorf("sqlite: getting message %s: %w", id, err)
	}
	return m, nil
}

// ListByConversation returns up to page.Limit messages, newest first,
// restricted to created_at strictly before the cursor when one is set.
//
// The descending index on (conversation_id, created_at) makes this a
// range scan. The service reverses the page into ascending order for
// display — querying DESC + reversing is what makes "the newest N" and
// "the N before cursor X" the same query shape.
func (db *MessageDB) ListByConversation(ctx context.Context, convID string, page repository.MessagePage) ([]model.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = ?`
	args := []any{convID}

	// The cursor is compound: timestamps are truncated to microseconds,
	// so two messages can tie on created_at, and xid IDs (time-ordered)
	// break the tie. A bare timestamp cursor is still honored for callers
	// that have no row ID.
	if page.Before != nil {
		if page.BeforeID != "" {
			query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
			args = append(args, utc(*page.Before), utc(*page.Before), page.BeforeID)
		} else {
			query += ` AND created_at < ?`
			args = append(args, utc(*page.Before))
		}
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, page.Limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing messages for %s: %w", convID, err)
	}
	defer rows.Close()

	msgs := make([]model.Message, 0, page.Limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning message row: %w", err)
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating messages: %w", err)
	}
	return msgs, nil
}

// CountUnread counts messages in the conversation that the viewer did not
// send and has not read. This is the unreadCount shown on conversation
// summaries.
func (db *MessageDB) CountUnread(ctx context.Context, convID, viewerID string) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages
		 WHERE conversation_id = ? AND sender_id != ? AND is_read = 0`,
		convID, viewerID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting unread in %s: %w", convID, err)
	}
	return count, nil
}

// MarkConversationRead flips is_read on every message the viewer did not
// send. One statement, so a concurrent CountUnread sees either the old or
// the new state, never a half-marked conversation.
func (db *MessageDB) MarkConversationRead(ctx context.Context, convID, viewerID string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE messages SET is_read = 1
		 WHERE conversation_id = ? AND sender_id != ? AND is_read = 0`,
		convID, viewerID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: marking %s read: %w", convID, err)
	}
	return nil
}

// SetPinned toggles the pin flag on a message.
func (db *MessageDB) SetPinned(ctx context.Context, id string, pinned bool) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE messages SET pinned = ? WHERE id = ?`, pinned, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: pinning message %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("message", id)
	}
	return nil
}

// AddReaction appends a reaction row. No dedup: the same user reacting
// with the same emoji twice produces two rows, by design.
func (db *MessageDB) AddReaction(ctx context.Context, reaction *model.Reaction) error {
	reaction.ID = xid.New().String()
	reaction.CreatedAt = now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO reactions (id, message_id, user_id, emoji, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		reaction.ID,
		reaction.MessageID,
		reaction.UserID,
		reaction.Emoji,
		reaction.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting reaction: %w", err)
	}
	return nil
}

// ListReactions returns a message's reactions in insertion order.
func (db *MessageDB) ListReactions(ctx context.Context, messageID string) ([]model.Reaction, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, message_id, user_id, emoji, created_at
		 FROM reactions WHERE message_id = ?
		 ORDER BY created_at, id`,
		messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing reactions for %s: %w", messageID, err)
	}
	defer rows.Close()

	var reactions []model.Reaction
	for rows.Next() {
		var re model.Reaction
		if err := rows.Scan(&re.ID, &re.MessageID, &re.UserID, &re.Emoji, &re.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning reaction row: %w", err)
		}
		reactions = append(reactions, re)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating reactions: %w", err)
	}
	return reactions, nil
}
