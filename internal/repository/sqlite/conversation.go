package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/amity-app/amity-server/internal/apperror"
	"github.com/amity-app/amity-server/internal/model"
	"github.com/amity-app/amity-server/internal/repository"
)

// ConversationDB is the conversations view over the shared pool.
type ConversationDB struct {
	conn *sql.DB
}

var _ repository.ConversationRepository = (*ConversationDB)(nil)

// Create inserts a conversation and its participant rows.
//
// The participant set lives in its own table (conversation_participants)
// rather than a serialized column, so "conversations for user X" is an
// indexed lookup instead of a scan. The position column preserves the
// caller's ordering — the participant set is ordered as well as unique.
//
// Both inserts run inside one transaction: a conversation without its
// participant rows would be invisible to everyone, including its creator.
func (db *ConversationDB) Create(ctx context.Context, conv *model.Conversation) error {
	conv.ID = xid.New().String()
	ts := now()
	conv.CreatedAt = ts
	conv.UpdatedAt = ts

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning conversation tx: %w", err)
	}
	defer tx.Rollback() // no-op after a successful Commit

	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversations (id, name, is_group, created_by, last_message_id, deleted, created_at, updated_at)
		 VALUES (?, ?, ?, ?, '', 0, ?, ?)`,
		conv.ID,
		conv.Name,
		conv.IsGroup,
		conv.CreatedBy,
		conv.CreatedAt,
		conv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting conversation: %w", err)
	}

	for i, userID := range conv.Participants {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO conversation_participants (conversation_id, user_id, position)
			 VALUES (?, ?, ?)`,
			conv.ID, userID, i,
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting participant %s: %w", userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing conversation: %w", err)
	}
	return nil
}

// GetByID retrieves a conversation, participants included.
func (db *ConversationDB) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, is_group, created_by, last_message_id, deleted, created_at, updated_at
		 FROM conversations WHERE id = ?`,
		id,
	).Scan(
		&conv.ID,
		&conv.Name,
		&conv.IsGroup,
		&conv.CreatedBy,
		&conv.LastMessageID,
		&conv.Deleted,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("conversation", id)
		}
		return nil, fmt.Errorf("sqlite: getting conversation %s: %w", id, err)
	}

	if err := db.loadParticipants(ctx, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListForUser returns non-deleted conversations the user participates in,
// newest-updated first. The read is a snapshot — concurrent writers may or
// may not be reflected, which is fine for a listing.
func (db *ConversationDB) ListForUser(ctx context.Context, userID string, limit int) ([]model.Conversation, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT c.id, c.name, c.is_group, c.created_by, c.last_message_id, c.deleted, c.created_at, c.updated_at
		 FROM conversations c
		 JOIN conversation_participants p ON p.conversation_id = c.id
		 WHERE p.user_id = ? AND c.deleted = 0
		 ORDER BY c.updated_at DESC
		 LIMIT ?`,
		userID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing conversations for %s: %w", userID, err)
	}
	defer rows.Close()

	convs := make([]model.Conversation, 0, limit)
	for rows.Next() {
		var c model.Conversation
		if err := rows.Scan(
			&c.ID, &c.Name, &c.IsGroup, &c.CreatedBy,
			&c.LastMessageID, &c.Deleted, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning conversation row: %w", err)
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating conversations: %w", err)
	}

	for i := range convs {
		if err := db.loadParticipants(ctx, &convs[i]); err != nil {
			return nil, err
		}
	}
	return convs, nil
}

// SetLastMessage points the conversation at its newest message and bumps
// updated_at. The message row must already be committed — this ordering is
// what lets any reader that sees the pointer fetch the message it names.
func (db *ConversationDB) SetLastMessage(ctx context.Context, convID, messageID string, at time.Time) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE conversations SET last_message_id = ?, updated_at = ? WHERE id = ?`,
		messageID, utc(at), convID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting last message on %s: %w", convID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("conversation", convID)
	}
	return nil
}

func (db *ConversationDB) loadParticipants(ctx context.Context, conv *model.Conversation) error {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_id FROM conversation_participants
		 WHERE conversation_id = ?
		 ORDER BY position`,
		conv.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: loading participants for %s: %w", conv.ID, err)
	}
	defer rows.Close()

	conv.Participants = conv.Participants[:0]
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("sqlite: scanning participant row: %w", err)
		}
		conv.Participants = append(conv.Participants, id)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating participants: %w", err)
	}
	return nil
}
