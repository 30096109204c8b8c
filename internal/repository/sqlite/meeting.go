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

// MeetingDB is the meetings view over the shared pool.
type MeetingDB struct {
	conn *sql.DB
}

var _ repository.MeetingRepository = (*MeetingDB)(nil)

// Create inserts a meeting plus its participant rows in one transaction.
func (db *MeetingDB) Create(ctx context.Context, m *model.Meeting) error {
	m.ID = xid.New().String()
	ts := now()
	m.CreatedAt = ts
	m.UpdatedAt = ts
	if m.StartTime.IsZero() {
		m.StartTime = ts
	} else {
		m.StartTime = utc(m.StartTime)
	}
	if m.Status == "" {
		m.Status = model.MeetingScheduled
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning meeting tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO meetings (id, room_id, host_id, title, status, analytics, start_time, end_time, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, '', ?, NULL, ?, ?)`,
		m.ID,
		m.RoomID,
		m.HostID,
		m.Title,
		m.Status,
		m.StartTime,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting meeting: %w", err)
	}

	for _, userID := range m.Participants {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO meeting_participants (meeting_id, user_id) VALUES (?, ?)`,
			m.ID, userID,
		); err != nil {
			return fmt.Errorf("sqlite: inserting meeting participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing meeting: %w", err)
	}
	return nil
}

// GetByID retrieves a meeting with participants and recordings loaded.
func (db *MeetingDB) GetByID(ctx context.Context, id string) (*model.Meeting, error) {
	return db.get(ctx, `id = ?`, id)
}

// GetByRoomID retrieves a meeting by its join key.
func (db *MeetingDB) GetByRoomID(ctx context.Context, roomID string) (*model.Meeting, error) {
	return db.get(ctx, `room_id = ?`, roomID)
}

func (db *MeetingDB) get(ctx context.Context, where string, arg any) (*model.Meeting, error) {
	var m model.Meeting
	var endTime sql.NullTime
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, room_id, host_id, title, status, analytics, start_time, end_time, created_at, updated_at
		 FROM meetings WHERE `+where,
		arg,
	).Scan(&m.ID, &m.RoomID, &m.HostID, &m.Title, &m.Status, &m.Analytics,
		&m.StartTime, &endTime, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("meeting", fmt.Sprint(arg))
		}
		return nil, fmt.Errorf("sqlite: getting meeting: %w", err)
	}
	if endTime.Valid {
		t := endTime.Time
		m.EndTime = &t
	}
	if err := db.loadMembers(ctx, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListForUser returns meetings the user hosts or participates in, newest
// first.
func (db *MeetingDB) ListForUser(ctx context.Context, userID string) ([]model.Meeting, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT m.id
		 FROM meetings m
		 LEFT JOIN meeting_participants p ON p.meeting_id = m.id
		 WHERE m.host_id = ? OR p.user_id = ?
		 ORDER BY m.id DESC`,
		userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing meetings for %s: %w", userID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning meeting id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating meetings: %w", err)
	}

	meetings := make([]model.Meeting, 0, len(ids))
	for _, id := range ids {
		m, err := db.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, *m)
	}
	return meetings, nil
}

// SetStatus transitions the lifecycle state. endTime is non-nil exactly
// when the service stamps the "ended" transition.
func (db *MeetingDB) SetStatus(ctx context.Context, id string, status model.MeetingStatus, endTime *time.Time) error {
	var result sql.Result
	var err error
	if endTime != nil {
		result, err = db.conn.ExecContext(ctx,
			`UPDATE meetings SET status = ?, end_time = ?, updated_at = ? WHERE id = ?`,
			status, utc(*endTime), now(), id,
		)
	} else {
		result, err = db.conn.ExecContext(ctx,
			`UPDATE meetings SET status = ?, updated_at = ? WHERE id = ?`,
			status, now(), id,
		)
	}
	if err != nil {
		return fmt.Errorf("sqlite: setting meeting %s status: %w", id, err)
	}
	return requireRow(result, "meeting", id)
}

// AddParticipant is idempotent — INSERT OR IGNORE means adding an
// existing member is a no-op.
func (db *MeetingDB) AddParticipant(ctx context.Context, id, userID string) error {
	if err := db.exists(ctx, id); err != nil {
		return err
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO meeting_participants (meeting_id, user_id) VALUES (?, ?)`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: adding meeting participant: %w", err)
	}
	return nil
}

// RemoveParticipant is idempotent — removing an absent member is a no-op.
func (db *MeetingDB) RemoveParticipant(ctx context.Context, id, userID string) error {
	if err := db.exists(ctx, id); err != nil {
		return err
	}
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM meeting_participants WHERE meeting_id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: removing meeting participant: %w", err)
	}
	return nil
}

// SetAnalytics stores the media layer's post-call stats blob verbatim.
func (db *MeetingDB) SetAnalytics(ctx context.Context, id, analyticsJSON string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE meetings SET analytics = ?, updated_at = ? WHERE id = ?`,
		analyticsJSON, now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: recording meeting analytics: %w", err)
	}
	return requireRow(result, "meeting", id)
}

// AppendRecording adds a recording URL at the next position.
func (db *MeetingDB) AppendRecording(ctx context.Context, id, url string) error {
	if err := db.exists(ctx, id); err != nil {
		return err
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO meeting_recordings (meeting_id, position, url)
		 VALUES (?, (SELECT COALESCE(MAX(position), -1) + 1 FROM meeting_recordings WHERE meeting_id = ?), ?)`,
		id, id, url,
	)
	if err != nil {
		return fmt.Errorf("sqlite: appending meeting recording: %w", err)
	}
	return nil
}

func (db *MeetingDB) exists(ctx context.Context, id string) error {
	var one int
	err := db.conn.QueryRowContext(ctx, `SELECT 1 FROM meetings WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return apperror.NotFound("meeting", id)
	}
	if err != nil {
		return fmt.Errorf("sqlite: checking meeting %s: %w", id, err)
	}
	return nil
}

func (db *MeetingDB) loadMembers(ctx context.Context, m *model.Meeting) error {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_id FROM meeting_participants WHERE meeting_id = ? ORDER BY user_id`,
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: loading meeting participants: %w", err)
	}
	defer rows.Close()
	m.Participants = m.Participants[:0]
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("sqlite: scanning meeting participant: %w", err)
		}
		m.Participants = append(m.Participants, id)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating meeting participants: %w", err)
	}

	recRows, err := db.conn.QueryContext(ctx,
		`SELECT url FROM meeting_recordings WHERE meeting_id = ? ORDER BY position`,
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: loading meeting recordings: %w", err)
	}
	defer recRows.Close()
	m.Recordings = m.Recordings[:0]
	for recRows.Next() {
		var url string
		if err := recRows.Scan(&url); err != nil {
			return fmt.Errorf("sqlite: scanning meeting recording: %w", err)
		}
		m.Recordings = append(m.Recordings, url)
	}
	if err := recRows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating meeting recordings: %w", err)
	}
	return nil
}

// requireRow converts a zero-rows-affected UPDATE into NotFound.
func requireRow(result sql.Result, resource, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
