// Package sqlite implements the repository interfaces using SQLite as the
// storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database — it lives inside the Go binary as a single
// file. No separate database server to install, configure, or manage. WAL
// mode gives us concurrent readers during writes, which is all a
// request-scoped backend like this one needs.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, so you need a C compiler and cross-compilation
// becomes painful. modernc.org/sqlite is a pure Go translation of the SQLite
// C code — works everywhere Go works.
//
// ATOMIC CONDITIONAL UPDATES:
// The correctness-critical operations in this store (invite redemption, OTP
// attempt counting) are expressed as single guarded UPDATE statements:
//
//	UPDATE invites SET uses = uses + 1 WHERE code = ? AND uses < max_uses ...
//
// SQLite executes each statement atomically, so the quota check and the
// increment cannot be interleaved with another writer. RowsAffected tells us
// whether the guard held. This is the store-level primitive everything in
// §CONCURRENCY of the service layer leans on — never SELECT-then-UPDATE.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	// Side-effect import: the driver registers itself with database/sql
	// under the name "sqlite" at init time.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and hands out per-entity repository
// views — db.Users(), db.Messages(), and so on. Each view is a thin struct
// over the same pool that implements one repository interface. Method sets
// can't share names on a single type (every repository has a Create), so
// one wrapper per entity it is.
type DB struct {
	conn *sql.DB
}

func (db *DB) Users() *UserDB                 { return &UserDB{conn: db.conn} }
func (db *DB) Conversations() *ConversationDB { return &ConversationDB{conn: db.conn} }
func (db *DB) Messages() *MessageDB           { return &MessageDB{conn: db.conn} }
func (db *DB) Notifications() *NotificationDB { return &NotificationDB{conn: db.conn} }
func (db *DB) Invites() *InviteDB             { return &InviteDB{conn: db.conn} }
func (db *DB) OTPs() *OTPDB                   { return &OTPDB{conn: db.conn} }
func (db *DB) Meetings() *MeetingDB           { return &MeetingDB{conn: db.conn} }

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/amity.db" → file-based database (persistent)
//   - ":memory:"      → in-memory database (tests, lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Ping forces an immediate connection so a bad path or permissions
	// issue surfaces here, not on the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL mode allows concurrent reads while a write is in progress —
	// required for a web server where requests overlap.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite for backwards compatibility.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	// SQLite allows one writer at a time. Without a busy timeout a second
	// concurrent writer fails immediately with SQLITE_BUSY; with it, the
	// driver retries for up to 5s, which turns the invite/OTP redemption
	// races into short waits instead of spurious errors.
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool. Always defer this next to New.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate runs all database migrations.
//
// CREATE TABLE IF NOT EXISTS is idempotent, so running migrate on an
// existing database is safe. For a schema this size, embedded SQL beats
// pulling in a migration framework.
func (db *DB) migrate() error {
	stmts := []struct {
		name string
		sql  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id           TEXT PRIMARY KEY,
				subject      TEXT NOT NULL UNIQUE,
				email        TEXT NOT NULL DEFAULT '',
				display_name TEXT NOT NULL DEFAULT '',
				username     TEXT NOT NULL COLLATE NOCASE UNIQUE,
				avatar_url   TEXT NOT NULL DEFAULT '',
				deleted      INTEGER NOT NULL DEFAULT 0,
				created_at   DATETIME NOT NULL,
				updated_at   DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
		`},
		{"conversations", `
			CREATE TABLE IF NOT EXISTS conversations (
				id              TEXT PRIMARY KEY,
				name            TEXT NOT NULL DEFAULT '',
				is_group        INTEGER NOT NULL DEFAULT 0,
				created_by      TEXT NOT NULL,
				last_message_id TEXT NOT NULL DEFAULT '',
				deleted         INTEGER NOT NULL DEFAULT 0,
				created_at      DATETIME NOT NULL,
				updated_at      DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_conversations_updated_at
				ON conversations(updated_at DESC);
		`},
		{"conversation_participants", `
			CREATE TABLE IF NOT EXISTS conversation_participants (
				conversation_id TEXT NOT NULL REFERENCES conversations(id),
				user_id         TEXT NOT NULL,
				position        INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (conversation_id, user_id)
			);
			CREATE INDEX IF NOT EXISTS idx_participants_user
				ON conversation_participants(user_id);
		`},
		{"messages", `
			CREATE TABLE IF NOT EXISTS messages (
				id              TEXT PRIMARY KEY,
				conversation_id TEXT NOT NULL REFERENCES conversations(id),
				sender_id       TEXT NOT NULL,
				content         TEXT NOT NULL DEFAULT '',
				kind            TEXT NOT NULL DEFAULT 'text',
				is_read         INTEGER NOT NULL DEFAULT 0,
				pinned          INTEGER NOT NULL DEFAULT 0,
				created_at      DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
				ON messages(conversation_id, created_at DESC);
		`},
		{"reactions", `
			CREATE TABLE IF NOT EXISTS reactions (
				id         TEXT PRIMARY KEY,
				message_id TEXT NOT NULL REFERENCES messages(id),
				user_id    TEXT NOT NULL,
				emoji      TEXT NOT NULL,
				created_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_reactions_message ON reactions(message_id);
		`},
		{"notifications", `
			CREATE TABLE IF NOT EXISTS notifications (
				id         TEXT PRIMARY KEY,
				user_id    TEXT NOT NULL,
				type       TEXT NOT NULL,
				title      TEXT NOT NULL DEFAULT '',
				message    TEXT NOT NULL DEFAULT '',
				related_id TEXT NOT NULL DEFAULT '',
				is_read    INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_notifications_user_created
				ON notifications(user_id, created_at DESC);
		`},
		{"invites", `
			CREATE TABLE IF NOT EXISTS invites (
				id         TEXT PRIMARY KEY,
				code       TEXT NOT NULL UNIQUE,
				created_by TEXT NOT NULL,
				max_uses   INTEGER NOT NULL DEFAULT 1,
				uses       INTEGER NOT NULL DEFAULT 0,
				expires_at DATETIME NOT NULL,
				created_at DATETIME NOT NULL,
				CHECK (uses >= 0 AND uses <= max_uses)
			);
			CREATE INDEX IF NOT EXISTS idx_invites_expires ON invites(expires_at);
		`},
		{"otps", `
			CREATE TABLE IF NOT EXISTS otps (
				id         TEXT PRIMARY KEY,
				email      TEXT NOT NULL,
				purpose    TEXT NOT NULL,
				code_hash  TEXT NOT NULL,
				attempts   INTEGER NOT NULL DEFAULT 0,
				verified   INTEGER NOT NULL DEFAULT 0,
				expires_at DATETIME NOT NULL,
				created_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_otps_email_purpose ON otps(email, purpose);
		`},
		{"meetings", `
			CREATE TABLE IF NOT EXISTS meetings (
				id         TEXT PRIMARY KEY,
				room_id    TEXT NOT NULL UNIQUE,
				host_id    TEXT NOT NULL,
				title      TEXT NOT NULL DEFAULT '',
				status     TEXT NOT NULL DEFAULT 'scheduled',
				analytics  TEXT NOT NULL DEFAULT '',
				start_time DATETIME NOT NULL,
				end_time   DATETIME,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_meetings_host ON meetings(host_id);
		`},
		{"meeting_participants", `
			CREATE TABLE IF NOT EXISTS meeting_participants (
				meeting_id TEXT NOT NULL REFERENCES meetings(id),
				user_id    TEXT NOT NULL,
				PRIMARY KEY (meeting_id, user_id)
			);
			CREATE INDEX IF NOT EXISTS idx_meeting_participants_user
				ON meeting_participants(user_id);
		`},
		{"meeting_recordings", `
			CREATE TABLE IF NOT EXISTS meeting_recordings (
				meeting_id TEXT NOT NULL REFERENCES meetings(id),
				position   INTEGER NOT NULL,
				url        TEXT NOT NULL,
				PRIMARY KEY (meeting_id, position)
			);
		`},
	}

	for _, s := range stmts {
		if _, err := db.conn.Exec(s.sql); err != nil {
			return fmt.Errorf("creating %s table: %w", s.name, err)
		}
	}
	return nil
}

// utc normalizes timestamps before they hit the database so that cursor
// comparisons (created_at < ?) always compare values in the same zone.
// SQLite stores DATETIME as text; mixing zones would corrupt ordering.
func utc(t time.Time) time.Time {
	return t.UTC()
}

// now returns the current UTC time truncated to microseconds. SQLite's
// text timestamps round-trip microseconds fine, but nanosecond precision
// is driver-dependent — truncating keeps written and re-read values equal.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
