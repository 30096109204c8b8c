package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/xid"

	"github.com/amity-app/amity-server/internal/apperror"
	"github.com/amity-app/amity-server/internal/model"
	"github.com/amity-app/amity-server/internal/repository"
)

// UserDB is the users view over the shared pool; obtain one via
// DB.Users(). The compile-time check below fails the build the moment a
// repository method is missing, instead of at the call site much later.
type UserDB struct {
	conn *sql.DB
}

var _ repository.UserRepository = (*UserDB)(nil)

const userColumns = `id, subject, email, display_name, username, avatar_url, deleted, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Subject,
		&u.Email,
		&u.DisplayName,
		&u.Username,
		&u.AvatarURL,
		&u.Deleted,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user. The UNIQUE constraints on subject and
// username (COLLATE NOCASE) are the last line of defence for the
// uniqueness invariants — the service checks first, the schema enforces.
func (db *UserDB) Create(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	ts := now()
	user.CreatedAt = ts
	user.UpdatedAt = ts

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, subject, email, display_name, username, avatar_url, deleted, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Subject,
		user.Email,
		user.DisplayName,
		user.Username,
		user.AvatarURL,
		user.Deleted,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return apperror.Conflict("user", user.Username)
		}
		return fmt.Errorf("sqlite: inserting user (subject=%s): %w", user.Subject, err)
	}

	return nil
}

// Update refreshes the mutable profile fields. ID, subject, and createdAt
// are immutable.
func (db *UserDB) Update(ctx context.Context, user *model.User) error {
	user.UpdatedAt = now()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE users
		 SET email = ?, display_name = ?, avatar_url = ?, deleted = ?, updated_at = ?
		 WHERE id = ?`,
		user.Email,
		user.DisplayName,
		user.AvatarURL,
		user.Deleted,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", user.ID)
	}

	return nil
}

// GetByID retrieves a user by their internal ID.
func (db *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetBySubject retrieves a user by their identity-provider subject.
func (db *UserDB) GetBySubject(ctx context.Context, subject string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE subject = ?`, subject))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", subject)
		}
		return nil, fmt.Errorf("sqlite: getting user by subject: %w", err)
	}
	return u, nil
}

// GetByEmail retrieves the first non-deleted user with the given email.
// Emails are stored as entered; lookup is case-insensitive because OTP
// flows normalize to lowercase before calling in.
func (db *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE lower(email) = lower(?) AND deleted = 0`, email))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return u, nil
}

// UsernameExists reports whether any account holds the username,
// case-insensitively. The username column is COLLATE NOCASE, so plain
// equality already ignores case.
func (db *UserDB) UsernameExists(ctx context.Context, username string) (bool, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE username = ?`, username,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking username %q: %w", username, err)
	}
	return count > 0, nil
}

// Search returns non-deleted users whose username contains the fragment,
// case-insensitively, bounded by limit.
//
// LIKE with ESCAPE: % and _ are wildcards inside a LIKE pattern, so a
// fragment containing them would match far too much. We escape them so the
// search is a literal substring match.
func (db *UserDB) Search(ctx context.Context, fragment string, limit int) ([]model.User, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(fragment)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE deleted = 0 AND username LIKE ? ESCAPE '\'
		 ORDER BY username
		 LIMIT ?`,
		"%"+escaped+"%",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}

	return users, nil
}
