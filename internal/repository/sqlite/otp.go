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

// OTPDB is the one-time-codes view over the shared pool.
type OTPDB struct {
	conn *sql.DB
}

var _ repository.OTPRepository = (*OTPDB)(nil)

// Create persists a new OTP record, superseding any live record for the
// same (email, purpose). Delete + insert run in one transaction so there
// is never a moment with two live codes — and the fresh record's attempt
// counter starts at zero, which is exactly what "a new code starts a new
// attempt budget" means.
func (db *OTPDB) Create(ctx context.Context, otp *model.OTP) error {
	otp.ID = xid.New().String()
	otp.CreatedAt = now()
	otp.ExpiresAt = utc(otp.ExpiresAt)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning otp tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM otps WHERE email = ? AND purpose = ?`,
		otp.Email, otp.Purpose,
	)
	if err != nil {
		return fmt.Errorf("sqlite: superseding prior otp: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO otps (id, email, purpose, code_hash, attempts, verified, expires_at, created_at)
		 VALUES (?, ?, ?, ?, 0, 0, ?, ?)`,
		otp.ID,
		otp.Email,
		otp.Purpose,
		otp.CodeHash,
		otp.ExpiresAt,
		otp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting otp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing otp: %w", err)
	}
	return nil
}

// GetLive returns the record for (email, purpose). Because Create
// supersedes, there is at most one; newest-first ordering is belt and
// braces.
func (db *OTPDB) GetLive(ctx context.Context, email string, purpose model.OTPPurpose) (*model.OTP, error) {
	var o model.OTP
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, email, purpose, code_hash, attempts, verified, expires_at, created_at
		 FROM otps WHERE email = ? AND purpose = ?
		 ORDER BY created_at DESC LIMIT 1`,
		email, purpose,
	).Scan(&o.ID, &o.Email, &o.Purpose, &o.CodeHash, &o.Attempts, &o.Verified, &o.ExpiresAt, &o.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("verification code", email)
		}
		return nil, fmt.Errorf("sqlite: getting otp: %w", err)
	}
	return &o, nil
}

// IncrementAttempts burns one attempt, atomically and only while the
// record is still live (unverified, under the cap). Same single-statement
// guard as invite redemption: the check and the increment cannot be split
// by a concurrent caller, so attempts never passes the cap and a verified
// record never gains attempts.
//
// The new counter value is read back after a successful bump so the
// service can report remaining attempts.
func (db *OTPDB) IncrementAttempts(ctx context.Context, id string) (int, bool, error) {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE otps SET attempts = attempts + 1
		 WHERE id = ? AND verified = 0 AND attempts < ?`,
		id, model.OTPMaxAttempts,
	)
	if err != nil {
		return 0, false, fmt.Errorf("sqlite: incrementing otp attempts: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return 0, false, nil
	}

	var attempts int
	err = db.conn.QueryRowContext(ctx,
		`SELECT attempts FROM otps WHERE id = ?`, id,
	).Scan(&attempts)
	if err != nil {
		return 0, false, fmt.Errorf("sqlite: reading otp attempts: %w", err)
	}
	return attempts, true, nil
}

// MarkVerified flips verified, guarded the same way. A second caller (or
// a concurrent one) gets false — the record is terminal and stays
// verified exactly once.
func (db *OTPDB) MarkVerified(ctx context.Context, id string) (bool, error) {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE otps SET verified = 1
		 WHERE id = ? AND verified = 0 AND attempts < ?`,
		id, model.OTPMaxAttempts,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: marking otp verified: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// DeleteExpired purges records past their expiry.
func (db *OTPDB) DeleteExpired(ctx context.Context, nowAt time.Time) (int, error) {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM otps WHERE expires_at <= ?`, utc(nowAt),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: purging expired otps: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return int(n), nil
}
