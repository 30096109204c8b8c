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

// InviteDB is the invite-codes view over the shared pool.
type InviteDB struct {
	conn *sql.DB
}

var _ repository.InviteRepository = (*InviteDB)(nil)

// Create inserts a new invite code. The UNIQUE constraint on code catches
// the (astronomically unlikely) generator collision.
func (db *InviteDB) Create(ctx context.Context, invite *model.InviteCode) error {
	invite.ID = xid.New().String()
	invite.CreatedAt = now()
	invite.ExpiresAt = utc(invite.ExpiresAt)

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO invites (id, code, created_by, max_uses, uses, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		invite.ID,
		invite.Code,
		invite.CreatedBy,
		invite.MaxUses,
		invite.Uses,
		invite.ExpiresAt,
		invite.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting invite: %w", err)
	}
	return nil
}

// GetByCode looks an invite up by its code string.
func (db *InviteDB) GetByCode(ctx context.Context, code string) (*model.InviteCode, error) {
	var inv model.InviteCode
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, code, created_by, max_uses, uses, expires_at, created_at
		 FROM invites WHERE code = ?`,
		code,
	).Scan(&inv.ID, &inv.Code, &inv.CreatedBy, &inv.MaxUses, &inv.Uses, &inv.ExpiresAt, &inv.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("invite", code)
		}
		return nil, fmt.Errorf("sqlite: getting invite: %w", err)
	}
	return &inv, nil
}

// Redeem is THE concurrency-critical operation of the token vault.
//
// The guard (uses < max_uses AND unexpired) and the increment execute as
// one atomic UPDATE. Two goroutines racing for the last remaining use both
// run the statement; SQLite serializes them, the first one's guard holds,
// the second one's doesn't. uses can never exceed max_uses — there is no
// window for a lost update, because there is no separate read.
//
// Returns (false, nil) when the guard failed; the caller re-reads the row
// to decide whether that means not-found, expired, or quota-exhausted.
func (db *InviteDB) Redeem(ctx context.Context, code string, nowAt time.Time) (bool, error) {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE invites SET uses = uses + 1
		 WHERE code = ? AND uses < max_uses AND expires_at > ?`,
		code, utc(nowAt),
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: redeeming invite: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// DeleteExpired purges invites past their expiry. Run from the background
// sweep; callers treat a purged code exactly like one that never existed.
func (db *InviteDB) DeleteExpired(ctx context.Context, nowAt time.Time) (int, error) {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM invites WHERE expires_at <= ?`, utc(nowAt),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: purging expired invites: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return int(n), nil
}
