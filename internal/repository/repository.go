// Package repository declares the storage interfaces the service layer
// depends on. The concrete implementation lives in repository/sqlite;
// tests substitute in-memory fakes.
package repository

import (
	"context"
	"time"

	"github.com/amity-app/amity-server/internal/model"
)

// MessagePage selects a window of a conversation's history.
//
// Before is a cursor, not an offset: "messages created strictly before
// this instant", newest first, at most Limit rows. Cursor pagination stays
// stable when new messages arrive at the head — repeated calls with the
// cursor set to the oldest row of the previous page walk backwards through
// history with no gaps and no duplicates.
//
// Timestamps alone are not a total order: two messages written in the
// same microsecond tie. BeforeID breaks the tie — when set, the window is
// "(createdAt, id) strictly less than (Before, BeforeID)" under the
// newest-first sort, so a page boundary falling between two equal
// timestamps never skips a row.
type MessagePage struct {
	Limit    int
	Before   *time.Time // nil = start from the newest message
	BeforeID string     // optional tiebreaker, the id of the row Before came from
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	Update(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetBySubject(ctx context.Context, subject string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// UsernameExists is a case-insensitive existence check.
	UsernameExists(ctx context.Context, username string) (bool, error)
	// Search matches the fragment case-insensitively anywhere in the
	// username, excluding soft-deleted users.
	Search(ctx context.Context, fragment string, limit int) ([]model.User, error)
}

type ConversationRepository interface {
	Create(ctx context.Context, conv *model.Conversation) error
	GetByID(ctx context.Context, id string) (*model.Conversation, error)
	// ListForUser returns non-deleted conversations the user participates
	// in, newest-updated first, at most limit rows.
	ListForUser(ctx context.Context, userID string, limit int) ([]model.Conversation, error)
	// SetLastMessage updates the denormalized pointer and bumps updatedAt.
	// Callers must have persisted the message first.
	SetLastMessage(ctx context.Context, convID, messageID string, at time.Time) error
}

type MessageRepository interface {
	Create(ctx context.Context, msg *model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	// ListByConversation returns up to page.Limit messages newest-first,
	// restricted to rows before the (page.Before, page.BeforeID) cursor
	// when set.
	ListByConversation(ctx context.Context, convID string, page MessagePage) ([]model.Message, error)
	// CountUnread counts messages in the conversation not sent by viewerID
	// and not yet read.
	CountUnread(ctx context.Context, convID, viewerID string) (int, error)
	// MarkConversationRead flips isRead on every message in the
	// conversation that viewerID did not send.
	MarkConversationRead(ctx context.Context, convID, viewerID string) error
	SetPinned(ctx context.Context, id string, pinned bool) error
	AddReaction(ctx context.Context, reaction *model.Reaction) error
	ListReactions(ctx context.Context, messageID string) ([]model.Reaction, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	GetByID(ctx context.Context, id string) (*model.Notification, error)
	ListForUser(ctx context.Context, userID string) ([]model.Notification, error)
	MarkRead(ctx context.Context, id string) error
}

type InviteRepository interface {
	Create(ctx context.Context, invite *model.InviteCode) error
	GetByCode(ctx context.Context, code string) (*model.InviteCode, error)
	// Redeem atomically increments uses, but only while uses < maxUses and
	// the code is unexpired at commit time. Returns false when the guard
	// fails — the caller classifies why by re-reading the row. This is the
	// single operation that makes concurrent redemption safe: it must be a
	// conditional increment in the store, never read-modify-write.
	Redeem(ctx context.Context, code string, now time.Time) (bool, error)
	// DeleteExpired purges rows past their expiry, returning the count.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

type OTPRepository interface {
	// Create persists a new record after deleting any live record for the
	// same (email, purpose) — a fresh code supersedes the old one and
	// starts a new attempt budget.
	Create(ctx context.Context, otp *model.OTP) error
	GetLive(ctx context.Context, email string, purpose model.OTPPurpose) (*model.OTP, error)
	// IncrementAttempts bumps the counter only while the record is
	// unverified and under the attempt cap. Returns the new attempt count,
	// or ok=false if the guard failed (already terminal).
	IncrementAttempts(ctx context.Context, id string) (attempts int, ok bool, err error)
	// MarkVerified flips verified=true only if the record is still live
	// and under the cap. Returns false if another caller got there first.
	MarkVerified(ctx context.Context, id string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

type MeetingRepository interface {
	Create(ctx context.Context, m *model.Meeting) error
	GetByID(ctx context.Context, id string) (*model.Meeting, error)
	GetByRoomID(ctx context.Context, roomID string) (*model.Meeting, error)
	// ListForUser returns meetings where the user is host or participant,
	// newest first.
	ListForUser(ctx context.Context, userID string) ([]model.Meeting, error)
	// SetStatus transitions the lifecycle state; endTime is stamped by the
	// service when the transition is to "ended".
	SetStatus(ctx context.Context, id string, status model.MeetingStatus, endTime *time.Time) error
	AddParticipant(ctx context.Context, id, userID string) error
	RemoveParticipant(ctx context.Context, id, userID string) error
	SetAnalytics(ctx context.Context, id, analyticsJSON string) error
	AppendRecording(ctx context.Context, id, url string) error
}
