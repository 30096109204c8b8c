package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/amity-app/amity-server/internal/model"
)

// newTestDB opens a throwaway database in the test's temp directory.
//
// WHY a file and not ":memory:"? database/sql is a connection POOL, and
// each new pool connection to ":memory:" gets its own fresh, empty
// database — fine for sequential tests, catastrophic for the concurrency
// tests below where goroutines fan out across connections. A temp file is
// shared by every connection and vanishes with the test.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *DB, subject, username string) *model.User {
	t.Helper()
	user := &model.User{
		Subject:     subject,
		Email:       username + "@example.com",
		DisplayName: username,
		Username:    username,
		AvatarURL:   "https://example.com/" + username + ".png",
	}
	if err := db.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

func createTestConversation(t *testing.T, db *DB, createdBy string, participants ...string) *model.Conversation {
	t.Helper()
	conv := &model.Conversation{
		Participants: participants,
		IsGroup:      len(participants) > 2,
		CreatedBy:    createdBy,
	}
	if err := db.Conversations().Create(context.Background(), conv); err != nil {
		t.Fatalf("failed to create test conversation: %v", err)
	}
	return conv
}

func createTestMessage(t *testing.T, db *DB, convID, senderID, content string) *model.Message {
	t.Helper()
	msg := &model.Message{
		ConversationID: convID,
		SenderID:       senderID,
		Content:        content,
	}
	if err := db.Messages().Create(context.Background(), msg); err != nil {
		t.Fatalf("failed to create test message: %v", err)
	}
	// Timestamps truncate to microseconds; a tiny pause keeps back-to-back
	// inserts on distinct created_at values so cursor tests stay exact.
	time.Sleep(2 * time.Millisecond)
	return msg
}
