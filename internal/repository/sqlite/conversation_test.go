package sqlite

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/amity-app/amity-server/internal/apperror"
)

func TestConversationCreate_PreservesParticipantOrder(t *testing.T) {
	db := newTestDB(t)
	conv := createTestConversation(t, db, "alice", "alice", "bob", "carol")

	found, err := db.Conversations().GetByID(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	want := []string{"alice", "bob", "carol"}
	if !slices.Equal(found.Participants, want) {
		t.Errorf("Participants = %v, want %v", found.Participants, want)
	}
	if !found.IsGroup {
		t.Error("IsGroup = false for a three-person conversation, want true")
	}
}

func TestConversationGetByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Conversations().GetByID(context.Background(), "nonexistent")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestConversationListForUser(t *testing.T) {
	db := newTestDB(t)
	createTestConversation(t, db, "alice", "alice", "bob")
	createTestConversation(t, db, "alice", "alice", "carol")
	createTestConversation(t, db, "bob", "bob", "carol")

	convs, err := db.Conversations().ListForUser(context.Background(), "alice", 50)
	if err != nil {
		t.Fatalf("ListForUser() error = %v", err)
	}
	if len(convs) != 2 {
		t.Errorf("ListForUser(alice) = %d conversations, want 2", len(convs))
	}

	convs, err = db.Conversations().ListForUser(context.Background(), "dave", 50)
	if err != nil {
		t.Fatalf("ListForUser() error = %v", err)
	}
	if len(convs) != 0 {
		t.Errorf("ListForUser(dave) = %d conversations, want 0", len(convs))
	}
}

// A posted message bumps its conversation to the top of everyone's list.
func TestConversationListForUser_NewestUpdatedFirst(t *testing.T) {
	db := newTestDB(t)
	first := createTestConversation(t, db, "alice", "alice", "bob")
	time.Sleep(2 * time.Millisecond)
	second := createTestConversation(t, db, "alice", "alice", "carol")

	convs, err := db.Conversations().ListForUser(context.Background(), "alice", 50)
	if err != nil {
		t.Fatalf("ListForUser() error = %v", err)
	}
	if convs[0].ID != second.ID {
		t.Fatalf("newest conversation not first: got %s", convs[0].ID)
	}

	// Posting into the older conversation moves it back to the top.
	msg := createTestMessage(t, db, first.ID, "bob", "bump")
	if err := db.Conversations().SetLastMessage(context.Background(), first.ID, msg.ID, msg.CreatedAt); err != nil {
		t.Fatalf("SetLastMessage() error = %v", err)
	}

	convs, err = db.Conversations().ListForUser(context.Background(), "alice", 50)
	if err != nil {
		t.Fatalf("ListForUser() error = %v", err)
	}
	if convs[0].ID != first.ID {
		t.Errorf("bumped conversation not first: got %s, want %s", convs[0].ID, first.ID)
	}
	if convs[0].LastMessageID != msg.ID {
		t.Errorf("LastMessageID = %q, want %q", convs[0].LastMessageID, msg.ID)
	}
}

func TestSetLastMessage_NotFound(t *testing.T) {
	db := newTestDB(t)

	err := db.Conversations().SetLastMessage(context.Background(), "nonexistent", "msg", time.Now())
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("SetLastMessage() error = %v, want ErrNotFound", err)
	}
}
