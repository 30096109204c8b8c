package handler_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/amity-app/amity-server/internal/auth"
	"github.com/amity-app/amity-server/internal/model"
	sqliteRepo "github.com/amity-app/amity-server/internal/repository/sqlite"
	"github.com/amity-app/amity-server/internal/service"
)

// env wires real services over a throwaway SQLite database so handler
// tests exercise the full stack below the router. Handlers are invoked
// directly; path parameters are injected with req.SetPathValue and the
// session with auth.WithUserID, skipping the cookie dance.
type env struct {
	identity *service.IdentityService
	vault    *service.VaultService
	convs    *service.ConversationService
	notify   *service.NotificationService
	meetings *service.MeetingService
	logger   *slog.Logger
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db, err := sqliteRepo.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	// MinCost keeps the bcrypt work factor out of the test runtime.
	hasher := auth.NewCodeHasherForTest(bcrypt.MinCost)

	return &env{
		identity: service.NewIdentityService(db.Users(), logger),
		vault:    service.NewVaultService(db.Invites(), db.OTPs(), db.Notifications(), hasher, logger),
		convs:    service.NewConversationService(db.Conversations(), db.Messages(), db.Users(), logger),
		notify:   service.NewNotificationService(db.Notifications(), logger),
		meetings: service.NewMeetingService(db.Meetings(), db.Notifications(), logger),
		logger:   logger,
	}
}

// user creates an account through the identity bridge and returns it.
func (e *env) user(t *testing.T, subject, username string) *model.User {
	t.Helper()

	u, err := e.identity.ResolveOrCreate(context.Background(), subject, username+"@example.com", username, username, "")
	if err != nil {
		t.Fatalf("creating test user %q: %v", username, err)
	}
	return u
}

// captureSender is a CodeSender that records the last delivery instead of
// sending mail, so tests can read the code back.
type captureSender struct {
	email string
	code  string
	err   error // returned from Send when non-nil
}

func (s *captureSender) Send(_ context.Context, email, code string) error {
	if s.err != nil {
		return s.err
	}
	s.email = email
	s.code = code
	return nil
}
