// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (business layer) → validates, enforces rules, orchestrates
//	Repository (data layer)  → reads/writes to the database
//
// Each service takes repository INTERFACES, not the concrete sqlite types.
// Tests inject in-memory fakes; main injects the SQLite views. Services
// return domain errors from internal/apperror — never HTTP status codes —
// and the handler layer translates.
//
// Store-layer failures are wrapped as apperror.Storage before they leave a
// service, so callers see one opaque, retryable kind instead of driver
// noise. Domain errors (NotFound, Expired, ...) pass through untouched.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/amity-app/amity-server/internal/apperror"
	"github.com/amity-app/amity-server/internal/model"
	"github.com/amity-app/amity-server/internal/repository"
)

// Username shape constraints. A hint is normalized into [a-z0-9_], padded
// to the minimum and cut at the maximum before uniqueness probing starts.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30

	// Suffix probing budget: sequential 1..5 first, then this many random
	// 0–999 suffixes before giving up with UsernameExhausted.
	sequentialSuffixes = 5
	randomSuffixes     = 10

	DefaultSearchLimit = 20
	MaxSearchLimit     = 50
)

// IdentityService resolves external identity-provider subjects to internal
// user accounts, generating collision-free usernames on first contact.
type IdentityService struct {
	users  repository.UserRepository
	logger *slog.Logger
}

func NewIdentityService(users repository.UserRepository, logger *slog.Logger) *IdentityService {
	return &IdentityService{
		users:  users,
		logger: logger,
	}
}

// ResolveOrCreate looks the subject up and returns the existing account,
// refreshing mutable profile fields; on first contact it creates an
// account with a derived, unique username.
//
// The subject is the only join key: email and display name can change on
// the provider's side without creating a second account. The username, by
// contrast, is minted once and never touched again — renames are a product
// decision this core doesn't make.
func (s *IdentityService) ResolveOrCreate(ctx context.Context, subject, email, displayName, usernameHint, avatarURL string) (*model.User, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, apperror.ValidationFailed("subject", "subject is required")
	}

	existing, err := s.users.GetBySubject(ctx, subject)
	if err == nil {
		// Known account — keep the profile in sync with the provider.
		changed := false
		if email != "" && existing.Email != email {
			existing.Email = email
			changed = true
		}
		if displayName != "" && existing.DisplayName != displayName {
			existing.DisplayName = displayName
			changed = true
		}
		if avatarURL != "" && existing.AvatarURL != avatarURL {
			existing.AvatarURL = avatarURL
			changed = true
		}
		if changed {
			if err := s.users.Update(ctx, existing); err != nil {
				return nil, storeErr(err)
			}
		}
		return existing, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, storeErr(err)
	}

	// First contact — mint a username and create the account.
	username, err := s.pickUsername(ctx, usernameHint, subject)
	if err != nil {
		return nil, err
	}

	if avatarURL == "" {
		avatarURL = defaultAvatar(username, subject)
	}

	user := &model.User{
		Subject:     subject,
		Email:       email,
		DisplayName: displayName,
		Username:    username,
		AvatarURL:   avatarURL,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, storeErr(err)
	}

	s.logger.Info("user created",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// GetByID returns the user for the given internal ID.
func (s *IdentityService) GetByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	return user, nil
}

// GetByEmail returns the non-deleted user holding the email. Used by the
// OTP login flow after a code has been verified.
func (s *IdentityService) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, storeErr(err)
	}
	return user, nil
}

// IsUsernameTaken is a case-insensitive existence check.
func (s *IdentityService) IsUsernameTaken(ctx context.Context, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, apperror.ValidationFailed("username", "username is required")
	}
	taken, err := s.users.UsernameExists(ctx, name)
	if err != nil {
		return false, storeErr(err)
	}
	return taken, nil
}

// Search returns non-deleted users whose username contains the fragment,
// case-insensitively, bounded by limit.
func (s *IdentityService) Search(ctx context.Context, fragment string, limit int) ([]model.User, error) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return nil, apperror.ValidationFailed("q", "search query is required")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	users, err := s.users.Search(ctx, fragment, limit)
	if err != nil {
		return nil, storeErr(err)
	}
	return users, nil
}

// pickUsername normalizes the hint and probes for a free name: the bare
// base first, then base1..base5, then ten random 0–999 suffixes. Each
// probe is a store round-trip, so the budget is deliberately small — a
// namespace crowded enough to exhaust it needs human attention, not more
// retries.
func (s *IdentityService) pickUsername(ctx context.Context, hint, subject string) (string, error) {
	// The fallback decision happens BEFORE padding: a hint of "!!!"
	// sanitizes to nothing, and padding it to "___" first would hide
	// that, leaving the subject-derived name unreachable.
	raw := sanitizeUsername(hint)
	if raw == "" {
		raw = sanitizeUsername(subject)
	}
	base := padUsername(raw)

	candidates := make([]string, 0, 1+sequentialSuffixes+randomSuffixes)
	candidates = append(candidates, base)
	for i := 1; i <= sequentialSuffixes; i++ {
		candidates = append(candidates, withSuffix(base, fmt.Sprintf("%d", i)))
	}
	for i := 0; i < randomSuffixes; i++ {
		candidates = append(candidates, withSuffix(base, fmt.Sprintf("%d", rand.IntN(1000))))
	}

	for _, candidate := range candidates {
		taken, err := s.users.UsernameExists(ctx, candidate)
		if err != nil {
			return "", storeErr(err)
		}
		if !taken {
			return candidate, nil
		}
	}

	s.logger.Warn("username suffix budget exhausted", slog.String("base", base))
	return "", apperror.UsernameExhausted(base)
}

// NormalizeUsername lowercases the hint, strips everything outside
// [a-z0-9_], pads to the minimum length with underscores, and truncates
// to the maximum. Exported because handlers use it to preview what a
// hint would become.
func NormalizeUsername(hint string) string {
	return padUsername(sanitizeUsername(hint))
}

// sanitizeUsername lowercases and strips to [a-z0-9_], truncating to the
// maximum length. It does NOT pad — callers that need to distinguish "the
// hint had nothing usable in it" must look before padding erases the
// difference.
func sanitizeUsername(hint string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(hint) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	name := b.String()
	if len(name) > MaxUsernameLength {
		name = name[:MaxUsernameLength]
	}
	return name
}

// padUsername pads with underscores up to the minimum length.
func padUsername(name string) string {
	for len(name) < MinUsernameLength {
		name += "_"
	}
	return name
}

// withSuffix appends a numeric suffix, trimming the base if needed so the
// result still fits the maximum length.
func withSuffix(base, suffix string) string {
	if len(base)+len(suffix) > MaxUsernameLength {
		base = base[:MaxUsernameLength-len(suffix)]
	}
	return base + suffix
}

// defaultAvatar derives a deterministic avatar URL. Seeded by the username
// so the same account always renders the same placeholder; the subject is
// the fallback seed if the username is somehow empty.
func defaultAvatar(username, subject string) string {
	seed := username
	if seed == "" {
		seed = subject
	}
	return "https://api.dicebear.com/7.x/thumbs/svg?seed=" + seed
}

// storeErr passes domain errors through untouched and wraps anything else
// as an opaque, retryable storage failure.
func storeErr(err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.Storage(err)
}
