package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/amity-app/amity-server/internal/apperror"
	"github.com/amity-app/amity-server/internal/auth"
	"github.com/amity-app/amity-server/internal/model"
	"github.com/amity-app/amity-server/internal/repository"
)

const (
	// Invite codes read aloud over a phone or typed from a screenshot, so
	// the alphabet drops the lookalikes: 0/O, 1/I/L.
	inviteAlphabet   = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	inviteCodeLength = 8

	DefaultInviteTTL  = 7 * 24 * time.Hour
	DefaultInviteUses = 1
	MaxInviteUses     = 100

	otpDigits     = 6
	DefaultOTPTTL = 10 * time.Minute
	MaxOTPTTL     = time.Hour
)

// VaultService manages both token kinds: multi-use dated invite codes and
// single-purpose hashed OTPs. They share a lifecycle — create, validate,
// redeem against a quota, expire — and both hinge on the same store-side
// guarantee: the quota check and the counter bump are ONE atomic
// conditional update, never a read followed by a write.
//
// WHY not check-then-increment in Go? Two goroutines racing for the last
// use of an invite would both pass the read, then both write — pushing
// uses past maxUses. The repository's guarded UPDATE makes the store the
// arbiter; this service only classifies WHY a guard failed.
type VaultService struct {
	invites       repository.InviteRepository
	otps          repository.OTPRepository
	notifications repository.NotificationRepository
	hasher        *auth.CodeHasher
	logger        *slog.Logger
}

func NewVaultService(
	invites repository.InviteRepository,
	otps repository.OTPRepository,
	notifications repository.NotificationRepository,
	hasher *auth.CodeHasher,
	logger *slog.Logger,
) *VaultService {
	return &VaultService{
		invites:       invites,
		otps:          otps,
		notifications: notifications,
		hasher:        hasher,
		logger:        logger,
	}
}

// IssueInvite creates a new invite code owned by creatorID, redeemable
// maxUses times until now+ttl. Zero values fall back to the defaults.
func (s *VaultService) IssueInvite(ctx context.Context, creatorID string, maxUses int, ttl time.Duration) (*model.InviteCode, error) {
	if creatorID == "" {
		return nil, apperror.ValidationFailed("creatorId", "creator ID is required")
	}
	if maxUses <= 0 {
		maxUses = DefaultInviteUses
	}
	if maxUses > MaxInviteUses {
		return nil, apperror.ValidationFailed("maxUses", fmt.Sprintf("maxUses cannot exceed %d", MaxInviteUses))
	}
	if ttl <= 0 {
		ttl = DefaultInviteTTL
	}

	code, err := randomInviteCode()
	if err != nil {
		return nil, fmt.Errorf("generating invite code: %w", err)
	}

	invite := &model.InviteCode{
		Code:      code,
		CreatedBy: creatorID,
		MaxUses:   maxUses,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}
	if err := s.invites.Create(ctx, invite); err != nil {
		return nil, storeErr(err)
	}

	s.logger.Info("invite issued",
		slog.String("inviteID", invite.ID),
		slog.String("creatorID", creatorID),
		slog.Int("maxUses", maxUses),
	)
	return invite, nil
}

// GetInvite returns the invite record for a code without consuming a use.
//
// An expired row answers NotFound — not Expired — so the response is
// byte-identical whether the sweep has already deleted the row or not.
// Inspection must never reveal that a dead code once existed.
func (s *VaultService) GetInvite(ctx context.Context, code string) (*model.InviteCode, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, apperror.ValidationFailed("code", "invite code is required")
	}
	invite, err := s.invites.GetByCode(ctx, code)
	if err != nil {
		return nil, storeErr(err)
	}
	if !time.Now().UTC().Before(invite.ExpiresAt) {
		return nil, apperror.NotFound("invite", code)
	}
	return invite, nil
}

// RedeemInvite consumes one use of the code on behalf of redeemerID.
//
// The happy path is a single guarded increment. Only when the guard fails
// do we re-read the row to tell the caller WHY: a missing row is NotFound
// (indistinguishable from an expired-and-purged one, deliberately), a
// past-expiry row is Expired, and a full quota is QuotaExhausted. The
// classification read races with other redeemers, but every answer it can
// give was true at some instant — good enough for an error message.
func (s *VaultService) RedeemInvite(ctx context.Context, code, redeemerID string) (*model.InviteCode, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, apperror.ValidationFailed("code", "invite code is required")
	}

	now := time.Now().UTC()
	ok, err := s.invites.Redeem(ctx, code, now)
	if err != nil {
		return nil, storeErr(err)
	}
	if !ok {
		invite, err := s.invites.GetByCode(ctx, code)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return nil, apperror.NotFound("invite", code)
			}
			return nil, storeErr(err)
		}
		if !now.Before(invite.ExpiresAt) {
			return nil, apperror.Expired("invite code")
		}
		return nil, apperror.QuotaExhausted()
	}

	invite, err := s.invites.GetByCode(ctx, code)
	if err != nil {
		return nil, storeErr(err)
	}

	// Tell the creator their invite landed. Best-effort: a failed
	// notification never unwinds a successful redemption.
	s.notify(ctx, invite.CreatedBy, model.NotifyMatch,
		"Invite redeemed",
		"Someone joined using your invite code",
		invite.ID,
	)

	s.logger.Info("invite redeemed",
		slog.String("inviteID", invite.ID),
		slog.String("redeemerID", redeemerID),
		slog.Int("uses", invite.Uses),
		slog.Int("maxUses", invite.MaxUses),
	)
	return invite, nil
}

// IssueOTP mints a fresh code for (email, purpose), superseding any prior
// live record, and returns the PLAINTEXT exactly once. Only the bcrypt
// hash is persisted; delivery of the plaintext (mail, SMS) is the
// caller's job.
func (s *VaultService) IssueOTP(ctx context.Context, email string, purpose model.OTPPurpose, ttl time.Duration) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return "", apperror.ValidationFailed("email", "a valid email is required")
	}
	if !purpose.Valid() {
		return "", apperror.ValidationFailed("purpose", fmt.Sprintf("unknown purpose %q", purpose))
	}
	if ttl <= 0 {
		ttl = DefaultOTPTTL
	}
	if ttl > MaxOTPTTL {
		ttl = MaxOTPTTL
	}

	plaintext, err := randomOTPCode()
	if err != nil {
		return "", fmt.Errorf("generating otp: %w", err)
	}
	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return "", fmt.Errorf("hashing otp: %w", err)
	}

	otp := &model.OTP{
		Email:     email,
		Purpose:   purpose,
		CodeHash:  hash,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}
	if err := s.otps.Create(ctx, otp); err != nil {
		return "", storeErr(err)
	}

	s.logger.Info("otp issued",
		slog.String("otpID", otp.ID),
		slog.String("purpose", string(purpose)),
	)
	return plaintext, nil
}

// VerifyOTP checks a candidate against the live record for the pair.
//
// The checks run in a fixed order: existence, terminal-verified,
// expiry, attempt budget, then — and only then — the hash comparison.
// The budget is checked BEFORE comparing, so a correct code on the sixth
// attempt still fails with AttemptsExceeded. On mismatch the attempt
// counter bumps through the same guarded-update discipline as invite
// redemption; a guard failure means the record went terminal under us.
func (s *VaultService) VerifyOTP(ctx context.Context, email string, purpose model.OTPPurpose, candidate string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	candidate = strings.TrimSpace(candidate)
	if email == "" {
		return apperror.ValidationFailed("email", "email is required")
	}
	if !purpose.Valid() {
		return apperror.ValidationFailed("purpose", fmt.Sprintf("unknown purpose %q", purpose))
	}
	if candidate == "" {
		return apperror.ValidationFailed("code", "code is required")
	}

	otp, err := s.otps.GetLive(ctx, email, purpose)
	if err != nil {
		return storeErr(err)
	}
	if otp.Verified {
		return apperror.AlreadyVerified()
	}
	if !time.Now().UTC().Before(otp.ExpiresAt) {
		return apperror.Expired("verification code")
	}
	if otp.Attempts >= model.OTPMaxAttempts {
		return apperror.AttemptsExceeded()
	}

	if err := s.hasher.Compare(otp.CodeHash, candidate); err != nil {
		if !errors.Is(err, auth.ErrCodeMismatch) {
			return fmt.Errorf("comparing otp: %w", err)
		}
		attempts, ok, ierr := s.otps.IncrementAttempts(ctx, otp.ID)
		if ierr != nil {
			return storeErr(ierr)
		}
		if !ok {
			// A concurrent caller pushed the record terminal between our
			// read and this bump.
			return apperror.AttemptsExceeded()
		}
		return apperror.InvalidCode(model.OTPMaxAttempts - attempts)
	}

	ok, err := s.otps.MarkVerified(ctx, otp.ID)
	if err != nil {
		return storeErr(err)
	}
	if !ok {
		// Lost the race to another verifier or to the attempt cap.
		fresh, gerr := s.otps.GetLive(ctx, email, purpose)
		if gerr == nil && fresh.Verified {
			return apperror.AlreadyVerified()
		}
		return apperror.AttemptsExceeded()
	}

	s.logger.Info("otp verified",
		slog.String("otpID", otp.ID),
		slog.String("purpose", string(purpose)),
	)
	return nil
}

// PurgeExpired sweeps expired invite and OTP rows. Run periodically by the
// server; correctness never depends on the sweep having happened, because
// every read path also checks expiresAt.
func (s *VaultService) PurgeExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC()

	invites, err := s.invites.DeleteExpired(ctx, now)
	if err != nil {
		return 0, storeErr(err)
	}
	otps, err := s.otps.DeleteExpired(ctx, now)
	if err != nil {
		return invites, storeErr(err)
	}

	if invites+otps > 0 {
		s.logger.Info("expired tokens purged",
			slog.Int("invites", invites),
			slog.Int("otps", otps),
		)
	}
	return invites + otps, nil
}

// notify appends to the recipient's ledger, logging failures instead of
// propagating them.
func (s *VaultService) notify(ctx context.Context, userID string, typ model.NotificationType, title, message, relatedID string) {
	n := &model.Notification{
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Message:   message,
		RelatedID: relatedID,
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		s.logger.Error("notification append failed",
			slog.String("userID", userID),
			slog.String("type", string(typ)),
			slog.String("error", err.Error()),
		)
	}
}

// randomInviteCode draws from crypto/rand — invite codes are bearer
// tokens, so math/rand predictability is not acceptable.
func randomInviteCode() (string, error) {
	buf := make([]byte, inviteCodeLength)
	max := big.NewInt(int64(len(inviteAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = inviteAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// randomOTPCode returns a zero-padded 6-digit numeric code.
func randomOTPCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < otpDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n), nil
}
