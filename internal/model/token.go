package model

import "time"

// InviteCode is a creator-issued token redeemable a bounded number of
// times before an expiry.
//
// INVARIANT: 0 ≤ Uses ≤ MaxUses at all times. The bound is enforced by an
// atomic conditional increment in the store (UPDATE ... WHERE uses <
// max_uses), never by a read-modify-write pair — concurrent redeemers
// racing for the last use must not push Uses past MaxUses.
//
// A code is usable iff Uses < MaxUses and now < ExpiresAt. Expired rows
// are eligible for background removal; callers must not be able to tell
// "never existed" from "expired and purged".
type InviteCode struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	CreatedBy string    `json:"createdBy"`
	MaxUses   int       `json:"maxUses"`
	Uses      int       `json:"uses"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// Usable reports whether the code can still be redeemed at time now.
func (c *InviteCode) Usable(now time.Time) bool {
	return c.Uses < c.MaxUses && now.Before(c.ExpiresAt)
}

// OTPPurpose scopes a one-time code to the flow that requested it.
type OTPPurpose string

const (
	PurposeEmailVerification OTPPurpose = "email_verification"
	PurposePasswordReset     OTPPurpose = "password_reset"
	PurposeLogin             OTPPurpose = "login"
)

// Valid reports whether p is one of the known purposes.
func (p OTPPurpose) Valid() bool {
	switch p {
	case PurposeEmailVerification, PurposePasswordReset, PurposeLogin:
		return true
	}
	return false
}

// OTPMaxAttempts is the attempt budget for a single OTP record. Once
// Attempts reaches this cap the record is terminal, even if a later
// candidate would have matched. Issuing a fresh code starts a new budget.
const OTPMaxAttempts = 5

// OTP is a hashed one-time code proving control of an email address.
//
// Only the bcrypt hash is persisted; the plaintext exists exactly once, in
// the return value of VaultService.IssueOTP, and is the caller's problem
// to deliver out of band. CodeHash is never included in API payloads.
//
// Terminal states: Verified=true, or Attempts ≥ OTPMaxAttempts. Neither
// accepts further verify attempts.
type OTP struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"` // normalized lowercase
	Purpose   OTPPurpose `json:"purpose"`
	CodeHash  string     `json:"-"`
	Attempts  int        `json:"attempts"`
	Verified  bool       `json:"verified"`
	ExpiresAt time.Time  `json:"expiresAt"`
	CreatedAt time.Time  `json:"createdAt"`
}
