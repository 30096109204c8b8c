// One-time-code hashing.
//
// WHY BCRYPT FOR SIX-DIGIT CODES?
// A 6-digit code has only a million possibilities, so the hash's job is
// not to resist offline cracking forever — it is to make a leaked otps
// table useless within the code's short lifetime, and the attempt cap does
// the online rate limiting. bcrypt gives us salting and a constant-time
// comparison for free, and it's already in the dependency tree.
//
// The plaintext code exists exactly once, in the return value of IssueOTP.
// Only the hash is ever persisted or queried.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// defaultCodeCost is the bcrypt work factor for one-time codes. Lower than
// a password hash would use: codes expire in minutes and are burned after
// five attempts, so ~15ms per verify is plenty.
const defaultCodeCost = 10

// ErrCodeMismatch is returned by Compare when the candidate does not match.
var ErrCodeMismatch = errors.New("auth: code mismatch")

// CodeHasher hashes and verifies one-time codes.
//
// It's a struct (not free functions) so the cost can be injected in tests —
// bcrypt cost 4 (the minimum) keeps test runs fast.
type CodeHasher struct {
	cost int
}

// NewCodeHasher creates a CodeHasher with the default cost.
func NewCodeHasher() *CodeHasher {
	return &CodeHasher{cost: defaultCodeCost}
}

// NewCodeHasherForTest creates a CodeHasher with a custom (usually
// minimum) cost. Do not use in production.
func NewCodeHasherForTest(cost int) *CodeHasher {
	return &CodeHasher{cost: cost}
}

// Hash hashes the given plaintext code with bcrypt. The output string is
// self-contained (salt and cost embedded) and stores directly.
func (h *CodeHasher) Hash(code string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(code), h.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing code: %w", err)
	}
	return string(hashed), nil
}

// Compare checks a candidate against a stored hash.
//
// Returns nil on match and ErrCodeMismatch on mismatch. The comparison is
// constant-time inside bcrypt — response timing reveals nothing about how
// close the candidate was.
func (h *CodeHasher) Compare(hash, candidate string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrCodeMismatch
		}
		return fmt.Errorf("auth: comparing code hash: %w", err)
	}
	return nil
}
