// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// Identity comes from an external provider (OAuth/OIDC), so the primary
// external identifier is the provider's stable subject string. We still
// generate our own internal string ID (xid) for consistency with the other
// entities and to avoid tying our primary keys to a third party's scheme.
//
// WHY Subject string (not the provider's numeric ID)?
// OIDC providers guarantee "sub" is a stable, unique, opaque string for a
// given account. Treating it as opaque means switching or adding providers
// never forces a schema migration. The UNIQUE constraint on subject in the
// DB ensures one provider account maps to exactly one app account.
//
// Username is unique case-insensitively and is generated from a hint at
// signup (see service.IdentityService). AvatarURL is never empty once an
// account exists — a deterministic default is derived from the username
// when the provider supplies no picture.
type User struct {
	ID          string    `json:"id"          db:"id"`
	Subject     string    `json:"-"           db:"subject"` // provider subject — never exposed over the API
	Email       string    `json:"email"       db:"email"`
	DisplayName string    `json:"displayName" db:"display_name"`
	Username    string    `json:"username"    db:"username"` // unique, lowercase
	AvatarURL   string    `json:"avatarUrl"   db:"avatar_url"`
	Deleted     bool      `json:"-"           db:"deleted"` // soft-delete flag
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt"   db:"updated_at"`
}

// PublicProfile is the subset of User safe to embed in payloads seen by
// other users (conversation summaries, search results).
//
// Online is always false here — presence is computed by an external layer
// and stamped onto the payload by the transport, never by this core.
type PublicProfile struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
	Online      bool   `json:"online"`
}

// Public returns the user's public profile.
func (u *User) Public() PublicProfile {
	return PublicProfile{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
	}
}

// PlaceholderProfile is what viewers see in place of a participant whose
// account no longer resolves. Soft-deleting a user does not cascade into
// their messages or conversations — display just falls back to this.
func PlaceholderProfile(id string) PublicProfile {
	return PublicProfile{
		ID:          id,
		Username:    "deleted_user",
		DisplayName: "Deleted User",
	}
}
