package model

import "time"

// Conversation is a chat thread between two or more users.
//
// IsGroup is derived from the participant count at creation time
// (more than two participants → group) and is never settable on its own.
// Group-ness is fixed for the lifetime of the conversation.
//
// LastMessageID is a deliberate denormalization: it caches the newest
// message so conversation lists don't need a per-row subquery. It is
// updated after the message insert (ordered, not transactional), so a
// reader that observes the pointer can always fetch the referenced
// message. A crash between the two writes leaves the pointer one message
// stale — accepted, bounded inconsistency.
type Conversation struct {
	ID            string    `json:"id"`
	Name          string    `json:"name,omitempty"`
	Participants  []string  `json:"participants"` // ordered, unique user IDs
	IsGroup       bool      `json:"isGroup"`
	CreatedBy     string    `json:"createdBy"`
	LastMessageID string    `json:"-"`
	Deleted       bool      `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ConversationSummary is the per-viewer shape returned by conversation
// listing: the other participants' public profiles, the denormalized last
// message, and the viewer's unread count.
type ConversationSummary struct {
	Conversation
	Members     []PublicProfile `json:"members"` // participants other than the viewer
	LastMessage *MessageView    `json:"lastMessage,omitempty"`
	UnreadCount int             `json:"unreadCount"`
}
