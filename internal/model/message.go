package model

import "time"

// MessageKind classifies a message's payload.
type MessageKind string

const (
	KindText   MessageKind = "text"
	KindImage  MessageKind = "image"
	KindFile   MessageKind = "file"
	KindSystem MessageKind = "system"
)

// Valid reports whether k is one of the known kinds.
func (k MessageKind) Valid() bool {
	switch k {
	case KindText, KindImage, KindFile, KindSystem:
		return true
	}
	return false
}

// Message is a single entry in a conversation. Messages are exclusively
// owned by their conversation and never move between conversations. They
// are never physically deleted here — retention policy lives elsewhere.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversationId"`
	SenderID       string      `json:"senderId"`
	Content        string      `json:"content"`
	Kind           MessageKind `json:"kind"`
	IsRead         bool        `json:"isRead"`
	Pinned         bool        `json:"pinned"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// Reaction is an emoji attached to a message by a user. Reactions are
// append-only and are NOT deduplicated by user — reacting twice with the
// same emoji accumulates two records. That is intended behaviour, not a
// missing constraint.
type Reaction struct {
	ID        string    `json:"id"`
	MessageID string    `json:"messageId"`
	UserID    string    `json:"userId"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessageView is a message as seen by a particular viewer.
//
// Status is derived, and only for messages the viewer sent: "seen" when
// the recipient has read it, "delivered" otherwise. For messages from
// other senders the field is omitted entirely (a delivery status is
// meaningless to a non-sender, so it must not be defaulted).
type MessageView struct {
	Message
	SenderName string `json:"senderName,omitempty"`
	Status     string `json:"status,omitempty"`
}
