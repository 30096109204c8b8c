package model

import "time"

// NotificationType classifies an event in a user's notification feed.
type NotificationType string

const (
	NotifyMatch      NotificationType = "match"
	NotifyMissedCall NotificationType = "missed_call"
	NotifySystem     NotificationType = "system"
)

// Notification is one entry in a user's append-only event log.
//
// The only mutation ever applied is flipping IsRead from false to true;
// there is no way back to unread. RelatedID is an untyped back-reference
// used by clients for navigation — this core never dereferences it.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	RelatedID string           `json:"relatedId,omitempty"`
	IsRead    bool             `json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
}
