package model

import "time"

// MeetingStatus is the lifecycle state of a call.
type MeetingStatus string

const (
	MeetingScheduled MeetingStatus = "scheduled"
	MeetingActive    MeetingStatus = "active"
	MeetingEnded     MeetingStatus = "ended"
	MeetingMissed    MeetingStatus = "missed"
)

// Valid reports whether s is one of the known statuses.
func (s MeetingStatus) Valid() bool {
	switch s {
	case MeetingScheduled, MeetingActive, MeetingEnded, MeetingMissed:
		return true
	}
	return false
}

// Meeting is a scheduled or ad-hoc call.
//
// RoomID is the join key handed to the media layer (a UUID, unlike the
// xid entity IDs) — clients join by room, not by meeting ID. Participants
// is an idempotent set: adding an existing member or removing an absent
// one is a no-op, not an error.
//
// Analytics is an opaque JSON blob recorded by the media layer after the
// call (durations, quality stats); this core stores it verbatim.
type Meeting struct {
	ID           string        `json:"id"`
	RoomID       string        `json:"roomId"`
	HostID       string        `json:"hostId"`
	Title        string        `json:"title,omitempty"`
	Status       MeetingStatus `json:"status"`
	Participants []string      `json:"participants"`
	Recordings   []string      `json:"recordings,omitempty"` // appended URLs, in order
	Analytics    string        `json:"analytics,omitempty"`  // raw JSON
	StartTime    time.Time     `json:"startTime"`
	EndTime      *time.Time    `json:"endTime,omitempty"` // stamped when status becomes "ended"
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}
