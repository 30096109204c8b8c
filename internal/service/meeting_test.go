package service

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/amity-app/amity-server/internal/apperror"
	"github.com/amity-app/amity-server/internal/model"
)

func newTestMeetingService(t *testing.T) (*MeetingService, *mockMeetingRepo, *mockNotificationRepo) {
	t.Helper()
	meetings := newMockMeetingRepo()
	notifications := newMockNotificationRepo()
	svc := NewMeetingService(meetings, notifications, testLogger(t))
	return svc, meetings, notifications
}

func TestMeetingCreate(t *testing.T) {
	svc, _, _ := newTestMeetingService(t)

	m, err := svc.Create(context.Background(), "host-1", "  planning  ",
		[]string{"p1", "p2", "p1", "host-1", ""}, time.Time{})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if m.RoomID == "" {
		t.Error("RoomID not minted")
	}
	if m.Title != "planning" {
		t.Errorf("Title = %q, want trimmed", m.Title)
	}
	// Host and blanks filtered, duplicates collapsed.
	if !slices.Equal(m.Participants, []string{"p1", "p2"}) {
		t.Errorf("Participants = %v, want [p1 p2]", m.Participants)
	}
	if m.Status != model.MeetingScheduled {
		t.Errorf("Status = %q, want %q", m.Status, model.MeetingScheduled)
	}
	if m.StartTime.IsZero() {
		t.Error("StartTime not defaulted")
	}
}

func TestMeetingCreate_RequiresHost(t *testing.T) {
	svc, _, _ := newTestMeetingService(t)

	_, err := svc.Create(context.Background(), "", "t", nil, time.Time{})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Create() error = %v, want ErrValidation", err)
	}
}

func TestMeetingSetStatus_EndedStampsEndTime(t *testing.T) {
	svc, _, _ := newTestMeetingService(t)
	ctx := context.Background()

	m, err := svc.Create(ctx, "host-1", "call", []string{"p1"}, time.Time{})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	ended, err := svc.SetStatus(ctx, m.ID, model.MeetingEnded)
	if err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	if ended.EndTime == nil {
		t.Fatal("EndTime = nil after ending, want a stamp")
	}

	found, err := svc.GetByID(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.EndTime == nil {
		t.Error("persisted EndTime = nil")
	}
}

func TestMeetingSetStatus_MissedNotifiesParticipants(t *testing.T) {
	svc, _, notifications := newTestMeetingService(t)
	ctx := context.Background()

	m, err := svc.Create(ctx, "host-1", "sync", []string{"p1", "p2"}, time.Time{})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := svc.SetStatus(ctx, m.ID, model.MeetingMissed); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}

	for _, pid := range []string{"p1", "p2"} {
		feed, err := notifications.ListForUser(ctx, pid)
		if err != nil {
			t.Fatalf("ListForUser(%s) error = %v", pid, err)
		}
		if len(feed) != 1 {
			t.Fatalf("%s feed = %d entries, want 1", pid, len(feed))
		}
		if feed[0].Type != model.NotifyMissedCall {
			t.Errorf("%s notification type = %q, want %q", pid, feed[0].Type, model.NotifyMissedCall)
		}
		if feed[0].RelatedID != m.ID {
			t.Errorf("%s RelatedID = %q, want the meeting ID", pid, feed[0].RelatedID)
		}
	}

	// The host does not get told they missed their own call.
	hostFeed, _ := notifications.ListForUser(ctx, "host-1")
	if len(hostFeed) != 0 {
		t.Errorf("host feed = %d entries, want 0", len(hostFeed))
	}
}

func TestMeetingSetStatus_MissedNotificationFailureIsSwallowed(t *testing.T) {
	svc, _, notifications := newTestMeetingService(t)
	ctx := context.Background()

	m, err := svc.Create(ctx, "host-1", "sync", []string{"p1"}, time.Time{})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	notifications.failCreate = errors.New("ledger down")
	updated, err := svc.SetStatus(ctx, m.ID, model.MeetingMissed)
	if err != nil {
		t.Fatalf("SetStatus() must not propagate notification failures: %v", err)
	}
	if updated.Status != model.MeetingMissed {
		t.Errorf("Status = %q, want %q", updated.Status, model.MeetingMissed)
	}
}

func TestMeetingSetStatus_UnknownStatus(t *testing.T) {
	svc, _, _ := newTestMeetingService(t)

	_, err := svc.SetStatus(context.Background(), "any", "paused")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("SetStatus() error = %v, want ErrValidation", err)
	}
}

func TestMeetingRecordAnalytics_RejectsInvalidJSON(t *testing.T) {
	svc, _, _ := newTestMeetingService(t)
	ctx := context.Background()

	m, err := svc.Create(ctx, "host-1", "", nil, time.Time{})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := svc.RecordAnalytics(ctx, m.ID, "{not json"); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("RecordAnalytics(bad json) error = %v, want ErrValidation", err)
	}
	if err := svc.RecordAnalytics(ctx, m.ID, `{"duration":60}`); err != nil {
		t.Errorf("RecordAnalytics(valid) error = %v", err)
	}
}

func TestMeetingGetByRoomID(t *testing.T) {
	svc, _, _ := newTestMeetingService(t)
	ctx := context.Background()

	m, err := svc.Create(ctx, "host-1", "", nil, time.Time{})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	found, err := svc.GetByRoomID(ctx, m.RoomID)
	if err != nil {
		t.Fatalf("GetByRoomID() error = %v", err)
	}
	if found.ID != m.ID {
		t.Errorf("GetByRoomID() = %q, want %q", found.ID, m.ID)
	}
}

func TestMeetingAppendRecording_Validation(t *testing.T) {
	svc, _, _ := newTestMeetingService(t)
	ctx := context.Background()

	m, err := svc.Create(ctx, "host-1", "", nil, time.Time{})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := svc.AppendRecording(ctx, m.ID, "  "); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("blank URL: error = %v, want ErrValidation", err)
	}
	if err := svc.AppendRecording(ctx, "ghost", "https://r.example.com/1"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("unknown meeting: error = %v, want ErrNotFound", err)
	}
}
