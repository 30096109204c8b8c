package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/amity-app/amity-server/internal/apperror"
	"github.com/amity-app/amity-server/internal/model"
	"github.com/amity-app/amity-server/internal/repository"
)

// MeetingService manages the call lifecycle: scheduled → active →
// ended/missed.
//
// Three write paths do more than persist: transitioning to "ended" stamps
// endTime, transitioning to "missed" fans out missed-call notifications
// to the invitees, and recordings append in arrival order.
type MeetingService struct {
	meetings      repository.MeetingRepository
	notifications repository.NotificationRepository
	logger        *slog.Logger
}

func NewMeetingService(
	meetings repository.MeetingRepository,
	notifications repository.NotificationRepository,
	logger *slog.Logger,
) *MeetingService {
	return &MeetingService{
		meetings:      meetings,
		notifications: notifications,
		logger:        logger,
	}
}

// Create schedules a meeting. The room ID — the join key handed to the
// media layer — is minted here and never changes. The host is not part
// of the participant set; membership queries check both.
func (s *MeetingService) Create(ctx context.Context, hostID, title string, participantIDs []string, startTime time.Time) (*model.Meeting, error) {
	if hostID == "" {
		return nil, apperror.ValidationFailed("hostId", "host ID is required")
	}
	if startTime.IsZero() {
		startTime = time.Now().UTC()
	}

	var participants []string
	for _, id := range participantIDs {
		id = strings.TrimSpace(id)
		if id == "" || id == hostID {
			continue
		}
		if !slices.Contains(participants, id) {
			participants = append(participants, id)
		}
	}

	m := &model.Meeting{
		// The room ID is a UUID rather than an xid: it leaves our system
		// and becomes the media layer's key, so it should not leak our
		// ID scheme or creation ordering.
		RoomID:       uuid.NewString(),
		HostID:       hostID,
		Title:        strings.TrimSpace(title),
		Status:       model.MeetingScheduled,
		Participants: participants,
		StartTime:    startTime.UTC(),
	}
	if err := s.meetings.Create(ctx, m); err != nil {
		return nil, storeErr(err)
	}

	s.logger.Info("meeting created",
		slog.String("meetingID", m.ID),
		slog.String("roomID", m.RoomID),
		slog.String("hostID", hostID),
	)
	return m, nil
}

func (s *MeetingService) GetByID(ctx context.Context, id string) (*model.Meeting, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "meeting ID is required")
	}
	m, err := s.meetings.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	return m, nil
}

func (s *MeetingService) GetByRoomID(ctx context.Context, roomID string) (*model.Meeting, error) {
	if roomID == "" {
		return nil, apperror.ValidationFailed("roomId", "room ID is required")
	}
	m, err := s.meetings.GetByRoomID(ctx, roomID)
	if err != nil {
		return nil, storeErr(err)
	}
	return m, nil
}

// ListForUser returns meetings where the user is host or participant,
// newest first.
func (s *MeetingService) ListForUser(ctx context.Context, userID string) ([]model.Meeting, error) {
	if userID == "" {
		return nil, apperror.ValidationFailed("userId", "user ID is required")
	}
	list, err := s.meetings.ListForUser(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	return list, nil
}

// SetStatus transitions the lifecycle state.
//
// "ended" stamps endTime = now. "missed" appends a missed-call entry to
// every invited participant's feed (not the host's — you don't miss your
// own call). Notification failures are logged, never propagated: the
// status change is the durable fact, the feed entry is best-effort.
func (s *MeetingService) SetStatus(ctx context.Context, id string, status model.MeetingStatus) (*model.Meeting, error) {
	if !status.Valid() {
		return nil, apperror.ValidationFailed("status", "unknown meeting status")
	}
	m, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var endTime *time.Time
	if status == model.MeetingEnded {
		now := time.Now().UTC()
		endTime = &now
	}
	if err := s.meetings.SetStatus(ctx, id, status, endTime); err != nil {
		return nil, storeErr(err)
	}
	m.Status = status
	m.EndTime = endTime

	if status == model.MeetingMissed {
		for _, pid := range m.Participants {
			s.notifyMissed(ctx, pid, m)
		}
	}
	return m, nil
}

// AddParticipant and RemoveParticipant are idempotent set operations:
// adding a present member or removing an absent one succeeds silently.

func (s *MeetingService) AddParticipant(ctx context.Context, id, userID string) error {
	if userID == "" {
		return apperror.ValidationFailed("userId", "user ID is required")
	}
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.meetings.AddParticipant(ctx, id, userID); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *MeetingService) RemoveParticipant(ctx context.Context, id, userID string) error {
	if userID == "" {
		return apperror.ValidationFailed("userId", "user ID is required")
	}
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.meetings.RemoveParticipant(ctx, id, userID); err != nil {
		return storeErr(err)
	}
	return nil
}

// RecordAnalytics stores the media layer's post-call blob verbatim. The
// only check is that it parses as JSON — the shape inside is the media
// layer's contract with the clients, not ours.
func (s *MeetingService) RecordAnalytics(ctx context.Context, id, analyticsJSON string) error {
	if !json.Valid([]byte(analyticsJSON)) {
		return apperror.ValidationFailed("analytics", "analytics must be valid JSON")
	}
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.meetings.SetAnalytics(ctx, id, analyticsJSON); err != nil {
		return storeErr(err)
	}
	return nil
}

// AppendRecording adds a recording URL, preserving arrival order.
func (s *MeetingService) AppendRecording(ctx context.Context, id, url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return apperror.ValidationFailed("url", "recording URL is required")
	}
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.meetings.AppendRecording(ctx, id, url); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *MeetingService) notifyMissed(ctx context.Context, userID string, m *model.Meeting) {
	title := "Missed call"
	message := "You missed a call"
	if m.Title != "" {
		message = "You missed: " + m.Title
	}
	n := &model.Notification{
		UserID:    userID,
		Type:      model.NotifyMissedCall,
		Title:     title,
		Message:   message,
		RelatedID: m.ID,
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		s.logger.Error("missed-call notification failed",
			slog.String("userID", userID),
			slog.String("meetingID", m.ID),
			slog.String("error", err.Error()),
		)
	}
}
