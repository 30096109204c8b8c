package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/amity-app/amity-server/internal/apperror"
	"github.com/amity-app/amity-server/internal/model"
	"github.com/amity-app/amity-server/internal/repository"
)

// Hand-written in-memory fakes for every repository interface. The
// services only see the interfaces, so swapping SQLite for a map is
// invisible to them — which is exactly the point: these tests exercise
// business rules, not SQL.
//
// Each fake stamps records with a monotonically increasing fake clock
// (one millisecond apart) so that ordering and cursor assertions are
// deterministic without sleeping.

var mockEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type mockClock struct {
	seq int
}

func (c *mockClock) next() time.Time {
	c.seq++
	return mockEpoch.Add(time.Duration(c.seq) * time.Millisecond)
}

// --- users ---

type mockUserRepo struct {
	users  map[string]*model.User
	clock  mockClock
	nextID int
}

var _ repository.UserRepository = (*mockUserRepo)(nil)

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	for _, u := range m.users {
		if u.Subject == user.Subject || strings.EqualFold(u.Username, user.Username) {
			return apperror.Conflict("user", user.Username)
		}
	}
	m.nextID++
	user.ID = fmt.Sprintf("user-%d", m.nextID)
	ts := m.clock.next()
	user.CreatedAt = ts
	user.UpdatedAt = ts
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *mockUserRepo) Update(_ context.Context, user *model.User) error {
	if _, ok := m.users[user.ID]; !ok {
		return apperror.NotFound("user", user.ID)
	}
	user.UpdatedAt = m.clock.next()
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	result := *u
	return &result, nil
}

func (m *mockUserRepo) GetBySubject(_ context.Context, subject string) (*model.User, error) {
	for _, u := range m.users {
		if u.Subject == subject {
			result := *u
			return &result, nil
		}
	}
	return nil, apperror.NotFound("user", subject)
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) && !u.Deleted {
			result := *u
			return &result, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (m *mockUserRepo) UsernameExists(_ context.Context, username string) (bool, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockUserRepo) Search(_ context.Context, fragment string, limit int) ([]model.User, error) {
	var result []model.User
	for _, u := range m.users {
		if !u.Deleted && strings.Contains(strings.ToLower(u.Username), strings.ToLower(fragment)) {
			result = append(result, *u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// --- conversations ---

type mockConvRepo struct {
	convs  map[string]*model.Conversation
	clock  mockClock
	nextID int
}

var _ repository.ConversationRepository = (*mockConvRepo)(nil)

func newMockConvRepo() *mockConvRepo {
	return &mockConvRepo{convs: make(map[string]*model.Conversation)}
}

func (m *mockConvRepo) Create(_ context.Context, conv *model.Conversation) error {
	m.nextID++
	conv.ID = fmt.Sprintf("conv-%d", m.nextID)
	ts := m.clock.next()
	conv.CreatedAt = ts
	conv.UpdatedAt = ts
	stored := *conv
	stored.Participants = slices.Clone(conv.Participants)
	m.convs[conv.ID] = &stored
	return nil
}

func (m *mockConvRepo) GetByID(_ context.Context, id string) (*model.Conversation, error) {
	c, ok := m.convs[id]
	if !ok {
		return nil, apperror.NotFound("conversation", id)
	}
	result := *c
	result.Participants = slices.Clone(c.Participants)
	return &result, nil
}

func (m *mockConvRepo) ListForUser(_ context.Context, userID string, limit int) ([]model.Conversation, error) {
	var result []model.Conversation
	for _, c := range m.convs {
		if !c.Deleted && slices.Contains(c.Participants, userID) {
			copied := *c
			copied.Participants = slices.Clone(c.Participants)
			result = append(result, copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.After(result[j].UpdatedAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockConvRepo) SetLastMessage(_ context.Context, convID, messageID string, at time.Time) error {
	c, ok := m.convs[convID]
	if !ok {
		return apperror.NotFound("conversation", convID)
	}
	c.LastMessageID = messageID
	c.UpdatedAt = at
	return nil
}

// --- messages ---

type mockMessageRepo struct {
	messages  []*model.Message
	reactions []*model.Reaction
	clock     mockClock
	nextID    int

	failCreate error // when set, Create returns this
}

var _ repository.MessageRepository = (*mockMessageRepo)(nil)

func newMockMessageRepo() *mockMessageRepo {
	return &mockMessageRepo{}
}

func (m *mockMessageRepo) Create(_ context.Context, msg *model.Message) error {
	if m.failCreate != nil {
		return m.failCreate
	}
	m.nextID++
	msg.ID = fmt.Sprintf("msg-%d", m.nextID)
	msg.CreatedAt = m.clock.next()
	if msg.Kind == "" {
		msg.Kind = model.KindText
	}
	stored := *msg
	m.messages = append(m.messages, &stored)
	return nil
}

func (m *mockMessageRepo) GetByID(_ context.Context, id string) (*model.Message, error) {
	for _, msg := range m.messages {
		if msg.ID == id {
			result := *msg
			return &result, nil
		}
	}
	return nil, apperror.NotFound("message", id)
}

func (m *mockMessageRepo) ListByConversation(_ context.Context, convID string, page repository.MessagePage) ([]model.Message, error) {
	var result []model.Message
	for _, msg := range m.messages {
		if msg.ConversationID != convID {
			continue
		}
		if page.Before != nil {
			// Compound cursor: strictly before (Before, BeforeID), with
			// the ID breaking timestamp ties the way the store does.
			if msg.CreatedAt.After(*page.Before) {
				continue
			}
			if msg.CreatedAt.Equal(*page.Before) && (page.BeforeID == "" || msg.ID >= page.BeforeID) {
				continue
			}
		}
		result = append(result, *msg)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	if len(result) > page.Limit {
		result = result[:page.Limit]
	}
	return result, nil
}

func (m *mockMessageRepo) CountUnread(_ context.Context, convID, viewerID string) (int, error) {
	count := 0
	for _, msg := range m.messages {
		if msg.ConversationID == convID && msg.SenderID != viewerID && !msg.IsRead {
			count++
		}
	}
	return count, nil
}

func (m *mockMessageRepo) MarkConversationRead(_ context.Context, convID, viewerID string) error {
	for _, msg := range m.messages {
		if msg.ConversationID == convID && msg.SenderID != viewerID {
			msg.IsRead = true
		}
	}
	return nil
}

func (m *mockMessageRepo) SetPinned(_ context.Context, id string, pinned bool) error {
	for _, msg := range m.messages {
		if msg.ID == id {
			msg.Pinned = pinned
			return nil
		}
	}
	return apperror.NotFound("message", id)
}

func (m *mockMessageRepo) AddReaction(_ context.Context, reaction *model.Reaction) error {
	m.nextID++
	reaction.ID = fmt.Sprintf("react-%d", m.nextID)
	reaction.CreatedAt = m.clock.next()
	stored := *reaction
	m.reactions = append(m.reactions, &stored)
	return nil
}

func (m *mockMessageRepo) ListReactions(_ context.Context, messageID string) ([]model.Reaction, error) {
	var result []model.Reaction
	for _, r := range m.reactions {
		if r.MessageID == messageID {
			result = append(result, *r)
		}
	}
	return result, nil
}

// --- notifications ---

type mockNotificationRepo struct {
	entries []*model.Notification
	clock   mockClock
	nextID  int

	failCreate error
}

var _ repository.NotificationRepository = (*mockNotificationRepo)(nil)

func newMockNotificationRepo() *mockNotificationRepo {
	return &mockNotificationRepo{}
}

func (m *mockNotificationRepo) Create(_ context.Context, n *model.Notification) error {
	if m.failCreate != nil {
		return m.failCreate
	}
	m.nextID++
	n.ID = fmt.Sprintf("notif-%d", m.nextID)
	n.CreatedAt = m.clock.next()
	stored := *n
	m.entries = append(m.entries, &stored)
	return nil
}

func (m *mockNotificationRepo) GetByID(_ context.Context, id string) (*model.Notification, error) {
	for _, n := range m.entries {
		if n.ID == id {
			result := *n
			return &result, nil
		}
	}
	return nil, apperror.NotFound("notification", id)
}

func (m *mockNotificationRepo) ListForUser(_ context.Context, userID string) ([]model.Notification, error) {
	var result []model.Notification
	for _, n := range m.entries {
		if n.UserID == userID {
			result = append(result, *n)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (m *mockNotificationRepo) MarkRead(_ context.Context, id string) error {
	for _, n := range m.entries {
		if n.ID == id {
			n.IsRead = true
			return nil
		}
	}
	return apperror.NotFound("notification", id)
}

// --- invites ---

// mockInviteRepo reproduces the store's atomicity contract with a mutex:
// Redeem checks and increments under one lock, the same way the SQLite
// implementation does it in one guarded UPDATE.
type mockInviteRepo struct {
	mu      sync.Mutex
	invites map[string]*model.InviteCode
	nextID  int
}

var _ repository.InviteRepository = (*mockInviteRepo)(nil)

func newMockInviteRepo() *mockInviteRepo {
	return &mockInviteRepo{invites: make(map[string]*model.InviteCode)}
}

func (m *mockInviteRepo) Create(_ context.Context, invite *model.InviteCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.invites[invite.Code]; exists {
		return apperror.Conflict("invite", invite.Code)
	}
	m.nextID++
	invite.ID = fmt.Sprintf("invite-%d", m.nextID)
	invite.CreatedAt = time.Now().UTC()
	stored := *invite
	m.invites[invite.Code] = &stored
	return nil
}

func (m *mockInviteRepo) GetByCode(_ context.Context, code string) (*model.InviteCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invites[code]
	if !ok {
		return nil, apperror.NotFound("invite", code)
	}
	result := *inv
	return &result, nil
}

func (m *mockInviteRepo) Redeem(_ context.Context, code string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invites[code]
	if !ok || inv.Uses >= inv.MaxUses || !now.Before(inv.ExpiresAt) {
		return false, nil
	}
	inv.Uses++
	return true, nil
}

func (m *mockInviteRepo) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for code, inv := range m.invites {
		if !now.Before(inv.ExpiresAt) {
			delete(m.invites, code)
			n++
		}
	}
	return n, nil
}

// --- otps ---

type mockOTPRepo struct {
	mu     sync.Mutex
	otps   map[string]*model.OTP // keyed by email|purpose
	nextID int
}

var _ repository.OTPRepository = (*mockOTPRepo)(nil)

func newMockOTPRepo() *mockOTPRepo {
	return &mockOTPRepo{otps: make(map[string]*model.OTP)}
}

func otpKey(email string, purpose model.OTPPurpose) string {
	return email + "|" + string(purpose)
}

func (m *mockOTPRepo) Create(_ context.Context, otp *model.OTP) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	otp.ID = fmt.Sprintf("otp-%d", m.nextID)
	otp.CreatedAt = time.Now().UTC()
	stored := *otp
	m.otps[otpKey(otp.Email, otp.Purpose)] = &stored
	return nil
}

func (m *mockOTPRepo) GetLive(_ context.Context, email string, purpose model.OTPPurpose) (*model.OTP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	otp, ok := m.otps[otpKey(email, purpose)]
	if !ok {
		return nil, apperror.NotFound("verification code", email)
	}
	result := *otp
	return &result, nil
}

func (m *mockOTPRepo) IncrementAttempts(_ context.Context, id string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, otp := range m.otps {
		if otp.ID == id {
			if otp.Verified || otp.Attempts >= model.OTPMaxAttempts {
				return 0, false, nil
			}
			otp.Attempts++
			return otp.Attempts, true, nil
		}
	}
	return 0, false, nil
}

func (m *mockOTPRepo) MarkVerified(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, otp := range m.otps {
		if otp.ID == id {
			if otp.Verified || otp.Attempts >= model.OTPMaxAttempts {
				return false, nil
			}
			otp.Verified = true
			return true, nil
		}
	}
	return false, nil
}

func (m *mockOTPRepo) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key, otp := range m.otps {
		if !now.Before(otp.ExpiresAt) {
			delete(m.otps, key)
			n++
		}
	}
	return n, nil
}

// --- meetings ---

type mockMeetingRepo struct {
	meetings map[string]*model.Meeting
	clock    mockClock
	nextID   int
}

var _ repository.MeetingRepository = (*mockMeetingRepo)(nil)

func newMockMeetingRepo() *mockMeetingRepo {
	return &mockMeetingRepo{meetings: make(map[string]*model.Meeting)}
}

func (m *mockMeetingRepo) Create(_ context.Context, meeting *model.Meeting) error {
	m.nextID++
	meeting.ID = fmt.Sprintf("meeting-%d", m.nextID)
	ts := m.clock.next()
	meeting.CreatedAt = ts
	meeting.UpdatedAt = ts
	if meeting.Status == "" {
		meeting.Status = model.MeetingScheduled
	}
	stored := *meeting
	stored.Participants = slices.Clone(meeting.Participants)
	m.meetings[meeting.ID] = &stored
	return nil
}

func (m *mockMeetingRepo) GetByID(_ context.Context, id string) (*model.Meeting, error) {
	meeting, ok := m.meetings[id]
	if !ok {
		return nil, apperror.NotFound("meeting", id)
	}
	result := *meeting
	result.Participants = slices.Clone(meeting.Participants)
	result.Recordings = slices.Clone(meeting.Recordings)
	return &result, nil
}

func (m *mockMeetingRepo) GetByRoomID(_ context.Context, roomID string) (*model.Meeting, error) {
	for _, meeting := range m.meetings {
		if meeting.RoomID == roomID {
			return m.GetByID(context.Background(), meeting.ID)
		}
	}
	return nil, apperror.NotFound("meeting", roomID)
}

func (m *mockMeetingRepo) ListForUser(_ context.Context, userID string) ([]model.Meeting, error) {
	var result []model.Meeting
	for _, meeting := range m.meetings {
		if meeting.HostID == userID || slices.Contains(meeting.Participants, userID) {
			copied := *meeting
			result = append(result, copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}

func (m *mockMeetingRepo) SetStatus(_ context.Context, id string, status model.MeetingStatus, endTime *time.Time) error {
	meeting, ok := m.meetings[id]
	if !ok {
		return apperror.NotFound("meeting", id)
	}
	meeting.Status = status
	if endTime != nil {
		meeting.EndTime = endTime
	}
	return nil
}

func (m *mockMeetingRepo) AddParticipant(_ context.Context, id, userID string) error {
	meeting, ok := m.meetings[id]
	if !ok {
		return apperror.NotFound("meeting", id)
	}
	if !slices.Contains(meeting.Participants, userID) {
		meeting.Participants = append(meeting.Participants, userID)
	}
	return nil
}

func (m *mockMeetingRepo) RemoveParticipant(_ context.Context, id, userID string) error {
	meeting, ok := m.meetings[id]
	if !ok {
		return apperror.NotFound("meeting", id)
	}
	meeting.Participants = slices.DeleteFunc(meeting.Participants, func(p string) bool { return p == userID })
	return nil
}

func (m *mockMeetingRepo) SetAnalytics(_ context.Context, id, analyticsJSON string) error {
	meeting, ok := m.meetings[id]
	if !ok {
		return apperror.NotFound("meeting", id)
	}
	meeting.Analytics = analyticsJSON
	return nil
}

func (m *mockMeetingRepo) AppendRecording(_ context.Context, id, url string) error {
	meeting, ok := m.meetings[id]
	if !ok {
		return apperror.NotFound("meeting", id)
	}
	meeting.Recordings = append(meeting.Recordings, url)
	return nil
}

// testLogger keeps service logs out of passing-test output.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}
