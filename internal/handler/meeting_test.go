package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amity-app/amity-server/internal/handler"
	"github.com/amity-app/amity-server/internal/model"
)

func TestMeetingLifecycle(t *testing.T) {
	e := newEnv(t)
	h := handler.NewMeetingHandler(e.meetings, e.logger)
	host := e.user(t, "google:host", "host")
	guest := e.user(t, "google:guest", "guest")

	// --- Create ---
	body, _ := json.Marshal(map[string]interface{}{
		"title":        "standup",
		"participants": []string{guest.ID},
	})
	req := as(httptest.NewRequest(http.MethodPost, "/api/meetings", bytes.NewBuffer(body)), host.ID)
	rr := httptest.NewRecorder()

	h.HandleCreate(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)

	var meeting model.Meeting
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&meeting))
	assert.Equal(t, host.ID, meeting.HostID)
	assert.NotEmpty(t, meeting.RoomID, "a join room must be minted")
	assert.Equal(t, model.MeetingScheduled, meeting.Status)

	// --- Lookup by room, the media layer's entry point ---
	req = as(httptest.NewRequest(http.MethodGet, "/api/meetings/room/"+meeting.RoomID, nil), guest.ID)
	req.SetPathValue("roomId", meeting.RoomID)
	rr = httptest.NewRecorder()

	h.HandleGetByRoom(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var byRoom model.Meeting
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&byRoom))
	assert.Equal(t, meeting.ID, byRoom.ID)

	// --- End the call ---
	req = as(httptest.NewRequest(http.MethodPut, "/api/meetings/"+meeting.ID+"/status",
		bytes.NewBufferString(`{"status":"ended"}`)), host.ID)
	req.SetPathValue("id", meeting.ID)
	rr = httptest.NewRecorder()

	h.HandleSetStatus(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var ended model.Meeting
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&ended))
	assert.Equal(t, model.MeetingEnded, ended.Status)
	assert.NotNil(t, ended.EndTime, "ending a meeting stamps the end time")
}

func TestMeetingSetStatus_MissedNotifies(t *testing.T) {
	e := newEnv(t)
	h := handler.NewMeetingHandler(e.meetings, e.logger)
	host := e.user(t, "google:host", "host")
	guest := e.user(t, "google:guest", "guest")

	meeting, err := e.meetings.Create(t.Context(), host.ID, "catchup", []string{guest.ID}, time.Time{})
	require.NoError(t, err)

	req := as(httptest.NewRequest(http.MethodPut, "/api/meetings/"+meeting.ID+"/status",
		bytes.NewBufferString(`{"status":"missed"}`)), host.ID)
	req.SetPathValue("id", meeting.ID)
	rr := httptest.NewRecorder()

	h.HandleSetStatus(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	// The invited participant gets a missed-call notification; the host
	// does not (they know they missed their own call).
	feed, err := e.notify.ListForUser(t.Context(), guest.ID)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, model.NotifyMissedCall, feed[0].Type)
	assert.Equal(t, meeting.ID, feed[0].RelatedID)

	hostFeed, err := e.notify.ListForUser(t.Context(), host.ID)
	require.NoError(t, err)
	assert.Empty(t, hostFeed)
}

func TestMeetingAnalytics_RejectsMissingPayload(t *testing.T) {
	e := newEnv(t)
	h := handler.NewMeetingHandler(e.meetings, e.logger)
	host := e.user(t, "google:host", "host")

	meeting, err := e.meetings.Create(t.Context(), host.ID, "", nil, time.Time{})
	require.NoError(t, err)

	// The outer body parses, but with no analytics payload the service
	// has nothing valid to store.
	req := as(httptest.NewRequest(http.MethodPut, "/api/meetings/"+meeting.ID+"/analytics",
		bytes.NewBufferString(`{}`)), host.ID)
	req.SetPathValue("id", meeting.ID)
	rr := httptest.NewRecorder()

	h.HandleAnalytics(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMeetingJoinLeave_Idempotent(t *testing.T) {
	e := newEnv(t)
	h := handler.NewMeetingHandler(e.meetings, e.logger)
	host := e.user(t, "google:host", "host")
	guest := e.user(t, "google:guest", "guest")

	meeting, err := e.meetings.Create(t.Context(), host.ID, "", nil, time.Time{})
	require.NoError(t, err)

	join := func() int {
		req := as(httptest.NewRequest(http.MethodPost, "/api/meetings/"+meeting.ID+"/participants", nil), guest.ID)
		req.SetPathValue("id", meeting.ID)
		rr := httptest.NewRecorder()
		h.HandleJoin(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusNoContent, join())
	assert.Equal(t, http.StatusNoContent, join(), "joining twice is a no-op, not an error")

	got, err := e.meetings.GetByID(t.Context(), meeting.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{guest.ID}, got.Participants)
}
