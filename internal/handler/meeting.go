package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/amity-app/amity-server/internal/auth"
	"github.com/amity-app/amity-server/internal/model"
	"github.com/amity-app/amity-server/internal/service"
)

// MeetingHandler manages calls: scheduling, lifecycle, membership, and
// the post-call artifacts (recordings, analytics) the media layer writes
// back.
type MeetingHandler struct {
	meetings *service.MeetingService
	logger   *slog.Logger
}

// NewMeetingHandler creates a MeetingHandler.
func NewMeetingHandler(meetings *service.MeetingService, logger *slog.Logger) *MeetingHandler {
	return &MeetingHandler{meetings: meetings, logger: logger}
}

// createMeetingBody is the request body for HandleCreate.
type createMeetingBody struct {
	Title        string    `json:"title"`
	Participants []string  `json:"participants"`
	StartTime    time.Time `json:"startTime"` // zero value means "now"
}

// HandleCreate schedules a meeting hosted by the caller.
//
// HTTP: POST /api/meetings
// REQUEST BODY: {"title": "standup", "participants": ["userB"], "startTime": "..."}
//
// The response includes the minted roomId, which is what clients hand to
// the media layer to join.
func (h *MeetingHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var body createMeetingBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.logger.Warn("create meeting: invalid JSON", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	meeting, err := h.meetings.Create(r.Context(), userID, body.Title, body.Participants, body.StartTime)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, meeting)
}

// HandleList returns every meeting the caller hosts or participates in.
//
// HTTP: GET /api/meetings
func (h *MeetingHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	meetings, err := h.meetings.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, meetings)
}

// HandleGet returns a meeting by its ID.
//
// HTTP: GET /api/meetings/{id}
func (h *MeetingHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	meeting, err := h.meetings.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, meeting)
}

// HandleGetByRoom returns a meeting by its media-layer room ID.
//
// HTTP: GET /api/meetings/room/{roomId}
//
// The media layer only knows rooms, not meeting IDs — this is its way
// back into the meeting record.
func (h *MeetingHandler) HandleGetByRoom(w http.ResponseWriter, r *http.Request) {
	meeting, err := h.meetings.GetByRoomID(r.Context(), r.PathValue("roomId"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, meeting)
}

// statusBody is the request body for HandleSetStatus.
type statusBody struct {
	Status model.MeetingStatus `json:"status"`
}

// HandleSetStatus moves a meeting through its lifecycle.
//
// HTTP: PUT /api/meetings/{id}/status
// REQUEST BODY: {"status": "ended"}
//
// Side effects live in the service: "ended" stamps the end time, "missed"
// notifies every invited participant.
func (h *MeetingHandler) HandleSetStatus(w http.ResponseWriter, r *http.Request) {
	var body statusBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	meeting, err := h.meetings.SetStatus(r.Context(), r.PathValue("id"), body.Status)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, meeting)
}

// HandleJoin adds the caller to a meeting's participant set.
//
// HTTP: POST /api/meetings/{id}/participants
//
// Idempotent — joining a meeting you're already in is a successful no-op.
func (h *MeetingHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.meetings.AddParticipant(r.Context(), r.PathValue("id"), userID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleLeave removes the caller from a meeting's participant set.
//
// HTTP: DELETE /api/meetings/{id}/participants
//
// Idempotent, like HandleJoin.
func (h *MeetingHandler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.meetings.RemoveParticipant(r.Context(), r.PathValue("id"), userID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// analyticsBody is the request body for HandleAnalytics. Raw JSON —
// the media layer's stats are stored verbatim, never interpreted.
type analyticsBody struct {
	Analytics json.RawMessage `json:"analytics"`
}

// HandleAnalytics records the post-call analytics blob.
//
// HTTP: PUT /api/meetings/{id}/analytics
// REQUEST BODY: {"analytics": {"durationSec": 1840, ...}}
func (h *MeetingHandler) HandleAnalytics(w http.ResponseWriter, r *http.Request) {
	var body analyticsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	if err := h.meetings.RecordAnalytics(r.Context(), r.PathValue("id"), string(body.Analytics)); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// recordingBody is the request body for HandleAddRecording.
type recordingBody struct {
	URL string `json:"url"`
}

// HandleAddRecording appends a recording URL to a meeting.
//
// HTTP: POST /api/meetings/{id}/recordings
// REQUEST BODY: {"url": "https://recordings.example.com/abc.mp4"}
//
// Append-only, arrival order preserved.
func (h *MeetingHandler) HandleAddRecording(w http.ResponseWriter, r *http.Request) {
	var body recordingBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	if err := h.meetings.AppendRecording(r.Context(), r.PathValue("id"), body.URL); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
