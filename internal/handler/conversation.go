package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/amity-app/amity-server/internal/auth"
	"github.com/amity-app/amity-server/internal/model"
	"github.com/amity-app/amity-server/internal/service"
)

// ConversationHandler manages chat threads and their messages.
//
// Every route here is viewer-scoped: the userID from the session cookie
// is threaded into every service call, and the service enforces that only
// participants see a conversation's contents. The handler never does
// authorization itself — it just identifies the caller.
type ConversationHandler struct {
	convs  *service.ConversationService
	logger *slog.Logger
}

// NewConversationHandler creates a ConversationHandler.
func NewConversationHandler(convs *service.ConversationService, logger *slog.Logger) *ConversationHandler {
	return &ConversationHandler{convs: convs, logger: logger}
}

// createConversationBody is the request body for HandleCreate.
type createConversationBody struct {
	Participants []string `json:"participants"`
	Name         string   `json:"name"`
}

// HandleCreate opens a new conversation.
//
// HTTP: POST /api/conversations
// REQUEST BODY: {"participants": ["userA", "userB"], "name": "optional"}
//
// The caller is always a participant — the service adds the requirement,
// we just pass the authenticated userID as createdBy.
func (h *ConversationHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var body createConversationBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.logger.Warn("create conversation: invalid JSON", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	conv, err := h.convs.Create(r.Context(), body.Participants, userID, body.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}

// HandleList returns the caller's conversations, newest activity first.
//
// HTTP: GET /api/conversations
//
// Each entry is a summary: the other participants' public profiles, the
// last message, and the caller's unread count.
func (h *ConversationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	summaries, err := h.convs.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summaries)
}

// HandleGet returns a single conversation.
//
// HTTP: GET /api/conversations/{id}
func (h *ConversationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	conv, err := h.convs.GetByID(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// HandleListMessages returns a page of messages, oldest first.
//
// HTTP: GET /api/conversations/{id}/messages?limit=50&before=2025-06-01T12:00:00Z&beforeId=abc
//
// CURSOR PAGINATION:
// "before" is an RFC 3339 timestamp cursor. The first request omits it
// and gets the newest page; each subsequent request passes the createdAt
// of the oldest message it has, walking backwards through history.
// "beforeId" should carry that message's ID alongside — it breaks ties
// between messages written in the same microsecond, so a page boundary
// between them never drops a row.
func (h *ConversationHandler) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "validation_error",
				Message: "limit must be an integer",
				Field:   "limit",
			})
			return
		}
		limit = n
	}

	var before *time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "validation_error",
				Message: "before must be an RFC 3339 timestamp",
				Field:   "before",
			})
			return
		}
		before = &t
	}

	messages, err := h.convs.ListMessages(r.Context(), r.PathValue("id"), userID, limit, before, r.URL.Query().Get("beforeId"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messages)
}

// postMessageBody is the request body for HandlePostMessage.
type postMessageBody struct {
	Content string            `json:"content"`
	Kind    model.MessageKind `json:"kind"`
}

// HandlePostMessage appends a message to a conversation.
//
// HTTP: POST /api/conversations/{id}/messages
// REQUEST BODY: {"content": "hello", "kind": "text"}
func (h *ConversationHandler) HandlePostMessage(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var body postMessageBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.logger.Warn("post message: invalid JSON", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	msg, err := h.convs.PostMessage(r.Context(), r.PathValue("id"), userID, body.Content, body.Kind)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// HandleMarkRead marks every message from other senders as read.
//
// HTTP: POST /api/conversations/{id}/read
//
// Idempotent — marking an already-read conversation is a successful no-op.
func (h *ConversationHandler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.convs.MarkConversationRead(r.Context(), r.PathValue("id"), userID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// pinBody is the request body for HandlePin.
type pinBody struct {
	Pinned bool `json:"pinned"`
}

// HandlePin sets or clears a message's pinned flag.
//
// HTTP: PUT /api/messages/{id}/pin
// REQUEST BODY: {"pinned": true}
func (h *ConversationHandler) HandlePin(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var body pinBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	msg, err := h.convs.SetPinned(r.Context(), r.PathValue("id"), userID, body.Pinned)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// reactBody is the request body for HandleReact.
type reactBody struct {
	Emoji string `json:"emoji"`
}

// HandleReact attaches an emoji reaction to a message.
//
// HTTP: POST /api/messages/{id}/reactions
// REQUEST BODY: {"emoji": "🔥"}
//
// Reactions accumulate — the same user reacting twice with the same emoji
// records two reactions. Clients that want toggle semantics build them on
// top of this log.
func (h *ConversationHandler) HandleReact(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var body reactBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	msg, err := h.convs.React(r.Context(), r.PathValue("id"), userID, body.Emoji)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// HandleListReactions returns a message's reactions, oldest first.
//
// HTTP: GET /api/messages/{id}/reactions
func (h *ConversationHandler) HandleListReactions(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	reactions, err := h.convs.Reactions(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reactions)
}
