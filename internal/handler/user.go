package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/amity-app/amity-server/internal/model"
	"github.com/amity-app/amity-server/internal/service"
)

// UserHandler exposes user lookup and discovery.
//
// Everything returned here is a PublicProfile — the full User (with email
// and timestamps) is only ever returned to its owner, via /api/me.
type UserHandler struct {
	identity *service.IdentityService
	logger   *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(identity *service.IdentityService, logger *slog.Logger) *UserHandler {
	return &UserHandler{identity: identity, logger: logger}
}

// HandleSearch finds users by username substring.
//
// HTTP: GET /api/users/search?q=ali&limit=20
func (h *UserHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")

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

	users, err := h.identity.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	// Strip each result down to its public shape. Pre-sizing the slice to
	// len 0 (not nil) guarantees an empty search encodes as [].
	profiles := make([]interface{}, 0, len(users))
	for i := range users {
		profiles = append(profiles, users[i].Public())
	}

	writeJSON(w, http.StatusOK, profiles)
}

// HandleUsernameCheck reports whether a username is taken.
//
// HTTP: GET /api/users/username-check?username=alice
//
// Case-insensitive: "Alice" is taken if "alice" exists. Clients use this
// for live availability feedback in a username picker.
func (h *UserHandler) HandleUsernameCheck(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")

	taken, err := h.identity.IsUsernameTaken(r.Context(), username)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"username":  username,
		"available": !taken,
	})
}

// HandleGet returns one user's public profile.
//
// HTTP: GET /api/users/{id}
//
// Soft-deleted accounts resolve to the placeholder profile rather than
// 404 — their messages still render, so the ID must stay dereferenceable.
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, err := h.identity.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	if user.Deleted {
		writeJSON(w, http.StatusOK, model.PlaceholderProfile(user.ID))
		return
	}

	writeJSON(w, http.StatusOK, user.Public())
}
