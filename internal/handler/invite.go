package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/amity-app/amity-server/internal/auth"
	"github.com/amity-app/amity-server/internal/service"
)

// InviteHandler manages invite codes: issuing, inspecting, redeeming.
type InviteHandler struct {
	vault  *service.VaultService
	logger *slog.Logger
}

// NewInviteHandler creates an InviteHandler.
func NewInviteHandler(vault *service.VaultService, logger *slog.Logger) *InviteHandler {
	return &InviteHandler{vault: vault, logger: logger}
}

// issueInviteBody is the request body for HandleIssue.
//
// TTL is expressed in hours because that's the granularity invite expiry
// is actually chosen at; zero values fall back to the service defaults
// (single use, one week).
type issueInviteBody struct {
	MaxUses  int `json:"maxUses"`
	TTLHours int `json:"ttlHours"`
}

// HandleIssue mints a new invite code owned by the caller.
//
// HTTP: POST /api/invites
// REQUEST BODY: {"maxUses": 3, "ttlHours": 48}
func (h *InviteHandler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var body issueInviteBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.logger.Warn("issue invite: invalid JSON", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	invite, err := h.vault.IssueInvite(r.Context(), userID, body.MaxUses, time.Duration(body.TTLHours)*time.Hour)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, invite)
}

// HandleGet returns a live invite by its code.
//
// HTTP: GET /api/invites/{code}
//
// Expired and purged codes both come back 404 — callers cannot tell the
// difference, so the endpoint is useless for probing code liveness.
func (h *InviteHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	invite, err := h.vault.GetInvite(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, invite)
}

// HandleRedeem consumes one use of an invite code for the caller.
//
// HTTP: POST /api/invites/{code}/redeem
//
// Concurrent redeemers racing for the last use are serialized by the
// store's conditional increment — at most maxUses redemptions ever
// succeed, and the losers get 409 quota_exhausted.
func (h *InviteHandler) HandleRedeem(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	invite, err := h.vault.RedeemInvite(r.Context(), r.PathValue("code"), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, invite)
}
