package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/amity-app/amity-server/internal/apperror"
	"github.com/amity-app/amity-server/internal/model"
	"github.com/amity-app/amity-server/internal/repository"
)

const (
	// Conversation listing cap. Pagination of the conversation list itself
	// is not offered; fifty newest-updated threads cover any realistic
	// inbox screen.
	conversationListLimit = 50

	DefaultMessageLimit = 50
	MaxMessageLimit     = 100

	MaxMessageLength = 4000
)

// ConversationService owns conversations, their messages, and the derived
// per-viewer shapes (summaries, unread counts, delivery status).
//
// Authorization lives here, not in handlers: every message operation
// re-checks that the caller participates in the conversation, because the
// conversation ID arrives from the client and proves nothing by itself.
type ConversationService struct {
	convs    repository.ConversationRepository
	messages repository.MessageRepository
	users    repository.UserRepository
	logger   *slog.Logger
}

func NewConversationService(
	convs repository.ConversationRepository,
	messages repository.MessageRepository,
	users repository.UserRepository,
	logger *slog.Logger,
) *ConversationService {
	return &ConversationService{
		convs:    convs,
		messages: messages,
		users:    users,
		logger:   logger,
	}
}

// Create starts a conversation. The participant set is deduplicated
// (order preserved) and must be non-empty and include createdBy — a
// conversation its creator cannot see is always a caller bug.
// Group-ness is derived from the final participant count and fixed for
// the conversation's lifetime.
func (s *ConversationService) Create(ctx context.Context, participantIDs []string, createdBy, name string) (*model.Conversation, error) {
	if createdBy == "" {
		return nil, apperror.ValidationFailed("createdBy", "creator ID is required")
	}

	var participants []string
	for _, id := range participantIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if !slices.Contains(participants, id) {
			participants = append(participants, id)
		}
	}
	if len(participants) == 0 {
		return nil, apperror.ValidationFailed("participants", "participant set cannot be empty")
	}
	if !slices.Contains(participants, createdBy) {
		return nil, apperror.ValidationFailed("participants", "participant set must include the creator")
	}

	conv := &model.Conversation{
		Name:         strings.TrimSpace(name),
		Participants: participants,
		IsGroup:      len(participants) > 2,
		CreatedBy:    createdBy,
	}
	if err := s.convs.Create(ctx, conv); err != nil {
		return nil, storeErr(err)
	}

	s.logger.Info("conversation created",
		slog.String("conversationID", conv.ID),
		slog.String("createdBy", createdBy),
		slog.Int("participants", len(participants)),
		slog.Bool("isGroup", conv.IsGroup),
	)
	return conv, nil
}

// ListForUser returns the viewer's conversations as summaries: the OTHER
// participants' public profiles, the denormalized last message, and the
// unread count. Newest-updated first, capped.
//
// A participant whose account no longer resolves renders as a placeholder
// profile — soft-deleting a user must not break everyone else's inbox. A
// dangling lastMessage pointer (possible only after a crash between the
// two ordered writes in PostMessage) is skipped, not an error.
func (s *ConversationService) ListForUser(ctx context.Context, viewerID string) ([]model.ConversationSummary, error) {
	if viewerID == "" {
		return nil, apperror.ValidationFailed("userId", "user ID is required")
	}

	convs, err := s.convs.ListForUser(ctx, viewerID, conversationListLimit)
	if err != nil {
		return nil, storeErr(err)
	}

	// Profile cache spans the whole listing: the same few people appear
	// in many threads.
	profiles := make(map[string]model.PublicProfile)

	summaries := make([]model.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		summary := model.ConversationSummary{Conversation: conv}

		for _, pid := range conv.Participants {
			if pid == viewerID {
				continue
			}
			summary.Members = append(summary.Members, s.profileFor(ctx, profiles, pid))
		}

		if conv.LastMessageID != "" {
			msg, err := s.messages.GetByID(ctx, conv.LastMessageID)
			switch {
			case err == nil:
				view := s.viewOf(ctx, profiles, msg, viewerID)
				summary.LastMessage = &view
			case errors.Is(err, apperror.ErrNotFound):
				// stale pointer, tolerated
			default:
				return nil, storeErr(err)
			}
		}

		unread, err := s.messages.CountUnread(ctx, conv.ID, viewerID)
		if err != nil {
			return nil, storeErr(err)
		}
		summary.UnreadCount = unread

		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// GetByID returns the conversation if the viewer participates in it.
func (s *ConversationService) GetByID(ctx context.Context, convID, viewerID string) (*model.Conversation, error) {
	return s.authorized(ctx, convID, viewerID)
}

// ListMessages returns a page of the conversation's history for display:
// ascending by creation time, newest page first.
//
// The cursor contract: pass `before`/`beforeID` = the createdAt and ID of
// the OLDEST message of the previous page to get the next older page,
// with no gaps and no duplicates. The ID is the tiebreaker for messages
// sharing a timestamp; callers may omit it, accepting a coarser
// timestamp-only cursor. Internally the query runs descending with a
// strict before-the-cursor bound, then the page is reversed — querying
// ascending would return the conversation's FIRST messages, not the
// window adjacent to the cursor.
func (s *ConversationService) ListMessages(ctx context.Context, convID, viewerID string, limit int, before *time.Time, beforeID string) ([]model.MessageView, error) {
	if _, err := s.authorized(ctx, convID, viewerID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	if limit > MaxMessageLimit {
		limit = MaxMessageLimit
	}

	msgs, err := s.messages.ListByConversation(ctx, convID, repository.MessagePage{
		Limit:    limit,
		Before:   before,
		BeforeID: beforeID,
	})
	if err != nil {
		return nil, storeErr(err)
	}
	slices.Reverse(msgs)

	profiles := make(map[string]model.PublicProfile)
	views := make([]model.MessageView, 0, len(msgs))
	for i := range msgs {
		views = append(views, s.viewOf(ctx, profiles, &msgs[i], viewerID))
	}
	return views, nil
}

// PostMessage persists a message and then bumps the conversation's
// denormalized lastMessage pointer.
//
// The two writes are ordered, not transactional: the message lands first,
// so any reader that observes the updated pointer can fetch the message
// it names. A crash in between leaves the pointer one message stale —
// bounded, accepted, and repaired by the next post.
func (s *ConversationService) PostMessage(ctx context.Context, convID, senderID, content string, kind model.MessageKind) (*model.Message, error) {
	if _, err := s.authorized(ctx, convID, senderID); err != nil {
		return nil, err
	}

	if kind == "" {
		kind = model.KindText
	}
	if !kind.Valid() {
		return nil, apperror.ValidationFailed("kind", "unknown message kind")
	}
	if strings.TrimSpace(content) == "" {
		return nil, apperror.ValidationFailed("content", "message content cannot be empty")
	}
	if len(content) > MaxMessageLength {
		return nil, apperror.ValidationFailed("content", "message content is too long")
	}

	msg := &model.Message{
		ConversationID: convID,
		SenderID:       senderID,
		Content:        content,
		Kind:           kind,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, storeErr(err)
	}
	if err := s.convs.SetLastMessage(ctx, convID, msg.ID, msg.CreatedAt); err != nil {
		// The message is durable; only the denormalized pointer is stale.
		s.logger.Error("last-message pointer update failed",
			slog.String("conversationID", convID),
			slog.String("messageID", msg.ID),
			slog.String("error", err.Error()),
		)
	}
	return msg, nil
}

// MarkConversationRead flips every message the viewer did NOT send to
// read, zeroing the viewer's unread count in one statement.
func (s *ConversationService) MarkConversationRead(ctx context.Context, convID, viewerID string) error {
	if _, err := s.authorized(ctx, convID, viewerID); err != nil {
		return err
	}
	if err := s.messages.MarkConversationRead(ctx, convID, viewerID); err != nil {
		return storeErr(err)
	}
	return nil
}

// SetPinned pins or unpins a message and returns the updated record.
func (s *ConversationService) SetPinned(ctx context.Context, messageID, viewerID string, pinned bool) (*model.Message, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, storeErr(err)
	}
	if _, err := s.authorized(ctx, msg.ConversationID, viewerID); err != nil {
		return nil, err
	}
	if err := s.messages.SetPinned(ctx, messageID, pinned); err != nil {
		return nil, storeErr(err)
	}
	msg.Pinned = pinned
	return msg, nil
}

// React appends an emoji reaction and returns the message. Reactions are
// append-only and NOT deduplicated by user: reacting twice with the same
// emoji accumulates two records. That is intended behaviour.
func (s *ConversationService) React(ctx context.Context, messageID, userID, emoji string) (*model.Message, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, apperror.ValidationFailed("emoji", "emoji is required")
	}

	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, storeErr(err)
	}
	if _, err := s.authorized(ctx, msg.ConversationID, userID); err != nil {
		return nil, err
	}

	reaction := &model.Reaction{
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
	}
	if err := s.messages.AddReaction(ctx, reaction); err != nil {
		return nil, storeErr(err)
	}
	return msg, nil
}

// Reactions returns every reaction on a message, oldest first.
func (s *ConversationService) Reactions(ctx context.Context, messageID, viewerID string) ([]model.Reaction, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, storeErr(err)
	}
	if _, err := s.authorized(ctx, msg.ConversationID, viewerID); err != nil {
		return nil, err
	}
	reactions, err := s.messages.ListReactions(ctx, messageID)
	if err != nil {
		return nil, storeErr(err)
	}
	return reactions, nil
}

// authorized loads the conversation and verifies the viewer participates.
// A non-participant gets Forbidden even when the conversation exists —
// its existence is not a secret worth protecting, its contents are.
func (s *ConversationService) authorized(ctx context.Context, convID, viewerID string) (*model.Conversation, error) {
	if convID == "" {
		return nil, apperror.ValidationFailed("conversationId", "conversation ID is required")
	}
	if viewerID == "" {
		return nil, apperror.ValidationFailed("userId", "user ID is required")
	}
	conv, err := s.convs.GetByID(ctx, convID)
	if err != nil {
		return nil, storeErr(err)
	}
	if !slices.Contains(conv.Participants, viewerID) {
		return nil, apperror.Forbidden("not a participant in this conversation")
	}
	return conv, nil
}

// viewOf builds the per-viewer shape of a message: sender name resolved
// through the profile cache, and a delivery status derived ONLY for
// messages the viewer sent ("seen" once read, else "delivered"). For
// other senders the status stays empty and the JSON field is omitted —
// a delivery status is meaningless to a non-sender.
func (s *ConversationService) viewOf(ctx context.Context, profiles map[string]model.PublicProfile, msg *model.Message, viewerID string) model.MessageView {
	view := model.MessageView{Message: *msg}
	view.SenderName = s.profileFor(ctx, profiles, msg.SenderID).DisplayName
	if msg.SenderID == viewerID {
		if msg.IsRead {
			view.Status = "seen"
		} else {
			view.Status = "delivered"
		}
	}
	return view
}

// profileFor resolves a user ID to a public profile through the cache,
// falling back to the deleted-user placeholder when the account is gone.
func (s *ConversationService) profileFor(ctx context.Context, cache map[string]model.PublicProfile, userID string) model.PublicProfile {
	if p, ok := cache[userID]; ok {
		return p
	}
	user, err := s.users.GetByID(ctx, userID)
	var p model.PublicProfile
	if err != nil || user.Deleted {
		p = model.PlaceholderProfile(userID)
	} else {
		p = user.Public()
	}
	cache[userID] = p
	return p
}
