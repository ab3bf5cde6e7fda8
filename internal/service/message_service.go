package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/models"
	"github.com/fathima-sithara/realtime-service/internal/presence"
	"github.com/fathima-sithara/realtime-service/internal/repository"
)

// MessageService owns the message lifecycle: send, read receipts,
// reactions, edit, soft delete, forward, pin and mute. Every
// operation resolves the acting identity, takes the conversation
// lock, persists, and only then dispatches — a failed persist means
// nothing is ever broadcast.
type MessageService struct {
	store    repository.Store
	registry *presence.Registry
	dispatch Dispatcher
	locks    *lockTable
	log      *zap.SugaredLogger
}

func NewMessageService(store repository.Store, registry *presence.Registry, dispatch Dispatcher, log *zap.SugaredLogger) *MessageService {
	return &MessageService{
		store:    store,
		registry: registry,
		dispatch: dispatch,
		locks:    &convLocks,
		log:      log,
	}
}

type SendInput struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	ContentType    string `json:"contentType"`
	MediaURL       string `json:"mediaUrl"`
	MediaSize      int64  `json:"mediaSize"`
	MediaName      string `json:"mediaName"`
	MediaType      string `json:"mediaType"`
	ReplyTo        string `json:"replyTo"`
}

// Send creates the message, updates the conversation tail and fans
// out. The sending state never exists server-side: a message is
// persisted as sent or not at all.
func (s *MessageService) Send(ctx context.Context, connID string, in SendInput) (*models.Message, error) {
	userID, ok := s.registry.Resolve(connID)
	if !ok {
		return nil, notAuthenticated()
	}
	if in.ConversationID == "" {
		return nil, invalid("conversationId is required")
	}

	unlock := s.locks.Lock(in.ConversationID)
	defer unlock()

	conv, err := s.store.GetConversation(ctx, in.ConversationID)
	if err != nil {
		return nil, convLoadErr(err)
	}
	if !conv.IsParticipant(userID) {
		return nil, unauthorized("You are not a participant in this conversation")
	}

	now := time.Now().UTC()
	contentType := in.ContentType
	if contentType == "" {
		contentType = models.ContentTypeText
	}
	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: in.ConversationID,
		SenderID:       userID,
		Content:        in.Content,
		ContentType:    contentType,
		MediaURL:       in.MediaURL,
		MediaSize:      in.MediaSize,
		MediaName:      in.MediaName,
		MediaType:      in.MediaType,
		ReplyTo:        in.ReplyTo,
		DeliveryStatus: models.StatusSent,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}
	conv.LastMessageID = msg.ID
	conv.UpdatedAt = now
	if err := s.store.UpdateConversation(ctx, conv); err != nil {
		return nil, err
	}

	s.dispatch.Room(in.ConversationID, "newMessage", map[string]any{
		"conversationId": in.ConversationID,
		"message":        msg,
	})
	for _, p := range conv.Participants {
		if p.UserID == userID {
			continue
		}
		if s.registry.IsOnline(p.UserID) {
			s.dispatch.User(p.UserID, "messageNotification", map[string]any{
				"conversationId":    in.ConversationID,
				"noofunreadmessage": 1,
			})
		} else if !conv.IsMutedBy(p.UserID) {
			s.dispatch.Offline(p.UserID, "messageNotification", map[string]any{
				"conversationId": in.ConversationID,
				"message":        msg,
			})
		}
	}
	for _, p := range conv.Participants {
		if s.registry.IsOnline(p.UserID) {
			s.dispatch.User(p.UserID, "sendmessageNotification", map[string]any{
				"conversationId": in.ConversationID,
				"message":        msg,
			})
		}
	}
	return msg, nil
}

// MarkRead upserts the reader's receipt and recomputes the delivery
// status from the full readBy set.
func (s *MessageService) MarkRead(ctx context.Context, connID, messageID, conversationID string) error {
	userID, ok := s.registry.Resolve(connID)
	if !ok {
		return notAuthenticated()
	}

	unlock := s.locks.Lock(conversationID)
	defer unlock()

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return convLoadErr(err)
	}
	if !conv.IsParticipant(userID) {
		return unauthorized("You are not a participant in this conversation")
	}
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return msgLoadErr(err)
	}

	msg.ApplyRead(userID, time.Now().UTC())
	msg.RecomputeStatus(conv)
	msg.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateMessage(ctx, msg); err != nil {
		return err
	}

	s.dispatch.Room(conversationID, "messageRead", map[string]any{
		"messageId": messageID,
		"userId":    userID,
		"status":    msg.DeliveryStatus,
	})
	s.dispatch.User(userID, "markNotificationread", map[string]any{
		"conversationId": conversationID,
	})
	return nil
}

// ToggleReaction adds the (user, emoji) pair or removes it when
// already present, then broadcasts the full reaction set.
func (s *MessageService) ToggleReaction(ctx context.Context, connID, messageID, emoji string) error {
	userID, ok := s.registry.Resolve(connID)
	if !ok {
		return notAuthenticated()
	}
	if emoji == "" {
		return invalid("emoji is required")
	}

	// the message names its conversation, so discover the lock key
	// first and re-read under the lock
	probe, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return msgLoadErr(err)
	}
	unlock := s.locks.Lock(probe.ConversationID)
	defer unlock()

	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return msgLoadErr(err)
	}
	conv, err := s.store.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		return convLoadErr(err)
	}
	if !conv.IsParticipant(userID) {
		return unauthorized("You are not a participant in this conversation")
	}

	msg.ToggleReaction(userID, emoji, time.Now().UTC())
	msg.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateMessage(ctx, msg); err != nil {
		return err
	}

	s.dispatch.Room(msg.ConversationID, "messageReaction", map[string]any{
		"messageId": messageID,
		"reactions": msg.Reactions,
	})
	return nil
}

// Delete soft-deletes: the row survives with placeholder content so
// replies and forwards keep rendering. Only the sender may delete,
// and deleting twice settles on the same sanitized state.
func (s *MessageService) Delete(ctx context.Context, connID, messageID, conversationID string) error {
	userID, ok := s.registry.Resolve(connID)
	if !ok {
		return notAuthenticated()
	}

	unlock := s.locks.Lock(conversationID)
	defer unlock()

	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return msgLoadErr(err)
	}
	if msg.SenderID != userID {
		return unauthorized("Unauthorized to delete this message")
	}

	msg.Sanitize(time.Now().UTC())
	msg.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateMessage(ctx, msg); err != nil {
		return err
	}

	s.dispatch.Room(conversationID, "messageDeleted", map[string]any{
		"messageId":      messageID,
		"conversationId": conversationID,
		"message":        msg,
	})
	return nil
}

// Edit replaces the content of a sender-owned plain-text message,
// keeping the prior content in the edit history.
func (s *MessageService) Edit(ctx context.Context, connID, messageID, conversationID, newContent string) error {
	userID, ok := s.registry.Resolve(connID)
	if !ok {
		return notAuthenticated()
	}

	unlock := s.locks.Lock(conversationID)
	defer unlock()

	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return msgLoadErr(err)
	}
	if msg.SenderID != userID {
		return unauthorized("Unauthorized to edit this message")
	}
	if msg.ContentType != models.ContentTypeText {
		return invalid("Only text messages can be edited")
	}
	if msg.IsDeleted {
		return invalid("Cannot edit a deleted message")
	}

	msg.RecordEdit(newContent, time.Now().UTC())
	msg.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateMessage(ctx, msg); err != nil {
		return err
	}

	// the capitalized ConversationId is what clients match on here
	s.dispatch.Room(conversationID, "messageEdited", map[string]any{
		"messageId":      messageID,
		"ConversationId": conversationID,
		"message":        msg,
	})
	s.dispatch.Conn(connID, "editSuccess", map[string]any{"messageId": messageID})
	return nil
}

// Forward copies the message into each target conversation where the
// acting user is a participant, silently skipping the rest. Partial
// success is the normal outcome, reported back as a count.
func (s *MessageService) Forward(ctx context.Context, connID, messageID string, targetConversationIDs []string) (int, error) {
	userID, ok := s.registry.Resolve(connID)
	if !ok {
		return 0, notAuthenticated()
	}

	original, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return 0, msgLoadErr(err)
	}

	count := 0
	for _, targetID := range targetConversationIDs {
		if err := s.forwardTo(ctx, userID, original, targetID); err != nil {
			s.log.Debugw("skip forward target", "target", targetID, "err", err)
			continue
		}
		count++
	}

	s.dispatch.Conn(connID, "messageForwarded", map[string]any{
		"success": true,
		"count":   count,
	})
	return count, nil
}

func (s *MessageService) forwardTo(ctx context.Context, userID string, original *models.Message, targetID string) error {
	unlock := s.locks.Lock(targetID)
	defer unlock()

	conv, err := s.store.GetConversation(ctx, targetID)
	if err != nil {
		return err
	}
	if !conv.IsParticipant(userID) {
		return unauthorized("not a participant")
	}

	now := time.Now().UTC()
	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: targetID,
		SenderID:       userID,
		Content:        original.Content,
		ContentType:    original.ContentType,
		MediaURL:       original.MediaURL,
		MediaSize:      original.MediaSize,
		MediaName:      original.MediaName,
		MediaType:      original.MediaType,
		IsForwarded:    true,
		ForwardedFrom:  original.ID,
		DeliveryStatus: models.StatusSent,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return err
	}
	conv.LastMessageID = msg.ID
	conv.UpdatedAt = now
	if err := s.store.UpdateConversation(ctx, conv); err != nil {
		return err
	}

	s.dispatch.Room(targetID, "newMessage", msg)
	for _, p := range conv.Participants {
		if p.UserID == userID {
			continue
		}
		if s.registry.IsOnline(p.UserID) {
			s.dispatch.User(p.UserID, "messageNotification", map[string]any{
				"conversationId": targetID,
				"message":        msg,
			})
		} else if !conv.IsMutedBy(p.UserID) {
			s.dispatch.Offline(p.UserID, "messageNotification", map[string]any{
				"conversationId": targetID,
				"message":        msg,
			})
		}
	}
	return nil
}

// TogglePin pins the message, or unpins it when already pinned. Any
// participant may pin; deleted messages cannot be pinned.
func (s *MessageService) TogglePin(ctx context.Context, connID, messageID, conversationID string) error {
	userID, ok := s.registry.Resolve(connID)
	if !ok {
		return notAuthenticated()
	}

	unlock := s.locks.Lock(conversationID)
	defer unlock()

	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return msgLoadErr(err)
	}
	if msg.IsDeleted {
		return invalid("Cannot pin a deleted message")
	}
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return convLoadErr(err)
	}
	if !conv.IsParticipant(userID) {
		return unauthorized("You are not a participant in this conversation")
	}

	pinned := conv.TogglePin(messageID)
	conv.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateConversation(ctx, conv); err != nil {
		return err
	}
	msg.IsPinned = pinned
	msg.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateMessage(ctx, msg); err != nil {
		return err
	}

	if pinned {
		s.dispatch.Room(conversationID, "messagePinned", map[string]any{
			"messageId":      messageID,
			"conversationId": conversationID,
			"message":        msg,
		})
		s.dispatch.Conn(connID, "pinSuccess", map[string]any{"messageId": messageID})
	} else {
		s.dispatch.Room(conversationID, "messageUnpinned", map[string]any{
			"messageId":      messageID,
			"conversationId": conversationID,
		})
		s.dispatch.Conn(connID, "unpinSuccess", map[string]any{"messageId": messageID})
	}
	return nil
}

// ToggleMute flips the acting user's mute flag on the conversation.
func (s *MessageService) ToggleMute(ctx context.Context, connID, conversationID string) error {
	userID, ok := s.registry.Resolve(connID)
	if !ok {
		return notAuthenticated()
	}

	unlock := s.locks.Lock(conversationID)
	defer unlock()

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return convLoadErr(err)
	}
	if !conv.IsParticipant(userID) {
		return unauthorized("You are not a participant in this conversation")
	}

	muted := conv.ToggleMute(userID)
	conv.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateConversation(ctx, conv); err != nil {
		return err
	}

	event := "unmuted"
	if muted {
		event = "muted"
	}
	s.dispatch.Room(conversationID, event, map[string]any{
		"userId":         userID,
		"conversationId": conversationID,
	})
	return nil
}

// Typing relays the indicator to the rest of the room. Nothing is
// persisted.
func (s *MessageService) Typing(connID, conversationID string, isTyping bool) error {
	userID, ok := s.registry.Resolve(connID)
	if !ok {
		return notAuthenticated()
	}
	if conversationID == "" {
		return invalid("conversationId is required")
	}
	s.dispatch.RoomExcept(conversationID, connID, "userTyping", map[string]any{
		"userId":   userID,
		"isTyping": isTyping,
	})
	return nil
}

func convLoadErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound("Conversation not found")
	}
	return err
}

func msgLoadErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound("Message not found")
	}
	return err
}
