package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/models"
	"github.com/fathima-sithara/realtime-service/internal/presence"
	"github.com/fathima-sithara/realtime-service/internal/repository"
)

// GroupService mutates conversation membership and group metadata.
// Everything except Leave requires the acting user to hold the admin
// role; authorization and mutation happen under the conversation lock
// so the role check and the write see the same snapshot.
type GroupService struct {
	store    repository.Store
	registry *presence.Registry
	dispatch Dispatcher
	locks    *lockTable
	log      *zap.SugaredLogger
}

func NewGroupService(store repository.Store, registry *presence.Registry, dispatch Dispatcher, log *zap.SugaredLogger) *GroupService {
	return &GroupService{
		store:    store,
		registry: registry,
		dispatch: dispatch,
		locks:    &convLocks,
		log:      log,
	}
}

// resolveAdmin loads the conversation and verifies the acting user is
// an admin participant. Callers must hold the conversation lock.
func (s *GroupService) resolveAdmin(ctx context.Context, connID, conversationID, denyMsg string) (string, *models.Conversation, error) {
	userID, ok := s.registry.Resolve(connID)
	if !ok {
		return "", nil, notAuthenticated()
	}
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return "", nil, convLoadErr(err)
	}
	if !conv.IsAdmin(userID) {
		return "", nil, unauthorized(denyMsg)
	}
	return userID, conv, nil
}

// AddMembers appends each genuinely new user as a member. Ids already
// in the conversation, and ids no user record exists for, are skipped;
// when nothing remains to add the caller gets an info signal and no
// state changes.
func (s *GroupService) AddMembers(ctx context.Context, connID, conversationID string, newUserIDs []string) ([]string, error) {
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	_, conv, err := s.resolveAdmin(ctx, connID, conversationID, "Only admins can add new members to the conversation")
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var added []string
	for _, id := range newUserIDs {
		if conv.IsParticipant(id) {
			continue
		}
		exists, err := s.store.UserExists(ctx, id)
		if err != nil {
			return nil, err
		}
		if !exists {
			s.log.Debugw("skip unknown user", "user", id)
			continue
		}
		conv.AddParticipant(id, models.RoleMember, now)
		added = append(added, id)
	}
	if len(added) == 0 {
		return nil, info("All selected users are already participants")
	}

	conv.UpdatedAt = now
	if err := s.store.UpdateConversation(ctx, conv); err != nil {
		return nil, err
	}

	for _, p := range conv.Participants {
		s.dispatch.User(p.UserID, "newmemberaddedtoconversation", map[string]any{
			"conversationId": conversationID,
			"participants":   conv.Participants,
		})
	}
	return added, nil
}

// RemoveMember removes the member and tells everyone, including the
// removed user, who is no longer part of the room audience and gets a
// direct unicast instead.
func (s *GroupService) RemoveMember(ctx context.Context, connID, conversationID, memberID string) error {
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	_, conv, err := s.resolveAdmin(ctx, connID, conversationID, "Only admins can remove members from the conversation")
	if err != nil {
		return err
	}
	if !conv.RemoveParticipant(memberID) {
		return notFound("Member not found")
	}

	conv.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateConversation(ctx, conv); err != nil {
		return err
	}

	payload := map[string]any{
		"conversationId": conversationID,
		"removedUserId":  memberID,
	}
	for _, p := range conv.Participants {
		s.dispatch.User(p.UserID, "memberremovedFromConversation", payload)
	}
	s.dispatch.User(memberID, "memberremovedFromConversation", payload)
	return nil
}

// PromoteToAdmin grants the admin role to an existing participant.
func (s *GroupService) PromoteToAdmin(ctx context.Context, connID, conversationID, memberID string) error {
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	_, conv, err := s.resolveAdmin(ctx, connID, conversationID, "Only admins can make other members admins")
	if err != nil {
		return err
	}
	p, ok := conv.Participant(memberID)
	if !ok {
		return notFound("Member not found in this conversation")
	}
	p.Role = models.RoleAdmin

	conv.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateConversation(ctx, conv); err != nil {
		return err
	}

	for _, pp := range conv.Participants {
		s.dispatch.User(pp.UserID, "membertoadmin", map[string]any{
			"conversationId": conversationID,
			"promotedUserId": memberID,
		})
	}
	return nil
}

// Leave removes the acting user from the conversation. Emptying it
// destroys the conversation and its messages outright; otherwise, if
// the leaver held the only admin role, the first remaining participant
// is promoted so the conversation never goes admin-less.
func (s *GroupService) Leave(ctx context.Context, connID, conversationID string) error {
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
	if !conv.RemoveParticipant(userID) {
		return unauthorized("User is not a participant in this conversation")
	}

	if len(conv.Participants) == 0 {
		if err := s.store.DeleteConversation(ctx, conversationID); err != nil {
			return err
		}
		s.dispatch.User(userID, "conversationleaved", map[string]any{
			"conversationId": conversationID,
			"leaveduser":     userID,
			"deleted":        true,
		})
		return nil
	}

	if promoted := conv.EnsureAdmin(); promoted != "" {
		s.log.Infow("promoted replacement admin", "conversation", conversationID, "user", promoted)
	}
	conv.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateConversation(ctx, conv); err != nil {
		return err
	}

	payload := map[string]any{
		"conversationId": conversationID,
		"leaveduser":     userID,
		"deleted":        false,
	}
	for _, p := range conv.Participants {
		s.dispatch.User(p.UserID, "conversationleaved", payload)
	}
	s.dispatch.User(userID, "conversationleaved", payload)
	return nil
}

// DeleteConversation hard-deletes the conversation and every message
// in it, then notifies each former participant directly — the room no
// longer exists to broadcast through.
func (s *GroupService) DeleteConversation(ctx context.Context, connID, conversationID string) error {
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	_, conv, err := s.resolveAdmin(ctx, connID, conversationID, "Only admins can delete the conversation")
	if err != nil {
		return err
	}

	former := make([]string, 0, len(conv.Participants))
	for _, p := range conv.Participants {
		former = append(former, p.UserID)
	}
	if err := s.store.DeleteConversation(ctx, conversationID); err != nil {
		return err
	}

	for _, id := range former {
		s.dispatch.User(id, "deletedtheconversation", map[string]any{
			"conversationId": conversationID,
		})
	}
	return nil
}

// UpdateGroupInfo sets the group name and description.
func (s *GroupService) UpdateGroupInfo(ctx context.Context, connID, conversationID, name, description string) error {
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	_, conv, err := s.resolveAdmin(ctx, connID, conversationID, "Only admins can edit the group info")
	if err != nil {
		return err
	}

	conv.Name = name
	conv.Description = description
	conv.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateConversation(ctx, conv); err != nil {
		return err
	}

	for _, p := range conv.Participants {
		s.dispatch.User(p.UserID, "updatedGroupInfo", map[string]any{
			"conversationId": conversationID,
			"name":           conv.Name,
			"description":    conv.Description,
		})
	}
	return nil
}

// UpdateGroupAvatar sets the group avatar reference.
func (s *GroupService) UpdateGroupAvatar(ctx context.Context, connID, conversationID, avatar string) error {
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	_, conv, err := s.resolveAdmin(ctx, connID, conversationID, "Only admins can edit the profile picture")
	if err != nil {
		return err
	}

	conv.Avatar = avatar
	conv.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateConversation(ctx, conv); err != nil {
		return err
	}

	for _, p := range conv.Participants {
		s.dispatch.User(p.UserID, "updatedProfilePicture", map[string]any{
			"conversationId": conversationID,
			"profilePicture": conv.Avatar,
		})
	}
	return nil
}
