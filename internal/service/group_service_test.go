package service

import (
	"context"
	"errors"
	"testing"

	"github.com/fathima-sithara/realtime-service/internal/models"
	"github.com/fathima-sithara/realtime-service/internal/repository"
)

func TestAddMembersFiltersAndNotifies(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedConversation("g1", true, "alice", "bob")
	e.store.AddUser("carol")
	e.store.AddUser("dave")
	aliceConn := e.connect("alice")

	added, err := e.groups.AddMembers(ctx, aliceConn, "g1", []string{"bob", "carol", "dave", "ghost"})
	if err != nil {
		t.Fatal(err)
	}
	if len(added) != 2 || added[0] != "carol" || added[1] != "dave" {
		t.Fatalf("added = %v, want carol and dave", added)
	}

	conv, _ := e.store.GetConversation(ctx, "g1")
	if len(conv.Participants) != 4 {
		t.Fatalf("participants = %d, want 4", len(conv.Participants))
	}
	if conv.IsParticipant("ghost") {
		t.Fatal("unknown user must not be added")
	}
	for _, p := range conv.Participants[2:] {
		if p.Role != models.RoleMember {
			t.Fatalf("new member role = %s, want member", p.Role)
		}
	}

	// every participant, including the new ones, hears about it
	if got := e.rec.byEvent("newmemberaddedtoconversation"); len(got) != 4 {
		t.Fatalf("roster notifications = %d, want 4", len(got))
	}
}

func TestAddMembersAllPresentIsInfoNotError(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedConversation("g1", true, "alice", "bob")
	aliceConn := e.connect("alice")

	_, err := e.groups.AddMembers(ctx, aliceConn, "g1", []string{"bob"})
	if !errors.Is(err, ErrInfo) {
		t.Fatalf("err = %v, want ErrInfo", err)
	}
	if e.rec.count() != 0 {
		t.Fatal("an all-present add must not mutate or notify")
	}
}

func TestAddMembersAdminOnly(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedConversation("g1", true, "alice", "bob")
	e.store.AddUser("carol")
	bobConn := e.connect("bob")

	_, err := e.groups.AddMembers(ctx, bobConn, "g1", []string{"carol"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	conv, _ := e.store.GetConversation(ctx, "g1")
	if len(conv.Participants) != 2 {
		t.Fatal("a rejected add must not change the participant set")
	}
}

func TestRemoveMemberNotifiesRemovedUserDirectly(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedConversation("g1", true, "alice", "bob", "carol")
	aliceConn := e.connect("alice")

	if err := e.groups.RemoveMember(ctx, aliceConn, "g1", "carol"); err != nil {
		t.Fatal(err)
	}

	conv, _ := e.store.GetConversation(ctx, "g1")
	if conv.IsParticipant("carol") {
		t.Fatal("carol should be gone")
	}

	got := e.rec.byEvent("memberremovedFromConversation")
	// two remaining participants plus the direct unicast to carol
	if len(got) != 3 {
		t.Fatalf("removal notifications = %d, want 3", len(got))
	}
	foundCarol := false
	for _, ev := range got {
		if ev.target == "carol" {
			foundCarol = true
		}
	}
	if !foundCarol {
		t.Fatal("the removed user must be notified despite leaving the room audience")
	}

	if err := e.groups.RemoveMember(ctx, aliceConn, "g1", "carol"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for an absent member", err)
	}
}

func TestPromoteToAdmin(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedConversation("g1", true, "alice", "bob", "carol")
	aliceConn := e.connect("alice")

	if err := e.groups.PromoteToAdmin(ctx, aliceConn, "g1", "bob"); err != nil {
		t.Fatal(err)
	}
	conv, _ := e.store.GetConversation(ctx, "g1")
	if !conv.IsAdmin("bob") {
		t.Fatal("bob should be admin")
	}
	if got := e.rec.byEvent("membertoadmin"); len(got) != 3 {
		t.Fatalf("promotion notifications = %d, want 3", len(got))
	}

	if err := e.groups.PromoteToAdmin(ctx, aliceConn, "g1", "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestLeaveEmptyingConversationDeletesEverything(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedConversation("solo", true, "alice")
	aliceConn := e.connect("alice")

	_, _ = e.messages.Send(ctx, aliceConn, SendInput{ConversationID: "solo", Content: "note to self"})

	if err := e.groups.Leave(ctx, aliceConn, "solo"); err != nil {
		t.Fatal(err)
	}

	if _, err := e.store.GetConversation(ctx, "solo"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatal("the emptied conversation must be hard-deleted")
	}
	if e.store.MessageCount("solo") != 0 {
		t.Fatal("its messages must be gone too")
	}

	got := e.rec.byEvent("conversationleaved")
	if len(got) != 1 || got[0].target != "alice" || got[0].payload["deleted"] != true {
		t.Fatalf("conversationleaved = %+v, want deleted:true to the leaver only", got)
	}
}

func TestLeaveSoleAdminPromotesFirstRemaining(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedConversation("g1", true, "alice", "bob", "carol")
	aliceConn := e.connect("alice")

	if err := e.groups.Leave(ctx, aliceConn, "g1"); err != nil {
		t.Fatal(err)
	}

	conv, _ := e.store.GetConversation(ctx, "g1")
	if len(conv.Participants) != 2 {
		t.Fatalf("participants = %d, want 2", len(conv.Participants))
	}
	if !conv.IsAdmin("bob") {
		t.Fatal("bob, first in participant order, should be promoted")
	}
	if conv.IsAdmin("carol") {
		t.Fatal("exactly one member should be promoted")
	}

	got := e.rec.byEvent("conversationleaved")
	// both remaining participants plus the leaver
	if len(got) != 3 {
		t.Fatalf("leave notifications = %d, want 3", len(got))
	}
	for _, ev := range got {
		if ev.payload["deleted"] != false {
			t.Fatalf("payload = %+v, want deleted:false", ev.payload)
		}
	}
}

func TestLeaveRequiresMembership(t *testing.T) {
	e := newEnv(t)
	e.seedConversation("g1", true, "alice", "bob")
	eveConn := e.connect("eve")

	if err := e.groups.Leave(context.Background(), eveConn, "g1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestDeleteConversationCascades(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedConversation("g1", true, "alice", "bob", "carol")
	aliceConn := e.connect("alice")
	bobConn := e.connect("bob")

	_, _ = e.messages.Send(ctx, aliceConn, SendInput{ConversationID: "g1", Content: "one"})
	_, _ = e.messages.Send(ctx, aliceConn, SendInput{ConversationID: "g1", Content: "two"})

	if err := e.groups.DeleteConversation(ctx, bobConn, "g1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized for non-admin", err)
	}

	if err := e.groups.DeleteConversation(ctx, aliceConn, "g1"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.store.GetConversation(ctx, "g1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatal("conversation must be hard-deleted")
	}
	if e.store.MessageCount("g1") != 0 {
		t.Fatal("messages must cascade")
	}

	if got := e.rec.byEvent("deletedtheconversation"); len(got) != 3 {
		t.Fatalf("delete notifications = %d, want one per former participant", len(got))
	}
}

func TestUpdateGroupInfoAndAvatar(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedConversation("g1", true, "alice", "bob")
	aliceConn := e.connect("alice")

	if err := e.groups.UpdateGroupInfo(ctx, aliceConn, "g1", "ops", "war room"); err != nil {
		t.Fatal(err)
	}
	conv, _ := e.store.GetConversation(ctx, "g1")
	if conv.Name != "ops" || conv.Description != "war room" {
		t.Fatalf("conv = %q/%q", conv.Name, conv.Description)
	}
	if got := e.rec.byEvent("updatedGroupInfo"); len(got) != 2 {
		t.Fatalf("info notifications = %d, want 2", len(got))
	}

	if err := e.groups.UpdateGroupAvatar(ctx, aliceConn, "g1", "https://cdn/avatar.png"); err != nil {
		t.Fatal(err)
	}
	conv, _ = e.store.GetConversation(ctx, "g1")
	if conv.Avatar != "https://cdn/avatar.png" {
		t.Fatalf("avatar = %q", conv.Avatar)
	}
	if got := e.rec.byEvent("updatedProfilePicture"); len(got) != 2 {
		t.Fatalf("avatar notifications = %d, want 2", len(got))
	}
}
