package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/models"
	"github.com/fathima-sithara/realtime-service/internal/presence"
	"github.com/fathima-sithara/realtime-service/internal/repository"
)

// recorded is one dispatched event captured by the recorder.
type recorded struct {
	kind    string // "room", "roomExcept", "user", "conn", "all", "offline"
	target  string
	event   string
	payload map[string]any
}

// recorder is a Dispatcher that just remembers everything.
type recorder struct {
	mu     sync.Mutex
	events []recorded
}

func (r *recorder) add(kind, target, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, _ := payload.(map[string]any)
	r.events = append(r.events, recorded{kind: kind, target: target, event: event, payload: m})
}

func (r *recorder) Room(convID, event string, payload any) { r.add("room", convID, event, payload) }
func (r *recorder) RoomExcept(convID, exceptConnID, event string, payload any) {
	r.add("roomExcept", convID, event, payload)
}
func (r *recorder) User(userID, event string, payload any) { r.add("user", userID, event, payload) }
func (r *recorder) Conn(connID, event string, payload any) { r.add("conn", connID, event, payload) }
func (r *recorder) All(event string, payload any)          { r.add("all", "", event, payload) }
func (r *recorder) AllExcept(exceptConnID, event string, payload any) {
	r.add("allExcept", exceptConnID, event, payload)
}
func (r *recorder) Offline(userID, event string, payload any) {
	r.add("offline", userID, event, payload)
}

func (r *recorder) byEvent(event string) []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recorded
	for _, e := range r.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type env struct {
	store    *repository.MemoryStore
	registry *presence.Registry
	rec      *recorder
	messages *MessageService
	groups   *GroupService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := zap.NewNop().Sugar()
	store := repository.NewMemoryStore()
	registry := presence.NewRegistry(presence.NewMemoryStore(), log)
	rec := &recorder{}
	return &env{
		store:    store,
		registry: registry,
		rec:      rec,
		messages: NewMessageService(store, registry, rec, log),
		groups:   NewGroupService(store, registry, rec, log),
	}
}

// connect registers a live session "conn-<user>" for the user.
func (e *env) connect(user string) string {
	connID := "conn-" + user
	e.registry.Register(context.Background(), user, connID)
	return connID
}

// seedConversation inserts a conversation whose first participant is
// the admin, and registers each user with the store.
func (e *env) seedConversation(id string, isGroup bool, userIDs ...string) {
	now := time.Now().UTC()
	var parts []models.Participant
	for i, uid := range userIDs {
		role := models.RoleMember
		if i == 0 || !isGroup {
			role = models.RoleAdmin
		}
		parts = append(parts, models.Participant{UserID: uid, Role: role, JoinedAt: now})
		e.store.AddUser(uid)
	}
	_ = e.store.InsertConversation(context.Background(), &models.Conversation{
		ID:           id,
		IsGroup:      isGroup,
		Participants: parts,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

// failingStore wraps a Store and fails selected writes.
type failingStore struct {
	repository.Store
	failInsertMessage bool
	failUpdateMessage bool
}

func (f *failingStore) InsertMessage(ctx context.Context, m *models.Message) error {
	if f.failInsertMessage {
		return context.DeadlineExceeded
	}
	return f.Store.InsertMessage(ctx, m)
}

func (f *failingStore) UpdateMessage(ctx context.Context, m *models.Message) error {
	if f.failUpdateMessage {
		return context.DeadlineExceeded
	}
	return f.Store.UpdateMessage(ctx, m)
}
