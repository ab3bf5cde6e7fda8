package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/presence"
	"github.com/fathima-sithara/realtime-service/internal/ws"
)

// Dispatcher fans a persisted state change out to its audience. The
// engines decide who hears what; the dispatcher only delivers.
type Dispatcher interface {
	// Room emits to every connection joined to the conversation room.
	Room(conversationID, event string, payload any)
	// RoomExcept is Room minus the given connection.
	RoomExcept(conversationID, exceptConnID, event string, payload any)
	// User emits to the user's current session; a no-op when offline.
	User(userID, event string, payload any)
	// Conn emits to one specific connection.
	Conn(connID, event string, payload any)
	// All emits to every connected session.
	All(event string, payload any)
	// AllExcept is All minus the given connection.
	AllExcept(exceptConnID, event string, payload any)
	// Offline queues a notification for a user with no live session.
	Offline(userID, event string, payload any)
}

// Notifier is the outbound queue for offline recipients.
type Notifier interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// FanOut delivers through the hub, resolves users via the presence
// registry, mirrors room traffic to other nodes over the bridge, and
// hands offline notifications to kafka.
type FanOut struct {
	hub      *ws.Hub
	registry *presence.Registry
	bridge   *ws.Bridge
	notifier Notifier
	log      *zap.SugaredLogger
}

func NewFanOut(hub *ws.Hub, registry *presence.Registry, bridge *ws.Bridge, notifier Notifier, log *zap.SugaredLogger) *FanOut {
	return &FanOut{hub: hub, registry: registry, bridge: bridge, notifier: notifier, log: log}
}

func (f *FanOut) Room(conversationID, event string, payload any) {
	f.hub.Broadcast(conversationID, event, payload)
	if f.bridge != nil {
		f.bridge.Publish(context.Background(), conversationID, event, payload, false)
	}
}

func (f *FanOut) RoomExcept(conversationID, exceptConnID, event string, payload any) {
	f.hub.BroadcastExcept(conversationID, exceptConnID, event, payload)
	if f.bridge != nil {
		f.bridge.Publish(context.Background(), conversationID, event, payload, false)
	}
}

func (f *FanOut) User(userID, event string, payload any) {
	connID, ok := f.registry.ConnFor(userID)
	if !ok {
		return
	}
	f.hub.Send(connID, event, payload)
}

func (f *FanOut) Conn(connID, event string, payload any) {
	f.hub.Send(connID, event, payload)
}

func (f *FanOut) All(event string, payload any) {
	f.hub.SendAll(event, payload)
	if f.bridge != nil {
		f.bridge.Publish(context.Background(), "", event, payload, true)
	}
}

func (f *FanOut) AllExcept(exceptConnID, event string, payload any) {
	f.hub.SendAllExcept(exceptConnID, event, payload)
	if f.bridge != nil {
		// the excluded connection is local, remote nodes deliver to everyone
		f.bridge.Publish(context.Background(), "", event, payload, true)
	}
}

func (f *FanOut) Offline(userID, event string, payload any) {
	if f.notifier == nil {
		return
	}
	body, _ := json.Marshal(map[string]any{
		"user_id": userID,
		"event":   event,
		"payload": payload,
	})
	if err := f.notifier.Publish(context.Background(), userID, body); err != nil {
		f.log.Warnw("queue offline notification", "user", userID, "event", event, "err", err)
	}
}
