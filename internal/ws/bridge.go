package ws

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// remoteFrame is what travels over the redis channel between nodes.
type remoteFrame struct {
	Origin         string          `json:"origin"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Event          string          `json:"event"`
	Data           json.RawMessage `json:"data,omitempty"`
	All            bool            `json:"all,omitempty"`
}

// Bridge replicates room broadcasts across instances through redis
// pub/sub. Each node tags frames with its id and skips its own, so
// local delivery happens exactly once.
type Bridge struct {
	hub     *Hub
	rdb     *redis.Client
	channel string
	nodeID  string
	cancel  context.CancelFunc
	log     *zap.SugaredLogger
}

func NewBridge(hub *Hub, rdb *redis.Client, channel, nodeID string, log *zap.SugaredLogger) *Bridge {
	return &Bridge{hub: hub, rdb: rdb, channel: channel, nodeID: nodeID, log: log}
}

// Start subscribes and routes remote frames to the local hub until
// Stop is called.
func (b *Bridge) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					b.log.Warn("bridge subscription closed")
					return
				}
				var f remoteFrame
				if err := json.Unmarshal([]byte(msg.Payload), &f); err != nil {
					continue
				}
				if f.Origin == b.nodeID {
					continue
				}
				var payload any
				_ = json.Unmarshal(f.Data, &payload)
				if f.All {
					b.hub.SendAll(f.Event, payload)
				} else {
					b.hub.Broadcast(f.ConversationID, f.Event, payload)
				}
			}
		}
	}()
}

// Publish forwards a broadcast to the other nodes.
func (b *Bridge) Publish(ctx context.Context, conversationID, event string, payload any, all bool) {
	data, _ := json.Marshal(payload)
	frame, _ := json.Marshal(remoteFrame{
		Origin:         b.nodeID,
		ConversationID: conversationID,
		Event:          event,
		Data:           data,
		All:            all,
	})
	if err := b.rdb.Publish(ctx, b.channel, frame).Err(); err != nil {
		b.log.Warnw("bridge publish", "event", event, "err", err)
	}
}

func (b *Bridge) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
}
