package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Store persists derived presence so other instances (and the REST
// side) can read a user's status and last-seen without touching the
// registry's in-process maps.
type Store interface {
	SetPresence(ctx context.Context, userID, status string, lastSeen time.Time) error
	GetPresence(ctx context.Context, userID string) (status string, lastSeen time.Time, err error)
}

type record struct {
	Status   string `json:"status"`
	LastSeen int64  `json:"last_seen"`
}

// RedisStore keeps presence as JSON under <prefix>:presence:<userID>.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(userID string) string {
	return fmt.Sprintf("%s:presence:%s", s.prefix, userID)
}

func (s *RedisStore) SetPresence(ctx context.Context, userID, status string, lastSeen time.Time) error {
	b, _ := json.Marshal(record{Status: status, LastSeen: lastSeen.Unix()})
	ttl := s.ttl
	if status == StatusOffline {
		// offline records stay until the next login overwrites them
		ttl = 0
	}
	return s.client.Set(ctx, s.key(userID), b, ttl).Err()
}

func (s *RedisStore) GetPresence(ctx context.Context, userID string) (string, time.Time, error) {
	b, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		return StatusOffline, time.Time{}, err
	}
	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		return StatusOffline, time.Time{}, err
	}
	return r.Status, time.Unix(r.LastSeen, 0), nil
}

// MemoryStore is the in-process Store used by tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]record)}
}

func (s *MemoryStore) SetPresence(ctx context.Context, userID, status string, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[userID] = record{Status: status, LastSeen: lastSeen.Unix()}
	return nil
}

func (s *MemoryStore) GetPresence(ctx context.Context, userID string) (string, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[userID]
	if !ok {
		return StatusOffline, time.Time{}, nil
	}
	return r.Status, time.Unix(r.LastSeen, 0), nil
}
