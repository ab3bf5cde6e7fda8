package presence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry maps live connections to authenticated users and tracks
// online state. A user holds at most one session: a reconnect
// replaces the old mapping and events simply stop reaching the
// abandoned connection.
type Registry struct {
	mu     sync.RWMutex
	byConn map[string]string // connID -> userID
	byUser map[string]string // userID -> connID

	store Store
	log   *zap.SugaredLogger
}

func NewRegistry(store Store, log *zap.SugaredLogger) *Registry {
	return &Registry{
		byConn: make(map[string]string),
		byUser: make(map[string]string),
		store:  store,
		log:    log,
	}
}

// Register binds userID to connID, replacing any previous session for
// the user, and marks the user online. Presence persistence is
// best-effort: a store failure is logged, never fatal to the session.
func (r *Registry) Register(ctx context.Context, userID, connID string) {
	r.mu.Lock()
	if old, ok := r.byUser[userID]; ok && old != connID {
		delete(r.byConn, old)
	}
	r.byUser[userID] = connID
	r.byConn[connID] = userID
	r.mu.Unlock()

	if err := r.store.SetPresence(ctx, userID, StatusOnline, time.Now().UTC()); err != nil {
		r.log.Warnw("persist presence", "user", userID, "err", err)
	}
}

// Unregister drops the mapping for connID and marks the owning user
// offline. Returns the user id so the caller can broadcast the status
// change; ok is false when the connection never authenticated.
func (r *Registry) Unregister(ctx context.Context, connID string) (string, bool) {
	r.mu.Lock()
	userID, ok := r.byConn[connID]
	if ok {
		delete(r.byConn, connID)
		// a newer session may own the user mapping by now
		if cur, cok := r.byUser[userID]; cok && cur == connID {
			delete(r.byUser, userID)
		} else {
			ok = false
		}
	}
	r.mu.Unlock()
	if !ok {
		return "", false
	}

	if err := r.store.SetPresence(ctx, userID, StatusOffline, time.Now().UTC()); err != nil {
		r.log.Warnw("persist presence", "user", userID, "err", err)
	}
	return userID, true
}

// Resolve returns the authenticated user for a connection. Every
// engine operation starts here; absence means "not authenticated".
func (r *Registry) Resolve(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.byConn[connID]
	return userID, ok
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[userID]
	return ok
}

// ConnFor returns the user's current session, if any.
func (r *Registry) ConnFor(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.byUser[userID]
	return connID, ok
}
