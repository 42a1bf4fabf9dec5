// Package registry tracks the live connections the dispatcher delivers to.
//
// Two registries exist side by side: RoomRegistry holds message-channel
// connections keyed by (userID, roomID), and ContactRegistry holds presence
// connections keyed by userID alone. Both are process-local; entries vanish
// with the process and are rebuilt by clients reconnecting. Delivery state is
// always derived from presence at send time, never from registry history, so
// losing the maps is recoverable.
package registry

import "sync"

// Sender is the minimal interface the registries need from a connection: the
// ability to push one frame and to be closed at teardown. Callers must copy
// the Sender out of the registry before sending; no registry lock is held
// across Send.
type Sender interface {
	Send(v any) error
	Close() error
}

type roomKey struct {
	userID string
	roomID string
}

// RoomRegistry maps (userID, roomID) to the live message-channel connection.
// A reconnect for the same key replaces the previous entry; the superseded
// socket is closed independently by its own transport goroutines.
type RoomRegistry struct {
	mu    sync.RWMutex
	conns map[roomKey]Sender
}

// NewRoomRegistry creates an empty room registry.
func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{conns: make(map[roomKey]Sender)}
}

// Register stores s for (userID, roomID), replacing any prior connection for
// the same key.
func (r *RoomRegistry) Register(userID, roomID string, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[roomKey{userID, roomID}] = s
}

// Unregister removes the entry for (userID, roomID) if it still holds s.
// The identity check keeps a superseded socket's late unregister from
// evicting the connection that replaced it. Absent keys are a no-op.
func (r *RoomRegistry) Unregister(userID, roomID string, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := roomKey{userID, roomID}
	if cur, ok := r.conns[k]; ok && (s == nil || cur == s) {
		delete(r.conns, k)
	}
}

// Lookup returns the most recently registered connection for (userID, roomID).
func (r *RoomRegistry) Lookup(userID, roomID string) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.conns[roomKey{userID, roomID}]
	return s, ok
}

// Len reports the number of live entries.
func (r *RoomRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll closes every held connection and empties the registry. Called on
// shutdown.
func (r *RoomRegistry) CloseAll() {
	r.mu.Lock()
	conns := make([]Sender, 0, len(r.conns))
	for _, s := range r.conns {
		conns = append(conns, s)
	}
	r.conns = make(map[roomKey]Sender)
	r.mu.Unlock()

	for _, s := range conns {
		_ = s.Close()
	}
}

// ContactRegistry maps a bare userID to the user's presence connection. One
// entry per user; same replace/unregister semantics as RoomRegistry.
type ContactRegistry struct {
	mu    sync.RWMutex
	conns map[string]Sender
}

// NewContactRegistry creates an empty contact registry.
func NewContactRegistry() *ContactRegistry {
	return &ContactRegistry{conns: make(map[string]Sender)}
}

// Register stores s for userID, replacing any prior connection.
func (c *ContactRegistry) Register(userID string, s Sender) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[userID] = s
}

// Unregister removes userID's entry if it still holds s; no-op otherwise.
func (c *ContactRegistry) Unregister(userID string, s Sender) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.conns[userID]; ok && (s == nil || cur == s) {
		delete(c.conns, userID)
	}
}

// Lookup returns the user's presence connection, if any.
func (c *ContactRegistry) Lookup(userID string) (Sender, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.conns[userID]
	return s, ok
}

// Len reports the number of live entries.
func (c *ContactRegistry) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.conns)
}

// CloseAll closes every held connection and empties the registry.
func (c *ContactRegistry) CloseAll() {
	c.mu.Lock()
	conns := make([]Sender, 0, len(c.conns))
	for _, s := range c.conns {
		conns = append(conns, s)
	}
	c.conns = make(map[string]Sender)
	c.mu.Unlock()

	for _, s := range conns {
		_ = s.Close()
	}
}
