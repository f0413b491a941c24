package session

import (
	"sync"

	"github.com/tventura/livecastbot/igapi"
)

// Registry maps chat-user ids to their authenticated account clients. Entries
// live until explicitly removed or the registry is cleared at shutdown.
type Registry struct {
	mu      sync.RWMutex
	clients map[int64]*igapi.Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[int64]*igapi.Client)}
}

// Put binds a client to a chat user, replacing any previous binding.
func (r *Registry) Put(chatUserID int64, c *igapi.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[chatUserID] = c
}

// Get returns the client bound to a chat user, or nil.
func (r *Registry) Get(chatUserID int64) *igapi.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients[chatUserID]
}

// Remove evicts one chat user's binding.
func (r *Registry) Remove(chatUserID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, chatUserID)
}

// Len returns the number of bound sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Clear evicts every binding; used on process shutdown.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients = make(map[int64]*igapi.Client)
}
