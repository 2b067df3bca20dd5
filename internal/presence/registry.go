// Package presence tracks which live connections belong to which user.
package presence

import (
	"sync"

	"github.com/samber/lo"

	"talkative/internal/chat"
)

type handleSet map[string]chat.Handle

// Registry maps a user to the set of handles it is connected with.
// A handle is held by at most one user; byHandle is the reverse index that
// makes Unregister independent of the number of users online.
//
// Registry is safe for concurrent use by every connection goroutine.
type Registry struct {
	mu       sync.RWMutex
	byUser   map[chat.UserID]handleSet
	byHandle map[string]chat.UserID
}

func NewRegistry() *Registry {
	return &Registry{
		byUser:   make(map[chat.UserID]handleSet),
		byHandle: make(map[string]chat.UserID),
	}
}

// Register adds h to the user's entry without touching the user's other handles.
// Registering the same pair twice is a no-op. If h is currently held by another
// user it is moved.
func (r *Registry) Register(user chat.UserID, h chat.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.byHandle[h.ID()]; ok && owner != user {
		r.removeLocked(owner, h.ID())
	}

	set, ok := r.byUser[user]
	if !ok {
		set = make(handleSet)
		r.byUser[user] = set
	}
	set[h.ID()] = h
	r.byHandle[h.ID()] = user
}

// Lookup returns the live handles of a user, or an empty slice.
func (r *Registry) Lookup(user chat.UserID) []chat.Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.byUser[user]
	if !ok {
		return []chat.Handle{}
	}
	return lo.Values(set)
}

// Unregister removes h from whichever user holds it. Unknown handles are ignored.
func (r *Registry) Unregister(h chat.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.byHandle[h.ID()]
	if !ok {
		return
	}
	r.removeLocked(owner, h.ID())
}

func (r *Registry) removeLocked(user chat.UserID, handleID string) {
	delete(r.byHandle, handleID)
	if set, ok := r.byUser[user]; ok {
		delete(set, handleID)
		// Drop the entry with its last handle so offline users leave no trace
		if len(set) == 0 {
			delete(r.byUser, user)
		}
	}
}

// Online reports whether the user has at least one live handle.
func (r *Registry) Online(user chat.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[user]
	return ok
}

// Len is the number of users currently online.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
