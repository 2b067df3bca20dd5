package user

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"talkative/internal/chat"
)

// MemoryDirectory is the in-process directory used without a database.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[chat.UserID]User
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{users: make(map[chat.UserID]User)}
}

func (d *MemoryDirectory) Put(u User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func (d *MemoryDirectory) Profile(_ context.Context, id chat.UserID) (chat.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return chat.Profile{}, fmt.Errorf("user %s: %w", id, chat.ErrNotFound)
	}
	return u.Profile(), nil
}

func (d *MemoryDirectory) SearchUsers(_ context.Context, query string) ([]User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	query = strings.ToLower(query)
	var out []User
	for _, u := range d.users {
		if strings.Contains(strings.ToLower(u.Username), query) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	if len(out) > 10 {
		out = out[:10]
	}
	return out, nil
}
