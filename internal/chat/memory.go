package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// MemoryStore is a process-local Store used when no database is configured
// and in tests. CreatedAt never goes backwards, even if the wall clock does.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]MessageRecord // conversation key -> messages
	last     time.Time
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string][]MessageRecord),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Append(ctx context.Context, ref ConversationRef, sender UserID, content Content) (MessageRecord, error) {
	if err := ctx.Err(); err != nil {
		return MessageRecord{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.now()
	if at.Before(s.last) {
		at = s.last
	}
	s.last = at

	rec := MessageRecord{
		ID:           uuid.NewString(),
		Sender:       sender,
		Conversation: ref,
		Content:      content,
		CreatedAt:    at,
	}
	s.messages[ref.Key()] = append(s.messages[ref.Key()], rec)
	return rec, nil
}

func (s *MemoryStore) History(ctx context.Context, ref ConversationRef) ([]MessageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	// Copy so callers never alias the stored slice
	return append([]MessageRecord(nil), s.messages[ref.Key()]...), nil
}

// MemoryGroups is a process-local MembershipResolver.
type MemoryGroups struct {
	mu     sync.RWMutex
	groups map[GroupID]map[UserID]struct{}
}

func NewMemoryGroups() *MemoryGroups {
	return &MemoryGroups{groups: make(map[GroupID]map[UserID]struct{})}
}

// Put creates the group if needed and adds the participants to it.
func (g *MemoryGroups) Put(id GroupID, participants ...UserID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	members, ok := g.groups[id]
	if !ok {
		members = make(map[UserID]struct{})
		g.groups[id] = members
	}
	for _, p := range participants {
		members[p] = struct{}{}
	}
}

func (g *MemoryGroups) Remove(id GroupID, participant UserID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if members, ok := g.groups[id]; ok {
		delete(members, participant)
	}
}

func (g *MemoryGroups) ParticipantsOf(_ context.Context, id GroupID) ([]UserID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	members, ok := g.groups[id]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", id, ErrNotFound)
	}
	return lo.Keys(members), nil
}
