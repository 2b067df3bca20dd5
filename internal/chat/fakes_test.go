package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// recordingHandle collects every event delivered to it.
type recordingHandle struct {
	id  string
	err error

	mu     sync.Mutex
	events []DeliveryEvent
}

func newRecordingHandle() *recordingHandle {
	return &recordingHandle{id: uuid.NewString()}
}

func (h *recordingHandle) ID() string { return h.id }

func (h *recordingHandle) Deliver(evt DeliveryEvent) error {
	if h.err != nil {
		return h.err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, evt)
	return nil
}

func (h *recordingHandle) Events() []DeliveryEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]DeliveryEvent(nil), h.events...)
}

// mapPresence is a minimal Presence for tests in this package.
type mapPresence struct {
	mu      sync.Mutex
	handles map[UserID][]Handle
}

func newMapPresence() *mapPresence {
	return &mapPresence{handles: make(map[UserID][]Handle)}
}

func (p *mapPresence) Register(user UserID, h Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.handles[user] {
		if existing.ID() == h.ID() {
			return
		}
	}
	p.handles[user] = append(p.handles[user], h)
}

func (p *mapPresence) Lookup(user UserID) []Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Handle(nil), p.handles[user]...)
}

func (p *mapPresence) Unregister(h Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for user, hs := range p.handles {
		for i, existing := range hs {
			if existing.ID() == h.ID() {
				p.handles[user] = append(hs[:i], hs[i+1:]...)
				if len(p.handles[user]) == 0 {
					delete(p.handles, user)
				}
				return
			}
		}
	}
}

func (p *mapPresence) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

// countingStore wraps a MemoryStore and counts appends.
type countingStore struct {
	*MemoryStore
	mu      sync.Mutex
	appends int
	err     error
	block   bool
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: NewMemoryStore()}
}

func (s *countingStore) Append(ctx context.Context, ref ConversationRef, sender UserID, content Content) (MessageRecord, error) {
	s.mu.Lock()
	s.appends++
	err, block := s.err, s.block
	s.mu.Unlock()
	if block {
		<-ctx.Done()
		return MessageRecord{}, ctx.Err()
	}
	if err != nil {
		return MessageRecord{}, err
	}
	return s.MemoryStore.Append(ctx, ref, sender, content)
}

func (s *countingStore) Appends() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appends
}

type failingResolver struct{}

func (failingResolver) ParticipantsOf(context.Context, GroupID) ([]UserID, error) {
	return nil, errors.New("membership backend down")
}

type recordingDispatcher struct {
	mu      sync.Mutex
	records []MessageRecord
}

func (d *recordingDispatcher) Dispatch(_ context.Context, rec MessageRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = append(d.records, rec)
}

func (d *recordingDispatcher) Records() []MessageRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]MessageRecord(nil), d.records...)
}

type recordingNotifier struct {
	mu      sync.Mutex
	records []MessageRecord
	err     error
}

func (n *recordingNotifier) MessageCreated(_ context.Context, rec MessageRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.records = append(n.records, rec)
	return n.err
}

func (n *recordingNotifier) Records() []MessageRecord {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]MessageRecord(nil), n.records...)
}

// stallingNotifier blocks every call until its context ends.
type stallingNotifier struct {
	calls chan MessageRecord
}

func newStallingNotifier() *stallingNotifier {
	return &stallingNotifier{calls: make(chan MessageRecord, 16)}
}

func (n *stallingNotifier) MessageCreated(ctx context.Context, rec MessageRecord) error {
	n.calls <- rec
	<-ctx.Done()
	return ctx.Err()
}
