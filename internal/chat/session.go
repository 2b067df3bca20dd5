package chat

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type SessionState int

const (
	StateConnected SessionState = iota
	StateIdentified
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateIdentified:
		return "identified"
	default:
		return "closed"
	}
}

// Session is the lifecycle of one transport connection:
// Connected --identify--> Identified --close--> Closed.
type Session struct {
	handle     Handle
	presence   Presence
	ingest     Ingester
	dispatcher Dispatcher
	log        *zap.Logger

	mu    sync.Mutex
	state SessionState
	user  UserID
}

func NewSession(h Handle, presence Presence, ingest Ingester, dispatcher Dispatcher, log *zap.Logger) *Session {
	return &Session{
		handle:     h,
		presence:   presence,
		ingest:     ingest,
		dispatcher: dispatcher,
		log:        log.With(zap.String("handle", h.ID())),
		state:      StateConnected,
	}
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) User() UserID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Identify binds the connection to a user. Identifying again is an idempotent
// register; identifying as a different user moves the handle.
func (s *Session) Identify(user UserID) error {
	if user == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return fmt.Errorf("%w: session is closed", ErrState)
	}
	s.presence.Register(user, s.handle)
	s.user = user
	s.state = StateIdentified
	s.log.Debug("identified", zap.String("user", string(user)))
	return nil
}

// Send ingests the payload and, once it is persisted, dispatches it.
func (s *Session) Send(ctx context.Context, p SendPayload) (MessageRecord, error) {
	s.mu.Lock()
	state, user := s.state, s.user
	s.mu.Unlock()

	if state != StateIdentified {
		return MessageRecord{}, fmt.Errorf("%w: send before identify (state %s)", ErrState, state)
	}
	sender := p.From
	if sender == "" {
		sender = user
	}
	if sender != user {
		return MessageRecord{}, fmt.Errorf("%w: sender %q does not match identified user", ErrValidation, sender)
	}

	rec, err := s.ingest.Ingest(ctx, sender, p.Conversation(sender), p.Content())
	if err != nil {
		return MessageRecord{}, err
	}
	s.dispatcher.Dispatch(ctx, rec)
	return rec, nil
}

// Close unregisters the handle. Only the first call has an effect.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	if s.state == StateIdentified {
		s.presence.Unregister(s.handle)
		s.log.Debug("unregistered", zap.String("user", string(s.user)))
	}
	s.state = StateClosed
}
