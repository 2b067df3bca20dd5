package chat

import "context"

// We define interfaces for what the chat core needs from its collaborators.
// This keeps the core independent of Postgres, Redis and the presence package.

// Store durably appends messages and returns them in createdAt order.
type Store interface {
	Append(ctx context.Context, ref ConversationRef, sender UserID, content Content) (MessageRecord, error)
	History(ctx context.Context, ref ConversationRef) ([]MessageRecord, error)
}

// MembershipResolver returns the current participants of a group.
// Unknown groups fail with ErrNotFound.
type MembershipResolver interface {
	ParticipantsOf(ctx context.Context, id GroupID) ([]UserID, error)
}

// ProfileResolver looks up the public profile of a sender.
type ProfileResolver interface {
	Profile(ctx context.Context, id UserID) (Profile, error)
}

// Notifier is told about every persisted message.
type Notifier interface {
	MessageCreated(ctx context.Context, rec MessageRecord) error
}

// Handle is one live transport connection.
// Deliver must not block; a full or closed connection returns ErrDelivery.
type Handle interface {
	ID() string
	Deliver(evt DeliveryEvent) error
}

// Presence is the subset of the presence registry the core relies on.
type Presence interface {
	Register(user UserID, h Handle)
	Lookup(user UserID) []Handle
	Unregister(h Handle)
}

// Dispatcher fans a persisted record out to live handles.
type Dispatcher interface {
	Dispatch(ctx context.Context, rec MessageRecord)
}

// Ingester validates and persists inbound messages.
type Ingester interface {
	Ingest(ctx context.Context, sender UserID, ref ConversationRef, content Content) (MessageRecord, error)
}
