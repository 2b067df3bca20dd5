package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultResolverTimeout = 3 * time.Second

// Router fans a persisted message out to every live handle of its targets.
//
// Delivery is at most once per handle per call: there is no ack, retry or
// dedup. Offline targets are skipped; they read the message from history.
type Router struct {
	presence Presence
	groups   MembershipResolver
	profiles ProfileResolver
	timeout  time.Duration
	log      *zap.Logger
}

// NewRouter builds a Router. profiles may be nil, in which case deliveries
// carry an id-only sender profile.
func NewRouter(presence Presence, groups MembershipResolver, profiles ProfileResolver, resolverTimeout time.Duration, log *zap.Logger) *Router {
	if resolverTimeout <= 0 {
		resolverTimeout = defaultResolverTimeout
	}
	return &Router{
		presence: presence,
		groups:   groups,
		profiles: profiles,
		timeout:  resolverTimeout,
		log:      log,
	}
}

// Dispatch must only be called with a record the store has already returned.
func (r *Router) Dispatch(ctx context.Context, rec MessageRecord) {
	log := r.log.With(zap.String("message", rec.ID), zap.String("conversation", rec.Conversation.Key()))

	targets, err := r.targets(ctx, rec.Conversation)
	if err != nil {
		log.Error("dispatch aborted", zap.Error(err))
		return
	}
	sender := r.senderProfile(ctx, rec.Sender)

	var g errgroup.Group
	delivered := 0
	for _, target := range targets {
		for _, h := range r.presence.Lookup(target) {
			h := h // per-iteration copy (pre-Go 1.22 loop semantics)
			evt := DeliveryEvent{
				MessageID:    rec.ID,
				Content:      rec.Content,
				Sender:       sender,
				Conversation: rec.Conversation,
				Recipient:    target,
				FromSelf:     target == rec.Sender,
				Timestamp:    rec.CreatedAt,
			}
			delivered++
			g.Go(func() error {
				if err := h.Deliver(evt); err != nil {
					log.Warn("delivery failed",
						zap.String("recipient", string(evt.Recipient)),
						zap.String("handle", h.ID()),
						zap.Error(err))
				}
				// A failed handle never cancels its siblings
				return nil
			})
		}
	}
	_ = g.Wait()
	log.Debug("dispatched", zap.Int("targets", len(targets)), zap.Int("handles", delivered))
}

func (r *Router) targets(ctx context.Context, ref ConversationRef) ([]UserID, error) {
	if !ref.IsGroup() {
		return ref.Participants(), nil
	}
	resolveCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	members, err := r.groups.ParticipantsOf(resolveCtx, ref.GroupID)
	if err != nil {
		return nil, fmt.Errorf("%w: group %s: %w", ErrMembership, ref.GroupID, err)
	}
	// One event per (participant, handle) even if the resolver repeats a member
	return lo.Uniq(members), nil
}

func (r *Router) senderProfile(ctx context.Context, id UserID) Profile {
	if r.profiles == nil {
		return Profile{ID: id}
	}
	resolveCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	p, err := r.profiles.Profile(resolveCtx, id)
	if err != nil {
		r.log.Debug("sender profile unavailable", zap.String("user", string(id)), zap.Error(err))
		return Profile{ID: id}
	}
	return p
}
