// Package broker relays persisted messages between server instances so that
// every instance can fan out to the handles it holds.
package broker

import (
	"context"
	"encoding/json"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"talkative/internal/chat"
)

const (
	DefaultChannel = "chat-deliveries"
	DefaultWorkers = 8

	shardBuffer = 64
)

// Relay is a chat.Dispatcher that publishes records to Redis. Run subscribes
// to the same channel and hands every record to the local dispatcher, so each
// instance only touches its own presence registry.
type Relay struct {
	redis   *redis.Client
	channel string
	workers int
	local   chat.Dispatcher
	log     *zap.Logger
}

func NewRelay(client *redis.Client, channel string, workers int, local chat.Dispatcher, log *zap.Logger) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Relay{redis: client, channel: channel, workers: workers, local: local, log: log}
}

// Dispatch publishes the record. If Redis is unreachable the record is still
// fanned out to this instance's handles.
func (r *Relay) Dispatch(ctx context.Context, rec chat.MessageRecord) {
	payload, err := json.Marshal(rec)
	if err != nil {
		r.log.Error("encode record", zap.String("message", rec.ID), zap.Error(err))
		return
	}
	if err := r.redis.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.log.Warn("redis publish failed, dispatching locally", zap.String("message", rec.ID), zap.Error(err))
		r.local.Dispatch(ctx, rec)
	}
}

// Run listens for records from every instance (this one included) until ctx ends.
//
// Records are spread over a fixed set of workers by conversation, so one
// conversation is dispatched in order while a slow one only holds up its shard.
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.redis.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reporting ready
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	r.log.Info("relay subscribed", zap.String("channel", r.channel), zap.Int("workers", r.workers))

	shards := make([]chan chat.MessageRecord, r.workers)
	var g errgroup.Group
	for i := range shards {
		i := i // per-iteration copy (pre-Go 1.22 loop semantics)
		shards[i] = make(chan chat.MessageRecord, shardBuffer)
		g.Go(func() error {
			for rec := range shards[i] {
				r.local.Dispatch(ctx, rec)
			}
			return nil
		})
	}
	defer func() {
		for _, shard := range shards {
			close(shard)
		}
		_ = g.Wait()
	}()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var rec chat.MessageRecord
			if err := json.Unmarshal([]byte(msg.Payload), &rec); err != nil {
				r.log.Warn("dropping undecodable record", zap.Error(err))
				continue
			}
			select {
			case shards[shardFor(rec.Conversation, len(shards))] <- rec:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func shardFor(ref chat.ConversationRef, n int) int {
	return int(xxhash.Sum64String(ref.Key()) % uint64(n))
}
