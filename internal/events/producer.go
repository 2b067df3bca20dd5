// Package events publishes message lifecycle events for downstream consumers
// such as notification and search services.
package events

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"talkative/internal/chat"
)

const TypeMessageCreated = "message.created"

// Messages are written one at a time; the kafka-go default of 1s would hold
// each write for the full batch window.
const batchTimeout = 5 * time.Millisecond

// MessageCreatedEvent is the value written to the topic.
type MessageCreatedEvent struct {
	Type    string             `json:"type"`
	Message chat.MessageRecord `json:"message"`
	SentAt  time.Time          `json:"sent_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Producer is a chat.Notifier backed by Kafka.
type Producer struct {
	writer messageWriter
	topic  string
}

func NewProducer(brokers []string, topic string) *Producer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: batchTimeout,
		Async:        false,
	}
	return &Producer{writer: w, topic: topic}
}

// MessageCreated writes the record keyed by conversation, so one conversation
// always lands on one partition and keeps its order.
func (p *Producer) MessageCreated(ctx context.Context, rec chat.MessageRecord) error {
	b, err := json.Marshal(MessageCreatedEvent{Type: TypeMessageCreated, Message: rec, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(rec.Conversation.Key()),
		Value: b,
		Time:  rec.CreatedAt,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
