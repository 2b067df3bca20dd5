package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"talkative/internal/chat"
)

type recordingDispatcher struct {
	mu      sync.Mutex
	records []chat.MessageRecord
}

func (d *recordingDispatcher) Dispatch(_ context.Context, rec chat.MessageRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = append(d.records, rec)
}

func (d *recordingDispatcher) Records() []chat.MessageRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]chat.MessageRecord(nil), d.records...)
}

// stallingDispatcher blocks records of one conversation until released.
type stallingDispatcher struct {
	recordingDispatcher
	stall   string
	release chan struct{}
}

func (d *stallingDispatcher) Dispatch(ctx context.Context, rec chat.MessageRecord) {
	if rec.Conversation.Key() == d.stall {
		select {
		case <-d.release:
		case <-ctx.Done():
		}
	}
	d.recordingDispatcher.Dispatch(ctx, rec)
}

type runningRelay struct {
	relay  *Relay
	server *miniredis.Miniredis
	cancel context.CancelFunc
	done   chan error
}

// startRelay runs a relay against an in-process Redis and waits until it is subscribed.
func startRelay(t *testing.T, local chat.Dispatcher, log *zap.Logger) *runningRelay {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })

	relay := NewRelay(client, "", 0, local, log)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		return server.PubSubNumSub(DefaultChannel)[DefaultChannel] == 1
	}, 2*time.Second, 10*time.Millisecond)
	return &runningRelay{relay: relay, server: server, cancel: cancel, done: done}
}

func TestRelay_Falls_Back_To_Local_Dispatch_When_Redis_Is_Down(t *testing.T) {
	req := require.New(t)
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })
	local := &recordingDispatcher{}
	relay := NewRelay(client, "", 0, local, zap.NewNop())

	rec := chat.MessageRecord{ID: "m1", Sender: "A", Conversation: chat.Direct("A", "B"), Content: chat.TextContent("hi")}
	relay.Dispatch(context.Background(), rec)

	req.Equal(DefaultChannel, relay.channel)
	req.Len(local.records, 1)
	req.Equal("m1", local.records[0].ID)
}

func TestRelay_Record_Round_Trips_Through_Json(t *testing.T) {
	req := require.New(t)
	rec := chat.MessageRecord{
		ID:           "m2",
		Sender:       "A",
		Conversation: chat.Group("G"),
		Content:      chat.ImageContent("https://cdn.example.com/x.png", "x"),
		CreatedAt:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	b, err := json.Marshal(rec)
	req.NoError(err)
	var decoded chat.MessageRecord
	req.NoError(json.Unmarshal(b, &decoded))

	req.Equal(rec, decoded)
	req.True(decoded.Conversation.IsGroup())
}

func TestRelay_Run_Dispatches_Published_Records_Locally(t *testing.T) {
	req := require.New(t)
	local := &recordingDispatcher{}
	r := startRelay(t, local, zap.NewNop())

	// When a record is dispatched through Redis
	rec := chat.MessageRecord{ID: "m1", Sender: "A", Conversation: chat.Direct("A", "B"), Content: chat.TextContent("hi")}
	r.relay.Dispatch(context.Background(), rec)

	// Then the subscriber hands it to the local dispatcher
	req.Eventually(func() bool { return len(local.Records()) == 1 }, 2*time.Second, 10*time.Millisecond)
	req.Equal("m1", local.Records()[0].ID)
	req.Equal(chat.Direct("A", "B"), local.Records()[0].Conversation)
}

func TestRelay_Run_Skips_Undecodable_Payloads(t *testing.T) {
	req := require.New(t)
	core, logs := observer.New(zapcore.WarnLevel)
	local := &recordingDispatcher{}
	r := startRelay(t, local, zap.New(core))

	r.server.Publish(DefaultChannel, "{not json")
	r.relay.Dispatch(context.Background(), chat.MessageRecord{ID: "m2", Sender: "A", Conversation: chat.Group("G"), Content: chat.TextContent("hi")})

	req.Eventually(func() bool { return len(local.Records()) == 1 }, 2*time.Second, 10*time.Millisecond)
	req.Equal("m2", local.Records()[0].ID)
	req.Equal(1, logs.FilterMessage("dropping undecodable record").Len())
}

func TestRelay_Run_Returns_When_Context_Is_Cancelled(t *testing.T) {
	r := startRelay(t, &recordingDispatcher{}, zap.NewNop())

	r.cancel()

	select {
	case err := <-r.done:
		require.NoError(t, err)
		r.done <- err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRelay_Run_Slow_Conversation_Does_Not_Block_Others(t *testing.T) {
	req := require.New(t)
	slow := chat.Group("slow")

	// Pick a conversation that lands on another worker
	fast := chat.Group("fast")
	for i := 0; shardFor(fast, DefaultWorkers) == shardFor(slow, DefaultWorkers); i++ {
		fast = chat.Group(chat.GroupID(fmt.Sprintf("fast-%d", i)))
	}

	local := &stallingDispatcher{stall: slow.Key(), release: make(chan struct{})}
	r := startRelay(t, local, zap.NewNop())

	// Given the slow conversation is stuck in dispatch
	r.relay.Dispatch(context.Background(), chat.MessageRecord{ID: "s1", Sender: "A", Conversation: slow, Content: chat.TextContent("x")})
	// When another conversation's record arrives
	r.relay.Dispatch(context.Background(), chat.MessageRecord{ID: "f1", Sender: "A", Conversation: fast, Content: chat.TextContent("y")})

	// Then it is dispatched without waiting
	req.Eventually(func() bool { return len(local.Records()) == 1 }, 2*time.Second, 10*time.Millisecond)
	req.Equal("f1", local.Records()[0].ID)

	close(local.release)
	req.Eventually(func() bool { return len(local.Records()) == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestShardFor_Is_Stable_Per_Conversation(t *testing.T) {
	req := require.New(t)

	req.Equal(shardFor(chat.Direct("A", "B"), 8), shardFor(chat.Direct("B", "A"), 8))
	for _, n := range []int{1, 3, 8} {
		shard := shardFor(chat.Group("G"), n)
		req.GreaterOrEqual(shard, 0)
		req.Less(shard, n)
	}
}
