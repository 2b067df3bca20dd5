package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sessionFixture struct {
	presence   *mapPresence
	store      *countingStore
	dispatcher *recordingDispatcher
	handle     *recordingHandle
	session    *Session
}

func newSessionFixture() *sessionFixture {
	f := &sessionFixture{
		presence:   newMapPresence(),
		store:      newCountingStore(),
		dispatcher: &recordingDispatcher{},
		handle:     newRecordingHandle(),
	}
	ingest := NewIngestService(f.store, IngestOptions{}, zap.NewNop())
	f.session = NewSession(f.handle, f.presence, ingest, f.dispatcher, zap.NewNop())
	return f
}

func TestSession_Starts_Connected(t *testing.T) {
	f := newSessionFixture()
	require.Equal(t, StateConnected, f.session.State())
	require.Empty(t, f.presence.Lookup("alice"))
}

func TestSession_Send_Before_Identify_Is_Rejected(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture()

	_, err := f.session.Send(context.Background(), SendPayload{To: "bob", From: "alice", Text: "hi"})

	// Then nothing is ingested nor dispatched
	req.ErrorIs(err, ErrState)
	req.Zero(f.store.Appends())
	req.Empty(f.dispatcher.Records())
}

func TestSession_Identify_Registers_Handle(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture()

	req.NoError(f.session.Identify("alice"))

	req.Equal(StateIdentified, f.session.State())
	req.Equal(UserID("alice"), f.session.User())
	req.Equal([]Handle{f.handle}, f.presence.Lookup("alice"))
}

func TestSession_Identify_Twice_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture()

	req.NoError(f.session.Identify("alice"))
	req.NoError(f.session.Identify("alice"))

	req.Len(f.presence.Lookup("alice"), 1)
}

func TestSession_Identify_Requires_User(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture()

	req.ErrorIs(f.session.Identify(""), ErrValidation)
	req.Equal(StateConnected, f.session.State())
}

func TestSession_Send_Persists_Then_Dispatches(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture()
	req.NoError(f.session.Identify("alice"))

	rec, err := f.session.Send(context.Background(), SendPayload{To: "bob", From: "alice", Text: "hi"})

	req.NoError(err)
	req.Equal(Direct("alice", "bob"), rec.Conversation)
	req.Equal([]MessageRecord{rec}, f.dispatcher.Records())

	// Read-after-write: the dispatched record is already in history
	history, err := f.store.History(context.Background(), rec.Conversation)
	req.NoError(err)
	req.Contains(history, rec)
}

func TestSession_Send_Group_Message(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture()
	req.NoError(f.session.Identify("alice"))

	rec, err := f.session.Send(context.Background(), SendPayload{
		To:      "g1",
		Image:   &ImagePayload{URL: "https://cdn.example.com/x.png"},
		IsGroup: true,
	})

	req.NoError(err)
	// Empty from defaults to the identified user
	req.Equal(UserID("alice"), rec.Sender)
	req.Equal(Group("g1"), rec.Conversation)
	req.Equal("https://cdn.example.com/x.png", rec.Content.Image.URL)
}

func TestSession_Send_As_Someone_Else_Is_Rejected(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture()
	req.NoError(f.session.Identify("alice"))

	_, err := f.session.Send(context.Background(), SendPayload{To: "carol", From: "bob", Text: "hi"})

	req.ErrorIs(err, ErrValidation)
	req.Zero(f.store.Appends())
}

func TestSession_Rejected_Content_Is_Not_Dispatched(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture()
	req.NoError(f.session.Identify("alice"))

	_, err := f.session.Send(context.Background(), SendPayload{To: "bob"})

	req.ErrorIs(err, ErrContent)
	req.Empty(f.dispatcher.Records())
}

func TestSession_Close_Unregisters_Once(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture()
	other := newRecordingHandle()
	f.presence.Register("alice", other)
	req.NoError(f.session.Identify("alice"))

	f.session.Close()
	f.session.Close()

	req.Equal(StateClosed, f.session.State())
	req.Equal([]Handle{other}, f.presence.Lookup("alice"))

	// Closed is terminal
	req.ErrorIs(f.session.Identify("alice"), ErrState)
	_, err := f.session.Send(context.Background(), SendPayload{To: "bob", Text: "hi"})
	req.ErrorIs(err, ErrState)
}

func TestSession_Stalled_Notifier_Does_Not_Delay_Dispatch(t *testing.T) {
	req := require.New(t)
	notifier := newStallingNotifier()
	store := newCountingStore()
	dispatcher := &recordingDispatcher{}
	ingest := NewIngestService(store, IngestOptions{
		StoreTimeout:  100 * time.Millisecond,
		Notifier:      notifier,
		NotifyTimeout: 300 * time.Millisecond,
	}, zap.NewNop())
	t.Cleanup(ingest.Close)
	session := NewSession(newRecordingHandle(), newMapPresence(), ingest, dispatcher, zap.NewNop())
	req.NoError(session.Identify("alice"))

	start := time.Now()
	rec, err := session.Send(context.Background(), SendPayload{To: "bob", Text: "hi"})

	// Then the live fan-out happens while the notifier is still stuck
	req.NoError(err)
	req.Less(time.Since(start), 500*time.Millisecond)
	req.Equal([]MessageRecord{rec}, dispatcher.Records())
	req.Equal(rec, <-notifier.calls)
}
