////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package store

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"gitlab.com/elixxir/chatsync/history"
	"gitlab.com/elixxir/chatsync/message"
)

var testRoom = message.RoomKey("ABC123")

// mockFetcher serves a fixed history, newest last, for each conversation.
type mockFetcher struct {
	history map[message.ConversationKey][]*message.Message
	calls   int32
	err     error

	// block, when set, is waited on before every fetch returns.
	block chan struct{}
	// started receives a value when a fetch begins.
	started chan struct{}
}

func newMockFetcher() *mockFetcher {
	return &mockFetcher{
		history: make(map[message.ConversationKey][]*message.Message)}
}

func (f *mockFetcher) FetchMessages(ctx context.Context,
	key message.ConversationKey, limit, offset int) ([]*message.Message, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}

	all := f.history[key]
	end := len(all) - offset
	if end <= 0 {
		return nil, nil
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	out := make([]*message.Message, 0, end-start)
	for _, m := range all[start:end] {
		out = append(out, m.Clone())
	}
	return out, nil
}

func (f *mockFetcher) FetchMessagesAround(_ context.Context,
	key message.ConversationKey, target message.ID) ([]*message.Message, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	all := f.history[key]
	for i, m := range all {
		if m.ID == target {
			start, end := i-2, i+3
			if start < 0 {
				start = 0
			}
			if end > len(all) {
				end = len(all)
			}
			return all[start:end], nil
		}
	}
	return nil, nil
}

// makeHistory returns n persisted messages with IDs 1 through n, one minute
// apart.
func makeHistory(key message.ConversationKey, n int) []*message.Message {
	base := time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)
	msgs := make([]*message.Message, n)
	for i := range msgs {
		at := base.Add(time.Duration(i) * time.Minute)
		msgs[i] = &message.Message{
			ID:           message.ID(strconv.Itoa(i + 1)),
			Status:       message.Sent,
			Sender:       "bob",
			Conversation: key,
			Text:         "message " + strconv.Itoa(i+1),
			SentAt:       at,
			DisplayTime:  at.Format(message.DisplayTimeLayout),
		}
	}
	return msgs
}

func newTestStore(f Fetcher) *Store {
	return New(GetDefaultParams(), f, nil, nil)
}

// Tests the first-open scenario of a room with 25 messages: the first page
// loads 20 with more available, the second the remaining 5 and ends paging.
func TestStore_LoadInitial_LoadOlder(t *testing.T) {
	f := newMockFetcher()
	f.history[testRoom] = makeHistory(testRoom, 25)
	s := newTestStore(f)

	n, err := s.LoadInitial(context.Background(), testRoom)
	require.NoError(t, err)
	require.Equal(t, 20, n)
	require.True(t, s.HasMore())
	require.Equal(t, 20, s.Offset())

	n, err = s.LoadOlder(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.False(t, s.HasMore())
	require.Equal(t, 25, s.Offset())

	msgs := s.Messages()
	require.Len(t, msgs, 25)
	for i, m := range msgs {
		if m.ID != message.ID(strconv.Itoa(i+1)) {
			t.Errorf("Message %d out of order.\nexpected: %s\nreceived: %s",
				i, strconv.Itoa(i+1), m.ID)
		}
	}

	// Exhausted: no further fetch
	calls := atomic.LoadInt32(&f.calls)
	n, err = s.LoadOlder(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, calls, atomic.LoadInt32(&f.calls))
}

// Tests that the offset equals the total number of historical messages
// fetched and that it never decreases while paging.
func TestStore_PaginationMonotonic(t *testing.T) {
	f := newMockFetcher()
	f.history[testRoom] = makeHistory(testRoom, 67)
	s := newTestStore(f)

	_, err := s.LoadInitial(context.Background(), testRoom)
	require.NoError(t, err)

	fetched, last := 20, s.Offset()
	for s.HasMore() {
		n, err := s.LoadOlder(context.Background())
		require.NoError(t, err)
		fetched += n
		if s.Offset() < last {
			t.Fatalf("Offset decreased.\nprevious: %d\nreceived: %d",
				last, s.Offset())
		}
		last = s.Offset()
	}
	require.Equal(t, 67, fetched)
	require.Equal(t, 67, s.Offset())
	require.Equal(t, 67, s.Len())
}

// Tests that a page overlapping loaded messages only prepends new IDs.
func TestStore_LoadOlder_SkipsPresentIDs(t *testing.T) {
	f := newMockFetcher()
	f.history[testRoom] = makeHistory(testRoom, 50)
	s := newTestStore(f)

	_, err := s.LoadInitial(context.Background(), testRoom)
	require.NoError(t, err)

	// A new message arrives and shifts the server side offsets by one
	latest := makeHistory(testRoom, 51)[50]
	f.history[testRoom] = append(f.history[testRoom], latest)
	added, err := s.AppendLive(latest)
	require.NoError(t, err)
	require.True(t, added)

	n, err := s.LoadOlder(context.Background())
	require.NoError(t, err)
	require.Equal(t, 19, n)
	require.Equal(t, 40, s.Offset())
	require.Equal(t, 40, s.Len())

	seen := make(map[message.ID]bool)
	for _, m := range s.Messages() {
		require.False(t, seen[m.ID], "duplicate %s", m.ID)
		seen[m.ID] = true
	}
}

// Tests that two concurrent LoadOlder calls result in a single fetch.
func TestStore_LoadOlder_SingleFlight(t *testing.T) {
	f := newMockFetcher()
	f.history[testRoom] = makeHistory(testRoom, 50)
	s := newTestStore(f)
	_, err := s.LoadInitial(context.Background(), testRoom)
	require.NoError(t, err)

	f.block = make(chan struct{})
	f.started = make(chan struct{}, 2)
	before := atomic.LoadInt32(&f.calls)

	var wg sync.WaitGroup
	results := make(chan int, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		n, _ := s.LoadOlder(context.Background())
		results <- n
	}()

	select {
	case <-f.started:
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for first fetch to start.")
	}

	n, err := s.LoadOlder(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)

	close(f.block)
	wg.Wait()
	require.Equal(t, 20, <-results)
	require.Equal(t, before+1, atomic.LoadInt32(&f.calls))
}

// Tests that a failed fetch stops paging until the manual retry, which
// fetches from the same offset.
func TestStore_LoadMore_AfterFailure(t *testing.T) {
	f := newMockFetcher()
	f.history[testRoom] = makeHistory(testRoom, 45)
	s := newTestStore(f)
	_, err := s.LoadInitial(context.Background(), testRoom)
	require.NoError(t, err)

	f.err = errors.New("connection reset")
	_, err = s.LoadOlder(context.Background())
	require.True(t, errors.Is(err, history.ErrFetchFailure))
	require.True(t, s.Failed())
	require.False(t, s.HasMore())
	require.Equal(t, 20, s.Offset())
	require.Equal(t, 20, s.Len())

	// Automatic paging does nothing while stopped
	f.err = nil
	n, err := s.LoadOlder(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = s.LoadMore(context.Background())
	require.NoError(t, err)
	require.Equal(t, 20, n)
	require.Equal(t, 40, s.Offset())
	require.False(t, s.Failed())
}

// Tests that a failed initial load is retried as an initial load.
func TestStore_LoadMore_InitialFailure(t *testing.T) {
	f := newMockFetcher()
	f.history[testRoom] = makeHistory(testRoom, 3)
	f.err = errors.New("timeout")
	s := newTestStore(f)

	_, err := s.LoadInitial(context.Background(), testRoom)
	var ff *history.FetchFailure
	require.True(t, errors.As(err, &ff))
	require.Zero(t, s.Len())
	require.Equal(t, testRoom, s.Active())

	f.err = nil
	n, err := s.LoadMore(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.False(t, s.HasMore())
}

// Tests that messages of other conversations dropped from a page still
// count towards the offset and do not end paging.
func TestStore_LoadOlder_ForeignMessages(t *testing.T) {
	f := newMockFetcher()
	history := makeHistory(testRoom, 25)
	history[20].Conversation = message.RoomKey("XYZ")
	history[2].Conversation = message.RoomKey("XYZ")
	f.history[testRoom] = history
	s := newTestStore(f)

	n, err := s.LoadInitial(context.Background(), testRoom)
	require.NoError(t, err)
	require.Equal(t, 19, n)
	require.Equal(t, 20, s.Offset())
	require.True(t, s.HasMore())

	n, err = s.LoadOlder(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, 25, s.Offset())
	require.False(t, s.HasMore())
	require.Equal(t, 23, s.Len())
}

// Tests that a load in flight when the store is reset discards its result.
func TestStore_LoadInitial_Superseded(t *testing.T) {
	other := message.RoomKey("XYZ")
	f := newMockFetcher()
	f.history[testRoom] = makeHistory(testRoom, 5)
	f.block = make(chan struct{})
	f.started = make(chan struct{}, 1)
	s := newTestStore(f)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.LoadInitial(context.Background(), testRoom)
		errCh <- err
	}()
	<-f.started
	s.Reset(other)
	close(f.block)

	require.True(t, errors.Is(<-errCh, ErrSuperseded))
	require.Equal(t, other, s.Active())
	require.Zero(t, s.Len())
}

// Tests that an initial load of a conversation the store is no longer bound
// to is refused without rebinding the store.
func TestStore_LoadInitial_OtherConversation(t *testing.T) {
	other := message.RoomKey("XYZ")
	f := newMockFetcher()
	f.history[testRoom] = makeHistory(testRoom, 5)
	s := newTestStore(f)
	s.Reset(other)

	n, err := s.LoadInitial(context.Background(), testRoom)
	require.True(t, errors.Is(err, ErrSuperseded))
	require.Zero(t, n)
	require.Equal(t, other, s.Active())
	require.Zero(t, s.Len())

	_, err = s.AppendLive(&message.Message{ID: "1", Sender: "bob",
		Conversation: testRoom, Text: "late"})
	require.Error(t, err)
}

// Tests that live messages arriving during the initial load survive it.
func TestStore_LoadInitial_KeepsLive(t *testing.T) {
	f := newMockFetcher()
	f.history[testRoom] = makeHistory(testRoom, 4)
	s := newTestStore(f)
	s.Reset(testRoom)

	// One message is also in the page, one is not
	dup := f.history[testRoom][3].Clone()
	fresh := &message.Message{ID: "99", Sender: "carol", Conversation: testRoom,
		Text: "new", Status: message.Sent}
	for _, m := range []*message.Message{dup, fresh} {
		_, err := s.AppendLive(m)
		require.NoError(t, err)
	}

	_, err := s.LoadInitial(context.Background(), testRoom)
	require.NoError(t, err)
	msgs := s.Messages()
	require.Len(t, msgs, 5)
	require.Equal(t, message.ID("99"), msgs[4].ID)
}

// Tests that a message of another conversation is discarded with a
// StaleConversationEvent.
func TestStore_AppendLive_StaleConversation(t *testing.T) {
	s := newTestStore(newMockFetcher())
	s.Reset(testRoom)

	m := &message.Message{ID: "1", Sender: "bob", Text: "x",
		Conversation: message.DirectKey("alice", "bob")}
	added, err := s.AppendLive(m)
	require.False(t, added)
	require.True(t, errors.Is(err, ErrStaleConversation))

	var stale *StaleConversationEvent
	require.True(t, errors.As(err, &stale))
	require.Equal(t, testRoom, stale.Active)
	require.Zero(t, s.Len())
}

// Tests that appending an already present message leaves the store
// unchanged.
func TestStore_AppendLive_Idempotent(t *testing.T) {
	s := newTestStore(newMockFetcher())
	s.Reset(testRoom)

	m := makeHistory(testRoom, 1)[0]
	added, err := s.AppendLive(m)
	require.NoError(t, err)
	require.True(t, added)
	before := s.Messages()

	added, err = s.AppendLive(m.Clone())
	require.NoError(t, err)
	require.False(t, added)
	require.Equal(t, before, s.Messages())
}

// Tests that the echo of message 42 and its broadcast 200ms later produce a
// single copy.
func TestStore_AppendLive_EchoAndBroadcast(t *testing.T) {
	s := newTestStore(newMockFetcher())
	s.Reset(testRoom)

	at := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	echo := &message.Message{ID: "42", Status: message.Sent, Sender: "alice",
		Conversation: testRoom, Text: "hi", SentAt: at}
	broadcast := echo.Clone()
	broadcast.SentAt = at.Add(200 * time.Millisecond)

	_, _ = s.AppendLive(echo)
	_, _ = s.AppendLive(broadcast)
	require.Equal(t, 1, s.Len())
}

// Tests that an edit patch only changes the text and the edited flag.
func TestStore_ApplyPointUpdate_Edit(t *testing.T) {
	s := newTestStore(newMockFetcher())
	s.Reset(testRoom)
	m := &message.Message{ID: "7", Status: message.Sent, Sender: "bob",
		Conversation: testRoom, Text: "a", DisplayTime: "10:00",
		ReadBy: []string{"bob"}}
	_, _ = s.AppendLive(m)

	text := "b"
	require.True(t, s.ApplyPointUpdate("7", message.Patch{Text: &text}))

	got, ok := s.Get("7")
	require.True(t, ok)
	expected := m.Clone()
	expected.Text = "b"
	expected.IsEdited = true
	require.Equal(t, expected, got)

	require.False(t, s.ApplyPointUpdate("8", message.Patch{Text: &text}))
}

// Tests that readBy only grows under patches.
func TestStore_ApplyPointUpdate_ReadByMonotonic(t *testing.T) {
	s := newTestStore(newMockFetcher())
	s.Reset(testRoom)
	_, _ = s.AppendLive(&message.Message{ID: "1", Sender: "bob",
		Conversation: testRoom, Text: "x", ReadBy: []string{"bob"}})

	s.ApplyPointUpdate("1", message.Patch{ReadBy: []string{"alice"}})
	s.ApplyPointUpdate("1", message.Patch{ReadBy: []string{}})
	s.ApplyPointUpdate("1", message.Patch{ReadBy: []string{"alice", "carol"}})

	got, _ := s.Get("1")
	require.Equal(t, []string{"bob", "alice", "carol"}, got.ReadBy)
	require.True(t, got.IsRead)
}

// Tests that confirming a pending message keeps its position and that a
// confirmation arriving after the persisted copy removes the pending one.
func TestStore_ConfirmPending(t *testing.T) {
	s := newTestStore(newMockFetcher())
	s.Reset(testRoom)

	pending := &message.Message{ClientTempID: "t1", Status: message.Unsent,
		Sender: "alice", Conversation: testRoom, Text: "first"}
	after := &message.Message{ID: "5", Sender: "bob", Conversation: testRoom,
		Text: "second", Status: message.Sent}
	_, _ = s.AppendLive(pending)
	_, _ = s.AppendLive(after)

	require.True(t, s.ConfirmPending("t1", &message.Message{ID: "4"}))
	msgs := s.Messages()
	require.Equal(t, message.ID("4"), msgs[0].ID)
	require.Empty(t, msgs[0].ClientTempID)
	require.Equal(t, message.Sent, msgs[0].Status)
	require.False(t, s.ConfirmPending("t1", &message.Message{ID: "4"}))

	_, _ = s.AppendLive(&message.Message{ClientTempID: "t2",
		Status: message.Unsent, Sender: "alice", Conversation: testRoom,
		Text: "third"})
	_, _ = s.AppendLive(&message.Message{ID: "6", Sender: "alice",
		Conversation: testRoom, Text: "third (server)", Status: message.Sent})
	require.True(t, s.ConfirmPending("t2", &message.Message{ID: "6"}))
	require.Equal(t, 3, s.Len())
}

// Tests that a failed send is marked and stays in place.
func TestStore_FailPending(t *testing.T) {
	s := newTestStore(newMockFetcher())
	s.Reset(testRoom)
	_, _ = s.AppendLive(&message.Message{ClientTempID: "t1",
		Status: message.Unsent, Sender: "alice", Conversation: testRoom,
		Text: "x"})

	require.True(t, s.FailPending("t1"))
	require.Equal(t, message.Failed, s.Messages()[0].Status)
	require.False(t, s.FailPending("t2"))
}

// Tests that a confirmation without a server ID resets the store outside of
// strict mode and panics in strict mode.
func TestStore_ConfirmPending_Corrupt(t *testing.T) {
	s := newTestStore(newMockFetcher())
	s.Reset(testRoom)
	_, _ = s.AppendLive(&message.Message{ClientTempID: "t1",
		Sender: "alice", Conversation: testRoom, Text: "x"})

	require.False(t, s.ConfirmPending("t1", &message.Message{}))
	require.Zero(t, s.Len())
	require.Equal(t, testRoom, s.Active())

	p := GetDefaultParams()
	p.Strict = true
	strict := New(p, newMockFetcher(), nil, nil)
	strict.Reset(testRoom)
	_, _ = strict.AppendLive(&message.Message{ClientTempID: "t1",
		Sender: "alice", Conversation: testRoom, Text: "x"})
	require.Panics(t, func() {
		strict.ConfirmPending("t1", &message.Message{})
	})
}

// Tests that jumping to a message replaces the list with the surrounding
// window and disables offset paging.
func TestStore_LoadAround(t *testing.T) {
	f := newMockFetcher()
	f.history[testRoom] = makeHistory(testRoom, 60)
	s := newTestStore(f)
	_, err := s.LoadInitial(context.Background(), testRoom)
	require.NoError(t, err)

	n, err := s.LoadAround(context.Background(), "10")
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, message.ID("8"), s.Messages()[0].ID)
	require.False(t, s.HasMore())

	n, err = s.LoadOlder(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

// Tests that published snapshots are copies of the store contents.
func TestStore_Publish(t *testing.T) {
	pub := &mockPublisher{}
	s := New(GetDefaultParams(), newMockFetcher(), nil, pub)
	s.Reset(testRoom)
	_, _ = s.AppendLive(&message.Message{ID: "1", Sender: "bob",
		Conversation: testRoom, Text: "x"})

	require.Equal(t, 2, len(pub.updates))
	last := pub.updates[1]
	require.Equal(t, testRoom, last.key)
	require.Len(t, last.msgs, 1)

	last.msgs[0].Text = "mutated"
	got, _ := s.Get("1")
	require.Equal(t, "x", got.Text)
}

type published struct {
	key  message.ConversationKey
	msgs []*message.Message
}

type mockPublisher struct {
	updates []published
}

func (p *mockPublisher) Publish(
	key message.ConversationKey, msgs []*message.Message) {
	p.updates = append(p.updates, published{key, msgs})
}
