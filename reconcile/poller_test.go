////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package reconcile

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/elixxir/chatsync/stoppable"
	"gitlab.com/elixxir/chatsync/storage"
)

type mockCounter struct {
	calls  int32
	counts map[message.ConversationKey]int
	err    error
}

func (c *mockCounter) GetUnreadCounts(
	context.Context) (map[message.ConversationKey]int, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.err != nil {
		return nil, c.err
	}
	return c.counts, nil
}

var (
	room = message.RoomKey("AAA")
	dm   = message.DirectKey("alice", "bob")
)

// Tests that a poll reaches the callback and is readable from Last.
func TestPoller_Poll(t *testing.T) {
	counter := &mockCounter{counts: map[message.ConversationKey]int{
		room: 3, dm: 1}}
	var got map[message.ConversationKey]int
	p := New(GetDefaultParams(), counter, nil,
		func(counts map[message.ConversationKey]int) { got = counts })

	require.Empty(t, p.Last())
	require.True(t, p.LastPoll().IsZero())

	counts, err := p.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, counter.counts, counts)
	require.Equal(t, counter.counts, got)
	require.Equal(t, counter.counts, p.Last())
	require.False(t, p.LastPoll().IsZero())

	// Callers get copies
	counts[room] = 100
	require.Equal(t, 3, p.Last()[room])
}

// Tests that a failed poll keeps the previous snapshot.
func TestPoller_Poll_Error(t *testing.T) {
	counter := &mockCounter{counts: map[message.ConversationKey]int{room: 3}}
	p := New(GetDefaultParams(), counter, nil, nil)
	_, err := p.Poll(context.Background())
	require.NoError(t, err)

	counter.err = errors.New("503")
	_, err = p.Poll(context.Background())
	require.Error(t, err)
	require.Equal(t, 3, p.Last()[room])
}

// Tests that the snapshot is available from storage before the first poll.
func TestPoller_Snapshot(t *testing.T) {
	kv := storage.NewMemKV()
	counter := &mockCounter{counts: map[message.ConversationKey]int{
		room: 3, dm: 1}}
	_, err := New(GetDefaultParams(), counter, kv, nil).Poll(
		context.Background())
	require.NoError(t, err)

	restarted := New(GetDefaultParams(), &mockCounter{}, kv, nil)
	require.Equal(t, counter.counts, restarted.Last())
}

// Tests that the poll thread polls at once, keeps polling every period and
// stops when closed.
func TestPoller_Start(t *testing.T) {
	counter := &mockCounter{counts: map[message.ConversationKey]int{room: 1}}
	polled := make(chan struct{}, 10)
	p := New(Params{Period: 20 * time.Millisecond, Timeout: time.Second},
		counter, nil, func(map[message.ConversationKey]int) {
			polled <- struct{}{}
		})

	stop := p.Start()
	for i := 0; i < 3; i++ {
		select {
		case <-polled:
		case <-time.After(time.Second):
			t.Fatalf("Timed out waiting for poll %d", i)
		}
	}

	require.NoError(t, stop.Close())
	require.NoError(t, stoppable.WaitForStopped(stop, time.Second))
	calls := atomic.LoadInt32(&counter.calls)
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, calls, atomic.LoadInt32(&counter.calls))
}
