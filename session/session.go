////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package session ties the message store, the live channel, the historical
// store and the trackers together for one logged-in identity.
package session

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/chatsync/conversation"
	"gitlab.com/elixxir/chatsync/dedup"
	"gitlab.com/elixxir/chatsync/event"
	"gitlab.com/elixxir/chatsync/history"
	"gitlab.com/elixxir/chatsync/live"
	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/elixxir/chatsync/readtracker"
	"gitlab.com/elixxir/chatsync/reconcile"
	"gitlab.com/elixxir/chatsync/sendtracker"
	"gitlab.com/elixxir/chatsync/stoppable"
	"gitlab.com/elixxir/chatsync/storage"
	"gitlab.com/elixxir/chatsync/store"
	"gitlab.com/xx_network/primitives/netTime"
)

const sessionStoppableName = "Session"

// LiveChannel is the live channel as used by a Session. It is implemented by
// live.Channel.
type LiveChannel interface {
	Connect() error
	Teardown() error
	State() live.State
	IsConnected() bool
	AddStateCallback(cb live.StateCallback) uint64

	JoinRoom(roomCode string) error
	LeaveRoom(roomCode string) error
	SendMessage(d message.Draft) error
	EditMessage(e live.Edit) error
	DeleteMessage(d live.Delete) error
	Typing(key message.ConversationKey, isTyping bool) error
	MarkRoomMessagesAsRead(roomCode string) error
	MarkConversationAsRead(peer string) error
	ToggleReaction(key message.ConversationKey, id message.ID,
		emoji string) error
	ThreadMessage(parent message.ID, d message.Draft) error
}

// ChannelMaker builds the live channel of a session, delivering inbound
// events to listener.
type ChannelMaker func(identity message.IdentitySource,
	listener live.Listener) LiveChannel

// WebsocketChannelMaker returns a ChannelMaker building a live.Channel with
// the given params.
func WebsocketChannelMaker(params live.Params) ChannelMaker {
	return func(identity message.IdentitySource,
		listener live.Listener) LiveChannel {
		return live.NewChannel(params, identity, listener)
	}
}

var (
	// ErrUnknownMessage is returned when acting on a message that is not
	// loaded.
	ErrUnknownMessage = errors.New("message is not loaded")

	// ErrNotPermitted is returned when the identity may not modify the
	// message.
	ErrNotPermitted = errors.New("not permitted to modify the message")

	// ErrNoIdentity is returned by New without a logged-in identity.
	ErrNoIdentity = errors.New("no identity is logged in")
)

// Session is the message synchronization core of one identity.
type Session struct {
	params   Params
	identity message.IdentitySource
	norm     *message.Normalizer
	dedup    dedup.Deduplicator

	hist    history.Store
	channel LiveChannel
	bus     *event.Bus
	store   *store.Store
	dir     *conversation.Directory
	coord   *conversation.Coordinator
	reads   *readtracker.Tracker
	sends   *sendtracker.Tracker
	poller  *reconcile.Poller

	ctx    context.Context
	cancel context.CancelFunc

	mux     sync.Mutex
	threads map[message.ID][]*message.Message
	stop    *stoppable.Multi
}

// New builds a session for identity. The current state of the session is
// loaded from kv; sends still pending from a previous run are reported
// failed.
func New(params Params, identity message.IdentitySource, kv *storage.KV,
	hist history.Store, makeChannel ChannelMaker) (*Session, error) {
	if identity().IsZero() {
		return nil, ErrNoIdentity
	}

	dir, err := conversation.LoadDirectory(kv)
	if err != nil {
		return nil, err
	}

	s := &Session{
		params:   params,
		identity: identity,
		norm:     message.NewNormalizer(identity, netTime.Now),
		dedup:    dedup.NewFuzzy(params.Store.DedupWindow),
		hist:     hist,
		bus:      event.NewBus(),
		dir:      dir,
		threads:  make(map[message.ID][]*message.Message),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.store = store.New(params.Store, hist, s.dedup, s.bus)
	s.channel = makeChannel(identity, &listener{s: s})
	s.reads = readtracker.New(identity, s.channel, hist, dir.SetUnread)
	s.coord = conversation.NewCoordinator(
		identity, s.channel, s.store, s.reads, nil)
	s.poller = reconcile.New(params.Reconcile, hist, kv, s.applyCounts)
	s.sends = sendtracker.New(kv)
	s.sends.Init(s.updateSentStatus)

	// Counts of the last run are shown until the first poll
	for key, n := range s.poller.Last() {
		dir.SetUnread(key, n)
	}

	s.channel.AddStateCallback(s.stateChanged)
	return s, nil
}

// Start connects the live channel and starts the background threads.
func (s *Session) Start() error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.stop != nil {
		return errors.New("session already started")
	}

	jww.INFO.Printf("[SESSION] Starting session of %s", s.identity().ID)
	s.stop = stoppable.NewMulti(sessionStoppableName)
	s.stop.Add(s.bus.Start())
	if err := s.channel.Connect(); err != nil {
		return errors.WithMessage(err, "failed to connect the live channel")
	}
	s.stop.Add(s.poller.Start())
	return nil
}

// Stop tears the live channel down and stops the background threads. The
// session cannot be restarted.
func (s *Session) Stop() error {
	s.cancel()
	err := s.channel.Teardown()

	s.mux.Lock()
	stop := s.stop
	s.mux.Unlock()
	if stop == nil {
		return err
	}
	if closeErr := stop.Close(); closeErr != nil {
		return closeErr
	}
	if waitErr := stoppable.WaitForStopped(
		stop, s.params.StopTimeout); waitErr != nil {
		return waitErr
	}
	return err
}

// Open makes conv the active conversation, adding it to the directory.
func (s *Session) Open(ctx context.Context, conv conversation.Conversation) error {
	if err := s.dir.Add(conv); err != nil {
		return err
	}
	s.mux.Lock()
	s.threads = make(map[message.ID][]*message.Message)
	s.mux.Unlock()
	return s.coord.Switch(ctx, conv)
}

// Active returns the active conversation.
func (s *Session) Active() (conversation.Conversation, bool) {
	return s.coord.Current()
}

// Messages returns a snapshot of the messages of the active conversation,
// oldest first.
func (s *Session) Messages() []*message.Message {
	return s.store.Messages()
}

// Conversations returns every known conversation with its unread count.
func (s *Session) Conversations() []conversation.Conversation {
	return s.dir.List()
}

// UI returns the state of the active conversation's view.
func (s *Session) UI() *conversation.UIState {
	return s.coord.UI()
}

// State returns the state of the live channel.
func (s *Session) State() live.State {
	return s.channel.State()
}

// SwitchState returns the state of the latest conversation switch.
func (s *Session) SwitchState() conversation.State {
	return s.coord.State()
}

// HasMore returns true if older messages may be loaded.
func (s *Session) HasMore() bool {
	return s.store.HasMore()
}

// Subscribe registers cb for every message list change. See event.Bus.
func (s *Session) Subscribe(name string, cb event.ListCallback) error {
	return s.bus.Subscribe(name, cb)
}

// Unsubscribe removes the subscriber with the given name.
func (s *Session) Unsubscribe(name string) {
	s.bus.Unsubscribe(name)
}

// RegisterEventCallback registers cb for reported events. See event.Bus.
func (s *Session) RegisterEventCallback(name string, cb event.Callback) error {
	return s.bus.RegisterEventCallback(name, cb)
}

// LoadOlder loads the page before the oldest loaded message.
func (s *Session) LoadOlder(ctx context.Context) (int, error) {
	n, err := s.store.LoadOlder(ctx)
	if n > 0 {
		s.coord.EvaluateReads(ctx)
	}
	return n, err
}

// LoadMore retries after a failed load, or loads older messages.
func (s *Session) LoadMore(ctx context.Context) (int, error) {
	n, err := s.store.LoadMore(ctx)
	if n > 0 {
		s.coord.EvaluateReads(ctx)
	}
	return n, err
}

// JumpTo replaces the loaded messages with a window around id.
func (s *Session) JumpTo(ctx context.Context, id message.ID) (int, error) {
	n, err := s.store.LoadAround(ctx, id)
	if n > 0 {
		s.coord.EvaluateReads(ctx)
	}
	return n, err
}

// Poll refreshes the unread counts now instead of waiting for the next
// periodic poll.
func (s *Session) Poll(ctx context.Context) error {
	_, err := s.poller.Poll(ctx)
	return err
}

// applyCounts merges an unread snapshot into the directory. The active
// conversation is read as it is displayed, so its count is left alone.
func (s *Session) applyCounts(counts map[message.ConversationKey]int) {
	s.dir.ApplyCounts(counts, s.coord.Active())
}

// stateChanged rejoins the active room on reconnect, since room membership
// belongs to the transport.
func (s *Session) stateChanged(state live.State, err error) {
	s.bus.Report(1, "LiveChannel", "State", state.String())
	if err != nil {
		jww.DEBUG.Printf("[SESSION] Live channel %s: %+v", state, err)
	}
	if state != live.Connected {
		return
	}
	conv, ok := s.coord.Current()
	if !ok || !conv.IsGroup || !conv.IsMember(s.identity().ID) {
		return
	}
	if err = s.channel.JoinRoom(conv.RoomCode); err != nil {
		jww.WARN.Printf("[SESSION] Failed to rejoin room %s: %+v",
			conv.RoomCode, err)
	}
}

// background returns a bounded context for work triggered by live events.
func (s *Session) background() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.ctx, s.params.BackgroundTimeout)
}
