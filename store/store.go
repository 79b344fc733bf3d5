////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package store holds the ordered message list of the active conversation.
//
// A Store has a single writer discipline: every mutation happens under its
// lock, and the network I/O of a load happens outside of it. When the I/O
// returns, the result is applied only if the store has not been reset in the
// meantime, which is tracked by a generation counter.
package store

import (
	"context"
	"sync"
	"time"

	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/chatsync/dedup"
	"gitlab.com/elixxir/chatsync/event"
	"gitlab.com/elixxir/chatsync/history"
	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/elixxir/chatsync/pagination"
)

// Fetcher is the part of the historical store used to load pages.
type Fetcher interface {
	FetchMessages(ctx context.Context, key message.ConversationKey,
		limit, offset int) ([]*message.Message, error)
	FetchMessagesAround(ctx context.Context, key message.ConversationKey,
		target message.ID) ([]*message.Message, error)
}

// Params configures a Store.
type Params struct {
	// PageSize is the number of messages per history page.
	PageSize int

	// DedupWindow is the time proximity used by the default deduplicator.
	DedupWindow time.Duration

	// Strict makes impossible state transitions panic instead of resetting
	// the store. Meant for development builds.
	Strict bool
}

// GetDefaultParams returns the default Params.
func GetDefaultParams() Params {
	return Params{
		PageSize:    pagination.DefaultPageSize,
		DedupWindow: dedup.DefaultWindow,
		Strict:      false,
	}
}

// Store is the message list of the active conversation.
type Store struct {
	params  Params
	fetcher Fetcher
	dedup   dedup.Deduplicator
	pub     event.Publisher

	mux           sync.Mutex
	active        message.ConversationKey
	messages      []*message.Message
	cursor        *pagination.Cursor
	generation    uint64
	loadingOlder  bool
	initialLoaded bool
}

// New returns an empty Store with no active conversation. If d is nil a
// dedup.Fuzzy with the configured window is used. pub may be nil.
func New(params Params, fetcher Fetcher, d dedup.Deduplicator,
	pub event.Publisher) *Store {
	if d == nil {
		d = dedup.NewFuzzy(params.DedupWindow)
	}
	return &Store{
		params:  params,
		fetcher: fetcher,
		dedup:   d,
		pub:     pub,
		cursor:  pagination.New(params.PageSize),
	}
}

// Reset clears every message, rewinds the cursor and binds the store to
// next. Loads in flight when Reset is called discard their results.
func (s *Store) Reset(next message.ConversationKey) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.resetLocked(next)
	s.publishLocked()
}

func (s *Store) resetLocked(next message.ConversationKey) {
	s.generation++
	s.active = next
	s.messages = nil
	s.cursor.Reset()
	s.loadingOlder = false
	s.initialLoaded = false
	jww.DEBUG.Printf("[STORE] Reset to %q (generation %d)", next,
		s.generation)
}

// LoadInitial fetches the newest page of key and replaces the contents of the
// store with it. Live messages appended since the last reset are kept after
// the page unless the page already contains them. A store not bound to any
// conversation is bound to key first; a store bound to another conversation
// returns ErrSuperseded and is left untouched.
//
// On failure the store is left untouched, paging stops, and a
// history.FetchFailure is returned; LoadMore retries.
func (s *Store) LoadInitial(ctx context.Context,
	key message.ConversationKey) (int, error) {
	s.mux.Lock()
	if key.IsZero() {
		s.mux.Unlock()
		return 0, ErrNoConversation
	}
	if s.active.IsZero() {
		s.resetLocked(key)
	} else if key != s.active {
		active := s.active
		s.mux.Unlock()
		jww.DEBUG.Printf("[STORE] Initial load of %s superseded by %s", key,
			active)
		return 0, ErrSuperseded
	}
	gen := s.generation
	limit := s.cursor.PageSize()
	s.mux.Unlock()

	page, err := s.fetcher.FetchMessages(ctx, key, limit, 0)

	s.mux.Lock()
	defer s.mux.Unlock()
	if gen != s.generation {
		return 0, ErrSuperseded
	}
	if err != nil {
		s.cursor.Fail()
		jww.WARN.Printf("[STORE] Initial load of %s failed: %+v", key, err)
		return 0, history.AsFetchFailure("fetchMessages", err)
	}

	fetched := len(page)
	page = s.ownPage(page)
	merged := make([]*message.Message, 0, len(page)+len(s.messages))
	merged = append(merged, page...)
	for _, m := range s.messages {
		if !s.dedup.IsDuplicate(m, page) {
			merged = append(merged, m)
		}
	}
	s.messages = merged
	s.cursor.Advance(fetched)
	s.initialLoaded = true

	jww.DEBUG.Printf("[STORE] Loaded %d messages of %s, cursor %s",
		len(page), key, s.cursor)
	s.publishLocked()
	return len(page), nil
}

// LoadOlder fetches the page before the oldest loaded message and prepends
// it. It is a no-op, returning 0, when there is nothing more to load, when
// paging stopped after a failure, or when another LoadOlder is in flight.
// Messages whose ID is already present or that belong to another
// conversation are skipped; the cursor still advances by the number of
// messages the page returned.
func (s *Store) LoadOlder(ctx context.Context) (int, error) {
	s.mux.Lock()
	if s.active.IsZero() || !s.initialLoaded || !s.cursor.HasMore() ||
		s.loadingOlder {
		s.mux.Unlock()
		return 0, nil
	}
	s.loadingOlder = true
	gen := s.generation
	key := s.active
	limit, offset := s.cursor.PageSize(), s.cursor.Offset()
	s.mux.Unlock()

	page, err := s.fetcher.FetchMessages(ctx, key, limit, offset)

	s.mux.Lock()
	defer s.mux.Unlock()
	if gen != s.generation {
		return 0, ErrSuperseded
	}
	s.loadingOlder = false
	if err != nil {
		s.cursor.Fail()
		jww.WARN.Printf("[STORE] Loading %s at offset %d failed: %+v",
			key, offset, err)
		return 0, history.AsFetchFailure("fetchMessages", err)
	}

	present := make(map[message.ID]struct{}, len(s.messages))
	for _, m := range s.messages {
		if !m.ID.IsZero() {
			present[m.ID] = struct{}{}
		}
	}
	fetched := len(page)
	page = s.ownPage(page)
	fresh := make([]*message.Message, 0, len(page)+len(s.messages))
	for _, m := range page {
		if _, exists := present[m.ID]; exists {
			continue
		}
		present[m.ID] = struct{}{}
		fresh = append(fresh, m)
	}
	added := len(fresh)
	s.messages = append(fresh, s.messages...)
	s.cursor.Advance(fetched)

	jww.DEBUG.Printf("[STORE] Prepended %d/%d messages of %s, cursor %s",
		added, fetched, key, s.cursor)
	s.publishLocked()
	return added, nil
}

// LoadMore is the user-initiated "load more". After a failure it lifts the
// stop and retries from the same offset, repeating the initial load if
// that was what failed. Otherwise it behaves like LoadOlder.
func (s *Store) LoadMore(ctx context.Context) (int, error) {
	s.mux.Lock()
	retried := s.cursor.Retry()
	initial := !s.initialLoaded
	key := s.active
	s.mux.Unlock()

	if retried {
		jww.INFO.Printf("[STORE] Retrying load of %s", key)
	}
	if initial {
		return s.LoadInitial(ctx, key)
	}
	return s.LoadOlder(ctx)
}

// LoadAround replaces the contents of the store with the window of messages
// around target, for jumping to a search result. Offset paging is disabled
// until the next reset since the window's offset is unknown.
func (s *Store) LoadAround(ctx context.Context, target message.ID) (int, error) {
	s.mux.Lock()
	if s.active.IsZero() {
		s.mux.Unlock()
		return 0, ErrNoConversation
	}
	gen := s.generation
	key := s.active
	s.mux.Unlock()

	window, err := s.fetcher.FetchMessagesAround(ctx, key, target)

	s.mux.Lock()
	defer s.mux.Unlock()
	if gen != s.generation {
		return 0, ErrSuperseded
	}
	if err != nil {
		jww.WARN.Printf("[STORE] Loading %s around %s failed: %+v", key,
			target, err)
		return 0, history.AsFetchFailure("fetchMessagesAround", err)
	}

	s.messages = s.ownPage(window)
	s.cursor.Anchor(len(s.messages))
	s.initialLoaded = true
	s.publishLocked()
	return len(s.messages), nil
}

// AppendLive appends a message received live or created locally. A message
// of another conversation is discarded with a StaleConversationEvent; a
// duplicate is discarded silently. Returns true if the message was added.
func (s *Store) AppendLive(m *message.Message) (bool, error) {
	s.mux.Lock()
	defer s.mux.Unlock()

	if m.Conversation != s.active {
		jww.DEBUG.Printf("[STORE] Discarding message %s%s of %q while %q "+
			"is active", m.ID, m.ClientTempID, m.Conversation, s.active)
		return false, &StaleConversationEvent{Active: s.active,
			Got: m.Conversation}
	}
	if s.dedup.IsDuplicate(m, s.messages) {
		jww.TRACE.Printf("[STORE] Dropping duplicate %s%s", m.ID,
			m.ClientTempID)
		return false, nil
	}

	s.messages = append(s.messages, m.Clone())
	s.publishLocked()
	return true, nil
}

// ApplyPointUpdate merges patch into the message with the given ID. Returns
// false if no loaded message has that ID, which is expected for messages of
// pages not yet loaded.
func (s *Store) ApplyPointUpdate(id message.ID, patch message.Patch) bool {
	s.mux.Lock()
	defer s.mux.Unlock()

	i := s.indexOfID(id)
	if i < 0 {
		jww.DEBUG.Printf("[STORE] No loaded message %s in %s to update",
			id, s.active)
		return false
	}
	s.messages[i].Apply(patch)
	s.publishLocked()
	return true
}

// ConfirmPending turns the pending message with the given temp ID into the
// persisted message in place. If the persisted copy was already appended by
// another path, the pending copy is dropped instead. Returns false if no
// pending message has that temp ID.
func (s *Store) ConfirmPending(tempID string, persisted *message.Message) bool {
	s.mux.Lock()
	defer s.mux.Unlock()

	i := s.indexOfTemp(tempID)
	if i < 0 {
		return false
	}
	if persisted.ID.IsZero() {
		s.corruptLocked("confirmation of %s carries no server ID", tempID)
		return false
	}

	if j := s.indexOfID(persisted.ID); j >= 0 {
		s.messages = append(s.messages[:i], s.messages[i+1:]...)
		jww.DEBUG.Printf("[STORE] Pending %s already present as %s",
			tempID, persisted.ID)
		s.publishLocked()
		return true
	}

	p := s.messages[i]
	p.ID = persisted.ID
	p.ClientTempID = ""
	p.Status = message.Sent
	if !persisted.SentAt.IsZero() {
		p.SentAt = persisted.SentAt
	}
	if persisted.DisplayTime != "" {
		p.DisplayTime = persisted.DisplayTime
	}
	if !persisted.Media.IsZero() {
		p.Media = persisted.Media
	}
	s.publishLocked()
	return true
}

// FailPending marks the pending message with the given temp ID as failed.
func (s *Store) FailPending(tempID string) bool {
	s.mux.Lock()
	defer s.mux.Unlock()

	i := s.indexOfTemp(tempID)
	if i < 0 {
		return false
	}
	s.messages[i].Status = message.Failed
	s.publishLocked()
	return true
}

// Messages returns a copy of the loaded messages, oldest first.
func (s *Store) Messages() []*message.Message {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.snapshotLocked()
}

// Get returns a copy of the message with the given ID.
func (s *Store) Get(id message.ID) (*message.Message, bool) {
	s.mux.Lock()
	defer s.mux.Unlock()
	i := s.indexOfID(id)
	if i < 0 {
		return nil, false
	}
	return s.messages[i].Clone(), true
}

// Len returns the number of loaded messages.
func (s *Store) Len() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return len(s.messages)
}

// Active returns the conversation the store is bound to.
func (s *Store) Active() message.ConversationKey {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.active
}

// Offset returns the number of historical messages fetched.
func (s *Store) Offset() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.cursor.Offset()
}

// HasMore returns true if LoadOlder may load more messages.
func (s *Store) HasMore() bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.cursor.HasMore()
}

// Failed returns true if paging stopped because of a fetch failure.
func (s *Store) Failed() bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.cursor.Failed()
}

// ownPage drops the messages of a page that belong to a conversation other
// than the active one.
func (s *Store) ownPage(page []*message.Message) []*message.Message {
	own := make([]*message.Message, 0, len(page))
	for _, m := range page {
		if m == nil {
			continue
		}
		if m.Conversation != s.active {
			jww.WARN.Printf("[STORE] History returned message %s of %q "+
				"for %q", m.ID, m.Conversation, s.active)
			continue
		}
		own = append(own, m.Clone())
	}
	return own
}

func (s *Store) indexOfID(id message.ID) int {
	if id.IsZero() {
		return -1
	}
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) indexOfTemp(tempID string) int {
	if tempID == "" {
		return -1
	}
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].IsPending() && s.messages[i].ClientTempID == tempID {
			return i
		}
	}
	return -1
}

// corruptLocked handles an impossible state: it panics in strict mode and
// otherwise falls back to a full reset of the active conversation.
func (s *Store) corruptLocked(format string, args ...interface{}) {
	if s.params.Strict {
		jww.FATAL.Panicf("[STORE] "+format, args...)
	}
	jww.ERROR.Printf("[STORE] "+format+"; resetting", args...)
	s.resetLocked(s.active)
	s.publishLocked()
}

func (s *Store) snapshotLocked() []*message.Message {
	out := make([]*message.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Clone()
	}
	return out
}

func (s *Store) publishLocked() {
	if s.pub != nil {
		s.pub.Publish(s.active, s.snapshotLocked())
	}
}
