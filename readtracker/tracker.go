////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package readtracker emits read receipts for the active conversation.
package readtracker

import (
	"context"
	"sync"

	"github.com/golang-collections/collections/set"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/chatsync/message"
)

// Emitter sends read receipts on the live channel.
type Emitter interface {
	MarkRoomMessagesAsRead(roomCode string) error
	MarkConversationAsRead(peer string) error
}

// Marker records read receipts in the historical store.
type Marker interface {
	MarkConversationRead(ctx context.Context, key message.ConversationKey) error
}

// UnreadSetter sets the local unread count of a conversation.
type UnreadSetter func(key message.ConversationKey, count int)

// Tracker decides when the messages of the active conversation are marked
// read. It remembers which messages it already marked so evaluating the
// same contents again emits nothing; the memory is cleared when the
// active conversation changes.
type Tracker struct {
	identity  message.IdentitySource
	emitter   Emitter
	marker    Marker
	setUnread UnreadSetter

	mux    sync.Mutex
	active message.ConversationKey
	marked *set.Set
}

// New returns a Tracker. Any of emitter, marker and setUnread may be nil.
func New(identity message.IdentitySource, emitter Emitter, marker Marker,
	setUnread UnreadSetter) *Tracker {
	return &Tracker{
		identity:  identity,
		emitter:   emitter,
		marker:    marker,
		setUnread: setUnread,
		marked:    set.New(),
	}
}

// ConversationChanged forgets the marked messages.
func (t *Tracker) ConversationChanged(key message.ConversationKey) {
	t.mux.Lock()
	defer t.mux.Unlock()
	t.changeLocked(key)
}

func (t *Tracker) changeLocked(key message.ConversationKey) {
	if key == t.active {
		return
	}
	jww.TRACE.Printf("[READ] Active conversation %q -> %q", t.active, key)
	t.active = key
	t.marked = set.New()
}

// Evaluate marks as read the messages of msgs sent by others that the
// current identity has not read yet. It emits nothing if there are none, or
// if all of them were already marked since the last conversation change.
//
// The unread count of the conversation is zeroed before the receipts are
// sent. Failures to send them are logged and not retried. Returns the IDs of
// the newly marked messages so the caller can add the identity to their
// ReadBy.
func (t *Tracker) Evaluate(ctx context.Context, key message.ConversationKey,
	msgs []*message.Message) []message.ID {
	me := t.identity()
	if key.IsZero() || me.IsZero() {
		return nil
	}

	t.mux.Lock()
	t.changeLocked(key)
	var unread []message.ID
	for _, m := range msgs {
		if m.Conversation != key || m.IsPending() || m.Sender == me.ID ||
			m.IsSelf || m.IsReadBy(me.ID) || t.marked.Has(m.ID) {
			continue
		}
		unread = append(unread, m.ID)
	}
	for _, id := range unread {
		t.marked.Insert(id)
	}
	t.mux.Unlock()

	if len(unread) == 0 {
		return nil
	}

	jww.DEBUG.Printf("[READ] Marking %d messages of %s read", len(unread), key)
	if t.setUnread != nil {
		t.setUnread(key, 0)
	}

	if t.emitter != nil {
		var err error
		if key.IsGroup() {
			err = t.emitter.MarkRoomMessagesAsRead(key.RoomCode())
		} else {
			err = t.emitter.MarkConversationAsRead(key.Peer(me.ID))
		}
		if err != nil {
			jww.WARN.Printf("[READ] Failed to send read receipt for %s: %+v",
				key, err)
		}
	}

	if t.marker != nil {
		if err := t.marker.MarkConversationRead(ctx, key); err != nil {
			jww.WARN.Printf("[READ] Failed to record read state of %s: %+v",
				key, err)
		}
	}

	return unread
}

// Marked returns the number of messages marked since the last conversation
// change.
func (t *Tracker) Marked() int {
	t.mux.Lock()
	defer t.mux.Unlock()
	return t.marked.Len()
}
