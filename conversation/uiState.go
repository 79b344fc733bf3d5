////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package conversation

import (
	"sort"
	"sync"
	"time"

	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/xx_network/primitives/netTime"
)

// typingExpiry is how long a typing indicator lasts without a refresh.
const typingExpiry = 5 * time.Second

// Reply is the message a draft replies to.
type Reply struct {
	MessageID message.ID
	Sender    string
	Text      string
}

// UIState is the conversation scoped state that is cleared on every switch.
type UIState struct {
	mux     sync.RWMutex
	reply   *Reply
	typing  map[string]time.Time
	pinned  message.ID
	thread  message.ID
	nowFunc func() time.Time
}

// NewUIState returns an empty UIState.
func NewUIState() *UIState {
	return &UIState{typing: make(map[string]time.Time), nowFunc: netTime.Now}
}

// Clear resets everything.
func (u *UIState) Clear() {
	u.mux.Lock()
	defer u.mux.Unlock()
	u.reply = nil
	u.typing = make(map[string]time.Time)
	u.pinned = ""
	u.thread = ""
}

// SetReply sets the message the draft replies to. A nil reply clears it.
func (u *UIState) SetReply(r *Reply) {
	u.mux.Lock()
	defer u.mux.Unlock()
	u.reply = r
}

// Reply returns the message the draft replies to, or nil.
func (u *UIState) Reply() *Reply {
	u.mux.RLock()
	defer u.mux.RUnlock()
	if u.reply == nil {
		return nil
	}
	r := *u.reply
	return &r
}

// ApplyReply copies the reply reference into the draft.
func (u *UIState) ApplyReply(d *message.Draft) {
	if r := u.Reply(); r != nil {
		d.ReplyToMessageID = r.MessageID
		d.ReplyToSender = r.Sender
		d.ReplyToText = r.Text
	}
}

// SetTyping records whether who is typing.
func (u *UIState) SetTyping(who string, isTyping bool) {
	u.mux.Lock()
	defer u.mux.Unlock()
	if isTyping {
		u.typing[who] = u.nowFunc()
	} else {
		delete(u.typing, who)
	}
}

// Typing returns who is typing, sorted. Indicators not refreshed recently
// are dropped.
func (u *UIState) Typing() []string {
	u.mux.Lock()
	defer u.mux.Unlock()
	now := u.nowFunc()
	list := make([]string, 0, len(u.typing))
	for who, at := range u.typing {
		if now.Sub(at) > typingExpiry {
			delete(u.typing, who)
			continue
		}
		list = append(list, who)
	}
	sort.Strings(list)
	return list
}

// SetPinned sets the pinned message.
func (u *UIState) SetPinned(id message.ID) {
	u.mux.Lock()
	defer u.mux.Unlock()
	u.pinned = id
}

// Pinned returns the pinned message.
func (u *UIState) Pinned() message.ID {
	u.mux.RLock()
	defer u.mux.RUnlock()
	return u.pinned
}

// OpenThread sets the message whose thread is open; zero closes it.
func (u *UIState) OpenThread(parent message.ID) {
	u.mux.Lock()
	defer u.mux.Unlock()
	u.thread = parent
}

// Thread returns the message whose thread is open.
func (u *UIState) Thread() message.ID {
	u.mux.RLock()
	defer u.mux.RUnlock()
	return u.thread
}
