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

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/elixxir/chatsync/storage"
)

// ErrInvalidConversation is returned for a Conversation whose fields
// disagree with its key.
var ErrInvalidConversation = errors.New("invalid conversation")

// Conversation is a room or a direct conversation the identity takes part
// in.
type Conversation struct {
	Key     message.ConversationKey `json:"key"`
	Name    string                  `json:"name,omitempty"`
	IsGroup bool                    `json:"isGroup"`

	// RoomCode is set iff IsGroup.
	RoomCode string `json:"roomCode,omitempty"`

	// Participants has exactly two entries iff !IsGroup.
	Participants []string `json:"participants,omitempty"`

	// Members of a room. A nil list means membership is not tracked and
	// every identity is treated as a member.
	Members []string `json:"members,omitempty"`

	UnreadCount     int        `json:"unreadCount"`
	PinnedMessageID message.ID `json:"pinnedMessageId,omitempty"`
}

// Room returns the group conversation with the given room code.
func Room(roomCode string, members ...string) Conversation {
	return Conversation{
		Key:      message.RoomKey(roomCode),
		Name:     roomCode,
		IsGroup:  true,
		RoomCode: roomCode,
		Members:  members,
	}
}

// Direct returns the direct conversation between a and b.
func Direct(a, b string) Conversation {
	key := message.DirectKey(a, b)
	return Conversation{
		Key:          key,
		Participants: key.Participants(),
	}
}

// FromKey returns the conversation identified by key.
func FromKey(key message.ConversationKey) Conversation {
	if key.IsGroup() {
		return Room(key.RoomCode())
	}
	return Conversation{Key: key, Participants: key.Participants()}
}

// IsMember returns true if identity may join the room.
func (c Conversation) IsMember(identity string) bool {
	if !c.IsGroup {
		for _, p := range c.Participants {
			if p == identity {
				return true
			}
		}
		return false
	}
	if c.Members == nil {
		return true
	}
	for _, m := range c.Members {
		if m == identity {
			return true
		}
	}
	return false
}

// Verify returns an error if the fields disagree with the key.
func (c Conversation) Verify() error {
	switch {
	case c.Key.IsZero():
		return errors.Wrap(ErrInvalidConversation, "empty key")
	case c.IsGroup != c.Key.IsGroup():
		return errors.Wrapf(ErrInvalidConversation,
			"%q: isGroup is %t", c.Key, c.IsGroup)
	case c.IsGroup && c.RoomCode != c.Key.RoomCode():
		return errors.Wrapf(ErrInvalidConversation,
			"%q: room code %q", c.Key, c.RoomCode)
	case !c.IsGroup && len(c.Participants) != 2:
		return errors.Wrapf(ErrInvalidConversation,
			"%q: %d participants", c.Key, len(c.Participants))
	}
	return nil
}

// Directory holds the conversations of the identity and their unread
// counts.
type Directory struct {
	mux   sync.RWMutex
	convs map[message.ConversationKey]*Conversation
	kv    *storage.KV
}

// NewDirectory returns an empty Directory that is not persisted.
func NewDirectory() *Directory {
	return &Directory{convs: make(map[message.ConversationKey]*Conversation)}
}

// Add adds or replaces a conversation, keeping the unread count already
// known for it.
func (d *Directory) Add(c Conversation) error {
	if err := c.Verify(); err != nil {
		return err
	}
	d.mux.Lock()
	defer d.mux.Unlock()
	if old, exists := d.convs[c.Key]; exists && c.UnreadCount == 0 {
		c.UnreadCount = old.UnreadCount
	}
	d.convs[c.Key] = &c
	return d.storeLocked()
}

// Get returns the conversation with the given key.
func (d *Directory) Get(key message.ConversationKey) (Conversation, bool) {
	d.mux.RLock()
	defer d.mux.RUnlock()
	c, exists := d.convs[key]
	if !exists {
		return Conversation{}, false
	}
	return *c, true
}

// List returns every conversation sorted by key.
func (d *Directory) List() []Conversation {
	d.mux.RLock()
	defer d.mux.RUnlock()
	list := make([]Conversation, 0, len(d.convs))
	for _, c := range d.convs {
		list = append(list, *c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })
	return list
}

// SetUnread sets the unread count of a conversation, adding it if unknown.
func (d *Directory) SetUnread(key message.ConversationKey, count int) {
	if count < 0 {
		count = 0
	}
	d.mux.Lock()
	defer d.mux.Unlock()
	d.getOrAddLocked(key).UnreadCount = count
}

// IncrementUnread adds one to the unread count of a conversation and
// returns the new count.
func (d *Directory) IncrementUnread(key message.ConversationKey) int {
	d.mux.Lock()
	defer d.mux.Unlock()
	c := d.getOrAddLocked(key)
	c.UnreadCount++
	return c.UnreadCount
}

// Unread returns the unread count of a conversation.
func (d *Directory) Unread(key message.ConversationKey) int {
	d.mux.RLock()
	defer d.mux.RUnlock()
	if c, exists := d.convs[key]; exists {
		return c.UnreadCount
	}
	return 0
}

// ApplyCounts replaces the unread counts with the given snapshot. The count
// of skip, the open conversation, is left alone.
func (d *Directory) ApplyCounts(counts map[message.ConversationKey]int,
	skip message.ConversationKey) {
	d.mux.Lock()
	defer d.mux.Unlock()
	for key, c := range d.convs {
		if key != skip {
			c.UnreadCount = counts[key]
		}
	}
	for key, n := range counts {
		if key != skip {
			d.getOrAddLocked(key).UnreadCount = n
		}
	}
}

// SetPinned sets the pinned message of a conversation.
func (d *Directory) SetPinned(key message.ConversationKey, id message.ID) {
	d.mux.Lock()
	defer d.mux.Unlock()
	d.getOrAddLocked(key).PinnedMessageID = id
	if err := d.storeLocked(); err != nil {
		jww.WARN.Printf("[SWITCH] Failed to store pinned message of %s: %+v",
			key, err)
	}
}

func (d *Directory) getOrAddLocked(
	key message.ConversationKey) *Conversation {
	c, exists := d.convs[key]
	if !exists {
		conv := FromKey(key)
		c = &conv
		d.convs[key] = c
	}
	return c
}
