////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package live

import (
	"gitlab.com/elixxir/chatsync/message"
)

// Every method here returns ErrChannelUnavailable when the channel is not
// connected.

// JoinRoom joins the group conversation with the given room code.
func (c *Channel) JoinRoom(roomCode string) error {
	return c.Emit(EventJoinRoom, Room{RoomCode: roomCode,
		Identity: c.identity().ID})
}

// LeaveRoom leaves the group conversation with the given room code.
func (c *Channel) LeaveRoom(roomCode string) error {
	return c.Emit(EventLeaveRoom, Room{RoomCode: roomCode,
		Identity: c.identity().ID})
}

// SendMessage sends a draft. The server echoes it back, carrying the draft's
// temp ID and the assigned ID.
func (c *Channel) SendMessage(d message.Draft) error {
	return c.Emit(EventMessage, d)
}

// EditMessage broadcasts an edit.
func (c *Channel) EditMessage(e Edit) error {
	return c.Emit(EventEditMessage, e)
}

// DeleteMessage broadcasts a soft delete.
func (c *Channel) DeleteMessage(d Delete) error {
	return c.Emit(EventDeleteMessage, d)
}

// Typing sends a typing indicator for the conversation. Calls are rate
// limited and block until the limiter allows them.
func (c *Channel) Typing(key message.ConversationKey, isTyping bool) error {
	if !c.IsConnected() {
		return ErrChannelUnavailable
	}
	c.typing.Take()

	me := c.identity().ID
	t := Typing{From: me, IsTyping: isTyping}
	if key.IsGroup() {
		t.RoomCode = key.RoomCode()
	} else {
		t.To = key.Peer(me)
	}
	return c.Emit(EventTyping, t)
}

// MarkRoomMessagesAsRead marks the messages of the room as read by the
// current identity.
func (c *Channel) MarkRoomMessagesAsRead(roomCode string) error {
	return c.Emit(EventMarkRoomMessagesAsRead, Room{RoomCode: roomCode,
		Identity: c.identity().ID})
}

// MarkConversationAsRead marks the messages peer sent to the current
// identity as read.
func (c *Channel) MarkConversationAsRead(peer string) error {
	return c.Emit(EventMarkConversationAsRead, ConversationRead{From: peer,
		To: c.identity().ID})
}

// ToggleReaction adds or removes the reaction of the current identity.
func (c *Channel) ToggleReaction(key message.ConversationKey, id message.ID,
	emoji string) error {
	me := c.identity().ID
	r := Reaction{MessageID: id, Emoji: emoji, Identity: me}
	if key.IsGroup() {
		r.RoomCode = key.RoomCode()
	} else {
		r.To = key.Peer(me)
	}
	return c.Emit(EventToggleReaction, r)
}

// ThreadMessage sends a reply within the thread of parent.
func (c *Channel) ThreadMessage(parent message.ID, d message.Draft) error {
	d.ThreadParentID = parent
	return c.Emit(EventThreadMessage, ThreadMessage{ParentID: parent,
		Draft: &d})
}
