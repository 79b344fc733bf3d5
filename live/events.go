////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package live

import (
	"encoding/json"

	"gitlab.com/elixxir/chatsync/message"
)

// Event names on the wire.
const (
	EventRegister               = "register"
	EventJoinRoom               = "joinRoom"
	EventLeaveRoom              = "leaveRoom"
	EventMessage                = "message"
	EventEditMessage            = "editMessage"
	EventDeleteMessage          = "deleteMessage"
	EventTyping                 = "typing"
	EventMarkRoomMessagesAsRead = "markRoomMessagesAsRead"
	EventMarkConversationAsRead = "markConversationAsRead"
	EventToggleReaction         = "toggleReaction"
	EventThreadMessage          = "threadMessage"
	EventThreadCountUpdated     = "threadCountUpdated"
	EventReactionUpdated        = "reactionUpdated"
	EventMessagesRead           = "messagesRead"
)

// Envelope is the frame of every event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Register is the handshake sent on every connection.
type Register struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"displayName,omitempty"`
}

// Room names a group conversation to join or leave, or whose messages were
// read.
type Room struct {
	RoomCode string `json:"roomCode"`
	Identity string `json:"identity,omitempty"`
}

// ConversationRead marks the messages of a direct conversation sent by From
// as read by To.
type ConversationRead struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Edit is both the outbound edit request and the inbound edit broadcast.
type Edit struct {
	MessageID message.ID        `json:"messageId"`
	Editor    string            `json:"editor,omitempty"`
	Text      string            `json:"text"`
	Media     *message.Media    `json:"media,omitempty"`
	EditedAt  message.Timestamp `json:"editedAt"`
	RoomCode  string            `json:"roomCode,omitempty"`
	To        string            `json:"to,omitempty"`
}

// Delete is both the outbound delete request and the inbound delete
// broadcast.
type Delete struct {
	MessageID    message.ID        `json:"messageId"`
	Requester    string            `json:"requester,omitempty"`
	IsPrivileged bool              `json:"isPrivileged,omitempty"`
	DeletedBy    string            `json:"deletedBy"`
	DeletedAt    message.Timestamp `json:"deletedAt"`
	RoomCode     string            `json:"roomCode,omitempty"`
	To           string            `json:"to,omitempty"`
}

// Typing is a typing indicator. Outbound, only IsTyping and the target are
// set; inbound, From names who is typing.
type Typing struct {
	From     string `json:"from,omitempty"`
	RoomCode string `json:"roomCode,omitempty"`
	To       string `json:"to,omitempty"`
	IsTyping bool   `json:"isTyping"`
}

// Conversation returns the conversation of an inbound typing event as seen by
// self.
func (t Typing) Conversation(self string) message.ConversationKey {
	if t.RoomCode != "" {
		return message.RoomKey(t.RoomCode)
	}
	if t.From != "" && t.From != self {
		return message.DirectKey(self, t.From)
	}
	if t.To != "" {
		return message.DirectKey(self, t.To)
	}
	return ""
}

// Reaction is the outbound reaction toggle.
type Reaction struct {
	MessageID message.ID `json:"messageId"`
	Emoji     string     `json:"emoji"`
	Identity  string     `json:"identity"`
	RoomCode  string     `json:"roomCode,omitempty"`
	To        string     `json:"to,omitempty"`
}

// ReactionUpdate is the inbound state of the reactions of a message after a
// toggle.
type ReactionUpdate struct {
	MessageID message.ID          `json:"messageId"`
	Reactions map[string][]string `json:"reactions"`
}

// ThreadMessage is a reply within the thread of ParentID.
type ThreadMessage struct {
	ParentID message.ID `json:"parentId"`

	// Draft is set on outbound replies and Message on inbound ones.
	Draft   *message.Draft      `json:"draft,omitempty"`
	Message *message.RawMessage `json:"message,omitempty"`
}

// ThreadCount is the inbound thread aggregate of a message.
type ThreadCount struct {
	MessageID     message.ID `json:"messageId"`
	ThreadCount   int        `json:"threadCount"`
	LastReplyFrom string     `json:"lastReplyFrom"`
}

// MessagesRead is the inbound read receipt: Reader has read the listed
// messages.
type MessagesRead struct {
	Reader     string       `json:"reader"`
	RoomCode   string       `json:"roomCode,omitempty"`
	From       string       `json:"from,omitempty"`
	MessageIDs []message.ID `json:"messageIds"`
}

// Listener receives the inbound events of a Channel. Methods are called
// synchronously on the reader goroutine in arrival order and must not block.
type Listener interface {
	OnMessage(raw message.RawMessage)
	OnEdit(e Edit)
	OnDelete(e Delete)
	OnTyping(e Typing)
	OnThreadMessage(parentID message.ID, raw message.RawMessage)
	OnThreadCount(e ThreadCount)
	OnReaction(e ReactionUpdate)
	OnRead(e MessagesRead)
}
