////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package message contains the canonical message model consumed by the rest of
// chatsync along with the normalization boundary that converts the payloads of
// the historical store and of the live channel into it.
package message

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// ID is the server-assigned identifier of a persisted message. The zero value
// denotes a message that has not been persisted yet.
type ID string

// IsZero returns true if the message has no server ID.
func (id ID) IsZero() bool {
	return id == ""
}

// String returns the ID as a string. This function adheres to the
// fmt.Stringer interface.
func (id ID) String() string {
	return string(id)
}

// UnmarshalJSON accepts both JSON strings and JSON numbers, since the server
// emits numeric IDs on some endpoints and string IDs on others.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// SentStatus represents the delivery state of a message.
type SentStatus uint8

const (
	// Unsent is the status of a locally created message that has not been
	// acknowledged by the server.
	Unsent SentStatus = iota

	// Sent is the status of a message that the server has persisted.
	Sent

	// Failed is the status of a local message whose send failed.
	Failed
)

// String returns a human-readable version of SentStatus, used for debugging
// and logging. This function adheres to the fmt.Stringer interface.
func (ss SentStatus) String() string {
	switch ss {
	case Unsent:
		return "unsent"
	case Sent:
		return "sent"
	case Failed:
		return "failed"
	default:
		return "Invalid SentStatus: " + strconv.Itoa(int(ss))
	}
}

// Media describes an attachment. URL is empty when there is none.
type Media struct {
	Type     string `json:"type,omitempty"`
	URL      string `json:"url,omitempty"`
	FileName string `json:"fileName,omitempty"`
	FileSize int64  `json:"fileSize,omitempty"`
}

// IsZero returns true if there is no attachment.
func (m Media) IsZero() bool {
	return m.URL == ""
}

// Message is the canonical shape of a chat message.
//
// At most one of ID and ClientTempID is set: ClientTempID while the message
// is pending, ID once persisted. Broadcasts that carry neither have both
// empty.
type Message struct {
	ID           ID              `json:"id,omitempty"`
	ClientTempID string          `json:"clientTempId,omitempty"`
	Status       SentStatus      `json:"status"`
	Sender       string          `json:"sender"`
	Conversation ConversationKey `json:"conversation"`
	Text         string          `json:"text"`
	SentAt       time.Time       `json:"sentAt"`
	DisplayTime  string          `json:"displayTime"`

	// IsSelf is viewer-relative and never persisted.
	IsSelf bool `json:"-"`

	Media Media `json:"media"`

	ReplyToMessageID ID     `json:"replyToMessageId,omitempty"`
	ReplyToSender    string `json:"replyToSender,omitempty"`
	ReplyToText      string `json:"replyToText,omitempty"`

	ThreadCount   int    `json:"threadCount"`
	LastReplyFrom string `json:"lastReplyFrom,omitempty"`

	IsEdited bool      `json:"isEdited"`
	EditedAt time.Time `json:"editedAt"`

	IsDeleted bool      `json:"isDeleted"`
	DeletedBy string    `json:"deletedBy,omitempty"`
	DeletedAt time.Time `json:"deletedAt"`

	IsRead bool     `json:"isRead"`
	ReadBy []string `json:"readBy"`

	Reactions map[string][]string `json:"reactions"`
}

// IsGroup returns true if the message belongs to a group conversation.
func (m *Message) IsGroup() bool {
	return m.Conversation.IsGroup()
}

// IsPending returns true if the message has not been persisted yet.
func (m *Message) IsPending() bool {
	return m.ID.IsZero()
}

// HasTime returns true if either a timestamp or a display time is known.
func (m *Message) HasTime() bool {
	return !m.SentAt.IsZero() || m.DisplayTime != ""
}

// IsReadBy returns true if identity is in ReadBy.
func (m *Message) IsReadBy(identity string) bool {
	for _, r := range m.ReadBy {
		if r == identity {
			return true
		}
	}
	return false
}

// MarkReadBy adds the identities to ReadBy, keeping the first-seen order. It
// never removes entries. Returns true if anything was added.
func (m *Message) MarkReadBy(identities ...string) bool {
	added := false
	for _, who := range identities {
		if who == "" || m.IsReadBy(who) {
			continue
		}
		m.ReadBy = append(m.ReadBy, who)
		added = true
	}
	if added {
		m.IsRead = true
	}
	return added
}

// ToggleReaction adds who to the reactors of emoji, or removes them if they
// had already reacted. Returns true if the reaction is now present.
func (m *Message) ToggleReaction(emoji, who string) bool {
	if m.Reactions == nil {
		m.Reactions = make(map[string][]string)
	}
	reactors := m.Reactions[emoji]
	for i, r := range reactors {
		if r == who {
			reactors = append(reactors[:i:i], reactors[i+1:]...)
			if len(reactors) == 0 {
				delete(m.Reactions, emoji)
			} else {
				m.Reactions[emoji] = reactors
			}
			return false
		}
	}
	m.Reactions[emoji] = append(reactors, who)
	return true
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	c := *m
	if m.ReadBy != nil {
		c.ReadBy = append([]string(nil), m.ReadBy...)
	}
	if m.Reactions != nil {
		c.Reactions = make(map[string][]string, len(m.Reactions))
		for e, who := range m.Reactions {
			c.Reactions[e] = append([]string(nil), who...)
		}
	}
	return &c
}

// Patch is a partial update of a persisted message. Nil fields are left
// untouched.
type Patch struct {
	Text      *string
	Media     *Media
	EditedAt  *time.Time
	DeletedBy *string
	DeletedAt *time.Time

	// ReadBy identities are added to the message; a patch cannot remove
	// readers.
	ReadBy []string

	// Reactions replaces the reactors of each listed emoji. An empty list
	// removes the emoji.
	Reactions map[string][]string

	ThreadCount   *int
	LastReplyFrom *string
}

// EditPatch returns the patch applied when a message is edited.
func EditPatch(text string, media *Media, at time.Time) Patch {
	return Patch{Text: &text, Media: media, EditedAt: &at}
}

// DeletePatch returns the patch applied when a message is soft-deleted.
func DeletePatch(by string, at time.Time) Patch {
	return Patch{DeletedBy: &by, DeletedAt: &at}
}

// Apply merges p into m.
func (m *Message) Apply(p Patch) {
	if p.Text != nil {
		m.Text = *p.Text
		m.IsEdited = true
	}
	if p.Media != nil {
		m.Media = *p.Media
		m.IsEdited = true
	}
	if p.EditedAt != nil {
		m.IsEdited = true
		m.EditedAt = *p.EditedAt
	}
	if p.DeletedBy != nil || p.DeletedAt != nil {
		m.IsDeleted = true
		if p.DeletedBy != nil {
			m.DeletedBy = *p.DeletedBy
		}
		if p.DeletedAt != nil {
			m.DeletedAt = *p.DeletedAt
		}
	}
	m.MarkReadBy(p.ReadBy...)
	for emoji, who := range p.Reactions {
		if m.Reactions == nil {
			m.Reactions = make(map[string][]string)
		}
		if len(who) == 0 {
			delete(m.Reactions, emoji)
			continue
		}
		m.Reactions[emoji] = append([]string(nil), who...)
	}
	if p.ThreadCount != nil {
		m.ThreadCount = *p.ThreadCount
	}
	if p.LastReplyFrom != nil {
		m.LastReplyFrom = *p.LastReplyFrom
	}
}

// Draft is an outbound message composed locally.
type Draft struct {
	ClientTempID     string          `json:"tempId"`
	Sender           string          `json:"from"`
	Conversation     ConversationKey `json:"-"`
	Text             string          `json:"text"`
	Media            Media           `json:"media"`
	ReplyToMessageID ID              `json:"replyTo,omitempty"`
	ReplyToSender    string          `json:"replyToSender,omitempty"`
	ReplyToText      string          `json:"replyToText,omitempty"`

	// ThreadParentID is set when the draft is a reply within a thread.
	ThreadParentID ID `json:"parentId,omitempty"`
}

// MarshalJSON encodes the draft the way the server expects it.
func (d Draft) MarshalJSON() ([]byte, error) {
	type plain Draft
	w := struct {
		plain
		RoomCode string `json:"roomCode,omitempty"`
		To       string `json:"to,omitempty"`
		IsGroup  bool   `json:"isGroup"`
	}{plain: plain(d), IsGroup: d.Conversation.IsGroup()}
	if w.IsGroup {
		w.RoomCode = d.Conversation.RoomCode()
	} else {
		w.To = d.Conversation.Peer(d.Sender)
	}
	return json.Marshal(w)
}

// Pending returns the optimistic local echo of the draft.
func (d Draft) Pending(sentAt time.Time, displayTime string) *Message {
	return &Message{
		ClientTempID:     d.ClientTempID,
		Status:           Unsent,
		Sender:           d.Sender,
		Conversation:     d.Conversation,
		Text:             d.Text,
		SentAt:           sentAt,
		DisplayTime:      displayTime,
		IsSelf:           true,
		Media:            d.Media,
		ReplyToMessageID: d.ReplyToMessageID,
		ReplyToSender:    d.ReplyToSender,
		ReplyToText:      d.ReplyToText,
	}
}
