////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package message

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"gitlab.com/xx_network/primitives/netTime"
)

// DisplayTimeLayout is the layout used when the display time has to be
// computed locally.
const DisplayTimeLayout = "15:04"

// Source denotes where a raw payload came from.
type Source uint8

const (
	// SourceHistory is a payload returned by the historical store.
	SourceHistory Source = iota

	// SourceLive is a payload received on the live channel.
	SourceLive

	// SourceLocal is a payload created on this client.
	SourceLocal
)

// String returns a human-readable version of Source. This function adheres to
// the fmt.Stringer interface.
func (s Source) String() string {
	switch s {
	case SourceHistory:
		return "history"
	case SourceLive:
		return "live"
	case SourceLocal:
		return "local"
	default:
		return "Invalid Source: " + strconv.Itoa(int(s))
	}
}

// Clock returns the current local time. It is the type of netTime.Now.
type Clock = netTime.NowFunc

// Timestamp is a time that decodes from an RFC 3339 string or from epoch
// milliseconds.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON decodes the timestamp.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) ||
		bytes.Equal(data, []byte(`""`)) {
		t.Time = time.Time{}
		return nil
	}
	if data[0] == '"' {
		return t.Time.UnmarshalJSON(data)
	}
	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return err
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

// RawMessage is the union of the message shapes emitted by the historical
// store and by the live channel. The same logical field arrives under
// different names depending on the source; Normalize resolves them.
type RawMessage struct {
	ID       ID     `json:"id"`
	AltID    ID     `json:"_id"`
	TempID   string `json:"tempId"`
	Sender   string `json:"sender"`
	From     string `json:"from"`
	To       string `json:"to"`
	Receiver string `json:"receiver"`

	RoomCode    string `json:"roomCode"`
	AltRoomCode string `json:"room_code"`
	IsGroup     *bool  `json:"isGroup"`

	Text    string `json:"text"`
	Message string `json:"message"`

	SentAt      Timestamp `json:"sentAt"`
	Timestamp   Timestamp `json:"timestamp"`
	DisplayTime string    `json:"displayTime"`
	Time        string    `json:"time"`

	IsSelf *bool `json:"is_self"`

	FileURL  string `json:"fileUrl"`
	FileType string `json:"fileType"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`

	ReplyTo       ID     `json:"replyTo"`
	ReplyToSender string `json:"replyToSender"`
	ReplyToText   string `json:"replyToText"`

	ThreadCount   int    `json:"threadCount"`
	LastReplyFrom string `json:"lastReplyFrom"`

	IsEdited  bool      `json:"isEdited"`
	EditedAt  Timestamp `json:"editedAt"`
	IsDeleted bool      `json:"isDeleted"`
	DeletedBy string    `json:"deletedBy"`
	DeletedAt Timestamp `json:"deletedAt"`

	IsRead bool     `json:"isRead"`
	ReadBy []string `json:"readBy"`

	Reactions map[string][]string `json:"reactions"`
}

// ParseRaw decodes a JSON payload into a RawMessage.
func ParseRaw(data []byte) (RawMessage, error) {
	var raw RawMessage
	err := json.Unmarshal(data, &raw)
	return raw, err
}

// Normalizer converts raw payloads into canonical messages for the current
// identity.
type Normalizer struct {
	identity IdentitySource
	clock    Clock
	location *time.Location
}

// NewNormalizer returns a Normalizer. If clock is nil, netTime.Now is used.
func NewNormalizer(identity IdentitySource, clock Clock) *Normalizer {
	if clock == nil {
		clock = netTime.Now
	}
	return &Normalizer{
		identity: identity,
		clock:    clock,
		location: time.Local,
	}
}

// Now returns the current time of the normalizer's clock.
func (n *Normalizer) Now() time.Time {
	return n.clock()
}

// FormatTime formats t the way display times are formatted.
func (n *Normalizer) FormatTime(t time.Time) string {
	return t.In(n.location).Format(DisplayTimeLayout)
}

// Normalize converts raw into a Message. fallback is used as conversation key
// when the payload does not carry enough information to derive it, which is
// the case for responses of per-conversation history endpoints.
//
// A payload without sender, text and media returns a MalformedMessageError.
func (n *Normalizer) Normalize(raw RawMessage, src Source,
	fallback ConversationKey) (*Message, error) {
	sender := firstOf(raw.Sender, raw.From)
	text := firstOf(raw.Text, raw.Message)
	if sender == "" && text == "" && raw.FileURL == "" {
		return nil, &MalformedMessageError{Source: src,
			Reason: "no sender, text or media"}
	}

	me := n.identity()

	m := &Message{
		ID:               raw.ID,
		Sender:           sender,
		Text:             text,
		ReplyToMessageID: raw.ReplyTo,
		ReplyToSender:    raw.ReplyToSender,
		ReplyToText:      raw.ReplyToText,
		ThreadCount:      raw.ThreadCount,
		LastReplyFrom:    raw.LastReplyFrom,
		IsEdited:         raw.IsEdited,
		EditedAt:         raw.EditedAt.Time,
		IsDeleted:        raw.IsDeleted,
		DeletedBy:        raw.DeletedBy,
		DeletedAt:        raw.DeletedAt.Time,
		Media: Media{
			Type:     raw.FileType,
			URL:      raw.FileURL,
			FileName: raw.FileName,
			FileSize: raw.FileSize,
		},
	}
	if m.ID.IsZero() {
		m.ID = raw.AltID
	}
	switch {
	case !m.ID.IsZero():
		m.Status = Sent
	case raw.TempID != "":
		m.ClientTempID = raw.TempID
		m.Status = Unsent
	default:
		// Broadcasts without any identifier are matched by content only
		m.Status = Sent
	}
	m.Conversation = n.conversationOf(raw, sender, fallback)
	if m.Conversation.IsZero() {
		return nil, &MalformedMessageError{Source: src,
			Reason: "conversation cannot be determined"}
	}

	m.SentAt = raw.SentAt.Time
	if m.SentAt.IsZero() {
		m.SentAt = raw.Timestamp.Time
	}
	m.DisplayTime = firstOf(raw.DisplayTime, raw.Time)
	if m.DisplayTime == "" {
		if !m.SentAt.IsZero() {
			m.DisplayTime = n.FormatTime(m.SentAt)
		} else {
			m.DisplayTime = n.FormatTime(n.clock())
		}
	}

	if src == SourceHistory && raw.IsSelf != nil {
		m.IsSelf = *raw.IsSelf
	} else {
		m.IsSelf = !me.IsZero() && sender == me.ID
	}

	m.MarkReadBy(raw.ReadBy...)
	m.IsRead = m.IsRead || raw.IsRead
	if len(raw.Reactions) > 0 {
		m.Reactions = make(map[string][]string, len(raw.Reactions))
		for emoji, who := range raw.Reactions {
			if len(who) > 0 {
				m.Reactions[emoji] = append([]string(nil), who...)
			}
		}
	}

	return m, nil
}

// conversationOf derives the conversation key of the payload.
func (n *Normalizer) conversationOf(raw RawMessage, sender string,
	fallback ConversationKey) ConversationKey {
	if room := firstOf(raw.RoomCode, raw.AltRoomCode); room != "" &&
		(raw.IsGroup == nil || *raw.IsGroup) {
		return RoomKey(room)
	}
	if peer := firstOf(raw.To, raw.Receiver); peer != "" && sender != "" {
		return DirectKey(sender, peer)
	}
	return fallback
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
