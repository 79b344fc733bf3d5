////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package dedup

import (
	"testing"
	"time"

	"gitlab.com/elixxir/chatsync/message"
)

var (
	room = message.RoomKey("ABC123")
	t0   = time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
)

func msg(id message.ID, text string, at time.Time) *message.Message {
	return &message.Message{ID: id, Sender: "A", Conversation: room,
		Text: text, SentAt: at}
}

// Tests each rule of Fuzzy.IsDuplicate.
func TestFuzzy_IsDuplicate(t *testing.T) {
	f := NewFuzzy(0)

	tests := []struct {
		name      string
		candidate *message.Message
		existing  *message.Message
		expected  bool
	}{
		{"same ID", msg("42", "hello", t0), msg("42", "other", t0.Add(time.Hour)), true},
		{"different IDs same content", msg("42", "hello", t0),
			msg("43", "hello", t0.Add(10*time.Second)), true},
		{"different IDs outside window", msg("42", "hello", t0),
			msg("43", "hello", t0.Add(2*time.Minute)), false},
		{"no identifiers different text", &message.Message{Sender: "A",
			Conversation: room, Text: "first", DisplayTime: "10:00"},
			&message.Message{Sender: "A", Conversation: room,
				Text: "second", DisplayTime: "10:00"}, false},
		{"pending vs persisted within window", msg("", "hello", t0),
			msg("42", "hello", t0.Add(200*time.Millisecond)), true},
		{"pending vs persisted outside window", msg("", "hello", t0),
			msg("42", "hello", t0.Add(90*time.Second)), false},
		{"different text", msg("", "hello", t0), msg("42", "hi", t0), false},
		{"no times at all", msg("", "hello", time.Time{}), msg("42", "hello", time.Time{}), true},
		{"only one side has a time", msg("", "hello", t0), msg("42", "hello", time.Time{}), false},
	}

	for _, tt := range tests {
		got := f.IsDuplicate(tt.candidate, []*message.Message{tt.existing})
		if got != tt.expected {
			t.Errorf("%s: wrong result.\nexpected: %t\nreceived: %t",
				tt.name, tt.expected, got)
		}
	}
}

// Tests that the sender, conversation and group flag all take part in the
// content match.
func TestFuzzy_IsDuplicate_ContentKey(t *testing.T) {
	f := NewFuzzy(time.Minute)
	base := msg("", "hello", t0)

	otherSender := msg("42", "hello", t0)
	otherSender.Sender = "B"

	otherRoom := msg("42", "hello", t0)
	otherRoom.Conversation = message.RoomKey("XYZ")

	direct := msg("42", "hello", t0)
	direct.Conversation = message.DirectKey("A", "B")

	for i, m := range []*message.Message{otherSender, otherRoom, direct} {
		if f.IsDuplicate(base, []*message.Message{m}) {
			t.Errorf("Message %d should not match.", i)
		}
	}
}

// Tests that two pending copies of the same local send match by temp ID.
func TestFuzzy_IsDuplicate_TempID(t *testing.T) {
	f := NewFuzzy(time.Minute)
	a := &message.Message{ClientTempID: "t1", Sender: "A",
		Conversation: room, Text: "x", SentAt: t0}
	b := &message.Message{ClientTempID: "t1", Sender: "A",
		Conversation: room, Text: "edited", SentAt: t0.Add(time.Hour)}
	if !f.IsDuplicate(a, []*message.Message{b}) {
		t.Errorf("Messages with the same temp ID should match.")
	}
}

// Tests that display times are compared when timestamps are missing.
func TestFuzzy_IsDuplicate_DisplayTime(t *testing.T) {
	f := NewFuzzy(time.Minute)
	a := &message.Message{Sender: "A", Conversation: room, Text: "x",
		DisplayTime: "10:00"}
	b := &message.Message{ID: "1", Sender: "A", Conversation: room,
		Text: "x", DisplayTime: "10:00"}
	c := &message.Message{ID: "2", Sender: "A", Conversation: room,
		Text: "x", DisplayTime: "10:01"}

	if !f.IsDuplicate(a, []*message.Message{b}) {
		t.Errorf("Same display minute should match.")
	}
	if f.IsDuplicate(a, []*message.Message{c}) {
		t.Errorf("Display times a minute apart should not match.")
	}
}
