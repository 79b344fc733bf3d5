////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package dedup decides whether an incoming message is already present in a
// message list.
//
// The same logical send can arrive as an optimistic local echo, as the
// server's reply and as a broadcast on the live channel. Server IDs are
// authoritative when both sides carry one; content and time proximity is the
// fallback for messages still pending an ID.
//
// The fallback window is coarse: two distinct messages with the same text,
// sent by the same sender to the same conversation within the window, are
// merged. Narrowing it reintroduces visible duplicates on slow round trips,
// so it is kept until sends carry an idempotency key, at which point a new
// Deduplicator replaces Fuzzy without touching its callers.
package dedup

import (
	"math"
	"time"

	"gitlab.com/elixxir/chatsync/message"
)

// DefaultWindow is the time proximity under which two messages with the same
// content are considered the same message.
const DefaultWindow = time.Minute

// Deduplicator reports whether candidate is already present in existing.
type Deduplicator interface {
	IsDuplicate(candidate *message.Message, existing []*message.Message) bool
}

// Fuzzy matches by server ID and falls back to content plus time proximity.
type Fuzzy struct {
	Window time.Duration
}

// NewFuzzy returns a Fuzzy with the given window. A non-positive window uses
// DefaultWindow.
func NewFuzzy(window time.Duration) *Fuzzy {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Fuzzy{Window: window}
}

// IsDuplicate returns true if any message of existing matches candidate. The
// first rule that matches a pair decides it:
//  1. both IDs are set and equal: duplicate;
//  2. both temp IDs are set and equal: duplicate;
//  3. same text, sender, conversation and kind: duplicate iff the times are
//     within the window, or if neither has a time;
//  4. otherwise not a duplicate.
//
// Two persisted messages with different IDs still merge under rule 3.
func (f *Fuzzy) IsDuplicate(candidate *message.Message,
	existing []*message.Message) bool {
	for _, m := range existing {
		if f.matches(candidate, m) {
			return true
		}
	}
	return false
}

func (f *Fuzzy) matches(a, b *message.Message) bool {
	if !a.ID.IsZero() && a.ID == b.ID {
		return true
	}

	if a.ClientTempID != "" && a.ClientTempID == b.ClientTempID {
		return true
	}

	if a.Text != b.Text || a.Sender != b.Sender ||
		a.Conversation != b.Conversation || a.IsGroup() != b.IsGroup() {
		return false
	}

	if !a.HasTime() && !b.HasTime() {
		return true
	}

	diff, ok := f.minutesApart(a, b)
	return ok && diff < f.Window.Minutes()
}

// minutesApart returns the absolute distance between the two messages in
// minutes. Precise timestamps are used when both have one; otherwise the
// minute resolution display times are compared. Returns false if the two
// cannot be compared.
func (f *Fuzzy) minutesApart(a, b *message.Message) (float64, bool) {
	if !a.SentAt.IsZero() && !b.SentAt.IsZero() {
		return math.Abs(a.SentAt.Sub(b.SentAt).Minutes()), true
	}

	ta, errA := time.Parse(message.DisplayTimeLayout, a.DisplayTime)
	tb, errB := time.Parse(message.DisplayTimeLayout, b.DisplayTime)
	if errA != nil || errB != nil {
		return 0, false
	}
	return math.Abs(ta.Sub(tb).Minutes()), true
}
