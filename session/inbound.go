////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package session

import (
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/chatsync/live"
	"gitlab.com/elixxir/chatsync/message"
)

// listener adheres to live.Listener and applies inbound events to the
// session. It runs on the reader goroutine of the live channel.
type listener struct {
	s *Session
}

// OnMessage confirms the pending echo of a message sent by this session or
// appends the message to the active conversation. Messages of any other
// conversation only count as unread.
func (l *listener) OnMessage(raw message.RawMessage) {
	s := l.s
	active := s.coord.Active()
	m, err := s.norm.Normalize(raw, message.SourceLive, active)
	if err != nil {
		jww.WARN.Printf("[SESSION] Dropping live message: %+v", err)
		return
	}

	if raw.TempID != "" && !m.ID.IsZero() && s.sends.IsPending(raw.TempID) {
		if !s.store.ConfirmPending(raw.TempID, m) {
			jww.DEBUG.Printf("[SESSION] Echo of %s is not loaded", raw.TempID)
		}
		if err = s.sends.Sent(raw.TempID, m.ID); err != nil {
			jww.WARN.Printf("[SESSION] %+v", err)
		}
		return
	}
	if m.IsSelf && s.sends.CheckIfSent(m.ID) {
		// The broadcast is the last copy of an acknowledged send
		s.sends.StopTracking(m.ID)
		jww.TRACE.Printf("[SESSION] Broadcast of own send %s", m.ID)
	}

	if m.Conversation != active {
		if !m.IsSelf {
			n := s.dir.IncrementUnread(m.Conversation)
			jww.DEBUG.Printf("[SESSION] %s has %d unread messages",
				m.Conversation, n)
		}
		return
	}

	added, err := s.store.AppendLive(m)
	if err != nil {
		// The conversation changed while the message was normalized
		jww.DEBUG.Printf("[SESSION] %+v", err)
		return
	}
	if added && !m.IsSelf {
		go l.evaluateReads()
	}
}

func (l *listener) evaluateReads() {
	ctx, cancel := l.s.background()
	defer cancel()
	l.s.coord.EvaluateReads(ctx)
}

// OnEdit applies an edit broadcast.
func (l *listener) OnEdit(e live.Edit) {
	at := e.EditedAt.Time
	if at.IsZero() {
		at = l.s.norm.Now()
	}
	l.pointUpdate(e.MessageID, message.EditPatch(e.Text, e.Media, at))
}

// OnDelete applies a delete broadcast.
func (l *listener) OnDelete(e live.Delete) {
	at := e.DeletedAt.Time
	if at.IsZero() {
		at = l.s.norm.Now()
	}
	l.pointUpdate(e.MessageID, message.DeletePatch(e.DeletedBy, at))
}

// OnTyping records typing indicators of others in the active conversation.
func (l *listener) OnTyping(e live.Typing) {
	me := l.s.identity().ID
	if e.From == "" || e.From == me {
		return
	}
	if e.Conversation(me) != l.s.coord.Active() {
		return
	}
	l.s.coord.UI().SetTyping(e.From, e.IsTyping)
}

// OnThreadMessage collects replies of open threads.
func (l *listener) OnThreadMessage(parentID message.ID,
	raw message.RawMessage) {
	s := l.s
	m, err := s.norm.Normalize(raw, message.SourceLive, s.coord.Active())
	if err != nil {
		jww.WARN.Printf("[SESSION] Dropping thread reply to %s: %+v",
			parentID, err)
		return
	}

	s.mux.Lock()
	defer s.mux.Unlock()
	replies, open := s.threads[parentID]
	if !open {
		jww.TRACE.Printf("[SESSION] Thread %s is not open", parentID)
		return
	}
	if s.dedup.IsDuplicate(m, replies) {
		return
	}
	s.threads[parentID] = append(replies, m)
	s.bus.Report(1, "Thread", "Reply", parentID.String())
}

// OnThreadCount applies a thread aggregate update.
func (l *listener) OnThreadCount(e live.ThreadCount) {
	count, from := e.ThreadCount, e.LastReplyFrom
	l.pointUpdate(e.MessageID, message.Patch{ThreadCount: &count,
		LastReplyFrom: &from})
}

// OnReaction applies the reaction state of a message.
func (l *listener) OnReaction(e live.ReactionUpdate) {
	reactions := e.Reactions
	if reactions == nil {
		reactions = map[string][]string{}
	}
	l.pointUpdate(e.MessageID, message.Patch{Reactions: reactions})
}

// OnRead adds the reader to the listed messages. Without a list, every
// loaded message not sent by the reader is read.
func (l *listener) OnRead(e live.MessagesRead) {
	s := l.s
	if e.Reader == "" {
		return
	}
	patch := message.Patch{ReadBy: []string{e.Reader}}
	if len(e.MessageIDs) > 0 {
		for _, id := range e.MessageIDs {
			l.pointUpdate(id, patch)
		}
		return
	}

	me := s.identity().ID
	var key message.ConversationKey
	if e.RoomCode != "" {
		key = message.RoomKey(e.RoomCode)
	} else {
		key = message.DirectKey(me, e.Reader)
	}
	if key != s.coord.Active() {
		return
	}
	for _, m := range s.store.Messages() {
		if m.Sender != e.Reader && !m.ID.IsZero() {
			s.store.ApplyPointUpdate(m.ID, patch)
		}
	}
}

func (l *listener) pointUpdate(id message.ID, p message.Patch) {
	if !l.s.store.ApplyPointUpdate(id, p) {
		jww.TRACE.Printf("[SESSION] Update of %s is not loaded", id)
	}
}
