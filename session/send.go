////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package session

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/chatsync/emoji"
	"gitlab.com/elixxir/chatsync/live"
	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/elixxir/chatsync/store"
)

// Send sends a message to the active conversation and returns its temporary
// ID. The message is shown at once as pending and confirmed in place when
// the live channel echoes it back. The reply draft of the view, if any, is
// attached and cleared.
//
// Returns live.ErrChannelUnavailable, leaving the store unchanged, if the
// live channel is not connected. There is no send timeout: without an echo
// the message stays pending until the session stops.
func (s *Session) Send(ctx context.Context, d message.Draft) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	active := s.coord.Active()
	if active.IsZero() {
		return "", store.ErrNoConversation
	}
	if strings.TrimSpace(d.Text) == "" && d.Media.IsZero() {
		return "", errors.New("cannot send an empty message")
	}
	if !s.channel.IsConnected() {
		return "", live.ErrChannelUnavailable
	}

	me := s.identity()
	d.Sender = me.ID
	d.Conversation = active
	d.ClientTempID = uuid.NewString()
	if d.ReplyToMessageID.IsZero() {
		s.coord.UI().ApplyReply(&d)
	}

	if err := s.sends.DenotePending(d); err != nil {
		return "", err
	}

	now := s.norm.Now()
	added, err := s.store.AppendLive(d.Pending(now, s.norm.FormatTime(now)))
	if err != nil {
		// The conversation changed since Active was read
		_ = s.sends.Failed(d.ClientTempID)
		return "", err
	} else if !added {
		jww.WARN.Printf("[SEND] Echo of %s was taken for a duplicate",
			d.ClientTempID)
	}

	if err = s.channel.SendMessage(d); err != nil {
		jww.ERROR.Printf("[SEND] Failed to send %s: %+v", d.ClientTempID, err)
		if failErr := s.sends.Failed(d.ClientTempID); failErr != nil {
			jww.ERROR.Printf("[SEND] %+v", failErr)
		}
		s.bus.Report(2, "Send", "Failed", d.ClientTempID)
		return d.ClientTempID, err
	}

	s.coord.UI().SetReply(nil)
	jww.DEBUG.Printf("[SEND] Sent %s to %s", d.ClientTempID, active)
	return d.ClientTempID, nil
}

// updateSentStatus is called by the send tracker when a send concludes.
func (s *Session) updateSentStatus(tempID string,
	conv message.ConversationKey, id message.ID, status message.SentStatus) {
	switch status {
	case message.Failed:
		if !s.store.FailPending(tempID) {
			jww.DEBUG.Printf("[SEND] Failed send %s of %s is not loaded",
				tempID, conv)
		}
	case message.Sent:
		jww.TRACE.Printf("[SEND] %s of %s persisted as %s", tempID, conv, id)
	}
}

// Edit replaces the text, and the media if media is not nil, of a message
// sent by the identity. The change is persisted first, then broadcast and
// applied locally.
func (s *Session) Edit(ctx context.Context, id message.ID, text string,
	media *message.Media) error {
	m, exists := s.store.Get(id)
	if !exists {
		return errors.Wrapf(ErrUnknownMessage, "edit %s", id)
	}
	me := s.identity()
	if m.Sender != me.ID {
		return errors.Wrapf(ErrNotPermitted, "edit %s of %s", id, m.Sender)
	}

	if err := s.hist.EditMessage(ctx, id, me.ID, text, media); err != nil {
		return err
	}

	now := s.norm.Now()
	e := live.Edit{MessageID: id, Editor: me.ID, Text: text, Media: media,
		EditedAt: message.Timestamp{Time: now}}
	setTarget(m.Conversation, me.ID, &e.RoomCode, &e.To)
	if err := s.channel.EditMessage(e); err != nil {
		jww.WARN.Printf("[SEND] Edit of %s persisted but not broadcast: %+v",
			id, err)
	}

	s.store.ApplyPointUpdate(id, message.EditPatch(text, media, now))
	return nil
}

// Delete soft-deletes a message. Only the sender or a privileged identity
// may delete it.
func (s *Session) Delete(ctx context.Context, id message.ID) error {
	m, exists := s.store.Get(id)
	if !exists {
		return errors.Wrapf(ErrUnknownMessage, "delete %s", id)
	}
	me := s.identity()
	if m.Sender != me.ID && !me.IsPrivileged() {
		return errors.Wrapf(ErrNotPermitted, "delete %s of %s", id, m.Sender)
	}

	deletedBy := me.DisplayName
	if deletedBy == "" {
		deletedBy = me.ID
	}
	if err := s.hist.DeleteMessage(
		ctx, id, me.ID, me.IsPrivileged(), deletedBy); err != nil {
		return err
	}

	now := s.norm.Now()
	d := live.Delete{MessageID: id, Requester: me.ID,
		IsPrivileged: me.IsPrivileged(), DeletedBy: deletedBy,
		DeletedAt: message.Timestamp{Time: now}}
	setTarget(m.Conversation, me.ID, &d.RoomCode, &d.To)
	if err := s.channel.DeleteMessage(d); err != nil {
		jww.WARN.Printf("[SEND] Delete of %s persisted but not broadcast: %+v",
			id, err)
	}

	s.store.ApplyPointUpdate(id, message.DeletePatch(deletedBy, now))
	return nil
}

// React toggles the identity's reaction to a message. The reaction must be a
// single emoji. The local message changes when the reaction update is
// broadcast back.
func (s *Session) React(id message.ID, reaction string) error {
	if err := emoji.ValidateReaction(reaction); err != nil {
		return err
	}
	m, exists := s.store.Get(id)
	if !exists {
		return errors.Wrapf(ErrUnknownMessage, "react to %s", id)
	}
	return s.channel.ToggleReaction(m.Conversation, id, reaction)
}

// Typing tells the active conversation whether the identity is typing.
func (s *Session) Typing(isTyping bool) error {
	active := s.coord.Active()
	if active.IsZero() {
		return store.ErrNoConversation
	}
	return s.channel.Typing(active, isTyping)
}

// ReplyThread sends a reply within the thread of parent.
func (s *Session) ReplyThread(parent message.ID, text string) (string, error) {
	active := s.coord.Active()
	if active.IsZero() {
		return "", store.ErrNoConversation
	}
	if _, exists := s.store.Get(parent); !exists {
		return "", errors.Wrapf(ErrUnknownMessage, "reply to %s", parent)
	}
	d := message.Draft{
		ClientTempID:   uuid.NewString(),
		Sender:         s.identity().ID,
		Conversation:   active,
		Text:           text,
		ThreadParentID: parent,
	}
	if err := s.channel.ThreadMessage(parent, d); err != nil {
		return "", err
	}
	return d.ClientTempID, nil
}

// OpenThread collects the replies of parent received live from now on.
// Thread returns them.
func (s *Session) OpenThread(parent message.ID) {
	s.coord.UI().OpenThread(parent)
	s.mux.Lock()
	defer s.mux.Unlock()
	if _, exists := s.threads[parent]; !exists {
		s.threads[parent] = nil
	}
}

// Thread returns the replies of parent received since OpenThread.
func (s *Session) Thread(parent message.ID) []*message.Message {
	s.mux.Lock()
	defer s.mux.Unlock()
	replies := make([]*message.Message, len(s.threads[parent]))
	for i, m := range s.threads[parent] {
		replies[i] = m.Clone()
	}
	return replies
}

// setTarget fills the room code or the direct peer of an outbound event.
func setTarget(key message.ConversationKey, self string, roomCode,
	to *string) {
	if key.IsGroup() {
		*roomCode = key.RoomCode()
	} else {
		*to = key.Peer(self)
	}
}
