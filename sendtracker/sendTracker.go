////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package sendtracker tracks the messages sent by this client between the
// optimistic local echo and the server acknowledgement.
//
// Pending sends are persisted. A send still pending when the client stops
// cannot be known to have reached the server, so on the next Init it is
// reported failed. There is no idempotency key, so resending it may produce a
// duplicate.
package sendtracker

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/elixxir/chatsync/storage"
	"gitlab.com/xx_network/primitives/netTime"
)

const (
	unsentStorageKey     = "sendTrackerUnsent"
	unsentStorageVersion = 0
)

var (
	// ErrNotPending is returned when acknowledging a send that is not
	// tracked.
	ErrNotPending = errors.New("cannot handle send on an unprepared message")

	// ErrAlreadySent is returned when a message ID was already acknowledged
	// for another send.
	ErrAlreadySent = errors.New(
		"cannot handle send on a message which was already sent")
)

// UpdateStatusFunc is called when the status of a tracked send changes. id
// is zero unless status is message.Sent.
type UpdateStatusFunc func(tempID string, conversation message.ConversationKey,
	id message.ID, status message.SentStatus)

type tracked struct {
	TempID       string                  `json:"tempID"`
	Conversation message.ConversationKey `json:"conversation"`
	Text         string                  `json:"text"`
	Denoted      time.Time               `json:"denoted"`
	MsgID        message.ID              `json:"msgID,omitempty"`
}

// Tracker tracks the sends of one identity.
type Tracker struct {
	unsent      map[string]*tracked
	byMessageID map[message.ID]*tracked

	updateStatus UpdateStatusFunc

	kv  *storage.KV
	mux sync.RWMutex
}

// New returns an uninitialized Tracker storing its state in kv.
func New(kv *storage.KV) *Tracker {
	return &Tracker{kv: kv.Prefix("sendTracker")}
}

// Init loads the tracker from storage. Every send left pending by a previous
// run is reported failed through updateStatus and forgotten.
func (st *Tracker) Init(updateStatus UpdateStatusFunc) {
	st.mux.Lock()
	defer st.mux.Unlock()
	st.unsent = make(map[string]*tracked)
	st.byMessageID = make(map[message.ID]*tracked)
	st.updateStatus = updateStatus

	if err := st.load(); err != nil && st.kv.Exists(err) {
		jww.FATAL.Panicf("[SEND] Failed to load send tracker: %+v", err)
	}

	if len(st.unsent) == 0 {
		return
	}
	jww.WARN.Printf("[SEND] %d sends were pending when the client stopped; "+
		"marking them failed", len(st.unsent))
	for tempID, t := range st.unsent {
		if updateStatus != nil {
			updateStatus(tempID, t.Conversation, "", message.Failed)
		}
	}
	st.unsent = make(map[string]*tracked)
	if err := st.storeUnsent(); err != nil {
		jww.FATAL.Panicf("[SEND] %+v", err)
	}
}

// DenotePending starts tracking the draft, before it is sent.
func (st *Tracker) DenotePending(d message.Draft) error {
	if d.ClientTempID == "" {
		return errors.New("cannot track a draft without a temp ID")
	}

	st.mux.Lock()
	defer st.mux.Unlock()
	if _, exists := st.unsent[d.ClientTempID]; exists {
		return nil
	}
	st.unsent[d.ClientTempID] = &tracked{
		TempID:       d.ClientTempID,
		Conversation: d.Conversation,
		Text:         d.Text,
		Denoted:      netTime.Now(),
	}
	return st.storeUnsent()
}

// Sent records the acknowledgement of the send with the server ID.
func (st *Tracker) Sent(tempID string, id message.ID) error {
	st.mux.Lock()
	t, exists := st.unsent[tempID]
	if !exists {
		st.mux.Unlock()
		return ErrNotPending
	}
	if _, exists = st.byMessageID[id]; exists {
		st.mux.Unlock()
		return ErrAlreadySent
	}
	t.MsgID = id
	st.byMessageID[id] = t
	delete(st.unsent, tempID)
	err := st.storeUnsent()
	cb := st.updateStatus
	st.mux.Unlock()

	if err != nil {
		return err
	}
	jww.DEBUG.Printf("[SEND] %s acknowledged as %s after %s", tempID, id,
		netTime.Since(t.Denoted))
	if cb != nil {
		cb(tempID, t.Conversation, id, message.Sent)
	}
	return nil
}

// Failed marks the send as failed and stops tracking it.
func (st *Tracker) Failed(tempID string) error {
	st.mux.Lock()
	t, exists := st.unsent[tempID]
	if !exists {
		st.mux.Unlock()
		return ErrNotPending
	}
	delete(st.unsent, tempID)
	err := st.storeUnsent()
	cb := st.updateStatus
	st.mux.Unlock()

	if err != nil {
		return err
	}
	if cb != nil {
		cb(tempID, t.Conversation, "", message.Failed)
	}
	return nil
}

// IsPending returns true if the send with the temp ID awaits its
// acknowledgement.
func (st *Tracker) IsPending(tempID string) bool {
	st.mux.RLock()
	defer st.mux.RUnlock()
	_, exists := st.unsent[tempID]
	return exists
}

// Pending returns the temp IDs awaiting acknowledgement.
func (st *Tracker) Pending() []string {
	st.mux.RLock()
	defer st.mux.RUnlock()
	list := make([]string, 0, len(st.unsent))
	for tempID := range st.unsent {
		list = append(list, tempID)
	}
	return list
}

// CheckIfSent returns true if the message ID was acknowledged for a send of
// this client.
func (st *Tracker) CheckIfSent(id message.ID) bool {
	st.mux.RLock()
	defer st.mux.RUnlock()
	_, exists := st.byMessageID[id]
	return exists
}

// StopTracking forgets an acknowledged message. Returns false if it was not
// tracked.
func (st *Tracker) StopTracking(id message.ID) bool {
	st.mux.Lock()
	defer st.mux.Unlock()
	if _, exists := st.byMessageID[id]; !exists {
		return false
	}
	delete(st.byMessageID, id)
	return true
}

// storeUnsent writes the pending sends to storage, removing the stored copy
// once there are none.
func (st *Tracker) storeUnsent() error {
	if len(st.unsent) == 0 {
		err := st.kv.Delete(unsentStorageKey, unsentStorageVersion)
		if err != nil && st.kv.Exists(err) {
			return errors.WithMessage(err, "failed to clear the pending sends")
		}
		return nil
	}
	return errors.WithMessage(
		st.kv.SetJSON(unsentStorageKey, unsentStorageVersion, st.unsent),
		"failed to store the pending sends")
}

func (st *Tracker) load() error {
	return st.kv.GetJSON(unsentStorageKey, unsentStorageVersion, &st.unsent)
}
