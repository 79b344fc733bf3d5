////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package event delivers message list snapshots and reportable events to the
// UI layer. A Bus lives as long as the session that owns it.
package event

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/elixxir/chatsync/stoppable"
)

const queueSize = 1000

// reportableEvent is used to surface events to client users.
type reportableEvent struct {
	Priority  int
	Category  string
	EventType string
	Details   string
}

// String returns a human-readable version of the event. This function adheres
// to the fmt.Stringer interface.
func (e reportableEvent) String() string {
	return fmt.Sprintf("Event(%d, %s, %s, %s)", e.Priority, e.Category,
		e.EventType, e.Details)
}

// listUpdate is a snapshot of one conversation's message list.
type listUpdate struct {
	key  message.ConversationKey
	msgs []*message.Message
}

// update is the element of the delivery queue. Exactly one field is set.
type update struct {
	list  *listUpdate
	event *reportableEvent
}

// Bus queues snapshots and events and delivers them in order to every
// registered callback from a single goroutine.
type Bus struct {
	queue     chan update
	listCbs   sync.Map
	eventCbs  sync.Map
	callbacks sync.Mutex
}

// NewBus returns a Bus. Nothing is delivered until Start is called.
func NewBus() *Bus {
	return &Bus{queue: make(chan update, queueSize)}
}

// Subscribe registers a callback for message list snapshots.
func (b *Bus) Subscribe(name string, cb ListCallback) error {
	if _, exists := b.listCbs.LoadOrStore(name, cb); exists {
		return errors.Errorf("Key %s already exists as list callback", name)
	}
	return nil
}

// Unsubscribe removes a list callback.
func (b *Bus) Unsubscribe(name string) {
	b.listCbs.Delete(name)
}

// RegisterEventCallback registers a callback for reported events.
func (b *Bus) RegisterEventCallback(name string, cb Callback) error {
	if _, exists := b.eventCbs.LoadOrStore(name, cb); exists {
		return errors.Errorf("Key %s already exists as event callback",
			name)
	}
	return nil
}

// UnregisterEventCallback removes an event callback.
func (b *Bus) UnregisterEventCallback(name string) {
	b.eventCbs.Delete(name)
}

// Publish queues a snapshot. It never blocks; when the queue is full the
// snapshot is dropped and logged, and the next one supersedes it.
func (b *Bus) Publish(key message.ConversationKey, msgs []*message.Message) {
	select {
	case b.queue <- update{list: &listUpdate{key: key, msgs: msgs}}:
	default:
		jww.ERROR.Printf("[EVENT] Queue full, dropping snapshot of %s "+
			"(%d messages)", key, len(msgs))
	}
}

// Report queues a reportable event. It never blocks.
func (b *Bus) Report(priority int, category, evtType, details string) {
	re := &reportableEvent{
		Priority:  priority,
		Category:  category,
		EventType: evtType,
		Details:   details,
	}
	select {
	case b.queue <- update{event: re}:
		jww.TRACE.Printf("[EVENT] Event reported: %s", re)
	default:
		jww.ERROR.Printf("[EVENT] Queue full, unable to report: %s", re)
	}
}

// Start launches the delivery goroutine.
func (b *Bus) Start() stoppable.Stoppable {
	stop := stoppable.NewSingle("EventBus")
	go b.deliver(stop)
	return stop
}

// deliver hands every queued update to the registered callbacks.
func (b *Bus) deliver(stop *stoppable.Single) {
	jww.DEBUG.Print("[EVENT] Delivery routine started")
	for {
		select {
		case <-stop.Quit():
			jww.DEBUG.Print("[EVENT] Stopping delivery routine")
			stop.ToStopped()
			return
		case u := <-b.queue:
			b.dispatch(u)
		}
	}
}

// dispatch calls the callbacks for one update. Callbacks run sequentially; a
// slow callback delays every later update.
func (b *Bus) dispatch(u update) {
	b.callbacks.Lock()
	defer b.callbacks.Unlock()

	switch {
	case u.list != nil:
		b.listCbs.Range(func(_, cb interface{}) bool {
			cb.(ListCallback)(u.list.key, u.list.msgs)
			return true
		})
	case u.event != nil:
		e := u.event
		b.eventCbs.Range(func(_, cb interface{}) bool {
			cb.(Callback)(e.Priority, e.Category, e.EventType, e.Details)
			return true
		})
	}
}
