////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package conversation

import (
	"context"
	"strconv"
	"sync"

	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/elixxir/chatsync/store"
)

// Phase is the step of a conversation switch.
type Phase uint8

const (
	Idle Phase = iota
	Leaving
	Cleared
	Joining
	Loading
	Loaded
	LoadFailed
)

// String returns a human-readable name for the Phase. Used for debugging.
func (p Phase) String() string {
	switch p {
	case Idle:
		return "Idle"
	case Leaving:
		return "Leaving"
	case Cleared:
		return "Cleared"
	case Joining:
		return "Joining"
	case Loading:
		return "Loading"
	case Loaded:
		return "Loaded"
	case LoadFailed:
		return "LoadFailed"
	default:
		return "INVALID PHASE: " + strconv.Itoa(int(p))
	}
}

// Rooms joins and leaves rooms on the live channel.
type Rooms interface {
	JoinRoom(roomCode string) error
	LeaveRoom(roomCode string) error
}

// MessageStore is the part of store.Store the coordinator drives.
type MessageStore interface {
	Reset(next message.ConversationKey)
	LoadInitial(ctx context.Context, key message.ConversationKey) (int, error)
	Messages() []*message.Message
	ApplyPointUpdate(id message.ID, patch message.Patch) bool
}

// ReadEvaluator is the part of readtracker.Tracker the coordinator drives.
type ReadEvaluator interface {
	ConversationChanged(key message.ConversationKey)
	Evaluate(ctx context.Context, key message.ConversationKey,
		msgs []*message.Message) []message.ID
}

// State is a snapshot of the coordinator for diagnostics.
type State struct {
	Phase      Phase
	Active     message.ConversationKey
	Generation uint64
}

// Coordinator moves the session from one conversation to another. A switch
// leaves the old room, clears the store and the UI state, joins the new
// room, loads its newest page and evaluates read receipts once.
//
// Switches are serialized up to the load. A switch whose load completes
// after a later switch started is superseded: it returns
// store.ErrSuperseded and has no further effect.
type Coordinator struct {
	identity message.IdentitySource
	rooms    Rooms
	store    MessageStore
	reads    ReadEvaluator
	ui       *UIState

	// switchMux serializes the synchronous phases of switches
	switchMux sync.Mutex

	mux        sync.RWMutex
	phase      Phase
	current    *Conversation
	generation uint64
}

// NewCoordinator returns a Coordinator with no open conversation. rooms and
// reads may be nil.
func NewCoordinator(identity message.IdentitySource, rooms Rooms,
	s MessageStore, reads ReadEvaluator, ui *UIState) *Coordinator {
	if ui == nil {
		ui = NewUIState()
	}
	return &Coordinator{
		identity: identity,
		rooms:    rooms,
		store:    s,
		reads:    reads,
		ui:       ui,
	}
}

// Switch opens next. See Coordinator for the phases. Load failures are
// returned and leave the coordinator in LoadFailed with next still active;
// store.Store.LoadMore retries the load.
func (c *Coordinator) Switch(ctx context.Context, next Conversation) error {
	if err := next.Verify(); err != nil {
		return err
	}
	me := c.identity()

	c.switchMux.Lock()
	c.mux.Lock()
	c.generation++
	gen := c.generation
	prev := c.current
	c.mux.Unlock()

	if prev != nil {
		c.setPhase(gen, Leaving)
		if prev.IsGroup && prev.IsMember(me.ID) && c.rooms != nil &&
			prev.Key != next.Key {
			if err := c.rooms.LeaveRoom(prev.RoomCode); err != nil {
				jww.WARN.Printf("[SWITCH] Failed to leave room %s: %+v",
					prev.RoomCode, err)
			}
		}
	}

	c.store.Reset(next.Key)
	c.ui.Clear()
	c.ui.SetPinned(next.PinnedMessageID)
	if c.reads != nil {
		c.reads.ConversationChanged(next.Key)
	}
	c.mux.Lock()
	c.current = &next
	c.mux.Unlock()
	c.setPhase(gen, Cleared)

	c.setPhase(gen, Joining)
	if next.IsGroup && next.IsMember(me.ID) && c.rooms != nil {
		if err := c.rooms.JoinRoom(next.RoomCode); err != nil {
			jww.WARN.Printf("[SWITCH] Failed to join room %s: %+v",
				next.RoomCode, err)
		}
	}
	c.setPhase(gen, Loading)
	c.switchMux.Unlock()

	jww.INFO.Printf("[SWITCH] Switching to %s (generation %d)", next.Key, gen)
	_, err := c.store.LoadInitial(ctx, next.Key)
	if !c.isCurrent(gen) {
		jww.DEBUG.Printf("[SWITCH] Switch to %s superseded", next.Key)
		return store.ErrSuperseded
	}
	if err != nil {
		c.setPhase(gen, LoadFailed)
		return err
	}
	c.setPhase(gen, Loaded)

	c.EvaluateReads(ctx)
	return nil
}

// EvaluateReads runs the read tracker over the store contents and applies
// the new readers locally. It does nothing unless the open conversation is
// loaded.
func (c *Coordinator) EvaluateReads(ctx context.Context) {
	c.mux.RLock()
	if c.reads == nil || c.current == nil || c.phase != Loaded {
		c.mux.RUnlock()
		return
	}
	key, gen := c.current.Key, c.generation
	c.mux.RUnlock()

	marked := c.reads.Evaluate(ctx, key, c.store.Messages())
	if len(marked) == 0 || !c.isCurrent(gen) {
		return
	}
	me := c.identity().ID
	for _, id := range marked {
		c.store.ApplyPointUpdate(id, message.Patch{ReadBy: []string{me}})
	}
}

// Current returns the open conversation.
func (c *Coordinator) Current() (Conversation, bool) {
	c.mux.RLock()
	defer c.mux.RUnlock()
	if c.current == nil {
		return Conversation{}, false
	}
	return *c.current, true
}

// Active returns the key of the open conversation, or the zero key.
func (c *Coordinator) Active() message.ConversationKey {
	c.mux.RLock()
	defer c.mux.RUnlock()
	if c.current == nil {
		return ""
	}
	return c.current.Key
}

// UI returns the conversation scoped UI state.
func (c *Coordinator) UI() *UIState {
	return c.ui
}

// Phase returns the phase of the latest switch.
func (c *Coordinator) Phase() Phase {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return c.phase
}

// State returns a snapshot for diagnostics.
func (c *Coordinator) State() State {
	c.mux.RLock()
	defer c.mux.RUnlock()
	s := State{Phase: c.phase, Generation: c.generation}
	if c.current != nil {
		s.Active = c.current.Key
	}
	return s
}

func (c *Coordinator) isCurrent(gen uint64) bool {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return gen == c.generation
}

// setPhase records the phase of switch gen. Phases of superseded switches
// are dropped.
func (c *Coordinator) setPhase(gen uint64, p Phase) {
	c.mux.Lock()
	defer c.mux.Unlock()
	if gen != c.generation {
		return
	}
	jww.TRACE.Printf("[SWITCH] %s -> %s", c.phase, p)
	c.phase = p
}
