////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package reconcile periodically refreshes the unread counts of every
// conversation from the historical store, independently of the live channel.
package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/elixxir/chatsync/stoppable"
	"gitlab.com/elixxir/chatsync/storage"
	"gitlab.com/xx_network/primitives/netTime"
)

const (
	pollerStoppableName = "UnreadPoller"

	snapshotPrefix  = "reconcile"
	snapshotKey     = "UnreadSnapshot"
	snapshotVersion = 0
)

// Counter is the part of the historical store the poller reads.
type Counter interface {
	GetUnreadCounts(ctx context.Context) (map[message.ConversationKey]int, error)
}

// Callback receives every successful snapshot.
type Callback func(counts map[message.ConversationKey]int)

// Params configures a Poller.
type Params struct {
	// Period between two polls.
	Period time.Duration

	// Timeout of a single poll.
	Timeout time.Duration
}

// GetDefaultParams returns the default Params.
func GetDefaultParams() Params {
	return Params{
		Period:  60 * time.Second,
		Timeout: 10 * time.Second,
	}
}

// Poller polls the unread counts and keeps the latest snapshot.
type Poller struct {
	params  Params
	counter Counter
	kv      *storage.KV
	cb      Callback

	mux      sync.RWMutex
	last     map[message.ConversationKey]int
	lastPoll time.Time
}

// New returns a Poller. The last snapshot stored in kv, if any, is
// available from Last immediately. kv and cb may be nil.
func New(params Params, counter Counter, kv *storage.KV, cb Callback) *Poller {
	p := &Poller{
		params:  params,
		counter: counter,
		cb:      cb,
		last:    make(map[message.ConversationKey]int),
	}
	if kv != nil {
		p.kv = kv.Prefix(snapshotPrefix)
		if err := p.load(); err != nil {
			jww.WARN.Printf("[RECONCILE] Failed to load unread snapshot: %+v",
				err)
		}
	}
	return p
}

// Poll fetches the unread counts once, stores them and passes them to the
// callback.
func (p *Poller) Poll(ctx context.Context) (map[message.ConversationKey]int,
	error) {
	counts, err := p.counter.GetUnreadCounts(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to poll unread counts")
	}

	p.mux.Lock()
	p.last = counts
	p.lastPoll = netTime.Now()
	if p.kv != nil {
		if err = p.storeLocked(); err != nil {
			jww.WARN.Printf("[RECONCILE] Failed to store unread snapshot: "+
				"%+v", err)
		}
	}
	p.mux.Unlock()

	jww.DEBUG.Printf("[RECONCILE] Polled unread counts of %d conversations",
		len(counts))
	if p.cb != nil {
		p.cb(copyCounts(counts))
	}
	return copyCounts(counts), nil
}

// Last returns the latest snapshot.
func (p *Poller) Last() map[message.ConversationKey]int {
	p.mux.RLock()
	defer p.mux.RUnlock()
	return copyCounts(p.last)
}

// LastPoll returns when the latest successful poll completed, or the zero
// time if none did since New.
func (p *Poller) LastPoll() time.Time {
	p.mux.RLock()
	defer p.mux.RUnlock()
	return p.lastPoll
}

// Start polls immediately and then every Params.Period until the returned
// stoppable is closed. Failed polls are logged and retried on the next tick.
func (p *Poller) Start() stoppable.Stoppable {
	stop := stoppable.NewSingle(pollerStoppableName)
	go p.pollThread(stop)
	return stop
}

func (p *Poller) pollThread(stop *stoppable.Single) {
	jww.INFO.Printf("[RECONCILE] Starting unread poller, period %s",
		p.params.Period)

	ticker := time.NewTicker(p.params.Period)
	defer ticker.Stop()

	for {
		p.pollOnce(stop)
		select {
		case <-stop.Quit():
			jww.DEBUG.Print("[RECONCILE] Stopping unread poller: stoppable " +
				"triggered")
			stop.ToStopped()
			return
		case <-ticker.C:
		}
	}
}

// pollOnce runs a single bounded poll that is canceled when stop quits.
func (p *Poller) pollOnce(stop *stoppable.Single) {
	ctx, cancel := context.WithTimeout(context.Background(), p.params.Timeout)
	defer cancel()
	go func() {
		select {
		case <-stop.Quit():
			cancel()
		case <-ctx.Done():
		}
	}()

	if _, err := p.Poll(ctx); err != nil {
		jww.WARN.Printf("[RECONCILE] %+v", err)
	}
}

func (p *Poller) storeLocked() error {
	snapshot := make(map[string]int, len(p.last))
	for key, n := range p.last {
		snapshot[key.String()] = n
	}
	return p.kv.SetJSON(snapshotKey, snapshotVersion, snapshot)
}

func (p *Poller) load() error {
	snapshot := make(map[string]int)
	err := p.kv.GetJSON(snapshotKey, snapshotVersion, &snapshot)
	if !p.kv.Exists(err) {
		return nil
	} else if err != nil {
		return err
	}

	for s, n := range snapshot {
		key, err := message.ParseConversationKey(s)
		if err != nil {
			jww.WARN.Printf("[RECONCILE] Dropping stored count: %+v", err)
			continue
		}
		p.last[key] = n
	}
	return nil
}

func copyCounts(
	counts map[message.ConversationKey]int) map[message.ConversationKey]int {
	c := make(map[message.ConversationKey]int, len(counts))
	for key, n := range counts {
		c[key] = n
	}
	return c
}
