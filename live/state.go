////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package live

import (
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// State is the connection state of a Channel.
type State uint32

const (
	// Disconnected is the initial state, and the terminal one after
	// Teardown.
	Disconnected State = iota

	// Connecting is the state of the first connection attempt.
	Connecting

	// Connected means the transport is established and the identity was
	// registered.
	Connected

	// Reconnecting means the transport dropped, or an attempt failed, and the
	// channel is waiting for the next attempt.
	Reconnecting
)

// String returns a human-readable version of State. This function adheres to
// the fmt.Stringer interface.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "INVALID STATE: " + strconv.Itoa(int(s))
	}
}

// validTransition returns true if the channel may move from one state to the
// other. Any state may move to Disconnected.
func validTransition(from, to State) bool {
	switch to {
	case Disconnected:
		return true
	case Connecting:
		return from == Disconnected
	case Connected:
		return from == Connecting || from == Reconnecting
	case Reconnecting:
		return from == Connecting || from == Connected || from == Reconnecting
	}
	return false
}

// StateCallback is called on every state change, synchronously and in order,
// so it must not block. err is the cause of a change into Reconnecting, or
// nil.
type StateCallback func(state State, err error)

var (
	// ErrChannelUnavailable is returned by outbound calls made while the
	// channel is not connected. Nothing is queued.
	ErrChannelUnavailable = errors.New("live channel is not connected")

	// ErrTornDown is returned by Connect after Teardown.
	ErrTornDown = errors.New("live channel was torn down")
)

// Params configures a Channel.
type Params struct {
	// URL is the websocket endpoint, e.g. "wss://chat.example.com/ws".
	URL string

	// Token, if set, is sent as a bearer token on the upgrade request.
	Token string

	// ConnectTimeout bounds a single connection attempt.
	ConnectTimeout time.Duration

	// InitialBackoff and MaxBackoff bound the reconnect delay. Attempts are
	// unbounded.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// PingPeriod is the keep alive interval. A peer that does not answer
	// within PongWait is considered gone.
	PingPeriod time.Duration
	PongWait   time.Duration

	// WriteTimeout bounds a single write.
	WriteTimeout time.Duration

	// TypingRate is the maximum number of typing events sent per second.
	TypingRate int
}

// GetDefaultParams returns the default Params for the endpoint at url.
func GetDefaultParams(url string) Params {
	return Params{
		URL:            url,
		ConnectTimeout: 45 * time.Second,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		PingPeriod:     25 * time.Second,
		PongWait:       60 * time.Second,
		WriteTimeout:   10 * time.Second,
		TypingRate:     2,
	}
}
