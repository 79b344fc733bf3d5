////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package stoppable manages the lifecycle of long-running goroutines: the
// live channel supervisor, the event bus and the reconciliation poller.
package stoppable

import (
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gitlab.com/xx_network/primitives/netTime"
)

// Stoppable is a goroutine, or group of goroutines, that can be told to stop.
type Stoppable interface {
	// Close signals the goroutine to stop. It does not wait for it.
	Close() error

	// IsRunning returns true until Close is called.
	IsRunning() bool

	// IsStopped returns true once the goroutine has exited.
	IsStopped() bool

	// Name returns a name used for logging.
	Name() string
}

// Status is the lifecycle state of a Stoppable.
type Status uint32

const (
	// Running is the state until Close is called.
	Running Status = iota

	// Stopping is the state between Close and the goroutine exiting.
	Stopping

	// Stopped is the terminal state.
	Stopped
)

// String returns a human-readable version of Status, used for debugging and
// logging. This function adheres to the fmt.Stringer interface.
func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "INVALID STATUS: " + strconv.Itoa(int(s))
	}
}

// Error message.
const waitTimeoutErr = "stoppable %q did not stop within %s"

// WaitForStopped polls s until it reports stopped or the timeout elapses.
func WaitForStopped(s Stoppable, timeout time.Duration) error {
	start := netTime.Now()
	for !s.IsStopped() {
		if netTime.Since(start) > timeout {
			return errors.Errorf(waitTimeoutErr, s.Name(), timeout)
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}
