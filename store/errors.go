////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package store

import (
	"fmt"

	"github.com/pkg/errors"

	"gitlab.com/elixxir/chatsync/message"
)

var (
	// ErrStaleConversation is the sentinel matched by
	// StaleConversationEvent.
	ErrStaleConversation = errors.New(
		"event does not belong to the active conversation")

	// ErrSuperseded is returned by a load whose result was discarded because
	// the store was reset while the request was in flight.
	ErrSuperseded = errors.New(
		"the store was reset while the load was in flight")

	// ErrNoConversation is returned when loading with no active
	// conversation.
	ErrNoConversation = errors.New("no active conversation")
)

// StaleConversationEvent is returned by Store.AppendLive for a message of a
// conversation other than the active one. The message is discarded; it is
// not an error to surface to the user.
type StaleConversationEvent struct {
	Active message.ConversationKey
	Got    message.ConversationKey
}

// Error returns the error message. This function adheres to the error
// interface.
func (e *StaleConversationEvent) Error() string {
	return fmt.Sprintf("%s: active %q, got %q", ErrStaleConversation,
		e.Active, e.Got)
}

// Is allows errors.Is(err, ErrStaleConversation).
func (e *StaleConversationEvent) Is(target error) bool {
	return target == ErrStaleConversation
}
