////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package event

import "gitlab.com/elixxir/chatsync/message"

// ListCallback receives a snapshot of the message list of a conversation each
// time it changes. The snapshot is owned by the callback.
type ListCallback func(key message.ConversationKey, msgs []*message.Message)

// Callback receives reported events.
type Callback func(priority int, category, evtType, details string)

// Publisher publishes message list snapshots (used internally).
type Publisher interface {
	Publish(key message.ConversationKey, msgs []*message.Message)
}

// Reporter reports events to the UI (used internally).
type Reporter interface {
	Report(priority int, category, evtType, details string)
}

// Priorities of reported events.
const (
	Info = iota
	Warning
	Error
)
