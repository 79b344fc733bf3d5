////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package message

import (
	"strings"

	"github.com/pkg/errors"
)

const (
	roomPrefix   = "room:"
	directPrefix = "dm:"
	pairSep      = "|"
)

// ErrInvalidConversationKey is returned when a string cannot be parsed into a
// ConversationKey.
var ErrInvalidConversationKey = errors.New("invalid conversation key")

// ConversationKey identifies a conversation. Group conversations are keyed by
// their room code and direct conversations by the unordered pair of
// participants, so that A->B and B->A resolve to the same key.
type ConversationKey string

// RoomKey returns the key of the group conversation with the given room code.
func RoomKey(roomCode string) ConversationKey {
	return ConversationKey(roomPrefix + roomCode)
}

// DirectKey returns the key of the direct conversation between a and b. The
// order of the arguments does not matter.
func DirectKey(a, b string) ConversationKey {
	if b < a {
		a, b = b, a
	}
	return ConversationKey(directPrefix + a + pairSep + b)
}

// ParseConversationKey parses the output of ConversationKey.String.
func ParseConversationKey(s string) (ConversationKey, error) {
	switch {
	case strings.HasPrefix(s, roomPrefix):
		if len(s) == len(roomPrefix) {
			return "", errors.Wrapf(ErrInvalidConversationKey,
				"empty room code in %q", s)
		}
		return ConversationKey(s), nil
	case strings.HasPrefix(s, directPrefix):
		pair := strings.Split(strings.TrimPrefix(s, directPrefix), pairSep)
		if len(pair) != 2 || pair[0] == "" || pair[1] == "" {
			return "", errors.Wrapf(ErrInvalidConversationKey,
				"direct key %q must name exactly two participants", s)
		}
		return DirectKey(pair[0], pair[1]), nil
	default:
		return "", errors.Wrapf(ErrInvalidConversationKey,
			"unknown prefix in %q", s)
	}
}

// IsGroup returns true if the key identifies a group conversation.
func (k ConversationKey) IsGroup() bool {
	return strings.HasPrefix(string(k), roomPrefix)
}

// IsZero returns true for the empty key.
func (k ConversationKey) IsZero() bool {
	return k == ""
}

// RoomCode returns the room code of a group key, or an empty string for a
// direct key.
func (k ConversationKey) RoomCode() string {
	if !k.IsGroup() {
		return ""
	}
	return strings.TrimPrefix(string(k), roomPrefix)
}

// Participants returns the two participants of a direct key, sorted. It
// returns nil for a group key.
func (k ConversationKey) Participants() []string {
	if !strings.HasPrefix(string(k), directPrefix) {
		return nil
	}
	pair := strings.SplitN(strings.TrimPrefix(string(k), directPrefix),
		pairSep, 2)
	if len(pair) != 2 {
		return nil
	}
	return pair
}

// Peer returns the participant of a direct key who is not self. It returns an
// empty string for group keys.
func (k ConversationKey) Peer(self string) string {
	p := k.Participants()
	if p == nil {
		return ""
	}
	if p[0] == self {
		return p[1]
	}
	return p[0]
}

// String returns the key as a string. This function adheres to the
// fmt.Stringer interface.
func (k ConversationKey) String() string {
	return string(k)
}
