////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package message

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// Tests that DirectKey is independent of the order of its arguments.
func TestDirectKey_Unordered(t *testing.T) {
	ab := DirectKey("alice", "bob")
	ba := DirectKey("bob", "alice")
	if ab != ba {
		t.Errorf("Direct keys differ by argument order."+
			"\nexpected: %s\nreceived: %s", ab, ba)
	}
	require.False(t, ab.IsGroup())
	require.Equal(t, []string{"alice", "bob"}, ab.Participants())
	require.Equal(t, "bob", ab.Peer("alice"))
	require.Equal(t, "alice", ab.Peer("bob"))
	require.Empty(t, ab.RoomCode())
}

// Tests the accessors of a room key.
func TestRoomKey(t *testing.T) {
	k := RoomKey("ABC123")
	require.True(t, k.IsGroup())
	require.Equal(t, "ABC123", k.RoomCode())
	require.Nil(t, k.Participants())
	require.Empty(t, k.Peer("alice"))
	require.Equal(t, "room:ABC123", k.String())
}

// Tests that ParseConversationKey round trips valid keys and rejects invalid
// ones.
func TestParseConversationKey(t *testing.T) {
	for _, k := range []ConversationKey{
		RoomKey("ABC123"), DirectKey("zed", "amy")} {
		parsed, err := ParseConversationKey(k.String())
		require.NoError(t, err)
		require.Equal(t, k, parsed)
	}

	// A direct key written out of order is canonicalized
	parsed, err := ParseConversationKey("dm:zed|amy")
	require.NoError(t, err)
	require.Equal(t, DirectKey("amy", "zed"), parsed)

	for _, bad := range []string{"", "room:", "dm:", "dm:a", "dm:a|",
		"dm:a|b|c", "chan:x"} {
		_, err = ParseConversationKey(bad)
		if !errors.Is(err, ErrInvalidConversationKey) {
			t.Errorf("Unexpected error for %q: %v", bad, err)
		}
	}
}
