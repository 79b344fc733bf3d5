////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"gitlab.com/elixxir/chatsync/message"
)

// Tests that the conversation flags select exactly one conversation.
func Test_conversationFromFlags(t *testing.T) {
	me := message.Identity{ID: "alice"}
	defer viper.Reset()

	viper.Set(roomFlag, "ABC123")
	conv, err := conversationFromFlags(me)
	require.NoError(t, err)
	require.Equal(t, message.RoomKey("ABC123"), conv.Key)

	viper.Set(peerFlag, "bob")
	_, err = conversationFromFlags(me)
	require.Error(t, err)

	viper.Set(roomFlag, "")
	conv, err = conversationFromFlags(me)
	require.NoError(t, err)
	require.Equal(t, message.DirectKey("alice", "bob"), conv.Key)

	viper.Set(peerFlag, "")
	_, err = conversationFromFlags(me)
	require.Error(t, err)
}

// Tests the one line rendering of messages.
func Test_formatMessage(t *testing.T) {
	m := &message.Message{ID: "7", Status: message.Sent, Sender: "bob",
		Text: "hi", DisplayTime: "12:00", IsEdited: true, ThreadCount: 2}
	require.Equal(t, "[12:00] 7 bob: hi (edited) [2 replies]",
		formatMessage(m))

	pending := &message.Message{ClientTempID: "t1", Status: message.Unsent,
		Sender: "alice", Text: "yo", DisplayTime: "12:01"}
	require.Equal(t, "[12:01] ~t1 alice: yo {"+message.Unsent.String()+"}",
		formatMessage(pending))
}
