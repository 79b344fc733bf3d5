////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"strings"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"

	"gitlab.com/elixxir/chatsync/conversation"
	"gitlab.com/elixxir/chatsync/history"
	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/elixxir/chatsync/session"
	"gitlab.com/elixxir/chatsync/storage"
	"gitlab.com/xx_network/primitives/netTime"
)

func initLog(threshold uint, logPath string) {
	if logPath != "-" && logPath != "" {
		// Disable stdout output
		jww.SetStdoutOutput(ioutil.Discard)
		// Use log file
		logOutput, err := os.OpenFile(logPath,
			os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			panic(err.Error())
		}
		jww.SetLogOutput(logOutput)
	}

	if threshold > 1 {
		jww.INFO.Printf("log level set to: TRACE")
		jww.SetStdoutThreshold(jww.LevelTrace)
		jww.SetLogThreshold(jww.LevelTrace)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else if threshold == 1 {
		jww.INFO.Printf("log level set to: DEBUG")
		jww.SetStdoutThreshold(jww.LevelDebug)
		jww.SetLogThreshold(jww.LevelDebug)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else {
		jww.INFO.Printf("log level set to: INFO")
		jww.SetStdoutThreshold(jww.LevelInfo)
		jww.SetLogThreshold(jww.LevelInfo)
	}
}

// identityFromFlags returns the identity named on the command line.
func identityFromFlags() (message.Identity, error) {
	me := message.Identity{
		ID:          viper.GetString(identityFlag),
		DisplayName: viper.GetString(displayNameFlag),
		Role:        viper.GetString(roleFlag),
	}
	if me.IsZero() {
		return me, errors.Errorf("--%s is required", identityFlag)
	}
	return me, nil
}

// conversationFromFlags returns the conversation selected by --room or
// --peer.
func conversationFromFlags(me message.Identity) (
	conversation.Conversation, error) {
	room, peer := viper.GetString(roomFlag), viper.GetString(peerFlag)
	switch {
	case room != "" && peer != "":
		return conversation.Conversation{}, errors.Errorf(
			"--%s and --%s are mutually exclusive", roomFlag, peerFlag)
	case room != "":
		return conversation.Room(room), nil
	case peer != "":
		return conversation.Direct(me.ID, peer), nil
	}
	return conversation.Conversation{}, errors.Errorf("one of --%s or --%s "+
		"is required", roomFlag, peerFlag)
}

// paramsFromFlags builds the session params from the endpoint flags.
func paramsFromFlags() session.Params {
	params := session.GetDefaultParams(viper.GetString(historyUrlFlag),
		viper.GetString(liveUrlFlag))
	params.History.Token = viper.GetString(tokenFlag)
	params.Live.Token = viper.GetString(tokenFlag)
	params.Store.Strict = viper.GetBool(strictFlag)
	if n := viper.GetInt(pageSizeFlag); n > 0 {
		params.Store.PageSize = n
	}
	return params
}

// openStorage opens the session directory, or an in-memory store when none
// is given.
func openStorage() (*storage.KV, error) {
	dir := viper.GetString(sessionFlag)
	if dir == "" {
		jww.WARN.Print("No session directory, state will not persist")
		return storage.NewMemKV(), nil
	}
	return storage.Open(dir, viper.GetString(passwordFlag))
}

// initHistory builds the historical store client.
func initHistory(params history.Params,
	me message.Identity) (*history.Client, error) {
	identity := message.StaticIdentity(me)
	return history.NewClient(params, identity,
		message.NewNormalizer(identity, netTime.Now))
}

// formatMessage renders a message on one line.
func formatMessage(m *message.Message) string {
	var b strings.Builder
	id := m.ID.String()
	if id == "" {
		id = "~" + m.ClientTempID
	}
	fmt.Fprintf(&b, "[%s] %s %s: %s", m.DisplayTime, id, m.Sender, m.Text)
	if !m.Media.IsZero() {
		fmt.Fprintf(&b, " <%s %s>", m.Media.Type, m.Media.URL)
	}
	if m.IsEdited {
		b.WriteString(" (edited)")
	}
	if m.IsDeleted {
		fmt.Fprintf(&b, " (deleted by %s)", m.DeletedBy)
	}
	if m.ThreadCount > 0 {
		fmt.Fprintf(&b, " [%d replies]", m.ThreadCount)
	}
	if m.Status != message.Sent {
		fmt.Fprintf(&b, " {%s}", m.Status)
	}
	return b.String()
}
