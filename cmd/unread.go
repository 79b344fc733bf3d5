////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"

	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/elixxir/chatsync/reconcile"
)

// unreadCmd polls the unread counts once and stores them in the session.
var unreadCmd = &cobra.Command{
	Use:   "unread",
	Short: "Prints the unread message count of every conversation",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		initLog(viper.GetUint(logLevelFlag), viper.GetString(logFlag))
		me, err := identityFromFlags()
		if err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		params := paramsFromFlags()
		hist, err := initHistory(params.History, me)
		if err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		kv, err := openStorage()
		if err != nil {
			jww.FATAL.Panicf("Failed to open session storage: %+v", err)
		}

		p := reconcile.New(params.Reconcile, hist, kv, nil)
		counts, err := p.Poll(context.Background())
		if err != nil {
			jww.ERROR.Printf("%+v", err)
			counts = p.Last()
			fmt.Println("Showing the last stored counts")
		}

		keys := make([]message.ConversationKey, 0, len(counts))
		for key := range counts {
			keys = append(keys, key)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		for _, key := range keys {
			fmt.Printf("%s: %d\n", key, counts[key])
		}
	},
}

func init() {
	rootCmd.AddCommand(unreadCmd)
}
