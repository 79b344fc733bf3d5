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

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"

	"gitlab.com/elixxir/chatsync/dedup"
	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/elixxir/chatsync/store"
)

// historyCmd pages through a conversation without connecting to the live
// channel.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Prints the history of a conversation, newest page first",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		initLog(viper.GetUint(logLevelFlag), viper.GetString(logFlag))
		me, err := identityFromFlags()
		if err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		conv, err := conversationFromFlags(me)
		if err != nil {
			jww.FATAL.Panicf("%+v", err)
		}

		params := paramsFromFlags()
		hist, err := initHistory(params.History, me)
		if err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		s := store.New(params.Store, hist,
			dedup.NewFuzzy(params.Store.DedupWindow), nil)
		ctx := context.Background()

		if around := viper.GetString(aroundFlag); around != "" {
			s.Reset(conv.Key)
			if _, err = s.LoadAround(ctx, message.ID(around)); err != nil {
				jww.FATAL.Panicf("Failed to load around %s: %+v", around, err)
			}
			printAll(s.Messages())
			return
		}

		if _, err = s.LoadInitial(ctx, conv.Key); err != nil {
			jww.FATAL.Panicf("Failed to load %s: %+v", conv.Key, err)
		}
		for page := 1; page < int(viper.GetUint(pagesFlag)) && s.HasMore(); page++ {
			n, err := s.LoadOlder(ctx)
			if err != nil {
				jww.ERROR.Printf("Failed to load page %d: %+v", page+1, err)
				break
			} else if n == 0 {
				break
			}
		}
		printAll(s.Messages())
		fmt.Printf("%d messages, more: %t\n", s.Len(), s.HasMore())
	},
}

func printAll(msgs []*message.Message) {
	for _, m := range msgs {
		fmt.Println(formatMessage(m))
	}
}

func init() {
	historyCmd.Flags().Uint(pagesFlag, 1, "Number of pages to load")
	bindFlag(historyCmd, pagesFlag)

	historyCmd.Flags().String(aroundFlag, "",
		"Load the window around this message ID instead of the newest page")
	bindFlag(historyCmd, aroundFlag)

	rootCmd.AddCommand(historyCmd)
}
