////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package cmd initializes the CLI and config parsers as well as the logger.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"

	"gitlab.com/elixxir/chatsync/live"
	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/elixxir/chatsync/session"
)

// Execute adds all child commands to the root command and sets flags
// appropriately.  This is called by main.main(). It only needs to
// happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chatsync",
	Short: "Opens a conversation, prints it as it changes and sends messages",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		initLog(viper.GetUint(logLevelFlag), viper.GetString(logFlag))
		if out := viper.GetString(profileCpuFlag); out != "" {
			defer profile.Start(profile.CPUProfile,
				profile.ProfilePath(out)).Stop()
		}

		me, err := identityFromFlags()
		if err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		conv, err := conversationFromFlags(me)
		if err != nil {
			jww.FATAL.Panicf("%+v", err)
		}

		s := initSession(me)
		connected := make(chan struct{}, 1)
		err = s.RegisterEventCallback("cli", func(_ int, category, evtType,
			details string) {
			jww.DEBUG.Printf("Event %s/%s: %s", category, evtType, details)
			if category == "LiveChannel" && details == live.Connected.String() {
				select {
				case connected <- struct{}{}:
				default:
				}
			}
		})
		if err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		err = s.Subscribe("cli", func(key message.ConversationKey,
			msgs []*message.Message) {
			jww.DEBUG.Printf("%s now has %d messages", key, len(msgs))
			if n := len(msgs); n > 0 {
				fmt.Println(formatMessage(msgs[n-1]))
			}
		})
		if err != nil {
			jww.FATAL.Panicf("%+v", err)
		}

		if err = s.Start(); err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		defer func() {
			if err := s.Stop(); err != nil {
				jww.ERROR.Printf("Failed to stop session: %+v", err)
			}
		}()

		ctx := context.Background()
		if err = s.Open(ctx, conv); err != nil {
			jww.ERROR.Printf("Failed to load %s: %+v", conv.Key, err)
		}
		for _, m := range s.Messages() {
			fmt.Println(formatMessage(m))
		}

		waitTimeout := time.Duration(viper.GetUint(waitTimeoutFlag)) *
			time.Second

		if text := viper.GetString(messageFlag); text != "" {
			select {
			case <-connected:
			case <-time.After(waitTimeout):
				jww.FATAL.Panicf("Live channel did not connect in %s",
					waitTimeout)
			}
			sendMessages(ctx, s, text, int(viper.GetUint(sendCountFlag)),
				time.Duration(viper.GetUint(sendDelayFlag))*time.Millisecond)
		}

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		select {
		case <-stop:
			jww.INFO.Print("Interrupted, stopping")
		case <-time.After(waitTimeout):
			jww.INFO.Printf("Done waiting after %s", waitTimeout)
		}

		for _, c := range s.Conversations() {
			if c.UnreadCount > 0 {
				fmt.Printf("%s: %d unread\n", c.Key, c.UnreadCount)
			}
		}
	},
}

// sendMessages sends count copies of text, waiting delay between them.
func sendMessages(ctx context.Context, s *session.Session, text string,
	count int, delay time.Duration) {
	if count < 1 {
		count = 1
	}
	for i := 0; i < count; i++ {
		body := text
		if count > 1 {
			body = fmt.Sprintf("%s (%d/%d)", text, i+1, count)
		}
		tempID, err := s.Send(ctx, message.Draft{Text: body})
		if err != nil {
			jww.ERROR.Printf("Failed to send message %d: %+v", i, err)
		} else {
			jww.INFO.Printf("Sent message %d as %s", i, tempID)
		}
		if i < count-1 {
			time.Sleep(delay)
		}
	}
}

// initSession builds the session of me from the flags.
func initSession(me message.Identity) *session.Session {
	params := paramsFromFlags()
	jww.DEBUG.Printf("Session params: %s", params)

	kv, err := openStorage()
	if err != nil {
		jww.FATAL.Panicf("Failed to open session storage: %+v", err)
	}
	hist, err := initHistory(params.History, me)
	if err != nil {
		jww.FATAL.Panicf("%+v", err)
	}

	s, err := session.New(params, message.StaticIdentity(me), kv, hist,
		session.WebsocketChannelMaker(params.Live))
	if err != nil {
		jww.FATAL.Panicf("Failed to create session: %+v", err)
	}
	return s
}

// initConfig reads in the config file named by --config, if any.
func initConfig() {
	cfgFile := viper.GetString(configFlag)
	if cfgFile == "" {
		return
	}
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("Unable to read config file (%s): %+v", cfgFile, err)
		os.Exit(1)
	}
}

// init is the initialization function for Cobra which defines commands
// and flags.
func init() {
	// NOTE: The point of init() is to be declarative.
	// There is one init in each sub command. Do not put variable declarations
	// here, and ensure all the Flags are of the *P variety, unless there's a
	// very good reason not to have them as local params to sub command."
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String(configFlag, "",
		"Path to a config file whose keys are the flag names")
	bindPFlag(rootCmd, configFlag)

	rootCmd.PersistentFlags().UintP(logLevelFlag, "v", 0,
		"Verbose mode for debugging")
	bindPFlag(rootCmd, logLevelFlag)

	rootCmd.PersistentFlags().StringP(logFlag, "l", "-",
		"Path to the log output path (- is stdout)")
	bindPFlag(rootCmd, logFlag)

	rootCmd.PersistentFlags().StringP(sessionFlag, "s", "",
		"Sets the storage directory for session data, in memory if empty")
	bindPFlag(rootCmd, sessionFlag)

	rootCmd.PersistentFlags().StringP(passwordFlag, "p", "",
		"Password to the session storage")
	bindPFlag(rootCmd, passwordFlag)

	rootCmd.PersistentFlags().String(historyUrlFlag, "http://localhost:8080",
		"Base URL of the historical message store")
	bindPFlag(rootCmd, historyUrlFlag)

	rootCmd.PersistentFlags().String(liveUrlFlag, "ws://localhost:8080/ws",
		"URL of the live channel websocket")
	bindPFlag(rootCmd, liveUrlFlag)

	rootCmd.PersistentFlags().String(tokenFlag, "",
		"Bearer token sent to both endpoints")
	bindPFlag(rootCmd, tokenFlag)

	rootCmd.PersistentFlags().StringP(identityFlag, "i", "",
		"ID of the logged-in user")
	bindPFlag(rootCmd, identityFlag)

	rootCmd.PersistentFlags().String(displayNameFlag, "",
		"Display name of the logged-in user")
	bindPFlag(rootCmd, displayNameFlag)

	rootCmd.PersistentFlags().String(roleFlag, "",
		"Role of the logged-in user, \"admin\" grants moderation")
	bindPFlag(rootCmd, roleFlag)

	rootCmd.PersistentFlags().StringP(roomFlag, "r", "",
		"Room code of the group conversation to open")
	bindPFlag(rootCmd, roomFlag)

	rootCmd.PersistentFlags().String(peerFlag, "",
		"Peer of the direct conversation to open")
	bindPFlag(rootCmd, peerFlag)

	rootCmd.PersistentFlags().Uint(pageSizeFlag, 0,
		"Messages per history page, the default if 0")
	bindPFlag(rootCmd, pageSizeFlag)

	rootCmd.PersistentFlags().Bool(strictFlag, false,
		"Panic on impossible message store states")
	bindPFlag(rootCmd, strictFlag)

	rootCmd.Flags().String(profileCpuFlag, "",
		"Enable cpu profiling into this directory")
	bindFlag(rootCmd, profileCpuFlag)

	rootCmd.Flags().StringP(messageFlag, "m", "",
		"Message to send once connected")
	bindFlag(rootCmd, messageFlag)

	rootCmd.Flags().Uint(sendCountFlag, 1,
		"The number of times to send the message")
	bindFlag(rootCmd, sendCountFlag)

	rootCmd.Flags().Uint(sendDelayFlag, 500,
		"The delay between sending the messages in ms")
	bindFlag(rootCmd, sendDelayFlag)

	rootCmd.Flags().Uint(waitTimeoutFlag, 15,
		"Seconds to keep watching the conversation")
	bindFlag(rootCmd, waitTimeoutFlag)
}

func bindPFlag(cmd *cobra.Command, name string) {
	if err := viper.BindPFlag(
		name, cmd.PersistentFlags().Lookup(name)); err != nil {
		jww.FATAL.Panicf("Failed to bind flag %s: %+v", name, err)
	}
}

func bindFlag(cmd *cobra.Command, name string) {
	if err := viper.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
		jww.FATAL.Panicf("Failed to bind flag %s: %+v", name, err)
	}
}
