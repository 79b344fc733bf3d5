////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package cmd

// This is a comprehensive list of CLI flag name constants. Organized by
// subcommand, with root level CLI flags at the top of the list. Pulling flags
// using Viper should use the constants defined here.
const (
	//////////////// Root flags ///////////////////////////////////////////////

	// Log flags
	logLevelFlag = "logLevel"
	logFlag      = "log"

	// Config
	configFlag     = "config"
	profileCpuFlag = "profile-cpu"

	// Session
	sessionFlag  = "session"
	passwordFlag = "password"

	// Endpoints
	historyUrlFlag = "historyUrl"
	liveUrlFlag    = "liveUrl"
	tokenFlag      = "token"

	// Identity
	identityFlag    = "identity"
	displayNameFlag = "displayName"
	roleFlag        = "role"

	// Conversation
	roomFlag = "room"
	peerFlag = "peer"

	// Watch flags
	messageFlag     = "message"
	sendCountFlag   = "sendCount"
	sendDelayFlag   = "sendDelay"
	waitTimeoutFlag = "waitTimeout"
	strictFlag      = "strict"

	///////////////// History subcommand flags ////////////////////////////////
	pagesFlag    = "pages"
	pageSizeFlag = "pageSize"
	aroundFlag   = "around"
)
