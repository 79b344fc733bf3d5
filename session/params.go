////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package session

import (
	"encoding/json"
	"time"

	"gitlab.com/elixxir/chatsync/history"
	"gitlab.com/elixxir/chatsync/live"
	"gitlab.com/elixxir/chatsync/reconcile"
	"gitlab.com/elixxir/chatsync/store"
)

// Params configures a Session and every component it builds.
type Params struct {
	Store     store.Params
	History   history.Params
	Live      live.Params
	Reconcile reconcile.Params

	// BackgroundTimeout bounds the historical store calls made outside of a
	// caller's context, such as read receipts triggered by live messages.
	BackgroundTimeout time.Duration

	// StopTimeout is how long Stop waits for the background threads.
	StopTimeout time.Duration
}

// GetDefaultParams returns the default Params for the given historical store
// and live channel URLs.
func GetDefaultParams(historyURL, liveURL string) Params {
	return Params{
		Store:             store.GetDefaultParams(),
		History:           history.GetDefaultParams(historyURL),
		Live:              live.GetDefaultParams(liveURL),
		Reconcile:         reconcile.GetDefaultParams(),
		BackgroundTimeout: 10 * time.Second,
		StopTimeout:       5 * time.Second,
	}
}

// String returns the JSON encoding of the Params, without secrets. Used for
// logging.
func (p Params) String() string {
	p.History.Token = redact(p.History.Token)
	p.Live.Token = redact(p.Live.Token)
	data, err := json.Marshal(p)
	if err != nil {
		return "INVALID PARAMS"
	}
	return string(data)
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "<redacted>"
}
