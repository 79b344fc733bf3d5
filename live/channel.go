////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package live is the adapter of the live channel, the websocket carrying
// real time chat events in both directions.
//
// A Channel owns at most one transport. A supervisor goroutine dials it,
// registers the identity, reads until the transport drops and then redials
// with an exponential backoff and no limit on attempts, until Teardown.
package live

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"go.uber.org/ratelimit"

	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/elixxir/chatsync/stoppable"
	"gitlab.com/xx_network/primitives/netTime"
)

// Channel is the live channel of one identity. Construct a new one to
// reconnect after Teardown.
type Channel struct {
	params   Params
	identity message.IdentitySource
	listener Listener
	dialer   *websocket.Dialer
	typing   ratelimit.Limiter

	mux      sync.RWMutex
	state    State
	conn     *websocket.Conn
	stop     *stoppable.Single
	tornDown bool

	// writeMux serializes writes to conn
	writeMux sync.Mutex

	cbMux sync.RWMutex
	cbs   map[uint64]StateCallback
	cbID  uint64
}

// NewChannel returns a disconnected Channel. Inbound events are delivered to
// listener.
func NewChannel(params Params, identity message.IdentitySource,
	listener Listener) *Channel {
	rate := params.TypingRate
	if rate <= 0 {
		rate = 1
	}
	return &Channel{
		params:   params,
		identity: identity,
		listener: listener,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: params.ConnectTimeout,
		},
		typing: ratelimit.New(rate, ratelimit.WithoutSlack),
		state:  Disconnected,
		cbs:    make(map[uint64]StateCallback),
	}
}

// AddStateCallback registers a function called on every state change and
// returns its ID.
func (c *Channel) AddStateCallback(cb StateCallback) uint64 {
	c.cbMux.Lock()
	defer c.cbMux.Unlock()
	id := c.cbID
	c.cbs[id] = cb
	c.cbID++
	return id
}

// RemoveStateCallback removes the callback with the given ID.
func (c *Channel) RemoveStateCallback(id uint64) {
	c.cbMux.Lock()
	delete(c.cbs, id)
	c.cbMux.Unlock()
}

// State returns the current state.
func (c *Channel) State() State {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return c.state
}

// IsConnected returns true if outbound events can be sent.
func (c *Channel) IsConnected() bool {
	return c.State() == Connected
}

// Connect starts connecting in the background. It is a no-op if the channel
// is already connecting or connected and returns ErrTornDown after Teardown.
func (c *Channel) Connect() error {
	c.mux.Lock()
	if c.tornDown {
		c.mux.Unlock()
		return ErrTornDown
	}
	if c.state != Disconnected {
		c.mux.Unlock()
		return nil
	}
	c.stop = stoppable.NewSingle("LiveChannel")
	stop := c.stop
	c.state = Connecting
	c.mux.Unlock()

	jww.DEBUG.Printf("[LIVE] %s -> %s", Disconnected, Connecting)
	c.notify(Connecting, nil)
	go c.supervise(stop)
	return nil
}

// Teardown closes the transport and stops reconnecting. The channel cannot
// be used afterwards.
func (c *Channel) Teardown() error {
	c.mux.Lock()
	if c.tornDown {
		c.mux.Unlock()
		return nil
	}
	c.tornDown = true
	stop := c.stop
	c.mux.Unlock()

	var err error
	if stop != nil {
		err = stop.Close()
		if err == nil {
			err = stoppable.WaitForStopped(stop, c.params.ConnectTimeout)
		}
	}
	c.setState(Disconnected, nil)
	return err
}

// supervise runs the connect, read and reconnect loop until stopped.
func (c *Channel) supervise(stop *stoppable.Single) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.params.InitialBackoff
	b.MaxInterval = c.params.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	defer stop.ToStopped()
	for {
		conn, err := c.dial(stop)
		if err == nil {
			b.Reset()
			err = c.serve(conn, stop)
		}
		if stop.IsStopping() {
			return
		}

		wait := b.NextBackOff()
		jww.WARN.Printf("[LIVE] Connection lost, retrying in %s: %+v",
			wait, err)
		c.setState(Reconnecting, err)

		select {
		case <-stop.Quit():
			return
		case <-time.After(wait):
		}
	}
}

// dial makes one connection attempt bounded by the connect timeout.
func (c *Channel) dial(stop *stoppable.Single) (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(),
		c.params.ConnectTimeout)
	defer cancel()
	go func() {
		select {
		case <-stop.Quit():
			cancel()
		case <-ctx.Done():
		}
	}()

	header := http.Header{}
	if c.params.Token != "" {
		header.Set("Authorization", "Bearer "+c.params.Token)
	}

	jww.DEBUG.Printf("[LIVE] Dialing %s", c.params.URL)
	conn, resp, err := c.dialer.DialContext(ctx, c.params.URL, header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "failed to connect: status %d",
				resp.StatusCode)
		}
		return nil, errors.Wrap(err, "failed to connect")
	}
	return conn, nil
}

// serve registers the identity on conn and reads from it until it fails or
// the channel is stopped.
func (c *Channel) serve(conn *websocket.Conn, stop *stoppable.Single) error {
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(netTime.Now().Add(c.params.PongWait))
	})
	if err := conn.SetReadDeadline(
		netTime.Now().Add(c.params.PongWait)); err != nil {
		_ = conn.Close()
		return err
	}

	c.mux.Lock()
	c.conn = conn
	c.mux.Unlock()
	defer func() {
		c.mux.Lock()
		c.conn = nil
		c.mux.Unlock()
		_ = conn.Close()
	}()

	me := c.identity()
	if err := c.write(conn, EventRegister,
		Register{Identity: me.ID, DisplayName: me.DisplayName}); err != nil {
		return errors.WithMessage(err, "failed to register")
	}
	c.setState(Connected, nil)
	jww.INFO.Printf("[LIVE] Connected to %s as %s", c.params.URL, me.ID)

	readErr := make(chan error, 1)
	go func() { readErr <- c.read(conn) }()

	ticker := time.NewTicker(c.params.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop.Quit():
			c.writeMux.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				netTime.Now().Add(time.Second))
			c.writeMux.Unlock()
			_ = conn.Close()
			<-readErr
			return nil
		case err := <-readErr:
			return err
		case <-ticker.C:
			err := conn.WriteControl(websocket.PingMessage, nil,
				netTime.Now().Add(c.params.WriteTimeout))
			if err != nil {
				_ = conn.Close()
				return errors.Wrap(err, "keep alive failed")
			}
		}
	}
}

// read dispatches inbound events until the connection fails.
func (c *Channel) read(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var env Envelope
		if err = json.Unmarshal(data, &env); err != nil {
			jww.WARN.Printf("[LIVE] Dropping undecodable frame: %+v", err)
			continue
		}
		if err = c.dispatch(env); err != nil {
			jww.WARN.Printf("[LIVE] Dropping %s event: %+v", env.Event, err)
		}
	}
}

// dispatch decodes the event and hands it to the listener.
func (c *Channel) dispatch(env Envelope) error {
	if c.listener == nil {
		return nil
	}
	switch env.Event {
	case EventMessage:
		var raw message.RawMessage
		if err := json.Unmarshal(env.Data, &raw); err != nil {
			return err
		}
		c.listener.OnMessage(raw)
	case EventEditMessage:
		var e Edit
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return err
		}
		c.listener.OnEdit(e)
	case EventDeleteMessage:
		var e Delete
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return err
		}
		c.listener.OnDelete(e)
	case EventTyping:
		var e Typing
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return err
		}
		c.listener.OnTyping(e)
	case EventThreadMessage:
		var e ThreadMessage
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return err
		}
		if e.Message == nil {
			return errors.New("thread message without message")
		}
		c.listener.OnThreadMessage(e.ParentID, *e.Message)
	case EventThreadCountUpdated:
		var e ThreadCount
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return err
		}
		c.listener.OnThreadCount(e)
	case EventReactionUpdated:
		var e ReactionUpdate
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return err
		}
		c.listener.OnReaction(e)
	case EventMessagesRead:
		var e MessagesRead
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return err
		}
		c.listener.OnRead(e)
	default:
		jww.TRACE.Printf("[LIVE] Ignoring %q event", env.Event)
	}
	return nil
}

// Emit sends an event with the given payload. It returns
// ErrChannelUnavailable unless the channel is connected.
func (c *Channel) Emit(event string, payload interface{}) error {
	c.mux.RLock()
	conn, state := c.conn, c.state
	c.mux.RUnlock()
	if state != Connected || conn == nil {
		return ErrChannelUnavailable
	}
	return c.write(conn, event, payload)
}

func (c *Channel) write(conn *websocket.Conn, event string,
	payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", event)
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", event)
	}

	c.writeMux.Lock()
	defer c.writeMux.Unlock()
	if err = conn.SetWriteDeadline(
		netTime.Now().Add(c.params.WriteTimeout)); err != nil {
		return err
	}
	if err = conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return errors.Wrapf(err, "failed to send %s", event)
	}
	return nil
}

// setState moves to state and notifies the callbacks. Invalid transitions
// are logged and ignored.
func (c *Channel) setState(state State, cause error) {
	c.mux.Lock()
	if c.tornDown && state != Disconnected {
		c.mux.Unlock()
		return
	}
	old := c.state
	if old == state && state != Reconnecting {
		c.mux.Unlock()
		return
	}
	if !validTransition(old, state) {
		c.mux.Unlock()
		jww.ERROR.Printf("[LIVE] Invalid transition %s -> %s", old, state)
		return
	}
	c.state = state
	c.mux.Unlock()

	jww.DEBUG.Printf("[LIVE] %s -> %s", old, state)
	c.notify(state, cause)
}

func (c *Channel) notify(state State, cause error) {
	c.cbMux.RLock()
	defer c.cbMux.RUnlock()
	for _, cb := range c.cbs {
		cb(state, cause)
	}
}
