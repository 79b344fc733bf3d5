////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package history

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/valyala/fasthttp"

	"gitlab.com/elixxir/chatsync/message"
)

// Params configures a Client.
type Params struct {
	// BaseURL is the scheme and host of the historical store, optionally
	// with a path prefix, e.g. "https://chat.example.com/api".
	BaseURL string

	// Token, if set, is sent as a bearer token on every request.
	Token string

	// Timeout bounds each request when the context carries no deadline.
	Timeout time.Duration

	// MaxConnsPerHost limits the connection pool of the client.
	MaxConnsPerHost int
}

// GetDefaultParams returns the default Params for the store at baseURL.
func GetDefaultParams(baseURL string) Params {
	return Params{
		BaseURL:         baseURL,
		Timeout:         10 * time.Second,
		MaxConnsPerHost: 16,
	}
}

// Client is the HTTP implementation of Store.
type Client struct {
	params   Params
	base     string
	identity message.IdentitySource
	norm     *message.Normalizer
	http     *fasthttp.Client
}

// NewClient returns a Client for the store described by params. Every
// message returned is normalized by norm; identity supplies the reader of
// read and unread operations.
func NewClient(params Params, identity message.IdentitySource,
	norm *message.Normalizer) (*Client, error) {
	u, err := url.Parse(params.BaseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid history URL %q", params.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("invalid history URL %q: unsupported "+
			"scheme %q", params.BaseURL, u.Scheme)
	}

	return &Client{
		params:   params,
		base:     strings.TrimRight(params.BaseURL, "/"),
		identity: identity,
		norm:     norm,
		http: &fasthttp.Client{
			Name:            "chatsync",
			MaxConnsPerHost: params.MaxConnsPerHost,
			ReadTimeout:     params.Timeout,
			WriteTimeout:    params.Timeout,
		},
	}, nil
}

// FetchMessages returns a page of the conversation, oldest first.
func (c *Client) FetchMessages(ctx context.Context, key message.ConversationKey,
	limit, offset int) ([]*message.Message, error) {
	var path string
	if key.IsGroup() {
		path = "/messages/room/" + url.PathEscape(key.RoomCode())
	} else {
		p := key.Participants()
		if len(p) != 2 {
			return nil, errors.Wrapf(message.ErrInvalidConversationKey,
				"%q", key)
		}
		path = "/messages/direct/" + url.PathEscape(p[0]) + "/" +
			url.PathEscape(p[1])
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	body, err := c.do(ctx, "fetchMessages", fasthttp.MethodGet,
		path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return c.decodeList("fetchMessages", body, key)
}

// FetchMessagesAround returns a window of messages around target.
func (c *Client) FetchMessagesAround(ctx context.Context,
	key message.ConversationKey, target message.ID) ([]*message.Message, error) {
	path := "/messages/around/" + url.PathEscape(key.String()) + "/" +
		url.PathEscape(target.String())

	body, err := c.do(ctx, "fetchMessagesAround", fasthttp.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return c.decodeList("fetchMessagesAround", body, key)
}

// CreateMessage persists a draft and returns the persisted message.
func (c *Client) CreateMessage(ctx context.Context,
	d message.Draft) (*message.Message, error) {
	body, err := c.do(ctx, "createMessage", fasthttp.MethodPost,
		"/messages", d)
	if err != nil {
		return nil, err
	}

	raw, err := message.ParseRaw(body)
	if err != nil {
		return nil, &FetchFailure{Op: "createMessage",
			Err: errors.Wrap(err, "failed to decode response")}
	}
	return c.norm.Normalize(raw, message.SourceHistory, d.Conversation)
}

type editRequest struct {
	Editor string         `json:"editor"`
	Text   string         `json:"text"`
	Media  *message.Media `json:"media,omitempty"`
}

// EditMessage replaces the text, and the media if it is not nil, of the
// message.
func (c *Client) EditMessage(ctx context.Context, id message.ID, editor,
	text string, media *message.Media) error {
	_, err := c.do(ctx, "editMessage", fasthttp.MethodPut,
		"/messages/"+url.PathEscape(id.String()),
		editRequest{Editor: editor, Text: text, Media: media})
	return err
}

type deleteRequest struct {
	Requester          string `json:"requester"`
	IsPrivileged       bool   `json:"isPrivileged"`
	DeleterDisplayName string `json:"deleterDisplayName"`
}

// DeleteMessage soft-deletes the message.
func (c *Client) DeleteMessage(ctx context.Context, id message.ID,
	requester string, isPrivileged bool, deleterDisplayName string) error {
	_, err := c.do(ctx, "deleteMessage", fasthttp.MethodDelete,
		"/messages/"+url.PathEscape(id.String()),
		deleteRequest{requester, isPrivileged, deleterDisplayName})
	return err
}

type readRequest struct {
	Conversation message.ConversationKey `json:"conversation"`
	RoomCode     string                  `json:"roomCode,omitempty"`
	Peer         string                  `json:"peer,omitempty"`
	Reader       string                  `json:"reader"`
}

// MarkConversationRead marks the conversation read by the current identity.
func (c *Client) MarkConversationRead(ctx context.Context,
	key message.ConversationKey) error {
	me := c.identity().ID
	req := readRequest{Conversation: key, Reader: me}
	if key.IsGroup() {
		req.RoomCode = key.RoomCode()
	} else {
		req.Peer = key.Peer(me)
	}
	_, err := c.do(ctx, "markConversationRead", fasthttp.MethodPost,
		"/messages/read", req)
	return err
}

// GetUnreadCounts returns the unread count of every conversation of the
// current identity, keyed by conversation. Keys the server returns that are
// not valid conversation keys are dropped.
func (c *Client) GetUnreadCounts(
	ctx context.Context) (map[message.ConversationKey]int, error) {
	q := url.Values{}
	q.Set("user", c.identity().ID)
	body, err := c.do(ctx, "getUnreadCounts", fasthttp.MethodGet,
		"/messages/unread?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var raw map[string]int
	if err = json.Unmarshal(body, &raw); err != nil {
		return nil, &FetchFailure{Op: "getUnreadCounts",
			Err: errors.Wrap(err, "failed to decode response")}
	}

	counts := make(map[message.ConversationKey]int, len(raw))
	for k, n := range raw {
		key, err := message.ParseConversationKey(k)
		if err != nil {
			jww.WARN.Printf("[HISTORY] Dropping unread count of %q: %+v", k, err)
			continue
		}
		counts[key] = n
	}
	return counts, nil
}

// do sends the request and returns the response body. Transport errors and
// non-2xx responses are returned as FetchFailure.
func (c *Client) do(ctx context.Context, op, method, path string,
	payload interface{}) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchFailure{Op: op, Err: err}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.base + path)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	if c.params.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.params.Token)
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to encode %s request", op)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(data)
	}

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = c.http.DoDeadline(req, resp, deadline)
	} else {
		err = c.http.DoTimeout(req, resp, c.params.Timeout)
	}
	if err != nil {
		jww.DEBUG.Printf("[HISTORY] %s %s failed: %+v", method, path, err)
		return nil, &FetchFailure{Op: op, Err: err}
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		return nil, &FetchFailure{Op: op, StatusCode: status,
			Err: errors.New(responseError(resp.Body()))}
	}

	// The response is released on return
	return append([]byte(nil), resp.Body()...), nil
}

// decodeList decodes a list response, either a bare JSON array or an object
// with a "messages" array. Malformed messages are dropped with a warning.
func (c *Client) decodeList(op string, body []byte,
	key message.ConversationKey) ([]*message.Message, error) {
	var raws []message.RawMessage
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '{' {
		var wrapped struct {
			Messages []message.RawMessage `json:"messages"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, &FetchFailure{Op: op,
				Err: errors.Wrap(err, "failed to decode response")}
		}
		raws = wrapped.Messages
	} else if len(body) > 0 {
		if err := json.Unmarshal(body, &raws); err != nil {
			return nil, &FetchFailure{Op: op,
				Err: errors.Wrap(err, "failed to decode response")}
		}
	}

	msgs := make([]*message.Message, 0, len(raws))
	for i := range raws {
		m, err := c.norm.Normalize(raws[i], message.SourceHistory, key)
		if err != nil {
			jww.WARN.Printf("[HISTORY] Dropping message %d of %s: %+v",
				i, key, err)
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// responseError extracts the "error" field of a JSON error body, falling back
// to the body itself.
func responseError(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	if len(body) > 256 {
		body = body[:256]
	}
	if len(body) == 0 {
		return "empty response"
	}
	return string(body)
}
