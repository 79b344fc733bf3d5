////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package history

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"gitlab.com/elixxir/chatsync/message"
)

// fakeServer is an in-memory historical store served over gin.
type fakeServer struct {
	mux    sync.Mutex
	rooms  map[string][]gin.H
	direct map[string][]gin.H
	unread map[string]int
	edits  []gin.H
	reads  []gin.H
	token  string
	fail   int
	nextID int
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	gin.SetMode(gin.TestMode)
	fs := &fakeServer{
		rooms:  make(map[string][]gin.H),
		direct: make(map[string][]gin.H),
		unread: make(map[string]int),
		nextID: 1000,
	}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		fs.mux.Lock()
		fail, token := fs.fail, fs.token
		fs.mux.Unlock()
		if fail != 0 {
			c.AbortWithStatusJSON(fail, gin.H{"error": "unavailable"})
			return
		}
		if token != "" && c.GetHeader("Authorization") != "Bearer "+token {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	})

	r.GET("/messages/room/:code", func(c *gin.Context) {
		fs.mux.Lock()
		defer fs.mux.Unlock()
		c.JSON(http.StatusOK, page(c, fs.rooms[c.Param("code")]))
	})
	r.GET("/messages/direct/:a/:b", func(c *gin.Context) {
		fs.mux.Lock()
		defer fs.mux.Unlock()
		key := c.Param("a") + "|" + c.Param("b")
		c.JSON(http.StatusOK, gin.H{"messages": page(c, fs.direct[key])})
	})
	r.GET("/messages/around/:key/:id", func(c *gin.Context) {
		fs.mux.Lock()
		defer fs.mux.Unlock()
		key, err := message.ParseConversationKey(c.Param("key"))
		if err != nil || !key.IsGroup() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad key"})
			return
		}
		all := fs.rooms[key.RoomCode()]
		for i, m := range all {
			if m["id"] == c.Param("id") {
				lo, hi := max(i-1, 0), min(i+2, len(all))
				c.JSON(http.StatusOK, all[lo:hi])
				return
			}
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	r.POST("/messages", func(c *gin.Context) {
		var body gin.H
		if err := c.BindJSON(&body); err != nil {
			return
		}
		fs.mux.Lock()
		fs.nextID++
		id := strconv.Itoa(fs.nextID)
		fs.mux.Unlock()
		body["id"] = id
		body["sender"] = body["from"]
		body["room_code"] = body["roomCode"]
		body["timestamp"] = 1714989600000
		c.JSON(http.StatusCreated, body)
	})
	r.PUT("/messages/:id", func(c *gin.Context) {
		var body gin.H
		if err := c.BindJSON(&body); err != nil {
			return
		}
		body["id"] = c.Param("id")
		fs.mux.Lock()
		fs.edits = append(fs.edits, body)
		fs.mux.Unlock()
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.DELETE("/messages/:id", func(c *gin.Context) {
		var body struct {
			Requester    string `json:"requester"`
			IsPrivileged bool   `json:"isPrivileged"`
		}
		if err := c.BindJSON(&body); err != nil {
			return
		}
		if !body.IsPrivileged && body.Requester != "alice" {
			c.JSON(http.StatusForbidden, gin.H{"error": "not the sender"})
			return
		}
		c.Status(http.StatusNoContent)
	})
	r.POST("/messages/read", func(c *gin.Context) {
		var body gin.H
		if err := c.BindJSON(&body); err != nil {
			return
		}
		fs.mux.Lock()
		fs.reads = append(fs.reads, body)
		fs.mux.Unlock()
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/messages/unread", func(c *gin.Context) {
		fs.mux.Lock()
		defer fs.mux.Unlock()
		if c.Query("user") != "alice" {
			c.JSON(http.StatusOK, gin.H{})
			return
		}
		c.JSON(http.StatusOK, fs.unread)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return fs, srv
}

// page mimics the server paging: offset counts back from the newest message
// and the page is returned oldest first.
func page(c *gin.Context, all []gin.H) []gin.H {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	end := len(all) - offset
	if end <= 0 {
		return []gin.H{}
	}
	return all[max(end-limit, 0):end]
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func roomHistory(n int) []gin.H {
	out := make([]gin.H, n)
	for i := range out {
		out[i] = gin.H{
			"id":        strconv.Itoa(i + 1),
			"sender":    "bob",
			"room_code": "ABC123",
			"message":   "message " + strconv.Itoa(i+1),
			"time":      "09:00",
		}
	}
	return out
}

func newTestClient(t *testing.T, srv *httptest.Server, token string) *Client {
	id := message.StaticIdentity(message.Identity{ID: "alice"})
	n := message.NewNormalizer(id, func() time.Time {
		return time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	})
	params := GetDefaultParams(srv.URL)
	params.Token = token
	params.Timeout = 2 * time.Second
	c, err := NewClient(params, id, n)
	require.NoError(t, err)
	return c
}

// Tests that room pages are requested with limit and offset and normalized.
func TestClient_FetchMessages_Room(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.rooms["ABC123"] = roomHistory(25)
	c := newTestClient(t, srv, "")
	key := message.RoomKey("ABC123")

	msgs, err := c.FetchMessages(context.Background(), key, 20, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 20)
	require.Equal(t, message.ID("6"), msgs[0].ID)
	require.Equal(t, message.ID("25"), msgs[19].ID)
	require.Equal(t, key, msgs[0].Conversation)
	require.Equal(t, "09:00", msgs[0].DisplayTime)

	msgs, err = c.FetchMessages(context.Background(), key, 20, 20)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	require.Equal(t, message.ID("1"), msgs[0].ID)
}

// Tests that direct pages use the sorted participant pair, accept the
// wrapped response shape and that malformed entries are dropped.
func TestClient_FetchMessages_Direct(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.direct["alice|bob"] = []gin.H{
		{"id": 1, "sender": "bob", "receiver": "alice", "message": "hi"},
		{"id": 2},
		{"id": 3, "sender": "alice", "receiver": "bob", "message": "yo",
			"is_self": true},
	}
	c := newTestClient(t, srv, "")

	msgs, err := c.FetchMessages(context.Background(),
		message.DirectKey("bob", "alice"), 20, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, message.ID("1"), msgs[0].ID)
	require.False(t, msgs[0].IsSelf)
	require.True(t, msgs[1].IsSelf)
	require.Equal(t, message.DirectKey("alice", "bob"), msgs[1].Conversation)
}

// Tests the jump-to-message window.
func TestClient_FetchMessagesAround(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.rooms["ABC123"] = roomHistory(10)
	c := newTestClient(t, srv, "")

	msgs, err := c.FetchMessagesAround(context.Background(),
		message.RoomKey("ABC123"), "5")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, message.ID("4"), msgs[0].ID)
	require.Equal(t, message.ID("6"), msgs[2].ID)
}

// Tests that a non-2xx response is a FetchFailure keeping the status code.
func TestClient_FetchMessages_Failure(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.fail = http.StatusServiceUnavailable
	c := newTestClient(t, srv, "")

	_, err := c.FetchMessages(context.Background(), message.RoomKey("R"), 20, 0)
	require.True(t, errors.Is(err, ErrFetchFailure))

	var ff *FetchFailure
	require.True(t, errors.As(err, &ff))
	require.Equal(t, http.StatusServiceUnavailable, ff.StatusCode)
	require.Equal(t, "fetchMessages", ff.Op)
	require.True(t, ff.Retryable())
	require.Contains(t, ff.Error(), "unavailable")
}

// Tests that a transport failure is a retryable FetchFailure with no status.
func TestClient_FetchMessages_TransportFailure(t *testing.T) {
	_, srv := newFakeServer(t)
	c := newTestClient(t, srv, "")
	srv.Close()

	_, err := c.FetchMessages(context.Background(), message.RoomKey("R"), 20, 0)
	var ff *FetchFailure
	require.True(t, errors.As(err, &ff))
	require.Zero(t, ff.StatusCode)
	require.True(t, ff.Retryable())
}

// Tests that a canceled context fails without a request.
func TestClient_CanceledContext(t *testing.T) {
	_, srv := newFakeServer(t)
	c := newTestClient(t, srv, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchMessages(ctx, message.RoomKey("R"), 20, 0)
	require.True(t, errors.Is(err, context.Canceled))
}

// Tests that the bearer token is sent.
func TestClient_Token(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.token = "secret"

	_, err := newTestClient(t, srv, "").FetchMessages(context.Background(),
		message.RoomKey("R"), 20, 0)
	var ff *FetchFailure
	require.True(t, errors.As(err, &ff))
	require.Equal(t, http.StatusUnauthorized, ff.StatusCode)
	require.False(t, ff.Retryable())

	_, err = newTestClient(t, srv, "secret").FetchMessages(
		context.Background(), message.RoomKey("R"), 20, 0)
	require.NoError(t, err)
}

// Tests that a created message comes back persisted.
func TestClient_CreateMessage(t *testing.T) {
	_, srv := newFakeServer(t)
	c := newTestClient(t, srv, "")

	m, err := c.CreateMessage(context.Background(), message.Draft{
		ClientTempID: "t1",
		Sender:       "alice",
		Conversation: message.RoomKey("ABC123"),
		Text:         "hello",
	})
	require.NoError(t, err)
	require.Equal(t, message.ID("1001"), m.ID)
	require.Equal(t, message.Sent, m.Status)
	require.Equal(t, "hello", m.Text)
	require.True(t, m.IsSelf)
	require.Equal(t, message.RoomKey("ABC123"), m.Conversation)
	require.Equal(t, time.UnixMilli(1714989600000).UTC(), m.SentAt)
}

// Tests the edit and delete requests.
func TestClient_EditDelete(t *testing.T) {
	fs, srv := newFakeServer(t)
	c := newTestClient(t, srv, "")

	err := c.EditMessage(context.Background(), "7", "alice", "b", nil)
	require.NoError(t, err)
	require.Len(t, fs.edits, 1)
	require.Equal(t, "b", fs.edits[0]["text"])
	require.Equal(t, "7", fs.edits[0]["id"])
	require.NotContains(t, fs.edits[0], "media")

	require.NoError(t, c.DeleteMessage(context.Background(), "7", "alice",
		false, "Alice"))
	require.NoError(t, c.DeleteMessage(context.Background(), "7", "carol",
		true, "Carol"))

	err = c.DeleteMessage(context.Background(), "7", "carol", false, "Carol")
	var ff *FetchFailure
	require.True(t, errors.As(err, &ff))
	require.Equal(t, http.StatusForbidden, ff.StatusCode)
}

// Tests that marking read names the reader and the peer.
func TestClient_MarkConversationRead(t *testing.T) {
	fs, srv := newFakeServer(t)
	c := newTestClient(t, srv, "")

	require.NoError(t, c.MarkConversationRead(context.Background(),
		message.DirectKey("bob", "alice")))
	require.NoError(t, c.MarkConversationRead(context.Background(),
		message.RoomKey("ABC123")))

	require.Len(t, fs.reads, 2)
	require.Equal(t, "alice", fs.reads[0]["reader"])
	require.Equal(t, "bob", fs.reads[0]["peer"])
	require.Equal(t, "ABC123", fs.reads[1]["roomCode"])
}

// Tests that unread counts are keyed by conversation and invalid keys
// dropped.
func TestClient_GetUnreadCounts(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.unread["room:ABC123"] = 3
	fs.unread["dm:bob|alice"] = 1
	fs.unread["garbage"] = 9
	c := newTestClient(t, srv, "")

	counts, err := c.GetUnreadCounts(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[message.ConversationKey]int{
		message.RoomKey("ABC123"):         3,
		message.DirectKey("alice", "bob"): 1,
	}, counts)
}

// Tests that only http and https URLs are accepted.
func TestNewClient_InvalidURL(t *testing.T) {
	id := message.StaticIdentity(message.Identity{ID: "alice"})
	_, err := NewClient(GetDefaultParams("ftp://x"), id,
		message.NewNormalizer(id, nil))
	require.Error(t, err)
}
