package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/dmstream/internal/auth"
	"github.com/lalith-99/dmstream/internal/chat"
	"github.com/lalith-99/dmstream/internal/friends"
	"github.com/lalith-99/dmstream/internal/models"
	"github.com/lalith-99/dmstream/internal/presence"
	"github.com/lalith-99/dmstream/internal/repository/memory"
	"github.com/lalith-99/dmstream/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type testServer struct {
	srv      *httptest.Server
	store    *memory.Store
	registry *presence.Registry
}

func newTestServer(t *testing.T, opts Options, identities ...string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.New()
	for _, id := range identities {
		_, err := store.Users().Create(context.Background(), models.NewUser{
			Identity: id,
			Username: strings.ToLower(id),
			Email:    strings.ToLower(id) + "@example.com",
			FullName: "User " + id,
		})
		require.NoError(t, err)
	}

	logger := zap.NewNop()
	reg := presence.NewRegistry()
	lc := session.NewLifecycle(reg, nil, logger)
	d := NewDispatcher(logger)
	RegisterHandlers(d, Services{
		Lifecycle:      lc,
		Router:         chat.NewRouter(store.Users(), store.Messages(), reg, time.Second, logger),
		Friends:        friends.NewManager(store.Users(), store.Friendships(), reg, time.Second, logger),
		Users:          store.Users(),
		StorageTimeout: time.Second,
	}, logger)

	if opts.JWTSecret == "" {
		opts.JWTSecret = testSecret
	}
	r := gin.New()
	r.GET("/ws", NewHandler(lc, d, opts, logger).ServeWS)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, store: store, registry: reg}
}

type frame struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type client struct {
	t      *testing.T
	conn   *websocket.Conn
	seq    int
	pushes []frame
}

func (ts *testServer) dial(t *testing.T, query string) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn}
}

func (c *client) read() frame {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(c.t, c.conn.ReadJSON(&f))
	return f
}

// call sends a request and returns the decoded reply payload. Pushes that
// arrive first are kept for nextPush.
func (c *client) call(typ string, payload any, out any) frame {
	c.t.Helper()
	c.seq++
	id := strconv.Itoa(c.seq)
	require.NoError(c.t, c.conn.WriteJSON(map[string]any{"id": id, "type": typ, "payload": payload}))
	for {
		f := c.read()
		if f.ID != id {
			c.pushes = append(c.pushes, f)
			continue
		}
		if out != nil {
			require.NoError(c.t, json.Unmarshal(f.Payload, out))
		}
		return f
	}
}

func (c *client) nextPush() frame {
	c.t.Helper()
	if len(c.pushes) > 0 {
		f := c.pushes[0]
		c.pushes = c.pushes[1:]
		return f
	}
	return c.read()
}

type result struct {
	OK      bool   `json:"ok"`
	Message any    `json:"message"`
	Error   string `json:"error"`
}

// text returns Message when it is a plain string.
func (r result) text() string {
	s, _ := r.Message.(string)
	return s
}

func (c *client) announce(identity string) {
	c.t.Helper()
	var res result
	f := c.call(TypeAnnounce, map[string]string{"identity": identity}, &res)
	require.Equal(c.t, TypeAnnounce+resultSuffix, f.Type)
	require.True(c.t, res.OK, res.Error)
}

func TestSendMessage_DeliversToBothSides(t *testing.T) {
	ts := newTestServer(t, Options{}, "ALICE1", "BOB123")
	alice := ts.dial(t, "")
	bob := ts.dial(t, "")
	alice.announce("ALICE1")
	bob.announce("BOB123")

	var res struct {
		OK      bool             `json:"ok"`
		Message chat.MessageView `json:"message"`
	}
	f := alice.call(TypeSendMessage, map[string]string{
		"senderIdentity":   "ALICE1",
		"receiverIdentity": "BOB123",
		"content":          "hello",
		"kind":             "text",
	}, &res)
	assert.Equal(t, TypeSendMessage+resultSuffix, f.Type)
	require.True(t, res.OK)
	assert.Equal(t, "hello", *res.Message.Content)

	echo := alice.nextPush()
	assert.Equal(t, chat.EventMessage, echo.Type)
	var echoView chat.MessageView
	require.NoError(t, json.Unmarshal(echo.Payload, &echoView))
	assert.True(t, echoView.IsSelf)

	push := bob.nextPush()
	assert.Equal(t, chat.EventMessage, push.Type)
	assert.Empty(t, push.ID)
	var view chat.MessageView
	require.NoError(t, json.Unmarshal(push.Payload, &view))
	assert.False(t, view.IsSelf)
	assert.Equal(t, "ALICE1", view.SenderIdentity)
	assert.Equal(t, "hello", *view.Content)
	assert.Nil(t, view.MediaReference)
}

func TestSendMessage_OfflineReceiverThenHistory(t *testing.T) {
	ts := newTestServer(t, Options{}, "ALICE1", "BOB123")
	alice := ts.dial(t, "")
	alice.announce("ALICE1")

	var res result
	alice.call(TypeSendMessage, map[string]string{
		"senderIdentity":   "ALICE1",
		"receiverIdentity": "BOB123",
		"kind":             "image",
		"mediaReference":   "/uploads/a.png",
	}, &res)
	require.True(t, res.OK, res.Error)

	bob := ts.dial(t, "")
	bob.announce("BOB123")

	var hist struct {
		OK       bool               `json:"ok"`
		Messages []chat.MessageView `json:"messages"`
	}
	bob.call(TypeGetHistory, map[string]string{"userA": "BOB123", "userB": "ALICE1"}, &hist)
	require.True(t, hist.OK)
	require.Len(t, hist.Messages, 1)
	assert.False(t, hist.Messages[0].IsSelf)
	assert.Equal(t, models.KindImage, hist.Messages[0].Kind)
	assert.Equal(t, "/uploads/a.png", *hist.Messages[0].MediaReference)
	assert.Nil(t, hist.Messages[0].Content)
}

func TestSendMessage_Rejections(t *testing.T) {
	ts := newTestServer(t, Options{}, "ALICE1", "BOB123")
	alice := ts.dial(t, "")
	alice.announce("ALICE1")

	var res result
	alice.call(TypeSendMessage, map[string]string{
		"senderIdentity": "ALICE1", "receiverIdentity": "NOBODY", "content": "hi",
	}, &res)
	assert.False(t, res.OK)
	assert.Contains(t, res.text(), "user not found")

	res = result{}
	alice.call(TypeSendMessage, map[string]string{
		"senderIdentity": "ALICE1", "receiverIdentity": "BOB123", "content": "  ",
	}, &res)
	assert.False(t, res.OK)
	assert.Contains(t, res.text(), "invalid message")

	res = result{}
	alice.call(TypeSendMessage, map[string]string{
		"senderIdentity": "BOB123", "receiverIdentity": "ALICE1", "content": "spoof",
	}, &res)
	assert.False(t, res.OK)
	assert.Contains(t, res.text(), "identity does not match")

	assert.Empty(t, alice.pushes)
}

func TestAnnounce_TokenMustMatch(t *testing.T) {
	ts := newTestServer(t, Options{}, "ALICE1", "BOB123")
	u, err := ts.store.Users().GetByIdentity(context.Background(), "ALICE1")
	require.NoError(t, err)
	tok, err := auth.GenerateToken(u.ID, u.Identity, u.Username, testSecret, time.Hour)
	require.NoError(t, err)

	c := ts.dial(t, "?token="+tok)
	var res result
	c.call(TypeAnnounce, map[string]string{"identity": "BOB123"}, &res)
	assert.False(t, res.OK)

	c.announce("ALICE1")
	assert.Equal(t, 1, ts.registry.Count())
}

func TestServeWS_RejectsBadToken(t *testing.T) {
	ts := newTestServer(t, Options{})
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeWS_CheckOrigin(t *testing.T) {
	ts := newTestServer(t, Options{AllowedOrigins: []string{"https://app.example"}})
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://app.example"}})
	require.NoError(t, err)
	conn.Close()
}

func TestSearchUser(t *testing.T) {
	ts := newTestServer(t, Options{}, "ALICE1", "BOB123")
	bob := ts.dial(t, "")
	bob.announce("BOB123")
	alice := ts.dial(t, "")

	var res searchUserResult
	alice.call(TypeSearchUser, map[string]string{"query": " bob123 "}, &res)
	assert.True(t, res.Found)
	require.NotNil(t, res.User)
	assert.Equal(t, "BOB123", res.User.Identity)
	assert.True(t, res.Online)

	res = searchUserResult{}
	alice.call(TypeSearchUser, map[string]string{"query": "ALICE1"}, &res)
	assert.True(t, res.Found)
	assert.False(t, res.Online)

	res = searchUserResult{}
	alice.call(TypeSearchUser, map[string]string{"query": "ZZZZZZ"}, &res)
	assert.False(t, res.Found)
	assert.Nil(t, res.User)
}

func TestRequestFriend_NotifiesOnlineRecipient(t *testing.T) {
	ts := newTestServer(t, Options{}, "ALICE1", "BOB123")
	alice := ts.dial(t, "")
	bob := ts.dial(t, "")
	alice.announce("ALICE1")
	bob.announce("BOB123")

	var res result
	alice.call(TypeRequestFriend, map[string]string{
		"requesterIdentity": "ALICE1", "recipientIdentity": "BOB123",
	}, &res)
	require.True(t, res.OK, res.Error)

	push := bob.nextPush()
	assert.Equal(t, friends.EventFriendRequest, push.Type)
	var notice friends.RequestNotice
	require.NoError(t, json.Unmarshal(push.Payload, &notice))
	assert.Equal(t, "ALICE1", notice.RequesterIdentity)

	res = result{}
	alice.call(TypeRequestFriend, map[string]string{
		"requesterIdentity": "ALICE1", "recipientIdentity": "BOB123",
	}, &res)
	assert.False(t, res.OK)
	assert.Equal(t, "friend request already sent or received", res.text())
	assert.Equal(t, res.text(), res.Error)
}

func TestListFriends(t *testing.T) {
	ts := newTestServer(t, Options{}, "ALICE1", "BOB123")
	ctx := context.Background()
	a, _ := ts.store.Users().GetByIdentity(ctx, "ALICE1")
	b, _ := ts.store.Users().GetByIdentity(ctx, "BOB123")
	_, err := ts.store.Friendships().Create(ctx, a.ID, b.ID, models.FriendAccepted)
	require.NoError(t, err)

	c := ts.dial(t, "")
	var res listFriendsResult
	c.call(TypeListFriends, map[string]string{"userIdentity": "BOB123"}, &res)
	require.True(t, res.OK)
	require.Len(t, res.Friends, 1)
	assert.Equal(t, "ALICE1", res.Friends[0].Identity)
}

func TestDispatch_BadFrames(t *testing.T) {
	ts := newTestServer(t, Options{})
	c := ts.dial(t, "")

	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	f := c.read()
	assert.Equal(t, TypeError, f.Type)

	f = c.call("dance", map[string]string{}, nil)
	assert.Equal(t, TypeError, f.Type)

	var res result
	f = c.call(TypeAnnounce, "not an object", &res)
	assert.Equal(t, TypeAnnounce+resultSuffix, f.Type)
	assert.False(t, res.OK)
	assert.Contains(t, res.text(), "malformed payload")
}

func TestDispatch_RateLimited(t *testing.T) {
	ts := newTestServer(t, Options{EventRPS: 0.001, EventBurst: 1})
	c := ts.dial(t, "")

	var res searchUserResult
	f := c.call(TypeSearchUser, map[string]string{"query": "X"}, &res)
	assert.Equal(t, TypeSearchUser+resultSuffix, f.Type)

	f = c.call(TypeSearchUser, map[string]string{"query": "X"}, nil)
	assert.Equal(t, TypeError, f.Type)
}

func TestDisconnect_RemovesRoute(t *testing.T) {
	ts := newTestServer(t, Options{}, "ALICE1")
	c := ts.dial(t, "")
	c.announce("ALICE1")
	require.Equal(t, 1, ts.registry.Count())

	require.NoError(t, c.conn.Close())
	assert.Eventually(t, func() bool { return ts.registry.Count() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestAnnounce_NormalizesIdentity(t *testing.T) {
	ts := newTestServer(t, Options{}, "ALICE1", "BOB123")
	bob := ts.dial(t, "")
	bob.announce(" bob123 ")

	_, ok := ts.registry.Lookup("BOB123")
	require.True(t, ok)

	alice := ts.dial(t, "")
	alice.announce("alice1")
	var res result
	alice.call(TypeSendMessage, map[string]string{
		"senderIdentity": "ALICE1", "receiverIdentity": "BOB123", "content": "hi",
	}, &res)
	require.True(t, res.OK, res.Error)

	push := bob.nextPush()
	assert.Equal(t, chat.EventMessage, push.Type)
}
