package server

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"meshi/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// listen serves the app on a loopback port for real WebSocket dials.
func (e *testEnv) listen(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = e.app.Listener(ln) }()
	t.Cleanup(func() { _ = e.app.Shutdown() })
	return ln.Addr().String()
}

func (e *testEnv) dialLive(t *testing.T, addr, token string) *websocket.Conn {
	t.Helper()
	var body struct {
		Ticket string `json:"ticket"`
	}
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/ws/ticket", token, nil, &body))

	conn, resp, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/api/live?ticket=%s", addr, body.Ticket), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readLive(t *testing.T, conn *websocket.Conn) models.LiveMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg models.LiveMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// readSnapshotUntil reads snapshots for sub until match accepts one.
func readSnapshotUntil[T any](t *testing.T, conn *websocket.Conn, sub string, match func([]T) bool) []T {
	t.Helper()
	for range 10 {
		msg := readLive(t, conn)
		if msg.Type != models.LiveMsgSnapshot || msg.Sub != sub {
			continue
		}
		var docs []T
		require.NoError(t, json.Unmarshal(msg.Docs, &docs))
		if match(docs) {
			return docs
		}
	}
	t.Fatalf("no matching snapshot for %s", sub)
	return nil
}

func TestLiveFeedAndComments(t *testing.T) {
	env := newTestEnv(t)
	addr := env.listen(t)
	alice := env.signUp(t, "live@example.com", "live")

	conn := env.dialLive(t, addr, alice.Token)
	require.NoError(t, conn.WriteJSON(models.LiveRequest{
		Op: models.LiveOpSubscribe, Sub: "feed", Collection: models.CollectionPosts,
	}))
	initial := readSnapshotUntil(t, conn, "feed", func(p []models.Post) bool { return true })
	assert.Empty(t, initial)

	var post models.Post
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/posts", alice.Token,
		map[string]string{"text": "ramen"}, &post))

	feed := readSnapshotUntil(t, conn, "feed", func(p []models.Post) bool { return len(p) == 1 })
	assert.Equal(t, "ramen", feed[0].Text)

	require.NoError(t, conn.WriteJSON(models.LiveRequest{
		Op: models.LiveOpSubscribe, Sub: "c1", Collection: models.CollectionComments, PostID: post.ID,
	}))
	readSnapshotUntil(t, conn, "c1", func(c []models.Comment) bool { return len(c) == 0 })

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost,
		fmt.Sprintf("/api/posts/%d/comments", post.ID), alice.Token, map[string]string{"text": "yum"}, nil))
	comments := readSnapshotUntil(t, conn, "c1", func(c []models.Comment) bool { return len(c) == 1 })
	assert.Equal(t, "yum", comments[0].Text)

	require.NoError(t, conn.WriteJSON(models.LiveRequest{Op: models.LiveOpUnsubscribe, Sub: "c1"}))
	for range 10 {
		msg := readLive(t, conn)
		if msg.Type == models.LiveMsgReleased {
			assert.Equal(t, "c1", msg.Sub)
			return
		}
	}
	t.Fatal("unsubscribe was not acknowledged")
}

func TestLive_WithoutRedisRefreshesLocally(t *testing.T) {
	env := newTestEnv(t, withoutRedis())
	addr := env.listen(t)
	res := env.signUp(t, "local@example.com", "local")

	conn := env.dialLive(t, addr, res.Token)
	require.NoError(t, conn.WriteJSON(models.LiveRequest{
		Op: models.LiveOpSubscribe, Sub: "feed", Collection: models.CollectionPosts,
	}))
	readSnapshotUntil(t, conn, "feed", func(p []models.Post) bool { return len(p) == 0 })

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/posts", res.Token,
		map[string]string{"text": "local"}, nil))
	readSnapshotUntil(t, conn, "feed", func(p []models.Post) bool { return len(p) == 1 })
}

func TestLive_RejectsMissingTicket(t *testing.T) {
	env := newTestEnv(t)
	addr := env.listen(t)

	_, resp, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/api/live?ticket=bogus", addr), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	assert.Equal(t, http.StatusUpgradeRequired, env.do(t, http.MethodGet, "/api/live", "", nil, nil))
}
