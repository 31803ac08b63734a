package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"postureserver/internal/dto"
	"postureserver/internal/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func echoServer(t *testing.T, hub *HubService) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := hub.Register(context.Background(), conn)
		client.Serve(func(ctx context.Context, c *Client, msg dto.StreamMessage) dto.StreamMessage {
			return dto.StreamMessage{Event: "echo", Data: msg.Data}
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestHub_RepliesInOrder(t *testing.T) {
	hub := NewHubService(logger.NewDiscard())
	conn := dial(t, echoServer(t, hub))

	for i := 0; i < 5; i++ {
		require.NoError(t, conn.WriteJSON(map[string]interface{}{"event": "ping", "data": map[string]int{"seq": i}}))
	}

	for i := 0; i < 5; i++ {
		var msg dto.StreamMessage
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "echo", msg.Event)

		var body struct{ Seq int }
		require.NoError(t, json.Unmarshal(msg.Data, &body))
		assert.Equal(t, i, body.Seq)
	}
	assert.Equal(t, 1, hub.GetClientCount())
}

func TestHub_MalformedMessageKeepsConnection(t *testing.T) {
	hub := NewHubService(logger.NewDiscard())
	conn := dial(t, echoServer(t, hub))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	var msg dto.StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, dto.EventError, msg.Event)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"event": "ping", "data": map[string]int{"seq": 7}}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "echo", msg.Event)
}

func TestHub_UnregisterOnDisconnect(t *testing.T) {
	hub := NewHubService(logger.NewDiscard())
	conn := dial(t, echoServer(t, hub))

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"event": "ping"}))
	var msg dto.StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, 1, hub.GetClientCount())

	conn.Close()
	assert.Eventually(t, func() bool { return hub.GetClientCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestHub_CloseAll(t *testing.T) {
	hub := NewHubService(logger.NewDiscard())
	conn := dial(t, echoServer(t, hub))

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"event": "ping"}))
	var msg dto.StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))

	hub.CloseAll()

	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
	assert.Eventually(t, func() bool { return hub.GetClientCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestMessage(t *testing.T) {
	msg := Message(dto.EventConnected, dto.ConnectedMessage{Data: "hi", ClientID: "abc"})

	assert.Equal(t, dto.EventConnected, msg.Event)
	assert.JSONEq(t, `{"data":"hi","client_id":"abc"}`, string(msg.Data))
}
