package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func dialHub(t *testing.T, register func(conn *websocket.Conn)) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		register(conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var event Event
	require.NoError(t, json.Unmarshal(data, &event))
	return event
}

func TestHubNotifyUser(t *testing.T) {
	hub := NewHub(nil)
	conn := dialHub(t, func(c *websocket.Conn) { hub.RegisterUser("usr-1", c) })

	require.Eventually(t, func() bool {
		return hub.UserConnections("usr-1") == 1
	}, time.Second, 10*time.Millisecond)

	hub.NotifyUser("usr-1", Event{Type: "notification", Payload: map[string]string{"title": "hi"}})

	event := readEvent(t, conn)
	assert.Equal(t, "notification", event.Type)
}

func TestHubNotifyOtherUserNotDelivered(t *testing.T) {
	hub := NewHub(nil)
	conn := dialHub(t, func(c *websocket.Conn) { hub.RegisterUser("usr-1", c) })

	require.Eventually(t, func() bool {
		return hub.UserConnections("usr-1") == 1
	}, time.Second, 10*time.Millisecond)

	hub.NotifyUser("usr-2", Event{Type: "notification"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestHubBroadcastTopic(t *testing.T) {
	hub := NewHub(nil)
	first := dialHub(t, func(c *websocket.Conn) { hub.RegisterTopic("messages:global", c) })
	second := dialHub(t, func(c *websocket.Conn) { hub.RegisterTopic("messages:global", c) })

	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.topics["messages:global"]) == 2
	}, time.Second, 10*time.Millisecond)

	hub.BroadcastTopic("messages:global", Event{Type: "message"})

	assert.Equal(t, "message", readEvent(t, first).Type)
	assert.Equal(t, "message", readEvent(t, second).Type)
}

func TestHubUnregisterClosesConnection(t *testing.T) {
	hub := NewHub(nil)
	var serverConn *websocket.Conn
	conn := dialHub(t, func(c *websocket.Conn) {
		serverConn = c
		hub.RegisterUser("usr-1", c)
	})

	require.Eventually(t, func() bool {
		return hub.UserConnections("usr-1") == 1
	}, time.Second, 10*time.Millisecond)

	hub.UnregisterUser("usr-1", serverConn)
	assert.Equal(t, 0, hub.UserConnections("usr-1"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}
