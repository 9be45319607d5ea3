package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizsession/session"
)

type fixedStates map[string]session.Snapshot

func (s fixedStates) Snapshot(id string) (session.Snapshot, bool) {
	snap, ok := s[id]
	return snap, ok
}

type received struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func startHub(t *testing.T, states StateSource) (*Hub, string, context.CancelFunc) {
	t.Helper()
	hub := NewHub()
	hub.SetStateSource(states)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.RegisterClient(conn, r.URL.Query().Get("session"), studentID)
	}))
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http"), cancel
}

func dial(t *testing.T, url, sessionID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url+"?session="+sessionID, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg received
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHubSendsStateOnConnect(t *testing.T) {
	_, url, _ := startHub(t, fixedStates{"s1": {Title: "Capitals", Remaining: 90}})
	conn := dial(t, url, "s1")

	msg := readMessage(t, conn)
	assert.Equal(t, "state", msg.Type)
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(msg.Payload, &snap))
	assert.Equal(t, "Capitals", snap.Title)
	assert.Equal(t, 90, snap.Remaining)
}

func TestHubUnknownSession(t *testing.T) {
	_, url, _ := startHub(t, fixedStates{})
	conn := dial(t, url, "gone")

	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, string(msg.Payload), ErrSessionNotFound.Error())
}

func TestHubBroadcastsToSession(t *testing.T) {
	hub, url, _ := startHub(t, fixedStates{"s1": {}, "s2": {}})
	one := dial(t, url, "s1")
	two := dial(t, url, "s2")
	readMessage(t, one)
	readMessage(t, two)
	require.Eventually(t, func() bool { return hub.Connected("s1") == 1 && hub.Connected("s2") == 1 },
		time.Second, 10*time.Millisecond)

	hub.Broadcast("s1", session.Event{Kind: session.EventTick, Remaining: 59, Formatted: "0:59"})
	hub.Broadcast("s2", session.Event{Kind: session.EventWarning, Message: "1 minute remaining"})

	msg := readMessage(t, one)
	assert.Equal(t, "tick", msg.Type)
	var ev session.Event
	require.NoError(t, json.Unmarshal(msg.Payload, &ev))
	assert.Equal(t, 59, ev.Remaining)

	msg = readMessage(t, two)
	assert.Equal(t, "warning", msg.Type, "s2 only sees its own events")
}

func TestHubAnswersClientMessages(t *testing.T) {
	_, url, _ := startHub(t, fixedStates{"s1": {Title: "Capitals"}})
	conn := dial(t, url, "s1")
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(Message{Type: "ping"}))
	assert.Equal(t, "pong", readMessage(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(Message{Type: "request_state"}))
	assert.Equal(t, "state", readMessage(t, conn).Type)
}

func TestHubDisconnectsOnShutdown(t *testing.T) {
	hub, url, cancel := startHub(t, fixedStates{"s1": {}})
	conn := dial(t, url, "s1")
	readMessage(t, conn)

	cancel()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Zero(t, hub.Connected("s1"))
}
