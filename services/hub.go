package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"quizsession/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 256
)

// StateSource answers request_state messages with a session snapshot.
type StateSource interface {
	Snapshot(sessionID string) (session.Snapshot, bool)
}

// Hub pushes session events to the websocket clients watching a session.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex
	states     StateSource
}

type Client struct {
	hub       *Hub
	id        string
	socket    *websocket.Conn
	send      chan []byte
	sessionID string
	studentID uint
}

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// SetStateSource wires the hub to the sessions it reports on.
func (h *Hub) SetStateSource(s StateSource) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.states = s
}

// Run serves registrations until ctx is done, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			glog.V(2).Infof("client %s registered for session %s (student %d), %d connected", client.id, client.sessionID, client.studentID, total)
			client.sendState()

		case client := <-h.unregister:
			h.mutex.Lock()
			h.drop(client)
			total := len(h.clients)
			h.mutex.Unlock()
			glog.V(2).Infof("client %s left session %s, %d connected", client.id, client.sessionID, total)

		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				h.drop(client)
			}
			h.mutex.Unlock()
			return nil
		}
	}
}

// drop must be called with h.mutex held.
func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// Broadcast sends a session event to every client of the session.
func (h *Hub) Broadcast(sessionID string, ev session.Event) {
	h.BroadcastToSession(sessionID, string(ev.Kind), ev)
}

func (h *Hub) BroadcastToSession(sessionID string, messageType string, payload interface{}) {
	data, err := json.Marshal(Message{Type: messageType, Payload: payload})
	if err != nil {
		glog.Errorf("error marshaling %s message: %v", messageType, err)
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		if client.sessionID != sessionID {
			continue
		}
		select {
		case client.send <- data:
		default:
			glog.Warningf("client %s send buffer full, disconnecting", client.id)
			h.drop(client)
		}
	}
}

// Connected counts the clients watching a session.
func (h *Hub) Connected(sessionID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	n := 0
	for client := range h.clients {
		if client.sessionID == sessionID {
			n++
		}
	}
	return n
}

func (h *Hub) RegisterClient(conn *websocket.Conn, sessionID string, studentID uint) *Client {
	client := &Client{
		hub:       h,
		id:        uuid.NewString(),
		socket:    conn,
		send:      make(chan []byte, sendBuffer),
		sessionID: sessionID,
		studentID: studentID,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return client
	}

	go client.writePump()
	go client.readPump()

	return client
}

func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.socket.Close()
	}()

	c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				glog.Warningf("websocket read error on session %s: %v", c.sessionID, err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			glog.V(2).Infof("ignoring malformed message from client %s: %v", c.id, err)
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.socket.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case "ping":
		c.reply("pong", "pong")
	case "request_state":
		c.sendState()
	default:
		glog.V(2).Infof("unknown message type %q from client %s", msg.Type, c.id)
	}
}

func (c *Client) sendState() {
	c.hub.mutex.RLock()
	states := c.hub.states
	c.hub.mutex.RUnlock()
	if states == nil {
		return
	}
	snap, ok := states.Snapshot(c.sessionID)
	if !ok {
		c.reply("error", map[string]string{"error": ErrSessionNotFound.Error()})
		return
	}
	c.reply("state", snap)
}

func (c *Client) reply(messageType string, payload interface{}) {
	data, err := json.Marshal(Message{Type: messageType, Payload: payload})
	if err != nil {
		glog.Errorf("error marshaling %s message: %v", messageType, err)
		return
	}

	c.hub.mutex.Lock()
	defer c.hub.mutex.Unlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
		c.hub.drop(c)
	}
}
