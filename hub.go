package main

import (
	"encoding/json"
	"log"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeTimeout = 10 * time.Second
	sendBuffer   = 64
)

// inbound is a viewer-to-server websocket message.
type inbound struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// outbound is a server-to-viewer websocket message.
type outbound struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// viewerConn is one websocket attached to a session.
type viewerConn struct {
	conn      *websocket.Conn
	sessionID string
	send      chan []byte
	hub       *Hub
}

// Hub fans session events out to the websocket viewers of each session.
type Hub struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]map[*viewerConn]bool
}

// NewHub creates a hub. An empty origin list accepts every origin.
func NewHub(allowedOrigins []string) *Hub {
	h := &Hub{conns: make(map[string]map[*viewerConn]bool)}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, origin)
		},
	}
	return h
}

// Serve upgrades the request and attaches the viewer to sessionID. greeting
// is sent first. onMessage runs for every inbound message in arrival order
// on a goroutine of its own, so a slow message never stalls the read loop.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string, greeting any, onMessage func(c *viewerConn, msg *inbound)) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] upgrade for session %s: %v", sessionID, err)
		return
	}
	c := &viewerConn{conn: conn, sessionID: sessionID, send: make(chan []byte, sendBuffer), hub: h}
	h.register(c)
	if greeting != nil {
		c.reply(greeting)
	}
	go c.writePump()
	go c.readPump(onMessage)
}

func (h *Hub) register(c *viewerConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.conns[c.sessionID]
	if set == nil {
		set = make(map[*viewerConn]bool)
		h.conns[c.sessionID] = set
	}
	set[c] = true
	log.Printf("[WS] viewer attached to session %s (%d)", c.sessionID, len(set))
}

func (h *Hub) unregister(c *viewerConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *viewerConn) {
	set := h.conns[c.sessionID]
	if !set[c] {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.conns, c.sessionID)
	}
}

// Send delivers v to every viewer of sessionID. Viewers whose buffer is full
// are dropped.
func (h *Hub) Send(sessionID string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("[WS] marshal for session %s: %v", sessionID, err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns[sessionID] {
		select {
		case c.send <- payload:
		default:
			log.Printf("[WS] viewer of session %s too slow, dropping", sessionID)
			h.dropLocked(c)
		}
	}
}

// Count returns the number of viewers attached to sessionID.
func (h *Hub) Count(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[sessionID])
}

// CloseSession detaches every viewer of sessionID.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns[sessionID] {
		h.dropLocked(c)
	}
}

// Close detaches every viewer.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.conns {
		for c := range set {
			h.dropLocked(c)
		}
	}
}

// reply queues v for this viewer only.
func (c *viewerConn) reply(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("[WS] marshal reply: %v", err)
		return
	}
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	if !c.hub.conns[c.sessionID][c] {
		return
	}
	select {
	case c.send <- payload:
	default:
		log.Printf("[WS] reply dropped for session %s: buffer full", c.sessionID)
	}
}

func (c *viewerConn) replyError(id, code, message string) {
	c.reply(outbound{Type: "error", ID: id, Error: code, Message: message})
}

func (c *viewerConn) readPump(onMessage func(c *viewerConn, msg *inbound)) {
	inbox := make(chan *inbound, sendBuffer)
	go func() {
		for msg := range inbox {
			onMessage(c, msg)
		}
	}()

	defer func() {
		close(inbox)
		c.hub.unregister(c)
		if err := c.conn.Close(); err != nil {
			log.Printf("[WS] close: %v", err)
		}
	}()

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("[WS] set read deadline: %v", err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] session %s: %v", c.sessionID, err)
			}
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.replyError("", "InvalidMessageFormat", "Invalid message format")
			continue
		}
		select {
		case inbox <- &msg:
		default:
			c.replyError(msg.ID, "Busy", "Too many pending messages")
		}
	}
}

func (c *viewerConn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
