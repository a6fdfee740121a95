package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/handcapture/internal/detector"
	"github.com/ayusman/handcapture/internal/server/api"
	"github.com/ayusman/handcapture/internal/session"
)

const (
	writeWait = 2 * time.Second

	// sendBuffer is how many messages a client may fall behind before it
	// is dropped.
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// client is one websocket connection with its own writer goroutine.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// hub fans messages out to websocket clients. Publishing only queues;
// a client that falls behind is disconnected.
type hub struct {
	replay bool

	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte
}

func newHub(replay bool) *hub {
	return &hub{
		replay:  replay,
		clients: make(map[*client]struct{}),
	}
}

func (h *hub) broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.replay {
		h.last = msg
	}
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			log.Printf("websocket client too slow, disconnecting")
			h.drop(c)
		}
	}
}

// drop must be called with h.mu held.
func (h *hub) drop(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.last != nil {
		c.send <- h.last
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.write(c)

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	h.drop(c)
	h.mu.Unlock()
}

// write sends queued messages until the client is dropped.
func (h *hub) write(c *client) {
	defer c.conn.Close()

	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.mu.Lock()
			h.drop(c)
			h.mu.Unlock()
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

// EventsHandler broadcasts capture session snapshots via WebSocket.
// New clients receive the most recent snapshot on connect.
type EventsHandler struct {
	hub *hub
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler() *EventsHandler {
	return &EventsHandler{hub: newHub(true)}
}

// Publish queues the snapshot for all connected clients. It never blocks
// on the network.
func (h *EventsHandler) Publish(snap session.Snapshot) {
	msg, err := json.Marshal(api.NewState(snap))
	if err != nil {
		log.Printf("encode snapshot: %v", err)
		return
	}
	h.hub.broadcast(msg)
}

// Clients returns the number of connected clients.
func (h *EventsHandler) Clients() int {
	return h.hub.count()
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.hub.serve(w, r)
}

// LandmarksHandler streams the hands found in every analyzed frame via
// WebSocket.
type LandmarksHandler struct {
	hub *hub
}

// NewLandmarksHandler creates a new LandmarksHandler.
func NewLandmarksHandler() *LandmarksHandler {
	return &LandmarksHandler{hub: newHub(false)}
}

type landmarksMessage struct {
	SessionID string                   `json:"session_id"`
	Hands     []detector.HandLandmarks `json:"hands"`
	Timestamp int64                    `json:"timestamp"`
}

// Publish queues a detector result for all connected clients.
func (h *LandmarksHandler) Publish(sessionID string, r detector.Result) {
	if h.hub.count() == 0 {
		return
	}

	hands := r.Hands
	if hands == nil {
		hands = []detector.HandLandmarks{}
	}
	msg, err := json.Marshal(landmarksMessage{
		SessionID: sessionID,
		Hands:     hands,
		Timestamp: r.Timestamp,
	})
	if err != nil {
		log.Printf("encode landmarks: %v", err)
		return
	}
	h.hub.broadcast(msg)
}

// Clients returns the number of connected clients.
func (h *LandmarksHandler) Clients() int {
	return h.hub.count()
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *LandmarksHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.hub.serve(w, r)
}
