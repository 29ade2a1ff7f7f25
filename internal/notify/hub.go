// Package notify pushes storage-change events to open views so they can
// refresh without waiting for their poll interval. Delivery is best-effort:
// a view that misses an event still converges on its next periodic re-read,
// and the writing context never consumes its own events.
package notify

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"caredesk.io/telehealth/internal/store"
)

// Event mirrors a browser storage event: which bucket changed and when.
type Event struct {
	Bucket    string `json:"bucket"`
	Timestamp int64  `json:"timestamp"`
}

// sendQueueSize bounds how far a slow reader can fall behind before
// events are dropped for it. Dropped events are fine: the next poll
// re-reads the bucket anyway.
const sendQueueSize = 16

type client struct {
	conn *websocket.Conn
	role store.Role
	send chan Event
}

// Hub fans bucket-change events out to subscribed views. Notification
// buckets only reach views of the matching role; the shared query bucket
// reaches everyone.
//
// Publish never blocks on a socket: each client has a buffered queue
// drained by its own writer goroutine, and a full queue drops the event
// rather than stalling the store write that triggered it.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Publish queues a bucket-change event for every relevant subscriber and
// returns without waiting on any socket.
func (h *Hub) Publish(bucket string) {
	ev := Event{Bucket: bucket, Timestamp: time.Now().UnixMilli()}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !visibleTo(bucket, c.role) {
			continue
		}
		select {
		case c.send <- ev:
		default:
			// Queue full: the subscriber is not keeping up. Skip it;
			// it converges on its next poll.
		}
	}
}

func visibleTo(bucket string, role store.Role) bool {
	switch bucket {
	case store.DoctorNotificationBucket:
		return role == store.RoleClinician
	case store.PatientNotificationBucket:
		return role == store.RolePatient
	}
	return true
}

// drop unregisters a client and closes its queue and connection. Safe to
// call from either pump; only the caller that actually removes the client
// from the map closes the channel.
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	_, present := h.clients[c]
	if present {
		delete(h.clients, c)
	}
	h.mu.Unlock()

	if present {
		close(c.send)
		c.conn.Close()
	}
}

// Subscribe upgrades the request to a websocket and registers the view
// until its connection closes.
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request, role store.Role) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade event subscriber: %v", err)
		return
	}

	c := &client{conn: conn, role: role, send: make(chan Event, sendQueueSize)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

// writePump drains the client's queue onto its socket. A failed or timed
// out write drops the client; it reconnects or falls back to polling.
func (h *Hub) writePump(c *client) {
	for ev := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteJSON(ev); err != nil {
			log.Printf("Dropping event subscriber (%s): %v", c.role, err)
			h.drop(c)
			return
		}
	}
}

// readPump drains the read side so close frames are processed; subscribers
// are not expected to send anything.
func (h *Hub) readPump(c *client) {
	defer h.drop(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// SubscriberCount reports how many views are currently connected.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
