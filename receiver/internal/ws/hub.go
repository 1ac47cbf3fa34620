package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obsidianstack/phimon/receiver/internal/api"
	"github.com/obsidianstack/phimon/receiver/internal/monitor"
	"github.com/obsidianstack/phimon/receiver/internal/store"
)

const (
	writeTimeout = 10 * time.Second

	// pongWait is how long a client may stay silent before it is dropped.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client queue depth. A client that falls this far
	// behind the snapshot ticks and peer events is disconnected.
	sendBufSize = 32
)

// Event names carried in Message.Event.
const (
	EventSnapshot = "snapshot"
	EventPeer     = "peer"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins; apply CORS at the reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the JSON envelope of every frame. Data is an
// api.SnapshotResponse for EventSnapshot and a PeerEvent for EventPeer.
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// PeerEvent reports a peer's state transition as it happens, between
// snapshot ticks.
type PeerEvent struct {
	From string           `json:"from"` // empty for a peer seen for the first time
	To   string           `json:"to"`
	Peer api.PeerResponse `json:"peer"`
}

// Hub pushes the peer snapshot to every WebSocket client each interval and
// pushes a PeerEvent as soon as a session turns suspect, recovers, is
// abandoned or closes. It implements monitor.Observer.
type Hub struct {
	store    *store.Store
	interval time.Duration

	mu      sync.RWMutex
	clients map[*client]struct{}

	statesMu sync.Mutex
	states   map[string]string // last state per live session
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a Hub that reads snapshots from st every interval.
func New(st *store.Store, interval time.Duration) *Hub {
	return &Hub{
		store:    st,
		interval: interval,
		clients:  make(map[*client]struct{}),
		states:   make(map[string]string),
	}
}

// Run broadcasts snapshots until ctx is cancelled, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
			h.broadcastSnapshot()
		}
	}
}

// Observe implements monitor.Observer. It never blocks the session.
func (h *Hub) Observe(st monitor.Status) {
	h.statesMu.Lock()
	prev := h.states[st.Peer]
	if st.Final() {
		delete(h.states, st.Peer)
	} else {
		h.states[st.Peer] = st.State
	}
	h.statesMu.Unlock()

	if !notable(prev, st.State) {
		return
	}

	seen := st.UpdatedAt
	if seen.IsZero() {
		seen = time.Now()
	}
	data, err := json.Marshal(Message{
		Event: EventPeer,
		Data: PeerEvent{
			From: prev,
			To:   st.State,
			Peer: api.PeerFromEntry(store.Entry{Status: st, UpdatedAt: seen}),
		},
	})
	if err != nil {
		slog.Error("ws: encode peer event", "peer", st.Peer, "err", err)
		return
	}
	h.broadcast(data)
}

// notable reports whether moving from prev to next is worth a push.
// Warming and steady alive updates wait for the next snapshot.
func notable(prev, next string) bool {
	if prev == next {
		return false
	}
	switch next {
	case monitor.StateSuspect, monitor.StateAbandoned, monitor.StateClosed:
		return true
	case monitor.StateAlive:
		return prev == monitor.StateSuspect
	}
	return false
}

// ServeHTTP upgrades the connection, sends the current snapshot and then
// streams broadcasts until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufSize)}

	// Queue the current snapshot before registering so it is the first frame.
	if data, err := h.snapshotMessage(); err == nil {
		c.send <- data
	}
	h.register(c)
	defer h.unregister(c)

	go c.writePump()
	c.readPump()
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) broadcastSnapshot() {
	data, err := h.snapshotMessage()
	if err != nil {
		slog.Error("ws: encode snapshot", "err", err)
		return
	}
	h.broadcast(data)
}

// broadcast queues data for every client and drops those whose queue is
// full. Sends happen under the read lock so unregister cannot close a
// channel mid-send.
func (h *Hub) broadcast(data []byte) {
	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Warn("ws: dropping slow client", "queued", sendBufSize)
		h.unregister(c)
	}
}

func (h *Hub) snapshotMessage() ([]byte, error) {
	return json.Marshal(Message{Event: EventSnapshot, Data: api.BuildSnapshot(h.store)})
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// writePump forwards queued frames and pings. A closed send channel means
// the hub let go of the client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only handles control frames and notices disconnects.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
