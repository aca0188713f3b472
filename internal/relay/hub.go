package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	slidesync "github.com/slidesync/slidesync-go"
)

const (
	writeTimeout = 10 * time.Second

	// pongWait is how long a connection may stay silent, pongs included,
	// before it is considered dead.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxFrameSize bounds a single inbound frame.
	maxFrameSize = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin checks belong to the reverse proxy in front of the relay.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub relays slide state from presenters to everyone else and runs the poll
// and viewer-count commands.
type Hub struct {
	polls      PollStore
	sessions   SessionStore
	trustQuery bool
	logger     *slog.Logger
	sendBuffer int

	mu      sync.RWMutex
	clients map[string]*client
}

// client is one connected participant.
type client struct {
	id   string
	role slidesync.Role
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a Hub that keeps polls in polls.
func NewHub(polls PollStore, opts ...HubOption) *Hub {
	o := hubDefaults()
	for _, opt := range opts {
		opt(&o)
	}
	return &Hub{
		polls:      polls,
		sessions:   o.sessions,
		trustQuery: o.trustQuery,
		logger:     o.logger,
		sendBuffer: o.sendBuffer,
		clients:    make(map[string]*client),
	}
}

// ServeHTTP upgrades the request to a WebSocket and serves the participant
// until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	role := roleFor(r, h.sessions, h.trustQuery)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		id:   uuid.NewString(),
		role: role,
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
	}
	h.register(c)
	defer h.unregister(c)

	h.logger.Debug("relay: participant connected", "id", c.id, "role", role)

	go c.writePump()
	h.readPump(r.Context(), c)
}

// Count returns the number of connected participants.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every participant.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
	h.logger.Debug("relay: participant left", "id", c.id)
}

// readPump handles inbound frames one at a time. Blocks until the
// connection closes.
func (h *Hub) readPump(ctx context.Context, c *client) {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if kind != websocket.TextMessage {
			continue
		}
		h.handle(ctx, c, data)
	}
}

// handle routes one frame. Poll and viewer-count commands are answered by
// the hub; everything else is slide state.
func (h *Hub) handle(ctx context.Context, c *client, data []byte) {
	var msg slidesync.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		msg = nil
	}

	switch msg.StringField(slidesync.DefaultDiscriminator) {
	case slidesync.TypePollGet:
		h.pollGet(ctx, c, msg)
	case slidesync.TypePollVote:
		h.pollVote(ctx, c, msg)
	case slidesync.TypePollUnvote:
		h.pollUnvote(ctx, c, msg)
	case slidesync.TypePollSwitch:
		h.pollSwitch(ctx, c, msg)
	case slidesync.TypeViewerCount:
		h.reply(c, slidesync.ViewerCount{Type: slidesync.TypeViewerCount, Count: h.Count()})
	default:
		h.slideSync(c, data)
	}
}

// slideSync forwards a presenter's frame verbatim to every other
// participant. Frames from viewers are ignored.
func (h *Hub) slideSync(c *client, data []byte) {
	if c.role != slidesync.RolePresenter {
		return
	}
	h.broadcast(data, c.id)
}

// broadcast queues data for every participant except exclude.
func (h *Hub) broadcast(data []byte, exclude string) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for id, c := range h.clients {
		if id != exclude {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.enqueue(c, data)
	}
}

// reply encodes v and queues it for c alone.
func (h *Hub) reply(c *client, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("relay: encode reply", "err", err)
		return
	}
	h.enqueue(c, data)
}

// enqueue drops c when its outbound buffer is full.
func (h *Hub) enqueue(c *client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		h.logger.Warn("relay: participant too slow, dropping", "id", c.id)
		go h.unregister(c)
	}
}

// writePump forwards queued frames and sends periodic pings. Runs in its
// own goroutine per participant.
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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
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
