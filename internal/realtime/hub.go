package realtime

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/exiloncms/exiloncms/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10

	sendBuffer = 32
)

// Message is the JSON frame written to subscribers.
type Message struct {
	Stream string `json:"stream"`
	Event  string `json:"event"`
	Data   any    `json:"data,omitempty"`
}

type control struct {
	Action  string   `json:"action"`
	Streams []string `json:"streams"`
}

// Hub fans messages out to websocket clients grouped by stream and user.
type Hub struct {
	mu       sync.RWMutex
	streams  map[string]map[string]map[*client]struct{}
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHub constructs a hub. Cross-origin upgrades are refused unless the
// origin matches the request host or is a loopback address.
func NewHub() *Hub {
	return &Hub{
		streams: make(map[string]map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOriginOrLoopback,
		},
		log: logger.WithModule("realtime"),
	}
}

// Serve upgrades the request and blocks until the client disconnects.
// allowed restricts which streams the client may join; nil allows all.
func (h *Hub) Serve(userID string, streams []string, allowed map[string]struct{}, w http.ResponseWriter, r *http.Request) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		hub:     h,
		socket:  socket,
		userID:  userID,
		allowed: allowed,
		joined:  make(map[string]struct{}),
		send:    make(chan Message, sendBuffer),
		done:    make(chan struct{}),
	}
	h.join(c, streams)

	go c.writePump()
	c.readPump()
}

// SendToUser delivers message to every connection of userID on stream.
func (h *Hub) SendToUser(stream, userID string, message Message) {
	stream = normalizeStream(stream)
	if stream == "" || userID == "" {
		return
	}
	message.Stream = stream

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.streams[stream][userID] {
		h.deliver(c, message)
	}
}

// SendToUsers delivers message to each user on stream.
func (h *Hub) SendToUsers(stream string, userIDs []string, message Message) {
	for _, id := range userIDs {
		h.SendToUser(stream, id, message)
	}
}

// Broadcast delivers message to every subscriber of stream.
func (h *Hub) Broadcast(stream string, message Message) {
	stream = normalizeStream(stream)
	if stream == "" {
		return
	}
	message.Stream = stream

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, byUser := range h.streams[stream] {
		for c := range byUser {
			h.deliver(c, message)
		}
	}
}

// Subscribers counts the connections joined to stream.
func (h *Hub) Subscribers(stream string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, byUser := range h.streams[normalizeStream(stream)] {
		total += len(byUser)
	}
	return total
}

func (h *Hub) join(c *client, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range uniqueStreams(streams) {
		if !c.mayJoin(stream) {
			h.log.Debug("stream not permitted", zap.String("stream", stream), zap.String("user_id", c.userID))
			continue
		}
		if _, ok := c.joined[stream]; ok {
			continue
		}
		byUser := h.streams[stream]
		if byUser == nil {
			byUser = make(map[string]map[*client]struct{})
			h.streams[stream] = byUser
		}
		if byUser[c.userID] == nil {
			byUser[c.userID] = make(map[*client]struct{})
		}
		byUser[c.userID][c] = struct{}{}
		c.joined[stream] = struct{}{}
	}
}

func (h *Hub) leave(c *client, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, stream := range uniqueStreams(streams) {
		h.leaveLocked(c, stream)
	}
}

func (h *Hub) leaveAll(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for stream := range c.joined {
		h.leaveLocked(c, stream)
	}
}

func (h *Hub) leaveLocked(c *client, stream string) {
	delete(c.joined, stream)
	byUser := h.streams[stream]
	if byUser == nil {
		return
	}
	delete(byUser[c.userID], c)
	if len(byUser[c.userID]) == 0 {
		delete(byUser, c.userID)
	}
	if len(byUser) == 0 {
		delete(h.streams, stream)
	}
}

// deliver must be called with h.mu held for reading. Slow clients are dropped.
func (h *Hub) deliver(c *client, message Message) {
	select {
	case c.send <- message:
	default:
		h.log.Warn("dropping slow websocket client", zap.String("user_id", c.userID))
		go c.close()
	}
}

type client struct {
	hub     *Hub
	socket  *websocket.Conn
	userID  string
	allowed map[string]struct{}
	joined  map[string]struct{}
	send    chan Message
	done    chan struct{}
	once    sync.Once
}

func (c *client) mayJoin(stream string) bool {
	if c.allowed == nil {
		return true
	}
	_, ok := c.allowed[stream]
	return ok
}

func (c *client) readPump() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("websocket closed", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}

		var msg control
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(msg.Action)) {
		case "subscribe":
			c.hub.join(c, msg.Streams)
		case "unsubscribe":
			c.hub.leave(c, msg.Streams)
		case "ping":
			select {
			case c.send <- Message{Event: "pong"}:
			default:
			}
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) close() {
	c.once.Do(func() {
		c.hub.leaveAll(c)
		close(c.done)
		_ = c.socket.Close()
	})
}

func sameOriginOrLoopback(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	originHost := stripPort(parsed.Host)
	if originHost == stripPort(r.Host) {
		return true
	}
	if ip := net.ParseIP(originHost); ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(originHost, "localhost")
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func normalizeStream(stream string) string {
	return strings.ToLower(strings.TrimSpace(stream))
}

func uniqueStreams(streams []string) []string {
	seen := make(map[string]struct{}, len(streams))
	out := make([]string, 0, len(streams))
	for _, stream := range streams {
		stream = normalizeStream(stream)
		if stream == "" {
			continue
		}
		if _, ok := seen[stream]; ok {
			continue
		}
		seen[stream] = struct{}{}
		out = append(out, stream)
	}
	return out
}
