package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"reporthub-backend/internal/collab"
	"reporthub-backend/internal/events"
	"reporthub-backend/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	userID uuid.UUID

	mu     sync.Mutex
	closed bool
}

func newClient(conn *websocket.Conn, userID uuid.UUID) *client {
	c := &client{
		conn:   conn,
		send:   make(chan []byte, 64),
		userID: userID,
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// trySend queues a message without blocking. It reports false when the
// client is closed or its buffer is full. Sends are serialized with
// close on c.mu; send is never written after it is closed.
func (c *client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close is idempotent. Only writePump reads send; it exits when the
// channel closes.
func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Hub is the push transport binding: one room of live connections per
// session. Mutations flow through the coordinator like every other
// transport; fan-out comes back through the session's Redis pub/sub
// channel, which the hub subscribes to while the room is non-empty.
type Hub struct {
	mu          sync.RWMutex
	rooms       map[string]map[*client]bool
	cancelFuncs map[string]context.CancelFunc

	coordinator *collab.Coordinator
	redisClient *redis.Client
	auth        *middleware.JWTAuth
}

func NewHub(coordinator *collab.Coordinator, redisClient *redis.Client, auth *middleware.JWTAuth) *Hub {
	return &Hub{
		rooms:       make(map[string]map[*client]bool),
		cancelFuncs: make(map[string]context.CancelFunc),
		coordinator: coordinator,
		redisClient: redisClient,
		auth:        auth,
	}
}

// HandleWebSocket authenticates via token query param, joins the
// session and services the connection until the client leaves or the
// read fails.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	userID, _, err := h.auth.VerifyToken(tokenStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "Missing session", http.StatusBadRequest)
		return
	}

	// Join before upgrading so a dead link gets a proper status code.
	joined, err := h.coordinator.Join(r.Context(), sessionID, userID, nil)
	if err != nil {
		switch {
		case errors.Is(err, collab.ErrGone):
			http.Error(w, "Session expired", http.StatusGone)
		case errors.Is(err, collab.ErrNotFound):
			http.Error(w, "Session not found", http.StatusNotFound)
		default:
			http.Error(w, "Join failed", http.StatusInternalServerError)
		}
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	c := newClient(conn, userID)
	h.register(sessionID, c)

	h.sendTo(c, WSMessage{
		Type: MsgJoined,
		Payload: JoinedPayload{
			SessionID: sessionID,
			Document:  joined.Document,
			UserCount: joined.UserCount,
		},
	})

	go h.readPump(sessionID, c)
}

func (h *Hub) readPump(sessionID string, c *client) {
	defer func() {
		h.coordinator.Leave(context.Background(), sessionID, c.userID)
		h.unregister(sessionID, c)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendTo(c, WSMessage{Type: MsgError, Payload: ErrorPayload{Code: "VALIDATION_ERROR", Message: "Malformed message"}})
			continue
		}

		switch msg.Type {
		case MsgSendUpdate:
			if msg.Update == nil {
				h.sendTo(c, WSMessage{Type: MsgError, Payload: ErrorPayload{Code: "VALIDATION_ERROR", Message: "Update payload is required"}})
				continue
			}
			if err := h.coordinator.Update(context.Background(), sessionID, c.userID, *msg.Update); err != nil {
				h.sendTo(c, WSMessage{Type: MsgError, Payload: errorPayloadFor(err)})
			}
		case MsgPing:
			h.coordinator.Heartbeat(sessionID, c.userID)
		case MsgLeave:
			return
		default:
			h.sendTo(c, WSMessage{Type: MsgError, Payload: ErrorPayload{Code: "VALIDATION_ERROR", Message: "Unknown message type"}})
		}
	}
}

func errorPayloadFor(err error) ErrorPayload {
	switch {
	case errors.Is(err, collab.ErrForbidden):
		return ErrorPayload{Code: "FORBIDDEN", Message: err.Error()}
	case errors.Is(err, collab.ErrInvalidInput):
		return ErrorPayload{Code: "VALIDATION_ERROR", Message: err.Error()}
	case errors.Is(err, collab.ErrGone):
		return ErrorPayload{Code: "GONE", Message: "Session expired"}
	case errors.Is(err, collab.ErrNotFound):
		return ErrorPayload{Code: "NOT_FOUND", Message: "Session not found"}
	default:
		return ErrorPayload{Code: "INTERNAL_ERROR", Message: "Unexpected error"}
	}
}

func (h *Hub) register(sessionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[sessionID]
	if !ok {
		room = make(map[*client]bool)
		h.rooms[sessionID] = room
	}
	room[c] = true

	// First connection for this session: start forwarding its events.
	if len(room) == 1 && h.redisClient != nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[sessionID] = cancel
		go h.subscribeToPubSub(ctx, sessionID)
	}

	log.Printf("WebSocket connected: session %s user %s (room size %d)", sessionID, c.userID, len(room))
}

func (h *Hub) unregister(sessionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[sessionID]
	if !ok {
		return
	}
	if room[c] {
		delete(room, c)
		c.close()
	}

	if len(room) == 0 {
		delete(h.rooms, sessionID)
		if cancel, ok := h.cancelFuncs[sessionID]; ok {
			cancel()
			delete(h.cancelFuncs, sessionID)
		}
	}

	log.Printf("WebSocket disconnected: session %s user %s", sessionID, c.userID)
}

func (h *Hub) subscribeToPubSub(ctx context.Context, sessionID string) {
	pubsub := h.redisClient.Subscribe(ctx, events.ChannelFor(sessionID))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event collab.UpdateEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("ws fanout: bad event on %s: %v", sessionID, err)
				continue
			}
			h.Broadcast(sessionID, event)
		}
	}
}

// PublishUpdate lets the hub act as an in-process UpdatePublisher when
// no Redis bridge is configured (single binary, tests). With Redis the
// publisher side lives in the events package and this is unused.
func (h *Hub) PublishUpdate(_ context.Context, sessionID string, event collab.UpdateEvent) {
	h.Broadcast(sessionID, event)
}

// Broadcast fans an event out to the session's room, skipping the
// author's own connections. Clients that cannot keep up are dropped
// rather than allowed to stall everyone else.
func (h *Hub) Broadcast(sessionID string, event collab.UpdateEvent) {
	msgType := MsgUpdate
	if event.Type == collab.EventPresence {
		msgType = MsgPresence
	}
	data, err := json.Marshal(WSMessage{Type: msgType, Payload: event})
	if err != nil {
		log.Printf("ws fanout: marshal error: %v", err)
		return
	}

	h.mu.RLock()
	recipients := make([]*client, 0, len(h.rooms[sessionID]))
	for c := range h.rooms[sessionID] {
		if c.userID == event.UserID {
			continue
		}
		recipients = append(recipients, c)
	}
	h.mu.RUnlock()

	for _, c := range recipients {
		if !c.trySend(data) {
			log.Printf("ws client too slow, disconnecting: session %s user %s", sessionID, c.userID)
			h.unregister(sessionID, c)
		}
	}
}

// RoomSize reports the number of live connections for a session.
func (h *Hub) RoomSize(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}

func (h *Hub) sendTo(c *client, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}
