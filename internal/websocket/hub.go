package websocket

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"studyflow/internal/services"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TokenParser resolves an access token to the user it was issued to.
type TokenParser interface {
	ParseUserID(token string) (uuid.UUID, error)
}

// client serializes writes to one connection; gorilla allows a single writer.
type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub relays each user's Redis pub/sub channel to their open websocket
// connections. One subscription is held per user while any connection is open.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID][]*client
	redisClient *redis.Client
	tokens      TokenParser
	cancelFuncs map[uuid.UUID]context.CancelFunc
}

func NewHub(redisClient *redis.Client, tokens TokenParser) *Hub {
	return &Hub{
		connections: make(map[uuid.UUID][]*client),
		redisClient: redisClient,
		tokens:      tokens,
		cancelFuncs: make(map[uuid.UUID]context.CancelFunc),
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Authenticate via token query param
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userID, err := h.tokens.ParseUserID(tokenStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn}
	h.registerConnection(userID, c)

	// Keep connection alive and handle disconnect
	go func() {
		defer h.unregisterConnection(userID, c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// ConnectionCount reports how many connections are open for a user.
func (h *Hub) ConnectionCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[userID])
}

// Close drops every connection and subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, conns := range h.connections {
		for _, c := range conns {
			c.conn.Close()
		}
		delete(h.connections, userID)
	}
	for userID, cancel := range h.cancelFuncs {
		cancel()
		delete(h.cancelFuncs, userID)
	}
}

func (h *Hub) registerConnection(userID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[userID] = append(h.connections[userID], c)

	// Start pub/sub subscription if this is the first connection for this user
	if len(h.connections[userID]) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[userID] = cancel
		go h.subscribeToPubSub(ctx, userID)
	}

	log.Printf("WebSocket connected: user %s (total: %d)", userID, len(h.connections[userID]))
}

func (h *Hub) unregisterConnection(userID uuid.UUID, gone *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	gone.conn.Close()

	conns := h.connections[userID]
	for i, c := range conns {
		if c == gone {
			h.connections[userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	// If no more connections, cancel pub/sub
	if len(h.connections[userID]) == 0 {
		delete(h.connections, userID)
		if cancel, ok := h.cancelFuncs[userID]; ok {
			cancel()
			delete(h.cancelFuncs, userID)
		}
	}

	log.Printf("WebSocket disconnected: user %s", userID)
}

func (h *Hub) subscribeToPubSub(ctx context.Context, userID uuid.UUID) {
	pubsub := h.redisClient.Subscribe(ctx, services.UserUpdatesChannel(userID))
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
			h.broadcast(userID, []byte(msg.Payload))
		}
	}
}

// broadcast may overlap with a subscription that is still winding down after
// a reconnect; client.write keeps each connection to one writer.
func (h *Hub) broadcast(userID uuid.UUID, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.connections[userID] {
		if err := c.write(data); err != nil {
			log.Printf("WebSocket write failed for user %s: %v", userID, err)
		}
	}
}
