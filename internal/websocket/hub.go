package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tutorchat/internal/models"
)

const (
	writeWait        = 10 * time.Second
	updatesKeyPrefix = "session_updates:"
)

// CheckOrigin is left nil so only same-origin pages can attach to a
// session by cookie.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Client is one browser tab attached to a session.
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Send writes msg to this client only.
func (c *Client) Send(msg models.WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.write(data)
}

func (c *Client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// ReadMessage blocks for the next frame from the browser.
func (c *Client) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// Hub tracks live connections per session and fans session updates out to
// them. With a Redis client the fan-out goes through pub/sub so every
// replica sees every update.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID][]*Client
	redisClient *redis.Client
	cancelFuncs map[uuid.UUID]context.CancelFunc
	logger      *zap.Logger
}

func NewHub(redisClient *redis.Client, logger *zap.Logger) *Hub {
	return &Hub{
		connections: make(map[uuid.UUID][]*Client),
		redisClient: redisClient,
		cancelFuncs: make(map[uuid.UUID]context.CancelFunc),
		logger:      logger,
	}
}

// Upgrade switches the request to a WebSocket and registers it for sessionID.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID) (*Client, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	client := &Client{conn: conn}
	h.register(sessionID, client)
	return client, nil
}

func (h *Hub) register(sessionID uuid.UUID, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[sessionID] = append(h.connections[sessionID], client)

	// Start pub/sub subscription if this is the first connection for this session
	if h.redisClient != nil && len(h.connections[sessionID]) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[sessionID] = cancel
		go h.subscribeToPubSub(ctx, sessionID)
	}

	h.logger.Debug("websocket connected",
		zap.String("session_id", sessionID.String()),
		zap.Int("connections", len(h.connections[sessionID])),
	)
}

// Unregister closes the client and drops it from the session.
func (h *Hub) Unregister(sessionID uuid.UUID, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.conn.Close()

	conns := h.connections[sessionID]
	for i, c := range conns {
		if c == client {
			h.connections[sessionID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	// If no more connections, cancel pub/sub
	if len(h.connections[sessionID]) == 0 {
		delete(h.connections, sessionID)
		if cancel, ok := h.cancelFuncs[sessionID]; ok {
			cancel()
			delete(h.cancelFuncs, sessionID)
		}
	}

	h.logger.Debug("websocket disconnected", zap.String("session_id", sessionID.String()))
}

// Publish delivers msg to every connection of the session.
func (h *Hub) Publish(ctx context.Context, sessionID uuid.UUID, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode websocket message", zap.Error(err))
		return
	}

	if h.redisClient == nil {
		h.broadcast(sessionID, data)
		return
	}

	if err := h.redisClient.Publish(ctx, updatesKeyPrefix+sessionID.String(), string(data)).Err(); err != nil {
		h.logger.Warn("redis publish failed, delivering locally", zap.Error(err))
		h.broadcast(sessionID, data)
	}
}

// Connections reports how many clients are attached to the session.
func (h *Hub) Connections(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[sessionID])
}

func (h *Hub) subscribeToPubSub(ctx context.Context, sessionID uuid.UUID) {
	pubsub := h.redisClient.Subscribe(ctx, updatesKeyPrefix+sessionID.String())
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
			h.broadcast(sessionID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(sessionID uuid.UUID, data []byte) {
	h.mu.RLock()
	clients := append([]*Client(nil), h.connections[sessionID]...)
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(data); err != nil {
			h.logger.Debug("websocket write failed", zap.Error(err))
		}
	}
}
