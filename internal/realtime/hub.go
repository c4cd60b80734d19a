package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tender-hub/backend/internal/models"
	"github.com/tender-hub/backend/internal/telemetry"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Audience selects which live connections receive a message.
type Audience string

const (
	// AudienceReviewers is every connection whose user may review profile updates, plus the
	// connections of UserID when it is set.
	AudienceReviewers Audience = "reviewers"
	// AudienceUser is every connection of a single user.
	AudienceUser Audience = "user"
)

// Message is what travels between instances. Data is forwarded to clients untouched.
type Message struct {
	Audience Audience        `json:"audience"`
	UserID   uuid.UUID       `json:"user_id,omitempty"`
	Event    string          `json:"event"`
	Data     json.RawMessage `json:"data,omitempty"`
	// Revoke closes the matching connections after delivering the event.
	Revoke bool `json:"revoke,omitempty"`
}

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	PublishEvent(ctx context.Context, msg Message) error
}

// RedisSubscriber delivers messages published by any instance, this one included.
type RedisSubscriber interface {
	Subscribe(ctx context.Context, handler func(Message)) (cancel func(), err error)
}

// Hub tracks live connections and fans messages out to them.
// With Redis configured every message goes through the shared channel so each instance delivers
// it exactly once to its own clients.
type Hub struct {
	clients  map[string]*Client
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
	cancel   func()
}

// NewHub creates a new WebSocket hub. redisPub and redisSub may be nil for a single instance.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:  make(map[string]*Client),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Start subscribes to the shared channel. It is a no-op without Redis.
func (h *Hub) Start(ctx context.Context) error {
	if h.redisSub == nil {
		return nil
	}
	cancel, err := h.redisSub.Subscribe(ctx, h.deliver)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()
	return nil
}

// Stop drops the Redis subscription and closes every local connection.
func (h *Hub) Stop() {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	for _, c := range clients {
		c.kick()
	}
}

// Register adds a client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	count := len(h.clients)
	h.mu.Unlock()
	telemetry.RealtimeConnections.Set(float64(count))
	h.logger.Debug("client connected", zap.String("client_id", c.ID), zap.String("user_id", c.UserID.String()), zap.Int("connections", count))
}

// Unregister removes a client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	count := len(h.clients)
	h.mu.Unlock()
	telemetry.RealtimeConnections.Set(float64(count))
	h.logger.Debug("client disconnected", zap.String("client_id", c.ID), zap.String("user_id", c.UserID.String()), zap.Int("connections", count))
}

// ConnectionCount returns the number of local connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish sends msg to its audience on every instance.
func (h *Hub) Publish(ctx context.Context, msg Message) error {
	if h.redis != nil {
		return h.redis.PublishEvent(ctx, msg)
	}
	h.deliver(msg)
	return nil
}

// deliver sends msg to matching local clients.
func (h *Hub) deliver(msg Message) {
	out := WSMessage{Event: msg.Event, Data: msg.Data}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		if c.matches(msg) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- out:
		default:
			// buffer full, skip
			h.logger.Warn("dropping realtime message for slow client", zap.String("client_id", c.ID), zap.String("event", msg.Event))
		}
		if msg.Revoke {
			c.kick()
		}
	}
}

func (c *Client) matches(msg Message) bool {
	switch msg.Audience {
	case AudienceReviewers:
		return c.Role.AtLeast(models.RoleManager) || (msg.UserID != uuid.Nil && c.UserID == msg.UserID)
	case AudienceUser:
		return c.UserID == msg.UserID
	}
	return false
}
