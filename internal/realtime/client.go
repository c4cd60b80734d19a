package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tender-hub/backend/internal/apperr"
	"github.com/tender-hub/backend/internal/auth"
	"github.com/tender-hub/backend/internal/middleware"
	"github.com/tender-hub/backend/internal/models"
	"github.com/tender-hub/backend/pkg/response"
)

const writeWait = 10 * time.Second

// EventConnected is sent once after the upgrade.
const EventConnected = "connected"

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client represents a single WebSocket connection.
type Client struct {
	ID     string
	UserID uuid.UUID
	Role   models.Role
	hub    *Hub
	conn   *websocket.Conn
	send   chan WSMessage
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, user *models.User, logger *zap.Logger) *Client {
	return &Client{
		ID:     uuid.New().String(),
		UserID: user.ID,
		Role:   user.Role,
		hub:    hub,
		conn:   conn,
		send:   make(chan WSMessage, 64),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// kick asks the write loop to close the connection.
func (c *Client) kick() {
	c.once.Do(func() { close(c.done) })
}

// ServeWs authenticates the token query parameter, reloads the user and streams events until the
// connection drops. Browsers cannot set headers on a WebSocket handshake, hence the query token.
func ServeWs(hub *Hub, jwtService *auth.JWTService, users middleware.UserLoader, allowedOrigins []string, logger *zap.Logger) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(allowedOrigins),
	}
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			response.Unauthorized(c, "token required")
			return
		}
		claims, err := jwtService.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			return
		}
		user, err := users.GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			if apperr.IsNotFound(err) {
				response.Unauthorized(c, "invalid or expired token")
				return
			}
			logger.Error("load websocket user", zap.Error(err), zap.String("user_id", claims.UserID.String()))
			response.Internal(c, "internal server error")
			return
		}
		if !user.IsActive() {
			response.Forbidden(c, "account is not active")
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := newClient(hub, conn, user, logger)
		hub.Register(client)
		hello, _ := json.Marshal(map[string]string{"user_id": user.ID.String(), "role": string(user.Role)})
		client.send <- WSMessage{Event: EventConnected, Data: hello}
		go client.writePump()
		client.readPump()
	}
}

// checkOrigin allows requests without an Origin header and those from the configured origins.
// A "*" entry allows any origin.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// readPump only watches for pongs and disconnects. Clients have nothing to send.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.kick()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read", zap.Error(err), zap.String("client_id", c.ID))
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return
			}
		case <-c.done:
			c.flush()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(msg WSMessage) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

// flush writes whatever was queued before the client was kicked, e.g. a revocation notice.
func (c *Client) flush() {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}
