package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"timetracker/internal/middleware"
	"timetracker/internal/model"
	"timetracker/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const sendBuffer = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS layer and the token check.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// TokenVerifier resolves a session token to the caller.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (middleware.Identity, error)
}

// Client represents a single connected WebSocket client
type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	UserID string
	Role   string
}

// canSee reports whether the client may receive events about userID's
// entries. Admins see everything, everyone else only their own.
func (c *Client) canSee(userID string) bool {
	return c.Role == model.RoleAdmin || c.UserID == userID
}

type envelope struct {
	userID  string
	payload []byte
}

type roleChange struct {
	userID string
	role   string
}

// Hub fans entry events out to connected clients.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	roles      chan roleChange
	done       chan struct{}
	mu         sync.Mutex
	onCount    func(int)
}

// NewHub initializes a new WS Hub instance. onCount, when set, is told the
// number of connected clients after every change.
func NewHub(onCount func(int)) *Hub {
	if onCount == nil {
		onCount = func(int) {}
	}
	return &Hub{
		broadcast:  make(chan envelope, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		roles:      make(chan roleChange),
		clients:    make(map[*Client]bool),
		done:       make(chan struct{}),
		onCount:    onCount,
	}
}

// Run dispatches hub events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.onCount(0)
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.onCount(n)
			log.Printf("WebSocket client connected: user=%s", client.UserID)
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				log.Printf("WebSocket client disconnected: user=%s", client.UserID)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.onCount(n)
		case change := <-h.roles:
			h.mu.Lock()
			for client := range h.clients {
				if client.UserID == change.userID {
					client.Role = change.role
				}
			}
			h.mu.Unlock()
			log.Printf("WebSocket role updated: user=%s role=%s", change.userID, change.role)
		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.canSee(msg.userID) {
					continue
				}
				select {
				case client.Send <- msg.payload:
				default:
					// Slow consumer; drop it rather than stall the hub.
					close(client.Send)
					delete(h.clients, client)
				}
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.onCount(n)
		}
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// RoleChanged applies a new role to the user's open sockets, so events
// published afterwards are routed by it. It returns once the hub has taken
// the change, or immediately when the hub has stopped.
func (h *Hub) RoleChanged(userID, role string) {
	select {
	case h.roles <- roleChange{userID: userID, role: role}:
	case <-h.done:
	}
}

// PublishEntryEvent queues an entry event for delivery. It never blocks the
// caller; events are dropped when the queue is full.
func (h *Hub) PublishEntryEvent(event service.EntryEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("WebSocket event encode failed: %v", err)
		return
	}
	select {
	case h.broadcast <- envelope{userID: event.UserID, payload: payload}:
	default:
		log.Printf("WebSocket queue full, dropping %s for entry %s", event.Type, event.EntryID)
	}
}

// writePump handles writing messages from the Hub to the WebSocket connection
func (c *Client) writePump() {
	defer func() {
		_ = c.Conn.Close()
	}()
	for message := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump only drains the connection; clients never send commands.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		_ = c.Conn.Close()
	}()
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			return
		}
	}
}

// ServeWs authenticates with the token query parameter (browsers cannot set
// headers on websocket requests) or the session cookie, then upgrades.
func ServeWs(hub *Hub, c *gin.Context, verifier TokenVerifier) {
	tokenString := c.Query("token")
	if tokenString == "" {
		tokenString, _ = c.Cookie("access_token")
	}
	if tokenString == "" {
		log.Println("WebSocket connection rejected: missing token")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	identity, err := verifier.Verify(c.Request.Context(), tokenString)
	if err != nil {
		log.Println("WebSocket connection rejected: invalid token:", err)
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	if !model.IsValidRole(identity.Role) {
		log.Println("WebSocket connection rejected: unknown role")
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Println("WebSocket upgrade failed:", err)
		return
	}
	client := &Client{Hub: hub, Conn: conn, Send: make(chan []byte, sendBuffer), UserID: identity.UserID, Role: identity.Role}
	select {
	case hub.register <- client:
	case <-hub.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
