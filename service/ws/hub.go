package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/wayne-blip/agromedicana-server/cmd/utils"
	"github.com/wayne-blip/agromedicana-server/service/presence"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type client struct {
	userID uint
	conn   *websocket.Conn
	send   chan []byte
}

// Hub tracks one live connection per user and fans outbound payloads to
// them. A new connection for a user replaces the old one.
type Hub struct {
	mu      sync.RWMutex
	clients map[uint]*client
	typing  *presence.TypingTracker
}

func NewHub(typing *presence.TypingTracker) *Hub {
	return &Hub{
		clients: make(map[uint]*client),
		typing:  typing,
	}
}

func (h *Hub) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws", h.ServeWS)
}

// SendToUser delivers a payload to the user's connection if one is open.
// Delivery is best effort; a full or missing connection drops the payload.
func (h *Hub) SendToUser(userID uint, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ws: marshal payload for user %d: %v", userID, err)
		return
	}

	h.mu.RLock()
	c, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	select {
	case c.send <- data:
	default:
		log.Printf("ws: dropping payload for slow client %d", userID)
	}
}

// ServeWS upgrades the request and attaches the connection to the hub.
// Browser WebSocket clients cannot set headers, so the token is also
// accepted as a query parameter.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	tokenString := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if tokenString == "" {
		tokenString = r.URL.Query().Get("token")
	}
	if tokenString == "" {
		http.Error(w, "Authorization required", http.StatusUnauthorized)
		return
	}

	userID, err := utils.ParseToken(tokenString)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed for user %d: %v", userID, err)
		return
	}

	c := &client{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, 64),
	}

	h.mu.Lock()
	if old, ok := h.clients[userID]; ok {
		close(old.send)
		old.conn.Close()
	}
	h.clients[userID] = c
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) detach(c *client) {
	h.mu.Lock()
	if h.clients[c.userID] == c {
		delete(h.clients, c.userID)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}

// inboundEvent is the only shape clients send: typing signals tied to a
// consultation.
type inboundEvent struct {
	Type           string `json:"type"`
	ConsultationID uint   `json:"consultation_id"`
}

func (h *Hub) readPump(c *client) {
	defer h.detach(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws: read error for user %d: %v", c.userID, err)
			}
			return
		}

		var event inboundEvent
		if err := json.Unmarshal(data, &event); err != nil {
			continue
		}
		if event.Type == "typing" && event.ConsultationID != 0 && h.typing != nil {
			h.typing.Mark(event.ConsultationID, c.userID)
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
