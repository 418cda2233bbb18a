package prices

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/atharvakonge/crypto-academy/internal/logger"
	"github.com/atharvakonge/crypto-academy/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

// Hub fans out price updates to websocket subscribers.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan models.Price
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	logger logger.Logger
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func NewHub(logger logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan models.Price, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run owns the client set until ctx is done, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.logger.Debugf("price subscriber connected, total: %d", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Debugf("price subscriber disconnected, total: %d", len(h.clients))
			}

		case price := <-h.broadcast:
			message, err := sonic.Marshal(price)
			if err != nil {
				h.logger.Errorf("%s: can't marshal price update", err)
				continue
			}

			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// slow consumer
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// Publish never blocks. Updates are dropped when the buffer is full or the hub has stopped.
func (h *Hub) Publish(p models.Price) {
	select {
	case h.broadcast <- p:
	case <-h.done:
	default:
		h.logger.Warnf("price update for %s dropped: hub is busy", p.Symbol)
	}
}

// Subscribe registers conn and queues a snapshot of the current prices for it.
// It returns nil when the hub has stopped.
func (h *Hub) Subscribe(conn *websocket.Conn, snapshot []models.Price) *Client {
	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	for _, p := range snapshot {
		message, err := sonic.Marshal(p)
		if err != nil {
			h.logger.Errorf("%s: can't marshal price snapshot", err)
			continue
		}
		select {
		case client.send <- message:
		default:
		}
	}

	select {
	case h.register <- client:
		return client
	case <-h.done:
		return nil
	}
}

// ReadPump discards inbound messages and keeps the connection alive with pongs.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warnf("websocket error: %s", err)
			}
			break
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
