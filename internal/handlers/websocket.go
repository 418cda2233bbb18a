package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/atharvakonge/crypto-academy/internal/logger"
	"github.com/atharvakonge/crypto-academy/internal/prices"
)

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins (for development and demo)
	},
}

// PriceStream handles GET /ws/prices. The client first receives every stored price,
// then each update as it is written.
func PriceStream(hub *prices.Hub, store *prices.Store, l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		snapshot, err := store.List(c.Request.Context())
		if err != nil {
			respondError(c, l, err)
			return
		}

		// Upgrade HTTP connection to WebSocket
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			l.Warnf("websocket upgrade error: %s", err)
			return
		}

		client := hub.Subscribe(conn, snapshot)
		if client == nil {
			conn.Close()
			return
		}

		go client.WritePump()
		client.ReadPump()
	}
}
