package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/stellarlinkco/groupwatch/internal/store"
)

// wsHub pushes every newly stored notification to all connected front
// ends, so they do not have to poll GET /api/notifications.
type wsHub struct {
	clients sync.Map
	nextID  atomic.Int64
}

type wsClient struct {
	conn *websocket.Conn
	id   string
}

func newWSHub() *wsHub {
	return &wsHub{}
}

func (h *wsHub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[gateway] websocket accept error: %v", err)
		return
	}

	clientID := fmt.Sprintf("ws-%d", h.nextID.Add(1))
	h.clients.Store(clientID, &wsClient{conn: conn, id: clientID})
	log.Printf("[gateway] ws client connected: %s", clientID)

	defer func() {
		h.clients.Delete(clientID)
		conn.CloseNow()
		log.Printf("[gateway] ws client disconnected: %s", clientID)
	}()

	// Clients only receive; drain reads until the peer goes away.
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			return
		}
	}
}

func (h *wsHub) broadcast(n store.Notification) {
	data, err := json.Marshal(map[string]any{
		"type":         "notification",
		"notification": n,
	})
	if err != nil {
		log.Printf("[gateway] marshal ws notification: %v", err)
		return
	}

	h.clients.Range(func(key, value any) bool {
		c := value.(*wsClient)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
			log.Printf("[gateway] ws write to %s: %v", c.id, err)
		}
		return true
	})
}

func (h *wsHub) closeAll() {
	h.clients.Range(func(key, value any) bool {
		c := value.(*wsClient)
		c.conn.CloseNow()
		return true
	})
}
