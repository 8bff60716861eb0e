package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/xtrntr/nuamexchange/internal/models"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	feedSendBuffer = 32
	feedWriteWait  = 5 * time.Second
)

// feedMessage is one frame of the transaction feed
type feedMessage struct {
	Type         string            `json:"type"` // "snapshot" or "transaccion"
	Transaction  *transactionView  `json:"transaccion,omitempty"`
	Transactions []transactionView `json:"transacciones,omitempty"`
}

type feedClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans executed transactions out to connected websocket clients
type Hub struct {
	mu      sync.RWMutex
	clients map[*feedClient]struct{}
	logger  *slog.Logger
	gauge   prometheus.Gauge
}

// NewHub creates an empty hub. gauge may be nil.
func NewHub(logger *slog.Logger, gauge prometheus.Gauge) *Hub {
	return &Hub{clients: make(map[*feedClient]struct{}), logger: logger, gauge: gauge}
}

// Len returns the number of connected clients
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues a transaction for every client. A client whose buffer
// is full is dropped.
func (h *Hub) Broadcast(trade models.Transaction) {
	view := viewTransaction(trade)
	data, err := json.Marshal(feedMessage{Type: "transaccion", Transaction: &view})
	if err != nil {
		h.logger.Error("failed to marshal feed message", slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping slow feed client", slog.String("remote", c.conn.RemoteAddr().String()))
			h.removeLocked(c)
		}
	}
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) add(c *feedClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	if h.gauge != nil {
		h.gauge.Inc()
	}
}

func (h *Hub) remove(c *feedClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *feedClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	if h.gauge != nil {
		h.gauge.Dec()
	}
}

// serve registers conn, sends the snapshot and blocks until the client
// goes away.
func (h *Hub) serve(conn *websocket.Conn, snapshot []models.Transaction) {
	c := &feedClient{conn: conn, send: make(chan []byte, feedSendBuffer)}

	data, err := json.Marshal(feedMessage{Type: "snapshot", Transactions: viewTransactions(snapshot)})
	if err != nil {
		conn.Close()
		return
	}
	c.send <- data
	h.add(c)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range c.send {
			conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Debug("feed write failed", slog.String("error", err.Error()))
				h.remove(c)
				break
			}
		}
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	}()

	// Clients never send anything meaningful; reading detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(c)
	<-done
}

func newUpgrader(allowedOrigins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}
}
