package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/unklstewy/overhead/internal/refresh"
	"github.com/unklstewy/overhead/pkg/flight"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 4
)

func newFlightsResponse(r flight.RankedResult) flightsResponse {
	resp := flightsResponse{
		Flights:  r.Flights,
		Provider: r.Provider,
	}
	if r.Empty() {
		resp.Flights = []flight.FlightRecord{}
		resp.NoData = true
		resp.Message = NoDataMessage
	}
	if r.Fetched() {
		t := r.FetchedAt
		resp.FetchedAt = &t
	}
	return resp
}

// Hub fans ranked results out to WebSocket clients. A client that cannot
// keep up loses messages rather than slowing the others down.
type Hub struct {
	orchestrator *refresh.Orchestrator
	logger       *slog.Logger
	upgrader     websocket.Upgrader
	unsubscribe  func()

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub subscribes to the orchestrator's results.
func NewHub(o *refresh.Orchestrator, logger *slog.Logger) *Hub {
	h := &Hub{
		orchestrator: o,
		logger:       logger,
		upgrader: websocket.Upgrader{
			EnableCompression: false,
			CheckOrigin:       func(r *http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
	h.unsubscribe = o.Subscribe(h.broadcast)
	return h
}

func (h *Hub) broadcast(r flight.RankedResult) {
	msg, err := json.Marshal(newFlightsResponse(r))
	if err != nil {
		h.logger.Error("failed to encode result", slog.Any("error", err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug("dropping message for slow websocket client", slog.String("remote", c.conn.RemoteAddr().String()))
		}
	}
}

// ServeHTTP upgrades the connection and sends the current result
// immediately, then every new one.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("unable to upgrade websocket", slog.Any("error", err))
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, sendBuffer)}
	if msg, err := json.Marshal(newFlightsResponse(h.orchestrator.Result())); err == nil {
		c.send <- msg
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", slog.String("remote", conn.RemoteAddr().String()))

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client messages and notices when the peer goes away.
func (h *Hub) readPump(c *wsClient) {
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close unsubscribes from results and disconnects every client.
func (h *Hub) Close() {
	h.unsubscribe()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
