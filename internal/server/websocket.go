package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tcc-gateway/internal/manager"
	"tcc-gateway/internal/message"
)

const (
	wsWriteWait  = time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsSendQueue  = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub tracks WebSocket clients and pushes parameter changes to all of them
type Hub struct {
	dispatcher *Dispatcher
	codec      *message.Codec
	logger     zerolog.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func NewHub(dispatcher *Dispatcher, codec *message.Codec, logger zerolog.Logger) *Hub {
	if codec == nil {
		codec = dispatcher.codec
	}
	return &Hub{
		dispatcher: dispatcher,
		codec:      codec,
		logger:     logger.With().Str("component", "websocket").Logger(),
		clients:    make(map[*wsClient]struct{}),
	}
}

// Clients returns the number of connected sockets
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and serves binary client messages on it
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	c := &wsClient{
		conn: conn,
		send: make(chan []byte, wsSendQueue),
		done: make(chan struct{}),
	}
	if !h.add(c) {
		c.close()
		return
	}
	h.logger.Debug().Str("remote", r.RemoteAddr).Msg("websocket client connected")

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) add(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

func (h *Hub) readLoop(c *wsClient) {
	defer h.remove(c)

	c.conn.SetReadLimit(4 * message.Size)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Msg("websocket read failed")
			}
			return
		}
		// only binary frames carry client messages
		if messageType != websocket.BinaryMessage {
			continue
		}

		resp := h.dispatcher.HandleBytes(data)
		select {
		case c.send <- resp:
		case <-c.done:
			return
		}
	}
}

func (h *Hub) writeLoop(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	defer h.remove(c)

	for {
		select {
		case <-c.done:
			return
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
				h.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Broadcast queues b for every client. Clients with a full queue miss it.
func (h *Hub) Broadcast(b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.logger.Debug().Msg("websocket client queue full, dropping update")
		}
	}
}

// PublishChange broadcasts a parameter change as a GET_PARAMETER response
func (h *Hub) PublishChange(change manager.Change) {
	h.Broadcast(h.codec.Encode(message.Message{
		Type:     message.TypeGetParameter,
		Argument: change.Parameter,
		Value:    message.Some(change.Value.Float()),
		Status:   true,
	}))
}

// Close disconnects every client and rejects new ones
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(wsWriteWait))
		c.close()
	}
}
