package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-valve/internal/auth"
	"github.com/nerrad567/gray-logic-valve/internal/command"
	"github.com/nerrad567/gray-logic-valve/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-valve/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-valve/internal/protocol"
)

// wsSendBufferSize is the per-client outbound message buffer size.
const wsSendBufferSize = 64

// Hub tracks local websocket clients and fans telemetry out to the
// authorised ones.
type Hub struct {
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is one local channel connection. It starts unauthorised and
// only accepts request_device_info until the passkey has been presented.
type WSClient struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	authorised atomic.Bool
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", h.ClientCount())
}

// Unregister removes a client from the hub.
// Only the goroutine that successfully removes the client from the map
// closes the send channel, preventing double-close panics during shutdown.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", h.ClientCount())
}

// Broadcast marshals v and queues it for every authorised client.
// It returns the number of clients it was queued for.
func (h *Hub) Broadcast(v any) int {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return 0
	}

	// Snapshot client list under hub lock, then release before sending
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	sent := 0
	for _, client := range clients {
		if client.authorised.Load() {
			client.trySend(data)
			sent++
		}
	}
	return sent
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// AuthorisedCount returns the number of clients past the passkey handshake.
func (h *Hub) AuthorisedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for client := range h.clients {
		if client.authorised.Load() {
			n++
		}
	}
	return n
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// handleWebSocket upgrades the connection. Authentication happens inside the
// channel with request_device_info.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, wsSendBufferSize),
	}

	s.hub.Register(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg, s.handleLocalMessage)
}

// handleLocalMessage processes one inbound local channel message. Anything
// that cannot be handled is logged and dropped without a reply.
func (s *Server) handleLocalMessage(c *WSClient, data []byte) {
	env, err := protocol.PeekEvent(data)
	if err != nil {
		s.logger.Debug("websocket message dropped", "error", err)
		return
	}

	if !c.authorised.Load() {
		if env.Event != protocol.EventRequestDeviceInfo {
			s.logger.Warn("websocket client not authorised", "event", env.Event)
			return
		}
		s.handshake(c, data)
		return
	}

	ctx := context.Background()
	switch env.Event {
	case protocol.EventDeviceBasicInfo:
		s.sendValveData(c, data)
	case protocol.EventSetValveBasic:
		// Errors are counted and logged by the handler.
		_ = s.commands.HandleLocalBasic(ctx, data)
	default:
		_ = s.commands.Route(ctx, command.ChannelWebSocket, data)
	}
}

func (s *Server) handshake(c *WSClient, data []byte) {
	var req protocol.HandshakeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.logger.Debug("websocket handshake malformed", "error", err)
		return
	}

	if err := s.auth.CheckPasskey(req.Passkey); err != nil {
		if errors.Is(err, auth.ErrNotConfigured) {
			s.logger.Error("websocket handshake refused: passkey not configured")
		} else {
			s.logger.Warn("websocket passkey rejected")
		}
		return
	}

	c.authorised.Store(true)
	c.sendJSON(protocol.NewDeviceInfo(s.deviceID, s.now()))
	s.logger.Info("websocket client authorised", "authorised_clients", s.hub.AuthorisedCount())
}

// sendValveData answers device_basic_info addressed to this device.
func (s *Server) sendValveData(c *WSClient, data []byte) {
	var req protocol.BasicInfoRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.logger.Debug("device_basic_info malformed", "error", err)
		return
	}
	if req.Data.DeviceID != s.deviceID {
		s.logger.Warn("device_basic_info for another device", "device_id", req.Data.DeviceID)
		return
	}

	c.sendJSON(protocol.NewValveData(s.deviceID, s.now(), s.store.Observed()))
}

// readPump reads messages from the WebSocket connection.
func (c *WSClient) readPump(cfg config.WebSocketConfig, handle func(*WSClient, []byte)) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message resets the read deadline.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		handle(c, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendJSON marshals v and queues it for this client.
func (c *WSClient) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.hub.logger.Error("failed to marshal websocket message", "error", err)
		return
	}
	c.trySend(data)
}

// trySend queues data without blocking. A full buffer drops the message and
// a closed channel (client gone mid-broadcast) is absorbed.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
	}
}
