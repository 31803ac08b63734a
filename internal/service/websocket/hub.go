package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"postureserver/internal/dto"
	"postureserver/internal/logger"
	"postureserver/internal/observability"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 32 << 20
	sendBuffer     = 16
)

// Handler answers one inbound message. It is called sequentially per client,
// so replies leave in request order.
type Handler func(ctx context.Context, client *Client, msg dto.StreamMessage) dto.StreamMessage

// HubService tracks connected streaming clients.
type HubService struct {
	clients map[string]*Client
	mutex   sync.RWMutex
	logger  *logger.Logger
}

func NewHubService(logger *logger.Logger) *HubService {
	return &HubService{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Client is one streaming connection. Only its write pump writes data frames.
type Client struct {
	ID     string
	conn   *websocket.Conn
	send   chan dto.StreamMessage
	ctx    context.Context
	cancel context.CancelFunc
	hub    *HubService
}

// Register adds conn under a fresh client id. The client's context is
// cancelled when the connection goes away.
func (h *HubService) Register(ctx context.Context, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(ctx)
	client := &Client{
		ID:     uuid.NewString(),
		conn:   conn,
		send:   make(chan dto.StreamMessage, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
		hub:    h,
	}

	h.mutex.Lock()
	h.clients[client.ID] = client
	count := len(h.clients)
	h.mutex.Unlock()

	observability.SetStreamClients(count)
	h.logger.Info("Client %s connected. Total: %d", client.ID, count)
	return client
}

// Unregister removes the client and closes its connection.
func (h *HubService) Unregister(client *Client) {
	h.mutex.Lock()
	_, ok := h.clients[client.ID]
	delete(h.clients, client.ID)
	count := len(h.clients)
	h.mutex.Unlock()

	if !ok {
		return
	}

	client.cancel()
	client.conn.Close()
	observability.SetStreamClients(count)
	h.logger.Info("Client %s disconnected. Total: %d", client.ID, count)
}

func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// CloseAll sends a going-away close frame to every client and cancels its
// in-flight work. The read pumps then unregister the clients.
func (h *HubService) CloseAll() {
	h.mutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mutex.RUnlock()

	for _, c := range clients {
		c.cancel()
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
			c.conn.Close()
		}
	}
	if len(clients) > 0 {
		h.logger.Info("Closing %d streaming client(s)", len(clients))
	}
}

// Context is cancelled when the client disconnects or the server shuts down.
func (c *Client) Context() context.Context {
	return c.ctx
}

// Send queues msg for the write pump. It returns false once the client is gone.
func (c *Client) Send(msg dto.StreamMessage) bool {
	select {
	case c.send <- msg:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// Serve runs the client until the connection ends. Inbound messages are
// handled one at a time by handle.
func (c *Client) Serve(handle Handler) {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()

	c.readPump(handle)

	c.hub.Unregister(c)
	<-writerDone
}

func (c *Client) readPump(handle Handler) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.hub.logger.Error("Client %s read error: %v", c.ID, err)
			}
			return
		}
		// A full frame may take a while to analyze; keep the deadline fresh.
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var reply dto.StreamMessage
		var msg dto.StreamMessage
		if messageType != websocket.TextMessage {
			reply = ErrorMessage("expected a JSON text message")
		} else if err := json.Unmarshal(data, &msg); err != nil || msg.Event == "" {
			reply = ErrorMessage("malformed message: expected {\"event\": ..., \"data\": ...}")
		} else {
			reply = handle(c.ctx, c, msg)
		}

		if !c.Send(reply) {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.hub.logger.Error("Client %s write error: %v", c.ID, err)
				c.cancel()
				c.conn.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				c.conn.Close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// Message builds an envelope around data.
func Message(event string, data interface{}) dto.StreamMessage {
	raw, err := json.Marshal(data)
	if err != nil {
		return ErrorMessage("failed to encode " + event + " payload")
	}
	return dto.StreamMessage{Event: event, Data: raw}
}

// ErrorMessage builds an error event.
func ErrorMessage(message string) dto.StreamMessage {
	raw, _ := json.Marshal(dto.ErrorMessage{Message: message})
	return dto.StreamMessage{Event: dto.EventError, Data: raw}
}
