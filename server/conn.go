package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/richinex/tablecopilot/event"
	"github.com/richinex/tablecopilot/internal/logging"
)

const (
	maxPayloadBytes = 1 << 20
	sendBuffer      = 64
	pongWait        = 60 * time.Second
	pingPeriod      = pongWait * 9 / 10
	writeWait       = 10 * time.Second
)

// conn is one client connection. The read loop runs turns one at a time;
// the write loop owns every write to the socket.
type conn struct {
	server *Server
	ws     *websocket.Conn
	id     string
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func newConn(s *Server, ws *websocket.Conn, id string) *conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &conn{
		server: s,
		ws:     ws,
		id:     id,
		send:   make(chan []byte, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *conn) run() {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop()
	}()

	c.enqueue(Frame{Type: FrameConnection, Status: "connected", Message: ConnectedMessage})
	c.readLoop()
	c.close()
	<-writerDone
}

func (c *conn) close() {
	c.once.Do(func() {
		c.cancel()
		_ = c.ws.Close()
	})
}

func (c *conn) readLoop() {
	c.ws.SetReadLimit(maxPayloadBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.server.metrics.RecordTransportError("read")
				c.server.logger.Debug("Read failed", zap.String("client", c.id), zap.Error(err))
			}
			return
		}
		// A turn can outlast the read deadline.
		c.handle(data)
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	}
}

func (c *conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.server.metrics.RecordTransportError("write")
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// handle processes one client message to completion.
func (c *conn) handle(data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.server.metrics.RecordTransportError("invalid_json")
		c.server.logger.Debug("Malformed frame", zap.String("client", c.id), zap.Error(err))
		c.enqueue(errorFrame("Invalid JSON format: " + err.Error()))
		return
	}

	kind := msg.Type
	if kind == "" {
		kind = TypeMessage
	}
	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = c.id
	}

	switch kind {
	case TypeMessage:
		c.handleMessage(sessionID, msg.Content)
	case TypeClearHistory:
		c.server.orch.ClearHistory(sessionID)
		c.enqueue(statusFrame("success", "History cleared for session "+sessionID))
	case TypePing:
		c.enqueue(Frame{Type: FramePong})
	default:
		c.server.metrics.RecordTransportError("unknown_type")
		c.enqueue(errorFrame(fmt.Sprintf("Unknown message type: %s", kind)))
	}
}

func (c *conn) handleMessage(sessionID, content string) {
	if content == "" {
		c.enqueue(errorFrame("Message content is required"))
		return
	}
	c.server.logger.Debug("Message received",
		zap.String("client", c.id),
		zap.String("session", sessionID),
		zap.String("content", logging.Preview(content, 200)))

	c.enqueue(statusFrame("processing", "Processing your message..."))

	// The turn finishes even if the client goes away; only forwarding stops.
	ctx := context.WithoutCancel(c.ctx)
	result, err := c.server.orch.ProcessMessage(ctx, sessionID, content, c.forward)
	if err != nil {
		c.server.logger.Warn("Turn failed", zap.String("session", sessionID), zap.Error(err))
	}
	c.enqueue(ResponseFrame{Type: FrameResponse, TurnResult: result, SessionID: sessionID})
}

func (c *conn) forward(e event.Event) {
	if frame, ok := EventFrame(e); ok {
		c.enqueue(frame)
	}
}

// enqueue waits for buffer space so frames keep their order. It gives up
// once the connection is closed.
func (c *conn) enqueue(frame any) bool {
	data, ok := c.encode(frame)
	if !ok {
		return false
	}
	if c.ctx.Err() != nil {
		return false
	}
	select {
	case <-c.ctx.Done():
		return false
	case c.send <- data:
		return true
	}
}

// offer is enqueue without waiting, for broadcasts from other goroutines.
func (c *conn) offer(frame any) bool {
	data, ok := c.encode(frame)
	if !ok || c.ctx.Err() != nil {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *conn) encode(frame any) ([]byte, bool) {
	data, err := json.Marshal(frame)
	if err != nil {
		c.server.logger.Error("Encode frame failed", zap.Error(err))
		return nil, false
	}
	return data, true
}
