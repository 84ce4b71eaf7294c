package wsserver

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dobble/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 15 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Client is one websocket peer. Only the hub writes to or closes send.
type Client struct {
	id   string
	name string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func newClient(hub *Hub, conn *websocket.Conn, id, name string) *Client {
	return &Client{
		id:   id,
		name: name,
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

// readPump decodes frames and hands them to the hub in arrival order.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("read failed", zap.String("player", c.id), zap.Error(err))
			}
			return
		}

		frame, err := protocol.DecodeInbound(data)
		if err == nil && frame.Choose != nil && !c.hub.limiter.Allow(c.id, time.Now()) {
			c.hub.metrics.Moves.WithLabelValues(MoveDropped).Inc()
			continue
		}

		select {
		case c.hub.inbound <- inbound{client: c, frame: frame, err: err}:
		case <-c.hub.done:
			return
		}
	}
}

// writePump drains send and keeps the connection alive with pings.
// A closed send channel ends the connection with a close frame.
func (c *Client) writePump() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
