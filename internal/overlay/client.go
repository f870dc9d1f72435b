package overlay

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan *Message
}

// trySend must only be called from the hub goroutine, which also owns closing
// send.
func (c *client) trySend(msg *Message) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// readPump accepts position reports and keeps the connection alive.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.hub.log.Warn("websocket read error", slog.String("error", err.Error()))
			}
			return
		}
		if msg.Type != MessagePosition || msg.Position == nil {
			c.hub.log.Debug("ignoring overlay message", slog.String("type", msg.Type))
			continue
		}
		pos := *msg.Position
		c.hub.SetPosition(pos[0], pos[1])
		c.hub.mu.RLock()
		onMove := c.hub.onMove
		c.hub.mu.RUnlock()
		if onMove != nil {
			onMove(pos[0], pos[1])
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
