package ws

import (
	"context"
	"encoding/json"
	"time"

	"petadopt/internal/model"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxFrameBytes  = 64 * 1024
	sendBufferSize = 256
	replayLimit    = 100
)

// Conn is one authenticated socket. Its context ends when the hub drops it,
// which cancels any command still running for it.
type Conn struct {
	ws      *websocket.Conn
	send    chan []byte
	hub     *Hub
	session model.Session
	subs    map[string]bool // guarded by hub.mu
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewConn(ws *websocket.Conn, hub *Hub, sess model.Session) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		ws:      ws,
		send:    make(chan []byte, sendBufferSize),
		hub:     hub,
		session: sess,
		subs:    make(map[string]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ReadPump reads frames until the peer goes away, then unregisters.
func (c *Conn) ReadPump() {
	defer func() {
		c.hub.unregister(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxFrameBytes)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("WebSocket closed unexpectedly",
					zap.String("user_id", c.session.UserID),
					zap.Error(err),
				)
			}
			return
		}
		c.dispatch(raw)
	}
}

// WritePump drains the send buffer and keeps the peer alive with pings.
// Frames queued together go out in one newline-separated write.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.writeBatch(frame); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) writeBatch(first []byte) error {
	w, err := c.ws.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	w.Write(first)
	for pending := len(c.send); pending > 0; pending-- {
		w.Write([]byte{'\n'})
		w.Write(<-c.send)
	}
	return w.Close()
}

// dispatch decodes one client frame and acts on it.
func (c *Conn) dispatch(raw []byte) {
	var f clientFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		c.sendError("", "invalid_input", "malformed frame")
		return
	}

	switch f.Type {
	case frameSubscribe:
		if f.Channel == "" {
			c.sendError(f.ID, "invalid_input", "channel required")
			return
		}
		if err := c.hub.Subscribe(c, f.Channel); err != nil {
			c.sendError(f.ID, "forbidden", err.Error())
			return
		}
		c.enqueue(ackFrame("subscribed", f.Channel))
	case frameUnsubscribe:
		if f.Channel != "" {
			c.hub.Unsubscribe(c, f.Channel)
			c.enqueue(ackFrame("unsubscribed", f.Channel))
		}
	case frameAck:
		if f.Channel != "" && f.Seq > 0 && c.hub.subscribed(c, f.Channel) {
			c.hub.Acknowledge(c, f.Channel, f.Seq)
		}
	case frameResume:
		c.resume(f)
	case frameCommand:
		handler := c.hub.commands()
		if handler == nil {
			c.sendError(f.ID, "unavailable", "commands are disabled")
			return
		}
		handler.HandleCommand(c.ctx, c, f)
	case framePing:
		c.enqueue(ackFrame("pong", ""))
	default:
		c.sendError(f.ID, "invalid_input", "unknown frame type: "+f.Type)
	}
}

func (c *Conn) resume(f clientFrame) {
	if f.Channel == "" || !c.hub.subscribed(c, f.Channel) {
		c.sendError(f.ID, "forbidden", "subscribe to the channel before resuming")
		return
	}
	var since int64
	if f.Since != nil {
		since = *f.Since
	} else {
		last, err := c.hub.lastAcked(c, f.Channel)
		if err != nil {
			c.sendError(f.ID, "internal_error", "failed to load last acknowledged sequence")
			return
		}
		since = last
	}
	if since >= 0 {
		c.hub.Resume(c, f.Channel, since)
	}
}

// enqueue marshals v onto the send buffer. Frames for a connection the hub
// already dropped, or whose buffer is full, are discarded.
func (c *Conn) enqueue(v interface{}) {
	msg, err := json.Marshal(v)
	if err != nil {
		c.hub.log.Warn("Failed to marshal frame", zap.Error(err))
		return
	}
	if !c.hub.deliver(c, msg) {
		c.hub.log.Warn("Connection buffer full, dropping frame", zap.String("user_id", c.session.UserID))
	}
}

func (c *Conn) sendError(id, code, message string) {
	c.enqueue(errorFrame(id, code, message))
}
