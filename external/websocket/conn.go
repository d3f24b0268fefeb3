package websocket

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/foxseedlab/kikitori/internal/session"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

var (
	ErrConnClosed      = errors.New("websocket connection closed")
	ErrConnInterrupted = errors.New("websocket read interrupted")
)

// conn adapts a gorilla connection to session.Conn. Reads happen on the
// session goroutine only; writes are serialized by writeMu.
type conn struct {
	ws         *websocket.Conn
	remoteAddr string

	writeMu     sync.Mutex
	interrupted atomic.Bool
	closed      atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

func newConn(ws *websocket.Conn, remoteAddr string, maxMessageBytes int64) *conn {
	c := &conn{
		ws:         ws,
		remoteAddr: remoteAddr,
		done:       make(chan struct{}),
	}
	ws.SetReadLimit(maxMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		if c.interrupted.Load() {
			return nil
		}
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.keepalive()
	return c
}

func (c *conn) Receive() (session.Frame, error) {
	for {
		if c.interrupted.Load() {
			return session.Frame{}, ErrConnInterrupted
		}
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.interrupted.Load() {
				return session.Frame{}, ErrConnInterrupted
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) && !c.closed.Load() {
				slog.Debug("websocket read error", "remote_addr", c.remoteAddr, "error", err)
			}
			return session.Frame{}, err
		}
		// a reset racing Interrupt is caught by the flag check on the next call
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		switch msgType {
		case websocket.BinaryMessage:
			return session.Frame{Binary: true, Data: data}, nil
		case websocket.TextMessage:
			return session.Frame{Data: data}, nil
		}
	}
}

func (c *conn) Send(msg session.Outbound) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

// Interrupt fails any pending or later Receive. Writes keep working until
// Close.
func (c *conn) Interrupt() error {
	c.interrupted.Store(true)
	return c.ws.SetReadDeadline(time.Now())
}

func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func (c *conn) RemoteAddr() string { return c.remoteAddr }

func (c *conn) keepalive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				slog.Debug("websocket ping failed", "remote_addr", c.remoteAddr, "error", err)
				return
			}
		}
	}
}
