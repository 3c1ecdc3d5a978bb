package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/dmstream/internal/apperr"
	"github.com/lalith-99/dmstream/internal/presence"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 256
	writeDeadline = 10 * time.Second
	readDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second
	maxFrameBytes = 64 << 10
)

var ErrSendQueueFull = errors.New("send queue full")

// Conn is one websocket connection. Writes go through a buffered channel
// drained by writePump, so Deliver never blocks on the network.
type Conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}

	// authIdentity is set when the upgrade request carried a valid token.
	authIdentity string

	closeOnce sync.Once
	logger    *zap.Logger
}

var _ presence.Conn = (*Conn)(nil)

func newConn(ws *websocket.Conn, authIdentity string, logger *zap.Logger) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:           id,
		ws:           ws,
		send:         make(chan []byte, sendChanBuf),
		done:         make(chan struct{}),
		authIdentity: authIdentity,
		logger:       logger.With(zap.String("conn_id", id)),
	}
}

func (c *Conn) ID() string { return c.id }

// Deliver queues a server push.
func (c *Conn) Deliver(evt presence.Event) error {
	return c.write(outbound{Type: evt.Type, Payload: evt.Payload})
}

func (c *Conn) reply(id, typ string, payload any) error {
	return c.write(outbound{ID: id, Type: typ, Payload: payload})
}

func (c *Conn) write(msg outbound) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return apperr.ErrConnectionClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return apperr.ErrConnectionClosed
	default:
		c.logger.Warn("send queue full, dropping frame", zap.String("type", msg.Type))
		return ErrSendQueueFull
	}
}

// Close stops the write pump, which closes the socket. Idempotent.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.ws.Close()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("ws write error", zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Conn) extendReadDeadline() {
	_ = c.ws.SetReadDeadline(time.Now().Add(readDeadline))
}
