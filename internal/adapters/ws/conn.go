package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mkraev/relay/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

const writeWait = 5 * time.Second

// wsConn wraps one subscriber socket with a buffered outbound channel.
// TrySend never blocks; a full buffer is the backpressure signal. writeMu
// serializes every socket write — gorilla allows one writer at a time and
// both the write pump and Send hit the wire.
type wsConn struct {
	conn *websocket.Conn
	send chan []byte

	writeMu sync.Mutex

	mu     sync.RWMutex
	closed bool
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{
		conn: conn,
		send: make(chan []byte, 32),
	}
}

func (c *wsConn) TrySend(payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- payload:
	default:
		return ErrBackpressure
	}
	return nil
}

// Send writes the payload to the socket immediately, bypassing the queue.
// Used for the room-expired notification, which a following Close would
// otherwise discard from the send buffer.
func (c *wsConn) Send(payload []byte) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return errors.New("connection closed")
	}
	c.mu.RUnlock()
	return c.write(websocket.TextMessage, payload)
}

func (c *wsConn) write(messageType int, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, payload)
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "ws.conn").Msg("writePump ctx done")
			return
		case payload, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "ws.conn").Msg("writePump channel closed")
				return
			}
			if err := c.write(websocket.TextMessage, payload); err != nil {
				log.Error().Err(err).Str("module", "ws.conn").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, sid core.SubscriberID, c *wsConn) {
	defer func() {
		log.Info().Str("module", "ws.conn").Str("sid", string(sid)).Msg("readPump closing")
		ctl.Hub.Detach(sid)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "ws.conn").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "ws.conn").Str("sid", string(sid)).Msg("readPump read error")
				return
			}
			ctl.handleMessage(sid, c, data)
		}
	}
}
