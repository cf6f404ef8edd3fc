package server

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/KlinikX/aione/internal/protocol"
	"github.com/KlinikX/aione/internal/stream"
)

const writeTimeout = 10 * time.Second

// wsConn adapts a gorilla connection to stream.Conn. Writes are serialized
// so the keep-alive and the receive loop can share the socket.
type wsConn struct {
	socket *websocket.Conn
	mu     sync.Mutex
	closed atomic.Bool
}

func newWSConn(socket *websocket.Conn) *wsConn {
	return &wsConn{socket: socket}
}

// ReadMessage blocks for the next text or binary frame
func (c *wsConn) ReadMessage() (protocol.Inbound, error) {
	_, data, err := c.socket.ReadMessage()
	if err != nil {
		if c.isDisconnect(err) {
			return protocol.Inbound{}, stream.ErrDisconnected
		}
		return protocol.Inbound{}, err
	}

	return protocol.ParseInbound(data)
}

// isDisconnect reports whether err means the peer or Close ended the
// connection rather than a protocol failure
func (c *wsConn) isDisconnect(err error) bool {
	if c.closed.Load() {
		return true
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return true
	}

	return errors.Is(err, net.ErrClosed)
}

// WriteMessage sends msg as one text frame
func (c *wsConn) WriteMessage(msg protocol.Outbound) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return stream.ErrDisconnected
	}

	if err := c.socket.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	return c.socket.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and closes the socket, unblocking ReadMessage
func (c *wsConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	deadline := time.Now().Add(time.Second)
	_ = c.socket.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)

	return c.socket.Close()
}
