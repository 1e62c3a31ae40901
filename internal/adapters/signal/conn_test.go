package signal

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// blockedConn accepts one write and then blocks every writer until closed.
type blockedConn struct {
	writing chan struct{}
	closed  chan struct{}
	once    sync.Once
	first   sync.Once
}

func newBlockedConn() *blockedConn {
	return &blockedConn{writing: make(chan struct{}), closed: make(chan struct{})}
}

func (c *blockedConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("closed")
}

func (c *blockedConn) WriteMessage(mt int, data []byte) error {
	if mt == websocket.PingMessage {
		return nil
	}
	c.first.Do(func() { close(c.writing) })
	<-c.closed
	return errors.New("closed")
}

func (c *blockedConn) SetWriteDeadline(time.Time) error  { return nil }
func (c *blockedConn) SetReadDeadline(time.Time) error   { return nil }
func (c *blockedConn) SetReadLimit(int64)                {}
func (c *blockedConn) SetPongHandler(func(string) error) {}

func (c *blockedConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}
