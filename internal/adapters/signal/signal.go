// Package signal is the websocket message channel to the SFU signaling peer.
// It correlates requests with their responses and hands every other frame to
// a single handler.
package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/h3poteto/livecamera/internal/core"
	"github.com/h3poteto/livecamera/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// WSConn is an indirection over *websocket.Conn to ease testing.
type WSConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

type Options struct {
	InvokeTimeout time.Duration
	WriteWait     time.Duration
	PongWait      time.Duration
	PingPeriod    time.Duration
	ReadLimit     int64
	SendBuffer    int
	Header        http.Header
	Dialer        *websocket.Dialer
}

func DefaultOptions() Options {
	return Options{
		InvokeTimeout: 10 * time.Second,
		WriteWait:     5 * time.Second,
		PongWait:      60 * time.Second,
		PingPeriod:    54 * time.Second,
		ReadLimit:     1 << 20,
		SendBuffer:    32,
	}
}

type Channel struct {
	conn    WSConn
	opts    Options
	handler core.FrameHandler
	pending *pendingSet
	log     zerolog.Logger

	send chan []byte

	mu     sync.RWMutex
	closed bool

	closeOnce sync.Once
	done      chan struct{}
}

var _ core.SignalChannel = (*Channel)(nil)

// Dial connects to endpoint and starts the pumps. Frames that do not answer
// a pending Invoke are passed to handler on the read goroutine.
func Dial(ctx context.Context, endpoint string, opts Options, handler core.FrameHandler) (*Channel, error) {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, _, err := dialer.DialContext(ctx, endpoint, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnectFailed, endpoint, err)
	}
	log.Info().Str("module", "signal").Str("endpoint", endpoint).Msg("connected")
	return NewChannel(ws, opts, handler, endpoint), nil
}

// NewDialer binds opts into a core.Dialer.
func NewDialer(opts Options) core.Dialer {
	return func(ctx context.Context, endpoint string, handler core.FrameHandler) (core.SignalChannel, error) {
		ch, err := Dial(ctx, endpoint, opts, handler)
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
}

// NewChannel wraps an already established connection.
func NewChannel(conn WSConn, opts Options, handler core.FrameHandler, name string) *Channel {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultOptions().SendBuffer
	}
	c := &Channel{
		conn:    conn,
		opts:    opts,
		handler: handler,
		pending: newPendingSet(),
		log:     log.With().Str("module", "signal").Str("endpoint", name).Logger(),
		send:    make(chan []byte, opts.SendBuffer),
		done:    make(chan struct{}),
	}
	go c.writePump()
	go c.readPump()
	return c
}

func (c *Channel) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrChannelClosed
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

// Send serializes msg and queues it. Errors are logged, not returned.
func (c *Channel) Send(msg domain.Message) {
	h := msg.Header()
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error().Err(err).Str("action", string(h.Action)).Msg("send marshal")
		return
	}
	if err := c.TrySend(data); err != nil {
		c.log.Warn().Err(err).Str("action", string(h.Action)).Msg("send dropped")
	}
}

// Invoke stamps msg with a fresh request id, sends it and waits for the
// response carrying that id. It fails with ErrTimeout once InvokeTimeout
// elapses, with ErrChannelClosed if the channel goes away first and with a
// *ProtocolError if the response action is not expect.
func (c *Channel) Invoke(ctx context.Context, msg domain.Message, expect domain.Action) (domain.Frame, error) {
	h := msg.Header()
	h.RequestID = uuid.NewString()

	call := newPendingCall(h.RequestID, expect)
	if m, ok := msg.(domain.ResponseMatcher); ok {
		call.match = m.MatchesResponse
	}
	if err := c.pending.add(call); err != nil {
		return domain.Frame{}, err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		c.pending.remove(call.id)
		return domain.Frame{}, fmt.Errorf("marshal %s: %w", h.Action, err)
	}
	if err := c.TrySend(data); err != nil {
		c.pending.remove(call.id)
		return domain.Frame{}, fmt.Errorf("invoke %s: %w", h.Action, err)
	}

	var timeout <-chan time.Time
	if c.opts.InvokeTimeout > 0 {
		t := time.NewTimer(c.opts.InvokeTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case res := <-call.result:
		return res.frame, res.err
	case <-timeout:
		c.pending.remove(call.id)
		return domain.Frame{}, fmt.Errorf("%w: %s after %s", ErrTimeout, h.Action, c.opts.InvokeTimeout)
	case <-ctx.Done():
		c.pending.remove(call.id)
		return domain.Frame{}, ctx.Err()
	}
}

// CancelPending fails every outstanding Invoke with err. The connection
// stays open.
func (c *Channel) CancelPending(err error) {
	if n := c.pending.failAll(err); n > 0 {
		c.log.Debug().Err(err).Int("count", n).Msg("pending invokes cancelled")
	}
}

// Close fails pending invokes with ErrChannelClosed and releases the
// connection. It is idempotent.
func (c *Channel) Close() error {
	c.shutdown("closed by owner")
	return nil
}

func (c *Channel) Done() <-chan struct{} { return c.done }

func (c *Channel) shutdown(reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()

		c.pending.failAll(ErrChannelClosed)
		close(c.done)
		c.log.Info().Str("reason", reason).Msg("channel closed")
	})
}

func (c *Channel) dispatch(data []byte) {
	frame, err := domain.ParseFrame(data)
	if err != nil {
		c.log.Warn().Err(err).Msg("dropping frame")
		return
	}

	if call, ok := c.pending.claim(frame); ok {
		if call.expect != frame.Action {
			call.resolve(domain.Frame{}, &ProtocolError{Expected: call.expect, Got: frame.Action})
			return
		}
		call.resolve(frame, nil)
		return
	}

	if frame.RequestID != "" {
		c.log.Debug().Str("action", string(frame.Action)).Str("requestId", frame.RequestID).Msg("no pending request, dropping response")
		return
	}
	if c.handler == nil {
		c.log.Warn().Str("action", string(frame.Action)).Msg("no handler")
		return
	}
	c.handler(frame)
}
