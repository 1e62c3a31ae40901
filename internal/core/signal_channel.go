package core

import (
	"context"

	"github.com/h3poteto/livecamera/internal/domain"
)

// SignalChannel abstracts the persistent message channel to the SFU.
// Owned by the session; the session must Close() it.
type SignalChannel interface {
	// Send is fire and forget. Failures are logged, never returned.
	Send(msg domain.Message)
	// Invoke sends msg and waits for its correlated response, which must
	// carry the expect action.
	Invoke(ctx context.Context, msg domain.Message, expect domain.Action) (domain.Frame, error)
	// CancelPending fails every outstanding Invoke with err.
	CancelPending(err error)
	Close() error
	// Done is closed once the channel is gone.
	Done() <-chan struct{}
}

// FrameHandler receives frames that no pending Invoke claimed.
type FrameHandler func(domain.Frame)

// Dialer opens a SignalChannel to endpoint.
type Dialer func(ctx context.Context, endpoint string, handler FrameHandler) (SignalChannel, error)
