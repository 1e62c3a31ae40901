package signal

import (
	"errors"
	"fmt"

	"github.com/h3poteto/livecamera/internal/core"
	"github.com/h3poteto/livecamera/internal/domain"
)

var (
	ErrConnectFailed = errors.New("connect failed")
	ErrChannelClosed = core.ErrChannelClosed
	ErrTimeout       = errors.New("invoke timed out")
	ErrBackpressure  = errors.New("backpressure")
	// ErrMalformedFrame is returned for payloads that are not a JSON object
	// with an action.
	ErrMalformedFrame = domain.ErrMalformedFrame
)

// ProtocolError reports a correlated response whose action differs from the
// one the request expected.
type ProtocolError struct {
	Expected domain.Action
	Got      domain.Action
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: expected %s, got %s", e.Expected, e.Got)
}
