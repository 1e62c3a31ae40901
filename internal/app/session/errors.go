package session

import (
	"errors"
	"fmt"

	"github.com/h3poteto/livecamera/internal/core"
)

var (
	ErrNotReady = errors.New("session not ready")
	ErrClosed   = errors.New("session closed")
	// ErrAlreadyOpen is returned by Open on a session that left Idle.
	ErrAlreadyOpen = errors.New("session already opened")
)

// NegotiationError is the rejection fed to a transport when the peer could
// not confirm a connect or produce negotiation.
type NegotiationError struct {
	Role core.Role
	Op   string
	Err  error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("negotiation: %s %s: %v", e.Role, e.Op, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }
