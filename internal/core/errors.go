package core

import "errors"

// ErrChannelClosed resolves every request still waiting when the signaling
// channel goes away.
var ErrChannelClosed = errors.New("channel closed")
