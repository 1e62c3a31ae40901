package session

import (
	"errors"

	"github.com/h3poteto/livecamera/internal/core"
	"github.com/rs/zerolog/log"
)

var ErrTransportExists = errors.New("transport already created")

type TransportHandle struct {
	Role      core.Role
	Transport core.Transport
	Connected bool
}

// TransportRegistry holds the outbound and inbound transport of a session.
// Each role can be filled once per session lifetime.
type TransportRegistry struct {
	handles map[core.Role]*TransportHandle
	created map[core.Role]bool
}

func NewTransportRegistry() *TransportRegistry {
	return &TransportRegistry{
		handles: make(map[core.Role]*TransportHandle),
		created: make(map[core.Role]bool),
	}
}

func (r *TransportRegistry) Add(t core.Transport) error {
	role := t.Role()
	if r.created[role] {
		log.Warn().Str("module", "session.transports").Str("role", role.String()).Msg("transport already created")
		return ErrTransportExists
	}
	r.created[role] = true
	r.handles[role] = &TransportHandle{Role: role, Transport: t}
	log.Info().Str("module", "session.transports").Str("role", role.String()).Str("id", string(t.ID())).Msg("transport added")
	return nil
}

func (r *TransportRegistry) Get(role core.Role) (*TransportHandle, bool) {
	h, ok := r.handles[role]
	return h, ok
}

// MarkConnected flags the handle of role as connected and reports whether
// that changed anything.
func (r *TransportRegistry) MarkConnected(role core.Role) bool {
	h, ok := r.handles[role]
	if !ok || h.Connected {
		return false
	}
	h.Connected = true
	return true
}

// Connected reports whether both transports exist and are connected.
func (r *TransportRegistry) Connected() bool {
	out, ok := r.handles[core.Outbound]
	if !ok || !out.Connected {
		return false
	}
	in, ok := r.handles[core.Inbound]
	return ok && in.Connected
}

// CloseAll closes and drops every handle. Roles stay consumed.
func (r *TransportRegistry) CloseAll() {
	for role, h := range r.handles {
		h.Transport.Close()
		delete(r.handles, role)
		log.Info().Str("module", "session.transports").Str("role", role.String()).Msg("transport closed")
	}
}
