package session

import (
	"slices"

	"github.com/h3poteto/livecamera/internal/core"
	"github.com/h3poteto/livecamera/internal/domain"
)

// onFrame is the channel's unsolicited frame handler.
func (s *Session) onFrame(f domain.Frame) {
	if !s.post(func() { s.handleFrame(f) }) {
		s.log.Debug().Str("action", string(f.Action)).Msg("frame after close dropped")
	}
}

func (s *Session) handleFrame(f domain.Frame) {
	switch f.Action {
	case domain.ActionInit:
		s.handleInit(f)
	case domain.ActionNewProducers:
		s.handleNewProducers(f)
	case domain.ActionProducerClosed:
		s.handleProducerClosed(f)
	default:
		s.log.Warn().Str("action", string(f.Action)).Msg("unexpected frame")
	}
}

func (s *Session) handleInit(f domain.Frame) {
	if s.State() != Initializing || s.ch == nil {
		s.log.Warn().Str("state", s.State().String()).Msg("ignoring Init")
		return
	}
	var msg domain.ServerInit
	if err := f.Decode(&msg); err != nil {
		s.log.Warn().Err(err).Msg("dropping Init")
		return
	}
	s.setState(Negotiating)

	s.wg.Go(func() {
		local, err := s.engine.LoadCapabilities(s.ctx, msg.RouterRtpCapabilities)
		s.post(func() { s.setupTransports(&msg, local, err) })
	})
}

func (s *Session) setupTransports(msg *domain.ServerInit, local domain.RtpCapabilities, err error) {
	if s.State() != Negotiating {
		return
	}
	if err != nil {
		s.fail(&NegotiationError{Role: core.Outbound, Op: "load capabilities", Err: err})
		return
	}
	s.ch.Send(domain.NewSendRtpCapabilities(local))

	outOpts := msg.ProducerTransportOptions
	outOpts.ICEServers = s.opts.ICEServers
	out, err := s.engine.CreateOutboundTransport(outOpts, s.negotiationSink())
	if err != nil {
		s.fail(&NegotiationError{Role: core.Outbound, Op: "create transport", Err: err})
		return
	}
	if err := s.transports.Add(out); err != nil {
		out.Close()
		return
	}

	inOpts := msg.ConsumerTransportOptions
	inOpts.ICEServers = s.opts.ICEServers
	in, err := s.engine.CreateInboundTransport(inOpts, s.negotiationSink())
	if err != nil {
		s.fail(&NegotiationError{Role: core.Inbound, Op: "create transport", Err: err})
		return
	}
	if err := s.transports.Add(in); err != nil {
		in.Close()
	}
}

func (s *Session) markConnected(role core.Role) {
	if s.State() != Negotiating {
		return
	}
	if !s.transports.MarkConnected(role) || !s.transports.Connected() {
		return
	}
	s.setState(Ready)
	close(s.ready)

	ids := s.deferred
	s.deferred = nil
	for _, id := range ids {
		s.startConsume(id)
	}
}

func (s *Session) handleNewProducers(f domain.Frame) {
	var msg domain.NewProducers
	if err := f.Decode(&msg); err != nil {
		s.log.Warn().Err(err).Msg("dropping NewProducers")
		return
	}
	switch s.State() {
	case Ready:
		for _, id := range msg.IDs {
			s.startConsume(id)
		}
	case Closed:
	default:
		for _, id := range msg.IDs {
			if !slices.Contains(s.deferred, id) {
				s.deferred = append(s.deferred, id)
			}
		}
		s.log.Debug().Int("count", len(s.deferred)).Msg("deferring producers until ready")
	}
}

func (s *Session) handleProducerClosed(f domain.Frame) {
	var msg domain.ProducerClosed
	if err := f.Decode(&msg); err != nil {
		s.log.Warn().Err(err).Msg("dropping ProducerClosed")
		return
	}
	id := msg.ID

	if i := slices.Index(s.deferred, id); i >= 0 {
		s.deferred = slices.Delete(s.deferred, i, i+1)
		return
	}
	if job, ok := s.inflight[id]; ok {
		job.cancelled = true
		delete(s.inflight, id)
		s.log.Info().Str("producer", string(id)).Msg("consume cancelled")
		return
	}
	if _, ok := s.tracks.RemoveConsumer(id); !ok {
		return
	}
	s.log.Info().Str("producer", string(id)).Msg("remote track removed")
	if s.opts.OnRemoteTrackRemoved != nil {
		s.opts.OnRemoteTrackRemoved(id)
	}
}
