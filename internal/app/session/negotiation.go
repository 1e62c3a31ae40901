package session

import (
	"errors"

	"github.com/h3poteto/livecamera/internal/core"
	"github.com/h3poteto/livecamera/internal/domain"
)

var errMissingProducerID = errors.New("produced without id")

// negotiationSink hands engine events to the loop, rejecting them once the
// session is gone.
func (s *Session) negotiationSink() core.NegotiationSink {
	return func(ev core.NegotiationEvent) {
		if !s.post(func() { s.handleNegotiation(ev) }) {
			ev.Completion.Reject(ErrClosed)
		}
	}
}

func (s *Session) handleNegotiation(ev core.NegotiationEvent) {
	if s.State() == Closed || s.ch == nil {
		ev.Completion.Reject(ErrClosed)
		return
	}
	ch := s.ch

	switch ev.Kind {
	case core.ConnectNegotiation:
		msg, expect := domain.NewConnectProducerTransport(ev.DtlsParameters), domain.ActionConnectedProducerTransport
		if ev.Role == core.Inbound {
			msg, expect = domain.NewConnectConsumerTransport(ev.DtlsParameters), domain.ActionConnectedConsumerTransport
		}
		s.wg.Go(func() {
			if _, err := ch.Invoke(s.ctx, msg, expect); err != nil {
				s.log.Error().Err(err).Str("role", ev.Role.String()).Msg("connect negotiation failed")
				nerr := &NegotiationError{Role: ev.Role, Op: "connect", Err: err}
				ev.Completion.Reject(nerr)
				s.post(func() { s.connectFailed(nerr) })
				return
			}
			ev.Completion.Accept("")
			s.post(func() { s.markConnected(ev.Role) })
		})

	case core.ProduceNegotiation:
		msg := domain.NewProduce(ev.MediaKind, ev.RtpParameters)
		s.wg.Go(func() {
			f, err := ch.Invoke(s.ctx, msg, domain.ActionProduced)
			if err == nil {
				var resp domain.Produced
				if err = f.Decode(&resp); err == nil && resp.ID == "" {
					err = errMissingProducerID
				}
				if err == nil {
					ev.Completion.Accept(resp.ID)
					return
				}
			}
			s.log.Error().Err(err).Msg("produce negotiation failed")
			ev.Completion.Reject(&NegotiationError{Role: core.Outbound, Op: "produce", Err: err})
		})

	default:
		ev.Completion.Reject(&NegotiationError{Role: ev.Role, Op: ev.Kind.String(), Err: errors.New("unknown negotiation")})
	}
}

// connectFailed records the first failed connect negotiation. The transport
// is not connected again, so the session stays in Negotiating and WaitReady
// reports err.
func (s *Session) connectFailed(err *NegotiationError) {
	if s.State() != Negotiating || s.connectErr != nil {
		return
	}
	s.connectErr = err
	close(s.stalled)
	s.log.Warn().Err(err).Str("role", err.Role.String()).Msg("transport will not connect, session cannot become ready")
}
