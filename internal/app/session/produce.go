package session

import (
	"context"

	"github.com/h3poteto/livecamera/internal/core"
	"github.com/h3poteto/livecamera/internal/domain"
)

// ProduceLocalTrack publishes track through the outbound transport. An
// existing local producer is closed and announced as closed first. The
// session owns track once this returns without error.
func (s *Session) ProduceLocalTrack(ctx context.Context, track core.Track, hints ...core.EncodingHint) (domain.ProducerID, error) {
	s.actionMu.Lock()
	defer s.actionMu.Unlock()

	var (
		out core.Transport
		err error
	)
	if derr := s.do(func() {
		if s.State() != Ready {
			err = ErrNotReady
			return
		}
		h, _ := s.transports.Get(core.Outbound)
		out = h.Transport
		s.closeLocalProducer()
	}); derr != nil {
		return "", ErrNotReady
	}
	if err != nil {
		return "", err
	}

	prod, err := out.Produce(ctx, track, hints...)
	if err != nil {
		return "", err
	}

	if derr := s.do(func() {
		if s.State() != Ready {
			err = ErrClosed
			return
		}
		s.installProducer(&ProducerRecord{ID: prod.ID(), Producer: prod, Track: track})
	}); derr != nil {
		err = derr
	}
	if err != nil {
		prod.Close()
		return "", err
	}
	s.log.Info().Str("producer", string(prod.ID())).Str("kind", string(track.Kind())).Msg("local track produced")
	return prod.ID(), nil
}

// StopLocalProduce closes the local producer, if any, and tells the peer.
func (s *Session) StopLocalProduce(ctx context.Context) error {
	s.actionMu.Lock()
	defer s.actionMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return s.do(s.closeLocalProducer)
}

// installProducer makes rec the local producer. A producer already in the
// slot is announced as closed and released.
func (s *Session) installProducer(rec *ProducerRecord) {
	prev := s.tracks.SetProducer(rec)
	if prev == nil {
		return
	}
	s.ch.Send(domain.NewProducerClosed(prev.ID))
	prev.Close()
	s.log.Warn().Str("producer", string(prev.ID)).Str("replacement", string(rec.ID)).Msg("local producer replaced")
}

func (s *Session) closeLocalProducer() {
	rec := s.tracks.TakeProducer()
	if rec == nil {
		return
	}
	s.ch.Send(domain.NewProducerClosed(rec.ID))
	rec.Close()
	s.log.Info().Str("producer", string(rec.ID)).Msg("local producer closed")
}
