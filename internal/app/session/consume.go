package session

import (
	"context"
	"fmt"

	"github.com/h3poteto/livecamera/internal/core"
	"github.com/h3poteto/livecamera/internal/domain"
)

type consumeJob struct {
	id        domain.ProducerID
	cancelled bool
}

// startConsume runs the Consume round trip for one remote producer. Jobs
// for different producers run independently.
func (s *Session) startConsume(id domain.ProducerID) {
	if _, ok := s.tracks.Consumer(id); ok {
		s.log.Debug().Str("producer", string(id)).Msg("already consuming")
		return
	}
	if _, ok := s.inflight[id]; ok {
		s.log.Debug().Str("producer", string(id)).Msg("consume in flight")
		return
	}
	in, ok := s.transports.Get(core.Inbound)
	if !ok {
		s.log.Error().Str("producer", string(id)).Msg("no inbound transport")
		return
	}

	job := &consumeJob{id: id}
	s.inflight[id] = job
	ch, transport := s.ch, in.Transport

	s.wg.Go(func() {
		cons, err := consume(s.ctx, ch, transport, id)
		if !s.post(func() { s.finishConsume(job, cons, err) }) && cons != nil {
			cons.Track().Stop()
			cons.Close()
		}
	})
}

func consume(ctx context.Context, ch core.SignalChannel, t core.Transport, id domain.ProducerID) (core.Consumer, error) {
	f, err := ch.Invoke(ctx, domain.NewConsume(id), domain.ActionConsumed)
	if err != nil {
		return nil, err
	}
	var resp domain.Consumed
	if err := f.Decode(&resp); err != nil {
		return nil, err
	}
	if resp.ProducerID != "" && resp.ProducerID != id {
		return nil, fmt.Errorf("consumed %s for %s", resp.ProducerID, id)
	}
	return t.Consume(ctx, core.ConsumeParams{
		ID:            resp.ID,
		ProducerID:    id,
		Kind:          resp.Kind,
		RtpParameters: resp.RtpParameters,
	})
}

func (s *Session) finishConsume(job *consumeJob, cons core.Consumer, err error) {
	if s.inflight[job.id] == job {
		delete(s.inflight, job.id)
	}
	if err != nil {
		if !job.cancelled {
			s.log.Error().Err(err).Str("producer", string(job.id)).Msg("consume failed")
		}
		return
	}
	rec := &ConsumerRecord{
		ProducerID: job.id,
		ConsumerID: cons.ID(),
		Kind:       cons.Kind(),
		Consumer:   cons,
		Track:      cons.Track(),
	}
	if job.cancelled || s.State() != Ready {
		rec.Close()
		return
	}
	s.ch.Send(domain.NewResume(cons.ID()))
	if err := s.tracks.AddConsumer(rec); err != nil {
		rec.Close()
		return
	}
	s.log.Info().Str("producer", string(job.id)).Str("consumer", string(cons.ID())).Str("kind", string(cons.Kind())).Msg("remote track added")
	if s.opts.OnRemoteTrackAdded != nil {
		s.opts.OnRemoteTrackAdded(job.id, rec.Track)
	}
}
