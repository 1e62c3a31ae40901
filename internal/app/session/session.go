// Package session drives a client through an SFU room: it exchanges
// capabilities, connects the outbound and inbound transports and keeps the
// set of remote consumers and the local producer in step with the peer.
//
// All session state is owned by one loop goroutine. Inbound frames,
// negotiation events, caller actions and the results of round trips are
// posted to it as closures.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/h3poteto/livecamera/internal/core"
	"github.com/h3poteto/livecamera/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

type Options struct {
	// Dialer opens the signaling channel. Required.
	Dialer core.Dialer
	// ICEServers are handed to the engine with both transport bundles.
	ICEServers []domain.ICEServer

	// Callbacks run on the session loop and must not call back into the
	// session synchronously.
	OnRemoteTrackAdded   func(id domain.ProducerID, track core.Track)
	OnRemoteTrackRemoved func(id domain.ProducerID)
	OnStateChange        func(state State)

	// EventBuffer sizes the loop queue.
	EventBuffer int
}

type Session struct {
	engine core.Engine
	opts   Options
	log    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	events   chan func()
	postMu   sync.RWMutex
	stopping bool
	quit     chan struct{}
	stopped  chan struct{}

	state   atomic.Int32
	ready   chan struct{}
	stalled chan struct{}
	closed  chan struct{}

	// owned by the loop
	ch         core.SignalChannel
	transports *TransportRegistry
	tracks     *TrackRegistry
	inflight   map[domain.ProducerID]*consumeJob
	deferred   []domain.ProducerID
	connectErr *NegotiationError

	actionMu  sync.Mutex
	wg        conc.WaitGroup
	closeOnce sync.Once
	done      chan struct{}
}

func New(engine core.Engine, opts Options) *Session {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		engine:     engine,
		opts:       opts,
		log:        log.With().Str("module", "session").Logger(),
		ctx:        ctx,
		cancel:     cancel,
		events:     make(chan func(), opts.EventBuffer),
		quit:       make(chan struct{}),
		stopped:    make(chan struct{}),
		ready:      make(chan struct{}),
		stalled:    make(chan struct{}),
		closed:     make(chan struct{}),
		transports: NewTransportRegistry(),
		tracks:     NewTrackRegistry(),
		inflight:   make(map[domain.ProducerID]*consumeJob),
		done:       make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Session) run() {
	defer close(s.stopped)
	for {
		select {
		case fn := <-s.events:
			fn()
		case <-s.quit:
			for {
				select {
				case fn := <-s.events:
					fn()
				default:
					return
				}
			}
		}
	}
}

// post queues fn on the loop. It reports false once the loop is stopping.
func (s *Session) post(fn func()) bool {
	s.postMu.RLock()
	defer s.postMu.RUnlock()
	if s.stopping {
		return false
	}
	s.events <- fn
	return true
}

// do runs fn on the loop and waits for it.
func (s *Session) do(fn func()) error {
	finished := make(chan struct{})
	if !s.post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}
	<-finished
	return nil
}

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	if prev == st {
		return
	}
	s.log.Info().Str("from", prev.String()).Str("to", st.String()).Msg("state changed")
	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(st)
	}
}

// Open dials endpoint and announces the client with Init.
func (s *Session) Open(ctx context.Context, endpoint string) error {
	var err error
	if derr := s.do(func() {
		if st := s.State(); st != Idle {
			err = fmt.Errorf("%w: %s", ErrAlreadyOpen, st)
			return
		}
		s.setState(Initializing)
	}); derr != nil {
		return derr
	}
	if err != nil {
		return err
	}

	ch, err := s.opts.Dialer(ctx, endpoint, s.onFrame)
	if err != nil {
		_ = s.do(func() {
			if s.State() == Initializing {
				s.setState(Idle)
			}
		})
		return err
	}

	if derr := s.do(func() {
		if s.State() == Closed {
			err = ErrClosed
			return
		}
		s.ch = ch
		ch.Send(domain.NewClientInit())
	}); derr != nil {
		err = derr
	}
	if err != nil {
		_ = ch.Close()
		return err
	}

	go s.watch(ch.Done())
	return nil
}

// watch closes the session when the channel goes away underneath it.
func (s *Session) watch(lost <-chan struct{}) {
	select {
	case <-lost:
		if s.State() != Closed {
			s.log.Warn().Msg("signaling channel lost")
		}
		_ = s.Close()
	case <-s.closed:
	}
}

// WaitReady blocks until the session is Ready. It returns the
// *NegotiationError of a transport that failed to connect, since the session
// then stays in Negotiating until closed.
func (s *Session) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-s.stalled:
		return s.connectErr
	case <-s.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when teardown has finished.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close tears the session down: pending requests first, then transports,
// then records, then the channel. It is idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		_ = s.do(s.teardown)

		s.postMu.Lock()
		s.stopping = true
		s.postMu.Unlock()
		close(s.quit)
		<-s.stopped

		s.wg.Wait()
		close(s.done)
		s.log.Info().Msg("session closed")
	})
	<-s.done
	return nil
}

func (s *Session) teardown() {
	if s.State() == Closed {
		return
	}
	s.setState(Closed)
	close(s.closed)

	if s.ch != nil {
		s.ch.CancelPending(core.ErrChannelClosed)
	}
	s.cancel()
	s.transports.CloseAll()

	for id, job := range s.inflight {
		job.cancelled = true
		delete(s.inflight, id)
	}
	s.deferred = nil
	if p := s.tracks.TakeProducer(); p != nil {
		if s.ch != nil {
			s.ch.Send(domain.NewProducerClosed(p.ID))
		}
		p.Close()
	}
	s.tracks.CloseAll()

	if s.ch != nil {
		_ = s.ch.Close()
	}
}

// fail closes the session from inside the loop.
func (s *Session) fail(err error) {
	s.log.Error().Err(err).Msg("session failed")
	go func() { _ = s.Close() }()
}

type ConsumerInfo struct {
	ProducerID domain.ProducerID `json:"producerId"`
	ConsumerID domain.ConsumerID `json:"consumerId"`
	Kind       domain.MediaKind  `json:"kind"`
}

type Snapshot struct {
	State     State             `json:"state"`
	Producer  domain.ProducerID `json:"producer,omitempty"`
	Consumers []ConsumerInfo    `json:"consumers"`
}

// Snapshot reports the current state and records.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{State: s.State(), Consumers: []ConsumerInfo{}}
	_ = s.do(func() {
		snap.State = s.State()
		if p, ok := s.tracks.Producer(); ok {
			snap.Producer = p.ID
		}
		for _, rec := range s.tracks.Consumers() {
			snap.Consumers = append(snap.Consumers, ConsumerInfo{
				ProducerID: rec.ProducerID,
				ConsumerID: rec.ConsumerID,
				Kind:       rec.Kind,
			})
		}
	})
	return snap
}
