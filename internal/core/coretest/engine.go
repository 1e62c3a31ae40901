// Package coretest provides an in-process media engine that speaks the
// negotiation protocol without any ICE, DTLS or RTP underneath.
package coretest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/h3poteto/livecamera/internal/core"
	"github.com/h3poteto/livecamera/internal/domain"
)

var ErrClosed = errors.New("coretest: transport closed")

type Engine struct {
	// LoadErr and CreateErr fail the matching engine step.
	LoadErr   error
	CreateErr error

	mu         sync.Mutex
	transports []*Transport
}

var _ core.Engine = (*Engine)(nil)

func NewEngine() *Engine {
	return &Engine{}
}

// LoadCapabilities echoes the router codecs back as local capabilities.
func (e *Engine) LoadCapabilities(ctx context.Context, router domain.RtpCapabilities) (domain.RtpCapabilities, error) {
	if e.LoadErr != nil {
		return domain.RtpCapabilities{}, e.LoadErr
	}
	local := domain.RtpCapabilities{}
	local.Codecs = append(local.Codecs, router.Codecs...)
	return local, ctx.Err()
}

func (e *Engine) CreateOutboundTransport(opts domain.TransportOptions, sink core.NegotiationSink) (core.Transport, error) {
	return e.create(core.Outbound, opts, sink)
}

func (e *Engine) CreateInboundTransport(opts domain.TransportOptions, sink core.NegotiationSink) (core.Transport, error) {
	return e.create(core.Inbound, opts, sink)
}

func (e *Engine) create(role core.Role, opts domain.TransportOptions, sink core.NegotiationSink) (core.Transport, error) {
	if e.CreateErr != nil {
		return nil, e.CreateErr
	}
	t := &Transport{
		id:        opts.ID,
		role:      role,
		opts:      opts,
		sink:      sink,
		connected: make(chan struct{}),
		done:      make(chan struct{}),
	}
	e.mu.Lock()
	e.transports = append(e.transports, t)
	e.mu.Unlock()

	go t.connect()
	return t, nil
}

// Transports returns every transport created so far.
func (e *Engine) Transports() []*Transport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Transport(nil), e.transports...)
}

// Transport returns the first transport created with role.
func (e *Engine) Transport(role core.Role) *Transport {
	for _, t := range e.Transports() {
		if t.role == role {
			return t
		}
	}
	return nil
}

type Transport struct {
	id   domain.TransportID
	role core.Role
	opts domain.TransportOptions
	sink core.NegotiationSink

	mids       atomic.Int32
	closeCount atomic.Int32
	closeOnce  sync.Once
	done       chan struct{}

	connected  chan struct{}
	connectErr error

	mu        sync.Mutex
	producers []*Producer
	consumers []*Consumer
}

func (t *Transport) connect() {
	ev := core.NewConnectNegotiation(t.role, domain.DtlsParameters{
		Role:         domain.DtlsRoleClient,
		Fingerprints: []domain.DtlsFingerprint{{Algorithm: "sha-256", Value: "01:02:03"}},
	})
	t.sink(ev)
	select {
	case <-ev.Completion.Done():
		_, t.connectErr = ev.Completion.Wait(context.Background())
	case <-t.done:
		t.connectErr = ErrClosed
	}
	close(t.connected)
}

func (t *Transport) ID() domain.TransportID { return t.id }
func (t *Transport) Role() core.Role        { return t.role }

// Options are the parameters the transport was created with.
func (t *Transport) Options() domain.TransportOptions { return t.opts }

// Connected is closed once the connect negotiation resolved.
func (t *Transport) Connected() <-chan struct{} { return t.connected }

// ConnectErr is the connect negotiation result, valid after Connected.
func (t *Transport) ConnectErr() error { return t.connectErr }

func (t *Transport) Produce(ctx context.Context, track core.Track, hints ...core.EncodingHint) (core.Producer, error) {
	if t.role != core.Outbound {
		return nil, fmt.Errorf("coretest: produce on %s transport", t.role)
	}
	select {
	case <-t.done:
		return nil, ErrClosed
	default:
	}

	mid := t.mids.Add(1) - 1
	params := domain.RtpParameters{
		Mid:       fmt.Sprint(mid),
		Codecs:    []domain.RtpCodecParameters{{MimeType: "video/VP8", PayloadType: 101, ClockRate: 90000}},
		Encodings: []domain.RtpEncodingParameters{{SSRC: 2222 + uint32(mid)}},
		Rtcp:      &domain.RtcpParameters{Cname: "coretest"},
	}
	for i, h := range hints {
		if i < len(params.Encodings) {
			params.Encodings[i].MaxBitrate = h.MaxBitrate
			params.Encodings[i].Dtx = h.Dtx
		}
	}
	ev := core.NewProduceNegotiation(track.Kind(), params)
	t.sink(ev)

	var (
		id  domain.ProducerID
		err error
	)
	select {
	case <-t.done:
		return nil, ErrClosed
	case <-ev.Completion.Done():
		id, err = ev.Completion.Wait(ctx)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	p := &Producer{id: id, kind: track.Kind(), params: params}
	t.mu.Lock()
	t.producers = append(t.producers, p)
	t.mu.Unlock()
	return p, nil
}

func (t *Transport) Consume(ctx context.Context, params core.ConsumeParams) (core.Consumer, error) {
	if t.role != core.Inbound {
		return nil, fmt.Errorf("coretest: consume on %s transport", t.role)
	}
	select {
	case <-t.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	c := &Consumer{
		id:         params.ID,
		producerID: params.ProducerID,
		kind:       params.Kind,
		track:      NewTrack(params.Kind),
	}
	t.mu.Lock()
	t.consumers = append(t.consumers, c)
	t.mu.Unlock()
	return c, nil
}

func (t *Transport) Close() {
	t.closeCount.Add(1)
	t.closeOnce.Do(func() { close(t.done) })
}

// CloseCount is the number of Close calls seen.
func (t *Transport) CloseCount() int { return int(t.closeCount.Load()) }

func (t *Transport) Producers() []*Producer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Producer(nil), t.producers...)
}

func (t *Transport) Consumers() []*Consumer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Consumer(nil), t.consumers...)
}

type Producer struct {
	id     domain.ProducerID
	kind   domain.MediaKind
	params domain.RtpParameters
	closes atomic.Int32
}

func (p *Producer) ID() domain.ProducerID               { return p.id }
func (p *Producer) Kind() domain.MediaKind              { return p.kind }
func (p *Producer) RtpParameters() domain.RtpParameters { return p.params }
func (p *Producer) Close()                              { p.closes.Add(1) }
func (p *Producer) Closed() bool                        { return p.closes.Load() > 0 }

type Consumer struct {
	id         domain.ConsumerID
	producerID domain.ProducerID
	kind       domain.MediaKind
	track      *Track
	closes     atomic.Int32
}

func (c *Consumer) ID() domain.ConsumerID         { return c.id }
func (c *Consumer) ProducerID() domain.ProducerID { return c.producerID }
func (c *Consumer) Kind() domain.MediaKind        { return c.kind }
func (c *Consumer) Track() core.Track             { return c.track }
func (c *Consumer) Close()                        { c.closes.Add(1) }
func (c *Consumer) Closed() bool                  { return c.closes.Load() > 0 }

// FakeTrack returns the concrete track for assertions.
func (c *Consumer) FakeTrack() *Track { return c.track }

// Track counts Stop calls.
type Track struct {
	id    string
	kind  domain.MediaKind
	stops atomic.Int32
}

func NewTrack(kind domain.MediaKind) *Track {
	return &Track{id: uuid.NewString(), kind: kind}
}

func (t *Track) ID() string             { return t.id }
func (t *Track) Kind() domain.MediaKind { return t.kind }
func (t *Track) Stop()                  { t.stops.Add(1) }
func (t *Track) StopCount() int         { return int(t.stops.Load()) }
