package core

import (
	"context"
	"sync"

	"github.com/h3poteto/livecamera/internal/domain"
)

type NegotiationKind int

const (
	// ConnectNegotiation carries local DTLS parameters that the peer must
	// accept before the transport can connect.
	ConnectNegotiation NegotiationKind = iota
	// ProduceNegotiation asks the peer to create a producer for a new local
	// track and is accepted with the producer id it assigned.
	ProduceNegotiation
)

func (k NegotiationKind) String() string {
	switch k {
	case ConnectNegotiation:
		return "connect"
	case ProduceNegotiation:
		return "produce"
	default:
		return "unknown"
	}
}

type NegotiationEvent struct {
	Kind NegotiationKind
	Role Role

	DtlsParameters domain.DtlsParameters

	MediaKind     domain.MediaKind
	RtpParameters domain.RtpParameters

	Completion *Completion
}

// NegotiationSink receives negotiation events raised by a transport. It must
// not block.
type NegotiationSink func(NegotiationEvent)

func NewConnectNegotiation(role Role, params domain.DtlsParameters) NegotiationEvent {
	return NegotiationEvent{
		Kind:           ConnectNegotiation,
		Role:           role,
		DtlsParameters: params,
		Completion:     NewCompletion(),
	}
}

func NewProduceNegotiation(kind domain.MediaKind, params domain.RtpParameters) NegotiationEvent {
	return NegotiationEvent{
		Kind:          ProduceNegotiation,
		Role:          Outbound,
		MediaKind:     kind,
		RtpParameters: params,
		Completion:    NewCompletion(),
	}
}

// Completion is the single use accept/reject handle of a negotiation event.
// Only the first Accept or Reject counts.
type Completion struct {
	once sync.Once
	done chan struct{}
	id   domain.ProducerID
	err  error
}

func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Accept resolves the negotiation. id is the producer id for produce
// negotiations and empty for connect.
func (c *Completion) Accept(id domain.ProducerID) {
	c.once.Do(func() {
		c.id = id
		close(c.done)
	})
}

func (c *Completion) Reject(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

func (c *Completion) Done() <-chan struct{} { return c.done }

func (c *Completion) Wait(ctx context.Context) (domain.ProducerID, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.done:
		return c.id, c.err
	}
}
