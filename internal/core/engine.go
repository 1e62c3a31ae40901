package core

import (
	"context"

	"github.com/h3poteto/livecamera/internal/domain"
)

type Role int

const (
	Outbound Role = iota
	Inbound
)

func (r Role) String() string {
	switch r {
	case Outbound:
		return "outbound"
	case Inbound:
		return "inbound"
	default:
		return "unknown"
	}
}

// Track is a media track handed across the engine boundary by reference.
// The session never looks inside it.
type Track interface {
	ID() string
	Kind() domain.MediaKind
	// Stop releases the track. Stopping a stopped track is a no-op.
	Stop()
}

// EncodingHint tunes one outbound encoding.
type EncodingHint struct {
	MaxBitrate uint64
	Dtx        bool
}

// ConsumeParams is what the SFU returned for a Consume request.
type ConsumeParams struct {
	ID            domain.ConsumerID
	ProducerID    domain.ProducerID
	Kind          domain.MediaKind
	RtpParameters domain.RtpParameters
}

type Producer interface {
	ID() domain.ProducerID
	Kind() domain.MediaKind
	Close()
}

type Consumer interface {
	ID() domain.ConsumerID
	ProducerID() domain.ProducerID
	Kind() domain.MediaKind
	Track() Track
	Close()
}

// Transport is one engine owned ICE/DTLS connection. Negotiation it needs
// from the signaling peer is raised as NegotiationEvent values on the sink
// given at creation.
type Transport interface {
	ID() domain.TransportID
	Role() Role
	// Produce offers a local track. Outbound transports only.
	Produce(ctx context.Context, track Track, hints ...EncodingHint) (Producer, error)
	// Consume materializes a remote producer. Inbound transports only.
	Consume(ctx context.Context, params ConsumeParams) (Consumer, error)
	// Close is idempotent.
	Close()
}

// Engine is the media engine surface the signaling session drives.
type Engine interface {
	// LoadCapabilities takes the router capabilities and returns the local
	// capabilities derived from them.
	LoadCapabilities(ctx context.Context, router domain.RtpCapabilities) (domain.RtpCapabilities, error)
	CreateOutboundTransport(opts domain.TransportOptions, sink NegotiationSink) (Transport, error)
	CreateInboundTransport(opts domain.TransportOptions, sink NegotiationSink) (Transport, error)
}
