package signaltest

import (
	"fmt"
	"sync"

	"github.com/h3poteto/livecamera/internal/domain"
)

// SFU scripts the happy path of a mediasoup style room on top of a Peer:
// it answers Init, acknowledges both transport connects, assigns producer
// ids and returns consumer parameters for every Consume.
type SFU struct {
	*Peer

	mu        sync.Mutex
	produced  int
	holdInit  bool
	consumeFn func(id domain.ProducerID) (domain.Consumed, bool)
}

func NewSFU(p *Peer) *SFU {
	s := &SFU{Peer: p}
	p.Handle(domain.ActionInit, func(p *Peer, f domain.Frame) {
		s.mu.Lock()
		hold := s.holdInit
		s.mu.Unlock()
		if !hold {
			p.Push(ServerInit())
		}
	})
	p.Handle(domain.ActionConnectProducerTransport, func(p *Peer, f domain.Frame) {
		p.Reply(f, domain.NewConnected(domain.ActionConnectedProducerTransport))
	})
	p.Handle(domain.ActionConnectConsumerTransport, func(p *Peer, f domain.Frame) {
		p.Reply(f, domain.NewConnected(domain.ActionConnectedConsumerTransport))
	})
	p.Handle(domain.ActionProduce, func(p *Peer, f domain.Frame) {
		s.mu.Lock()
		s.produced++
		id := domain.ProducerID(fmt.Sprintf("local-%d", s.produced))
		s.mu.Unlock()
		p.Reply(f, domain.NewProduced(id))
	})
	p.Handle(domain.ActionConsume, func(p *Peer, f domain.Frame) {
		var req domain.Consume
		if err := f.Decode(&req); err != nil {
			p.t.Errorf("signaltest: consume: %v", err)
			return
		}
		resp := Consumed(req.ProducerID)
		s.mu.Lock()
		fn := s.consumeFn
		s.mu.Unlock()
		if fn != nil {
			var ok bool
			if resp, ok = fn(req.ProducerID); !ok {
				return
			}
		}
		p.Reply(f, &resp)
	})
	return s
}

// HoldInit stops the SFU from answering Init so tests can drive it.
func (s *SFU) HoldInit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdInit = true
}

// OnConsume overrides the Consume answer. Returning false leaves the request
// unanswered.
func (s *SFU) OnConsume(fn func(id domain.ProducerID) (domain.Consumed, bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consumeFn = fn
}

// ServerInit is the Init frame the SFU sends after the client's Init.
func ServerInit() *domain.ServerInit {
	return &domain.ServerInit{
		Envelope:              domain.Envelope{Action: domain.ActionInit},
		RouterRtpCapabilities: RouterCapabilities(),
		ProducerTransportOptions: domain.TransportOptions{
			ID:             "send-transport",
			IceParameters:  domain.IceParameters{UsernameFragment: "ufragS", Password: "pwdS", IceLite: true},
			IceCandidates:  []domain.IceCandidate{{Foundation: "udpcandidate", Priority: 1076302079, IP: "127.0.0.1", Protocol: "udp", Port: 40000, Type: "host"}},
			DtlsParameters: domain.DtlsParameters{Role: domain.DtlsRoleAuto, Fingerprints: []domain.DtlsFingerprint{{Algorithm: "sha-256", Value: "AA:BB:CC"}}},
		},
		ConsumerTransportOptions: domain.TransportOptions{
			ID:             "recv-transport",
			IceParameters:  domain.IceParameters{UsernameFragment: "ufragR", Password: "pwdR", IceLite: true},
			IceCandidates:  []domain.IceCandidate{{Foundation: "udpcandidate", Priority: 1076302079, IP: "127.0.0.1", Protocol: "udp", Port: 40001, Type: "host"}},
			DtlsParameters: domain.DtlsParameters{Role: domain.DtlsRoleAuto, Fingerprints: []domain.DtlsFingerprint{{Algorithm: "sha-256", Value: "DD:EE:FF"}}},
		},
	}
}

func RouterCapabilities() domain.RtpCapabilities {
	return domain.RtpCapabilities{
		Codecs: []domain.RtpCodecCapability{
			{Kind: domain.MediaKindAudio, MimeType: "audio/opus", PreferredPayloadType: 100, ClockRate: 48000, Channels: 2},
			{Kind: domain.MediaKindVideo, MimeType: "video/VP8", PreferredPayloadType: 101, ClockRate: 90000},
		},
	}
}

// Consumed is the default answer for consuming producer id.
func Consumed(id domain.ProducerID) domain.Consumed {
	return domain.Consumed{
		Envelope:   domain.Envelope{Action: domain.ActionConsumed},
		ID:         domain.ConsumerID("consumer-" + string(id)),
		ProducerID: id,
		Kind:       domain.MediaKindVideo,
		RtpParameters: domain.RtpParameters{
			Mid:       "0",
			Codecs:    []domain.RtpCodecParameters{{MimeType: "video/VP8", PayloadType: 101, ClockRate: 90000}},
			Encodings: []domain.RtpEncodingParameters{{SSRC: 1111}},
		},
	}
}
