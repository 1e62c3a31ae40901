// Package sink drains received tracks: every packet is counted and, when a
// record directory is set, written to a file per track.
package sink

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/h3poteto/livecamera/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// RTPReader is the part of a received track a sink needs.
type RTPReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

type Stats struct {
	ProducerID domain.ProducerID `json:"producerId"`
	Kind       domain.MediaKind  `json:"kind"`
	MimeType   string            `json:"mimeType,omitempty"`
	Packets    uint64            `json:"packets"`
	Bytes      uint64            `json:"bytes"`
	Lost       uint64            `json:"lost"`
	LastPacket time.Time         `json:"lastPacket"`
	Outputs    []string          `json:"outputs,omitempty"`
}

// Sink reads one track until it ends and forwards packets to its outputs.
type Sink struct {
	ID   domain.ProducerID
	Kind domain.MediaKind
	Mime string
	Src  RTPReader

	mu      sync.RWMutex
	outputs map[string]*Output

	packets atomic.Uint64
	bytes   atomic.Uint64
	lost    atomic.Uint64
	last    atomic.Int64
	lastSeq uint16
	started bool

	cancel context.CancelFunc
	done   chan struct{}
}

func NewSink(id domain.ProducerID, kind domain.MediaKind, mime string, src RTPReader, cancel context.CancelFunc) *Sink {
	return &Sink{
		ID:      id,
		Kind:    kind,
		Mime:    mime,
		Src:     src,
		outputs: make(map[string]*Output),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// loop reads RTP packets from the source track and forwards them to all outputs.
func (s *Sink) loop(ctx context.Context, logger *zerolog.Logger) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("sink ctx done, closing outputs")
			s.closeAll()
			return
		default:
		}
		pkt, _, err := s.Src.ReadRTP()
		if err != nil {
			logger.Info().Err(err).Msg("sink read RTP ended")
			s.closeAll()
			return
		}
		s.account(pkt)
		s.forward(pkt, logger)
	}
}

func (s *Sink) account(pkt *rtp.Packet) {
	s.packets.Add(1)
	s.bytes.Add(uint64(len(pkt.Payload)))
	s.last.Store(time.Now().UnixNano())

	// only the loop goroutine touches lastSeq
	if s.started {
		if gap := pkt.SequenceNumber - s.lastSeq; gap > 1 && gap < 1<<15 {
			s.lost.Add(uint64(gap - 1))
		}
	}
	s.started = true
	s.lastSeq = pkt.SequenceNumber
}

func (s *Sink) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	s.mu.RLock()
	snapshot := maps.Clone(s.outputs)
	s.mu.RUnlock()

	dirty := make([]string, 0, len(snapshot))
	for name, out := range snapshot {
		switch out.State() {
		case WriterStateDelete:
			dirty = append(dirty, name)
		case WriterStatePaused:
		case WriterStateOk:
			if err := out.Writer.WriteRTP(pkt); err != nil {
				logger.Error().
					Err(err).
					Str("output", name).
					Msg("sink write error, marking output as delete")
				out.MarkDelete()
				dirty = append(dirty, name)
			}
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		s.cleanupDeleted(dirty)
	}
}

func (s *Sink) cleanupDeleted(dirty []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range dirty {
		if out, ok := s.outputs[name]; ok {
			_ = out.Writer.Close()
			delete(s.outputs, name)
		}
	}
}

func (s *Sink) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, out := range s.outputs {
		out.MarkDelete()
		_ = out.Writer.Close()
		delete(s.outputs, name)
	}
}

func (s *Sink) AddOutput(out *Output) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs[out.Name] = out
}

func (s *Sink) Stats() Stats {
	st := Stats{
		ProducerID: s.ID,
		Kind:       s.Kind,
		MimeType:   s.Mime,
		Packets:    s.packets.Load(),
		Bytes:      s.bytes.Load(),
		Lost:       s.lost.Load(),
	}
	if ns := s.last.Load(); ns > 0 {
		st.LastPacket = time.Unix(0, ns)
	}
	s.mu.RLock()
	for name := range s.outputs {
		st.Outputs = append(st.Outputs, name)
	}
	s.mu.RUnlock()
	return st
}

// Done is closed when the read loop has exited.
func (s *Sink) Done() <-chan struct{} { return s.done }
