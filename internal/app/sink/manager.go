package sink

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/h3poteto/livecamera/internal/core"
	"github.com/h3poteto/livecamera/internal/domain"
	"github.com/rs/zerolog/log"
)

type mimeTyped interface {
	MimeType() string
}

// Manager owns one Sink per remote producer. Add and Remove match the
// session's track callbacks.
type Manager struct {
	recordDir string

	mu    sync.RWMutex
	sinks map[domain.ProducerID]*Sink
}

func NewManager(recordDir string) *Manager {
	return &Manager{
		recordDir: recordDir,
		sinks:     make(map[domain.ProducerID]*Sink),
	}
}

// Add starts draining track. Tracks that cannot be read are ignored.
func (m *Manager) Add(id domain.ProducerID, track core.Track) {
	logger := log.With().Str("module", "sink").Str("producer", string(id)).Logger()
	src, ok := track.(RTPReader)
	if !ok {
		logger.Warn().Msg("track has no RTP reader, not draining")
		return
	}
	var mime string
	if mt, ok := track.(mimeTyped); ok {
		mime = mt.MimeType()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := NewSink(id, track.Kind(), mime, src, cancel)
	if m.recordDir != "" {
		m.attachRecorder(s)
	}

	m.mu.Lock()
	if old, ok := m.sinks[id]; ok {
		old.cancel()
	}
	m.sinks[id] = s
	m.mu.Unlock()

	logger.Info().Str("kind", string(s.Kind)).Str("mime", mime).Msg("sink started")
	go s.loop(ctx, &logger)
}

func (m *Manager) attachRecorder(s *Sink) {
	logger := log.With().Str("module", "sink").Str("producer", string(s.ID)).Logger()
	if err := os.MkdirAll(m.recordDir, 0o755); err != nil {
		logger.Error().Err(err).Msg("record dir")
		return
	}
	base := filepath.Join(m.recordDir, sanitize(string(s.ID)))
	w, path, ok, err := NewFileWriter(base, s.Mime)
	if err != nil {
		logger.Error().Err(err).Msg("open recorder")
		return
	}
	if !ok {
		logger.Info().Str("mime", s.Mime).Msg("no recorder for codec")
		return
	}
	s.AddOutput(NewOutput(path, w))
	logger.Info().Str("path", path).Msg("recording")
}

// Remove stops the sink of id. The track itself is stopped by its owner.
func (m *Manager) Remove(id domain.ProducerID) {
	m.mu.Lock()
	s, ok := m.sinks[id]
	delete(m.sinks, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	s.cancel()
	log.Info().Str("module", "sink").Str("producer", string(id)).Msg("sink removed")
}

// Stats returns per sink counters ordered by producer id.
func (m *Manager) Stats() []Stats {
	m.mu.RLock()
	out := make([]Stats, 0, len(m.sinks))
	for _, s := range m.sinks {
		out = append(out, s.Stats())
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b Stats) int {
		return strings.Compare(string(a.ProducerID), string(b.ProducerID))
	})
	return out
}

// Close stops every sink.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sinks {
		s.cancel()
		delete(m.sinks, id)
	}
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
