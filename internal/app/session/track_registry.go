package session

import (
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/h3poteto/livecamera/internal/core"
	"github.com/h3poteto/livecamera/internal/domain"
)

var ErrConsumerExists = errors.New("consumer already registered")

type ProducerRecord struct {
	ID       domain.ProducerID
	Producer core.Producer
	Track    core.Track

	once sync.Once
}

// Close closes the producer and stops its track, once.
func (r *ProducerRecord) Close() {
	r.once.Do(func() {
		r.Producer.Close()
		r.Track.Stop()
	})
}

type ConsumerRecord struct {
	ProducerID domain.ProducerID
	ConsumerID domain.ConsumerID
	Kind       domain.MediaKind
	Consumer   core.Consumer
	Track      core.Track

	once sync.Once
}

// Close stops the track and closes the consumer, once.
func (r *ConsumerRecord) Close() {
	r.once.Do(func() {
		r.Track.Stop()
		r.Consumer.Close()
	})
}

// TrackRegistry maps remote producer ids to the consumers materialized for
// them and keeps the single local producer. Not safe for concurrent use; the
// session loop owns it.
type TrackRegistry struct {
	consumers map[domain.ProducerID]*ConsumerRecord
	producer  *ProducerRecord
}

func NewTrackRegistry() *TrackRegistry {
	return &TrackRegistry{consumers: make(map[domain.ProducerID]*ConsumerRecord)}
}

func (r *TrackRegistry) AddConsumer(rec *ConsumerRecord) error {
	if _, ok := r.consumers[rec.ProducerID]; ok {
		return ErrConsumerExists
	}
	r.consumers[rec.ProducerID] = rec
	return nil
}

func (r *TrackRegistry) Consumer(id domain.ProducerID) (*ConsumerRecord, bool) {
	rec, ok := r.consumers[id]
	return rec, ok
}

// RemoveConsumer closes and drops the record for id.
func (r *TrackRegistry) RemoveConsumer(id domain.ProducerID) (*ConsumerRecord, bool) {
	rec, ok := r.consumers[id]
	if !ok {
		return nil, false
	}
	rec.Close()
	delete(r.consumers, id)
	return rec, true
}

// Consumers returns the records ordered by producer id.
func (r *TrackRegistry) Consumers() []*ConsumerRecord {
	out := make([]*ConsumerRecord, 0, len(r.consumers))
	for _, rec := range r.consumers {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b *ConsumerRecord) int {
		return strings.Compare(string(a.ProducerID), string(b.ProducerID))
	})
	return out
}

func (r *TrackRegistry) Len() int { return len(r.consumers) }

func (r *TrackRegistry) Producer() (*ProducerRecord, bool) {
	return r.producer, r.producer != nil
}

// SetProducer fills the producer slot and returns the record it replaced,
// which the caller must close.
func (r *TrackRegistry) SetProducer(rec *ProducerRecord) *ProducerRecord {
	prev := r.producer
	r.producer = rec
	return prev
}

// TakeProducer empties the producer slot. The caller owns the result.
func (r *TrackRegistry) TakeProducer() *ProducerRecord {
	prev := r.producer
	r.producer = nil
	return prev
}

// CloseAll closes every record, the producer included.
func (r *TrackRegistry) CloseAll() {
	for id := range r.consumers {
		r.RemoveConsumer(id)
	}
	if p := r.TakeProducer(); p != nil {
		p.Close()
	}
}
