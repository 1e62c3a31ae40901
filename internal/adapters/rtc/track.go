package rtc

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/h3poteto/livecamera/internal/core"
	"github.com/h3poteto/livecamera/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// LocalTrack is a sample based track the caller feeds with WriteSample.
type LocalTrack struct {
	track *webrtc.TrackLocalStaticSample
	codec webrtc.RTPCodecCapability
	kind  domain.MediaKind

	once    sync.Once
	stopped chan struct{}
}

var _ core.Track = (*LocalTrack)(nil)

func NewLocalTrack(codec webrtc.RTPCodecCapability, streamID string) (*LocalTrack, error) {
	kind := domain.MediaKindVideo
	if strings.HasPrefix(strings.ToLower(codec.MimeType), "audio/") {
		kind = domain.MediaKindAudio
	}
	if streamID == "" {
		streamID = uuid.NewString()
	}
	track, err := webrtc.NewTrackLocalStaticSample(codec, uuid.NewString(), streamID)
	if err != nil {
		return nil, fmt.Errorf("local track: %w", err)
	}
	return &LocalTrack{track: track, codec: codec, kind: kind, stopped: make(chan struct{})}, nil
}

func (t *LocalTrack) ID() string             { return t.track.ID() }
func (t *LocalTrack) Kind() domain.MediaKind { return t.kind }
func (t *LocalTrack) MimeType() string       { return t.codec.MimeType }

// Stop ends the track. Further samples are dropped.
func (t *LocalTrack) Stop() {
	t.once.Do(func() { close(t.stopped) })
}

// Stopped is closed once Stop has been called.
func (t *LocalTrack) Stopped() <-chan struct{} { return t.stopped }

func (t *LocalTrack) WriteSample(data []byte, duration time.Duration) error {
	select {
	case <-t.stopped:
		return nil
	default:
	}
	return t.track.WriteSample(media.Sample{Data: data, Duration: duration})
}

// RemoteTrack is the receiving side of a consumer.
type RemoteTrack struct {
	receiver *webrtc.RTPReceiver
	kind     domain.MediaKind
	mime     string
	once     sync.Once
}

var _ core.Track = (*RemoteTrack)(nil)

func newRemoteTrack(receiver *webrtc.RTPReceiver, kind domain.MediaKind, mime string) *RemoteTrack {
	return &RemoteTrack{receiver: receiver, kind: kind, mime: mime}
}

func (t *RemoteTrack) ID() string {
	if tr := t.receiver.Track(); tr != nil {
		return tr.ID()
	}
	return ""
}

func (t *RemoteTrack) Kind() domain.MediaKind { return t.kind }
func (t *RemoteTrack) MimeType() string       { return t.mime }

// ReadRTP blocks for the next packet of the track.
func (t *RemoteTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	tr := t.receiver.Track()
	if tr == nil {
		return nil, nil, ErrNotConnected
	}
	return tr.ReadRTP()
}

func (t *RemoteTrack) Stop() {
	t.once.Do(func() { _ = t.receiver.Stop() })
}

type Producer struct {
	id     domain.ProducerID
	kind   domain.MediaKind
	sender *webrtc.RTPSender
	once   sync.Once
}

func (p *Producer) ID() domain.ProducerID  { return p.id }
func (p *Producer) Kind() domain.MediaKind { return p.kind }

func (p *Producer) Close() {
	p.once.Do(func() { _ = p.sender.Stop() })
}

type Consumer struct {
	id         domain.ConsumerID
	producerID domain.ProducerID
	kind       domain.MediaKind
	track      *RemoteTrack
}

func (c *Consumer) ID() domain.ConsumerID         { return c.id }
func (c *Consumer) ProducerID() domain.ProducerID { return c.producerID }
func (c *Consumer) Kind() domain.MediaKind        { return c.kind }
func (c *Consumer) Track() core.Track             { return c.track }

func (c *Consumer) Close() {
	c.track.Stop()
}
