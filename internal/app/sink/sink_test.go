package sink

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/h3poteto/livecamera/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTrack struct {
	id   string
	kind domain.MediaKind
	mime string

	pkts      chan *rtp.Packet
	closeOnce sync.Once
}

func newFakeTrack(kind domain.MediaKind, mime string) *fakeTrack {
	return &fakeTrack{id: "t", kind: kind, mime: mime, pkts: make(chan *rtp.Packet, 16)}
}

func (f *fakeTrack) ID() string             { return f.id }
func (f *fakeTrack) Kind() domain.MediaKind { return f.kind }
func (f *fakeTrack) MimeType() string       { return f.mime }
func (f *fakeTrack) Stop()                  { f.closeOnce.Do(func() { close(f.pkts) }) }

func (f *fakeTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	pkt, ok := <-f.pkts
	if !ok {
		return nil, nil, io.EOF
	}
	return pkt, nil, nil
}

func (f *fakeTrack) push(seq uint16, n int) {
	f.pkts <- &rtp.Packet{Header: rtp.Header{SequenceNumber: seq}, Payload: make([]byte, n)}
}

type opaqueTrack struct{}

func (opaqueTrack) ID() string             { return "o" }
func (opaqueTrack) Kind() domain.MediaKind { return domain.MediaKindAudio }
func (opaqueTrack) Stop()                  {}

type recWriter struct {
	mu     sync.Mutex
	got    []uint16
	err    error
	closed int
}

func (w *recWriter) WriteRTP(pkt *rtp.Packet) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.got = append(w.got, pkt.SequenceNumber)
	return nil
}

func (w *recWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed++
	return nil
}

func (w *recWriter) snapshot() ([]uint16, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]uint16(nil), w.got...), w.closed
}

func sinkOf(t *testing.T, m *Manager, id domain.ProducerID) *Sink {
	t.Helper()
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sinks[id]
	require.True(t, ok, "no sink for %s", id)
	return s
}

func TestManagerCountsPackets(t *testing.T) {
	m := NewManager("")
	track := newFakeTrack(domain.MediaKindVideo, webrtc.MimeTypeVP8)
	m.Add("p1", track)

	track.push(10, 100)
	track.push(11, 50)
	track.push(14, 10)

	require.Eventually(t, func() bool {
		st := m.Stats()
		return len(st) == 1 && st[0].Packets == 3
	}, time.Second, 5*time.Millisecond)

	st := m.Stats()[0]
	assert.Equal(t, domain.ProducerID("p1"), st.ProducerID)
	assert.Equal(t, domain.MediaKindVideo, st.Kind)
	assert.Equal(t, webrtc.MimeTypeVP8, st.MimeType)
	assert.Equal(t, uint64(160), st.Bytes)
	assert.Equal(t, uint64(2), st.Lost)
	assert.False(t, st.LastPacket.IsZero())
	assert.Empty(t, st.Outputs)

	track.Stop()
	select {
	case <-sinkOf(t, m, "p1").Done():
	case <-time.After(time.Second):
		t.Fatal("sink loop did not exit")
	}
}

func TestSequenceWrapIsNotLoss(t *testing.T) {
	m := NewManager("")
	track := newFakeTrack(domain.MediaKindAudio, webrtc.MimeTypeOpus)
	m.Add("p1", track)

	track.push(65534, 1)
	track.push(65535, 1)
	track.push(0, 1)
	track.push(1, 1)

	require.Eventually(t, func() bool {
		return m.Stats()[0].Packets == 4
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, m.Stats()[0].Lost)
	track.Stop()
}

func TestSinkForwardsToOutputs(t *testing.T) {
	track := newFakeTrack(domain.MediaKindVideo, webrtc.MimeTypeVP8)
	m := NewManager("")
	m.Add("p1", track)
	s := sinkOf(t, m, "p1")

	good := &recWriter{}
	bad := &recWriter{err: errors.New("disk full")}
	paused := NewOutput("paused", &recWriter{})
	paused.MarkPaused()
	s.AddOutput(NewOutput("good", good))
	s.AddOutput(NewOutput("bad", bad))
	s.AddOutput(paused)

	track.push(1, 1)
	track.push(2, 1)

	require.Eventually(t, func() bool {
		got, _ := good.snapshot()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)

	got, _ := good.snapshot()
	assert.Equal(t, []uint16{1, 2}, got)
	_, badClosed := bad.snapshot()
	assert.Equal(t, 1, badClosed)
	pausedGot, _ := paused.Writer.(*recWriter).snapshot()
	assert.Empty(t, pausedGot)
	assert.ElementsMatch(t, []string{"good", "paused"}, s.Stats().Outputs)

	track.Stop()
	<-s.Done()
	_, goodClosed := good.snapshot()
	assert.Equal(t, 1, goodClosed)
	assert.Empty(t, s.Stats().Outputs)
}

func TestRemoveStopsSink(t *testing.T) {
	m := NewManager("")
	track := newFakeTrack(domain.MediaKindVideo, webrtc.MimeTypeVP8)
	m.Add("p1", track)
	s := sinkOf(t, m, "p1")

	m.Remove("p1")
	assert.Empty(t, m.Stats())

	// the loop notices cancellation once the read returns
	track.push(1, 1)
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("sink loop did not exit")
	}

	m.Remove("p1")
	m.Remove("unknown")
}

func TestAddIgnoresUnreadableTrack(t *testing.T) {
	m := NewManager("")
	m.Add("p1", opaqueTrack{})
	assert.Empty(t, m.Stats())
}

func TestRecorderFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "rec")
	m := NewManager(dir)
	t.Cleanup(m.Close)

	video := newFakeTrack(domain.MediaKindVideo, webrtc.MimeTypeVP8)
	audio := newFakeTrack(domain.MediaKindAudio, webrtc.MimeTypeOpus)
	other := newFakeTrack(domain.MediaKindVideo, webrtc.MimeTypeH264)
	m.Add("cam/1", video)
	m.Add("mic", audio)
	m.Add("h264", other)

	_, err := os.Stat(filepath.Join(dir, "cam_1.ivf"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "mic.ogg"))
	assert.NoError(t, err)

	stats := m.Stats()
	require.Len(t, stats, 3)
	assert.Equal(t, []string{filepath.Join(dir, "cam_1.ivf")}, stats[0].Outputs)
	assert.Empty(t, stats[1].Outputs)
	assert.Equal(t, []string{filepath.Join(dir, "mic.ogg")}, stats[2].Outputs)

	video.Stop()
	audio.Stop()
	other.Stop()
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "a_b-c_1", sanitize("a/b-c.1"))
}
