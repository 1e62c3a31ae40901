package session

import (
	"testing"

	"github.com/h3poteto/livecamera/internal/core"
	"github.com/h3poteto/livecamera/internal/core/mocks"
	"github.com/h3poteto/livecamera/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func mockTransport(ctrl *gomock.Controller, role core.Role, id domain.TransportID) *mocks.MockTransport {
	t := mocks.NewMockTransport(ctrl)
	t.EXPECT().Role().Return(role).AnyTimes()
	t.EXPECT().ID().Return(id).AnyTimes()
	return t
}

func TestTransportRegistryOnePerRole(t *testing.T) {
	ctrl := gomock.NewController(t)
	r := NewTransportRegistry()

	out := mockTransport(ctrl, core.Outbound, "send")
	in := mockTransport(ctrl, core.Inbound, "recv")
	dup := mockTransport(ctrl, core.Outbound, "send-2")

	require.NoError(t, r.Add(out))
	require.NoError(t, r.Add(in))
	assert.ErrorIs(t, r.Add(dup), ErrTransportExists)

	h, ok := r.Get(core.Outbound)
	require.True(t, ok)
	assert.Same(t, out, h.Transport)
}

func TestTransportRegistryConnected(t *testing.T) {
	ctrl := gomock.NewController(t)
	r := NewTransportRegistry()
	require.NoError(t, r.Add(mockTransport(ctrl, core.Outbound, "send")))

	assert.True(t, r.MarkConnected(core.Outbound))
	assert.False(t, r.MarkConnected(core.Outbound))
	assert.False(t, r.MarkConnected(core.Inbound))
	assert.False(t, r.Connected())

	require.NoError(t, r.Add(mockTransport(ctrl, core.Inbound, "recv")))
	assert.True(t, r.MarkConnected(core.Inbound))
	assert.True(t, r.Connected())
}

func TestTransportRegistryCloseAll(t *testing.T) {
	ctrl := gomock.NewController(t)
	r := NewTransportRegistry()
	r.CloseAll()

	out := mockTransport(ctrl, core.Outbound, "send")
	in := mockTransport(ctrl, core.Inbound, "recv")
	out.EXPECT().Close().Times(1)
	in.EXPECT().Close().Times(1)
	require.NoError(t, r.Add(out))
	require.NoError(t, r.Add(in))

	r.CloseAll()
	r.CloseAll()

	_, ok := r.Get(core.Outbound)
	assert.False(t, ok)
	assert.ErrorIs(t, r.Add(mockTransport(ctrl, core.Outbound, "again")), ErrTransportExists)
}

func consumerRecord(ctrl *gomock.Controller, id domain.ProducerID) (*ConsumerRecord, *mocks.MockTrack, *mocks.MockConsumer) {
	track := mocks.NewMockTrack(ctrl)
	cons := mocks.NewMockConsumer(ctrl)
	return &ConsumerRecord{
		ProducerID: id,
		ConsumerID: domain.ConsumerID("c-" + id),
		Kind:       domain.MediaKindVideo,
		Consumer:   cons,
		Track:      track,
	}, track, cons
}

func TestTrackRegistryRemoveStopsTrackOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	r := NewTrackRegistry()
	rec, track, cons := consumerRecord(ctrl, "p1")
	gomock.InOrder(
		track.EXPECT().Stop().Times(1),
		cons.EXPECT().Close().Times(1),
	)

	require.NoError(t, r.AddConsumer(rec))
	got, ok := r.RemoveConsumer("p1")
	require.True(t, ok)
	assert.Same(t, rec, got)

	got.Close()
	_, ok = r.RemoveConsumer("p1")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestTrackRegistryRejectsDuplicateConsumer(t *testing.T) {
	ctrl := gomock.NewController(t)
	r := NewTrackRegistry()
	first, _, _ := consumerRecord(ctrl, "p1")
	second, _, _ := consumerRecord(ctrl, "p1")

	require.NoError(t, r.AddConsumer(first))
	assert.ErrorIs(t, r.AddConsumer(second), ErrConsumerExists)
	got, _ := r.Consumer("p1")
	assert.Same(t, first, got)
}

func TestTrackRegistryConsumersSorted(t *testing.T) {
	ctrl := gomock.NewController(t)
	r := NewTrackRegistry()
	for _, id := range []domain.ProducerID{"p3", "p1", "p2"} {
		rec, _, _ := consumerRecord(ctrl, id)
		require.NoError(t, r.AddConsumer(rec))
	}
	var ids []domain.ProducerID
	for _, rec := range r.Consumers() {
		ids = append(ids, rec.ProducerID)
	}
	assert.Equal(t, []domain.ProducerID{"p1", "p2", "p3"}, ids)
}

func TestTrackRegistryProducerSlot(t *testing.T) {
	ctrl := gomock.NewController(t)
	r := NewTrackRegistry()

	prod := mocks.NewMockProducer(ctrl)
	track := mocks.NewMockTrack(ctrl)
	prod.EXPECT().Close().Times(1)
	track.EXPECT().Stop().Times(1)

	first := &ProducerRecord{ID: "prod-1", Producer: prod, Track: track}
	assert.Nil(t, r.SetProducer(first))

	second := &ProducerRecord{ID: "prod-2", Producer: mocks.NewMockProducer(ctrl), Track: mocks.NewMockTrack(ctrl)}
	prev := r.SetProducer(second)
	assert.Same(t, first, prev)
	prev.Close()
	prev.Close()

	got, ok := r.Producer()
	require.True(t, ok)
	assert.Equal(t, domain.ProducerID("prod-2"), got.ID)
	assert.Same(t, second, r.TakeProducer())
	assert.Nil(t, r.TakeProducer())
}

func TestTrackRegistryCloseAll(t *testing.T) {
	ctrl := gomock.NewController(t)
	r := NewTrackRegistry()

	for _, id := range []domain.ProducerID{"p1", "p2"} {
		rec, track, cons := consumerRecord(ctrl, id)
		track.EXPECT().Stop().Times(1)
		cons.EXPECT().Close().Times(1)
		require.NoError(t, r.AddConsumer(rec))
	}
	prod := mocks.NewMockProducer(ctrl)
	track := mocks.NewMockTrack(ctrl)
	prod.EXPECT().Close().Times(1)
	track.EXPECT().Stop().Times(1)
	r.SetProducer(&ProducerRecord{ID: "prod-1", Producer: prod, Track: track})

	r.CloseAll()
	r.CloseAll()
	assert.Equal(t, 0, r.Len())
	_, ok := r.Producer()
	assert.False(t, ok)
}
