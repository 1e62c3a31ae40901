package signal

import (
	"encoding/json"
	"testing"

	"github.com/h3poteto/livecamera/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingNeverOverwrites(t *testing.T) {
	s := newPendingSet()
	first := newPendingCall("req-1", domain.ActionConsumed)
	require.NoError(t, s.add(first))
	assert.ErrorIs(t, s.add(newPendingCall("req-1", domain.ActionProduced)), errDuplicateRequest)

	call, ok := s.claim(domain.Frame{Action: domain.ActionConsumed, RequestID: "req-1"})
	require.True(t, ok)
	assert.Same(t, first, call)

	_, ok = s.claim(domain.Frame{Action: domain.ActionConsumed, RequestID: "req-1"})
	assert.False(t, ok)
}

func TestPendingFallbackMatchesAction(t *testing.T) {
	s := newPendingSet()
	produce := newPendingCall("p", domain.ActionProduced)
	consume := newPendingCall("c", domain.ActionConsumed)
	require.NoError(t, s.add(produce))
	require.NoError(t, s.add(consume))

	call, ok := s.claim(domain.Frame{Action: domain.ActionConsumed})
	require.True(t, ok)
	assert.Same(t, consume, call)

	_, ok = s.claim(domain.Frame{Action: domain.ActionNewProducers})
	assert.False(t, ok)
	assert.Equal(t, 1, s.len())
}

func TestPendingResolveOnce(t *testing.T) {
	s := newPendingSet()
	call := newPendingCall("x", domain.ActionProduced)
	require.NoError(t, s.add(call))

	call.resolve(domain.Frame{Action: domain.ActionProduced}, nil)
	assert.Equal(t, 1, s.failAll(ErrChannelClosed))

	res := <-call.result
	assert.NoError(t, res.err)
	assert.Equal(t, domain.ActionProduced, res.frame.Action)
	assert.Equal(t, 0, s.failAll(ErrChannelClosed))
}

func TestPendingFallbackHonorsMatcher(t *testing.T) {
	s := newPendingSet()
	first := newPendingCall("a", domain.ActionConsumed)
	first.match = domain.NewConsume("prod-a").MatchesResponse
	second := newPendingCall("b", domain.ActionConsumed)
	second.match = domain.NewConsume("prod-b").MatchesResponse
	require.NoError(t, s.add(first))
	require.NoError(t, s.add(second))

	call, ok := s.claim(consumedFrame(t, "prod-b"))
	require.True(t, ok)
	assert.Same(t, second, call)

	_, ok = s.claim(consumedFrame(t, "prod-c"))
	assert.False(t, ok)

	call, ok = s.claim(consumedFrame(t, "prod-a"))
	require.True(t, ok)
	assert.Same(t, first, call)
	assert.Zero(t, s.len())
}

func consumedFrame(t *testing.T, id domain.ProducerID) domain.Frame {
	t.Helper()
	msg := &domain.Consumed{Envelope: domain.Envelope{Action: domain.ActionConsumed}, ProducerID: id}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	f, err := domain.ParseFrame(data)
	require.NoError(t, err)
	return f
}
