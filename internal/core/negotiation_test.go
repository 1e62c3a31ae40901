package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletionFirstResolutionWins(t *testing.T) {
	c := NewCompletion()
	c.Accept("prod-1")
	c.Reject(errors.New("late"))
	c.Accept("prod-2")

	id, err := c.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "prod-1", string(id))
}

func TestCompletionReject(t *testing.T) {
	ev := NewConnectNegotiation(Inbound, domainDtls())
	want := errors.New("nope")
	go ev.Completion.Reject(want)

	_, err := ev.Completion.Wait(context.Background())
	assert.ErrorIs(t, err, want)
	assert.Equal(t, ConnectNegotiation, ev.Kind)
	assert.Equal(t, Inbound, ev.Role)
}

func TestCompletionWaitHonoursContext(t *testing.T) {
	c := NewCompletion()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-c.Done():
		t.Fatal("completion resolved without Accept or Reject")
	default:
	}
}

func TestProduceNegotiationIsOutbound(t *testing.T) {
	ev := NewProduceNegotiation("video", domainParams())
	assert.Equal(t, ProduceNegotiation, ev.Kind)
	assert.Equal(t, Outbound, ev.Role)
	assert.Equal(t, "produce", ev.Kind.String())
	assert.Equal(t, "outbound", ev.Role.String())
}
