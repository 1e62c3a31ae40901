package signal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/h3poteto/livecamera/internal/adapters/signal/signaltest"
	"github.com/h3poteto/livecamera/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.InvokeTimeout = 2 * time.Second
	opts.PingPeriod = 50 * time.Millisecond
	opts.PongWait = time.Second
	return opts
}

func dial(t *testing.T, p *signaltest.Peer, opts Options, h func(domain.Frame)) *Channel {
	t.Helper()
	ch, err := Dial(context.Background(), p.URL(), opts, h)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close() })
	p.WaitConnected(1)
	return ch
}

type invokeResult struct {
	frame domain.Frame
	err   error
}

func invokeAsync(ch *Channel, msg domain.Message, expect domain.Action) <-chan invokeResult {
	out := make(chan invokeResult, 1)
	go func() {
		f, err := ch.Invoke(context.Background(), msg, expect)
		out <- invokeResult{f, err}
	}()
	return out
}

func wait(t *testing.T, c <-chan invokeResult) invokeResult {
	t.Helper()
	select {
	case r := <-c:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("invoke did not resolve")
		return invokeResult{}
	}
}

func TestInvokeResolvesOutOfOrder(t *testing.T) {
	p := signaltest.NewPeer(t)
	ch := dial(t, p, testOptions(), nil)

	a := invokeAsync(ch, domain.NewConsume("prod-a"), domain.ActionConsumed)
	p.WaitFor(domain.ActionConsume, 1)
	b := invokeAsync(ch, domain.NewConsume("prod-b"), domain.ActionConsumed)
	reqs := p.WaitFor(domain.ActionConsume, 2)

	// answer b first
	for _, i := range []int{1, 0} {
		var req domain.Consume
		require.NoError(t, reqs[i].Decode(&req))
		resp := signaltest.Consumed(req.ProducerID)
		p.Reply(reqs[i], &resp)
	}

	for want, c := range map[domain.ProducerID]<-chan invokeResult{"prod-a": a, "prod-b": b} {
		r := wait(t, c)
		require.NoError(t, r.err)
		var got domain.Consumed
		require.NoError(t, r.frame.Decode(&got))
		assert.Equal(t, want, got.ProducerID)
	}
	assert.NotEqual(t, reqs[0].RequestID, reqs[1].RequestID)
}

func TestInvokeWithoutEchoResolvesOldestFirst(t *testing.T) {
	p := signaltest.NewPeer(t)
	p.NoEcho = true
	ch := dial(t, p, testOptions(), nil)

	a := invokeAsync(ch, domain.NewConsume("prod-a"), domain.ActionConsumed)
	p.WaitFor(domain.ActionConsume, 1)
	b := invokeAsync(ch, domain.NewConsume("prod-b"), domain.ActionConsumed)
	reqs := p.WaitFor(domain.ActionConsume, 2)

	first := signaltest.Consumed("prod-a")
	p.Reply(reqs[0], &first)
	ra := wait(t, a)
	require.NoError(t, ra.err)

	select {
	case <-b:
		t.Fatal("second invoke resolved by the first response")
	case <-time.After(50 * time.Millisecond):
	}

	second := signaltest.Consumed("prod-b")
	p.Reply(reqs[1], &second)
	rb := wait(t, b)
	require.NoError(t, rb.err)
	var got domain.Consumed
	require.NoError(t, rb.frame.Decode(&got))
	assert.Equal(t, domain.ProducerID("prod-b"), got.ProducerID)
}

func TestInvokeWithoutEchoMatchesProducer(t *testing.T) {
	p := signaltest.NewPeer(t)
	p.NoEcho = true
	unsolicited := make(chan domain.Frame, 1)
	ch := dial(t, p, testOptions(), func(f domain.Frame) { unsolicited <- f })

	a := invokeAsync(ch, domain.NewConsume("prod-a"), domain.ActionConsumed)
	p.WaitFor(domain.ActionConsume, 1)
	b := invokeAsync(ch, domain.NewConsume("prod-b"), domain.ActionConsumed)
	reqs := p.WaitFor(domain.ActionConsume, 2)

	// a response for a producer nobody waits on reaches the handler
	stray := signaltest.Consumed("prod-gone")
	p.Push(&stray)
	select {
	case f := <-unsolicited:
		assert.Equal(t, domain.ActionConsumed, f.Action)
	case <-time.After(2 * time.Second):
		t.Fatal("stray response not delivered")
	}

	second := signaltest.Consumed("prod-b")
	p.Reply(reqs[1], &second)
	rb := wait(t, b)
	require.NoError(t, rb.err)

	first := signaltest.Consumed("prod-a")
	p.Reply(reqs[0], &first)
	ra := wait(t, a)
	require.NoError(t, ra.err)

	var got domain.Consumed
	require.NoError(t, ra.frame.Decode(&got))
	assert.Equal(t, domain.ProducerID("prod-a"), got.ProducerID)
	require.NoError(t, rb.frame.Decode(&got))
	assert.Equal(t, domain.ProducerID("prod-b"), got.ProducerID)
}

func TestInvokeProtocolError(t *testing.T) {
	p := signaltest.NewPeer(t)
	p.Handle(domain.ActionConnectProducerTransport, func(p *signaltest.Peer, f domain.Frame) {
		p.Reply(f, domain.NewConnected(domain.ActionConnectedConsumerTransport))
	})
	ch := dial(t, p, testOptions(), nil)

	_, err := ch.Invoke(context.Background(), domain.NewConnectProducerTransport(domain.DtlsParameters{}), domain.ActionConnectedProducerTransport)
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, domain.ActionConnectedProducerTransport, perr.Expected)
	assert.Equal(t, domain.ActionConnectedConsumerTransport, perr.Got)
}

func TestInvokeTimeout(t *testing.T) {
	p := signaltest.NewPeer(t)
	opts := testOptions()
	opts.InvokeTimeout = 50 * time.Millisecond
	ch := dial(t, p, opts, nil)

	_, err := ch.Invoke(context.Background(), domain.NewConsume("prod-a"), domain.ActionConsumed)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 0, ch.pending.len())
}

func TestInvokeContextCancel(t *testing.T) {
	p := signaltest.NewPeer(t)
	ch := dial(t, p, testOptions(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		p.WaitFor(domain.ActionConsume, 1)
		cancel()
	}()
	_, err := ch.Invoke(ctx, domain.NewConsume("prod-a"), domain.ActionConsumed)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, ch.pending.len())
}

func TestStaleResponseIsDropped(t *testing.T) {
	p := signaltest.NewPeer(t)
	frames := make(chan domain.Frame, 4)
	dial(t, p, testOptions(), func(f domain.Frame) { frames <- f })

	stale := signaltest.Consumed("prod-a")
	stale.RequestID = "gone"
	p.Push(&stale)
	p.Push(domain.NewNewProducers("prod-x"))

	select {
	case f := <-frames:
		assert.Equal(t, domain.ActionNewProducers, f.Action)
	case <-time.After(2 * time.Second):
		t.Fatal("unsolicited frame not delivered")
	}
	assert.Empty(t, frames)
}

func TestUnsolicitedAndMalformedFrames(t *testing.T) {
	p := signaltest.NewPeer(t)
	frames := make(chan domain.Frame, 4)
	dial(t, p, testOptions(), func(f domain.Frame) { frames <- f })

	p.PushRaw([]byte("not json"))
	p.PushRaw([]byte(`{"ids":["x"]}`))
	p.Push(domain.NewProducerClosed("prod-a"))

	select {
	case f := <-frames:
		assert.Equal(t, domain.ActionProducerClosed, f.Action)
		var msg domain.ProducerClosed
		require.NoError(t, f.Decode(&msg))
		assert.Equal(t, domain.ProducerID("prod-a"), msg.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("frame not delivered")
	}
}

func TestCloseFailsPending(t *testing.T) {
	p := signaltest.NewPeer(t)
	ch := dial(t, p, testOptions(), nil)

	r := invokeAsync(ch, domain.NewConsume("prod-a"), domain.ActionConsumed)
	p.WaitFor(domain.ActionConsume, 1)

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())

	res := wait(t, r)
	assert.ErrorIs(t, res.err, ErrChannelClosed)

	select {
	case <-ch.Done():
	default:
		t.Fatal("Done not closed")
	}

	ch.Send(domain.NewClientInit())
	_, err := ch.Invoke(context.Background(), domain.NewConsume("prod-b"), domain.ActionConsumed)
	assert.ErrorIs(t, err, ErrChannelClosed)
}

func TestCancelPendingKeepsChannelOpen(t *testing.T) {
	p := signaltest.NewPeer(t)
	ch := dial(t, p, testOptions(), nil)

	r := invokeAsync(ch, domain.NewConsume("prod-a"), domain.ActionConsumed)
	p.WaitFor(domain.ActionConsume, 1)
	cause := errors.New("session closing")
	ch.CancelPending(cause)
	assert.ErrorIs(t, wait(t, r).err, cause)

	ch.Send(domain.NewClientInit())
	p.WaitFor(domain.ActionInit, 1)
}

func TestPeerDropClosesChannel(t *testing.T) {
	p := signaltest.NewPeer(t)
	ch := dial(t, p, testOptions(), nil)

	r := invokeAsync(ch, domain.NewConsume("prod-a"), domain.ActionConsumed)
	p.WaitFor(domain.ActionConsume, 1)
	p.Drop()

	select {
	case <-ch.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("channel did not notice the dropped connection")
	}
	assert.ErrorIs(t, wait(t, r).err, ErrChannelClosed)
}

func TestDialFailure(t *testing.T) {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1/nothing", testOptions(), nil)
	assert.ErrorIs(t, err, ErrConnectFailed)
}

func TestSendBackpressure(t *testing.T) {
	conn := newBlockedConn()
	opts := testOptions()
	opts.SendBuffer = 1
	ch := NewChannel(conn, opts, nil, "blocked")
	defer conn.Close()
	defer ch.Close()

	// the first frame parks the write pump, the second fills the buffer
	require.NoError(t, ch.TrySend([]byte(`{"action":"a"}`)))
	<-conn.writing
	require.NoError(t, ch.TrySend([]byte(`{"action":"b"}`)))
	assert.ErrorIs(t, ch.TrySend([]byte(`{"action":"c"}`)), ErrBackpressure)

	_, err := ch.Invoke(context.Background(), domain.NewConsume("prod-a"), domain.ActionConsumed)
	assert.ErrorIs(t, err, ErrBackpressure)
	assert.Equal(t, 0, ch.pending.len())
}
