// Package signaltest provides a scripted SFU signaling peer served over
// httptest for exercising the client side of the protocol.
package signaltest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/h3poteto/livecamera/internal/domain"
)

// Handler answers one inbound frame. It runs on the peer read goroutine.
type Handler func(p *Peer, f domain.Frame)

type Peer struct {
	t      testing.TB
	server *httptest.Server

	// NoEcho makes Reply omit the request id, like peers that predate
	// request correlation.
	NoEcho bool

	mu       sync.Mutex
	conn     *websocket.Conn
	writeMu  sync.Mutex
	handlers map[domain.Action]Handler
	received []domain.Frame
	conns    int
	changed  chan struct{}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func NewPeer(t testing.TB) *Peer {
	p := &Peer{
		t:        t,
		handlers: make(map[domain.Action]Handler),
		changed:  make(chan struct{}),
	}
	p.server = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.Close)
	return p
}

// URL is the ws:// endpoint of the peer.
func (p *Peer) URL() string {
	return "ws" + strings.TrimPrefix(p.server.URL, "http")
}

func (p *Peer) Close() {
	p.Drop()
	p.server.Close()
}

// Handle installs h for action, replacing any previous handler.
func (p *Peer) Handle(action domain.Action, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[action] = h
}

func (p *Peer) serve(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.t.Logf("signaltest: upgrade: %v", err)
		return
	}
	p.mu.Lock()
	p.conn = ws
	p.conns++
	p.notifyLocked()
	p.mu.Unlock()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		f, err := domain.ParseFrame(data)
		if err != nil {
			p.t.Logf("signaltest: bad frame %q: %v", data, err)
			continue
		}
		p.mu.Lock()
		p.received = append(p.received, f)
		h := p.handlers[f.Action]
		p.notifyLocked()
		p.mu.Unlock()
		if h != nil {
			h(p, f)
		}
	}
}

func (p *Peer) notifyLocked() {
	close(p.changed)
	p.changed = make(chan struct{})
}

// Reply sends msg as the response to req.
func (p *Peer) Reply(req domain.Frame, msg domain.Message) {
	if !p.NoEcho {
		msg.Header().RequestID = req.RequestID
	}
	p.Push(msg)
}

// Push sends an unsolicited message.
func (p *Peer) Push(msg domain.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		p.t.Errorf("signaltest: marshal: %v", err)
		return
	}
	p.PushRaw(data)
}

func (p *Peer) PushRaw(data []byte) {
	p.mu.Lock()
	ws := p.conn
	p.mu.Unlock()
	if ws == nil {
		p.t.Errorf("signaltest: push without a connection")
		return
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		p.t.Logf("signaltest: write: %v", err)
	}
}

// Drop closes the current connection without a close handshake.
func (p *Peer) Drop() {
	p.mu.Lock()
	ws := p.conn
	p.conn = nil
	p.mu.Unlock()
	if ws != nil {
		_ = ws.Close()
	}
}

// Received returns every frame of action seen so far.
func (p *Peer) Received(action domain.Action) []domain.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Frame
	for _, f := range p.received {
		if f.Action == action {
			out = append(out, f)
		}
	}
	return out
}

// Actions returns the actions of every frame seen so far, in order.
func (p *Peer) Actions() []domain.Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.Action, 0, len(p.received))
	for _, f := range p.received {
		out = append(out, f.Action)
	}
	return out
}

// WaitFor blocks until n frames of action have arrived and returns them.
func (p *Peer) WaitFor(action domain.Action, n int) []domain.Frame {
	p.t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		p.mu.Lock()
		changed := p.changed
		p.mu.Unlock()
		if got := p.Received(action); len(got) >= n {
			return got
		}
		select {
		case <-changed:
		case <-deadline:
			p.t.Fatalf("signaltest: timed out waiting for %d %s frames, have %d", n, action, len(p.Received(action)))
			return nil
		}
	}
}

// Next waits for the first frame of action.
func (p *Peer) Next(action domain.Action) domain.Frame {
	p.t.Helper()
	return p.WaitFor(action, 1)[0]
}

// WaitConnected blocks until the client has connected n times in total.
func (p *Peer) WaitConnected(n int) {
	p.t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		p.mu.Lock()
		changed, conns := p.changed, p.conns
		p.mu.Unlock()
		if conns >= n {
			return
		}
		select {
		case <-changed:
		case <-deadline:
			p.t.Fatalf("signaltest: timed out waiting for connection")
			return
		}
	}
}
