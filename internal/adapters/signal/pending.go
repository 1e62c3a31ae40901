package signal

import (
	"errors"
	"sync"

	"github.com/h3poteto/livecamera/internal/domain"
)

var errDuplicateRequest = errors.New("duplicate request id")

type callResult struct {
	frame domain.Frame
	err   error
}

type pendingCall struct {
	id     string
	expect domain.Action
	// match narrows the no-echo fallback to responses for this request.
	match  func(domain.Frame) bool
	result chan callResult
	once   sync.Once
}

func newPendingCall(id string, expect domain.Action) *pendingCall {
	return &pendingCall{id: id, expect: expect, result: make(chan callResult, 1)}
}

func (p *pendingCall) resolve(f domain.Frame, err error) {
	p.once.Do(func() {
		p.result <- callResult{frame: f, err: err}
	})
}

// pendingSet holds unresolved invokes keyed by request id. order keeps
// insertion order for peers that answer without echoing the id.
type pendingSet struct {
	mu    sync.Mutex
	byID  map[string]*pendingCall
	order []*pendingCall
}

func newPendingSet() *pendingSet {
	return &pendingSet{byID: make(map[string]*pendingCall)}
}

func (s *pendingSet) add(call *pendingCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[call.id]; ok {
		return errDuplicateRequest
	}
	s.byID[call.id] = call
	s.order = append(s.order, call)
	return nil
}

func (s *pendingSet) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

func (s *pendingSet) removeLocked(id string) {
	if _, ok := s.byID[id]; !ok {
		return
	}
	delete(s.byID, id)
	for i, c := range s.order {
		if c.id == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// claim removes and returns the call a frame answers. A frame with a request
// id matches only that id. A frame without one resolves the oldest call
// waiting for its action whose matcher, if any, accepts it.
func (s *pendingSet) claim(f domain.Frame) (*pendingCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.RequestID != "" {
		call, ok := s.byID[f.RequestID]
		if ok {
			s.removeLocked(call.id)
		}
		return call, ok
	}
	for _, call := range s.order {
		if call.expect == f.Action && (call.match == nil || call.match(f)) {
			s.removeLocked(call.id)
			return call, true
		}
	}
	return nil, false
}

func (s *pendingSet) failAll(err error) int {
	s.mu.Lock()
	calls := s.order
	s.order = nil
	s.byID = make(map[string]*pendingCall)
	s.mu.Unlock()

	for _, call := range calls {
		call.resolve(domain.Frame{}, err)
	}
	return len(calls)
}

func (s *pendingSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}
