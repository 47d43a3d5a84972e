package platform

import (
	"context"
	"sync"

	"github.com/hammamikhairi/voicecart/internal/domain"
)

// recSession is one recognition session of a recognizer backend. The
// backend goroutine owns the events channel; Stop and Abort only signal.
type recSession struct {
	ctx    context.Context
	abort  context.CancelFunc
	events chan domain.RecognitionEvent

	stopOnce sync.Once
	stopped  chan struct{}
}

func newRecSession(parent context.Context) *recSession {
	ctx, cancel := context.WithCancel(parent)
	return &recSession{
		ctx:     ctx,
		abort:   cancel,
		events:  make(chan domain.RecognitionEvent, 64),
		stopped: make(chan struct{}),
	}
}

// requestStop asks for a graceful end after any pending result.
func (s *recSession) requestStop() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

func (s *recSession) stopping() bool {
	select {
	case <-s.stopped:
		return true
	default:
		return false
	}
}

func (s *recSession) emit(ev domain.RecognitionEvent) {
	s.events <- ev
}

// finish reports code, when set, then ends the session.
func (s *recSession) finish(code string) {
	if code != "" {
		s.emit(domain.RecognitionEvent{Type: domain.EventError, Code: code})
	}
	s.emit(domain.RecognitionEvent{Type: domain.EventEnd})
	close(s.events)
	s.abort()
}

// singleton holds the live session of a recognizer.
type singleton struct {
	mu  sync.Mutex
	cur *recSession
}

func (g *singleton) begin(ctx context.Context) (*recSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cur != nil {
		return nil, domain.ErrAlreadyStarted
	}
	g.cur = newRecSession(ctx)
	return g.cur, nil
}

// release clears s so a new session may start. It must run before the
// session's end event is sent.
func (g *singleton) release(s *recSession) {
	g.mu.Lock()
	if g.cur == s {
		g.cur = nil
	}
	g.mu.Unlock()
}

func (g *singleton) current() *recSession {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cur
}

func (g *singleton) stop() {
	if s := g.current(); s != nil {
		s.requestStop()
	}
}

func (g *singleton) abort() {
	if s := g.current(); s != nil {
		s.abort()
	}
}
