package progress

import (
	"sync"
	"sync/atomic"
)

// ChanSink delivers events over a channel without ever blocking the
// producer. At most size intermediate progress events wait for the consumer;
// beyond that they are dropped. Boundary and terminal events are always
// queued, evicting a waiting intermediate event when one exists, so they
// reach the consumer in emission order.
type ChanSink struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Event
	size    int
	closed  bool
	out     chan Event
	dropped atomic.Int64
}

// NewChanSink creates a sink holding up to size pending events
func NewChanSink(size int) *ChanSink {
	if size < 1 {
		size = 1
	}
	s := &ChanSink{size: size, out: make(chan Event)}
	s.cond = sync.NewCond(&s.mu)
	go s.pump()
	return s
}

// Events is the subscription side of the sink. It is closed once Close was
// called and every pending event was delivered.
func (s *ChanSink) Events() <-chan Event {
	return s.out
}

// Dropped returns how many events were discarded under pressure
func (s *ChanSink) Dropped() int64 {
	return s.dropped.Load()
}

func (s *ChanSink) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if len(s.queue) >= s.size {
		if !e.Boundary() {
			s.dropped.Add(1)
			return
		}
		s.evictIntermediate()
	}

	s.queue = append(s.queue, e)
	s.cond.Signal()
}

// evictIntermediate drops the oldest pending non-boundary event, if any
func (s *ChanSink) evictIntermediate() {
	for i, pending := range s.queue {
		if !pending.Boundary() {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.dropped.Add(1)
			return
		}
	}
}

func (s *ChanSink) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		e := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.out <- e
	}
}

// Close ends the subscription; later events are discarded
func (s *ChanSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cond.Signal()
}
