package paging

import (
	"context"
	"sync"
)

// publisher fans states out to subscribers. It remembers the latest state
// for new subscribers, drops a state equal to the previous one and never
// blocks the publishing goroutine: each subscriber gets its own queue.
type publisher[D Indexed, T any] struct {
	mu     sync.Mutex
	latest State[D, T]
	subs   map[*subscriber[D, T]]struct{}
}

type subscriber[D Indexed, T any] struct {
	mu     sync.Mutex
	queue  []State[D, T]
	notify chan struct{}
}

func newPublisher[D Indexed, T any](initial State[D, T]) *publisher[D, T] {
	return &publisher[D, T]{
		latest: initial,
		subs:   make(map[*subscriber[D, T]]struct{}),
	}
}

// publish records s and delivers it, unless it equals the latest state.
func (p *publisher[D, T]) publish(s State[D, T]) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s.Equal(p.latest) {
		return false
	}
	p.latest = s
	for sub := range p.subs {
		sub.push(s)
	}
	return true
}

func (p *publisher[D, T]) current() State[D, T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// subscribe returns a channel that first yields the latest state and then
// every later one, in order. It is closed once ctx is done.
func (p *publisher[D, T]) subscribe(ctx context.Context) <-chan State[D, T] {
	sub := &subscriber[D, T]{notify: make(chan struct{}, 1)}

	p.mu.Lock()
	sub.push(p.latest)
	p.subs[sub] = struct{}{}
	p.mu.Unlock()

	out := make(chan State[D, T])
	go func() {
		defer close(out)
		defer func() {
			p.mu.Lock()
			delete(p.subs, sub)
			p.mu.Unlock()
		}()

		for {
			s, ok := sub.pop()
			if !ok {
				select {
				case <-sub.notify:
					continue
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- s:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (s *subscriber[D, T]) push(state State[D, T]) {
	s.mu.Lock()
	s.queue = append(s.queue, state)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscriber[D, T]) pop() (State[D, T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		var zero State[D, T]
		return zero, false
	}
	head := s.queue[0]
	s.queue[0] = State[D, T]{}
	s.queue = s.queue[1:]
	return head, true
}
