package events

import (
	"sync"
)

// Broadcaster fans published values out to every live subscription. Each subscription owns an
// unbounded FIFO queue, so Publish never blocks on a slow consumer.
type Broadcaster[T any] struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription[T]
	nextID uint64
	closed bool
}

// NewBroadcaster constructs an empty broadcaster.
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[uint64]*Subscription[T])}
}

// Subscribe registers a new subscription. Values published before the call are never delivered to it.
// Subscribing to a closed broadcaster returns a subscription whose channel is already closed.
func (b *Broadcaster[T]) Subscribe() *Subscription[T] {
	sub := newSubscription[T](b)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.finish()
		go sub.pump()
		return sub
	}
	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub
	b.mu.Unlock()

	go sub.pump()
	return sub
}

// Publish enqueues the value on every live subscription in registration-independent order.
func (b *Broadcaster[T]) Publish(value T) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	targets := make([]*Subscription[T], 0, len(b.subs))
	for _, sub := range b.subs {
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	for _, sub := range targets {
		sub.enqueue(value)
	}
}

// SubscriberCount returns the number of live subscriptions.
func (b *Broadcaster[T]) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close stops accepting values. Live subscriptions drain what is already queued and then close.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[uint64]*Subscription[T])
	b.mu.Unlock()

	for _, sub := range subs {
		sub.finish()
	}
}

func (b *Broadcaster[T]) remove(id uint64) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Subscription is one consumer's ordered view of a broadcaster.
type Subscription[T any] struct {
	owner *Broadcaster[T]
	id    uint64

	mu       sync.Mutex
	queue    []T
	finished bool

	wake      chan struct{}
	out       chan T
	done      chan struct{}
	closeOnce sync.Once
}

func newSubscription[T any](owner *Broadcaster[T]) *Subscription[T] {
	return &Subscription[T]{
		owner: owner,
		wake:  make(chan struct{}, 1),
		out:   make(chan T),
		done:  make(chan struct{}),
	}
}

// Events returns the delivery channel. It is closed after Close or once the broadcaster closes and
// the queue has drained.
func (s *Subscription[T]) Events() <-chan T {
	return s.out
}

// Close stops delivery to this subscription and discards anything still queued. It never affects
// the publisher or other subscriptions.
func (s *Subscription[T]) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.owner != nil && s.id != 0 {
			s.owner.remove(s.id)
		}
	})
}

// Pending returns the number of values queued but not yet received.
func (s *Subscription[T]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Subscription[T]) enqueue(value T) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, value)
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription[T]) finish() {
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription[T]) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) pump() {
	defer close(s.out)
	var zero T
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			finished := s.finished
			s.mu.Unlock()
			if finished {
				return
			}
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		next := s.queue[0]
		s.queue[0] = zero
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- next:
		case <-s.done:
			return
		}
	}
}
