package watch

import "sync"

// DefaultBacklog is the per-subscriber queue size used when none is given.
const DefaultBacklog = 16

// Broadcast fans values out to any number of subscribers. Each subscriber
// has a bounded backlog; when it is full the oldest queued value is
// discarded so the freshest value is always delivered.
type Broadcast[T any] struct {
	mu      sync.Mutex
	subs    map[*Subscription[T]]struct{}
	backlog int
	closed  bool
}

// NewBroadcast creates a Broadcast with the given per-subscriber backlog.
func NewBroadcast[T any](backlog int) *Broadcast[T] {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	return &Broadcast[T]{
		subs:    make(map[*Subscription[T]]struct{}),
		backlog: backlog,
	}
}

// Subscription receives values published after it was created.
type Subscription[T any] struct {
	// C delivers published values in order, minus any dropped on overflow.
	C <-chan T

	ch     chan T
	parent *Broadcast[T]
	once   sync.Once
}

// Subscribe registers a new subscriber. Values published before the call
// are not delivered.
func (b *Broadcast[T]) Subscribe() *Subscription[T] {
	ch := make(chan T, b.backlog)
	sub := &Subscription[T]{C: ch, ch: ch, parent: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish delivers v to every subscriber without blocking.
func (b *Broadcast[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for sub := range b.subs {
		sub.offer(v)
	}
}

// Subscribers returns the number of active subscribers.
func (b *Broadcast[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Broadcast[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
}

// offer enqueues v, evicting the oldest value if the backlog is full.
// Called with the parent lock held, so there is a single producer.
func (s *Subscription[T]) offer(v T) {
	for {
		select {
		case s.ch <- v:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// Close unsubscribes and closes C.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		b := s.parent
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[s]; ok {
			delete(b.subs, s)
			close(s.ch)
		}
	})
}
