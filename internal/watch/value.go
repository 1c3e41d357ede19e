package watch

import "sync"

// Value holds a single latest value. Readers always see the most recent
// Set; subscribers are told that a change happened, not queued every
// intermediate value.
type Value[T any] struct {
	mu      sync.RWMutex
	current T
	version uint64
	subs    map[*ValueSubscription[T]]struct{}
}

// NewValue creates a Value holding initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		current: initial,
		subs:    make(map[*ValueSubscription[T]]struct{}),
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// Version increments on every Set.
func (v *Value[T]) Version() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}

// Set replaces the value and wakes subscribers.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	v.current = val
	v.version++
	subs := make([]*ValueSubscription[T], 0, len(v.subs))
	for s := range v.subs {
		subs = append(subs, s)
	}
	v.mu.Unlock()

	for _, s := range subs {
		s.notify()
	}
}

// ValueSubscription signals changes of a Value.
type ValueSubscription[T any] struct {
	// Changed receives after at least one Set since the last receive.
	Changed <-chan struct{}

	ch     chan struct{}
	parent *Value[T]
	once   sync.Once
}

// Subscribe registers for change notifications. Only Sets after the call
// are signalled.
func (v *Value[T]) Subscribe() *ValueSubscription[T] {
	ch := make(chan struct{}, 1)
	s := &ValueSubscription[T]{Changed: ch, ch: ch, parent: v}
	v.mu.Lock()
	v.subs[s] = struct{}{}
	v.mu.Unlock()
	return s
}

func (s *ValueSubscription[T]) notify() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Get returns the parent's current value.
func (s *ValueSubscription[T]) Get() T {
	return s.parent.Get()
}

// Close unsubscribes. Changed is not closed.
func (s *ValueSubscription[T]) Close() {
	s.once.Do(func() {
		s.parent.mu.Lock()
		delete(s.parent.subs, s)
		s.parent.mu.Unlock()
	})
}
