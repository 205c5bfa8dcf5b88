package events

import "sync"

// registry keeps the listener set and the optional replay value shared by
// ChannelEvent and CallbackEvent. L is the listener representation.
type registry[T any, L any] struct {
	mu         sync.RWMutex
	listeners  map[uint64]L
	nextID     uint64
	replayLast bool
	last       T
	hasLast    bool
}

func newRegistry[T any, L any](replayLast bool) registry[T, L] {
	return registry[T, L]{
		listeners:  make(map[uint64]L),
		replayLast: replayLast,
	}
}

// add registers l and returns its id plus the value to replay, if any.
func (r *registry[T, L]) add(l L) (uint64, T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = l
	return id, r.last, r.replayLast && r.hasLast
}

func (r *registry[T, L]) remove(id uint64) {
	r.mu.Lock()
	delete(r.listeners, id)
	r.mu.Unlock()
}

// record stores value for replay and returns a snapshot of the listeners so
// they can be invoked without holding the lock.
func (r *registry[T, L]) record(value T) []L {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replayLast {
		r.last = value
		r.hasLast = true
	}
	snapshot := make([]L, 0, len(r.listeners))
	for _, l := range r.listeners {
		snapshot = append(snapshot, l)
	}
	return snapshot
}

func (r *registry[T, L]) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

func (r *registry[T, L]) lastValue() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last, r.hasLast
}
