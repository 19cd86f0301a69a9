// Package viewmodel implements the UI-facing reactive layer: a generic
// observable Property[T] plus the LibraryViewModel, PlayerViewModel, and
// NavigationViewModel that hold the application's screen state and keep it
// in sync with catalog mutations and sync lifecycle events carried on
// internal/eventbus.
package viewmodel

import "sync"

// Property is a named, thread-safe observable holder. Subscribers receive
// the latest value on every change through a bounded channel; a lagging
// subscriber has its oldest queued value dropped rather than blocking the
// writer, the same backpressure policy the event bus and the teacher's
// websocket hub apply to their own fan-out.
type Property[T any] struct {
	mu      sync.RWMutex
	value   T
	equal   func(a, b T) bool
	subs    map[int]*propSub[T]
	nextSub int
}

type propSub[T any] struct {
	ch      chan T
	dropped int64
}

// NewProperty constructs a Property holding initial. If equal is non-nil it
// is consulted on every Set/Update to suppress no-op notifications; pass
// nil to always notify (the default for non-comparable value types).
func NewProperty[T any](initial T, equal func(a, b T) bool) *Property[T] {
	return &Property[T]{value: initial, equal: equal, subs: make(map[int]*propSub[T])}
}

// Get returns the current value. Never suspends.
func (p *Property[T]) Get() T {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.value
}

// Set overwrites the value and notifies subscribers, unless equal(old, new)
// reports them unchanged.
func (p *Property[T]) Set(v T) {
	p.mu.Lock()
	old := p.value
	if p.equal != nil && p.equal(old, v) {
		p.mu.Unlock()
		return
	}
	p.value = v
	subs := p.snapshotSubs()
	p.mu.Unlock()

	p.notify(v, subs)
}

// Update mutates the value in place via fn, then notifies subscribers under
// the same equal short-circuit as Set.
func (p *Property[T]) Update(fn func(*T)) {
	p.mu.Lock()
	old := p.value
	next := p.value
	fn(&next)
	if p.equal != nil && p.equal(old, next) {
		p.value = next
		p.mu.Unlock()
		return
	}
	p.value = next
	subs := p.snapshotSubs()
	p.mu.Unlock()

	p.notify(next, subs)
}

func (p *Property[T]) snapshotSubs() []*propSub[T] {
	out := make([]*propSub[T], 0, len(p.subs))
	for _, s := range p.subs {
		out = append(out, s)
	}
	return out
}

func (p *Property[T]) notify(v T, subs []*propSub[T]) {
	for _, s := range subs {
		select {
		case s.ch <- v:
			continue
		default:
		}
		// Channel full: drop the oldest queued value, then push the new one.
		select {
		case <-s.ch:
			s.dropped++
		default:
		}
		select {
		case s.ch <- v:
		default:
		}
	}
}

// PropertySubscription is a handle returned by Subscribe. Call Close when
// done; the property holds no reference to anything the subscriber owns
// beyond this handle.
type PropertySubscription[T any] struct {
	prop *Property[T]
	id   int
	C    <-chan T
}

// Subscribe registers a subscriber that receives every subsequent value.
// bufferSize <= 0 defaults to 16, generous enough for UI consumers that
// drain promptly.
func (p *Property[T]) Subscribe(bufferSize int) *PropertySubscription[T] {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextSub
	p.nextSub++
	p.subs[id] = &propSub[T]{ch: make(chan T, bufferSize)}
	return &PropertySubscription[T]{prop: p, id: id, C: p.subs[id].ch}
}

// Close unregisters the subscription. Safe to call multiple times.
func (s *PropertySubscription[T]) Close() {
	s.prop.mu.Lock()
	defer s.prop.mu.Unlock()
	delete(s.prop.subs, s.id)
}

// DroppedCount returns how many values were dropped for this subscriber due
// to backpressure.
func (s *PropertySubscription[T]) DroppedCount() int64 {
	s.prop.mu.Lock()
	defer s.prop.mu.Unlock()
	if sub, ok := s.prop.subs[s.id]; ok {
		return sub.dropped
	}
	return 0
}
