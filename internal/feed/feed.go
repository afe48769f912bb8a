// Package feed implements ordered publish/subscribe delivery for the
// stateful engines of the trading core.
package feed

import (
	"runtime"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// Handler consumes published values.
type Handler[T any] func(T)

// Subscription is the handle returned by Subscribe. Unsubscribe is
// idempotent.
type Subscription[T any] struct {
	feed *Feed[T]
	id   uint64
	once sync.Once
}

// Unsubscribe removes the handler from the feed.
func (s *Subscription[T]) Unsubscribe() {
	if s == nil || s.feed == nil {
		return
	}
	s.once.Do(func() {
		s.feed.remove(s.id)
	})
}

type entry[T any] struct {
	id      uint64
	handler Handler[T]
}

// Feed delivers values to subscribers in publish order. Delivery blocks the
// publisher, so the ordering guarantee of the single-writer mutation path
// extends to observers. There is no delivery guarantee across restarts.
type Feed[T any] struct {
	mu         sync.Mutex
	publishMu  sync.Mutex
	nextID     uint64
	entries    []entry[T]
	maxWorkers int
}

// New constructs a feed. maxWorkers bounds fan-out concurrency for
// multi-subscriber delivery; values <= 0 use GOMAXPROCS.
func New[T any](maxWorkers int) *Feed[T] {
	if maxWorkers <= 0 {
		maxWorkers = runtime.GOMAXPROCS(0)
	}
	return &Feed[T]{maxWorkers: maxWorkers}
}

// Subscribe registers a handler and returns its subscription handle.
func (f *Feed[T]) Subscribe(handler Handler[T]) *Subscription[T] {
	if handler == nil {
		return &Subscription[T]{}
	}
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.entries = append(f.entries, entry[T]{id: id, handler: handler})
	f.mu.Unlock()
	return &Subscription[T]{feed: f, id: id}
}

// Publish delivers v to every subscriber. Publishes are serialized so each
// subscriber observes values in mutation order. Because delivery happens
// under that serialization, a handler must not publish back into its own
// feed: the nested publish blocks on the one that invoked the handler.
func (f *Feed[T]) Publish(v T) {
	f.publishMu.Lock()
	defer f.publishMu.Unlock()

	f.mu.Lock()
	entries := make([]entry[T], len(f.entries))
	copy(entries, f.entries)
	f.mu.Unlock()

	switch len(entries) {
	case 0:
		return
	case 1:
		entries[0].handler(v)
		return
	}

	limit := f.maxWorkers
	if limit > len(entries) {
		limit = len(entries)
	}
	p := pool.New().WithMaxGoroutines(limit)
	for _, e := range entries {
		handler := e.handler
		p.Go(func() {
			handler(v)
		})
	}
	p.Wait()
}

// Len reports the current number of subscribers.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func (f *Feed[T]) remove(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.entries {
		if e.id == id {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return
		}
	}
}
