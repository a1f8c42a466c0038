// Package feed fans values out to live subscribers.
//
// Each subscriber holds at most one pending value; publishing replaces a
// value the subscriber has not read yet, so slow readers always see the
// newest state and never block publishers.
package feed

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("feed closed")

// Feed broadcasts values of type T.
type Feed[T any] struct {
	mu     sync.Mutex
	subs   map[*subscriber[T]]struct{}
	closed bool
}

type subscriber[T any] struct {
	ch   chan T
	done chan struct{}
}

// New creates an empty feed.
func New[T any]() *Feed[T] {
	return &Feed[T]{subs: make(map[*subscriber[T]]struct{})}
}

// Subscribe registers a subscriber whose channel starts with initial.
// The channel is closed once ctx is done or the feed is closed.
func (f *Feed[T]) Subscribe(ctx context.Context, initial T) (<-chan T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrClosed
	}

	sub := &subscriber[T]{ch: make(chan T, 1), done: make(chan struct{})}
	sub.ch <- initial
	f.subs[sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
			f.remove(sub)
		case <-sub.done:
		}
	}()

	return sub.ch, nil
}

// Publish delivers v to every subscriber.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for sub := range f.subs {
		select {
		case <-sub.ch:
		default:
		}
		sub.ch <- v
	}
}

// Len returns the number of live subscribers.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close closes every subscriber channel. Later Subscribe calls fail.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	for sub := range f.subs {
		f.dropLocked(sub)
	}
}

func (f *Feed[T]) remove(sub *subscriber[T]) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.subs[sub]; ok {
		f.dropLocked(sub)
	}
}

func (f *Feed[T]) dropLocked(sub *subscriber[T]) {
	delete(f.subs, sub)
	close(sub.ch)
	close(sub.done)
}
