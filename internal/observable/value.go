// Package observable provides a latest-value container that notifies
// subscribers of every change.
package observable

import (
	"context"
	"sync"
)

// Reader is the read side of a Value, handed to observers that must not
// write.
type Reader[T any] interface {
	Get() T
	Subscribe(ctx context.Context) <-chan T
}

var _ Reader[int] = (*Value[int])(nil)

// Value holds the latest T. Subscribers always see the current value first
// and then changes; a subscriber that falls behind only sees the newest.
type Value[T any] struct {
	mu   sync.Mutex
	v    T
	subs map[chan T]struct{}
}

func New[T any](initial T) *Value[T] {
	return &Value[T]{v: initial, subs: make(map[chan T]struct{})}
}

func (o *Value[T]) Get() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.v
}

// Set stores v and notifies subscribers without blocking.
func (o *Value[T]) Set(v T) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.v = v
	for ch := range o.subs {
		offer(ch, v)
	}
}

// Update applies fn to the current value under the lock and stores the
// result.
func (o *Value[T]) Update(fn func(T) T) T {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.v = fn(o.v)
	for ch := range o.subs {
		offer(ch, o.v)
	}
	return o.v
}

// Subscribe returns a channel that receives the current value immediately
// and every later value. It is closed once ctx is done.
func (o *Value[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, 1)

	o.mu.Lock()
	ch <- o.v
	o.subs[ch] = struct{}{}
	o.mu.Unlock()

	go func() {
		<-ctx.Done()
		o.mu.Lock()
		delete(o.subs, ch)
		close(ch)
		o.mu.Unlock()
	}()
	return ch
}

// Subscribers reports the number of live subscriptions.
func (o *Value[T]) Subscribers() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs)
}

// offer replaces any undelivered value in ch with v. Callers hold the lock,
// so ch has room after the drain.
func offer[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}
