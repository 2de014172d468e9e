// Package signal provides observable values. The owner holds a *Value and
// hands consumers the read-only Signal view.
package signal

import "sync"

// Signal is the consumer side of an observable value.
type Signal[T any] interface {
	Get() T
	// Subscribe registers fn and returns a function that removes it. fn runs
	// synchronously on every change and must not block.
	Subscribe(fn func(T)) (unsubscribe func())
}

type Value[T any] struct {
	mu     sync.RWMutex
	value  T
	nextID int
	subs   map[int]func(T)
	equal  func(a, b T) bool

	// notify serializes deliveries so subscribers observe changes in order.
	notify sync.Mutex
}

// New returns a Value holding initial. When equal is non-nil, Set skips
// notifications for values equal to the current one.
func New[T any](initial T, equal func(a, b T) bool) *Value[T] {
	return &Value[T]{
		value: initial,
		subs:  make(map[int]func(T)),
		equal: equal,
	}
}

// Comparable is New with == as the equality.
func Comparable[T comparable](initial T) *Value[T] {
	return New(initial, func(a, b T) bool { return a == b })
}

func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// Set stores value and notifies subscribers before returning.
func (v *Value[T]) Set(value T) {
	v.notify.Lock()
	defer v.notify.Unlock()

	v.mu.Lock()
	if v.equal != nil && v.equal(v.value, value) {
		v.mu.Unlock()
		return
	}
	v.value = value
	subs := make([]func(T), 0, len(v.subs))
	for _, fn := range v.subs {
		subs = append(subs, fn)
	}
	v.mu.Unlock()

	for _, fn := range subs {
		fn(value)
	}
}

func (v *Value[T]) Subscribe(fn func(T)) func() {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := v.nextID
	v.nextID++
	v.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			delete(v.subs, id)
		})
	}
}

// ReadOnly returns v as a Signal.
func (v *Value[T]) ReadOnly() Signal[T] {
	return v
}
