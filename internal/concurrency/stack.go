// File: internal/concurrency/stack.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Lock-free multi-producer LIFO used as the overflow list for schedule
// operations that the reactor queue refused. Push never blocks and never
// fails; PopAll transfers the whole list to the draining worker.

package concurrency

import "sync/atomic"

type node[T any] struct {
	value T
	next  *node[T]
}

// Stack is a lock-free LIFO. The zero value is ready to use.
type Stack[T any] struct {
	head atomic.Pointer[node[T]]
}

// Push adds v to the top of the stack.
func (s *Stack[T]) Push(v T) {
	n := &node[T]{value: v}
	for {
		old := s.head.Load()
		n.next = old
		if s.head.CompareAndSwap(old, n) {
			return
		}
	}
}

// PopAll detaches and returns the entire stack contents, most recently
// pushed first. Returns nil when the stack is empty.
func (s *Stack[T]) PopAll() []T {
	n := s.head.Swap(nil)
	if n == nil {
		return nil
	}
	var out []T
	for ; n != nil; n = n.next {
		out = append(out, n.value)
	}
	return out
}

// PushAll puts items back, preserving their slice order from top to bottom.
// Used by a drainer that could not re-post the whole batch.
func (s *Stack[T]) PushAll(items []T) {
	if len(items) == 0 {
		return
	}
	head := &node[T]{value: items[0]}
	tail := head
	for _, v := range items[1:] {
		n := &node[T]{value: v}
		tail.next = n
		tail = n
	}
	for {
		old := s.head.Load()
		tail.next = old
		if s.head.CompareAndSwap(old, head) {
			return
		}
	}
}

// Empty reports whether the stack currently has no items.
func (s *Stack[T]) Empty() bool {
	return s.head.Load() == nil
}
