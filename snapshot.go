// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flowgraph

import (
	"sort"
	"unsafe"
)

// uintptrOf returns the address of v for use as a sort/dedup key. A nil
// pointer sorts as zero, which is never a meaningful heap address, so a
// zero-value Weak never collides with a live entry.
func uintptrOf[T any](v *T) uintptr {
	return uintptr(unsafe.Pointer(v))
}

// snapshot is the atomic snapshot array of spec §4.2: an immutable,
// address-sorted, deduplicated slice of weak references. dupAdd/dupRemove
// never mutate the receiver; they return a fresh snapshot.
type snapshot[T any] struct {
	items []Weak[T]
}

// emptySnapshot returns a snapshot with no entries.
func emptySnapshot[T any]() *snapshot[T] {
	return &snapshot[T]{}
}

// singleSnapshot returns a snapshot containing exactly w.
func singleSnapshot[T any](w Weak[T]) *snapshot[T] {
	return &snapshot[T]{items: []Weak[T]{w}}
}

func (s *snapshot[T]) len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// search returns the index at which w's address is found (and true), or
// the index at which it would be inserted to keep items sorted (and
// false).
func (s *snapshot[T]) search(addr uintptr) (int, bool) {
	if s == nil {
		return 0, false
	}
	i := sort.Search(len(s.items), func(i int) bool {
		return s.items[i].addr() >= addr
	})
	if i < len(s.items) && s.items[i].addr() == addr {
		return i, true
	}
	return i, false
}

// dupAdd returns a new snapshot equal to s with w inserted in address
// order. If w's address is already present, the existing snapshot's
// identity is returned unchanged (idempotent add).
func (s *snapshot[T]) dupAdd(w Weak[T]) *snapshot[T] {
	i, found := s.search(w.addr())
	if found {
		return s
	}
	n := s.len()
	items := make([]Weak[T], n+1)
	copy(items, s.items[:i])
	items[i] = w
	copy(items[i+1:], s.items[i:])
	return &snapshot[T]{items: items}
}

// dupRemove returns a new snapshot equal to s with w's address removed.
// If w's address is not present, the existing snapshot's identity is
// returned unchanged (idempotent remove).
func (s *snapshot[T]) dupRemove(w Weak[T]) *snapshot[T] {
	i, found := s.search(w.addr())
	if !found {
		return s
	}
	n := s.len()
	items := make([]Weak[T], n-1)
	copy(items, s.items[:i])
	copy(items[i:], s.items[i+1:])
	return &snapshot[T]{items: items}
}

// each calls fn for every entry, in address order.
func (s *snapshot[T]) each(fn func(Weak[T])) {
	if s == nil {
		return
	}
	for _, w := range s.items {
		fn(w)
	}
}
