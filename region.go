// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flowgraph

import "code.hybscloud.com/atomix"

// Region is the embeddable header for a shared, manually reference-counted
// heap entity (spec §4.1). Graph, Node, Socket, and Buffer all embed one.
//
// A Region starts at one reference. IncRef adds one; Release removes one
// and, on reaching zero, invokes the destroy callback installed at init
// time. Once the count reaches zero it never rises again — promoting a
// Weak reference to a live Region after that point always fails.
type Region struct {
	refs    atomix.Int64
	destroy func()
}

// initRegion installs the destructor and sets the initial strong count to
// one. destroy may be nil.
func (r *Region) initRegion(destroy func()) {
	r.refs.StoreRelease(1)
	r.destroy = destroy
}

// IncRef adds one strong reference. Callers must already hold a strong
// reference (or equivalent external guarantee) before calling this; it is
// not a weak-to-strong promotion (see Weak.Load for that).
func (r *Region) IncRef() {
	r.refs.AddAcqRel(1)
}

// Release removes one strong reference, running the destructor if this
// was the last one.
func (r *Region) Release() {
	if r.refs.AddAcqRel(-1) == 0 && r.destroy != nil {
		r.destroy()
	}
}

// tryIncRef attempts to add a strong reference, failing if the count has
// already reached zero. Used by Weak.Load to promote safely.
func (r *Region) tryIncRef() bool {
	for {
		n := r.refs.LoadAcquire()
		if n <= 0 {
			return false
		}
		if r.refs.CompareAndSwapAcqRel(n, n+1) {
			return true
		}
	}
}

// Weak is a non-owning reference to a value of type T whose lifetime is
// governed by a Region. Promoting a Weak never keeps its referent alive by
// itself; Load only succeeds while some other strong reference still does.
//
// Unlike the C original this is distilled from, Weak needs no separate
// indirection ("phantom") object: Go's garbage collector already keeps a
// referent's memory alive for as long as any pointer to it exists,
// including this one, so promotion safety reduces entirely to the
// Region's refcount never rising from zero (see DESIGN.md).
type Weak[T any] struct {
	ptr    *T
	region *Region
}

// newWeak builds a Weak reference to v, backed by region's refcount.
func newWeak[T any](v *T, region *Region) Weak[T] {
	return Weak[T]{ptr: v, region: region}
}

// IsZero reports whether w is the zero Weak value (never pointed anywhere).
func (w Weak[T]) IsZero() bool {
	return w.ptr == nil
}

// Load promotes w to a strong reference, returning nil if the referent's
// region has already reached a zero refcount.
func (w Weak[T]) Load() *T {
	if w.ptr == nil || !w.region.tryIncRef() {
		return nil
	}
	return w.ptr
}

// addr returns the referent's address, used by snapshot to keep arrays
// sorted and deduplicated by identity.
func (w Weak[T]) addr() uintptr {
	return uintptrOf(w.ptr)
}

// Equal reports whether w and other refer to the same address.
func (w Weak[T]) Equal(other Weak[T]) bool {
	return w.ptr == other.ptr
}
