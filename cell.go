// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flowgraph

import (
	"sync/atomic"
	"unsafe"

	"code.hybscloud.com/spin"
)

// Cell is the atomic cell of spec §4.3 for non-refcounted, immutable
// values (a Weak reference, or a snapshot array). No pack repo's atomix
// dependency demonstrates a generic atomic-pointer-with-CAS type — every
// observed use is a scalar (Uint64/Int64/Bool) — so Cell is built directly
// on stdlib sync/atomic.Pointer[T], which exists for exactly this.
//
// Besides the plain Load/Store/CompareAndSwap surface, Cell carries a
// version word (seq) so a Txn (txn.go) can treat it as one participant in
// a multi-cell software transaction: seq is even while the cell is free
// and odd while a commit has it locked for writing, and bumps by two on
// every successful write. This is the "multi-location software
// transaction" spec §4.4 asks for, built the way a TL2-style STM does it,
// rather than a single global mutex over all topology — so a read-only
// snapshot (spec §4.9 step 1) never blocks behind an unrelated connect.
type Cell[T any] struct {
	p   atomic.Pointer[T]
	seq atomic.Uint64
}

// newCell returns a Cell initialized to v (v may be nil).
func newCell[T any](v *T) *Cell[T] {
	c := &Cell[T]{}
	c.p.Store(v)
	return c
}

// Load returns the cell's current value.
func (c *Cell[T]) Load() *T {
	return c.p.Load()
}

// Store unconditionally replaces the cell's value.
func (c *Cell[T]) Store(v *T) {
	c.p.Store(v)
	c.seq.Add(2)
}

// CompareAndSwap replaces the cell's value with new only if it currently
// equals old (pointer identity).
func (c *Cell[T]) CompareAndSwap(old, new *T) bool {
	if c.p.CompareAndSwap(old, new) {
		c.seq.Add(2)
		return true
	}
	return false
}

// addr identifies the cell itself (not its contents), used to lock-order
// the write set of a commit and avoid deadlocking against another
// transaction locking the same cells in a different order.
func (c *Cell[T]) addr() uintptr {
	return uintptr(unsafe.Pointer(c))
}

// txnLoad returns a consistent (value, version) pair: the version read
// immediately before and after the value agree, and the low bit is clear
// (no concurrent commit holds the cell locked). It never blocks a writer
// — it only retries its own read if one races it.
func (c *Cell[T]) txnLoad() (unsafe.Pointer, uint64) {
	sw := spin.Wait{}
	for {
		s1 := c.seq.Load()
		if s1&1 == 1 {
			sw.Once()
			continue
		}
		v := c.p.Load()
		s2 := c.seq.Load()
		if s1 == s2 {
			return unsafe.Pointer(v), s1
		}
		sw.Once()
	}
}

// currentSeq reads the version word alone, for validating a read-only
// participant at commit time.
func (c *Cell[T]) currentSeq() uint64 {
	return c.seq.Load()
}

// txnTryLock acquires the write lock by CAS-ing seq from expected (even)
// to expected|1. It fails if anything — including another transaction's
// commit — has changed the cell since expected was observed.
func (c *Cell[T]) txnTryLock(expected uint64) bool {
	return c.seq.CompareAndSwap(expected, expected|1)
}

// txnUnlock releases a write lock without installing a new value,
// restoring seq to the even value it held before locking. Used to roll
// back a partially-acquired lock set on commit failure.
func (c *Cell[T]) txnUnlock(seq uint64) {
	c.seq.Store(seq)
}

// txnUnlockStore installs value and releases the write lock, bumping the
// version two past the one observed at lock time.
func (c *Cell[T]) txnUnlockStore(value unsafe.Pointer, seq uint64) {
	c.p.Store((*T)(value))
	c.seq.Store(seq + 2)
}

// bufferCell is the refcounted atomic cell of spec §4.3 used specifically
// for Socket.buffer: it holds a strong Buffer reference, increfing on
// store and releasing whatever buffer it held previously.
type bufferCell struct {
	p atomic.Pointer[Buffer]
}

// load returns a new strong reference to the published buffer, or nil.
func (c *bufferCell) load() *Buffer {
	b := c.p.Load()
	if b != nil {
		b.IncRef()
	}
	return b
}

// store installs b as the published buffer (increfing it first) and
// releases whatever was published before.
func (c *bufferCell) store(b *Buffer) {
	if b != nil {
		b.IncRef()
	}
	old := c.p.Swap(b)
	if old != nil {
		old.Release()
	}
}

// peek returns the published buffer without adjusting its refcount, for
// callers that only need to compare identity/size (AllocBuffer's reuse
// check).
func (c *bufferCell) peek() *Buffer {
	return c.p.Load()
}
