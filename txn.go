// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flowgraph

import (
	"sort"
	"unsafe"
)

// txnCellIface lets a single Txn span Cell[T] instances of different T —
// Connect touches a Cell[Weak[Socket]] (the input side's single
// upstream) and a Cell[snapshot[Socket]] (an output side's fan-out set)
// in the same transaction, and Go generics have no way to hold both in
// one slice. Every method travels an unsafe.Pointer that only ever
// re-enters the exact Cell[T] it came from, so the boxing never
// dereferences through the wrong type.
type txnCellIface interface {
	addr() uintptr
	txnLoad() (unsafe.Pointer, uint64)
	currentSeq() uint64
	txnTryLock(expected uint64) bool
	txnUnlock(seq uint64)
	txnUnlockStore(value unsafe.Pointer, seq uint64)
}

type txnRead struct {
	cell txnCellIface
	seq  uint64
}

type txnWrite struct {
	cell  txnCellIface
	value unsafe.Pointer
}

// Txn is the multi-location software transaction of spec §4.4. A caller
// loads and stages stores against any number of Cells, then Commits: the
// commit either installs every staged write atomically or installs none
// of them, reporting which with its bool result. Callers retry the whole
// load/store sequence from scratch on a false commit, exactly as
// Connect and Disconnect do.
//
// Internally this is a TL2-style optimistic transaction: reads are
// plain lock-free loads validated against a per-cell version word, and
// only the cells actually written are locked, in address order, for the
// brief span of Commit. Unrelated reads (spec §4.9's upstream snapshot)
// never contend with an in-flight connect/disconnect.
type Txn struct {
	reads  []txnRead
	writes []*txnWrite
	widx   map[txnCellIface]*txnWrite
}

// StartTxn begins a new transaction.
func StartTxn() *Txn {
	return &Txn{widx: make(map[txnCellIface]*txnWrite)}
}

// TxnLoad reads c's current value within h. If h has already staged a
// store to c, the staged value is returned instead of re-reading the
// cell, so a transaction sees its own writes.
func TxnLoad[T any](h *Txn, c *Cell[T]) *T {
	if w, ok := h.widx[c]; ok {
		return (*T)(w.value)
	}
	v, seq := c.txnLoad()
	h.reads = append(h.reads, txnRead{cell: c, seq: seq})
	return (*T)(v)
}

// TxnStore stages v as c's next value. The cell is not touched until
// Commit; Commit installs it only if every participant validates.
func TxnStore[T any](h *Txn, c *Cell[T], v *T) {
	if w, ok := h.widx[c]; ok {
		w.value = unsafe.Pointer(v)
		return
	}
	w := &txnWrite{cell: c, value: unsafe.Pointer(v)}
	h.widx[c] = w
	h.writes = append(h.writes, w)
}

// Commit attempts to install every staged write atomically. It returns
// true on success. On false, nothing in h was modified, and the caller
// must restart with a fresh Txn per spec §4.4's FAILURE contract.
//
// Cells written are locked in ascending address order (two-phase
// locking with a fixed global order), so two transactions racing to
// commit overlapping write sets can never deadlock against each other —
// a lock attempt never waits: the one that fails unlocks what it already
// holds and returns false.
func (h *Txn) Commit() bool {
	if len(h.writes) == 0 {
		return true
	}

	readSeq := make(map[txnCellIface]uint64, len(h.reads))
	for _, r := range h.reads {
		readSeq[r.cell] = r.seq
	}

	sort.Slice(h.writes, func(i, j int) bool {
		return h.writes[i].cell.addr() < h.writes[j].cell.addr()
	})

	locked := make([]uint64, len(h.writes))
	for i, w := range h.writes {
		expected, ok := readSeq[w.cell]
		if !ok {
			_, expected = w.cell.txnLoad()
		}
		if !w.cell.txnTryLock(expected) {
			for j := 0; j < i; j++ {
				h.writes[j].cell.txnUnlock(locked[j])
			}
			return false
		}
		locked[i] = expected
	}

	for _, r := range h.reads {
		if _, isWrite := h.widx[r.cell]; isWrite {
			continue // already validated by its successful lock CAS above
		}
		if r.cell.currentSeq() != r.seq {
			for i, w := range h.writes {
				w.cell.txnUnlock(locked[i])
			}
			return false
		}
	}

	for i, w := range h.writes {
		w.cell.txnUnlockStore(w.value, locked[i])
	}
	return true
}

// Abort discards a transaction that performed only loads, or that the
// caller decided not to commit. Reads never locked anything, so there is
// nothing to undo.
func (h *Txn) Abort() {
	h.reads = nil
	h.writes = nil
	h.widx = nil
}
