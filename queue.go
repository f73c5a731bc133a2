// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flowgraph

import (
	"unsafe"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// workQueue is the graph's shared ready queue (spec §4.5): an FAA-based
// multi-producer multi-consumer bounded queue of claimed node handles.
//
// Based on the SCQ (Scalable Circular Queue) algorithm by Nikolaev (DISC
// 2019). Uses Fetch-And-Add to blindly increment position counters,
// requiring 2n physical slots for capacity n. Cycle-based slot validation
// provides ABA safety: each slot tracks which "cycle" (round) it belongs
// to via cycle = position / capacity.
//
// Any caller of GetBuffers that claims a node enqueues it here; any
// caller's drain loop (or a background ProcessOne worker) may dequeue and
// run a node claimed by someone else. There is exactly one queue
// discipline in this package — many producers, many consumers — so only
// the MPMC algorithm survives from the teacher's queue family.
type workQueue struct {
	_         pad
	tail      atomix.Uint64 // producer index (FAA)
	_         pad
	head      atomix.Uint64 // consumer index (FAA)
	_         pad
	threshold atomix.Int64 // livelock prevention for dequeue
	_         pad
	draining  atomix.Bool
	_         pad
	buffer    []workSlot
	capacity  uint64
	size      uint64
	mask      uint64
}

type workSlot struct {
	cycle atomix.Uint64
	data  *Node
	_     padShort
}

// newWorkQueue creates a ready queue whose capacity rounds up to the next
// power of 2.
func newWorkQueue(capacity int) *workQueue {
	if capacity < 2 {
		capacity = 2
	}

	n := uint64(roundToPow2(capacity))
	size := n * 2

	q := &workQueue{
		buffer:   make([]workSlot, size),
		capacity: n,
		size:     size,
		mask:     size - 1,
	}

	q.threshold.StoreRelaxed(3*int64(n) - 1)

	for i := uint64(0); i < size; i++ {
		q.buffer[i].cycle.StoreRelaxed(i / n)
	}

	return q
}

// enqueue adds a claimed node to the ready queue.
// Returns ErrWouldBlock if the queue is full.
func (q *workQueue) enqueue(n *Node) error {
	sw := spin.Wait{}
	for {
		tail := q.tail.LoadAcquire()
		head := q.head.LoadAcquire()
		if tail >= head+q.capacity {
			return ErrWouldBlock
		}

		myTail := q.tail.AddAcqRel(1) - 1

		slot := &q.buffer[myTail&q.mask]
		expectedCycle := myTail / q.capacity

		slotCycle := slot.cycle.LoadAcquire()

		if slotCycle == expectedCycle {
			slot.data = n
			slot.cycle.StoreRelease(expectedCycle + 1)
			q.threshold.StoreRelaxed(3*int64(q.capacity) - 1)
			return nil
		}

		if int64(slotCycle) < int64(expectedCycle) {
			return ErrWouldBlock
		}

		sw.Once()
	}
}

// drain signals that no more enqueues will occur, letting dequeue skip
// the livelock-prevention threshold check.
func (q *workQueue) drain() {
	q.draining.StoreRelease(true)
}

// dequeue removes a node from the ready queue.
// Returns (nil, ErrWouldBlock) if the queue is empty.
func (q *workQueue) dequeue() (*Node, error) {
	if !q.draining.LoadAcquire() && q.threshold.LoadRelaxed() < 0 {
		return nil, ErrWouldBlock
	}

	sw := spin.Wait{}
	for {
		myHead := q.head.AddAcqRel(1) - 1

		slot := &q.buffer[myHead&q.mask]
		expectedCycle := myHead/q.capacity + 1
		slotCycle := slot.cycle.LoadAcquire()

		if slotCycle == expectedCycle {
			n := slot.data
			slot.data = nil
			nextEnqCycle := (myHead + q.size) / q.capacity
			slot.cycle.StoreRelease(nextEnqCycle)
			return n, nil
		}

		if int64(slotCycle) < int64(expectedCycle) {
			nextEnqCycle := (myHead + q.size) / q.capacity
			slot.cycle.CompareAndSwapAcqRel(slotCycle, nextEnqCycle)

			tail := q.tail.LoadAcquire()
			if tail <= myHead+1 {
				q.catchup(tail, myHead+1)
				q.threshold.AddAcqRel(-1)
				return nil, ErrWouldBlock
			}
			if q.threshold.AddAcqRel(-1) <= 0 && !q.draining.LoadAcquire() {
				return nil, ErrWouldBlock
			}
		}
		sw.Once()
	}
}

func (q *workQueue) catchup(tail, head uint64) {
	for tail < head {
		if q.tail.CompareAndSwapRelaxed(tail, head) {
			break
		}
		tail = q.tail.LoadRelaxed()
		head = q.head.LoadRelaxed()
	}
}

// cap returns the queue capacity.
func (q *workQueue) cap() int {
	return int(q.capacity)
}

// roundToPow2 rounds n up to the next power of 2.
func roundToPow2(n int) int {
	if n < 2 {
		return 2
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// pad is cache line padding to prevent false sharing.
type pad [64]byte

// padShort is padding to fill a cache line after an 8-byte field plus a
// pointer-sized field.
type padShort [64 - 8 - ptrSize]byte

// ptrSize is the size of a pointer in bytes.
const ptrSize = int(unsafe.Sizeof(uintptr(0)))
