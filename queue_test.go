// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flowgraph

import (
	"sync"
	"testing"
)

func newTestNode() *Node {
	n := &Node{}
	n.initRegion(nil)
	n.state.StoreRelease(int32(NodeReady))
	return n
}

func TestWorkQueueEnqueueDequeueFIFO(t *testing.T) {
	q := newWorkQueue(4)

	n1, n2, n3 := newTestNode(), newTestNode(), newTestNode()
	for _, n := range []*Node{n1, n2, n3} {
		if err := q.enqueue(n); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	for _, want := range []*Node{n1, n2, n3} {
		got, err := q.dequeue()
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if got != want {
			t.Fatalf("dequeue order: got %p, want %p", got, want)
		}
	}
}

func TestWorkQueueDequeueEmptyWouldBlock(t *testing.T) {
	q := newWorkQueue(4)
	if _, err := q.dequeue(); !IsWouldBlock(err) {
		t.Fatalf("dequeue on empty queue: got err %v, want ErrWouldBlock", err)
	}
}

func TestWorkQueueEnqueueFullWouldBlock(t *testing.T) {
	q := newWorkQueue(2) // rounds up to capacity 2

	filled := 0
	for i := 0; i < q.cap(); i++ {
		if err := q.enqueue(newTestNode()); err != nil {
			break
		}
		filled++
	}
	if filled == 0 {
		t.Fatalf("could not enqueue even one node into a fresh queue")
	}

	if err := q.enqueue(newTestNode()); !IsWouldBlock(err) {
		t.Fatalf("enqueue past capacity: got err %v, want ErrWouldBlock", err)
	}
}

func TestWorkQueueCapacityRoundsUpToPow2(t *testing.T) {
	q := newWorkQueue(5)
	if q.cap() != 8 {
		t.Fatalf("cap: got %d, want 8", q.cap())
	}
}

// TestWorkQueueConcurrentProducersConsumers pushes a known number of
// distinct node handles from many producers and checks that every
// consumer-side goroutine collectively dequeues each exactly once.
func TestWorkQueueConcurrentProducersConsumers(t *testing.T) {
	if RaceEnabled {
		t.Skip("skip: slot.data is guarded by cycle's acquire/release, not itself atomic; -race cannot see the ordering")
	}

	const total = 500
	q := newWorkQueue(64)

	nodes := make([]*Node, total)
	for i := range nodes {
		nodes[i] = newTestNode()
	}

	var producers sync.WaitGroup
	for i := 0; i < total; i++ {
		producers.Add(1)
		go func(n *Node) {
			defer producers.Done()
			for q.enqueue(n) != nil {
			}
		}(nodes[i])
	}

	var mu sync.Mutex
	count := make(map[*Node]int, total)
	var got int
	var consumers sync.WaitGroup
	for c := 0; c < 8; c++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for {
				mu.Lock()
				if got >= total {
					mu.Unlock()
					return
				}
				mu.Unlock()

				n, err := q.dequeue()
				if err != nil {
					continue
				}
				mu.Lock()
				count[n]++
				got++
				mu.Unlock()
			}
		}()
	}

	producers.Wait()
	consumers.Wait()

	if len(count) != total {
		t.Fatalf("distinct nodes observed: got %d, want %d", len(count), total)
	}
	for n, c := range count {
		if c != 1 {
			t.Fatalf("node %p dequeued %d times, want exactly once", n, c)
		}
	}
}
