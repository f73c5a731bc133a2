// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package flowgraph builds and runs a concurrent processing graph: nodes
// connected by typed sockets, where requesting a buffer on an input
// socket pulls exactly as much upstream processing as is needed to
// produce it, and no node runs more than once per cycle.
//
// # Quick Start
//
//	g := flowgraph.New()
//
//	source := flowgraph.NewNode(g, sourceProcess, nil)
//	sink := flowgraph.NewNode(g, sinkProcess, nil)
//
//	out := flowgraph.NewSocket(source, flowgraph.Output, nil)
//	in := flowgraph.NewSocket(sink, flowgraph.Input, nil)
//
//	if err := flowgraph.Connect(out, in); err != nil {
//	    // sockets were both the same direction
//	}
//
//	buffers, err := flowgraph.GetBuffers(in)
//	// buffers[0] holds whatever sourceProcess published this cycle
//	g.Reset() // ready for the next cycle
//
// # Graph, Node, Socket
//
// A [Graph] owns a set of [Node] values and the ready queue they are
// scheduled through. Nodes belong to a graph weakly — releasing every
// strong reference to the Graph does not require unlinking every node
// first; an orphaned node just gets processed inline the next time
// something asks for its output, since there is no longer a queue to
// hand it off to.
//
// A [Node] does work through a [ProcessFunc] called at most once per
// cycle. Its [NodeState] moves Ready → Pending → Finished, or
// Ready → Pending → Error; a claim that cannot be scheduled is rolled
// back from Pending to Ready. [Graph.Reset] returns every node to Ready
// for the next cycle.
//
// A [Socket] is a [Node]'s connection point, either [Input] (at most one
// upstream) or [Output] (any number of downstream). [Connect] links an
// Input/Output pair; [Disconnect] removes a socket's connections. Both
// are idempotent and safe to call concurrently with [GetBuffers] on
// unrelated sockets — connect/disconnect only ever locks the handful of
// cells the operation actually touches, via the software transaction in
// txn.go, not the whole graph.
//
// # Pulling Buffers
//
// [GetBuffers] is the only entry point that actually runs anything. Given
// one or more Input sockets, it walks to whatever Nodes feed them,
// claims and schedules the ones not already Pending/Finished this cycle,
// and blocks until every claimed node reaches a terminal state —
// cooperatively draining the graph's ready queue while it waits, so a
// call blocked on one node may end up running someone else's claimed
// node in the meantime. It returns, for each socket, the byte slice its
// producer published (or nil, for a disconnected socket or one whose
// producing node no longer exists).
//
//	bufs, err := flowgraph.GetBuffers(inA, inB, inC)
//	if err != nil {
//	    var ferr *flowgraph.Error
//	    if errors.As(err, &ferr) && ferr.Kind == flowgraph.GraphGone {
//	        // a claimed node's graph disappeared mid-cycle
//	    }
//	}
//
// [ProcessOne] lets a background worker goroutine help drain a graph's
// ready queue outside of any particular GetBuffers call:
//
//	go func() {
//	    for {
//	        ran, err := flowgraph.ProcessOne(g)
//	        if !ran {
//	            time.Sleep(time.Millisecond)
//	            continue
//	        }
//	        _ = err // a node's process callback failed; its state is Error
//	    }
//	}()
//
// # Publishing Output
//
// A Node's process callback publishes data with [AllocBuffer], which
// reuses the socket's previously published buffer's storage when the
// requested size is unchanged, avoiding an allocation every cycle for
// nodes whose output size is stable:
//
//	func sourceProcess(n *flowgraph.Node) error {
//	    buf, err := flowgraph.AllocBuffer(out, 4096)
//	    if err != nil {
//	        return err
//	    }
//	    copy(buf, payload)
//	    return nil
//	}
//
// # Error Handling
//
// Every fallible operation returns a [*Error], classified by [Kind]:
// [InvalidArgument], [AllocationFailure], [ProcessFailure], or
// [GraphGone]. Use errors.As or (*Error).Is against a Kind value:
//
//	if errors.Is(err, flowgraph.GraphGone) {
//	    // ...
//	}
//
// The shared ready queue also reports [ErrWouldBlock] internally
// (sourced from [code.hybscloud.com/iox] for ecosystem consistency, the
// same convention the rest of the hayabusa-cloud stack uses) when full
// or empty. GetBuffers retries an empty dequeue with
// [code.hybscloud.com/spin] backoff, and ProcessOne reports an empty
// queue as (false, nil). A queue too small for one cycle's claims makes
// GetBuffers fail with a [ProcessFailure] error that wraps it.
//
// # Concurrency Model
//
// Reading the graph's topology never blocks: [Connect] and
// [Disconnect]'s software transaction only takes per-cell locks
// for the duration of its own commit, and GetBuffers' initial snapshot
// of upstream connections is a read-only transaction that cannot
// conflict with one. Node state transitions are single CAS operations.
// The shared ready queue is the same FAA-based SCQ algorithm
// [code.hybscloud.com/lfq]'s MPMC queue uses, since many GetBuffers
// callers may claim nodes concurrently and many drain loops consume
// them.
//
// # Race Detection
//
// As with the lock-free queue this package's ready queue is adapted
// from, Go's race detector cannot observe the happens-before
// relationships established by acquire-release atomics on separate
// variables, and may report false positives on the queue's cycle-based
// slot validation. Tests sensitive to this skip themselves when
// [RaceEnabled] is true.
//
// # Dependencies
//
// This package uses [code.hybscloud.com/atomix] for atomic primitives
// with explicit memory ordering, [code.hybscloud.com/spin] for CPU
// pause/backoff, and [code.hybscloud.com/iox] for semantic error
// classification on the ready queue.
package flowgraph
