// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flowgraph

import (
	"code.hybscloud.com/atomix"
)

// NodeState is the processing state of a Node within one GetBuffers
// cycle (spec §4.7). Every node starts each cycle Ready, moves to
// Pending the instant something claims it, and ends at Finished or
// Error. A node never reprocesses within the same cycle once it leaves
// Ready — callers that observe Finished or Error just read its already-
// published outputs.
type NodeState int32

const (
	// NodeReady means the node has not been claimed for this cycle.
	NodeReady NodeState = iota
	// NodePending means some caller has claimed the node and either
	// enqueued it or is about to run it directly.
	NodePending
	// NodeError means the node's process callback returned an error
	// this cycle.
	NodeError
	// NodeFinished means the node's process callback ran successfully
	// this cycle and its outputs are published.
	NodeFinished
)

func (s NodeState) String() string {
	switch s {
	case NodeReady:
		return "ready"
	case NodePending:
		return "pending"
	case NodeError:
		return "error"
	case NodeFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// ProcessFunc is a node's work callback. It is invoked at most once per
// GetBuffers cycle. Its input sockets are not pulled beforehand: a
// callback that reads them calls GetBuffers itself. It should publish its
// own output sockets (via AllocBuffer) before returning.
type ProcessFunc func(n *Node) error

// Node is one vertex of a processing graph (spec §4.7). A Node belongs to
// at most one Graph, referenced weakly so the graph can be torn down
// without waiting on every node to be released first.
type Node struct {
	Region
	graph   Weak[Graph]
	process ProcessFunc
	state   atomix.Int32
}

// NewNode creates a node owned by graph and registers it in the graph's
// node set. process is invoked by GetBuffers/ProcessOne whenever the node
// is claimed for a cycle.
func NewNode(graph *Graph, process ProcessFunc, destroy func(*Node)) *Node {
	n := &Node{process: process}
	var dtor func()
	if destroy != nil {
		dtor = func() { destroy(n) }
	}
	n.initRegion(dtor)
	n.state.StoreRelease(int32(NodeReady))

	if graph != nil {
		n.graph = newWeak(graph, &graph.Region)
		graph.addNode(n)
	}
	return n
}

// Unlink removes the node from its graph's node set. The node itself
// remains usable (its sockets keep whatever connections they have) but
// will never again be discovered by a GetBuffers call that walks the
// graph unless some socket still references it directly.
func (n *Node) Unlink() {
	g := n.graph.Load()
	if g == nil {
		return
	}
	defer g.Release()
	g.removeNode(n)
}

// Close unlinks the node from its graph, if any, on a best-effort basis —
// a graph that is already gone is not an error — and releases the
// caller's strong reference. This mirrors the original library's
// destructor chaining (gln_node_destroy unlinking before running the
// user's destroy callback) in a form callers invoke explicitly, since Go
// has no equivalent of a refcount reaching zero being the trigger for
// graph bookkeeping.
func (n *Node) Close() {
	n.Unlink()
	n.Release()
}

// state transition helpers used by the orchestrator (orchestrator.go).

func (n *Node) loadState() NodeState {
	return NodeState(n.state.LoadAcquire())
}

// claim attempts to move the node from Ready to Pending, reporting the
// state actually observed (which is NodeReady only on success).
func (n *Node) claim() (observed NodeState, claimed bool) {
	for {
		s := n.state.LoadAcquire()
		if s != int32(NodeReady) {
			return NodeState(s), false
		}
		if n.state.CompareAndSwapAcqRel(s, int32(NodePending)) {
			return NodeReady, true
		}
	}
}

// revertToReady undoes a claim that could not be enqueued (queue full, or
// the node's graph disappeared before it could be scheduled).
func (n *Node) revertToReady() {
	n.state.StoreRelease(int32(NodeReady))
}

func (n *Node) finish(err error) {
	if err != nil {
		n.state.StoreRelease(int32(NodeError))
		return
	}
	n.state.StoreRelease(int32(NodeFinished))
}

// resetCycle returns every Finished/Error node back to Ready, readying
// the graph for its next GetBuffers cycle. Called by Graph.Reset.
func (n *Node) resetCycle() {
	n.state.StoreRelease(int32(NodeReady))
}

// run invokes the node's process callback directly (no queue hand-off)
// and records the resulting state.
func (n *Node) run() error {
	var err error
	if n.process != nil {
		err = n.process(n)
	}
	n.finish(err)
	return err
}
