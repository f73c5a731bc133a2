// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flowgraph

// defaultQueueCapacity is the ready queue size used when no [WithQueueCapacity]
// option is given. It rounds up to the next power of 2 in newWorkQueue, same
// as the teacher queue family's capacity argument.
const defaultQueueCapacity = 256

// Option configures a Graph at construction time, the same fluent-builder
// shape the underlying queue family uses for its own construction knobs.
type Option func(*graphOptions)

type graphOptions struct {
	queueCapacity int
}

// WithQueueCapacity sets the shared ready queue's capacity (rounded up to
// the next power of 2). Size it to roughly the graph's node count so a
// full cycle's worth of claims never blocks on enqueue.
func WithQueueCapacity(capacity int) Option {
	return func(o *graphOptions) {
		o.queueCapacity = capacity
	}
}

// Graph owns a set of Nodes and the shared ready queue they are scheduled
// through (spec §4.9). A Graph is itself ref-counted: Nodes hold a weak
// reference back to it, so releasing every strong reference to a Graph
// (dropping it) does not require first unlinking every node — those
// nodes simply find graph.Load() returns nil on their next cycle, and
// get processed inline (see orchestrator.go's graph-less-node handling).
type Graph struct {
	Region
	nodes *Cell[snapshot[Node]]
	queue *workQueue
}

// New creates an empty Graph.
func New(opts ...Option) *Graph {
	o := graphOptions{queueCapacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(&o)
	}

	g := &Graph{
		nodes: newCell(emptySnapshot[Node]()),
		queue: newWorkQueue(o.queueCapacity),
	}
	g.initRegion(g.queue.drain)
	return g
}

// Shutdown marks g's ready queue as draining: any [ProcessOne] caller that
// keeps pulling work afterward skips the queue's livelock-prevention
// threshold check, since no further GetBuffers caller is left to keep
// nudging it forward with fresh enqueues. g's last Release already does
// this automatically (see New); call Shutdown directly when a caller keeps
// a strong reference around for bookkeeping after retiring g from service,
// so background drainers aren't left waiting on a threshold nothing will
// ever reset.
func (g *Graph) Shutdown() {
	g.queue.drain()
}

func (g *Graph) addNode(n *Node) {
	for {
		cur := g.nodes.Load()
		next := cur.dupAdd(newWeak(n, &n.Region))
		if g.nodes.CompareAndSwap(cur, next) {
			return
		}
	}
}

func (g *Graph) removeNode(n *Node) {
	for {
		cur := g.nodes.Load()
		next := cur.dupRemove(newWeak(n, &n.Region))
		if g.nodes.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Reset returns every node in the graph to NodeReady, preparing it for
// another GetBuffers cycle. Call it once after draining a cycle, before
// requesting buffers again.
func (g *Graph) Reset() {
	g.nodes.Load().each(func(w Weak[Node]) {
		n := w.Load()
		if n == nil {
			return
		}
		n.resetCycle()
		n.Release()
	})
}
