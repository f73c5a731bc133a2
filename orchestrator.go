// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flowgraph

import "code.hybscloud.com/spin"

// GetBuffers is the pull-driven entry point of spec §4.9: it drives
// processing of whatever upstream nodes feed sockets (which must all be
// Input sockets) and returns, for each, the buffer its producer
// published this cycle.
//
// A disconnected socket, or one whose upstream node has been destroyed,
// yields a nil buffer rather than an error — a graph missing part of its
// wiring is a normal, representable state, not a failure.
//
// GetBuffers cooperatively drains the owning Graph's ready queue while
// it waits: any call blocked here may end up running some other caller's
// claimed node, same as a worker goroutine would.
func GetBuffers(sockets ...*Socket) ([][]byte, error) {
	connected := make([]*Socket, len(sockets))

	h := StartTxn()
	for i, s := range sockets {
		if s.direction != Input {
			h.Abort()
			return nil, newError("GetBuffers", InvalidArgument, nil)
		}
		w := TxnLoad(h, s.in)
		if w != nil {
			connected[i] = w.Load()
		}
	}
	h.Abort()

	seen := emptySnapshot[Node]()
	var waitNodes []*Node

	abort := func(err error) ([][]byte, error) {
		for _, n := range waitNodes {
			n.Release()
		}
		for _, cs := range connected {
			if cs != nil {
				cs.Release()
			}
		}
		return nil, err
	}

	for i, cs := range connected {
		if cs == nil {
			continue
		}
		node := cs.node.Load()
		if node == nil {
			// The producing socket's owning node is gone: it will
			// never publish again, so its buffer is permanently nil.
			cs.buffer.store(nil)
			cs.Release()
			connected[i] = nil
			continue
		}

		if _, found := seen.search(uintptrOf(node)); found {
			node.Release()
			continue
		}
		seen = seen.dupAdd(newWeak(node, &node.Region))

		prevState, claimed := node.claim()
		if claimed {
			g := node.graph.Load()
			if g == nil {
				// No queue to hand this off to; it stays Ready and
				// the wait loop below runs it inline.
				node.revertToReady()
			} else {
				node.IncRef()
				err := g.queue.enqueue(node)
				g.Release()
				if err != nil {
					node.revertToReady()
					node.Release()
					return abort(newError("GetBuffers", ProcessFailure, err))
				}
			}
		} else if prevState == NodeFinished {
			node.Release()
			continue
		} else if prevState == NodeError {
			node.Release()
			return abort(newError("GetBuffers", ProcessFailure, nil))
		}

		waitNodes = append(waitNodes, node)
	}

	for _, node := range waitNodes {
		sw := spin.Wait{}
		for {
			state := node.loadState()
			if state == NodeFinished {
				break
			}
			if state == NodeError {
				return abort(newError("GetBuffers", ProcessFailure, nil))
			}

			g := node.graph.Load()

			if state == NodeReady {
				if _, claimed := node.claim(); claimed {
					if g == nil {
						node.run()
					} else {
						node.IncRef()
						if err := g.queue.enqueue(node); err != nil {
							node.revertToReady()
							node.Release()
						}
					}
				}
				if g != nil {
					g.Release()
				}
				sw.Once()
				continue
			}

			if g == nil {
				// Pending, but no graph left to discover whose queue
				// it's sitting in — we cannot know it will ever run.
				return abort(newError("GetBuffers", GraphGone, nil))
			}

			next, err := g.queue.dequeue()
			g.Release()
			if err != nil || next == nil {
				sw.Once()
				continue
			}
			next.run()
			next.Release()
		}
	}

	buffers := make([][]byte, len(sockets))
	for i, s := range sockets {
		cs := connected[i]
		if cs == nil {
			s.buffer.store(nil)
			continue
		}
		buf := cs.buffer.load()
		if buf != nil {
			buffers[i] = buf.Data
			s.buffer.store(buf)
			buf.Release()
		} else {
			s.buffer.store(nil)
		}
		cs.Release()
	}

	for _, n := range waitNodes {
		n.Release()
	}

	return buffers, nil
}

// ProcessOne dequeues and runs a single node from graph's ready queue,
// reporting false when the queue currently has nothing to do. It is
// meant to be called in a loop by background worker goroutines that want
// to help drain a graph's queue outside of any particular GetBuffers
// call.
func ProcessOne(g *Graph) (bool, error) {
	n, err := g.queue.dequeue()
	if err != nil || n == nil {
		return false, nil
	}
	runErr := n.run()
	n.Release()
	if runErr != nil {
		return true, newError("ProcessOne", ProcessFailure, runErr)
	}
	return true, nil
}
