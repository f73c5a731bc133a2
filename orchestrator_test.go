// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flowgraph

import (
	"sync/atomic"
	"testing"
)

// pipeline builds the three-node scenario from spec §8: gen produces
// lowercase letters on O1; upper reads O1 and produces their uppercase
// equivalent on O2; interp reads O1 and O2 and interleaves them on O3.
type pipeline struct {
	g *Graph

	gen, upper, interp *Node

	o1 *Socket // gen's output
	i1 *Socket // upper's input,  <- o1
	o2 *Socket // upper's output
	i2 *Socket // interp's input, <- o1
	i3 *Socket // interp's input, <- o2
	o3 *Socket // interp's output

	consumerIn *Socket // <- o3

	genCalls int32
}

func newPipeline() *pipeline {
	p := &pipeline{g: New()}

	p.gen = NewNode(p.g, p.genProcess, nil)
	p.o1 = NewSocket(p.gen, Output, nil)

	p.upper = NewNode(p.g, p.upperProcess, nil)
	p.i1 = NewSocket(p.upper, Input, nil)
	p.o2 = NewSocket(p.upper, Output, nil)

	p.interp = NewNode(p.g, p.interpProcess, nil)
	p.i2 = NewSocket(p.interp, Input, nil)
	p.i3 = NewSocket(p.interp, Input, nil)
	p.o3 = NewSocket(p.interp, Output, nil)

	consumer := NewNode(p.g, nil, nil)
	p.consumerIn = NewSocket(consumer, Input, nil)

	return p
}

const pipelineLen = 10

func (p *pipeline) genProcess(*Node) error {
	atomic.AddInt32(&p.genCalls, 1)
	buf, err := AllocBuffer(p.o1, pipelineLen)
	if err != nil {
		return err
	}
	for k := 0; k < pipelineLen; k++ {
		buf[k] = 'a' + byte(k%26)
	}
	return nil
}

func (p *pipeline) upperProcess(*Node) error {
	bufs, err := GetBuffers(p.i1)
	if err != nil {
		return err
	}
	in := bufs[0]

	out, err := AllocBuffer(p.o2, pipelineLen)
	if err != nil {
		return err
	}
	for k := 0; k < pipelineLen; k++ {
		if in == nil {
			out[k] = 0
			continue
		}
		c := in[k]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[k] = c
	}
	return nil
}

func (p *pipeline) interpProcess(*Node) error {
	bufs, err := GetBuffers(p.i2, p.i3)
	if err != nil {
		return err
	}
	i2, i3 := bufs[0], bufs[1]

	out, err := AllocBuffer(p.o3, pipelineLen)
	if err != nil {
		return err
	}
	for k := 0; k < pipelineLen; k++ {
		if k%2 == 0 {
			if i2 == nil {
				out[k] = 0
			} else {
				out[k] = i2[k/2]
			}
		} else {
			if i3 == nil {
				out[k] = 0
			} else {
				out[k] = i3[(k-1)/2]
			}
		}
	}
	return nil
}

func (p *pipeline) connectAll(t *testing.T) {
	t.Helper()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("Connect: %v", err)
		}
	}
	must(Connect(p.o1, p.i1))
	must(Connect(p.o1, p.i2))
	must(Connect(p.o2, p.i3))
	must(Connect(p.o3, p.consumerIn))
}

// TestPipelineFullWiring is scenario 1 from spec §8.
func TestPipelineFullWiring(t *testing.T) {
	p := newPipeline()
	p.connectAll(t)

	bufs, err := GetBuffers(p.consumerIn)
	if err != nil {
		t.Fatalf("GetBuffers: %v", err)
	}
	got := string(bufs[0][:pipelineLen])
	want := "aAbBcCdDeE"
	if got != want {
		t.Fatalf("first cycle: got %q, want %q", got, want)
	}
}

// TestPipelineDisconnectI2 is scenario 2 from spec §8.
func TestPipelineDisconnectI2(t *testing.T) {
	p := newPipeline()
	p.connectAll(t)

	if _, err := GetBuffers(p.consumerIn); err != nil {
		t.Fatalf("first GetBuffers: %v", err)
	}

	p.g.Reset()
	if err := Disconnect(p.i2); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	bufs, err := GetBuffers(p.consumerIn)
	if err != nil {
		t.Fatalf("GetBuffers: %v", err)
	}
	got := string(bufs[0][:pipelineLen])
	want := "\x00A\x00B\x00C\x00D\x00E"
	if got != want {
		t.Fatalf("after disconnecting I2: got %q, want %q", got, want)
	}
}

// TestPipelineDestroyUpper is scenario 4 from spec §8: upper is removed
// from the pipeline (its sockets disconnected). O1->I2 was already wired
// directly in connectAll, so interp keeps receiving gen's output; I3
// loses its only upstream and stays permanently dry.
func TestPipelineDestroyUpper(t *testing.T) {
	p := newPipeline()
	p.connectAll(t)
	if _, err := GetBuffers(p.consumerIn); err != nil {
		t.Fatalf("first GetBuffers: %v", err)
	}

	p.g.Reset()
	p.i1.Close() // upper's input: drops its O1 subscription
	p.o2.Close() // upper's output: drops interp's I3 subscription
	p.upper.Close()

	// O1->I2 is untouched by the above, so interp still receives gen's
	// output directly; I3 has nothing left feeding it.
	bufs, err := GetBuffers(p.consumerIn)
	if err != nil {
		t.Fatalf("GetBuffers: %v", err)
	}
	got := string(bufs[0][:pipelineLen])
	want := "a\x00b\x00c\x00d\x00e\x00"
	if got != want {
		t.Fatalf("after destroying upper: got %q, want %q", got, want)
	}
}

// TestConnectTwoOutputsFails is scenario 5 from spec §8.
func TestConnectTwoOutputsFails(t *testing.T) {
	p := newPipeline()
	if err := Connect(p.o1, p.o2); !isKind(err, InvalidArgument) {
		t.Fatalf("Connect(O1, O2): got %v, want InvalidArgument", err)
	}
}

func TestGetBuffersOnUnconnectedSocketSucceedsWithNilBuffer(t *testing.T) {
	n := NewNode(nil, nil, nil)
	in := NewSocket(n, Input, nil)

	bufs, err := GetBuffers(in)
	if err != nil {
		t.Fatalf("GetBuffers: %v", err)
	}
	if bufs[0] != nil {
		t.Fatalf("buffer for an unconnected socket: got %v, want nil", bufs[0])
	}
}

func TestGetBuffersOnEmptyGraphResetSucceeds(t *testing.T) {
	g := New()
	g.Reset()

	n := NewNode(nil, nil, nil)
	in := NewSocket(n, Input, nil)
	if _, err := GetBuffers(in); err != nil {
		t.Fatalf("GetBuffers on an unconnected socket after an empty-graph reset: %v", err)
	}
}

func TestGetBuffersRejectsOutputSocket(t *testing.T) {
	n := NewNode(nil, nil, nil)
	out := NewSocket(n, Output, nil)
	if _, err := GetBuffers(out); !isKind(err, InvalidArgument) {
		t.Fatalf("GetBuffers(output socket): got %v, want InvalidArgument", err)
	}
}

func TestGetBuffersPropagatesProcessFailure(t *testing.T) {
	g := New()
	boom := newError("boom", ProcessFailure, nil)
	src := NewNode(g, func(*Node) error { return boom }, nil)
	out := NewSocket(src, Output, nil)

	sink := NewNode(g, nil, nil)
	in := NewSocket(sink, Input, nil)
	Connect(out, in)

	if _, err := GetBuffers(in); !isKind(err, ProcessFailure) {
		t.Fatalf("GetBuffers with a failing upstream: got %v, want ProcessFailure", err)
	}
}

func TestGetBuffersSharesQueueAcrossGraph(t *testing.T) {
	// Capacity must cover a full cycle's worth of distinct claims, since
	// GetBuffers claims and enqueues sequentially before it ever drains
	// (see [WithQueueCapacity]'s doc comment).
	g := New(WithQueueCapacity(32))

	var runs int32
	makeNode := func() (*Node, *Socket) {
		n := NewNode(g, func(*Node) error {
			atomic.AddInt32(&runs, 1)
			return nil
		}, nil)
		return n, NewSocket(n, Output, nil)
	}

	sink := NewNode(g, nil, nil)

	const fanIn = 6
	ins := make([]*Socket, fanIn)
	for i := 0; i < fanIn; i++ {
		_, out := makeNode()
		in := NewSocket(sink, Input, nil)
		Connect(out, in)
		ins[i] = in
	}

	if _, err := GetBuffers(ins...); err != nil {
		t.Fatalf("GetBuffers: %v", err)
	}
	if got := atomic.LoadInt32(&runs); got != fanIn {
		t.Fatalf("producer run count: got %d, want %d", got, fanIn)
	}
}

func TestProcessOneReportsEmptyQueue(t *testing.T) {
	g := New()
	if ran, err := ProcessOne(g); ran || err != nil {
		t.Fatalf("ProcessOne on an empty queue: ran=%v err=%v, want false,nil", ran, err)
	}
}

// TestGetBuffersDeadProducerNodeYieldsNilBuffer exercises the dead-output
// path in GetBuffers (spec §4.9 step 2 / SPEC_FULL §4's "dead output
// socket" supplement): once a producer Node's last strong reference is
// released, its output socket's node backlink can no longer promote, so a
// downstream GetBuffers call must see a nil buffer rather than hang or
// error. The output socket itself stays alive and connected throughout —
// only the node dies.
func TestGetBuffersDeadProducerNodeYieldsNilBuffer(t *testing.T) {
	g := New()

	var out *Socket
	producer := NewNode(g, func(*Node) error {
		buf, err := AllocBuffer(out, 3)
		if err != nil {
			return err
		}
		copy(buf, "hi!")
		return nil
	}, nil)
	out = NewSocket(producer, Output, nil)

	sink := NewNode(g, nil, nil)
	in := NewSocket(sink, Input, nil)
	if err := Connect(out, in); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if bufs, err := GetBuffers(in); err != nil || string(bufs[0]) != "hi!" {
		t.Fatalf("first GetBuffers: bufs=%v err=%v", bufs, err)
	}
	g.Reset()

	// Drop the only strong reference to the producer node. out remains
	// alive and still connected, but out.node can no longer promote.
	producer.Release()

	bufs, err := GetBuffers(in)
	if err != nil {
		t.Fatalf("GetBuffers after producer death: %v", err)
	}
	if bufs[0] != nil {
		t.Fatalf("buffer after producer death: got %v, want nil", bufs[0])
	}
}

// TestGetBuffersReportsGraphGoneForOrphanedPendingNode exercises the
// GraphGone path (spec §4.9 step 4 / §7): a node claimed Pending whose
// owning graph has since lost its last strong reference can never be
// discovered through any queue again, so GetBuffers must fail rather than
// spin forever waiting for it to finish.
func TestGetBuffersReportsGraphGoneForOrphanedPendingNode(t *testing.T) {
	g := New()

	n := NewNode(g, nil, nil)
	out := NewSocket(n, Output, nil)
	sink := NewNode(g, nil, nil)
	in := NewSocket(sink, Input, nil)
	if err := Connect(out, in); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if _, claimed := n.claim(); !claimed {
		t.Fatalf("claim: node was not Ready")
	}
	// Drop the only strong reference to the graph without ever enqueuing
	// n, simulating a claim whose owning graph died before the claimer
	// could hand the node off to its queue.
	g.Release()

	if _, err := GetBuffers(in); !isKind(err, GraphGone) {
		t.Fatalf("GetBuffers: got %v, want GraphGone", err)
	}
}
