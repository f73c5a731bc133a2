// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flowgraph

// Direction distinguishes a Socket that receives data (Input) from one
// that produces it (Output).
type Direction int

const (
	// Input sockets read the buffer most recently published by whatever
	// single Output socket they are connected to, or none at all.
	Input Direction = iota
	// Output sockets publish a buffer each cycle for every connected
	// Input socket to read.
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Socket is one connection point of a Node (spec §4.8). An Input socket
// holds at most one upstream connection; an Output socket fans out to any
// number of Input sockets. Exactly one of in/out is non-nil, chosen by
// direction at construction time.
type Socket struct {
	Region
	node      Weak[Node]
	direction Direction

	in  *Cell[Weak[Socket]]     // non-nil when direction == Input
	out *Cell[snapshot[Socket]] // non-nil when direction == Output

	buffer bufferCell
}

// NewSocket creates a socket owned by node.
func NewSocket(node *Node, direction Direction, destroy func(*Socket)) *Socket {
	s := &Socket{direction: direction}
	var dtor func()
	if destroy != nil {
		dtor = func() { destroy(s) }
	}
	s.initRegion(dtor)

	if node != nil {
		s.node = newWeak(node, &node.Region)
	}

	if direction == Input {
		s.in = newCell[Weak[Socket]](nil)
	} else {
		s.out = newCell(emptySnapshot[Socket]())
	}
	return s
}

func (s *Socket) weak() Weak[Socket] {
	return newWeak(s, &s.Region)
}

// Close disconnects the socket from its peer(s) on a best-effort basis
// and releases the caller's strong reference, mirroring the original
// library's gln_socket_destroy (disconnect before running the user's
// destroy callback).
func (s *Socket) Close() {
	Disconnect(s)
	s.Release()
}

// Connect links socket and other, one of which must be an Input socket
// and the other an Output socket (order does not matter). Connecting an
// already-connected pair is a no-op; connecting an Input socket that was
// already connected elsewhere silently replaces its previous connection,
// same as the library this was adapted from.
func Connect(socket, other *Socket) error {
	out, in := socket, other
	switch {
	case socket.direction == Output && other.direction == Input:
		// already in the right order
	case socket.direction == Input && other.direction == Output:
		out, in = other, socket
	default:
		return newError("Connect", InvalidArgument, nil)
	}

	for {
		h := StartTxn()

		connected := TxnLoad(h, in.in)
		if connected != nil && connected.Equal(out.weak()) {
			h.Abort()
			return nil
		}

		var connectedSocket *Socket
		if connected != nil {
			connectedSocket = connected.Load()
		}
		if connectedSocket != nil {
			list := TxnLoad(h, connectedSocket.out)
			TxnStore(h, connectedSocket.out, list.dupRemove(in.weak()))
			connectedSocket.Release()
		}

		list := TxnLoad(h, out.out)
		TxnStore(h, out.out, list.dupAdd(in.weak()))

		outWeak := out.weak()
		TxnStore(h, in.in, &outWeak)

		if h.Commit() {
			return nil
		}
	}
}

// Disconnect removes every connection socket currently has. For an Input
// socket that is at most one upstream; for an Output socket, every
// downstream Input it fans out to.
func Disconnect(socket *Socket) error {
	if socket.direction == Input {
		return disconnectInput(socket)
	}
	return disconnectOutput(socket)
}

func disconnectInput(socket *Socket) error {
	for {
		h := StartTxn()

		connected := TxnLoad(h, socket.in)
		if connected == nil {
			h.Abort()
			return nil
		}
		connectedSocket := connected.Load()
		if connectedSocket == nil {
			h.Abort()
			return nil
		}

		list := TxnLoad(h, connectedSocket.out)
		TxnStore(h, connectedSocket.out, list.dupRemove(socket.weak()))
		connectedSocket.Release()

		TxnStore(h, socket.in, (*Weak[Socket])(nil))

		if h.Commit() {
			return nil
		}
	}
}

func disconnectOutput(socket *Socket) error {
	for {
		h := StartTxn()

		list := TxnLoad(h, socket.out)
		if list.len() == 0 {
			h.Abort()
			return nil
		}

		list.each(func(w Weak[Socket]) {
			connectedSocket := w.Load()
			if connectedSocket == nil {
				return
			}
			TxnStore(h, connectedSocket.in, (*Weak[Socket])(nil))
			connectedSocket.Release()
		})

		TxnStore(h, socket.out, emptySnapshot[Socket]())

		if h.Commit() {
			return nil
		}
	}
}
