// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flowgraph

// Buffer is a ref-counted region of bytes published on an output
// Socket and consumed through its connected input Sockets (spec §4.6).
// A Buffer embeds a Region so multiple input sockets can share the same
// underlying allocation without copying: each GetBuffers call that reads
// it takes its own strong reference, released independently.
type Buffer struct {
	Region
	Data []byte
}

// newBuffer allocates a fresh Buffer of the requested size, backed by a
// single byte slice and a Region with no destructor: once every
// referencing socket has released it, the slice is left to the garbage
// collector.
func newBuffer(size int) *Buffer {
	b := &Buffer{Data: make([]byte, size)}
	b.initRegion(nil)
	return b
}

// AllocBuffer returns a byte slice of the requested size for socket to
// publish. If socket's currently published buffer is the exact same
// size, its storage is reused in place (same rule as the original
// gln_alloc_buffer: reuse avoids an allocation on every processing cycle
// for nodes whose output size never changes); otherwise a fresh Buffer is
// allocated and the old one released.
//
// The returned slice aliases the Buffer's storage — callers must not
// retain it past the processing cycle that produced it except through
// another GetBuffers call, which takes its own reference.
func AllocBuffer(socket *Socket, size int) ([]byte, error) {
	if socket.direction != Output {
		return nil, newError("AllocBuffer", InvalidArgument, nil)
	}
	if size < 0 {
		return nil, newError("AllocBuffer", InvalidArgument, nil)
	}

	if existing := socket.buffer.peek(); existing != nil && len(existing.Data) == size {
		return existing.Data, nil
	}

	b := newBuffer(size)
	socket.buffer.store(b)
	// store took its own reference; release the allocation-time one.
	b.Release()
	return b.Data, nil
}
