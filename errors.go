// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flowgraph

import (
	"fmt"

	"code.hybscloud.com/iox"
)

// ErrWouldBlock indicates the shared ready queue cannot accept or yield a
// node right now (full on enqueue, empty on dequeue). It is a control flow
// signal, not a failure. GetBuffers retries an empty dequeue with
// spin.Wait backoff; a full queue on GetBuffers' first claim-and-enqueue
// pass is not retried, and escapes this package wrapped in a *Error of
// kind [ProcessFailure].
//
// This is an alias for [iox.ErrWouldBlock] for ecosystem consistency, the
// same convention the rest of the hayabusa-cloud stack follows.
var ErrWouldBlock = iox.ErrWouldBlock

// IsWouldBlock reports whether err indicates the operation would block.
func IsWouldBlock(err error) bool {
	return iox.IsWouldBlock(err)
}

// IsSemantic reports whether err is a control flow signal rather than a
// failure.
func IsSemantic(err error) bool {
	return iox.IsSemantic(err)
}

// IsNonFailure reports whether err represents a non-failure condition.
func IsNonFailure(err error) bool {
	return iox.IsNonFailure(err)
}

// Kind classifies a *Error the way a caller typically wants to branch on:
// by what kind of thing went wrong, not by which operation reported it.
type Kind int

const (
	// InvalidArgument means a caller passed sockets/nodes that violate an
	// operation's preconditions (e.g. connecting two INPUT sockets).
	InvalidArgument Kind = iota
	// AllocationFailure means a buffer or supporting structure could not
	// be allocated.
	AllocationFailure
	// ProcessFailure means a node's process callback returned a non-nil
	// error, or a claimed node could not be scheduled.
	ProcessFailure
	// GraphGone means a node's owning Graph has already been collected,
	// so there is no queue left to coordinate processing through.
	GraphGone
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid argument"
	case AllocationFailure:
		return "allocation failure"
	case ProcessFailure:
		return "process failure"
	case GraphGone:
		return "graph gone"
	default:
		return "unknown"
	}
}

// Error is the error type returned by flowgraph's public operations. Op
// names the failing operation (e.g. "Connect", "GetBuffers"); Kind
// classifies the failure; Err, if non-nil, is the underlying cause (a
// node's process error, for instance).
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("flowgraph: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("flowgraph: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the same Kind, so callers can write
// errors.Is(err, flowgraph.GraphGone) directly against a Kind value.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && e.Kind == k
}

func (k Kind) Error() string {
	return k.String()
}

func newError(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}
