// Package comm defines the Communicator external interface the kernel
// depends on (spec section 6): rank/worldSize topology, an allReduce
// primitive the masked-open subroutine uses to combine shares, point-to-point
// send/receive for the two-party protocols (MulVVS, TruncAPr2), and byte
// accounting. Two implementations are provided: a TCP one grounded in the
// teacher's mpc/netconnect.go + mpc/sendrecieve.go + mpc/marshal.go, and an
// in-memory one for hermetic tests (the teacher's own test suite dials real
// TCP addresses, which this kernel's package tests deliberately avoid).
package comm

import (
	mpc_core "github.com/hhcho/mpc-core"

	"github.com/hhcho/ring2k-kernel/sharetype"
)

// ReduceOp names the combining operation for AllReduce.
type ReduceOp int

const (
	Sum ReduceOp = iota
)

// Communicator is the collective/point-to-point transport the kernel builds
// every protocol on top of. Implementations need not be safe for concurrent
// use by multiple goroutines driving the same Context; the kernel serializes
// communication per Context (spec section 5, CONCURRENCY & RESOURCE MODEL).
type Communicator interface {
	Rank() int
	WorldSize() int
	NextRank() int
	PrevRank() int

	// AllReduce combines t with every other party's tensor of the same tag
	// and shape using op, returning the combined result to every party
	// (the masked-open subroutine's core primitive).
	AllReduce(op ReduceOp, t sharetype.Tensor, tag string) (sharetype.Tensor, error)

	// Gather collects every party's tensor at rank `root`; non-root callers
	// get back a nil slice.
	Gather(root int, t sharetype.Tensor, tag string) ([]sharetype.Tensor, error)

	// SendAsync ships t to `to` without blocking for acknowledgement; the
	// returned error reports a bad peer or a failure to encode or write t,
	// never whether the peer received it.
	SendAsync(t sharetype.Tensor, to int, tag string) error

	// Recv blocks for a tensor tagged `tag` sent by `from`, shaped to match
	// shape (rows, cols) over field.
	Recv(from int, tag string, field sharetype.Field, rows, cols int, kind sharetype.Kind) (sharetype.Tensor, error)

	// Stats reports cumulative bytes sent/received per peer (the teacher's
	// Network.SentBytes/ReceivedBytes, carried onto the interface per
	// SPEC_FULL section 12).
	Stats() Stats

	// AddCommStatsManually lets a caller charge bytes to the accounting
	// table without an actual transport call — used when a protocol step
	// reuses a value obtained out-of-band (e.g. replayed from cache) but
	// still wants accurate cost accounting, mirroring the teacher's
	// addCommStatsManually hook named explicitly in spec section 6.
	AddCommStatsManually(peer int, bytesSent, bytesReceived int)
}

// Stats is a point-in-time snapshot of per-peer byte counters.
type Stats struct {
	Sent     map[int]uint64
	Received map[int]uint64
}

// ringZero builds a correctly-shaped zero RMat for field, used by
// implementations to seed receive buffers before they know the peer's
// exact values.
func ringZero(field sharetype.Field, rows, cols int) mpc_core.RMat {
	return mpc_core.InitRMat(field.Zero(), rows, cols)
}
