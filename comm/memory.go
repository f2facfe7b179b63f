package comm

import (
	"fmt"
	"sync"

	"github.com/hhcho/ring2k-kernel/sharetype"
)

// memoryFabric is the shared rendezvous every MemoryCommunicator in a group
// talks through: one buffered channel per (from, to, tag) triple.
type memoryFabric struct {
	mu    sync.Mutex
	boxes map[string]chan sharetype.Tensor
}

func newMemoryFabric() *memoryFabric {
	return &memoryFabric{boxes: make(map[string]chan sharetype.Tensor)}
}

func (f *memoryFabric) box(from, to int, tag string) chan sharetype.Tensor {
	key := fmt.Sprintf("%d->%d:%s", from, to, tag)
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.boxes[key]
	if !ok {
		ch = make(chan sharetype.Tensor, 64)
		f.boxes[key] = ch
	}
	return ch
}

// MemoryCommunicator is an in-process Communicator over Go channels: no
// sockets, no serialization, deterministic delivery order per box. Intended
// for package tests and the single-process cmd/demo simulation, where the
// teacher itself dials real TCP (mpc/netconnect.go) — this kernel adds the
// hermetic counterpart spec section 5's CONCURRENCY model implies tests need.
type MemoryCommunicator struct {
	rank      int
	world     int
	fabric    *memoryFabric
	mu        sync.Mutex
	sentB     map[int]uint64
	recvB     map[int]uint64
}

// NewMemoryGroup builds `world` MemoryCommunicators sharing one fabric, one
// per party rank 0..world-1.
func NewMemoryGroup(world int) []*MemoryCommunicator {
	fabric := newMemoryFabric()
	out := make([]*MemoryCommunicator, world)
	for r := 0; r < world; r++ {
		out[r] = &MemoryCommunicator{
			rank:   r,
			world:  world,
			fabric: fabric,
			sentB:  make(map[int]uint64),
			recvB:  make(map[int]uint64),
		}
	}
	return out
}

func (m *MemoryCommunicator) Rank() int      { return m.rank }
func (m *MemoryCommunicator) WorldSize() int { return m.world }
func (m *MemoryCommunicator) NextRank() int  { return (m.rank + 1) % m.world }
func (m *MemoryCommunicator) PrevRank() int  { return (m.rank - 1 + m.world) % m.world }

func tensorByteSize(t sharetype.Tensor) int {
	r, c := t.Dims()
	if r == 0 || c == 0 {
		return 0
	}
	return r * c * int(t.Field.Zero().NumBytes())
}

func (m *MemoryCommunicator) SendAsync(t sharetype.Tensor, to int, tag string) error {
	if to < 0 || to >= m.world {
		return fmt.Errorf("comm: invalid rank %d", to)
	}
	m.fabric.box(m.rank, to, tag) <- t.Copy()
	m.mu.Lock()
	m.sentB[to] += uint64(tensorByteSize(t))
	m.mu.Unlock()
	return nil
}

func (m *MemoryCommunicator) Recv(from int, tag string, field sharetype.Field, rows, cols int, kind sharetype.Kind) (sharetype.Tensor, error) {
	if from < 0 || from >= m.world {
		return sharetype.Tensor{}, fmt.Errorf("comm: invalid rank %d", from)
	}
	t := <-m.fabric.box(from, m.rank, tag)
	m.mu.Lock()
	m.recvB[from] += uint64(tensorByteSize(t))
	m.mu.Unlock()
	return t, nil
}

// AllReduce implements a simple ring all-gather-then-sum: every party sends
// its tensor to every other party tagged with its own rank, then sums
// whatever arrives. This is the N-party symmetric analogue of the teacher's
// RevealSymMat (mpc/mpc.go), generalized off the hub-and-spoke topology the
// teacher's 3-party deployment uses.
func (m *MemoryCommunicator) AllReduce(op ReduceOp, t sharetype.Tensor, tag string) (sharetype.Tensor, error) {
	if op != Sum {
		return sharetype.Tensor{}, fmt.Errorf("comm: unsupported reduce op %d", op)
	}
	rows, cols := t.Dims()
	for p := 0; p < m.world; p++ {
		if p == m.rank {
			continue
		}
		if err := m.SendAsync(t, p, tag); err != nil {
			return sharetype.Tensor{}, err
		}
	}
	acc := t.Copy()
	for p := 0; p < m.world; p++ {
		if p == m.rank {
			continue
		}
		other, err := m.Recv(p, tag, t.Field, rows, cols, t.Kind)
		if err != nil {
			return sharetype.Tensor{}, err
		}
		acc.Buf.Add(other.Buf)
	}
	return acc, nil
}

// Gather sends every party's tensor to root; root receives world-1 tensors
// plus its own.
func (m *MemoryCommunicator) Gather(root int, t sharetype.Tensor, tag string) ([]sharetype.Tensor, error) {
	rows, cols := t.Dims()
	if m.rank != root {
		return nil, m.SendAsync(t, root, tag)
	}
	out := make([]sharetype.Tensor, m.world)
	out[root] = t
	for p := 0; p < m.world; p++ {
		if p == root {
			continue
		}
		other, err := m.Recv(p, tag, t.Field, rows, cols, t.Kind)
		if err != nil {
			return nil, err
		}
		out[p] = other
	}
	return out, nil
}

func (m *MemoryCommunicator) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	sent := make(map[int]uint64, len(m.sentB))
	recv := make(map[int]uint64, len(m.recvB))
	for k, v := range m.sentB {
		sent[k] = v
	}
	for k, v := range m.recvB {
		recv[k] = v
	}
	return Stats{Sent: sent, Received: recv}
}

func (m *MemoryCommunicator) AddCommStatsManually(peer int, bytesSent, bytesReceived int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentB[peer] += uint64(bytesSent)
	m.recvB[peer] += uint64(bytesReceived)
}
