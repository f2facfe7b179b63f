package comm

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"net"
	"sync"
	"time"

	mpc_core "github.com/hhcho/mpc-core"
	"go.dedis.ch/onet/v3/log"

	"github.com/hhcho/ring2k-kernel/sharetype"
)

func init() {
	// Registered once for the process: every concrete ring element type the
	// kernel's Fields can produce, following mpc/mpc.go's initMPCEnv.
	gob.Register(mpc_core.LElem256Zero)
	gob.Register(mpc_core.LElem128Zero)
	gob.Register(mpc_core.LElem2N(0))
	gob.Register(mpc_core.LElemP(0))
	gob.Register(mpc_core.SElemDS(0))
	gob.Register(mpc_core.SElemC(0))
	gob.Register(mpc_core.BElem(0))
	gob.Register(mpc_core.LElem2NBigIntZero)
	gob.Register(mpc_core.RVec{nil})
	gob.Register(mpc_core.RMat{nil})
}

// wireTensor is the gob-encoded envelope for a Tensor crossing the wire: the
// tag metadata plus the buffer, following mpc/marshal.go's MarshalRData for
// the buffer half.
type wireTensor struct {
	Kind  sharetype.Kind
	Bits  int
	Owner int
	Buf   mpc_core.RMat
}

// TCPCommunicator is the production Communicator: one persistent connection
// per peer, length-prefixed gob frames. Grounded in mpc/netconnect.go
// (connection setup/bookkeeping) and mpc/sendrecieve.go (SendRData /
// ReceiveRMat's length-prefix-then-payload framing).
type TCPCommunicator struct {
	rank  int
	world int

	mu    sync.Mutex
	conns map[int]net.Conn

	statsMu  sync.Mutex
	sentB    map[int]uint64
	recvB    map[int]uint64
	tagCh    map[string]chan sharetype.Tensor
	tagChMu  sync.Mutex
	listener net.Listener
}

// DialTCPGroup connects rank to every peer address in addrs (indexed by
// rank, addrs[rank] is this party's own listen address) and accepts
// incoming connections from lower ranks, exactly as initNetworkForThread
// does: each pair of parties opens exactly one connection, lower rank
// dials, higher rank accepts.
func DialTCPGroup(rank int, addrs []string) (*TCPCommunicator, error) {
	world := len(addrs)
	t := &TCPCommunicator{
		rank:  rank,
		world: world,
		conns: make(map[int]net.Conn),
		sentB: make(map[int]uint64),
		recvB: make(map[int]uint64),
		tagCh: make(map[string]chan sharetype.Tensor),
	}

	ln, err := net.Listen("tcp", addrs[rank])
	if err != nil {
		return nil, fmt.Errorf("comm: listen on %s: %w", addrs[rank], err)
	}
	t.listener = ln

	var wg sync.WaitGroup
	for p := 0; p < world; p++ {
		if p == rank {
			continue
		}
		if p < rank {
			// Lower rank dials us; accept in the background.
			wg.Add(1)
			go func(peer int) {
				defer wg.Done()
				conn, err := ln.Accept()
				if err != nil {
					log.Fatal("comm: accept failed:", err)
				}
				t.mu.Lock()
				t.conns[peer] = conn
				t.mu.Unlock()
			}(p)
		} else {
			wg.Add(1)
			go func(peer int, addr string) {
				defer wg.Done()
				var conn net.Conn
				var err error
				for i := 0; i < 100; i++ {
					conn, err = net.Dial("tcp", addr)
					if err == nil {
						break
					}
					time.Sleep(100 * time.Millisecond)
				}
				if err != nil {
					log.Fatal("comm: dial", addr, "failed:", err)
				}
				t.mu.Lock()
				t.conns[peer] = conn
				t.mu.Unlock()
			}(p, addrs[p])
		}
	}
	wg.Wait()

	go t.demux()
	return t, nil
}

// demux is unused by the synchronous Send/Recv path below. Tags are not
// carried on the wire: Recv returns the next frame on the peer's connection
// whatever tag it is called with, so frames arrive in the order the peer
// sent them. Kept as a named method so future async delivery (fan-in across
// all peer conns into per-tag channels) has an obvious home.
func (t *TCPCommunicator) demux() {}

func (t *TCPCommunicator) Rank() int      { return t.rank }
func (t *TCPCommunicator) WorldSize() int { return t.world }
func (t *TCPCommunicator) NextRank() int  { return (t.rank + 1) % t.world }
func (t *TCPCommunicator) PrevRank() int  { return (t.rank - 1 + t.world) % t.world }

func writeFull(conn net.Conn, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := conn.Write(buf[total:])
		if err != nil {
			return err
		}
		total += n
	}
	return nil
}

func readFull(conn net.Conn, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		if err != nil {
			return err
		}
		total += n
	}
	return nil
}

func encodeTensor(t sharetype.Tensor) ([]byte, error) {
	var buf bytes.Buffer
	w := wireTensor{Kind: t.Kind, Bits: t.Field.Bits, Owner: t.Owner, Buf: t.Buf}
	if err := gob.NewEncoder(&buf).Encode(w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeTensor(data []byte) (sharetype.Tensor, error) {
	var w wireTensor
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return sharetype.Tensor{}, err
	}
	field, ok := sharetype.FieldByBits(w.Bits)
	if !ok {
		return sharetype.Tensor{}, fmt.Errorf("comm: unknown field width %d", w.Bits)
	}
	return sharetype.Tensor{Kind: w.Kind, Field: field, Owner: w.Owner, Buf: w.Buf}, nil
}

func (t *TCPCommunicator) SendAsync(tensor sharetype.Tensor, to int, tag string) error {
	t.mu.Lock()
	conn, ok := t.conns[to]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("comm: no connection to rank %d", to)
	}

	payload, err := encodeTensor(tensor)
	if err != nil {
		return err
	}

	sizeBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(sizeBuf, uint32(len(payload)))
	if err := writeFull(conn, sizeBuf); err != nil {
		return err
	}
	if err := writeFull(conn, payload); err != nil {
		return err
	}

	t.statsMu.Lock()
	t.sentB[to] += uint64(len(payload) + len(sizeBuf))
	t.statsMu.Unlock()
	return nil
}

func (t *TCPCommunicator) Recv(from int, tag string, field sharetype.Field, rows, cols int, kind sharetype.Kind) (sharetype.Tensor, error) {
	t.mu.Lock()
	conn, ok := t.conns[from]
	t.mu.Unlock()
	if !ok {
		return sharetype.Tensor{}, fmt.Errorf("comm: no connection to rank %d", from)
	}

	sizeBuf := make([]byte, 4)
	if err := readFull(conn, sizeBuf); err != nil {
		return sharetype.Tensor{}, err
	}
	size := binary.LittleEndian.Uint32(sizeBuf)

	payload := make([]byte, size)
	if err := readFull(conn, payload); err != nil {
		return sharetype.Tensor{}, err
	}

	t.statsMu.Lock()
	t.recvB[from] += uint64(len(payload) + len(sizeBuf))
	t.statsMu.Unlock()

	return decodeTensor(payload)
}

// AllReduce fans out to every peer and sums replies, exactly as
// mpc/mpc.go's RevealSymMat does over its Network.SendRData/ReceiveRMat
// pair, generalized from the teacher's hub-and-spoke ordering (pid < self
// sends-then-receives, pid > self receives-then-sends) to avoid deadlocking
// on symmetric full-duplex TCP connections.
func (t *TCPCommunicator) AllReduce(op ReduceOp, tensor sharetype.Tensor, tag string) (sharetype.Tensor, error) {
	if op != Sum {
		return sharetype.Tensor{}, fmt.Errorf("comm: unsupported reduce op %d", op)
	}
	rows, cols := tensor.Dims()
	acc := tensor.Copy()
	for p := 0; p < t.world; p++ {
		if p == t.rank {
			continue
		}
		var err error
		if p < t.rank {
			err = t.SendAsync(tensor, p, tag)
			if err == nil {
				var other sharetype.Tensor
				other, err = t.Recv(p, tag, tensor.Field, rows, cols, tensor.Kind)
				if err == nil {
					acc.Buf.Add(other.Buf)
				}
			}
		} else {
			var other sharetype.Tensor
			other, err = t.Recv(p, tag, tensor.Field, rows, cols, tensor.Kind)
			if err == nil {
				acc.Buf.Add(other.Buf)
				err = t.SendAsync(tensor, p, tag)
			}
		}
		if err != nil {
			return sharetype.Tensor{}, err
		}
	}
	return acc, nil
}

func (t *TCPCommunicator) Gather(root int, tensor sharetype.Tensor, tag string) ([]sharetype.Tensor, error) {
	rows, cols := tensor.Dims()
	if t.rank != root {
		return nil, t.SendAsync(tensor, root, tag)
	}
	out := make([]sharetype.Tensor, t.world)
	out[root] = tensor
	for p := 0; p < t.world; p++ {
		if p == root {
			continue
		}
		other, err := t.Recv(p, tag, tensor.Field, rows, cols, tensor.Kind)
		if err != nil {
			return nil, err
		}
		out[p] = other
	}
	return out, nil
}

func (t *TCPCommunicator) Stats() Stats {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	sent := make(map[int]uint64, len(t.sentB))
	recv := make(map[int]uint64, len(t.recvB))
	for k, v := range t.sentB {
		sent[k] = v
	}
	for k, v := range t.recvB {
		recv[k] = v
	}
	return Stats{Sent: sent, Received: recv}
}

func (t *TCPCommunicator) AddCommStatsManually(peer int, bytesSent, bytesReceived int) {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	t.sentB[peer] += uint64(bytesSent)
	t.recvB[peer] += uint64(bytesReceived)
}

// Close tears down every peer connection and the listener.
func (t *TCPCommunicator) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.conns {
		c.Close()
	}
	if t.listener != nil {
		t.listener.Close()
	}
}
