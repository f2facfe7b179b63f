package comm

import (
	"math/big"
	"sync"
	"testing"

	mpc_core "github.com/hhcho/mpc-core"

	"github.com/hhcho/ring2k-kernel/sharetype"
)

func TestMemoryCommunicatorSendRecv(t *testing.T) {
	group := NewMemoryGroup(2)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		v := sharetype.NewRingRaw(sharetype.F64, mpc_core.RMat{{sharetype.F64.RElem().FromInt(42)}})
		if err := group[0].SendAsync(v, 1, "t"); err != nil {
			t.Errorf("SendAsync: %v", err)
		}
	}()

	var got sharetype.Tensor
	go func() {
		defer wg.Done()
		var err error
		got, err = group[1].Recv(0, "t", sharetype.F64, 1, 1, sharetype.RingRaw)
		if err != nil {
			t.Errorf("Recv: %v", err)
		}
	}()
	wg.Wait()

	if got.Buf[0][0].(mpc_core.LElem2NBigInt).ToBigInt().Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("Recv: got %s, want 42", got.Buf[0][0].(mpc_core.LElem2NBigInt).ToBigInt())
	}
}

func TestMemoryCommunicatorAllReduceSum(t *testing.T) {
	world := 3
	group := NewMemoryGroup(world)
	var wg sync.WaitGroup
	results := make([]*big.Int, world)
	for r := 0; r < world; r++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			v := sharetype.NewAShr(sharetype.F64, mpc_core.RMat{{sharetype.F64.RElem().FromInt(rank + 1)}})
			out, err := group[rank].AllReduce(Sum, v, "sum")
			if err != nil {
				t.Errorf("AllReduce: %v", err)
				return
			}
			results[rank] = out.Buf[0][0].(mpc_core.LElem2NBigInt).ToBigInt()
		}(r)
	}
	wg.Wait()

	for r, got := range results {
		if got.Cmp(big.NewInt(6)) != 0 {
			t.Fatalf("party %d: AllReduce sum got %s, want 6", r, got)
		}
	}
}

func TestMemoryCommunicatorStats(t *testing.T) {
	group := NewMemoryGroup(2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		v := sharetype.NewRingRaw(sharetype.F64, mpc_core.RMat{{sharetype.F64.Zero()}})
		group[0].SendAsync(v, 1, "stats")
	}()
	go func() {
		defer wg.Done()
		group[1].Recv(0, "stats", sharetype.F64, 1, 1, sharetype.RingRaw)
	}()
	wg.Wait()

	s := group[0].Stats()
	if s.Sent[1] == 0 {
		t.Fatalf("Stats: expected nonzero bytes sent to party 1")
	}
}
