package kernel

import (
	"math/big"
	"sync"
	"testing"

	mpc_core "github.com/hhcho/mpc-core"

	"github.com/hhcho/ring2k-kernel/beaver"
	"github.com/hhcho/ring2k-kernel/comm"
	"github.com/hhcho/ring2k-kernel/prg"
	"github.com/hhcho/ring2k-kernel/sharetype"
)

// buildContexts wires up world in-memory parties sharing one trusted dealer
// at rank 0, following sfgwas.go's InitProtocol shape of one Context per
// party.
func buildContexts(world int, field sharetype.Field) []*Context {
	comms := comm.NewMemoryGroup(world)
	ctxs := make([]*Context, world)
	for r := 0; r < world; r++ {
		p := prg.New(r, world, "")
		b := beaver.NewDealerProvider(r, 0, world, p)
		ctxs[r] = NewContext(comms[r], p, b)
	}
	return ctxs
}

// runAll runs fn concurrently once per party (0..world-1), collecting any
// error so a failure surfaces on the test's own goroutine via t.Fatal rather
// than racing on *testing.T from worker goroutines.
func runAll(t *testing.T, world int, fn func(rank int) error) {
	t.Helper()
	var wg sync.WaitGroup
	errs := make([]error, world)
	for r := 0; r < world; r++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			errs[rank] = fn(rank)
		}(r)
	}
	wg.Wait()
	for r, err := range errs {
		if err != nil {
			t.Fatalf("party %d: %v", r, err)
		}
	}
}

func literalShare(field sharetype.Field, rank int, v int64) sharetype.Tensor {
	elem := field.Zero()
	if rank == 0 {
		elem = field.RElem().FromBigInt(big.NewInt(v))
	}
	return sharetype.NewAShr(field, mpc_core.RMat{{elem}})
}

func requireEq(got *big.Int, want int64) error {
	if got.Cmp(big.NewInt(want)) != 0 {
		return fmtErr(got, want)
	}
	return nil
}

func fmtErr(got *big.Int, want int64) error {
	return &Error{Kind: ErrInvalidParameter, Msg: "got " + got.String() + " want " + big.NewInt(want).String()}
}

func TestP2AA2PRoundTrip(t *testing.T) {
	ctxs := buildContexts(3, sharetype.F64)
	runAll(t, 3, func(rank int) error {
		seven := sharetype.NewPub(sharetype.F64, mpc_core.RMat{{sharetype.F64.RElem().FromInt(7)}})
		x, err := ctxs[rank].P2A(seven)
		if err != nil {
			return err
		}
		pub, err := ctxs[rank].A2P(x)
		if err != nil {
			return err
		}
		return requireEq(pub.Buf[0][0].(mpc_core.LElem2NBigInt).ToBigInt(), 7)
	})
}

func TestMulAA(t *testing.T) {
	ctxs := buildContexts(3, sharetype.F64)
	runAll(t, 3, func(rank int) error {
		ctx := ctxs[rank]
		a := literalShare(sharetype.F64, rank, 5)
		b := literalShare(sharetype.F64, rank, -3)
		prod, err := ctx.MulAA(a, b)
		if err != nil {
			return err
		}
		pub, err := ctx.A2P(prod)
		if err != nil {
			return err
		}
		return requireEq(pub.Buf[0][0].(mpc_core.LElem2NBigInt).ToBigInt(), -15)
	})
}

func TestSquareAMatchesMulAAAliased(t *testing.T) {
	ctxs := buildContexts(3, sharetype.F64)
	runAll(t, 3, func(rank int) error {
		ctx := ctxs[rank]
		x := literalShare(sharetype.F64, rank, 6)

		sq, err := ctx.SquareA(x)
		if err != nil {
			return err
		}
		sqPub, err := ctx.A2P(sq)
		if err != nil {
			return err
		}

		aliased, err := ctx.MulAA(x, x)
		if err != nil {
			return err
		}
		aliasedPub, err := ctx.A2P(aliased)
		if err != nil {
			return err
		}

		if sqPub.Buf[0][0].(mpc_core.LElem2NBigInt).ToBigInt().Cmp(aliasedPub.Buf[0][0].(mpc_core.LElem2NBigInt).ToBigInt()) != 0 {
			return fmtErr(aliasedPub.Buf[0][0].(mpc_core.LElem2NBigInt).ToBigInt(), 36)
		}
		return requireEq(sqPub.Buf[0][0].(mpc_core.LElem2NBigInt).ToBigInt(), 36)
	})
}

func TestMatMulAAIdentity(t *testing.T) {
	field := sharetype.F64
	ctxs := buildContexts(3, field)
	runAll(t, 3, func(rank int) error {
		ctx := ctxs[rank]
		buf := mpc_core.InitRMat(field.Zero(), 3, 3)
		if rank == 0 {
			for i := 0; i < 3; i++ {
				buf[i][i] = field.RElem().FromInt(1)
			}
		}
		identity := sharetype.NewAShr(field, buf)

		mm, err := ctx.MatMulAA(identity, identity)
		if err != nil {
			return err
		}
		pub, err := ctx.A2P(mm)
		if err != nil {
			return err
		}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				want := int64(0)
				if i == j {
					want = 1
				}
				if err := requireEq(pub.Buf[i][j].(mpc_core.LElem2NBigInt).ToBigInt(), want); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func TestMulA1B(t *testing.T) {
	field := sharetype.F64
	ctxs := buildContexts(3, field)
	runAll(t, 3, func(rank int) error {
		ctx := ctxs[rank]
		bitElem := field.Zero()
		if rank == 0 {
			bitElem = field.RElem().FromInt(1)
		}
		bit := sharetype.NewBShr(field, mpc_core.RMat{{bitElem}})
		x := literalShare(field, rank, 7)

		out, err := ctx.MulA1B(x, bit)
		if err != nil {
			return err
		}
		pub, err := ctx.A2P(out)
		if err != nil {
			return err
		}
		return requireEq(pub.Buf[0][0].(mpc_core.LElem2NBigInt).ToBigInt(), 7)
	})
}

func TestTruncANParty(t *testing.T) {
	field := sharetype.F64
	ctxs := buildContexts(3, field)
	runAll(t, 3, func(rank int) error {
		ctx := ctxs[rank]
		x := literalShare(field, rank, 1<<20)
		out, err := ctx.TruncA(x, 10, false)
		if err != nil {
			return err
		}
		pub, err := ctx.A2P(out)
		if err != nil {
			return err
		}
		// The N-party protocol carries a one-unit rounding error.
		got := pub.Buf[0][0].(mpc_core.LElem2NBigInt).ToBigInt()
		if diff := new(big.Int).Sub(got, big.NewInt(1<<10)); diff.CmpAbs(big.NewInt(1)) > 0 {
			return fmtErr(got, 1<<10)
		}
		return nil
	})
}

func TestTruncAPrZero(t *testing.T) {
	field := sharetype.F64
	ctxs := buildContexts(3, field)
	runAll(t, 3, func(rank int) error {
		ctx := ctxs[rank]
		x := literalShare(field, rank, 0)
		out, err := ctx.TruncAPr(x, 18, false)
		if err != nil {
			return err
		}
		pub, err := ctx.A2P(out)
		if err != nil {
			return err
		}
		return requireEq(pub.Buf[0][0].(mpc_core.LElem2NBigInt).ToBigInt(), 0)
	})
}

func TestMulVVS(t *testing.T) {
	field := sharetype.F64
	ctxs := buildContexts(2, field)
	runAll(t, 2, func(rank int) error {
		ctx := ctxs[rank]
		var x, y sharetype.Tensor
		if rank == 0 {
			x = sharetype.NewPriv(field, 0, mpc_core.RMat{{field.RElem().FromInt(9)}})
			y = sharetype.NewPriv(field, 1, mpc_core.RMat{{field.Zero()}})
		} else {
			x = sharetype.NewPriv(field, 0, mpc_core.RMat{{field.Zero()}})
			y = sharetype.NewPriv(field, 1, mpc_core.RMat{{field.RElem().FromInt(4)}})
		}
		prod, err := ctx.MulVVS(x, y)
		if err != nil {
			return err
		}
		pub, err := ctx.A2P(prod)
		if err != nil {
			return err
		}
		return requireEq(pub.Buf[0][0].(mpc_core.LElem2NBigInt).ToBigInt(), 36)
	})
}

func TestTruncAPr2Zero(t *testing.T) {
	field := sharetype.F64
	ctxs := buildContexts(2, field)
	runAll(t, 2, func(rank int) error {
		ctx := ctxs[rank]
		x := literalShare(field, rank, 0)
		out, err := ctx.TruncAPr2(x, 10, false)
		if err != nil {
			return err
		}
		pub, err := ctx.A2P(out)
		if err != nil {
			return err
		}
		return requireEq(pub.Buf[0][0].(mpc_core.LElem2NBigInt).ToBigInt(), 0)
	})
}

// TestCacheReplaySkipsReOpen exercises the exact scenario spec section 8's
// "Cache replay" testable property describes: the same x multiplied against
// two *different* y operands with EnableCache(x) active. x's opened x-a must
// stay paired with the same a both times, or the second result silently
// combines a stale opening against a fresh mask.
func TestCacheReplaySkipsReOpen(t *testing.T) {
	field := sharetype.F64
	ctxs := buildContexts(3, field)
	runAll(t, 3, func(rank int) error {
		ctx := ctxs[rank]
		ctx.Cache.Enable()

		x := literalShare(field, rank, 5)
		y1 := literalShare(field, rank, -3)
		y2 := literalShare(field, rank, 7)

		peer := (rank + 1) % 3
		before := ctx.Comm.Stats().Sent[peer]
		first, err := ctx.MulAA(x, y1)
		if err != nil {
			return err
		}
		mid := ctx.Comm.Stats().Sent[peer]
		second, err := ctx.MulAA(x, y2)
		if err != nil {
			return err
		}
		after := ctx.Comm.Stats().Sent[peer]
		if after-mid >= mid-before {
			return &Error{Kind: ErrInvalidParameter, Msg: "second MulAA with x cached sent as many bytes as the first"}
		}

		firstPub, err := ctx.A2P(first)
		if err != nil {
			return err
		}
		secondPub, err := ctx.A2P(second)
		if err != nil {
			return err
		}
		if err := requireEq(firstPub.Buf[0][0].(mpc_core.LElem2NBigInt).ToBigInt(), -15); err != nil {
			return err
		}
		return requireEq(secondPub.Buf[0][0].(mpc_core.LElem2NBigInt).ToBigInt(), 35)
	})
}
