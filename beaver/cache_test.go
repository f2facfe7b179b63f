package beaver

import (
	"testing"

	mpc_core "github.com/hhcho/mpc-core"

	"github.com/hhcho/ring2k-kernel/sharetype"
)

func TestCacheGetSetRoundTrip(t *testing.T) {
	c := NewCache()
	c.Enable()

	buf := mpc_core.InitRMat(sharetype.F64.Zero(), 2, 2)
	x := sharetype.NewAShr(sharetype.F64, buf)
	opened := sharetype.NewRingRaw(sharetype.F64, buf.Copy())

	if _, ok := c.Get(x, "mul"); ok {
		t.Fatalf("Get on empty cache: expected miss")
	}

	c.Set(x, "mul", opened)
	got, ok := c.Get(x, "mul")
	if !ok {
		t.Fatalf("Get after Set: expected hit")
	}
	if got.Buf[0][0].(mpc_core.LElem2NBigInt).ToBigInt().Cmp(opened.Buf[0][0].(mpc_core.LElem2NBigInt).ToBigInt()) != 0 {
		t.Fatalf("Get after Set: value mismatch")
	}
}

func TestCacheDisabledIsNoop(t *testing.T) {
	c := NewCache()
	buf := mpc_core.InitRMat(sharetype.F64.Zero(), 1, 1)
	x := sharetype.NewAShr(sharetype.F64, buf)

	c.Set(x, "mul", x)
	if _, ok := c.Get(x, "mul"); ok {
		t.Fatalf("disabled cache served a hit")
	}
}

func TestSameBufferAliasing(t *testing.T) {
	buf := mpc_core.InitRMat(sharetype.F64.Zero(), 1, 1)
	x := sharetype.NewAShr(sharetype.F64, buf)
	y := sharetype.NewAShr(sharetype.F64, buf)
	if !SameBuffer(x, y) {
		t.Fatalf("SameBuffer: expected true for shared underlying buffer")
	}

	other := sharetype.NewAShr(sharetype.F64, buf.Copy())
	if SameBuffer(x, other) {
		t.Fatalf("SameBuffer: expected false after Copy")
	}
}

func TestCacheForget(t *testing.T) {
	c := NewCache()
	c.Enable()
	buf := mpc_core.InitRMat(sharetype.F64.Zero(), 1, 1)
	x := sharetype.NewAShr(sharetype.F64, buf)

	c.Set(x, "mul", x)
	c.Forget(x)
	if _, ok := c.Get(x, "mul"); ok {
		t.Fatalf("Forget: expected entry to be gone")
	}
}
