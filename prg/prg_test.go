package prg

import (
	"testing"

	mpc_core "github.com/hhcho/mpc-core"

	"github.com/hhcho/ring2k-kernel/sharetype"
)

// TestGenPrssPairCorrelation checks the one invariant every Beaver/MulVVS
// construction in this repo depends on: the value party a draws from the
// stream shared with b equals the value b draws from the stream shared with
// a, with no communication between the two calls.
func TestGenPrssPairCorrelation(t *testing.T) {
	a := New(0, 2, "")
	b := New(1, 2, "")

	aShared, _ := a.GenPrssPair(sharetype.F64, 1, 2, 2)
	bShared, _ := b.GenPrssPair(sharetype.F64, 0, 2, 2)

	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if aShared[i][j].(mpc_core.LElem2NBigInt).ToBigInt().Cmp(bShared[i][j].(mpc_core.LElem2NBigInt).ToBigInt()) != 0 {
				t.Fatalf("GenPrssPair(0<->1) mismatch at [%d][%d]: %s vs %s",
					i, j, aShared[i][j].(mpc_core.LElem2NBigInt).ToBigInt(), bShared[i][j].(mpc_core.LElem2NBigInt).ToBigInt())
			}
		}
	}
}

func TestGenPrssPairOwnStreamIndependent(t *testing.T) {
	a := New(0, 2, "")
	_, own1 := a.GenPrssPair(sharetype.F64, 1, 1, 4)

	b := New(0, 2, "")
	_, own2 := b.GenPrssPair(sharetype.F64, 1, 1, 4)

	equal := true
	for j := 0; j < 4; j++ {
		if own1[0][j].(mpc_core.LElem2NBigInt).ToBigInt().Cmp(own2[0][j].(mpc_core.LElem2NBigInt).ToBigInt()) != 0 {
			equal = false
		}
	}
	if equal {
		t.Fatalf("own-stream draws from two independently-seeded Services were identical")
	}
}
