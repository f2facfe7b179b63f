// Package beaver implements the Beaver-triple provider external service the
// kernel's multiplication operations depend on (spec section 6), plus the
// Beaver cache that lets a replayed computation reuse previously-opened
// masks instead of paying for a fresh reveal.
//
// The provider here is a trusted-dealer construction: one party (DealerRank)
// is treated as knowing full triples, and every party's share is derived
// from PRG streams the dealer and that party already hold in common (see
// github.com/hhcho/ring2k-kernel/prg), the same correlated-masking trick the
// teacher's BeaverPartitionMat (mpc/beavermult.go) uses to convert a private
// value into additive-share form without an extra communication round. No
// wire traffic happens inside Provider calls; the dealer and every peer
// independently compute matching shares as long as they call the provider's
// methods the same number of times in the same order — the kernel's single
// goroutine-per-Context rule (spec section 5) is what keeps that order
// synchronized across parties.
package beaver

import (
	"math/big"
	"sync"

	mpc_core "github.com/hhcho/mpc-core"

	"github.com/hhcho/ring2k-kernel/prg"
	"github.com/hhcho/ring2k-kernel/sharetype"
)

// Provider is the external Beaver-triple service spec section 6 names:
// Mul/Dot/Square/MulPriv/Trunc/TruncPr.
//
// Mul, Dot and Square each take one replay descriptor per masked operand
// (replayA for a, replayB for b). An empty descriptor draws a fresh,
// independent mask as before. A non-empty descriptor is the "seed material"
// spec section 4.3/4.7 describes: the provider regenerates the same mask
// every time it is handed the same descriptor, so a cache hit on the
// kernel's previously-opened x-a stays paired with the a it was opened
// against. c (or aa) is always recomputed fresh from whichever a/b are in
// play this call, since it is never opened and carries no replay state of
// its own.
type Provider interface {
	// Mul returns this party's share of an elementwise-multiplication triple
	// (a, b, c) with a*b = c, shaped (rows, cols).
	Mul(field sharetype.Field, rows, cols int, replayA, replayB string) (a, b, c sharetype.Tensor)

	// Dot returns this party's share of a matrix-multiplication triple
	// (a, b, c) with a (m x k), b (k x n), c = a @ b (m x n).
	Dot(field sharetype.Field, m, k, n int, replayA, replayB string) (a, b, c sharetype.Tensor)

	// Square returns this party's share of a squaring pair (a, aa) with
	// aa = a*a, shaped (rows, cols) — SquareA's own correlated randomness,
	// distinct from Mul so squaring never shares a triple with a
	// multiplication (the aliasing guard in kernel's masked-open handles the
	// MulAA(x,x) case; Square exists for when the caller already knows it
	// wants x^2 and can skip the aliasing check entirely).
	Square(field sharetype.Field, rows, cols int, replayA string) (a, aa sharetype.Tensor)

	// MulPriv returns this party's own private mask a and its additive
	// share c of a0*a1, where a0 is the mask privately known only to rank 0
	// and a1 the mask privately known only to rank 1 — the precomputed pair
	// MulVVS's two-party private multiplication (spec section 4.5) consumes.
	MulPriv(field sharetype.Field, rows, cols int) (a, c sharetype.Tensor)

	// Trunc returns this party's share of a truncation pair (r, rShifted)
	// with rShifted = r >> m in the same ring, for the N-party TruncA
	// protocol (spec section 4.6).
	Trunc(field sharetype.Field, rows, cols, m int) (r, rShifted sharetype.Tensor)

	// TruncPr returns this party's share of a probabilistic-truncation
	// triple (r, rC, rB): r a random ring element, rC = r with its top bit
	// cleared, shifted right by m, and rB the top bit of r as an additive
	// 0/1 share in the same ring, following TruncAPr's r/r_c/r_b construction in
	// original_source/arithmetic.cc (the bits passed to TruncPr there is m,
	// not k).
	TruncPr(field sharetype.Field, rows, cols, k, m int) (r, rC, rB sharetype.Tensor)
}

// DealerProvider is the trusted-dealer Provider implementation.
type DealerProvider struct {
	Rank       int
	DealerRank int
	World      int
	PRG        *prg.Service

	maskMu sync.Mutex
	masks  map[string]maskedValue
}

// maskedValue is what a replay descriptor remembers about a regenerated
// mask: the dealer's plaintext view (needed to recompute products against
// whatever the other operand's mask turns out to be this call) and this
// party's own additive share of it.
type maskedValue struct {
	full  mpc_core.RMat
	share mpc_core.RMat
}

// NewDealerProvider builds a Provider for this party using its own PRG
// service; every party in a run must agree on DealerRank.
func NewDealerProvider(rank, dealerRank, world int, p *prg.Service) *DealerProvider {
	return &DealerProvider{Rank: rank, DealerRank: dealerRank, World: world, PRG: p, masks: make(map[string]maskedValue)}
}

func (d *DealerProvider) dealerRandMat(field sharetype.Field, rows, cols int) mpc_core.RMat {
	return d.PRG.GenPrivMat(field, rows, cols)
}

// deriveMask returns (full, share) for one masked operand: a fresh draw when
// descriptor is empty, or the same value every call shares when descriptor
// is not — the replay mechanism spec section 4.3 step 2 calls for, so a
// cache hit on a previously-opened x-a stays consistent with the a it was
// opened against.
func (d *DealerProvider) deriveMask(field sharetype.Field, rows, cols int, descriptor string) (full, share mpc_core.RMat) {
	if descriptor != "" {
		d.maskMu.Lock()
		if cached, ok := d.masks[descriptor]; ok {
			d.maskMu.Unlock()
			return cached.full, cached.share
		}
		d.maskMu.Unlock()
	}

	if d.Rank == d.DealerRank {
		full = d.dealerRandMat(field, rows, cols)
	}
	share = d.splitShareShaped(field, full, rows, cols)

	if descriptor != "" {
		d.maskMu.Lock()
		d.masks[descriptor] = maskedValue{full: full, share: share}
		d.maskMu.Unlock()
	}
	return full, share
}

func (d *DealerProvider) Mul(field sharetype.Field, rows, cols int, replayA, replayB string) (a, b, c sharetype.Tensor) {
	aFull, aShare := d.deriveMask(field, rows, cols, replayA)
	bFull, bShare := d.deriveMask(field, rows, cols, replayB)

	var cFull mpc_core.RMat
	if d.Rank == d.DealerRank {
		cFull = aFull.Copy()
		cFull.MulElem(bFull)
	}
	cShare := d.splitShareShaped(field, cFull, rows, cols)
	return sharetype.NewRingRaw(field, aShare), sharetype.NewRingRaw(field, bShare), sharetype.NewRingRaw(field, cShare)
}

func (d *DealerProvider) Dot(field sharetype.Field, m, k, n int, replayA, replayB string) (a, b, c sharetype.Tensor) {
	aFull, aShare := d.deriveMask(field, m, k, replayA)
	bFull, bShare := d.deriveMask(field, k, n, replayB)

	var cFull mpc_core.RMat
	if d.Rank == d.DealerRank {
		cFull = mpc_core.RMultMat(aFull, bFull)
	}
	cShare := d.splitShareShaped(field, cFull, m, n)
	return sharetype.NewRingRaw(field, aShare), sharetype.NewRingRaw(field, bShare), sharetype.NewRingRaw(field, cShare)
}

func (d *DealerProvider) Square(field sharetype.Field, rows, cols int, replayA string) (a, aa sharetype.Tensor) {
	aFull, aShare := d.deriveMask(field, rows, cols, replayA)

	var aaFull mpc_core.RMat
	if d.Rank == d.DealerRank {
		aaFull = aFull.Copy()
		aaFull.MulElem(aFull)
	}
	aaShare := d.splitShareShaped(field, aaFull, rows, cols)
	return sharetype.NewRingRaw(field, aShare), sharetype.NewRingRaw(field, aaShare)
}

func (d *DealerProvider) MulPriv(field sharetype.Field, rows, cols int) (a, c sharetype.Tensor) {
	aOwn := d.privateMask(field, d.Rank, rows, cols)

	var cFull mpc_core.RMat
	if d.Rank == d.DealerRank {
		// The dealer's own mask is aOwn; drawing it again would advance its
		// local stream and give a different value.
		a0, a1 := aOwn, aOwn
		if d.Rank != 0 {
			a0 = d.privateMask(field, 0, rows, cols)
		}
		if d.Rank != 1 {
			a1 = d.privateMask(field, 1, rows, cols)
		}
		cFull = a0.Copy()
		cFull.MulElem(a1)
	}
	cShare := d.splitShareShaped(field, cFull, rows, cols)
	return sharetype.NewRingRaw(field, aOwn), sharetype.NewRingRaw(field, cShare)
}

// privateMask returns the value of the PRG stream shared between the dealer
// and party p: known only to the dealer and p, never split across the rest
// of the world, since only p ever uses it to mask p's own private input.
// For p == DealerRank it is the dealer's own local stream. Called by p
// itself (to learn its own mask) and by the dealer (to learn the other
// party's mask when building MulPriv's cFull).
func (d *DealerProvider) privateMask(field sharetype.Field, p, rows, cols int) mpc_core.RMat {
	if d.Rank == p {
		shared, _ := d.PRG.GenPrssPair(field, d.DealerRank, rows, cols)
		return shared
	}
	shared, _ := d.PRG.GenPrssPair(field, p, rows, cols)
	return shared
}

func (d *DealerProvider) Trunc(field sharetype.Field, rows, cols, m int) (r, rShifted sharetype.Tensor) {
	var rFull, rShiftedFull mpc_core.RMat
	if d.Rank == d.DealerRank {
		rFull = d.PRG.GenPrivMatBits(field, rows, cols, field.Bits-2)
		rShiftedFull = rFull.Copy()
		rShiftedFull.Trunc(m)
	}
	rShare := d.splitShareShaped(field, rFull, rows, cols)
	rShiftedShare := d.splitShareShaped(field, rShiftedFull, rows, cols)
	return sharetype.NewRingRaw(field, rShare), sharetype.NewRingRaw(field, rShiftedShare)
}

func (d *DealerProvider) TruncPr(field sharetype.Field, rows, cols, k, m int) (r, rC, rB sharetype.Tensor) {
	bitField := field // rB is carried as a 0/1 value in the same ring; kernel reduces it mod 2 on use.
	var rFull, rCFull, rBFull mpc_core.RMat
	if d.Rank == d.DealerRank {
		rFull = d.PRG.GenPrivMatBits(field, rows, cols, k)
		// rC = (r mod 2^(k-1)) >> m: the top bit is carried by rB alone.
		rCFull = mpc_core.InitRMat(field.Zero(), rows, cols)
		for i := range rFull {
			for j := range rFull[i] {
				v := new(big.Int).SetBit(rFull[i][j].(mpc_core.LElem2NBigInt).ToBigInt(), k-1, 0)
				rCFull[i][j] = field.RElem().FromBigInt(v.Rsh(v, uint(m)))
			}
		}
		rBFull = extractTopBit(field, rFull, k)
	}
	rShare := d.splitShareShaped(field, rFull, rows, cols)
	rCShare := d.splitShareShaped(field, rCFull, rows, cols)
	rBShare := d.splitShareShaped(bitField, rBFull, rows, cols)
	return sharetype.NewRingRaw(field, rShare), sharetype.NewRingRaw(field, rCShare), sharetype.NewRingRaw(bitField, rBShare)
}

func extractTopBit(field sharetype.Field, full mpc_core.RMat, k int) mpc_core.RMat {
	rows, cols := full.Dims()
	out := mpc_core.InitRMat(field.Zero(), rows, cols)
	for i := range full {
		for j := range full[i] {
			if full[i][j].GetBit(k - 1) == 1 {
				out[i][j] = field.RElem().FromInt(1)
			} else {
				out[i][j] = field.Zero()
			}
		}
	}
	return out
}

// splitShareShaped is splitShare for the dealer path (which needs the real
// shape since non-dealer parties have a nil full matrix and can't read
// their own Dims()).
func (d *DealerProvider) splitShareShaped(field sharetype.Field, full mpc_core.RMat, rows, cols int) mpc_core.RMat {
	if d.Rank == d.DealerRank {
		residual := full.Copy()
		for p := 0; p < d.World; p++ {
			if p == d.DealerRank {
				continue
			}
			share, _ := d.PRG.GenPrssPair(field, p, rows, cols)
			residual.Sub(share)
		}
		return residual
	}
	share, _ := d.PRG.GenPrssPair(field, d.DealerRank, rows, cols)
	return share
}
