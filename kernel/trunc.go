package kernel

import (
	"math/big"

	mpc_core "github.com/hhcho/mpc-core"

	"github.com/hhcho/ring2k-kernel/sharetype"
)

// reconstructField retags a buffer's share values into a different Field by
// round-tripping each element through its integer value, rather than via
// Tensor.As (which only relabels Kind/Owner and leaves the modulus baked
// into every element unchanged) — required whenever a value computed in one
// ring needs to take part in arithmetic in a wider one.
func reconstructField(buf mpc_core.RMat, to sharetype.Field) mpc_core.RMat {
	rows, cols := buf.Dims()
	out := mpc_core.InitRMat(to.Zero(), rows, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out[i][j] = to.RElem().FromBigInt(buf[i][j].(mpc_core.LElem2NBigInt).ToBigInt())
		}
	}
	return out
}

func validateTruncBits(field sharetype.Field, m int) error {
	if m < 0 || m > field.Bits {
		return newErr(ErrInvalidParameter, "truncation: bits %d out of range for %s", m, field)
	}
	return nil
}

// TruncA right-shifts a share by m bits (spec section 4.6). Two parties can
// each arshift their own share locally, accepting SecureML's one-bit bias;
// more than two parties need a communicated correction, since a local arshift
// of every share does not equal an arshift of the sum when a carry crosses a
// share boundary.
func (ctx *Context) TruncA(x sharetype.Tensor, m int, sign bool) (sharetype.Tensor, error) {
	if err := x.ValidateKind(sharetype.AShr); err != nil {
		return sharetype.Tensor{}, err
	}
	if err := validateTruncBits(x.Field, m); err != nil {
		return sharetype.Tensor{}, err
	}

	if ctx.WorldSize() == 2 {
		out := x.Copy()
		out.Buf.Trunc(m)
		return out, nil
	}

	rows, cols := x.Dims()
	r, rShifted := ctx.Beaver.Trunc(x.Field, rows, cols, m)

	diff := x.Copy()
	diff.Buf.Sub(r.Buf)
	opened, err := ctx.Comm.AllReduce(commSum, diff, ctx.nextTag("trunca:open(x-r)"))
	if err != nil {
		return sharetype.Tensor{}, wrapCommErr(err)
	}

	out := rShifted.Buf.Copy()
	if ctx.Rank() == 0 {
		shifted := opened.Buf.Copy()
		shifted.Trunc(m)
		out.Add(shifted)
	}
	return sharetype.NewAShr(x.Field, out), nil
}

// TruncAPr implements the probabilistic truncation protocol (spec section
// 4.6): bias the signed range non-negative, open a masked value, recover the
// wrapped carry bit via an arithmetic XOR with a public bit, and combine.
func (ctx *Context) TruncAPr(x sharetype.Tensor, m int, sign bool) (sharetype.Tensor, error) {
	if err := x.ValidateKind(sharetype.AShr); err != nil {
		return sharetype.Tensor{}, err
	}
	if err := validateTruncBits(x.Field, m); err != nil {
		return sharetype.Tensor{}, err
	}

	field := x.Field
	k := field.Bits
	rows, cols := x.Dims()

	r, rC, rB := ctx.Beaver.TruncPr(field, rows, cols, k, m)

	biased := x.Copy()
	if ctx.Rank() == 0 {
		bias := powerOfTwo(field, k-2)
		for i := range biased.Buf {
			for j := range biased.Buf[i] {
				biased.Buf[i][j] = biased.Buf[i][j].Add(bias)
			}
		}
	}

	sum := biased.Buf.Copy()
	sum.Add(r.Buf)
	cOpened, err := ctx.Comm.AllReduce(commSum, sharetype.NewAShr(field, sum), ctx.nextTag("truncapr:open(x+r)"))
	if err != nil {
		return sharetype.Tensor{}, wrapCommErr(err)
	}

	// b = r_b XOR c_{k-1}, expressed arithmetically as r_b + c - 2*c*r_b
	// (party 0) or r_b - 2*c*r_b (otherwise), c the public top bit of c.
	b := rB.Buf.Copy()
	two := field.RElem().FromInt(2)
	for i := range b {
		for j := range b[i] {
			cBit := cOpened.Buf[i][j].GetBit(k - 1)
			if cBit == 1 {
				correction := two.Mul(rB.Buf[i][j])
				b[i][j] = b[i][j].Sub(correction)
				if ctx.Rank() == 0 {
					b[i][j] = b[i][j].Add(field.RElem().One())
				}
			}
		}
	}

	// chat = (c << 1) >> (m+1), a public transform of the opened value.
	chat := cOpened.Buf.Copy()
	for i := range chat {
		for j := range chat[i] {
			v := chat[i][j].(mpc_core.LElem2NBigInt).ToBigInt()
			v = new(big.Int).Lsh(v, 1)
			v.SetBit(v, k, 0) // the left shift is taken mod 2^k
			v = new(big.Int).Rsh(v, uint(m+1))
			chat[i][j] = field.RElem().FromBigInt(v)
		}
	}

	out := rC.Buf.Copy()
	out.MulScalar(field.RElem().One().Neg())
	scaled := mulScalar(b, powerOfTwo(field, k-1-m))
	out.Add(scaled)

	if ctx.Rank() == 0 {
		out.Add(chat)
		correction := powerOfTwo(field, k-2-m)
		for i := range out {
			for j := range out[i] {
				out[i][j] = out[i][j].Sub(correction)
			}
		}
	}

	return sharetype.NewAShr(field, out), nil
}

// TruncAPr2 implements the two-party geometric truncation method (spec
// section 4.6), via the MW (modular wrap) subroutine built on MulVVS.
func (ctx *Context) TruncAPr2(x sharetype.Tensor, m int, sign bool) (sharetype.Tensor, error) {
	if err := x.ValidateKind(sharetype.AShr); err != nil {
		return sharetype.Tensor{}, err
	}
	if err := validateTruncBits(x.Field, m); err != nil {
		return sharetype.Tensor{}, err
	}
	rank := ctx.Rank()
	if rank != 0 && rank != 1 {
		return sharetype.Tensor{}, newErr(ErrInvalidRank, "TruncAPr2: requires rank in {0,1}, got %d", rank)
	}
	if ctx.WorldSize() != 2 {
		return sharetype.Tensor{}, newErr(ErrInvalidParameter, "TruncAPr2: requires exactly 2 parties, got %d", ctx.WorldSize())
	}

	field := x.Field
	k := field.Bits

	truncField := field
	for _, f := range sharetype.Fields {
		if f.Bits >= m {
			truncField = f
			break
		}
	}

	wrap, err := ctx.computeMW(x, truncField, k)
	if err != nil {
		return sharetype.Tensor{}, err
	}

	out := x.Buf.Copy()
	out.Trunc(m)

	// wrap is an AShr in truncField (mod 2^truncField.Bits); every Field
	// shares the same concrete RElem type differing only by modulus, so
	// scaling it in place by 2^(k-m) would reduce the result modulo
	// truncField's (smaller) modulus instead of field's. Reconstruct each
	// share's integer value into field first, matching original_source's
	// static_cast<ele_t>(_mw[idx]) (arithmetic.cc:703-705).
	wrapScaled := reconstructField(wrap.Buf, field)
	wrapScaled.MulScalar(powerOfTwo(field, k-m))
	out.Sub(wrapScaled)

	rankConst := field.RElem().FromInt(rank)
	for i := range out {
		for j := range out[i] {
			out[i][j] = out[i][j].Add(rankConst)
		}
	}

	return sharetype.NewAShr(field, out), nil
}

// computeMW computes the modular wrap indicator for x's additive sharing
// over a 2^k ring (spec section 4.6, MW(x,L)): each party locally classifies
// its own share against the quarter/half-ring thresholds, the two booleans
// are multiplied via MulVVS in the smaller trunc field, and party 0 folds in
// a local correction so the result equals Wrap(x0,x1,L) + msb(x).
func (ctx *Context) computeMW(x sharetype.Tensor, truncField sharetype.Field, k int) (sharetype.Tensor, error) {
	rows, cols := x.Dims()
	rank := ctx.Rank()

	L := new(big.Int).Lsh(big.NewInt(1), uint(k))
	quarter := new(big.Int).Rsh(L, 2)
	half := new(big.Int).Rsh(L, 1)

	own := mpc_core.InitRMat(truncField.Zero(), rows, cols)
	belowQuarter := make([][]bool, rows)
	for i := 0; i < rows; i++ {
		belowQuarter[i] = make([]bool, cols)
		for j := 0; j < cols; j++ {
			v := x.Buf[i][j].(mpc_core.LElem2NBigInt).ToBigInt()
			var cond bool
			if rank == 0 {
				shifted := new(big.Int).Sub(v, quarter)
				if shifted.Sign() < 0 {
					shifted.Add(shifted, L)
				}
				cond = shifted.Cmp(half) >= 0
				belowQuarter[i][j] = v.Cmp(quarter) < 0
			} else {
				cond = v.Cmp(half) >= 0
			}
			if cond {
				own[i][j] = truncField.RElem().One()
			} else {
				own[i][j] = truncField.Zero()
			}
		}
	}

	zero := mpc_core.InitRMat(truncField.Zero(), rows, cols)
	var xTensor, yTensor sharetype.Tensor
	if rank == 0 {
		xTensor = sharetype.NewPriv(truncField, 0, own)
		yTensor = sharetype.NewPriv(truncField, 1, zero)
	} else {
		xTensor = sharetype.NewPriv(truncField, 0, zero)
		yTensor = sharetype.NewPriv(truncField, 1, own)
	}

	wrap, err := ctx.MulVVS(xTensor, yTensor)
	if err != nil {
		return sharetype.Tensor{}, err
	}

	if rank == 0 {
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				if !belowQuarter[i][j] {
					wrap.Buf[i][j] = wrap.Buf[i][j].Add(truncField.RElem().One())
				}
			}
		}
	}

	return wrap, nil
}
