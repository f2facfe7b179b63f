package kernel

import (
	"math/big"

	mpc_core "github.com/hhcho/mpc-core"

	"github.com/hhcho/ring2k-kernel/sharetype"
)

// RandA samples a fresh AShr tensor of the given shape: every element drawn
// uniformly from the field, then arithmetic-right-shifted by 2 bits so the
// result lands in [-2^(k-2), 2^(k-2)) — spec section 4.1's rationale is that
// downstream signed interpretation and truncation both assume the two
// top bits are redundant sign bits.
func (ctx *Context) RandA(field sharetype.Field, rows, cols int) sharetype.Tensor {
	buf := ctx.PRG.GenPrivMat(field, rows, cols)
	rshift2(buf, field.Bits)
	return sharetype.NewAShr(field, buf)
}

func rshift2(buf mpc_core.RMat, k int) {
	signFill := new(big.Int).Lsh(big.NewInt(3), uint(k-2))
	for i := range buf {
		for j := range buf[i] {
			v := new(big.Int).Set(buf[i][j].(mpc_core.LElem2NBigInt).ToBigInt())
			negative := v.Bit(k-1) == 1
			v.Rsh(v, 2)
			if negative {
				v.Or(v, signFill)
			}
			buf[i][j] = buf[i][j].FromBigInt(v)
		}
	}
}

// P2A lifts a public tensor into additive-share form. Every party derives a
// zero-sum contribution from the pairwise PRSS streams it shares with its
// ring neighbours (z_next - z_prev telescopes to zero summed around the
// full ring of parties — the glossary's "neighbouring parties jointly
// sample a zero-sum tuple without communication"); party 0 then folds the
// public value into its own share.
func (ctx *Context) P2A(x sharetype.Tensor) (sharetype.Tensor, error) {
	if err := x.ValidateKind(sharetype.Pub); err != nil {
		return sharetype.Tensor{}, err
	}
	rows, cols := x.Dims()

	zNext, _ := ctx.PRG.GenPrssPair(x.Field, ctx.Comm.NextRank(), rows, cols)
	zPrev, _ := ctx.PRG.GenPrssPair(x.Field, ctx.Comm.PrevRank(), rows, cols)
	if ctx.WorldSize() == 2 && ctx.Rank() == 1 {
		// Both draws come from the one stream the two parties share.
		zNext, zPrev = zPrev, zNext
	}

	share := zNext.Copy()
	share.Sub(zPrev)

	if ctx.Rank() == 0 {
		share.Add(x.Buf)
	}
	return sharetype.NewAShr(x.Field, share), nil
}

// V2A lifts a Priv(owner) tensor into additive-share form, mirroring P2A
// except owner (not rank 0) folds in the plaintext.
func (ctx *Context) V2A(x sharetype.Tensor) (sharetype.Tensor, error) {
	if err := x.ValidateKind(sharetype.Priv); err != nil {
		return sharetype.Tensor{}, err
	}
	rows, cols := x.Dims()

	zNext, _ := ctx.PRG.GenPrssPair(x.Field, ctx.Comm.NextRank(), rows, cols)
	zPrev, _ := ctx.PRG.GenPrssPair(x.Field, ctx.Comm.PrevRank(), rows, cols)
	if ctx.WorldSize() == 2 && ctx.Rank() == 1 {
		zNext, zPrev = zPrev, zNext
	}

	share := zNext.Copy()
	share.Sub(zPrev)

	if ctx.Rank() == x.Owner {
		share.Add(x.Buf)
	}
	return sharetype.NewAShr(x.Field, share), nil
}

// A2P opens an AShr tensor to every party via all-reduce sum.
func (ctx *Context) A2P(x sharetype.Tensor) (sharetype.Tensor, error) {
	if err := x.ValidateKind(sharetype.AShr); err != nil {
		return sharetype.Tensor{}, err
	}
	out, err := ctx.Comm.AllReduce(commSum, x, ctx.nextTag("a2p"))
	if err != nil {
		return sharetype.Tensor{}, wrapCommErr(err)
	}
	return out.As(sharetype.Pub, sharetype.NoOwner), nil
}

// A2V gathers an AShr tensor's shares at rank r, which sums them into a
// Priv(r) tensor; non-recipients get a placeholder of the same shape. This
// is the only operation that deliberately leaks a secret — to exactly one
// named party.
func (ctx *Context) A2V(x sharetype.Tensor, r int) (sharetype.Tensor, error) {
	if err := x.ValidateKind(sharetype.AShr); err != nil {
		return sharetype.Tensor{}, err
	}
	if r < 0 || r >= ctx.WorldSize() {
		return sharetype.Tensor{}, newErr(ErrInvalidRank, "A2V: target rank %d out of range", r)
	}
	shares, err := ctx.Comm.Gather(r, x, ctx.nextTag("a2v"))
	if err != nil {
		return sharetype.Tensor{}, wrapCommErr(err)
	}
	if ctx.Rank() != r {
		return sharetype.NewPriv(x.Field, r, x.Buf.Copy()), nil
	}
	rows, cols := x.Dims()
	sum := mpc_core.InitRMat(x.Field.Zero(), rows, cols)
	for _, s := range shares {
		sum.Add(s.Buf)
	}
	return sharetype.NewPriv(x.Field, r, sum), nil
}

// NegateA negates a share locally: -(sum xi) = sum (-xi).
func (ctx *Context) NegateA(x sharetype.Tensor) (sharetype.Tensor, error) {
	if err := x.ValidateKind(sharetype.AShr); err != nil {
		return sharetype.Tensor{}, err
	}
	out := x.Copy()
	for i := range out.Buf {
		for j := range out.Buf[i] {
			out.Buf[i][j] = out.Buf[i][j].Neg()
		}
	}
	return out, nil
}
