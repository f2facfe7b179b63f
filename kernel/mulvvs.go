package kernel

import (
	"github.com/hhcho/ring2k-kernel/sharetype"
)

// MulVVS multiplies two privately-held values into an additive share of
// their product, two parties only (spec section 4.5), grounded in
// original_source/arithmetic.cc's MulVVS:
//
//	1. Beaver generates a0 (private to rank 0), a1 (private to rank 1), and
//	   an additive share c0+c1 = a0*a1.
//	2. The owner of x sends (a_self + x); the owner of y sends (a_self + y).
//	3. The x-owner computes z = x*tmp + c_self (tmp = received value);
//	   the y-owner computes z = -a_self*tmp + c_self.
func (ctx *Context) MulVVS(x, y sharetype.Tensor) (sharetype.Tensor, error) {
	if err := x.ValidateKind(sharetype.Priv); err != nil {
		return sharetype.Tensor{}, err
	}
	if err := y.ValidateKind(sharetype.Priv); err != nil {
		return sharetype.Tensor{}, err
	}
	if x.Owner == y.Owner {
		return sharetype.Tensor{}, newErr(ErrInvalidRank, "MulVVS: owners must differ, both %d", x.Owner)
	}
	if err := sharetype.ValidateField(x, y); err != nil {
		return sharetype.Tensor{}, err
	}
	if err := sharetype.ValidateShape(x, y); err != nil {
		return sharetype.Tensor{}, err
	}
	if ctx.WorldSize() != 2 {
		return sharetype.Tensor{}, newErr(ErrInvalidParameter, "MulVVS: requires exactly 2 parties, got %d", ctx.WorldSize())
	}

	rank := ctx.Rank()
	isXOwner := rank == x.Owner
	isYOwner := rank == y.Owner
	if !isXOwner && !isYOwner {
		return sharetype.Tensor{}, newErr(ErrInvalidRank, "MulVVS: rank %d is neither owner", rank)
	}

	rows, cols := x.Dims()
	a, c := ctx.Beaver.MulPriv(x.Field, rows, cols)

	var ownInput sharetype.Tensor
	if isXOwner {
		ownInput = x
	} else {
		ownInput = y
	}

	toSend := a.Buf.Copy()
	toSend.Add(ownInput.Buf)
	sendTensor := sharetype.NewRingRaw(x.Field, toSend)

	peer := x.Owner
	if isXOwner {
		peer = y.Owner
	}
	tag := ctx.nextTag("mulvvs:a+own_input")
	if err := ctx.Comm.SendAsync(sendTensor, peer, tag); err != nil {
		return sharetype.Tensor{}, wrapCommErr(err)
	}
	recvd, err := ctx.Comm.Recv(peer, tag, x.Field, rows, cols, sharetype.RingRaw)
	if err != nil {
		return sharetype.Tensor{}, wrapCommErr(err)
	}
	tmp := recvd.Buf

	z := c.Buf.Copy()
	if isXOwner {
		t := tmp.Copy()
		t.MulElem(x.Buf)
		z.Add(t)
	} else {
		t := a.Buf.Copy()
		t.MulElem(tmp)
		t.MulScalar(x.Field.RElem().One().Neg())
		z.Add(t)
	}

	return sharetype.NewAShr(x.Field, z), nil
}
