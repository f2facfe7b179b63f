package kernel

import (
	mpc_core "github.com/hhcho/mpc-core"

	"github.com/hhcho/ring2k-kernel/sharetype"
)

// AddAP adds a public tensor into a share: only party 0 folds p into its own
// share so the sum stays correct (spec section 4.2).
func (ctx *Context) AddAP(a, p sharetype.Tensor) (sharetype.Tensor, error) {
	if err := a.ValidateKind(sharetype.AShr); err != nil {
		return sharetype.Tensor{}, err
	}
	if err := p.ValidateKind(sharetype.Pub); err != nil {
		return sharetype.Tensor{}, err
	}
	if err := sharetype.ValidateField(a, p); err != nil {
		return sharetype.Tensor{}, err
	}
	if err := sharetype.ValidateShape(a, p); err != nil {
		return sharetype.Tensor{}, err
	}
	out := a.Copy()
	if ctx.Rank() == 0 {
		out.Buf.Add(p.Buf)
	}
	return out, nil
}

// AddAA adds two shares elementwise, local to every party.
func (ctx *Context) AddAA(x, y sharetype.Tensor) (sharetype.Tensor, error) {
	if err := x.ValidateKind(sharetype.AShr); err != nil {
		return sharetype.Tensor{}, err
	}
	if err := y.ValidateKind(sharetype.AShr); err != nil {
		return sharetype.Tensor{}, err
	}
	if err := sharetype.ValidateField(x, y); err != nil {
		return sharetype.Tensor{}, err
	}
	if err := sharetype.ValidateShape(x, y); err != nil {
		return sharetype.Tensor{}, err
	}
	out := x.Copy()
	out.Buf.Add(y.Buf)
	return out, nil
}

// MulAP multiplies a share elementwise by a public tensor: p is identical on
// every party, so xi*p summed across parties equals x*p — no Beaver
// interaction needed.
func (ctx *Context) MulAP(x, p sharetype.Tensor) (sharetype.Tensor, error) {
	if err := x.ValidateKind(sharetype.AShr); err != nil {
		return sharetype.Tensor{}, err
	}
	if err := p.ValidateKind(sharetype.Pub); err != nil {
		return sharetype.Tensor{}, err
	}
	if err := sharetype.ValidateField(x, p); err != nil {
		return sharetype.Tensor{}, err
	}
	if err := sharetype.ValidateShape(x, p); err != nil {
		return sharetype.Tensor{}, err
	}
	out := x.Copy()
	out.Buf.MulElem(p.Buf)
	return out, nil
}

// MatMulAP matrix-multiplies a share by a public matrix, local to every
// party for the same reason as MulAP.
func (ctx *Context) MatMulAP(x, p sharetype.Tensor) (sharetype.Tensor, error) {
	if err := x.ValidateKind(sharetype.AShr); err != nil {
		return sharetype.Tensor{}, err
	}
	if err := p.ValidateKind(sharetype.Pub); err != nil {
		return sharetype.Tensor{}, err
	}
	if err := sharetype.ValidateField(x, p); err != nil {
		return sharetype.Tensor{}, err
	}
	_, xc := x.Dims()
	pr, _ := p.Dims()
	if xc != pr {
		return sharetype.Tensor{}, newErr(ErrShapeMismatch, "MatMulAP: inner dims %d != %d", xc, pr)
	}
	out := mpc_core.RMultMat(x.Buf, p.Buf)
	return sharetype.NewAShr(x.Field, out), nil
}

// LShiftA left-shifts each column j of a share by shifts[j] bits, modulo the
// field's ring — linear and local (spec section 4.2): shifting every
// party's share by the same public amount shifts the sum by the same
// amount.
func (ctx *Context) LShiftA(x sharetype.Tensor, shifts []int) (sharetype.Tensor, error) {
	if err := x.ValidateKind(sharetype.AShr); err != nil {
		return sharetype.Tensor{}, err
	}
	_, cols := x.Dims()
	if len(shifts) != cols {
		return sharetype.Tensor{}, newErr(ErrInvalidParameter, "LShiftA: shifts len %d != cols %d", len(shifts), cols)
	}
	out := x.Copy()
	factors := make([]mpc_core.RElem, cols)
	for j, n := range shifts {
		if n < 0 || n >= x.Field.Bits {
			return sharetype.Tensor{}, newErr(ErrInvalidParameter, "LShiftA: shift %d out of range for %s", n, x.Field)
		}
		factors[j] = powerOfTwo(x.Field, n)
	}
	for i := range out.Buf {
		for j := range out.Buf[i] {
			out.Buf[i][j] = out.Buf[i][j].Mul(factors[j])
		}
	}
	return out, nil
}

// powerOfTwo builds the ring element 2^n mod M, used by LShiftA and the
// truncation protocols' fixed-point scaling.
func powerOfTwo(field sharetype.Field, n int) mpc_core.RElem {
	v := field.RElem().One()
	two := field.RElem().FromInt(2)
	for i := 0; i < n; i++ {
		v = v.Mul(two)
	}
	return v
}
