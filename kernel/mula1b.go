package kernel

import (
	"github.com/hhcho/ring2k-kernel/sharetype"
)

// MulA1B multiplies an arithmetic share by a one-bit boolean share (spec
// section 4.4), grounded in original_source/arithmetic.cc's MulA1B: mask y
// down to its low bit, locally fold it into xx = (1-2*yy)*x, run the
// standard masked-open multiplication on (xx, yy), then undo the (1-2yy)
// transform's diagonal term and restore the correct one.
func (ctx *Context) MulA1B(x, y sharetype.Tensor) (sharetype.Tensor, error) {
	if err := x.ValidateKind(sharetype.AShr); err != nil {
		return sharetype.Tensor{}, err
	}
	if err := y.ValidateKind(sharetype.BShr); err != nil {
		return sharetype.Tensor{}, err
	}
	if err := sharetype.ValidateField(x, y); err != nil {
		return sharetype.Tensor{}, err
	}
	if err := sharetype.ValidateShape(x, y); err != nil {
		return sharetype.Tensor{}, err
	}

	yy := y.Copy()
	one := x.Field.RElem().One()
	for i := range yy.Buf {
		for j := range yy.Buf[i] {
			if yy.Buf[i][j].GetBit(0) == 1 {
				yy.Buf[i][j] = one
			} else {
				yy.Buf[i][j] = x.Field.Zero()
			}
		}
	}
	yy.Kind = sharetype.AShr

	two := x.Field.RElem().FromInt(2)
	xx := x.Copy()
	for i := range xx.Buf {
		for j := range xx.Buf[i] {
			factor := one.Sub(two.Mul(yy.Buf[i][j]))
			xx.Buf[i][j] = xx.Buf[i][j].Mul(factor)
		}
	}

	z, err := ctx.mulAACore(xx, yy, "[a1b]")
	if err != nil {
		return sharetype.Tensor{}, err
	}

	// zi -= xxi*yyi; zi += xi*yyi
	diag := xx.Buf.Copy()
	diag.MulElem(yy.Buf)
	z.Sub(diag)

	corr := x.Buf.Copy()
	corr.MulElem(yy.Buf)
	z.Add(corr)

	return sharetype.NewAShr(x.Field, z), nil
}
