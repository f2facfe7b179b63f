package kernel

import (
	mpc_core "github.com/hhcho/mpc-core"

	"github.com/hhcho/ring2k-kernel/beaver"
	"github.com/hhcho/ring2k-kernel/sharetype"
)

// openOperand implements the cache-aware half of the masked-open subroutine
// (spec section 4.3, step 2-3): subtract the Beaver mask locally, consult
// the cache for an already-opened value, and only pay for an all-reduce on
// a miss. cacheable=false forces a fresh open even if the cache is enabled —
// the aliasing guard for MulAA(x, x) passes false for the second operand so
// it never serves (or pollutes) the first operand's cache entry.
func (ctx *Context) openOperand(x, mask sharetype.Tensor, tag string, cacheable bool) (sharetype.Tensor, error) {
	if cacheable {
		if cached, ok := ctx.Cache.Get(x, tag); ok {
			return cached, nil
		}
	}

	diff := x.Copy()
	diff.Buf.Sub(mask.Buf)

	opened, err := ctx.Comm.AllReduce(commSum, diff, ctx.nextTag(tag))
	if err != nil {
		return sharetype.Tensor{}, wrapCommErr(err)
	}
	opened = opened.As(sharetype.Pub, sharetype.NoOwner)

	if cacheable {
		ctx.Cache.Set(x, tag, opened)
	}
	return opened, nil
}

// replayFor returns the replay descriptor to hand the Beaver provider for
// operand t under tag, or "" for a fresh, unmemoized mask. Caching must be
// both globally enabled and permitted for this operand (cacheable=false is
// the aliasing guard's way of forcing a fresh draw for MulAA(x,x)'s second
// operand) before the descriptor is handed out, or a disabled cache would
// still leave the provider memoizing masks nobody asked it to remember.
func (ctx *Context) replayFor(t sharetype.Tensor, tag string, cacheable bool) string {
	if !cacheable || !ctx.Cache.Enabled() {
		return ""
	}
	return beaver.ReplayDescriptor(t, tag)
}

// EnableCache turns on replay caching of Beaver-masked openings (spec
// section 4.7). The switch is context-wide: it applies to every operand, and
// x does not limit it to one tensor.
func (ctx *Context) EnableCache(x sharetype.Tensor) { ctx.Cache.Enable() }

// DisableCache turns off replay caching for every operand and drops the
// entries recorded for x; entries recorded for other tensors are kept.
func (ctx *Context) DisableCache(x sharetype.Tensor) {
	ctx.Cache.Disable()
	ctx.Cache.Forget(x)
}

// MulAA multiplies two arithmetic shares elementwise via a Beaver triple
// (spec section 4.3).
func (ctx *Context) MulAA(x, y sharetype.Tensor) (sharetype.Tensor, error) {
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

	z, err := ctx.mulAACore(x, y, "")
	if err != nil {
		return sharetype.Tensor{}, err
	}
	return sharetype.NewAShr(x.Field, z), nil
}

// mulAACore runs the masked-open elementwise multiplication shared by MulAA
// and MulA1B (which applies it to a locally-transformed pair xx, yy and then
// corrects the result — see mula1b.go). tagSuffix disambiguates the open
// tags when the same pair of tensors is passed through this path more than
// once in a single operation.
func (ctx *Context) mulAACore(x, y sharetype.Tensor, tagSuffix string) (mpc_core.RMat, error) {
	rows, cols := x.Dims()
	aliased := beaver.SameBuffer(x, y)

	xTag, yTag := "open(x-a)"+tagSuffix, "open(y-b)"+tagSuffix
	replayA := ctx.replayFor(x, xTag, true)
	replayB := ctx.replayFor(y, yTag, !aliased)

	a, b, c := ctx.Beaver.Mul(x.Field, rows, cols, replayA, replayB)
	a, b, c = a.As(sharetype.AShr, sharetype.NoOwner), b.As(sharetype.AShr, sharetype.NoOwner), c.As(sharetype.AShr, sharetype.NoOwner)

	xOpen, err := ctx.openOperand(x, a, xTag, true)
	if err != nil {
		return nil, err
	}
	yOpen, err := ctx.openOperand(y, b, yTag, !aliased)
	if err != nil {
		return nil, err
	}

	z := c.Buf.Copy()
	t1 := b.Buf.Copy()
	t1.MulElem(xOpen.Buf)
	z.Add(t1)
	t2 := a.Buf.Copy()
	t2.MulElem(yOpen.Buf)
	z.Add(t2)

	if ctx.Rank() == 0 {
		cross := xOpen.Buf.Copy()
		cross.MulElem(yOpen.Buf)
		z.Add(cross)
	}
	return z, nil
}

// SquareA specializes MulAA to y=x with a dedicated squaring pair, avoiding
// the aliasing check entirely and costing one open instead of two (spec
// section 4.3).
func (ctx *Context) SquareA(x sharetype.Tensor) (sharetype.Tensor, error) {
	if err := x.ValidateKind(sharetype.AShr); err != nil {
		return sharetype.Tensor{}, err
	}
	rows, cols := x.Dims()
	xTag := "open(x-a)[square]"
	replayA := ctx.replayFor(x, xTag, true)
	a, aa := ctx.Beaver.Square(x.Field, rows, cols, replayA)
	a, aa = a.As(sharetype.AShr, sharetype.NoOwner), aa.As(sharetype.AShr, sharetype.NoOwner)

	xOpen, err := ctx.openOperand(x, a, xTag, true)
	if err != nil {
		return sharetype.Tensor{}, err
	}

	z := aa.Buf.Copy()
	t := a.Buf.Copy()
	t.MulElem(xOpen.Buf)
	t = mulScalar(t, x.Field.RElem().FromInt(2))
	z.Add(t)

	if ctx.Rank() == 0 {
		cross := xOpen.Buf.Copy()
		cross.MulElem(xOpen.Buf)
		z.Add(cross)
	}
	return sharetype.NewAShr(x.Field, z), nil
}

// MatMulAA matrix-multiplies two arithmetic shares via a matmul Beaver
// triple. Inner dimensions must match (spec section 4.3).
func (ctx *Context) MatMulAA(x, y sharetype.Tensor) (sharetype.Tensor, error) {
	if err := x.ValidateKind(sharetype.AShr); err != nil {
		return sharetype.Tensor{}, err
	}
	if err := y.ValidateKind(sharetype.AShr); err != nil {
		return sharetype.Tensor{}, err
	}
	if err := sharetype.ValidateField(x, y); err != nil {
		return sharetype.Tensor{}, err
	}
	xr, xc := x.Dims()
	yr, yc := y.Dims()
	if xc != yr {
		return sharetype.Tensor{}, newErr(ErrShapeMismatch, "MatMulAA: inner dims %d != %d", xc, yr)
	}

	aliased := beaver.SameBuffer(x, y)
	xTag, yTag := "open(x-a)[matmul]", "open(y-b)[matmul]"
	replayA := ctx.replayFor(x, xTag, true)
	replayB := ctx.replayFor(y, yTag, !aliased)

	a, b, c := ctx.Beaver.Dot(x.Field, xr, xc, yc, replayA, replayB)
	a, b, c = a.As(sharetype.AShr, sharetype.NoOwner), b.As(sharetype.AShr, sharetype.NoOwner), c.As(sharetype.AShr, sharetype.NoOwner)

	xOpen, err := ctx.openOperand(x, a, xTag, true)
	if err != nil {
		return sharetype.Tensor{}, err
	}
	yOpen, err := ctx.openOperand(y, b, yTag, !aliased)
	if err != nil {
		return sharetype.Tensor{}, err
	}

	z := c.Buf.Copy()
	z.Add(mpc_core.RMultMat(xOpen.Buf, b.Buf))
	z.Add(mpc_core.RMultMat(a.Buf, yOpen.Buf))

	if ctx.Rank() == 0 {
		z.Add(mpc_core.RMultMat(xOpen.Buf, yOpen.Buf))
	}
	return sharetype.NewAShr(x.Field, z), nil
}

func mulScalar(m mpc_core.RMat, s mpc_core.RElem) mpc_core.RMat {
	out := m.Copy()
	out.MulScalar(s)
	return out
}
