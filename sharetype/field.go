// Package sharetype defines the ring-algebra vocabulary the kernel operates
// over: the power-of-two Field taxonomy, the tagged element-kind lattice
// (Pub/Priv/AShr/BShr/RingRaw), and the Tensor type that carries a tag
// alongside its mpc_core-backed buffer.
//
// The ring algebra itself (RElem/RVec/RMat and their Add/Sub/Mul/Trunc/...
// methods) is supplied by github.com/hhcho/mpc-core, exactly as the teacher's
// mpc package depends on it; this package never reimplements modular
// arithmetic, it only tags and shapes it.
package sharetype

import (
	mpc_core "github.com/hhcho/mpc-core"
)

// Field names one of the three power-of-two rings the kernel supports.
// mpc-core's LElem2NBigInt is a modulus-parameterized ring element (see
// mpc.go's NormalizerEvenExp2N, which builds one via SetModulusPowerOf2);
// each Field keeps its own zero-value instance configured for its width so
// callers never have to know the underlying representation.
type Field struct {
	Bits  int
	rtype mpc_core.RElem
}

func newField(bits int) Field {
	z := mpc_core.LElem2NBigIntZero
	z.SetModulusPowerOf2(uint(bits))
	return Field{Bits: bits, rtype: z}
}

var (
	F32  = newField(32)
	F64  = newField(64)
	F128 = newField(128)
)

// Fields lists the supported rings in ascending order, for iteration in
// tests and demos.
var Fields = []Field{F32, F64, F128}

// Zero returns the field's zero-value RElem, the seed every ring operation
// starts from (Rand, RandBits, FromInt, FromBigInt are all methods on it).
func (f Field) Zero() mpc_core.RElem { return f.rtype.Zero() }

// One returns the field's multiplicative identity.
func (f Field) One() mpc_core.RElem { return f.rtype.One() }

// RElem is the field's representative zero value, exposed for callers that
// need to invoke RElem methods directly (FromInt, FromBigInt, Rand, ...).
func (f Field) RElem() mpc_core.RElem { return f.rtype }

func (f Field) String() string {
	switch f.Bits {
	case 32:
		return "F32"
	case 64:
		return "F64"
	case 128:
		return "F128"
	default:
		return "F?"
	}
}

// FieldByBits resolves a bit-width to its Field, for config parsing.
func FieldByBits(bits int) (Field, bool) {
	for _, f := range Fields {
		if f.Bits == bits {
			return f, true
		}
	}
	return Field{}, false
}
