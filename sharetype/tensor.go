package sharetype

import (
	"fmt"

	mpc_core "github.com/hhcho/mpc-core"
)

// NoOwner marks a Tensor whose Kind does not carry single-party ownership
// (everything but Priv).
const NoOwner = -1

// Tensor is a typed, shaped buffer of ring elements: the unit every kernel
// operation consumes and produces. Buf is always an mpc_core.RMat (row-major,
// 1xN for vectors, 1x1 for scalars) so every operation shares one code path
// regardless of rank, mirroring the teacher's Mat/Vec/scalar wrapper trio in
// mpc/beavermult.go (BeaverPartition/-Vec/-Mat all funnel into the Mat form).
type Tensor struct {
	Kind  Kind
	Field Field
	Owner int // valid only when Kind == Priv
	Buf   mpc_core.RMat
}

func newTensor(kind Kind, field Field, owner int, buf mpc_core.RMat) Tensor {
	return Tensor{Kind: kind, Field: field, Owner: owner, Buf: buf}
}

// NewPub wraps a plaintext buffer as a Pub tensor.
func NewPub(field Field, buf mpc_core.RMat) Tensor {
	return newTensor(Pub, field, NoOwner, buf)
}

// NewPriv wraps owner's plaintext buffer as a Priv tensor.
func NewPriv(field Field, owner int, buf mpc_core.RMat) Tensor {
	return newTensor(Priv, field, owner, buf)
}

// NewAShr wraps a local additive arithmetic share as an AShr tensor.
func NewAShr(field Field, buf mpc_core.RMat) Tensor {
	return newTensor(AShr, field, NoOwner, buf)
}

// NewBShr wraps a local additive boolean (1-bit) share as a BShr tensor.
func NewBShr(field Field, buf mpc_core.RMat) Tensor {
	return newTensor(BShr, field, NoOwner, buf)
}

// NewRingRaw wraps a buffer with no secret-sharing semantics attached, used
// internally between masked-open and its callers.
func NewRingRaw(field Field, buf mpc_core.RMat) Tensor {
	return newTensor(RingRaw, field, NoOwner, buf)
}

// Dims returns (rows, cols) of the underlying buffer.
func (t Tensor) Dims() (int, int) {
	return t.Buf.Dims()
}

// Copy returns a Tensor with the same tag over an independently-allocated
// copy of the buffer — required before any in-place mpc_core RMat mutation
// (Add/Sub/MulElem all mutate their receiver).
func (t Tensor) Copy() Tensor {
	return newTensor(t.Kind, t.Field, t.Owner, t.Buf.Copy())
}

// As relabels a buffer to a new Kind/owner without touching the underlying
// data — the tag-only transition spec section 9 calls out (e.g. folding a
// RingRaw masked-open result back into an AShr once the caller has combined
// it with the cached opening). It is the caller's responsibility that the
// relabel is semantically sound; As itself performs no checks.
func (t Tensor) As(kind Kind, owner int) Tensor {
	return newTensor(kind, t.Field, owner, t.Buf)
}

// ValidateKind returns an error if t is not one of the allowed kinds, the
// "type mismatch is checked at operation entry" rule from spec section 7.
func (t Tensor) ValidateKind(allowed ...Kind) error {
	for _, k := range allowed {
		if t.Kind == k {
			return nil
		}
	}
	return fmt.Errorf("sharetype: expected kind in %v, got %s", allowed, t.Kind)
}

// ValidateField reports a field mismatch between two tensors expected to
// share a ring.
func ValidateField(a, b Tensor) error {
	if a.Field.Bits != b.Field.Bits {
		return fmt.Errorf("sharetype: field mismatch: %s vs %s", a.Field, b.Field)
	}
	return nil
}

// ValidateShape reports a shape mismatch between two tensors expected to be
// elementwise-compatible.
func ValidateShape(a, b Tensor) error {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		return fmt.Errorf("sharetype: shape mismatch: %dx%d vs %dx%d", ar, ac, br, bc)
	}
	return nil
}
