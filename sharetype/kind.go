package sharetype

// Kind tags what a Tensor's buffer actually holds. The kernel checks a
// Tensor's Kind at every operation entry (spec section 7: "type mismatch is
// checked at operation entry, never inferred") rather than branching on
// buffer contents.
type Kind int

const (
	// Pub holds a plaintext value, identically replicated at every party.
	Pub Kind = iota
	// Priv holds a plaintext value known only to Owner; every other party's
	// buffer is a placeholder of the same shape whose contents carry no
	// meaning.
	Priv
	// AShr holds one additive share mod 2^k of a secret arithmetic value.
	AShr
	// BShr holds one additive share of a single secret bit mod 2.
	BShr
	// RingRaw holds a raw ring element with no secret-sharing semantics
	// attached (e.g. a Beaver triple component, or an opened mask) — the
	// escape hatch operations use internally, never exposed across a kernel
	// operation boundary.
	RingRaw
)

func (k Kind) String() string {
	switch k {
	case Pub:
		return "Pub"
	case Priv:
		return "Priv"
	case AShr:
		return "AShr"
	case BShr:
		return "BShr"
	case RingRaw:
		return "RingRaw"
	default:
		return "Unknown"
	}
}
