// Package bridge converts an additive arithmetic share into a CKKS
// ciphertext and back, a supplemented feature grounded in the teacher's
// mpc/ss.go (SSToCVec/CVecToSS). The teacher's version threshold-encrypts
// under a collectively-generated key so no single party ever sees the
// plaintext; this bridge simplifies that to a single demo keypair held by
// one designated party (hub) — a deliberate scope cut from the full
// dckks collective-key/collective-decrypt protocol, recorded in DESIGN.md —
// while keeping the teacher's actual data-flow shape: reveal the share,
// encode it with the ring-aware CKKS encoder the teacher's lattigo fork
// provides (EncodeRVecNew/DecodeRVec), encrypt/decrypt, and re-split into a
// fresh additive sharing on the way back.
package bridge

import (
	"fmt"

	"github.com/ldsec/lattigo/v2/ckks"
	libunlynx "github.com/ldsec/unlynx/lib"

	mpc_core "github.com/hhcho/mpc-core"

	"github.com/hhcho/ring2k-kernel/comm"
	"github.com/hhcho/ring2k-kernel/prg"
	"github.com/hhcho/ring2k-kernel/sharetype"
)

// Params bundles the CKKS scheme material the bridge needs: parameters, a
// single demo keypair, and the fixed-point scale (fracBits) the teacher's
// encoder fork uses to map ring elements into CKKS slots.
type Params struct {
	Params    *ckks.Parameters
	Sk        *ckks.SecretKey
	Pk        *ckks.PublicKey
	FracBits  uint64
	encoder   ckks.Encoder
	encryptor ckks.Encryptor
	decryptor ckks.Decryptor
}

// NewParams builds a single-keypair CKKS parameter set from one of the
// teacher's named presets (gwas.go's CkksParams config field selects among
// ckks.DefaultParams[ckks.PN12QP109 / PN13QP218 / PN14QP438 / PN15QP880 /
// PN16QP1761]). prec is the encoder's big.Float precision, as
// ckks.NewEncoderBig takes in crypto/crypto.go's NewCryptoParams.
func NewParams(preset *ckks.Parameters, prec, fracBits uint64) *Params {
	kgen := ckks.NewKeyGenerator(preset)
	sk := kgen.GenSecretKey()
	pk := kgen.GenPublicKey(sk)

	return &Params{
		Params:    preset,
		Sk:        sk,
		Pk:        pk,
		FracBits:  fracBits,
		encoder:   ckks.NewEncoderBig(preset, uint(prec)),
		encryptor: ckks.NewEncryptorFromPk(preset, pk),
		decryptor: ckks.NewDecryptor(preset, sk),
	}
}

// Bridge is the per-party handle the kernel's Context counterpart for HE
// conversion: a communicator, a PRG (for re-splitting a decrypted value),
// this party's rank, and the designated hub that holds the demo secret key.
type Bridge struct {
	Comm   comm.Communicator
	PRG    *prg.Service
	Hub    int
	Params *Params
}

// New builds a Bridge for this party.
func New(c comm.Communicator, p *prg.Service, hub int, params *Params) *Bridge {
	return &Bridge{Comm: c, PRG: p, Hub: hub, Params: params}
}

// ShareToCiphertext reveals x (a single-row AShr tensor) via the standard
// all-reduce reveal and encrypts the result under the bridge's demo key —
// every party computes the identical ciphertext independently, so nothing
// needs to travel over the wire for this direction (spec's share→ciphertext
// half of the bridge).
func (b *Bridge) ShareToCiphertext(x sharetype.Tensor) (*ckks.Ciphertext, error) {
	if err := x.ValidateKind(sharetype.AShr); err != nil {
		return nil, err
	}
	rows, _ := x.Dims()
	if rows != 1 {
		return nil, fmt.Errorf("bridge: ShareToCiphertext only supports a single row, got %d", rows)
	}

	timer := libunlynx.StartTimer(fmt.Sprintf("party%d_ShareToCiphertext", b.Comm.Rank()))
	defer libunlynx.EndTimer(timer)

	opened, err := b.Comm.AllReduce(comm.Sum, x, "bridge:reveal")
	if err != nil {
		return nil, fmt.Errorf("bridge: reveal: %w", err)
	}

	rvec := opened.Buf[0]
	slots := b.Params.Params.Slots()
	if len(rvec) > slots {
		return nil, fmt.Errorf("bridge: vector length %d exceeds %d CKKS slots", len(rvec), slots)
	}

	pt := b.Params.encoder.EncodeRVecNew(rvec, uint64(len(rvec)), int(b.Params.FracBits))
	ct := b.Params.encryptor.EncryptNew(pt)
	return ct, nil
}

// CiphertextToShare decrypts ct at the hub (the only party holding the demo
// secret key) and re-splits the recovered ring vector into a fresh additive
// sharing via the same correlated-PRG trick the Beaver provider uses, so
// every party — including the hub — ends up with a proper AShr tensor
// rather than the plaintext itself.
func (b *Bridge) CiphertextToShare(ct *ckks.Ciphertext, field sharetype.Field, n int) (sharetype.Tensor, error) {
	rank := b.Comm.Rank()
	world := b.Comm.WorldSize()

	timer := libunlynx.StartTimer(fmt.Sprintf("party%d_CiphertextToShare", rank))
	defer libunlynx.EndTimer(timer)

	var full mpc_core.RVec
	if rank == b.Hub {
		pt := b.Params.decryptor.DecryptNew(ct)
		full = b.Params.encoder.DecodeRVec(field.RElem(), pt, uint64(b.Params.Params.Slots()), int(b.Params.FracBits))[:n]
	}

	residual := mpc_core.InitRVec(field.Zero(), n)
	if rank == b.Hub {
		copy(residual, full)
		for p := 0; p < world; p++ {
			if p == b.Hub {
				continue
			}
			share, _ := b.PRG.GenPrssPair(field, p, 1, n)
			residual.Sub(share[0])
		}
		return sharetype.NewAShr(field, mpc_core.RMat{residual}), nil
	}

	share, _ := b.PRG.GenPrssPair(field, b.Hub, 1, n)
	return sharetype.NewAShr(field, mpc_core.RMat{share[0]}), nil
}
