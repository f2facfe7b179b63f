// Package prg implements the kernel's PRG/PRSS (pseudorandom secret sharing)
// service: a per-peer table of seeded stream ciphers that lets every party
// independently regenerate the same correlated randomness another party also
// holds, without a round of communication.
//
// Adapted from the teacher's mpc/random.go: github.com/hhcho/frand (an
// AVX2-friendly ChaCha-based RNG) seeded via github.com/aead/chacha20/chacha
// key material, organized as a map from peer id to *frand.RNG.
package prg

import (
	"fmt"
	"os"
	"path"

	"github.com/aead/chacha20/chacha"
	"github.com/hhcho/frand"
	mpc_core "github.com/hhcho/mpc-core"
	"go.dedis.ch/onet/v3/log"

	"github.com/hhcho/ring2k-kernel/sharetype"
)

// bufferSize is the frand read-ahead buffer, as in mpc/random.go.
const bufferSize = 1024

// GlobalID addresses the PRG shared by every party (used for public
// randomness that must be identical everywhere, e.g. reproducible test
// fixtures).
const GlobalID int = -1

// Service is a per-party table of PRGs: one local-only stream, one shared
// with every other party pairwise, and one shared globally.
type Service struct {
	pid   int
	table map[int]*frand.RNG
	cur   *frand.RNG
}

func sortPair(a, b int) (int, int) {
	if a < b {
		return a, b
	}
	return b, a
}

// New builds a Service for party pid among numParties parties. When
// sharedKeysPath is empty it falls back to small deterministic seeds derived
// from the party ids — insecure, but lets tests and single-process demos run
// without a key-distribution step, exactly as InitializePRG warns.
func New(pid, numParties int, sharedKeysPath string) *Service {
	table := make(map[int]*frand.RNG)

	if sharedKeysPath == "" {
		log.LLvl1("prg: shared_keys_path not set, falling back to deterministic keys (not secure)")
	}

	seed := make([]byte, chacha.KeySize)
	if sharedKeysPath != "" {
		key, err := os.ReadFile(path.Join(sharedKeysPath, "shared_key_global.bin"))
		if err != nil {
			log.Fatal(err)
		}
		copy(seed, key)
	}
	table[GlobalID] = frand.NewCustom(seed, bufferSize, 20)

	for i := 0; i < numParties; i++ {
		if i == pid {
			continue
		}
		a, b := sortPair(pid, i)
		if sharedKeysPath == "" {
			seed[0] = byte(a)
			seed[1] = byte(b)
		} else {
			key, err := os.ReadFile(path.Join(sharedKeysPath, fmt.Sprintf("shared_key_%d_%d.bin", a, b)))
			if err != nil {
				log.Fatal(err)
			}
			copy(seed, key)
		}
		table[i] = frand.NewCustom(seed, bufferSize, 20)
	}

	frand.Read(seed)
	table[pid] = frand.NewCustom(seed, bufferSize, 20)

	return &Service{pid: pid, table: table, cur: table[pid]}
}

// SwitchPRG points subsequent Rand* calls at the stream shared with peerID
// (or GlobalID). Must be paired with RestorePRG.
func (s *Service) SwitchPRG(peerID int) {
	rng, ok := s.table[peerID]
	if !ok {
		log.Fatal("prg: no PRG registered for peer", peerID)
	}
	s.cur = rng
}

// RestorePRG returns to the party's own local stream.
func (s *Service) RestorePRG() {
	s.cur = s.table[s.pid]
}

// GenPriv draws a uniform private ring element from the current stream — the
// external interface spec section 6 names genPriv: a fresh local value no
// other party can predict unless they hold the same stream.
func (s *Service) GenPriv(field sharetype.Field) mpc_core.RElem {
	return field.RElem().Rand(s.cur)
}

// GenPrivVec draws n uniform ring elements.
func (s *Service) GenPrivVec(field sharetype.Field, n int) mpc_core.RVec {
	out := make(mpc_core.RVec, n)
	for i := range out {
		out[i] = field.RElem().Rand(s.cur)
	}
	return out
}

// GenPrivMat draws an (r x c) matrix of uniform ring elements.
func (s *Service) GenPrivMat(field sharetype.Field, r, c int) mpc_core.RMat {
	out := make(mpc_core.RMat, r)
	for i := range out {
		out[i] = s.GenPrivVec(field, c)
	}
	return out
}

// GenPrivVecBits draws n uniform ring elements restricted to nbits of
// entropy (the Beaver provider's truncation masks for TruncA/TruncAPr).
func (s *Service) GenPrivVecBits(field sharetype.Field, n, nbits int) mpc_core.RVec {
	out := make(mpc_core.RVec, n)
	for i := range out {
		out[i] = field.RElem().RandBits(s.cur, nbits)
	}
	return out
}

// GenPrivMatBits draws an (r x c) matrix of nbits-bounded uniform elements.
func (s *Service) GenPrivMatBits(field sharetype.Field, r, c, nbits int) mpc_core.RMat {
	out := make(mpc_core.RMat, r)
	for i := range out {
		out[i] = s.GenPrivVecBits(field, c, nbits)
	}
	return out
}

// GenPrssPair draws the correlated pair (x, x') this party and peerID will
// both compute: x from peerID's shared stream (identical on both ends) and
// x' from this party's own stream. Beaver triple generation and the N-party
// truncation-pair protocol both consume this primitive to hand out
// consistent randomness without a communication round — following
// BeaverPartitionMat's SwitchPRG(p)/RandMat/RestorePRG pattern.
func (s *Service) GenPrssPair(field sharetype.Field, peerID, r, c int) (shared, own mpc_core.RMat) {
	s.SwitchPRG(peerID)
	shared = s.GenPrivMat(field, r, c)
	s.RestorePRG()
	own = s.GenPrivMat(field, r, c)
	return shared, own
}

// Export marshals the current stream's state, for session checkpointing.
func (s *Service) Export() []byte {
	return s.cur.Marshal()
}

// Import replaces peerID's stream with a previously-exported state.
func (s *Service) Import(buf []byte, peerID int) {
	s.table[peerID] = frand.Unmarshal(buf, bufferSize)
}
