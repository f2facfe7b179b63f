// Package kernel implements the arithmetic kernel of the secure computation
// protocol: stateless operation handlers sharing an evaluation Context that
// exposes the four external services spec section 2 names (ring algebra via
// sharetype/mpc_core, PRG/PRSS via prg.Service, the network via
// comm.Communicator, and the Beaver provider/cache via the beaver package).
package kernel

import (
	"fmt"

	"github.com/hhcho/ring2k-kernel/beaver"
	"github.com/hhcho/ring2k-kernel/comm"
	"github.com/hhcho/ring2k-kernel/prg"
)

// Context is the evaluation context every operation handler takes as its
// first argument. One Context exists per party per logical evaluator thread
// (spec section 5: "each party runs a single logical evaluator that
// processes operations sequentially").
type Context struct {
	Comm    comm.Communicator
	PRG     *prg.Service
	Beaver  beaver.Provider
	Cache   *beaver.Cache
	tagSeq  int
}

// NewContext wires the four external services into one evaluation context.
func NewContext(c comm.Communicator, p *prg.Service, b beaver.Provider) *Context {
	return &Context{Comm: c, PRG: p, Beaver: b, Cache: beaver.NewCache()}
}

// Rank is this party's position in the collective, 0..WorldSize-1.
func (ctx *Context) Rank() int { return ctx.Comm.Rank() }

// WorldSize is the number of parties in the collective.
func (ctx *Context) WorldSize() int { return ctx.Comm.WorldSize() }

// nextTag allocates a fresh, locally-unique message tag suffix. Operations
// still use stable, descriptive tag strings (spec section 5: "messages are
// tagged with stable strings"); nextTag only disambiguates repeated calls to
// the same operation within one session so their all-reduces don't collide
// on the Communicator's tag-keyed channels.
func (ctx *Context) nextTag(base string) string {
	ctx.tagSeq++
	return fmt.Sprintf("%s#%d", base, ctx.tagSeq)
}
