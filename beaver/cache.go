package beaver

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/hhcho/ring2k-kernel/sharetype"
)

// bufferID is the cache's notion of "buffer identity" (spec section 9: "the
// cache is keyed by tensor/buffer identity, not by value") — the address of
// the underlying row-major storage, which stays stable across Tensor.As
// relabels (a tag-only transition) but changes on Tensor.Copy.
type bufferID uintptr

func identityOf(t sharetype.Tensor) bufferID {
	if len(t.Buf) == 0 {
		return 0
	}
	return bufferID(reflect.ValueOf(t.Buf[0]).Pointer())
}

// entry holds everything the cache remembers about one buffer: the masked
// values it has already opened, per tag, so a replayed multiplication over
// the same operand doesn't pay for another reveal.
type entry struct {
	opened map[string]sharetype.Tensor
}

// Cache is the Beaver cache (spec section 4.8): GetCache/SetCache store
// previously-opened masked values per buffer+tag, EnableCache/DisableCache
// toggle whether operations consult it at all.
type Cache struct {
	mu      sync.Mutex
	enabled bool
	entries map[bufferID]*entry
}

// NewCache returns a disabled cache; callers opt in via EnableCache.
func NewCache() *Cache {
	return &Cache{entries: make(map[bufferID]*entry)}
}

func (c *Cache) Enable()  { c.mu.Lock(); c.enabled = true; c.mu.Unlock() }
func (c *Cache) Disable() { c.mu.Lock(); c.enabled = false; c.mu.Unlock() }
func (c *Cache) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Get returns a previously-cached opened value for (t, tag), if the cache is
// enabled and one exists.
func (c *Cache) Get(t sharetype.Tensor, tag string) (sharetype.Tensor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return sharetype.Tensor{}, false
	}
	e, ok := c.entries[identityOf(t)]
	if !ok {
		return sharetype.Tensor{}, false
	}
	v, ok := e.opened[tag]
	return v, ok
}

// Set records an opened value for (t, tag). A no-op when the cache is
// disabled, so nothing is recorded while caching is off. Entries recorded
// earlier survive Disable and are served again after Enable; Forget drops
// them.
func (c *Cache) Set(t sharetype.Tensor, tag string, opened sharetype.Tensor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return
	}
	id := identityOf(t)
	e, ok := c.entries[id]
	if !ok {
		e = &entry{opened: make(map[string]sharetype.Tensor)}
		c.entries[id] = e
	}
	e.opened[tag] = opened
}

// Forget drops every cache entry for t, used when a buffer is mutated
// in-place and its previously-opened values would otherwise go stale.
func (c *Cache) Forget(t sharetype.Tensor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, identityOf(t))
}

// ReplayDescriptor derives the seed material (spec section 4.3/4.7: "an
// opaque value the provider and cache both understand") the kernel passes
// into Provider.Mul/Dot/Square for operand t under tag: buffer identity plus
// tag, so the cache and the provider agree on it independently without a
// handshake, and a second call against the same buffer and tag always
// regenerates the same mask the first call's opening was computed against.
func ReplayDescriptor(t sharetype.Tensor, tag string) string {
	return fmt.Sprintf("%d:%s", identityOf(t), tag)
}

// SameBuffer reports whether x and y are the same underlying buffer — the
// aliasing guard masked-open consults before opening x-a and y-b (spec
// section 9's "aliasing in MulAA(x,x)"). On an alias the kernel turns off
// caching and mask replay for the second operand, so that side is always
// opened afresh against its own freshly drawn mask.
func SameBuffer(x, y sharetype.Tensor) bool {
	return len(x.Buf) > 0 && len(y.Buf) > 0 && identityOf(x) == identityOf(y)
}
