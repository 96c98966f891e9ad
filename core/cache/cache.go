// Package cache implements the translation-cache coordinator: a
// direct-mapped hot cache backed by full cold maps, the compile
// pipeline that turns a guest PC into cached host code, and fence.i
// invalidation.
package cache

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/rvjit/core/core/decoder"
	"github.com/rvjit/core/core/frontend"
	"github.com/rvjit/core/core/ir"
	"github.com/rvjit/core/core/pass"
)

// HotCacheSize is the direct-mapped hot cache's entry count.
const HotCacheSize = 4096

// CodeBufferSize is the initial reservation per code buffer.
const CodeBufferSize = 4096

// hotIndex is the direct-mapped cache's index function.
func hotIndex(pc uint64) int { return int((pc >> 1) & 0xFFF) }

// Backend is the external host code generator the coordinator hands
// a finalized graph to: the graph's root is a return-like terminator
// and every block node's attribute points at its terminator. Not part
// of the specified core (spec.md §1's non-goals exclude the emitter);
// this is the consumer-facing shape spec.md §6 describes.
type Backend interface {
	Emit(g *ir.Graph, buf []byte) error
}

// BlockDecoder supplies the basic block starting at pc. Guest memory
// and state layout are out of scope (spec.md §1's non-goals); the
// coordinator only needs something that can hand it a BasicBlock.
type BlockDecoder func(pc uint64) (decoder.BasicBlock, error)

// Coordinator owns the hot/cold translation caches for one guest
// context. Per spec.md §5, it is single-threaded: no locks, no
// atomics on any of its fields.
type Coordinator struct {
	Decode  BlockDecoder
	Backend Backend

	hotTag   [HotCacheSize]uint64
	hotValid [HotCacheSize]bool
	hotPtr   [HotCacheSize][]byte

	coldCode  map[uint64][]byte
	coldGraph map[uint64]*ir.Graph
}

// New returns an empty coordinator reading blocks via decode and
// handing finalized graphs to backend.
func New(decode BlockDecoder, backend Backend) *Coordinator {
	return &Coordinator{
		Decode:    decode,
		Backend:   backend,
		coldCode:  map[uint64][]byte{},
		coldGraph: map[uint64]*ir.Graph{},
	}
}

// Step returns the host code buffer to run for pc, compiling it first
// on a cache miss. Actual invocation of the returned buffer is the
// executor's responsibility (spec.md §6's "produced to the executor"
// boundary), not the coordinator's.
func (c *Coordinator) Step(ctx context.Context, pc uint64) (buf []byte, err error) {
	idx := hotIndex(pc)

	if !c.hotValid[idx] || c.hotTag[idx] != pc {
		if err := c.compile(ctx, pc); err != nil {
			return nil, errors.Wrap(err, "step: compile %#x", pc)
		}
	}

	return c.hotPtr[idx], nil
}

// compile decodes, lifts, optimizes, and emits the block at pc, then
// publishes it into both cache tiers.
func (c *Coordinator) compile(ctx context.Context, pc uint64) (err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile", "pc", pc)
	defer tr.Finish("err", &err)

	buf, ok := c.coldCode[pc]
	if !ok {
		buf = make([]byte, CodeBufferSize)
		c.coldCode[pc] = buf
	}

	bb, err := c.Decode(pc)
	if err != nil {
		return errors.Wrap(err, "decode %#x", pc)
	}

	g := ir.New()

	root, err := frontend.Lift(ctx, g, bb)
	if err != nil {
		return errors.Wrap(err, "lift %#x", pc)
	}

	if err := pass.RegisterAccessElimination(ctx, g, root, frontend.RegCount); err != nil {
		return errors.Wrap(err, "register_access_elimination")
	}

	if err := pass.LocalValueNumbering(ctx, g, root); err != nil {
		return errors.Wrap(err, "local_value_numbering")
	}

	if err := pass.BlockMarker(ctx, g, root); err != nil {
		return errors.Wrap(err, "block_marker")
	}

	g.GarbageCollect()

	c.coldGraph[pc] = g

	if err := c.Backend.Emit(g, buf); err != nil {
		return errors.Wrap(err, "emit %#x", pc)
	}

	idx := hotIndex(pc)
	c.hotPtr[idx] = buf
	c.hotTag[idx] = pc
	c.hotValid[idx] = true

	tr.V("compile").Printw("compiled", "pc", pc, "nodes", g.Len())

	return nil
}

// FenceI invalidates the whole translation cache, per spec.md §4.10:
// every hot cache entry is marked invalid and the cold code-buffer map
// is emptied. It runs only when called; neither Step nor the lifted
// code for a guest fence.i calls it. Retained IR graphs are dropped too, though spec.md notes
// either choice is correct — dropping them here simply avoids this
// coordinator growing an unbounded graph cache across repeated
// fence.i churn.
func (c *Coordinator) FenceI() {
	for i := range c.hotValid {
		c.hotValid[i] = false
	}

	c.coldCode = map[uint64][]byte{}
	c.coldGraph = map[uint64]*ir.Graph{}
}

// Graph returns the retained IR graph for pc, if any — exposed for
// re-optimization or inspection tooling, per spec.md §4.10's "retained
// for re-use or re-optimization" note.
func (c *Coordinator) Graph(pc uint64) (*ir.Graph, bool) {
	g, ok := c.coldGraph[pc]
	return g, ok
}
