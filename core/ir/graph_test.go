package ir_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rvjit/core/core/ir"
)

func TestBackRefsBidirectional(t *testing.T) {
	g := ir.New()

	c1 := g.NewNode(ir.OpConstant, []ir.Type{ir.TypeI64}, nil)
	v1 := ir.Value{Node: c1, Slot: 0}

	// add x x: the same value referenced twice must be tracked with
	// multiplicity two, not deduplicated.
	add := g.NewNode(ir.OpAdd, []ir.Type{ir.TypeI64}, []ir.Value{v1, v1})

	require.Equal(t, 2, g.BackRefCount(v1))

	g.SetOperand(add, 1, ir.EmptyValue)
	require.Equal(t, 1, g.BackRefCount(v1))

	g.SetOperand(add, 1, v1)
	require.Equal(t, 2, g.BackRefCount(v1))
}

func TestReplaceAllUsesClearsBackRefs(t *testing.T) {
	g := ir.New()

	c1 := g.NewNode(ir.OpConstant, []ir.Type{ir.TypeI64}, nil)
	c2 := g.NewNode(ir.OpConstant, []ir.Type{ir.TypeI64}, nil)
	v1 := ir.Value{Node: c1, Slot: 0}
	v2 := ir.Value{Node: c2, Slot: 0}

	n1 := g.NewNode(ir.OpNeg, []ir.Type{ir.TypeI64}, []ir.Value{v1})
	n2 := g.NewNode(ir.OpNot, []ir.Type{ir.TypeI64}, []ir.Value{v1})

	require.Equal(t, 2, g.BackRefCount(v1))

	g.ReplaceAllUses(v1, v2)

	require.Equal(t, 0, g.BackRefCount(v1))
	require.Equal(t, 2, g.BackRefCount(v2))
	require.Equal(t, v2, g.Node(n1).Operand(0))
	require.Equal(t, v2, g.Node(n2).Operand(0))
}

func TestGarbageCollectKeepsOnlyReachable(t *testing.T) {
	g := ir.New()

	start := g.NewNode(ir.OpStart, []ir.Type{ir.TypeMemory}, nil)
	g.SetStart(start)
	mem := ir.Value{Node: start, Slot: 0}

	live := g.NewNode(ir.OpFence, []ir.Type{ir.TypeMemory}, []ir.Value{mem})
	dead := g.NewNode(ir.OpConstant, []ir.Type{ir.TypeI64}, nil)
	_ = dead

	g.SetRoot(live)
	require.Equal(t, 3, g.Len())

	g.GarbageCollect()

	require.Equal(t, 2, g.Len())

	for _, id := range g.Nodes() {
		n := g.Node(id)
		require.NotEqual(t, ir.OpConstant, n.Op, "dead constant should have been collected")
	}
}

func TestReplaceRequiresMatchingArity(t *testing.T) {
	g := ir.New()

	old := g.NewNode(ir.OpConstant, []ir.Type{ir.TypeI64}, nil)
	repl := g.NewNode(ir.OpLoadRegister, []ir.Type{ir.TypeMemory, ir.TypeI64}, nil)

	require.Panics(t, func() {
		g.Replace(repl, old)
	})
}
