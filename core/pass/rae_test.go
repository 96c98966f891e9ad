package pass_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rvjit/core/core/builder"
	"github.com/rvjit/core/core/ir"
	"github.com/rvjit/core/core/pass"
)

func TestRegisterAccessEliminationForwardsStoreToLoad(t *testing.T) {
	g := ir.New()
	b := builder.New(g)

	mem := b.Start()
	v := b.Constant(ir.TypeI64, 5)
	s := b.StoreRegister(mem, 3, v)

	memL, val := b.LoadRegister(s, 3)
	final := b.StoreRegister(memL, 4, val)

	g.SetRoot(final.Node)

	err := pass.RegisterAccessElimination(context.Background(), g, final.Node, 66)
	require.NoError(t, err)

	require.Equal(t, v, g.Node(final.Node).Operand(1))
	require.Equal(t, s, g.Node(final.Node).Operand(0))
}

func TestRegisterAccessEliminationElidesRedundantLoad(t *testing.T) {
	g := ir.New()
	b := builder.New(g)

	mem := b.Start()
	mem1, v1 := b.LoadRegister(mem, 7)
	mem2, v2 := b.LoadRegister(mem1, 7)
	final := b.StoreRegister(mem2, 8, v2)

	g.SetRoot(final.Node)

	err := pass.RegisterAccessElimination(context.Background(), g, final.Node, 66)
	require.NoError(t, err)

	require.Equal(t, v1, g.Node(final.Node).Operand(1))
	require.Equal(t, mem1, g.Node(final.Node).Operand(0))
}

func TestRegisterAccessEliminationDropsDeadStore(t *testing.T) {
	g := ir.New()
	b := builder.New(g)

	mem := b.Start()
	v1 := b.Constant(ir.TypeI64, 1)
	v2 := b.Constant(ir.TypeI64, 2)

	s1 := b.StoreRegister(mem, 5, v1)
	s2 := b.StoreRegister(s1, 5, v2)

	g.SetRoot(s2.Node)

	err := pass.RegisterAccessElimination(context.Background(), g, s2.Node, 66)
	require.NoError(t, err)

	require.Equal(t, mem, g.Node(s2.Node).Operand(0))
	require.Equal(t, 0, g.BackRefCount(ir.Value{Node: s1.Node, Slot: 0}))
}

func TestRegisterAccessEliminationKeepsStoreAcrossException(t *testing.T) {
	g := ir.New()
	b := builder.New(g)

	mem := b.Start()
	v1 := b.Constant(ir.TypeI64, 1)
	v2 := b.Constant(ir.TypeI64, 2)

	s1 := b.StoreRegister(mem, 5, v1)
	excepted := b.Emulate(s1, 0xdeadbeef)
	s2 := b.StoreRegister(excepted, 5, v2)

	g.SetRoot(s2.Node)

	err := pass.RegisterAccessElimination(context.Background(), g, s2.Node, 66)
	require.NoError(t, err)

	// s1 must still be reachable from s2 through the unmodified chain.
	require.Equal(t, excepted, g.Node(s2.Node).Operand(0))
	require.Equal(t, s1, g.Node(excepted.Node).Operand(0))
	require.NotEqual(t, 0, g.BackRefCount(ir.Value{Node: s1.Node, Slot: 0}))
}

func TestRegisterAccessEliminationDoesNotForwardLoadAcrossException(t *testing.T) {
	g := ir.New()
	b := builder.New(g)

	mem := b.Start()
	v := b.Constant(ir.TypeI64, 1)

	s := b.StoreRegister(mem, 5, v)
	excepted := b.Emulate(s, 0xdeadbeef)
	memL, val := b.LoadRegister(excepted, 5)
	final := b.StoreRegister(memL, 6, val)

	g.SetRoot(final.Node)

	err := pass.RegisterAccessElimination(context.Background(), g, final.Node, 66)
	require.NoError(t, err)

	// The load must not be answered from the pre-exception store: an
	// intervening exception barrier can observe or alter register
	// state, so the load has to survive as its own node.
	require.NotEqual(t, v, g.Node(final.Node).Operand(1))
	require.Equal(t, val, g.Node(final.Node).Operand(1))
}

func TestRegisterAccessEliminationFoldsRepeatedLoad(t *testing.T) {
	g := ir.New()
	b := builder.New(g)

	mem := b.Start()
	memL1, val1 := b.LoadRegister(mem, 2)
	memL2, val2 := b.LoadRegister(memL1, 2)
	final := b.StoreRegister(memL2, 3, val2)

	g.SetRoot(final.Node)

	err := pass.RegisterAccessElimination(context.Background(), g, final.Node, 66)
	require.NoError(t, err)

	require.Equal(t, val1, g.Node(final.Node).Operand(1))
	require.Equal(t, memL1, g.Node(final.Node).Operand(0))
}

func TestRegisterAccessEliminationFenceInvalidatesPendingLoad(t *testing.T) {
	g := ir.New()
	b := builder.New(g)

	mem := b.Start()
	memL1, val1 := b.LoadRegister(mem, 2)
	fenced := b.Fence(memL1)
	memL2, val2 := b.LoadRegister(fenced, 2)
	final := b.StoreRegister(memL2, 3, val2)

	g.SetRoot(final.Node)

	err := pass.RegisterAccessElimination(context.Background(), g, final.Node, 66)
	require.NoError(t, err)

	// The second load is not folded into the first: a fence clears the
	// cached load, so it survives as its own node past the barrier.
	require.NotEqual(t, val1, g.Node(final.Node).Operand(1))
}
