package pass_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rvjit/core/core/builder"
	"github.com/rvjit/core/core/ir"
	"github.com/rvjit/core/core/pass"
)

func TestLocalValueNumberingConstantFolding(t *testing.T) {
	g := ir.New()
	b := builder.New(g)

	mem := b.Start()
	l := b.Constant(ir.TypeI64, 3)
	r := b.Constant(ir.TypeI64, 4)
	sum := b.Arithmetic(ir.OpAdd, l, r)

	store := b.StoreRegister(mem, 5, sum)
	g.SetRoot(store.Node)

	err := pass.LocalValueNumbering(context.Background(), g, store.Node)
	require.NoError(t, err)

	folded := g.Node(store.Node).Operand(1)
	require.Equal(t, ir.OpConstant, g.Node(folded.Node).Op)

	bits, ok := g.Node(folded.Node).Attr.Imm()
	require.True(t, ok)
	require.Equal(t, uint64(7), bits)
}

// A foldable expression with two uses discovered before the fold runs
// — the shape register-forwarding produces for something like
// "addi x1,x0,5; mv x2,x1; mv x3,x1" — must not mint a fresh node the
// walker's fixed-size visit-mark table was never sized for.
func TestLocalValueNumberingFoldsExpressionWithMultipleUses(t *testing.T) {
	g := ir.New()
	b := builder.New(g)

	mem := b.Start()
	l := b.Constant(ir.TypeI64, 2)
	r := b.Constant(ir.TypeI64, 3)
	sum := b.Arithmetic(ir.OpAdd, l, r)

	s1 := b.StoreRegister(mem, 1, sum)
	s2 := b.StoreRegister(mem, 2, sum)

	root := b.Fence(s1, s2)
	g.SetRoot(root.Node)

	err := pass.LocalValueNumbering(context.Background(), g, root.Node)
	require.NoError(t, err)

	f1 := g.Node(s1.Node).Operand(1)
	f2 := g.Node(s2.Node).Operand(1)

	require.Equal(t, ir.OpConstant, g.Node(f1.Node).Op)
	require.Equal(t, f1, f2)

	bits, ok := g.Node(f1.Node).Attr.Imm()
	require.True(t, ok)
	require.Equal(t, uint64(5), bits)
}

// Two independently-built, structurally-identical foldable expressions
// must hash-cons to the same node within a single LVN run, not just
// after a second run.
func TestLocalValueNumberingFoldThenHashConsInOnePass(t *testing.T) {
	g := ir.New()
	b := builder.New(g)

	mem := b.Start()
	l1 := b.Constant(ir.TypeI64, 2)
	r1 := b.Constant(ir.TypeI64, 3)
	sum1 := b.Arithmetic(ir.OpAdd, l1, r1)

	l2 := b.Constant(ir.TypeI64, 2)
	r2 := b.Constant(ir.TypeI64, 3)
	sum2 := b.Arithmetic(ir.OpAdd, l2, r2)

	s1 := b.StoreRegister(mem, 1, sum1)
	s2 := b.StoreRegister(mem, 2, sum2)

	root := b.Fence(s1, s2)
	g.SetRoot(root.Node)

	err := pass.LocalValueNumbering(context.Background(), g, root.Node)
	require.NoError(t, err)

	require.Equal(t, g.Node(s1.Node).Operand(1), g.Node(s2.Node).Operand(1))
}

func TestLocalValueNumberingHashConsDeduplicatesEqualNodes(t *testing.T) {
	g := ir.New()
	b := builder.New(g)

	mem := b.Start()
	_, x := b.LoadRegister(mem, 10)
	_, y := b.LoadRegister(mem, 11)

	a1 := b.Arithmetic(ir.OpAdd, x, y)
	a2 := b.Arithmetic(ir.OpAdd, x, y)

	s1 := b.StoreRegister(mem, 20, a1)
	s2 := b.StoreRegister(mem, 21, a2)

	root := b.Fence(s1, s2)
	g.SetRoot(root.Node)

	err := pass.LocalValueNumbering(context.Background(), g, root.Node)
	require.NoError(t, err)

	require.Equal(t, g.Node(s1.Node).Operand(1), g.Node(s2.Node).Operand(1))
}

func TestLocalValueNumberingCanonicalizesCommutativeOperandOrder(t *testing.T) {
	g := ir.New()
	b := builder.New(g)

	mem := b.Start()
	_, x := b.LoadRegister(mem, 1)
	c := b.Constant(ir.TypeI64, 9)

	a1 := b.Arithmetic(ir.OpAdd, x, c)
	a2 := b.Arithmetic(ir.OpAdd, c, x)

	s1 := b.StoreRegister(mem, 2, a1)
	s2 := b.StoreRegister(mem, 3, a2)

	root := b.Fence(s1, s2)
	g.SetRoot(root.Node)

	err := pass.LocalValueNumbering(context.Background(), g, root.Node)
	require.NoError(t, err)

	require.Equal(t, g.Node(s1.Node).Operand(1), g.Node(s2.Node).Operand(1))
}

func TestLocalValueNumberingLeavesImpureNodesAlone(t *testing.T) {
	g := ir.New()
	b := builder.New(g)

	mem := b.Start()
	v := b.Constant(ir.TypeI64, 1)
	s1 := b.StoreRegister(mem, 1, v)
	s2 := b.StoreRegister(mem, 1, v)

	root := b.Fence(s1, s2)
	g.SetRoot(root.Node)

	err := pass.LocalValueNumbering(context.Background(), g, root.Node)
	require.NoError(t, err)

	require.NotEqual(t, g.Node(root.Node).Operand(0), g.Node(root.Node).Operand(1))
}
