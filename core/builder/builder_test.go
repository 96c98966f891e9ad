package builder_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rvjit/core/core/builder"
	"github.com/rvjit/core/core/ir"
)

func TestArithmeticRequiresMatchingTypes(t *testing.T) {
	g := ir.New()
	b := builder.New(g)

	l := b.Constant(ir.TypeI64, 1)
	r := b.Constant(ir.TypeI32, 1)

	require.Panics(t, func() {
		b.Arithmetic(ir.OpAdd, l, r)
	})
}

func TestShiftRequiresI8Amount(t *testing.T) {
	g := ir.New()
	b := builder.New(g)

	l := b.Constant(ir.TypeI64, 8)
	r := b.Constant(ir.TypeI64, 2)

	require.Panics(t, func() {
		b.Shift(ir.OpShl, l, r)
	})

	amt := b.Cast(ir.TypeI8, false, r)
	out := b.Shift(ir.OpShl, l, amt)
	require.Equal(t, ir.TypeI64, g.Node(out.Node).OutType(0))
}

func TestCompareProducesI1(t *testing.T) {
	g := ir.New()
	b := builder.New(g)

	l := b.Constant(ir.TypeI64, 1)
	r := b.Constant(ir.TypeI64, 2)

	out := b.Compare(ir.OpLt, l, r)
	require.Equal(t, ir.TypeI1, g.Node(out.Node).OutType(0))
}

func TestMemoryTokenThreading(t *testing.T) {
	g := ir.New()
	b := builder.New(g)

	mem := b.Start()
	v := b.Constant(ir.TypeI64, 42)

	mem2 := b.StoreRegister(mem, 1, v)
	require.Equal(t, ir.TypeMemory, g.Node(mem2.Node).OutType(0))

	mem3, val := b.LoadRegister(mem2, 1)
	require.Equal(t, ir.TypeMemory, g.Node(mem3.Node).OutType(0))
	require.Equal(t, ir.TypeI64, g.Node(val.Node).OutType(1))
}

func TestLoadRegisterRejectsNonMemoryDep(t *testing.T) {
	g := ir.New()
	b := builder.New(g)

	notMem := b.Constant(ir.TypeI64, 1)

	require.Panics(t, func() {
		b.LoadRegister(notMem, 1)
	})
}

func TestMuxRequiresI1Cond(t *testing.T) {
	g := ir.New()
	b := builder.New(g)

	cond := b.Constant(ir.TypeI64, 1)
	l := b.Constant(ir.TypeI64, 1)
	r := b.Constant(ir.TypeI64, 2)

	require.Panics(t, func() {
		b.Mux(cond, l, r)
	})
}
