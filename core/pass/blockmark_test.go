package pass_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rvjit/core/core/builder"
	"github.com/rvjit/core/core/ir"
	"github.com/rvjit/core/core/pass"
)

func TestBlockMarkerPairsBlockWithJmp(t *testing.T) {
	g := ir.New()
	b := builder.New(g)

	mem := b.Start()
	block := b.Block(mem)
	jmp := b.Jmp(block)

	g.SetRoot(jmp.Node)

	err := pass.BlockMarker(context.Background(), g, jmp.Node)
	require.NoError(t, err)

	ref, ok := g.Node(block.Node).Attr.NodeRef()
	require.True(t, ok)
	require.Equal(t, jmp.Node, ref)
}

func TestBlockMarkerPairsBlockWithIf(t *testing.T) {
	g := ir.New()
	b := builder.New(g)

	mem := b.Start()
	block := b.Block(mem)
	cond := b.Constant(ir.TypeI1, 1)
	branch := b.If(block, cond)

	g.SetRoot(branch.Node)

	err := pass.BlockMarker(context.Background(), g, branch.Node)
	require.NoError(t, err)

	ref, ok := g.Node(block.Node).Attr.NodeRef()
	require.True(t, ok)
	require.Equal(t, branch.Node, ref)
}

func TestBlockMarkerHandlesChainedBlocks(t *testing.T) {
	g := ir.New()
	b := builder.New(g)

	mem := b.Start()
	block1 := b.Block(mem)
	jmp1 := b.Jmp(block1)
	block2 := b.Block(jmp1)
	jmp2 := b.Jmp(block2)

	g.SetRoot(jmp2.Node)

	err := pass.BlockMarker(context.Background(), g, jmp2.Node)
	require.NoError(t, err)

	ref1, _ := g.Node(block1.Node).Attr.NodeRef()
	ref2, _ := g.Node(block2.Node).Attr.NodeRef()
	require.Equal(t, jmp1.Node, ref1)
	require.Equal(t, jmp2.Node, ref2)
}
