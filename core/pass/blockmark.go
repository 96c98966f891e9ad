package pass

import (
	"context"

	"github.com/rvjit/core/core/ir"
)

// blockMarker pairs each block-begin node with the terminator
// (jmp/if) that ends that block, by attribute. Inert for the
// straight-line RISC-V lifter, which never emits block/jmp/if — it
// exists for the fuller control-flow IR variant and is exercised
// directly by its own tests.
type blockMarker struct {
	blockEnd ir.NodeID
}

func (m *blockMarker) Start(g *ir.Graph) { m.blockEnd = ir.InvalidNodeID }

func (m *blockMarker) Before(g *ir.Graph, id ir.NodeID) bool {
	switch g.Node(id).Op {
	case ir.OpJmp, ir.OpIf:
		m.blockEnd = id
	case ir.OpBlock:
		g.Node(id).Attr = ir.NodeAttr(m.blockEnd)
		m.blockEnd = ir.InvalidNodeID
	}

	return false
}

func (m *blockMarker) After(g *ir.Graph, id ir.NodeID) {}

func (m *blockMarker) Finish(g *ir.Graph) {}

// BlockMarker walks from root and attaches every block node's
// attribute to the terminator node (jmp/if) that ends its block.
func BlockMarker(ctx context.Context, g *ir.Graph, root ir.NodeID) error {
	return Run(ctx, "block_marker", g, root, &blockMarker{blockEnd: ir.InvalidNodeID})
}
