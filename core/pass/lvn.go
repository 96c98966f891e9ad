package pass

import (
	"context"
	"fmt"
	"strings"

	"github.com/rvjit/core/core/ir"
)

// lvn hash-cons deduplicates pure nodes and folds constant-operand
// pure binaries, in post-order so that folding is always applied to
// already-canonicalized operands first.
type lvn struct {
	table map[string]ir.NodeID
}

func (l *lvn) Start(g *ir.Graph) {
	l.table = map[string]ir.NodeID{}
}

func (l *lvn) Before(g *ir.Graph, id ir.NodeID) bool { return false }

func (l *lvn) Finish(g *ir.Graph) {}

func (l *lvn) After(g *ir.Graph, id ir.NodeID) {
	n := g.Node(id)

	if !ir.IsPure(n.Op) {
		return
	}

	// 1. Constant folding: pure binary, both operands constant and of
	// matching type. Folds in place (same id, same output type),
	// mirroring local_value_numbering.cc's replace_with_constant +
	// goto lvn, instead of allocating a fresh node: the walker's
	// visit-mark table (pass.go) is sized once up front, so a node
	// minted mid-walk has no slot to record a visit against, and
	// falling straight through to hash-cons below (rather than
	// returning early) is what makes a second LVN run a no-op.
	l.tryFold(g, id)
	n = g.Node(id)

	// 2. Commutative canonicalization: put the constant operand (if
	// any) in slot 1, so structurally-equal commutative expressions
	// hash the same regardless of argument order.
	if ir.IsCommutative(n.Op) && len(n.Operands) == 2 {
		if isConstant(g, n.Operands[0]) && !isConstant(g, n.Operands[1]) {
			l0, l1 := n.Operands[0], n.Operands[1]
			g.SetOperand(id, 0, l1)
			g.SetOperand(id, 1, l0)
		}
	}

	// 3. Hash-cons.
	key := l.key(g, id)

	if prior, ok := l.table[key]; ok && prior != id {
		g.Replace(id, prior)
		return
	}

	l.table[key] = id
}

// tryFold constant-folds a pure binary with two constant operands by
// mutating the node into a 0-operand constant in place, so it keeps
// its id and never needs to go through the walker a second time.
// Reports whether it folded anything.
func (l *lvn) tryFold(g *ir.Graph, id ir.NodeID) bool {
	n := g.Node(id)

	isBinary := len(n.Operands) == 2 &&
		(n.Op == ir.OpAdd || n.Op == ir.OpSub || n.Op == ir.OpXor || n.Op == ir.OpOr ||
			n.Op == ir.OpAnd || n.Op == ir.OpShl || n.Op == ir.OpShr || n.Op == ir.OpSar ||
			n.Op == ir.OpEq || n.Op == ir.OpNe || n.Op == ir.OpLt || n.Op == ir.OpGe ||
			n.Op == ir.OpLtu || n.Op == ir.OpGeu)

	if !isBinary {
		return false
	}

	lv, rv := n.Operands[0], n.Operands[1]

	lc, lok := constantBits(g, lv)
	rc, rok := constantBits(g, rv)

	if !lok || !rok {
		return false
	}

	lt := g.Node(lv.Node).OutType(0)
	rt := g.Node(rv.Node).OutType(0)

	evalType := lt
	if n.Op != ir.OpShl && n.Op != ir.OpShr && n.Op != ir.OpSar {
		if lt != rt {
			return false
		}
	} else if rt != ir.TypeI8 {
		return false
	}

	result := Binary(evalType, n.Op, lc, rc)

	for i := range n.Operands {
		g.SetOperand(id, i, ir.EmptyValue)
	}

	n.Op = ir.OpConstant
	n.Operands = n.Operands[:0]
	n.Attr = ir.ImmAttr(result)

	return true
}

func isConstant(g *ir.Graph, v ir.Value) bool {
	return !v.IsEmpty() && g.Node(v.Node).Op == ir.OpConstant
}

func constantBits(g *ir.Graph, v ir.Value) (uint64, bool) {
	if !isConstant(g, v) {
		return 0, false
	}

	bits, ok := g.Node(v.Node).Attr.Imm()
	return bits, ok
}

// key builds the structural hash-cons key: opcode, output-type
// vector, attribute word, and operand sequence — exactly the tuple
// spec'd for pure-node equality.
func (l *lvn) key(g *ir.Graph, id ir.NodeID) string {
	n := g.Node(id)

	var sb strings.Builder

	fmt.Fprintf(&sb, "%d|", n.Op)

	for _, t := range n.OutTypes {
		fmt.Fprintf(&sb, "%d,", t)
	}

	sb.WriteByte('|')

	if imm, ok := n.Attr.Imm(); ok {
		fmt.Fprintf(&sb, "imm%d", imm)
	} else if ref, ok := n.Attr.NodeRef(); ok {
		fmt.Fprintf(&sb, "node%d", ref)
	}

	sb.WriteByte('|')

	for _, v := range n.Operands {
		if v.IsEmpty() {
			sb.WriteString("_,")
			continue
		}

		fmt.Fprintf(&sb, "%d_%d,", v.Node, v.Slot)
	}

	return sb.String()
}

// LocalValueNumbering structurally hash-conses every pure node
// reachable from root, canonicalizes commutative operand order, and
// constant-folds pure binaries over constant operands.
func LocalValueNumbering(ctx context.Context, g *ir.Graph, root ir.NodeID) error {
	return Run(ctx, "local_value_numbering", g, root, &lvn{})
}
