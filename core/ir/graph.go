package ir

import (
	"tlog.app/go/errors"
)

// Graph owns every node reachable or not-yet-collected in one
// translation unit. Nodes are addressed by stable NodeID rather than
// pointer, per the arena-plus-indices reimplementation strategy: all
// edge mutation goes through Graph methods that keep both directions
// of the operand/back-reference relation in lock-step.
type Graph struct {
	nodes []Node
	start NodeID
	root  NodeID
}

// New returns an empty graph with no start or root node set.
func New() *Graph {
	return &Graph{start: InvalidNodeID, root: InvalidNodeID}
}

// NewNode allocates a node with the given opcode, output types, and
// operands, links it into every operand's back-reference multiset,
// and returns its handle. Operand type mismatches are the caller's
// (the builder's) responsibility to have already validated; NewNode
// itself only validates operand indices are within the graph.
func (g *Graph) NewNode(op Op, outTypes []Type, operands []Value) NodeID {
	n := Node{
		Op:       op,
		OutTypes: append([]Type(nil), outTypes...),
		Operands: append([]Value(nil), operands...),
		backRefs: make([]backrefSet, len(outTypes)),
		alive:    true,
	}

	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, n)

	for _, v := range operands {
		g.backRef(v).insert(id)
	}

	return id
}

// Node returns a mutable pointer to the node identified by id. The
// pointer is only valid until the next NewNode or GarbageCollect,
// either of which may move the arena.
func (g *Graph) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(g.nodes) || !g.nodes[id].alive {
		panic(errors.New("ir: invalid node handle %d", id))
	}

	return &g.nodes[id]
}

func (g *Graph) backRef(v Value) *backrefSet {
	n := g.Node(v.Node)

	if int(v.Slot) >= len(n.backRefs) {
		panic(errors.New("ir: output slot %d out of range for node %d (%v)", v.Slot, v.Node, n.Op))
	}

	return &n.backRefs[v.Slot]
}

// BackRefCount reports how many operand edges currently reference v.
// Exposed for invariant tests.
func (g *Graph) BackRefCount(v Value) int {
	return g.backRef(v).size()
}

// Start returns the graph's designated start node, or InvalidNodeID
// if unset.
func (g *Graph) Start() NodeID { return g.start }

// SetStart designates the start node.
func (g *Graph) SetStart(id NodeID) { g.start = id }

// Root returns the graph's designated root node, or InvalidNodeID if
// unset.
func (g *Graph) Root() NodeID { return g.root }

// SetRoot designates the root node; every node not transitively
// operand-reachable from root is dead and eligible for collection.
func (g *Graph) SetRoot(id NodeID) { g.root = id }

// SetOperand overwrites operand slot i of node id, moving the
// back-reference from the old value to the new one. This is the only
// legal way to alter an existing operand edge post-construction.
func (g *Graph) SetOperand(id NodeID, i int, newV Value) {
	n := g.Node(id)

	if i < 0 || i >= len(n.Operands) {
		panic(errors.New("ir: operand index %d out of range for node %d (%v)", i, id, n.Op))
	}

	oldV := n.Operands[i]

	if !oldV.IsEmpty() {
		if !g.backRef(oldV).eraseOne(id) {
			panic(errors.New("ir: missing back-edge from %d to %v", id, oldV))
		}
	}

	if !newV.IsEmpty() {
		g.backRef(newV).insert(id)
	}

	n.Operands[i] = newV
}

// AddOperand appends a new operand edge to node id.
func (g *Graph) AddOperand(id NodeID, v Value) {
	n := g.Node(id)
	n.Operands = append(n.Operands, v)

	if !v.IsEmpty() {
		g.backRef(v).insert(id)
	}
}

// UpdateOperand rewrites every operand slot of id currently equal to
// oldV to newV.
func (g *Graph) UpdateOperand(id NodeID, oldV, newV Value) {
	n := g.Node(id)

	for i, v := range n.Operands {
		if v == oldV {
			g.SetOperand(id, i, newV)
		}
	}
}

// ReplaceAllUses redirects every node currently referencing oldV to
// reference newV instead. Post-condition: oldV's back-reference
// multiset is empty.
func (g *Graph) ReplaceAllUses(oldV, newV Value) {
	if oldV.IsEmpty() {
		return
	}

	g.backRef(oldV).forEach(func(user NodeID) {
		g.UpdateOperand(user, oldV, newV)
	})

	if got := g.BackRefCount(oldV); got != 0 {
		panic(errors.New("ir: replace_all_uses left %d dangling back-edges on %v", got, oldV))
	}
}

// Replace substitutes newID for oldID in every node that references
// any output of oldID, slot for slot. newID must produce at least as
// many outputs as oldID, with matching types per slot — the pass
// framework's generic node-replacement utility.
func (g *Graph) Replace(oldID, newID NodeID) {
	old := g.Node(oldID)
	repl := g.Node(newID)

	if repl.OutputCount() < old.OutputCount() {
		panic(errors.New("ir: replace %d -> %d: output count %d < %d", oldID, newID, repl.OutputCount(), old.OutputCount()))
	}

	for i, t := range old.OutTypes {
		if repl.OutType(i) != t {
			panic(errors.New("ir: replace %d -> %d: slot %d type %v != %v", oldID, newID, i, repl.OutType(i), t))
		}
	}

	for i := range old.OutTypes {
		g.ReplaceAllUses(Value{Node: oldID, Slot: uint8(i)}, Value{Node: newID, Slot: uint8(i)})
	}
}

// destroy unlinks all of id's own operand edges. Called during
// GarbageCollect on nodes that are dead per the root-reachability
// definition; other dead nodes may still reference id at that point.
func (g *Graph) destroy(id NodeID) {
	n := g.Node(id)

	for i, v := range n.Operands {
		if v.IsEmpty() {
			continue
		}

		// The operand's own node may already be dead if it too was
		// unreachable and destroyed earlier in the same sweep; its
		// back-reference bookkeeping is moot once it is gone.
		if g.nodes[v.Node].alive {
			if !g.backRef(v).eraseOne(id) {
				panic(errors.New("ir: missing back-edge from %d to %v during destroy", id, v))
			}
		}

		n.Operands[i] = EmptyValue
	}

	n.alive = false
}

// GarbageCollect performs a mark-sweep pass: every node transitively
// operand-reachable from Root survives, as does the start node if one
// is set; everything else is unlinked
// and dropped, and the arena is compacted so NodeIDs of surviving
// nodes are dense starting at 0.
func (g *Graph) GarbageCollect() {
	reachable := make([]bool, len(g.nodes))

	if g.root != InvalidNodeID {
		var stack []NodeID
		stack = append(stack, g.root)
		reachable[g.root] = true

		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			for _, v := range g.Node(id).Operands {
				if v.IsEmpty() || reachable[v.Node] {
					continue
				}

				reachable[v.Node] = true
				stack = append(stack, v.Node)
			}
		}
	}

	if g.start != InvalidNodeID {
		reachable[g.start] = true
	}

	for id := range g.nodes {
		if !reachable[id] && g.nodes[id].alive {
			g.destroy(NodeID(id))
		}
	}

	remap := make([]NodeID, len(g.nodes))
	for i := range remap {
		remap[i] = InvalidNodeID
	}

	kept := make([]Node, 0, len(g.nodes))

	for id := range g.nodes {
		if !g.nodes[id].alive {
			continue
		}

		remap[id] = NodeID(len(kept))
		kept = append(kept, g.nodes[id])
	}

	for i := range kept {
		n := &kept[i]

		for j, v := range n.Operands {
			if v.IsEmpty() {
				continue
			}

			n.Operands[j] = Value{Node: remap[v.Node], Slot: v.Slot}
		}

		if ref, ok := n.Attr.NodeRef(); ok && ref != InvalidNodeID {
			n.Attr = NodeAttr(remap[ref])
		}

		for slot := range n.backRefs {
			old := n.backRefs[slot].items
			n.backRefs[slot].items = make([]NodeID, 0, len(old))

			for _, h := range old {
				if remap[h] != InvalidNodeID {
					n.backRefs[slot].items = append(n.backRefs[slot].items, remap[h])
				}
			}
		}
	}

	g.nodes = kept

	if g.start != InvalidNodeID {
		g.start = remap[g.start]
	}
	if g.root != InvalidNodeID {
		g.root = remap[g.root]
	}
}

// Len reports the current arena size (live nodes only after a
// GarbageCollect).
func (g *Graph) Len() int { return len(g.nodes) }

// Nodes returns every currently live NodeID, in arena order. Safe to
// call mid-pass as long as the caller doesn't mutate the graph while
// iterating the returned slice.
func (g *Graph) Nodes() []NodeID {
	ids := make([]NodeID, 0, len(g.nodes))

	for id := range g.nodes {
		if g.nodes[id].alive {
			ids = append(ids, NodeID(id))
		}
	}

	return ids
}
