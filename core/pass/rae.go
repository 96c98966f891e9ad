package pass

import (
	"context"

	"github.com/rvjit/core/core/builder"
	"github.com/rvjit/core/core/ir"
)

// regState tracks, for one machine register, the bookkeeping
// register-access elimination needs to forward loads, drop dead
// stores, and keep the elimination safe across exception barriers.
type regState struct {
	lastLoadVal         ir.Value // value to forward a later load(r) to
	hasLoad             bool
	lastStoreVal        ir.Value // value to forward a later load(r) to
	lastStoreNode       ir.NodeID
	hasStore            bool
	hasStoreAfterExcept bool
}

// rae is the register-access-elimination pass: a post-order walk
// treating block nodes as a scope boundary (per-block register
// state), store-forwarding loads, eliding redundant loads and dead
// stores, and honoring exception barriers so that no dead store
// crosses one. A fence only drops pending loads; dead-store
// elimination still works across it.
type rae struct {
	b    *builder.Builder
	regs []regState

	lastException ir.NodeID // most recent fault-raising op, or Invalid
	lastEffect    ir.NodeID // most recent emulate/memory op (set only by afterOtherEffect), or Invalid
}

// RegisterAccessElimination store-forwards and dead-store-eliminates
// machine-register accesses across R registers (front-end convention:
// GPRs 0-63, pc=64, instret=65, so R=66).
func RegisterAccessElimination(ctx context.Context, g *ir.Graph, root ir.NodeID, r int) error {
	return Run(ctx, "register_access_elimination", g, root, &rae{
		regs:          make([]regState, r),
		lastException: ir.InvalidNodeID,
		lastEffect:    ir.InvalidNodeID,
	})
}

func (p *rae) Start(g *ir.Graph) {
	p.b = builder.New(g)

	for i := range p.regs {
		p.regs[i] = regState{}
	}

	p.lastException = ir.InvalidNodeID
	p.lastEffect = ir.InvalidNodeID
}

// Before treats a block node as a scope boundary: register state is
// per-block, so the walk must not cross into an earlier block.
func (p *rae) Before(g *ir.Graph, id ir.NodeID) bool {
	return g.Node(id).Op == ir.OpBlock
}

func (p *rae) Finish(g *ir.Graph) {}

func (p *rae) After(g *ir.Graph, id ir.NodeID) {
	n := g.Node(id)

	switch n.Op {
	case ir.OpLoadRegister:
		p.afterLoad(g, id)
	case ir.OpStoreRegister:
		p.afterStore(g, id)
	case ir.OpFence:
		p.afterFence(g, id)
	default:
		if ir.IsSideEffecting(n.Op) {
			p.afterOtherEffect(g, id)
		}
	}
}

func regnum(n *ir.Node) int {
	v, _ := n.Attr.Imm()
	return int(v)
}

func memOut(id ir.NodeID) ir.Value { return ir.Value{Node: id, Slot: 0} }
func valOut(id ir.NodeID) ir.Value { return ir.Value{Node: id, Slot: 1} }

func (p *rae) afterLoad(g *ir.Graph, id ir.NodeID) {
	n := g.Node(id)
	r := regnum(n)
	dep := n.Operand(0)

	rs := &p.regs[r]

	switch {
	case rs.hasStore:
		// Forward the stored value straight through; the load becomes
		// dead and its memory output passes its incoming token along.
		g.ReplaceAllUses(valOut(id), rs.lastStoreVal)
		g.ReplaceAllUses(memOut(id), dep)

	case rs.hasLoad:
		// Fold into the prior load in the same way.
		g.ReplaceAllUses(valOut(id), rs.lastLoadVal)
		g.ReplaceAllUses(memOut(id), dep)

	default:
		// First access to r in this scope: sequence it after the
		// minimal barrier set that still correctly orders it behind
		// any fault-raising operation.
		newDep := p.dependency(g, p.lastException, p.lastEffect)
		if !newDep.IsEmpty() {
			g.UpdateOperand(id, dep, newDep)
		}

		rs.hasLoad = true
		rs.lastLoadVal = valOut(id)
	}
}

func (p *rae) afterStore(g *ir.Graph, id ir.NodeID) {
	n := g.Node(id)
	r := regnum(n)
	val := n.Operand(1)

	rs := &p.regs[r]

	if rs.hasStore && (rs.hasStoreAfterExcept || p.lastException == ir.InvalidNodeID) {
		// The prior store is dead: redirect its memory output's uses to
		// its own memory input, unlinking it from the token chain. This
		// also repoints id's own dep operand, since id is one of those
		// uses.
		priorDep := g.Node(rs.lastStoreNode).Operand(0)
		g.ReplaceAllUses(memOut(rs.lastStoreNode), priorDep)
	}

	// The store's own memory operand only ever needs to depend on
	// last_effect: anything more specific it used to carry (a prior
	// store or a load it was built to follow) is no longer relevant
	// once this store has recorded its own position.
	if p.lastEffect != ir.InvalidNodeID {
		g.UpdateOperand(id, g.Node(id).Operand(0), memOut(p.lastEffect))
	}

	rs.hasStore = true
	rs.hasStoreAfterExcept = true
	rs.lastStoreVal = val
	rs.lastStoreNode = id
	rs.hasLoad = false
}

func (p *rae) afterFence(g *ir.Graph, id ir.NodeID) {
	// A barrier for the token chain but not for register state:
	// invalidate pending loads (conservatively) but keep stores live.
	// Fence does not update last_effect: it is not in the exception
	// category that other side-effecting ops anchor against.
	for i := range p.regs {
		p.regs[i].hasLoad = false
	}
}

func (p *rae) afterOtherEffect(g *ir.Graph, id ir.NodeID) {
	p.lastException = id
	p.lastEffect = id

	for i := range p.regs {
		p.regs[i].hasLoad = false

		// A pending store stops being a valid load-forward source once
		// an exception barrier crosses it: the barrier may observe or
		// alter register state, so a load reaching this point must not
		// be answered from a store that predates the barrier.
		if p.regs[i].hasStore {
			p.regs[i].hasStore = false
			p.regs[i].hasStoreAfterExcept = false
		}
	}
}

// dependency returns the minimal memory-typed barrier value for the
// (deduplicated) set of {a, b}: empty if both are absent, the sole
// present node's memory output if only one is present, else a fresh
// fence over both.
func (p *rae) dependency(g *ir.Graph, a, b ir.NodeID) ir.Value {
	var nodes []ir.NodeID

	for _, n := range [2]ir.NodeID{a, b} {
		if n == ir.InvalidNodeID {
			continue
		}

		dup := false
		for _, x := range nodes {
			if x == n {
				dup = true
				break
			}
		}
		if !dup {
			nodes = append(nodes, n)
		}
	}

	switch len(nodes) {
	case 0:
		return ir.EmptyValue
	case 1:
		return memOut(nodes[0])
	default:
		vals := make([]ir.Value, len(nodes))
		for i, n := range nodes {
			vals[i] = memOut(n)
		}
		return p.b.Fence(vals...)
	}
}
