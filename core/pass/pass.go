// Package pass implements the post-order DAG walker shared by every
// optimization pass, plus the three concrete passes built on top of
// it: block marking, register-access elimination, and local value
// numbering.
package pass

import (
	"context"

	"nikand.dev/go/heap"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/rvjit/core/core/ir"
)

// Hooks is what a pass implements to ride the walker. Before is
// called on pre-order entry; if it returns true, the walker does not
// descend into that node's operands (used by register-access
// elimination to treat a block node as a scope boundary). After is
// called once all of a node's reachable operands have themselves
// been fully post-processed — exactly once per live reachable node,
// per walk.
type Hooks interface {
	Start(g *ir.Graph)
	Before(g *ir.Graph, id ir.NodeID) bool
	After(g *ir.Graph, id ir.NodeID)
	Finish(g *ir.Graph)
}

type visitMark uint8

const (
	unvisited visitMark = iota
	visiting
	visited
)

// frame is one entry in the explicit work stack driving the
// iterative walk; idx tracks how many of id's operands have already
// been pushed.
type frame struct {
	id   ir.NodeID
	idx  int
	skip bool
	seq  int
}

type frameStack struct {
	heap.Heap[frame]
	next int
}

func (s *frameStack) push(f frame) {
	f.seq = s.next
	s.next++
	s.Push(f)
}

func framesLess(d []frame, i, j int) bool { return d[i].seq > d[j].seq }

// Run walks the graph in operand-post-order starting from root,
// calling h's hooks, and returns an error if the walk discovers a
// cycle on data edges (a programmer error per this IR's acyclicity
// invariant, not a condition callers are expected to recover from —
// Run still returns it rather than panicking so that callers driving
// several passes in sequence can decide how to report it).
func Run(ctx context.Context, name string, g *ir.Graph, root ir.NodeID, h Hooks) (err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, name)
	defer tr.Finish("err", &err)

	if root == ir.InvalidNodeID {
		h.Start(g)
		h.Finish(g)
		return nil
	}

	marks := make([]visitMark, g.Len())

	h.Start(g)

	stack := frameStack{Heap: heap.Heap[frame]{Less: framesLess}}
	stack.push(frame{id: root})

	for stack.Len() > 0 {
		top := stack.Pop()

		if top.idx == 0 {
			switch marks[top.id] {
			case visited:
				continue
			case visiting:
				return errors.New("pass %s: cycle detected at node %d", name, top.id)
			}

			marks[top.id] = visiting
			top.skip = h.Before(g, top.id)
		}

		if !top.skip {
			ops := g.Node(top.id).Operands

			if top.idx < len(ops) {
				v := ops[top.idx]
				top.idx++
				stack.push(top)

				if !v.IsEmpty() {
					stack.push(frame{id: v.Node})
				}

				continue
			}
		}

		h.After(g, top.id)
		marks[top.id] = visited

		tr.V("visit").Printw("visited", "id", top.id, "op", g.Node(top.id).Op)
	}

	h.Finish(g)

	return nil
}

// Replace is the pass-side convenience wrapper over Graph.Replace,
// kept here (rather than requiring every pass to import ir directly
// for this one call) because passes reach for it constantly.
func Replace(g *ir.Graph, oldID, newID ir.NodeID) {
	g.Replace(oldID, newID)
}
