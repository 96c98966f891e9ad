package ir

import "tlog.app/go/tlog/tlwire"

// NodeID is a stable arena index identifying a node within a Graph.
// Reimplements the source's raw-pointer node handles as indices so
// that the operand/back-reference cycle never needs real pointer
// ownership cycles.
type NodeID int32

// InvalidNodeID is the empty node handle.
const InvalidNodeID NodeID = -1

// Value is a (node, output-slot) pair addressing one typed output of
// a node. A Value with Node == InvalidNodeID (EmptyValue) is the empty
// value; the zero Value is not empty, it addresses slot 0 of node 0.
type Value struct {
	Node NodeID
	Slot uint8
}

// EmptyValue is the distinguished "no value" Value.
var EmptyValue = Value{Node: InvalidNodeID}

// IsEmpty reports whether v carries no node.
func (v Value) IsEmpty() bool { return v.Node == InvalidNodeID }

// TlogAppend renders a Value compactly for structured log dumps,
// mirroring ir.Link.TlogAppend in the lineage this package descends
// from.
func (v Value) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	if v.IsEmpty() {
		return e.AppendNil(b)
	}

	if v.Slot == 0 {
		return e.AppendFormat(b, "%d", int(v.Node))
	}

	return e.AppendFormat(b, "%d_%d", int(v.Node), v.Slot)
}
