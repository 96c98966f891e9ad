package ir

// attrKind discriminates the payload carried by a node's attribute
// word: nothing, a raw 64-bit immediate (constant payload or register
// number), or a node handle (block -> terminator linkage).
type attrKind uint8

const (
	attrNone attrKind = iota
	attrImm
	attrNode
)

// Attr is the node attribute: a tagged union over "no payload", a
// raw 64-bit word, or a node handle. The source encodes this as an
// opaque 64-bit/pointer word; a safe reimplementation makes the
// discriminant explicit.
type Attr struct {
	kind attrKind
	imm  uint64
	node NodeID
}

// NoAttr is the empty attribute.
var NoAttr = Attr{}

// ImmAttr wraps a raw 64-bit payload (constant value, register
// number).
func ImmAttr(v uint64) Attr { return Attr{kind: attrImm, imm: v} }

// NodeAttr wraps a node handle (block -> terminator linkage).
func NodeAttr(id NodeID) Attr { return Attr{kind: attrNode, node: id} }

// Imm returns the immediate payload and whether the attribute holds
// one.
func (a Attr) Imm() (uint64, bool) { return a.imm, a.kind == attrImm }

// NodeRef returns the node-handle payload and whether the attribute
// holds one.
func (a Attr) NodeRef() (NodeID, bool) { return a.node, a.kind == attrNode }

// IsEmpty reports whether the attribute carries no payload.
func (a Attr) IsEmpty() bool { return a.kind == attrNone }

// Node is one entry in the value graph: an opcode, its ordered typed
// outputs, its ordered operand values, and the attribute word. Visit
// marks and pass-local scratch state are deliberately not node
// fields — they live in per-pass side tables (see package pass) so
// that one node is never entangled with more than one pass's
// bookkeeping at a time.
type Node struct {
	Op       Op
	OutTypes []Type
	Operands []Value
	Attr     Attr

	backRefs []backrefSet // one multiset per output slot
	alive    bool
}

// OutputCount returns the number of typed output slots n produces.
func (n *Node) OutputCount() int { return len(n.OutTypes) }

// OutType returns the declared type of output slot i.
func (n *Node) OutType(i int) Type { return n.OutTypes[i] }

// Operand returns operand slot i.
func (n *Node) Operand(i int) Value { return n.Operands[i] }

// backRefCount reports how many edges currently reference output
// slot i of n. Graph.BackRefCount is the exported counterpart.
func (n *Node) backRefCount(slot int) int { return n.backRefs[slot].size() }
