// Package builder provides the typed IR constructors: a stateless
// wrapper around a graph that enforces every operand-type invariant
// spec'd for the node kinds it knows how to build, and threads the
// memory token through side-effecting operations on the caller's
// behalf.
package builder

import (
	"tlog.app/go/errors"

	"github.com/rvjit/core/core/ir"
)

// Builder constructs well-formed IR fragments in one graph. It holds
// no state of its own beyond the graph reference — every call is a
// single NewNode plus whatever type checking the node kind requires.
type Builder struct {
	G *ir.Graph
}

// New wraps g in a Builder.
func New(g *ir.Graph) *Builder {
	return &Builder{G: g}
}

func fatal(format string, args ...any) {
	panic(errors.New(format, args...))
}

// Start emits the graph's start node and returns the initial memory
// token it produces. Should be called at most once per graph.
func (b *Builder) Start() ir.Value {
	id := b.G.NewNode(ir.OpStart, []ir.Type{ir.TypeMemory}, nil)
	b.G.SetStart(id)
	return ir.Value{Node: id, Slot: 0}
}

// End builds a terminator over the final memory token. The
// straight-line lifter (see package frontend) uses it as the graph's
// root.
func (b *Builder) End(dep ir.Value) ir.Value {
	b.requireType(dep, ir.TypeMemory, "end: dep")
	id := b.G.NewNode(ir.OpEnd, []ir.Type{ir.TypeMemory}, []ir.Value{dep})
	return ir.Value{Node: id, Slot: 0}
}

// Block opens a basic block boundary. Its attribute is populated
// later by the block-marker pass, not by the builder.
func (b *Builder) Block(dep ir.Value) ir.Value {
	b.requireType(dep, ir.TypeMemory, "block: dep")
	id := b.G.NewNode(ir.OpBlock, []ir.Type{ir.TypeMemory}, []ir.Value{dep})
	return ir.Value{Node: id, Slot: 0}
}

// Jmp builds an unconditional block terminator.
func (b *Builder) Jmp(dep ir.Value) ir.Value {
	b.requireType(dep, ir.TypeMemory, "jmp: dep")
	id := b.G.NewNode(ir.OpJmp, []ir.Type{ir.TypeMemory}, []ir.Value{dep})
	return ir.Value{Node: id, Slot: 0}
}

// If builds a conditional block terminator over an i1 predicate.
func (b *Builder) If(dep, cond ir.Value) ir.Value {
	b.requireType(dep, ir.TypeMemory, "if: dep")
	b.requireType(cond, ir.TypeI1, "if: cond")
	id := b.G.NewNode(ir.OpIf, []ir.Type{ir.TypeMemory}, []ir.Value{dep, cond})
	return ir.Value{Node: id, Slot: 0}
}

// Constant builds a 0-operand constant node of type t carrying the
// raw payload bits. Interpretation of bits (sign/zero extension)
// follows the evaluator's rules in package pass.
func (b *Builder) Constant(t ir.Type, bits uint64) ir.Value {
	if !t.IsInt() {
		fatal("builder: constant: type %v is not an integer type", t)
	}

	id := b.G.NewNode(ir.OpConstant, []ir.Type{t}, nil)
	b.G.Node(id).Attr = ir.ImmAttr(bits)

	return ir.Value{Node: id, Slot: 0}
}

// Cast builds a sign- or zero-extending/truncating conversion of v to
// type t.
func (b *Builder) Cast(t ir.Type, signExtend bool, v ir.Value) ir.Value {
	b.requireInt(v, "cast: operand")

	if !t.IsInt() {
		fatal("builder: cast: target type %v is not an integer type", t)
	}

	id := b.G.NewNode(ir.OpCast, []ir.Type{t}, []ir.Value{v})

	flag := uint64(0)
	if signExtend {
		flag = 1
	}
	b.G.Node(id).Attr = ir.ImmAttr(flag)

	return ir.Value{Node: id, Slot: 0}
}

// unary builds neg/not: one integer operand, output type equals
// operand type.
func (b *Builder) unary(op ir.Op, v ir.Value) ir.Value {
	b.requireInt(v, op.String()+": operand")

	t := b.outType(v)
	id := b.G.NewNode(op, []ir.Type{t}, []ir.Value{v})

	return ir.Value{Node: id, Slot: 0}
}

// Neg builds a two's-complement negation.
func (b *Builder) Neg(v ir.Value) ir.Value { return b.unary(ir.OpNeg, v) }

// Not builds a bitwise complement.
func (b *Builder) Not(v ir.Value) ir.Value { return b.unary(ir.OpNot, v) }

// Arithmetic builds add/sub/xor/or/and: left.type == right.type,
// output type == left.type.
func (b *Builder) Arithmetic(op ir.Op, l, r ir.Value) ir.Value {
	switch op {
	case ir.OpAdd, ir.OpSub, ir.OpXor, ir.OpOr, ir.OpAnd:
	default:
		fatal("builder: arithmetic: %v is not an arithmetic opcode", op)
	}

	b.requireInt(l, "arithmetic: left")
	b.requireInt(r, "arithmetic: right")

	lt, rt := b.outType(l), b.outType(r)
	if lt != rt {
		fatal("builder: arithmetic %v: left type %v != right type %v", op, lt, rt)
	}

	id := b.G.NewNode(op, []ir.Type{lt}, []ir.Value{l, r})

	return ir.Value{Node: id, Slot: 0}
}

// Shift builds shl/shr/sar: right.type == i8, output type ==
// left.type.
func (b *Builder) Shift(op ir.Op, l, r ir.Value) ir.Value {
	switch op {
	case ir.OpShl, ir.OpShr, ir.OpSar:
	default:
		fatal("builder: shift: %v is not a shift opcode", op)
	}

	b.requireInt(l, "shift: left")
	b.requireType(r, ir.TypeI8, "shift: right")

	lt := b.outType(l)
	id := b.G.NewNode(op, []ir.Type{lt}, []ir.Value{l, r})

	return ir.Value{Node: id, Slot: 0}
}

// Compare builds eq/ne/lt/ge/ltu/geu: left.type == right.type,
// output type == i1.
func (b *Builder) Compare(op ir.Op, l, r ir.Value) ir.Value {
	switch op {
	case ir.OpEq, ir.OpNe, ir.OpLt, ir.OpGe, ir.OpLtu, ir.OpGeu:
	default:
		fatal("builder: compare: %v is not a comparison opcode", op)
	}

	b.requireInt(l, "compare: left")
	b.requireInt(r, "compare: right")

	lt, rt := b.outType(l), b.outType(r)
	if lt != rt {
		fatal("builder: compare %v: left type %v != right type %v", op, lt, rt)
	}

	id := b.G.NewNode(op, []ir.Type{ir.TypeI1}, []ir.Value{l, r})

	return ir.Value{Node: id, Slot: 0}
}

// Mux builds the ternary selector: condition is i1, the two data
// inputs match the output type.
func (b *Builder) Mux(cond, l, r ir.Value) ir.Value {
	b.requireType(cond, ir.TypeI1, "mux: cond")
	b.requireInt(l, "mux: left")
	b.requireInt(r, "mux: right")

	lt, rt := b.outType(l), b.outType(r)
	if lt != rt {
		fatal("builder: mux: left type %v != right type %v", lt, rt)
	}

	id := b.G.NewNode(ir.OpMux, []ir.Type{lt}, []ir.Value{cond, l, r})

	return ir.Value{Node: id, Slot: 0}
}

// LoadRegister builds a machine-register read. dep must be a memory
// token; the node produces (memory, i64) and carries regnum in its
// attribute.
func (b *Builder) LoadRegister(dep ir.Value, regnum int) (mem, val ir.Value) {
	b.requireType(dep, ir.TypeMemory, "load_register: dep")

	id := b.G.NewNode(ir.OpLoadRegister, []ir.Type{ir.TypeMemory, ir.TypeI64}, []ir.Value{dep})
	b.G.Node(id).Attr = ir.ImmAttr(uint64(regnum))

	return ir.Value{Node: id, Slot: 0}, ir.Value{Node: id, Slot: 1}
}

// StoreRegister builds a machine-register write. dep must be a
// memory token, v the value to store; the node produces memory and
// carries regnum in its attribute.
func (b *Builder) StoreRegister(dep ir.Value, regnum int, v ir.Value) ir.Value {
	b.requireType(dep, ir.TypeMemory, "store_register: dep")
	b.requireType(v, ir.TypeI64, "store_register: value")

	id := b.G.NewNode(ir.OpStoreRegister, []ir.Type{ir.TypeMemory}, []ir.Value{dep, v})
	b.G.Node(id).Attr = ir.ImmAttr(uint64(regnum))

	return ir.Value{Node: id, Slot: 0}
}

// LoadMemory builds a guest-memory read of type t at addr. dep must
// be a memory token; the node produces (memory, t).
func (b *Builder) LoadMemory(dep ir.Value, t ir.Type, addr ir.Value) (mem, val ir.Value) {
	b.requireType(dep, ir.TypeMemory, "load_memory: dep")
	b.requireType(addr, ir.TypeI64, "load_memory: addr")

	if !t.IsInt() {
		fatal("builder: load_memory: type %v is not an integer type", t)
	}

	id := b.G.NewNode(ir.OpLoadMemory, []ir.Type{ir.TypeMemory, t}, []ir.Value{dep, addr})

	return ir.Value{Node: id, Slot: 0}, ir.Value{Node: id, Slot: 1}
}

// StoreMemory builds a guest-memory write of v at addr. dep must be a
// memory token; the node produces memory.
func (b *Builder) StoreMemory(dep, addr, v ir.Value) ir.Value {
	b.requireType(dep, ir.TypeMemory, "store_memory: dep")
	b.requireType(addr, ir.TypeI64, "store_memory: addr")
	b.requireInt(v, "store_memory: value")

	id := b.G.NewNode(ir.OpStoreMemory, []ir.Type{ir.TypeMemory}, []ir.Value{dep, addr, v})

	return ir.Value{Node: id, Slot: 0}
}

// Fence builds a token-chain barrier over a (deduplicated, non-empty)
// set of prior memory-typed dependencies, producing a fresh memory
// token. Used both directly by the front-end for guest fence/fence.i
// and by register-access elimination's dependency() helper to merge
// more than one barrier into a single operand.
func (b *Builder) Fence(deps ...ir.Value) ir.Value {
	if len(deps) == 0 {
		fatal("builder: fence: at least one dependency required")
	}

	for _, d := range deps {
		b.requireType(d, ir.TypeMemory, "fence: dep")
	}

	id := b.G.NewNode(ir.OpFence, []ir.Type{ir.TypeMemory}, deps)

	return ir.Value{Node: id, Slot: 0}
}

// Emulate builds the universal escape hatch for unsupported guest
// instructions: a side effect carrying the raw instruction bits that,
// at execution time, calls back into the interpreter.
func (b *Builder) Emulate(dep ir.Value, instrBits uint64) ir.Value {
	b.requireType(dep, ir.TypeMemory, "emulate: dep")

	id := b.G.NewNode(ir.OpEmulate, []ir.Type{ir.TypeMemory}, []ir.Value{dep})
	b.G.Node(id).Attr = ir.ImmAttr(instrBits)

	return ir.Value{Node: id, Slot: 0}
}

func (b *Builder) outType(v ir.Value) ir.Type {
	return b.G.Node(v.Node).OutType(int(v.Slot))
}

func (b *Builder) requireType(v ir.Value, t ir.Type, what string) {
	if v.IsEmpty() {
		fatal("builder: %s: empty value where %v expected", what, t)
	}

	if got := b.outType(v); got != t {
		fatal("builder: %s: type %v, expected %v", what, got, t)
	}
}

func (b *Builder) requireInt(v ir.Value, what string) {
	if v.IsEmpty() {
		fatal("builder: %s: empty value where an integer type was expected", what)
	}

	if got := b.outType(v); !got.IsInt() {
		fatal("builder: %s: type %v is not an integer type", what, got)
	}
}
