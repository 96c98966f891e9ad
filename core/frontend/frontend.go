// Package frontend lifts a decoded RISC-V basic block into the IR,
// threading a single rolling memory token across the block per
// spec.md §4.9.
package frontend

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/rvjit/core/core/builder"
	"github.com/rvjit/core/core/decoder"
	"github.com/rvjit/core/core/ir"
)

// Register-file convention: GPRs 0-63, pc=64, instret=65.
const (
	RegPC      = 64
	RegInstret = 65
	RegCount   = 66
)

// Lift builds IR for bb into g, returns the graph's root node (an end
// terminator whose sole operand is the block's final memory token),
// and sets g's start/root accordingly. g must be fresh
// (only a start node, if any).
func Lift(ctx context.Context, g *ir.Graph, bb decoder.BasicBlock) (root ir.NodeID, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "lift", "pc", bb.StartPC)
	defer tr.Finish("err", &err)

	b := builder.New(g)

	mem := b.Start()

	l := &lifter{b: b, g: g}

	// Prologue: pc is known at lift time (the caller only ever compiles
	// the block starting at its own start_pc), so the end-of-block pc
	// is a plain constant, not a value read back from the register
	// file — matching the front-end's end_pc_value, computed once and
	// reused below for every terminator whose target is "the end of
	// this block" (a non-taken branch, or jal/jalr's link register).
	// instret has no such compile-time shortcut: its prior value is
	// genuinely read back and bumped.
	l.endPC = b.Constant(ir.TypeI64, bb.EndPC)
	mem = l.storeReg(mem, RegPC, l.endPC)
	mem = l.storeReg(mem, RegInstret, l.addConst(mem, RegInstret, int64(len(bb.Instructions))))

	pc := bb.StartPC
	for _, ins := range bb.Instructions {
		mem, err = l.lift(mem, ins, pc)
		if err != nil {
			return ir.InvalidNodeID, errors.Wrap(err, "lift %v", ins.Op)
		}

		pc += uint64(ins.Length)
	}

	end := b.End(mem)
	g.SetRoot(end.Node)

	return end.Node, nil
}

type lifter struct {
	b *builder.Builder
	g *ir.Graph

	// endPC is the block's end-of-block pc, a constant computed once
	// in the prologue and reused by every instruction whose target is
	// "the end of this block": a non-taken branch, or the link value
	// jal/jalr store into rd (always the instruction immediately after
	// the terminator, i.e. the block's own end).
	endPC ir.Value
}

// addConst reads reg's current value and adds a constant delta, used
// by the instret prologue update.
func (l *lifter) addConst(mem ir.Value, reg int, delta int64) ir.Value {
	_, cur := l.b.LoadRegister(mem, reg)
	d := l.b.Constant(ir.TypeI64, uint64(delta))
	return l.b.Arithmetic(ir.OpAdd, cur, d)
}

func (l *lifter) storeReg(mem ir.Value, reg int, v ir.Value) ir.Value {
	return l.b.StoreRegister(mem, reg, v)
}

// loadReg returns a constant zero for x0 (per spec.md §4.9's special
// case) instead of emitting a dead load_register(0).
func (l *lifter) loadReg(mem ir.Value, reg int) ir.Value {
	if reg == 0 {
		return l.b.Constant(ir.TypeI64, 0)
	}

	_, v := l.b.LoadRegister(mem, reg)
	return v
}

func (l *lifter) lift(mem ir.Value, ins decoder.Instruction, pc uint64) (ir.Value, error) {
	switch ins.Op {
	case decoder.OpLui:
		return l.liftLui(mem, ins), nil
	case decoder.OpAuipc:
		return l.liftAuipc(mem, ins, pc), nil
	case decoder.OpJal:
		return l.liftJal(mem, ins, pc), nil
	case decoder.OpJalr:
		return l.liftJalr(mem, ins), nil

	case decoder.OpAddi, decoder.OpAddiw:
		return l.liftAluImm(mem, ins, ir.OpAdd, ins.Op == decoder.OpAddiw), nil
	case decoder.OpXori:
		return l.liftAluImm(mem, ins, ir.OpXor, false), nil
	case decoder.OpOri:
		return l.liftAluImm(mem, ins, ir.OpOr, false), nil
	case decoder.OpAndi:
		return l.liftAluImm(mem, ins, ir.OpAnd, false), nil
	case decoder.OpSlti:
		return l.liftCompareImm(mem, ins, ir.OpLt), nil
	case decoder.OpSltiu:
		return l.liftCompareImm(mem, ins, ir.OpLtu), nil
	case decoder.OpSlli, decoder.OpSlliw:
		return l.liftShiftImm(mem, ins, ir.OpShl, ins.Op == decoder.OpSlliw), nil
	case decoder.OpSrli, decoder.OpSrliw:
		return l.liftShiftImm(mem, ins, ir.OpShr, ins.Op == decoder.OpSrliw), nil
	case decoder.OpSrai, decoder.OpSraiw:
		return l.liftShiftImm(mem, ins, ir.OpSar, ins.Op == decoder.OpSraiw), nil

	case decoder.OpAdd, decoder.OpAddw:
		return l.liftAluReg(mem, ins, ir.OpAdd, ins.Op == decoder.OpAddw), nil
	case decoder.OpSub, decoder.OpSubw:
		return l.liftAluReg(mem, ins, ir.OpSub, ins.Op == decoder.OpSubw), nil
	case decoder.OpXor:
		return l.liftAluReg(mem, ins, ir.OpXor, false), nil
	case decoder.OpOr:
		return l.liftAluReg(mem, ins, ir.OpOr, false), nil
	case decoder.OpAnd:
		return l.liftAluReg(mem, ins, ir.OpAnd, false), nil
	case decoder.OpSlt:
		return l.liftCompareReg(mem, ins, ir.OpLt), nil
	case decoder.OpSltu:
		return l.liftCompareReg(mem, ins, ir.OpLtu), nil
	case decoder.OpSll, decoder.OpSllw:
		return l.liftShiftReg(mem, ins, ir.OpShl, ins.Op == decoder.OpSllw), nil
	case decoder.OpSrl, decoder.OpSrlw:
		return l.liftShiftReg(mem, ins, ir.OpShr, ins.Op == decoder.OpSrlw), nil
	case decoder.OpSra, decoder.OpSraw:
		return l.liftShiftReg(mem, ins, ir.OpSar, ins.Op == decoder.OpSraw), nil

	case decoder.OpBeq:
		return l.liftBranch(mem, ins, ir.OpEq, pc), nil
	case decoder.OpBne:
		return l.liftBranch(mem, ins, ir.OpNe, pc), nil
	case decoder.OpBlt:
		return l.liftBranch(mem, ins, ir.OpLt, pc), nil
	case decoder.OpBge:
		return l.liftBranch(mem, ins, ir.OpGe, pc), nil
	case decoder.OpBltu:
		return l.liftBranch(mem, ins, ir.OpLtu, pc), nil
	case decoder.OpBgeu:
		return l.liftBranch(mem, ins, ir.OpGeu, pc), nil

	case decoder.OpLb:
		return l.liftLoad(mem, ins, ir.TypeI8, true), nil
	case decoder.OpLh:
		return l.liftLoad(mem, ins, ir.TypeI16, true), nil
	case decoder.OpLw:
		return l.liftLoad(mem, ins, ir.TypeI32, true), nil
	case decoder.OpLd:
		return l.liftLoad(mem, ins, ir.TypeI64, true), nil
	case decoder.OpLbu:
		return l.liftLoad(mem, ins, ir.TypeI8, false), nil
	case decoder.OpLhu:
		return l.liftLoad(mem, ins, ir.TypeI16, false), nil
	case decoder.OpLwu:
		return l.liftLoad(mem, ins, ir.TypeI32, false), nil

	case decoder.OpSb:
		return l.liftStore(mem, ins, ir.TypeI8), nil
	case decoder.OpSh:
		return l.liftStore(mem, ins, ir.TypeI16), nil
	case decoder.OpSw:
		return l.liftStore(mem, ins, ir.TypeI32), nil
	case decoder.OpSd:
		return l.liftStore(mem, ins, ir.TypeI64), nil

	case decoder.OpFence:
		return l.b.Fence(mem), nil
	case decoder.OpFenceI:
		// Lifted as a plain fence, like fence. The lifted block does
		// not invalidate the translation cache itself; that is
		// Coordinator.FenceI, which nothing in this module calls.
		return l.b.Fence(mem), nil

	case decoder.OpMul, decoder.OpMulh, decoder.OpMulhu, decoder.OpMulhsu,
		decoder.OpDiv, decoder.OpDivu, decoder.OpRem, decoder.OpRemu:
		return l.b.Emulate(mem, uint64(ins.Raw)), nil

	default:
		return l.b.Emulate(mem, uint64(ins.Raw)), nil
	}
}

// opWidth returns the type an ALU op of this family operates at: i32
// for the *w 32-bit variants, i64 otherwise.
func opWidth(is32 bool) ir.Type {
	if is32 {
		return ir.TypeI32
	}
	return ir.TypeI64
}

// narrow casts v (i64) down to t if t is narrower, for feeding a
// 32-bit-variant op its correctly-typed operand.
func (l *lifter) narrow(v ir.Value, t ir.Type) ir.Value {
	if t == ir.TypeI64 {
		return v
	}
	return l.b.Cast(t, true, v)
}

// widen sign-extends a *w result back to i64 for storing to the
// destination register, which is always i64-typed.
func (l *lifter) widen(v ir.Value) ir.Value {
	return l.b.Cast(ir.TypeI64, true, v)
}

func (l *lifter) liftAluImm(mem ir.Value, ins decoder.Instruction, op ir.Op, is32 bool) ir.Value {
	if ins.Rd == 0 {
		return mem
	}

	t := opWidth(is32)

	rs1 := l.narrow(l.loadReg(mem, ins.Rs1), t)
	imm := l.b.Constant(t, uint64(ins.Imm))

	res := l.b.Arithmetic(op, rs1, imm)
	if is32 {
		res = l.widen(res)
	}

	return l.storeReg(mem, ins.Rd, res)
}

func (l *lifter) liftAluReg(mem ir.Value, ins decoder.Instruction, op ir.Op, is32 bool) ir.Value {
	if ins.Rd == 0 {
		return mem
	}

	t := opWidth(is32)

	rs1 := l.narrow(l.loadReg(mem, ins.Rs1), t)
	rs2 := l.narrow(l.loadReg(mem, ins.Rs2), t)

	res := l.b.Arithmetic(op, rs1, rs2)
	if is32 {
		res = l.widen(res)
	}

	return l.storeReg(mem, ins.Rd, res)
}

func (l *lifter) liftCompareImm(mem ir.Value, ins decoder.Instruction, op ir.Op) ir.Value {
	if ins.Rd == 0 {
		return mem
	}

	rs1 := l.loadReg(mem, ins.Rs1)
	imm := l.b.Constant(ir.TypeI64, uint64(ins.Imm))

	cmp := l.b.Compare(op, rs1, imm)
	res := l.b.Cast(ir.TypeI64, false, cmp)

	return l.storeReg(mem, ins.Rd, res)
}

func (l *lifter) liftCompareReg(mem ir.Value, ins decoder.Instruction, op ir.Op) ir.Value {
	if ins.Rd == 0 {
		return mem
	}

	rs1 := l.loadReg(mem, ins.Rs1)
	rs2 := l.loadReg(mem, ins.Rs2)

	cmp := l.b.Compare(op, rs1, rs2)
	res := l.b.Cast(ir.TypeI64, false, cmp)

	return l.storeReg(mem, ins.Rd, res)
}

func (l *lifter) liftShiftImm(mem ir.Value, ins decoder.Instruction, op ir.Op, is32 bool) ir.Value {
	if ins.Rd == 0 {
		return mem
	}

	t := opWidth(is32)

	rs1 := l.narrow(l.loadReg(mem, ins.Rs1), t)
	amt := l.b.Constant(ir.TypeI8, uint64(ins.Imm)&uint64(t.Width()-1))

	res := l.b.Shift(op, rs1, amt)
	if is32 {
		res = l.widen(res)
	}

	return l.storeReg(mem, ins.Rd, res)
}

func (l *lifter) liftShiftReg(mem ir.Value, ins decoder.Instruction, op ir.Op, is32 bool) ir.Value {
	if ins.Rd == 0 {
		return mem
	}

	t := opWidth(is32)

	rs1 := l.narrow(l.loadReg(mem, ins.Rs1), t)
	rs2 := l.loadReg(mem, ins.Rs2)
	amt := l.b.Cast(ir.TypeI8, false, rs2)

	res := l.b.Shift(op, rs1, amt)
	if is32 {
		res = l.widen(res)
	}

	return l.storeReg(mem, ins.Rd, res)
}

// liftLui stores the pre-shifted immediate directly; lui has no
// register source operand.
func (l *lifter) liftLui(mem ir.Value, ins decoder.Instruction) ir.Value {
	if ins.Rd == 0 {
		return mem
	}

	v := l.b.Constant(ir.TypeI64, uint64(ins.Imm))
	return l.storeReg(mem, ins.Rd, v)
}

// liftAuipc uses pc, this instruction's own compile-time-known
// address, not a register read: the prologue has already overwritten
// register 64 with the block's end pc by the time any instruction
// here runs, so reading it back would yield the wrong value.
func (l *lifter) liftAuipc(mem ir.Value, ins decoder.Instruction, pc uint64) ir.Value {
	if ins.Rd == 0 {
		return mem
	}

	sum := l.b.Constant(ir.TypeI64, pc+uint64(ins.Imm))
	return l.storeReg(mem, ins.Rd, sum)
}

// liftJal is a block terminator: the decoder already stops the block
// here, so lifting it is just "link register gets end_pc (or nothing
// for x0), pc gets pc+imm" — a PC-constant store, not an emulate, per
// SPEC_FULL.md's supplement resolving the straight-line-terminator
// case. The link value is exactly the block's end pc, since jal always
// ends the block it terminates; reusing the prologue's constant avoids
// a redundant register read.
func (l *lifter) liftJal(mem ir.Value, ins decoder.Instruction, pc uint64) ir.Value {
	if ins.Rd != 0 {
		mem = l.storeReg(mem, ins.Rd, l.endPC)
	}

	target := l.b.Constant(ir.TypeI64, pc+uint64(ins.Imm))

	return l.storeReg(mem, RegPC, target)
}

func (l *lifter) liftJalr(mem ir.Value, ins decoder.Instruction) ir.Value {
	rs1 := l.loadReg(mem, ins.Rs1)
	imm := l.b.Constant(ir.TypeI64, uint64(ins.Imm))
	target := l.b.Arithmetic(ir.OpAdd, rs1, imm)

	mask := l.b.Constant(ir.TypeI64, ^uint64(1))
	target = l.b.Arithmetic(ir.OpAnd, target, mask)

	if ins.Rd != 0 {
		mem = l.storeReg(mem, ins.Rd, l.endPC)
	}

	return l.storeReg(mem, RegPC, target)
}

// liftBranch lifts to compare + mux(pc, end_pc) + store(pc, ...) per
// SPEC_FULL.md's supplement: the front-end has no control-flow
// opcodes instantiated (spec.md §3's note that `control` is never
// produced here), so a conditional branch becomes a conditional
// update of the pc register rather than an actual fork in the graph.
// The not-taken arm is exactly the block's end pc, since a branch
// always terminates the block it's in; the taken arm is this
// instruction's own compile-time pc plus its immediate.
func (l *lifter) liftBranch(mem ir.Value, ins decoder.Instruction, op ir.Op, pc uint64) ir.Value {
	rs1 := l.loadReg(mem, ins.Rs1)
	rs2 := l.loadReg(mem, ins.Rs2)
	cond := l.b.Compare(op, rs1, rs2)

	taken := l.b.Constant(ir.TypeI64, pc+uint64(ins.Imm))

	next := l.b.Mux(cond, taken, l.endPC)

	return l.storeReg(mem, RegPC, next)
}

func (l *lifter) liftLoad(mem ir.Value, ins decoder.Instruction, t ir.Type, signed bool) ir.Value {
	rs1 := l.loadReg(mem, ins.Rs1)
	imm := l.b.Constant(ir.TypeI64, uint64(ins.Imm))
	addr := l.b.Arithmetic(ir.OpAdd, rs1, imm)

	newMem, v := l.b.LoadMemory(mem, t, addr)

	ext := l.b.Cast(ir.TypeI64, signed, v)

	return l.storeReg(newMem, ins.Rd, ext)
}

func (l *lifter) liftStore(mem ir.Value, ins decoder.Instruction, t ir.Type) ir.Value {
	rs1 := l.loadReg(mem, ins.Rs1)
	imm := l.b.Constant(ir.TypeI64, uint64(ins.Imm))
	addr := l.b.Arithmetic(ir.OpAdd, rs1, imm)

	v := l.loadReg(mem, ins.Rs2)
	trunc := l.b.Cast(t, false, v)

	return l.b.StoreMemory(mem, addr, trunc)
}
