// Package decoder is minimal demo/test scaffolding: it recognizes
// only the RISC-V encodings the front-end knows how to lift, just
// enough to drive the coordinator's tests without a real
// disassembler. It is not part of the specified core.
package decoder

import (
	"tlog.app/go/errors"
)

// Opcode names the decoded instruction family. The zero value,
// OpUnknown, covers every encoding this stub does not recognize and
// is lifted to an emulate side effect.
type Opcode uint8

const (
	OpUnknown Opcode = iota

	OpLui
	OpAuipc
	OpJal
	OpJalr

	OpAddi
	OpSlti
	OpSltiu
	OpXori
	OpOri
	OpAndi
	OpSlli
	OpSrli
	OpSrai
	OpAddiw
	OpSlliw
	OpSrliw
	OpSraiw

	OpAdd
	OpSub
	OpSll
	OpSlt
	OpSltu
	OpXor
	OpSrl
	OpSra
	OpOr
	OpAnd
	OpAddw
	OpSubw
	OpSllw
	OpSrlw
	OpSraw

	OpBeq
	OpBne
	OpBlt
	OpBge
	OpBltu
	OpBgeu

	OpLb
	OpLh
	OpLw
	OpLd
	OpLbu
	OpLhu
	OpLwu
	OpSb
	OpSh
	OpSw
	OpSd

	OpMul
	OpMulh
	OpMulhu
	OpMulhsu
	OpDiv
	OpDivu
	OpRem
	OpRemu

	OpFence
	OpFenceI
)

// Instruction is the per-instruction view the front-end consumes, per
// the external-interface contract: opcode plus the fields relevant to
// that opcode's operand layout, decoded once up front.
type Instruction struct {
	Op     Opcode
	Rd     int
	Rs1    int
	Rs2    int
	Imm    int64 // sign-extended where applicable
	Raw    uint32
	Length int // bytes; always 4 for this RV64I/M-only stub
}

func (ins Instruction) Opcode() Opcode { return ins.Op }
func (ins Instruction) Rdv() int       { return ins.Rd }
func (ins Instruction) Rs1v() int      { return ins.Rs1 }
func (ins Instruction) Rs2v() int      { return ins.Rs2 }
func (ins Instruction) Immv() int64    { return ins.Imm }
func (ins Instruction) Lenv() int      { return ins.Length }

// BasicBlock is the decoder's unit of output: a straight-line run of
// instructions ending at the first control-flow instruction, a
// fence.i, the end of the code stream, or a fixed length cap.
type BasicBlock struct {
	StartPC      uint64
	EndPC        uint64
	Instructions []Instruction
}

func signExtend(v uint32, bits int) int64 {
	shift := 32 - bits
	return int64(int32(v<<shift) >> shift)
}

func bits(v uint32, hi, lo int) uint32 {
	return (v >> lo) & ((1 << (hi - lo + 1)) - 1)
}

// decodeOne decodes a single 32-bit RISC-V word. Returns OpUnknown for
// anything outside the supplemented opcode list (floating point,
// atomics, CSR, compressed encodings, and RV64M is intentionally
// included as OpUnknown-adjacent named opcodes so the front-end can
// still route them to emulate by name rather than by catch-all).
func decodeOne(word uint32) Instruction {
	opcode := bits(word, 6, 0)
	rd := int(bits(word, 11, 7))
	rs1 := int(bits(word, 19, 15))
	rs2 := int(bits(word, 24, 20))
	funct3 := bits(word, 14, 12)
	funct7 := bits(word, 31, 25)

	ins := Instruction{Raw: word, Rd: rd, Rs1: rs1, Rs2: rs2, Length: 4}

	switch opcode {
	case 0x37: // lui
		ins.Op = OpLui
		ins.Imm = int64(int32(word & 0xFFFFF000))
	case 0x17: // auipc
		ins.Op = OpAuipc
		ins.Imm = int64(int32(word & 0xFFFFF000))
	case 0x6F: // jal
		ins.Op = OpJal
		raw := (bits(word, 31, 31) << 20) | (bits(word, 19, 12) << 12) |
			(bits(word, 20, 20) << 11) | (bits(word, 30, 21) << 1)
		ins.Imm = signExtend(raw, 21)
	case 0x67: // jalr
		ins.Op = OpJalr
		ins.Imm = signExtend(bits(word, 31, 20), 12)
	case 0x13, 0x1B: // OP-IMM / OP-IMM-32
		ins.Imm = signExtend(bits(word, 31, 20), 12)
		ins.Op = decodeOpImm(opcode, funct3, funct7, word)
	case 0x33, 0x3B: // OP / OP-32
		ins.Op = decodeOp(opcode, funct3, funct7)
	case 0x63: // branches
		raw := (bits(word, 31, 31) << 12) | (bits(word, 7, 7) << 11) |
			(bits(word, 30, 25) << 5) | (bits(word, 11, 8) << 1)
		ins.Imm = signExtend(raw, 13)
		ins.Op = decodeBranch(funct3)
	case 0x03: // loads
		ins.Imm = signExtend(bits(word, 31, 20), 12)
		ins.Op = decodeLoad(funct3)
	case 0x23: // stores
		raw := (bits(word, 31, 25) << 5) | bits(word, 11, 7)
		ins.Imm = signExtend(raw, 12)
		ins.Op = decodeStore(funct3)
	case 0x0F: // fence / fence.i
		if funct3 == 1 {
			ins.Op = OpFenceI
		} else {
			ins.Op = OpFence
		}
	default:
		ins.Op = OpUnknown
	}

	return ins
}

func decodeOpImm(opcode, funct3, funct7, word uint32) Opcode {
	is32 := opcode == 0x1B

	switch funct3 {
	case 0x0:
		if is32 {
			return OpAddiw
		}
		return OpAddi
	case 0x2:
		return OpSlti
	case 0x3:
		return OpSltiu
	case 0x4:
		return OpXori
	case 0x6:
		return OpOri
	case 0x7:
		return OpAndi
	case 0x1:
		if is32 {
			return OpSlliw
		}
		return OpSlli
	case 0x5:
		// RV64's slli/srli/srai take a 6-bit shamt (word[25:20]), so
		// funct7 (word[31:25]) has the shamt's top bit in its LSB; the
		// *iw 32-bit variants take a 5-bit shamt and a full 7-bit
		// funct7, so no such shift is needed there.
		isArith := funct7 == 0x20
		if !is32 {
			isArith = funct7&^1 == 0x20
		}

		if isArith {
			if is32 {
				return OpSraiw
			}
			return OpSrai
		}
		if is32 {
			return OpSrliw
		}
		return OpSrli
	}

	return OpUnknown
}

func decodeOp(opcode, funct3, funct7 uint32) Opcode {
	is32 := opcode == 0x3B

	switch funct3 {
	case 0x0:
		switch funct7 {
		case 0x00:
			if is32 {
				return OpAddw
			}
			return OpAdd
		case 0x20:
			if is32 {
				return OpSubw
			}
			return OpSub
		case 0x01:
			if is32 {
				return OpMul
			}
			return OpMul
		}
	case 0x1:
		if funct7 == 0x01 {
			return OpMulh
		}
		if is32 {
			return OpSllw
		}
		return OpSll
	case 0x2:
		if funct7 == 0x01 {
			return OpMulhsu
		}
		return OpSlt
	case 0x3:
		if funct7 == 0x01 {
			return OpMulhu
		}
		return OpSltu
	case 0x4:
		if funct7 == 0x01 {
			return OpDiv
		}
		return OpXor
	case 0x5:
		if funct7 == 0x01 {
			return OpDivu
		}
		if funct7 == 0x20 {
			if is32 {
				return OpSraw
			}
			return OpSra
		}
		if is32 {
			return OpSrlw
		}
		return OpSrl
	case 0x6:
		if funct7 == 0x01 {
			return OpRem
		}
		return OpOr
	case 0x7:
		if funct7 == 0x01 {
			return OpRemu
		}
		return OpAnd
	}

	return OpUnknown
}

func decodeBranch(funct3 uint32) Opcode {
	switch funct3 {
	case 0x0:
		return OpBeq
	case 0x1:
		return OpBne
	case 0x4:
		return OpBlt
	case 0x5:
		return OpBge
	case 0x6:
		return OpBltu
	case 0x7:
		return OpBgeu
	}

	return OpUnknown
}

func decodeLoad(funct3 uint32) Opcode {
	switch funct3 {
	case 0x0:
		return OpLb
	case 0x1:
		return OpLh
	case 0x2:
		return OpLw
	case 0x3:
		return OpLd
	case 0x4:
		return OpLbu
	case 0x5:
		return OpLhu
	case 0x6:
		return OpLwu
	}

	return OpUnknown
}

func decodeStore(funct3 uint32) Opcode {
	switch funct3 {
	case 0x0:
		return OpSb
	case 0x1:
		return OpSh
	case 0x2:
		return OpSw
	case 0x3:
		return OpSd
	}

	return OpUnknown
}

// isTerminator reports whether op ends a straight-line basic block:
// any instruction that changes control flow (jal/jalr/branches).
func isTerminator(op Opcode) bool {
	switch op {
	case OpJal, OpJalr, OpBeq, OpBne, OpBlt, OpBge, OpBltu, OpBgeu:
		return true
	default:
		return false
	}
}

// maxBlockInstructions caps straight-line decode length so a
// pathological run of non-terminating instructions (e.g. a data
// section mis-decoded as code) can't grow a block without bound.
const maxBlockInstructions = 512

// DecodeBasicBlock decodes code starting at pc from mem until it hits
// a control-flow terminator, a fence.i, the end of mem at an
// instruction boundary, or the instruction cap, per the
// consumed-from-the-decoder contract in the specification's
// external-interfaces section. A partial instruction at the end of
// mem, or an empty mem, is an error.
func DecodeBasicBlock(mem []byte, pc uint64) (BasicBlock, error) {
	bb := BasicBlock{StartPC: pc}

	off := uint64(0)

	for i := 0; i < maxBlockInstructions; i++ {
		if off == uint64(len(mem)) && len(bb.Instructions) > 0 {
			break
		}

		if off+4 > uint64(len(mem)) {
			return BasicBlock{}, errors.New("decoder: truncated instruction stream at pc %#x", pc+off)
		}

		word := uint32(mem[off]) | uint32(mem[off+1])<<8 | uint32(mem[off+2])<<16 | uint32(mem[off+3])<<24

		ins := decodeOne(word)
		bb.Instructions = append(bb.Instructions, ins)

		off += uint64(ins.Length)

		if isTerminator(ins.Op) || ins.Op == OpFenceI {
			break
		}
	}

	bb.EndPC = pc + off

	return bb, nil
}
