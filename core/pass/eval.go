package pass

import (
	"tlog.app/go/errors"

	"github.com/rvjit/core/core/ir"
)

// mask64 returns a mask with the low 'width' bits set.
func mask64(width int) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	if width <= 0 {
		return 0
	}
	return (uint64(1) << width) - 1
}

// SignExtend sign-extends bits, interpreted as type t's bit-width, to
// a full 64-bit value.
func SignExtend(t ir.Type, bits uint64) uint64 {
	w := t.Width()
	if w == 0 || w == 64 {
		return bits
	}

	v := bits & mask64(w)
	signBit := uint64(1) << (w - 1)

	if v&signBit != 0 {
		v |= ^mask64(w)
	}

	return v
}

// ZeroExtend zero-extends bits, interpreted as type t's bit-width, to
// a full 64-bit value.
func ZeroExtend(t ir.Type, bits uint64) uint64 {
	w := t.Width()
	if w == 0 || w == 64 {
		return bits
	}

	return bits & mask64(w)
}

// Cast extends or truncates v (a value of type from) to type to,
// sign-extending if signed is set and the target is wider, else
// zero-extending; truncation always just masks.
func Cast(to, from ir.Type, signed bool, v uint64) uint64 {
	if to.Width() <= from.Width() {
		return v & mask64(to.Width())
	}

	if signed {
		return SignExtend(from, v) & mask64(to.Width())
	}

	return ZeroExtend(from, v) & mask64(to.Width())
}

// Binary evaluates a pure binary opcode over operands masked to
// type t's width, wrapping modulo that width. Shift counts are
// masked to width-1 per the RISC-V shift-amount convention; sar
// performs an arithmetic right shift via sign-extend then logical
// shift; eq/ne/lt/ge are signed on t, ltu/geu unsigned.
func Binary(t ir.Type, op ir.Op, l, r uint64) uint64 {
	w := t.Width()
	m := mask64(w)

	l &= m
	r &= m

	switch op {
	case ir.OpAdd:
		return (l + r) & m
	case ir.OpSub:
		return (l - r) & m
	case ir.OpXor:
		return (l ^ r) & m
	case ir.OpOr:
		return (l | r) & m
	case ir.OpAnd:
		return (l & r) & m
	case ir.OpShl:
		sh := r & uint64(w-1)
		return (l << sh) & m
	case ir.OpShr:
		sh := r & uint64(w-1)
		return (l & m) >> sh
	case ir.OpSar:
		sh := r & uint64(w-1)
		sl := SignExtend(t, l)
		return (sl >> sh) & m
	case ir.OpEq:
		if l == r {
			return 1
		}
		return 0
	case ir.OpNe:
		if l != r {
			return 1
		}
		return 0
	case ir.OpLt:
		if int64(SignExtend(t, l)) < int64(SignExtend(t, r)) {
			return 1
		}
		return 0
	case ir.OpGe:
		if int64(SignExtend(t, l)) >= int64(SignExtend(t, r)) {
			return 1
		}
		return 0
	case ir.OpLtu:
		if l < r {
			return 1
		}
		return 0
	case ir.OpGeu:
		if l >= r {
			return 1
		}
		return 0
	default:
		panic(errors.New("pass: eval: %v is not a binary opcode", op))
	}
}

// Unary evaluates neg/not over v masked to type t's width.
func Unary(t ir.Type, op ir.Op, v uint64) uint64 {
	m := mask64(t.Width())
	v &= m

	switch op {
	case ir.OpNeg:
		return (-v) & m
	case ir.OpNot:
		return (^v) & m
	default:
		panic(errors.New("pass: eval: %v is not a unary opcode", op))
	}
}
