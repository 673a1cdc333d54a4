package classfile

import (
	bin "github.com/wippyai/classkit/classfile/internal/binary"
	"github.com/wippyai/classkit/errors"
)

// insn is one decoded instruction of a code array.
type insn struct {
	off  int
	op   int // opcode; for wide and implicit forms, the base opcode
	size int
	wide bool

	// index is the local slot, constant pool index, or immediate operand.
	index int
	// imm is the iinc increment, multianewarray dimensions or newarray type.
	imm int

	target  int // jump target, or switch default
	low     int // tableswitch bounds
	high    int
	keys    []int32
	targets []int
}

// decodeInsn decodes the instruction at off. Operands are checked against
// the code bounds but not against the constant pool.
func decodeInsn(code []byte, off int) (insn, error) {
	n := len(code)
	op := int(code[off])
	in := insn{off: off, op: op}
	need := func(k int) error {
		if off+k > n {
			return errors.Malformed(errors.PhaseDecode, off, "truncated %s", OpcodeName(op))
		}
		return nil
	}
	jump := func(delta int) error {
		t := off + delta
		if t < 0 || t >= n {
			return errors.Malformed(errors.PhaseDecode, off, "%s target %d outside code", OpcodeName(op), t)
		}
		return nil
	}

	switch opFormat(op) {
	case fmtNone:
		in.size = 1
	case fmtS1:
		if err := need(2); err != nil {
			return in, err
		}
		in.index, in.size = int(int8(code[off+1])), 2
	case fmtS2:
		if err := need(3); err != nil {
			return in, err
		}
		in.index, in.size = int(bin.S2At(code, off+1)), 3
	case fmtNewArray:
		if err := need(2); err != nil {
			return in, err
		}
		in.imm, in.size = int(code[off+1]), 2
		if in.imm < TBoolean || in.imm > TLong {
			return in, errors.Malformed(errors.PhaseDecode, off, "invalid newarray type %d", in.imm)
		}
	case fmtLdc, fmtVar:
		if err := need(2); err != nil {
			return in, err
		}
		in.index, in.size = int(code[off+1]), 2
	case fmtLdcW, fmtField, fmtMethod, fmtType:
		if err := need(3); err != nil {
			return in, err
		}
		in.index, in.size = int(bin.U2At(code, off+1)), 3
	case fmtImplicitVar:
		in.op, in.index = implicitVar(op)
		in.size = 1
	case fmtIinc:
		if err := need(3); err != nil {
			return in, err
		}
		in.index, in.imm, in.size = int(code[off+1]), int(int8(code[off+2])), 3
	case fmtJump:
		if err := need(3); err != nil {
			return in, err
		}
		d := int(bin.S2At(code, off+1))
		if err := jump(d); err != nil {
			return in, err
		}
		in.target, in.size = off+d, 3
	case fmtJumpW:
		if err := need(5); err != nil {
			return in, err
		}
		d := int(bin.S4At(code, off+1))
		if err := jump(d); err != nil {
			return in, err
		}
		in.target, in.size = off+d, 5
	case fmtInterface, fmtIndy:
		if err := need(5); err != nil {
			return in, err
		}
		in.index, in.imm, in.size = int(bin.U2At(code, off+1)), int(code[off+3]), 5
	case fmtMultiANewArray:
		if err := need(4); err != nil {
			return in, err
		}
		in.index, in.imm, in.size = int(bin.U2At(code, off+1)), int(code[off+3]), 4
		if in.imm < 1 {
			return in, errors.Malformed(errors.PhaseDecode, off, "multianewarray with zero dimensions")
		}
	case fmtTableSwitch:
		p := off + 1 + switchPadding(off)
		if err := need(p - off + 12); err != nil {
			return in, err
		}
		d := int(bin.S4At(code, p))
		lo, hi := int(bin.S4At(code, p+4)), int(bin.S4At(code, p+8))
		if hi < lo {
			return in, errors.Malformed(errors.PhaseDecode, off, "tableswitch high %d < low %d", hi, lo)
		}
		count := hi - lo + 1
		if err := need(p - off + 12 + 4*count); err != nil {
			return in, err
		}
		if err := jump(d); err != nil {
			return in, err
		}
		in.target, in.low, in.high = off+d, lo, hi
		in.targets = make([]int, count)
		for i := range in.targets {
			d := int(bin.S4At(code, p+12+4*i))
			if err := jump(d); err != nil {
				return in, err
			}
			in.targets[i] = off + d
		}
		in.size = p - off + 12 + 4*count
	case fmtLookupSwitch:
		p := off + 1 + switchPadding(off)
		if err := need(p - off + 8); err != nil {
			return in, err
		}
		d := int(bin.S4At(code, p))
		count := int(bin.S4At(code, p+4))
		if count < 0 {
			return in, errors.Malformed(errors.PhaseDecode, off, "negative lookupswitch count")
		}
		if err := need(p - off + 8 + 8*count); err != nil {
			return in, err
		}
		if err := jump(d); err != nil {
			return in, err
		}
		in.target = off + d
		in.keys = make([]int32, count)
		in.targets = make([]int, count)
		for i := 0; i < count; i++ {
			in.keys[i] = bin.S4At(code, p+8+8*i)
			d := int(bin.S4At(code, p+12+8*i))
			if err := jump(d); err != nil {
				return in, err
			}
			in.targets[i] = off + d
		}
		in.size = p - off + 8 + 8*count
	case fmtWide:
		if err := need(2); err != nil {
			return in, err
		}
		inner := int(code[off+1])
		in.wide = true
		in.op = inner
		switch {
		case inner == OpIinc:
			if err := need(6); err != nil {
				return in, err
			}
			in.index, in.imm, in.size = int(bin.U2At(code, off+2)), int(bin.S2At(code, off+4)), 6
		case opFormat(inner) == fmtVar:
			if err := need(4); err != nil {
				return in, err
			}
			in.index, in.size = int(bin.U2At(code, off+2)), 4
		default:
			return in, errors.Malformed(errors.PhaseDecode, off, "invalid wide opcode %d", inner)
		}
	default:
		return in, errors.Malformed(errors.PhaseDecode, off, "invalid opcode 0x%02x", op)
	}
	return in, nil
}

// switchPadding returns the padding after a switch opcode at off.
func switchPadding(off int) int {
	return (4 - (off+1)%4) % 4
}

// decodeAll decodes every instruction of code in order.
func decodeAll(code []byte) ([]insn, error) {
	var out []insn
	for off := 0; off < len(code); {
		in, err := decodeInsn(code, off)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
		off += in.size
	}
	return out, nil
}

// isJump reports whether in transfers control to in.target.
func (in *insn) isJump() bool {
	f := opFormat(in.op)
	return !in.wide && (f == fmtJump || f == fmtJumpW)
}

// isSwitch reports whether in is a tableswitch or lookupswitch.
func (in *insn) isSwitch() bool {
	return in.op == OpTableswitch || in.op == OpLookupswitch
}

// endsBlock reports whether a new basic block starts after in.
func (in *insn) endsBlock() bool {
	return in.isJump() || isUnconditional(in.op) || in.isSwitch()
}
