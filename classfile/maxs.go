package classfile

import (
	"fmt"

	"github.com/wippyai/classkit/errors"
)

// stackDelta returns the change in operand stack height caused by in.
func stackDelta(in *insn, symbols *SymbolTable) (int, error) {
	op := in.op
	switch {
	case op == OpNop, op == OpSwap, op == OpIinc, op == OpGoto, op == OpGotoW,
		op == OpRet, op == OpReturn, op == OpNewarray, op == OpAnewarray,
		op == OpArraylength, op == OpCheckcast, op == OpInstanceof,
		op == OpLaload, op == OpDaload, op == OpIneg, op == OpLneg, op == OpFneg, op == OpDneg,
		op == OpI2f, op == OpL2d, op == OpF2i, op == OpD2l, op == OpI2b, op == OpI2c, op == OpI2s:
		return 0, nil
	case op == OpAconstNull, op >= OpIconstM1 && op <= OpIconst5, op >= OpFconst0 && op <= OpFconst2,
		op == OpBipush, op == OpSipush, op == OpIload, op == OpFload, op == OpAload,
		op == OpDup, op == OpDupX1, op == OpDupX2, op == OpNew, op == OpJsr, op == OpJsrW,
		op == OpI2l, op == OpI2d, op == OpF2l, op == OpF2d:
		return 1, nil
	case op == OpLconst0, op == OpLconst1, op == OpDconst0, op == OpDconst1,
		op == OpLload, op == OpDload, op == OpDup2, op == OpDup2X1, op == OpDup2X2:
		return 2, nil
	case op == OpLdc, op == OpLdcW:
		return 1, nil
	case op == OpLdc2W:
		return 2, nil
	case op == OpIaload, op == OpFaload, op == OpAaload, op == OpBaload, op == OpCaload, op == OpSaload,
		op == OpIstore, op == OpFstore, op == OpAstore, op == OpPop,
		op == OpL2i, op == OpL2f, op == OpD2i, op == OpD2f,
		op == OpFcmpl, op == OpFcmpg,
		op >= OpIfeq && op <= OpIfle, op == OpIfnull, op == OpIfnonnull,
		op == OpTableswitch, op == OpLookupswitch,
		op == OpIreturn, op == OpFreturn, op == OpAreturn, op == OpAthrow,
		op == OpMonitorenter, op == OpMonitorexit:
		return -1, nil
	case op == OpLstore, op == OpDstore, op == OpPop2, op >= OpIfIcmpeq && op <= OpIfAcmpne,
		op == OpLreturn, op == OpDreturn:
		return -2, nil
	case op == OpLcmp, op == OpDcmpl, op == OpDcmpg,
		op == OpIastore, op == OpFastore, op == OpAastore, op == OpBastore, op == OpCastore, op == OpSastore:
		return -3, nil
	case op == OpLastore, op == OpDastore:
		return -4, nil
	case op >= OpIshl && op <= OpLushr:
		return -1, nil
	case op >= OpIadd && op <= OpLxor:
		k := (op - OpIadd) % 4
		if op >= OpIand {
			k = (op - OpIand) % 2
		}
		if k == 1 || k == 3 {
			return -2, nil
		}
		return -1, nil
	case op >= OpGetstatic && op <= OpPutfield:
		_, _, desc, err := symbols.MemberRef(uint16(in.index))
		if err != nil {
			return 0, err
		}
		size := descSlots(desc)
		switch op {
		case OpGetstatic:
			return size, nil
		case OpPutstatic:
			return -size, nil
		case OpGetfield:
			return size - 1, nil
		}
		return -size - 1, nil
	case op >= OpInvokevirtual && op <= OpInvokedynamic:
		var desc string
		var err error
		if op == OpInvokedynamic {
			ent, ok := symbols.Entry(uint16(in.index))
			if !ok || ent.Tag != TagInvokeDynamic {
				return 0, fmt.Errorf("invalid invokedynamic constant %d", in.index)
			}
			_, desc, err = symbols.NameAndType(ent.B)
		} else {
			_, _, desc, err = symbols.MemberRef(uint16(in.index))
		}
		if err != nil {
			return 0, err
		}
		d := descSlots(returnDesc(desc)) - argSlots(desc)
		if op != OpInvokestatic && op != OpInvokedynamic {
			d--
		}
		return d, nil
	case op == OpMultianewarray:
		return 1 - in.imm, nil
	}
	return 0, fmt.Errorf("no stack effect for opcode %d", op)
}

// localsUsed returns one past the highest local slot in touches, or 0.
func localsUsed(in *insn) int {
	switch in.op {
	case OpLload, OpDload, OpLstore, OpDstore:
		return in.index + 2
	case OpIload, OpFload, OpAload, OpIstore, OpFstore, OpAstore, OpIinc, OpRet:
		return in.index + 1
	}
	return 0
}

// computeMaxs derives max_stack and max_locals by following stack heights
// along every path. Unlike frame computation it supports jsr and ret.
func computeMaxs(owner, name, desc string, access int, code []byte, handlers []handlerRange, symbols *SymbolTable) (int, int, error) {
	path := []string{owner, name + desc}
	insns, err := decodeAll(code)
	if err != nil {
		return 0, 0, errors.WithPath(err, path...)
	}
	index := make(map[int]int, len(insns))
	for i := range insns {
		index[insns[i].off] = i
	}

	maxLocals := argSlots(desc)
	if access&AccStatic == 0 {
		maxLocals++
	}
	heights := make([]int, len(insns))
	for i := range heights {
		heights[i] = -1
	}
	var work []int
	visit := func(off, h int) error {
		i, ok := index[off]
		if !ok {
			return errors.InvalidInput(errors.PhaseFrames, path, fmt.Sprintf("branch to invalid offset %d", off))
		}
		if heights[i] < 0 {
			heights[i] = h
			work = append(work, i)
		}
		return nil
	}

	if len(insns) > 0 {
		if err := visit(0, 0); err != nil {
			return 0, 0, err
		}
	}
	for _, h := range handlers {
		if err := visit(h.handler, 1); err != nil {
			return 0, 0, err
		}
	}

	maxStack := 0
	if len(handlers) > 0 {
		maxStack = 1
	}
	for len(work) > 0 {
		i := work[len(work)-1]
		work = work[:len(work)-1]
		in := &insns[i]
		h := heights[i]

		if n := localsUsed(in); n > maxLocals {
			maxLocals = n
		}
		d, err := stackDelta(in, symbols)
		if err != nil {
			return 0, 0, errors.WithPath(errors.Wrap(errors.PhaseFrames, errors.KindMalformedInput, err, fmt.Sprintf("offset %d", in.off)), path...)
		}
		after := h + d
		if after < 0 {
			return 0, 0, errors.InvalidInput(errors.PhaseFrames, path, fmt.Sprintf("operand stack underflow at offset %d", in.off))
		}
		if after > maxStack {
			maxStack = after
		}

		switch {
		case in.op == OpJsr || in.op == OpJsrW:
			if err := visit(in.target, after); err != nil {
				return 0, 0, err
			}
			after = h
		case in.isJump():
			if err := visit(in.target, after); err != nil {
				return 0, 0, err
			}
		case in.isSwitch():
			if err := visit(in.target, after); err != nil {
				return 0, 0, err
			}
			for _, t := range in.targets {
				if err := visit(t, after); err != nil {
					return 0, 0, err
				}
			}
		}
		if in.isSwitch() || (isUnconditional(in.op) && in.op != OpJsr) {
			continue
		}
		if next := in.off + in.size; next < len(code) {
			if err := visit(next, after); err != nil {
				return 0, 0, err
			}
		}
	}
	return maxStack, maxLocals, nil
}
