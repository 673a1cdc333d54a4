package classfile

import (
	"fmt"

	"github.com/wippyai/classkit/errors"
)

func (e *frameEngine) underflow(in *insn) error {
	return errors.InvalidInput(errors.PhaseFrames, e.path,
		fmt.Sprintf("operand stack underflow at offset %d (%s)", in.off, OpcodeName(in.op)))
}

func push(s *frameState, t vtype) {
	s.stack = append(s.stack, t)
	if t.isWide() {
		s.stack = append(s.stack, tTop)
	}
}

func (e *frameEngine) pop(in *insn, s *frameState, n int) ([]vtype, error) {
	if len(s.stack) < n {
		return nil, e.underflow(in)
	}
	vals := append([]vtype(nil), s.stack[len(s.stack)-n:]...)
	s.stack = s.stack[:len(s.stack)-n]
	return vals, nil
}

func (e *frameEngine) pop1(in *insn, s *frameState) (vtype, error) {
	v, err := e.pop(in, s, 1)
	if err != nil {
		return tTop, err
	}
	return v[0], nil
}

func getLocal(s *frameState, i int) vtype {
	if i < len(s.locals) {
		return s.locals[i]
	}
	return tTop
}

func setLocal(s *frameState, i int, t vtype) {
	need := i + 1
	if t.isWide() {
		need++
	}
	for len(s.locals) < need {
		s.locals = append(s.locals, tTop)
	}
	if i > 0 && s.locals[i-1].isWide() {
		s.locals[i-1] = tTop
	}
	s.locals[i] = t
	if t.isWide() {
		s.locals[i+1] = tTop
	}
}

// replaceAll substitutes every occurrence of from, used when a constructor
// call initializes an object.
func replaceAll(s *frameState, from, to vtype) {
	for i := range s.locals {
		if s.locals[i] == from {
			s.locals[i] = to
		}
	}
	for i := range s.stack {
		if s.stack[i] == from {
			s.stack[i] = to
		}
	}
}

// constType returns the verification type pushed by ldc of constant index.
func (e *frameEngine) constType(in *insn) (vtype, error) {
	ent, ok := e.ctx.symbols.Entry(uint16(in.index))
	if !ok {
		return tTop, e.badConst(in)
	}
	switch ent.Tag {
	case TagInteger:
		return tInt, nil
	case TagFloat:
		return tFloat, nil
	case TagLong:
		return tLong, nil
	case TagDouble:
		return tDouble, nil
	case TagString:
		return objType(stringClass), nil
	case TagClass:
		return objType(classClass), nil
	case TagMethodType:
		return objType(methodTypeName), nil
	case TagMethodHandle:
		return objType(handleClass), nil
	case TagDynamic:
		_, desc, err := e.ctx.symbols.NameAndType(ent.B)
		if err != nil {
			return tTop, err
		}
		return descType(desc), nil
	}
	return tTop, e.badConst(in)
}

func (e *frameEngine) badConst(in *insn) error {
	return errors.New(errors.PhaseFrames, errors.KindMalformedInput).
		Path(e.path...).
		Offset(in.off).
		Detail("%s references invalid constant %d", OpcodeName(in.op), in.index).
		Build()
}

// newArrayTypes maps newarray operands to array descriptors.
var newArrayTypes = map[int]string{
	TBoolean: "[Z",
	TChar:    "[C",
	TFloat:   "[F",
	TDouble:  "[D",
	TByte:    "[B",
	TShort:   "[S",
	TInt:     "[I",
	TLong:    "[J",
}

// execute applies the effect of in to s.
func (e *frameEngine) execute(in *insn, s *frameState) error {
	op := in.op
	popN := func(n int) error {
		_, err := e.pop(in, s, n)
		return err
	}
	binop := func(n int, t vtype) error {
		if err := popN(n); err != nil {
			return err
		}
		push(s, t)
		return nil
	}

	switch {
	case op == OpNop, op == OpGoto, op == OpGotoW, op == OpReturn:
		return nil
	case op == OpAconstNull:
		push(s, tNull)
	case op >= OpIconstM1 && op <= OpIconst5, op == OpBipush, op == OpSipush:
		push(s, tInt)
	case op == OpLconst0 || op == OpLconst1:
		push(s, tLong)
	case op >= OpFconst0 && op <= OpFconst2:
		push(s, tFloat)
	case op == OpDconst0 || op == OpDconst1:
		push(s, tDouble)
	case op == OpLdc || op == OpLdcW || op == OpLdc2W:
		t, err := e.constType(in)
		if err != nil {
			return err
		}
		push(s, t)
	case op == OpIload:
		push(s, tInt)
	case op == OpLload:
		push(s, tLong)
	case op == OpFload:
		push(s, tFloat)
	case op == OpDload:
		push(s, tDouble)
	case op == OpAload:
		push(s, getLocal(s, in.index))
	case op == OpIaload, op == OpBaload, op == OpCaload, op == OpSaload:
		return binop(2, tInt)
	case op == OpLaload:
		return binop(2, tLong)
	case op == OpFaload:
		return binop(2, tFloat)
	case op == OpDaload:
		return binop(2, tDouble)
	case op == OpAaload:
		v, err := e.pop(in, s, 2)
		if err != nil {
			return err
		}
		push(s, elementType(v[0]))
	case op == OpIstore, op == OpFstore, op == OpAstore:
		v, err := e.pop1(in, s)
		if err != nil {
			return err
		}
		setLocal(s, in.index, v)
	case op == OpLstore, op == OpDstore:
		v, err := e.pop(in, s, 2)
		if err != nil {
			return err
		}
		setLocal(s, in.index, v[0])
	case op == OpIastore, op == OpFastore, op == OpAastore, op == OpBastore, op == OpCastore, op == OpSastore:
		return popN(3)
	case op == OpLastore || op == OpDastore:
		return popN(4)
	case op == OpPop:
		return popN(1)
	case op == OpPop2:
		return popN(2)
	case op >= OpDup && op <= OpSwap:
		return e.stackOp(in, s)
	case op >= OpIadd && op <= OpLxor:
		return e.arith(in, s)
	case op == OpIinc:
		setLocal(s, in.index, tInt)
	case op >= OpI2l && op <= OpI2s:
		return e.convert(in, s)
	case op == OpLcmp || op == OpDcmpl || op == OpDcmpg:
		return binop(4, tInt)
	case op == OpFcmpl || op == OpFcmpg:
		return binop(2, tInt)
	case op >= OpIfeq && op <= OpIfle, op == OpIfnull, op == OpIfnonnull:
		return popN(1)
	case op >= OpIfIcmpeq && op <= OpIfAcmpne:
		return popN(2)
	case op == OpTableswitch || op == OpLookupswitch:
		return popN(1)
	case op == OpIreturn, op == OpFreturn, op == OpAreturn, op == OpAthrow,
		op == OpMonitorenter, op == OpMonitorexit:
		return popN(1)
	case op == OpLreturn || op == OpDreturn:
		return popN(2)
	case op >= OpGetstatic && op <= OpPutfield:
		return e.fieldInsn(in, s)
	case op >= OpInvokevirtual && op <= OpInvokeinterface:
		return e.invoke(in, s)
	case op == OpInvokedynamic:
		ent, ok := e.ctx.symbols.Entry(uint16(in.index))
		if !ok || ent.Tag != TagInvokeDynamic {
			return e.badConst(in)
		}
		_, desc, err := e.ctx.symbols.NameAndType(ent.B)
		if err != nil {
			return err
		}
		if err := popN(argSlots(desc)); err != nil {
			return err
		}
		if r := returnDesc(desc); r != "V" {
			push(s, descType(r))
		}
	case op == OpNew:
		push(s, uninitType(in.off))
	case op == OpNewarray:
		return binop(1, objType(newArrayTypes[in.imm]))
	case op == OpAnewarray:
		name, err := e.ctx.symbols.ClassName(uint16(in.index))
		if err != nil {
			return err
		}
		return binop(1, objType("["+descOfClass(name)))
	case op == OpArraylength || op == OpInstanceof:
		return binop(1, tInt)
	case op == OpCheckcast:
		name, err := e.ctx.symbols.ClassName(uint16(in.index))
		if err != nil {
			return err
		}
		return binop(1, objType(name))
	case op == OpMultianewarray:
		name, err := e.ctx.symbols.ClassName(uint16(in.index))
		if err != nil {
			return err
		}
		return binop(in.imm, objType(name))
	default:
		return errors.Unsupported(errors.PhaseFrames, e.path, fmt.Sprintf("opcode %s", OpcodeName(op)))
	}
	return nil
}

// elementType returns the component type loaded by aaload from arr.
func elementType(arr vtype) vtype {
	if arr.tag == ItemNull {
		return tNull
	}
	if !arr.isArray() {
		return objType(objectClass)
	}
	return descType(arr.name[1:])
}

func (e *frameEngine) stackOp(in *insn, s *frameState) error {
	var n int
	switch in.op {
	case OpDup:
		n = 1
	case OpDupX1, OpDup2, OpSwap:
		n = 2
	case OpDupX2, OpDup2X1:
		n = 3
	case OpDup2X2:
		n = 4
	}
	v, err := e.pop(in, s, n)
	if err != nil {
		return err
	}
	// v is bottom to top
	var out []vtype
	switch in.op {
	case OpDup:
		out = []vtype{v[0], v[0]}
	case OpDupX1:
		out = []vtype{v[1], v[0], v[1]}
	case OpDupX2:
		out = []vtype{v[2], v[0], v[1], v[2]}
	case OpDup2:
		out = []vtype{v[0], v[1], v[0], v[1]}
	case OpDup2X1:
		out = []vtype{v[1], v[2], v[0], v[1], v[2]}
	case OpDup2X2:
		out = []vtype{v[2], v[3], v[0], v[1], v[2], v[3]}
	case OpSwap:
		out = []vtype{v[1], v[0]}
	}
	s.stack = append(s.stack, out...)
	return nil
}

func (e *frameEngine) arith(in *insn, s *frameState) error {
	op := in.op
	var pop int
	var res vtype
	switch {
	case op == OpIneg:
		pop, res = 1, tInt
	case op == OpLneg:
		pop, res = 2, tLong
	case op == OpFneg:
		pop, res = 1, tFloat
	case op == OpDneg:
		pop, res = 2, tDouble
	case op == OpLshl || op == OpLshr || op == OpLushr:
		pop, res = 3, tLong
	case op == OpIshl || op == OpIshr || op == OpIushr:
		pop, res = 2, tInt
	default:
		// iadd..drem and iand..lxor cycle through int, long, float, double
		k := (op - OpIadd) % 4
		if op >= OpIand {
			k = (op - OpIand) % 2
		}
		switch k {
		case 0:
			pop, res = 2, tInt
		case 1:
			pop, res = 4, tLong
		case 2:
			pop, res = 2, tFloat
		case 3:
			pop, res = 4, tDouble
		}
	}
	if _, err := e.pop(in, s, pop); err != nil {
		return err
	}
	push(s, res)
	return nil
}

func (e *frameEngine) convert(in *insn, s *frameState) error {
	var pop int
	var res vtype
	switch in.op {
	case OpI2l:
		pop, res = 1, tLong
	case OpI2f:
		pop, res = 1, tFloat
	case OpI2d:
		pop, res = 1, tDouble
	case OpL2i:
		pop, res = 2, tInt
	case OpL2f:
		pop, res = 2, tFloat
	case OpL2d:
		pop, res = 2, tDouble
	case OpF2i:
		pop, res = 1, tInt
	case OpF2l:
		pop, res = 1, tLong
	case OpF2d:
		pop, res = 1, tDouble
	case OpD2i:
		pop, res = 2, tInt
	case OpD2l:
		pop, res = 2, tLong
	case OpD2f:
		pop, res = 2, tFloat
	default: // i2b, i2c, i2s
		pop, res = 1, tInt
	}
	if _, err := e.pop(in, s, pop); err != nil {
		return err
	}
	push(s, res)
	return nil
}

func (e *frameEngine) fieldInsn(in *insn, s *frameState) error {
	_, _, desc, err := e.ctx.symbols.MemberRef(uint16(in.index))
	if err != nil {
		return err
	}
	size := descSlots(desc)
	switch in.op {
	case OpGetstatic:
		push(s, descType(desc))
	case OpPutstatic:
		_, err = e.pop(in, s, size)
	case OpGetfield:
		if _, err = e.pop1(in, s); err == nil {
			push(s, descType(desc))
		}
	case OpPutfield:
		_, err = e.pop(in, s, size+1)
	}
	return err
}

func (e *frameEngine) invoke(in *insn, s *frameState) error {
	_, name, desc, err := e.ctx.symbols.MemberRef(uint16(in.index))
	if err != nil {
		return err
	}
	if _, err := e.pop(in, s, argSlots(desc)); err != nil {
		return err
	}
	if in.op != OpInvokestatic {
		recv, err := e.pop1(in, s)
		if err != nil {
			return err
		}
		if in.op == OpInvokespecial && name == constructor {
			switch recv.tag {
			case ItemUninitializedThis:
				replaceAll(s, recv, objType(e.ctx.owner))
			case ItemUninitialized:
				cls, err := e.newClass(recv.off)
				if err != nil {
					return err
				}
				replaceAll(s, recv, objType(cls))
			}
		}
	}
	if r := returnDesc(desc); r != "V" {
		push(s, descType(r))
	}
	return nil
}

// newClass returns the class instantiated by the new instruction at off.
func (e *frameEngine) newClass(off int) (string, error) {
	code := e.ctx.code
	if off+3 > len(code) || code[off] != OpNew {
		return "", errors.InvalidInput(errors.PhaseFrames, e.path, fmt.Sprintf("no new instruction at offset %d", off))
	}
	return e.ctx.symbols.ClassName(uint16(code[off+1])<<8 | uint16(code[off+2]))
}
