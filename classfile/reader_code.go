package classfile

import "github.com/wippyai/classkit/errors"

type codeFrame struct {
	off   int
	frame Frame
}

type localVar struct {
	start, length int
	name, desc    string
	index         int
}

// codeLabels allocates one label per referenced offset.
type codeLabels struct {
	labels   []*Label
	boundary *bitSet
	bad      int
}

func newCodeLabels(insns []insn, length int) *codeLabels {
	c := &codeLabels{labels: make([]*Label, length+1), boundary: newBitSet(length + 1), bad: -1}
	for i := range insns {
		c.boundary.set(insns[i].off)
	}
	c.boundary.set(length)
	return c
}

// at returns the label for off, creating it on first use. Offsets that are
// not instruction boundaries are recorded and yield nil.
func (c *codeLabels) at(off int) *Label {
	if off < 0 || off >= len(c.labels) || !c.boundary.has(off) {
		if c.bad < 0 {
			c.bad = off
		}
		return nil
	}
	if c.labels[off] == nil {
		c.labels[off] = &Label{}
	}
	return c.labels[off]
}

func (d *decoder) code(mv MethodVisitor, m *member, access int, a rawAttr) error {
	in := d.input(a)
	maxStack, maxLocals := in.u2(), in.u2()
	length := int(in.u4())
	if d.err == nil && (length == 0 || length > MaxCodeLength) {
		d.fail(errors.Malformed(errors.PhaseDecode, in.pos()-4, "invalid code length %d", length))
	}
	code := in.bytes(length)
	type exception struct{ start, end, handler, typ int }
	excs := make([]exception, in.u2())
	for i := range excs {
		excs[i] = exception{in.u2(), in.u2(), in.u2(), in.u2()}
	}
	in.section = "code attributes"
	attrs := d.cr.readAttrs(in)
	if d.err != nil {
		return errors.WithPath(d.err, d.path...)
	}

	insns, err := decodeAll(code)
	if err != nil {
		d.fail(err)
		return d.err
	}
	labels := newCodeLabels(insns, length)
	for i := range insns {
		ins := &insns[i]
		switch {
		case ins.isJump():
			labels.at(ins.target)
		case ins.isSwitch():
			labels.at(ins.target)
			for _, t := range ins.targets {
				labels.at(t)
			}
		}
	}
	for _, e := range excs {
		labels.at(e.start)
		labels.at(e.end)
		labels.at(e.handler)
	}

	lines := make(map[int][]int)
	var locals []localVar
	signatures := make(map[[3]int]string)
	var frames []codeFrame
	major := majorVersion(d.cr.version)
	for _, ca := range attrs {
		switch ca.name {
		case "LineNumberTable":
			if d.opts.SkipDebug {
				continue
			}
			cin := d.input(ca)
			n := cin.u2()
			for i := 0; i < n && d.err == nil; i++ {
				pc, line := cin.u2(), cin.u2()
				if labels.at(pc) != nil {
					lines[pc] = append(lines[pc], line)
				}
			}
		case "LocalVariableTable":
			if d.opts.SkipDebug {
				continue
			}
			cin := d.input(ca)
			n := cin.u2()
			for i := 0; i < n && d.err == nil; i++ {
				lv := localVar{start: cin.u2(), length: cin.u2()}
				lv.name = d.utf8(cin.u2())
				lv.desc = d.utf8(cin.u2())
				lv.index = cin.u2()
				labels.at(lv.start)
				labels.at(lv.start + lv.length)
				locals = append(locals, lv)
			}
		case "LocalVariableTypeTable":
			if d.opts.SkipDebug {
				continue
			}
			cin := d.input(ca)
			n := cin.u2()
			for i := 0; i < n && d.err == nil; i++ {
				start, length := cin.u2(), cin.u2()
				sig := d.utf8(cin.u2())
				index := cin.u2()
				signatures[[3]int{start, length, index}] = sig
			}
		case "StackMapTable":
			if d.opts.SkipFrames || major < V1_6 {
				continue
			}
			frames = d.stackMap(ca, m, access, labels)
		}
	}
	if d.err == nil && labels.bad >= 0 {
		d.fail(errors.Malformed(errors.PhaseDecode, labels.bad, "offset %d is not an instruction boundary", labels.bad))
	}
	if d.err != nil {
		return d.err
	}

	mv.VisitCode()
	next := 0
	for i := range insns {
		ins := &insns[i]
		if l := labels.labels[ins.off]; l != nil {
			mv.VisitLabel(l)
			for _, line := range lines[ins.off] {
				mv.VisitLineNumber(line, l)
			}
		}
		for next < len(frames) && frames[next].off == ins.off {
			mv.VisitFrame(frames[next].frame)
			next++
		}
		if next < len(frames) && frames[next].off < ins.off {
			d.fail(errors.Malformed(errors.PhaseDecode, frames[next].off, "frame offset is not an instruction boundary"))
		}
		d.insn(mv, code, ins, labels)
		if d.err != nil {
			return d.err
		}
	}
	if next < len(frames) {
		d.fail(errors.Malformed(errors.PhaseDecode, frames[next].off, "frame past end of code"))
		return d.err
	}
	if l := labels.labels[length]; l != nil {
		mv.VisitLabel(l)
	}

	for _, e := range excs {
		typ := d.optClass(e.typ)
		if d.err != nil {
			return d.err
		}
		mv.VisitTryCatchBlock(labels.labels[e.start], labels.labels[e.end], labels.labels[e.handler], typ)
	}
	for _, lv := range locals {
		sig := signatures[[3]int{lv.start, lv.length, lv.index}]
		mv.VisitLocalVariable(lv.name, lv.desc, sig, labels.labels[lv.start], labels.labels[lv.start+lv.length], lv.index)
	}
	mv.VisitMaxs(maxStack, maxLocals)
	return nil
}

// insn reports one decoded instruction.
func (d *decoder) insn(mv MethodVisitor, code []byte, ins *insn, labels *codeLabels) {
	syms := d.cr.symbols
	op := ins.op
	if ins.wide {
		if op == OpIinc {
			mv.VisitIincInsn(ins.index, ins.imm)
		} else {
			mv.VisitVarInsn(op, ins.index)
		}
		return
	}
	switch opFormat(int(code[ins.off])) {
	case fmtNone:
		mv.VisitInsn(op)
	case fmtS1, fmtS2:
		mv.VisitIntInsn(op, ins.index)
	case fmtNewArray:
		mv.VisitIntInsn(op, ins.imm)
	case fmtLdc, fmtLdcW:
		c, err := syms.Constant(uint16(ins.index))
		if !d.lookup(err, OpcodeName(op)) {
			return
		}
		if wideConstant(c) != (op == OpLdc2W) {
			d.fail(errors.Malformed(errors.PhaseDecode, ins.off, "%s of %T", OpcodeName(op), c))
			return
		}
		mv.VisitLdcInsn(c)
	case fmtVar, fmtImplicitVar:
		mv.VisitVarInsn(op, ins.index)
	case fmtIinc:
		mv.VisitIincInsn(ins.index, ins.imm)
	case fmtJump, fmtJumpW:
		mv.VisitJumpInsn(op, labels.labels[ins.target])
	case fmtTableSwitch:
		targets := make([]*Label, len(ins.targets))
		for i, t := range ins.targets {
			targets[i] = labels.labels[t]
		}
		mv.VisitTableSwitchInsn(ins.low, ins.high, labels.labels[ins.target], targets...)
	case fmtLookupSwitch:
		keys := make([]int, len(ins.keys))
		targets := make([]*Label, len(ins.targets))
		for i := range ins.keys {
			keys[i] = int(ins.keys[i])
			targets[i] = labels.labels[ins.targets[i]]
		}
		mv.VisitLookupSwitchInsn(labels.labels[ins.target], keys, targets)
	case fmtField, fmtMethod, fmtInterface:
		e, _ := syms.Entry(uint16(ins.index))
		owner, name, desc, err := syms.MemberRef(uint16(ins.index))
		if !d.lookup(err, OpcodeName(op)) {
			return
		}
		if isField := op <= OpPutfield; isField != (e.Tag == TagFieldref) {
			d.fail(errors.Malformed(errors.PhaseDecode, ins.off, "%s references constant %d with tag %d", OpcodeName(op), ins.index, e.Tag))
			return
		}
		if op <= OpPutfield {
			mv.VisitFieldInsn(op, owner, name, desc)
		} else {
			mv.VisitMethodInsn(op, owner, name, desc, e.Tag == TagInterfaceMethodref)
		}
	case fmtIndy:
		name, desc, bsm, args, err := syms.InvokeDynamic(uint16(ins.index))
		if !d.lookup(err, "invokedynamic") {
			return
		}
		mv.VisitInvokeDynamicInsn(name, desc, bsm, args...)
	case fmtType:
		typ := d.className(ins.index)
		if d.err == nil {
			mv.VisitTypeInsn(op, typ)
		}
	case fmtMultiANewArray:
		typ := d.className(ins.index)
		if d.err == nil {
			mv.VisitMultiANewArrayInsn(typ, ins.imm)
		}
	default:
		d.fail(errors.Malformed(errors.PhaseDecode, ins.off, "unexpected opcode %s", OpcodeName(op)))
	}
}

// wideConstant reports whether c is loaded with ldc2_w.
func wideConstant(c any) bool {
	switch v := c.(type) {
	case int64, float64:
		return true
	case ConstantDynamic:
		return v.Desc == "J" || v.Desc == "D"
	}
	return false
}

// stackMap decodes a StackMapTable attribute. With ExpandFrames every frame
// is reported as FNew with the full locals.
func (d *decoder) stackMap(a rawAttr, m *member, access int, labels *codeLabels) []codeFrame {
	slots, err := initialLocals(d.cr.name, access, m.name, m.desc)
	if err != nil {
		d.fail(errors.Malformed(errors.PhaseDecode, -1, "method descriptor %q: %v", m.desc, err))
		return nil
	}
	var locals []VType
	for _, t := range compactTypes(slots, true) {
		locals = append(locals, t.export())
	}

	in := d.input(a)
	n := in.u2()
	out := make([]codeFrame, 0, n)
	off := -1
	for i := 0; i < n && d.err == nil; i++ {
		start := in.pos()
		typ := in.u1()
		var f Frame
		var delta int
		switch {
		case typ < sameLocals1StackItemFrame:
			f.Kind, delta = FSame, typ
		case typ < reservedFrame:
			f.Kind, delta = FSame1, typ-sameLocals1StackItemFrame
			f.Stack = d.frameTypes(in, 1, labels)
		case typ < sameLocals1StackItemFrameExt:
			d.fail(errors.Malformed(errors.PhaseDecode, start, "reserved frame type %d", typ))
			return nil
		case typ == sameLocals1StackItemFrameExt:
			f.Kind, delta = FSame1, in.u2()
			f.Stack = d.frameTypes(in, 1, labels)
		case typ < sameFrameExtended:
			f.Kind, delta, f.Chopped = FChop, in.u2(), chopFrame+3-typ
		case typ == sameFrameExtended:
			f.Kind, delta = FSame, in.u2()
		case typ < fullFrame:
			f.Kind, delta = FAppend, in.u2()
			f.Locals = d.frameTypes(in, typ-appendFrame+1, labels)
		default:
			f.Kind, delta = FFull, in.u2()
			f.Locals = d.frameTypes(in, in.u2(), labels)
			f.Stack = d.frameTypes(in, in.u2(), labels)
		}
		if off < 0 {
			off = delta
		} else {
			off += delta + 1
		}
		switch f.Kind {
		case FChop:
			if f.Chopped > len(locals) {
				d.fail(errors.Malformed(errors.PhaseDecode, start, "chop of %d locals from %d", f.Chopped, len(locals)))
				return nil
			}
			locals = locals[:len(locals)-f.Chopped]
		case FAppend:
			locals = append(locals[:len(locals):len(locals)], f.Locals...)
		case FFull:
			locals = append([]VType(nil), f.Locals...)
		}
		labels.at(off)
		if d.opts.ExpandFrames {
			f = Frame{Kind: FNew, Locals: append([]VType(nil), locals...), Stack: f.Stack}
		}
		out = append(out, codeFrame{off: off, frame: f})
	}
	return out
}

func (d *decoder) frameTypes(in *input, n int, labels *codeLabels) []VType {
	if n == 0 || d.err != nil {
		return nil
	}
	out := make([]VType, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		start := in.pos()
		tag := in.u1()
		switch {
		case tag <= ItemUninitializedThis:
			out = append(out, VType{Tag: tag})
		case tag == ItemObject:
			out = append(out, VObject(d.className(in.u2())))
		case tag == ItemUninitialized:
			out = append(out, VUninitialized(labels.at(in.u2())))
		default:
			d.fail(errors.Malformed(errors.PhaseDecode, start, "invalid verification type %d", tag))
		}
	}
	return out
}

// export converts an analysis type to its event form. Uninitialized types
// cannot be exported and become top.
func (v vtype) export() VType {
	switch v.tag {
	case ItemObject:
		return VObject(v.name)
	case ItemUninitialized:
		return VTop
	}
	return VType{Tag: int(v.tag)}
}
