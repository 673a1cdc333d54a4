package classfile

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	bin "github.com/wippyai/classkit/classfile/internal/binary"
	"github.com/wippyai/classkit/errors"
)

type methodParam struct {
	name   uint16
	access int
}

type pendingHandler struct {
	start, end, handler int // label handles
	typ                 string
	typeIdx             uint16
}

type lineEntry struct {
	line  int
	start int
}

type localEntry struct {
	name, desc, sig uint16
	hasSig          bool
	start, end      int
	index           int
}

type pendingFrame struct {
	at    int
	frame Frame
}

// MethodWriter encodes one method. It is returned by ClassWriter.VisitMethod
// and is finalized by ClassWriter.Finish.
type MethodWriter struct {
	cw         *ClassWriter
	access     int
	name       string
	desc       string
	signature  string
	exceptions []string

	parameters        []methodParam
	annotationDefault *bin.Writer
	annotations       annotationSet
	paramAnnotations  []annotationSet
	attrs             []Attribute

	hasCode   bool
	code      *codeBuffer
	handlers  []pendingHandler
	lines     []lineEntry
	locals    []localEntry
	frames    []pendingFrame
	maxStack  int
	maxLocals int

	// raw is the method_info copied unchanged from the source reader.
	raw []byte
}

func newMethodWriter(cw *ClassWriter, access int, name, desc, signature string, exceptions []string) *MethodWriter {
	return &MethodWriter{
		cw:         cw,
		access:     access,
		name:       name,
		desc:       desc,
		signature:  signature,
		exceptions: exceptions,
		code:       newCodeBuffer(),
	}
}

func (m *MethodWriter) path() []string {
	return []string{m.cw.name, m.name + m.desc}
}

func (m *MethodWriter) fail(err error) {
	m.cw.fail(errors.WithPath(err, m.path()...))
}

func (m *MethodWriter) symbols() *SymbolTable {
	return m.cw.symbols
}

func (m *MethodWriter) utf8(s string) uint16 {
	idx, err := m.symbols().AddUTF8(s)
	if err != nil {
		m.fail(err)
	}
	return idx
}

func (m *MethodWriter) class(name string) uint16 {
	idx, err := m.symbols().AddClass(name)
	if err != nil {
		m.fail(err)
	}
	return idx
}

func (m *MethodWriter) requireVersion(major int, what string) bool {
	if majorVersion(m.cw.version) < major {
		m.fail(errors.Unsupported(errors.PhaseEncode, m.path(),
			fmt.Sprintf("%s requires class file version %d, have %d", what, major, majorVersion(m.cw.version))))
		return false
	}
	return true
}

func (m *MethodWriter) VisitParameter(name string, access int) {
	p := methodParam{access: access}
	if name != "" {
		p.name = m.utf8(name)
	}
	m.parameters = append(m.parameters, p)
}

func (m *MethodWriter) VisitAnnotationDefault() AnnotationVisitor {
	m.annotationDefault = bin.NewWriter()
	return newAnnotationWriter(m.symbols(), m.annotationDefault, false, -1, m.fail)
}

func (m *MethodWriter) VisitAnnotation(desc string, visible bool) AnnotationVisitor {
	return m.annotations.add(m.symbols(), desc, visible, m.fail)
}

func (m *MethodWriter) VisitParameterAnnotation(param int, desc string, visible bool) AnnotationVisitor {
	if param < 0 || param > 255 {
		m.fail(errors.InvalidInput(errors.PhaseEncode, m.path(), fmt.Sprintf("parameter index %d out of range", param)))
		return nil
	}
	for len(m.paramAnnotations) <= param {
		m.paramAnnotations = append(m.paramAnnotations, annotationSet{})
	}
	return m.paramAnnotations[param].add(m.symbols(), desc, visible, m.fail)
}

func (m *MethodWriter) VisitAttribute(attr Attribute) {
	m.attrs = append(m.attrs, attr)
}

func (m *MethodWriter) VisitCode() {
	m.hasCode = true
}

func (m *MethodWriter) VisitFrame(frame Frame) {
	for _, t := range append(append([]VType(nil), frame.Locals...), frame.Stack...) {
		if t.Tag == ItemUninitialized {
			m.code.handle(t.Label)
		}
	}
	m.frames = append(m.frames, pendingFrame{at: m.code.mark(), frame: frame})
}

func (m *MethodWriter) VisitInsn(op int) {
	if opFormat(op) != fmtNone {
		m.fail(errors.InvalidInput(errors.PhaseEncode, m.path(), fmt.Sprintf("%s is not a zero-operand instruction", OpcodeName(op))))
		return
	}
	m.code.u1(op)
}

func (m *MethodWriter) VisitIntInsn(op, operand int) {
	switch op {
	case OpBipush, OpNewarray:
		m.code.op1(op, operand)
	case OpSipush:
		m.code.op2(op, operand)
	default:
		m.fail(errors.InvalidInput(errors.PhaseEncode, m.path(), fmt.Sprintf("%s is not an int instruction", OpcodeName(op))))
	}
}

func (m *MethodWriter) VisitVarInsn(op, varIndex int) {
	if opFormat(op) != fmtVar {
		m.fail(errors.InvalidInput(errors.PhaseEncode, m.path(), fmt.Sprintf("%s is not a local variable instruction", OpcodeName(op))))
		return
	}
	switch {
	case varIndex < 4 && op != OpRet:
		if op < OpIstore {
			m.code.u1(OpIload0 + 4*(op-OpIload) + varIndex)
		} else {
			m.code.u1(OpIstore0 + 4*(op-OpIstore) + varIndex)
		}
	case varIndex > 255:
		m.code.u1(OpWide)
		m.code.op2(op, varIndex)
	default:
		m.code.op1(op, varIndex)
	}
}

func (m *MethodWriter) VisitTypeInsn(op int, typ string) {
	m.code.op2(op, int(m.class(typ)))
}

func (m *MethodWriter) VisitFieldInsn(op int, owner, name, desc string) {
	idx, err := m.symbols().AddFieldRef(owner, name, desc)
	if err != nil {
		m.fail(err)
	}
	m.code.op2(op, int(idx))
}

func (m *MethodWriter) VisitMethodInsn(op int, owner, name, desc string, isInterface bool) {
	idx, err := m.symbols().AddMethodRef(owner, name, desc, isInterface)
	if err != nil {
		m.fail(err)
	}
	m.code.op2(op, int(idx))
	if op == OpInvokeinterface {
		m.code.u1(argSlots(desc) + 1)
		m.code.u1(0)
	}
}

func (m *MethodWriter) VisitInvokeDynamicInsn(name, desc string, bsm Handle, args ...any) {
	if !m.requireVersion(V1_7, "invokedynamic") {
		return
	}
	idx, err := m.symbols().AddInvokeDynamic(name, desc, bsm, args...)
	if err != nil {
		m.fail(err)
	}
	m.code.op2(OpInvokedynamic, int(idx))
	m.code.u2(0)
}

func (m *MethodWriter) VisitJumpInsn(op int, label *Label) {
	if f := opFormat(op); f != fmtJump && f != fmtJumpW {
		m.fail(errors.InvalidInput(errors.PhaseEncode, m.path(), fmt.Sprintf("%s is not a jump instruction", OpcodeName(op))))
		return
	}
	m.code.addJump(op, label)
}

func (m *MethodWriter) VisitLabel(label *Label) {
	if _, err := m.code.place(label); err != nil {
		m.fail(errors.New(errors.PhaseResolve, errors.KindInvalidInput).Path(m.path()...).Cause(err).Build())
	}
}

func (m *MethodWriter) VisitLdcInsn(value any) {
	switch v := value.(type) {
	case ClassConst:
		if !m.requireVersion(V1_5, "ldc of a class constant") {
			return
		}
	case Handle, MethodTypeConst:
		if !m.requireVersion(V1_7, "ldc of a method handle or method type") {
			return
		}
	case ConstantDynamic:
		if !m.requireVersion(V11, "ldc of a dynamic constant") {
			return
		}
		if v.Desc == "J" || v.Desc == "D" {
			m.ldcWide(value)
			return
		}
	case int64, float64:
		m.ldcWide(value)
		return
	}
	idx, err := m.symbols().AddConstant(value)
	if err != nil {
		m.fail(err)
		return
	}
	if idx > 255 {
		m.code.op2(OpLdcW, int(idx))
	} else {
		m.code.op1(OpLdc, int(idx))
	}
}

func (m *MethodWriter) ldcWide(value any) {
	idx, err := m.symbols().AddConstant(value)
	if err != nil {
		m.fail(err)
		return
	}
	m.code.op2(OpLdc2W, int(idx))
}

func (m *MethodWriter) VisitIincInsn(varIndex, increment int) {
	if varIndex > 255 || increment < -128 || increment > 127 {
		m.code.u1(OpWide)
		m.code.op2(OpIinc, varIndex)
		m.code.u2(increment)
		return
	}
	m.code.u1(OpIinc)
	m.code.u1(varIndex)
	m.code.u1(increment)
}

func (m *MethodWriter) VisitTableSwitchInsn(min, max int, dflt *Label, labels ...*Label) {
	if max < min || len(labels) != max-min+1 {
		m.fail(errors.InvalidInput(errors.PhaseEncode, m.path(),
			fmt.Sprintf("tableswitch [%d, %d] with %d labels", min, max, len(labels))))
		return
	}
	m.code.addTableSwitch(min, dflt, labels)
}

func (m *MethodWriter) VisitLookupSwitchInsn(dflt *Label, keys []int, labels []*Label) {
	if len(keys) != len(labels) {
		m.fail(errors.InvalidInput(errors.PhaseEncode, m.path(),
			fmt.Sprintf("lookupswitch with %d keys and %d labels", len(keys), len(labels))))
		return
	}
	order := make([]int, len(keys))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return keys[order[a]] < keys[order[b]] })
	sk := make([]int32, len(keys))
	sl := make([]*Label, len(keys))
	for i, j := range order {
		sk[i], sl[i] = int32(keys[j]), labels[j]
	}
	m.code.addLookupSwitch(dflt, sk, sl)
}

func (m *MethodWriter) VisitMultiANewArrayInsn(desc string, dims int) {
	m.code.op2(OpMultianewarray, int(m.class(desc)))
	m.code.u1(dims)
}

func (m *MethodWriter) VisitTryCatchBlock(start, end, handler *Label, typ string) {
	h := pendingHandler{
		start:   m.code.handle(start),
		end:     m.code.handle(end),
		handler: m.code.handle(handler),
		typ:     typ,
	}
	if typ != "" {
		h.typeIdx = m.class(typ)
	}
	m.handlers = append(m.handlers, h)
}

func (m *MethodWriter) VisitLocalVariable(name, desc, signature string, start, end *Label, index int) {
	e := localEntry{
		name:  m.utf8(name),
		desc:  m.utf8(desc),
		start: m.code.handle(start),
		end:   m.code.handle(end),
		index: index,
	}
	if signature != "" {
		e.sig, e.hasSig = m.utf8(signature), true
	}
	m.locals = append(m.locals, e)
}

func (m *MethodWriter) VisitLineNumber(line int, start *Label) {
	m.lines = append(m.lines, lineEntry{line: line, start: m.code.handle(start)})
}

func (m *MethodWriter) VisitMaxs(maxStack, maxLocals int) {
	m.maxStack, m.maxLocals = maxStack, maxLocals
}

func (m *MethodWriter) VisitEnd() {}

// finish returns the method_info structure.
func (m *MethodWriter) finish() ([]byte, error) {
	if m.raw != nil {
		return m.raw, nil
	}
	var ferr error
	fail := func(err error) {
		if ferr == nil {
			ferr = errors.WithPath(err, m.path()...)
		}
	}
	attrs := newAttrList(m.symbols(), fail)
	if m.hasCode {
		body, err := m.codeAttribute()
		if err != nil {
			return nil, errors.WithPath(err, m.path()...)
		}
		attrs.add("Code", body)
	}
	if len(m.exceptions) > 0 {
		w := bin.NewWriter()
		w.U2(uint16(len(m.exceptions)))
		for _, e := range m.exceptions {
			w.U2(m.class(e))
		}
		attrs.add("Exceptions", w.Bytes())
	}
	if m.signature != "" {
		attrs.addU2("Signature", m.utf8(m.signature))
	}
	access := m.writeCommonFlags(attrs, m.access)
	if len(m.parameters) > 0 {
		w := bin.NewWriter()
		w.U1(uint8(len(m.parameters)))
		for _, p := range m.parameters {
			w.U2(p.name)
			w.U2(uint16(p.access))
		}
		attrs.add("MethodParameters", w.Bytes())
	}
	m.annotations.write(attrs)
	if m.annotationDefault != nil {
		attrs.add("AnnotationDefault", m.annotationDefault.Bytes())
	}
	if len(m.paramAnnotations) > 0 {
		params, _, _ := parseMethodDesc(m.desc)
		writeParameterAnnotations(attrs, m.paramAnnotations, len(params))
	}
	attrs.addRaw(m.attrs)
	if ferr != nil {
		return nil, ferr
	}

	w := bin.NewWriter()
	w.U2(uint16(access))
	w.U2(m.utf8(m.name))
	w.U2(m.utf8(m.desc))
	attrs.writeTo(w)
	return w.Bytes(), nil
}

// writeCommonFlags adds Deprecated and Synthetic attributes and returns the
// access flags to store.
func (m *MethodWriter) writeCommonFlags(attrs *attrList, access int) int {
	return commonFlags(attrs, m.cw.version, access)
}

func commonFlags(attrs *attrList, version, access int) int {
	if access&AccDeprecated != 0 {
		attrs.add("Deprecated", nil)
	}
	if access&AccSynthetic != 0 && majorVersion(version) < V1_5 {
		attrs.add("Synthetic", nil)
		access &^= AccSynthetic
	}
	return access & 0xFFFF
}

// codeAttribute resolves labels, computes frames and maxs as configured,
// and returns the Code attribute body.
func (m *MethodWriter) codeAttribute() ([]byte, error) {
	path := m.path()
	code, err := m.code.resolve()
	if err != nil {
		return nil, errors.UnresolvedLabel(path, err.Error())
	}
	if m.code.promotions > 0 {
		m.cw.log.Debug("promoted jumps to wide form",
			zap.String("class", m.cw.name),
			zap.String("method", m.name+m.desc),
			zap.Int("count", m.code.promotions))
	}
	if len(code) > MaxCodeLength {
		return nil, errors.MethodTooLarge(m.cw.name, m.name, m.desc, len(code))
	}

	var handlers []handlerRange
	for _, h := range m.handlers {
		r := handlerRange{
			start:   m.code.offset(h.start),
			end:     m.code.offset(h.end),
			handler: m.code.offset(h.handler),
			typeIdx: h.typeIdx,
			typ:     h.typ,
		}
		if r.start < r.end {
			handlers = append(handlers, r)
		}
	}

	opts := m.cw.opts
	needFrames := majorVersion(m.cw.version) >= V1_6
	compute := opts.ComputeFrames && needFrames
	if !compute && needFrames && len(m.frames) > 0 && m.code.promotedCond {
		m.cw.log.Debug("recomputing frames after conditional jump promotion",
			zap.String("class", m.cw.name),
			zap.String("method", m.name+m.desc))
		compute = true
	}

	maxStack, maxLocals := m.maxStack, m.maxLocals
	var stackMap []byte
	if compute {
		res, err := computeFrames(&frameContext{
			owner:     m.cw.name,
			access:    m.access,
			name:      m.name,
			desc:      m.desc,
			code:      code,
			handlers:  handlers,
			symbols:   m.symbols(),
			hierarchy: opts.Hierarchy,
			policy:    opts.DeadCode,
			log:       m.cw.log,
		})
		if err != nil {
			return nil, err
		}
		code, handlers = res.code, res.handlers
		maxStack, maxLocals = res.maxStack, res.maxLocals
		if len(res.frames) > 0 {
			smw := newStackMapWriter(m.symbols(), res.initial)
			for _, f := range res.frames {
				if err := smw.add(f); err != nil {
					return nil, err
				}
			}
			stackMap = smw.bytes()
		}
	} else {
		if opts.ComputeMaxs || opts.ComputeFrames {
			maxStack, maxLocals, err = computeMaxs(m.cw.name, m.name, m.desc, m.access, code, handlers, m.symbols())
			if err != nil {
				return nil, err
			}
		}
		if needFrames && len(m.frames) > 0 {
			if stackMap, err = m.userStackMap(); err != nil {
				return nil, err
			}
		}
	}
	if maxStack > MaxLocalsOrStack {
		return nil, errors.CapacityExceeded(errors.PhaseEncode, path, "operand stack slots", MaxLocalsOrStack)
	}
	if maxLocals > MaxLocalsOrStack {
		return nil, errors.CapacityExceeded(errors.PhaseEncode, path, "local variable slots", MaxLocalsOrStack)
	}

	var ferr error
	attrs := newAttrList(m.symbols(), func(err error) {
		if ferr == nil {
			ferr = err
		}
	})
	if len(m.lines) > 0 {
		w := bin.NewWriter()
		w.U2(uint16(len(m.lines)))
		for _, l := range m.lines {
			w.U2(uint16(m.code.offset(l.start)))
			w.U2(uint16(l.line))
		}
		attrs.add("LineNumberTable", w.Bytes())
	}
	if len(m.locals) > 0 {
		lvt, lvtt := bin.NewWriter(), bin.NewWriter()
		typed := 0
		lvt.U2(uint16(len(m.locals)))
		lvtt.U2(0)
		for _, l := range m.locals {
			start := m.code.offset(l.start)
			length := m.code.offset(l.end) - start
			lvt.U2(uint16(start))
			lvt.U2(uint16(length))
			lvt.U2(l.name)
			lvt.U2(l.desc)
			lvt.U2(uint16(l.index))
			if l.hasSig {
				typed++
				lvtt.U2(uint16(start))
				lvtt.U2(uint16(length))
				lvtt.U2(l.name)
				lvtt.U2(l.sig)
				lvtt.U2(uint16(l.index))
			}
		}
		attrs.add("LocalVariableTable", lvt.Bytes())
		if typed > 0 {
			lvtt.PatchU2(0, uint16(typed))
			attrs.add("LocalVariableTypeTable", lvtt.Bytes())
		}
	}
	if stackMap != nil {
		attrs.add("StackMapTable", stackMap)
	}
	if ferr != nil {
		return nil, ferr
	}

	w := bin.NewWriter()
	w.U2(uint16(maxStack))
	w.U2(uint16(maxLocals))
	w.U4(uint32(len(code)))
	w.WriteBytes(code)
	w.U2(uint16(len(handlers)))
	for _, h := range handlers {
		w.U2(uint16(h.start))
		w.U2(uint16(h.end))
		w.U2(uint16(h.handler))
		w.U2(h.typeIdx)
	}
	attrs.writeTo(w)
	return w.Bytes(), nil
}

// userStackMap encodes the frames passed to VisitFrame.
func (m *MethodWriter) userStackMap() ([]byte, error) {
	init, err := initialLocals(m.cw.name, m.access, m.name, m.desc)
	if err != nil {
		return nil, errors.InvalidInput(errors.PhaseFrames, m.path(), err.Error())
	}
	smw := newStackMapWriter(m.symbols(), compactTypes(init, true))
	last := -1
	for _, pf := range m.frames {
		off := m.code.offset(pf.at)
		if off == last {
			continue
		}
		if off < last {
			return nil, errors.InvalidInput(errors.PhaseFrames, m.path(), fmt.Sprintf("frame at offset %d follows frame at %d", off, last))
		}
		last = off
		locals, stack := m.convertTypes(pf.frame.Locals), m.convertTypes(pf.frame.Stack)
		if pf.frame.Kind == FNew {
			err = smw.add(frameRecord{off: off, locals: locals, stack: stack})
		} else {
			err = smw.addRaw(pf.frame.Kind, off, locals, stack, pf.frame.Chopped)
		}
		if err != nil {
			return nil, err
		}
	}
	return smw.bytes(), nil
}

func (m *MethodWriter) convertTypes(ts []VType) []vtype {
	out := make([]vtype, len(ts))
	for i, t := range ts {
		switch t.Tag {
		case ItemObject:
			out[i] = objType(t.Class)
		case ItemUninitialized:
			out[i] = uninitType(m.code.offset(m.code.handle(t.Label)))
		default:
			out[i] = vtype{tag: uint8(t.Tag)}
		}
	}
	return out
}
