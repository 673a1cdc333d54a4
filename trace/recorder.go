// Package trace records class file events as text so they can be printed,
// stored and compared.
//
// A Recorder is a classfile.ClassVisitor. Every event becomes an Event
// whose Op is the visitor method name and whose Args are the formatted
// arguments. Labels are named L0, L1, ... in order of first use within each
// method, so two traces of the same class compare equal regardless of which
// Label values were used to produce them.
package trace

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/classkit/classfile"
)

// Event is one recorded visitor call.
type Event struct {
	Op   string   `cbor:"1,keyasint"`
	Args []string `cbor:"2,keyasint,omitempty"`
}

func (e Event) String() string {
	if len(e.Args) == 0 {
		return e.Op
	}
	return e.Op + " " + strings.Join(e.Args, " ")
}

// Recorder collects the events of one class.
type Recorder struct {
	Events []Event
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) add(op string, args ...string) {
	r.Events = append(r.Events, Event{Op: op, Args: args})
}

func (r *Recorder) Visit(version, access int, name, signature, superName string, interfaces []string) {
	r.add("Visit", versionString(version), hex(access), name, signature, superName, strings.Join(interfaces, ","))
}

func (r *Recorder) VisitSource(source, debug string) {
	r.add("VisitSource", source, strconv.Quote(debug))
}

func (r *Recorder) VisitNestHost(host string) {
	r.add("VisitNestHost", host)
}

func (r *Recorder) VisitOuterClass(owner, name, desc string) {
	r.add("VisitOuterClass", owner, name, desc)
}

func (r *Recorder) VisitAnnotation(desc string, visible bool) classfile.AnnotationVisitor {
	r.add("VisitAnnotation", desc, strconv.FormatBool(visible))
	return &annotationRecorder{r: r}
}

func (r *Recorder) VisitAttribute(attr classfile.Attribute) {
	r.add("VisitAttribute", attr.Name, fmt.Sprintf("%x", attr.Data))
}

func (r *Recorder) VisitNestMember(member string) {
	r.add("VisitNestMember", member)
}

func (r *Recorder) VisitPermittedSubclass(subclass string) {
	r.add("VisitPermittedSubclass", subclass)
}

func (r *Recorder) VisitInnerClass(name, outerName, innerName string, access int) {
	r.add("VisitInnerClass", name, outerName, innerName, hex(access))
}

func (r *Recorder) VisitField(access int, name, desc, signature string, value any) classfile.FieldVisitor {
	args := []string{hex(access), name, desc, signature}
	if value != nil {
		args = append(args, formatValue(value))
	}
	r.add("VisitField", args...)
	return &fieldRecorder{r: r}
}

func (r *Recorder) VisitMethod(access int, name, desc, signature string, exceptions []string) classfile.MethodVisitor {
	r.add("VisitMethod", hex(access), name, desc, signature, strings.Join(exceptions, ","))
	return &methodRecorder{r: r, labels: make(map[*classfile.Label]string)}
}

func (r *Recorder) VisitEnd() {
	r.add("VisitEnd")
}

type fieldRecorder struct {
	r *Recorder
}

func (f *fieldRecorder) VisitAnnotation(desc string, visible bool) classfile.AnnotationVisitor {
	f.r.add("VisitAnnotation", desc, strconv.FormatBool(visible))
	return &annotationRecorder{r: f.r}
}

func (f *fieldRecorder) VisitAttribute(attr classfile.Attribute) {
	f.r.add("VisitAttribute", attr.Name, fmt.Sprintf("%x", attr.Data))
}

func (f *fieldRecorder) VisitEnd() {
	f.r.add("VisitEnd")
}

type methodRecorder struct {
	r      *Recorder
	labels map[*classfile.Label]string
}

// label names l by first use.
func (m *methodRecorder) label(l *classfile.Label) string {
	if l == nil {
		return "<nil>"
	}
	if s, ok := m.labels[l]; ok {
		return s
	}
	s := "L" + strconv.Itoa(len(m.labels))
	m.labels[l] = s
	return s
}

func (m *methodRecorder) add(op string, args ...string) {
	m.r.add(op, args...)
}

func (m *methodRecorder) VisitParameter(name string, access int) {
	m.add("VisitParameter", name, hex(access))
}

func (m *methodRecorder) VisitAnnotationDefault() classfile.AnnotationVisitor {
	m.add("VisitAnnotationDefault")
	return &annotationRecorder{r: m.r}
}

func (m *methodRecorder) VisitAnnotation(desc string, visible bool) classfile.AnnotationVisitor {
	m.add("VisitAnnotation", desc, strconv.FormatBool(visible))
	return &annotationRecorder{r: m.r}
}

func (m *methodRecorder) VisitParameterAnnotation(param int, desc string, visible bool) classfile.AnnotationVisitor {
	m.add("VisitParameterAnnotation", strconv.Itoa(param), desc, strconv.FormatBool(visible))
	return &annotationRecorder{r: m.r}
}

func (m *methodRecorder) VisitAttribute(attr classfile.Attribute) {
	m.add("VisitAttribute", attr.Name, fmt.Sprintf("%x", attr.Data))
}

func (m *methodRecorder) VisitCode() {
	m.add("VisitCode")
}

func (m *methodRecorder) VisitFrame(frame classfile.Frame) {
	args := []string{frameKind(frame.Kind)}
	if frame.Kind == classfile.FChop {
		args = append(args, strconv.Itoa(frame.Chopped))
	}
	args = append(args, m.types(frame.Locals), m.types(frame.Stack))
	m.add("VisitFrame", args...)
}

func (m *methodRecorder) types(ts []classfile.VType) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		if t.Tag == classfile.ItemUninitialized {
			parts[i] = "uninitialized(" + m.label(t.Label) + ")"
			continue
		}
		parts[i] = t.String()
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (m *methodRecorder) VisitInsn(op int) {
	m.add("VisitInsn", classfile.OpcodeName(op))
}

func (m *methodRecorder) VisitIntInsn(op, operand int) {
	m.add("VisitIntInsn", classfile.OpcodeName(op), strconv.Itoa(operand))
}

func (m *methodRecorder) VisitVarInsn(op, varIndex int) {
	m.add("VisitVarInsn", classfile.OpcodeName(op), strconv.Itoa(varIndex))
}

func (m *methodRecorder) VisitTypeInsn(op int, typ string) {
	m.add("VisitTypeInsn", classfile.OpcodeName(op), typ)
}

func (m *methodRecorder) VisitFieldInsn(op int, owner, name, desc string) {
	m.add("VisitFieldInsn", classfile.OpcodeName(op), owner, name, desc)
}

func (m *methodRecorder) VisitMethodInsn(op int, owner, name, desc string, isInterface bool) {
	m.add("VisitMethodInsn", classfile.OpcodeName(op), owner, name, desc, strconv.FormatBool(isInterface))
}

func (m *methodRecorder) VisitInvokeDynamicInsn(name, desc string, bsm classfile.Handle, args ...any) {
	out := []string{name, desc, bsm.String()}
	for _, a := range args {
		out = append(out, formatValue(a))
	}
	m.add("VisitInvokeDynamicInsn", out...)
}

func (m *methodRecorder) VisitJumpInsn(op int, label *classfile.Label) {
	m.add("VisitJumpInsn", classfile.OpcodeName(op), m.label(label))
}

func (m *methodRecorder) VisitLabel(label *classfile.Label) {
	m.add("VisitLabel", m.label(label))
}

func (m *methodRecorder) VisitLdcInsn(value any) {
	m.add("VisitLdcInsn", formatValue(value))
}

func (m *methodRecorder) VisitIincInsn(varIndex, increment int) {
	m.add("VisitIincInsn", strconv.Itoa(varIndex), strconv.Itoa(increment))
}

func (m *methodRecorder) VisitTableSwitchInsn(min, max int, dflt *classfile.Label, labels ...*classfile.Label) {
	args := []string{strconv.Itoa(min), strconv.Itoa(max), m.label(dflt)}
	for _, l := range labels {
		args = append(args, m.label(l))
	}
	m.add("VisitTableSwitchInsn", args...)
}

func (m *methodRecorder) VisitLookupSwitchInsn(dflt *classfile.Label, keys []int, labels []*classfile.Label) {
	args := []string{m.label(dflt)}
	for i, l := range labels {
		args = append(args, strconv.Itoa(keys[i])+":"+m.label(l))
	}
	m.add("VisitLookupSwitchInsn", args...)
}

func (m *methodRecorder) VisitMultiANewArrayInsn(desc string, dims int) {
	m.add("VisitMultiANewArrayInsn", desc, strconv.Itoa(dims))
}

func (m *methodRecorder) VisitTryCatchBlock(start, end, handler *classfile.Label, typ string) {
	m.add("VisitTryCatchBlock", m.label(start), m.label(end), m.label(handler), typ)
}

func (m *methodRecorder) VisitLocalVariable(name, desc, signature string, start, end *classfile.Label, index int) {
	m.add("VisitLocalVariable", name, desc, signature, m.label(start), m.label(end), strconv.Itoa(index))
}

func (m *methodRecorder) VisitLineNumber(line int, start *classfile.Label) {
	m.add("VisitLineNumber", strconv.Itoa(line), m.label(start))
}

func (m *methodRecorder) VisitMaxs(maxStack, maxLocals int) {
	m.add("VisitMaxs", strconv.Itoa(maxStack), strconv.Itoa(maxLocals))
}

func (m *methodRecorder) VisitEnd() {
	m.add("VisitEnd")
}

type annotationRecorder struct {
	r *Recorder
}

func (a *annotationRecorder) Visit(name string, value any) {
	a.r.add("Visit", name, formatValue(value))
}

func (a *annotationRecorder) VisitEnum(name, desc, value string) {
	a.r.add("VisitEnum", name, desc, value)
}

func (a *annotationRecorder) VisitAnnotation(name, desc string) classfile.AnnotationVisitor {
	a.r.add("VisitAnnotation", name, desc)
	return &annotationRecorder{r: a.r}
}

func (a *annotationRecorder) VisitArray(name string) classfile.AnnotationVisitor {
	a.r.add("VisitArray", name)
	return &annotationRecorder{r: a.r}
}

func (a *annotationRecorder) VisitEnd() {
	a.r.add("VisitEnd")
}

func hex(v int) string {
	return "0x" + strconv.FormatInt(int64(v), 16)
}

func versionString(v int) string {
	return strconv.Itoa(v&0xFFFF) + "." + strconv.Itoa(v>>16)
}

func frameKind(k int) string {
	switch k {
	case classfile.FNew:
		return "new"
	case classfile.FFull:
		return "full"
	case classfile.FAppend:
		return "append"
	case classfile.FChop:
		return "chop"
	case classfile.FSame:
		return "same"
	case classfile.FSame1:
		return "same1"
	}
	return strconv.Itoa(k)
}

// formatValue renders a constant with its Go type so that, for example,
// int32(1) and int64(1) stay distinct.
func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x)
	case classfile.ClassConst:
		return "class:" + string(x)
	case classfile.MethodTypeConst:
		return "methodtype:" + string(x)
	case classfile.Handle:
		return "handle:" + x.String()
	case classfile.ConstantDynamic:
		args := make([]string, len(x.Args))
		for i, a := range x.Args {
			args[i] = formatValue(a)
		}
		return fmt.Sprintf("condy:%s:%s:%s[%s]", x.Name, x.Desc, x.Bootstrap, strings.Join(args, ","))
	case float32:
		return "float32:" + strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return "float64:" + strconv.FormatFloat(x, 'g', -1, 64)
	}
	return fmt.Sprintf("%T:%v", v, v)
}
