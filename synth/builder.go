// Package synth builds small synthetic classes: constant holders, data
// classes with getters, and stub methods returning fixed values. It is
// used to produce test inputs for the codec and the tools built on it.
package synth

import (
	"fmt"

	"github.com/wippyai/classkit/classfile"
	"github.com/wippyai/classkit/errors"
)

// ClassBuilder accumulates the members of one synthetic class.
type ClassBuilder struct {
	name       string
	superName  string
	source     string
	interfaces []string
	fields     []synthField
	methods    []synthMethod
	version    int
	access     int
	noCtor     bool
}

type synthField struct {
	name   string
	desc   string
	value  any
	access int
	getter bool
}

type synthMethod struct {
	name   string
	desc   string
	value  any
	access int
}

// NewClassBuilder creates a builder for a public class extending
// java/lang/Object with a default constructor.
func NewClassBuilder(name string) *ClassBuilder {
	return &ClassBuilder{
		name:      name,
		superName: "java/lang/Object",
		version:   classfile.V17,
		access:    classfile.AccPublic | classfile.AccSuper,
	}
}

// SetVersion sets the class file version.
func (b *ClassBuilder) SetVersion(version int) {
	b.version = version
}

// SetAccess sets the class access flags.
func (b *ClassBuilder) SetAccess(access int) {
	b.access = access
}

// SetSuper sets the superclass.
func (b *ClassBuilder) SetSuper(name string) {
	b.superName = name
}

// SetSource sets the SourceFile attribute.
func (b *ClassBuilder) SetSource(file string) {
	b.source = file
}

// AddInterface adds an implemented interface.
func (b *ClassBuilder) AddInterface(name string) {
	b.interfaces = append(b.interfaces, name)
}

// OmitConstructor drops the default constructor.
func (b *ClassBuilder) OmitConstructor() {
	b.noCtor = true
}

// AddConstant adds a public static final field initialized by a
// ConstantValue attribute.
func (b *ClassBuilder) AddConstant(name, desc string, value any) {
	b.fields = append(b.fields, synthField{
		name:   name,
		desc:   desc,
		value:  value,
		access: classfile.AccPublic | classfile.AccStatic | classfile.AccFinal,
	})
}

// AddField adds a private instance field and, if getter is set, a public
// method get<Name> returning it.
func (b *ClassBuilder) AddField(name, desc string, getter bool) {
	b.fields = append(b.fields, synthField{
		name:   name,
		desc:   desc,
		access: classfile.AccPrivate,
		getter: getter,
	})
}

// AddMethod adds a public method that returns value. A nil value returns
// the zero value of the method's return type.
func (b *ClassBuilder) AddMethod(name, desc string, value any) {
	b.methods = append(b.methods, synthMethod{name: name, desc: desc, value: value, access: classfile.AccPublic})
}

// AddStaticMethod is AddMethod for a public static method.
func (b *ClassBuilder) AddStaticMethod(name, desc string, value any) {
	b.methods = append(b.methods, synthMethod{name: name, desc: desc, value: value, access: classfile.AccPublic | classfile.AccStatic})
}

// Build encodes the class with computed frames.
func (b *ClassBuilder) Build() ([]byte, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	cw := classfile.NewClassWriter(classfile.WriterOptions{ComputeFrames: true})
	cw.Visit(b.version, b.access, b.name, "", b.superName, b.interfaces)
	if b.source != "" {
		cw.VisitSource(b.source, "")
	}
	for _, f := range b.fields {
		cw.VisitField(f.access, f.name, f.desc, "", f.value).VisitEnd()
	}
	if !b.noCtor {
		mv := cw.VisitMethod(classfile.AccPublic, "<init>", "()V", "", nil)
		mv.VisitCode()
		mv.VisitVarInsn(classfile.OpAload, 0)
		mv.VisitMethodInsn(classfile.OpInvokespecial, b.superName, "<init>", "()V", false)
		mv.VisitInsn(classfile.OpReturn)
		mv.VisitMaxs(0, 0)
		mv.VisitEnd()
	}
	for _, f := range b.fields {
		if !f.getter {
			continue
		}
		mv := cw.VisitMethod(classfile.AccPublic, getterName(f.name), "()"+f.desc, "", nil)
		mv.VisitCode()
		mv.VisitVarInsn(classfile.OpAload, 0)
		mv.VisitFieldInsn(classfile.OpGetfield, b.name, f.name, f.desc)
		mv.VisitInsn(returnOp(f.desc))
		mv.VisitMaxs(0, 0)
		mv.VisitEnd()
	}
	for _, m := range b.methods {
		ret := returnType(m.desc)
		mv := cw.VisitMethod(m.access, m.name, m.desc, "", nil)
		mv.VisitCode()
		if ret != "V" {
			push(mv, ret, m.value)
		}
		mv.VisitInsn(returnOp(ret))
		mv.VisitMaxs(0, 0)
		mv.VisitEnd()
	}
	cw.VisitEnd()
	return cw.Finish()
}

func (b *ClassBuilder) validate() error {
	seen := make(map[string]bool)
	for _, f := range b.fields {
		if seen[f.name] {
			return errors.InvalidInput(errors.PhaseEncode, []string{b.name}, fmt.Sprintf("duplicate field %s", f.name))
		}
		seen[f.name] = true
	}
	for _, m := range b.methods {
		if returnType(m.desc) == "" {
			return errors.InvalidInput(errors.PhaseEncode, []string{b.name}, fmt.Sprintf("invalid method descriptor %q", m.desc))
		}
		if m.value != nil && returnType(m.desc) == "V" {
			return errors.InvalidInput(errors.PhaseEncode, []string{b.name, m.name + m.desc}, "void method with a value")
		}
	}
	return nil
}

func getterName(field string) string {
	if field == "" {
		return "get"
	}
	c := field[0]
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	return "get" + string(c) + field[1:]
}

// returnType returns the return descriptor of a method descriptor, or ""
// if desc is not one.
func returnType(desc string) string {
	if len(desc) < 3 || desc[0] != '(' {
		return ""
	}
	for i := 1; i < len(desc); i++ {
		if desc[i] == ')' {
			if i+1 == len(desc) {
				return ""
			}
			return desc[i+1:]
		}
	}
	return ""
}

func returnOp(desc string) int {
	switch desc[0] {
	case 'V':
		return classfile.OpReturn
	case 'J':
		return classfile.OpLreturn
	case 'F':
		return classfile.OpFreturn
	case 'D':
		return classfile.OpDreturn
	case 'L', '[':
		return classfile.OpAreturn
	}
	return classfile.OpIreturn
}

// push emits the instructions loading value as a desc-typed constant.
func push(mv classfile.MethodVisitor, desc string, value any) {
	switch desc[0] {
	case 'L', '[':
		if value == nil {
			mv.VisitInsn(classfile.OpAconstNull)
			return
		}
		mv.VisitLdcInsn(value)
	case 'J':
		v := toInt64(value)
		if v == 0 || v == 1 {
			mv.VisitInsn(classfile.OpLconst0 + int(v))
			return
		}
		mv.VisitLdcInsn(v)
	case 'F':
		mv.VisitLdcInsn(float32(toFloat64(value)))
	case 'D':
		mv.VisitLdcInsn(toFloat64(value))
	default:
		pushInt(mv, toInt64(value))
	}
}

func pushInt(mv classfile.MethodVisitor, v int64) {
	switch {
	case v >= -1 && v <= 5:
		mv.VisitInsn(classfile.OpIconst0 + int(v))
	case v >= -128 && v <= 127:
		mv.VisitIntInsn(classfile.OpBipush, int(v))
	case v >= -32768 && v <= 32767:
		mv.VisitIntInsn(classfile.OpSipush, int(v))
	default:
		mv.VisitLdcInsn(int32(v))
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case bool:
		if n {
			return 1
		}
	}
	return 0
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case float32:
		return float64(n)
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}
