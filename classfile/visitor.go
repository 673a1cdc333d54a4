package classfile

// ClassVisitor receives the structural events of a class in file order.
// Methods returning a nested visitor may return nil to skip that member.
type ClassVisitor interface {
	Visit(version, access int, name, signature, superName string, interfaces []string)
	VisitSource(source, debug string)
	VisitNestHost(host string)
	VisitOuterClass(owner, name, desc string)
	VisitAnnotation(desc string, visible bool) AnnotationVisitor
	VisitAttribute(attr Attribute)
	VisitNestMember(member string)
	VisitPermittedSubclass(subclass string)
	VisitInnerClass(name, outerName, innerName string, access int)
	VisitField(access int, name, desc, signature string, value any) FieldVisitor
	VisitMethod(access int, name, desc, signature string, exceptions []string) MethodVisitor
	VisitEnd()
}

// FieldVisitor receives the events of a field.
type FieldVisitor interface {
	VisitAnnotation(desc string, visible bool) AnnotationVisitor
	VisitAttribute(attr Attribute)
	VisitEnd()
}

// MethodVisitor receives the events of a method. Code events arrive between
// VisitCode and VisitMaxs, instructions in offset order.
type MethodVisitor interface {
	VisitParameter(name string, access int)
	VisitAnnotationDefault() AnnotationVisitor
	VisitAnnotation(desc string, visible bool) AnnotationVisitor
	VisitParameterAnnotation(param int, desc string, visible bool) AnnotationVisitor
	VisitAttribute(attr Attribute)
	VisitCode()
	VisitFrame(frame Frame)
	VisitInsn(op int)
	VisitIntInsn(op, operand int)
	VisitVarInsn(op, varIndex int)
	VisitTypeInsn(op int, typ string)
	VisitFieldInsn(op int, owner, name, desc string)
	VisitMethodInsn(op int, owner, name, desc string, isInterface bool)
	VisitInvokeDynamicInsn(name, desc string, bsm Handle, args ...any)
	VisitJumpInsn(op int, label *Label)
	VisitLabel(label *Label)
	VisitLdcInsn(value any)
	VisitIincInsn(varIndex, increment int)
	VisitTableSwitchInsn(min, max int, dflt *Label, labels ...*Label)
	VisitLookupSwitchInsn(dflt *Label, keys []int, labels []*Label)
	VisitMultiANewArrayInsn(desc string, dims int)
	VisitTryCatchBlock(start, end, handler *Label, typ string)
	VisitLocalVariable(name, desc, signature string, start, end *Label, index int)
	VisitLineNumber(line int, start *Label)
	VisitMaxs(maxStack, maxLocals int)
	VisitEnd()
}

// AnnotationVisitor receives annotation element values.
// Primitive values arrive as bool, int8, uint16, int16, int32, int64,
// float32 or float64; strings as string; class values as a ClassConst
// holding a field descriptor such as "Ljava/lang/String;" or "I".
type AnnotationVisitor interface {
	Visit(name string, value any)
	VisitEnum(name, desc, value string)
	VisitAnnotation(name, desc string) AnnotationVisitor
	VisitArray(name string) AnnotationVisitor
	VisitEnd()
}

// ClassAdapter forwards every event to Next. Embed it and override the
// events a transformation cares about. A nil Next drops events.
type ClassAdapter struct {
	Next ClassVisitor
}

func (a *ClassAdapter) Visit(version, access int, name, signature, superName string, interfaces []string) {
	if a.Next != nil {
		a.Next.Visit(version, access, name, signature, superName, interfaces)
	}
}

func (a *ClassAdapter) VisitSource(source, debug string) {
	if a.Next != nil {
		a.Next.VisitSource(source, debug)
	}
}

func (a *ClassAdapter) VisitNestHost(host string) {
	if a.Next != nil {
		a.Next.VisitNestHost(host)
	}
}

func (a *ClassAdapter) VisitOuterClass(owner, name, desc string) {
	if a.Next != nil {
		a.Next.VisitOuterClass(owner, name, desc)
	}
}

func (a *ClassAdapter) VisitAnnotation(desc string, visible bool) AnnotationVisitor {
	if a.Next != nil {
		return a.Next.VisitAnnotation(desc, visible)
	}
	return nil
}

func (a *ClassAdapter) VisitAttribute(attr Attribute) {
	if a.Next != nil {
		a.Next.VisitAttribute(attr)
	}
}

func (a *ClassAdapter) VisitNestMember(member string) {
	if a.Next != nil {
		a.Next.VisitNestMember(member)
	}
}

func (a *ClassAdapter) VisitPermittedSubclass(subclass string) {
	if a.Next != nil {
		a.Next.VisitPermittedSubclass(subclass)
	}
}

func (a *ClassAdapter) VisitInnerClass(name, outerName, innerName string, access int) {
	if a.Next != nil {
		a.Next.VisitInnerClass(name, outerName, innerName, access)
	}
}

func (a *ClassAdapter) VisitField(access int, name, desc, signature string, value any) FieldVisitor {
	if a.Next != nil {
		return a.Next.VisitField(access, name, desc, signature, value)
	}
	return nil
}

func (a *ClassAdapter) VisitMethod(access int, name, desc, signature string, exceptions []string) MethodVisitor {
	if a.Next != nil {
		return a.Next.VisitMethod(access, name, desc, signature, exceptions)
	}
	return nil
}

func (a *ClassAdapter) VisitEnd() {
	if a.Next != nil {
		a.Next.VisitEnd()
	}
}

// FieldAdapter forwards every event to Next.
type FieldAdapter struct {
	Next FieldVisitor
}

func (a *FieldAdapter) VisitAnnotation(desc string, visible bool) AnnotationVisitor {
	if a.Next != nil {
		return a.Next.VisitAnnotation(desc, visible)
	}
	return nil
}

func (a *FieldAdapter) VisitAttribute(attr Attribute) {
	if a.Next != nil {
		a.Next.VisitAttribute(attr)
	}
}

func (a *FieldAdapter) VisitEnd() {
	if a.Next != nil {
		a.Next.VisitEnd()
	}
}

// MethodAdapter forwards every event to Next.
type MethodAdapter struct {
	Next MethodVisitor
}

func (a *MethodAdapter) VisitParameter(name string, access int) {
	if a.Next != nil {
		a.Next.VisitParameter(name, access)
	}
}

func (a *MethodAdapter) VisitAnnotationDefault() AnnotationVisitor {
	if a.Next != nil {
		return a.Next.VisitAnnotationDefault()
	}
	return nil
}

func (a *MethodAdapter) VisitAnnotation(desc string, visible bool) AnnotationVisitor {
	if a.Next != nil {
		return a.Next.VisitAnnotation(desc, visible)
	}
	return nil
}

func (a *MethodAdapter) VisitParameterAnnotation(param int, desc string, visible bool) AnnotationVisitor {
	if a.Next != nil {
		return a.Next.VisitParameterAnnotation(param, desc, visible)
	}
	return nil
}

func (a *MethodAdapter) VisitAttribute(attr Attribute) {
	if a.Next != nil {
		a.Next.VisitAttribute(attr)
	}
}

func (a *MethodAdapter) VisitCode() {
	if a.Next != nil {
		a.Next.VisitCode()
	}
}

func (a *MethodAdapter) VisitFrame(frame Frame) {
	if a.Next != nil {
		a.Next.VisitFrame(frame)
	}
}

func (a *MethodAdapter) VisitInsn(op int) {
	if a.Next != nil {
		a.Next.VisitInsn(op)
	}
}

func (a *MethodAdapter) VisitIntInsn(op, operand int) {
	if a.Next != nil {
		a.Next.VisitIntInsn(op, operand)
	}
}

func (a *MethodAdapter) VisitVarInsn(op, varIndex int) {
	if a.Next != nil {
		a.Next.VisitVarInsn(op, varIndex)
	}
}

func (a *MethodAdapter) VisitTypeInsn(op int, typ string) {
	if a.Next != nil {
		a.Next.VisitTypeInsn(op, typ)
	}
}

func (a *MethodAdapter) VisitFieldInsn(op int, owner, name, desc string) {
	if a.Next != nil {
		a.Next.VisitFieldInsn(op, owner, name, desc)
	}
}

func (a *MethodAdapter) VisitMethodInsn(op int, owner, name, desc string, isInterface bool) {
	if a.Next != nil {
		a.Next.VisitMethodInsn(op, owner, name, desc, isInterface)
	}
}

func (a *MethodAdapter) VisitInvokeDynamicInsn(name, desc string, bsm Handle, args ...any) {
	if a.Next != nil {
		a.Next.VisitInvokeDynamicInsn(name, desc, bsm, args...)
	}
}

func (a *MethodAdapter) VisitJumpInsn(op int, label *Label) {
	if a.Next != nil {
		a.Next.VisitJumpInsn(op, label)
	}
}

func (a *MethodAdapter) VisitLabel(label *Label) {
	if a.Next != nil {
		a.Next.VisitLabel(label)
	}
}

func (a *MethodAdapter) VisitLdcInsn(value any) {
	if a.Next != nil {
		a.Next.VisitLdcInsn(value)
	}
}

func (a *MethodAdapter) VisitIincInsn(varIndex, increment int) {
	if a.Next != nil {
		a.Next.VisitIincInsn(varIndex, increment)
	}
}

func (a *MethodAdapter) VisitTableSwitchInsn(min, max int, dflt *Label, labels ...*Label) {
	if a.Next != nil {
		a.Next.VisitTableSwitchInsn(min, max, dflt, labels...)
	}
}

func (a *MethodAdapter) VisitLookupSwitchInsn(dflt *Label, keys []int, labels []*Label) {
	if a.Next != nil {
		a.Next.VisitLookupSwitchInsn(dflt, keys, labels)
	}
}

func (a *MethodAdapter) VisitMultiANewArrayInsn(desc string, dims int) {
	if a.Next != nil {
		a.Next.VisitMultiANewArrayInsn(desc, dims)
	}
}

func (a *MethodAdapter) VisitTryCatchBlock(start, end, handler *Label, typ string) {
	if a.Next != nil {
		a.Next.VisitTryCatchBlock(start, end, handler, typ)
	}
}

func (a *MethodAdapter) VisitLocalVariable(name, desc, signature string, start, end *Label, index int) {
	if a.Next != nil {
		a.Next.VisitLocalVariable(name, desc, signature, start, end, index)
	}
}

func (a *MethodAdapter) VisitLineNumber(line int, start *Label) {
	if a.Next != nil {
		a.Next.VisitLineNumber(line, start)
	}
}

func (a *MethodAdapter) VisitMaxs(maxStack, maxLocals int) {
	if a.Next != nil {
		a.Next.VisitMaxs(maxStack, maxLocals)
	}
}

func (a *MethodAdapter) VisitEnd() {
	if a.Next != nil {
		a.Next.VisitEnd()
	}
}

// AnnotationAdapter forwards every event to Next.
type AnnotationAdapter struct {
	Next AnnotationVisitor
}

func (a *AnnotationAdapter) Visit(name string, value any) {
	if a.Next != nil {
		a.Next.Visit(name, value)
	}
}

func (a *AnnotationAdapter) VisitEnum(name, desc, value string) {
	if a.Next != nil {
		a.Next.VisitEnum(name, desc, value)
	}
}

func (a *AnnotationAdapter) VisitAnnotation(name, desc string) AnnotationVisitor {
	if a.Next != nil {
		return a.Next.VisitAnnotation(name, desc)
	}
	return nil
}

func (a *AnnotationAdapter) VisitArray(name string) AnnotationVisitor {
	if a.Next != nil {
		return a.Next.VisitArray(name)
	}
	return nil
}

func (a *AnnotationAdapter) VisitEnd() {
	if a.Next != nil {
		a.Next.VisitEnd()
	}
}
