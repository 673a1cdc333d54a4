package classfile

import (
	"go.uber.org/zap"

	bin "github.com/wippyai/classkit/classfile/internal/binary"
	"github.com/wippyai/classkit/errors"
)

// ClassWriter is a ClassVisitor that encodes the events it receives into a
// class file. Visit methods do not return errors; the first failure is kept
// and returned by Finish.
type ClassWriter struct {
	opts    WriterOptions
	log     *zap.Logger
	symbols *SymbolTable
	source  *ClassReader

	version    int
	access     int
	name       string
	signature  string
	superName  string
	interfaces []string

	sourceFile  string
	debugExt    string
	hasSource   bool
	nestHost    string
	outerOwner  string
	outerName   string
	outerDesc   string
	hasOuter    bool
	nestMembers []string
	permitted   []string
	inner       *bin.Writer
	innerCount  int
	innerSeen   map[string]bool

	annotations annotationSet
	attrs       []Attribute
	fields      []*FieldWriter
	methods     []*MethodWriter

	err error
}

// NewClassWriter creates a writer with an empty symbol table.
func NewClassWriter(opts WriterOptions) *ClassWriter {
	cw := &ClassWriter{opts: opts}
	cw.Reset()
	return cw
}

// NewClassWriterFrom creates a writer whose symbol table starts as a copy of
// the reader's constant pool and bootstrap methods, keeping their indices.
// Methods passed from cr to this writer without changes are copied as raw
// bytes unless maxs or frames are recomputed.
func NewClassWriterFrom(cr *ClassReader, opts WriterOptions) *ClassWriter {
	cw := NewClassWriter(opts)
	cw.symbols = cr.symbols.Clone()
	cw.source = cr
	return cw
}

// Reset discards all state so the writer can encode another class from an
// empty symbol table.
func (cw *ClassWriter) Reset() {
	opts := cw.opts
	*cw = ClassWriter{
		opts:      opts,
		log:       opts.Logger,
		symbols:   NewSymbolTable(),
		inner:     bin.NewWriter(),
		innerSeen: make(map[string]bool),
	}
	if cw.log == nil {
		cw.log = Logger()
	}
}

// Symbols returns the writer's symbol table.
func (cw *ClassWriter) Symbols() *SymbolTable {
	return cw.symbols
}

// Err returns the first error recorded so far.
func (cw *ClassWriter) Err() error {
	return cw.err
}

func (cw *ClassWriter) fail(err error) {
	if cw.err == nil && err != nil {
		cw.err = err
	}
}

func (cw *ClassWriter) classFail(err error) {
	cw.fail(errors.WithPath(err, cw.name))
}

func (cw *ClassWriter) Visit(version, access int, name, signature, superName string, interfaces []string) {
	if majorVersion(version) > MaxMajorVersion {
		cw.fail(errors.UnsupportedVersion(uint16(majorVersion(version)), uint16(version>>16)))
		return
	}
	cw.version, cw.access = version, access
	cw.name, cw.signature, cw.superName = name, signature, superName
	cw.interfaces = interfaces
}

func (cw *ClassWriter) VisitSource(source, debug string) {
	cw.sourceFile, cw.debugExt, cw.hasSource = source, debug, true
}

func (cw *ClassWriter) VisitNestHost(host string) {
	cw.nestHost = host
}

func (cw *ClassWriter) VisitOuterClass(owner, name, desc string) {
	cw.outerOwner, cw.outerName, cw.outerDesc, cw.hasOuter = owner, name, desc, true
}

func (cw *ClassWriter) VisitAnnotation(desc string, visible bool) AnnotationVisitor {
	return cw.annotations.add(cw.symbols, desc, visible, cw.classFail)
}

func (cw *ClassWriter) VisitAttribute(attr Attribute) {
	cw.attrs = append(cw.attrs, attr)
}

func (cw *ClassWriter) VisitNestMember(member string) {
	cw.nestMembers = append(cw.nestMembers, member)
}

func (cw *ClassWriter) VisitPermittedSubclass(sub string) {
	cw.permitted = append(cw.permitted, sub)
}

func (cw *ClassWriter) VisitInnerClass(name, outerName, innerName string, access int) {
	if cw.innerSeen[name] {
		return
	}
	cw.innerSeen[name] = true
	cw.inner.U2(cw.class(name))
	if outerName != "" {
		cw.inner.U2(cw.class(outerName))
	} else {
		cw.inner.U2(0)
	}
	if innerName != "" {
		cw.inner.U2(cw.utf8(innerName))
	} else {
		cw.inner.U2(0)
	}
	cw.inner.U2(uint16(access))
	cw.innerCount++
}

func (cw *ClassWriter) VisitField(access int, name, desc, signature string, value any) FieldVisitor {
	f := &FieldWriter{cw: cw, access: access, name: name, desc: desc, signature: signature, value: value}
	cw.fields = append(cw.fields, f)
	return f
}

func (cw *ClassWriter) VisitMethod(access int, name, desc, signature string, exceptions []string) MethodVisitor {
	m := newMethodWriter(cw, access, name, desc, signature, exceptions)
	cw.methods = append(cw.methods, m)
	return m
}

func (cw *ClassWriter) VisitEnd() {}

func (cw *ClassWriter) utf8(s string) uint16 {
	idx, err := cw.symbols.AddUTF8(s)
	if err != nil {
		cw.classFail(err)
	}
	return idx
}

func (cw *ClassWriter) class(name string) uint16 {
	idx, err := cw.symbols.AddClass(name)
	if err != nil {
		cw.classFail(err)
	}
	return idx
}

func (cw *ClassWriter) classList(names []string) []byte {
	w := bin.NewWriter()
	w.U2(uint16(len(names)))
	for _, n := range names {
		w.U2(cw.class(n))
	}
	return w.Bytes()
}

// canCopy reports whether a method read by cr can be copied byte for byte.
func (cw *ClassWriter) canCopy(cr *ClassReader) bool {
	return cw.source == cr && !cw.opts.ComputeMaxs && !cw.opts.ComputeFrames
}

// Finish encodes the class. Every method is resolved first so that all
// constants are interned before the constant pool is written.
func (cw *ClassWriter) Finish() ([]byte, error) {
	if cw.err != nil {
		return nil, cw.err
	}
	if cw.name == "" {
		return nil, errors.InvalidInput(errors.PhaseEncode, nil, "Visit was not called")
	}
	for _, c := range []struct {
		what  string
		count int
	}{
		{"interfaces", len(cw.interfaces)},
		{"fields", len(cw.fields)},
		{"methods", len(cw.methods)},
	} {
		if c.count > 0xFFFF {
			return nil, errors.ClassTooLarge(cw.name, c.what, c.count)
		}
	}

	thisIdx := cw.class(cw.name)
	var superIdx uint16
	if cw.superName != "" {
		superIdx = cw.class(cw.superName)
	}
	ifaces := make([]uint16, len(cw.interfaces))
	for i, n := range cw.interfaces {
		ifaces[i] = cw.class(n)
	}

	fields := bin.NewWriter()
	for _, f := range cw.fields {
		f.write(fields)
	}
	if cw.err != nil {
		return nil, cw.err
	}
	methods := bin.NewWriter()
	for _, m := range cw.methods {
		b, err := m.finish()
		if err != nil {
			cw.fail(err)
			return nil, err
		}
		methods.WriteBytes(b)
	}
	if cw.err != nil {
		return nil, cw.err
	}

	attrs := newAttrList(cw.symbols, cw.classFail)
	if cw.hasSource {
		if cw.sourceFile != "" {
			attrs.addU2("SourceFile", cw.utf8(cw.sourceFile))
		}
		if cw.debugExt != "" {
			attrs.add("SourceDebugExtension", bin.EncodeModifiedUTF8(cw.debugExt))
		}
	}
	if cw.hasOuter {
		w := bin.NewWriter()
		w.U2(cw.class(cw.outerOwner))
		if cw.outerName != "" {
			nat, err := cw.symbols.AddNameAndType(cw.outerName, cw.outerDesc)
			if err != nil {
				cw.classFail(err)
			}
			w.U2(nat)
		} else {
			w.U2(0)
		}
		attrs.add("EnclosingMethod", w.Bytes())
	}
	if cw.nestHost != "" {
		attrs.addU2("NestHost", cw.class(cw.nestHost))
	}
	if len(cw.nestMembers) > 0 {
		attrs.add("NestMembers", cw.classList(cw.nestMembers))
	}
	if len(cw.permitted) > 0 {
		attrs.add("PermittedSubclasses", cw.classList(cw.permitted))
	}
	if cw.innerCount > 0 {
		w := bin.NewWriter()
		w.U2(uint16(cw.innerCount))
		w.WriteBytes(cw.inner.Bytes())
		attrs.add("InnerClasses", w.Bytes())
	}
	if cw.signature != "" {
		attrs.addU2("Signature", cw.utf8(cw.signature))
	}
	access := commonFlags(attrs, cw.version, cw.access)
	cw.annotations.write(attrs)
	attrs.addRaw(cw.attrs)
	if cw.symbols.BootstrapMethodCount() > 0 {
		attrs.add("BootstrapMethods", cw.symbols.writeBootstrapMethods())
	}
	if cw.err != nil {
		return nil, cw.err
	}

	out := bin.NewWriter()
	out.U4(Magic)
	out.U2(uint16(cw.version >> 16))
	out.U2(uint16(majorVersion(cw.version)))
	if err := cw.symbols.writePool(out); err != nil {
		return nil, errors.Wrap(errors.PhaseEncode, errors.KindInvalidInput, err, "constant pool")
	}
	out.U2(uint16(access))
	out.U2(thisIdx)
	out.U2(superIdx)
	out.U2(uint16(len(ifaces)))
	for _, i := range ifaces {
		out.U2(i)
	}
	out.U2(uint16(len(cw.fields)))
	out.WriteBytes(fields.Bytes())
	out.U2(uint16(len(cw.methods)))
	out.WriteBytes(methods.Bytes())
	attrs.writeTo(out)

	cw.log.Debug("encoded class",
		zap.String("class", cw.name),
		zap.Int("bytes", out.Len()),
		zap.Int("constants", cw.symbols.Count()),
		zap.Int("methods", len(cw.methods)))
	return append([]byte(nil), out.Bytes()...), nil
}
