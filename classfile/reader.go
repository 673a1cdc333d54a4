package classfile

import (
	"fmt"

	"go.uber.org/zap"

	bin "github.com/wippyai/classkit/classfile/internal/binary"
	"github.com/wippyai/classkit/errors"
)

// input reads big-endian values from one section and records the first
// failure in err. Reads after a failure return zero values.
type input struct {
	r       *bin.Reader
	base    int
	section string
	err     *error
}

func newInput(data []byte, base int, section string, err *error) *input {
	return &input{r: bin.NewReader(data), base: base, section: section, err: err}
}

func (in *input) check(err error) bool {
	if err == nil {
		return true
	}
	if *in.err == nil {
		*in.err = errors.New(errors.PhaseDecode, errors.KindMalformedInput).
			Offset(in.pos()).
			Detail("truncated %s", in.section).
			Cause(in.r.WrapError(in.section, err)).
			Build()
	}
	return false
}

func (in *input) failed() bool {
	return *in.err != nil
}

func (in *input) pos() int {
	return in.base + in.r.Position()
}

func (in *input) u1() int {
	v, err := in.r.ReadU1()
	if !in.check(err) {
		return 0
	}
	return int(v)
}

func (in *input) u2() int {
	v, err := in.r.ReadU2()
	if !in.check(err) {
		return 0
	}
	return int(v)
}

func (in *input) u4() uint32 {
	v, err := in.r.ReadU4()
	if !in.check(err) {
		return 0
	}
	return v
}

func (in *input) u8() uint64 {
	v, err := in.r.ReadU8()
	if !in.check(err) {
		return 0
	}
	return v
}

func (in *input) bytes(n int) []byte {
	v, err := in.r.ReadBytes(n)
	if !in.check(err) {
		return nil
	}
	return v
}

// rawAttr is an attribute located in the input.
type rawAttr struct {
	name string
	off  int // start of the body
	data []byte
}

// readAttrs reads an attributes_count and the attribute headers.
func (cr *ClassReader) readAttrs(in *input) []rawAttr {
	n := in.u2()
	var attrs []rawAttr
	for i := 0; i < n && !in.failed(); i++ {
		nameIdx := in.u2()
		length := int(in.u4())
		off := in.pos()
		data := in.bytes(length)
		if in.failed() {
			return nil
		}
		name, err := cr.symbols.UTF8(uint16(nameIdx))
		if err != nil {
			*in.err = errors.Wrap(errors.PhaseDecode, errors.KindMalformedInput, err, "attribute name")
			return nil
		}
		attrs = append(attrs, rawAttr{name: name, off: off, data: data})
	}
	return attrs
}

// member is a field_info or method_info located in the input.
type member struct {
	start, end int
	access     int
	name, desc string
	attrs      []rawAttr
}

// ClassReader decodes a class file and replays it as visitor events.
// The constant pool is parsed and validated when the reader is created.
type ClassReader struct {
	data    []byte
	symbols *SymbolTable
	log     *zap.Logger

	version    int
	access     int
	name       string
	superName  string
	interfaces []string

	fields  []member
	methods []member
	attrs   []rawAttr
}

// NewClassReader parses the header, constant pool and member layout of data.
// No visitor event can be emitted for input this rejects.
func NewClassReader(data []byte) (*ClassReader, error) {
	cr := &ClassReader{data: data, symbols: NewSymbolTable(), log: Logger()}
	var err error
	in := newInput(data, 0, "header", &err)

	if magic := in.u4(); err == nil && magic != Magic {
		return nil, errors.Malformed(errors.PhaseDecode, 0, "bad magic 0x%08x", magic)
	}
	minor, major := in.u2(), in.u2()
	if err != nil {
		return nil, err
	}
	if major > MaxMajorVersion || major < majorVersion(V1_1) {
		return nil, errors.UnsupportedVersion(uint16(major), uint16(minor))
	}
	cr.version = minor<<16 | major

	if err := cr.readPool(in); err != nil {
		return nil, err
	}

	in.section = "class header"
	cr.access = in.u2()
	thisIdx, superIdx := in.u2(), in.u2()
	ifaceIdx := make([]int, in.u2())
	for i := range ifaceIdx {
		ifaceIdx[i] = in.u2()
	}
	if err != nil {
		return nil, err
	}
	if cr.name, err = cr.symbols.ClassName(uint16(thisIdx)); err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindMalformedInput, err, "this_class")
	}
	if superIdx != 0 {
		if cr.superName, err = cr.symbols.ClassName(uint16(superIdx)); err != nil {
			return nil, errors.Wrap(errors.PhaseDecode, errors.KindMalformedInput, err, "super_class")
		}
	}
	for _, idx := range ifaceIdx {
		name, err := cr.symbols.ClassName(uint16(idx))
		if err != nil {
			return nil, errors.Wrap(errors.PhaseDecode, errors.KindMalformedInput, err, "interfaces")
		}
		cr.interfaces = append(cr.interfaces, name)
	}

	in.section = "fields"
	cr.fields = cr.readMembers(in)
	in.section = "methods"
	cr.methods = cr.readMembers(in)
	in.section = "class attributes"
	cr.attrs = cr.readAttrs(in)
	if err != nil {
		return nil, errors.WithPath(err, cr.name)
	}
	if in.r.Remaining() > 0 {
		return nil, errors.Malformed(errors.PhaseDecode, in.pos(), "%d trailing bytes", in.r.Remaining())
	}
	for _, a := range cr.attrs {
		if a.name == "BootstrapMethods" {
			if err := cr.readBootstrapMethods(a); err != nil {
				return nil, errors.WithPath(err, cr.name)
			}
		}
	}
	return cr, nil
}

// readPool parses the constant pool into the reader's symbol table.
func (cr *ClassReader) readPool(in *input) error {
	in.section = "constant pool"
	count := in.u2()
	if *in.err != nil {
		return *in.err
	}
	if count == 0 {
		return errors.Malformed(errors.PhaseDecode, in.pos()-2, "constant_pool_count is zero")
	}
	for i := 1; i < count; i++ {
		start := in.pos()
		tag := uint8(in.u1())
		e := Entry{Tag: tag}
		switch tag {
		case TagUTF8:
			raw := in.bytes(in.u2())
			if in.failed() {
				break
			}
			s, derr := bin.DecodeModifiedUTF8(raw)
			if derr != nil {
				return errors.New(errors.PhaseDecode, errors.KindMalformedInput).
					Offset(start).Detail("constant %d", i).Cause(derr).Build()
			}
			e.Str = s
		case TagInteger, TagFloat:
			e.Num = uint64(in.u4())
		case TagLong, TagDouble:
			e.Num = in.u8()
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			e.A = uint16(in.u2())
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType, TagDynamic, TagInvokeDynamic:
			e.A, e.B = uint16(in.u2()), uint16(in.u2())
		case TagMethodHandle:
			e.Kind, e.A = uint8(in.u1()), uint16(in.u2())
			if e.Kind < HGetField || e.Kind > HInvokeInterface {
				return errors.Malformed(errors.PhaseDecode, start, "constant %d: invalid reference kind %d", i, e.Kind)
			}
		default:
			if in.failed() {
				break
			}
			return errors.Malformed(errors.PhaseDecode, start, "constant %d: unknown tag %d", i, tag)
		}
		if in.failed() {
			return *in.err
		}
		if e.wide() && i+1 >= count {
			return errors.Malformed(errors.PhaseDecode, start, "constant %d: wide entry in the last slot", i)
		}
		cr.symbols.place(uint16(i), e)
		if e.wide() {
			i++
		}
	}
	return nil
}

func (cr *ClassReader) readMembers(in *input) []member {
	n := in.u2()
	var out []member
	for i := 0; i < n && !in.failed(); i++ {
		m := member{start: in.pos()}
		m.access = in.u2()
		nameIdx, descIdx := in.u2(), in.u2()
		m.attrs = cr.readAttrs(in)
		m.end = in.pos()
		if in.failed() {
			return nil
		}
		var err error
		if m.name, err = cr.symbols.UTF8(uint16(nameIdx)); err == nil {
			m.desc, err = cr.symbols.UTF8(uint16(descIdx))
		}
		if err != nil {
			*in.err = errors.Wrap(errors.PhaseDecode, errors.KindMalformedInput, err, in.section)
			return nil
		}
		out = append(out, m)
	}
	return out
}

func (cr *ClassReader) readBootstrapMethods(a rawAttr) error {
	var err error
	in := newInput(a.data, a.off, "BootstrapMethods", &err)
	n := in.u2()
	for i := 0; i < n && err == nil; i++ {
		handle := uint16(in.u2())
		args := make([]uint16, in.u2())
		for j := range args {
			args[j] = uint16(in.u2())
		}
		if err == nil {
			cr.symbols.placeBootstrap(handle, args)
		}
	}
	return err
}

// ClassName returns the internal name of the class.
func (cr *ClassReader) ClassName() string { return cr.name }

// SuperName returns the internal name of the superclass, "" for java/lang/Object.
func (cr *ClassReader) SuperName() string { return cr.superName }

// Interfaces returns the internal names of the direct superinterfaces.
func (cr *ClassReader) Interfaces() []string { return cr.interfaces }

// Access returns the class access flags.
func (cr *ClassReader) Access() int { return cr.access }

// Version returns the class version, minor in the high 16 bits.
func (cr *ClassReader) Version() int { return cr.version }

// ConstantCount returns constant_pool_count.
func (cr *ClassReader) ConstantCount() int { return cr.symbols.Len() }

// Symbols returns a copy of the constant pool and bootstrap methods.
func (cr *ClassReader) Symbols() *SymbolTable { return cr.symbols.Clone() }

// Bytes returns the input the reader was created from.
func (cr *ClassReader) Bytes() []byte { return cr.data }

// decoder carries the state of one Accept call.
type decoder struct {
	cr   *ClassReader
	opts ReadOptions
	err  error
	path []string
}

func (d *decoder) fail(err error) {
	if d.err == nil && err != nil {
		d.err = errors.WithPath(err, d.path...)
	}
}

// lookup converts symbol table errors into decode errors.
func (d *decoder) lookup(err error, what string) bool {
	if err == nil {
		return true
	}
	d.fail(errors.Wrap(errors.PhaseDecode, errors.KindMalformedInput, err, what))
	return false
}

func (d *decoder) utf8(idx int) string {
	s, err := d.cr.symbols.UTF8(uint16(idx))
	d.lookup(err, "utf8 reference")
	return s
}

func (d *decoder) className(idx int) string {
	s, err := d.cr.symbols.ClassName(uint16(idx))
	d.lookup(err, "class reference")
	return s
}

func (d *decoder) optClass(idx int) string {
	if idx == 0 {
		return ""
	}
	return d.className(idx)
}

func (d *decoder) optUTF8(idx int) string {
	if idx == 0 {
		return ""
	}
	return d.utf8(idx)
}

func (d *decoder) input(a rawAttr) *input {
	return newInput(a.data, a.off, a.name, &d.err)
}

func (d *decoder) classList(a rawAttr) []string {
	in := d.input(a)
	names := make([]string, in.u2())
	for i := range names {
		names[i] = d.className(in.u2())
	}
	return names
}

// Accept replays the class as events on v. It stops at the first error.
func (cr *ClassReader) Accept(v ClassVisitor, opts ReadOptions) error {
	d := &decoder{cr: cr, opts: opts, path: []string{cr.name}}

	access := cr.access
	var (
		signature, source, debug, nestHost string
		hasSource                          bool
		outer                              *rawAttr
		visible, invisible                 *rawAttr
		nestMembers, permitted, inner      *rawAttr
		raw                                []Attribute
	)
	for i := range cr.attrs {
		a := &cr.attrs[i]
		switch a.name {
		case "Signature":
			signature = d.utf8(d.input(*a).u2())
		case "SourceFile":
			if !opts.SkipDebug {
				source, hasSource = d.utf8(d.input(*a).u2()), true
			}
		case "SourceDebugExtension":
			if !opts.SkipDebug {
				s, err := bin.DecodeModifiedUTF8(a.data)
				if err != nil {
					d.fail(errors.New(errors.PhaseDecode, errors.KindMalformedInput).Offset(a.off).Cause(err).Build())
				}
				debug, hasSource = s, true
			}
		case "Deprecated":
			access |= AccDeprecated
		case "Synthetic":
			access |= AccSynthetic
		case "NestHost":
			nestHost = d.className(d.input(*a).u2())
		case "EnclosingMethod":
			outer = a
		case "RuntimeVisibleAnnotations":
			visible = a
		case "RuntimeInvisibleAnnotations":
			invisible = a
		case "NestMembers":
			nestMembers = a
		case "PermittedSubclasses":
			permitted = a
		case "InnerClasses":
			inner = a
		case "BootstrapMethods":
		default:
			raw = append(raw, Attribute{Name: a.name, Data: a.data})
		}
	}
	if d.err != nil {
		return d.err
	}

	v.Visit(cr.version, access, cr.name, signature, cr.superName, cr.interfaces)
	if hasSource {
		v.VisitSource(source, debug)
	}
	if nestHost != "" {
		v.VisitNestHost(nestHost)
	}
	if outer != nil {
		in := d.input(*outer)
		owner := d.className(in.u2())
		var name, desc string
		if nat := in.u2(); nat != 0 {
			var err error
			name, desc, err = cr.symbols.NameAndType(uint16(nat))
			d.lookup(err, "EnclosingMethod")
		}
		if d.err != nil {
			return d.err
		}
		v.VisitOuterClass(owner, name, desc)
	}
	d.annotations(visible, true, v.VisitAnnotation)
	d.annotations(invisible, false, v.VisitAnnotation)
	if d.err != nil {
		return d.err
	}
	for _, a := range raw {
		v.VisitAttribute(a)
	}
	if nestMembers != nil {
		for _, n := range d.classList(*nestMembers) {
			v.VisitNestMember(n)
		}
	}
	if permitted != nil {
		for _, n := range d.classList(*permitted) {
			v.VisitPermittedSubclass(n)
		}
	}
	if inner != nil {
		in := d.input(*inner)
		n := in.u2()
		for i := 0; i < n && d.err == nil; i++ {
			name := d.className(in.u2())
			outerName := d.optClass(in.u2())
			innerName := d.optUTF8(in.u2())
			acc := in.u2()
			if d.err == nil {
				v.VisitInnerClass(name, outerName, innerName, acc)
			}
		}
	}
	if d.err != nil {
		return d.err
	}

	for i := range cr.fields {
		if err := d.field(v, &cr.fields[i]); err != nil {
			return errors.WithPath(err, d.path...)
		}
	}
	for i := range cr.methods {
		if err := d.method(v, &cr.methods[i]); err != nil {
			return errors.WithPath(err, d.path...)
		}
	}
	v.VisitEnd()
	return nil
}

func (d *decoder) field(v ClassVisitor, f *member) error {
	d.path = []string{d.cr.name, f.name}
	access := f.access
	var (
		signature          string
		value              any
		visible, invisible *rawAttr
		raw                []Attribute
	)
	for i := range f.attrs {
		a := &f.attrs[i]
		switch a.name {
		case "ConstantValue":
			c, err := d.cr.symbols.Constant(uint16(d.input(*a).u2()))
			if d.lookup(err, "ConstantValue") {
				value = c
			}
		case "Signature":
			signature = d.utf8(d.input(*a).u2())
		case "Deprecated":
			access |= AccDeprecated
		case "Synthetic":
			access |= AccSynthetic
		case "RuntimeVisibleAnnotations":
			visible = a
		case "RuntimeInvisibleAnnotations":
			invisible = a
		default:
			raw = append(raw, Attribute{Name: a.name, Data: a.data})
		}
	}
	if d.err != nil {
		return d.err
	}
	fv := v.VisitField(access, f.name, f.desc, signature, value)
	if fv == nil {
		return nil
	}
	d.annotations(visible, true, fv.VisitAnnotation)
	d.annotations(invisible, false, fv.VisitAnnotation)
	if d.err != nil {
		return d.err
	}
	for _, a := range raw {
		fv.VisitAttribute(a)
	}
	fv.VisitEnd()
	return nil
}

func (d *decoder) method(v ClassVisitor, m *member) error {
	d.path = []string{d.cr.name, m.name + m.desc}
	access := m.access
	var (
		signature                    string
		exceptions                   []string
		code, params, annDefault     *rawAttr
		visible, invisible           *rawAttr
		paramVisible, paramInvisible *rawAttr
		raw                          []Attribute
	)
	for i := range m.attrs {
		a := &m.attrs[i]
		switch a.name {
		case "Code":
			code = a
		case "Exceptions":
			exceptions = d.classList(*a)
		case "Signature":
			signature = d.utf8(d.input(*a).u2())
		case "Deprecated":
			access |= AccDeprecated
		case "Synthetic":
			access |= AccSynthetic
		case "MethodParameters":
			params = a
		case "AnnotationDefault":
			annDefault = a
		case "RuntimeVisibleAnnotations":
			visible = a
		case "RuntimeInvisibleAnnotations":
			invisible = a
		case "RuntimeVisibleParameterAnnotations":
			paramVisible = a
		case "RuntimeInvisibleParameterAnnotations":
			paramInvisible = a
		default:
			raw = append(raw, Attribute{Name: a.name, Data: a.data})
		}
	}
	if d.err != nil {
		return d.err
	}

	mv := v.VisitMethod(access, m.name, m.desc, signature, exceptions)
	if mv == nil {
		return nil
	}
	if mw, ok := mv.(*MethodWriter); ok && d.canCopy(mw, access, m.name, m.desc, signature, exceptions) {
		mw.raw = d.cr.data[m.start:m.end]
		return nil
	}

	if params != nil && !d.opts.SkipDebug {
		in := d.input(*params)
		n := in.u1()
		for i := 0; i < n && d.err == nil; i++ {
			name := d.optUTF8(in.u2())
			acc := in.u2()
			if d.err == nil {
				mv.VisitParameter(name, acc)
			}
		}
	}
	if annDefault != nil {
		av := mv.VisitAnnotationDefault()
		d.elementValue(d.input(*annDefault), av, "")
		if av != nil {
			av.VisitEnd()
		}
	}
	d.annotations(visible, true, mv.VisitAnnotation)
	d.annotations(invisible, false, mv.VisitAnnotation)
	d.parameterAnnotations(paramVisible, true, mv)
	d.parameterAnnotations(paramInvisible, false, mv)
	if d.err != nil {
		return d.err
	}
	for _, a := range raw {
		mv.VisitAttribute(a)
	}
	if code != nil && !d.opts.SkipCode {
		if err := d.code(mv, m, access, *code); err != nil {
			return err
		}
	}
	mv.VisitEnd()
	return nil
}

// canCopy reports whether a method can be passed to mw as raw bytes.
func (d *decoder) canCopy(mw *MethodWriter, access int, name, desc, signature string, exceptions []string) bool {
	if d.opts != (ReadOptions{}) || !mw.cw.canCopy(d.cr) {
		return false
	}
	if mw.access != access || mw.name != name || mw.desc != desc || mw.signature != signature {
		return false
	}
	if len(mw.exceptions) != len(exceptions) {
		return false
	}
	for i := range exceptions {
		if mw.exceptions[i] != exceptions[i] {
			return false
		}
	}
	return true
}

func (cr *ClassReader) String() string {
	return fmt.Sprintf("%s (version %d.%d, %d constants)", cr.name, majorVersion(cr.version), cr.version>>16, cr.symbols.Len())
}
