package classfile

import (
	"encoding/binary"
	"fmt"
	"math"

	bin "github.com/wippyai/classkit/classfile/internal/binary"
	"github.com/wippyai/classkit/errors"
)

// Entry is one constant pool entry. Reference fields hold indices into the
// same table, so two entries are equal exactly when their contents are.
type Entry struct {
	Tag uint8
	// Str holds the text of a Utf8 entry.
	Str string
	// Num holds Integer and Float bits in the low 32 bits, Long and Double bits in full.
	Num uint64
	// Kind is the reference kind of a MethodHandle.
	Kind uint8
	// A and B are the referenced indices: Class, String, MethodType, Module and
	// Package use A; NameAndType uses A (name) and B (descriptor); member
	// references use A (class) and B (name and type); MethodHandle uses A
	// (reference); Dynamic and InvokeDynamic use A (bootstrap method) and B.
	A, B uint16
}

// wide reports whether the entry takes two slots.
func (e Entry) wide() bool {
	return e.Tag == TagLong || e.Tag == TagDouble
}

type bootstrapMethod struct {
	handle uint16
	args   []uint16
}

func (b bootstrapMethod) key() string {
	buf := make([]byte, 2+2*len(b.args))
	binary.BigEndian.PutUint16(buf, b.handle)
	for i, a := range b.args {
		binary.BigEndian.PutUint16(buf[2+2*i:], a)
	}
	return string(buf)
}

// SymbolTable is a content-addressed constant pool plus the bootstrap method
// table. It is not safe for concurrent use.
type SymbolTable struct {
	entries  []Entry // index 0 and the slot after Long/Double are zero
	index    map[Entry]uint16
	distinct int

	bsms     []bootstrapMethod
	bsmIndex map[string]uint16
}

// NewSymbolTable creates an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		entries:  make([]Entry, 1, 64),
		index:    make(map[Entry]uint16),
		bsmIndex: make(map[string]uint16),
	}
}

// Len returns constant_pool_count: one more than the highest used slot.
func (t *SymbolTable) Len() int {
	return len(t.entries)
}

// Count returns the number of distinct entries.
func (t *SymbolTable) Count() int {
	return t.distinct
}

// BootstrapMethodCount returns the number of bootstrap methods.
func (t *SymbolTable) BootstrapMethodCount() int {
	return len(t.bsms)
}

// Entry returns the entry at index.
func (t *SymbolTable) Entry(index uint16) (Entry, bool) {
	if index == 0 || int(index) >= len(t.entries) || t.entries[index].Tag == 0 {
		return Entry{}, false
	}
	return t.entries[index], true
}

// Intern returns the index of e, adding it if no equal entry exists.
// Referenced indices must already be present.
func (t *SymbolTable) Intern(e Entry) (uint16, error) {
	if idx, ok := t.index[e]; ok {
		return idx, nil
	}
	if err := t.checkRefs(e); err != nil {
		return 0, err
	}
	slots := 1
	if e.wide() {
		slots = 2
	}
	if len(t.entries)+slots > MaxPoolCount {
		return 0, errors.CapacityExceeded(errors.PhaseSymbols, nil, "constant pool entries", MaxPoolCount)
	}
	idx := uint16(len(t.entries))
	t.entries = append(t.entries, e)
	if slots == 2 {
		t.entries = append(t.entries, Entry{})
	}
	t.index[e] = idx
	t.distinct++
	return idx, nil
}

// place stores e at a fixed index, used when seeding from a reader.
// Duplicate entries keep their own index; lookups resolve to the first.
func (t *SymbolTable) place(idx uint16, e Entry) {
	for len(t.entries) <= int(idx) {
		t.entries = append(t.entries, Entry{})
	}
	t.entries[idx] = e
	if e.wide() && len(t.entries) == int(idx)+1 {
		t.entries = append(t.entries, Entry{})
	}
	if _, ok := t.index[e]; !ok {
		t.index[e] = idx
	}
	t.distinct++
}

// placeBootstrap appends a bootstrap method read from a class file.
func (t *SymbolTable) placeBootstrap(handle uint16, args []uint16) {
	m := bootstrapMethod{handle: handle, args: args}
	if _, ok := t.bsmIndex[m.key()]; !ok {
		t.bsmIndex[m.key()] = uint16(len(t.bsms))
	}
	t.bsms = append(t.bsms, m)
}

// Clone returns an independent copy of t.
func (t *SymbolTable) Clone() *SymbolTable {
	c := &SymbolTable{
		entries:  append(make([]Entry, 0, len(t.entries)+64), t.entries...),
		index:    make(map[Entry]uint16, len(t.index)),
		distinct: t.distinct,
		bsms:     append([]bootstrapMethod(nil), t.bsms...),
		bsmIndex: make(map[string]uint16, len(t.bsmIndex)),
	}
	for k, v := range t.index {
		c.index[k] = v
	}
	for k, v := range t.bsmIndex {
		c.bsmIndex[k] = v
	}
	return c
}

func (t *SymbolTable) checkRefs(e Entry) error {
	want := func(idx uint16, tags ...uint8) error {
		got, ok := t.Entry(idx)
		if !ok {
			return errors.InvalidInput(errors.PhaseSymbols, nil, fmt.Sprintf("tag %d references missing index %d", e.Tag, idx))
		}
		for _, tag := range tags {
			if got.Tag == tag {
				return nil
			}
		}
		return errors.InvalidInput(errors.PhaseSymbols, nil, fmt.Sprintf("tag %d references index %d with tag %d", e.Tag, idx, got.Tag))
	}
	switch e.Tag {
	case TagUTF8, TagInteger, TagFloat, TagLong, TagDouble:
		return nil
	case TagClass, TagString, TagMethodType, TagModule, TagPackage:
		return want(e.A, TagUTF8)
	case TagNameAndType:
		if err := want(e.A, TagUTF8); err != nil {
			return err
		}
		return want(e.B, TagUTF8)
	case TagFieldref, TagMethodref, TagInterfaceMethodref:
		if err := want(e.A, TagClass); err != nil {
			return err
		}
		return want(e.B, TagNameAndType)
	case TagMethodHandle:
		if e.Kind < HGetField || e.Kind > HInvokeInterface {
			return errors.InvalidInput(errors.PhaseSymbols, nil, fmt.Sprintf("invalid method handle kind %d", e.Kind))
		}
		return want(e.A, TagFieldref, TagMethodref, TagInterfaceMethodref)
	case TagDynamic, TagInvokeDynamic:
		if int(e.A) >= len(t.bsms) {
			return errors.InvalidInput(errors.PhaseSymbols, nil, fmt.Sprintf("missing bootstrap method %d", e.A))
		}
		return want(e.B, TagNameAndType)
	}
	return errors.InvalidInput(errors.PhaseSymbols, nil, fmt.Sprintf("unknown constant tag %d", e.Tag))
}

// AddUTF8 interns a Utf8 entry.
func (t *SymbolTable) AddUTF8(s string) (uint16, error) {
	if bin.ModifiedUTF8Len(s) > 0xFFFF {
		return 0, errors.InvalidInput(errors.PhaseSymbols, nil, "string constant exceeds 65535 encoded bytes")
	}
	return t.Intern(Entry{Tag: TagUTF8, Str: s})
}

// AddInteger interns an Integer entry.
func (t *SymbolTable) AddInteger(v int32) (uint16, error) {
	return t.Intern(Entry{Tag: TagInteger, Num: uint64(uint32(v))})
}

// AddFloat interns a Float entry, keyed by its bit pattern.
func (t *SymbolTable) AddFloat(v float32) (uint16, error) {
	return t.Intern(Entry{Tag: TagFloat, Num: uint64(math.Float32bits(v))})
}

// AddLong interns a Long entry.
func (t *SymbolTable) AddLong(v int64) (uint16, error) {
	return t.Intern(Entry{Tag: TagLong, Num: uint64(v)})
}

// AddDouble interns a Double entry, keyed by its bit pattern.
func (t *SymbolTable) AddDouble(v float64) (uint16, error) {
	return t.Intern(Entry{Tag: TagDouble, Num: math.Float64bits(v)})
}

func (t *SymbolTable) addNamed(tag uint8, s string) (uint16, error) {
	u, err := t.AddUTF8(s)
	if err != nil {
		return 0, err
	}
	return t.Intern(Entry{Tag: tag, A: u})
}

// AddClass interns a Class entry for an internal name or array descriptor.
func (t *SymbolTable) AddClass(name string) (uint16, error) {
	return t.addNamed(TagClass, name)
}

// AddString interns a String entry.
func (t *SymbolTable) AddString(s string) (uint16, error) {
	return t.addNamed(TagString, s)
}

// AddMethodType interns a MethodType entry.
func (t *SymbolTable) AddMethodType(desc string) (uint16, error) {
	return t.addNamed(TagMethodType, desc)
}

// AddModule interns a Module entry.
func (t *SymbolTable) AddModule(name string) (uint16, error) {
	return t.addNamed(TagModule, name)
}

// AddPackage interns a Package entry.
func (t *SymbolTable) AddPackage(name string) (uint16, error) {
	return t.addNamed(TagPackage, name)
}

// AddNameAndType interns a NameAndType entry.
func (t *SymbolTable) AddNameAndType(name, desc string) (uint16, error) {
	n, err := t.AddUTF8(name)
	if err != nil {
		return 0, err
	}
	d, err := t.AddUTF8(desc)
	if err != nil {
		return 0, err
	}
	return t.Intern(Entry{Tag: TagNameAndType, A: n, B: d})
}

func (t *SymbolTable) addMember(tag uint8, owner, name, desc string) (uint16, error) {
	c, err := t.AddClass(owner)
	if err != nil {
		return 0, err
	}
	nt, err := t.AddNameAndType(name, desc)
	if err != nil {
		return 0, err
	}
	return t.Intern(Entry{Tag: tag, A: c, B: nt})
}

// AddFieldRef interns a Fieldref entry.
func (t *SymbolTable) AddFieldRef(owner, name, desc string) (uint16, error) {
	return t.addMember(TagFieldref, owner, name, desc)
}

// AddMethodRef interns a Methodref or InterfaceMethodref entry.
func (t *SymbolTable) AddMethodRef(owner, name, desc string, isInterface bool) (uint16, error) {
	if isInterface {
		return t.addMember(TagInterfaceMethodref, owner, name, desc)
	}
	return t.addMember(TagMethodref, owner, name, desc)
}

// AddMethodHandle interns a MethodHandle entry.
func (t *SymbolTable) AddMethodHandle(h Handle) (uint16, error) {
	var ref uint16
	var err error
	if h.Kind <= HPutStatic {
		ref, err = t.AddFieldRef(h.Owner, h.Name, h.Desc)
	} else {
		ref, err = t.AddMethodRef(h.Owner, h.Name, h.Desc, h.IsInterface)
	}
	if err != nil {
		return 0, err
	}
	return t.Intern(Entry{Tag: TagMethodHandle, Kind: uint8(h.Kind), A: ref})
}

// AddBootstrapMethod interns a bootstrap method and returns its index in
// the BootstrapMethods attribute.
func (t *SymbolTable) AddBootstrapMethod(bsm Handle, args ...any) (uint16, error) {
	h, err := t.AddMethodHandle(bsm)
	if err != nil {
		return 0, err
	}
	m := bootstrapMethod{handle: h, args: make([]uint16, len(args))}
	for i, a := range args {
		if m.args[i], err = t.AddConstant(a); err != nil {
			return 0, err
		}
	}
	return t.internBootstrap(m)
}

func (t *SymbolTable) internBootstrap(m bootstrapMethod) (uint16, error) {
	k := m.key()
	if idx, ok := t.bsmIndex[k]; ok {
		return idx, nil
	}
	if len(t.bsms) >= MaxTableEntries {
		return 0, errors.CapacityExceeded(errors.PhaseSymbols, nil, "bootstrap methods", MaxTableEntries)
	}
	idx := uint16(len(t.bsms))
	t.bsms = append(t.bsms, m)
	t.bsmIndex[k] = idx
	return idx, nil
}

// AddConstantDynamic interns a Dynamic entry.
func (t *SymbolTable) AddConstantDynamic(c ConstantDynamic) (uint16, error) {
	return t.addDynamic(TagDynamic, c.Name, c.Desc, c.Bootstrap, c.Args)
}

// AddInvokeDynamic interns an InvokeDynamic entry.
func (t *SymbolTable) AddInvokeDynamic(name, desc string, bsm Handle, args ...any) (uint16, error) {
	return t.addDynamic(TagInvokeDynamic, name, desc, bsm, args)
}

func (t *SymbolTable) addDynamic(tag uint8, name, desc string, bsm Handle, args []any) (uint16, error) {
	b, err := t.AddBootstrapMethod(bsm, args...)
	if err != nil {
		return 0, err
	}
	nt, err := t.AddNameAndType(name, desc)
	if err != nil {
		return 0, err
	}
	return t.Intern(Entry{Tag: tag, A: b, B: nt})
}

// AddConstant interns a loadable constant: int32, float32, int64, float64,
// string, ClassConst, MethodTypeConst, Handle or ConstantDynamic. Go int,
// bool, int8, int16 and uint16 are stored as Integer.
func (t *SymbolTable) AddConstant(v any) (uint16, error) {
	switch c := v.(type) {
	case int32:
		return t.AddInteger(c)
	case int:
		return t.AddInteger(int32(c))
	case int8:
		return t.AddInteger(int32(c))
	case int16:
		return t.AddInteger(int32(c))
	case uint16:
		return t.AddInteger(int32(c))
	case bool:
		if c {
			return t.AddInteger(1)
		}
		return t.AddInteger(0)
	case float32:
		return t.AddFloat(c)
	case int64:
		return t.AddLong(c)
	case float64:
		return t.AddDouble(c)
	case string:
		return t.AddString(c)
	case ClassConst:
		return t.AddClass(string(c))
	case MethodTypeConst:
		return t.AddMethodType(string(c))
	case Handle:
		return t.AddMethodHandle(c)
	case ConstantDynamic:
		return t.AddConstantDynamic(c)
	}
	return 0, errors.InvalidInput(errors.PhaseSymbols, nil, fmt.Sprintf("unsupported constant type %T", v))
}

// Merge imports every entry and bootstrap method of other and returns
// remap, where remap[i] is the index in t of other's entry i.
func (t *SymbolTable) Merge(other *SymbolTable) ([]uint16, error) {
	remap := make([]uint16, len(other.entries))
	bsmRemap := make([]int, len(other.bsms))
	for i := range bsmRemap {
		bsmRemap[i] = -1
	}

	var importEntry func(i uint16, depth int) (uint16, error)
	var importBSM func(i uint16, depth int) (uint16, error)

	importEntry = func(i uint16, depth int) (uint16, error) {
		if remap[i] != 0 {
			return remap[i], nil
		}
		if depth > 16 {
			return 0, errors.InvalidInput(errors.PhaseSymbols, nil, "cyclic constant pool reference")
		}
		e, ok := other.Entry(i)
		if !ok {
			return 0, errors.InvalidInput(errors.PhaseSymbols, nil, fmt.Sprintf("missing index %d", i))
		}
		var err error
		switch e.Tag {
		case TagClass, TagString, TagMethodType, TagModule, TagPackage, TagMethodHandle:
			e.A, err = importEntry(e.A, depth+1)
		case TagNameAndType, TagFieldref, TagMethodref, TagInterfaceMethodref:
			if e.A, err = importEntry(e.A, depth+1); err == nil {
				e.B, err = importEntry(e.B, depth+1)
			}
		case TagDynamic, TagInvokeDynamic:
			if e.A, err = importBSM(e.A, depth+1); err == nil {
				e.B, err = importEntry(e.B, depth+1)
			}
		}
		if err != nil {
			return 0, err
		}
		idx, err := t.Intern(e)
		if err != nil {
			return 0, err
		}
		remap[i] = idx
		return idx, nil
	}

	importBSM = func(i uint16, depth int) (uint16, error) {
		if int(i) >= len(other.bsms) {
			return 0, errors.InvalidInput(errors.PhaseSymbols, nil, fmt.Sprintf("missing bootstrap method %d", i))
		}
		if bsmRemap[i] >= 0 {
			return uint16(bsmRemap[i]), nil
		}
		src := other.bsms[i]
		m := bootstrapMethod{args: make([]uint16, len(src.args))}
		var err error
		if m.handle, err = importEntry(src.handle, depth+1); err != nil {
			return 0, err
		}
		for j, a := range src.args {
			if m.args[j], err = importEntry(a, depth+1); err != nil {
				return 0, err
			}
		}
		idx, err := t.internBootstrap(m)
		if err != nil {
			return 0, err
		}
		bsmRemap[i] = int(idx)
		return idx, nil
	}

	for i := 1; i < len(other.entries); i++ {
		if other.entries[i].Tag == 0 {
			continue
		}
		if _, err := importEntry(uint16(i), 0); err != nil {
			return nil, err
		}
	}
	for i := range other.bsms {
		if _, err := importBSM(uint16(i), 0); err != nil {
			return nil, err
		}
	}
	return remap, nil
}

// UTF8 returns the text of the Utf8 entry at index.
func (t *SymbolTable) UTF8(index uint16) (string, error) {
	e, ok := t.Entry(index)
	if !ok || e.Tag != TagUTF8 {
		return "", t.badIndex(index, "Utf8")
	}
	return e.Str, nil
}

// ClassName returns the name of the Class entry at index.
func (t *SymbolTable) ClassName(index uint16) (string, error) {
	e, ok := t.Entry(index)
	if !ok || e.Tag != TagClass {
		return "", t.badIndex(index, "Class")
	}
	return t.UTF8(e.A)
}

// NameAndType returns the name and descriptor of the NameAndType entry at index.
func (t *SymbolTable) NameAndType(index uint16) (name, desc string, err error) {
	e, ok := t.Entry(index)
	if !ok || e.Tag != TagNameAndType {
		return "", "", t.badIndex(index, "NameAndType")
	}
	if name, err = t.UTF8(e.A); err != nil {
		return "", "", err
	}
	desc, err = t.UTF8(e.B)
	return name, desc, err
}

// MemberRef returns owner, name and descriptor of a field or method reference.
func (t *SymbolTable) MemberRef(index uint16) (owner, name, desc string, err error) {
	e, ok := t.Entry(index)
	if !ok || (e.Tag != TagFieldref && e.Tag != TagMethodref && e.Tag != TagInterfaceMethodref) {
		return "", "", "", t.badIndex(index, "member reference")
	}
	if owner, err = t.ClassName(e.A); err != nil {
		return "", "", "", err
	}
	name, desc, err = t.NameAndType(e.B)
	return owner, name, desc, err
}

// Handle returns the MethodHandle entry at index.
func (t *SymbolTable) Handle(index uint16) (Handle, error) {
	e, ok := t.Entry(index)
	if !ok || e.Tag != TagMethodHandle {
		return Handle{}, t.badIndex(index, "MethodHandle")
	}
	ref, _ := t.Entry(e.A)
	owner, name, desc, err := t.MemberRef(e.A)
	if err != nil {
		return Handle{}, err
	}
	return Handle{
		Kind:        int(e.Kind),
		Owner:       owner,
		Name:        name,
		Desc:        desc,
		IsInterface: ref.Tag == TagInterfaceMethodref,
	}, nil
}

// Constant returns the loadable constant at index as the value VisitLdcInsn accepts.
func (t *SymbolTable) Constant(index uint16) (any, error) {
	e, ok := t.Entry(index)
	if !ok {
		return nil, t.badIndex(index, "constant")
	}
	switch e.Tag {
	case TagInteger:
		return int32(uint32(e.Num)), nil
	case TagFloat:
		return math.Float32frombits(uint32(e.Num)), nil
	case TagLong:
		return int64(e.Num), nil
	case TagDouble:
		return math.Float64frombits(e.Num), nil
	case TagString:
		return t.UTF8(e.A)
	case TagClass:
		name, err := t.UTF8(e.A)
		return ClassConst(name), err
	case TagMethodType:
		desc, err := t.UTF8(e.A)
		return MethodTypeConst(desc), err
	case TagMethodHandle:
		return t.Handle(index)
	case TagDynamic:
		return t.constantDynamic(e, 0)
	}
	return nil, t.badIndex(index, "loadable constant")
}

func (t *SymbolTable) constantDynamic(e Entry, depth int) (ConstantDynamic, error) {
	if depth > 16 {
		return ConstantDynamic{}, errors.InvalidInput(errors.PhaseSymbols, nil, "dynamic constants nested too deeply")
	}
	name, desc, err := t.NameAndType(e.B)
	if err != nil {
		return ConstantDynamic{}, err
	}
	bsm, args, err := t.bootstrap(e.A, depth)
	if err != nil {
		return ConstantDynamic{}, err
	}
	return ConstantDynamic{Name: name, Desc: desc, Bootstrap: bsm, Args: args}, nil
}

// bootstrap resolves bootstrap method i to its handle and arguments.
func (t *SymbolTable) bootstrap(i uint16, depth int) (Handle, []any, error) {
	if int(i) >= len(t.bsms) {
		return Handle{}, nil, errors.InvalidInput(errors.PhaseSymbols, nil, fmt.Sprintf("missing bootstrap method %d", i))
	}
	m := t.bsms[i]
	h, err := t.Handle(m.handle)
	if err != nil {
		return Handle{}, nil, err
	}
	args := make([]any, len(m.args))
	for j, a := range m.args {
		e, ok := t.Entry(a)
		if ok && e.Tag == TagDynamic {
			args[j], err = t.constantDynamic(e, depth+1)
		} else {
			args[j], err = t.Constant(a)
		}
		if err != nil {
			return Handle{}, nil, err
		}
	}
	return h, args, nil
}

// InvokeDynamic returns the name, descriptor and bootstrap of an InvokeDynamic entry.
func (t *SymbolTable) InvokeDynamic(index uint16) (name, desc string, bsm Handle, args []any, err error) {
	e, ok := t.Entry(index)
	if !ok || e.Tag != TagInvokeDynamic {
		return "", "", Handle{}, nil, t.badIndex(index, "InvokeDynamic")
	}
	if name, desc, err = t.NameAndType(e.B); err != nil {
		return "", "", Handle{}, nil, err
	}
	bsm, args, err = t.bootstrap(e.A, 0)
	return name, desc, bsm, args, err
}

func (t *SymbolTable) badIndex(index uint16, want string) error {
	return errors.New(errors.PhaseSymbols, errors.KindMalformedInput).
		Value(index).
		Detail("constant pool index %d is not a valid %s entry", index, want).
		Build()
}

// writePool serializes constant_pool_count and the entries.
func (t *SymbolTable) writePool(w *bin.Writer) error {
	w.U2(uint16(len(t.entries)))
	for i := 1; i < len(t.entries); i++ {
		e := t.entries[i]
		if e.Tag == 0 {
			continue
		}
		w.U1(e.Tag)
		switch e.Tag {
		case TagUTF8:
			if err := w.UTF8(e.Str); err != nil {
				return err
			}
		case TagInteger, TagFloat:
			w.U4(uint32(e.Num))
		case TagLong, TagDouble:
			w.U8(e.Num)
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			w.U2(e.A)
		case TagMethodHandle:
			w.U1(e.Kind)
			w.U2(e.A)
		default:
			w.U2(e.A)
			w.U2(e.B)
		}
	}
	return nil
}

// writeBootstrapMethods serializes the BootstrapMethods attribute body.
func (t *SymbolTable) writeBootstrapMethods() []byte {
	w := bin.NewWriter()
	w.U2(uint16(len(t.bsms)))
	for _, m := range t.bsms {
		w.U2(m.handle)
		w.U2(uint16(len(m.args)))
		for _, a := range m.args {
			w.U2(a)
		}
	}
	return w.Bytes()
}
