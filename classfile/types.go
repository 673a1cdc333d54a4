package classfile

import "fmt"

// Label marks a position in a method's bytecode. Labels carry no offset;
// each writer and reader tracks where its labels are placed.
type Label struct {
	// Info is free for callers to attach data.
	Info any
}

// Handle is a method handle constant.
type Handle struct {
	Kind        int
	Owner       string
	Name        string
	Desc        string
	IsInterface bool
}

func (h Handle) String() string {
	return fmt.Sprintf("%s.%s%s (%d)", h.Owner, h.Name, h.Desc, h.Kind)
}

// ConstantDynamic is a dynamically computed constant (CONSTANT_Dynamic).
type ConstantDynamic struct {
	Name      string
	Desc      string
	Bootstrap Handle
	Args      []any
}

// ClassConst is an ldc operand naming a class: an internal name or an array descriptor.
type ClassConst string

// MethodTypeConst is an ldc operand holding a method descriptor.
type MethodTypeConst string

// Attribute is an attribute the codec does not interpret. Data excludes the
// six-byte header. Constant pool indices inside Data are only meaningful
// against the pool of the class it was read from.
type Attribute struct {
	Name string
	Data []byte
}

// VType is a verification type as it appears in a frame event.
// Long and Double occupy a single element.
type VType struct {
	Tag int
	// Class is the internal name or array descriptor for ItemObject.
	Class string
	// Label marks the new instruction for ItemUninitialized.
	Label *Label
}

// Common verification types.
var (
	VTop               = VType{Tag: ItemTop}
	VInteger           = VType{Tag: ItemInteger}
	VFloat             = VType{Tag: ItemFloat}
	VLong              = VType{Tag: ItemLong}
	VDouble            = VType{Tag: ItemDouble}
	VNull              = VType{Tag: ItemNull}
	VUninitializedThis = VType{Tag: ItemUninitializedThis}
)

// VObject returns the verification type for a class or array.
func VObject(class string) VType {
	return VType{Tag: ItemObject, Class: class}
}

// VUninitialized returns the type of an object created by the new at l.
func VUninitialized(l *Label) VType {
	return VType{Tag: ItemUninitialized, Label: l}
}

func (v VType) String() string {
	switch v.Tag {
	case ItemTop:
		return "T"
	case ItemInteger:
		return "I"
	case ItemFloat:
		return "F"
	case ItemLong:
		return "J"
	case ItemDouble:
		return "D"
	case ItemNull:
		return "null"
	case ItemUninitializedThis:
		return "uninitializedThis"
	case ItemObject:
		return v.Class
	case ItemUninitialized:
		return "uninitialized"
	}
	return fmt.Sprintf("?%d", v.Tag)
}

// Frame is a stack map frame event.
// For FChop, Chopped holds the number of removed locals.
type Frame struct {
	Kind    int
	Locals  []VType
	Stack   []VType
	Chopped int
}
