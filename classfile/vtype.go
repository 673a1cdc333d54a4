package classfile

import (
	"fmt"
	"strings"
)

// Hierarchy answers the class hierarchy queries needed to merge reference
// types at control flow joins.
type Hierarchy interface {
	// SuperClass returns the direct superclass of name. ok is false when
	// the class is unknown. java/lang/Object has superclass "".
	SuperClass(name string) (super string, ok bool)
	// IsInterface reports whether name is a known interface.
	IsInterface(name string) bool
}

// ClassInfo describes one class in a MapHierarchy.
type ClassInfo struct {
	Super     string
	Interface bool
}

// MapHierarchy is a Hierarchy backed by a map from internal name to ClassInfo.
type MapHierarchy map[string]ClassInfo

// Add records a class. Interfaces have superclass java/lang/Object.
func (h MapHierarchy) Add(name, super string, isInterface bool) {
	h[name] = ClassInfo{Super: super, Interface: isInterface}
}

func (h MapHierarchy) SuperClass(name string) (string, bool) {
	if name == objectClass {
		return "", true
	}
	info, ok := h[name]
	return info.Super, ok
}

func (h MapHierarchy) IsInterface(name string) bool {
	return h[name].Interface
}

// superChain returns name and its superclasses up to java/lang/Object, or
// nil if some class on the way is unknown.
func superChain(h Hierarchy, name string) []string {
	var chain []string
	seen := make(map[string]bool)
	for name != "" {
		if seen[name] {
			return nil
		}
		seen[name] = true
		chain = append(chain, name)
		if name == objectClass {
			return chain
		}
		if h == nil {
			return nil
		}
		super, ok := h.SuperClass(name)
		if !ok {
			return nil
		}
		name = super
	}
	return nil
}

// CommonSuperClass returns the most specific common superclass of two class
// names. Interfaces and classes missing from h resolve to java/lang/Object.
func CommonSuperClass(h Hierarchy, a, b string) string {
	if a == b {
		return a
	}
	if h == nil || h.IsInterface(a) || h.IsInterface(b) {
		return objectClass
	}
	ca := superChain(h, a)
	cb := superChain(h, b)
	if ca == nil || cb == nil {
		return objectClass
	}
	inB := make(map[string]bool, len(cb))
	for _, n := range cb {
		inB[n] = true
	}
	for _, n := range ca {
		if inB[n] {
			return n
		}
	}
	return objectClass
}

// vtype is the frame engine's verification type. Long and double values
// take two slots: the value followed by top.
type vtype struct {
	tag  uint8
	name string // ItemObject: internal name or array descriptor
	off  int    // ItemUninitialized: offset of the new instruction
}

var (
	tTop      = vtype{tag: ItemTop}
	tInt      = vtype{tag: ItemInteger}
	tFloat    = vtype{tag: ItemFloat}
	tLong     = vtype{tag: ItemLong}
	tDouble   = vtype{tag: ItemDouble}
	tNull     = vtype{tag: ItemNull}
	tThisInit = vtype{tag: ItemUninitializedThis}
)

func objType(name string) vtype {
	return vtype{tag: ItemObject, name: name}
}

func uninitType(off int) vtype {
	return vtype{tag: ItemUninitialized, off: off}
}

func (v vtype) isWide() bool {
	return v.tag == ItemLong || v.tag == ItemDouble
}

func (v vtype) isArray() bool {
	return v.tag == ItemObject && strings.HasPrefix(v.name, "[")
}

func (v vtype) String() string {
	switch v.tag {
	case ItemObject:
		return v.name
	case ItemUninitialized:
		return fmt.Sprintf("uninitialized(%d)", v.off)
	}
	return VType{Tag: int(v.tag)}.String()
}

// descType maps a field descriptor to its verification type.
func descType(desc string) vtype {
	switch desc[0] {
	case 'Z', 'B', 'C', 'S', 'I':
		return tInt
	case 'F':
		return tFloat
	case 'J':
		return tLong
	case 'D':
		return tDouble
	}
	return objType(classNameOf(desc))
}

// mergeTypes returns the least upper bound of a and b.
func mergeTypes(a, b vtype, h Hierarchy) vtype {
	if a == b {
		return a
	}
	if a.tag == ItemNull && b.tag == ItemObject {
		return b
	}
	if b.tag == ItemNull && a.tag == ItemObject {
		return a
	}
	if a.tag != ItemObject || b.tag != ItemObject {
		return tTop
	}
	if a.isArray() && b.isArray() {
		return objType(mergeArrays(a.name, b.name, h))
	}
	if a.isArray() || b.isArray() {
		return objType(objectClass)
	}
	return objType(CommonSuperClass(h, a.name, b.name))
}

// mergeArrays merges two array descriptors.
func mergeArrays(a, b string, h Hierarchy) string {
	da, ea := arrayDims(a)
	db, eb := arrayDims(b)
	objectArray := func(dims int) string {
		if dims == 0 {
			return objectClass
		}
		return strings.Repeat("[", dims) + "L" + objectClass + ";"
	}
	if da == db {
		if ea[0] == 'L' && eb[0] == 'L' {
			return strings.Repeat("[", da) + "L" + CommonSuperClass(h, classNameOf(ea), classNameOf(eb)) + ";"
		}
		// differing primitive element types
		return objectArray(da - 1)
	}
	// the lower dimensional array decides how much structure survives
	low, lowElem := da, ea
	if db < da {
		low, lowElem = db, eb
	}
	if lowElem[0] == 'L' {
		return objectArray(low)
	}
	return objectArray(low - 1)
}

// arrayDims splits an array descriptor into its dimension count and element descriptor.
func arrayDims(desc string) (int, string) {
	n := 0
	for n < len(desc) && desc[n] == '[' {
		n++
	}
	return n, desc[n:]
}
