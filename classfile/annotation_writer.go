package classfile

import (
	"fmt"

	bin "github.com/wippyai/classkit/classfile/internal/binary"
	"github.com/wippyai/classkit/errors"
)

// annotationWriter encodes element values into w. Nested annotations and
// arrays share w with their parent and patch their counts on VisitEnd.
type annotationWriter struct {
	symbols  *SymbolTable
	w        *bin.Writer
	named    bool
	countPos int // -1 when no count is kept (annotation default)
	count    int
	fail     func(error)
}

func newAnnotationWriter(symbols *SymbolTable, w *bin.Writer, named bool, countPos int, fail func(error)) *annotationWriter {
	return &annotationWriter{symbols: symbols, w: w, named: named, countPos: countPos, fail: fail}
}

func (a *annotationWriter) utf8(s string) uint16 {
	idx, err := a.symbols.AddUTF8(s)
	if err != nil {
		a.fail(err)
	}
	return idx
}

func (a *annotationWriter) constant(v any) uint16 {
	idx, err := a.symbols.AddConstant(v)
	if err != nil {
		a.fail(err)
	}
	return idx
}

func (a *annotationWriter) element(name string) {
	a.count++
	if a.named {
		a.w.U2(a.utf8(name))
	}
}

func (a *annotationWriter) Visit(name string, value any) {
	a.element(name)
	switch v := value.(type) {
	case bool:
		a.w.U1('Z')
		a.w.U2(a.constant(v))
	case int8:
		a.w.U1('B')
		a.w.U2(a.constant(v))
	case uint16:
		a.w.U1('C')
		a.w.U2(a.constant(v))
	case int16:
		a.w.U1('S')
		a.w.U2(a.constant(v))
	case int32:
		a.w.U1('I')
		a.w.U2(a.constant(v))
	case int:
		a.w.U1('I')
		a.w.U2(a.constant(int32(v)))
	case int64:
		a.w.U1('J')
		a.w.U2(a.constant(v))
	case float32:
		a.w.U1('F')
		a.w.U2(a.constant(v))
	case float64:
		a.w.U1('D')
		a.w.U2(a.constant(v))
	case string:
		a.w.U1('s')
		a.w.U2(a.utf8(v))
	case ClassConst:
		a.w.U1('c')
		a.w.U2(a.utf8(string(v)))
	default:
		a.fail(errors.InvalidInput(errors.PhaseEncode, nil, fmt.Sprintf("unsupported annotation value %T", value)))
	}
}

func (a *annotationWriter) VisitEnum(name, desc, value string) {
	a.element(name)
	a.w.U1('e')
	a.w.U2(a.utf8(desc))
	a.w.U2(a.utf8(value))
}

func (a *annotationWriter) VisitAnnotation(name, desc string) AnnotationVisitor {
	a.element(name)
	a.w.U1('@')
	a.w.U2(a.utf8(desc))
	pos := a.w.Len()
	a.w.U2(0)
	return newAnnotationWriter(a.symbols, a.w, true, pos, a.fail)
}

func (a *annotationWriter) VisitArray(name string) AnnotationVisitor {
	a.element(name)
	a.w.U1('[')
	pos := a.w.Len()
	a.w.U2(0)
	return newAnnotationWriter(a.symbols, a.w, false, pos, a.fail)
}

func (a *annotationWriter) VisitEnd() {
	if a.countPos >= 0 {
		a.w.PatchU2(a.countPos, uint16(a.count))
	}
}

// annotationSet collects the runtime visible and invisible annotations of
// one class, field, method or parameter.
type annotationSet struct {
	visible   []*bin.Writer
	invisible []*bin.Writer
}

func (s *annotationSet) add(symbols *SymbolTable, desc string, visible bool, fail func(error)) AnnotationVisitor {
	w := bin.NewWriter()
	idx, err := symbols.AddUTF8(desc)
	if err != nil {
		fail(err)
	}
	w.U2(idx)
	w.U2(0)
	if visible {
		s.visible = append(s.visible, w)
	} else {
		s.invisible = append(s.invisible, w)
	}
	return newAnnotationWriter(symbols, w, true, 2, fail)
}

func annotationsBody(list []*bin.Writer) []byte {
	w := bin.NewWriter()
	w.U2(uint16(len(list)))
	for _, a := range list {
		w.WriteBytes(a.Bytes())
	}
	return w.Bytes()
}

// write appends RuntimeVisibleAnnotations and RuntimeInvisibleAnnotations.
func (s *annotationSet) write(attrs *attrList) {
	if len(s.visible) > 0 {
		attrs.add("RuntimeVisibleAnnotations", annotationsBody(s.visible))
	}
	if len(s.invisible) > 0 {
		attrs.add("RuntimeInvisibleAnnotations", annotationsBody(s.invisible))
	}
}

// writeParameterAnnotations appends the parameter annotation attributes.
func writeParameterAnnotations(attrs *attrList, params []annotationSet, count int) {
	if len(params) > count {
		count = len(params)
	}
	for _, visible := range []bool{true, false} {
		found := false
		for _, p := range params {
			if (visible && len(p.visible) > 0) || (!visible && len(p.invisible) > 0) {
				found = true
			}
		}
		if !found {
			continue
		}
		w := bin.NewWriter()
		w.U1(uint8(count))
		for i := 0; i < count; i++ {
			var list []*bin.Writer
			if i < len(params) {
				list = params[i].invisible
				if visible {
					list = params[i].visible
				}
			}
			w.WriteBytes(annotationsBody(list))
		}
		if visible {
			attrs.add("RuntimeVisibleParameterAnnotations", w.Bytes())
		} else {
			attrs.add("RuntimeInvisibleParameterAnnotations", w.Bytes())
		}
	}
}

// attrList accumulates attribute_info structures.
type attrList struct {
	symbols *SymbolTable
	w       *bin.Writer
	count   int
	fail    func(error)
}

func newAttrList(symbols *SymbolTable, fail func(error)) *attrList {
	return &attrList{symbols: symbols, w: bin.NewWriter(), fail: fail}
}

func (a *attrList) add(name string, body []byte) {
	idx, err := a.symbols.AddUTF8(name)
	if err != nil {
		a.fail(err)
		return
	}
	a.w.U2(idx)
	a.w.U4(uint32(len(body)))
	a.w.WriteBytes(body)
	a.count++
}

func (a *attrList) addU2(name string, v uint16) {
	a.add(name, []byte{byte(v >> 8), byte(v)})
}

func (a *attrList) addRaw(attrs []Attribute) {
	for _, at := range attrs {
		a.add(at.Name, at.Data)
	}
}

// writeTo appends attributes_count and the attributes.
func (a *attrList) writeTo(w *bin.Writer) {
	w.U2(uint16(a.count))
	w.WriteBytes(a.w.Bytes())
}
